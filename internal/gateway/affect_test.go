package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codesign/pkg/types"
)

func TestDetectAffectKeywords(t *testing.T) {
	cases := []struct {
		text   string
		expect string
	}{
		{"What do you think about moving the counter?", AffectQuestioning},
		{"I understand that must be hard for you", AffectEmpathy},
		{"Great, keep going with that direction", AffectEncouraging},
		{"That sketch is amazing", AffectExcited},
	}

	for _, tc := range cases {
		got := DetectAffect(tc.text, types.PhaseSetup)
		assert.Equal(t, tc.expect, got, "text: %q", tc.text)
	}
}

func TestDetectAffectPhaseDefaults(t *testing.T) {
	// No keyword matches, so the phase default wins.
	text := "please continue"

	assert.Equal(t, AffectQuestioning, DetectAffect(text, types.PhaseSharedFraming))
	assert.Equal(t, AffectEmpathy, DetectAffect(text, types.PhasePerspectiveExchange))
	assert.Equal(t, AffectEncouraging, DetectAffect(text, types.PhaseMeaningNegotiation))
	assert.Equal(t, AffectExcited, DetectAffect(text, types.PhaseReflectionIteration))
	assert.Equal(t, AffectNeutral, DetectAffect(text, types.PhaseSetup))
}

func TestDetectAffectUnknownPhaseFallsBackToNeutral(t *testing.T) {
	assert.Equal(t, AffectNeutral, DetectAffect("please continue", types.Phase("unknown")))
}

func TestDetectAffectCaseInsensitive(t *testing.T) {
	assert.Equal(t, AffectExcited, DetectAffect("AMAZING work", types.PhaseSetup))
}
