package gateway

import (
	"strings"

	"codesign/pkg/types"
)

// Affect labels attached to facilitation responses so clients can adapt
// voice and avatar rendering.
const (
	AffectNeutral     = "neutral"
	AffectQuestioning = "questioning"
	AffectEmpathy     = "empathy"
	AffectEncouraging = "encouraging"
	AffectExcited     = "excited"
)

// phaseAffects maps each phase to the default affect when no keyword matches.
// Early phases probe, middle phases hold space, late phases celebrate.
var phaseAffects = map[types.Phase]string{
	types.PhaseSetup:               AffectNeutral,
	types.PhaseSharedFraming:       AffectQuestioning,
	types.PhasePerspectiveExchange: AffectEmpathy,
	types.PhaseMeaningNegotiation:  AffectEncouraging,
	types.PhaseReflectionIteration: AffectExcited,
	types.PhaseComplete:            AffectNeutral,
}

var affectKeywords = []struct {
	affect   string
	keywords []string
}{
	{AffectQuestioning, []string{"?", "what do you think", "how about", "wonder", "curious"}},
	{AffectEmpathy, []string{"understand", "feel", "difficult", "hard", "sorry", "appreciate"}},
	{AffectEncouraging, []string{"great", "good idea", "well done", "keep going", "nice", "exactly"}},
	{AffectExcited, []string{"amazing", "wonderful", "fantastic", "love it", "brilliant", "!"}},
}

// DetectAffect picks an affect label for a facilitation response. Keyword
// matches win over the phase default; the first matching group wins ties.
func DetectAffect(text string, phase types.Phase) string {
	lowered := strings.ToLower(text)
	for _, group := range affectKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lowered, keyword) {
				return group.affect
			}
		}
	}
	if affect, ok := phaseAffects[phase]; ok {
		return affect
	}
	return AffectNeutral
}
