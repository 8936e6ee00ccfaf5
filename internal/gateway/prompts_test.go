package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"codesign/pkg/types"
)

func TestBuildSystemPromptIncludesPhaseGuidance(t *testing.T) {
	prompt := buildSystemPrompt(types.PhaseMeaningNegotiation, types.RoleEndUser, nil)

	assert.True(t, strings.Contains(prompt, "negotiating"), "phase guidance missing")
	assert.True(t, strings.Contains(prompt, `"end_user"`), "sender role missing")
}

func TestBuildSystemPromptIncludesClientContext(t *testing.T) {
	prompt := buildSystemPrompt(types.PhaseSetup, types.RoleDesigner, map[string]any{
		"artifact": "floor plan v2",
	})

	assert.True(t, strings.Contains(prompt, "artifact"))
	assert.True(t, strings.Contains(prompt, "floor plan v2"))
}

func TestExtractSuggestions(t *testing.T) {
	text := "That is a strong framing.\nSUGGESTION: Sketch two alternatives\nSUGGESTION: Ask Maya what she thinks"
	body, suggestions := extractSuggestions(text)

	assert.Equal(t, "That is a strong framing.", body)
	assert.Equal(t, []string{"Sketch two alternatives", "Ask Maya what she thinks"}, suggestions)
}

func TestExtractSuggestionsNoSuggestions(t *testing.T) {
	body, suggestions := extractSuggestions("Just a plain response.")
	assert.Equal(t, "Just a plain response.", body)
	assert.Empty(t, suggestions)
}

func TestExtractSuggestionsSkipsEmptyOnes(t *testing.T) {
	body, suggestions := extractSuggestions("Reply.\nSUGGESTION:\nSUGGESTION: real one")
	assert.Equal(t, "Reply.", body)
	assert.Equal(t, []string{"real one"}, suggestions)
}
