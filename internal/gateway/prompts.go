package gateway

import (
	"fmt"
	"strings"

	"codesign/pkg/types"
)

// basePrompt frames the facilitator role shared by every phase.
const basePrompt = `You are a facilitator in a multi-party co-design session where designers and end users create together. Keep responses short and conversational, address the group rather than one person, and never take over the design work yourself. When useful, end your reply with up to three lines starting with "SUGGESTION:" that propose a next step for the group.`

// phasePrompts tune facilitation behavior to the current phase of the session.
var phasePrompts = map[types.Phase]string{
	types.PhaseSetup:               `The session has not started. Help participants get comfortable and explain what will happen, but do not begin design activities.`,
	types.PhaseSharedFraming:       `The group is building a shared understanding of the design problem. Ask clarifying questions, surface assumptions, and make sure quieter participants are invited to describe the problem in their own words.`,
	types.PhasePerspectiveExchange: `Participants are sharing their individual perspectives. Draw out differences between designer and end-user viewpoints without judging them, and reflect back what you hear so each perspective is acknowledged.`,
	types.PhaseMeaningNegotiation:  `The group is negotiating what their ideas mean to each other. Help them find common ground, name trade-offs explicitly, and encourage concrete proposals over abstract agreement.`,
	types.PhaseReflectionIteration: `The group is reflecting on what they built and iterating. Celebrate progress, prompt for what they would change, and help them decide what to try next.`,
	types.PhaseComplete:            `The session is complete. Thank participants and summarize if asked, but do not start new design activities.`,
}

// buildSystemPrompt composes the facilitator instruction for one request.
func buildSystemPrompt(phase types.Phase, senderRole types.Role, extra map[string]any) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	if p, ok := phasePrompts[phase]; ok {
		b.WriteString(p)
	}
	b.WriteString(fmt.Sprintf("\n\nThe message you are responding to was sent by a participant with the role %q.", senderRole))
	if len(extra) > 0 {
		b.WriteString("\nAdditional context supplied by the client:")
		for key, value := range extra {
			b.WriteString(fmt.Sprintf("\n- %s: %v", key, value))
		}
	}
	return b.String()
}

// extractSuggestions splits trailing SUGGESTION: lines out of a response.
func extractSuggestions(text string) (string, []string) {
	var body []string
	var suggestions []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "SUGGESTION:"); ok {
			if s := strings.TrimSpace(rest); s != "" {
				suggestions = append(suggestions, s)
			}
			continue
		}
		body = append(body, line)
	}
	return strings.TrimSpace(strings.Join(body, "\n")), suggestions
}
