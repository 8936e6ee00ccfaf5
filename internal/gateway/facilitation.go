package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"codesign/pkg/interfaces"
)

// codesignTools are the functions the facilitator may call to capture
// structured research artifacts out of the conversation.
var codesignTools = []*genai.Tool{{
	FunctionDeclarations: []*genai.FunctionDeclaration{
		{
			Name:        "capture_insight",
			Description: "Record a pain point, need, emotion or behavior surfaced during the session.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"insight_type": {
						Type: genai.TypeString,
						Enum: []string{"pain_point", "need", "emotion", "behavior"},
					},
					"content": {
						Type:        genai.TypeString,
						Description: "The insight itself, one or two sentences.",
					},
					"source": {
						Type: genai.TypeString,
						Enum: []string{"end_user", "designer", "observation"},
					},
				},
				Required: []string{"insight_type", "content", "source"},
			},
		},
		{
			Name:        "add_to_empathy_map",
			Description: "File a statement under one of the empathy map categories.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"category": {
						Type: genai.TypeString,
						Enum: []string{"says", "thinks", "does", "feels", "hears", "touches"},
					},
					"content": {
						Type: genai.TypeString,
					},
				},
				Required: []string{"category", "content"},
			},
		},
	},
}}

// GeminiFacilitator implements interfaces.FacilitationGateway on top of the
// Gemini API.
type GeminiFacilitator struct {
	client *genai.Client
	model  string
	speech *Speech
	logger *zap.Logger
}

// NewGeminiFacilitator creates a facilitation gateway. speech may be nil, in
// which case audio is never synthesized.
func NewGeminiFacilitator(ctx context.Context, apiKey, model string, speech *Speech, logger *zap.Logger) (*GeminiFacilitator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiFacilitator{
		client: client,
		model:  model,
		speech: speech,
		logger: logger,
	}, nil
}

// Process sends one facilitation exchange to the model.
// FUNCTIONAL DISCOVERY: The gateway is stateless per request; the phase and
// role context travel in the system instruction, not a server-side chat
// session, so a gateway restart loses nothing.
func (g *GeminiFacilitator) Process(ctx context.Context, req *interfaces.FacilitationRequest) (*interfaces.FacilitationResult, error) {
	system := buildSystemPrompt(req.CurrentPhase, req.SenderRole, req.Context)

	contents := []*genai.Content{
		genai.NewContentFromText(req.Message, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
		Tools:             codesignTools,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrGatewayUnavailable, err)
	}

	// One tool round: acknowledge every call, then ask for the final text.
	toolsUsed := []string{}
	if calls := resp.FunctionCalls(); len(calls) > 0 {
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			toolsUsed = append(toolsUsed, call.Name)
			g.logger.Info("facilitator tool call",
				zap.String("session_id", req.SessionID),
				zap.String("tool", call.Name),
				zap.Any("args", call.Args))
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name,
				map[string]any{"status": "recorded"}))
		}
		contents = append(contents, resp.Candidates[0].Content,
			genai.NewContentFromParts(parts, genai.RoleUser))

		resp, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrGatewayUnavailable, err)
		}
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", interfaces.ErrGatewayUnavailable)
	}

	body, suggestions := extractSuggestions(text)
	affect := DetectAffect(body, req.CurrentPhase)

	result := &interfaces.FacilitationResult{
		Response:    body,
		Suggestions: suggestions,
		ToolsUsed:   toolsUsed,
		Affect:      affect,
	}

	// Synthesis failure downgrades the response to text only.
	if req.RequestAudio && g.speech != nil {
		audioRef, err := g.speech.Synthesize(ctx, body, affect)
		if err != nil {
			g.logger.Warn("tts synthesis failed",
				zap.String("session_id", req.SessionID), zap.Error(err))
		} else {
			result.AudioRef = audioRef
		}
	}

	g.logger.Debug("facilitation response",
		zap.String("session_id", req.SessionID),
		zap.Int("suggestions", len(suggestions)),
		zap.Strings("tools_used", toolsUsed),
		zap.String("affect", affect))
	return result, nil
}
