package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"codesign/pkg/interfaces"
)

const transcribePrompt = `Transcribe the attached audio exactly as spoken. Respond with only a JSON object of the form {"transcript": "...", "confidence": 0.0, "language": "xx"} and nothing else. Confidence is your estimate between 0 and 1. If the audio contains no speech, use an empty transcript.`

// GeminiTranscriber implements interfaces.TranscriptionGateway using Gemini's
// audio understanding.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiTranscriber creates a transcription gateway.
func NewGeminiTranscriber(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiTranscriber, error) {
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

	return &GeminiTranscriber{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Transcribe converts captured audio into text.
func (g *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (*interfaces.TranscriptionResult, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", interfaces.ErrTranscriptionFailed)
	}

	prompt := transcribePrompt
	if language != "" {
		prompt += fmt.Sprintf(" The speaker is expected to be using language %q.", language)
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(audio, "audio/webm"),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrTranscriptionFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	// Models wrap JSON in code fences often enough that stripping them here
	// is cheaper than retrying.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var result interfaces.TranscriptionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		// Fall back to treating the whole response as the transcript.
		g.logger.Debug("transcription response was not JSON, using raw text")
		result = interfaces.TranscriptionResult{
			Transcript: text,
			Confidence: 0.5,
			Language:   language,
		}
	}
	if result.Language == "" {
		result.Language = language
	}

	return &result, nil
}
