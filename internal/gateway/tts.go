package gateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Speech synthesizes facilitation responses into audio files served under
// /audio/. Emotional delivery is steered through a natural-language style
// instruction in the prompt; the TTS models take no prosody markup.
type Speech struct {
	client   *genai.Client
	model    string
	voice    string
	audioDir string
	logger   *zap.Logger
}

// toneInstructions phrase each affect label as a spoken-style direction.
var toneInstructions = map[string]string{
	AffectQuestioning: "Say in a curious, inquiring tone",
	AffectEmpathy:     "Say in a warm, understanding tone",
	AffectEncouraging: "Say in an upbeat, supportive tone",
	AffectExcited:     "Say in an enthusiastic, energetic tone",
}

// NewSpeech creates a synthesizer writing audio files into audioDir.
func NewSpeech(ctx context.Context, apiKey, model, voice, audioDir string, logger *zap.Logger) (*Speech, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if audioDir == "" {
		return nil, fmt.Errorf("audio directory is required")
	}
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	if voice == "" {
		voice = "Kore"
	}
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Speech{
		client:   client,
		model:    model,
		voice:    voice,
		audioDir: audioDir,
		logger:   logger,
	}, nil
}

// Synthesize renders text to a WAV file and returns its public URL path.
func (s *Speech) Synthesize(ctx context.Context, text string, affect string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("nothing to synthesize")
	}

	prompt := text
	if instruction, ok := toneInstructions[affect]; ok {
		prompt = fmt.Sprintf("%s: %s", instruction, text)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
				},
			},
		})
	if err != nil {
		return "", fmt.Errorf("tts generation failed: %w", err)
	}

	pcm := audioPayload(resp)
	if len(pcm) == 0 {
		return "", fmt.Errorf("tts generation returned no audio")
	}

	name := fmt.Sprintf("tts_%s.wav", uuid.New().String()[:8])
	path := filepath.Join(s.audioDir, name)
	if err := os.WriteFile(path, pcmToWAV(pcm, ttsSampleRate), 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	s.logger.Debug("synthesized speech",
		zap.String("file", name),
		zap.String("affect", affect),
		zap.Int("pcm_bytes", len(pcm)))
	return "/audio/" + name, nil
}

// audioPayload pulls the first inline audio blob out of a response.
func audioPayload(resp *genai.GenerateContentResponse) []byte {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}

// The TTS models emit raw 24 kHz 16-bit mono linear PCM without a container.
const ttsSampleRate = 24000

// pcmToWAV wraps raw 16-bit mono PCM in a RIFF header so browsers can play
// the file directly.
func pcmToWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var w bytes.Buffer
	w.Grow(44 + len(pcm))
	w.WriteString("RIFF")
	binary.Write(&w, binary.LittleEndian, uint32(36+len(pcm)))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	binary.Write(&w, binary.LittleEndian, uint32(16))
	binary.Write(&w, binary.LittleEndian, uint16(1))
	binary.Write(&w, binary.LittleEndian, uint16(channels))
	binary.Write(&w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&w, binary.LittleEndian, uint32(byteRate))
	binary.Write(&w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&w, binary.LittleEndian, uint16(bitsPerSample))
	w.WriteString("data")
	binary.Write(&w, binary.LittleEndian, uint32(len(pcm)))
	w.Write(pcm)
	return w.Bytes()
}
