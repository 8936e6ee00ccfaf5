package interfaces

import (
	"context"

	"codesign/pkg/types"
)

// FacilitationRequest carries everything the external reasoning process
// needs to respond to one participant message.
type FacilitationRequest struct {
	SessionID    string
	Message      string
	SenderRole   types.Role
	CurrentPhase types.Phase
	Context      map[string]any
	RequestAudio bool
}

// FacilitationResult is the structured outcome of one facilitation call.
type FacilitationResult struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions"`
	ToolsUsed   []string `json:"tools_used"`
	AudioRef    string   `json:"audio_ref,omitempty"`
	Affect      string   `json:"affect,omitempty"`
}

// FacilitationGateway abstracts the long-running external reasoning call.
// FUNCTIONAL DISCOVERY: Calls take seconds; callers must never hold locks
// that other sessions need while a Process call is in flight.
type FacilitationGateway interface {
	Process(ctx context.Context, req *FacilitationRequest) (*FacilitationResult, error)
}

// TranscriptSegment is one timed span of a transcription result.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the outcome of one speech-to-text call.
type TranscriptionResult struct {
	Transcript string              `json:"transcript"`
	Confidence float64             `json:"confidence"`
	Language   string              `json:"language"`
	Segments   []TranscriptSegment `json:"segments,omitempty"`
}

// TranscriptionGateway abstracts the external speech-to-text capability.
type TranscriptionGateway interface {
	Transcribe(ctx context.Context, audio []byte, language string) (*TranscriptionResult, error)
}

// TokenVerifier validates an opaque capability token presented at connect
// time. Verification happens before any core session state is touched.
type TokenVerifier interface {
	Verify(token string) (*types.Identity, error)
}
