package gateway

import (
	"context"

	"codesign/pkg/interfaces"
)

// Disabled is the gateway used when no API key is configured, as in control
// and without_ai study arms. Every call fails with the sentinel error so
// callers degrade the same way they would on an outage.
type Disabled struct{}

func (Disabled) Process(ctx context.Context, req *interfaces.FacilitationRequest) (*interfaces.FacilitationResult, error) {
	return nil, interfaces.ErrGatewayUnavailable
}

func (Disabled) Transcribe(ctx context.Context, audio []byte, language string) (*interfaces.TranscriptionResult, error) {
	return nil, interfaces.ErrTranscriptionFailed
}
