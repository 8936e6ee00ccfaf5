package types

import (
	"encoding/json"
	"time"
)

// Inbound event types. Dispatch is a closed switch over this set; anything
// else is answered with a private "unknown message type" error.
const (
	EventPing                = "ping"
	EventPresenceUpdate      = "presence_update"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventChatMessage         = "chat_message"
	EventVoiceInput          = "voice_input"
	EventFacilitationMessage = "facilitation_message"
	EventCollaborativeUpdate = "collaborative_update"
	EventPhaseAdvance        = "phase_advance"
)

// Outbound event types.
const (
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventSessionState    = "session_state"
	EventVoiceTranscript = "voice_transcript"
	EventAIProcessing    = "ai_processing"
	EventAIResponse      = "ai_response"
	EventPhaseChanged    = "phase_changed"
	EventPong            = "pong"
	EventError           = "error"
)

// Envelope is the logical shape of every inbound frame.
// TECHNICAL DISCOVERY: Payload stays raw until the dispatcher knows the type,
// so malformed payloads are reported per-handler instead of killing the read loop.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is the outbound frame. Timestamp marshals as RFC 3339 through the
// standard time.Time encoding.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an outbound event stamped with the current server time.
func NewEvent(eventType string, payload map[string]any) *Event {
	return &Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Inbound payload shapes. Fields the core does not understand are dropped by
// json decoding on purpose; only the routed fields are contractual.

type PresenceUpdatePayload struct {
	Status        string `json:"status"`
	Cursor        any    `json:"cursor,omitempty"`
	ActiveElement string `json:"active_element,omitempty"`
}

type ChatMessagePayload struct {
	Content string `json:"content"`
}

type VoiceInputPayload struct {
	Audio                 string `json:"audio"` // base64-encoded audio bytes
	Language              string `json:"language,omitempty"`
	RequestAudio          bool   `json:"request_audio"`
	ForwardToFacilitation *bool  `json:"forward_to_facilitation,omitempty"`
}

// ForwardEnabled defaults to true when the client omits the flag, matching
// the voice capture clients which expect transcripts to reach facilitation.
func (p *VoiceInputPayload) ForwardEnabled() bool {
	return p.ForwardToFacilitation == nil || *p.ForwardToFacilitation
}

type FacilitationMessagePayload struct {
	Message      string         `json:"message"`
	RequestAudio bool           `json:"request_audio"`
	Context      map[string]any `json:"context,omitempty"`
}

type CollaborativeUpdatePayload struct {
	ArtifactID string `json:"artifact_id"`
	Update     string `json:"update"` // opaque base64 merge payload
}

type PhaseAdvancePayload struct {
	Reason string `json:"reason,omitempty"`
}
