package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codesign/internal/gateway"
	"codesign/internal/router"
	"codesign/internal/session"
	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// Dispatcher routes inbound session events to their handlers.
// ARCHITECTURAL DISCOVERY: Dispatch is called sequentially from each
// connection's read loop, so events from one sender are handled in arrival
// order. Only the facilitation gateway call leaves that loop, because a model
// round-trip must not stall the sender's other traffic.
type Dispatcher struct {
	router        *router.Router
	sessions      *session.Manager
	presence      interfaces.PresenceStore
	facilitation  interfaces.FacilitationGateway
	transcription interfaces.TranscriptionGateway
	interactions  interfaces.InteractionLog
	artifacts     interfaces.ArtifactStore
	limiter       *RateLimiter
	logger        *zap.Logger
	callTimeout   time.Duration
}

// Per-sender flood protection for the fan-out path. Heartbeats are exempt so
// a throttled client keeps its connection alive.
const (
	inboundRateLimit  = 100
	inboundRateWindow = time.Minute
)

// NewDispatcher creates a dispatcher with all collaborators injected.
func NewDispatcher(
	router *router.Router,
	sessions *session.Manager,
	presence interfaces.PresenceStore,
	facilitation interfaces.FacilitationGateway,
	transcription interfaces.TranscriptionGateway,
	interactions interfaces.InteractionLog,
	artifacts interfaces.ArtifactStore,
	callTimeout time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		router:        router,
		sessions:      sessions,
		presence:      presence,
		facilitation:  facilitation,
		transcription: transcription,
		interactions:  interactions,
		artifacts:     artifacts,
		limiter:       NewRateLimiter(inboundRateLimit, inboundRateWindow),
		callTimeout:   callTimeout,
		logger:        logger,
	}
}

// Dispatch handles one inbound frame from a connection.
// FUNCTIONAL DISCOVERY: A handler panic is converted into a private error
// event instead of tearing down the read loop; one bad frame must not
// disconnect the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, conn interfaces.Connection, envelope *types.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				zap.String("event_type", envelope.Type),
				zap.String("user_id", conn.GetUserID()),
				zap.Any("panic", r))
			d.sendError(conn, "internal error handling "+envelope.Type)
		}
	}()

	if envelope.Type != types.EventPing &&
		!d.limiter.Allow(conn.GetSessionID()+"/"+conn.GetUserID()) {
		d.sendError(conn, ErrRateLimited.Error())
		return
	}

	switch envelope.Type {
	case types.EventPing:
		d.handlePing(conn)
	case types.EventPresenceUpdate:
		d.handlePresenceUpdate(conn, envelope.Payload)
	case types.EventTypingStart:
		d.handleTyping(conn, true)
	case types.EventTypingStop:
		d.handleTyping(conn, false)
	case types.EventChatMessage:
		d.handleChatMessage(ctx, conn, envelope.Payload)
	case types.EventVoiceInput:
		d.handleVoiceInput(ctx, conn, envelope.Payload)
	case types.EventFacilitationMessage:
		d.handleFacilitationMessage(ctx, conn, envelope.Payload)
	case types.EventCollaborativeUpdate:
		d.handleCollaborativeUpdate(ctx, conn, envelope.Payload)
	case types.EventPhaseAdvance:
		d.handlePhaseAdvance(ctx, conn, envelope.Payload)
	default:
		d.sendError(conn, fmt.Sprintf("%s: %s", ErrUnknownEventType, envelope.Type))
	}
}

// handlePing answers privately; pings never reach other participants.
func (d *Dispatcher) handlePing(conn interfaces.Connection) {
	event := types.NewEvent(types.EventPong, map[string]any{})
	if err := conn.WriteJSON(event); err != nil {
		d.logger.Debug("failed to send pong", zap.String("user_id", conn.GetUserID()), zap.Error(err))
	}
}

// handlePresenceUpdate refreshes the sender's presence record and fans the
// update out to everyone else in the session.
func (d *Dispatcher) handlePresenceUpdate(conn interfaces.Connection, raw json.RawMessage) {
	var payload types.PresenceUpdatePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			d.sendError(conn, "invalid presence_update payload")
			return
		}
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	d.presence.Upsert(sessionID, userID, &types.PresenceRecord{
		Status:        payload.Status,
		Name:          conn.GetDisplayName(),
		Role:          conn.GetRole(),
		Cursor:        payload.Cursor,
		ActiveElement: payload.ActiveElement,
	})

	event := types.NewEvent(types.EventPresenceUpdate, map[string]any{
		"user_id":        userID,
		"status":         payload.Status,
		"cursor":         payload.Cursor,
		"active_element": payload.ActiveElement,
	})
	d.router.Broadcast(sessionID, event, userID)
}

// handleTyping maintains the short-lived typing marker and relays the signal.
// The marker expires on its own, so a lost typing_stop self-heals.
func (d *Dispatcher) handleTyping(conn interfaces.Connection, start bool) {
	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	eventType := types.EventTypingStop
	if start {
		d.presence.SetTyping(sessionID, userID)
		eventType = types.EventTypingStart
	} else {
		d.presence.ClearTyping(sessionID, userID)
	}

	event := types.NewEvent(eventType, map[string]any{"user_id": userID})
	d.router.Broadcast(sessionID, event, userID)
}

// handleChatMessage assigns the server-side message ID and broadcasts to the
// whole session including the sender, whose client renders the echoed copy as
// the delivery confirmation.
func (d *Dispatcher) handleChatMessage(ctx context.Context, conn interfaces.Connection, raw json.RawMessage) {
	var payload types.ChatMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Content == "" {
		d.sendError(conn, ErrEmptyMessage.Error())
		return
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()
	messageID := uuid.New().String()

	event := types.NewEvent(types.EventChatMessage, map[string]any{
		"id":          messageID,
		"sender_id":   userID,
		"sender_name": conn.GetDisplayName(),
		"sender_role": string(conn.GetRole()),
		"content":     payload.Content,
	})
	d.router.Broadcast(sessionID, event, "")

	d.logInteraction(ctx, conn, "chat_message", map[string]any{
		"message_id": messageID,
		"content":    payload.Content,
	})
}

// handleVoiceInput transcribes the audio and broadcasts the transcript. The
// transcription runs in the sender's loop so the transcript, and any
// facilitation exchange it spawns, keep the sender's ordering.
func (d *Dispatcher) handleVoiceInput(ctx context.Context, conn interfaces.Connection, raw json.RawMessage) {
	var payload types.VoiceInputPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Audio == "" {
		d.sendError(conn, "invalid voice_input payload")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(payload.Audio)
	if err != nil {
		d.sendError(conn, ErrInvalidAudio.Error())
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	result, err := d.transcription.Transcribe(callCtx, audio, payload.Language)
	if err != nil {
		d.logger.Warn("transcription failed",
			zap.String("user_id", conn.GetUserID()), zap.Error(err))
		d.sendError(conn, "voice transcription failed")
		return
	}
	if result.Transcript == "" {
		d.sendError(conn, "no speech detected")
		return
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	event := types.NewEvent(types.EventVoiceTranscript, map[string]any{
		"user_id":    userID,
		"user_name":  conn.GetDisplayName(),
		"transcript": result.Transcript,
		"confidence": result.Confidence,
		"language":   result.Language,
	})
	d.router.Broadcast(sessionID, event, "")

	d.logInteraction(ctx, conn, "voice_transcript", map[string]any{
		"transcript": result.Transcript,
		"confidence": result.Confidence,
	})

	// FUNCTIONAL DISCOVERY: A spoken utterance doubles as a facilitation
	// prompt unless the client opts out, so voice-first participants get the
	// same facilitation loop as typists.
	if payload.ForwardEnabled() {
		d.processFacilitation(ctx, conn, &types.FacilitationMessagePayload{
			Message:      result.Transcript,
			RequestAudio: payload.RequestAudio,
		})
	}
}

// handleFacilitationMessage parses the payload and hands off to the shared
// facilitation flow.
func (d *Dispatcher) handleFacilitationMessage(ctx context.Context, conn interfaces.Connection, raw json.RawMessage) {
	var payload types.FacilitationMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		d.sendError(conn, ErrEmptyMessage.Error())
		return
	}
	d.processFacilitation(ctx, conn, &payload)
}

// processFacilitation gates on the session's experiment mode, announces
// ai_processing synchronously, then runs the gateway round-trip in its own
// goroutine.
// ARCHITECTURAL DISCOVERY: ai_processing is broadcast before the goroutine
// launches so every participant sees the thinking indicator before any
// response can arrive, regardless of gateway latency.
func (d *Dispatcher) processFacilitation(ctx context.Context, conn interfaces.Connection, payload *types.FacilitationMessagePayload) {
	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	sess, err := d.sessions.GetSession(ctx, sessionID)
	if err != nil {
		d.sendError(conn, "session not found")
		return
	}
	if sess.ExperimentMode != types.ModeWithAI {
		d.sendError(conn, interfaces.ErrFacilitationDisabled.Error())
		return
	}

	requestID := uuid.New().String()
	processing := types.NewEvent(types.EventAIProcessing, map[string]any{
		"request_id": requestID,
		"user_id":    userID,
		"message":    payload.Message,
	})
	d.router.Broadcast(sessionID, processing, "")

	request := &interfaces.FacilitationRequest{
		SessionID:    sessionID,
		Message:      payload.Message,
		SenderRole:   conn.GetRole(),
		CurrentPhase: sess.CurrentPhase,
		Context:      payload.Context,
		RequestAudio: payload.RequestAudio,
	}

	go func() {
		callCtx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
		defer cancel()

		result, err := d.facilitation.Process(callCtx, request)
		if err != nil {
			d.logger.Error("facilitation gateway failed",
				zap.String("session_id", sessionID),
				zap.String("request_id", requestID),
				zap.Error(err))
			// The whole session saw ai_processing, so the whole session
			// hears about the failure.
			failure := types.NewEvent(types.EventError, map[string]any{
				"request_id": requestID,
				"message":    "facilitation is temporarily unavailable",
			})
			d.router.Broadcast(sessionID, failure, "")
			return
		}

		affect := result.Affect
		if affect == "" {
			affect = gateway.DetectAffect(result.Response, sess.CurrentPhase)
		}

		response := types.NewEvent(types.EventAIResponse, map[string]any{
			"request_id":    requestID,
			"in_reply_to":   userID,
			"response":      result.Response,
			"suggestions":   result.Suggestions,
			"tools_used":    result.ToolsUsed,
			"tts_audio_url": result.AudioRef,
			"emotion":       affect,
		})
		d.router.Broadcast(sessionID, response, "")

		d.logInteraction(context.Background(), conn, "ai_response", map[string]any{
			"request_id": requestID,
			"message":    payload.Message,
			"response":   result.Response,
		})
	}()
}

// handleCollaborativeUpdate relays an opaque artifact delta to every other
// participant. The origin already applied it locally; echoing it back would
// duplicate the change.
func (d *Dispatcher) handleCollaborativeUpdate(ctx context.Context, conn interfaces.Connection, raw json.RawMessage) {
	var payload types.CollaborativeUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ArtifactID == "" {
		d.sendError(conn, ErrMissingArtifactID.Error())
		return
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	event := types.NewEvent(types.EventCollaborativeUpdate, map[string]any{
		"artifact_id": payload.ArtifactID,
		"update":      payload.Update,
		"origin":      userID,
	})
	d.router.Broadcast(sessionID, event, userID)

	if d.artifacts != nil {
		delta := &types.ArtifactDelta{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			ArtifactID: payload.ArtifactID,
			Origin:     userID,
			Payload:    payload.Update,
			AppendedAt: time.Now().UTC(),
		}
		go func() {
			if err := d.artifacts.AppendDelta(context.Background(), delta); err != nil {
				d.logger.Warn("failed to persist artifact delta",
					zap.String("artifact_id", payload.ArtifactID), zap.Error(err))
			}
		}()
	}
}

// handlePhaseAdvance moves the session forward and announces the result. A
// rejected transition is the requester's problem alone.
func (d *Dispatcher) handlePhaseAdvance(ctx context.Context, conn interfaces.Connection, raw json.RawMessage) {
	var payload types.PhaseAdvancePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			d.sendError(conn, "invalid phase_advance payload")
			return
		}
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	transition, err := d.sessions.Advance(ctx, sessionID, userID, payload.Reason)
	if err != nil {
		d.sendError(conn, err.Error())
		return
	}

	event := types.NewEvent(types.EventPhaseChanged, map[string]any{
		"from_phase":   string(transition.FromPhase),
		"to_phase":     string(transition.ToPhase),
		"triggered_by": transition.TriggeredBy,
		"reason":       transition.Reason,
	})
	d.router.Broadcast(sessionID, event, "")

	d.logInteraction(ctx, conn, "phase_advance", map[string]any{
		"from_phase": string(transition.FromPhase),
		"to_phase":   string(transition.ToPhase),
	})
}

// logInteraction appends to the research log without blocking dispatch.
// FUNCTIONAL DISCOVERY: Logging is fire-and-forget; an unavailable log never
// degrades the live session.
func (d *Dispatcher) logInteraction(ctx context.Context, conn interfaces.Connection, kind string, data map[string]any) {
	if d.interactions == nil {
		return
	}

	sess, err := d.sessions.GetSession(ctx, conn.GetSessionID())
	phase := types.PhaseSetup
	if err == nil {
		phase = sess.CurrentPhase
	}

	record := &types.InteractionRecord{
		ID:        uuid.New().String(),
		SessionID: conn.GetSessionID(),
		Phase:     phase,
		Kind:      kind,
		ActorID:   conn.GetUserID(),
		ActorRole: conn.GetRole(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	go func() {
		if err := d.interactions.AppendInteraction(context.Background(), record); err != nil {
			d.logger.Warn("failed to append interaction record",
				zap.String("kind", kind), zap.Error(err))
		}
	}()
}

// sendError delivers a private error event to one connection.
func (d *Dispatcher) sendError(conn interfaces.Connection, message string) {
	event := types.NewEvent(types.EventError, map[string]any{"message": message})
	if err := conn.WriteJSON(event); err != nil {
		d.logger.Debug("failed to send error event",
			zap.String("user_id", conn.GetUserID()), zap.Error(err))
	}
}
