package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codesign/internal/auth"
	"codesign/internal/presence"
	"codesign/internal/session"
	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// sessionDB backs the session manager with just enough persistence for
// handler tests.
type sessionDB struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newSessionDB() *sessionDB {
	return &sessionDB{sessions: make(map[string]*types.Session)}
}

func (m *sessionDB) CreateSession(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *sessionDB) GetSession(ctx context.Context, id string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *sessionDB) UpdateSessionPhase(ctx context.Context, s *types.Session) error {
	return m.CreateSession(ctx, s)
}
func (m *sessionDB) ListSessions(ctx context.Context) ([]*types.Session, error) { return nil, nil }
func (m *sessionDB) AddParticipant(ctx context.Context, p *types.Participant) error {
	return nil
}
func (m *sessionDB) MarkParticipantLeft(ctx context.Context, sessionID, userID string) error {
	return nil
}
func (m *sessionDB) GetParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	return nil, nil
}
func (m *sessionDB) GetActiveParticipant(ctx context.Context, sessionID, userID string) (*types.Participant, error) {
	return nil, interfaces.ErrParticipantNotFound
}
func (m *sessionDB) RecordTransition(ctx context.Context, t *types.PhaseTransition) error {
	return nil
}
func (m *sessionDB) ListTransitions(ctx context.Context, sessionID string) ([]*types.PhaseTransition, error) {
	return nil, nil
}
func (m *sessionDB) AppendInteraction(ctx context.Context, rec *types.InteractionRecord) error {
	return nil
}
func (m *sessionDB) AppendDelta(ctx context.Context, delta *types.ArtifactDelta) error { return nil }
func (m *sessionDB) HealthCheck(ctx context.Context) error                             { return nil }
func (m *sessionDB) Close() error                                                      { return nil }

// echoDispatcher answers pings so the read loop can be exercised end to end.
type echoDispatcher struct{}

func (echoDispatcher) Dispatch(ctx context.Context, conn interfaces.Connection, envelope *types.Envelope) {
	if envelope.Type == types.EventPing {
		_ = conn.WriteJSON(types.NewEvent(types.EventPong, map[string]any{}))
	}
}

// broadcastRouter is the real fan-out over the test registry.
type broadcastRouter struct {
	registry *Registry
}

func (r *broadcastRouter) Broadcast(sessionID string, event *types.Event, excludeUser string) int {
	n := 0
	for _, conn := range r.registry.Connections(sessionID) {
		if excludeUser != "" && conn.GetUserID() == excludeUser {
			continue
		}
		if err := conn.WriteJSON(event); err == nil {
			n++
		}
	}
	return n
}

func (r *broadcastRouter) Unicast(sessionID, userID string, event *types.Event) bool {
	conn, ok := r.registry.Resolve(sessionID, userID)
	if !ok {
		return false
	}
	return conn.WriteJSON(event) == nil
}

type handlerFixture struct {
	server    *httptest.Server
	verifier  *auth.HMACVerifier
	sessionID string
	registry  *Registry
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := zap.NewNop()

	db := newSessionDB()
	sessions := session.NewManager(db, logger)
	sess, err := sessions.CreateSession(context.Background(), "handler test", "", "alice", types.ModeWithAI)
	require.NoError(t, err)

	presenceStore := presence.NewStore(5*time.Minute, 5*time.Second, logger)
	t.Cleanup(presenceStore.Stop)
	registry := NewRegistry(logger)
	router := &broadcastRouter{registry: registry}
	verifier, err := auth.NewHMACVerifier("handler-test-secret-012345")
	require.NoError(t, err)

	h := NewHandler(registry, sessions, presenceStore, verifier, router, echoDispatcher{},
		30*time.Second, 60*time.Second, logger)

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	return &handlerFixture{server: server, verifier: verifier, sessionID: sess.ID, registry: registry}
}

func (f *handlerFixture) wsURL(sessionID, token string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?session_id=" + sessionID + "&token=" + token
}

func (f *handlerFixture) dial(t *testing.T, userID string, role types.Role) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Issue(&types.Identity{UserID: userID, Name: userID, Role: role}, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(f.sessionID, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *types.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event types.Event
	require.NoError(t, conn.ReadJSON(&event))
	return &event
}

func TestConnectReceivesSessionState(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t, "alice", types.RoleDesigner)

	event := readEvent(t, conn)
	assert.Equal(t, types.EventSessionState, event.Type)
	assert.Equal(t, "alice", event.Payload["your_user_id"])
	assert.Equal(t, string(types.PhaseSetup), event.Payload["current_phase"])
	assert.Equal(t, string(types.ModeWithAI), event.Payload["experiment_mode"])
}

func TestJoinAnnouncedToExistingMembers(t *testing.T) {
	f := newHandlerFixture(t)
	alice := f.dial(t, "alice", types.RoleDesigner)
	readEvent(t, alice) // session_state

	bob := f.dial(t, "bob", types.RoleEndUser)
	readEvent(t, bob) // bob's own session_state

	event := readEvent(t, alice)
	assert.Equal(t, types.EventUserJoined, event.Type)
	assert.Equal(t, "bob", event.Payload["user_id"])
	assert.Equal(t, string(types.RoleEndUser), event.Payload["role"])
}

func TestDisconnectAnnouncedToRemainingMembers(t *testing.T) {
	f := newHandlerFixture(t)
	alice := f.dial(t, "alice", types.RoleDesigner)
	readEvent(t, alice)

	bob := f.dial(t, "bob", types.RoleEndUser)
	readEvent(t, bob)
	readEvent(t, alice) // user_joined for bob

	require.NoError(t, bob.Close())

	event := readEvent(t, alice)
	assert.Equal(t, types.EventUserLeft, event.Type)
	assert.Equal(t, "bob", event.Payload["user_id"])
}

func TestPingPongThroughReadLoop(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t, "alice", types.RoleDesigner)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))

	event := readEvent(t, conn)
	assert.Equal(t, types.EventPong, event.Type)
}

func TestMalformedFrameGetsErrorEvent(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t, "alice", types.RoleDesigner)
	readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	event := readEvent(t, conn)
	assert.Equal(t, types.EventError, event.Type)
}

func TestInvalidTokenClosedWithCredentialCode(t *testing.T) {
	f := newHandlerFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(f.sessionID, "bogus.token"), nil)
	require.NoError(t, err, "upgrade succeeds; rejection arrives as a close code")
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, interfaces.CloseInvalidCredential, closeErr.Code)
}

func TestUnknownSessionRejected(t *testing.T) {
	f := newHandlerFixture(t)
	token, err := f.verifier.Issue(&types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleDesigner}, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("missing", token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestMissingParametersRejectedBeforeUpgrade(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := http.Get(f.server.URL + "/?session_id=only")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	f := newHandlerFixture(t)
	first := f.dial(t, "alice", types.RoleDesigner)
	readEvent(t, first)

	second := f.dial(t, "alice", types.RoleDesigner)
	readEvent(t, second)

	// The first connection is closed with the supersession code.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	var closeErr *websocket.CloseError
	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			var ok bool
			closeErr, ok = err.(*websocket.CloseError)
			require.True(t, ok, "expected close error, got %v", err)
			break
		}
	}
	assert.Equal(t, interfaces.CloseSuperseded, closeErr.Code)

	// The replacement stays registered and working.
	require.NoError(t, second.WriteJSON(map[string]any{"type": "ping"}))
	event := readEvent(t, second)
	assert.Equal(t, types.EventPong, event.Type)
}
