package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := NewManager(path, 30*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testSession(name string) *types.Session {
	return &types.Session{
		ID:             uuid.New().String(),
		Name:           name,
		Description:    "a test session",
		CurrentPhase:   types.PhaseSetup,
		ExperimentMode: types.ModeWithAI,
		CreatedBy:      "alice",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestCreateAndGetSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess := testSession("kitchen redesign")
	require.NoError(t, m.CreateSession(ctx, sess))

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Name, got.Name)
	assert.Equal(t, types.PhaseSetup, got.CurrentPhase)
	assert.Equal(t, types.ModeWithAI, got.ExperimentMode)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestUpdateSessionPhase(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess := testSession("s")
	require.NoError(t, m.CreateSession(ctx, sess))

	now := time.Now().UTC()
	sess.CurrentPhase = types.PhaseSharedFraming
	sess.StartedAt = &now
	require.NoError(t, m.UpdateSessionPhase(ctx, sess))

	got, err := m.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseSharedFraming, got.CurrentPhase)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, now, *got.StartedAt, time.Second)
}

func TestListSessionsNewestFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	older := testSession("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := testSession("newer")
	require.NoError(t, m.CreateSession(ctx, older))
	require.NoError(t, m.CreateSession(ctx, newer))

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "newer", sessions[0].Name)
	assert.Equal(t, "older", sessions[1].Name)
}

func TestParticipantLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess := testSession("s")
	require.NoError(t, m.CreateSession(ctx, sess))

	p := &types.Participant{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		UserID:    "bob",
		Role:      types.RoleEndUser,
		JoinedAt:  time.Now().UTC(),
	}
	require.NoError(t, m.AddParticipant(ctx, p))

	active, err := m.GetActiveParticipant(ctx, sess.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, p.ID, active.ID)
	assert.Nil(t, active.LeftAt)

	require.NoError(t, m.MarkParticipantLeft(ctx, sess.ID, "bob"))

	_, err = m.GetActiveParticipant(ctx, sess.ID, "bob")
	assert.ErrorIs(t, err, interfaces.ErrParticipantNotFound)

	// The attendance row survives with left_at set.
	all, err := m.GetParticipants(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].LeftAt)
}

func TestTransitionAuditTrailOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess := testSession("s")
	require.NoError(t, m.CreateSession(ctx, sess))

	base := time.Now().UTC()
	phases := []types.Phase{types.PhaseSetup, types.PhaseSharedFraming, types.PhasePerspectiveExchange}
	for i := 0; i < len(phases)-1; i++ {
		tr := &types.PhaseTransition{
			ID:             uuid.New().String(),
			SessionID:      sess.ID,
			FromPhase:      phases[i],
			ToPhase:        phases[i+1],
			TriggeredBy:    "alice",
			Reason:         "next",
			TransitionedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, m.RecordTransition(ctx, tr))
	}

	transitions, err := m.ListTransitions(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, types.PhaseSharedFraming, transitions[0].ToPhase)
	assert.Equal(t, types.PhasePerspectiveExchange, transitions[1].ToPhase)
}

func TestAppendInteractionAndDelta(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess := testSession("s")
	require.NoError(t, m.CreateSession(ctx, sess))

	rec := &types.InteractionRecord{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Phase:     types.PhaseSharedFraming,
		Kind:      "chat_message",
		ActorID:   "bob",
		ActorRole: types.RoleEndUser,
		Data:      map[string]any{"content": "hello"},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, m.AppendInteraction(ctx, rec))

	delta := &types.ArtifactDelta{
		ID:         uuid.New().String(),
		SessionID:  sess.ID,
		ArtifactID: "moodboard",
		Origin:     "bob",
		Payload:    "AAEC",
		AppendedAt: time.Now().UTC(),
	}
	require.NoError(t, m.AppendDelta(ctx, delta))
}

func TestHealthCheck(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.db")
	m, err := NewManager(path, 30*time.Second, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	// Writes after close fail fast instead of hanging.
	err = m.CreateSession(context.Background(), testSession("late"))
	assert.Error(t, err)
}
