// ABOUTME: Tests for the hand-off event ledger
// ABOUTME: Covers recording, filtering, ordering, and per-type counts

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-handoff/internal/broker"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "handoff.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func seed(t *testing.T, s *SQLiteStore, base time.Time) {
	t.Helper()
	ctx := context.Background()
	events := []broker.Event{
		{Type: broker.EventRequested, UserID: "u1", Channel: "!room", At: base},
		{Type: broker.EventAccepted, UserID: "u1", AgentID: "alice", Channel: "!room", At: base.Add(time.Minute)},
		{Type: broker.EventQueued, UserID: "u2", AgentID: "alice", Detail: "position 1", At: base.Add(2 * time.Minute)},
		{Type: broker.EventEnded, UserID: "u1", AgentID: "alice", Channel: "!room", At: base.Add(3 * time.Minute)},
		{Type: broker.EventPromoted, UserID: "u2", AgentID: "alice", At: base.Add(3 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, s.RecordEvent(ctx, e))
	}
}

func TestLedger_RecordAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed(t, s, base)

	records, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, records, 5)

	// Newest first; same-second ties keep insertion order reversed.
	assert.Equal(t, broker.EventPromoted, records[0].Type)
	assert.Equal(t, broker.EventEnded, records[1].Type)
	assert.Equal(t, broker.EventRequested, records[4].Type)
	assert.Equal(t, base, records[4].Timestamp)
	assert.NotEmpty(t, records[4].ID)
	assert.Equal(t, "position 1", records[2].Detail)
}

func TestLedger_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed(t, s, base)

	user := "u2"
	records, err := s.ListEvents(ctx, EventFilter{UserID: &user})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	agent := "alice"
	typ := broker.EventEnded
	records, err = s.ListEvents(ctx, EventFilter{AgentID: &agent, Type: &typ})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u1", records[0].UserID)

	since := base.Add(90 * time.Second)
	until := base.Add(150 * time.Second)
	records, err = s.ListEvents(ctx, EventFilter{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, broker.EventQueued, records[0].Type)

	records, err = s.ListEvents(ctx, EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLedger_EmptyListIsNotNil(t *testing.T) {
	s := setupTestStore(t)
	records, err := s.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestLedger_CountByType(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed(t, s, base)

	counts, err := s.CountByType(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[broker.EventType]int{
		broker.EventAccepted: 1,
		broker.EventQueued:   1,
		broker.EventEnded:    1,
		broker.EventPromoted: 1,
	}, counts)
}

func TestLedger_InMemoryAndPing(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.RecordEvent(ctx, broker.Event{Type: broker.EventRequested, UserID: "u1"}))

	records, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestLedger_ReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordEvent(ctx, broker.Event{Type: broker.EventRequested, UserID: "u1", At: time.Now()}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	records, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
