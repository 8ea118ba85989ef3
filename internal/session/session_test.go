// ABOUTME: Tests for the session store
// ABOUTME: Covers creation, status transitions, and the agent reverse index

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func waiting(user string, at time.Time) Session {
	return Session{UserID: user, Status: StatusWaiting, Channel: "direct", CreatedAt: at}
}

func TestStore_CreateGetDelete(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(waiting("u1", epoch)))
	assert.ErrorIs(t, s.Create(waiting("u1", epoch)), ErrExists)

	got, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.True(t, s.Has("u1"))

	got.Status = StatusConnected
	stored, _ := s.Get("u1")
	assert.Equal(t, StatusWaiting, stored.Status, "Get returns a copy")

	s.Delete("u1")
	s.Delete("u1")
	assert.False(t, s.Has("u1"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConnectAndBusy(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(waiting("u1", epoch)))
	require.NoError(t, s.Create(waiting("u2", epoch)))

	assert.False(t, s.IsAgentBusy("agent"))
	require.NoError(t, s.Connect("u1", "agent"))

	assert.True(t, s.IsAgentBusy("agent"))
	user, ok := s.UserOfAgent("agent")
	require.True(t, ok)
	assert.Equal(t, "u1", user)

	assert.ErrorIs(t, s.Connect("u2", "agent"), ErrAgentEngaged)
	got, _ := s.Get("u2")
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Empty(t, got.AgentID)

	assert.ErrorIs(t, s.Connect("nobody", "agent"), ErrNotFound)
}

func TestStore_PauseKeepsAgentEngaged(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(waiting("u1", epoch)))
	require.NoError(t, s.Connect("u1", "agent"))

	require.NoError(t, s.SetStatus("u1", StatusPaused))
	assert.False(t, s.IsAgentBusy("agent"), "busy means Connected")
	user, ok := s.EngagedUserOfAgent("agent")
	require.True(t, ok)
	assert.Equal(t, "u1", user)

	require.NoError(t, s.SetStatus("u1", StatusConnected))
	assert.True(t, s.IsAgentBusy("agent"))

	s.Delete("u1")
	_, ok = s.EngagedUserOfAgent("agent")
	assert.False(t, ok)
}

func TestStore_SetAgentThenStatus(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(waiting("u1", epoch)))

	assert.ErrorIs(t, s.SetStatus("u1", StatusConnected), ErrNoAgent)

	require.NoError(t, s.SetAgent("u1", "agent"))
	assert.False(t, s.IsAgentBusy("agent"), "assignment alone does not engage")
	require.NoError(t, s.SetStatus("u1", StatusConnected))
	assert.True(t, s.IsAgentBusy("agent"))

	require.NoError(t, s.SetStatus("u1", StatusWaiting))
	assert.False(t, s.IsAgentBusy("agent"))

	assert.ErrorIs(t, s.SetStatus("ghost", StatusWaiting), ErrNotFound)
	assert.ErrorIs(t, s.SetAgent("ghost", "agent"), ErrNotFound)
}

func TestStore_Waiting(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(waiting("late", epoch.Add(time.Minute))))
	require.NoError(t, s.Create(waiting("early", epoch)))
	require.NoError(t, s.Create(Session{UserID: "busy", AgentID: "agent", Status: StatusConnected, CreatedAt: epoch}))

	w := s.Waiting()
	require.Len(t, w, 2)
	assert.Equal(t, "early", w[0].UserID)
	assert.Equal(t, "late", w[1].UserID)
	assert.Len(t, s.All(), 3)
	assert.True(t, s.IsAgentBusy("agent"))
}

func TestStore_WaitingTiesKeepCreationOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(waiting("zed", epoch)))
	require.NoError(t, s.Create(waiting("amy", epoch)))

	w := s.Waiting()
	require.Len(t, w, 2)
	assert.Equal(t, "zed", w[0].UserID)
	assert.Equal(t, "amy", w[1].UserID)

	s.Delete("zed")
	require.NoError(t, s.Create(waiting("zed", epoch)))
	w = s.Waiting()
	assert.Equal(t, "amy", w[0].UserID)
}
