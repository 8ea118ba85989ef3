// ABOUTME: Tests for selection menu state
// ABOUTME: Covers begin, lookup, cancel, and blacklist-view choices

package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AgentSelection(t *testing.T) {
	s := New()
	agents := []string{"agent-a", "agent-b"}
	s.BeginAgentSelection("u1", "Una", "room", agents)
	agents[0] = "mutated"

	st, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, KindAgent, st.Kind)
	assert.Equal(t, "Una", st.DisplayName)
	assert.True(t, s.Has("u1", KindAgent))
	assert.False(t, s.Has("u1", KindBlacklistView))

	got, ok := st.Option(1)
	assert.True(t, ok)
	assert.Equal(t, "agent-a", got, "options are copied")

	_, ok = st.Option(0)
	assert.False(t, ok)
	_, ok = st.Option(3)
	assert.False(t, ok)

	assert.True(t, s.Cancel("u1"))
	assert.False(t, s.Cancel("u1"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_BlacklistViewSupersedes(t *testing.T) {
	s := New()
	s.BeginAgentSelection("agent-a", "", "", []string{"x"})
	s.BeginBlacklistView("agent-a", []string{"agent-a", "agent-b"})

	st, ok := s.Get("agent-a")
	require.True(t, ok)
	assert.Equal(t, KindBlacklistView, st.Kind)
	assert.Len(t, st.Options, 2)
	assert.Equal(t, 1, s.Len())
}
