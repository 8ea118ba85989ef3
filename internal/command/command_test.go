// ABOUTME: Tests for command parsing, reply references, and dispatch
// ABOUTME: Dispatch tests drive a real broker with a recording notifier

package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-handoff/internal/broker"
)

func TestParser_Parse(t *testing.T) {
	p := NewParser("")

	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"/handoff", Command{Name: Request}, true},
		{"  /HUMAN  ", Command{Name: Request}, true},
		{"/accept @u1:example.org", Command{Name: Accept, Arg: "@u1:example.org"}, true},
		{"/block @u1:example.org spam", Command{Name: Block, Arg: "@u1:example.org"}, true},
		{"/bot", Command{Name: Cancel}, true},
		{"/queue", Command{Name: QueueStatus}, true},
		{"/", Command{}, false},
		{"/dance", Command{}, false},
		{"handoff", Command{}, false},
		{"3", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := p.Parse(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParser_CustomPrefix(t *testing.T) {
	p := NewParser("!")
	assert.Equal(t, "!", p.Prefix())

	got, ok := p.Parse("!end")
	require.True(t, ok)
	assert.Equal(t, End, got.Name)

	_, ok = p.Parse("/end")
	assert.False(t, ok)
}

func TestExtractReferencedUser(t *testing.T) {
	user, ok := ExtractReferencedUser("Carol (@carol:example.org) is requesting a human agent.")
	require.True(t, ok)
	assert.Equal(t, "@carol:example.org", user)

	user, ok = ExtractReferencedUser("Ended the conversation with A (a).\nNext user: B (b). Reply accept to take over.")
	require.True(t, ok)
	assert.Equal(t, "b", user)

	_, ok = ExtractReferencedUser("no reference ( here )")
	assert.False(t, ok)
}

type notes struct {
	mu   sync.Mutex
	sent []broker.Notification
}

func (n *notes) Notify(_ context.Context, note broker.Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return true
}

func (n *notes) lastTo(recipient string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Recipient == recipient {
			return n.sent[i].Text
		}
	}
	return ""
}

func newDispatcher(t *testing.T) (*Dispatcher, *notes) {
	t.Helper()
	n := &notes{}
	b, err := broker.New(broker.Config{
		Agents:          []broker.Agent{{ID: "@alice:example.org", Name: "Alice"}},
		SharedBlacklist: true,
	}, broker.Options{Notifier: n})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return NewDispatcher(b, NewParser("/"), nil), n
}

func TestDispatcher_HandOffFlow(t *testing.T) {
	ctx := context.Background()
	d, n := newDispatcher(t)

	reply, handled := d.Handle(ctx, Message{Sender: "@u1:example.org", DisplayName: "Uma", Channel: "!support:example.org", Text: "where is my order"})
	assert.False(t, handled)
	assert.Empty(t, reply)

	reply, handled = d.Handle(ctx, Message{Sender: "@u1:example.org", DisplayName: "Uma", Channel: "!support:example.org", Text: "/handoff"})
	require.True(t, handled)
	assert.Contains(t, reply, "sent to Alice")

	notice := n.lastTo("@alice:example.org")
	require.Contains(t, notice, "Uma (@u1:example.org)")

	// Accept by replying to the notice.
	reply, handled = d.Handle(ctx, Message{Sender: "@alice:example.org", Channel: broker.DirectChannel, Text: "/accept", Quoted: notice})
	require.True(t, handled)
	assert.Contains(t, reply, "connected to Uma")

	_, handled = d.Handle(ctx, Message{Sender: "@u1:example.org", Channel: "!support:example.org", Text: "hello"})
	assert.True(t, handled)
	assert.Equal(t, "hello", n.lastTo("@alice:example.org"))

	reply, handled = d.Handle(ctx, Message{Sender: "@alice:example.org", Channel: broker.DirectChannel, Text: "/end"})
	require.True(t, handled)
	assert.Contains(t, reply, "queue is empty")

	reply, _ = d.Handle(ctx, Message{Sender: "@u1:example.org", Text: "/bot"})
	assert.Contains(t, reply, "no pending")
}

func TestDispatcher_AgentCommandsRequireAgent(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	reply, handled := d.Handle(ctx, Message{Sender: "@u1:example.org", Text: "/block @u2:example.org"})
	require.True(t, handled)
	assert.Equal(t, "Only agents can do that.", reply)
}

func TestDispatcher_BlockByArgument(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	reply, _ := d.Handle(ctx, Message{Sender: "@alice:example.org", Text: "/block @u2:example.org"})
	assert.Contains(t, reply, "@u2:example.org has been blacklisted")

	reply, _ = d.Handle(ctx, Message{Sender: "@u2:example.org", Text: "/handoff"})
	assert.Contains(t, reply, "not allowed")

	reply, _ = d.Handle(ctx, Message{Sender: "@alice:example.org", Text: "/blacklist"})
	assert.Contains(t, reply, "1. @u2:example.org")
}

func TestDispatcher_Help(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	reply, _ := d.Handle(ctx, Message{Sender: "@u1:example.org", Text: "/help"})
	assert.Contains(t, reply, "/handoff")
	assert.NotContains(t, reply, "/accept")

	reply, _ = d.Handle(ctx, Message{Sender: "@alice:example.org", Text: "/help"})
	assert.Contains(t, reply, "/accept")
}
