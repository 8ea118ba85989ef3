// ABOUTME: Read-only view of broker state for the admin API and CLI
// ABOUTME: Snapshots are copies; mutating them never affects the broker

package broker

import (
	"time"

	"github.com/2389/coven-handoff/internal/session"
	"github.com/2389/coven-handoff/internal/timer"
)

// SessionView is one session in a snapshot.
type SessionView struct {
	UserID           string         `json:"user_id"`
	DisplayName      string         `json:"display_name,omitempty"`
	AgentID          string         `json:"agent_id,omitempty"`
	Status           session.Status `json:"status"`
	Channel          string         `json:"channel"`
	PreferredAgentID string         `json:"preferred_agent_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	RemainingSeconds *int64         `json:"remaining_seconds,omitempty"`
}

// QueueEntryView is one queued user in a snapshot.
type QueueEntryView struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// AgentView is one agent in a snapshot.
type AgentView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	EngagedWith string           `json:"engaged_with,omitempty"`
	Queue       []QueueEntryView `json:"queue"`
	Blacklisted int              `json:"blacklisted"`
}

// Snapshot is a point-in-time copy of broker state.
type Snapshot struct {
	TakenAt   time.Time     `json:"taken_at"`
	Agents    []AgentView   `json:"agents"`
	Sessions  []SessionView `json:"sessions"`
	Selecting int           `json:"selecting"`
	Shared    bool          `json:"shared_blacklist"`
	Blocked   []string      `json:"blacklist,omitempty"`
}

// Snapshot copies the current state.
func (b *Broker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		TakenAt:   b.now(),
		Selecting: b.selections.Len(),
		Shared:    b.blacklist.Shared(),
	}
	if snap.Shared {
		snap.Blocked = b.blacklist.List("")
	}

	queues := b.queues.Snapshot()
	for _, id := range b.order {
		av := AgentView{
			ID:          id,
			Name:        b.AgentName(id),
			Queue:       []QueueEntryView{},
			Blacklisted: b.blacklist.Count(id),
		}
		if user, engaged := b.sessions.EngagedUserOfAgent(id); engaged {
			av.EngagedWith = user
		}
		for _, e := range queues[id] {
			av.Queue = append(av.Queue, QueueEntryView{UserID: e.UserID, DisplayName: e.DisplayName, EnqueuedAt: e.EnqueuedAt})
		}
		snap.Agents = append(snap.Agents, av)
	}

	for _, s := range b.sessions.All() {
		sv := SessionView{
			UserID:           s.UserID,
			DisplayName:      s.DisplayName,
			AgentID:          s.AgentID,
			Status:           s.Status,
			Channel:          s.Channel,
			PreferredAgentID: s.PreferredAgentID,
			CreatedAt:        s.CreatedAt,
		}
		if b.timers.Has(s.UserID) {
			if rem := b.timers.RemainingOf(s.UserID); rem != timer.Unlimited {
				secs := int64(rem / time.Second)
				sv.RemainingSeconds = &secs
			}
		}
		snap.Sessions = append(snap.Sessions, sv)
	}
	return snap
}
