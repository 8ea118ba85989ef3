// ABOUTME: Per-agent FIFO waiting lists for users whose chosen agent is busy
// ABOUTME: A user waits in at most one agent's queue at a time

package queue

import (
	"container/list"
	"sort"
	"time"

	"github.com/2389/coven-handoff/internal/clock"
)

// Entry is one waiting user.
type Entry struct {
	AgentID     string
	UserID      string
	DisplayName string
	Channel     string
	EnqueuedAt  time.Time
}

// Store holds every agent's queue. Each queue is a linked list in insertion
// order; index maps a user to its element so removal is O(1). Store is not
// safe for concurrent use.
type Store struct {
	clk    clock.Clock
	queues map[string]*list.List
	index  map[string]*list.Element
}

// New creates an empty Store using clk for enqueue timestamps.
func New(clk clock.Clock) *Store {
	return &Store{
		clk:    clk,
		queues: make(map[string]*list.List),
		index:  make(map[string]*list.Element),
	}
}

// Enqueue appends user to agent's queue. It returns false, leaving every queue
// unchanged, when the user is already waiting in any queue.
func (s *Store) Enqueue(agent, user, name, channel string) bool {
	if _, ok := s.index[user]; ok {
		return false
	}
	q, ok := s.queues[agent]
	if !ok {
		q = list.New()
		s.queues[agent] = q
	}
	s.index[user] = q.PushBack(Entry{
		AgentID:     agent,
		UserID:      user,
		DisplayName: name,
		Channel:     channel,
		EnqueuedAt:  s.clk.Now(),
	})
	return true
}

// PositionOf returns user's 1-based position in agent's queue, or 0.
func (s *Store) PositionOf(agent, user string) int {
	elem, ok := s.index[user]
	if !ok || entryOf(elem).AgentID != agent {
		return 0
	}
	pos := 1
	for e := s.queues[agent].Front(); e != nil && e != elem; e = e.Next() {
		pos++
	}
	return pos
}

// Locate reports which agent user is queued for and at what position.
func (s *Store) Locate(user string) (agent string, position int, ok bool) {
	elem, found := s.index[user]
	if !found {
		return "", 0, false
	}
	agent = entryOf(elem).AgentID
	return agent, s.PositionOf(agent, user), true
}

// Remove drops user from whichever queue holds it.
func (s *Store) Remove(user string) bool {
	elem, ok := s.index[user]
	if !ok {
		return false
	}
	s.unlink(elem)
	return true
}

// Size returns the number of users waiting for agent.
func (s *Store) Size(agent string) int {
	q, ok := s.queues[agent]
	if !ok {
		return 0
	}
	return q.Len()
}

// PopFront removes and returns the longest-waiting user for agent.
func (s *Store) PopFront(agent string) (Entry, bool) {
	q, ok := s.queues[agent]
	if !ok || q.Len() == 0 {
		return Entry{}, false
	}
	front := q.Front()
	entry := entryOf(front)
	s.unlink(front)
	return entry, true
}

// SweepExpired removes and returns every entry that has waited at least
// maxAge, across all agents. A non-positive maxAge sweeps nothing.
func (s *Store) SweepExpired(maxAge time.Duration) []Entry {
	if maxAge <= 0 {
		return nil
	}
	now := s.clk.Now()
	var expired []Entry
	for _, agent := range s.agents() {
		q := s.queues[agent]
		for e := q.Front(); e != nil; {
			next := e.Next()
			entry := entryOf(e)
			if now.Sub(entry.EnqueuedAt) < maxAge {
				// Later entries were enqueued later.
				break
			}
			expired = append(expired, entry)
			s.unlink(e)
			e = next
		}
	}
	return expired
}

// NextExpiry returns when the oldest queued entry reaches maxAge.
func (s *Store) NextExpiry(maxAge time.Duration) (time.Time, bool) {
	if maxAge <= 0 {
		return time.Time{}, false
	}
	var earliest time.Time
	found := false
	for _, q := range s.queues {
		front := q.Front()
		if front == nil {
			continue
		}
		at := entryOf(front).EnqueuedAt.Add(maxAge)
		if !found || at.Before(earliest) {
			earliest, found = at, true
		}
	}
	return earliest, found
}

// Snapshot returns a copy of every non-empty queue in order.
func (s *Store) Snapshot() map[string][]Entry {
	out := make(map[string][]Entry, len(s.queues))
	for agent, q := range s.queues {
		if q.Len() == 0 {
			continue
		}
		entries := make([]Entry, 0, q.Len())
		for e := q.Front(); e != nil; e = e.Next() {
			entries = append(entries, entryOf(e))
		}
		out[agent] = entries
	}
	return out
}

// Len returns the total number of queued users.
func (s *Store) Len() int {
	return len(s.index)
}

func (s *Store) unlink(elem *list.Element) {
	entry := entryOf(elem)
	q := s.queues[entry.AgentID]
	q.Remove(elem)
	delete(s.index, entry.UserID)
	if q.Len() == 0 {
		delete(s.queues, entry.AgentID)
	}
}

// agents returns queue owners in a stable order so sweeps are deterministic.
func (s *Store) agents() []string {
	out := make([]string, 0, len(s.queues))
	for agent := range s.queues {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

func entryOf(e *list.Element) Entry {
	entry, _ := e.Value.(Entry)
	return entry
}
