// ABOUTME: Session store mapping users to their hand-off conversation state
// ABOUTME: Keeps an agent-to-user reverse index for engaged conversations

package session

import (
	"errors"
	"sort"
	"time"
)

// Status is the lifecycle stage of a session.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusConnected Status = "connected"
	StatusPaused    Status = "paused"
)

// Engaged reports whether the status holds an agent.
func (s Status) Engaged() bool {
	return s == StatusConnected || s == StatusPaused
}

var (
	// ErrExists is returned when creating a second session for a user.
	ErrExists = errors.New("session already exists")
	// ErrNotFound is returned when the user has no session.
	ErrNotFound = errors.New("session not found")
	// ErrAgentEngaged is returned when an agent already holds another engaged session.
	ErrAgentEngaged = errors.New("agent already engaged")
	// ErrNoAgent is returned when a session would be engaged without an agent.
	ErrNoAgent = errors.New("engaged session requires an agent")
)

// Session is one user's relationship with the broker.
type Session struct {
	UserID           string
	DisplayName      string
	AgentID          string
	Status           Status
	Channel          string
	PreferredAgentID string
	CreatedAt        time.Time
}

// Store holds all sessions. It is not safe for concurrent use.
type Store struct {
	sessions map[string]*Session
	byAgent  map[string]string // agentID -> userID, engaged sessions only
	order    map[string]uint64 // userID -> creation sequence, breaks CreatedAt ties
	next     uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		byAgent:  make(map[string]string),
		order:    make(map[string]uint64),
	}
}

// Create adds a session. Engaged sessions must name an agent that is free.
func (s *Store) Create(sess Session) error {
	if _, ok := s.sessions[sess.UserID]; ok {
		return ErrExists
	}
	if sess.Status.Engaged() {
		if err := s.claim(sess.AgentID, sess.UserID); err != nil {
			return err
		}
	}
	cp := sess
	s.sessions[sess.UserID] = &cp
	s.next++
	s.order[sess.UserID] = s.next
	return nil
}

// Get returns a copy of user's session.
func (s *Store) Get(user string) (Session, bool) {
	sess, ok := s.sessions[user]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Has reports whether user has a session.
func (s *Store) Has(user string) bool {
	_, ok := s.sessions[user]
	return ok
}

// Delete removes user's session if present.
func (s *Store) Delete(user string) {
	sess, ok := s.sessions[user]
	if !ok {
		return
	}
	s.release(sess)
	delete(s.sessions, user)
	delete(s.order, user)
}

// IsAgentBusy reports whether agent holds a Connected session.
func (s *Store) IsAgentBusy(agent string) bool {
	_, ok := s.UserOfAgent(agent)
	return ok
}

// UserOfAgent returns the user agent is Connected to.
func (s *Store) UserOfAgent(agent string) (string, bool) {
	user, ok := s.EngagedUserOfAgent(agent)
	if !ok || s.sessions[user].Status != StatusConnected {
		return "", false
	}
	return user, true
}

// EngagedUserOfAgent returns the user agent is Connected to or has paused.
func (s *Store) EngagedUserOfAgent(agent string) (string, bool) {
	if agent == "" {
		return "", false
	}
	user, ok := s.byAgent[agent]
	return user, ok
}

// SetStatus changes a session's status, keeping the agent index in step.
func (s *Store) SetStatus(user string, status Status) error {
	sess, ok := s.sessions[user]
	if !ok {
		return ErrNotFound
	}
	if status.Engaged() && !sess.Status.Engaged() {
		if err := s.claim(sess.AgentID, user); err != nil {
			return err
		}
	}
	if !status.Engaged() && sess.Status.Engaged() {
		s.release(sess)
	}
	sess.Status = status
	return nil
}

// SetAgent assigns agent to user's session.
func (s *Store) SetAgent(user, agent string) error {
	sess, ok := s.sessions[user]
	if !ok {
		return ErrNotFound
	}
	if sess.Status.Engaged() {
		if err := s.claim(agent, user); err != nil {
			return err
		}
		if sess.AgentID != agent {
			delete(s.byAgent, sess.AgentID)
		}
	}
	sess.AgentID = agent
	return nil
}

// Connect assigns agent and marks the session Connected in one step.
func (s *Store) Connect(user, agent string) error {
	sess, ok := s.sessions[user]
	if !ok {
		return ErrNotFound
	}
	if err := s.claim(agent, user); err != nil {
		return err
	}
	if sess.Status.Engaged() && sess.AgentID != agent {
		delete(s.byAgent, sess.AgentID)
	}
	sess.AgentID = agent
	sess.Status = StatusConnected
	return nil
}

// Waiting returns every Waiting session, oldest first.
func (s *Store) Waiting() []Session {
	var out []Session
	for _, sess := range s.sessions {
		if sess.Status == StatusWaiting {
			out = append(out, *sess)
		}
	}
	s.sortByCreated(out)
	return out
}

// All returns every session, oldest first.
func (s *Store) All() []Session {
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.sortByCreated(out)
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	return len(s.sessions)
}

func (s *Store) claim(agent, user string) error {
	if agent == "" {
		return ErrNoAgent
	}
	if holder, ok := s.byAgent[agent]; ok && holder != user {
		return ErrAgentEngaged
	}
	s.byAgent[agent] = user
	return nil
}

func (s *Store) release(sess *Session) {
	if holder, ok := s.byAgent[sess.AgentID]; ok && holder == sess.UserID {
		delete(s.byAgent, sess.AgentID)
	}
}

func (s *Store) sortByCreated(out []Session) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.order[out[i].UserID] < s.order[out[j].UserID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
