// ABOUTME: Conversation duration budget tracking for connected hand-offs
// ABOUTME: Answers remaining-time, one-shot warning, and expiry questions per user

package timer

import (
	"math"
	"sort"
	"time"

	"github.com/2389/coven-handoff/internal/clock"
)

// Unlimited is returned by RemainingOf when no budget applies.
const Unlimited = time.Duration(math.MaxInt64)

type entry struct {
	startedAt time.Time
	warned    bool
}

// Store tracks one conversation timer per user. It is not safe for concurrent use.
type Store struct {
	clk        clock.Clock
	timeout    time.Duration
	warnWindow time.Duration
	timers     map[string]*entry
}

// New creates a Store. A timeout <= 0 disables conversation timers; a
// warnWindow <= 0 disables warnings.
func New(clk clock.Clock, timeout, warnWindow time.Duration) *Store {
	return &Store{
		clk:        clk,
		timeout:    timeout,
		warnWindow: warnWindow,
		timers:     make(map[string]*entry),
	}
}

// Timeout returns the configured conversation budget.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// Start begins timing user's conversation. It is a no-op without a timeout.
func (s *Store) Start(user string) {
	if s.timeout <= 0 {
		return
	}
	s.timers[user] = &entry{startedAt: s.clk.Now()}
}

// Stop discards user's timer.
func (s *Store) Stop(user string) {
	delete(s.timers, user)
}

// Has reports whether user has a running timer.
func (s *Store) Has(user string) bool {
	_, ok := s.timers[user]
	return ok
}

// ElapsedOf returns how long user's conversation has run, or 0 without a timer.
func (s *Store) ElapsedOf(user string) time.Duration {
	e, ok := s.timers[user]
	if !ok {
		return 0
	}
	return s.clk.Now().Sub(e.startedAt)
}

// RemainingOf returns the time left in user's budget, or Unlimited.
func (s *Store) RemainingOf(user string) time.Duration {
	if s.timeout <= 0 {
		return Unlimited
	}
	if _, ok := s.timers[user]; !ok {
		return Unlimited
	}
	return s.timeout - s.ElapsedOf(user)
}

// IsExpired reports whether user's budget is spent. It stays true until Stop.
func (s *Store) IsExpired(user string) bool {
	if s.timeout <= 0 {
		return false
	}
	if _, ok := s.timers[user]; !ok {
		return false
	}
	return s.ElapsedOf(user) >= s.timeout
}

// ShouldWarn reports whether user is inside the warning window and has not
// been warned yet.
func (s *Store) ShouldWarn(user string) bool {
	if s.warnWindow <= 0 {
		return false
	}
	e, ok := s.timers[user]
	if !ok || e.warned {
		return false
	}
	remaining := s.RemainingOf(user)
	return remaining > 0 && remaining <= s.warnWindow
}

// MarkWarned records that user was warned. The flag never resets.
func (s *Store) MarkWarned(user string) {
	if e, ok := s.timers[user]; ok {
		e.warned = true
	}
}

// ExpiredUsers returns every user whose budget is spent, sorted.
func (s *Store) ExpiredUsers() []string {
	return s.collect(s.IsExpired)
}

// UsersNeedingWarning returns every user ShouldWarn is true for, sorted.
func (s *Store) UsersNeedingWarning() []string {
	return s.collect(s.ShouldWarn)
}

// NextDeadline returns the earliest upcoming warning point or expiry.
func (s *Store) NextDeadline() (time.Time, bool) {
	if s.timeout <= 0 {
		return time.Time{}, false
	}
	var next time.Time
	found := false
	for _, e := range s.timers {
		at := e.startedAt.Add(s.timeout)
		if s.warnWindow > 0 && !e.warned {
			lead := s.timeout - s.warnWindow
			if lead < 0 {
				lead = 0
			}
			at = e.startedAt.Add(lead)
		}
		if !found || at.Before(next) {
			next, found = at, true
		}
	}
	return next, found
}

func (s *Store) collect(pred func(string) bool) []string {
	var users []string
	for user := range s.timers {
		if pred(user) {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users
}
