// ABOUTME: Blacklist registry gating which users may request a human agent
// ABOUTME: Holds either one shared set or one set per agent, fixed at construction

package blacklist

import (
	"errors"
	"sort"
)

// ErrAgentRequired is returned by Add in per-agent mode when no agent is given.
var ErrAgentRequired = errors.New("agent id required for per-agent blacklist")

// Registry records blocked users. It is not safe for concurrent use; the
// broker serializes access.
type Registry struct {
	shared   bool
	global   map[string]struct{}
	perAgent map[string]map[string]struct{}
}

// New creates a Registry. When shared is true a single set is consulted for
// every agent.
func New(shared bool) *Registry {
	return &Registry{
		shared:   shared,
		global:   make(map[string]struct{}),
		perAgent: make(map[string]map[string]struct{}),
	}
}

// Shared reports whether the registry uses one global set.
func (r *Registry) Shared() bool {
	return r.shared
}

// IsBlocked reports whether user is blocked. In per-agent mode an empty agent
// means "blocked by any agent".
func (r *Registry) IsBlocked(user, agent string) bool {
	if r.shared {
		_, ok := r.global[user]
		return ok
	}
	if agent != "" {
		_, ok := r.perAgent[agent][user]
		return ok
	}
	for _, set := range r.perAgent {
		if _, ok := set[user]; ok {
			return true
		}
	}
	return false
}

// Add blocks user. In shared mode agent is ignored.
func (r *Registry) Add(user, agent string) error {
	if r.shared {
		r.global[user] = struct{}{}
		return nil
	}
	if agent == "" {
		return ErrAgentRequired
	}
	set, ok := r.perAgent[agent]
	if !ok {
		set = make(map[string]struct{})
		r.perAgent[agent] = set
	}
	set[user] = struct{}{}
	return nil
}

// Remove unblocks user and reports whether the user was present.
func (r *Registry) Remove(user, agent string) bool {
	if r.shared {
		if _, ok := r.global[user]; !ok {
			return false
		}
		delete(r.global, user)
		return true
	}
	set, ok := r.perAgent[agent]
	if !ok {
		return false
	}
	if _, ok := set[user]; !ok {
		return false
	}
	delete(set, user)
	if len(set) == 0 {
		delete(r.perAgent, agent)
	}
	return true
}

// List returns the blocked users for agent, sorted. In per-agent mode an empty
// agent lists the union across all agents.
func (r *Registry) List(agent string) []string {
	var users []string
	switch {
	case r.shared:
		users = keys(r.global)
	case agent != "":
		users = keys(r.perAgent[agent])
	default:
		union := make(map[string]struct{})
		for _, set := range r.perAgent {
			for u := range set {
				union[u] = struct{}{}
			}
		}
		users = keys(union)
	}
	sort.Strings(users)
	return users
}

// Count returns the number of users blocked for agent.
func (r *Registry) Count(agent string) int {
	if r.shared {
		return len(r.global)
	}
	return len(r.perAgent[agent])
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
