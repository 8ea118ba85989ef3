// ABOUTME: Transient per-user menu state for numbered agent choices
// ABOUTME: Covers choosing an agent to talk to and choosing whose blacklist to view

package selection

// Kind distinguishes what a numbered choice selects.
type Kind int

const (
	// KindAgent is a user picking an agent to request.
	KindAgent Kind = iota
	// KindBlacklistView is an agent picking whose blacklist to display.
	KindBlacklistView
)

// State is an open menu. Options are agent IDs, numbered from 1.
type State struct {
	Kind        Kind
	Options     []string
	DisplayName string
	Channel     string
}

// Option returns the agent behind a 1-based choice.
func (s State) Option(choice int) (string, bool) {
	if choice < 1 || choice > len(s.Options) {
		return "", false
	}
	return s.Options[choice-1], true
}

// Store holds open menus by user. It is not safe for concurrent use.
type Store struct {
	states map[string]State
}

// New creates an empty Store.
func New() *Store {
	return &Store{states: make(map[string]State)}
}

// BeginAgentSelection opens an agent menu for user, replacing any open menu.
func (s *Store) BeginAgentSelection(user, name, channel string, agents []string) {
	s.states[user] = State{
		Kind:        KindAgent,
		Options:     append([]string(nil), agents...),
		DisplayName: name,
		Channel:     channel,
	}
}

// BeginBlacklistView opens a blacklist-owner menu for user.
func (s *Store) BeginBlacklistView(user string, agents []string) {
	s.states[user] = State{
		Kind:    KindBlacklistView,
		Options: append([]string(nil), agents...),
	}
}

// Get returns user's open menu.
func (s *Store) Get(user string) (State, bool) {
	st, ok := s.states[user]
	return st, ok
}

// Has reports whether user has an open menu of the given kind.
func (s *Store) Has(user string, kind Kind) bool {
	st, ok := s.states[user]
	return ok && st.Kind == kind
}

// Cancel closes user's menu and reports whether one was open.
func (s *Store) Cancel(user string) bool {
	if _, ok := s.states[user]; !ok {
		return false
	}
	delete(s.states, user)
	return true
}

// Len returns the number of open menus.
func (s *Store) Len() int {
	return len(s.states)
}
