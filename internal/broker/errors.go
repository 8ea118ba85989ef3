// ABOUTME: Sentinel errors carried by broker denials
// ABOUTME: Callers compare with errors.Is; the user-facing text lives in Result.Message

package broker

import "errors"

var (
	ErrBlacklisted    = errors.New("user is blacklisted")
	ErrAlreadyEngaged = errors.New("user already has a hand-off session")
	ErrSelecting      = errors.New("user is choosing an agent")
	ErrQueued         = errors.New("user is already queued")
	ErrNoAgent        = errors.New("no agent available")
	ErrNoSelection    = errors.New("no selection in progress")
	ErrInvalidChoice  = errors.New("choice out of range")
	ErrNotANumber     = errors.New("choice is not a number")
	ErrNotWaiting     = errors.New("user is not waiting for an agent")
	ErrNoConversation = errors.New("no conversation in progress")
	ErrNotAgent       = errors.New("caller is not an agent")
	ErrInvalidState   = errors.New("operation not valid in the current state")
	ErrNotQueued      = errors.New("user is not queued")
	ErrAgentEngaged   = errors.New("agent is already in a conversation")
	ErrNotBlacklisted = errors.New("user is not blacklisted")
	ErrNoRequest      = errors.New("user has no hand-off request")
	ErrMissingUser    = errors.New("target user required")
	ErrInvalidTarget  = errors.New("target cannot be blacklisted")
	ErrPaused         = errors.New("conversation is paused")
	ErrInvariant      = errors.New("broker invariant violated")
)
