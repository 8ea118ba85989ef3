// Package matrix connects the hand-off broker to a Matrix account.
//
// # Overview
//
// The Bridge syncs with the homeserver and turns text messages into
// command.Message values for the dispatcher. The Notifier implements
// broker.Notifier: notifications addressed to a room go there, and direct
// notifications go to a one-to-one room with the recipient that is created
// on first use and remembered afterwards.
//
// # Message handling
//
//   - The bridge's own messages, edits, and non-text messages are ignored
//   - Event IDs are deduplicated for ten minutes
//   - Events older than the bridge's start are skipped
//   - Users are only heard in allowed rooms; agents are heard anywhere
//   - Agent text outside a direct room is only accepted as a command
//   - A reply's quoted text comes from the replied-to event, or from the
//     reply fallback when the event cannot be fetched
//
// # Encryption
//
// SetupEncryption installs a mautrix cryptohelper on the client. Keys are
// kept in a SQLite database under the data directory, one per account.
package matrix
