// Package store persists the hand-off ledger in SQLite.
//
// The ledger is append-only: the broker writes one row per transition
// (request, queue, accept, end, timeout, blacklist, and optionally relayed
// messages) through the broker.EventSink interface. Nothing is read back into
// broker state on startup; rows exist for the admin API and the history
// command.
//
// The database uses modernc.org/sqlite in WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as RFC 3339 strings in UTC, so filters compare them
// lexically. Use NewSQLiteStore(":memory:") for throwaway databases.
package store
