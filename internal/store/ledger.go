// ABOUTME: Append-only ledger of hand-off transitions
// ABOUTME: Implements broker.EventSink and filtered, newest-first listing

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-handoff/internal/broker"
)

var _ broker.EventSink = (*SQLiteStore)(nil)

// EventRecord is one stored transition.
type EventRecord struct {
	ID        string           `json:"id"`
	Type      broker.EventType `json:"type"`
	UserID    string           `json:"user_id"`
	AgentID   string           `json:"agent_id,omitempty"`
	Channel   string           `json:"channel,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventFilter narrows ListEvents. Nil fields match everything.
type EventFilter struct {
	Since   *time.Time
	Until   *time.Time
	UserID  *string
	AgentID *string
	Type    *broker.EventType
	Limit   int // default 100, max 1000
}

// RecordEvent appends a broker transition.
func (s *SQLiteStore) RecordEvent(ctx context.Context, e broker.Event) error {
	rec := EventRecord{
		ID:        uuid.New().String(),
		Type:      e.Type,
		UserID:    e.UserID,
		AgentID:   e.AgentID,
		Channel:   e.Channel,
		Detail:    e.Detail,
		Timestamp: e.At,
	}
	return s.AppendEvent(ctx, &rec)
}

// AppendEvent stores rec, filling in ID and Timestamp when unset.
func (s *SQLiteStore) AppendEvent(ctx context.Context, rec *EventRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var detail *string
	if rec.Detail != "" {
		detail = &rec.Detail
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handoff_events (event_id, type, user_id, agent_id, channel, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		string(rec.Type),
		rec.UserID,
		rec.AgentID,
		rec.Channel,
		detail,
		rec.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("recorded event", "id", rec.ID, "type", rec.Type, "user", rec.UserID, "agent", rec.AgentID)
	return nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

const listEventsQuery = `
	SELECT event_id, type, user_id, agent_id, channel, detail, ts
	FROM handoff_events
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR user_id = ?)
	  AND (? IS NULL OR agent_id = ?)
	  AND (? IS NULL OR type = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListEvents returns matching events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]EventRecord, error) {
	since, until := formatTime(f.Since), formatTime(f.Until)
	var typ *string
	if f.Type != nil {
		t := string(*f.Type)
		typ = &t
	}

	rows, err := s.db.QueryContext(ctx, listEventsQuery,
		since, since,
		until, until,
		f.UserID, f.UserID,
		f.AgentID, f.AgentID,
		typ, typ,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		var typStr, tsStr string
		var detail *string
		if err := rows.Scan(&rec.ID, &typStr, &rec.UserID, &rec.AgentID, &rec.Channel, &detail, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		rec.Type = broker.EventType(typStr)
		if detail != nil {
			rec.Detail = *detail
		}
		rec.Timestamp, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return records, nil
}

// CountByType tallies events per type since the given time.
func (s *SQLiteStore) CountByType(ctx context.Context, since time.Time) (map[broker.EventType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM handoff_events WHERE ts >= ? GROUP BY type`,
		since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[broker.EventType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[broker.EventType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}
