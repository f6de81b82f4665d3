// Package ledger persists the engine's append-only event trail.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
)

// eventColumns is the list of columns for the ledger_events table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match scanEvent() expectations.
const eventColumns = `event_id, correlation_id, timestamp, severity, event_type, component, symbol, brain_id, reason_code, payload`

// TailFilters narrows Tail and Between queries. Empty fields match everything.
type TailFilters struct {
	EventType domain.EventType
	Severity  domain.Severity
	Symbol    string
	BrainID   string
}

// EventRepository handles ledger event database operations.
type EventRepository struct {
	db  *sql.DB // ledger.db - ledger_events table
	log zerolog.Logger
}

// NewEventRepository creates a new ledger event repository.
func NewEventRepository(db *sql.DB, log zerolog.Logger) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log.With().Str("repo", "ledger_events").Logger(),
	}
}

// Append inserts a ledger event. Returns true iff the event was newly
// inserted; a duplicate event_id is a no-op and returns false.
func (r *EventRepository) Append(ev domain.LedgerEvent) (bool, error) {
	if ev.EventID == "" {
		return false, fmt.Errorf("ledger event requires an event_id")
	}
	if ev.CorrelationID == "" {
		return false, fmt.Errorf("ledger event requires a correlation_id")
	}

	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT OR IGNORE INTO ledger_events
		(event_id, correlation_id, timestamp, severity, event_type, component, symbol, brain_id, reason_code, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Exec(query,
		ev.EventID,
		ev.CorrelationID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		string(ev.Severity),
		string(ev.EventType),
		string(ev.Component),
		nullString(ev.Symbol),
		nullString(ev.BrainID),
		nullString(ev.ReasonCode),
		string(payload),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append ledger event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read append result: %w", err)
	}

	if affected == 0 {
		r.log.Debug().
			Str("event_id", ev.EventID).
			Msg("Duplicate event_id, append skipped")
		return false, nil
	}

	return true, nil
}

// AppendBatch inserts events one by one and returns the number newly inserted.
// Duplicates inside the batch count as skips, not errors.
func (r *EventRepository) AppendBatch(events []domain.LedgerEvent) (int, error) {
	inserted := 0
	for _, ev := range events {
		ok, err := r.Append(ev)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// Tail returns the most recent n events in reverse append order.
func (r *EventRepository) Tail(n int, f TailFilters) ([]domain.LedgerEvent, error) {
	if n <= 0 {
		n = 50
	}

	where, args := buildFilterClause(f)
	query := "SELECT " + eventColumns + " FROM ledger_events" + where + " ORDER BY rowid DESC LIMIT ?"
	args = append(args, n)

	return r.queryEvents(query, args...)
}

// ByCorrelation returns all events of one correlation in append order.
func (r *EventRepository) ByCorrelation(correlationID string) ([]domain.LedgerEvent, error) {
	query := "SELECT " + eventColumns + " FROM ledger_events WHERE correlation_id = ? ORDER BY rowid ASC"
	return r.queryEvents(query, correlationID)
}

// Between returns events in [start, end) with optional filters and paging.
// Used by replay.
func (r *EventRepository) Between(start, end time.Time, f TailFilters, limit, offset int) ([]domain.LedgerEvent, error) {
	if limit <= 0 {
		limit = 1000
	}

	where, args := buildFilterClause(f)
	if where == "" {
		where = " WHERE timestamp >= ? AND timestamp < ?"
	} else {
		where += " AND timestamp >= ? AND timestamp < ?"
	}
	args = append(args, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))

	query := "SELECT " + eventColumns + " FROM ledger_events" + where + " ORDER BY rowid ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return r.queryEvents(query, args...)
}

// CountByTypeBetween counts events per event_type in [start, end).
// Used by the replay rollup.
func (r *EventRepository) CountByTypeBetween(start, end time.Time) (map[domain.EventType]int, error) {
	query := `
		SELECT event_type, COUNT(*)
		FROM ledger_events
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY event_type
	`

	rows, err := r.db.Query(query, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger events: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[domain.EventType(eventType)] = count
	}

	return counts, rows.Err()
}

func buildFilterClause(f TailFilters) (string, []any) {
	var conds []string
	var args []any

	if f.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.BrainID != "" {
		conds = append(conds, "brain_id = ?")
		args = append(args, f.BrainID)
	}

	if len(conds) == 0 {
		return "", nil
	}

	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func (r *EventRepository) queryEvents(query string, args ...any) ([]domain.LedgerEvent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer rows.Close()

	var events []domain.LedgerEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (domain.LedgerEvent, error) {
	var ev domain.LedgerEvent
	var ts string
	var severity, eventType, component string
	var symbol, brainID, reasonCode sql.NullString
	var payload string

	err := rows.Scan(&ev.EventID, &ev.CorrelationID, &ts, &severity, &eventType, &component, &symbol, &brainID, &reasonCode, &payload)
	if err != nil {
		return ev, fmt.Errorf("failed to scan ledger event: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ev, fmt.Errorf("failed to parse ledger event timestamp %q: %w", ts, err)
	}

	ev.Timestamp = parsed
	ev.Severity = domain.Severity(severity)
	ev.EventType = domain.EventType(eventType)
	ev.Component = domain.Component(component)
	ev.Symbol = symbol.String
	ev.BrainID = brainID.String
	ev.ReasonCode = reasonCode.String
	ev.Payload = json.RawMessage(payload)

	return ev, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
