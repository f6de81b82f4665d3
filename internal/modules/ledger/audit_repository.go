package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
)

const auditColumns = `audit_id, timestamp, actor_user_id, actor_role, action, resource, reason, before_state, after_state, correlation_id`

// AuditRepository handles audit log database operations.
type AuditRepository struct {
	db  *sql.DB // ledger.db - audit_logs table
	log zerolog.Logger
}

// NewAuditRepository creates a new audit log repository.
func NewAuditRepository(db *sql.DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: log.With().Str("repo", "audit_logs").Logger(),
	}
}

// Create inserts an audit log entry.
func (r *AuditRepository) Create(entry domain.AuditLog) error {
	if entry.AuditID == "" {
		return fmt.Errorf("audit log requires an audit_id")
	}

	query := `
		INSERT INTO audit_logs
		(audit_id, timestamp, actor_user_id, actor_role, action, resource, reason, before_state, after_state, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		entry.AuditID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.ActorUserID,
		entry.ActorRole,
		entry.Action,
		entry.Resource,
		nullString(entry.Reason),
		rawOrNull(entry.Before),
		rawOrNull(entry.After),
		entry.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	r.log.Info().
		Str("actor", entry.ActorUserID).
		Str("action", entry.Action).
		Str("resource", entry.Resource).
		Msg("Audit entry recorded")

	return nil
}

// Between returns audit entries in [start, end) ordered by append.
func (r *AuditRepository) Between(start, end time.Time) ([]domain.AuditLog, error) {
	query := "SELECT " + auditColumns + " FROM audit_logs WHERE timestamp >= ? AND timestamp < ? ORDER BY rowid ASC"

	rows, err := r.db.Query(query, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		var ts string
		var reason, before, after sql.NullString

		err := rows.Scan(&e.AuditID, &ts, &e.ActorUserID, &e.ActorRole, &e.Action, &e.Resource, &reason, &before, &after, &e.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %q: %w", ts, err)
		}

		e.Timestamp = parsed
		e.Reason = reason.String
		if before.Valid {
			e.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			e.After = json.RawMessage(after.String)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func rawOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
