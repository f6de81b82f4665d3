package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
)

// ReplayDayRepository handles replay_days database operations.
type ReplayDayRepository struct {
	db  *sql.DB // ledger.db - replay_days table
	log zerolog.Logger
}

// NewReplayDayRepository creates a new replay day repository.
func NewReplayDayRepository(db *sql.DB, log zerolog.Logger) *ReplayDayRepository {
	return &ReplayDayRepository{
		db:  db,
		log: log.With().Str("repo", "replay_days").Logger(),
	}
}

// Upsert inserts or replaces the replay record for a date.
func (r *ReplayDayRepository) Upsert(day domain.ReplayDay) error {
	if day.Date == "" {
		return fmt.Errorf("replay day requires a date")
	}

	summary := day.Summary
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO replay_days (date, status, summary)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET status = excluded.status, summary = excluded.summary
	`

	if _, err := r.db.Exec(query, day.Date, string(day.Status), string(summary)); err != nil {
		return fmt.Errorf("failed to upsert replay day %s: %w", day.Date, err)
	}

	return nil
}

// Get returns the replay record for a date, or nil when absent.
func (r *ReplayDayRepository) Get(date string) (*domain.ReplayDay, error) {
	query := "SELECT date, status, summary FROM replay_days WHERE date = ?"

	var day domain.ReplayDay
	var status, summary string
	err := r.db.QueryRow(query, date).Scan(&day.Date, &status, &summary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get replay day %s: %w", date, err)
	}

	day.Status = domain.ReplayDayStatus(status)
	day.Summary = json.RawMessage(summary)
	return &day, nil
}
