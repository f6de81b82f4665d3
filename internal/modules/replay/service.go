// Package replay derives per-day rollups from the ledger and serves day
// bundles for deterministic re-reads.
package replay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/ledger"
)

// dayQueryLimit bounds one day bundle read. A day of one-minute ticks over
// a handful of symbols stays well under this.
const dayQueryLimit = 100000

// Service reads the ledger and maintains replay_days.
type Service struct {
	log    zerolog.Logger
	events *ledger.EventRepository
	audits *ledger.AuditRepository
	days   *ledger.ReplayDayRepository
}

// NewService wires the three repositories.
func NewService(events *ledger.EventRepository, audits *ledger.AuditRepository, days *ledger.ReplayDayRepository, log zerolog.Logger) *Service {
	return &Service{
		log:    log.With().Str("component", "replay").Logger(),
		events: events,
		audits: audits,
		days:   days,
	}
}

// Day is the full bundle for one UTC day.
type Day struct {
	Date   string               `json:"date"`
	Events []domain.LedgerEvent `json:"events"`
	Audits []domain.AuditLog    `json:"audit_logs"`
	Record *domain.ReplayDay    `json:"replay_day"`
}

// Summary is the rollup payload stored on replay_days.
type Summary struct {
	TotalEvents int                      `json:"total_events"`
	ByType      map[domain.EventType]int `json:"by_type"`
}

// Rollup recomputes the replay record for one date (YYYY-MM-DD, UTC).
// A day is complete when it holds at least one MCL snapshot and at least
// one brain intent or skip. Days with no events get no record at all.
func (s *Service) Rollup(date string) (*domain.ReplayDay, error) {
	start, end, err := dayBounds(date)
	if err != nil {
		return nil, err
	}

	counts, err := s.events.CountByTypeBetween(start, end)
	if err != nil {
		return nil, fmt.Errorf("count events for %s: %w", date, err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil, nil
	}

	status := domain.ReplayPartial
	if counts[domain.EventMCLSnapshot] > 0 &&
		(counts[domain.EventBrainIntent] > 0 || counts[domain.EventBrainSkip] > 0) {
		status = domain.ReplayComplete
	}

	summary, err := json.Marshal(Summary{TotalEvents: total, ByType: counts})
	if err != nil {
		return nil, fmt.Errorf("marshal rollup summary: %w", err)
	}

	record := domain.ReplayDay{Date: date, Status: status, Summary: summary}
	if err := s.days.Upsert(record); err != nil {
		return nil, fmt.Errorf("upsert replay day %s: %w", date, err)
	}
	s.log.Info().Str("date", date).Str("status", string(status)).Int("events", total).Msg("replay day rolled up")
	return &record, nil
}

// Day returns every event and audit entry of one date plus its replay
// record, events in append order.
func (s *Service) Day(date string) (*Day, error) {
	start, end, err := dayBounds(date)
	if err != nil {
		return nil, err
	}

	events, err := s.events.Between(start, end, ledger.TailFilters{}, dayQueryLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("read events for %s: %w", date, err)
	}
	audits, err := s.audits.Between(start, end)
	if err != nil {
		return nil, fmt.Errorf("read audit logs for %s: %w", date, err)
	}
	record, err := s.days.Get(date)
	if err != nil {
		return nil, fmt.Errorf("read replay day %s: %w", date, err)
	}

	return &Day{Date: date, Events: events, Audits: audits, Record: record}, nil
}

func dayBounds(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid replay date %q: %w", date, err)
	}
	return start, start.Add(24 * time.Hour), nil
}
