// Package recorder binds the ledger repositories to the live stream with a
// single rule: persist first, publish only what was persisted.
package recorder

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	"github.com/quantarch/helmsman/internal/stream"
)

// Recorder is the single write path for ledger events and audit entries.
type Recorder struct {
	events *ledger.EventRepository
	audits *ledger.AuditRepository
	hub    *stream.Hub
	log    zerolog.Logger
}

// New wires the repositories to the hub.
func New(events *ledger.EventRepository, audits *ledger.AuditRepository, hub *stream.Hub, log zerolog.Logger) *Recorder {
	return &Recorder{
		events: events,
		audits: audits,
		hub:    hub,
		log:    log.With().Str("component", "recorder").Logger(),
	}
}

// Record appends the event and, only when the append actually landed,
// publishes it. A duplicate event_id is a silent no-op on both sides.
func (r *Recorder) Record(ev domain.LedgerEvent) error {
	appended, err := r.events.Append(ev)
	if err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	if appended {
		r.hub.Publish(stream.TopicLedger, ev)
	}
	return nil
}

// RecordAudit persists the audit entry, mirrors it to the ledger as an
// AUDIT_LOG event, and publishes both.
func (r *Recorder) RecordAudit(entry domain.AuditLog, mirror domain.LedgerEvent) error {
	if err := r.audits.Create(entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	r.hub.Publish(stream.TopicAudit, entry)
	return r.Record(mirror)
}

// Events exposes the event repository for read paths.
func (r *Recorder) Events() *ledger.EventRepository { return r.events }
