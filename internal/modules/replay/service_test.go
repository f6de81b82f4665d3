package replay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	helmtest "github.com/quantarch/helmsman/internal/testing"
	"github.com/quantarch/helmsman/pkg/logger"
)

const testDate = "2026-03-02"

type replayFixture struct {
	svc    *Service
	events *ledger.EventRepository
	audits *ledger.AuditRepository
}

func newReplayFixture(t *testing.T) *replayFixture {
	t.Helper()
	log := logger.Nop()

	db, cleanup := helmtest.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	events := ledger.NewEventRepository(db.Conn(), log)
	audits := ledger.NewAuditRepository(db.Conn(), log)
	days := ledger.NewReplayDayRepository(db.Conn(), log)
	return &replayFixture{
		svc:    NewService(events, audits, days, log),
		events: events,
		audits: audits,
	}
}

func (f *replayFixture) append(t *testing.T, eventType domain.EventType, at time.Time) {
	t.Helper()
	_, err := f.events.Append(domain.LedgerEvent{
		EventID:       uuid.NewString(),
		CorrelationID: "corr-replay",
		Timestamp:     at,
		Severity:      domain.SeverityInfo,
		EventType:     eventType,
		Component:     domain.ComponentSystem,
		ReasonCode:    domain.ReasonMCLNeutral,
		Payload:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
}

func dayTime(hour int) time.Time {
	return time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC)
}

func TestRollupOfAnEmptyDayWritesNoRecord(t *testing.T) {
	f := newReplayFixture(t)

	record, err := f.svc.Rollup(testDate)
	require.NoError(t, err)
	assert.Nil(t, record, "zero-event days get no row")

	bundle, err := f.svc.Day(testDate)
	require.NoError(t, err)
	assert.Nil(t, bundle.Record)
}

func TestRollupCompleteDay(t *testing.T) {
	f := newReplayFixture(t)
	f.append(t, domain.EventMCLSnapshot, dayTime(10))
	f.append(t, domain.EventBrainSkip, dayTime(10))
	f.append(t, domain.EventPMDecision, dayTime(10))

	record, err := f.svc.Rollup(testDate)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.ReplayComplete, record.Status)

	var summary Summary
	require.NoError(t, json.Unmarshal(record.Summary, &summary))
	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, 1, summary.ByType[domain.EventMCLSnapshot])
}

func TestRollupPartialDay(t *testing.T) {
	f := newReplayFixture(t)
	// Snapshots without a single brain output mean the tick pipeline never
	// completed its decision pass.
	f.append(t, domain.EventMCLSnapshot, dayTime(10))
	f.append(t, domain.EventMCLSnapshot, dayTime(11))

	record, err := f.svc.Rollup(testDate)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.ReplayPartial, record.Status)
}

func TestRollupIsIdempotent(t *testing.T) {
	f := newReplayFixture(t)
	f.append(t, domain.EventMCLSnapshot, dayTime(10))
	f.append(t, domain.EventBrainIntent, dayTime(10))

	first, err := f.svc.Rollup(testDate)
	require.NoError(t, err)
	second, err := f.svc.Rollup(testDate)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRollupRejectsBadDates(t *testing.T) {
	f := newReplayFixture(t)
	for _, date := range []string{"", "2026-3-2", "02-03-2026", "not-a-date"} {
		_, err := f.svc.Rollup(date)
		assert.Error(t, err, "date %q", date)
	}
}

func TestDayBundlePreservesAppendOrderAndBounds(t *testing.T) {
	f := newReplayFixture(t)

	// Same-timestamp events must come back in append order.
	at := dayTime(10)
	for i := 0; i < 3; i++ {
		f.append(t, domain.EventPMDecision, at)
	}
	f.append(t, domain.EventMCLSnapshot, dayTime(23))
	// Next day, outside the bundle.
	f.append(t, domain.EventMCLSnapshot, dayTime(24))

	require.NoError(t, f.audits.Create(domain.AuditLog{
		AuditID:       uuid.NewString(),
		Timestamp:     dayTime(12),
		ActorUserID:   "ops-admin",
		ActorRole:     domain.RoleAdmin,
		Action:        "arm",
		Resource:      "operational_state",
		Before:        json.RawMessage(`{}`),
		After:         json.RawMessage(`{}`),
		CorrelationID: "corr-audit",
	}))

	bundle, err := f.svc.Day(testDate)
	require.NoError(t, err)
	assert.Len(t, bundle.Events, 4, "the next day's event stays out")
	assert.Len(t, bundle.Audits, 1)
	assert.Equal(t, testDate, bundle.Date)

	for i := 1; i < len(bundle.Events); i++ {
		assert.False(t, bundle.Events[i].Timestamp.Before(bundle.Events[i-1].Timestamp))
	}
}
