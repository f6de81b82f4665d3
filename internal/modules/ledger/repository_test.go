package ledger

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/pkg/logger"
)

const testSchema = `
CREATE TABLE ledger_events (
    event_id       TEXT PRIMARY KEY,
    correlation_id TEXT NOT NULL,
    timestamp      TEXT NOT NULL,
    severity       TEXT NOT NULL,
    event_type     TEXT NOT NULL,
    component      TEXT NOT NULL,
    symbol         TEXT,
    brain_id       TEXT,
    reason_code    TEXT,
    payload        TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE audit_logs (
    audit_id       TEXT PRIMARY KEY,
    timestamp      TEXT NOT NULL,
    actor_user_id  TEXT NOT NULL,
    actor_role     TEXT NOT NULL,
    action         TEXT NOT NULL,
    resource       TEXT NOT NULL,
    reason         TEXT,
    before_state   TEXT,
    after_state    TEXT,
    correlation_id TEXT NOT NULL
);
CREATE TABLE replay_days (
    date    TEXT PRIMARY KEY,
    status  TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '{}'
);
`

func newTestConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.Exec(testSchema)
	require.NoError(t, err)
	return conn
}

func testEvent(id, correlation string, at time.Time) domain.LedgerEvent {
	return domain.LedgerEvent{
		EventID:       id,
		CorrelationID: correlation,
		Timestamp:     at,
		Severity:      domain.SeverityInfo,
		EventType:     domain.EventMCLSnapshot,
		Component:     domain.ComponentMCL,
		Symbol:        "EURUSD",
		ReasonCode:    domain.ReasonMCLNeutral,
		Payload:       json.RawMessage(`{"k":"v"}`),
	}
}

func TestAppendIsIdempotentOnEventID(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ev := testEvent("ev-1", "corr-1", at)
	inserted, err := repo.Append(ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same event id again, different payload: no write, no error.
	dup := ev
	dup.Payload = json.RawMessage(`{"k":"other"}`)
	inserted, err = repo.Append(dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	events, err := repo.ByCorrelation("corr-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"k":"v"}`, string(events[0].Payload))
}

func TestAppendRequiresIdentifiers(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	at := time.Now().UTC()

	_, err := repo.Append(domain.LedgerEvent{CorrelationID: "c", Timestamp: at})
	assert.Error(t, err)

	_, err = repo.Append(domain.LedgerEvent{EventID: "e", Timestamp: at})
	assert.Error(t, err)
}

func TestPayloadRoundTripsVerbatim(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	payload := `{"nested":{"a":[1,2,3]},"text":"snapshot","pi":3.14159}`
	ev := testEvent("ev-raw", "corr-raw", at)
	ev.Payload = json.RawMessage(payload)

	_, err := repo.Append(ev)
	require.NoError(t, err)

	events, err := repo.ByCorrelation("corr-raw")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, payload, string(events[0].Payload))
}

func TestByCorrelationPreservesAppendOrder(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	// All events share one timestamp; ordering must come from append order,
	// not from the clock.
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ids := []string{"first", "second", "third", "fourth"}
	for _, id := range ids {
		_, err := repo.Append(testEvent(id, "corr-ord", at))
		require.NoError(t, err)
	}

	events, err := repo.ByCorrelation("corr-ord")
	require.NoError(t, err)
	require.Len(t, events, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, events[i].EventID)
	}
}

func TestTailFiltersAndReverseOrder(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	snap := testEvent("a", "c1", at)
	intent := testEvent("b", "c1", at)
	intent.EventType = domain.EventBrainIntent
	intent.BrainID = "A2"
	warn := testEvent("c", "c1", at)
	warn.Severity = domain.SeverityWarn

	for _, ev := range []domain.LedgerEvent{snap, intent, warn} {
		_, err := repo.Append(ev)
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		filters TailFilters
		wantIDs []string
	}{
		{"no filter newest first", TailFilters{}, []string{"c", "b", "a"}},
		{"by event type", TailFilters{EventType: domain.EventBrainIntent}, []string{"b"}},
		{"by severity", TailFilters{Severity: domain.SeverityWarn}, []string{"c"}},
		{"by brain", TailFilters{BrainID: "A2"}, []string{"b"}},
		{"no match", TailFilters{Symbol: "USDJPY"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.Tail(10, tt.filters)
			require.NoError(t, err)
			var ids []string
			for _, ev := range events {
				ids = append(ids, ev.EventID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestBetweenAndCounts(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	_, err := repo.Append(testEvent("d1-a", "c1", day1))
	require.NoError(t, err)
	intent := testEvent("d1-b", "c1", day1)
	intent.EventType = domain.EventBrainIntent
	_, err = repo.Append(intent)
	require.NoError(t, err)
	_, err = repo.Append(testEvent("d2-a", "c2", day2))
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	events, err := repo.Between(start, end, TailFilters{}, 100, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	counts, err := repo.CountByTypeBetween(start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.EventMCLSnapshot])
	assert.Equal(t, 1, counts[domain.EventBrainIntent])
}

func TestAppendBatchCountsOnlyNewInserts(t *testing.T) {
	repo := NewEventRepository(newTestConn(t), logger.Nop())
	at := time.Now().UTC()

	batch := []domain.LedgerEvent{
		testEvent("x", "c", at),
		testEvent("y", "c", at),
		testEvent("x", "c", at), // duplicate inside the batch
	}
	inserted, err := repo.AppendBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
}
