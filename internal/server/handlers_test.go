package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/config"
	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/brains"
	"github.com/quantarch/helmsman/internal/modules/executor"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	"github.com/quantarch/helmsman/internal/modules/marketdata"
	"github.com/quantarch/helmsman/internal/modules/ops"
	"github.com/quantarch/helmsman/internal/modules/replay"
	"github.com/quantarch/helmsman/internal/orchestrator"
	"github.com/quantarch/helmsman/internal/recorder"
	"github.com/quantarch/helmsman/internal/stream"
	helmtest "github.com/quantarch/helmsman/internal/testing"
	"github.com/quantarch/helmsman/pkg/logger"
)

// Monday during market hours, NY session.
var apiNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type apiFixture struct {
	srv    *Server
	opsMgr *ops.Manager
}

// steadyTrend serves an engineered uptrend so every tick yields an intent
// and a PM decision, keeping the gate-promotion prereqs reachable.
type steadyTrend struct{}

func (steadyTrend) Fetch(_ context.Context, symbol string) (domain.SeriesSnapshot, error) {
	h1 := make([]domain.Bar, 30)
	for i := range h1 {
		close := 1.1000 + 0.0002*float64(i)
		h1[i] = domain.Bar{
			Timestamp: apiNow.Add(time.Duration(i-30) * time.Hour),
			Open:      close - 0.0002,
			High:      close + 0.0004,
			Low:       close - 0.0004,
			Close:     close,
			Volume:    1000,
		}
	}
	return domain.SeriesSnapshot{
		Symbol:    symbol,
		Series:    map[domain.Timeframe][]domain.Bar{domain.TimeframeH1: h1},
		FetchedAt: apiNow,
	}, nil
}

func (m steadyTrend) FetchBatch(ctx context.Context, symbols []string) map[string]marketdata.FetchResult {
	results := make(map[string]marketdata.FetchResult, len(symbols))
	for _, symbol := range symbols {
		snapshot, _ := m.Fetch(ctx, symbol)
		results[symbol] = marketdata.FetchResult{
			Snapshot: snapshot,
			Quality: map[domain.Timeframe]domain.DataQuality{
				domain.TimeframeH1: {Status: domain.QualityOK},
			},
		}
	}
	return results
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.Nop()

	db, cleanup := helmtest.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	events := ledger.NewEventRepository(db.Conn(), log)
	audits := ledger.NewAuditRepository(db.Conn(), log)
	days := ledger.NewReplayDayRepository(db.Conn(), log)
	hub := stream.NewHub(log)
	rec := recorder.New(events, audits, hub, log)

	sim := executor.NewSimulator(log).WithClock(func() time.Time { return apiNow })
	opsMgr := ops.NewManager(rec, true, log).WithClock(func() time.Time { return apiNow })
	auth := ops.NewAuthority(opsMgr, rec, nil, log)
	orch := orchestrator.New(rec, steadyTrend{}, brains.NewRegistry(), sim, opsMgr,
		[]string{"EURUSD"}, domain.DefaultRiskLimits(), log).
		WithClock(func() time.Time { return apiNow })

	srv := New(Config{
		Log:       log,
		Cfg:       &config.Config{Port: 0, DevMode: true, MockMode: true},
		LedgerDB:  db,
		Hub:       hub,
		Events:    events,
		Replay:    replay.NewService(events, audits, days, log),
		Ops:       opsMgr,
		Authority: auth,
		Orch:      orch,
	})
	return &apiFixture{srv: srv, opsMgr: opsMgr}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rr, req)
	return rr
}

var adminHeaders = map[string]string{"X-Actor": "ops-admin", "X-Role": domain.RoleAdmin}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		State    ops.State `json:"state"`
		LedgerDB string    `json:"ledger_db"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, domain.GateG0, body.State.Gate)
	assert.Equal(t, domain.ArmDisarmed, body.State.Arm)
	assert.Equal(t, "ok", body.LedgerDB)
}

func TestTickThenTailAndCorrelationReads(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/ops/tick", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rr.Code)

	var summary domain.TickSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.True(t, summary.HasMCLSnapshot)
	assert.Positive(t, summary.EventsPersisted)

	rr = f.do(t, http.MethodGet, "/api/events/tail?n=50", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var tail struct {
		Events []domain.LedgerEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tail))
	assert.NotEmpty(t, tail.Events)

	rr = f.do(t, http.MethodGet, "/api/events/correlation/"+summary.CorrelationID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var byCorr struct {
		Events []domain.LedgerEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &byCorr))
	// Provider state transitions share the correlation id but are counted
	// outside the tick summary.
	assert.GreaterOrEqual(t, len(byCorr.Events), summary.EventsPersisted)
}

func TestTickRejectsUnknownScenario(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/ops/tick", tickRequest{Scenario: "MELTDOWN"}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTickScenarioNeedsAScenarioCapablePort(t *testing.T) {
	f := newAPIFixture(t)

	// steadyTrend cannot be reshaped per scenario, so the request is refused.
	rr := f.do(t, http.MethodPost, "/api/ops/tick", tickRequest{Scenario: "TREND_UP"}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTailRejectsBadN(t *testing.T) {
	f := newAPIFixture(t)
	for _, n := range []string{"0", "-5", "1001", "abc"} {
		rr := f.do(t, http.MethodGet, "/api/events/tail?n="+n, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "n=%s", n)
	}
}

func TestArmInG0Returns409(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/ops/arm", confirmRequest{Confirm: ops.ConfirmArm}, adminHeaders)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestArmWithBadConfirmReturns400(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/ops/arm", confirmRequest{Confirm: "yes"}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGateRefusalCarriesTheMissingList(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/ops/gate", gateRequest{Gate: "G1"}, map[string]string{
		"X-Actor": "viewer-1", "X-Role": "Viewer",
	})
	require.Equal(t, http.StatusConflict, rr.Code)

	var body struct {
		Missing []string `json:"missing"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body.Missing, domain.ReasonGatePrereqMissingRole)
	assert.Contains(t, body.Missing, domain.ReasonGatePrereqMissingSnapshot)
}

func TestGatePromotionThroughTheAPI(t *testing.T) {
	f := newAPIFixture(t)

	// A completed tick plus executor connectivity satisfies the prereqs.
	rr := f.do(t, http.MethodPost, "/api/ops/tick", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/ops/gate", gateRequest{Gate: "G1"}, adminHeaders)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.GateG1, f.opsMgr.Snapshot().Gate)

	// Now arming is allowed, and kill always works.
	rr = f.do(t, http.MethodPost, "/api/ops/arm", confirmRequest{Confirm: ops.ConfirmArm}, adminHeaders)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/ops/kill", confirmRequest{Confirm: ops.ConfirmKill}, adminHeaders)
	require.Equal(t, http.StatusOK, rr.Code)

	state := f.opsMgr.Snapshot()
	assert.Equal(t, domain.ArmDisarmed, state.Arm)
	assert.True(t, state.RiskOff)
}

func TestUnknownGateReturns400(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(t, http.MethodPost, "/api/ops/gate", gateRequest{Gate: "G9"}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReplayDayEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/replay/2026-03-02", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var day replay.Day
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &day))
	assert.Equal(t, "2026-03-02", day.Date)

	rr = f.do(t, http.MethodGet, "/api/replay/not-a-date", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
