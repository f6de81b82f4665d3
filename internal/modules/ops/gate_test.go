package ops

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/ledger"
	"github.com/quantarch/helmsman/pkg/logger"
)

func newAuthorityFixture(t *testing.T) (*Authority, *opsFixture) {
	t.Helper()
	f := newOpsFixture(t)
	config := func(gate domain.Gate) ConfigView {
		return ConfigView{
			Gate:    gate,
			Symbols: []string{"EURUSD", "GBPJPY"},
			Limits:  domain.DefaultRiskLimits(),
			Mock:    true,
		}
	}
	auth := NewAuthority(f.manager, f.rec, config, logger.Nop()).
		WithClock(func() time.Time { return opsNow })
	return auth, f
}

func healthyTick() domain.TickSummary {
	return domain.TickSummary{
		CorrelationID:        "corr-tick",
		At:                   opsNow,
		HasMCLSnapshot:       true,
		HasBrainIntentOrSkip: true,
		HasPMDecision:        true,
		EventsPersisted:      7,
	}
}

func TestPromotionRefusedWithCompletePrereqList(t *testing.T) {
	auth, f := newAuthorityFixture(t)
	// No tick has run, executor link unknown, actor is a viewer.
	viewer := domain.Actor{UserID: "viewer-1", Role: "Viewer"}

	err := auth.RequestTransition(viewer, domain.GateG1)

	var prereq *ErrPrereqMissing
	require.True(t, errors.As(err, &prereq))
	assert.ElementsMatch(t, []string{
		domain.ReasonGatePrereqMissingSnapshot,
		domain.ReasonGatePrereqMissingIntent,
		domain.ReasonGatePrereqMissingDecision,
		domain.ReasonGatePrereqMissingLedger,
		domain.ReasonGatePrereqMissingExecutor,
		domain.ReasonGatePrereqMissingRole,
	}, prereq.Missing, "every failed prerequisite must be reported, not just the first")

	assert.Equal(t, domain.GateG0, f.manager.Snapshot().Gate)
	assert.Zero(t, f.ledgerCount(t))
}

func TestPromotionSucceedsWithAllPrereqs(t *testing.T) {
	auth, f := newAuthorityFixture(t)
	f.manager.RecordTick(healthyTick())
	f.manager.SetConnectivity(domain.ConnectivityConnected)

	require.NoError(t, auth.RequestTransition(admin, domain.GateG1))
	assert.Equal(t, domain.GateG1, f.manager.Snapshot().Gate)

	snapshots, err := f.events.Tail(10, ledger.TailFilters{EventType: domain.EventConfigSnapshot})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, domain.ReasonGatePromoted, snapshots[0].ReasonCode)
}

func TestPromotionIsExactlyOneStep(t *testing.T) {
	auth, f := newAuthorityFixture(t)
	f.manager.RecordTick(healthyTick())
	f.manager.SetConnectivity(domain.ConnectivityConnected)

	err := auth.RequestTransition(admin, domain.GateG2)

	var prereq *ErrPrereqMissing
	require.True(t, errors.As(err, &prereq))
	assert.Equal(t, []string{domain.ReasonGateStepTooLarge}, prereq.Missing)
	assert.Equal(t, domain.GateG0, f.manager.Snapshot().Gate)
}

func TestDemotionAlwaysSucceeds(t *testing.T) {
	auth, f := newAuthorityFixture(t)
	f.manager.RecordTick(healthyTick())
	f.manager.SetConnectivity(domain.ConnectivityConnected)
	require.NoError(t, auth.RequestTransition(admin, domain.GateG1))
	require.NoError(t, f.manager.Arm(admin, ConfirmArm))

	// Demotion needs no prerequisites, even from a degraded state.
	f.manager.SetConnectivity(domain.ConnectivityDisconnected)
	require.NoError(t, auth.RequestTransition(admin, domain.GateG0))

	state := f.manager.Snapshot()
	assert.Equal(t, domain.GateG0, state.Gate)
	assert.Equal(t, domain.ArmDisarmed, state.Arm, "returning to G0 revokes the arm")

	snapshots, err := f.events.Tail(10, ledger.TailFilters{EventType: domain.EventConfigSnapshot})
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, domain.ReasonGateDemoted, snapshots[0].ReasonCode, "tail is newest first")
}

func TestSameGateIsANoOp(t *testing.T) {
	auth, f := newAuthorityFixture(t)
	require.NoError(t, auth.RequestTransition(admin, domain.GateG0))
	assert.Zero(t, f.ledgerCount(t))
}

func TestUnknownGateIsRejected(t *testing.T) {
	auth, _ := newAuthorityFixture(t)
	assert.ErrorIs(t, auth.RequestTransition(admin, domain.Gate("G9")), ErrUnknownGate)
}
