package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/modules/executor"
	"github.com/quantarch/helmsman/internal/modules/ops"
)

// StatusMonitor probes the executor on an interval and feeds the observed
// connectivity and health into the operational state, which ledgers the
// transitions.
type StatusMonitor struct {
	exec     executor.Port
	ops      *ops.Manager
	interval time.Duration
	log      zerolog.Logger
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(exec executor.Port, opsMgr *ops.Manager, interval time.Duration, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		exec:     exec,
		ops:      opsMgr,
		interval: interval,
		log:      log.With().Str("component", "status_monitor").Logger(),
	}
}

// Start begins periodic status monitoring until the context ends.
func (m *StatusMonitor) Start(ctx context.Context) {
	go m.monitor(ctx)
}

func (m *StatusMonitor) monitor(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *StatusMonitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := m.exec.Status(probeCtx)
	m.ops.SetConnectivity(status.Connectivity)
	m.ops.SetExecutionState(status.Health, "")
}
