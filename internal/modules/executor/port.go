// Package executor holds the two interchangeable executor port
// implementations: the in-process simulator and the real HTTP adapter.
package executor

import (
	"context"

	"github.com/quantarch/helmsman/internal/domain"
)

// Callback receives lifecycle events. Simulator callbacks fire synchronously
// per command; the real adapter delivers them from its websocket reader.
type Callback func(ev domain.ExecutorEvent)

// Status is the executor's observed condition.
type Status struct {
	Connectivity domain.Connectivity    `json:"connectivity"`
	Health       domain.ExecutionHealth `json:"health"`
	LatencyMS    int64                  `json:"latency_ms"`
	ErrorRate    float64                `json:"error_rate"`
	Armed        bool                   `json:"armed"`
}

// Port is the narrow interface the orchestrator depends on.
type Port interface {
	Status(ctx context.Context) Status
	Send(ctx context.Context, cmd domain.ExecutorCommand) domain.SendResult
	RegisterCallback(cb Callback)
	// Simulated reports whether fills from this port are paper fills.
	Simulated() bool
}

// DeriveHealth classifies observed latency and error rate.
func DeriveHealth(latencyMS int64, errorRate float64) domain.ExecutionHealth {
	if latencyMS > 2000 || errorRate > 0.5 {
		return domain.ExecHealthBroken
	}
	if latencyMS > 500 || errorRate > 0.2 {
		return domain.ExecHealthDegraded
	}
	return domain.ExecHealthOK
}
