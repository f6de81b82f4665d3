package orchestrator

import (
	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/mapper"
)

// brokenTicksForExit is how many consecutive BROKEN observations trigger an
// emergency close of open positions.
const brokenTicksForExit = 2

// edgeHealthMonitor watches executor health across ticks and raises an
// EXIT_NOW action when the edge is too unhealthy to keep positions open.
type edgeHealthMonitor struct {
	consecutiveBroken int
}

func newEdgeHealthMonitor() *edgeHealthMonitor {
	return &edgeHealthMonitor{}
}

// observe folds one tick's health reading. It returns a non-nil action only
// when the broken streak crosses the threshold while positions are open;
// the streak resets on any healthier reading.
func (m *edgeHealthMonitor) observe(health domain.ExecutionHealth, openSymbols []string) *mapper.EmergencyAction {
	if health != domain.ExecHealthBroken {
		m.consecutiveBroken = 0
		return nil
	}
	m.consecutiveBroken++
	if m.consecutiveBroken < brokenTicksForExit || len(openSymbols) == 0 {
		return nil
	}
	m.consecutiveBroken = 0
	return &mapper.EmergencyAction{
		ExitNow: true,
		Symbols: openSymbols,
		Reason:  domain.ReasonEHMExitNow,
	}
}
