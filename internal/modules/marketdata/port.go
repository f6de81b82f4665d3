// Package marketdata supplies OHLC bar series and their quality classification.
package marketdata

import (
	"context"

	"github.com/quantarch/helmsman/internal/domain"
)

// FetchResult pairs a snapshot with the per-symbol outcome. A symbol's
// failure is isolated: Err is set and Snapshot is zero.
type FetchResult struct {
	Snapshot domain.SeriesSnapshot
	Quality  map[domain.Timeframe]domain.DataQuality
	Err      error
}

// Port is the market-data boundary consumed by the tick orchestrator.
type Port interface {
	// Fetch returns the four aligned series for one symbol.
	Fetch(ctx context.Context, symbol string) (domain.SeriesSnapshot, error)

	// FetchBatch fetches each symbol best-effort; one failure never hides
	// the other symbols' data.
	FetchBatch(ctx context.Context, symbols []string) map[string]FetchResult
}

// ScenarioPort is a Port whose fetches can be shaped by a named scenario for
// one tick. Only the synthetic provider implements it.
type ScenarioPort interface {
	Port
	WithScenario(s Scenario) Port
}
