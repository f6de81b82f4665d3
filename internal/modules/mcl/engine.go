// Package mcl derives the unified market-context snapshot for one symbol.
//
// Evaluate is a total pure function: it never panics and never errors. A
// missing metric falls back to a neutral value and is noted in the snapshot's
// why message.
package mcl

import (
	"fmt"
	"math"
	"time"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/quantarch/helmsman/internal/domain"
)

const (
	atrPeriod        = 14
	smaPeriod        = 20
	rangeTolerance   = 0.2 // RANGE when last close within ±0.2·ATR of three-bar mean
	volLowRatio      = 0.7
	volHighRatio     = 1.5
	raidBodyRatio    = 0.3
	raidWickRatio    = 0.5
	buildupRangeFrac = 0.5
)

// Input is the single bundle Evaluate consumes. Everything the snapshot needs
// is resolved before the engine runs so the function stays pure.
type Input struct {
	Series          domain.SeriesSnapshot
	ReferenceATR    float64   // long-run ATR reference for the volatility ratio
	ReferenceCloses []float64 // basket closes for the correlation index, may be nil
	SpreadBps       float64   // zero means unknown
	EventProximity  domain.EventProximity
	ExecutionHealth domain.ExecutionHealth
	GlobalMode      domain.GlobalMode
	Now             time.Time
}

// Evaluate builds the market snapshot from one input bundle.
func Evaluate(in Input) domain.MarketSnapshot {
	var notes []string

	h1 := in.Series.Series[domain.TimeframeH1]
	m15 := in.Series.Series[domain.TimeframeM15]

	metrics, metricNotes := computeMetrics(in, h1, m15)
	notes = append(notes, metricNotes...)

	structure := classifyStructure(h1, metrics.ATR)
	volatility, volNote := classifyVolatility(metrics.ATR, in.ReferenceATR)
	if volNote != "" {
		notes = append(notes, volNote)
	}
	liquidity := classifyLiquidity(m15)
	session := classifySession(in.Now)

	why := chooseReason(structure, volatility, liquidity, session, in.EventProximity, notes)

	return domain.MarketSnapshot{
		Symbol:          in.Series.Symbol,
		Timestamp:       in.Now.UTC(),
		Structure:       structure,
		Volatility:      volatility,
		LiquidityPhase:  liquidity,
		Session:         session,
		EventProximity:  in.EventProximity,
		Metrics:         metrics,
		ExecutionHealth: in.ExecutionHealth,
		GlobalMode:      in.GlobalMode,
		Why:             why,
	}
}

// computeMetrics derives the numeric observations; each falls back to a
// neutral value when the series is too short.
func computeMetrics(in Input, h1, m15 []domain.Bar) (domain.Metrics, []string) {
	var notes []string
	metrics := domain.Metrics{
		ATR:              0,
		SpreadBps:        in.SpreadBps,
		VolumeRatio:      1,
		CorrelationIndex: 0,
		SessionOverlap:   sessionOverlap(in.Now),
		RangeExpansion:   1,
	}

	if in.SpreadBps <= 0 {
		metrics.SpreadBps = 1
		notes = append(notes, "spread unknown, neutral 1bps assumed")
	}

	if len(h1) > atrPeriod {
		high, low, close := split(h1)
		atr := talib.Atr(high, low, close, atrPeriod)
		metrics.ATR = atr[len(atr)-1]
	} else {
		notes = append(notes, fmt.Sprintf("H1 series too short for ATR(%d)", atrPeriod))
	}

	if len(h1) > smaPeriod {
		volumes := make([]float64, len(h1))
		ranges := make([]float64, len(h1))
		for i, b := range h1 {
			volumes[i] = b.Volume
			ranges[i] = b.High - b.Low
		}

		volSMA := talib.Sma(volumes, smaPeriod)
		if last := volSMA[len(volSMA)-1]; last > 0 {
			metrics.VolumeRatio = volumes[len(volumes)-1] / last
		}

		rangeSMA := talib.Sma(ranges, smaPeriod)
		if last := rangeSMA[len(rangeSMA)-1]; last > 0 {
			metrics.RangeExpansion = ranges[len(ranges)-1] / last
		}
	} else {
		notes = append(notes, "H1 series too short for volume/range averages")
	}

	if corr, ok := correlationIndex(h1, in.ReferenceCloses); ok {
		metrics.CorrelationIndex = corr
	} else if len(in.ReferenceCloses) > 0 {
		notes = append(notes, "insufficient overlap for correlation index")
	}

	return metrics, notes
}

// correlationIndex correlates the symbol's H1 close returns with the
// reference basket returns over the overlapping window.
func correlationIndex(h1 []domain.Bar, refCloses []float64) (float64, bool) {
	n := len(h1)
	if len(refCloses) < n {
		n = len(refCloses)
	}
	if n < 3 {
		return 0, false
	}

	symReturns := make([]float64, 0, n-1)
	refReturns := make([]float64, 0, n-1)
	h1Tail := h1[len(h1)-n:]
	refTail := refCloses[len(refCloses)-n:]

	for i := 1; i < n; i++ {
		if h1Tail[i-1].Close == 0 || refTail[i-1] == 0 {
			return 0, false
		}
		symReturns = append(symReturns, h1Tail[i].Close/h1Tail[i-1].Close-1)
		refReturns = append(refReturns, refTail[i]/refTail[i-1]-1)
	}

	corr := stat.Correlation(symReturns, refReturns, nil)
	if math.IsNaN(corr) {
		return 0, false
	}
	return corr, true
}

// classifyStructure looks at the last three H1 bars.
func classifyStructure(h1 []domain.Bar, atr float64) domain.Structure {
	if len(h1) < 3 {
		return domain.StructureTransition
	}

	a, b, c := h1[len(h1)-3], h1[len(h1)-2], h1[len(h1)-1]

	risingCloses := a.Close < b.Close && b.Close < c.Close
	risingLows := a.Low < b.Low && b.Low < c.Low
	if risingCloses && risingLows {
		return domain.StructureTrend
	}

	fallingCloses := a.Close > b.Close && b.Close > c.Close
	fallingHighs := a.High > b.High && b.High > c.High
	if fallingCloses && fallingHighs {
		return domain.StructureTrend
	}

	mean := (a.Close + b.Close + c.Close) / 3
	if atr > 0 && math.Abs(c.Close-mean) <= rangeTolerance*atr {
		return domain.StructureRange
	}

	return domain.StructureTransition
}

// classifyVolatility compares ATR to the reference ATR.
func classifyVolatility(atr, refATR float64) (domain.Volatility, string) {
	if atr <= 0 || refATR <= 0 {
		return domain.VolatilityNormal, "volatility reference missing, NORMAL assumed"
	}

	ratio := atr / refATR
	switch {
	case ratio < volLowRatio:
		return domain.VolatilityLow, ""
	case ratio > volHighRatio:
		return domain.VolatilityHigh, ""
	default:
		return domain.VolatilityNormal, ""
	}
}

// classifyLiquidity inspects the last M15 bars.
func classifyLiquidity(m15 []domain.Bar) domain.LiquidityPhase {
	if len(m15) == 0 {
		return domain.LiquidityClean
	}

	last := m15[len(m15)-1]
	barRange := last.High - last.Low
	if barRange <= 0 {
		return domain.LiquidityClean
	}

	body := math.Abs(last.Close - last.Open)
	upperWick := last.High - math.Max(last.Open, last.Close)
	lowerWick := math.Min(last.Open, last.Close) - last.Low

	if body/barRange < raidBodyRatio && math.Max(upperWick, lowerWick)/barRange >= raidWickRatio {
		return domain.LiquidityRaid
	}

	if len(m15) >= smaPeriod+1 {
		sum := 0.0
		window := m15[len(m15)-smaPeriod-1 : len(m15)-1]
		for _, b := range window {
			sum += b.High - b.Low
		}
		avgRange := sum / float64(len(window))

		prev := m15[len(m15)-2]
		if avgRange > 0 && barRange < buildupRangeFrac*avgRange && bodiesOverlap(prev, last) {
			return domain.LiquidityBuildup
		}
	}

	return domain.LiquidityClean
}

func bodiesOverlap(a, b domain.Bar) bool {
	aLow, aHigh := math.Min(a.Open, a.Close), math.Max(a.Open, a.Close)
	bLow, bHigh := math.Min(b.Open, b.Close), math.Max(b.Open, b.Close)
	return aLow <= bHigh && bLow <= aHigh
}

// classifySession maps the UTC hour to the active session.
// Priority NY > LONDON > ASIA when windows overlap.
func classifySession(now time.Time) domain.Session {
	hour := now.UTC().Hour()
	switch {
	case hour >= 13 && hour < 22:
		return domain.SessionNY
	case hour >= 7 && hour < 16:
		return domain.SessionLondon
	default:
		return domain.SessionAsia
	}
}

// sessionOverlap is 1.0 inside the London/NY or Asia/London overlap windows.
func sessionOverlap(now time.Time) float64 {
	hour := now.UTC().Hour()
	if (hour >= 13 && hour < 16) || (hour >= 7 && hour < 9) {
		return 1
	}
	return 0
}

// chooseReason picks the reason code from the first state that differs from
// the neutral baseline (RANGE, NORMAL, CLEAN, ASIA, NONE), in the fixed order
// structure, volatility, liquidity, session, event.
func chooseReason(structure domain.Structure, volatility domain.Volatility, liquidity domain.LiquidityPhase, session domain.Session, proximity domain.EventProximity, notes []string) domain.Why {
	code := domain.ReasonMCLNeutral

	switch {
	case structure == domain.StructureTrend:
		code = domain.ReasonMCLStructureTrend
	case structure == domain.StructureTransition:
		code = domain.ReasonMCLStructureTransition
	case volatility == domain.VolatilityLow:
		code = domain.ReasonMCLVolLow
	case volatility == domain.VolatilityHigh:
		code = domain.ReasonMCLVolHigh
	case liquidity == domain.LiquidityRaid:
		code = domain.ReasonMCLLiquidityRaid
	case liquidity == domain.LiquidityBuildup:
		code = domain.ReasonMCLLiquidityBuildup
	case session != domain.SessionAsia:
		code = domain.ReasonMCLSessionShift
	case proximity != domain.ProximityNone:
		code = domain.ReasonMCLEventWindow
	}

	message := domain.ReasonDescription(code)
	if len(notes) > 0 {
		message = fmt.Sprintf("%s (%s)", message, joinNotes(notes))
	}

	return domain.Why{ReasonCode: code, Message: message}
}

func joinNotes(notes []string) string {
	out := notes[0]
	for _, n := range notes[1:] {
		out += "; " + n
	}
	return out
}

func split(bars []domain.Bar) (high, low, close []float64) {
	high = make([]float64, len(bars))
	low = make([]float64, len(bars))
	close = make([]float64, len(bars))
	for i, b := range bars {
		high[i] = b.High
		low[i] = b.Low
		close[i] = b.Close
	}
	return high, low, close
}
