package marketdata

import (
	"fmt"
	"time"

	"github.com/quantarch/helmsman/internal/domain"
)

const (
	staleFactor = 2 // last bar older than 2x the interval => stale
	gapFactor   = 3 // internal gap wider than 3x the interval => gap
)

// IsFXWeekend reports whether the instant falls in the FX weekend window:
// Friday from 22:00 UTC, all of Saturday, Sunday before 21:00 UTC.
func IsFXWeekend(t time.Time) bool {
	utc := t.UTC()
	switch utc.Weekday() {
	case time.Friday:
		return utc.Hour() >= 22
	case time.Saturday:
		return true
	case time.Sunday:
		return utc.Hour() < 21
	default:
		return false
	}
}

// Classify derives the data-quality report for one fetched series.
func Classify(series []domain.Bar, tf domain.Timeframe, symbol string, now time.Time) domain.DataQuality {
	if IsFXWeekend(now) {
		return domain.DataQuality{
			Status:       domain.QualityMarketClosed,
			Reason:       "FX weekend window",
			MarketClosed: true,
		}
	}

	if len(series) == 0 {
		return domain.DataQuality{
			Status: domain.QualityDown,
			Reason: fmt.Sprintf("empty %s series for %s on a trading day", tf, symbol),
		}
	}

	interval := tf.Interval()
	q := domain.DataQuality{Status: domain.QualityOK}

	last := series[len(series)-1]
	if now.Sub(last.Timestamp) > time.Duration(staleFactor)*interval {
		q.Stale = true
	}

	for i := 1; i < len(series); i++ {
		if series[i].Timestamp.Sub(series[i-1].Timestamp) > time.Duration(gapFactor)*interval {
			q.Gaps++
		}
	}

	if q.Stale || q.Gaps > 0 {
		q.Status = domain.QualityDegraded
		q.Reason = fmt.Sprintf("stale=%v gaps=%d for %s %s", q.Stale, q.Gaps, symbol, tf)
	}

	// Informational only: some FX feeds carry no volume at all.
	volumeSeen := false
	for _, b := range series {
		if b.Volume > 0 {
			volumeSeen = true
			break
		}
	}
	q.VolumeMissing = !volumeSeen

	return q
}

// QualityReasonCode maps a quality status to its catalogue reason code.
func QualityReasonCode(status domain.DataQualityStatus) string {
	switch status {
	case domain.QualityOK:
		return domain.ReasonProvOK
	case domain.QualityDegraded:
		return domain.ReasonProvDegraded
	case domain.QualityDown:
		return domain.ReasonProvDown
	case domain.QualityMarketClosed:
		return domain.ReasonProvMarketClosed
	default:
		return domain.ReasonProvDown
	}
}
