package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantarch/helmsman/internal/domain"
)

func TestIsFXWeekend(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"friday morning", time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC), false},
		{"friday 21:59", time.Date(2026, 3, 6, 21, 59, 0, 0, time.UTC), false},
		{"friday 22:00", time.Date(2026, 3, 6, 22, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), true},
		{"sunday 20:59", time.Date(2026, 3, 8, 20, 59, 0, 0, time.UTC), true},
		{"sunday 21:00", time.Date(2026, 3, 8, 21, 0, 0, 0, time.UTC), false},
		{"wednesday", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFXWeekend(tt.at))
		})
	}
}

func barsAt(times ...time.Time) []domain.Bar {
	bars := make([]domain.Bar, len(times))
	for i, ts := range times {
		bars[i] = domain.Bar{
			Timestamp: ts,
			Open:      1.1, High: 1.101, Low: 1.099, Close: 1.1005,
			Volume: 100,
		}
	}
	return bars
}

func TestClassify(t *testing.T) {
	// A Monday, well outside the weekend window.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	h1 := domain.TimeframeH1

	t.Run("weekend wins over everything", func(t *testing.T) {
		saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
		q := Classify(nil, h1, "EURUSD", saturday)
		assert.Equal(t, domain.QualityMarketClosed, q.Status)
		assert.True(t, q.MarketClosed)
	})

	t.Run("empty series on a trading day is down", func(t *testing.T) {
		q := Classify(nil, h1, "EURUSD", now)
		assert.Equal(t, domain.QualityDown, q.Status)
	})

	t.Run("fresh contiguous series is ok", func(t *testing.T) {
		series := barsAt(
			now.Add(-3*time.Hour),
			now.Add(-2*time.Hour),
			now.Add(-1*time.Hour),
		)
		q := Classify(series, h1, "EURUSD", now)
		assert.Equal(t, domain.QualityOK, q.Status)
		assert.False(t, q.Stale)
		assert.Zero(t, q.Gaps)
		assert.False(t, q.VolumeMissing)
	})

	t.Run("stale last bar degrades", func(t *testing.T) {
		series := barsAt(now.Add(-5 * time.Hour))
		q := Classify(series, h1, "EURUSD", now)
		assert.Equal(t, domain.QualityDegraded, q.Status)
		assert.True(t, q.Stale)
	})

	t.Run("internal gap degrades", func(t *testing.T) {
		series := barsAt(
			now.Add(-6*time.Hour),
			now.Add(-1*time.Hour), // 5h gap on H1 exceeds 3x the interval
		)
		q := Classify(series, h1, "EURUSD", now)
		assert.Equal(t, domain.QualityDegraded, q.Status)
		assert.Equal(t, 1, q.Gaps)
	})

	t.Run("missing volume is informational only", func(t *testing.T) {
		series := barsAt(now.Add(-1 * time.Hour))
		for i := range series {
			series[i].Volume = 0
		}
		q := Classify(series, h1, "EURUSD", now)
		assert.Equal(t, domain.QualityOK, q.Status)
		assert.True(t, q.VolumeMissing)
	})
}

func TestQualityReasonCode(t *testing.T) {
	assert.Equal(t, domain.ReasonProvOK, QualityReasonCode(domain.QualityOK))
	assert.Equal(t, domain.ReasonProvDegraded, QualityReasonCode(domain.QualityDegraded))
	assert.Equal(t, domain.ReasonProvDown, QualityReasonCode(domain.QualityDown))
	assert.Equal(t, domain.ReasonProvMarketClosed, QualityReasonCode(domain.QualityMarketClosed))
}
