package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/internal/domain"
)

var nfpAt = time.Date(2026, 3, 6, 13, 30, 0, 0, time.UTC)

func nfpCalendar() *Calendar {
	return New([]Event{{Label: "NFP", Currency: "USD", At: nfpAt}})
}

func TestProximityFor(t *testing.T) {
	cal := nfpCalendar()

	tests := []struct {
		name   string
		symbol string
		at     time.Time
		want   domain.EventProximity
	}{
		{"well before", "EURUSD", nfpAt.Add(-2 * time.Hour), domain.ProximityNone},
		{"pre window opens", "EURUSD", nfpAt.Add(-30 * time.Minute), domain.ProximityPreEvent},
		{"just before release", "EURUSD", nfpAt.Add(-time.Minute), domain.ProximityPreEvent},
		{"at release", "EURUSD", nfpAt, domain.ProximityPostEvent},
		{"post window closes", "EURUSD", nfpAt.Add(15 * time.Minute), domain.ProximityPostEvent},
		{"after post window", "EURUSD", nfpAt.Add(16 * time.Minute), domain.ProximityNone},
		{"quote currency matches", "USDJPY", nfpAt.Add(-10 * time.Minute), domain.ProximityPreEvent},
		{"unrelated pair", "EURGBP", nfpAt.Add(-10 * time.Minute), domain.ProximityNone},
		{"non-fx symbol contains currency", "XAUUSD+", nfpAt.Add(-10 * time.Minute), domain.ProximityPreEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.ProximityFor(tt.symbol, tt.at))
		})
	}
}

func TestNilCalendarAnswersNone(t *testing.T) {
	var cal *Calendar
	assert.Equal(t, domain.ProximityNone, cal.ProximityFor("EURUSD", nfpAt))
}

func TestParse(t *testing.T) {
	events, err := Parse("NFP|USD|2026-03-06T13:30:00Z, ECB|eur|2026-03-12T12:45:00Z")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "NFP", events[0].Label)
	assert.Equal(t, "USD", events[0].Currency)
	assert.Equal(t, nfpAt, events[0].At)
	assert.Equal(t, "EUR", events[1].Currency)

	events, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, events)

	for _, raw := range []string{"NFP|USD", "NFP|USD|not-a-time", "|||"} {
		_, err := Parse(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}
