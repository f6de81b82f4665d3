// Package calendar answers event-proximity queries against a fixed list of
// scheduled economic releases.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantarch/helmsman/internal/domain"
)

const (
	preWindow  = 30 * time.Minute
	postWindow = 15 * time.Minute
)

// Event is one scheduled release affecting a currency.
type Event struct {
	Label    string    `json:"label"`
	Currency string    `json:"currency"`
	At       time.Time `json:"at"`
}

// Calendar holds the configured events. The zero value answers NONE.
type Calendar struct {
	events []Event
}

// New builds a calendar from a fixed event list.
func New(events []Event) *Calendar {
	return &Calendar{events: append([]Event(nil), events...)}
}

// ProximityFor reports where now sits relative to the nearest event touching
// one of the symbol's currencies. The pre window opens 30 minutes before the
// release, the post window closes 15 minutes after it.
func (c *Calendar) ProximityFor(symbol string, now time.Time) domain.EventProximity {
	if c == nil {
		return domain.ProximityNone
	}
	for _, ev := range c.events {
		if !touches(symbol, ev.Currency) {
			continue
		}
		switch {
		case !now.Before(ev.At) && !now.After(ev.At.Add(postWindow)):
			return domain.ProximityPostEvent
		case now.Before(ev.At) && !now.Before(ev.At.Add(-preWindow)):
			return domain.ProximityPreEvent
		}
	}
	return domain.ProximityNone
}

// touches reports whether the event's currency is the symbol's base or quote.
func touches(symbol, currency string) bool {
	s := strings.ToUpper(symbol)
	c := strings.ToUpper(currency)
	if len(s) == 6 {
		return s[:3] == c || s[3:] == c
	}
	return strings.Contains(s, c)
}

// Parse reads a comma-separated list of "LABEL|CCY|RFC3339" entries, the
// shape used by the HELMSMAN_EVENT_WINDOWS environment variable.
func Parse(raw string) ([]Event, error) {
	var events []Event
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed event window %q, want LABEL|CCY|RFC3339", entry)
		}
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("malformed event time in %q: %w", entry, err)
		}
		events = append(events, Event{
			Label:    strings.TrimSpace(parts[0]),
			Currency: strings.ToUpper(strings.TrimSpace(parts[1])),
			At:       at.UTC(),
		})
	}
	return events, nil
}
