package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantarch/helmsman/internal/domain"
)

// cachedBar is the msgpack shape stored in cache.db. Timestamps are kept as
// unix seconds so the encoding stays compact and timezone-free.
type cachedBar struct {
	Open   float64 `msgpack:"o"`
	High   float64 `msgpack:"h"`
	Low    float64 `msgpack:"l"`
	Close  float64 `msgpack:"c"`
	Volume float64 `msgpack:"v"`
	Unix   int64   `msgpack:"t"`
}

// Cache stores fetched bar series in cache.db, keyed by (symbol, timeframe).
// An entry is valid for one timeframe interval; after that it is refetched.
type Cache struct {
	db    *sql.DB
	clock func() time.Time
	log   zerolog.Logger
}

// NewCache creates a bar-series cache over the cache database.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:    db,
		clock: time.Now,
		log:   log.With().Str("repo", "bar_cache").Logger(),
	}
}

// Get returns the cached series if present and still fresh.
func (c *Cache) Get(symbol string, tf domain.Timeframe) ([]domain.Bar, bool) {
	var fetchedAt string
	var payload []byte

	query := "SELECT fetched_at, payload FROM bar_cache WHERE symbol = ? AND timeframe = ?"
	err := c.db.QueryRow(query, symbol, string(tf)).Scan(&fetchedAt, &payload)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("Bar cache read failed")
		return nil, false
	}

	at, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil || c.clock().Sub(at) > tf.Interval() {
		return nil, false
	}

	var cached []cachedBar
	if err := msgpack.Unmarshal(payload, &cached); err != nil {
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("Bar cache decode failed")
		return nil, false
	}

	bars := make([]domain.Bar, 0, len(cached))
	for _, cb := range cached {
		bars = append(bars, domain.Bar{
			Open:      cb.Open,
			High:      cb.High,
			Low:       cb.Low,
			Close:     cb.Close,
			Volume:    cb.Volume,
			Timestamp: time.Unix(cb.Unix, 0).UTC(),
		})
	}

	return bars, true
}

// Put stores a series, replacing any previous entry for the pair.
func (c *Cache) Put(symbol string, tf domain.Timeframe, bars []domain.Bar) error {
	cached := make([]cachedBar, 0, len(bars))
	for _, b := range bars {
		cached = append(cached, cachedBar{
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			Unix:   b.Timestamp.Unix(),
		})
	}

	payload, err := msgpack.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encode bar cache: %w", err)
	}

	query := `
		INSERT INTO bar_cache (symbol, timeframe, fetched_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe) DO UPDATE SET fetched_at = excluded.fetched_at, payload = excluded.payload
	`

	_, err = c.db.Exec(query, symbol, string(tf), c.clock().UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("write bar cache: %w", err)
	}

	return nil
}
