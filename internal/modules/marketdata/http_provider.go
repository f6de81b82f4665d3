package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/domain"
)

const (
	fetchTimeout   = 3 * time.Second
	fetchRetries   = 2 // retried at most twice on transient failures
	fetchBatchFan  = 4 // bounded parallel fan-out for FetchBatch
	retryWait      = 150 * time.Millisecond
	retryMaxWait   = 600 * time.Millisecond
	defaultBarsLen = 120
)

// barDTO is the provider's wire shape for one bar.
type barDTO struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

type seriesResponse struct {
	Symbol string   `json:"symbol"`
	Bars   []barDTO `json:"bars"`
}

// HTTPProvider fetches bar series from the execution venue's market data API.
// It wraps a resty client with timeout and bounded retry; a Cache in front of
// it avoids refetching within a timeframe interval.
type HTTPProvider struct {
	http  *resty.Client
	cache *Cache // optional
	clock func() time.Time
	log   zerolog.Logger
}

// NewHTTPProvider creates a provider with retry and timeout configured.
// cache may be nil.
func NewHTTPProvider(baseURL, token string, cache *Cache, log zerolog.Logger) *HTTPProvider {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(fetchTimeout).
		SetRetryCount(fetchRetries).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	if token != "" {
		httpClient.SetAuthToken(token)
	}

	return &HTTPProvider{
		http:  httpClient,
		cache: cache,
		clock: time.Now,
		log:   log.With().Str("component", "marketdata").Logger(),
	}
}

// Fetch returns the four aligned series for one symbol.
func (p *HTTPProvider) Fetch(ctx context.Context, symbol string) (domain.SeriesSnapshot, error) {
	snapshot := domain.SeriesSnapshot{
		Symbol:    symbol,
		Series:    make(map[domain.Timeframe][]domain.Bar, len(domain.Timeframes)),
		FetchedAt: p.clock().UTC(),
	}

	for _, tf := range domain.Timeframes {
		bars, err := p.fetchSeries(ctx, symbol, tf)
		if err != nil {
			return domain.SeriesSnapshot{}, fmt.Errorf("fetch %s %s: %w", symbol, tf, err)
		}
		snapshot.Series[tf] = bars
	}

	return snapshot, nil
}

// FetchBatch fetches symbols with a bounded fan-out; failures are isolated.
func (p *HTTPProvider) FetchBatch(ctx context.Context, symbols []string) map[string]FetchResult {
	results := make(map[string]FetchResult, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchBatchFan)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := p.fetchOne(ctx, symbol)

			mu.Lock()
			results[symbol] = res
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
	return results
}

func (p *HTTPProvider) fetchOne(ctx context.Context, symbol string) FetchResult {
	snapshot, err := p.Fetch(ctx, symbol)
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Market data fetch failed")
		return FetchResult{Err: err}
	}

	now := p.clock()
	quality := make(map[domain.Timeframe]domain.DataQuality, len(domain.Timeframes))
	for _, tf := range domain.Timeframes {
		quality[tf] = Classify(snapshot.Series[tf], tf, symbol, now)
	}

	return FetchResult{Snapshot: snapshot, Quality: quality}
}

func (p *HTTPProvider) fetchSeries(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Bar, error) {
	if p.cache != nil {
		if bars, ok := p.cache.Get(symbol, tf); ok {
			return bars, nil
		}
	}

	var result seriesResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("timeframe", string(tf)).
		SetQueryParam("count", fmt.Sprintf("%d", defaultBarsLen)).
		SetResult(&result).
		Get("/bars")
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get bars: status %d: %s", resp.StatusCode(), resp.String())
	}

	bars := make([]domain.Bar, 0, len(result.Bars))
	for _, dto := range result.Bars {
		bars = append(bars, domain.Bar{
			Open:      dto.Open,
			High:      dto.High,
			Low:       dto.Low,
			Close:     dto.Close,
			Volume:    dto.Volume,
			Timestamp: time.Unix(dto.Timestamp, 0).UTC(),
		})
	}

	if p.cache != nil {
		if err := p.cache.Put(symbol, tf, bars); err != nil {
			p.log.Debug().Err(err).Str("symbol", symbol).Msg("Bar cache write failed")
		}
	}

	return bars, nil
}
