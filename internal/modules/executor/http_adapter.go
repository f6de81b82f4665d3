package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quantarch/helmsman/internal/domain"
)

const (
	httpTimeout = 3 * time.Second
	httpRetries = 1
	wsReconnect = 5 * time.Second
)

// HTTPAdapter talks to an external execution service over HTTP, with a
// websocket subscription for lifecycle events.
type HTTPAdapter struct {
	log    zerolog.Logger
	client *resty.Client
	wsURL  string

	mu        sync.Mutex
	callbacks []Callback
	lastState struct {
		connectivity domain.Connectivity
		latencyMS    int64
		errorRate    float64
	}
}

// NewHTTPAdapter builds an adapter against the given base URL.
func NewHTTPAdapter(baseURL, wsURL, token string, log zerolog.Logger) *HTTPAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(httpTimeout).
		SetRetryCount(httpRetries).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	a := &HTTPAdapter{
		log:    log.With().Str("component", "executor_http").Logger(),
		client: client,
		wsURL:  wsURL,
	}
	a.lastState.connectivity = domain.ConnectivityUnknown
	return a
}

func (a *HTTPAdapter) Simulated() bool { return false }

// RegisterCallback adds a lifecycle consumer fed by the websocket reader.
func (a *HTTPAdapter) RegisterCallback(cb Callback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, cb)
}

type statusDTO struct {
	Armed     bool    `json:"armed"`
	LatencyMS int64   `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// Status probes the executor. A failed probe reports disconnected with
// BROKEN health rather than returning an error; consumers treat health as
// an observation, not a call outcome.
func (a *HTTPAdapter) Status(ctx context.Context) Status {
	start := time.Now()
	var dto statusDTO
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&dto).
		Get("/status")
	latency := time.Since(start).Milliseconds()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil || resp.IsError() {
		a.lastState.connectivity = domain.ConnectivityDisconnected
		a.lastState.errorRate = 1
		return Status{
			Connectivity: domain.ConnectivityDisconnected,
			Health:       domain.ExecHealthBroken,
			LatencyMS:    latency,
			ErrorRate:    1,
		}
	}
	a.lastState.connectivity = domain.ConnectivityConnected
	a.lastState.latencyMS = latency
	a.lastState.errorRate = dto.ErrorRate
	return Status{
		Connectivity: domain.ConnectivityConnected,
		Health:       DeriveHealth(latency, dto.ErrorRate),
		LatencyMS:    latency,
		ErrorRate:    dto.ErrorRate,
		Armed:        dto.Armed,
	}
}

// Send posts one command. Timeouts and transport errors map to
// EXEC_ORDER_TIMEOUT; HTTP 5xx to EXEC_BROKEN; HTTP 4xx to EXEC_ORDER_FAILED.
func (a *HTTPAdapter) Send(ctx context.Context, cmd domain.ExecutorCommand) domain.SendResult {
	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(cmd).
		Post("/commands")
	latency := time.Since(start).Milliseconds()

	switch {
	case err != nil:
		code := domain.ReasonExecOrderTimeout
		if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			code = domain.ReasonExecOrderFailed
		}
		a.log.Warn().Err(err).Str("command", string(cmd.Type)).Msg("executor send failed")
		return domain.SendResult{OK: false, ReasonCode: code, LatencyMS: latency}
	case resp.StatusCode() >= 500:
		return domain.SendResult{OK: false, ReasonCode: domain.ReasonExecBroken, LatencyMS: latency}
	case resp.IsError():
		return domain.SendResult{OK: false, ReasonCode: domain.ReasonExecOrderFailed, LatencyMS: latency}
	}
	return domain.SendResult{OK: true, ReasonCode: domain.ReasonExecOK, LatencyMS: latency}
}

// RunLifecycleFeed keeps a websocket subscription open and dispatches
// lifecycle events to registered callbacks until the context ends.
func (a *HTTPAdapter) RunLifecycleFeed(ctx context.Context) {
	if a.wsURL == "" {
		return
	}
	for {
		if err := a.readLifecycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warn().Err(err).Msg("lifecycle feed dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnect):
		}
	}
}

func (a *HTTPAdapter) readLifecycle(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial lifecycle feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return fmt.Errorf("read lifecycle frame: %w", err)
		}
		var ev domain.ExecutorEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			a.log.Warn().Err(err).Msg("unparseable lifecycle frame")
			continue
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		a.dispatch(ev)
	}
}

func (a *HTTPAdapter) dispatch(ev domain.ExecutorEvent) {
	a.mu.Lock()
	cbs := append([]Callback(nil), a.callbacks...)
	a.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}
