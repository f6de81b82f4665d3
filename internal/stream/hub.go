// Package stream fans freshly persisted events out to live observers.
//
// The hub never blocks a publisher on a slow observer: each subscriber owns a
// buffered channel drained by its own pump goroutine, and a full buffer or a
// failed write drops the subscriber silently.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Topic names a live stream channel.
type Topic string

const (
	TopicLedger    Topic = "ledger"
	TopicAudit     Topic = "audit"
	TopicPing      Topic = "ping"
	TopicConnected Topic = "connected"
)

// KeepaliveInterval is how often an idle stream receives a ping.
const KeepaliveInterval = 30 * time.Second

// Sink is a byte-oriented observer. Write must return an error once the
// observer is gone so the hub can drop it.
type Sink interface {
	Write(p []byte) error
}

// Subscription identifies one live subscriber.
type Subscription struct {
	id          int
	Unsubscribe func()
}

type subscriber struct {
	ch   chan []byte
	done chan struct{}
}

// Hub is the in-process fan-out of events to subscribed observers.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	lastPub time.Time
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[int]*subscriber),
		log:  log.With().Str("component", "stream_hub").Logger(),
	}
}

// Subscribe registers a sink and returns its subscription handle.
// The sink immediately receives a one-shot `connected` frame.
func (h *Hub) Subscribe(sink Sink) *Subscription {
	sub := &subscriber{
		ch:   make(chan []byte, 64), // buffer so publishers never wait
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	go h.pump(id, sub, sink)

	h.publishTo(sub, frame(TopicConnected, json.RawMessage(`{"connected":true}`)))

	h.log.Debug().Int("subscriber_id", id).Msg("Subscriber attached")

	return &Subscription{
		id:          id,
		Unsubscribe: func() { h.drop(id) },
	}
}

// Publish serialises the event once and delivers it to every live sink.
// A subscriber whose buffer is full is dropped, not waited on.
func (h *Hub) Publish(topic Topic, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("topic", string(topic)).Msg("Failed to serialise event for stream")
		return
	}

	payload := frame(topic, data)

	h.mu.Lock()
	h.lastPub = time.Now()
	targets := make(map[int]*subscriber, len(h.subs))
	for id, sub := range h.subs {
		targets[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range targets {
		if !h.publishTo(sub, payload) {
			h.log.Debug().Int("subscriber_id", id).Msg("Subscriber buffer full, dropping")
			h.drop(id)
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// RunKeepalive pings every subscriber whenever the stream has been idle for
// the keep-alive interval, so intermediaries do not close the connection.
// Blocks until the context is cancelled.
func (h *Hub) RunKeepalive(ctx context.Context) {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			idle := time.Since(h.lastPub) >= KeepaliveInterval
			h.mu.Unlock()
			if idle {
				h.Publish(TopicPing, map[string]string{"ts": time.Now().UTC().Format(time.RFC3339)})
			}
		}
	}
}

// publishTo performs the single non-blocking delivery attempt.
func (h *Hub) publishTo(sub *subscriber, payload []byte) bool {
	select {
	case sub.ch <- payload:
		return true
	case <-sub.done:
		return true // already gone, nothing to deliver
	default:
		return false
	}
}

// pump drains the subscriber channel into the sink. A write error ends the
// subscription.
func (h *Hub) pump(id int, sub *subscriber, sink Sink) {
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.ch:
			if err := sink.Write(payload); err != nil {
				h.drop(id)
				return
			}
		}
	}
}

func (h *Hub) drop(id int) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.done)
		h.log.Debug().Int("subscriber_id", id).Msg("Subscriber detached")
	}
}

// frame formats one server-sent event.
func frame(topic Topic, data json.RawMessage) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", topic, data))
}
