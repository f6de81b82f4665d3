package stream

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarch/helmsman/pkg/logger"
)

// collectSink records every frame it receives.
type collectSink struct {
	mu     sync.Mutex
	frames []string
}

func (s *collectSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, string(p))
	return nil
}

func (s *collectSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

// failingSink errors on every write.
type failingSink struct{}

func (failingSink) Write([]byte) error { return errors.New("gone") }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubscribeSendsConnectedFrame(t *testing.T) {
	hub := NewHub(logger.Nop())
	sink := &collectSink{}

	sub := hub.Subscribe(sink)
	defer sub.Unsubscribe()

	waitFor(t, func() bool { return len(sink.snapshot()) >= 1 })
	first := sink.snapshot()[0]
	assert.True(t, strings.HasPrefix(first, "event: connected\n"))
	assert.Equal(t, 1, hub.Count())
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub(logger.Nop())
	sink := &collectSink{}
	sub := hub.Subscribe(sink)
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		hub.Publish(TopicLedger, map[string]int{"seq": i})
	}

	waitFor(t, func() bool { return len(sink.snapshot()) >= 11 })
	frames := sink.snapshot()[1:] // skip the connected frame
	for i, f := range frames {
		require.True(t, strings.HasPrefix(f, "event: ledger\n"))
		assert.Contains(t, f, `{"seq":`+string(rune('0'+i))+`}`)
	}
}

func TestFailingSinkIsDroppedSilently(t *testing.T) {
	hub := NewHub(logger.Nop())
	sub := hub.Subscribe(failingSink{})
	defer sub.Unsubscribe()

	hub.Publish(TopicLedger, map[string]string{"k": "v"})

	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(logger.Nop())
	sink := &collectSink{}
	sub := hub.Subscribe(sink)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, hub.Count())
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub(logger.Nop())

	// A sink that never drains: its pump blocks on the first write forever.
	blocked := make(chan struct{})
	sub := hub.Subscribe(blockingSink{blocked: blocked})
	defer sub.Unsubscribe()
	defer close(blocked)

	done := make(chan struct{})
	go func() {
		// Far more than the buffer size; must return regardless.
		for i := 0; i < 200; i++ {
			hub.Publish(TopicLedger, map[string]int{"seq": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

type blockingSink struct{ blocked chan struct{} }

func (s blockingSink) Write([]byte) error {
	<-s.blocked
	return nil
}
