package analytics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/lumenwallet/tx-engine/internal/engine/analytics"
	"github/lumenwallet/tx-engine/internal/metrics"
)

type captureSink struct {
	mu     sync.Mutex
	events []analytics.Event
	fail   bool
	closed bool
}

func (s *captureSink) Send(_ context.Context, event analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) captured() []analytics.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]analytics.Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestEmitDeliversToSink(t *testing.T) {
	sink := &captureSink{}
	s := analytics.NewService(16, metrics.New(), sink)

	s.Emit("transaction_submitted", map[string]any{"chain_id": int64(1)})
	s.Emit("transaction_confirmed", map[string]any{"chain_id": int64(1)})

	// Close drains the queue before shutting the sinks down.
	s.Close()

	events := sink.captured()
	require.Len(t, events, 2)
	assert.Equal(t, "transaction_submitted", events[0].Name)
	assert.Equal(t, "transaction_confirmed", events[1].Name)
	assert.False(t, events[0].OccurredAt.IsZero())
	assert.True(t, sink.closed)
}

func TestEmitNeverBlocksWhenQueueFull(t *testing.T) {
	// A sink that blocks until released keeps the queue occupied.
	release := make(chan struct{})
	blocking := &blockingSink{release: release}
	s := analytics.NewService(1, metrics.New(), blocking)

	done := make(chan struct{})
	go func() {
		for range 50 {
			s.Emit("event", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	close(release)
	s.Close()
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Send(_ context.Context, _ analytics.Event) error {
	<-s.release
	return nil
}

func (s *blockingSink) Close() error { return nil }

func TestSinkFailureDoesNotPropagate(t *testing.T) {
	sink := &captureSink{fail: true}
	s := analytics.NewService(16, metrics.New(), sink)

	// Must not panic or surface the sink error anywhere.
	s.Emit("transaction_submitted", nil)
	s.Close()
}

func TestServiceWithoutSinks(t *testing.T) {
	s := analytics.NewService(0, nil)
	s.Emit("transaction_submitted", map[string]any{"chain_id": int64(1)})
	s.Close()
}
