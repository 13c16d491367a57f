// Package analytics emits structured transaction lifecycle events. Emission
// is fire-and-forget: a full queue drops events and a sink failure is
// logged, never propagated into the transaction pipeline.
package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/lumenwallet/tx-engine/internal/metrics"
)

// Event is one lifecycle event: a name plus free-form properties.
type Event struct {
	Name       string         `json:"eventName"`
	Properties map[string]any `json:"properties"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Sink delivers events to a backend.
type Sink interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

// Service is the async event emitter.
type Service interface {
	// Emit enqueues an event. It never blocks; events are dropped when the
	// queue is full.
	Emit(name string, properties map[string]any)

	// Close drains the queue and shuts down the sinks.
	Close()
}

type service struct {
	queue   chan Event
	done    chan struct{}
	sinks   []Sink
	metrics *metrics.Service
	logger  zerolog.Logger
}

// NewService starts the emitter with the given sinks. A nil or empty sink
// list still consumes events (they are logged at debug level only).
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(queueSize int, metricsService *metrics.Service, sinks ...Sink) Service {
	if queueSize <= 0 {
		queueSize = 64
	}

	s := &service{
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
		sinks:   sinks,
		metrics: metricsService,
		logger:  log.With().Str("component", "analytics").Logger(),
	}

	go s.drain()
	return s
}

func (s *service) Emit(name string, properties map[string]any) {
	event := Event{
		Name:       name,
		Properties: properties,
		OccurredAt: time.Now(),
	}

	select {
	case s.queue <- event:
	default:
		if s.metrics != nil {
			s.metrics.AnalyticsDropped.Inc()
		}
		s.logger.Debug().Str("event", name).Msg("Analytics queue full, event dropped")
	}
}

func (s *service) drain() {
	for event := range s.queue {
		s.deliver(event)
	}
	close(s.done)
}

func (s *service) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Debug().Str("event", event.Name).Fields(event.Properties).Msg("Lifecycle event")

	for _, sink := range s.sinks {
		if err := sink.Send(ctx, event); err != nil {
			// Best effort only: a sink failure must never surface.
			s.logger.Warn().Err(err).Str("event", event.Name).Msg("Analytics sink failed")
		}
	}
}

func (s *service) Close() {
	close(s.queue)
	<-s.done

	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close analytics sink")
		}
	}
}
