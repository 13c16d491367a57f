package analytics

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github/lumenwallet/tx-engine/internal/config"
)

// kafkaSink publishes lifecycle events to a Kafka topic.
type kafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to the configured brokers/topic.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewKafkaSink(cfg config.Kafka) Sink {
	brokers := make([]string, 0)
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &kafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

func (s *kafkaSink) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal analytics event")
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Name),
		Value: payload,
	})
	return errors.Wrap(err, "failed to write analytics event")
}

func (s *kafkaSink) Close() error {
	return errors.Wrap(s.writer.Close(), "failed to close kafka writer")
}
