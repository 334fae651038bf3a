// Package trace publishes per-step events for offline analysis.
package trace

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// StepEvent is one agent loop step, flattened for the event stream.
type StepEvent struct {
	RunID      string    `json:"run_id"`
	Step       int       `json:"step"`
	Decision   string    `json:"decision"`
	Tool       string    `json:"tool,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	ResultKind string    `json:"result_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher emits step events. Publishing is best-effort; failures never
// affect the run.
type Publisher interface {
	Publish(ctx context.Context, evt StepEvent)
	Close() error
}

// NopPublisher drops every event. Default when tracing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, evt StepEvent) {}
func (NopPublisher) Close() error                               { return nil }

// KafkaPublisher writes step events to a Kafka topic, keyed by run id so
// one run stays on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// NewKafkaPublisherFromList splits a comma-separated broker list.
func NewKafkaPublisherFromList(brokers, topic string) *KafkaPublisher {
	return NewKafkaPublisher(strings.Split(brokers, ","), topic)
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt StepEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Dropping unencodable step event", "error", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.RunID),
		Value: data,
	}); err != nil {
		slog.Warn("Step trace publish failed", "error", err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
