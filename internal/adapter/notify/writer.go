// Package notify publishes artifact-ready events to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// Artifact kinds.
const (
	KindRegridded = "regridded"
	KindForecast  = "forecast"
	KindCounts    = "counts"
)

// ArtifactReady announces a completed output file.
type ArtifactReady struct {
	Kind        string    `json:"kind"`
	Path        string    `json:"path"`
	InitTime    time.Time `json:"init_time"`
	LeadHours   int       `json:"lead_hours,omitempty"`
	Members     int       `json:"members,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher sends artifact events.
type Publisher interface {
	Publish(ctx context.Context, events ...ArtifactReady) error
	Close() error
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, ...ArtifactReady) error { return nil }
func (Nop) Close() error                                    { return nil }

// messageWriter is the part of kafka-go's Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces artifact events to a Kafka topic.
type Writer struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, clock: clock, logger: logger}
}

// Publish stamps and sends events in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, events ...ArtifactReady) error {
	if len(events) == 0 {
		return nil
	}
	now := w.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(events))
	for i, e := range events {
		e.PublishedAt = now
		msg, err := serializeToMessage(e)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d artifact events: %w", len(events), err)
	}
	w.logger.Debug("artifact events published", "count", len(events))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an event into a Kafka message keyed by artifact path.
func serializeToMessage(event ArtifactReady) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize artifact event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Path),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "published_at", Value: []byte(event.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
