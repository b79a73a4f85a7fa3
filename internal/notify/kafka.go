package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"macro-trader/internal/config"
)

// messageWriter is the part of kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes signal documents to a topic, keyed by symbol so
// that signals for one pair stay ordered.
type KafkaNotifier struct {
	writer  messageWriter
	topic   string
	enabled bool
}

// NewKafkaNotifier creates a KafkaNotifier. Only signal notifications are
// published.
func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	topic := cfg.Topic
	if topic == "" {
		topic = "macro-trader.signals"
	}
	kn := &KafkaNotifier{
		topic:   topic,
		enabled: cfg.Enabled && len(cfg.Brokers) > 0,
	}
	if kn.enabled {
		kn.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return kn
}

// Name returns the name of the notifier.
func (k *KafkaNotifier) Name() string { return "kafka" }

// IsEnabled returns whether the notifier is enabled.
func (k *KafkaNotifier) IsEnabled() bool { return k.enabled }

// Send publishes the signal document of a signal notification.
func (k *KafkaNotifier) Send(ctx context.Context, n Notification) error {
	if !k.enabled || n.Signal == nil {
		return nil
	}

	value, err := json.Marshal(n.Signal)
	if err != nil {
		return fmt.Errorf("marshal signal document: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Signal.Symbol),
		Value: value,
		Time:  n.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
			{Key: "event", Value: []byte(n.Signal.EventName)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
