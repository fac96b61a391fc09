package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/marine-alerts/internal/config"
	"github.com/couchcryptid/marine-alerts/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes notifications to a Kafka topic for the delivery service
// to render and send. It implements domain.Notifier.
type Notifier struct {
	writer messageWriter
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured notification topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaNotifyTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// SendBatch publishes the batch in a single WriteMessages call. Messages are
// keyed by recipient so one recipient's notifications stay ordered. A
// recipient is marked failed when any of its messages could not be written.
func (n *Notifier) SendBatch(ctx context.Context, batch []domain.Notification) (domain.Results, error) {
	results := make(domain.Results, len(batch))
	if len(batch) == 0 {
		return results, nil
	}

	msgs := make([]kafkago.Message, 0, len(batch))
	recipients := make([]string, 0, len(batch))
	for i := range batch {
		msg, err := serializeToMessage(batch[i])
		if err != nil {
			n.logger.Warn("notification serialization failed", "recipient", batch[i].Recipient, "error", err)
			results.Record(batch[i].Recipient, false)
			continue
		}
		msgs = append(msgs, msg)
		recipients = append(recipients, batch[i].Recipient)
	}
	if len(msgs) == 0 {
		return results, nil
	}

	err := n.writer.WriteMessages(ctx, msgs...)
	var writeErrs kafkago.WriteErrors
	switch {
	case err == nil:
		for _, r := range recipients {
			results.Record(r, true)
		}
	case errors.As(err, &writeErrs) && len(writeErrs) == len(msgs):
		for i, r := range recipients {
			if writeErrs[i] != nil {
				n.logger.Warn("notification write failed", "recipient", r, "error", writeErrs[i])
			}
			results.Record(r, writeErrs[i] == nil)
		}
	default:
		for _, r := range recipients {
			results.Record(r, false)
		}
		return results, fmt.Errorf("%w: kafka write: %w", domain.ErrDispatchFailure, err)
	}
	return results, nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a Notification into a Kafka message.
func serializeToMessage(notification domain.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(notification)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(notification.Recipient),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "notification_id", Value: []byte(uuid.NewString())},
			{Key: "notification_kind", Value: []byte(notification.Kind)},
			{Key: "created_at", Value: []byte(notification.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
