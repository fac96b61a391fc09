//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("marine-alerts-it"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// deliveredMessage holds a deserialized message read from the notification topic.
type deliveredMessage struct {
	Notification domain.Notification
	Key          string
	Headers      map[string]string
}

// readDelivered reads a single message from the consumer and deserializes it.
func readDelivered(ctx context.Context, t *testing.T, consumer *kafkago.Reader) deliveredMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from notification topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var n domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &n), "unmarshal notification")

	return deliveredMessage{Notification: n, Key: string(msg.Key), Headers: headers}
}

// stubWeather returns fixed readings per coordinate pair.
type stubWeather struct {
	mu       sync.Mutex
	readings map[[2]float64]domain.Observation
}

func (w *stubWeather) set(lat, lon float64, obs domain.Observation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readings == nil {
		w.readings = make(map[[2]float64]domain.Observation)
	}
	w.readings[[2]float64{lat, lon}] = obs
}

func (w *stubWeather) CurrentWeather(_ context.Context, lat, lon float64) (domain.Observation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	obs, ok := w.readings[[2]float64{lat, lon}]
	if !ok {
		return domain.Observation{}, domain.ErrDataUnavailable
	}
	return obs, nil
}

func (w *stubWeather) Forecast(_ context.Context, _, _ float64, days int) (domain.Forecast, error) {
	return domain.Forecast{Days: make([]domain.ForecastDay, days)}, nil
}
