// Package dispatch hands each cycle's notifications to the configured
// transport and reports which recipients were reached.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/observability"
)

// Dispatcher sends notification batches through a domain.Notifier. Delivery
// failures are logged and counted, never returned.
type Dispatcher struct {
	notifier domain.Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a dispatcher over notifier.
func New(notifier domain.Notifier, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, metrics: metrics, logger: logger}
}

// Dispatch sends the batch in one notifier call. Every recipient in the batch
// appears in the result; a recipient the notifier did not report on counts
// as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []domain.Notification) domain.Results {
	results := make(domain.Results)
	if len(batch) == 0 {
		return results
	}

	sent, err := d.notifier.SendBatch(ctx, batch)
	if err != nil {
		d.logger.Error("notification batch failed", "size", len(batch), "error", err)
	}

	for _, n := range batch {
		ok, reported := sent[n.Recipient]
		ok = ok && reported
		results.Record(n.Recipient, ok)

		outcome := "success"
		if !ok {
			outcome = "failure"
		}
		d.metrics.NotificationsSent.WithLabelValues(string(n.Kind), outcome).Inc()
	}

	for recipient, ok := range results {
		if !ok {
			d.logger.Warn("notification not delivered", "recipient", recipient, "error", domain.ErrDispatchFailure)
		}
	}
	d.logger.Info("notifications dispatched", "size", len(batch), "recipients", len(results), "delivered", results.Succeeded())
	return results
}
