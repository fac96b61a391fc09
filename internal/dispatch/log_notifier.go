package dispatch

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/marine-alerts/internal/domain"
)

// LogNotifier writes notifications to the log instead of a transport. It is
// the default for local runs and never fails.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) SendBatch(_ context.Context, batch []domain.Notification) (domain.Results, error) {
	results := make(domain.Results, len(batch))
	for _, n := range batch {
		attrs := []any{
			"recipient", n.Recipient,
			"kind", n.Kind,
		}
		if n.LocationName != "" {
			attrs = append(attrs, "location", n.LocationName)
		}
		if n.Hazard != "" {
			attrs = append(attrs, "hazard", n.Hazard, "severity", n.Severity)
		}
		if len(n.Digest) > 0 {
			attrs = append(attrs, "digest_locations", len(n.Digest))
		}
		if n.Message != "" {
			attrs = append(attrs, "message", n.Message)
		}
		l.logger.Info("notification", attrs...)
		results.Record(n.Recipient, true)
	}
	return results, nil
}
