package domain

import "time"

// DispatchedAlert is the audit record of a threshold alert that was delivered.
type DispatchedAlert struct {
	ID         string      `json:"id"`
	UserID     int64       `json:"user_id"`
	LocationID string      `json:"location_id"`
	Kind       HazardKind  `json:"alert_type"`
	Severity   Severity    `json:"severity"`
	Message    string      `json:"message"`
	Snapshot   Observation `json:"weather_data"`
	SentAt     time.Time   `json:"sent_at"`
	Read       bool        `json:"is_read"`
}

// NotificationKind distinguishes the three message families the engine produces.
type NotificationKind string

const (
	NotificationDigest    NotificationKind = "daily_digest"
	NotificationHazard    NotificationKind = "hazard_scan"
	NotificationThreshold NotificationKind = "threshold_alert"
	NotificationUpdate    NotificationKind = "weather_update"
)

// DigestEntry is one location's section of a daily digest.
type DigestEntry struct {
	LocationName        string      `json:"location_name"`
	Current             Observation `json:"current"`
	Forecast            Forecast    `json:"forecast"`
	Analysis            *Analysis   `json:"analysis,omitempty"`
	AnalysisUnavailable bool        `json:"analysis_unavailable,omitempty"`
}

// Notification is one message for one recipient. Rendering it into an e-mail
// or chat message is the transport's job.
type Notification struct {
	Recipient    string           `json:"recipient"`
	Kind         NotificationKind `json:"kind"`
	LocationName string           `json:"location_name,omitempty"`
	Hazard       HazardKind       `json:"hazard,omitempty"`
	Severity     Severity         `json:"severity,omitempty"`
	Message      string           `json:"message,omitempty"`
	Observation  *Observation     `json:"observation,omitempty"`
	Forecast     *Forecast        `json:"forecast,omitempty"`
	Bulletins    []Bulletin       `json:"bulletins,omitempty"`
	Analysis     *Analysis        `json:"analysis,omitempty"`
	// AnalysisUnavailable is set when the classifier failed and the alert
	// carries numeric fields only.
	AnalysisUnavailable bool          `json:"analysis_unavailable,omitempty"`
	Digest              []DigestEntry `json:"digest,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Results maps a recipient to whether all of its notifications were delivered.
type Results map[string]bool

// Record folds one delivery outcome into the results. A recipient stays
// failed once any of its notifications failed.
func (r Results) Record(recipient string, ok bool) {
	prev, seen := r[recipient]
	if !seen {
		r[recipient] = ok
		return
	}
	r[recipient] = prev && ok
}

// Succeeded counts recipients whose notifications were all delivered.
func (r Results) Succeeded() int {
	n := 0
	for _, ok := range r {
		if ok {
			n++
		}
	}
	return n
}
