package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Location is a geographic point watched for hazards. Saved locations carry an
// owner; monitoring locations do not.
type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	OwnerID   int64   `json:"owner_id,omitempty"`
}

// Owned reports whether the location belongs to a user.
func (l Location) Owned() bool { return l.OwnerID != 0 }

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("location %q: latitude %v out of range", l.Name, l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("location %q: longitude %v out of range", l.Name, l.Longitude)
	}
	if l.ID == "" {
		return errors.New("location id is required")
	}
	return nil
}

// User is a notification recipient.
type User struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}

// SavedLocation pairs a user-saved location with its owner.
type SavedLocation struct {
	Location Location
	Owner    User
}

// AlertPreference is a user's subscription to hazard kinds at one saved location.
type AlertPreference struct {
	ID         int64
	User       User
	Location   Location
	Kinds      []HazardKind
	Thresholds map[HazardKind]float64
	Active     bool
	CreatedAt  time.Time
}

// Threshold returns the configured threshold for kind, and false when none is set.
func (p AlertPreference) Threshold(kind HazardKind) (float64, bool) {
	v, ok := p.Thresholds[kind]
	return v, ok
}

const savedLocationPrefix = "saved:"

// SavedLocationID builds the location identity for a stored saved location.
func SavedLocationID(rowID int64) string {
	return savedLocationPrefix + strconv.FormatInt(rowID, 10)
}

// ParseSavedLocationID extracts the store row id from a saved location identity.
func ParseSavedLocationID(id string) (int64, error) {
	raw, ok := strings.CutPrefix(id, savedLocationPrefix)
	if !ok {
		return 0, fmt.Errorf("location %q is not a saved location", id)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("location %q: %w", id, err)
	}
	return n, nil
}
