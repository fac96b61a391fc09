package domain

import "errors"

var (
	// ErrDataUnavailable means the weather source had no usable reading. The
	// location is skipped for this cycle.
	ErrDataUnavailable = errors.New("weather data unavailable")

	// ErrClassifierUnavailable means hazard analysis failed. Alerts still fire
	// on numeric rules with the narrative omitted.
	ErrClassifierUnavailable = errors.New("hazard classifier unavailable")

	// ErrDispatchFailure means the notifier rejected a recipient.
	ErrDispatchFailure = errors.New("notification dispatch failed")

	// ErrPersistence means an audit or registry write failed.
	ErrPersistence = errors.New("persistence failure")
)
