package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInvalidPair       = errors.New("pair is not monitored")
	ErrModelNotReady     = errors.New("model not ready")
)
