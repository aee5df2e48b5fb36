package cache

import "errors"

// Errors
var (
	ErrNilItem        = errors.New("item is nil")
	ErrAlreadyRunning = errors.New("cache loop is running")
	ErrInvalidPeriod  = errors.New("tick interval must be positive")
)
