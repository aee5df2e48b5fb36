// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package watchdog

import "errors"

// Errors
var (
	ErrAlreadyRunning  = errors.New("watchdog is running")
	ErrNotRunning      = errors.New("watchdog is not currently running")
	ErrNilTickable     = errors.New("tickable is nil")
	ErrInvalidInterval = errors.New("tick interval must be positive")
	ErrInvalidDeadline = errors.New("max tick time must be positive")
)
