// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package scheduler

import "errors"

var (
	// ErrNilTask is returned when scheduling a nil callback.
	ErrNilTask = errors.New("task is nil")

	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler is running")
)
