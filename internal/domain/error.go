package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid job state transition")

	// Controller side
	ErrConnection = errors.New("node connection failed")
	ErrNoNodes    = errors.New("no nodes connected")

	// Worker side
	ErrExecution   = errors.New("training script failed")
	ErrQueueFull   = errors.New("worker queue full")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrJobTimeout  = errors.New("job exceeded its time limit")

	// Infra
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrNoHistory          = errors.New("no training script submitted yet")
)
