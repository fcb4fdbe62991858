// Package common defines shared constants and sentinel errors used across
// zipbuilder components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Manifest and instruction errors. These are never retried.
	ErrConfiguration = errors.New("configuration error")
	ErrPathEscape    = errors.New("path escapes staging root")

	// Job lifecycle errors.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQueueFull         = errors.New("build queue is full")
	ErrQueueStopped      = errors.New("build queue is stopped")
)
