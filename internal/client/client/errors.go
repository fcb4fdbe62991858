package client

import "errors"

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrNotFound        = errors.New("job not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrJobFailed       = errors.New("job failed")
)
