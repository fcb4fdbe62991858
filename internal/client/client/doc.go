// Package client talks to the zipbuilder job service over gRPC.
//
// GRPCClient submits manifest URLs, reads job status and can poll a job
// until it reaches a terminal state. gRPC status codes are mapped to the
// sentinel errors ErrUnavailable, ErrNotFound and ErrInvalidArgument, which
// callers match with errors.Is.
package client
