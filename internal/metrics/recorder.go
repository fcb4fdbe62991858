// Package metrics exposes build and job counters. The job coordinator takes a
// Recorder; NoopRecorder is used when no metrics address is configured.
package metrics

import "time"

// Outcome is the final result label of a job attempt.
type Outcome string

const (
	OutcomeFinished Outcome = "finished"
	OutcomeFailed   Outcome = "failed"
	OutcomeRetried  Outcome = "retried"
)

type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncJobOutcome(outcome Outcome)
	IncSubmission(created bool)
	ObserveArchiveBytes(n int64)
	SetQueueDepth(n int)
}

// NoopRecorder does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncJobOutcome(Outcome)                      {}
func (NoopRecorder) IncSubmission(bool)                         {}
func (NoopRecorder) ObserveArchiveBytes(int64)                  {}
func (NoopRecorder) SetQueueDepth(int)                          {}
