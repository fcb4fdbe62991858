package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusAccepted Status = "accepted"
	StatusStarted  Status = "started"
	StatusProgress Status = "progress"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// allowed lists the legal next states for each state. The edge back to
// queued from started/progress is a retry.
var allowed = map[Status][]Status{
	StatusQueued:   {StatusAccepted, StatusFailed},
	StatusAccepted: {StatusStarted, StatusFailed},
	StatusStarted:  {StatusProgress, StatusFinished, StatusFailed, StatusQueued},
	StatusProgress: {StatusProgress, StatusFinished, StatusFailed, StatusQueued},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Progress describes how far an attempt got.
type Progress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Stats summarizes a finished build.
type Stats struct {
	Instructions int    `json:"instructions"`
	Files        int    `json:"files"`
	ArchiveBytes int64  `json:"archive_bytes"`
	Digest       string `json:"digest"`
	DurationMs   int64  `json:"duration_ms"`
}

// Job is the persisted record of one build request, keyed by TaskKey.
type Job struct {
	TaskKey     string    `json:"task_key"`
	TaskID      string    `json:"task_id"`
	ManifestURL string    `json:"manifest_url"`
	Status      Status    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	Retries     int       `json:"retries"`
	Stats       *Stats    `json:"stats,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transition moves the job to status to, failing with
// common.ErrInvalidTransition when the state machine forbids it.
func (j *Job) Transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Progress != nil {
		p := *j.Progress
		cp.Progress = &p
	}
	if j.Stats != nil {
		s := *j.Stats
		cp.Stats = &s
	}
	return &cp
}
