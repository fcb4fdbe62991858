// Package jobs stores job records. All implementations offer an atomic
// insert-if-absent keyed by task key and a read-modify-write Update.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
)

// UpdateFunc mutates a job in place. Returning an error aborts the update
// and leaves the stored record untouched.
type UpdateFunc func(job *models.Job) error

type Repository interface {
	// InsertIfAbsent stores job unless a record with the same task key
	// exists. It returns the stored record and whether it was created.
	InsertIfAbsent(ctx context.Context, job *models.Job) (*models.Job, bool, error)
	// Get returns common.ErrNotFound for unknown keys.
	Get(ctx context.Context, taskKey string) (*models.Job, error)
	// Update applies fn to the current record atomically.
	Update(ctx context.Context, taskKey string, fn UpdateFunc) (*models.Job, error)
	// ListUnfinished returns jobs in non-terminal states, oldest first.
	ListUnfinished(ctx context.Context) ([]*models.Job, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func encodeDetails(job *models.Job) (progress, stats sql.NullString, err error) {
	if progress, err = encodeJSON(job.Progress, job.Progress == nil); err != nil {
		return progress, stats, fmt.Errorf("encode progress: %w", err)
	}
	if stats, err = encodeJSON(job.Stats, job.Stats == nil); err != nil {
		return progress, stats, fmt.Errorf("encode stats: %w", err)
	}
	return progress, stats, nil
}

func decodeDetails(job *models.Job, progress, stats sql.NullString) error {
	if progress.Valid && progress.String != "" {
		job.Progress = &models.Progress{}
		if err := json.Unmarshal([]byte(progress.String), job.Progress); err != nil {
			return fmt.Errorf("decode progress: %w", err)
		}
	}
	if stats.Valid && stats.String != "" {
		job.Stats = &models.Stats{}
		if err := json.Unmarshal([]byte(stats.String), job.Stats); err != nil {
			return fmt.Errorf("decode stats: %w", err)
		}
	}
	return nil
}
