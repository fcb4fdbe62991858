package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/dbx"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
)

const sqliteColumns = `task_key, task_id, manifest_url, status, result, error, progress, retries, stats, created_at, updated_at`

// SQLiteRepository stores jobs in a single SQLite file. SQLite has no row
// locks, so writers are serialized with a mutex. Timestamps are unix nanos.
type SQLiteRepository struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	progress, stats, err := encodeDetails(job)
	if err != nil {
		return nil, false, err
	}

	stored := job.Clone()
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	query :=
		`INSERT OR IGNORE INTO jobs (` + sqliteColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		job.TaskKey, job.TaskID, job.ManifestURL, string(job.Status), job.Result, job.Error,
		progress, job.Retries, stats, stored.CreatedAt.UnixNano(), stored.UpdatedAt.UnixNano())
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return stored, true, nil
	}

	existing, err := r.get(ctx, r.db, job.TaskKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, taskKey string) (*models.Job, error) {
	return r.get(ctx, r.db, taskKey)
}

func (r *SQLiteRepository) get(ctx context.Context, db dbx.DBTX, taskKey string) (*models.Job, error) {
	query := `SELECT ` + sqliteColumns + ` FROM jobs WHERE task_key = ?`
	return scanSQLiteJob(db.QueryRowContext(ctx, query, taskKey))
}

func (r *SQLiteRepository) Update(ctx context.Context, taskKey string, fn UpdateFunc) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return dbx.InTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Job, error) {
		job, err := r.get(ctx, tx, taskKey)
		if err != nil {
			return nil, err
		}

		if err := fn(job); err != nil {
			return nil, err
		}

		progress, stats, err := encodeDetails(job)
		if err != nil {
			return nil, err
		}
		job.TaskKey = taskKey
		job.UpdatedAt = r.now().UTC()

		update :=
			`UPDATE jobs SET task_id = ?, status = ?, result = ?, error = ?, progress = ?,
			        retries = ?, stats = ?, updated_at = ?
			 WHERE task_key = ?`
		if _, err := tx.ExecContext(ctx, update,
			job.TaskID, string(job.Status), job.Result, job.Error, progress,
			job.Retries, stats, job.UpdatedAt.UnixNano(), taskKey); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		return job, nil
	})
}

func (r *SQLiteRepository) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	query := `SELECT ` + sqliteColumns + ` FROM jobs
		 WHERE status NOT IN (?, ?)
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, string(models.StatusFinished), string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func scanSQLiteJob(row scanner) (*models.Job, error) {
	var (
		job             models.Job
		status          string
		progress, stats sql.NullString
		created, update int64
	)

	err := row.Scan(&job.TaskKey, &job.TaskID, &job.ManifestURL, &status, &job.Result, &job.Error,
		&progress, &job.Retries, &stats, &created, &update)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	job.Status = models.Status(status)
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, update).UTC()
	if err := decodeDetails(&job, progress, stats); err != nil {
		return nil, err
	}
	return &job, nil
}
