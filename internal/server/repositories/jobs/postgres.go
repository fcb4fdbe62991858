package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/dbx"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
)

const pgColumns = `task_key, task_id, manifest_url, status, result, error, progress, retries, stats, created_at, updated_at`

// PostgresRepository stores jobs in PostgreSQL. Update locks the row with
// SELECT ... FOR UPDATE inside a transaction.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	progress, stats, err := encodeDetails(job)
	if err != nil {
		return nil, false, err
	}

	query :=
		`INSERT INTO jobs (task_key, task_id, manifest_url, status, result, error, progress, retries, stats, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		 ON CONFLICT (task_key) DO NOTHING
		 RETURNING created_at, updated_at
		 `

	stored := job.Clone()
	err = r.db.QueryRowContext(ctx, query,
		job.TaskKey, job.TaskID, job.ManifestURL, string(job.Status), job.Result, job.Error,
		progress, job.Retries, stats).Scan(&stored.CreatedAt, &stored.UpdatedAt)

	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	existing, err := r.Get(ctx, job.TaskKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) Get(ctx context.Context, taskKey string) (*models.Job, error) {
	query := `SELECT ` + pgColumns + ` FROM jobs WHERE task_key = $1`
	return scanPgJob(r.db.QueryRowContext(ctx, query, taskKey))
}

func (r *PostgresRepository) Update(ctx context.Context, taskKey string, fn UpdateFunc) (*models.Job, error) {
	return dbx.InTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Job, error) {
		query := `SELECT ` + pgColumns + ` FROM jobs WHERE task_key = $1 FOR UPDATE`
		job, err := scanPgJob(tx.QueryRowContext(ctx, query, taskKey))
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

		update :=
			`UPDATE jobs SET task_id = $2, status = $3, result = $4, error = $5, progress = $6,
			        retries = $7, stats = $8, updated_at = now()
			 WHERE task_key = $1
			 RETURNING updated_at
			 `
		if err := tx.QueryRowContext(ctx, update,
			taskKey, job.TaskID, string(job.Status), job.Result, job.Error, progress,
			job.Retries, stats).Scan(&job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		job.TaskKey = taskKey
		return job, nil
	})
}

func (r *PostgresRepository) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	query := `SELECT ` + pgColumns + ` FROM jobs
		 WHERE status NOT IN ($1, $2)
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, string(models.StatusFinished), string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanPgJob(rows)
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

func scanPgJob(row scanner) (*models.Job, error) {
	var (
		job             models.Job
		status          string
		progress, stats sql.NullString
		created, update time.Time
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
	job.CreatedAt = created
	job.UpdatedAt = update
	if err := decodeDetails(&job, progress, stats); err != nil {
		return nil, err
	}
	return &job, nil
}
