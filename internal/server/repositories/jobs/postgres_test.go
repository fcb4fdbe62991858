package jobs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobColumns = []string{"task_key", "task_id", "manifest_url", "status", "result", "error", "progress", "retries", "stats", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func jobRow(now time.Time, status string, progress any) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumns).
		AddRow("k", "6f1c2d4e-0000-4000-8000-000000000001", "https://example.com/m.json", status, "", "", progress, 1, nil, now, now)
}

func TestPostgres_InsertIfAbsent_Created(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO jobs`)).
		WithArgs("k", sqlmock.AnyArg(), "https://example.com/k.json", "queued", "", "", sqlmock.AnyArg(), 0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job, created, err := repo.InsertIfAbsent(context.Background(), newJob("k"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, now, job.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertIfAbsent_Existing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO jobs .* ON CONFLICT \(task_key\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))
	mock.ExpectQuery(`SELECT .* FROM jobs WHERE task_key = \$1`).
		WithArgs("k").
		WillReturnRows(jobRow(now, "progress", `{"stage":"materialize","done":1,"total":2}`))

	job, created, err := repo.InsertIfAbsent(context.Background(), newJob("k"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.StatusProgress, job.Status)
	require.NotNil(t, job.Progress)
	assert.Equal(t, models.Progress{Stage: "materialize", Done: 1, Total: 2}, *job.Progress)
	assert.Nil(t, job.Stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertIfAbsent_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO jobs`).WillReturnError(errors.New("conn reset"))

	_, _, err := repo.InsertIfAbsent(context.Background(), newJob("k"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestPostgres_Get_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs WHERE task_key = \$1`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgres_Update_Commit(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	later := now.Add(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM jobs WHERE task_key = \$1 FOR UPDATE`).
		WithArgs("k").
		WillReturnRows(jobRow(now, "started", nil))
	mock.ExpectQuery(`UPDATE jobs SET .* WHERE task_key = \$1`).
		WithArgs("k", sqlmock.AnyArg(), "finished", "https://b.s3.amazonaws.com/d.zip", "", sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(later))
	mock.ExpectCommit()

	job, err := repo.Update(context.Background(), "k", func(j *models.Job) error {
		if err := j.Transition(models.StatusFinished); err != nil {
			return err
		}
		j.Result = "https://b.s3.amazonaws.com/d.zip"
		j.Stats = &models.Stats{Digest: "d"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, job.Status)
	assert.Equal(t, later, job.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Update_RollbackOnFnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FOR UPDATE`).
		WithArgs("k").
		WillReturnRows(jobRow(time.Now(), "finished", nil))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "k", func(j *models.Job) error {
		return j.Transition(models.StatusStarted)
	})
	require.ErrorIs(t, err, common.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Update_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FOR UPDATE`).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "k", func(*models.Job) error { return nil })
	require.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListUnfinished(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM jobs\s+WHERE status NOT IN \(\$1, \$2\)\s+ORDER BY created_at`).
		WithArgs("finished", "failed").
		WillReturnRows(jobRow(now, "queued", nil))

	list, err := repo.ListUnfinished(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusQueued, list[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListUnfinished_BadJSON(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM jobs`).
		WillReturnRows(jobRow(time.Now(), "progress", `{not json`))

	_, err := repo.ListUnfinished(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode progress")
}
