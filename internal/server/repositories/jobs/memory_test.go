package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(key string) *models.Job {
	return &models.Job{
		TaskKey:     key,
		TaskID:      "6f1c2d4e-0000-4000-8000-000000000001",
		ManifestURL: "https://example.com/" + key + ".json",
		Status:      models.StatusQueued,
	}
}

// exerciseRepository runs the behaviour every store must share.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.Update(ctx, "missing", func(*models.Job) error { return nil })
	require.ErrorIs(t, err, common.ErrNotFound)

	created, ok, err := repo.InsertIfAbsent(ctx, newJob("k1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StatusQueued, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	dup := newJob("k1")
	dup.Status = models.StatusFailed
	existing, ok, err := repo.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.StatusQueued, existing.Status, "existing record wins")

	updated, err := repo.Update(ctx, "k1", func(j *models.Job) error {
		if err := j.Transition(models.StatusAccepted); err != nil {
			return err
		}
		j.Progress = &models.Progress{Stage: "manifest"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, updated.Status)

	_, err = repo.Update(ctx, "k1", func(j *models.Job) error {
		j.Status = models.StatusFinished
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := repo.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status, "failed update must not persist")
	require.NotNil(t, got.Progress)
	assert.Equal(t, "manifest", got.Progress.Stage)

	_, _, err = repo.InsertIfAbsent(ctx, newJob("k2"))
	require.NoError(t, err)
	_, err = repo.Update(ctx, "k2", func(j *models.Job) error {
		j.Status = models.StatusFinished
		j.Result = "https://b.s3.amazonaws.com/abc.zip"
		j.Stats = &models.Stats{Instructions: 2, Files: 3, ArchiveBytes: 99, Digest: "abc"}
		return nil
	})
	require.NoError(t, err)

	done, err := repo.Get(ctx, "k2")
	require.NoError(t, err)
	require.NotNil(t, done.Stats)
	assert.Equal(t, "abc", done.Stats.Digest)
	assert.Equal(t, "https://b.s3.amazonaws.com/abc.zip", done.Result)

	unfinished, err := repo.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, "k1", unfinished[0].TaskKey)
}

func exerciseConcurrentInsert(t *testing.T, repo Repository) {
	t.Helper()
	const n = 16

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.InsertIfAbsent(context.Background(), newJob("same"))
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, created.Load())

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(context.Background(), "same", func(j *models.Job) error {
				j.Retries++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(context.Background(), "same")
	require.NoError(t, err)
	assert.Equal(t, n, got.Retries, "updates must not be lost")
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())
}

func TestMemoryRepository_Concurrent(t *testing.T) {
	exerciseConcurrentInsert(t, NewMemoryRepository())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	job, _, err := repo.InsertIfAbsent(context.Background(), newJob("k"))
	require.NoError(t, err)

	job.Status = models.StatusFailed

	got, err := repo.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
}

func TestMemoryRepository_ListOrder(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	for _, k := range []string{"c", "a", "b"} {
		_, _, err := repo.InsertIfAbsent(context.Background(), newJob(k))
		require.NoError(t, err)
	}

	list, err := repo.ListUnfinished(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{list[0].TaskKey, list[1].TaskKey, list[2].TaskKey})
}
