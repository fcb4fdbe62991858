package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
)

// MemoryRepository keeps jobs in a map. Records do not survive a restart.
type MemoryRepository struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*models.Job), now: time.Now}
}

func (r *MemoryRepository) InsertIfAbsent(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[job.TaskKey]; ok {
		return existing.Clone(), false, nil
	}

	stored := job.Clone()
	now := r.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.jobs[job.TaskKey] = stored
	return stored.Clone(), true, nil
}

func (r *MemoryRepository) Get(ctx context.Context, taskKey string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[taskKey]
	if !ok {
		return nil, common.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, taskKey string, fn UpdateFunc) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[taskKey]
	if !ok {
		return nil, common.ErrNotFound
	}

	next := job.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.TaskKey = taskKey
	next.UpdatedAt = r.now().UTC()
	r.jobs[taskKey] = next
	return next.Clone(), nil
}

func (r *MemoryRepository) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Job
	for _, job := range r.jobs {
		if !job.Status.Terminal() {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
