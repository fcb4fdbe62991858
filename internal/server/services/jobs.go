package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/cryptox"
	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	"github.com/dmitrijs2005/zipbuilder/internal/metrics"
	"github.com/dmitrijs2005/zipbuilder/internal/retry"
	"github.com/dmitrijs2005/zipbuilder/internal/server/config"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/dmitrijs2005/zipbuilder/internal/server/queue"
	"github.com/dmitrijs2005/zipbuilder/internal/server/repositories/jobs"
	"github.com/google/uuid"
)

// EventType names a lifecycle event applied to a job record.
type EventType string

const (
	EventAccepted EventType = "accepted"
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
	EventRetry    EventType = "retry"
)

// Event is one lifecycle step of a job.
type Event struct {
	TaskKey  string
	Type     EventType
	Progress *models.Progress
	Result   string
	Stats    *models.Stats
	Err      string
}

type eventResult struct {
	job *models.Job
	err error
}

type envelope struct {
	ev  Event
	ack chan eventResult
}

// Notifier is told about every persisted transition.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job) error
}

// TaskKey is the dedup key of a manifest URL: its hex SHA-256.
func TaskKey(manifestURL string) string {
	return cryptox.HashString(manifestURL)
}

// JobService deduplicates build requests and drives every job through its
// state machine. Workers never write job records themselves: they send
// events to a single dispatcher goroutine that applies each one as an
// atomic read-modify-write on the repository.
type JobService struct {
	repo           jobs.Repository
	builder        Builder
	queue          *queue.Queue
	policy         retry.Policy
	attemptTimeout time.Duration
	notifier       Notifier
	recorder       metrics.Recorder
	logger         logging.Logger
	newID          func() string

	events  chan envelope
	quit    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
	once    sync.Once
}

// NewJobService wires a JobService. notifier and recorder may be nil.
func NewJobService(repo jobs.Repository, builder Builder, cfg *config.Config, logger logging.Logger, recorder metrics.Recorder, notifier Notifier) *JobService {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	s := &JobService{
		repo:           repo,
		builder:        builder,
		policy:         retry.NewPolicy(cfg.RetryBackoff, cfg.RetryInitialDelay, cfg.RetryMaxDelay, cfg.MaxRetries),
		attemptTimeout: cfg.AttemptTimeout,
		notifier:       notifier,
		recorder:       recorder,
		logger:         logger.With("module", "jobs"),
		newID:          uuid.NewString,
		events:         make(chan envelope),
		quit:           make(chan struct{}),
	}

	s.queue = queue.New(cfg.QueueSize, cfg.Workers, s.run, logger)
	s.queue.SetRecorder(recorder)
	return s
}

// Start launches the dispatcher and the worker pool, then re-enqueues jobs a
// previous process left unfinished.
func (s *JobService) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.wg.Add(1)
	go s.dispatch(context.WithoutCancel(ctx))

	s.queue.Start(ctx)

	n, err := s.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "re-enqueued unfinished jobs", "count", n)
	}
	return nil
}

// Stop halts the workers first, so no event is in flight, then the
// dispatcher. Interrupted jobs keep their state and are recovered on the
// next Start.
func (s *JobService) Stop(ctx context.Context) {
	s.once.Do(func() {
		s.queue.Stop(ctx)
		s.running.Store(false)
		close(s.quit)
		s.wg.Wait()
	})
}

// Submit returns the job for manifestURL, creating and scheduling it when no
// record exists. Existing records, terminal ones included, are returned as
// stored and never rebuilt.
func (s *JobService) Submit(ctx context.Context, manifestURL string) (*models.Job, error) {
	if err := validateManifestURL(manifestURL); err != nil {
		return nil, err
	}

	key := TaskKey(manifestURL)
	job, created, err := s.repo.InsertIfAbsent(ctx, &models.Job{
		TaskKey:     key,
		TaskID:      s.newID(),
		ManifestURL: manifestURL,
		Status:      models.StatusQueued,
	})
	if err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	s.recorder.IncSubmission(created)
	if !created {
		return job, nil
	}

	s.logger.Info(ctx, "job queued", "task_key", key, "manifest_url", manifestURL)
	s.notify(ctx, job)

	if err := s.queue.Enqueue(key); err != nil {
		s.logger.Warn(ctx, "job not scheduled", "task_key", key, "error", err)
		failed, emitErr := s.emit(ctx, Event{TaskKey: key, Type: EventFailed, Err: err.Error()})
		if emitErr != nil {
			return nil, errors.Join(err, emitErr)
		}
		s.recorder.IncJobOutcome(metrics.OutcomeFailed)
		return failed, nil
	}

	return job, nil
}

// GetStatus returns the stored job or common.ErrNotFound.
func (s *JobService) GetStatus(ctx context.Context, taskKey string) (*models.Job, error) {
	return s.repo.Get(ctx, taskKey)
}

// Recover resets every non-terminal job to queued and schedules it again.
// It returns the number of jobs scheduled.
func (s *JobService) Recover(ctx context.Context) (int, error) {
	pending, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, job := range pending {
		if job.Status != models.StatusQueued {
			_, err := s.repo.Update(ctx, job.TaskKey, func(j *models.Job) error {
				if j.Status.Terminal() {
					return fmt.Errorf("%w: job finished meanwhile", common.ErrInvalidTransition)
				}
				j.Status = models.StatusQueued
				j.Progress = nil
				return nil
			})
			if err != nil {
				s.logger.Warn(ctx, "cannot reset job", "task_key", job.TaskKey, "error", err)
				continue
			}
		}

		if err := s.queue.Enqueue(job.TaskKey); err != nil {
			if _, emitErr := s.emit(ctx, Event{TaskKey: job.TaskKey, Type: EventFailed, Err: err.Error()}); emitErr != nil {
				s.logger.Error(ctx, "cannot fail unscheduled job", "task_key", job.TaskKey, "error", emitErr)
			}
			continue
		}
		n++
	}
	return n, nil
}

// emit hands ev to the dispatcher and waits until it is persisted.
func (s *JobService) emit(ctx context.Context, ev Event) (*models.Job, error) {
	if !s.running.Load() {
		return nil, common.ErrQueueStopped
	}

	env := envelope{ev: ev, ack: make(chan eventResult, 1)}
	select {
	case s.events <- env:
	case <-s.quit:
		return nil, common.ErrQueueStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res := <-env.ack
	return res.job, res.err
}

func (s *JobService) dispatch(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.quit:
			return
		case env := <-s.events:
			job, err := s.repo.Update(ctx, env.ev.TaskKey, func(j *models.Job) error {
				return applyEvent(j, env.ev)
			})
			if err != nil {
				s.logger.Warn(ctx, "event rejected", "task_key", env.ev.TaskKey, "event", env.ev.Type, "error", err)
			} else {
				s.notify(ctx, job)
			}
			env.ack <- eventResult{job: job, err: err}
		}
	}
}

func applyEvent(job *models.Job, ev Event) error {
	switch ev.Type {
	case EventAccepted:
		return job.Transition(models.StatusAccepted)
	case EventStarted:
		return job.Transition(models.StatusStarted)
	case EventProgress:
		if err := job.Transition(models.StatusProgress); err != nil {
			return err
		}
		job.Progress = ev.Progress
	case EventFinished:
		if err := job.Transition(models.StatusFinished); err != nil {
			return err
		}
		job.Result = ev.Result
		job.Stats = ev.Stats
		job.Error = ""
	case EventFailed:
		if err := job.Transition(models.StatusFailed); err != nil {
			return err
		}
		job.Error = ev.Err
	case EventRetry:
		if err := job.Transition(models.StatusQueued); err != nil {
			return err
		}
		job.Retries++
		job.Error = ev.Err
	default:
		return fmt.Errorf("unknown event %q", ev.Type)
	}
	return nil
}

func (s *JobService) notify(ctx context.Context, job *models.Job) {
	if s.notifier == nil || job == nil {
		return
	}
	if err := s.notifier.Notify(ctx, job); err != nil {
		s.logger.Warn(ctx, "lifecycle notification failed", "task_key", job.TaskKey, "status", job.Status, "error", err)
	}
}

// run is the queue handler: it executes attempts for one job until the job
// finishes, fails or the queue stops.
func (s *JobService) run(ctx context.Context, key string) {
	job, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logger.Error(ctx, "cannot load job", "task_key", key, "error", err)
		return
	}
	ctx = logging.ContextWith(ctx, "task_key", key, "task_id", job.TaskID)
	log := s.logger

	retries := job.Retries
	for {
		if _, err := s.emit(ctx, Event{TaskKey: key, Type: EventAccepted}); err != nil {
			log.Warn(ctx, "cannot accept job", "error", err)
			return
		}
		if _, err := s.emit(ctx, Event{TaskKey: key, Type: EventStarted}); err != nil {
			log.Warn(ctx, "cannot start job", "error", err)
			return
		}

		res, err := s.attempt(ctx, job.ManifestURL, key)
		if err == nil {
			if _, err := s.emit(ctx, Event{TaskKey: key, Type: EventFinished, Result: res.URL, Stats: &res.Stats}); err != nil {
				log.Error(ctx, "cannot record result", "error", err)
				return
			}
			s.recorder.IncJobOutcome(metrics.OutcomeFinished)
			log.Info(ctx, "job finished", "url", res.URL, "retries", retries)
			return
		}

		if ctx.Err() != nil {
			log.Info(ctx, "job interrupted by shutdown", "error", err)
			return
		}

		if !retryable(err) || !s.policy.Allow(retries) {
			if _, emitErr := s.emit(ctx, Event{TaskKey: key, Type: EventFailed, Err: err.Error()}); emitErr != nil {
				log.Error(ctx, "cannot record failure", "error", emitErr)
				return
			}
			s.recorder.IncJobOutcome(metrics.OutcomeFailed)
			log.Warn(ctx, "job failed", "error", err, "retries", retries)
			return
		}

		retries++
		if _, emitErr := s.emit(ctx, Event{TaskKey: key, Type: EventRetry, Err: err.Error()}); emitErr != nil {
			log.Error(ctx, "cannot record retry", "error", emitErr)
			return
		}
		s.recorder.IncJobOutcome(metrics.OutcomeRetried)

		delay := s.policy.Delay(retries)
		log.Warn(ctx, "transient build error, retrying", "error", err, "retry", retries, "max_retries", s.policy.MaxRetries, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// attempt runs one build. A panicking builder is reported as a failed,
// non-retryable attempt so the job still reaches a terminal state.
func (s *JobService) attempt(ctx context.Context, manifestURL, key string) (res *BuildResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "build panicked", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("build panicked: %v", r)
		}
	}()

	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}

	return s.builder.Build(ctx, manifestURL, func(p models.Progress) {
		if _, err := s.emit(ctx, Event{TaskKey: key, Type: EventProgress, Progress: &p}); err != nil {
			s.logger.Debug(ctx, "progress not recorded", "task_key", key, "error", err)
		}
	})
}

func retryable(err error) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func validateManifestURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: manifest url: %v", common.ErrConfiguration, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: manifest url must be absolute http(s), got %q", common.ErrConfiguration, raw)
	}
	return nil
}
