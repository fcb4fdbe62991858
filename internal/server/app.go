// Package server wires the zipbuilder service: job store, build pipeline,
// S3 publisher, job coordinator, optional NATS and Prometheus, and the gRPC
// endpoint. It shuts everything down gracefully on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/filex"
	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	"github.com/dmitrijs2005/zipbuilder/internal/metrics"
	"github.com/dmitrijs2005/zipbuilder/internal/netx"
	"github.com/dmitrijs2005/zipbuilder/internal/retry"
	"github.com/dmitrijs2005/zipbuilder/internal/server/config"
	"github.com/dmitrijs2005/zipbuilder/internal/server/events"
	"github.com/dmitrijs2005/zipbuilder/internal/server/manifests"
	"github.com/dmitrijs2005/zipbuilder/internal/server/publisher"
	"github.com/dmitrijs2005/zipbuilder/internal/server/services"
	"github.com/dmitrijs2005/zipbuilder/internal/server/shared/db"
	"github.com/prometheus/client_golang/prometheus"

	gs "github.com/dmitrijs2005/zipbuilder/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	store      *db.Store
	jobService *services.JobService
	notifier   *events.NATSNotifier
	registry   *prometheus.Registry
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	policy := retry.Policy{Mode: retry.Mode(c.RetryBackoff), Initial: c.RetryInitialDelay, Max: c.RetryMaxDelay, MaxRetries: c.MaxRetries}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: retry policy: %v", common.ErrConfiguration, err)
	}

	workDir, err := filex.EnsureDir(c.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	store, err := db.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("job store init error: %w", err)
	}

	app := &App{config: c, logger: logger, store: store}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if c.MetricsAddr != "" {
		app.registry = prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(app.registry)
	}

	var notifier services.Notifier
	if c.NatsURL != "" {
		n, err := events.Connect(c.NatsURL, c.NatsSubject)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("nats connect error: %w", err)
		}
		app.notifier = n
		notifier = n
	}

	s3Client, err := publisher.NewS3Client(ctx, c)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("s3 client init error: %w", err)
	}

	fetcher := netx.NewFetcher(c.FetchTimeout, c.InsecureSkipVerify)
	builder := services.NewBuildService(
		manifests.NewResolver(fetcher),
		fetcher,
		publisher.New(s3Client, c),
		workDir,
		logger,
		recorder,
	)

	app.jobService = services.NewJobService(store.Jobs, builder, c, logger, recorder, notifier)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.jobService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(app.registry))

	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn(ctx, "metrics server shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "job_store", app.config.JobStore, "workers", app.config.Workers)

	app.initSignalHandler(cancelFunc)

	if err := app.jobService.Start(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		app.close(ctx)
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	app.logger.Info(ctx, "Stopping job service...")
	app.jobService.Stop(context.WithoutCancel(ctx))
	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.notifier != nil {
		app.notifier.Close()
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn(ctx, "job store close", "error", err)
	}
}
