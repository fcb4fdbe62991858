// Package services contains the server-side business logic: BuildService
// turns a manifest URL into a published archive, JobService schedules builds
// and tracks their lifecycle.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	"github.com/dmitrijs2005/zipbuilder/internal/metrics"
	"github.com/dmitrijs2005/zipbuilder/internal/netx"
	"github.com/dmitrijs2005/zipbuilder/internal/server/archive"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/dmitrijs2005/zipbuilder/internal/server/publisher"
	"github.com/dmitrijs2005/zipbuilder/internal/server/staging"
	"github.com/dmitrijs2005/zipbuilder/internal/server/streams"
	"github.com/klauspost/compress/zip"
)

// Build stages, reported in progress events and BuildError.
const (
	StageManifest    = "manifest"
	StageMaterialize = "materialize"
	StageArchive     = "archive"
	StagePublish     = "publish"
)

// ErrorKind tells the job layer whether a failed build is worth retrying.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTransient     ErrorKind = "transient"
	KindResource      ErrorKind = "resource"
)

// BuildError is returned by BuildService.Build for every failure.
// Instruction is the zero-based index of the failing instruction, or -1.
type BuildError struct {
	Stage       string
	Instruction int
	Kind        ErrorKind
	Err         error
}

func (e *BuildError) Error() string {
	if e.Instruction >= 0 {
		return fmt.Sprintf("%s (instruction %d, %s): %v", e.Stage, e.Instruction, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *BuildError) Retryable() bool { return e.Kind == KindTransient }

func newBuildError(ctx context.Context, stage string, instruction int, err error) *BuildError {
	// transports report an aborted read in their own words
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = fmt.Errorf("%w: %v", cerr, err)
	}
	return &BuildError{Stage: stage, Instruction: instruction, Kind: classify(stage, err), Err: err}
}

func classify(stage string, err error) ErrorKind {
	var (
		se      *netx.StatusError
		netErr  net.Error
		corrupt base64.CorruptInputError
	)

	switch {
	case errors.Is(err, common.ErrConfiguration),
		errors.Is(err, common.ErrPathEscape),
		errors.Is(err, zip.ErrFormat),
		errors.As(err, &corrupt):
		return KindConfiguration
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindTransient
	case errors.As(err, &se):
		if se.Temporary() {
			return KindTransient
		}
		return KindConfiguration
	case errors.As(err, &netErr):
		return KindTransient
	case errors.Is(err, os.ErrNotExist):
		// a local file source that is not there
		return KindConfiguration
	}

	if stage == StageManifest || stage == StagePublish {
		return KindTransient
	}
	return KindResource
}

// ProgressFunc receives progress after each instruction and stage boundary.
type ProgressFunc func(models.Progress)

// BuildResult is the outcome of a successful build.
type BuildResult struct {
	URL   string
	Stats models.Stats
}

// ManifestResolver is implemented by *manifests.Resolver.
type ManifestResolver interface {
	Resolve(ctx context.Context, manifestURL string) (*models.Manifest, error)
}

// ArchivePublisher is implemented by *publisher.Publisher.
type ArchivePublisher interface {
	Publish(ctx context.Context, path string) (*publisher.Publication, error)
}

// Builder is what JobService runs for each attempt.
type Builder interface {
	Build(ctx context.Context, manifestURL string, progress ProgressFunc) (*BuildResult, error)
}

// BuildService executes manifests. Every call owns a fresh staging area.
type BuildService struct {
	resolver  ManifestResolver
	opener    streams.Opener
	publisher ArchivePublisher
	workDir   string
	logger    logging.Logger
	recorder  metrics.Recorder
}

func NewBuildService(resolver ManifestResolver, opener streams.Opener, pub ArchivePublisher, workDir string, logger logging.Logger, recorder metrics.Recorder) *BuildService {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &BuildService{
		resolver:  resolver,
		opener:    opener,
		publisher: pub,
		workDir:   workDir,
		logger:    logger.With("module", "build"),
		recorder:  recorder,
	}
}

// Build fetches the manifest, realizes its instructions in order into a
// staging area, archives the result and publishes it. The staging area is
// released before Build returns, whatever the outcome.
func (s *BuildService) Build(ctx context.Context, manifestURL string, progress ProgressFunc) (*BuildResult, error) {
	if progress == nil {
		progress = func(models.Progress) {}
	}
	started := time.Now()
	log := s.logger.With("manifest_url", manifestURL)

	area := staging.New(s.workDir)
	defer func() {
		if cerr := area.Close(); cerr != nil {
			log.Warn(ctx, "staging cleanup failed", "error", cerr)
		}
	}()

	progress(models.Progress{Stage: StageManifest})
	stageStart := time.Now()
	manifest, err := s.resolver.Resolve(ctx, manifestURL)
	if err != nil {
		return nil, newBuildError(ctx, StageManifest, -1, err)
	}
	s.recorder.ObserveStageDuration(StageManifest, time.Since(stageStart))

	total := len(manifest.Contents)
	progress(models.Progress{Stage: StageMaterialize, Total: total})
	stageStart = time.Now()
	for i, insn := range manifest.Contents {
		if err := s.transfer(ctx, area, insn); err != nil {
			return nil, newBuildError(ctx, StageMaterialize, i, err)
		}
		log.Debug(ctx, "instruction done", "index", i, "from", insn.From.Kind, "to", insn.To.Path)
		progress(models.Progress{Stage: StageMaterialize, Done: i + 1, Total: total})
	}
	s.recorder.ObserveStageDuration(StageMaterialize, time.Since(stageStart))

	progress(models.Progress{Stage: StageArchive, Done: total, Total: total})
	stageStart = time.Now()
	outPath, files, err := s.archive(area)
	if err != nil {
		return nil, newBuildError(ctx, StageArchive, -1, err)
	}
	s.recorder.ObserveStageDuration(StageArchive, time.Since(stageStart))

	progress(models.Progress{Stage: StagePublish, Done: total, Total: total})
	stageStart = time.Now()
	pub, err := s.publisher.Publish(ctx, outPath)
	if err != nil {
		return nil, newBuildError(ctx, StagePublish, -1, err)
	}
	s.recorder.ObserveStageDuration(StagePublish, time.Since(stageStart))

	elapsed := time.Since(started)
	s.recorder.ObserveBuildDuration(elapsed)
	s.recorder.ObserveArchiveBytes(pub.Size)
	log.Info(ctx, "archive published", "url", pub.URL, "files", files, "bytes", pub.Size)

	return &BuildResult{
		URL: pub.URL,
		Stats: models.Stats{
			Instructions: total,
			Files:        files,
			ArchiveBytes: pub.Size,
			Digest:       pub.Digest,
			DurationMs:   elapsed.Milliseconds(),
		},
	}, nil
}

// transfer pipes one source into one target and closes both. For unzip
// targets the extraction happens on close, so its error counts too.
func (s *BuildService) transfer(ctx context.Context, area *staging.Area, insn models.ContentInstruction) error {
	src, err := streams.OpenSource(ctx, insn.From, s.opener)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := streams.OpenTarget(area, insn.To)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = streams.Abort(dst)
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if n := streams.Extracted(dst); n >= 0 {
		s.logger.Debug(ctx, "archive extracted", "folder", insn.To.Path, "files", n)
	}
	return nil
}

func (s *BuildService) archive(area *staging.Area) (string, int, error) {
	root, err := area.Root()
	if err != nil {
		return "", 0, err
	}

	out, err := area.OutputFile()
	if err != nil {
		return "", 0, err
	}

	files, err := archive.Build(root, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	return out.Name(), files, nil
}
