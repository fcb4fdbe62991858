// Package streams turns manifest source and target specs into readers and
// writers the build executor can copy between.
package streams

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/server/archive"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/dmitrijs2005/zipbuilder/internal/server/staging"
)

// Opener fetches url sources. *netx.Fetcher satisfies it.
type Opener interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// OpenSource returns a reader for spec. Nothing is fetched or opened until
// the first Read. Reads fail once ctx is done.
func OpenSource(ctx context.Context, spec models.SourceSpec, opener Opener) (io.ReadCloser, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var rc io.ReadCloser
	switch spec.Kind {
	case models.SourceURL:
		if opener == nil {
			return nil, fmt.Errorf("%w: no fetcher for url source", common.ErrConfiguration)
		}
		u := spec.Value
		rc = &lazyReader{open: func() (io.ReadCloser, error) { return opener.Open(ctx, u) }}
	case models.SourceString:
		rc = io.NopCloser(strings.NewReader(spec.Value))
	case models.SourceFile:
		p := spec.Value
		rc = &lazyReader{open: func() (io.ReadCloser, error) { return os.Open(p) }}
	}

	rc = &ctxReader{ctx: ctx, rc: rc}

	if spec.Decode == common.Base64 {
		rc = &readCloser{Reader: base64.NewDecoder(base64.StdEncoding, rc), closer: rc}
	}
	return rc, nil
}

// OpenTarget returns a writer for spec rooted in area. A file target writes
// straight into the staged file; an unzip target collects the bytes and
// extracts them into the folder when closed.
func OpenTarget(area *staging.Area, spec models.TargetSpec) (io.WriteCloser, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case models.TargetFile:
		f, err := area.CreateFile(spec.Path)
		if err != nil {
			return nil, err
		}
		if spec.Encode == common.Base64 {
			return &encodeWriter{enc: base64.NewEncoder(base64.StdEncoding, f), f: f}, nil
		}
		return f, nil

	case models.TargetUnzip:
		dir, err := area.AddFolder(spec.Path)
		if err != nil {
			return nil, err
		}
		spool, err := area.SpoolFile()
		if err != nil {
			return nil, err
		}
		return &unzipSink{spool: spool, dest: dir}, nil
	}

	return nil, fmt.Errorf("%w: unknown target kind %q", common.ErrConfiguration, spec.Kind)
}

type lazyReader struct {
	open func() (io.ReadCloser, error)
	rc   io.ReadCloser
	err  error
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.rc == nil && l.err == nil {
		l.rc, l.err = l.open()
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.rc.Read(p)
}

func (l *lazyReader) Close() error {
	if l.rc == nil {
		return nil
	}
	return l.rc.Close()
}

type ctxReader struct {
	ctx context.Context
	rc  io.ReadCloser
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.rc.Read(p)
}

func (c *ctxReader) Close() error { return c.rc.Close() }

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }

type encodeWriter struct {
	enc io.WriteCloser
	f   *os.File
}

func (e *encodeWriter) Write(p []byte) (int, error) { return e.enc.Write(p) }

// Close flushes the pending base64 quantum before closing the file.
func (e *encodeWriter) Close() error {
	return errors.Join(e.enc.Close(), e.f.Close())
}

type unzipSink struct {
	spool *os.File
	dest  string
	files int
}

func (u *unzipSink) Write(p []byte) (int, error) { return u.spool.Write(p) }

func (u *unzipSink) Close() error {
	if err := u.spool.Close(); err != nil {
		return err
	}
	n, err := archive.Extract(u.spool.Name(), u.dest)
	u.files = n
	return err
}

// Abort releases a target after a failed transfer. An unzip target drops its
// spool without extracting; other targets are closed.
func Abort(w io.WriteCloser) error {
	if u, ok := w.(*unzipSink); ok {
		return u.spool.Close()
	}
	return w.Close()
}

// Extracted reports how many files an unzip target produced, or -1 for
// other writers.
func Extracted(w io.WriteCloser) int {
	if u, ok := w.(*unzipSink); ok {
		return u.files
	}
	return -1
}
