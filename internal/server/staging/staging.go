// Package staging owns the temporary resources of one build: the directory
// tree that gets archived, the output archive file and spool files used while
// extracting nested archives. Everything is released by Close.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/filex"
)

// Area is a build-scoped staging area. It is not shared between builds.
type Area struct {
	parent string

	mu       sync.Mutex
	root     string
	output   string
	cleanups []func() error
	closed   bool
}

// New returns an Area whose temporary resources are created under parent
// (the system temp dir when empty). Nothing touches the disk until the
// first resource is requested.
func New(parent string) *Area {
	return &Area{parent: parent}
}

// AddCleanup registers fn to run on Close. Cleanups run in reverse
// registration order.
func (a *Area) AddCleanup(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanups = append(a.cleanups, fn)
}

// Root returns the staging root, creating it on first use.
func (a *Area) Root() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return "", errors.New("staging area is closed")
	}
	if a.root != "" {
		return a.root, nil
	}

	parent, err := filex.EnsureDir(a.parent)
	if err != nil {
		return "", err
	}

	root, err := os.MkdirTemp(parent, "zipbuilder-root-")
	if err != nil {
		return "", fmt.Errorf("create staging root: %w", err)
	}

	a.root = root
	a.cleanups = append(a.cleanups, func() error { return os.RemoveAll(root) })
	return root, nil
}

// Resolve maps a manifest-relative path to an absolute path inside the root.
func (a *Area) Resolve(rel string) (string, error) {
	root, err := a.Root()
	if err != nil {
		return "", err
	}
	return filex.SafeJoin(root, rel)
}

// AddFolder creates rel (recursively, idempotently) inside the root.
func (a *Area) AddFolder(rel string) (string, error) {
	dir, err := a.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder %s: %w", rel, err)
	}
	return dir, nil
}

// CreateFile creates rel inside the root, including parent directories, and
// opens it for writing. An existing file is truncated. rel must name a file,
// so "" and "." are rejected.
func (a *Area) CreateFile(rel string) (*os.File, error) {
	root, err := a.Root()
	if err != nil {
		return nil, err
	}
	path, err := filex.SafeJoin(root, rel)
	if err != nil {
		return nil, err
	}
	if path == root {
		return nil, fmt.Errorf("%w: file target needs a name, got %q", common.ErrConfiguration, rel)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent of %s: %w", rel, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file %s: %w", rel, err)
	}
	return f, nil
}

// OutputFile creates the temporary archive file. It lives outside the root so
// it never ends up inside the archive it holds.
func (a *Area) OutputFile() (*os.File, error) {
	f, err := a.tempFile("zipbuilder-*.zip")
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.output = f.Name()
	a.mu.Unlock()

	return f, nil
}

// OutputPath is the path of the file created by OutputFile, or "".
func (a *Area) OutputPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output
}

// SpoolFile creates a scratch file outside the root, removed on Close.
func (a *Area) SpoolFile() (*os.File, error) {
	return a.tempFile("zipbuilder-spool-*")
}

func (a *Area) tempFile(pattern string) (*os.File, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, errors.New("staging area is closed")
	}

	parent, err := filex.EnsureDir(a.parent)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	name := f.Name()
	a.AddCleanup(func() error {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
	return f, nil
}

// Close runs every registered cleanup once, newest first. Later calls are
// no-ops. All cleanup errors are returned joined.
func (a *Area) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cleanups := a.cleanups
	a.cleanups = nil
	a.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
