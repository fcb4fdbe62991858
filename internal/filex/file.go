// Package filex contains filesystem helpers shared by the staging area and
// the archive extractor.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
)

// EnsureDir creates dir (and parents) if needed and returns its absolute path.
// An empty dir resolves to the system temp directory.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// SafeJoin joins rel onto root and guarantees the result stays inside root.
// Absolute paths and paths containing ".." that climb out of root are
// rejected with common.ErrPathEscape. "" and "." name root itself.
func SafeJoin(root, rel string) (string, error) {
	// zip entries and manifests use forward slashes regardless of OS
	rel = filepath.FromSlash(strings.TrimSpace(rel))

	if filepath.IsAbs(rel) || strings.HasPrefix(rel, string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", common.ErrPathEscape, rel)
	}

	cleaned := filepath.Clean(rel)
	if cleaned == "." {
		return root, nil
	}
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("%w: %q", common.ErrPathEscape, rel)
	}

	joined := filepath.Join(root, cleaned)

	back, err := filepath.Rel(root, joined)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", common.ErrPathEscape, rel)
	}

	return joined, nil
}
