// Package archive packs a staged directory tree into a zip and unpacks zip
// sources into the staging tree.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/filex"
	"github.com/klauspost/compress/zip"
)

// Entries carry a fixed timestamp and mode so the archive bytes depend only
// on the staged paths and their content.
var (
	fixedModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
	fixedMode    = fs.FileMode(0o644)
)

// Build writes every regular file under root into out as a deflated zip.
// Files are visited in lexical order and named by their slash-separated path
// relative to root. It returns the number of entries written.
func Build(root string, out io.Writer) (int, error) {
	zw := zip.NewWriter(out)

	entries := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		entries++
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return entries, fmt.Errorf("archive %s: %w", root, err)
	}

	if err := zw.Close(); err != nil {
		return entries, fmt.Errorf("finalize archive: %w", err)
	}
	return entries, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: fixedModTime,
	}
	hdr.SetMode(fixedMode)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Extract unpacks the zip at src into dest. Entries whose names would land
// outside dest fail the whole extraction; symlink entries are skipped. It
// returns the number of files written.
func Extract(src, dest string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	files := 0
	for _, f := range zr.File {
		mode := f.Mode()
		if mode&fs.ModeSymlink != 0 {
			continue
		}

		target, err := filex.SafeJoin(dest, f.Name)
		if err != nil {
			return files, fmt.Errorf("zip entry: %w", err)
		}

		isDir := mode.IsDir() || strings.HasSuffix(f.Name, "/")
		if target == dest {
			// "./" entries name dest itself
			if isDir {
				continue
			}
			return files, fmt.Errorf("zip entry: %w: %q", common.ErrPathEscape, f.Name)
		}

		if isDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func extractFile(f *zip.File, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return nil
}
