// Package archive unpacks log archives into a working directory.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/core/domainerr"
)

const maxExtractedBytes = 4 << 30

// Extractor unpacks ZIP archives under a work directory. Only the latest
// extraction is kept: extracting a new archive removes the previous one.
type Extractor struct {
	workDir string
	logger  hclog.Logger
	now     func() time.Time

	mu      sync.Mutex
	current string
}

func NewExtractor(workDir string, logger hclog.Logger) *Extractor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Extractor{workDir: workDir, logger: logger.Named("archive"), now: time.Now}
}

// Current returns the directory of the latest extraction, if any.
func (e *Extractor) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Extract unpacks archivePath into <workDir>/<archive name>. If that directory
// already exists a _<unix time> suffix is appended.
func (e *Extractor) Extract(ctx context.Context, archivePath string) (string, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return "", fmt.Errorf("%w: %w", domainerr.ErrExtract, err)
	}
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a valid zip archive: %w", domainerr.ErrExtract, archivePath, err)
	}
	defer zr.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cleanupLocked()

	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create work directory: %w", domainerr.ErrExtract, err)
	}
	name := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	dest := filepath.Join(e.workDir, name)
	if _, err := os.Stat(dest); err == nil {
		dest = fmt.Sprintf("%s_%d", dest, e.now().Unix())
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create %s: %w", domainerr.ErrExtract, dest, err)
	}

	if err := extractAll(ctx, &zr.Reader, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("%w: %w", domainerr.ErrExtract, err)
	}

	e.current = dest
	e.logger.Debug("extracted archive", "archive", archivePath, "dir", dest, "entries", len(zr.File))
	return dest, nil
}

// Cleanup removes the latest extraction.
func (e *Extractor) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleanupLocked()
}

func (e *Extractor) cleanupLocked() error {
	if e.current == "" {
		return nil
	}
	dir := e.current
	e.current = ""
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("failed to remove extraction", "dir", dir, "error", err)
		return err
	}
	return nil
}

func extractAll(ctx context.Context, zr *zip.Reader, dest string) error {
	root := filepath.Clean(dest) + string(os.PathSeparator)
	var total int64

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid file path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			// symlinks and devices are skipped
			continue
		}

		n, err := extractFile(f, target, maxExtractedBytes-total)
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	if n > budget {
		return n, fmt.Errorf("archive expands beyond %d bytes", int64(maxExtractedBytes))
	}
	return n, nil
}
