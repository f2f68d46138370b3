package detector

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// DefaultExtensions are the file extensions treated as log files.
var DefaultExtensions = []string{".log", ".txt"}

// LogDir is a read-only view of an extracted log directory. Detectors only
// see it through an fs.FS, which has no write operations.
type LogDir struct {
	path string
	fsys fs.FS
}

// OpenLogDir returns a LogDir rooted at dir.
func OpenLogDir(dir string) (LogDir, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return LogDir{}, fmt.Errorf("open log directory: %w", err)
	}
	if !info.IsDir() {
		return LogDir{}, fmt.Errorf("open log directory: %s is not a directory", dir)
	}
	return LogDir{path: dir, fsys: os.DirFS(dir)}, nil
}

// NewLogDir wraps an arbitrary file system, mainly for tests.
func NewLogDir(dir string, fsys fs.FS) LogDir {
	return LogDir{path: dir, fsys: fsys}
}

func (d LogDir) Path() string { return d.path }

func (d LogDir) FS() fs.FS { return d.fsys }

// Open opens a file by its slash-separated path relative to the root.
func (d LogDir) Open(name string) (fs.File, error) {
	if d.fsys == nil {
		return nil, fs.ErrNotExist
	}
	return d.fsys.Open(name)
}

// Files walks the directory and returns the relative paths of regular files
// whose extension is in exts. When allow is non-empty only files whose base
// name appears in it are returned. Both comparisons ignore case.
func (d LogDir) Files(exts []string, allow []string) ([]string, error) {
	if d.fsys == nil {
		return nil, nil
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []string
	err := fs.WalkDir(d.fsys, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped, the rest of the walk continues
			if p == "." {
				return err
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if !hasExtension(p, exts) {
			return nil
		}
		if len(allow) > 0 && !containsFold(allow, path.Base(p)) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk log directory: %w", err)
	}
	return files, nil
}

func hasExtension(name string, exts []string) bool {
	ext := path.Ext(name)
	for _, e := range exts {
		// "" selects files without an extension
		if e == "" || e == "." {
			if ext == "" {
				return true
			}
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
