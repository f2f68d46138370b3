// Package cache stores fetched detector bodies, index snapshots and solution
// documents on disk.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/domainerr"
)

const entrySuffix = ".json"

// Keys matching plainKey are used as file names directly; anything else is
// stored under "_" plus its hex SHA-256, which plainKey can never produce.
var plainKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FileStore keeps one JSON envelope per key under <dir>/<namespace>/.
// Writes go to a temp file in the same directory and are renamed into place,
// so readers see either the old entry or the new one.
type FileStore struct {
	dir    string
	logger hclog.Logger
	locks  sync.Map // namespace/key -> *sync.Mutex
	now    func() time.Time
}

// NewFileStore creates the cache directory if needed.
func NewFileStore(dir string, logger hclog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileStore{dir: dir, logger: logger.Named("cache"), now: time.Now}, nil
}

func (s *FileStore) Dir() string { return s.dir }

// Path returns where the entry for key lives, whether or not it exists.
func (s *FileStore) Path(ns ports.Namespace, key string) string {
	return filepath.Join(s.dir, string(ns), fileName(key)+entrySuffix)
}

// Get reads an entry. A missing or unreadable entry is reported as not found;
// a corrupt one is logged and treated the same way.
func (s *FileStore) Get(ns ports.Namespace, key string) (*ports.CacheEntry, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(ns, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: cache entry %s/%s", domainerr.ErrNotFound, ns, key)
		}
		return nil, fmt.Errorf("read cache entry %s/%s: %w", ns, key, err)
	}

	var entry ports.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("ignoring corrupt cache entry", "namespace", ns, "key", key, "error", err)
		return nil, fmt.Errorf("%w: cache entry %s/%s is corrupt", domainerr.ErrNotFound, ns, key)
	}
	return &entry, nil
}

// Put stores an entry. Writing the same version and content again is a no-op.
func (s *FileStore) Put(ns ports.Namespace, key string, entry ports.CacheEntry) error {
	if err := validKey(key); err != nil {
		return err
	}
	mu := s.lock(ns, key)
	mu.Lock()
	defer mu.Unlock()

	if current, err := s.Get(ns, key); err == nil &&
		current.Version == entry.Version && bytes.Equal(current.Content, entry.Content) {
		return nil
	}

	if entry.StoredAt.IsZero() {
		entry.StoredAt = s.now()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	target := s.Path(ns, key)
	if err := writeAtomic(target, data); err != nil {
		return fmt.Errorf("write cache entry %s/%s: %w", ns, key, err)
	}
	s.logger.Debug("cached entry", "namespace", ns, "key", key, "version", entry.Version, "bytes", len(entry.Content))
	return nil
}

// Clear removes every entry in a namespace and returns how many were removed.
func (s *FileStore) Clear(ns ports.Namespace) (int, error) {
	dir := filepath.Join(s.dir, string(ns))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entrySuffix) {
			continue
		}
		key := strings.TrimSuffix(e.Name(), entrySuffix)
		mu := s.lock(ns, key)
		mu.Lock()
		err := os.Remove(filepath.Join(dir, e.Name()))
		mu.Unlock()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove cache entry", "namespace", ns, "key", key, "error", err)
			continue
		}
		removed++
	}
	s.logger.Debug("cleared namespace", "namespace", ns, "removed", removed)
	return removed, nil
}

// Info counts entries and bytes per namespace.
func (s *FileStore) Info() (ports.CacheInfo, error) {
	info := ports.CacheInfo{Dir: s.dir, Namespaces: make(map[ports.Namespace]ports.NamespaceUsage)}
	for _, ns := range ports.Namespaces {
		entries, err := os.ReadDir(filepath.Join(s.dir, string(ns)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				info.Namespaces[ns] = ports.NamespaceUsage{}
				continue
			}
			return ports.CacheInfo{}, fmt.Errorf("failed to read cache directory: %w", err)
		}
		var usage ports.NamespaceUsage
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), entrySuffix) {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			usage.Entries++
			usage.Bytes += fi.Size()
		}
		info.Namespaces[ns] = usage
	}
	return info, nil
}

func (s *FileStore) lock(ns ports.Namespace, key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(string(ns)+"/"+key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func validKey(key string) error {
	if key == "" {
		return errors.New("empty cache key")
	}
	return nil
}

func fileName(key string) string {
	if plainKey.MatchString(key) && !strings.Contains(key, "..") {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "_" + hex.EncodeToString(sum[:])
}

// writeAtomic writes data next to target and renames it over target. A failure
// at any step leaves the previous file untouched.
func writeAtomic(target string, data []byte) (err error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
