package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/mock"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
)

// Mock implementations

type MockSourceBackend struct {
	mock.Mock
	location ports.Location
}

func newMockBackend(location ports.Location) *MockSourceBackend {
	return &MockSourceBackend{location: location}
}

func (m *MockSourceBackend) ListDescriptors(ctx context.Context) ([]detector.Descriptor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]detector.Descriptor), args.Error(1)
}

func (m *MockSourceBackend) FetchBody(ctx context.Context, d detector.Descriptor) ([]byte, error) {
	args := m.Called(ctx, d.ID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSourceBackend) FetchSolution(ctx context.Context, code string) ([]byte, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSourceBackend) Location() ports.Location { return m.location }

func (m *MockSourceBackend) String() string { return fmt.Sprintf("mock %s", m.location) }

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, path string) (detector.Detector, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(detector.Detector), args.Error(1)
}

func (m *MockLauncher) Close() error {
	return m.Called().Error(0)
}

// memStore is an in-memory ports.CacheStore.
type memStore struct {
	mu      sync.Mutex
	entries map[string]ports.CacheEntry
	puts    int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]ports.CacheEntry)}
}

func (s *memStore) Get(ns ports.Namespace, key string) (*ports.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[string(ns)+"/"+key]
	if !ok {
		return nil, domainerr.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) Put(ns ports.Namespace, key string, entry ports.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	s.entries[string(ns)+"/"+key] = entry
	s.puts++
	return nil
}

func (s *memStore) Path(ns ports.Namespace, key string) string {
	return filepath.Join("/cache", string(ns), key+".json")
}

func (s *memStore) Clear(ns ports.Namespace) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	prefix := string(ns) + "/"
	for k := range s.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) Info() (ports.CacheInfo, error) {
	return ports.CacheInfo{Dir: "/cache"}, nil
}

// closingDetector records whether it was released.
type closingDetector struct {
	detector.Detector
	mu     sync.Mutex
	closed bool
}

func (c *closingDetector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *closingDetector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fstestLogs builds a log tree from name, content pairs.
func fstestLogs(pairs ...string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for i := 0; i+1 < len(pairs); i += 2 {
		fsys[pairs[i]] = &fstest.MapFile{Data: []byte(pairs[i+1])}
	}
	return fsys
}
