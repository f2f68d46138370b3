package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.uber.org/atomic"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
)

// IndexSnapshotKey is the cache key of the last good index fetched from the
// repository at root. Each repository keeps its own snapshot.
func IndexSnapshotKey(root string) string {
	return "remote-index-" + ContentVersion([]byte(root))[:16]
}

// RemoteBackend serves the flat index layout over HTTP:
//
//	GET <root>/index.json
//	GET <root>/<filename>
//	GET <root>/solutions/<code>.md
//
// Every successfully fetched index is snapshotted in the cache store and used
// when the repository cannot be reached.
type RemoteBackend struct {
	fetcher *Fetcher
	store   ports.CacheStore
	logger  hclog.Logger
	now     func() time.Time

	fromSnapshot atomic.Bool
}

func NewRemoteBackend(fetcher *Fetcher, store ports.CacheStore, logger hclog.Logger) *RemoteBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RemoteBackend{
		fetcher: fetcher,
		store:   store,
		logger:  logger.Named("remote"),
		now:     time.Now,
	}
}

func (b *RemoteBackend) ListDescriptors(ctx context.Context) ([]detector.Descriptor, error) {
	data, err := b.fetcher.Get(ctx, IndexFile)
	if err == nil {
		var descriptors []detector.Descriptor
		descriptors, err = ParseIndex(data, b.fetcher.URL)
		if err == nil {
			b.fromSnapshot.Store(false)
			b.snapshot(data)
			return descriptors, nil
		}
		err = &domainerr.FetchError{URL: b.fetcher.URL(IndexFile), Err: err}
	}

	snap, cacheErr := b.store.Get(ports.NamespaceIndex, b.snapshotKey())
	if cacheErr != nil {
		return nil, fmt.Errorf("%w: %w", domainerr.ErrSourceUnavailable, err)
	}
	descriptors, parseErr := ParseIndex(snap.Content, b.fetcher.URL)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %w (cached index unusable: %v)", domainerr.ErrSourceUnavailable, err, parseErr)
	}
	b.fromSnapshot.Store(true)
	b.logger.Warn("repository unreachable, using cached index", "error", err, "stored_at", snap.StoredAt, "count", len(descriptors))
	return descriptors, nil
}

// ServedSnapshot reports whether the last ListDescriptors answered from the
// cached index.
func (b *RemoteBackend) ServedSnapshot() bool { return b.fromSnapshot.Load() }

func (b *RemoteBackend) snapshotKey() string { return IndexSnapshotKey(b.fetcher.URL("")) }

func (b *RemoteBackend) snapshot(data []byte) {
	entry := ports.CacheEntry{Version: ContentVersion(data), StoredAt: b.now(), Content: data}
	if err := b.store.Put(ports.NamespaceIndex, b.snapshotKey(), entry); err != nil {
		b.logger.Warn("failed to snapshot index", "error", err)
	}
}

func (b *RemoteBackend) FetchBody(ctx context.Context, d detector.Descriptor) ([]byte, error) {
	if d.Source == "" {
		return nil, fmt.Errorf("%w: %s has no source", domainerr.ErrFetch, d.ID)
	}
	// Source already holds the absolute URL resolved from the index.
	data, err := b.fetcher.GetURL(ctx, d.Source)
	if errors.Is(err, domainerr.ErrNotFound) {
		// A body the index names but the repository lacks is still a failed fetch.
		return nil, fmt.Errorf("%w: body for %s: %w", domainerr.ErrFetch, d.ID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("body for %s: %w", d.ID, err)
	}
	return data, nil
}

func (b *RemoteBackend) FetchSolution(ctx context.Context, code string) ([]byte, error) {
	if !detector.IsErrorCode(code) {
		return nil, fmt.Errorf("%w: invalid error code %q", domainerr.ErrNotFound, code)
	}
	data, err := b.fetcher.Get(ctx, solutionPath(code))
	if err != nil {
		if errors.Is(err, domainerr.ErrNotFound) {
			return nil, fmt.Errorf("%w: no solution for %s: %w", domainerr.ErrNotFound, code, err)
		}
		return nil, fmt.Errorf("solution for %s: %w", code, err)
	}
	return data, nil
}

func (b *RemoteBackend) Location() ports.Location { return ports.LocationRemote }

func (b *RemoteBackend) String() string { return "remote " + b.fetcher.URL("") }
