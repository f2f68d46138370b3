package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
	"maadoctor.app/cli/internal/core/solution"
)

// SolutionResolver finds the remediation document for an error code. Remote
// documents are cached so they stay available offline.
type SolutionResolver struct {
	backend ports.SourceBackend
	store   ports.CacheStore
	logger  hclog.Logger
	now     func() time.Time
	group   singleflight.Group
}

func NewSolutionResolver(backend ports.SourceBackend, store ports.CacheStore, logger hclog.Logger) *SolutionResolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SolutionResolver{
		backend: backend,
		store:   store,
		logger:  logger.Named("solutions"),
		now:     time.Now,
	}
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns the document for code. A malformed code is
// domainerr.ErrNotFound. forceRefresh skips the cache for remote sources and
// overwrites it on success.
func (r *SolutionResolver) Resolve(ctx context.Context, code string, forceRefresh bool) (*solution.Document, error) {
	code = NormalizeCode(code)
	if !detector.IsErrorCode(code) {
		return nil, fmt.Errorf("%w: invalid error code %q", domainerr.ErrNotFound, code)
	}

	key := code
	if forceRefresh {
		key += "/refresh"
	}
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.resolve(ctx, code, forceRefresh)
	})
	if err != nil {
		return nil, err
	}
	doc := v.(*solution.Document)
	if shared {
		copied := *doc
		doc = &copied
	}
	return doc, nil
}

func (r *SolutionResolver) resolve(ctx context.Context, code string, forceRefresh bool) (*solution.Document, error) {
	if r.backend.Location() == ports.LocationLocal || r.store == nil {
		data, err := r.backend.FetchSolution(ctx, code)
		if err != nil {
			return nil, err
		}
		return &solution.Document{Code: code, Content: string(data), Origin: solution.OriginLocal, FetchedAt: r.now()}, nil
	}

	cached, cacheErr := r.store.Get(ports.NamespaceSolutions, code)
	if cacheErr == nil && !forceRefresh {
		return cachedDocument(code, cached), nil
	}

	data, err := r.backend.FetchSolution(ctx, code)
	if err == nil {
		fetchedAt := r.now()
		sum := sha256.Sum256(data)
		entry := ports.CacheEntry{Version: hex.EncodeToString(sum[:]), StoredAt: fetchedAt, Content: data}
		if err := r.store.Put(ports.NamespaceSolutions, code, entry); err != nil {
			r.logger.Warn("failed to cache solution", "code", code, "error", err)
		}
		return &solution.Document{Code: code, Content: string(data), Origin: solution.OriginRemote, FetchedAt: fetchedAt}, nil
	}

	// The repository answered that the document does not exist.
	if errors.Is(err, domainerr.ErrNotFound) {
		return nil, err
	}
	if cacheErr == nil {
		r.logger.Warn("fetch failed, using cached solution", "code", code, "stored_at", cached.StoredAt, "error", err)
		return cachedDocument(code, cached), nil
	}
	if !errors.Is(err, domainerr.ErrFetch) {
		err = fmt.Errorf("%w: %w", domainerr.ErrFetch, err)
	}
	return nil, err
}

func cachedDocument(code string, entry *ports.CacheEntry) *solution.Document {
	return &solution.Document{
		Code:      code,
		Content:   string(entry.Content),
		Origin:    solution.OriginCached,
		FetchedAt: entry.StoredAt,
	}
}
