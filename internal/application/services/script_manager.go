package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
	"maadoctor.app/cli/internal/core/report"
)

const syncStatusKey = "sync-status"

// SyncStatus describes the last successful discovery.
type SyncStatus struct {
	Source          string         `json:"source"`
	Location        ports.Location `json:"location"`
	Synced          bool           `json:"synced"`
	LastSync        time.Time      `json:"last_sync"`
	DescriptorCount int            `json:"descriptor_count"`
}

// SyncResult is what a full sync fetched.
type SyncResult struct {
	Descriptors  int                 `json:"descriptors"`
	Loaded       int                 `json:"loaded"`
	Diagnostics  []report.Diagnostic `json:"diagnostics"`
	FromSnapshot bool                `json:"from_snapshot,omitempty"`
}

// ScriptManager discovers detector descriptors from a source backend and
// turns them into runnable handles.
type ScriptManager struct {
	backend  ports.SourceBackend
	store    ports.CacheStore
	registry *detector.Registry
	launcher ports.PluginLauncher
	logger   hclog.Logger
	now      func() time.Time

	mu     sync.Mutex
	loaded map[*detector.Handle]struct{}
}

// NewScriptManager creates a manager. launcher may be nil, in which case
// plugin bodies fail to load.
func NewScriptManager(
	backend ports.SourceBackend,
	store ports.CacheStore,
	registry *detector.Registry,
	launcher ports.PluginLauncher,
	logger hclog.Logger,
) *ScriptManager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if registry == nil {
		registry = detector.NewRegistry()
	}
	return &ScriptManager{
		backend:  backend,
		store:    store,
		registry: registry,
		launcher: launcher,
		logger:   logger.Named("scripts"),
		now:      time.Now,
		loaded:   make(map[*detector.Handle]struct{}),
	}
}

// Backend returns the source the manager reads from.
func (m *ScriptManager) Backend() ports.SourceBackend { return m.backend }

// Discover lists the backend's descriptors. Invalid and duplicate entries are
// skipped with a diagnostic; only an unreachable source is an error.
func (m *ScriptManager) Discover(ctx context.Context) ([]detector.Descriptor, []report.Diagnostic, error) {
	listed, err := m.backend.ListDescriptors(ctx)
	if err != nil {
		if !errors.Is(err, domainerr.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", domainerr.ErrSourceUnavailable, err)
		}
		return nil, nil, err
	}

	var (
		valid []detector.Descriptor
		diags []report.Diagnostic
		seen  = make(map[string]bool)
	)
	for _, d := range listed {
		if err := d.Validate(); err != nil {
			diags = append(diags, report.Diagnostic{
				Kind:       report.DiagnosticInvalidDescriptor,
				DetectorID: d.ID,
				Reason:     err.Error(),
			})
			m.logger.Warn("skipping invalid descriptor", "id", d.ID, "error", err)
			continue
		}
		if seen[d.ID] {
			diags = append(diags, report.Diagnostic{
				Kind:       report.DiagnosticDuplicate,
				DetectorID: d.ID,
				Reason:     "identifier already listed, keeping the first entry",
			})
			m.logger.Warn("skipping duplicate descriptor", "id", d.ID, "source", d.Source)
			continue
		}
		seen[d.ID] = true

		if m.store != nil {
			if _, err := m.store.Get(ports.NamespaceBodies, d.ID); err == nil {
				d.CachePath = m.store.Path(ports.NamespaceBodies, d.ID)
			}
		}
		valid = append(valid, d)
	}

	// A listing served from the stored index is not a sync.
	if m.servedSnapshot() {
		m.logger.Info("listed detectors from the cached index, sync status unchanged", "source", m.backend.String())
	} else {
		m.recordSync(len(valid))
	}
	m.logger.Debug("discovered detectors", "source", m.backend.String(), "valid", len(valid), "skipped", len(diags))
	return valid, diags, nil
}

// Load fetches a descriptor's body and materializes it. Every failure is a
// domainerr.ErrScriptLoad.
func (m *ScriptManager) Load(ctx context.Context, d detector.Descriptor) (*detector.Handle, error) {
	body, err := m.body(ctx, d)
	if err != nil {
		return nil, domainerr.LoadError(d.ID, err)
	}
	det, err := m.materialize(ctx, d, body)
	if err != nil {
		return nil, domainerr.LoadError(d.ID, err)
	}

	h := detector.NewHandle(d, det)
	m.mu.Lock()
	m.loaded[h] = struct{}{}
	m.mu.Unlock()
	return h, nil
}

// LoadAll loads every descriptor. Load failures become diagnostics.
func (m *ScriptManager) LoadAll(ctx context.Context, descriptors []detector.Descriptor) ([]*detector.Handle, []report.Diagnostic) {
	handles := make([]*detector.Handle, 0, len(descriptors))
	var diags []report.Diagnostic
	for _, d := range descriptors {
		h, err := m.Load(ctx, d)
		if err != nil {
			m.logger.Warn("failed to load detector", "id", d.ID, "error", err)
			diags = append(diags, report.Diagnostic{
				Kind:       report.DiagnosticLoadError,
				DetectorID: d.ID,
				Reason:     err.Error(),
			})
			continue
		}
		handles = append(handles, h)
	}
	return handles, diags
}

// Release closes the given handles.
func (m *ScriptManager) Release(handles []*detector.Handle) {
	m.mu.Lock()
	for _, h := range handles {
		delete(m.loaded, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			m.logger.Debug("failed to release detector", "id", h.Descriptor.ID, "error", err)
		}
	}
}

// Close releases every handle still loaded and stops plugin processes.
func (m *ScriptManager) Close() error {
	m.mu.Lock()
	handles := make([]*detector.Handle, 0, len(m.loaded))
	for h := range m.loaded {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	m.Release(handles)
	if m.launcher != nil {
		return m.launcher.Close()
	}
	return nil
}

// Status reports the last recorded discovery. A source that was never synced
// returns a zero LastSync and Synced=false.
func (m *ScriptManager) Status() (SyncStatus, error) {
	status := SyncStatus{Source: m.backend.String(), Location: m.backend.Location()}
	if m.store == nil {
		return status, nil
	}
	entry, err := m.store.Get(ports.NamespaceIndex, syncStatusKey)
	if err != nil {
		if errors.Is(err, domainerr.ErrNotFound) {
			return status, nil
		}
		return status, err
	}
	var recorded SyncStatus
	if err := json.Unmarshal(entry.Content, &recorded); err != nil {
		m.logger.Warn("ignoring unreadable sync status", "error", err)
		return status, nil
	}
	if recorded.Source != status.Source {
		// recorded for a different source
		return status, nil
	}
	return recorded, nil
}

// Sync discovers and loads every descriptor so that remote bodies end up in
// the cache for offline use.
func (m *ScriptManager) Sync(ctx context.Context) (SyncResult, error) {
	descriptors, diags, err := m.Discover(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	handles, loadDiags := m.LoadAll(ctx, descriptors)
	m.Release(handles)

	return SyncResult{
		Descriptors:  len(descriptors),
		Loaded:       len(handles),
		Diagnostics:  append(diags, loadDiags...),
		FromSnapshot: m.servedSnapshot(),
	}, nil
}

func (m *ScriptManager) servedSnapshot() bool {
	r, ok := m.backend.(ports.SnapshotReporter)
	return ok && r.ServedSnapshot()
}

func (m *ScriptManager) recordSync(count int) {
	if m.store == nil {
		return
	}
	status := SyncStatus{
		Source:          m.backend.String(),
		Location:        m.backend.Location(),
		Synced:          true,
		LastSync:        m.now(),
		DescriptorCount: count,
	}
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := m.store.Put(ports.NamespaceIndex, syncStatusKey, ports.CacheEntry{StoredAt: status.LastSync, Content: data}); err != nil {
		m.logger.Warn("failed to record sync status", "error", err)
	}
}

// body returns the detector body. Local bodies are read directly. Remote
// bodies go through the cache: a cached body with the descriptor's version is
// reused, otherwise the body is fetched and cached, and if that fails any
// cached body for the identifier is used instead. An empty version always
// refetches.
func (m *ScriptManager) body(ctx context.Context, d detector.Descriptor) ([]byte, error) {
	if m.backend.Location() == ports.LocationLocal || m.store == nil {
		return m.backend.FetchBody(ctx, d)
	}

	cached, cacheErr := m.store.Get(ports.NamespaceBodies, d.ID)
	if cacheErr == nil && d.Version != "" && cached.Version == d.Version {
		m.logger.Trace("using cached body", "id", d.ID, "version", d.ShortVersion())
		return cached.Content, nil
	}

	body, err := m.backend.FetchBody(ctx, d)
	if err == nil {
		entry := ports.CacheEntry{Version: d.Version, StoredAt: m.now(), Content: body}
		if err := m.store.Put(ports.NamespaceBodies, d.ID, entry); err != nil {
			m.logger.Warn("failed to cache detector body", "id", d.ID, "error", err)
		}
		return body, nil
	}
	if cacheErr == nil {
		m.logger.Warn("fetch failed, using cached body", "id", d.ID, "cached_version", cached.Version, "error", err)
		return cached.Content, nil
	}
	return nil, err
}

func (m *ScriptManager) materialize(ctx context.Context, d detector.Descriptor, body []byte) (detector.Detector, error) {
	rule, err := detector.ParseRule(body)
	if err != nil {
		return nil, err
	}
	if d.Layout == detector.LayoutFolder {
		rule = rule.WithDefaultCode(d.ID)
		if rule.Code != d.ID {
			return nil, fmt.Errorf("body declares code %s inside folder %s", rule.Code, d.ID)
		}
	}
	if rule.Title == "" {
		rule.Title = d.Title
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	switch rule.Kind() {
	case detector.KindBuiltin:
		return m.registry.Build(rule)
	case detector.KindPlugin:
		return m.launchPlugin(ctx, d, rule)
	default:
		return detector.NewRuleDetector(rule)
	}
}

// launchPlugin starts an external detector binary. Only local sources may
// reference one, and only by a path inside the body's directory.
func (m *ScriptManager) launchPlugin(ctx context.Context, d detector.Descriptor, rule detector.Rule) (detector.Detector, error) {
	if m.backend.Location() != ports.LocationLocal {
		return nil, fmt.Errorf("plugin detectors are only allowed from local sources")
	}
	if m.launcher == nil {
		return nil, fmt.Errorf("plugin detectors are not enabled")
	}
	rel := filepath.FromSlash(rule.Plugin)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("plugin path %q must be relative to the detector directory", rule.Plugin)
	}
	return m.launcher.Launch(ctx, filepath.Join(filepath.Dir(d.Source), rel))
}
