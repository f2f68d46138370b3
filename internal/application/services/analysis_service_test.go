package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/domainerr"
	"maadoctor.app/cli/internal/core/report"
	"maadoctor.app/cli/internal/infrastructure/source"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newFolderPipeline(t *testing.T, scripts map[string]string) *AnalysisService {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, scripts)
	backend := source.NewFolderBackend(root, nil)
	manager := NewScriptManager(backend, newMemStore(), nil, nil, nil)
	resolver := NewSolutionResolver(backend, newMemStore(), nil)
	return NewAnalysisService(manager, NewExecutionEngine(2, time.Second, nil), resolver, nil, nil)
}

var connectionScripts = map[string]string{
	"E001/detector.yaml": ruleE001,
	"E001/solution.md":   "# Connection refused\nRestart the emulator.\n",
}

func TestAnalysisService_ConnectionRefused(t *testing.T) {
	svc := newFolderPipeline(t, connectionScripts)
	logs := t.TempDir()
	writeTree(t, logs, map[string]string{"asst.log": "[12:00:01] adb: connection refused\n"})

	rep, err := svc.Analyze(context.Background(), logs)
	require.NoError(t, err)

	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "E001", rep.Errors[0].Code)
	assert.True(t, rep.Errors[0].HasSolution)
	assert.False(t, rep.OverallClean)
	assert.Equal(t, 1, rep.LogFiles)
	assert.Equal(t, "found 1 log files, found 1 issue", rep.Summary)
	assert.False(t, rep.GeneratedAt.IsZero())

	doc, err := svc.Resolve(context.Background(), rep.Errors[0].Code, false)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Restart the emulator")
}

func TestAnalysisService_CleanLogs(t *testing.T) {
	svc := newFolderPipeline(t, connectionScripts)
	logs := t.TempDir()
	writeTree(t, logs, map[string]string{"asst.log": "all good\n", "gui.txt": "started\n"})

	rep, err := svc.Analyze(context.Background(), logs)
	require.NoError(t, err)
	assert.Empty(t, rep.Errors)
	assert.True(t, rep.OverallClean)
	assert.Empty(t, rep.Diagnostics)
	assert.Equal(t, "found 2 log files, no obvious problems", rep.Summary)
}

func TestAnalysisService_DiagnosticsDoNotFailRun(t *testing.T) {
	svc := newFolderPipeline(t, map[string]string{
		"E001/detector.yaml": ruleE001,
		"E002/detector.yaml": "code: [broken",
		"E003/solution.md":   "no body",
	})
	logs := t.TempDir()
	writeTree(t, logs, map[string]string{"asst.log": "Connection refused"})

	rep, err := svc.Analyze(context.Background(), logs)
	require.NoError(t, err)
	assert.Equal(t, []string{"E001"}, rep.Codes())

	kinds := map[report.DiagnosticKind]string{}
	for _, d := range rep.Diagnostics {
		kinds[d.Kind] = d.DetectorID
	}
	assert.Equal(t, map[report.DiagnosticKind]string{
		report.DiagnosticInvalidDescriptor: "E003",
		report.DiagnosticLoadError:         "E002",
	}, kinds)
}

func TestAnalysisService_PipelineFailures(t *testing.T) {
	logs := t.TempDir()
	writeTree(t, logs, map[string]string{"asst.log": "x"})

	t.Run("no log files", func(t *testing.T) {
		svc := newFolderPipeline(t, connectionScripts)
		empty := t.TempDir()
		writeTree(t, empty, map[string]string{"screenshot.png": "png"})
		_, err := svc.Analyze(context.Background(), empty)
		assert.ErrorIs(t, err, domainerr.ErrNoLogFiles)
	})

	t.Run("no detectors", func(t *testing.T) {
		svc := newFolderPipeline(t, map[string]string{"E002/detector.yaml": "code: [broken"})
		_, err := svc.Analyze(context.Background(), logs)
		assert.ErrorIs(t, err, domainerr.ErrNoDetectors)
	})

	t.Run("source unavailable", func(t *testing.T) {
		backend := newMockBackend(ports.LocationRemote)
		backend.On("ListDescriptors", mock.Anything).Return(nil, domainerr.ErrSourceUnavailable)
		manager := NewScriptManager(backend, newMemStore(), nil, nil, nil)
		svc := NewAnalysisService(manager, NewExecutionEngine(1, time.Second, nil), nil, nil, nil)
		_, err := svc.Analyze(context.Background(), logs)
		assert.ErrorIs(t, err, domainerr.ErrSourceUnavailable)
	})

	t.Run("missing directory", func(t *testing.T) {
		svc := newFolderPipeline(t, connectionScripts)
		_, err := svc.Analyze(context.Background(), filepath.Join(logs, "nope"))
		assert.Error(t, err)
	})
}

type fakeExtractor struct {
	dir      string
	err      error
	cleaned  bool
	extracts []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	f.extracts = append(f.extracts, path)
	return f.dir, f.err
}

func (f *fakeExtractor) Cleanup() error {
	f.cleaned = true
	return nil
}

func TestAnalysisService_AnalyzePath(t *testing.T) {
	logs := t.TempDir()
	writeTree(t, logs, map[string]string{"debug/asst.log": "connection refused"})
	archive := filepath.Join(t.TempDir(), "logs.zip")
	require.NoError(t, os.WriteFile(archive, []byte("zip"), 0o644))

	scripts := t.TempDir()
	writeTree(t, scripts, connectionScripts)
	backend := source.NewFolderBackend(scripts, nil)
	extractor := &fakeExtractor{dir: logs}
	svc := NewAnalysisService(
		NewScriptManager(backend, nil, nil, nil, nil),
		NewExecutionEngine(1, time.Second, nil),
		NewSolutionResolver(backend, nil, nil),
		extractor,
		nil,
	)

	rep, dir, err := svc.AnalyzePath(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, logs, dir)
	assert.Equal(t, []string{archive}, extractor.extracts)
	assert.Equal(t, []string{"E001"}, rep.Codes())

	rep, dir, err = svc.AnalyzePath(context.Background(), logs)
	require.NoError(t, err)
	assert.Equal(t, logs, dir)
	assert.Len(t, extractor.extracts, 1, "directories are analyzed in place")
	assert.Len(t, rep.Errors, 1)

	require.NoError(t, svc.Cleanup())
	assert.True(t, extractor.cleaned)

	extractor.err = errors.Join(domainerr.ErrExtract, errors.New("bad zip"))
	_, _, err = svc.AnalyzePath(context.Background(), archive)
	assert.ErrorIs(t, err, domainerr.ErrExtract)
}

func TestAnalysisService_MultipleCodesInOrder(t *testing.T) {
	svc := newFolderPipeline(t, map[string]string{
		"E001/detector.yaml": ruleE001,
		"E002/detector.yaml": "code: E002\ntitle: Timeout\npatterns: [timeout]\n",
	})
	logs := t.TempDir()
	writeTree(t, logs, map[string]string{"asst.log": "connection refused\nrequest timeout\n"})

	rep, err := svc.Analyze(context.Background(), logs)
	require.NoError(t, err)
	assert.Equal(t, []string{"E001", "E002"}, rep.Codes())
	for _, e := range rep.Errors {
		require.NoError(t, e.Validate())
	}
}
