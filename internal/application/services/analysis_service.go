package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
	"maadoctor.app/cli/internal/core/report"
	"maadoctor.app/cli/internal/core/solution"
)

// AnalysisService is the pipeline behind the analyze command: discover and
// load detectors, run them over a log directory and merge the outcomes.
type AnalysisService struct {
	scripts   *ScriptManager
	engine    *ExecutionEngine
	resolver  *SolutionResolver
	extractor ports.ArchiveExtractor
	logger    hclog.Logger
	now       func() time.Time
}

func NewAnalysisService(
	scripts *ScriptManager,
	engine *ExecutionEngine,
	resolver *SolutionResolver,
	extractor ports.ArchiveExtractor,
	logger hclog.Logger,
) *AnalysisService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AnalysisService{
		scripts:   scripts,
		engine:    engine,
		resolver:  resolver,
		extractor: extractor,
		logger:    logger.Named("analysis"),
		now:       time.Now,
	}
}

// Analyze runs every available detector over dir. It fails only when the
// directory holds no log files, the source is unavailable, or no detector
// could be loaded; everything else ends up in the report's diagnostics.
func (s *AnalysisService) Analyze(ctx context.Context, dir string) (*report.AggregatedReport, error) {
	logs, err := detector.OpenLogDir(dir)
	if err != nil {
		return nil, err
	}
	files, err := logs.Files(nil, nil)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", domainerr.ErrNoLogFiles, dir)
	}

	descriptors, diags, err := s.scripts.Discover(ctx)
	if err != nil {
		return nil, err
	}
	handles, loadDiags := s.scripts.LoadAll(ctx, descriptors)
	defer s.scripts.Release(handles)
	diags = append(diags, loadDiags...)

	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %d listed, %d skipped", domainerr.ErrNoDetectors, len(descriptors), len(diags))
	}

	s.logger.Debug("running detectors", "dir", dir, "detectors", len(handles), "log_files", len(files))
	outcomes := s.engine.RunAll(ctx, handles, logs)

	rep := report.Merge(outcomes)
	rep.LogFiles = len(files)
	rep.Summary = report.Summarize(rep.LogFiles, len(rep.Errors))
	rep.GeneratedAt = s.now()
	rep.PrependDiagnostics(diags...)

	s.logger.Debug("analysis finished", "issues", len(rep.Errors), "diagnostics", len(rep.Diagnostics))
	return &rep, nil
}

// AnalyzeArchive extracts a ZIP archive and analyzes the result. The
// extraction directory is returned alongside the report.
func (s *AnalysisService) AnalyzeArchive(ctx context.Context, archivePath string) (*report.AggregatedReport, string, error) {
	if s.extractor == nil {
		return nil, "", fmt.Errorf("%w: no extractor configured", domainerr.ErrExtract)
	}
	dir, err := s.extractor.Extract(ctx, archivePath)
	if err != nil {
		return nil, "", err
	}
	rep, err := s.Analyze(ctx, dir)
	return rep, dir, err
}

// AnalyzePath analyzes a directory in place or extracts an archive first.
func (s *AnalysisService) AnalyzePath(ctx context.Context, path string) (*report.AggregatedReport, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		rep, err := s.Analyze(ctx, path)
		return rep, path, err
	}
	return s.AnalyzeArchive(ctx, path)
}

// Resolve looks up the solution document for an error code.
func (s *AnalysisService) Resolve(ctx context.Context, code string, forceRefresh bool) (*solution.Document, error) {
	return s.resolver.Resolve(ctx, code, forceRefresh)
}

// Cancel stops the current run from starting further detectors.
func (s *AnalysisService) Cancel() {
	s.engine.Cancel()
}

// Cleanup removes the latest archive extraction.
func (s *AnalysisService) Cleanup() error {
	if s.extractor == nil {
		return nil
	}
	return s.extractor.Cleanup()
}
