// Package report merges detector outcomes into the deduplicated report shown
// to the user.
package report

import (
	"fmt"
	"strings"
	"time"

	"maadoctor.app/cli/internal/core/detector"
)

// DiagnosticKind classifies a non-fatal problem met during an analysis.
type DiagnosticKind string

const (
	DiagnosticFailed            DiagnosticKind = "failed"
	DiagnosticTimedOut          DiagnosticKind = "timed_out"
	DiagnosticLoadError         DiagnosticKind = "load_error"
	DiagnosticInvalidDescriptor DiagnosticKind = "invalid_descriptor"
	DiagnosticDuplicate         DiagnosticKind = "duplicate_descriptor"
)

// Diagnostic is a warning about a detector, never a finding about the logs.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	DetectorID string         `json:"detector_id"`
	Reason     string         `json:"reason"`
}

func (d Diagnostic) String() string {
	id := d.DetectorID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("%s [%s]: %s", id, d.Kind, d.Reason)
}

// AggregatedReport is the result of one analysis run.
type AggregatedReport struct {
	Errors       []detector.ErrorReport `json:"errors"`
	OverallClean bool                   `json:"overall_clean"`
	Diagnostics  []Diagnostic           `json:"diagnostics"`
	Summary      string                 `json:"summary"`
	LogFiles     int                    `json:"log_files"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

// Merge folds outcomes, in order, into a report. The first report for a code
// keeps its position; later ones with the same code only extend its detail.
// Failures and timeouts become diagnostics and never make the report unclean.
func Merge(outcomes []detector.Outcome) AggregatedReport {
	rep := AggregatedReport{
		Errors:      []detector.ErrorReport{},
		Diagnostics: []Diagnostic{},
	}
	index := make(map[string]int)

	for _, o := range outcomes {
		switch o.Status {
		case detector.StatusMatched:
			if o.Report == nil {
				rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
					Kind:       DiagnosticFailed,
					DetectorID: o.DetectorID,
					Reason:     "matched without a report",
				})
				continue
			}
			if pos, seen := index[o.Report.Code]; seen {
				rep.Errors[pos].Detail = appendDetail(rep.Errors[pos].Detail, o.Report.Detail)
				continue
			}
			index[o.Report.Code] = len(rep.Errors)
			rep.Errors = append(rep.Errors, *o.Report)
		case detector.StatusFailed:
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Kind:       DiagnosticFailed,
				DetectorID: o.DetectorID,
				Reason:     o.Reason,
			})
		case detector.StatusTimedOut:
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Kind:       DiagnosticTimedOut,
				DetectorID: o.DetectorID,
				Reason:     o.Reason,
			})
		}
	}

	rep.OverallClean = len(rep.Errors) == 0
	rep.Summary = Summarize(rep.LogFiles, len(rep.Errors))
	return rep
}

func appendDetail(existing, extra string) string {
	extra = strings.TrimSpace(extra)
	switch {
	case extra == "":
		return existing
	case existing == "":
		return extra
	case strings.Contains(existing, extra):
		return existing
	default:
		return existing + "\n" + extra
	}
}

// PrependDiagnostics puts discovery and load diagnostics ahead of the
// execution diagnostics Merge produced.
func (r *AggregatedReport) PrependDiagnostics(diags ...Diagnostic) {
	if len(diags) == 0 {
		return
	}
	merged := make([]Diagnostic, 0, len(diags)+len(r.Diagnostics))
	merged = append(merged, diags...)
	r.Diagnostics = append(merged, r.Diagnostics...)
}

// Codes lists the error codes in report order.
func (r AggregatedReport) Codes() []string {
	codes := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		codes[i] = e.Code
	}
	return codes
}

// Summarize renders the one-line summary shown above the error list.
func Summarize(logFiles, issues int) string {
	var parts []string
	if logFiles > 0 {
		parts = append(parts, fmt.Sprintf("found %d log files", logFiles))
	}
	switch issues {
	case 0:
		parts = append(parts, "no obvious problems")
	case 1:
		parts = append(parts, "found 1 issue")
	default:
		parts = append(parts, fmt.Sprintf("found %d issues", issues))
	}
	return strings.Join(parts, ", ")
}
