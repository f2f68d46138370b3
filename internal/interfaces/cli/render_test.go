package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/application/services"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/report"
	"maadoctor.app/cli/internal/core/solution"
)

func TestRenderReport(t *testing.T) {
	rep := &report.AggregatedReport{
		Errors: []detector.ErrorReport{
			{Code: "E001", Title: "Connection refused", Detail: "adb: connection refused\nretrying", HasSolution: true},
			{Code: "E007", Title: "Unknown resource"},
		},
		Diagnostics: []report.Diagnostic{{Kind: report.DiagnosticTimedOut, DetectorID: "E003", Reason: "exceeded 10s"}},
		Summary:     "found 3 log files, found 2 issues",
	}

	out := RenderReport(rep, "/tmp/logs")
	assert.Contains(t, out, "/tmp/logs")
	assert.Contains(t, out, "✗ found 3 log files, found 2 issues")
	assert.Contains(t, out, "(maadoctor solution E001)")
	assert.NotContains(t, out, "(maadoctor solution E007)")
	assert.Contains(t, out, "retrying")
	assert.Contains(t, out, "1 detector warnings:")
	assert.Contains(t, out, "E003 [timed_out]: exceeded 10s")
}

func TestRenderReport_Clean(t *testing.T) {
	out := RenderReport(&report.AggregatedReport{OverallClean: true, Summary: "no obvious problems"}, "")
	assert.Contains(t, out, "✓ no obvious problems")
	assert.NotContains(t, out, "warnings")
}

func TestRenderSolution(t *testing.T) {
	doc := &solution.Document{Code: "E001", Content: "## Restart\nClose the emulator.\n", Origin: solution.OriginRemote}
	out := RenderSolution(doc)
	assert.Contains(t, out, "Solution E001")
	assert.Contains(t, out, "[fetched]")
	assert.Contains(t, out, "Restart")
	assert.NotContains(t, out, "## Restart")
	assert.Contains(t, out, "Close the emulator.")
}

func TestOriginLabel(t *testing.T) {
	assert.Equal(t, "local", originLabel(&solution.Document{Origin: solution.OriginLocal}))
	assert.Equal(t, "cached", originLabel(&solution.Document{Origin: solution.OriginCached}))
	assert.Equal(t, "fetched", originLabel(&solution.Document{Origin: solution.OriginRemote}))
}

func TestRenderDescriptors(t *testing.T) {
	out := RenderDescriptors([]detector.Descriptor{
		{ID: "E001", Title: "Connection refused", Version: "0123456789abcdef0123", CachePath: "/c/E001.json"},
		{ID: "E002"},
	}, []report.Diagnostic{{Kind: report.DiagnosticInvalidDescriptor, DetectorID: "E9", Reason: "missing source location"}})

	assert.Contains(t, out, "Connection refused")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "2 detectors")
	assert.Contains(t, out, "! E9 [invalid_descriptor]: missing source location")
}

func TestRenderStatus_NeverSynced(t *testing.T) {
	out := RenderStatus(services.SyncStatus{Source: "remote https://x", Location: ports.LocationRemote})
	assert.Contains(t, out, "remote https://x")
	assert.Contains(t, out, "never")
}

func TestRenderCacheInfo(t *testing.T) {
	out := RenderCacheInfo(ports.CacheInfo{
		Dir: "/cache",
		Namespaces: map[ports.Namespace]ports.NamespaceUsage{
			ports.NamespaceSolutions: {Entries: 2, Bytes: 2048},
			ports.NamespaceBodies:    {Entries: 1, Bytes: 12},
		},
	})
	assert.Contains(t, out, "/cache")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "12 B")
	assert.Less(t, strings.Index(out, "bodies"), strings.Index(out, "solutions"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
