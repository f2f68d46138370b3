package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/application/services"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/report"
	"maadoctor.app/cli/internal/core/solution"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	codeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	cleanStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	detailStyle  = lipgloss.NewStyle().PaddingLeft(6).Foreground(lipgloss.Color("250"))
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// RenderReport formats an analysis report for the terminal.
func RenderReport(rep *report.AggregatedReport, dir string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Log analysis"))
	if dir != "" {
		b.WriteString(dimStyle.Render("  " + dir))
	}
	b.WriteString("\n")

	if rep.OverallClean {
		b.WriteString(cleanStyle.Render("✓ " + rep.Summary))
	} else {
		b.WriteString(codeStyle.Render("✗ " + rep.Summary))
	}
	b.WriteString("\n")

	if len(rep.Errors) > 0 {
		b.WriteString("\n")
	}
	for _, e := range rep.Errors {
		b.WriteString(fmt.Sprintf("  %s  %s", codeStyle.Render(e.Code), e.Title))
		if e.HasSolution {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (maadoctor solution %s)", e.Code)))
		}
		b.WriteString("\n")
		for _, line := range strings.Split(strings.TrimSpace(e.Detail), "\n") {
			if line != "" {
				b.WriteString(detailStyle.Render(line) + "\n")
			}
		}
	}

	if len(rep.Diagnostics) > 0 {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("%d detector warnings:", len(rep.Diagnostics))) + "\n")
		for _, d := range rep.Diagnostics {
			b.WriteString(warnStyle.Render("  ! "+d.String()) + "\n")
		}
	}
	return b.String()
}

// RenderSolution formats a solution document. Markdown headings are styled,
// everything else is printed as is.
func RenderSolution(doc *solution.Document) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Solution "+doc.Code) + dimStyle.Render(fmt.Sprintf("  [%s]", originLabel(doc))) + "\n\n")
	for _, line := range strings.Split(strings.TrimRight(doc.Content, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			b.WriteString(headingStyle.Render(strings.TrimSpace(strings.TrimLeft(trimmed, "#"))) + "\n")
			continue
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func originLabel(doc *solution.Document) string {
	switch doc.Origin {
	case solution.OriginCached:
		if doc.FetchedAt.IsZero() {
			return "cached"
		}
		return "cached " + doc.FetchedAt.Local().Format(time.DateTime)
	case solution.OriginRemote:
		return "fetched"
	default:
		return string(doc.Origin)
	}
}

// RenderDescriptors lists discovered detectors as a table.
func RenderDescriptors(descriptors []detector.Descriptor, diags []report.Diagnostic) string {
	var b strings.Builder
	header := fmt.Sprintf("%-10s %-40s %-14s %s", "ID", "TITLE", "VERSION", "CACHED")
	b.WriteString(titleStyle.Render(header) + "\n")
	for _, d := range descriptors {
		cached := "-"
		if d.CachePath != "" {
			cached = "yes"
		}
		b.WriteString(fmt.Sprintf("%-10s %-40s %-14s %s\n", d.ID, truncate(d.DisplayTitle(), 40), d.ShortVersion(), cached))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d detectors", len(descriptors))) + "\n")
	for _, d := range diags {
		b.WriteString(warnStyle.Render("! "+d.String()) + "\n")
	}
	return b.String()
}

// RenderStatus formats the sync status.
func RenderStatus(status services.SyncStatus) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Scripts") + "\n")
	b.WriteString(fmt.Sprintf("  Source:      %s\n", status.Source))
	b.WriteString(fmt.Sprintf("  Location:    %s\n", status.Location))
	if !status.Synced {
		b.WriteString("  Last sync:   " + warnStyle.Render("never") + "\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("  Last sync:   %s\n", status.LastSync.Local().Format(time.DateTime)))
	b.WriteString(fmt.Sprintf("  Detectors:   %d\n", status.DescriptorCount))
	return b.String()
}

// RenderCacheInfo formats cache usage per namespace.
func RenderCacheInfo(info ports.CacheInfo) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Cache") + dimStyle.Render("  "+info.Dir) + "\n")
	names := make([]string, 0, len(info.Namespaces))
	for ns := range info.Namespaces {
		names = append(names, string(ns))
	}
	sort.Strings(names)
	for _, ns := range names {
		usage := info.Namespaces[ports.Namespace(ns)]
		b.WriteString(fmt.Sprintf("  %-10s %4d entries  %s\n", ns, usage.Entries, formatBytes(usage.Bytes)))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
