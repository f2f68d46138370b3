package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"maadoctor.app/cli/internal/core/domainerr"
	"maadoctor.app/cli/internal/core/report"
	"maadoctor.app/cli/internal/core/solution"
)

type resolveFunc func(ctx context.Context, code string, forceRefresh bool) (*solution.Document, error)

// runBrowser opens the interactive result browser
func runBrowser(ctx context.Context, container *CLIContainer, rep *report.AggregatedReport) error {
	model := newBrowserModel(ctx, rep, container.AnalysisService.Resolve)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("browser failed: %w", err)
	}
	return nil
}

// browserModel lists the report's errors and shows the solution of the
// selected one.
type browserModel struct {
	ctx     context.Context
	report  *report.AggregatedReport
	resolve resolveFunc

	cursor  int
	doc     *solution.Document
	loading bool
	message string
	scroll  int
	height  int
}

type solutionLoadedMsg struct {
	doc *solution.Document
	err error
}

func newBrowserModel(ctx context.Context, rep *report.AggregatedReport, resolve resolveFunc) browserModel {
	return browserModel{ctx: ctx, report: rep, resolve: resolve, height: 24}
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case solutionLoadedMsg:
		m.loading = false
		if msg.err != nil {
			if errors.Is(msg.err, domainerr.ErrNotFound) {
				m.message = "No solution available for this error"
			} else {
				m.message = "Failed to load solution: " + msg.err.Error()
			}
			return m, nil
		}
		m.doc = msg.doc
		m.scroll = 0
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.doc != nil {
			return m.updateSolution(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m browserModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.report.Errors)-1 {
			m.cursor++
		}
	case "enter", "right", "l":
		if len(m.report.Errors) == 0 || m.loading {
			return m, nil
		}
		selected := m.report.Errors[m.cursor]
		if !selected.HasSolution {
			m.message = "No solution available for " + selected.Code
			return m, nil
		}
		m.loading = true
		m.message = ""
		return m, m.loadCmd(selected.Code, false)
	}
	return m, nil
}

func (m browserModel) updateSolution(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace", "left", "h":
		m.doc = nil
		m.message = ""
	case "up", "k":
		if m.scroll > 0 {
			m.scroll--
		}
	case "down", "j":
		m.scroll++
	case "r":
		if !m.loading {
			m.loading = true
			return m, m.loadCmd(m.doc.Code, true)
		}
	}
	return m, nil
}

func (m browserModel) loadCmd(code string, refresh bool) tea.Cmd {
	return func() tea.Msg {
		doc, err := m.resolve(m.ctx, code, refresh)
		return solutionLoadedMsg{doc: doc, err: err}
	}
}

func (m browserModel) View() string {
	if m.doc != nil {
		return m.solutionView()
	}
	return m.listView()
}

func (m browserModel) listView() string {
	var rows []string
	rows = append(rows, titleStyle.Render("maadoctor")+dimStyle.Render("  "+m.report.Summary), "")

	if len(m.report.Errors) == 0 {
		rows = append(rows, cleanStyle.Render("No known problems found"))
	}
	for i, e := range m.report.Errors {
		line := fmt.Sprintf("%s  %s", e.Code, e.Title)
		if !e.HasSolution {
			line += dimStyle.Render("  (no solution)")
		}
		style := lipgloss.NewStyle()
		prefix := "  "
		if i == m.cursor {
			style = style.Background(lipgloss.Color("240"))
			prefix = "> "
		}
		rows = append(rows, style.Render(prefix+line))
	}

	if n := len(m.report.Diagnostics); n > 0 {
		rows = append(rows, "", warnStyle.Render(fmt.Sprintf("%d detector warnings", n)))
	}
	rows = append(rows, "", m.statusLine("↑/↓ select • enter solution • q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m browserModel) solutionView() string {
	lines := strings.Split(RenderSolution(m.doc), "\n")
	visible := m.height - 3
	if visible < 5 {
		visible = 5
	}
	start := m.scroll
	if start > len(lines)-1 {
		start = len(lines) - 1
	}
	end := start + visible
	if end > len(lines) {
		end = len(lines)
	}
	body := strings.Join(lines[start:end], "\n")
	return lipgloss.JoinVertical(lipgloss.Left, body, "", m.statusLine("↑/↓ scroll • r refresh • esc back • q quit"))
}

func (m browserModel) statusLine(controls string) string {
	switch {
	case m.loading:
		return dimStyle.Render("Loading solution…")
	case m.message != "":
		return warnStyle.Render(m.message)
	default:
		return dimStyle.Render(controls)
	}
}
