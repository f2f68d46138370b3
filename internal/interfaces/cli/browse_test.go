package cli

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
	"maadoctor.app/cli/internal/core/report"
	"maadoctor.app/cli/internal/core/solution"
)

func browseReport() *report.AggregatedReport {
	return &report.AggregatedReport{
		Errors: []detector.ErrorReport{
			{Code: "E001", Title: "Connection refused", HasSolution: true},
			{Code: "E002", Title: "Resource missing", HasSolution: false},
		},
		Summary: "found 1 log files, found 2 issues",
	}
}

type resolveCall struct {
	code    string
	refresh bool
}

func recordingResolver(calls *[]resolveCall, err error) resolveFunc {
	return func(ctx context.Context, code string, refresh bool) (*solution.Document, error) {
		*calls = append(*calls, resolveCall{code, refresh})
		if err != nil {
			return nil, err
		}
		return &solution.Document{Code: code, Content: "# Fix\nRestart the emulator.\n", Origin: solution.OriginLocal}, nil
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m browserModel, msg tea.Msg) (browserModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	bm, ok := next.(browserModel)
	require.True(t, ok)
	return bm, cmd
}

func TestBrowser_CursorStaysInRange(t *testing.T) {
	m := newBrowserModel(context.Background(), browseReport(), nil)

	m, _ = send(t, m, key("up"))
	assert.Equal(t, 0, m.cursor)
	m, _ = send(t, m, key("j"))
	assert.Equal(t, 1, m.cursor)
	m, _ = send(t, m, key("down"))
	assert.Equal(t, 1, m.cursor)
	m, _ = send(t, m, key("k"))
	assert.Equal(t, 0, m.cursor)
}

func TestBrowser_OpenSolutionAndBack(t *testing.T) {
	var calls []resolveCall
	m := newBrowserModel(context.Background(), browseReport(), recordingResolver(&calls, nil))

	m, cmd := send(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.loading)
	assert.Contains(t, m.View(), "Loading solution")

	m, _ = send(t, m, cmd())
	assert.False(t, m.loading)
	require.NotNil(t, m.doc)
	assert.Equal(t, []resolveCall{{"E001", false}}, calls)
	assert.Contains(t, m.View(), "Restart the emulator.")

	m, cmd = send(t, m, key("r"))
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.Equal(t, resolveCall{"E001", true}, calls[1])

	m, _ = send(t, m, key("esc"))
	assert.Nil(t, m.doc)
	assert.Contains(t, m.View(), "Connection refused")
}

func TestBrowser_NoSolution(t *testing.T) {
	var calls []resolveCall
	m := newBrowserModel(context.Background(), browseReport(), recordingResolver(&calls, nil))

	m, _ = send(t, m, key("down"))
	m, cmd := send(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.Empty(t, calls)
	assert.Contains(t, m.View(), "No solution available for E002")
}

func TestBrowser_ResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", domainerr.ErrNotFound, "No solution available for this error"},
		{"fetch failure", errors.New("connection reset"), "Failed to load solution: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []resolveCall
			m := newBrowserModel(context.Background(), browseReport(), recordingResolver(&calls, tt.err))

			m, cmd := send(t, m, key("enter"))
			require.NotNil(t, cmd)
			m, _ = send(t, m, cmd())
			assert.Nil(t, m.doc)
			assert.Contains(t, m.View(), tt.want)
		})
	}
}

func TestBrowser_Quit(t *testing.T) {
	m := newBrowserModel(context.Background(), browseReport(), nil)
	for _, k := range []string{"q", "ctrl+c"} {
		_, cmd := send(t, m, key(k))
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestBrowser_CleanReport(t *testing.T) {
	m := newBrowserModel(context.Background(), &report.AggregatedReport{OverallClean: true, Summary: "no obvious problems"}, nil)
	m, cmd := send(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "No known problems found")
}
