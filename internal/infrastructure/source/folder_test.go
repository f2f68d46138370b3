package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
)

const connectionRefusedRule = `code: E001
title: Connection refused
patterns:
  - connection refused
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFolderBackend_ListDescriptors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "E001", BodyFile), connectionRefusedRule)
	writeFile(t, filepath.Join(root, "E001", SolutionFile), "# Restart the emulator\n")
	writeFile(t, filepath.Join(root, "E002", SolutionFile), "orphan solution")
	writeFile(t, filepath.Join(root, "README.md"), "not a detector")
	writeFile(t, filepath.Join(root, "docs", "guide.md"), "not a detector")

	backend := NewFolderBackend(root, hclog.NewNullLogger())
	descriptors, err := backend.ListDescriptors(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	first := descriptors[0]
	assert.Equal(t, "E001", first.ID)
	assert.Equal(t, "Connection refused", first.Title)
	assert.Equal(t, detector.LayoutFolder, first.Layout)
	assert.Equal(t, ContentVersion([]byte(connectionRefusedRule)), first.Version)
	assert.NoError(t, first.Validate())

	second := descriptors[1]
	assert.Equal(t, "E002", second.ID)
	assert.Error(t, second.Validate(), "folder without a body is reported, not dropped")

	body, err := backend.FetchBody(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, connectionRefusedRule, string(body))
	assert.Equal(t, ports.LocationLocal, backend.Location())
}

func TestFolderBackend_MissingRoot(t *testing.T) {
	backend := NewFolderBackend(filepath.Join(t.TempDir(), "missing"), nil)
	_, err := backend.ListDescriptors(context.Background())
	assert.ErrorIs(t, err, domainerr.ErrSourceUnavailable)
}

func TestFolderBackend_FetchSolution(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "E001", SolutionFile), "# Fix\n")
	backend := NewFolderBackend(root, nil)

	data, err := backend.FetchSolution(context.Background(), "E001")
	require.NoError(t, err)
	assert.Equal(t, "# Fix\n", string(data))

	for _, code := range []string{"E999", "../E001", "", "e001"} {
		_, err := backend.FetchSolution(context.Background(), code)
		assert.ErrorIs(t, err, domainerr.ErrNotFound, code)
	}
}

func TestFolderBackend_FetchBody_MissingFile(t *testing.T) {
	backend := NewFolderBackend(t.TempDir(), nil)
	_, err := backend.FetchBody(context.Background(), detector.Descriptor{ID: "E001", Source: "/nonexistent/detector.yaml"})
	assert.ErrorIs(t, err, domainerr.ErrFetch)
}
