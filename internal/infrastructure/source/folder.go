// Package source implements the detector source backends: a folder-per-code
// tree, a flat index on disk and a flat index served over HTTP.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
)

const (
	// BodyFile is the detector body inside a code folder.
	BodyFile = "detector.yaml"
	// SolutionFile is the solution document inside a code folder.
	SolutionFile = "solution.md"
)

// FolderBackend reads a tree with one directory per error code:
//
//	<root>/E001/detector.yaml
//	<root>/E001/solution.md
//
// The version of a body is the SHA-256 of its contents.
type FolderBackend struct {
	root   string
	logger hclog.Logger
}

func NewFolderBackend(root string, logger hclog.Logger) *FolderBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FolderBackend{root: root, logger: logger.Named("folder")}
}

func (b *FolderBackend) ListDescriptors(ctx context.Context) ([]detector.Descriptor, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domainerr.ErrSourceUnavailable, b.root, err)
	}

	var out []detector.Descriptor
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, "E") {
			continue
		}
		out = append(out, b.describe(name))
	}
	b.logger.Debug("listed detector folders", "root", b.root, "count", len(out))
	return out, nil
}

func (b *FolderBackend) describe(code string) detector.Descriptor {
	bodyPath := filepath.Join(b.root, code, BodyFile)
	d := detector.Descriptor{
		ID:     code,
		Source: bodyPath,
		Layout: detector.LayoutFolder,
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.Problem = fmt.Sprintf("%s: no %s in folder", code, BodyFile)
		} else {
			d.Problem = fmt.Sprintf("%s: %v", code, err)
		}
		return d
	}
	d.Version = ContentVersion(body)

	// Titles are informational; a body that does not parse is reported when loaded.
	if rule, err := detector.ParseRule(body); err == nil {
		d.Title = rule.Title
		d.Description = rule.Description
	}
	return d
}

func (b *FolderBackend) FetchBody(ctx context.Context, d detector.Descriptor) ([]byte, error) {
	return readLocalBody(d)
}

func (b *FolderBackend) FetchSolution(ctx context.Context, code string) ([]byte, error) {
	if !detector.IsErrorCode(code) {
		return nil, fmt.Errorf("%w: invalid error code %q", domainerr.ErrNotFound, code)
	}
	return readLocalSolution(filepath.Join(b.root, code, SolutionFile), code)
}

func (b *FolderBackend) Location() ports.Location { return ports.LocationLocal }

func (b *FolderBackend) String() string { return "folder " + b.root }

// ContentVersion is the version token for a body: its hex SHA-256.
func ContentVersion(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func readLocalBody(d detector.Descriptor) ([]byte, error) {
	body, err := os.ReadFile(d.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: read body for %s: %w", domainerr.ErrFetch, d.ID, err)
	}
	return body, nil
}

func readLocalSolution(path, code string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no solution for %s", domainerr.ErrNotFound, code)
		}
		return nil, fmt.Errorf("%w: read solution for %s: %w", domainerr.ErrFetch, code, err)
	}
	return data, nil
}
