package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
)

const (
	// IndexFile is the flat index document at the root of an index layout.
	IndexFile = "index.json"
	// SolutionsDir holds <code>.md solution documents in an index layout.
	SolutionsDir = "solutions"
)

// IndexEntry is one script in the flat index document.
type IndexEntry struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Title       string `json:"title"`
}

type indexDocument struct {
	Scripts []json.RawMessage `json:"scripts"`
}

// ParseIndex decodes an index document. A document that is not an index at
// all is an error; individual entries that fail to decode come back as
// descriptors with Problem set. locate maps an entry filename to its source.
func ParseIndex(data []byte, locate func(filename string) string) ([]detector.Descriptor, error) {
	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed index: %w", err)
	}
	if doc.Scripts == nil {
		return nil, errors.New("malformed index: missing scripts list")
	}

	out := make([]detector.Descriptor, 0, len(doc.Scripts))
	for i, raw := range doc.Scripts {
		var entry IndexEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			out = append(out, detector.Descriptor{
				ID:      fmt.Sprintf("entry #%d", i+1),
				Layout:  detector.LayoutIndex,
				Problem: fmt.Sprintf("entry #%d: %v", i+1, err),
			})
			continue
		}

		d := detector.Descriptor{
			ID:          entry.Name,
			Title:       entry.Title,
			Description: entry.Description,
			Version:     entry.Version,
			Layout:      detector.LayoutIndex,
		}
		switch {
		case entry.Filename == "":
			d.Problem = fmt.Sprintf("%s: missing filename", displayName(entry.Name, i))
		case !isLocalPath(entry.Filename):
			d.Problem = fmt.Sprintf("%s: filename %q escapes the source root", displayName(entry.Name, i), entry.Filename)
		default:
			d.Source = locate(entry.Filename)
		}
		out = append(out, d)
	}
	return out, nil
}

func displayName(name string, i int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("entry #%d", i+1)
}

func isLocalPath(name string) bool {
	return filepath.IsLocal(filepath.FromSlash(name)) && !strings.Contains(name, `\`)
}

// IndexBackend reads the flat index layout from disk:
//
//	<root>/index.json
//	<root>/<filename>
//	<root>/solutions/<code>.md
type IndexBackend struct {
	root   string
	logger hclog.Logger
}

func NewIndexBackend(root string, logger hclog.Logger) *IndexBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &IndexBackend{root: root, logger: logger.Named("index")}
}

func (b *IndexBackend) ListDescriptors(ctx context.Context) ([]detector.Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(b.root, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domainerr.ErrSourceUnavailable, b.root, err)
	}
	descriptors, err := ParseIndex(data, func(filename string) string {
		return filepath.Join(b.root, filepath.FromSlash(filename))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domainerr.ErrSourceUnavailable, b.root, err)
	}
	for i := range descriptors {
		d := &descriptors[i]
		if d.Problem != "" || d.Version != "" {
			continue
		}
		// Unversioned entries get a content hash so the cache can tell edits apart.
		if body, err := os.ReadFile(d.Source); err == nil {
			d.Version = ContentVersion(body)
		}
	}
	b.logger.Debug("read index", "root", b.root, "count", len(descriptors))
	return descriptors, nil
}

func (b *IndexBackend) FetchBody(ctx context.Context, d detector.Descriptor) ([]byte, error) {
	return readLocalBody(d)
}

func (b *IndexBackend) FetchSolution(ctx context.Context, code string) ([]byte, error) {
	if !detector.IsErrorCode(code) {
		return nil, fmt.Errorf("%w: invalid error code %q", domainerr.ErrNotFound, code)
	}
	return readLocalSolution(filepath.Join(b.root, SolutionsDir, code+".md"), code)
}

func (b *IndexBackend) Location() ports.Location { return ports.LocationLocal }

func (b *IndexBackend) String() string { return "index " + b.root }

// solutionPath is the slash path of a solution relative to an index root.
func solutionPath(code string) string {
	return path.Join(SolutionsDir, code+".md")
}
