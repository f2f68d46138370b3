// Package testfixtures builds script repositories and log directories for
// tests that exercise the pipeline end to end.
package testfixtures

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
)

type script struct {
	code     string
	title    string
	body     string
	solution string
}

// ScriptRepoBuilder provides a builder pattern for detector script repositories
type ScriptRepoBuilder struct {
	scripts []*script
}

// NewScriptRepoBuilder creates an empty repository
func NewScriptRepoBuilder() *ScriptRepoBuilder {
	return &ScriptRepoBuilder{}
}

func (b *ScriptRepoBuilder) get(code string) *script {
	for _, s := range b.scripts {
		if s.code == code {
			return s
		}
	}
	s := &script{code: code}
	b.scripts = append(b.scripts, s)
	return s
}

// WithRule adds a pattern rule that reports code when any pattern matches
func (b *ScriptRepoBuilder) WithRule(code, title string, patterns ...string) *ScriptRepoBuilder {
	quoted := make([]string, len(patterns))
	for i, p := range patterns {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	s := b.get(code)
	s.title = title
	s.body = fmt.Sprintf("code: %s\ntitle: %s\npatterns: [%s]\n", code, title, strings.Join(quoted, ", "))
	return b
}

// WithBody sets a raw detector body
func (b *ScriptRepoBuilder) WithBody(code, body string) *ScriptRepoBuilder {
	b.get(code).body = body
	return b
}

// WithSolution sets the markdown solution for code
func (b *ScriptRepoBuilder) WithSolution(code, markdown string) *ScriptRepoBuilder {
	b.get(code).solution = markdown
	return b
}

// FolderFiles returns the folder-per-code layout as relative path to content.
func (b *ScriptRepoBuilder) FolderFiles() map[string]string {
	files := make(map[string]string)
	for _, s := range b.scripts {
		if s.body != "" {
			files[path.Join(s.code, "detector.yaml")] = s.body
		}
		if s.solution != "" {
			files[path.Join(s.code, "solution.md")] = s.solution
		}
	}
	return files
}

// IndexFiles returns the flat index layout as relative path to content.
func (b *ScriptRepoBuilder) IndexFiles() map[string]string {
	type entry struct {
		Name     string `json:"name"`
		Filename string `json:"filename"`
		Title    string `json:"title,omitempty"`
		Version  string `json:"version,omitempty"`
	}
	files := make(map[string]string)
	entries := make([]entry, 0, len(b.scripts))
	for _, s := range b.scripts {
		if s.body != "" {
			filename := "scripts/" + strings.ToLower(s.code) + ".yaml"
			files[filename] = s.body
			entries = append(entries, entry{Name: s.code, Filename: filename, Title: s.title, Version: versionOf(s.body)})
		}
		if s.solution != "" {
			files["solutions/"+s.code+".md"] = s.solution
		}
	}
	index, err := json.MarshalIndent(map[string]any{"scripts": entries}, "", "  ")
	if err != nil {
		panic(err)
	}
	files["index.json"] = string(index)
	return files
}

func versionOf(body string) string {
	return fmt.Sprintf("v%d", len(body))
}

// WriteFolder writes the folder layout into a temp dir and returns it
func (b *ScriptRepoBuilder) WriteFolder(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, b.FolderFiles())
	return root
}

// WriteIndex writes the index layout into a temp dir and returns it
func (b *ScriptRepoBuilder) WriteIndex(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, b.IndexFiles())
	return root
}

// RepoServer serves a script repository over HTTP. While Down is set every
// request fails with 503.
type RepoServer struct {
	*httptest.Server
	Down     atomic.Bool
	requests atomic.Int64
	files    map[string]string
}

// Serve starts a RepoServer for the index layout. It is closed on cleanup.
func (b *ScriptRepoBuilder) Serve(t testing.TB) *RepoServer {
	t.Helper()
	s := &RepoServer{files: b.IndexFiles()}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.Down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, ok := s.files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the number of requests served so far
func (s *RepoServer) Requests() int64 {
	return s.requests.Load()
}

// Paths lists the served paths
func (s *RepoServer) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// WriteLogs writes log files into a temp dir and returns it
func WriteLogs(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	WriteTree(t, dir, files)
	return dir
}

// WriteTree writes slash-separated relative paths under root
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}
