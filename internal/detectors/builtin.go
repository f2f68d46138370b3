// Package detectors holds the compiled-in detectors that rule bodies can
// reference with a builtin key.
package detectors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"maadoctor.app/cli/internal/core/detector"
)

const (
	MissingFile = "missing-file"
	EmptyFile   = "empty-file"
)

// RegisterBuiltins adds every compiled-in detector to r. reviewer backs
// ai-review and may be nil, in which case rules using it fail to load.
func RegisterBuiltins(r *detector.Registry, reviewer Reviewer) error {
	for name, factory := range map[string]detector.Factory{
		MissingFile: newMissingFile,
		EmptyFile:   newEmptyFile,
		AIReview:    newAIReview(reviewer),
	} {
		if err := r.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry with the builtins already registered.
func NewRegistry(reviewer Reviewer) *detector.Registry {
	r := detector.NewRegistry()
	if err := RegisterBuiltins(r, reviewer); err != nil {
		panic(err)
	}
	return r
}

func requireFiles(rule detector.Rule) error {
	if len(rule.Files) == 0 {
		return errors.New("files must list at least one file name")
	}
	return nil
}

// extensionsOf returns the extensions of the named files so that the walk
// does not drop files outside the default log extensions. A name without an
// extension contributes "", which selects extensionless files.
func extensionsOf(names []string) []string {
	seen := make(map[string]bool)
	var exts []string
	for _, n := range names {
		ext := strings.ToLower(path.Ext(n))
		if !seen[ext] {
			seen[ext] = true
			exts = append(exts, ext)
		}
	}
	return exts
}

// present maps lower-cased base names of the rule's files to their paths.
func present(logs detector.LogDir, rule detector.Rule) (map[string]string, error) {
	files, err := logs.Files(extensionsOf(rule.Files), rule.Files)
	if err != nil {
		return nil, err
	}
	found := make(map[string]string, len(files))
	for _, f := range files {
		base := strings.ToLower(path.Base(f))
		if _, ok := found[base]; !ok {
			found[base] = f
		}
	}
	return found, nil
}

// missing-file reports when any of the listed files is absent from the
// archive, usually because the client crashed before writing it.
func newMissingFile(rule detector.Rule) (detector.Detector, error) {
	if err := requireFiles(rule); err != nil {
		return nil, err
	}
	return detector.DetectorFunc(func(ctx context.Context, logs detector.LogDir) (*detector.ErrorReport, error) {
		found, err := present(logs, rule)
		if err != nil {
			return nil, err
		}
		var missing []string
		for _, name := range rule.Files {
			if _, ok := found[strings.ToLower(name)]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) == 0 {
			return nil, nil
		}
		return rule.Report(fmt.Sprintf("missing from archive: %s", strings.Join(missing, ", "))), nil
	}), nil
}

// empty-file reports listed files that exist but hold no data.
func newEmptyFile(rule detector.Rule) (detector.Detector, error) {
	if err := requireFiles(rule); err != nil {
		return nil, err
	}
	return detector.DetectorFunc(func(ctx context.Context, logs detector.LogDir) (*detector.ErrorReport, error) {
		found, err := present(logs, rule)
		if err != nil {
			return nil, err
		}
		var empty []string
		for _, p := range found {
			info, err := fs.Stat(logs.FS(), p)
			if err != nil {
				return nil, err
			}
			if info.Size() == 0 {
				empty = append(empty, p)
			}
		}
		if len(empty) == 0 {
			return nil, nil
		}
		sort.Strings(empty)
		return rule.Report(fmt.Sprintf("empty: %s", strings.Join(empty, ", "))), nil
	}), nil
}
