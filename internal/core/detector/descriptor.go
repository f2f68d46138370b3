package detector

import (
	"errors"
	"fmt"
	"strings"
)

// Layout names the distribution layout a descriptor was discovered from.
type Layout string

const (
	// LayoutFolder is one directory per error code holding a detector body and a solution.
	LayoutFolder Layout = "folder"
	// LayoutIndex is a flat index document listing bodies by filename.
	LayoutIndex Layout = "index"
)

// Descriptor identifies and locates a detector body before it is loaded.
type Descriptor struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Version     string `json:"version"`
	CachePath   string `json:"cache_path,omitempty"`
	Layout      Layout `json:"layout"`

	// Problem is set by a backend when the raw entry could not be decoded.
	Problem string `json:"-"`
}

// Validate checks the descriptor schema. The identifier doubles as a cache
// key, so it may not contain path elements.
func (d Descriptor) Validate() error {
	if d.Problem != "" {
		return errors.New(d.Problem)
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return errors.New("missing identifier")
	}
	if id != d.ID || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("identifier %q is not a plain name", d.ID)
	}
	if d.Layout == LayoutFolder && !IsErrorCode(d.ID) {
		return fmt.Errorf("folder %q is not an error code", d.ID)
	}
	if d.Source == "" {
		return fmt.Errorf("%s: missing source location", d.ID)
	}
	return nil
}

// DisplayTitle falls back to the identifier when no title is known.
func (d Descriptor) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}

// ShortVersion trims content hashes for display.
func (d Descriptor) ShortVersion() string {
	if len(d.Version) > 12 {
		return d.Version[:12]
	}
	return d.Version
}
