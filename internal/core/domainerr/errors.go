// Package domainerr holds the error taxonomy shared by the discovery, execution
// and solution layers. Callers match with errors.Is.
package domainerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Source and loading errors
var (
	ErrSourceUnavailable = errors.New("script source unavailable")
	ErrScriptLoad        = errors.New("script load failed")
	ErrFetch             = errors.New("fetch failed")
	ErrNotFound          = errors.New("not found")
)

// Execution errors
var (
	ErrScriptExecution = errors.New("script execution failed")
	ErrTimedOut        = errors.New("script timed out")
	ErrCancelled       = errors.New("run cancelled")
)

// Pipeline-level errors
var (
	ErrNoDetectors = errors.New("no detectors available")
	ErrNoLogFiles  = errors.New("no log files found")
	ErrExtract     = errors.New("archive extraction failed")
)

// LoadError marks err as a ScriptLoadError for the detector id.
func LoadError(id string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrScriptLoad, id, err)
}

// FetchError describes a failed remote request. It matches ErrFetch, except
// when the server answered 404: that is an authoritative absence and matches
// ErrNotFound only.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.Status, http.StatusText(e.Status))
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.URL)
	}
}

func (e *FetchError) Unwrap() []error {
	errs := []error{ErrFetch}
	if e.Status == http.StatusNotFound {
		errs = []error{ErrNotFound}
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether repeating the request could succeed.
func (e *FetchError) Retryable() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}
