package detector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errorCodePattern = regexp.MustCompile(`^E\d+$`)

// IsErrorCode reports whether s has the E<digits> shape of a known error kind.
func IsErrorCode(s string) bool {
	return errorCodePattern.MatchString(s)
}

// ErrorReport is a single known error condition found in a log directory.
type ErrorReport struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Detail      string `json:"detail,omitempty"`
	HasSolution bool   `json:"has_solution"`
}

// Validate checks the report against the detector contract.
func (r ErrorReport) Validate() error {
	if !IsErrorCode(r.Code) {
		return fmt.Errorf("invalid error code %q", r.Code)
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("report title is empty")
	}
	return nil
}
