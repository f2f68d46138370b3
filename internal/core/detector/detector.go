// Package detector defines the detector contract: descriptors discovered from a
// script source, loaded handles, the reports they produce and the outcomes of
// running them.
package detector

import (
	"context"
	"io"
)

// Detector inspects a log directory and reports at most one known error.
// A nil report with a nil error means nothing matched.
type Detector interface {
	Detect(ctx context.Context, logs LogDir) (*ErrorReport, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, logs LogDir) (*ErrorReport, error)

func (f DetectorFunc) Detect(ctx context.Context, logs LogDir) (*ErrorReport, error) {
	return f(ctx, logs)
}

// Handle is a loaded detector bound to the descriptor it came from.
type Handle struct {
	Descriptor Descriptor
	Detector   Detector
}

func NewHandle(d Descriptor, det Detector) *Handle {
	return &Handle{Descriptor: d, Detector: det}
}

// Close releases resources held by the detector, such as a plugin process.
func (h *Handle) Close() error {
	if c, ok := h.Detector.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
