// Package logging builds the hclog loggers handed to every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger.
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// ParseLevel accepts trace, debug, info, warn and error in any case.
func ParseLevel(level string) (hclog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return hclog.Info, nil
	}
	l := hclog.LevelFromString(level)
	if l == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// New creates the root logger. Output defaults to stderr so reports on stdout
// stay machine-readable.
func New(opts Options) (hclog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Name == "" {
		opts.Name = "maadoctor"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     opts.Output,
		JSONFormat: opts.JSON,
	}), nil
}

// PluginLogger is the logger given to go-plugin clients. Plugin output is
// discarded unless the parent logs at debug level or below.
func PluginLogger(parent hclog.Logger) hclog.Logger {
	if parent == nil || !(parent.IsDebug() || parent.IsTrace()) {
		return hclog.New(&hclog.LoggerOptions{
			Name:   "plugin",
			Level:  hclog.Error,
			Output: io.Discard,
		})
	}
	return parent.Named("plugin")
}
