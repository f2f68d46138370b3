// Package ports declares the contracts the application services depend on.
// Implementations live under internal/infrastructure.
package ports

import (
	"context"

	"maadoctor.app/cli/internal/core/detector"
)

// Location tells whether a backend reads from disk or from the network.
type Location string

const (
	LocationLocal  Location = "local"
	LocationRemote Location = "remote"
)

// SourceBackend abstracts where detector bodies and solutions live.
type SourceBackend interface {
	// ListDescriptors returns every descriptor the source advertises. Entries
	// that could not be decoded carry a Problem instead of failing the call.
	// Fails with domainerr.ErrSourceUnavailable.
	ListDescriptors(ctx context.Context) ([]detector.Descriptor, error)

	// FetchBody returns the raw detector body. Fails with domainerr.ErrFetch.
	FetchBody(ctx context.Context, d detector.Descriptor) ([]byte, error)

	// FetchSolution returns the markdown solution for an error code. Fails with
	// domainerr.ErrNotFound or domainerr.ErrFetch.
	FetchSolution(ctx context.Context, code string) ([]byte, error)

	Location() Location

	// String describes the source for logs and status output.
	String() string
}

// SnapshotReporter is implemented by backends that answer ListDescriptors from
// a stored copy when the repository cannot be reached.
type SnapshotReporter interface {
	// ServedSnapshot reports whether the most recent listing came from the
	// stored copy.
	ServedSnapshot() bool
}

// PluginLauncher starts external detector processes.
type PluginLauncher interface {
	Launch(ctx context.Context, path string) (detector.Detector, error)
	Close() error
}

// ArchiveExtractor unpacks a log archive into a working directory.
type ArchiveExtractor interface {
	Extract(ctx context.Context, archivePath string) (string, error)
	Cleanup() error
}
