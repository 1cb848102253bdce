// Package exec runs a job's script chain as raw OS processes and
// reports per-script outcomes for the telemetry emitter and the
// Monitor's check engine.
package exec

import (
	"context"
	"io"
)

// StartOptions describes a single process to launch.
type StartOptions struct {
	Path       string
	Args       []string
	Env        map[string]string
	WorkingDir string
	RunID      string // used to namespace the process's scratch directory
}

// ExitResult is the terminal outcome of a started process.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a started, possibly still-running process.
type Handle interface {
	// Wait blocks until the process exits or ctx is done, whichever
	// comes first. On ctx cancellation, the process is killed and
	// ExitResult.ExitCode is -1.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop asks the process to terminate, escalating to a kill if it
	// doesn't exit promptly.
	Stop(ctx context.Context) error

	// StreamLogs returns a reader over the process's combined
	// stdout/stderr, readable concurrently with Wait.
	StreamLogs(ctx context.Context) (io.ReadCloser, error)
}

// Runtime starts processes. ExecRuntime is chief's only implementation
// — scripts always run on the same host as the daemon.
type Runtime interface {
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}
