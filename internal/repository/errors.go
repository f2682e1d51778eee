package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoRepository is returned by every operation when no repository is open.
var ErrNoRepository = errors.New("no git repository detected in the current workspace")

// BackendCommandError reports a failed git invocation.
type BackendCommandError struct {
	Op       string
	Args     []string
	ExitCode int
	Stderr   string
	// Stdout is kept for commands like commit that explain failures there.
	Stdout   string
	Err      error
}

// Error prefers the backend's diagnostic output over the process error:
// stderr, else the last line of stdout.
func (e *BackendCommandError) Error() string {
	if e == nil {
		return ""
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		return stderr
	}
	if summary := lastLine(e.Stdout); summary != "" {
		return summary
	}
	if e.Err != nil && strings.TrimSpace(e.Err.Error()) != "" {
		return strings.TrimSpace(e.Err.Error())
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("git %s failed with exit code %d", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("git %s failed", e.Op)
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (e *BackendCommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrTimeout and ErrCanceled classify context failures of git invocations.
var (
	ErrTimeout  = errors.New("git command exceeded its time limit")
	ErrCanceled = errors.New("git command canceled")
)

// ErrClosed is returned once the repository's write queue has shut down.
var ErrClosed = errors.New("repository closed")

// ErrOutsideRepository is returned for paths that escape the repository root.
var ErrOutsideRepository = errors.New("path is outside the repository")
