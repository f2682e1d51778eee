package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultReadTimeout  = 8 * time.Second
	defaultWriteTimeout = 12 * time.Second
	defaultPushTimeout  = 2 * time.Minute
)

// Runner executes git with the given stdin and arguments and reports stdout,
// stderr and the exit code. A non-zero exit yields a non-nil error.
type Runner func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error)

// NewExecRunner returns a Runner invoking the git binary at gitPath.
func NewExecRunner(gitPath string) Runner {
	bin := strings.TrimSpace(gitPath)
	if bin == "" {
		bin = "git"
	}
	return func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		return runGitWithInput(ctx, bin, timeout, stdin, args...)
	}
}

func runGitWithInput(ctx context.Context, bin string, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	childCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(childCtx, bin, args...)
	// status would otherwise take index.lock and wake the change watcher
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_OPTIONAL_LOCKS=0", "LC_ALL=C")
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if errors.Is(childCtx.Err(), context.DeadlineExceeded) {
			return stdout.String(), stderr.String(), exitCode, fmt.Errorf("%w: %s", ErrTimeout, formatCommandFailureDetails(stderr.String(), exitCode, runErr))
		}
		if errors.Is(childCtx.Err(), context.Canceled) {
			return stdout.String(), stderr.String(), exitCode, fmt.Errorf("%w: %v", ErrCanceled, runErr)
		}
		return stdout.String(), stderr.String(), exitCode, runErr
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

func formatCommandFailureDetails(stderr string, exitCode int, err error) string {
	parts := make([]string, 0, 3)

	trimmedStderr := strings.TrimSpace(stderr)
	if trimmedStderr != "" {
		parts = append(parts, trimmedStderr)
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit_code=%d", exitCode))
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		parts = append(parts, err.Error())
	}

	return strings.Join(parts, " | ")
}

// DiffRunner runs read-only diff invocations for the panel. Unlike repository
// writes it reports the raw exit code so callers can decide what counts as
// success.
type DiffRunner struct {
	run     Runner
	timeout time.Duration
}

// NewDiffRunner builds a DiffRunner; a nil runner uses the git binary on PATH.
func NewDiffRunner(run Runner, timeout time.Duration) *DiffRunner {
	if run == nil {
		run = NewExecRunner("")
	}
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &DiffRunner{run: run, timeout: timeout}
}

// RunGit executes git inside root.
func (d *DiffRunner) RunGit(ctx context.Context, root string, args ...string) (string, string, int, error) {
	full := append([]string{"-C", root}, args...)
	return d.run(ctx, d.timeout, "", full...)
}
