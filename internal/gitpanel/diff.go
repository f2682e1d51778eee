package gitpanel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"commitkit/internal/repository"
)

const defaultMaxDiffBytes = 2 * 1024 * 1024

// Differ runs a git command inside a repository and reports the raw result.
type Differ interface {
	RunGit(ctx context.Context, root string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// DiffContext identifies the change a diff is requested for.
type DiffContext struct {
	URI         string       `json:"uri"`
	PreviousURI string       `json:"previousUri,omitempty"`
	Staged      bool         `json:"staged"`
	Status      ChangeStatus `json:"status"`
}

// GetDiff returns the right-trimmed text diff for one change. Exit status 1
// means "differences found" for --no-index and is not an error.
func (s *Service) GetDiff(ctx context.Context, dc DiffContext) (string, error) {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return "", err
	}

	target, err := PathFromURI(dc.URI)
	if err != nil {
		return "", err
	}
	root := repo.Root()
	rel, err := repository.RelativeToRoot(root, target)
	if err != nil {
		return "", err
	}

	args, err := diffArgs(root, rel, dc)
	if err != nil {
		return "", err
	}

	stdout, stderr, exitCode, runErr := s.differ.RunGit(ctx, root, args...)
	if runErr != nil && !acceptableDiffExit(exitCode, runErr) {
		return "", &repository.BackendCommandError{
			Op:       "diff",
			Args:     args,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr),
			Stdout:   strings.TrimSpace(stdout),
			Err:      runErr,
		}
	}

	return truncateDiff(strings.TrimRightFunc(stdout, unicode.IsSpace), s.maxDiffBytes), nil
}

func diffArgs(root string, rel string, dc DiffContext) ([]string, error) {
	switch {
	case dc.Status == StatusUntracked:
		return []string{"diff", "--no-index", "--color=never", "--", os.DevNull, rel}, nil
	case dc.Staged:
		args := []string{"diff", "--cached", "--color=never"}
		if dc.PreviousURI == "" {
			return append(args, "--", rel), nil
		}
		previous, err := PathFromURI(dc.PreviousURI)
		if err != nil {
			return nil, err
		}
		previousRel, err := repository.RelativeToRoot(root, previous)
		if err != nil {
			return nil, err
		}
		if previousRel == rel {
			return append(args, "--", rel), nil
		}
		return append(args, "-M", "--", previousRel, rel), nil
	default:
		return []string{"diff", "--color=never", "--", rel}, nil
	}
}

func acceptableDiffExit(exitCode int, err error) bool {
	if errors.Is(err, repository.ErrTimeout) || errors.Is(err, repository.ErrCanceled) {
		return false
	}
	return exitCode == 1
}

func truncateDiff(diff string, limit int) string {
	if limit <= 0 || len(diff) <= limit {
		return diff
	}

	cut := diff[:limit]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut + fmt.Sprintf("\n... diff truncated (%d of %d bytes shown)", len(cut), len(diff))
}
