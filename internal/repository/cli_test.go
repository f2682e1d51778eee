package repository

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteQueueSerializesCommandsPerRepository(t *testing.T) {
	var running atomic.Int32
	var maxRunning atomic.Int32

	runner := func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		current := running.Add(1)
		for {
			prev := maxRunning.Load()
			if current <= prev || maxRunning.CompareAndSwap(prev, current) {
				break
			}
		}
		defer running.Add(-1)

		select {
		case <-ctx.Done():
			return "", "", 0, ctx.Err()
		case <-time.After(30 * time.Millisecond):
			return "", "", 0, nil
		}
	}

	repo := NewCLIRepository("/tmp/commitkit-queue", WithRunner(runner))
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	errCh := make(chan error, 3)
	go func() { errCh <- repo.Add(context.Background(), []string{"/tmp/commitkit-queue/a.txt"}) }()
	go func() { errCh <- repo.Push(context.Background()) }()
	go func() { errCh <- repo.Commit(context.Background(), "msg", CommitOptions{}) }()

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	if maxRunning.Load() != 1 {
		t.Fatalf("expected writes to be serialized, got maxConcurrency=%d", maxRunning.Load())
	}
}

func TestRunWriteGitWithRetryForIndexLock(t *testing.T) {
	var attempts atomic.Int32
	var sleepMu sync.Mutex
	sleeps := make([]time.Duration, 0, 3)

	runner := func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		if attempts.Add(1) < 3 {
			return "", "fatal: Unable to create '/tmp/repo/.git/index.lock': File exists.", 128, errors.New("exit status 128")
		}
		return "", "", 0, nil
	}
	sleeper := func(ctx context.Context, d time.Duration) error {
		sleepMu.Lock()
		sleeps = append(sleeps, d)
		sleepMu.Unlock()
		return nil
	}

	repo := NewCLIRepository("/tmp/repo", WithRunner(runner), withSleeper(sleeper))
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	if err := repo.Add(context.Background(), []string{"a.txt"}); err != nil {
		t.Fatalf("expected retry flow to succeed, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("unexpected attempts: got=%d want=3", attempts.Load())
	}

	sleepMu.Lock()
	defer sleepMu.Unlock()
	if len(sleeps) != 2 || sleeps[0] != 80*time.Millisecond || sleeps[1] != 160*time.Millisecond {
		t.Fatalf("unexpected backoff sequence: %v", sleeps)
	}
}

func TestWriteFailureEmitsSanitizedDiagnostic(t *testing.T) {
	repoRoot := t.TempDir()
	var eventsMu sync.Mutex
	var events []CommandResult

	runner := func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		lockPath := filepath.Join(repoRoot, ".git", "index.lock")
		return "", "fatal: could not lock " + lockPath + ": File exists", 128, errors.New("exit status 128")
	}
	emit := func(eventName string, data interface{}) {
		if eventName != "test:command_result" {
			t.Errorf("unexpected event name %q", eventName)
			return
		}
		payload, ok := data.(CommandResult)
		if !ok {
			t.Errorf("unexpected payload type %T", data)
			return
		}
		eventsMu.Lock()
		events = append(events, payload)
		eventsMu.Unlock()
	}

	repo := NewCLIRepository(repoRoot,
		WithRunner(runner),
		WithEmitter(emit, "test:command_result"),
		withSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	err := repo.Add(context.Background(), []string{"README.md"})
	var cmdErr *BackendCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected BackendCommandError, got %T %v", err, err)
	}
	if cmdErr.ExitCode != 128 || !strings.Contains(cmdErr.Error(), "could not lock") {
		t.Fatalf("unexpected command error: %+v", cmdErr)
	}

	eventsMu.Lock()
	defer eventsMu.Unlock()

	statuses := make([]string, 0, len(events))
	for _, event := range events {
		statuses = append(statuses, event.Status)
	}
	joined := strings.Join(statuses, ",")
	if !strings.HasPrefix(joined, "queued,started,retried") || !strings.HasSuffix(joined, "failed") {
		t.Fatalf("unexpected lifecycle: %s", joined)
	}

	failed := events[len(events)-1]
	if failed.CommandID == "" || failed.CommandID != events[0].CommandID {
		t.Fatalf("expected one stable command id, got %q and %q", events[0].CommandID, failed.CommandID)
	}
	if failed.Attempt != len(writeRetryBackoffs)+1 {
		t.Fatalf("unexpected attempt count: %d", failed.Attempt)
	}
	if strings.Contains(failed.StderrSanitized, repoRoot) {
		t.Fatalf("stderr must be sanitized: %q", failed.StderrSanitized)
	}
	for _, arg := range failed.Args {
		if strings.Contains(arg, repoRoot) {
			t.Fatalf("args must be sanitized: %v", failed.Args)
		}
	}
}

func TestWriteRespectsTimeout(t *testing.T) {
	runner := func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		<-ctx.Done()
		return "", "", 0, ctx.Err()
	}

	repo := NewCLIRepository("/tmp/commitkit-timeout", WithRunner(runner), WithTimeouts(0, 30*time.Millisecond, 0))
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	err := repo.Add(context.Background(), []string{"README.md"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got: %v", err)
	}
}

func TestCloseCancelsInFlightWrite(t *testing.T) {
	started := make(chan struct{}, 1)
	runner := func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return "", "", 0, ctx.Err()
	}

	repo := NewCLIRepository("/tmp/commitkit-close", WithRunner(runner))
	errCh := make(chan error, 1)
	go func() { errCh <- repo.Push(context.Background()) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("command never started")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := repo.Close(closeCtx); err != nil {
		t.Fatalf("expected clean close, got: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCanceled) && !errors.Is(err, ErrClosed) {
			t.Fatalf("unexpected error after close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("command did not return after close")
	}

	if err := repo.Add(context.Background(), []string{"a"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got: %v", err)
	}
}

func TestCommitPassesOnlyExplicitOptions(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string
	var stdins []string

	runner := func(ctx context.Context, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
		mu.Lock()
		calls = append(calls, append([]string(nil), args...))
		stdins = append(stdins, stdin)
		mu.Unlock()
		return "", "", 0, nil
	}

	repo := NewCLIRepository("/tmp/commitkit-commit", WithRunner(runner))
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	if err := repo.Commit(context.Background(), "Subject\n\nBody", CommitOptions{Amend: BoolPtr(false)}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := repo.Commit(context.Background(), "Again", CommitOptions{Amend: BoolPtr(true), Signoff: BoolPtr(true)}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if containsArg(calls[0], "--amend") || containsArg(calls[0], "--signoff") {
		t.Fatalf("unset or false options must not be passed: %v", calls[0])
	}
	if !hasArgSequence(calls[0], "commit", "-F", "-") || stdins[0] != "Subject\n\nBody" {
		t.Fatalf("expected message on stdin, got args=%v stdin=%q", calls[0], stdins[0])
	}
	if !containsArg(calls[1], "--amend") || !containsArg(calls[1], "--signoff") {
		t.Fatalf("expected amend and signoff: %v", calls[1])
	}
}

func TestRelativeToRootRejectsEscapes(t *testing.T) {
	root := filepath.FromSlash("/tmp/repo")

	rel, err := RelativeToRoot(root, filepath.Join(root, "src", "main.go"))
	if err != nil || rel != "src/main.go" {
		t.Fatalf("unexpected result: %q %v", rel, err)
	}

	for _, candidate := range []string{"../secret.txt", filepath.FromSlash("/etc/passwd"), "", root} {
		if _, err := RelativeToRoot(root, candidate); !errors.Is(err, ErrOutsideRepository) {
			t.Fatalf("expected %q to be rejected, got %v", candidate, err)
		}
	}
}

func TestCLIRepositoryAgainstRealGit(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	ctx := context.Background()

	writeFileOrFail(t, filepath.Join(repoRoot, "README.md"), "changed\n")
	writeFileOrFail(t, filepath.Join(repoRoot, "notes.txt"), "new\n")

	state, err := repo.State(ctx)
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if derefString(state.Head.Name) == "" {
		t.Fatalf("expected a branch name")
	}
	readme := filepath.Join(repoRoot, "README.md")
	notes := filepath.Join(repoRoot, "notes.txt")
	if findChange(state.WorkingTreeChanges, readme) == nil || findChange(state.UntrackedChanges, notes) == nil {
		t.Fatalf("unexpected state: %+v", state)
	}

	if err := repo.Add(ctx, []string{readme, notes}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	state, _ = repo.State(ctx)
	if len(state.IndexChanges) != 2 || len(state.UntrackedChanges) != 0 {
		t.Fatalf("expected both paths staged: %+v", state)
	}

	if err := repo.Revert(ctx, []string{notes}, RevertOptions{Staged: true}); err != nil {
		t.Fatalf("unstage failed: %v", err)
	}
	state, _ = repo.State(ctx)
	if findChange(state.UntrackedChanges, notes) == nil {
		t.Fatalf("expected notes.txt back to untracked: %+v", state)
	}

	if err := repo.Clean(ctx, []string{notes}); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	if _, err := os.Stat(notes); !os.IsNotExist(err) {
		t.Fatalf("expected untracked file to be deleted, stat err=%v", err)
	}

	if err := repo.WriteMessage(ctx, "Update readme"); err != nil {
		t.Fatalf("write message failed: %v", err)
	}
	if err := repo.Commit(ctx, "Update readme", CommitOptions{}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if msg, _ := repo.ReadMessage(ctx); msg != "" {
		t.Fatalf("expected buffer to be cleared after commit, got %q", msg)
	}

	state, _ = repo.State(ctx)
	if len(state.IndexChanges)+len(state.WorkingTreeChanges)+len(state.UntrackedChanges) != 0 {
		t.Fatalf("expected clean tree after commit: %+v", state)
	}
}

func TestCLIRepositoryDiscardRestoresTrackedFile(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	readme := filepath.Join(repoRoot, "README.md")
	writeFileOrFail(t, readme, "scratch\n")

	if err := repo.Clean(context.Background(), []string{readme}); err != nil {
		t.Fatalf("clean failed: %v", err)
	}
	data, err := os.ReadFile(readme)
	if err != nil || string(data) != "hello\n" {
		t.Fatalf("expected README.md restored, got %q err=%v", data, err)
	}
}

func TestCLIRepositoryUnstageOnUnbornBranch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
	repoRoot := t.TempDir()
	runGitOrFail(t, repoRoot, "init")

	first := filepath.Join(repoRoot, "first.txt")
	writeFileOrFail(t, first, "one\n")
	runGitOrFail(t, repoRoot, "add", "--", "first.txt")

	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	if err := repo.Revert(context.Background(), []string{first}, RevertOptions{Staged: true}); err != nil {
		t.Fatalf("unstage on unborn branch failed: %v", err)
	}
	state, err := repo.State(context.Background())
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if len(state.IndexChanges) != 0 || findChange(state.UntrackedChanges, first) == nil {
		t.Fatalf("expected first.txt untracked again: %+v", state)
	}
}

func TestCLIRepositoryUnstageRenameRestoresSource(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	runGitOrFail(t, repoRoot, "mv", "README.md", "NOTES.md")

	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	renamed := filepath.Join(repoRoot, "NOTES.md")
	if err := repo.Revert(context.Background(), []string{renamed}, RevertOptions{Staged: true}); err != nil {
		t.Fatalf("unstage rename failed: %v", err)
	}

	state, err := repo.State(context.Background())
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if len(state.IndexChanges) != 0 {
		t.Fatalf("expected nothing staged after unstaging a rename, got %+v", state.IndexChanges)
	}
	if findChange(state.UntrackedChanges, renamed) == nil {
		t.Fatalf("expected NOTES.md untracked: %+v", state)
	}
	if findChange(state.WorkingTreeChanges, filepath.Join(repoRoot, "README.md")) == nil {
		t.Fatalf("expected README.md deleted in the working tree: %+v", state)
	}
}

func TestReadMessageSeedsFromMergeMessage(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	mergeMsg := "Merge branch 'feature'\n\n# Conflicts:\n#\tREADME.md\n"
	writeFileOrFail(t, filepath.Join(repoRoot, ".git", "MERGE_MSG"), mergeMsg)

	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	msg, err := repo.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	if msg != "Merge branch 'feature'" {
		t.Fatalf("unexpected seeded message: %q", msg)
	}

	if err := repo.WriteMessage(context.Background(), "edited"); err != nil {
		t.Fatalf("write message failed: %v", err)
	}
	if msg, _ := repo.ReadMessage(context.Background()); msg != "edited" {
		t.Fatalf("buffer must not be reseeded, got %q", msg)
	}
}

func TestCLIRepositoryCommandErrorCarriesStderr(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	err := repo.Commit(context.Background(), "nothing staged", CommitOptions{})
	var cmdErr *BackendCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected BackendCommandError, got %v", err)
	}
	if cmdErr.ExitCode == 0 || strings.TrimSpace(cmdErr.Error()) == "" {
		t.Fatalf("expected failing exit code and message: %+v", cmdErr)
	}
}

func TestCLIRepositoryCommitWithNothingStagedExplainsWhy(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFileOrFail(t, filepath.Join(repoRoot, "README.md"), "unstaged edit\n")
	repo := NewCLIRepository(repoRoot)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	err := repo.Commit(context.Background(), "feat", CommitOptions{})
	var cmdErr *BackendCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected BackendCommandError, got %v", err)
	}
	if !strings.Contains(cmdErr.Error(), "no changes added to commit") {
		t.Fatalf("expected git's explanation in the message, got %q", cmdErr.Error())
	}
	if strings.Contains(cmdErr.Error(), "exit status") {
		t.Fatalf("message must not be the bare process error: %q", cmdErr.Error())
	}
}

func TestBackendCommandErrorMessagePriority(t *testing.T) {
	cases := []struct {
		name string
		err  *BackendCommandError
		want string
	}{
		{name: "stderr", err: &BackendCommandError{Op: "add", Stderr: "fatal: bad path", Stdout: "ignored"}, want: "fatal: bad path"},
		{name: "stdout summary", err: &BackendCommandError{Op: "commit", Stdout: "On branch main\n\nnothing to commit, working tree clean\n", Err: errors.New("exit status 1")}, want: "nothing to commit, working tree clean"},
		{name: "process error", err: &BackendCommandError{Op: "push", Err: errors.New("exit status 128")}, want: "exit status 128"},
		{name: "exit code", err: &BackendCommandError{Op: "push", ExitCode: 2}, want: "git push failed with exit code 2"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("%s: got=%q want=%q", tc.name, got, tc.want)
		}
	}
}

func hasArgSequence(args []string, sequence ...string) bool {
	if len(sequence) == 0 || len(args) < len(sequence) {
		return false
	}
	for i := 0; i+len(sequence) <= len(args); i++ {
		matched := true
		for j := range sequence {
			if args[i+j] != sequence[j] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func containsArg(args []string, token string) bool {
	for _, arg := range args {
		if arg == token {
			return true
		}
	}
	return false
}

func mustInitTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}

	repoRoot := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(repoRoot); err == nil {
		repoRoot = resolved
	}
	runGitOrFail(t, repoRoot, "init")
	runGitOrFail(t, repoRoot, "config", "user.email", "tests@commitkit.local")
	runGitOrFail(t, repoRoot, "config", "user.name", "CommitKit Tests")
	runGitOrFail(t, repoRoot, "config", "commit.gpgsign", "false")

	writeFileOrFail(t, filepath.Join(repoRoot, "README.md"), "hello\n")
	runGitOrFail(t, repoRoot, "add", "--", "README.md")
	runGitOrFail(t, repoRoot, "commit", "-m", "initial commit")
	return repoRoot
}

func runGitOrFail(t *testing.T, repoRoot string, args ...string) {
	t.Helper()

	allArgs := append([]string{"-C", repoRoot}, args...)
	_, stderr, _, err := runGitWithInput(context.Background(), "git", 5*time.Second, "", allArgs...)
	if err != nil {
		t.Fatalf("git %s failed: %v stderr=%s", strings.Join(args, " "), err, strings.TrimSpace(stderr))
	}
}

func writeFileOrFail(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
