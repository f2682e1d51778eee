package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CLIRepository implements Repository on top of the git command line.
type CLIRepository struct {
	root         string
	run          Runner
	readTimeout  time.Duration
	writeTimeout time.Duration
	pushTimeout  time.Duration
	showIgnored  bool

	diagnostics *commandDiagnostics
	queue       *writeQueue
	sleep       backoffSleeper

	msgMu         sync.Mutex
	message       string
	messageLoaded bool

	listenersMu  sync.Mutex
	listeners    map[uint64]func()
	nextListener uint64
}

// CLIOption configures a CLIRepository.
type CLIOption func(*CLIRepository)

// WithRunner replaces the git invocation, mainly for tests.
func WithRunner(run Runner) CLIOption {
	return func(r *CLIRepository) {
		if run != nil {
			r.run = run
		}
	}
}

// WithEmitter publishes command diagnostics under eventName.
func WithEmitter(emit EventEmitter, eventName string) CLIOption {
	return func(r *CLIRepository) {
		r.diagnostics = newCommandDiagnostics(emit, eventName)
	}
}

// WithTimeouts overrides the read, write and push limits. Zero keeps the default.
func WithTimeouts(read, write, push time.Duration) CLIOption {
	return func(r *CLIRepository) {
		if read > 0 {
			r.readTimeout = read
		}
		if write > 0 {
			r.writeTimeout = write
		}
		if push > 0 {
			r.pushTimeout = push
		}
	}
}

// WithShowIgnored includes ignored files in State.
func WithShowIgnored(show bool) CLIOption {
	return func(r *CLIRepository) {
		r.showIgnored = show
	}
}

func withSleeper(sleep backoffSleeper) CLIOption {
	return func(r *CLIRepository) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewCLIRepository returns a repository rooted at root. root must already be
// the working tree top level.
func NewCLIRepository(root string, opts ...CLIOption) *CLIRepository {
	r := &CLIRepository{
		root:         filepath.Clean(root),
		run:          NewExecRunner(""),
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		pushTimeout:  defaultPushTimeout,
		sleep:        sleepWithContext,
		listeners:    make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.diagnostics == nil {
		r.diagnostics = newCommandDiagnostics(nil, "")
	}
	r.queue = newWriteQueue(r.diagnostics)
	return r
}

func (r *CLIRepository) Root() string {
	return r.root
}

func (r *CLIRepository) gitArgs(args ...string) []string {
	return append([]string{"-C", r.root}, args...)
}

func (r *CLIRepository) State(ctx context.Context) (*State, error) {
	args := r.gitArgs("status", "--porcelain=v1", "-z", "--branch", "--untracked-files=all")
	if r.showIgnored {
		args = append(args, "--ignored")
	}

	stdout, stderr, exitCode, err := r.run(ctx, r.readTimeout, "", args...)
	if err != nil {
		return nil, r.commandError("status", args, stdout, stderr, exitCode, err)
	}
	return parsePorcelainStatus(r.root, stdout), nil
}

// ReadMessage returns the input buffer. The first read seeds it from
// MERGE_MSG when a merge is in progress.
func (r *CLIRepository) ReadMessage(ctx context.Context) (string, error) {
	r.msgMu.Lock()
	defer r.msgMu.Unlock()

	if !r.messageLoaded {
		r.message = r.readMergeMessage(ctx)
		r.messageLoaded = true
	}
	return r.message, nil
}

func (r *CLIRepository) WriteMessage(_ context.Context, text string) error {
	r.msgMu.Lock()
	defer r.msgMu.Unlock()

	r.message = text
	r.messageLoaded = true
	return nil
}

func (r *CLIRepository) readMergeMessage(ctx context.Context) string {
	stdout, _, _, err := r.run(ctx, r.readTimeout, "", r.gitArgs("rev-parse", "--git-path", "MERGE_MSG")...)
	if err != nil {
		return ""
	}
	path := strings.TrimSpace(stdout)
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func (r *CLIRepository) Add(ctx context.Context, paths []string) error {
	rel, err := r.relativePaths(paths)
	if err != nil || len(rel) == 0 {
		return err
	}
	return r.write(ctx, "stage", r.writeTimeout, "", append([]string{"add", "-A", "--"}, rel...)...)
}

func (r *CLIRepository) Revert(ctx context.Context, paths []string, opts RevertOptions) error {
	rel, err := r.relativePaths(paths)
	if err != nil || len(rel) == 0 {
		return err
	}

	if !opts.Staged {
		return r.write(ctx, "revert", r.writeTimeout, "", append([]string{"checkout", "--"}, rel...)...)
	}
	if !r.hasHead(ctx) {
		return r.write(ctx, "unstage", r.writeTimeout, "", append([]string{"rm", "--cached", "-r", "-q", "--"}, rel...)...)
	}
	rel = r.withRenameSources(ctx, rel)
	return r.write(ctx, "unstage", r.writeTimeout, "", append([]string{"restore", "--staged", "--"}, rel...)...)
}

// withRenameSources adds the source of every staged rename whose target is in
// rel, so unstaging the new name also unstages the removal of the old one.
func (r *CLIRepository) withRenameSources(ctx context.Context, rel []string) []string {
	state, err := r.State(ctx)
	if err != nil {
		return rel
	}

	wanted := make(map[string]struct{}, len(rel))
	for _, path := range rel {
		wanted[path] = struct{}{}
	}
	for _, change := range state.IndexChanges {
		if change.Status != IndexRenamed || change.OriginalURI == "" {
			continue
		}
		target, err := RelativeToRoot(r.root, change.URI)
		if err != nil {
			continue
		}
		if _, ok := wanted[target]; !ok {
			continue
		}
		source, err := RelativeToRoot(r.root, change.OriginalURI)
		if err != nil {
			continue
		}
		if _, dup := wanted[source]; dup {
			continue
		}
		wanted[source] = struct{}{}
		rel = append(rel, source)
	}
	return rel
}

// Clean restores tracked paths from the index and deletes untracked ones.
func (r *CLIRepository) Clean(ctx context.Context, paths []string) error {
	rel, err := r.relativePaths(paths)
	if err != nil || len(rel) == 0 {
		return err
	}

	tracked, err := r.trackedPaths(ctx, rel)
	if err != nil {
		return err
	}

	var restore, remove []string
	for _, path := range rel {
		if tracked[path] {
			restore = append(restore, path)
		} else {
			remove = append(remove, path)
		}
	}

	if len(restore) > 0 {
		if err := r.write(ctx, "discard", r.writeTimeout, "", append([]string{"checkout", "--"}, restore...)...); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		if err := r.write(ctx, "discard", r.writeTimeout, "", append([]string{"clean", "-f", "-q", "--"}, remove...)...); err != nil {
			return err
		}
	}
	return nil
}

func (r *CLIRepository) trackedPaths(ctx context.Context, rel []string) (map[string]bool, error) {
	args := r.gitArgs(append([]string{"ls-files", "-z", "--"}, rel...)...)
	stdout, stderr, exitCode, err := r.run(ctx, r.readTimeout, "", args...)
	if err != nil {
		return nil, r.commandError("ls-files", args, stdout, stderr, exitCode, err)
	}

	tracked := make(map[string]bool, len(rel))
	for _, entry := range strings.Split(stdout, "\x00") {
		if entry = strings.TrimSpace(entry); entry != "" {
			tracked[entry] = true
		}
	}
	return tracked, nil
}

func (r *CLIRepository) Commit(ctx context.Context, message string, opts CommitOptions) error {
	args := []string{"commit", "-F", "-"}
	if opts.Amend != nil && *opts.Amend {
		args = append(args, "--amend")
	}
	if opts.Signoff != nil && *opts.Signoff {
		args = append(args, "--signoff")
	}

	if err := r.write(ctx, "commit", r.writeTimeout, message, args...); err != nil {
		return err
	}

	r.msgMu.Lock()
	r.message = ""
	r.messageLoaded = true
	r.msgMu.Unlock()
	return nil
}

func (r *CLIRepository) Push(ctx context.Context) error {
	return r.write(ctx, "push", r.pushTimeout, "", "push")
}

// OnDidChange registers listener for repository change notifications.
func (r *CLIRepository) OnDidChange(listener func()) Disposable {
	if listener == nil {
		return DisposableFunc(nil)
	}

	r.listenersMu.Lock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = listener
	r.listenersMu.Unlock()

	var once sync.Once
	return DisposableFunc(func() {
		once.Do(func() {
			r.listenersMu.Lock()
			delete(r.listeners, id)
			r.listenersMu.Unlock()
		})
	})
}

func (r *CLIRepository) emitChange() {
	r.listenersMu.Lock()
	listeners := make([]func(), 0, len(r.listeners))
	for _, listener := range r.listeners {
		listeners = append(listeners, listener)
	}
	r.listenersMu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

// Close stops the write queue.
func (r *CLIRepository) Close(ctx context.Context) error {
	return r.queue.close(ctx)
}

func (r *CLIRepository) hasHead(ctx context.Context) bool {
	_, _, _, err := r.run(ctx, r.readTimeout, "", r.gitArgs("rev-parse", "--verify", "-q", "HEAD")...)
	return err == nil
}

func (r *CLIRepository) write(ctx context.Context, action string, timeout time.Duration, stdin string, args ...string) error {
	full := r.gitArgs(args...)
	diag := newCommandDiagnosticState(r.root, action, full)

	return r.queue.submit(ctx, diag, timeout, func(cmdCtx context.Context) error {
		stdout, stderr, exitCode, err := r.runWriteGitWithRetry(cmdCtx, diag, timeout, stdin, full...)
		if err != nil {
			return r.commandError(action, full, stdout, stderr, exitCode, err)
		}
		return nil
	})
}

func (r *CLIRepository) runWriteGitWithRetry(ctx context.Context, diag *commandDiagnosticState, timeout time.Duration, stdin string, args ...string) (string, string, int, error) {
	for attempt := 0; ; attempt++ {
		stdout, stderr, exitCode, runErr := r.run(ctx, remainingTimeout(ctx, timeout), stdin, args...)
		diag.recordAttempt(args, stderr, exitCode, attempt+1)
		if runErr == nil {
			return stdout, stderr, exitCode, nil
		}
		if ctxErr := queueErrorFromContext(runErr); errors.Is(ctxErr, ErrTimeout) || errors.Is(ctxErr, ErrCanceled) {
			return stdout, stderr, exitCode, ctxErr
		}
		if !isTransientIndexLockError(stderr, runErr) || attempt >= len(writeRetryBackoffs) {
			return stdout, stderr, exitCode, runErr
		}
		r.diagnostics.publish(diag, CommandStatusRetried, nil)

		if sleepErr := r.sleep(ctx, writeRetryBackoffs[attempt]); sleepErr != nil {
			return stdout, stderr, exitCode, queueErrorFromContext(sleepErr)
		}
	}
}

func (r *CLIRepository) commandError(op string, args []string, stdout string, stderr string, exitCode int, err error) error {
	var cmdErr *BackendCommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	return &BackendCommandError{
		Op:       op,
		Args:     sanitizeDiagnosticArgs(r.root, args),
		ExitCode: exitCode,
		Stderr:   r.diagnostics.sanitizer.Sanitize(strings.TrimSpace(stderr)),
		Stdout:   r.diagnostics.sanitizer.Sanitize(strings.TrimSpace(stdout)),
		Err:      err,
	}
}

// relativePaths converts absolute or repository-relative paths to
// slash-separated paths relative to the root.
func (r *CLIRepository) relativePaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		rel, err := RelativeToRoot(r.root, path)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

// RelativeToRoot returns path relative to root, rejecting anything that
// resolves outside it.
func RelativeToRoot(root string, path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRepository)
	}

	candidate := trimmed
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, filepath.FromSlash(candidate))
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(candidate))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepository, trimmed)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRepository, trimmed)
	}
	return filepath.ToSlash(rel), nil
}
