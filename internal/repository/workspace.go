package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// WorkspaceOptions configures the repositories a Workspace opens.
type WorkspaceOptions struct {
	GitPath       string
	Runner        Runner
	Emitter       EventEmitter
	EventName     string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PushTimeout   time.Duration
	ShowIgnored   bool
	WatchDebounce time.Duration
	WatchMaxDirs  int
	// DisableWatch skips fsnotify; change events then only come from Refresh.
	DisableWatch bool
}

type workspaceEntry struct {
	repo    *CLIRepository
	watcher *repoWatcher
}

// Workspace is the Host backed by git repositories opened from disk.
type Workspace struct {
	opts WorkspaceOptions
	run  Runner

	mu             sync.Mutex
	entries        []*workspaceEntry
	openListeners  map[uint64]func(Repository)
	closeListeners map[uint64]func(Repository)
	nextListener   uint64
	disposed       bool
}

func NewWorkspace(opts WorkspaceOptions) *Workspace {
	run := opts.Runner
	if run == nil {
		run = NewExecRunner(opts.GitPath)
	}
	return &Workspace{
		opts:           opts,
		run:            run,
		openListeners:  make(map[uint64]func(Repository)),
		closeListeners: make(map[uint64]func(Repository)),
	}
}

// Open resolves the repository containing path and registers it. Opening an
// already known root returns the existing repository without notifying.
func (w *Workspace) Open(ctx context.Context, path string) (Repository, error) {
	root, gitDir, err := w.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if existing := w.findLocked(root); existing != nil {
		w.mu.Unlock()
		return existing.repo, nil
	}
	w.mu.Unlock()

	repo := NewCLIRepository(root,
		WithRunner(w.run),
		WithEmitter(w.opts.Emitter, w.opts.EventName),
		WithTimeouts(w.opts.ReadTimeout, w.opts.WriteTimeout, w.opts.PushTimeout),
		WithShowIgnored(w.opts.ShowIgnored),
	)
	entry := &workspaceEntry{repo: repo}
	if !w.opts.DisableWatch {
		ignored := w.ignoredDirs(ctx, root)
		watcher, watchErr := newRepoWatcher(root, gitDir, w.opts.WatchDebounce, w.opts.WatchMaxDirs, ignored, repo.emitChange)
		if watchErr != nil {
			log.Printf("[CommitKit][Watcher] Warning: change events disabled for %s: %v", root, watchErr)
		} else {
			entry.watcher = watcher
		}
	}

	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		_ = closeEntry(ctx, entry)
		return nil, ErrClosed
	}
	if existing := w.findLocked(root); existing != nil {
		w.mu.Unlock()
		_ = closeEntry(ctx, entry)
		return existing.repo, nil
	}
	w.entries = append(w.entries, entry)
	listeners := snapshotRepoListeners(w.openListeners)
	w.mu.Unlock()

	log.Printf("[CommitKit] Opened repository %s", root)
	for _, listener := range listeners {
		listener(repo)
	}
	return repo, nil
}

// Close unregisters the repository whose root contains path.
func (w *Workspace) Close(ctx context.Context, path string) error {
	cleaned := filepath.Clean(strings.TrimSpace(path))

	w.mu.Lock()
	index := -1
	for i, entry := range w.entries {
		if entry.repo.Root() == cleaned || isWithin(entry.repo.Root(), cleaned) {
			index = i
			break
		}
	}
	if index < 0 {
		w.mu.Unlock()
		return nil
	}
	entry := w.entries[index]
	w.entries = append(w.entries[:index:index], w.entries[index+1:]...)
	listeners := snapshotRepoListeners(w.closeListeners)
	w.mu.Unlock()

	err := closeEntry(ctx, entry)
	log.Printf("[CommitKit] Closed repository %s", entry.repo.Root())
	for _, listener := range listeners {
		listener(entry.repo)
	}
	return err
}

// Dispose closes every repository. Close listeners are not notified.
func (w *Workspace) Dispose(ctx context.Context) error {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return nil
	}
	w.disposed = true
	entries := w.entries
	w.entries = nil
	w.openListeners = make(map[uint64]func(Repository))
	w.closeListeners = make(map[uint64]func(Repository))
	w.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		if err := closeEntry(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh fires the change event of every open repository.
func (w *Workspace) Refresh() {
	w.mu.Lock()
	repos := make([]*CLIRepository, 0, len(w.entries))
	for _, entry := range w.entries {
		repos = append(repos, entry.repo)
	}
	w.mu.Unlock()

	for _, repo := range repos {
		repo.emitChange()
	}
}

func (w *Workspace) Repositories() []Repository {
	w.mu.Lock()
	defer w.mu.Unlock()

	repos := make([]Repository, 0, len(w.entries))
	for _, entry := range w.entries {
		repos = append(repos, entry.repo)
	}
	return repos
}

func (w *Workspace) OnDidOpenRepository(listener func(Repository)) Disposable {
	return w.subscribe(func() map[uint64]func(Repository) { return w.openListeners }, listener)
}

func (w *Workspace) OnDidCloseRepository(listener func(Repository)) Disposable {
	return w.subscribe(func() map[uint64]func(Repository) { return w.closeListeners }, listener)
}

func (w *Workspace) subscribe(target func() map[uint64]func(Repository), listener func(Repository)) Disposable {
	if listener == nil {
		return DisposableFunc(nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return DisposableFunc(nil)
	}

	id := w.nextListener
	w.nextListener++
	target()[id] = listener

	var once sync.Once
	return DisposableFunc(func() {
		once.Do(func() {
			w.mu.Lock()
			delete(target(), id)
			w.mu.Unlock()
		})
	})
}

func (w *Workspace) findLocked(root string) *workspaceEntry {
	for _, entry := range w.entries {
		if entry.repo.Root() == root {
			return entry
		}
	}
	return nil
}

func (w *Workspace) resolve(ctx context.Context, path string) (string, string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", "", ErrNoRepository
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("resolve workspace path: %w", err)
	}

	stdout, _, _, err := w.run(ctx, w.opts.ReadTimeout, "", "-C", abs, "rev-parse", "--show-toplevel", "--absolute-git-dir")
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCanceled) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: %s", ErrNoRepository, abs)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoRepository, abs)
	}
	return filepath.Clean(strings.TrimSpace(lines[0])), filepath.Clean(strings.TrimSpace(lines[1])), nil
}

// ignoredDirs lists the directories git ignores under root, such as build
// output, so the watcher does not walk them.
func (w *Workspace) ignoredDirs(ctx context.Context, root string) []string {
	stdout, _, _, err := w.run(ctx, w.opts.ReadTimeout, "",
		"-C", root, "ls-files", "-z", "--others", "--ignored", "--exclude-standard", "--directory")
	if err != nil {
		log.Printf("[CommitKit][Watcher] Warning: could not list ignored directories in %s: %v", root, err)
		return nil
	}
	return parseIgnoredDirs(root, stdout)
}

func parseIgnoredDirs(root string, raw string) []string {
	var dirs []string
	for _, entry := range strings.Split(raw, "\x00") {
		if !strings.HasSuffix(entry, "/") {
			continue
		}
		dirs = append(dirs, filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(entry, "/"))))
	}
	return dirs
}

func closeEntry(ctx context.Context, entry *workspaceEntry) error {
	var errs []error
	if entry.watcher != nil {
		if err := entry.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := entry.repo.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func snapshotRepoListeners(listeners map[uint64]func(Repository)) []func(Repository) {
	out := make([]func(Repository), 0, len(listeners))
	for _, listener := range listeners {
		out = append(out, listener)
	}
	return out
}
