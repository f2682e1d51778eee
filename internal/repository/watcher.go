package repository

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"commitkit/internal/config"
)

const defaultWatchDebounce = 200 * time.Millisecond

var skippedWorkTreeDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
}

// repoWatcher turns filesystem activity in one repository into debounced
// change notifications.
type repoWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	root     string
	gitDir   string
	debounce time.Duration
	maxDirs  int
	watched  int
	timer    *time.Timer
	onChange func()
	ignored  map[string]struct{}
	done     chan struct{}
	closed   bool
	rawLogs  bool
}

// ignoredDirs are absolute directories git ignores; they are not walked.
func newRepoWatcher(root string, gitDir string, debounce time.Duration, maxDirs int, ignoredDirs []string, onChange func()) (*repoWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	w := &repoWatcher{
		watcher:  watcher,
		root:     filepath.Clean(root),
		gitDir:   filepath.Clean(gitDir),
		debounce: debounce,
		maxDirs:  maxDirs,
		onChange: onChange,
		ignored:  make(map[string]struct{}, len(ignoredDirs)),
		done:     make(chan struct{}),
		rawLogs:  config.ReadEnvBool("COMMITKIT_WATCHER_DEBUG_RAW"),
	}

	for _, dir := range ignoredDirs {
		w.ignored[filepath.Clean(dir)] = struct{}{}
	}

	for _, path := range collectWatchPaths(w.gitDir) {
		w.add(path)
	}
	w.addWorkTree(w.root)

	go w.eventLoop()
	log.Printf("[CommitKit][Watcher] Watching %s (%d paths)", w.root, w.watched)
	return w, nil
}

func (w *repoWatcher) add(path string) {
	if w.maxDirs > 0 && w.watched >= w.maxDirs {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		log.Printf("[CommitKit][Watcher] Warning: could not watch %s: %v", path, err)
		return
	}
	w.watched++
}

func (w *repoWatcher) addWorkTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if _, skip := skippedWorkTreeDirs[entry.Name()]; skip && path != dir {
			return filepath.SkipDir
		}
		if _, skip := w.ignored[filepath.Clean(path)]; skip {
			return filepath.SkipDir
		}
		if w.maxDirs > 0 && w.watched >= w.maxDirs {
			return filepath.SkipAll
		}
		w.add(path)
		return nil
	})
}

func (w *repoWatcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.rawLogs {
				log.Printf("[CommitKit][Watcher][raw] op=%s path=%s", event.Op.String(), event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				w.watchNewDirectory(event.Name)
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[CommitKit][Watcher] Error: %v", err)
		}
	}
}

// relevant filters git internals that never change what the panel shows.
func (w *repoWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	path := filepath.Clean(event.Name)
	if !isWithin(w.gitDir, path) {
		return !isWithin(filepath.Join(w.root, ".git"), path)
	}
	// lock files come and go around every write; the rename onto the real
	// file is what reports the change
	if strings.HasSuffix(path, ".lock") {
		return false
	}

	rel, err := filepath.Rel(w.gitDir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	switch {
	case rel == "HEAD", rel == "index", rel == "MERGE_HEAD", rel == "MERGE_MSG",
		rel == "FETCH_HEAD", rel == "ORIG_HEAD", rel == "packed-refs":
		return true
	case strings.HasPrefix(rel, "refs/heads"), strings.HasPrefix(rel, "refs/remotes"):
		return true
	}
	return false
}

func (w *repoWatcher) watchNewDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if isWithin(w.gitDir, path) {
		w.add(path)
		return
	}
	w.addWorkTree(path)
}

func (w *repoWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *repoWatcher) fire() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()

	if closed || w.onChange == nil {
		return
	}
	w.onChange()
}

func (w *repoWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	log.Printf("[CommitKit][Watcher] Unwatched %s", w.root)
	return w.watcher.Close()
}

func collectWatchPaths(gitDir string) []string {
	paths := []string{gitDir}
	candidates := []string{
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "remotes"),
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		_ = filepath.WalkDir(candidate, func(path string, entry os.DirEntry, err error) error {
			if err == nil && entry.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		clean := filepath.Clean(path)
		if _, exists := seen[clean]; exists {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}
	return unique
}

func isWithin(base string, path string) bool {
	cleanBase := filepath.Clean(base)
	cleanPath := filepath.Clean(path)
	return cleanPath == cleanBase || strings.HasPrefix(cleanPath, cleanBase+string(os.PathSeparator))
}
