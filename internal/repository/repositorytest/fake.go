// Package repositorytest provides in-memory Repository and Host doubles.
package repositorytest

import (
	"context"
	"sync"

	"commitkit/internal/repository"
)

// Call records one mutating invocation on a FakeRepository.
type Call struct {
	Method  string
	Paths   []string
	Message string
	Revert  repository.RevertOptions
	Commit  repository.CommitOptions
}

// FakeRepository is a scripted Repository. Errors set on the struct are
// returned by the matching method.
type FakeRepository struct {
	mu sync.Mutex

	RootPath  string
	Current   repository.State
	Message   string
	StateErr  error
	AddErr    error
	RevertErr error
	CleanErr  error
	CommitErr error
	PushErr   error

	calls     []Call
	listeners map[int]func()
	nextID    int
}

func NewFakeRepository(root string) *FakeRepository {
	return &FakeRepository{
		RootPath:  root,
		listeners: make(map[int]func()),
	}
}

func (f *FakeRepository) Root() string {
	return f.RootPath
}

func (f *FakeRepository) SetState(state repository.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Current = state
}

func (f *FakeRepository) State(context.Context) (*repository.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StateErr != nil {
		return nil, f.StateErr
	}
	state := f.Current
	return &state, nil
}

func (f *FakeRepository) ReadMessage(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Message, nil
}

func (f *FakeRepository) WriteMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Message = text
	f.calls = append(f.calls, Call{Method: "WriteMessage", Message: text})
	return nil
}

func (f *FakeRepository) Add(_ context.Context, paths []string) error {
	return f.record(Call{Method: "Add", Paths: clonePaths(paths)}, f.AddErr)
}

func (f *FakeRepository) Revert(_ context.Context, paths []string, opts repository.RevertOptions) error {
	return f.record(Call{Method: "Revert", Paths: clonePaths(paths), Revert: opts}, f.RevertErr)
}

func (f *FakeRepository) Clean(_ context.Context, paths []string) error {
	return f.record(Call{Method: "Clean", Paths: clonePaths(paths)}, f.CleanErr)
}

func (f *FakeRepository) Commit(_ context.Context, message string, opts repository.CommitOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "Commit", Message: message, Commit: opts})
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Message = ""
	return nil
}

func (f *FakeRepository) Push(context.Context) error {
	return f.record(Call{Method: "Push"}, f.PushErr)
}

func (f *FakeRepository) record(call Call, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return err
}

// Calls returns the recorded invocations in order.
func (f *FakeRepository) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded invocations of method.
func (f *FakeRepository) CallsTo(method string) []Call {
	var out []Call
	for _, call := range f.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (f *FakeRepository) OnDidChange(listener func()) repository.Disposable {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	return repository.DisposableFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	})
}

// ListenerCount reports active change subscriptions.
func (f *FakeRepository) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// FireChange invokes every change listener.
func (f *FakeRepository) FireChange() {
	f.mu.Lock()
	listeners := make([]func(), 0, len(f.listeners))
	for _, listener := range f.listeners {
		listeners = append(listeners, listener)
	}
	f.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

// FakeHost is a Host whose repository set is driven by the test.
type FakeHost struct {
	mu     sync.Mutex
	repos  []repository.Repository
	opens  map[int]func(repository.Repository)
	closes map[int]func(repository.Repository)
	nextID int
}

func NewFakeHost(repos ...repository.Repository) *FakeHost {
	return &FakeHost{
		repos:  repos,
		opens:  make(map[int]func(repository.Repository)),
		closes: make(map[int]func(repository.Repository)),
	}
}

func (h *FakeHost) Repositories() []repository.Repository {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]repository.Repository, len(h.repos))
	copy(out, h.repos)
	return out
}

// Open appends repo and fires open listeners.
func (h *FakeHost) Open(repo repository.Repository) {
	h.mu.Lock()
	h.repos = append(h.repos, repo)
	listeners := collect(h.opens)
	h.mu.Unlock()

	for _, listener := range listeners {
		listener(repo)
	}
}

// Close removes repo and fires close listeners.
func (h *FakeHost) Close(repo repository.Repository) {
	h.mu.Lock()
	for i, candidate := range h.repos {
		if candidate == repo {
			h.repos = append(h.repos[:i:i], h.repos[i+1:]...)
			break
		}
	}
	listeners := collect(h.closes)
	h.mu.Unlock()

	for _, listener := range listeners {
		listener(repo)
	}
}

func (h *FakeHost) OnDidOpenRepository(listener func(repository.Repository)) repository.Disposable {
	return h.subscribe(h.opens, listener)
}

func (h *FakeHost) OnDidCloseRepository(listener func(repository.Repository)) repository.Disposable {
	return h.subscribe(h.closes, listener)
}

// SubscriberCount reports active open plus close subscriptions.
func (h *FakeHost) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.opens) + len(h.closes)
}

func (h *FakeHost) subscribe(target map[int]func(repository.Repository), listener func(repository.Repository)) repository.Disposable {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	target[id] = listener
	return repository.DisposableFunc(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(target, id)
	})
}

func collect(listeners map[int]func(repository.Repository)) []func(repository.Repository) {
	out := make([]func(repository.Repository), 0, len(listeners))
	for _, listener := range listeners {
		out = append(out, listener)
	}
	return out
}

func clonePaths(paths []string) []string {
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}
