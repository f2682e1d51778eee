package gitpanel

import (
	"sync"

	"commitkit/internal/repository"
)

// Bridge merges per-repository change events and repository open/close
// events into one "state changed" signal.
type Bridge struct {
	mu        sync.Mutex
	repoSubs  map[repository.Repository]repository.Disposable
	hostSubs  []repository.Disposable
	listeners map[uint64]func()
	nextID    uint64
	disposed  bool
}

// NewBridge subscribes to every repository host currently knows and to its
// open and close events.
func NewBridge(host repository.Host) *Bridge {
	b := &Bridge{
		repoSubs:  make(map[repository.Repository]repository.Disposable),
		listeners: make(map[uint64]func()),
	}
	if host == nil {
		return b
	}

	for _, repo := range host.Repositories() {
		b.register(repo)
	}
	b.hostSubs = append(b.hostSubs,
		host.OnDidOpenRepository(func(repo repository.Repository) {
			b.register(repo)
			b.fire()
		}),
		host.OnDidCloseRepository(func(repo repository.Repository) {
			b.unregister(repo)
			b.fire()
		}),
	)
	return b
}

// register subscribes to repo once; later calls for the same repository are
// no-ops.
func (b *Bridge) register(repo repository.Repository) {
	if repo == nil {
		return
	}

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	if _, exists := b.repoSubs[repo]; exists {
		b.mu.Unlock()
		return
	}
	// placeholder keeps a concurrent register from subscribing twice
	b.repoSubs[repo] = repository.DisposableFunc(nil)
	b.mu.Unlock()

	sub := repo.OnDidChange(b.fire)

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		sub.Dispose()
		return
	}
	if _, still := b.repoSubs[repo]; !still {
		b.mu.Unlock()
		sub.Dispose()
		return
	}
	b.repoSubs[repo] = sub
	b.mu.Unlock()
}

func (b *Bridge) unregister(repo repository.Repository) {
	b.mu.Lock()
	sub, exists := b.repoSubs[repo]
	delete(b.repoSubs, repo)
	b.mu.Unlock()

	if exists && sub != nil {
		sub.Dispose()
	}
}

func (b *Bridge) fire() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	listeners := make([]func(), 0, len(b.listeners))
	for _, listener := range b.listeners {
		listeners = append(listeners, listener)
	}
	b.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

// OnDidChange registers listener for the unified signal.
func (b *Bridge) OnDidChange(listener func()) repository.Disposable {
	if listener == nil {
		return repository.DisposableFunc(nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return repository.DisposableFunc(nil)
	}

	id := b.nextID
	b.nextID++
	b.listeners[id] = listener

	var once sync.Once
	return repository.DisposableFunc(func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	})
}

// Subscriptions reports how many repositories are currently observed.
func (b *Bridge) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.repoSubs)
}

// Dispose releases every subscription. Calling it again does nothing.
func (b *Bridge) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	repoSubs := b.repoSubs
	hostSubs := b.hostSubs
	b.repoSubs = make(map[repository.Repository]repository.Disposable)
	b.hostSubs = nil
	b.listeners = make(map[uint64]func())
	b.mu.Unlock()

	for _, sub := range hostSubs {
		if sub != nil {
			sub.Dispose()
		}
	}
	for _, sub := range repoSubs {
		if sub != nil {
			sub.Dispose()
		}
	}
}
