package repository

import (
	"context"
	"strings"
)

// StatusCode is the backend's native change status. The values follow the
// host integration's enumeration; codes past BothModified may appear and carry
// no canonical meaning.
type StatusCode int

const (
	IndexModified StatusCode = iota
	IndexAdded
	IndexDeleted
	IndexRenamed
	IndexCopied
	Modified
	Deleted
	Untracked
	Ignored
	IntentToAdd
	AddedByUs
	AddedByThem
	DeletedByUs
	DeletedByThem
	BothAdded
	BothDeleted
	BothModified
	TypeChanged
)

// Change is a raw change record. Path references are absolute filesystem
// paths; an empty string means the reference is absent.
type Change struct {
	URI               string
	ResourceURI       string
	OriginalURI       string
	RenameURI         string
	RenameResourceURI string
	Status            StatusCode
}

// Head describes the checked out branch. Any field may be absent.
type Head struct {
	Name     *string
	Upstream *string
	Ahead    *int
	Behind   *int
}

// State is a point-in-time read of the repository.
type State struct {
	Head               Head
	IndexChanges       []Change
	WorkingTreeChanges []Change
	UntrackedChanges   []Change
}

// CommitOptions carries only the options the caller set explicitly.
type CommitOptions struct {
	Amend   *bool
	Signoff *bool
}

// RevertOptions controls Revert.
type RevertOptions struct {
	Staged bool
}

// Disposable releases a subscription.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to Disposable.
type DisposableFunc func()

func (f DisposableFunc) Dispose() {
	if f != nil {
		f()
	}
}

// Repository is the capability surface of one version-controlled repository.
type Repository interface {
	Root() string
	State(ctx context.Context) (*State, error)
	ReadMessage(ctx context.Context) (string, error)
	WriteMessage(ctx context.Context, text string) error
	Add(ctx context.Context, paths []string) error
	Revert(ctx context.Context, paths []string, opts RevertOptions) error
	Clean(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string, opts CommitOptions) error
	Push(ctx context.Context) error
	OnDidChange(listener func()) Disposable
}

// Host exposes the repositories known to the integration.
type Host interface {
	Repositories() []Repository
	OnDidOpenRepository(listener func(Repository)) Disposable
	OnDidCloseRepository(listener func(Repository)) Disposable
}

// Primary returns the first repository known to host.
func Primary(host Host) (Repository, error) {
	if host == nil {
		return nil, ErrNoRepository
	}
	repos := host.Repositories()
	if len(repos) == 0 || repos[0] == nil {
		return nil, ErrNoRepository
	}
	return repos[0], nil
}

// StringPtr returns a pointer to value, or nil when value is blank.
func StringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

// IntPtr returns a pointer to value.
func IntPtr(value int) *int {
	return &value
}

// BoolPtr returns a pointer to value.
func BoolPtr(value bool) *bool {
	return &value
}
