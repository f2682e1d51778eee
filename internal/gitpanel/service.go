package gitpanel

import (
	"context"
	"log"

	"commitkit/internal/repository"
)

// CommitOptionFlags are the commit toggles sent by the panel. A nil field was
// not set by the user.
type CommitOptionFlags struct {
	Amend   *bool `json:"amend,omitempty"`
	Signoff *bool `json:"signoff,omitempty"`
	Push    *bool `json:"push,omitempty"`
}

// Service runs panel commands against the primary repository of a host. It
// holds no repository state of its own.
type Service struct {
	host         repository.Host
	differ       Differ
	maxDiffBytes int
}

// Option configures a Service.
type Option func(*Service)

// WithMaxDiffBytes caps diff output; zero or less disables truncation.
func WithMaxDiffBytes(limit int) Option {
	return func(s *Service) {
		s.maxDiffBytes = limit
	}
}

func NewService(host repository.Host, differ Differ, opts ...Option) *Service {
	if differ == nil {
		differ = repository.NewDiffRunner(nil, 0)
	}
	s := &Service{
		host:         host,
		differ:       differ,
		maxDiffBytes: defaultMaxDiffBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository returns the primary repository.
func (s *Service) Repository(context.Context) (repository.Repository, error) {
	return repository.Primary(s.host)
}

// Snapshot builds a fresh snapshot of the primary repository.
func (s *Service) Snapshot(ctx context.Context) (StatusSnapshot, error) {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return BuildSnapshot(ctx, repo)
}

func (s *Service) Stage(ctx context.Context, uri string) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}
	target, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	return repo.Add(ctx, []string{target})
}

func (s *Service) Unstage(ctx context.Context, uri string) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}
	target, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	return repo.Revert(ctx, []string{target}, repository.RevertOptions{Staged: true})
}

// StageAll stages every distinct path from all three change lists in one
// call, in first-seen order.
func (s *Service) StageAll(ctx context.Context) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}
	state, err := repo.State(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	paths := make([]string, 0, len(state.IndexChanges)+len(state.WorkingTreeChanges)+len(state.UntrackedChanges))
	for _, list := range [][]repository.Change{state.IndexChanges, state.WorkingTreeChanges, state.UntrackedChanges} {
		for _, change := range list {
			changePath := ChangePath(change)
			if changePath == "" {
				continue
			}
			key := FileURI(changePath)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			paths = append(paths, changePath)
		}
	}

	if len(paths) == 0 {
		return nil
	}
	return repo.Add(ctx, paths)
}

// UnstageAll reverts every index entry in one call.
func (s *Service) UnstageAll(ctx context.Context) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}
	state, err := repo.State(ctx)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(state.IndexChanges))
	for _, change := range state.IndexChanges {
		if changePath := ChangePath(change); changePath != "" {
			paths = append(paths, changePath)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	return repo.Revert(ctx, paths, repository.RevertOptions{Staged: true})
}

// DiscardChanges drops working tree changes to uri. Callers confirm first.
func (s *Service) DiscardChanges(ctx context.Context, uri string) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}
	target, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	return repo.Clean(ctx, []string{target})
}

func (s *Service) UpdateCommitMessage(ctx context.Context, message CommitMessage) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}
	return repo.WriteMessage(ctx, JoinCommitMessage(message))
}

// Commit writes message to the buffer, commits, and pushes when asked. A
// failed push returns *PushError; the commit stays.
func (s *Service) Commit(ctx context.Context, message CommitMessage, flags CommitOptionFlags) error {
	repo, err := repository.Primary(s.host)
	if err != nil {
		return err
	}

	text := JoinCommitMessage(message)
	if err := repo.WriteMessage(ctx, text); err != nil {
		return err
	}
	if err := repo.Commit(ctx, text, repository.CommitOptions{Amend: flags.Amend, Signoff: flags.Signoff}); err != nil {
		return err
	}

	if flags.Push == nil || !*flags.Push {
		return nil
	}
	if err := repo.Push(ctx); err != nil {
		log.Printf("[CommitKit] Push after commit failed in %s: %v", repo.Root(), err)
		return &PushError{Err: err}
	}
	return nil
}
