package gitpanel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commitkit/internal/repository"
	"commitkit/internal/repository/repositorytest"
)

func newTestService(t *testing.T) (*Service, *repositorytest.FakeRepository) {
	t.Helper()
	repo := repositorytest.NewFakeRepository(testRoot)
	host := repositorytest.NewFakeHost(repo)
	return NewService(host, &fakeDiffer{}), repo
}

func TestServiceWithoutRepositoryRejectsEverything(t *testing.T) {
	svc := NewService(repositorytest.NewFakeHost(), &fakeDiffer{})
	ctx := context.Background()

	ops := map[string]func() error{
		"stage":      func() error { return svc.Stage(ctx, FileURI(repoPath("a.txt"))) },
		"unstage":    func() error { return svc.Unstage(ctx, FileURI(repoPath("a.txt"))) },
		"stageAll":   func() error { return svc.StageAll(ctx) },
		"unstageAll": func() error { return svc.UnstageAll(ctx) },
		"discard":    func() error { return svc.DiscardChanges(ctx, FileURI(repoPath("a.txt"))) },
		"message":    func() error { return svc.UpdateCommitMessage(ctx, CommitMessage{Subject: "x"}) },
		"commit":     func() error { return svc.Commit(ctx, CommitMessage{Subject: "x"}, CommitOptionFlags{}) },
		"snapshot": func() error {
			_, err := svc.Snapshot(ctx)
			return err
		},
		"diff": func() error {
			_, err := svc.GetDiff(ctx, DiffContext{URI: FileURI(repoPath("a.txt"))})
			return err
		},
	}
	for name, op := range ops {
		assert.ErrorIs(t, op(), repository.ErrNoRepository, name)
	}
}

func TestServiceStageAndUnstageSinglePath(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Stage(ctx, FileURI(repoPath("src/a.go"))))
	require.NoError(t, svc.Unstage(ctx, FileURI(repoPath("src/b.go"))))
	require.NoError(t, svc.DiscardChanges(ctx, FileURI(repoPath("src/c.go"))))

	calls := repo.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, repositorytest.Call{Method: "Add", Paths: []string{repoPath("src/a.go")}}, calls[0])
	assert.Equal(t, "Revert", calls[1].Method)
	assert.Equal(t, []string{repoPath("src/b.go")}, calls[1].Paths)
	assert.True(t, calls[1].Revert.Staged)
	assert.Equal(t, "Clean", calls[2].Method)
	assert.Equal(t, []string{repoPath("src/c.go")}, calls[2].Paths)
}

func TestServiceStageRejectsInvalidURI(t *testing.T) {
	svc, repo := newTestService(t)

	err := svc.Stage(context.Background(), "https://example.com/a.txt")
	assert.ErrorIs(t, err, ErrInvalidURI)
	assert.Empty(t, repo.Calls())
}

func TestServiceStageAllDedupesInFirstSeenOrder(t *testing.T) {
	svc, repo := newTestService(t)
	repo.SetState(repository.State{
		IndexChanges: []repository.Change{
			plainChange("b.txt", repository.IndexModified),
		},
		WorkingTreeChanges: []repository.Change{
			plainChange("a.txt", repository.Modified),
			plainChange("b.txt", repository.Modified),
		},
		UntrackedChanges: []repository.Change{
			plainChange("c.txt", repository.Untracked),
			plainChange("a.txt", repository.Untracked),
		},
	})

	require.NoError(t, svc.StageAll(context.Background()))

	adds := repo.CallsTo("Add")
	require.Len(t, adds, 1)
	assert.Equal(t, []string{repoPath("b.txt"), repoPath("a.txt"), repoPath("c.txt")}, adds[0].Paths)
}

func TestServiceStageAllEmptyIsNoop(t *testing.T) {
	svc, repo := newTestService(t)

	require.NoError(t, svc.StageAll(context.Background()))
	require.NoError(t, svc.UnstageAll(context.Background()))
	assert.Empty(t, repo.Calls())
}

func TestServiceUnstageAllRevertsIndexOnly(t *testing.T) {
	svc, repo := newTestService(t)
	repo.SetState(repository.State{
		IndexChanges: []repository.Change{
			plainChange("a.txt", repository.IndexAdded),
			plainChange("b.txt", repository.IndexDeleted),
		},
		WorkingTreeChanges: []repository.Change{plainChange("c.txt", repository.Modified)},
	})

	require.NoError(t, svc.UnstageAll(context.Background()))

	reverts := repo.CallsTo("Revert")
	require.Len(t, reverts, 1)
	assert.Equal(t, []string{repoPath("a.txt"), repoPath("b.txt")}, reverts[0].Paths)
	assert.True(t, reverts[0].Revert.Staged)
}

func TestServiceUpdateCommitMessageJoinsSubjectAndBody(t *testing.T) {
	svc, repo := newTestService(t)

	require.NoError(t, svc.UpdateCommitMessage(context.Background(), CommitMessage{Subject: "feat", Body: "details"}))
	assert.Equal(t, "feat\n\ndetails", repo.Message)
}

func TestServiceCommitWithoutPushSkipsPush(t *testing.T) {
	svc, repo := newTestService(t)

	flags := CommitOptionFlags{Amend: repository.BoolPtr(false), Signoff: repository.BoolPtr(false), Push: repository.BoolPtr(false)}
	require.NoError(t, svc.Commit(context.Background(), CommitMessage{Subject: "feat", Body: ""}, flags))

	commits := repo.CallsTo("Commit")
	require.Len(t, commits, 1)
	assert.Equal(t, "feat", commits[0].Message)
	require.NotNil(t, commits[0].Commit.Amend)
	assert.False(t, *commits[0].Commit.Amend)
	assert.Empty(t, repo.CallsTo("Push"))

	writes := repo.CallsTo("WriteMessage")
	require.Len(t, writes, 1)
	assert.Equal(t, "feat", writes[0].Message)
}

func TestServiceCommitLeavesUnsetOptionsAbsent(t *testing.T) {
	svc, repo := newTestService(t)

	require.NoError(t, svc.Commit(context.Background(), CommitMessage{Subject: "feat"}, CommitOptionFlags{Signoff: repository.BoolPtr(true)}))

	commit := repo.CallsTo("Commit")[0]
	assert.Nil(t, commit.Commit.Amend)
	require.NotNil(t, commit.Commit.Signoff)
	assert.True(t, *commit.Commit.Signoff)
}

func TestServiceCommitPushesAfterSuccess(t *testing.T) {
	svc, repo := newTestService(t)

	require.NoError(t, svc.Commit(context.Background(), CommitMessage{Subject: "feat"}, CommitOptionFlags{Push: repository.BoolPtr(true)}))

	calls := repo.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"WriteMessage", "Commit", "Push"}, []string{calls[0].Method, calls[1].Method, calls[2].Method})
}

func TestServiceCommitFailureSkipsPush(t *testing.T) {
	svc, repo := newTestService(t)
	repo.CommitErr = &repository.BackendCommandError{Op: "commit", Stderr: "nothing to commit"}

	err := svc.Commit(context.Background(), CommitMessage{Subject: "feat"}, CommitOptionFlags{Push: repository.BoolPtr(true)})
	require.Error(t, err)

	var pushErr *PushError
	assert.False(t, errors.As(err, &pushErr))
	assert.Empty(t, repo.CallsTo("Push"))
}

func TestServicePushFailureIsDistinct(t *testing.T) {
	svc, repo := newTestService(t)
	repo.PushErr = &repository.BackendCommandError{Op: "push", Stderr: "rejected: non-fast-forward"}

	err := svc.Commit(context.Background(), CommitMessage{Subject: "feat"}, CommitOptionFlags{Push: repository.BoolPtr(true)})

	var pushErr *PushError
	require.True(t, errors.As(err, &pushErr), "got %v", err)
	assert.Len(t, repo.CallsTo("Commit"), 1)

	normalized := NormalizeBindingError(err)
	assert.Equal(t, CodePushFailed, normalized.Code)
	assert.Equal(t, "rejected: non-fast-forward", normalized.Message)
}

func TestServiceSnapshotUsesPrimaryRepository(t *testing.T) {
	first := repositorytest.NewFakeRepository(testRoot)
	first.Message = "first"
	second := repositorytest.NewFakeRepository(repoPath("other"))
	second.Message = "second"

	svc := NewService(repositorytest.NewFakeHost(first, second), &fakeDiffer{})
	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", snapshot.CommitMessage.Subject)

	repo, err := svc.Repository(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRoot, repo.Root())
}
