package gitpanel

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"commitkit/internal/repository"
)

// Section names the change list an entry came from.
type Section string

const (
	SectionStaged    Section = "staged"
	SectionUnstaged  Section = "unstaged"
	SectionUntracked Section = "untracked"
)

// SerializableChange is the UI projection of one change.
type SerializableChange struct {
	URI          string       `json:"uri"`
	PreviousURI  *string      `json:"previousUri,omitempty"`
	RelativePath string       `json:"relativePath"`
	FileName     string       `json:"fileName"`
	Status       ChangeStatus `json:"status"`
	StatusText   string       `json:"statusText"`
	Staged       bool         `json:"staged"`
	IsConflict   bool         `json:"isConflict"`
	IsUntracked  bool         `json:"isUntracked"`
}

type SnapshotStats struct {
	Staged    int `json:"staged"`
	Unstaged  int `json:"unstaged"`
	Untracked int `json:"untracked"`
}

// StatusSnapshot is a complete, immutable view of the repository for the
// panel. Absent branch or upstream names are omitted, not emptied.
type StatusSnapshot struct {
	BranchName    *string              `json:"branchName,omitempty"`
	Upstream      *string              `json:"upstream,omitempty"`
	Ahead         int                  `json:"ahead"`
	Behind        int                  `json:"behind"`
	Staged        []SerializableChange `json:"staged"`
	Unstaged      []SerializableChange `json:"unstaged"`
	Untracked     []SerializableChange `json:"untracked"`
	HasChanges    bool                 `json:"hasChanges"`
	HasStaged     bool                 `json:"hasStaged"`
	Stats         SnapshotStats        `json:"stats"`
	CommitMessage CommitMessage        `json:"commitMessage"`
}

// BuildSnapshot reads repo once and projects it for the panel.
func BuildSnapshot(ctx context.Context, repo repository.Repository) (StatusSnapshot, error) {
	if repo == nil {
		return StatusSnapshot{}, repository.ErrNoRepository
	}

	state, err := repo.State(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	if state == nil {
		state = &repository.State{}
	}

	root := repo.Root()
	staged, err := mapChanges(root, SectionStaged, state.IndexChanges)
	if err != nil {
		return StatusSnapshot{}, err
	}
	unstaged, err := mapChanges(root, SectionUnstaged, state.WorkingTreeChanges)
	if err != nil {
		return StatusSnapshot{}, err
	}
	untracked, err := mapChanges(root, SectionUntracked, state.UntrackedChanges)
	if err != nil {
		return StatusSnapshot{}, err
	}

	raw, err := repo.ReadMessage(ctx)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("read commit message: %w", err)
	}

	stats := SnapshotStats{
		Staged:    len(staged),
		Unstaged:  len(unstaged),
		Untracked: len(untracked),
	}

	return StatusSnapshot{
		BranchName:    cloneString(state.Head.Name),
		Upstream:      cloneString(state.Head.Upstream),
		Ahead:         intOrZero(state.Head.Ahead),
		Behind:        intOrZero(state.Head.Behind),
		Staged:        staged,
		Unstaged:      unstaged,
		Untracked:     untracked,
		HasChanges:    stats.Staged+stats.Unstaged+stats.Untracked > 0,
		HasStaged:     stats.Staged > 0,
		Stats:         stats,
		CommitMessage: SplitCommitMessage(raw),
	}, nil
}

func mapChanges(root string, section Section, changes []repository.Change) ([]SerializableChange, error) {
	out := make([]SerializableChange, 0, len(changes))
	for i, change := range changes {
		mapped, ok := toSerializableChange(root, section, change)
		if !ok {
			return nil, &UnresolvableChangeError{Section: section, Index: i}
		}
		out = append(out, mapped)
	}
	return out, nil
}

func toSerializableChange(root string, section Section, change repository.Change) (SerializableChange, bool) {
	changePath := ChangePath(change)
	if changePath == "" {
		return SerializableChange{}, false
	}

	status := Classify(change.Status, section == SectionStaged)
	relativePath := relativeDisplayPath(root, changePath)

	serialized := SerializableChange{
		URI:          FileURI(changePath),
		RelativePath: relativePath,
		FileName:     path.Base(relativePath),
		Status:       status,
		StatusText:   status.Label(),
		Staged:       section == SectionStaged,
		IsConflict:   status.IsConflict(),
		IsUntracked:  section == SectionUntracked || status == StatusUntracked,
	}
	if previous := PreviousPath(change); previous != "" {
		previousURI := FileURI(previous)
		serialized.PreviousURI = &previousURI
	}
	return serialized, true
}

// ChangePath resolves the current path of change: the resource path, then
// the plain path, then the original path.
func ChangePath(change repository.Change) string {
	return firstNonEmpty(change.ResourceURI, change.URI, change.OriginalURI)
}

// PreviousPath resolves the rename source of change, preferring the backend's
// rename target over its aliases.
func PreviousPath(change repository.Change) string {
	return firstNonEmpty(change.RenameResourceURI, change.RenameURI, change.OriginalURI)
}

func relativeDisplayPath(root string, changePath string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, changePath); err == nil && rel != "." {
			return filepath.ToSlash(rel)
		}
	}
	return path.Base(filepath.ToSlash(changePath))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func intOrZero(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}
