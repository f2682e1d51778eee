package gitpanel

import "commitkit/internal/repository"

// ChangeStatus is the canonical status of a change shown in the panel.
type ChangeStatus string

const (
	StatusIndexModified ChangeStatus = "INDEX_MODIFIED"
	StatusIndexAdded    ChangeStatus = "INDEX_ADDED"
	StatusIndexDeleted  ChangeStatus = "INDEX_DELETED"
	StatusIndexRenamed  ChangeStatus = "INDEX_RENAMED"
	StatusIndexCopied   ChangeStatus = "INDEX_COPIED"
	StatusModified      ChangeStatus = "MODIFIED"
	StatusDeleted       ChangeStatus = "DELETED"
	StatusUntracked     ChangeStatus = "UNTRACKED"
	StatusIgnored       ChangeStatus = "IGNORED"
	StatusIntentToAdd   ChangeStatus = "INTENT_TO_ADD"
	StatusAddedByUs     ChangeStatus = "ADDED_BY_US"
	StatusAddedByThem   ChangeStatus = "ADDED_BY_THEM"
	StatusDeletedByUs   ChangeStatus = "DELETED_BY_US"
	StatusDeletedByThem ChangeStatus = "DELETED_BY_THEM"
	StatusBothAdded     ChangeStatus = "BOTH_ADDED"
	StatusBothDeleted   ChangeStatus = "BOTH_DELETED"
	StatusBothModified  ChangeStatus = "BOTH_MODIFIED"
)

type statusInfo struct {
	label    string
	index    bool
	conflict bool
}

var statusCodes = map[repository.StatusCode]ChangeStatus{
	repository.IndexModified: StatusIndexModified,
	repository.IndexAdded:    StatusIndexAdded,
	repository.IndexDeleted:  StatusIndexDeleted,
	repository.IndexRenamed:  StatusIndexRenamed,
	repository.IndexCopied:   StatusIndexCopied,
	repository.Modified:      StatusModified,
	repository.Deleted:       StatusDeleted,
	repository.Untracked:     StatusUntracked,
	repository.Ignored:       StatusIgnored,
	repository.IntentToAdd:   StatusIntentToAdd,
	repository.AddedByUs:     StatusAddedByUs,
	repository.AddedByThem:   StatusAddedByThem,
	repository.DeletedByUs:   StatusDeletedByUs,
	repository.DeletedByThem: StatusDeletedByThem,
	repository.BothAdded:     StatusBothAdded,
	repository.BothDeleted:   StatusBothDeleted,
	repository.BothModified:  StatusBothModified,
}

var statusInfos = map[ChangeStatus]statusInfo{
	StatusIndexModified: {label: "Staged • Modified", index: true},
	StatusIndexAdded:    {label: "Staged • Added", index: true},
	StatusIndexDeleted:  {label: "Staged • Deleted", index: true},
	StatusIndexRenamed:  {label: "Staged • Renamed", index: true},
	StatusIndexCopied:   {label: "Staged • Copied", index: true},
	StatusModified:      {label: "Modified"},
	StatusDeleted:       {label: "Deleted"},
	StatusUntracked:     {label: "Untracked"},
	StatusIgnored:       {label: "Ignored"},
	StatusIntentToAdd:   {label: "Intent to add"},
	StatusAddedByUs:     {label: "Conflict • Added by us", conflict: true},
	StatusAddedByThem:   {label: "Conflict • Added by them", conflict: true},
	StatusDeletedByUs:   {label: "Conflict • Deleted by us", conflict: true},
	StatusDeletedByThem: {label: "Conflict • Deleted by them", conflict: true},
	StatusBothAdded:     {label: "Conflict • Both added", conflict: true},
	StatusBothDeleted:   {label: "Conflict • Both deleted", conflict: true},
	StatusBothModified:  {label: "Conflict • Both modified", conflict: true},
}

// Classify maps a backend status code to its canonical status. Unknown codes
// resolve to INDEX_MODIFIED for index entries and MODIFIED otherwise.
func Classify(code repository.StatusCode, inIndex bool) ChangeStatus {
	if status, ok := statusCodes[code]; ok {
		return status
	}
	if inIndex {
		return StatusIndexModified
	}
	return StatusModified
}

// Label returns the human readable text for s.
func (s ChangeStatus) Label() string {
	if info, ok := statusInfos[s]; ok {
		return info.label
	}
	return string(s)
}

func (s ChangeStatus) IsIndexChange() bool {
	return statusInfos[s].index
}

func (s ChangeStatus) IsConflict() bool {
	return statusInfos[s].conflict
}

// Valid reports whether s is one of the canonical statuses.
func (s ChangeStatus) Valid() bool {
	_, ok := statusInfos[s]
	return ok
}
