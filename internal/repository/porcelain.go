package repository

import (
	"path/filepath"
	"strconv"
	"strings"
)

var conflictStatuses = map[string]StatusCode{
	"DD": BothDeleted,
	"AU": AddedByUs,
	"UD": DeletedByThem,
	"UA": AddedByThem,
	"DU": DeletedByUs,
	"AA": BothAdded,
	"UU": BothModified,
}

var indexStatuses = map[byte]StatusCode{
	'M': IndexModified,
	'A': IndexAdded,
	'D': IndexDeleted,
	'R': IndexRenamed,
	'C': IndexCopied,
	'T': TypeChanged,
}

var workingTreeStatuses = map[byte]StatusCode{
	'M': Modified,
	'D': Deleted,
	'A': IntentToAdd,
	'T': TypeChanged,
}

// parsePorcelainStatus parses `git status --porcelain=v1 -z --branch` output
// rooted at repoRoot.
func parsePorcelainStatus(repoRoot string, raw string) *State {
	if strings.IndexByte(raw, 0) >= 0 {
		return parsePorcelainStatusZ(repoRoot, raw)
	}
	return parsePorcelainStatusText(repoRoot, raw)
}

func newEmptyState() *State {
	return &State{
		IndexChanges:       make([]Change, 0),
		WorkingTreeChanges: make([]Change, 0),
		UntrackedChanges:   make([]Change, 0),
	}
}

func parsePorcelainStatusZ(repoRoot string, raw string) *State {
	state := newEmptyState()

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		record := strings.TrimRight(records[i], "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		if strings.HasPrefix(record, "## ") {
			state.Head = parseBranchHeader(record)
			continue
		}

		if len(record) < 4 {
			continue
		}

		xy := record[:2]
		path := record[3:]
		if strings.TrimSpace(path) == "" {
			continue
		}

		originalPath := ""
		if porcelainEntryHasSecondaryPath(xy) && i+1 < len(records) {
			originalPath = records[i+1]
			i++
		}

		appendStatusEntry(state, repoRoot, xy, path, originalPath)
	}

	return state
}

func parsePorcelainStatusText(repoRoot string, raw string) *State {
	state := newEmptyState()

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(line, "## ") {
			state.Head = parseBranchHeader(line)
			continue
		}

		if len(line) < 4 {
			continue
		}

		path, originalPath := parsePorcelainPathPair(line[3:])
		if path == "" {
			continue
		}
		appendStatusEntry(state, repoRoot, line[:2], path, originalPath)
	}

	return state
}

func appendStatusEntry(state *State, repoRoot string, xy string, path string, originalPath string) {
	if state == nil || len(xy) < 2 || path == "" {
		return
	}

	absPath := toAbsPath(repoRoot, path)
	change := Change{URI: absPath, ResourceURI: absPath}

	if code, isConflict := conflictStatuses[xy]; isConflict {
		change.Status = code
		state.WorkingTreeChanges = append(state.WorkingTreeChanges, change)
		return
	}

	switch xy {
	case "??":
		change.Status = Untracked
		state.UntrackedChanges = append(state.UntrackedChanges, change)
		return
	case "!!":
		change.Status = Ignored
		state.WorkingTreeChanges = append(state.WorkingTreeChanges, change)
		return
	}

	if xy[0] != ' ' {
		staged := change
		staged.Status = lookupStatus(indexStatuses, xy[0], IndexModified)
		if originalPath != "" && (xy[0] == 'R' || xy[0] == 'C') {
			staged.OriginalURI = toAbsPath(repoRoot, originalPath)
		}
		state.IndexChanges = append(state.IndexChanges, staged)
	}
	if xy[1] != ' ' {
		unstaged := change
		unstaged.Status = lookupStatus(workingTreeStatuses, xy[1], Modified)
		state.WorkingTreeChanges = append(state.WorkingTreeChanges, unstaged)
	}
}

func lookupStatus(table map[byte]StatusCode, key byte, fallback StatusCode) StatusCode {
	if code, ok := table[key]; ok {
		return code
	}
	return fallback
}

func toAbsPath(repoRoot string, relPath string) string {
	return filepath.Join(repoRoot, filepath.FromSlash(relPath))
}

func porcelainEntryHasSecondaryPath(xy string) bool {
	if len(xy) < 2 {
		return false
	}
	return xy[0] == 'R' || xy[0] == 'C' || xy[1] == 'R' || xy[1] == 'C'
}

func parsePorcelainPathPair(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, " -> "); idx >= 0 {
		oldPath := unquotePorcelainPath(trimmed[:idx])
		newPath := unquotePorcelainPath(trimmed[idx+4:])
		return newPath, oldPath
	}
	return unquotePorcelainPath(trimmed), ""
}

func unquotePorcelainPath(raw string) string {
	path := strings.TrimSpace(raw)
	if strings.HasPrefix(path, "\"") {
		if decoded, err := strconv.Unquote(path); err == nil {
			return decoded
		}
	}
	return path
}

// parseBranchHeader reads the `## ` line. Detached HEAD yields no name.
func parseBranchHeader(line string) Head {
	head := Head{}
	trimmed := strings.TrimSpace(strings.TrimPrefix(line, "## "))
	if trimmed == "" {
		return head
	}

	for _, prefix := range []string{"No commits yet on ", "Initial commit on "} {
		if strings.HasPrefix(trimmed, prefix) {
			head.Name = StringPtr(strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)))
			return head
		}
	}
	if strings.HasPrefix(trimmed, "HEAD (no branch)") {
		return head
	}

	branchSection := trimmed
	metaSection := ""
	if idx := strings.Index(trimmed, " ["); idx >= 0 {
		branchSection = strings.TrimSpace(trimmed[:idx])
		metaSection = strings.TrimSuffix(strings.TrimSpace(trimmed[idx+2:]), "]")
	}

	branch := branchSection
	if idx := strings.Index(branchSection, "..."); idx >= 0 {
		branch = strings.TrimSpace(branchSection[:idx])
		head.Upstream = StringPtr(strings.TrimSpace(branchSection[idx+3:]))
	}
	head.Name = StringPtr(branch)

	if head.Upstream == nil {
		return head
	}

	ahead := 0
	behind := 0
	for _, part := range strings.Split(metaSection, ",") {
		token := strings.TrimSpace(part)
		if strings.HasPrefix(token, "ahead ") {
			if value, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(token, "ahead "))); err == nil {
				ahead = value
			}
		}
		if strings.HasPrefix(token, "behind ") {
			if value, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(token, "behind "))); err == nil {
				behind = value
			}
		}
	}
	head.Ahead = IntPtr(ahead)
	head.Behind = IntPtr(behind)
	return head
}
