// Package panel connects the git command layer to a UI over a JSON message
// protocol. Both directions carry a string "command" discriminator.
package panel

import (
	"encoding/json"

	"commitkit/internal/gitpanel"
)

// Inbound commands.
const (
	CommandReady               = "ready"
	CommandRefreshStatus       = "refreshStatus"
	CommandStage               = "stage"
	CommandUnstage             = "unstage"
	CommandStageAll            = "stageAll"
	CommandUnstageAll          = "unstageAll"
	CommandDiscard             = "discard"
	CommandOpenFile            = "openFile"
	CommandUpdateCommitMessage = "updateCommitMessage"
	CommandCommit              = "commit"
	CommandSelectChange        = "selectChange"
)

// Outbound notifications.
const (
	NotifyStatusUpdated  = "statusUpdated"
	NotifyStatusError    = "statusError"
	NotifyDiffLoaded     = "diffLoaded"
	NotifyCommitComplete = "commitComplete"
	NotifyError          = "error"
	NotifyInfo           = "info"
)

// Request is one message sent by the UI.
type Request struct {
	Command string          `json:"command"`
	URI     string          `json:"uri,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommitPayload is the payload of a commit request.
type CommitPayload struct {
	Message gitpanel.CommitMessage     `json:"message"`
	Options gitpanel.CommitOptionFlags `json:"options"`
}

// SelectChangePayload is the payload of a selectChange request.
type SelectChangePayload struct {
	URI         string                `json:"uri"`
	Staged      bool                  `json:"staged"`
	Status      gitpanel.ChangeStatus `json:"status"`
	PreviousURI string                `json:"previousUri,omitempty"`
}

// DiffPayload carries a loaded diff back to the UI.
type DiffPayload struct {
	URI    string `json:"uri"`
	Staged bool   `json:"staged"`
	Diff   string `json:"diff"`
}

// Notification is one message sent to the UI.
type Notification struct {
	Command  string                   `json:"command"`
	Snapshot *gitpanel.StatusSnapshot `json:"snapshot,omitempty"`
	Message  string                   `json:"message,omitempty"`
	Payload  *DiffPayload             `json:"payload,omitempty"`
}

func statusUpdated(snapshot gitpanel.StatusSnapshot) Notification {
	return Notification{Command: NotifyStatusUpdated, Snapshot: &snapshot}
}

func statusError(message string) Notification {
	return Notification{Command: NotifyStatusError, Message: message}
}

func diffLoaded(uri string, staged bool, diff string) Notification {
	return Notification{Command: NotifyDiffLoaded, Payload: &DiffPayload{URI: uri, Staged: staged, Diff: diff}}
}

func commitComplete() Notification {
	return Notification{Command: NotifyCommitComplete}
}

func errorNotification(message string) Notification {
	return Notification{Command: NotifyError, Message: message}
}

func infoNotification(message string) Notification {
	return Notification{Command: NotifyInfo, Message: message}
}

// IsMutating reports whether command changes repository state and is
// therefore always followed by a status publication.
func IsMutating(command string) bool {
	switch command {
	case CommandStage, CommandUnstage, CommandStageAll, CommandUnstageAll, CommandDiscard, CommandCommit:
		return true
	}
	return false
}
