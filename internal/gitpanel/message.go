package gitpanel

import (
	"strings"
	"unicode"
)

// CommitMessage is the structured form of the commit message buffer.
type CommitMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// JoinCommitMessage renders m as buffer text: the trimmed subject, then a
// blank line and the right-trimmed body when the body has content.
func JoinCommitMessage(m CommitMessage) string {
	subject := strings.TrimSpace(m.Subject)
	body := strings.TrimRightFunc(m.Body, unicode.IsSpace)
	if strings.TrimSpace(body) == "" {
		return subject
	}
	return subject + "\n\n" + body
}

// SplitCommitMessage parses buffer text. The first line is the subject as is;
// the remaining lines, trimmed, form the body.
func SplitCommitMessage(raw string) CommitMessage {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	subject, rest, _ := strings.Cut(normalized, "\n")
	return CommitMessage{
		Subject: subject,
		Body:    strings.TrimSpace(rest),
	}
}
