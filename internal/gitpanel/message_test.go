package gitpanel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinCommitMessage(t *testing.T) {
	cases := []struct {
		name string
		in   CommitMessage
		want string
	}{
		{name: "subject only", in: CommitMessage{Subject: "feat", Body: ""}, want: "feat"},
		{name: "whitespace body", in: CommitMessage{Subject: "  feat  ", Body: " \n\t"}, want: "feat"},
		{name: "with body", in: CommitMessage{Subject: "feat", Body: "details"}, want: "feat\n\ndetails"},
		{name: "body right trimmed", in: CommitMessage{Subject: "fix", Body: "  indented\nline\n\n"}, want: "fix\n\n  indented\nline"},
		{name: "empty", in: CommitMessage{}, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, JoinCommitMessage(tc.in))
		})
	}
}

func TestSplitCommitMessage(t *testing.T) {
	assert.Equal(t, CommitMessage{}, SplitCommitMessage(""))
	assert.Equal(t, CommitMessage{Subject: "chore: tidy", Body: "updates"}, SplitCommitMessage("chore: tidy\n\nupdates"))
	assert.Equal(t, CommitMessage{Subject: "a", Body: "b\nc"}, SplitCommitMessage("a\r\n\r\nb\r\nc\r\n"))
	assert.Equal(t, CommitMessage{Subject: "a", Body: "b"}, SplitCommitMessage("a\rb"))
	assert.Equal(t, CommitMessage{Subject: "", Body: "body only"}, SplitCommitMessage("\nbody only"))
	assert.Equal(t, CommitMessage{Subject: "  spaced  ", Body: ""}, SplitCommitMessage("  spaced  "))
}

func TestCommitMessageRoundTrip(t *testing.T) {
	messages := []CommitMessage{
		{Subject: "feat: add panel", Body: "Adds the side panel."},
		{Subject: "fix", Body: "first paragraph\n\nsecond paragraph"},
		{Subject: "docs", Body: "- item one\n- item two"},
	}
	for _, m := range messages {
		assert.Equal(t, m, SplitCommitMessage(JoinCommitMessage(m)))
	}
}
