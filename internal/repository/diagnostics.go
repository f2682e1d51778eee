package repository

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"commitkit/internal/security"
)

// Lifecycle steps reported in CommandResult.Status.
const (
	CommandStatusQueued    = "queued"
	CommandStatusStarted   = "started"
	CommandStatusRetried   = "retried"
	CommandStatusSucceeded = "succeeded"
	CommandStatusFailed    = "failed"
)

const maxDiagnosticStderrLength = 1200

// EventEmitter publishes a named runtime event. The Wails host binds it to
// runtime.EventsEmit; the headless server logs failed commands.
type EventEmitter func(eventName string, data interface{})

// CommandResult is emitted for every lifecycle step of a write command.
type CommandResult struct {
	CommandID       string   `json:"commandId"`
	RepoPath        string   `json:"repoPath"`
	Action          string   `json:"action"`
	Args            []string `json:"args"`
	DurationMs      int64    `json:"durationMs"`
	ExitCode        int      `json:"exitCode"`
	StderrSanitized string   `json:"stderrSanitized"`
	Status          string   `json:"status"`
	Attempt         int      `json:"attempt"`
	Error           string   `json:"error,omitempty"`
}

type commandDiagnostics struct {
	emit      EventEmitter
	eventName string
	sanitizer *security.LogSanitizer
}

func newCommandDiagnostics(emit EventEmitter, eventName string) *commandDiagnostics {
	if strings.TrimSpace(eventName) == "" {
		eventName = "commitkit:command_result"
	}
	return &commandDiagnostics{
		emit:      emit,
		eventName: eventName,
		sanitizer: security.NewLogSanitizer(),
	}
}

type commandDiagnosticState struct {
	commandID string
	repoPath  string
	action    string
	startedAt time.Time
	baseArgs  []string

	mu           sync.Mutex
	lastArgs     []string
	lastStderr   string
	lastExitCode int
	lastAttempt  int
}

func newCommandDiagnosticState(repoPath string, action string, args []string) *commandDiagnosticState {
	base := cloneStringSlice(args)
	return &commandDiagnosticState{
		commandID: uuid.NewString(),
		repoPath:  strings.TrimSpace(repoPath),
		action:    strings.TrimSpace(action),
		startedAt: time.Now(),
		baseArgs:  base,
		lastArgs:  cloneStringSlice(base),
	}
}

func (d *commandDiagnosticState) recordAttempt(args []string, stderr string, exitCode int, attempt int) {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(args) > 0 {
		d.lastArgs = cloneStringSlice(args)
	}
	d.lastStderr = strings.TrimSpace(stderr)
	d.lastExitCode = exitCode
	if attempt > d.lastAttempt {
		d.lastAttempt = attempt
	}
}

func (d *commandDiagnosticState) result(status string) CommandResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	args := d.lastArgs
	if len(args) == 0 {
		args = d.baseArgs
	}
	return CommandResult{
		CommandID:  d.commandID,
		RepoPath:   d.repoPath,
		Action:     d.action,
		Args:       cloneStringSlice(args),
		DurationMs: time.Since(d.startedAt).Milliseconds(),
		ExitCode:   d.lastExitCode,
		Status:     status,
		Attempt:    d.lastAttempt,
	}
}

func (c *commandDiagnostics) publish(diag *commandDiagnosticState, status string, err error) {
	if c == nil || c.emit == nil || diag == nil {
		return
	}

	result := diag.result(status)
	result.Args = sanitizeDiagnosticArgs(diag.repoPath, result.Args)

	diag.mu.Lock()
	stderr := diag.lastStderr
	diag.mu.Unlock()
	result.StderrSanitized = c.sanitizer.Sanitize(sanitizeDiagnosticStderr(diag.repoPath, stderr))

	if err != nil {
		result.Error = c.sanitizer.Sanitize(strings.TrimSpace(err.Error()))
	}

	c.emit(c.eventName, result)
}

func sanitizeDiagnosticArgs(repoPath string, args []string) []string {
	if len(args) == 0 {
		return nil
	}

	repoAbs := filepath.Clean(strings.TrimSpace(repoPath))
	homeDir, _ := os.UserHomeDir()
	homeAbs := filepath.Clean(strings.TrimSpace(homeDir))

	sanitized := make([]string, 0, len(args))
	for _, arg := range args {
		token := strings.TrimSpace(arg)
		if token == "" {
			continue
		}
		if token == repoAbs {
			sanitized = append(sanitized, "<repo>")
			continue
		}

		if filepath.IsAbs(token) {
			if rel, ok := relativizePath(repoAbs, token); ok {
				sanitized = append(sanitized, "<repo>/"+rel)
				continue
			}
			if homeAbs != "" && homeAbs != "." {
				if rel, ok := relativizePath(homeAbs, token); ok {
					sanitized = append(sanitized, "~/"+rel)
					continue
				}
			}
			sanitized = append(sanitized, "<abs-path>")
			continue
		}

		token = strings.ReplaceAll(token, "\n", " ")
		token = strings.ReplaceAll(token, "\r", " ")
		sanitized = append(sanitized, strings.TrimSpace(token))
	}
	return sanitized
}

func sanitizeDiagnosticStderr(repoPath string, stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		return ""
	}

	repoAbs := filepath.Clean(strings.TrimSpace(repoPath))
	if repoAbs != "" && repoAbs != "." {
		trimmed = strings.ReplaceAll(trimmed, repoAbs, "<repo>")
	}
	homeDir, _ := os.UserHomeDir()
	homeAbs := filepath.Clean(strings.TrimSpace(homeDir))
	if homeAbs != "" && homeAbs != "." && homeAbs != "/" {
		trimmed = strings.ReplaceAll(trimmed, homeAbs, "~")
	}

	lines := strings.Split(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Map(func(r rune) rune {
			if r < 0x20 && r != '\t' {
				return -1
			}
			return r
		}, strings.TrimSpace(line))
		if clean != "" {
			parts = append(parts, clean)
		}
	}

	sanitized := strings.Join(parts, " | ")
	if len(sanitized) <= maxDiagnosticStderrLength {
		return sanitized
	}
	return strings.TrimSpace(sanitized[:maxDiagnosticStderrLength]) + "... (truncated)"
}

func relativizePath(base string, candidate string) (string, bool) {
	if strings.TrimSpace(base) == "" || strings.TrimSpace(candidate) == "" {
		return "", false
	}
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return ".", true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
