package gitpanel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"commitkit/internal/repository"
)

const (
	CodeNoRepository       = "E_NO_REPOSITORY"
	CodeUnresolvableChange = "E_UNRESOLVABLE_CHANGE"
	CodeCommandFailed      = "E_COMMAND_FAILED"
	CodePushFailed         = "E_PUSH_FAILED"
	CodeInvalidPath        = "E_INVALID_PATH"
	CodeTimeout            = "E_TIMEOUT"
	CodeCanceled           = "E_CANCELED"
	CodeServiceUnavailable = "E_SERVICE_UNAVAILABLE"
	CodeUnknown            = "E_UNKNOWN"
)

// MessageNoRepository is shown whenever no repository is open.
const MessageNoRepository = "No Git repository detected in the current workspace."

// ErrInvalidURI is returned for change references that name no file.
var ErrInvalidURI = errors.New("invalid change uri")

// BindingError implementa contrato normalizado de erro para bindings.
type BindingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BindingError) Error() string {
	if e == nil {
		return ""
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","message":"%s","details":"%s"}`, e.Code, sanitizeJSONText(e.Message), sanitizeJSONText(e.Details))
	}
	return string(payload)
}

func NewBindingError(code, message, details string) *BindingError {
	return &BindingError{
		Code:    strings.TrimSpace(code),
		Message: strings.TrimSpace(message),
		Details: strings.TrimSpace(details),
	}
}

func AsBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}

	var bindingErr *BindingError
	if errors.As(err, &bindingErr) && bindingErr != nil {
		return bindingErr
	}

	raw := strings.TrimSpace(err.Error())
	if raw == "" {
		return nil
	}

	var parsed BindingError
	if parseErr := json.Unmarshal([]byte(raw), &parsed); parseErr == nil && strings.TrimSpace(parsed.Code) != "" {
		return &parsed
	}

	return nil
}

// UnresolvableChangeError reports a change record without any usable path.
type UnresolvableChangeError struct {
	Section Section
	Index   int
}

func (e *UnresolvableChangeError) Error() string {
	return fmt.Sprintf("change %d in the %s list has no resolvable path", e.Index, e.Section)
}

// PushError reports a push that failed after its commit succeeded. The
// commit is not rolled back.
type PushError struct {
	Err error
}

func (e *PushError) Error() string {
	if e == nil || e.Err == nil {
		return "push failed"
	}
	return "push failed: " + e.Err.Error()
}

func (e *PushError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NormalizeBindingError maps any error from this package or the repository
// layer to the UI error contract.
func NormalizeBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}

	if bindingErr := AsBindingError(err); bindingErr != nil {
		normalized := *bindingErr
		if strings.TrimSpace(normalized.Code) == "" {
			normalized.Code = CodeUnknown
		}
		if strings.TrimSpace(normalized.Message) == "" {
			normalized.Message = "Git operation failed."
		}
		return &normalized
	}

	var pushErr *PushError
	if errors.As(err, &pushErr) {
		inner := NormalizeBindingError(pushErr.Err)
		message := "push failed"
		details := ""
		if inner != nil {
			message = inner.Message
			details = inner.Details
		}
		return NewBindingError(CodePushFailed, message, details)
	}

	var unresolvable *UnresolvableChangeError
	var cmdErr *repository.BackendCommandError
	switch {
	case errors.Is(err, repository.ErrNoRepository):
		return NewBindingError(CodeNoRepository, MessageNoRepository, err.Error())
	case errors.As(err, &unresolvable):
		return NewBindingError(CodeUnresolvableChange, err.Error(), "")
	case errors.Is(err, repository.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return NewBindingError(CodeTimeout, "Git command timed out.", err.Error())
	case errors.Is(err, repository.ErrCanceled), errors.Is(err, context.Canceled):
		return NewBindingError(CodeCanceled, "Git command canceled.", err.Error())
	case errors.Is(err, repository.ErrClosed):
		return NewBindingError(CodeServiceUnavailable, "Repository is shutting down.", err.Error())
	case errors.Is(err, repository.ErrOutsideRepository), errors.Is(err, ErrInvalidURI):
		return NewBindingError(CodeInvalidPath, err.Error(), "")
	case errors.As(err, &cmdErr):
		return NewBindingError(CodeCommandFailed, cmdErr.Error(), strings.Join(cmdErr.Args, " "))
	}

	return NewBindingError(CodeUnknown, strings.TrimSpace(err.Error()), "")
}

// ErrorMessage returns the user-facing text for err.
func ErrorMessage(err error) string {
	if normalized := NormalizeBindingError(err); normalized != nil {
		return normalized.Message
	}
	return ""
}

func sanitizeJSONText(input string) string {
	output := strings.ReplaceAll(input, `"`, `'`)
	output = strings.ReplaceAll(output, "\n", " ")
	return strings.TrimSpace(output)
}
