package gitpanel

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// FileURI renders an absolute filesystem path as a file:// URI.
func FileURI(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Scheme: "file", Path: slashed}).String()
}

// PathFromURI converts a file:// URI back to a filesystem path. Plain paths
// are accepted unchanged.
func PathFromURI(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.ContainsRune(trimmed, '\x00') {
		return "", fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	if !strings.Contains(trimmed, "://") {
		return filepath.Clean(trimmed), nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || !strings.EqualFold(parsed.Scheme, "file") || parsed.Path == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}

	path := parsed.Path
	// file:///C:/x on Windows
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.Clean(filepath.FromSlash(path)), nil
}
