// Package xhandle canonicalizes and validates X (Twitter) account handles.
package xhandle

import (
	"regexp"
	"strings"
)

// Handles are 1-15 characters of alphanumerics and underscores. Case is a
// presentation concern only, so validation accepts either case while Parse
// lowercases for canonical comparison.
var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Parse canonicalizes a raw handle: trims whitespace, strips one leading '@'
// and lowercases. It is total; invalid input yields an invalid canonical form
// that IsValid then rejects.
func Parse(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "@")
	return strings.ToLower(trimmed)
}

// IsValid reports whether the handle matches the platform's charset and
// length rule.
func IsValid(handle string) bool {
	return handleRe.MatchString(handle)
}

// Format renders a handle for display with a leading '@'.
func Format(handle string) string {
	return "@" + handle
}
