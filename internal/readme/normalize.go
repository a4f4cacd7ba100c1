// Package readme provides README content normalization and change detection.
// Everything here is pure: no I/O, deterministic, total.
package readme

import (
	"regexp"
	"strings"
)

const (
	// MaxContentLength caps normalized content so embedding inputs stay
	// bounded. The truncation marker counts against the cap.
	MaxContentLength = 8000

	truncationMarker = "..."
)

var (
	markupRe  = regexp.MustCompile(`<[^>]+>`)
	newlineRe = regexp.MustCompile(`(\n[ \t]*){3,}`)
)

// Normalize cleans raw README text into the canonical form used for hashing
// and embedding: markup tags stripped, runs of three or more newlines
// collapsed to two, content capped at MaxContentLength runes (marker
// included), edges trimmed. Idempotent: Normalize(Normalize(x)) == Normalize(x).
//
// Tags are stripped before newlines are collapsed; the reverse order lets a
// stripped tag join two blank-line runs into a new collapsible one.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	content := markupRe.ReplaceAllString(raw, "")
	content = newlineRe.ReplaceAllString(content, "\n\n")

	if runes := []rune(content); len(runes) > MaxContentLength {
		content = string(runes[:MaxContentLength-len(truncationMarker)]) + truncationMarker
	}

	return strings.TrimSpace(content)
}
