package storage

import (
	"net/url"
	stdpath "path"
	"regexp"
	"strings"
)

// MaxNameLength caps the sanitized part of an output filename.
const MaxNameLength = 50

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName maps every character outside [A-Za-z0-9_-] to '_' and
// truncates to MaxNameLength bytes. The result is ASCII, so truncation never
// splits a rune.
func SanitizeName(s string) string {
	out := unsafeNameChars.ReplaceAllString(s, "_")
	if len(out) > MaxNameLength {
		out = out[:MaxNameLength]
	}
	return out
}

// IdentifierFromURL derives a fallback identifier from the last path segment
// of a replay URL, or its query when the path is empty.
func IdentifierFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := stdpath.Base(strings.TrimSuffix(parsed.Path, "/"))
	if base == "" || base == "." || base == "/" {
		return parsed.RawQuery
	}
	return base
}
