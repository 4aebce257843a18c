package relay

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxFilenameBytes = 200

// SanitizeFilename normalizes to NFC, strips path separators and the
// CR, LF, TAB and NUL characters (other control characters are kept),
// replaces a small set of filesystem-unsafe characters, and
// bounds the result to maxFilenameBytes. Returns "" for inputs that
// cannot be made into a safe filename.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}

	var b strings.Builder
	lastWasSpace := false
	for _, r := range name {
		switch {
		case r == '\r' || r == '\n' || r == '\t' || r == 0:
			continue
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
			lastWasSpace = false
		case unicode.IsSpace(r):
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		default:
			b.WriteRune(r)
			lastWasSpace = false
		}
	}
	name = strings.TrimRight(strings.TrimLeft(b.String(), " "), " .")

	if name == "" || name == "." || name == ".." {
		return ""
	}
	// Truncation can expose a trailing space or dot; trim again so that
	// sanitizing the result a second time leaves it unchanged.
	return strings.TrimRight(truncateUTF8(name, maxFilenameBytes), " .")
}

// truncateUTF8 shortens s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
