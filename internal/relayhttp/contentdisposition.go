package relayhttp

import (
	"fmt"
	"net/url"
	"strings"
)

const maxASCIIFallbackBytes = 120

// contentDisposition builds an RFC 6266 attachment header with an RFC
// 5987 filename* extended parameter, so browsers with non-ASCII-capable
// clients get the exact name while older clients fall back cleanly.
func contentDisposition(filename string) string {
	fallback := asciiFallback(filename)
	encoded := url.QueryEscape(filename)
	// url.QueryEscape uses '+' for spaces; RFC 5987 wants %20.
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, encoded)
}

func asciiFallback(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r > maxASCIIRune || r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case r == '"' || r == '\\':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxASCIIFallbackBytes {
		out = out[:maxASCIIFallbackBytes]
	}
	if out == "" {
		return "download"
	}
	return out
}

const maxASCIIRune = 127
