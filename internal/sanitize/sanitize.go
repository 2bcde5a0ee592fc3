// Package sanitize cleans free-text labels attached to batch reports. Labels
// are echoed back to MCP clients and HTTP consumers, so control characters,
// markup tags and code fences are stripped before storage.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxLabelLength is the maximum allowed length for a report label, in bytes.
const MaxLabelLength = 120

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reBackticks matches runs of backticks used in code fences.
	reBackticks = regexp.MustCompile("`+")

	reSpaces = regexp.MustCompile(`\s+`)
)

// Label returns a single-line, tag-free version of input, truncated to
// MaxLabelLength without splitting a UTF-8 sequence.
//
// The pipeline runs in this order:
//  1. Strip ASCII control characters (newlines become spaces)
//  2. Strip XML/HTML tags
//  3. Drop backticks
//  4. Collapse whitespace and trim
//  5. Truncate
func Label(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "")
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))

	if len(s) > MaxLabelLength {
		cut := MaxLabelLength
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return s
}

// stripControlChars replaces newline and tab with a space and removes the
// other ASCII control characters (0x00-0x1F, 0x7F).
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
