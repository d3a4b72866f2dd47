// Package sanitize repairs near-JSON model output so it can be parsed
package sanitize

import (
	"strings"
)

const fence = "```"

// Sanitize strips a Markdown fence wrapping the payload, leading chatter before
// the first opening brace, commentary after the payload's closing brace and
// trailing commas. String values are never touched. It never fails and is
// idempotent: every step only removes characters and the steps are repeated
// until the text stops changing.
func Sanitize(raw string) string {
	s := raw
	for {
		next := step(s)
		if next == s {
			return s
		}
		s = next
	}
}

func step(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = unfence(strings.TrimSpace(s))
	s = strings.TrimSpace(s)
	s = objectSpan(s)
	s = dropTrailingCommas(s)
	return s
}

// unfence removes an opening fence line (with its info string) and a closing
// fence at the very end. Fences inside the payload are left alone.
func unfence(s string) string {
	if strings.HasPrefix(s, fence) {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
			s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_+-")
		}
	}
	if strings.HasSuffix(s, fence) {
		s = strings.TrimRight(s, "`")
	}
	return s
}

// dropTrailingCommas removes a comma (and the whitespace after it) sitting
// directly before a closing bracket or brace, outside string literals
func dropTrailingCommas(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				i = j - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// objectSpan cuts s down to the first balanced JSON object. When the object
// never closes (truncated output) it falls back to the last "}".
func objectSpan(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return s
	}
	if end := balancedEnd(s, start); end >= 0 {
		return s[start : end+1]
	}
	last := strings.LastIndex(s, "}")
	if last < 0 {
		return s
	}
	if last < start {
		return s[:last+1]
	}
	return s[start : last+1]
}

// balancedEnd returns the index of the brace closing the object opened at
// start, skipping braces inside string literals, or -1
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
