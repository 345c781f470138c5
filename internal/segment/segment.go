// Package segment splits generated replies into sentence-sized pieces
// for independent synthesis.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split cuts text after '.', '!' or '?' when the mark is followed by
// whitespace. The whitespace run stays attached to the segment it
// follows, so strings.Join(Split(text), "") == text for every input.
// A mark with no following whitespace ("3.5", "e.g.x") does not cut.
func Split(text string) []string {
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isSentenceEnd(r) {
			continue
		}

		j := i
		for j < len(text) {
			ws, n := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += n
		}
		if j == i {
			continue
		}

		out = append(out, text[start:j])
		start = j
		i = j
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// Speakable returns the trimmed, non-blank segments of text in order.
// These are the pieces handed to a synthesizer.
func Speakable(text string) []string {
	var out []string
	for _, s := range Split(text) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
