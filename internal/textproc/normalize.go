// Package textproc holds the text normalization helpers shared by every
// model pipeline: whitespace cleanup, sentence segmentation, truncation on
// sentence boundaries, and the generic cleanup passes applied to model output.
//
// All functions are pure and safe for concurrent use. Lengths are measured in
// characters (runes), never bytes, because Vietnamese text is mostly
// multi-byte in UTF-8.
package textproc

import (
	"iter"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinSentenceLength is the minimum number of characters a segmented sentence
// must have to be kept.
const MinSentenceLength = 6

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	newlineRuns     = regexp.MustCompile(`\n+`)
)

// Clean normalizes line endings, collapses runs of spaces, tabs and newlines,
// trims every line, drops blank lines, and trims the result. The text is also
// brought to Unicode NFC so composed and decomposed diacritics compare equal.
//
// Clean is idempotent.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// SegmentSentences yields the sentences of text in order. A sentence ends at
// '.', '!' or '?' followed by whitespace. Fragments are trimmed and those
// shorter than MinSentenceLength characters are dropped.
//
// The returned sequence is single-use: it walks text lazily and stops as soon
// as the consumer stops ranging.
func SegmentSentences(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		var prev rune
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) && isTerminal(prev) {
				end := i
				for i < len(text) {
					r, size = utf8.DecodeRuneInString(text[i:])
					if !unicode.IsSpace(r) {
						break
					}
					i += size
				}
				if !emit(text[start:end], yield) {
					return
				}
				start = i
				prev = 0
				continue
			}
			prev = r
			i += size
		}
		emit(text[start:], yield)
	}
}

func emit(fragment string, yield func(string) bool) bool {
	fragment = strings.TrimSpace(fragment)
	if utf8.RuneCountInString(fragment) < MinSentenceLength {
		return true
	}
	return yield(fragment)
}

// CollectSentences gathers at most limit sentences from SegmentSentences.
// A non-positive limit collects every sentence.
func CollectSentences(text string, limit int) []string {
	var out []string
	for s := range SegmentSentences(text) {
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Truncate shortens text to at most maxChars characters. When a cut is needed
// it backs off to just after the last sentence-final mark inside the window,
// provided that mark lies past half of the window; otherwise the hard cut is
// kept.
func Truncate(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	cut := []rune(text)[:maxChars]
	last := lastTerminal(cut)
	if float64(last) > float64(maxChars)*0.5 {
		return string(cut[:last+1])
	}
	return string(cut)
}

// Len returns the character length of text.
func Len(text string) int { return utf8.RuneCountInString(text) }

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

// lastTerminal returns the index of the last sentence-final mark or -1.
func lastTerminal(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if isTerminal(rs[i]) {
			return i
		}
	}
	return -1
}
