package textproc

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	// RepetitionWindow is the number of words compared when looking for
	// repeated phrases in model output.
	RepetitionWindow = 5

	// MinRepeatLength is the shortest phrase, in characters, that counts as a
	// repetition. Shorter windows are made of common short words and are
	// allowed to recur.
	MinRepeatLength = 10
)

// CleanOutput collapses all whitespace to single spaces, trims, and appends a
// period when the text does not already end with '.', '!' or '?'.
func CleanOutput(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return text
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	if !isTerminal(last) {
		text += "."
	}
	return text
}

// RemoveRepetition drops phrases a model emitted more than once.
//
// A window of RepetitionWindow words slides over the text. When the phrase
// under the window was seen before and is at least minLength characters long,
// the repeated span is skipped: a whole period when the text between the two
// occurrences repeats verbatim, otherwise one window. Everything else is
// emitted in order.
func RemoveRepetition(text string, minLength int) string {
	words := strings.Fields(text)
	lastSeen := make(map[string]int, len(words))
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); {
		phrase := strings.Join(words[i:min(i+RepetitionWindow, len(words))], " ")
		prev, seen := lastSeen[phrase]
		lastSeen[phrase] = i
		if seen && utf8.RuneCountInString(phrase) >= minLength {
			i += repeatSpan(words, prev, i)
			continue
		}
		out = append(out, words[i])
		i++
	}
	return strings.Join(out, " ")
}

// repeatSpan returns how many words to skip at i given that the same window
// started earlier at prev.
func repeatSpan(words []string, prev, i int) int {
	period := i - prev
	if period > 0 && i+period <= len(words) && slices.Equal(words[prev:i], words[i:i+period]) {
		return period
	}
	return RepetitionWindow
}

// EnsureCompleteSentences drops a dangling partial sentence: the text is cut
// after its last '.', '!' or '?' when that mark lies past the midpoint.
// Otherwise the text is returned unchanged.
func EnsureCompleteSentences(text string) string {
	rs := []rune(text)
	last := lastTerminal(rs)
	if float64(last) > float64(len(rs))*0.5 {
		return string(rs[:last+1])
	}
	return text
}
