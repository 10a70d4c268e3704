package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	digitRuns = regexp.MustCompile(`[0-9]+`)
	// shortDateCue matches a cue word and the digit run after it. The right
	// word boundary is checked by hand since RE2 has no lookahead.
	shortDateCue = regexp.MustCompile(`(?i)(ngày\s+|là\s+|trước\s+|sau\s+)([0-9]{3,4})`)
)

// RepairDates restores '/' separators that ViT5 tends to drop from dates.
//
// Standalone 7 or 8 digit runs become day/month/year ("1852023" becomes
// "18/5/2023"). 3 or 4 digit runs right after "ngày", "là", "trước" or
// "sau" become day/month ("ngày 206" becomes "ngày 20/6"). Candidates whose
// day or month fall outside the calendar are left as they are.
func RepairDates(text string) string {
	text = repairFullDates(text)
	return repairShortDates(text)
}

func repairFullDates(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range digitRuns.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if n := end - start; n < 7 || n > 8 || !boundaryBefore(text, start) || !boundaryAfter(text, end) {
			continue
		}
		fixed, ok := formatFullDate(text[start:end])
		if !ok {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(fixed)
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func formatFullDate(s string) (string, bool) {
	switch len(s) {
	case 7:
		if inRange(s[:2], 1, 31) && inRange(s[2:3], 1, 9) {
			return s[:2] + "/" + s[2:3] + "/" + s[3:], true
		}
		if inRange(s[:1], 1, 9) && inRange(s[1:3], 1, 12) {
			return s[:1] + "/" + s[1:3] + "/" + s[3:], true
		}
	case 8:
		if inRange(s[:2], 1, 31) && inRange(s[2:4], 1, 12) {
			return s[:2] + "/" + s[2:4] + "/" + s[4:], true
		}
	}
	return "", false
}

func repairShortDates(text string) string {
	var b strings.Builder
	last := 0
	for _, m := range shortDateCue.FindAllStringSubmatchIndex(text, -1) {
		numStart, numEnd := m[4], m[5]
		if !boundaryAfter(text, numEnd) {
			continue
		}
		fixed, ok := formatShortDate(text[numStart:numEnd])
		if !ok {
			continue
		}
		b.WriteString(text[last:numStart])
		b.WriteString(fixed)
		last = numEnd
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func formatShortDate(s string) (string, bool) {
	switch len(s) {
	case 3:
		if inRange(s[:2], 1, 31) && inRange(s[2:], 1, 9) {
			return s[:2] + "/" + s[2:], true
		}
	case 4:
		if inRange(s[:2], 1, 31) && inRange(s[2:], 1, 12) {
			return s[:2] + "/" + s[2:], true
		}
	}
	return "", false
}

func inRange(s string, lo, hi int) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= lo && n <= hi
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}
