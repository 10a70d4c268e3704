package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/textproc"
)

// qwenLeadIns are chat-style openers Qwen puts before the actual summary.
var qwenLeadIns = []string{
	"Dưới đây là bản tóm tắt:",
	"Tóm tắt:",
	"Bản tóm tắt:",
	"Summary:",
}

// qwenArtifacts match citation and attribution fragments that are usually
// hallucinated by the chat model.
var qwenArtifacts = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(nguồn:.*?\)`),
	regexp.MustCompile(`(?i)\[.*?\]`),
	regexp.MustCompile(`(?i)Theo.*?cho biết,`),
}

// sharedCleanup runs repetition removal and sentence completion.
func sharedCleanup(text string) string {
	text = textproc.RemoveRepetition(text, textproc.MinRepeatLength)
	return textproc.EnsureCompleteSentences(text)
}

func result(raw, cleaned string) domain.PostprocessResult {
	return domain.PostprocessResult{
		Summary:         cleaned,
		OriginalLength:  utf8.RuneCountInString(raw),
		ProcessedLength: utf8.RuneCountInString(cleaned),
	}
}

func postprocessViT5(raw string, _ domain.PostprocessContext) domain.PostprocessResult {
	cleaned := textproc.CleanOutput(raw)
	cleaned = RepairDates(cleaned)
	return result(raw, sharedCleanup(cleaned))
}

func postprocessHybrid(raw string, pctx domain.PostprocessContext) domain.PostprocessResult {
	cleaned := sharedCleanup(textproc.CleanOutput(raw))
	res := result(raw, cleaned)
	if n := len(pctx.Sentences); n > 0 {
		res.NumSelectedSentences = &n
	}
	return res
}

func postprocessQwen(raw string, _ domain.PostprocessContext) domain.PostprocessResult {
	cleaned := stripLeadIns(textproc.CleanOutput(raw))
	cleaned = sharedCleanup(cleaned)
	for _, re := range qwenArtifacts {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return result(raw, textproc.CleanOutput(cleaned))
}

// stripLeadIns removes each known opener in turn when the text starts with
// it, ignoring case.
func stripLeadIns(text string) string {
	fold := cases.Fold()
	for _, prefix := range qwenLeadIns {
		n := utf8.RuneCountInString(prefix)
		rs := []rune(text)
		if len(rs) < n {
			continue
		}
		if fold.String(string(rs[:n])) == fold.String(prefix) {
			text = strings.TrimSpace(string(rs[n:]))
		}
	}
	return text
}
