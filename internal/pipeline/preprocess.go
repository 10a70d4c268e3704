package pipeline

import (
	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/textproc"
)

// Input budgets and prompts per model family.
const (
	// ViT5MaxInputChars bounds the encoder input of ViT5.
	ViT5MaxInputChars = 3000
	// ViT5TaskPrefix tells ViT5 which task to perform.
	ViT5TaskPrefix = "summarize: "

	// HybridMaxSentences caps the sentences sent to the remote ranker.
	HybridMaxSentences = 50
	// HybridTopKRatio is the fraction of ranked sentences kept upstream.
	HybridTopKRatio = 0.6

	// QwenMaxInputChars bounds the chat context given to Qwen.
	QwenMaxInputChars = 6000
	// QwenSystemPrompt is the fixed system turn.
	QwenSystemPrompt = "Bạn là trợ lý tóm tắt văn bản tiếng Việt. Hãy tóm tắt ngắn gọn, giữ lại các ý chính quan trọng nhất."
	// QwenUserTemplate precedes the document in the user turn.
	QwenUserTemplate = "Tóm tắt văn bản sau:\n\n"
)

func preprocessViT5(text string, _ int) domain.PreprocessResult {
	cleaned := textproc.Clean(text)
	truncated := textproc.Truncate(cleaned, ViT5MaxInputChars)

	return domain.PreprocessResult{
		ProcessedText:   ViT5TaskPrefix + truncated,
		OriginalLength:  textproc.Len(text),
		ProcessedLength: textproc.Len(truncated),
		WasTruncated:    textproc.Len(truncated) < textproc.Len(cleaned),
	}
}

func preprocessHybrid(text string, _ int) domain.PreprocessResult {
	cleaned := textproc.Clean(text)
	sentences := textproc.CollectSentences(cleaned, HybridMaxSentences)

	return domain.PreprocessResult{
		ProcessedText:   cleaned,
		Sentences:       sentences,
		NumSentences:    len(sentences),
		TopKRatio:       HybridTopKRatio,
		OriginalLength:  textproc.Len(text),
		ProcessedLength: textproc.Len(cleaned),
	}
}

func preprocessQwen(text string, _ int) domain.PreprocessResult {
	cleaned := textproc.Clean(text)
	truncated := textproc.Truncate(cleaned, QwenMaxInputChars)

	return domain.PreprocessResult{
		ProcessedText:   truncated,
		SystemPrompt:    QwenSystemPrompt,
		UserPrompt:      QwenUserTemplate + truncated,
		OriginalLength:  textproc.Len(text),
		ProcessedLength: textproc.Len(truncated),
		WasTruncated:    textproc.Len(truncated) < textproc.Len(cleaned),
	}
}
