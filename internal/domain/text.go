package domain

// PreprocessResult is the model-specific input payload built from raw text.
// It is produced once per request and consumed by the inference call and by
// the postprocessor.
type PreprocessResult struct {
	// ProcessedText is the text sent to the inference server.
	ProcessedText string `json:"processed_text"`

	// Sentences is the capped sentence list for hybrid variants.
	Sentences []string `json:"sentences,omitempty"`

	// NumSentences is len(Sentences) for hybrid variants.
	NumSentences int `json:"num_sentences,omitempty"`

	// TopKRatio is the fraction of sentences the remote ranker keeps.
	TopKRatio float64 `json:"top_k_ratio,omitempty"`

	// SystemPrompt and UserPrompt are set for chat-structured variants.
	SystemPrompt string `json:"system_prompt,omitempty"`
	UserPrompt   string `json:"user_prompt,omitempty"`

	// OriginalLength is the character length of the raw input.
	OriginalLength int `json:"original_length"`

	// ProcessedLength is the character length after cleaning and truncation.
	ProcessedLength int `json:"processed_length,omitempty"`

	// WasTruncated is true when the budget cut the cleaned text.
	WasTruncated bool `json:"was_truncated"`
}

// PostprocessContext carries request data that flows from preprocessing into
// postprocessing.
type PostprocessContext struct {
	// Sentences is the sentence list sent upstream, if any.
	Sentences []string
}

// PostprocessResult is the cleaned summary returned to the caller.
type PostprocessResult struct {
	Summary         string `json:"summary"`
	OriginalLength  int    `json:"original_length"`
	ProcessedLength int    `json:"processed_length"`

	// NumSelectedSentences records how many upstream sentences were available
	// to the hybrid ranker. Nil when no sentence list was supplied.
	NumSelectedSentences *int `json:"num_selected_sentences,omitempty"`
}
