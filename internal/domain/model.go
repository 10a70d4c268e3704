package domain

// ModelVariant selects the pre/postprocessing strategy and the remote model
// used for a summarization request. The set of variants is closed.
type ModelVariant string

const (
	// ModelViT5 is the abstractive ViT5 model prompted with a task prefix.
	ModelViT5 ModelVariant = "vit5"
	// ModelPhoBERTViT5 is the hybrid pipeline: PhoBERT ranks sentences and
	// ViT5 rewrites the selected ones.
	ModelPhoBERTViT5 ModelVariant = "phobert_vit5"
	// ModelPhoBERTViT5Paraphrase is the hybrid pipeline with a paraphrasing
	// generation step.
	ModelPhoBERTViT5Paraphrase ModelVariant = "phobert_vit5_paraphrase"
	// ModelQwen is the chat-structured Qwen2.5-3B model.
	ModelQwen ModelVariant = "qwen"
)

// ModelInfo describes a variant for model listings.
type ModelInfo struct {
	ID          ModelVariant `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
}

var modelCatalog = []ModelInfo{
	{ID: ModelPhoBERTViT5, Name: "PhoBERT + ViT5 (Hybrid)", Description: "Chọn câu quan trọng bằng PhoBERT, sau đó tóm tắt bằng ViT5"},
	{ID: ModelPhoBERTViT5Paraphrase, Name: "PhoBERT + ViT5 (Paraphrase)", Description: "Chọn câu quan trọng bằng PhoBERT, sau đó diễn đạt lại bằng ViT5"},
	{ID: ModelViT5, Name: "ViT5", Description: "Mô hình tóm tắt trừu tượng ViT5"},
	{ID: ModelQwen, Name: "Qwen2.5-3B", Description: "Mô hình ngôn ngữ lớn Qwen2.5-3B với prompt hội thoại"},
}

// ParseModelVariant converts a raw key into a ModelVariant.
// Unknown keys yield an *UnsupportedModelError.
func ParseModelVariant(key string) (ModelVariant, error) {
	v := ModelVariant(key)
	if !v.Valid() {
		return "", &UnsupportedModelError{Key: key}
	}
	return v, nil
}

// Valid reports whether v is one of the known variants.
func (v ModelVariant) Valid() bool {
	switch v {
	case ModelViT5, ModelPhoBERTViT5, ModelPhoBERTViT5Paraphrase, ModelQwen:
		return true
	}
	return false
}

// IsHybrid reports whether the variant ranks upstream sentences before
// generation and therefore needs the segmented sentence list.
func (v ModelVariant) IsHybrid() bool {
	return v == ModelPhoBERTViT5 || v == ModelPhoBERTViT5Paraphrase
}

// String returns the wire key of the variant.
func (v ModelVariant) String() string { return string(v) }

// Models returns the catalog of available models in display order.
func Models() []ModelInfo {
	out := make([]ModelInfo, len(modelCatalog))
	copy(out, modelCatalog)
	return out
}
