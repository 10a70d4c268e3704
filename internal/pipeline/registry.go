// Package pipeline shapes text going into and coming out of the remote
// summarization models. Each ModelVariant maps to a Strategy holding a
// preprocess and a postprocess function; dispatch is a table lookup over the
// closed set of variants.
package pipeline

import (
	"github.com/tomtat/tomtat/internal/domain"
)

// PreprocessFunc builds the model input for raw text. maxLength governs the
// generated summary length and is forwarded, not used to cut the input.
type PreprocessFunc func(text string, maxLength int) domain.PreprocessResult

// PostprocessFunc cleans the raw model output.
type PostprocessFunc func(raw string, pctx domain.PostprocessContext) domain.PostprocessResult

// Strategy is the pre/postprocessing pair for one model variant.
type Strategy struct {
	Variant     domain.ModelVariant
	Preprocess  PreprocessFunc
	Postprocess PostprocessFunc
}

var strategies = map[domain.ModelVariant]Strategy{
	domain.ModelViT5: {
		Variant:     domain.ModelViT5,
		Preprocess:  preprocessViT5,
		Postprocess: postprocessViT5,
	},
	domain.ModelPhoBERTViT5: {
		Variant:     domain.ModelPhoBERTViT5,
		Preprocess:  preprocessHybrid,
		Postprocess: postprocessHybrid,
	},
	domain.ModelPhoBERTViT5Paraphrase: {
		Variant:     domain.ModelPhoBERTViT5Paraphrase,
		Preprocess:  preprocessHybrid,
		Postprocess: postprocessHybrid,
	},
	domain.ModelQwen: {
		Variant:     domain.ModelQwen,
		Preprocess:  preprocessQwen,
		Postprocess: postprocessQwen,
	},
}

// Lookup returns the strategy registered for key.
// Unknown keys fail with *domain.UnsupportedModelError.
func Lookup(key string) (Strategy, error) {
	s, ok := strategies[domain.ModelVariant(key)]
	if !ok {
		return Strategy{}, &domain.UnsupportedModelError{Key: key}
	}
	return s, nil
}

// Preprocess runs the preprocessing step registered for key.
func Preprocess(key, text string, maxLength int) (domain.PreprocessResult, error) {
	s, err := Lookup(key)
	if err != nil {
		return domain.PreprocessResult{}, err
	}
	return s.Preprocess(text, maxLength), nil
}

// Postprocess runs the postprocessing step registered for key.
func Postprocess(key, raw string, pctx domain.PostprocessContext) (domain.PostprocessResult, error) {
	s, err := Lookup(key)
	if err != nil {
		return domain.PostprocessResult{}, err
	}
	return s.Postprocess(raw, pctx), nil
}
