package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelVariant(t *testing.T) {
	tests := []struct {
		key     string
		want    ModelVariant
		wantErr bool
	}{
		{key: "vit5", want: ModelViT5},
		{key: "phobert_vit5", want: ModelPhoBERTViT5},
		{key: "phobert_vit5_paraphrase", want: ModelPhoBERTViT5Paraphrase},
		{key: "qwen", want: ModelQwen},
		{key: "made_up_model", wantErr: true},
		{key: "", wantErr: true},
		{key: "VIT5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseModelVariant(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedModel))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModelVariantIsHybrid(t *testing.T) {
	assert.True(t, ModelPhoBERTViT5.IsHybrid())
	assert.True(t, ModelPhoBERTViT5Paraphrase.IsHybrid())
	assert.False(t, ModelViT5.IsHybrid())
	assert.False(t, ModelQwen.IsHybrid())
}

func TestModelsReturnsCopy(t *testing.T) {
	models := Models()
	require.Len(t, models, 4)
	assert.Equal(t, ModelPhoBERTViT5, models[0].ID)

	models[0].Name = "changed"
	assert.Equal(t, "PhoBERT + ViT5 (Hybrid)", Models()[0].Name)
}

func TestHistoryFilterMatch(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	yes, no := true, false
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	rated := HistoryRecord{UserID: "u1", ModelUsed: "vit5", CreatedAt: now, Feedback: &Feedback{Rating: RatingBad}}
	plain := HistoryRecord{UserID: "u1", ModelUsed: "qwen", CreatedAt: now}

	tests := []struct {
		name   string
		filter HistoryFilter
		rec    HistoryRecord
		want   bool
	}{
		{name: "empty matches", filter: HistoryFilter{}, rec: plain, want: true},
		{name: "other user", filter: HistoryFilter{UserID: "u2"}, rec: plain, want: false},
		{name: "model match", filter: HistoryFilter{Model: "vit5"}, rec: rated, want: true},
		{name: "model miss", filter: HistoryFilter{Model: "vit5"}, rec: plain, want: false},
		{name: "rating match", filter: HistoryFilter{Rating: RatingBad}, rec: rated, want: true},
		{name: "rating without feedback", filter: HistoryFilter{Rating: RatingBad}, rec: plain, want: false},
		{name: "has feedback", filter: HistoryFilter{HasFeedback: &yes}, rec: rated, want: true},
		{name: "no feedback", filter: HistoryFilter{HasFeedback: &no}, rec: rated, want: false},
		{name: "inside range", filter: HistoryFilter{From: &before, To: &after}, rec: plain, want: true},
		{name: "before range", filter: HistoryFilter{From: &after}, rec: plain, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.rec))
		})
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage[int](nil, 41, 2, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.NotNil(t, p.Items)

	assert.Equal(t, 0, NewPage([]int{}, 0, 1, 20).TotalPages)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.2345, 2))
	assert.Equal(t, 1.235, Round(1.23456, 3))
	assert.Equal(t, 0.0, Round(0, 2))
}

func TestBatchItemResultVariants(t *testing.T) {
	ref := "tham chiếu"
	row := BatchRow{Index: 2, Text: "văn bản", Reference: &ref}

	failed := FailedItem(row, "vit5", errors.New("boom"))
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "boom", *failed.Error)
	assert.Nil(t, failed.Rouge1)

	ok := BatchItemResult{Index: 1, Success: true}.WithMetrics(EvaluationMetrics{Rouge1: 0.5, BLEU: 0.25})
	require.NotNil(t, ok.Rouge1)
	assert.Equal(t, 0.5, *ok.Rouge1)
	assert.Nil(t, ok.BERTScore, "BERTScore stays unset when it was not computed")
}
