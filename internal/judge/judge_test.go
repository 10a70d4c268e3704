package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
	"github.com/tomtat/tomtat/internal/testutils"
)

var twoCandidates = []Candidate{
	{Model: "vit5", Summary: "Tóm tắt của ViT5."},
	{Model: "phobert_vit5", Summary: "Tóm tắt của mô hình lai."},
}

func TestCompare(t *testing.T) {
	llm := testutils.NewMockLLMClient("gemini-flash-lite-latest", testutils.MockResponse{
		Response: "Đây là kết quả:\n```json\n" + `{
  "winner": "PhoBERT_ViT5",
  "rankings": [
    {"model": "vit5", "rank": 2, "score": 70, "reasoning": "Thiếu ý"},
    {"model": "Model 2: phobert_vit5", "rank": 1, "score": 88, "reasoning": "Đầy đủ"}
  ],
  "detailed_analysis": "Bản lai giữ nhiều ý chính hơn."
}` + "\n```",
	})
	j, err := New(llm, DefaultConfig(), nil)
	require.NoError(t, err)

	v, err := j.Compare(context.Background(), "Văn bản gốc.", twoCandidates)
	require.NoError(t, err)

	assert.Equal(t, "phobert_vit5", v.Winner)
	require.Len(t, v.Rankings, 2)
	assert.Equal(t, "phobert_vit5", v.Rankings[0].Model)
	assert.Equal(t, 1, v.Rankings[0].Rank)
	assert.Equal(t, "vit5", v.Rankings[1].Model)
	assert.Equal(t, "Bản lai giữ nhiều ý chính hơn.", v.DetailedAnalysis)
	assert.GreaterOrEqual(t, v.ProcessingTimeMs, int64(0))

	assert.Contains(t, llm.LastCall().Prompt, "### Model 1: vit5\nTóm tắt của ViT5.")
	assert.Contains(t, llm.LastCall().Prompt, "### Model 2: phobert_vit5")
	assert.Contains(t, llm.LastCall().Prompt, "Văn bản gốc.")
	assert.Contains(t, llm.LastCall().Options, "response_format")
}

func TestCompareErrors(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		j, err := New(nil, DefaultConfig(), nil)
		require.NoError(t, err)
		assert.False(t, j.Available())
		_, err = j.Compare(context.Background(), "x", twoCandidates)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("invalid input", func(t *testing.T) {
		j, err := New(testutils.NewMockLLMClient("claude"), DefaultConfig(), nil)
		require.NoError(t, err)
		_, err = j.Compare(context.Background(), " ", []Candidate{{Model: "vit5"}, {Model: "vit5", Summary: "a"}})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Errors, 2)
	})

	t.Run("provider failure", func(t *testing.T) {
		j, err := New(testutils.NewMockLLMClient("claude", testutils.MockResponse{Err: ports.ErrRateLimited}), DefaultConfig(), nil)
		require.NoError(t, err)
		_, err = j.Compare(context.Background(), "x", twoCandidates)
		assert.ErrorIs(t, err, ports.ErrRateLimited)
		var llmErr *ports.LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, "claude", llmErr.Model)
		assert.True(t, llmErr.IsRetryable())
	})

	t.Run("prose answer", func(t *testing.T) {
		j, err := New(testutils.NewMockLLMClient("claude", testutils.MockResponse{Response: "Tôi nghĩ vit5 tốt hơn."}), DefaultConfig(), nil)
		require.NoError(t, err)
		_, err = j.Compare(context.Background(), "x", twoCandidates)
		assert.ErrorIs(t, err, ports.ErrInvalidResponse)
	})

	t.Run("score out of range", func(t *testing.T) {
		resp := `{"winner":"vit5","rankings":[{"model":"vit5","rank":1,"score":150}]}`
		j, err := New(testutils.NewMockLLMClient("claude", testutils.MockResponse{Response: resp}), DefaultConfig(), nil)
		require.NoError(t, err)
		_, err = j.Compare(context.Background(), "x", twoCandidates)
		assert.ErrorIs(t, err, ports.ErrInvalidResponse)
	})
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, Config{Temperature: 2, MaxTokens: 1024}, nil)
	assert.Error(t, err)
	_, err = New(nil, Config{MaxTokens: 10}, nil)
	assert.Error(t, err)
}

func TestParseVerdictWinnerFallback(t *testing.T) {
	resp := `{"rankings":[{"model":"vit5","rank":1,"score":80}],"detailed_analysis":""}`
	v, err := parseVerdict(resp, twoCandidates)
	require.NoError(t, err)
	assert.Equal(t, "vit5", v.Winner)

	v, err = parseVerdict(`{"rankings":[]}`, twoCandidates)
	require.NoError(t, err)
	assert.Equal(t, "unknown", v.Winner)
}

func TestResolveModel(t *testing.T) {
	keys := []string{"vit5", "phobert_vit5", "phobert_vit5_paraphrase", "qwen"}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "exact", in: "qwen", want: "qwen"},
		{name: "case", in: "ViT5", want: "vit5"},
		{name: "longest contained key", in: "Model 3: phobert_vit5_paraphrase", want: "phobert_vit5_paraphrase"},
		{name: "typo", in: "phobert_vt5", want: "phobert_vit5"},
		{name: "spacing", in: "qwen ", want: "qwen"},
		{name: "unrelated", in: "gpt-4o-mini", want: "gpt-4o-mini"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveModel(tt.in, keys))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounded", in: `Kết quả: {"a":{"b":2}} xong`, want: `{"a":{"b":2}}`},
		{name: "brace in string", in: `{"a":"}{"}`, want: `{"a":"}{"}`},
		{name: "escaped quote", in: `{"a":"\"}"}`, want: `{"a":"\"}"}`},
		{name: "none", in: "không có", want: ""},
		{name: "unterminated", in: `{"a":1`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestSupportsJSONMode(t *testing.T) {
	assert.True(t, supportsJSONMode(testutils.NewMockLLMClient("gpt-4o")))
	assert.True(t, supportsJSONMode(testutils.NewMockLLMClient("gemini-2.0-flash")))
	assert.False(t, supportsJSONMode(testutils.NewMockLLMClient("claude-3-5-haiku")))
}
