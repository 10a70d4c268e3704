package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtat/tomtat/internal/ports"
)

func TestMockLLMClientComplete(t *testing.T) {
	boom := errors.New("quota exceeded")
	m := NewMockLLMClient("mock-judge",
		MockResponse{Pattern: "Model 1", Response: `{"winner":"vit5"}`},
		MockResponse{Pattern: "fail", Err: boom},
	)
	m.AddResponse(MockResponse{Response: "fallback"})

	tests := []struct {
		name    string
		prompt  string
		want    string
		wantErr error
	}{
		{"first match wins", "### Model 1: vit5 fail", `{"winner":"vit5"}`, nil},
		{"scripted error", "please fail", "", boom},
		{"catch-all", "anything else", "fallback", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Complete(t.Context(), tt.prompt, map[string]any{"temperature": 0.3})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Len(t, m.Calls(), 3)
	assert.Equal(t, "anything else", m.LastCall().Prompt)
	assert.InDelta(t, 0.3, m.LastCall().Options["temperature"], 1e-9)
	assert.Equal(t, "mock-judge", m.GetModel())
}

func TestMockLLMClientEdgeCases(t *testing.T) {
	m := NewMockLLMClient("mock")

	_, err := m.Complete(t.Context(), "", nil)
	assert.Error(t, err)

	_, err = m.Complete(t.Context(), "unscripted", nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = m.Complete(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := m.EstimateTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = m.EstimateTokens("ab")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInferenceServer(t *testing.T) {
	srv := NewInferenceServer(t)

	post := func(path string, body any) *http.Response {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(raw))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := post("/summarize", ports.SummarizeRequest{Text: "Câu một. Câu hai.", Model: "vit5", MaxLength: 256})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum ports.SummarizeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, "Câu một.", sum.Summary)
	assert.Equal(t, "vit5", sum.ModelUsed)
	require.Len(t, srv.Requests(), 1)

	resp = post("/embed", map[string]any{"texts": []string{"hà nội", "Hà Nội mưa"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var emb struct {
		Embeddings [][][]float32 `json:"embeddings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&emb))
	require.Len(t, emb.Embeddings, 2)
	assert.Len(t, emb.Embeddings[1], 3)
	assert.Equal(t, emb.Embeddings[0][0], emb.Embeddings[1][0])
	assert.Len(t, emb.Embeddings[0][0], EmbeddingDim)
	assert.Equal(t, 2, srv.EmbeddedTexts())

	srv.FailWith(http.StatusServiceUnavailable)
	resp = post("/summarize", ports.SummarizeRequest{Text: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
