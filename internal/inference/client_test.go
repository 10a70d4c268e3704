package inference

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtat/tomtat/internal/ports"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	c, err := NewClient(cfg, nil, nil)
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "static url", cfg: Config{BaseURL: "http://localhost:8000", Timeout: time.Second}},
		{name: "discovery url", cfg: Config{DiscoveryURL: "https://gist.example/raw", Timeout: time.Second}},
		{name: "neither url", cfg: Config{Timeout: time.Second}, wantErr: true},
		{name: "bad static url", cfg: Config{BaseURL: "not a url", Timeout: time.Second}, wantErr: true},
		{name: "missing timeout", cfg: Config{BaseURL: "http://localhost:8000"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg, nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/summarize", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ports.SummarizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "phobert_vit5", req.Model)
		assert.Equal(t, 256, req.MaxLength)
		assert.Equal(t, []string{"Câu một dài.", "Câu hai dài."}, req.PreprocessedSentences)

		_ = json.NewEncoder(w).Encode(ports.SummarizeResponse{
			Summary:         "Tóm tắt",
			InferenceTimeMs: 123.5,
			ModelUsed:       "phobert_vit5",
		})
	})

	c := newClient(t, Config{BaseURL: srv.URL + "/"})
	resp, err := c.Summarize(t.Context(), ports.SummarizeRequest{
		Text:                  "văn bản",
		Model:                 "phobert_vit5",
		MaxLength:             256,
		PreprocessedSentences: []string{"Câu một dài.", "Câu hai dài."},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tóm tắt", resp.Summary)
	assert.InDelta(t, 123.5, resp.InferenceTimeMs, 1e-9)
}

func TestSummarizeOmitsEmptySentences(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.NotContains(t, raw, "preprocessed_sentences")
		_, _ = w.Write([]byte(`{"summary":"x","inference_time_ms":1,"model_used":"vit5"}`))
	})

	c := newClient(t, Config{BaseURL: srv.URL})
	_, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5", MaxLength: 100})
	require.NoError(t, err)
}

func TestErrorTranslation(t *testing.T) {
	t.Run("non-2xx becomes upstream error", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
		})
		c := newClient(t, Config{BaseURL: srv.URL})

		_, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrUpstream)

		var up *ports.UpstreamError
		require.ErrorAs(t, err, &up)
		assert.Equal(t, http.StatusInternalServerError, up.StatusCode)
		assert.Equal(t, "CUDA out of memory", up.Body)
	})

	t.Run("deadline becomes gateway timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)
		c := newClient(t, Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

		_, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrGatewayTimeout)
	})

	t.Run("refused connection becomes service unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()
		c := newClient(t, Config{BaseURL: addr})

		_, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrServiceUnavailable)
	})

	t.Run("malformed body is invalid response", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		})
		c := newClient(t, Config{BaseURL: srv.URL})

		_, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5"})
		assert.ErrorIs(t, err, ports.ErrInvalidResponse)
	})
}

func TestDiscovery(t *testing.T) {
	var fetches atomic.Int32
	backend := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/summarize":
			_, _ = w.Write([]byte(`{"summary":"ok","inference_time_ms":5,"model_used":"vit5"}`))
		case "/health":
			_, _ = w.Write([]byte(`{"gpu":true}`))
		default:
			http.NotFound(w, r)
		}
	})
	gist := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		assert.NotEmpty(t, r.URL.Query().Get("t"), "cache buster must be set")
		_, _ = w.Write([]byte("  " + backend.URL + "/\n"))
	})

	c := newClient(t, Config{DiscoveryURL: gist.URL + "/raw/colab_url.txt"})

	for range 3 {
		resp, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Summary)
	}
	assert.Equal(t, int32(1), fetches.Load(), "address is cached after the first lookup")

	h := c.Health(t.Context())
	assert.Equal(t, StatusConnected, h.Status)
	assert.Equal(t, backend.URL, h.URL)
	assert.True(t, h.GPUAvailable)
	assert.Equal(t, int32(2), fetches.Load(), "health forces a refresh")
}

func TestDiscoveryFailure(t *testing.T) {
	gist := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c := newClient(t, Config{DiscoveryURL: gist.URL})

	_, err := c.Summarize(t.Context(), ports.SummarizeRequest{Text: "a", Model: "vit5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)

	h := c.Health(t.Context())
	assert.Equal(t, StatusDisconnected, h.Status)
	assert.NotEmpty(t, h.Error)
}

func TestEmbed(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := embedResponse{}
		for range req.Texts {
			out.Embeddings = append(out.Embeddings, [][]float32{{1, 0}, {0, 1}})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	c := newClient(t, Config{BaseURL: srv.URL})

	emb, err := c.Embed(t.Context(), []string{"một", "hai"})
	require.NoError(t, err)
	require.Len(t, emb, 2)
	assert.Len(t, emb[0], 2)
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[[1.0]]]}`))
	})
	c := newClient(t, Config{BaseURL: srv.URL})

	_, err := c.Embed(t.Context(), []string{"một", "hai"})
	assert.ErrorIs(t, err, ports.ErrInvalidResponse)
}

func TestHealthDisconnected(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := newClient(t, Config{BaseURL: srv.URL})

	h := c.Health(t.Context())
	assert.Equal(t, StatusDisconnected, h.Status)
	assert.Equal(t, srv.URL, h.URL)
	assert.False(t, h.GPUAvailable)
}
