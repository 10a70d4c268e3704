package testutils

import (
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tomtat/tomtat/internal/ports"
)

// EmbeddingDim is the vector size produced by InferenceServer's /embed.
const EmbeddingDim = 8

// InferenceServer fakes the remote GPU server. /summarize answers with the
// first preprocessed sentence (or the first sentence of the text), /embed
// returns one hash-derived vector per whitespace token so identical words
// embed identically, and /health reports a GPU.
type InferenceServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []ports.SummarizeRequest
	embedded int
	failWith int
}

// NewInferenceServer starts a server that is closed when t finishes.
func NewInferenceServer(t testing.TB) *InferenceServer {
	t.Helper()
	s := &InferenceServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /summarize", s.summarize)
	mux.HandleFunc("POST /embed", s.embed)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "gpu": true})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// FailWith makes /summarize answer with status until reset with 0.
func (s *InferenceServer) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = status
}

// Requests returns the summarize requests received so far.
func (s *InferenceServer) Requests() []ports.SummarizeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.SummarizeRequest(nil), s.requests...)
}

// EmbeddedTexts is the number of texts sent to /embed.
func (s *InferenceServer) EmbeddedTexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedded
}

func (s *InferenceServer) summarize(w http.ResponseWriter, r *http.Request) {
	var req ports.SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	status := s.failWith
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, "injected failure", status)
		return
	}

	summary := firstSentence(req.Text)
	if len(req.PreprocessedSentences) > 0 {
		summary = req.PreprocessedSentences[0]
	}
	writeJSON(w, ports.SummarizeResponse{
		Summary:         summary,
		InferenceTimeMs: 42,
		ModelUsed:       req.Model,
	})
}

func (s *InferenceServer) embed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Texts []string `json:"texts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.embedded += len(req.Texts)
	s.mu.Unlock()

	out := make([][][]float32, len(req.Texts))
	for i, text := range req.Texts {
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			out[i] = append(out[i], tokenVector(tok))
		}
	}
	writeJSON(w, map[string]any{"embeddings": out})
}

func tokenVector(tok string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()
	v := make([]float32, EmbeddingDim)
	for i := range v {
		v[i] = float32((sum>>(8*i))&0xff)/255 + 0.01
	}
	return v
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
