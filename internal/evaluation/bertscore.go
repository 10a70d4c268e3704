package evaluation

import (
	"context"
	"fmt"
	"math"

	"github.com/tomtat/tomtat/internal/ports"
)

// warmupText is embedded once when the scorer is first loaded so that the
// remote embedding model is resident before real batches arrive.
const warmupText = "Khởi động mô hình đánh giá."

// BERTScorer computes BERTScore F1 by greedy cosine matching of contextual
// token embeddings. Embeddings are produced on raw, unsegmented text by a
// ports.TokenEmbedder; no IDF weighting or baseline rescaling is applied.
type BERTScorer struct {
	embedder ports.TokenEmbedder
}

// NewBERTScorer creates a scorer backed by embedder.
func NewBERTScorer(embedder ports.TokenEmbedder) *BERTScorer {
	return &BERTScorer{embedder: embedder}
}

// warm forces the embedding model to load.
func (s *BERTScorer) warm(ctx context.Context) error {
	out, err := s.embedder.Embed(ctx, []string{warmupText})
	if err != nil {
		return fmt.Errorf("warming embedding model: %w", err)
	}
	if len(out) != 1 {
		return fmt.Errorf("warming embedding model: expected 1 embedding, got %d", len(out))
	}
	return nil
}

// Score returns the F1 of every (prediction, reference) pair. Pairs are sent
// to the embedder in chunks of batchSize.
func (s *BERTScorer) Score(ctx context.Context, preds, refs []string, batchSize int) ([]float64, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	scores := make([]float64, 0, len(preds))
	for start := 0; start < len(preds); start += batchSize {
		end := min(start+batchSize, len(preds))
		chunk := make([]string, 0, 2*(end-start))
		chunk = append(chunk, preds[start:end]...)
		chunk = append(chunk, refs[start:end]...)

		emb, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(emb) != len(chunk) {
			return nil, fmt.Errorf("embedding batch %d-%d: expected %d embeddings, got %d", start, end, len(chunk), len(emb))
		}
		n := end - start
		for k := range n {
			scores = append(scores, greedyF1(emb[k], emb[n+k]))
		}
	}
	return scores, nil
}

// greedyF1 matches every token to its most similar counterpart and combines
// the resulting precision and recall.
func greedyF1(pred, ref [][]float32) float64 {
	if len(pred) == 0 || len(ref) == 0 {
		return 0
	}
	p := normalizeRows(pred)
	r := normalizeRows(ref)

	bestForRef := make([]float64, len(r))
	for j := range bestForRef {
		bestForRef[j] = math.Inf(-1)
	}
	precision := 0.0
	for _, pv := range p {
		best := math.Inf(-1)
		for j, rv := range r {
			sim := dot(pv, rv)
			best = max(best, sim)
			bestForRef[j] = max(bestForRef[j], sim)
		}
		precision += best
	}
	precision /= float64(len(p))

	recall := 0.0
	for _, v := range bestForRef {
		recall += v
	}
	recall /= float64(len(r))

	return fMeasure(precision, recall)
}

func normalizeRows(m [][]float32) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		norm := 0.0
		for _, v := range row {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		out[i] = make([]float64, len(row))
		if norm == 0 {
			continue
		}
		for k, v := range row {
			out[i][k] = float64(v) / norm
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range min(len(a), len(b)) {
		s += a[i] * b[i]
	}
	return s
}
