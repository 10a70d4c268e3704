package evaluation

import (
	"strings"
)

// RougeScores holds ROUGE F-measures.
type RougeScores struct {
	Rouge1 float64
	Rouge2 float64
	RougeL float64
}

// rougeTokens lowercases segmented tokens and drops punctuation-only tokens,
// matching the default ROUGE tokenization without stemming.
func rougeTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !strings.ContainsFunc(tok, isSyllableRune) {
			continue
		}
		out = append(out, strings.ToLower(tok))
	}
	return out
}

// rougePair scores one candidate against one reference.
func rougePair(pred, ref []string) RougeScores {
	return RougeScores{
		Rouge1: ngramF(pred, ref, 1),
		Rouge2: ngramF(pred, ref, 2),
		RougeL: lcsF(pred, ref),
	}
}

// rougeCorpus scores aligned candidate and reference lists. The corpus score
// of each variant is the mean of the per-pair F-measures.
func rougeCorpus(preds, refs [][]string) RougeScores {
	var sum RougeScores
	if len(preds) == 0 {
		return sum
	}
	for i := range preds {
		s := rougePair(preds[i], refs[i])
		sum.Rouge1 += s.Rouge1
		sum.Rouge2 += s.Rouge2
		sum.RougeL += s.RougeL
	}
	n := float64(len(preds))
	return RougeScores{Rouge1: sum.Rouge1 / n, Rouge2: sum.Rouge2 / n, RougeL: sum.RougeL / n}
}

func ngramF(pred, ref []string, n int) float64 {
	predGrams := countNGrams(pred, n)
	refGrams := countNGrams(ref, n)
	if len(predGrams) == 0 || len(refGrams) == 0 {
		return 0
	}

	overlap, predTotal, refTotal := 0, 0, 0
	for g, c := range refGrams {
		refTotal += c
		overlap += min(c, predGrams[g])
	}
	for _, c := range predGrams {
		predTotal += c
	}
	return fMeasure(float64(overlap)/float64(predTotal), float64(overlap)/float64(refTotal))
}

func lcsF(pred, ref []string) float64 {
	if len(pred) == 0 || len(ref) == 0 {
		return 0
	}
	l := float64(lcs(ref, pred))
	return fMeasure(l/float64(len(pred)), l/float64(len(ref)))
}

// lcs computes the longest common subsequence length with two rolling rows.
func lcs(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// countNGrams counts n-grams keyed by their tokens joined with a separator
// that cannot occur inside a token.
func countNGrams(tokens []string, n int) map[string]int {
	if n <= 0 || len(tokens) < n {
		return nil
	}
	grams := make(map[string]int, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		grams[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return grams
}

func fMeasure(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}
