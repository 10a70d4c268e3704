package evaluation

import "math"

// BLEUMaxOrder is the highest n-gram order used by corpus BLEU.
const BLEUMaxOrder = 4

// corpusBLEU computes unsmoothed corpus-level BLEU with one reference per
// candidate. N-gram matches and lengths are summed over the whole corpus
// before precisions and the brevity penalty are taken, so the result is not
// the mean of sentence-level scores.
func corpusBLEU(preds, refs [][]string) float64 {
	var matches, possible [BLEUMaxOrder]int
	predLen, refLen := 0, 0

	for i := range preds {
		pred, ref := preds[i], refs[i]
		predLen += len(pred)
		refLen += len(ref)

		for n := 1; n <= BLEUMaxOrder; n++ {
			refGrams := countNGrams(ref, n)
			for g, c := range countNGrams(pred, n) {
				matches[n-1] += min(c, refGrams[g])
			}
			if k := len(pred) - n + 1; k > 0 {
				possible[n-1] += k
			}
		}
	}

	if predLen == 0 || refLen == 0 {
		return 0
	}

	logSum := 0.0
	for n := range BLEUMaxOrder {
		if possible[n] == 0 || matches[n] == 0 {
			return 0
		}
		logSum += math.Log(float64(matches[n]) / float64(possible[n]))
	}
	geoMean := math.Exp(logSum / BLEUMaxOrder)

	ratio := float64(predLen) / float64(refLen)
	bp := 1.0
	if ratio <= 1 {
		bp = math.Exp(1 - 1/ratio)
	}
	return geoMean * bp
}
