package linking

import (
	"math"

	"github.com/google/uuid"
)

// Cosine returns the cosine similarity of two vectors, or 0 when either
// is empty, zero-length or the dimensions disagree.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// pairKey is an unordered claim pair.
type pairKey struct {
	lo uuid.UUID
	hi uuid.UUID
}

func newPairKey(a, b uuid.UUID) pairKey {
	if a.String() > b.String() {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// candidatePair is one claim pair to hand to the pairwise labeler. A
// keeps the input claim's position so directional labels resolve.
type candidatePair struct {
	A uuid.UUID
	B uuid.UUID
}

// candidatePairs scores one input claim against every other claim and
// keeps pairs at or above the threshold, skipping pairs already seen
// globally so each unordered pair is labeled once per run.
func candidatePairs(
	input uuid.UUID,
	vectors map[uuid.UUID][]float32,
	allClaims []uuid.UUID,
	threshold float64,
	seen map[pairKey]bool,
) []candidatePair {
	qv, ok := vectors[input]
	if !ok {
		return nil
	}

	var out []candidatePair
	for _, other := range allClaims {
		if other == input {
			continue
		}
		ov, ok := vectors[other]
		if !ok {
			continue
		}
		if Cosine(qv, ov) < threshold {
			continue
		}
		key := newPairKey(input, other)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, candidatePair{A: input, B: other})
	}
	return out
}
