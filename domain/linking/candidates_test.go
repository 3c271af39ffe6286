package linking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	assert.Zero(t, Cosine(nil, []float32{1}))
	assert.Zero(t, Cosine([]float32{1, 0}, []float32{1}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestCandidatePairs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	vectors := map[uuid.UUID][]float32{
		a: {1, 0},
		b: {0.9, 0.1}, // close to a
		c: {0, 1},     // orthogonal to a
	}
	all := []uuid.UUID{a, b, c}
	seen := map[pairKey]bool{}

	pairs := candidatePairs(a, vectors, all, 0.35, seen)
	require.Len(t, pairs, 1)
	assert.Equal(t, a, pairs[0].A)
	assert.Equal(t, b, pairs[0].B)

	// The reverse pairing is deduplicated.
	pairs = candidatePairs(b, vectors, all, 0.35, seen)
	assert.Empty(t, pairs)
}

func TestCandidatePairs_SkipsSelfAndMissingVectors(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	vectors := map[uuid.UUID][]float32{a: {1, 0}}

	pairs := candidatePairs(a, vectors, []uuid.UUID{a, b}, 0.1, map[pairKey]bool{})
	assert.Empty(t, pairs)

	pairs = candidatePairs(b, vectors, []uuid.UUID{a, b}, 0.1, map[pairKey]bool{})
	assert.Empty(t, pairs)
}

func TestNewPairKey_Unordered(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, newPairKey(a, b), newPairKey(b, a))
}
