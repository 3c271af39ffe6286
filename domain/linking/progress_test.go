package linking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/litgraph/litgraph/internal/jobs"
)

func TestProgress_RoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	p := &Progress{
		C2CDone: map[uuid.UUID]bool{a: true, b: true},
		C2ODone: map[uuid.UUID]bool{a: true},
	}

	got := ParseProgress(p.ToMap())
	assert.Equal(t, p.C2CDone, got.C2CDone)
	assert.Equal(t, p.C2ODone, got.C2ODone)
}

func TestParseProgress_ToleratesGarbage(t *testing.T) {
	got := ParseProgress(nil)
	assert.Empty(t, got.C2CDone)
	assert.Empty(t, got.C2ODone)

	got = ParseProgress(jobs.JSONMap{
		"c2c_done": []any{"not-a-uuid", 42, uuid.New().String()},
		"c2o_done": "wrong type",
	})
	assert.Len(t, got.C2CDone, 1)
	assert.Empty(t, got.C2ODone)
}
