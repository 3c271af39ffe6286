package jobs

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	max := 10 * time.Minute

	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{"first attempt", 1, 5 * time.Second},
		{"second attempt", 2, 20 * time.Second},
		{"third attempt", 3, 45 * time.Second},
		{"zero clamps to base", 0, 5 * time.Second},
		{"capped", 100, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.attempts, base, max))
		})
	}
}

func TestBackoff_Monotonic(t *testing.T) {
	base := time.Second
	max := 10 * time.Minute

	prev := time.Duration(0)
	for attempts := 1; attempts <= 50; attempts++ {
		d := Backoff(attempts, base, max)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempts)
		assert.LessOrEqual(t, d, max)
		prev = d
	}
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", truncateError("short"))

	long := strings.Repeat("x", 600)
	assert.Len(t, truncateError(long), 500)
}

func TestJSONMap_String(t *testing.T) {
	m := JSONMap{"paper_id": "abc", "count": 3}
	assert.Equal(t, "abc", m.String("paper_id"))
	assert.Equal(t, "", m.String("count"))
	assert.Equal(t, "", m.String("missing"))
	assert.Equal(t, "", JSONMap(nil).String("paper_id"))
}

func TestJob_Terminal(t *testing.T) {
	assert.False(t, (&Job{Status: StatusPending}).Terminal())
	assert.False(t, (&Job{Status: StatusRunning}).Terminal())
	assert.True(t, (&Job{Status: StatusCompleted}).Terminal())
	assert.True(t, (&Job{Status: StatusFailed}).Terminal())
}
