package breathe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletedPercentage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		actual int
		target int
		want   int
	}{
		{name: "zero target", actual: 60, target: 0, want: 0},
		{name: "nothing done", actual: 0, target: 300, want: 0},
		{name: "negative actual", actual: -5, target: 300, want: 0},
		{name: "early stop", actual: 120, target: 600, want: 20},
		{name: "rounds half up", actual: 1, target: 200, want: 1},
		{name: "rounds to nearest", actual: 299, target: 600, want: 50},
		{name: "one second short", actual: 899, target: 900, want: 100},
		{name: "exact", actual: 300, target: 300, want: 100},
		{name: "clamped", actual: 400, target: 300, want: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CompletedPercentage(tc.actual, tc.target))
		})
	}
}

func TestIsCompleted(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCompleted(100, 100))
	assert.False(t, IsCompleted(99, 100))
	assert.True(t, IsCompleted(80, 80))
	assert.False(t, IsCompleted(79, 80))
	// out of range thresholds fall back to the default
	assert.False(t, IsCompleted(99, 0))
	assert.False(t, IsCompleted(99, 150))
	assert.True(t, IsCompleted(100, -1))
}
