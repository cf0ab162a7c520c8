package s3transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdealVIPCount(t *testing.T) {
	t.Parallel()
	cases := []struct {
		gbps     float64
		expected int
	}{
		{0, 1},   // falls back to the default target, still >= 1
		{1, 1},
		{6.25, 1},
		{6.26, 2},
		{12.5, 2},
		{25, 4},
		{31.25, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, idealVIPCount(tc.gbps), "gbps=%v", tc.gbps)
	}
}
