package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampInt32(t *testing.T) {
	tests := []struct {
		in   int
		want int32
	}{
		{0, 0},
		{25, 25},
		{-7, -7},
		{math.MaxInt32 + 1, math.MaxInt32},
		{math.MinInt32 - 1, math.MinInt32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampInt32(tt.in), "input %d", tt.in)
	}
}
