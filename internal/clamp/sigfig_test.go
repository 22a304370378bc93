package clamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundSignificant(t *testing.T) {
	tests := []struct {
		n      int64
		digits int
		want   int64
	}{
		{n: 0, digits: 3, want: 0},
		{n: 7, digits: 3, want: 7},
		{n: 123456, digits: 3, want: 123000},
		{n: 123556, digits: 3, want: 124000},
		{n: 999, digits: 2, want: 1000},
		{n: 1049, digits: 2, want: 1000},
		{n: 1051, digits: 2, want: 1100},
		{n: -123456, digits: 2, want: -120000},
		{n: 42, digits: 0, want: 42},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundSignificant(tt.n, tt.digits),
			"RoundSignificant(%d, %d)", tt.n, tt.digits)
	}
}
