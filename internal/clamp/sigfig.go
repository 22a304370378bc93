package clamp

import "math"

// RoundSignificant rounds n to the given number of significant decimal
// digits. Zero is returned unchanged.
func RoundSignificant(n int64, digits int) int64 {
	if n == 0 || digits <= 0 {
		return n
	}

	neg := n < 0
	f := math.Abs(float64(n))

	scale := math.Pow(10, float64(digits)-math.Floor(math.Log10(f))-1)
	rounded := math.Round(math.Round(f*scale) / scale)

	if neg {
		return -int64(rounded)
	}

	return int64(rounded)
}
