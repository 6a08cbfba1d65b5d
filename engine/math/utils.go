package math

import "golang.org/x/exp/constraints"

func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// AlignUp rounds value up to the next multiple of alignment. Alignment must
// be non-zero.
func AlignUp[T constraints.Unsigned](value, alignment T) T {
	return (value + alignment - 1) / alignment * alignment
}
