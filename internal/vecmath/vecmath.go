// Package vecmath provides float32 vector kernels shared by the engine and
// the backend implementations.
package vecmath

import (
	"math"
	"slices"
)

// Dot returns the inner product of a and b. Equal length is the caller's
// responsibility.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// NormalizeInPlace L2-normalizes v in place. Returns false when v has an
// at-or-below-epsilon norm, leaving v untouched.
func NormalizeInPlace(v []float32) bool {
	norm := Norm(v)
	if norm <= epsilon32 {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizedCopy returns an L2-normalized copy of src. Returns false when
// src has an at-or-below-epsilon norm.
func NormalizedCopy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeInPlace(dst) {
		return nil, false
	}
	return dst, true
}

// epsilon32 is the float32 machine epsilon (2^-23), the zero-norm cutoff.
const epsilon32 = float32(1.1920929e-07)
