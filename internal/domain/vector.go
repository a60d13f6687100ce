package domain

import (
	"fmt"
	"math"
)

// WeightTolerance is the slack allowed when checking that a vector sums to one
const WeightTolerance = 1e-6

// Vector maps asset classes to portfolio weights (an allocation vector).
// A valid vector is non-negative and sums to 1 within WeightTolerance;
// classes missing from the map carry weight 0.
type Vector map[AssetClass]float64

// Get returns the weight of a class, 0 when absent
func (v Vector) Get(c AssetClass) float64 {
	return v[c]
}

// Sum adds weights in canonical class order so results are reproducible
func (v Vector) Sum() float64 {
	sum := 0.0
	for _, c := range AssetClasses() {
		sum += v[c]
	}
	return sum
}

// Classes returns the classes present in the vector, canonical order
func (v Vector) Classes() []AssetClass {
	classes := make([]AssetClass, 0, len(v))
	for _, c := range AssetClasses() {
		if _, ok := v[c]; ok {
			classes = append(classes, c)
		}
	}
	return classes
}

// Validate checks every weight is finite and non-negative and that the
// weights sum to 1. Nothing is clamped.
func (v Vector) Validate() error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	for c, w := range v {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown asset class %d", ErrInvalidVector, c)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s weight is not finite", ErrInvalidVector, c)
		}
		if w < -WeightTolerance {
			return fmt.Errorf("%w: %s weight %.6f is negative", ErrInvalidVector, c, w)
		}
	}
	if sum := v.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.8f", ErrInvalidVector, sum)
	}
	return nil
}

// Clone returns an independent copy
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for c, w := range v {
		out[c] = w
	}
	return out
}

// Normalized scales every weight by the same factor so the result sums to 1
func (v Vector) Normalized() (Vector, error) {
	sum := v.Sum()
	if sum <= 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("%w: cannot normalise weights summing to %.8f", ErrInvalidVector, sum)
	}
	out := make(Vector, len(v))
	for c, w := range v {
		out[c] = w / sum
	}
	return out, nil
}

// Delta returns v - other over the union of both vectors' classes
func (v Vector) Delta(other Vector) Vector {
	out := make(Vector, len(v))
	for _, c := range AssetClasses() {
		a, inA := v[c]
		b, inB := other[c]
		if inA || inB {
			out[c] = a - b
		}
	}
	return out
}

// MaxAbs returns the largest absolute weight and the class holding it
func (v Vector) MaxAbs() (AssetClass, float64) {
	var (
		class AssetClass
		max   float64
	)
	for _, c := range AssetClasses() {
		w, ok := v[c]
		if !ok {
			continue
		}
		if a := math.Abs(w); class == 0 || a > max {
			class, max = c, a
		}
	}
	return class, max
}

// Slice returns the weights in canonical order, one entry per asset class
func (v Vector) Slice() []float64 {
	classes := AssetClasses()
	out := make([]float64, len(classes))
	for i, c := range classes {
		out[i] = v[c]
	}
	return out
}
