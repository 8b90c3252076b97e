package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/msibi/internal/ibi"
)

// CalcSimilarity returns 1 - Σ|a-b| / (Σ|a| + Σ|b|).
//
// The result lies in [0, 1] and is symmetric in its arguments. Arrays of
// different lengths return ibi.ErrDimensionMismatch; two identically zero
// arrays return ibi.ErrZeroDistribution instead of dividing by zero.
func CalcSimilarity(simulated, target []float64) (float64, error) {
	if len(simulated) != len(target) {
		return 0, fmt.Errorf("%w: simulated has %d bins, target has %d",
			ibi.ErrDimensionMismatch, len(simulated), len(target))
	}

	norm := floats.Norm(simulated, 1) + floats.Norm(target, 1)
	if norm == 0 {
		return 0, ibi.ErrZeroDistribution
	}

	return 1.0 - floats.Distance(simulated, target, 1)/norm, nil
}
