package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultDensityThreshold is the fraction of a distribution's maximum below
// which a bin is considered unsampled.
const DefaultDensityThreshold = 1e-4

// updateTerm is one state's contribution to a potential update. Both
// distributions are normalized to unit sum.
type updateTerm struct {
	kT     float64
	alpha  float64
	sim    []float64
	target []float64
}

// ibiUpdate returns
//
//	U'(x) = U(x) + Σ_s alpha_s kT_s ln(P_sim,s(x) / P_target,s(x))
//
// A state contributes to a bin only when both of its densities exceed
// threshold times their maximum there.
func ibiUpdate(u []float64, terms []updateTerm, threshold float64) []float64 {
	out := make([]float64, len(u))
	copy(out, u)

	for _, t := range terms {
		simCut := threshold * floats.Max(t.sim)
		targetCut := threshold * floats.Max(t.target)
		for i := range out {
			ps, pt := t.sim[i], t.target[i]
			if ps <= simCut || pt <= targetCut || ps <= 0 || pt <= 0 {
				continue
			}
			out[i] += t.alpha * t.kT * math.Log(ps/pt)
		}
	}
	return out
}
