// Package analysis provides structural-distribution tools for the optimizer.
//
// The package covers everything that happens to a distribution array once it
// has been produced from a trajectory:
//
//   - [CalcSimilarity]: fit score between a simulated and a target distribution
//   - [SavitzkyGolay]: polynomial smoothing filter used on tabulated potentials
//   - [Normalize]: unit-sum normalization before Boltzmann inversion
//   - [Source]: the trajectory -> distribution collaborator, with
//     [CommandSource] delegating to an external analysis program
//
// # Fit Scores
//
// A score of 1 means identical distributions:
//
//	score, err := analysis.CalcSimilarity(simulated, target)
//	if err != nil {
//	    // mismatched lengths or both distributions zero
//	}
package analysis
