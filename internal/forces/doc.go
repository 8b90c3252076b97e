// Package forces models the interactions of a coarse-grained system.
//
// Every interaction kind embeds the shared [Force] core:
//
//   - [Bond]: two-body, bond length, types in natural order
//   - [Angle]: three-body, bend angle, declared order
//   - [Pair]: non-bonded two-body, natural order, always tabulated
//   - [Dihedral]: four-body, torsion angle, declared order
//
// An interaction is either static (analytic harmonic parameters, never
// optimized) or a table (nbins+1 samples of U(x) and F(x) = -dU/dx). Tables
// marked with Options.Optimize are refined by the optimizer; each completed
// iteration appends one entry to the potential history and one fit score
// per attached state.
//
// # Example
//
//	bond, _ := forces.NewBond("A", "B", forces.Options{Optimize: true, NBins: 60})
//	_ = bond.SetQuadratic(1, 200, 0, 0, 0, 3)
//	_ = bond.SmoothPotential()
//	_ = bond.SavePotential("A-B.csv")
//
// # Thread Safety
//
// Interactions are NOT safe for concurrent mutation. The optimizer reads
// them from several goroutines only while no iteration is being committed.
package forces
