// Package ibi holds the shared vocabulary of the multistate iterative
// Boltzmann inversion tool.
//
// The optimization itself is split across several packages:
//
//   - [github.com/san-kum/msibi/internal/forces]: tabulated and static interactions
//   - [github.com/san-kum/msibi/internal/state]: reference thermodynamic states
//   - [github.com/san-kum/msibi/internal/analysis]: distribution comparison and smoothing
//   - [github.com/san-kum/msibi/internal/optimizer]: the multistate driver
//
// This package only defines the error taxonomy those packages share, so that
// callers can classify any failure with [errors.Is].
//
// # Example
//
//	bond, _ := forces.NewBond("A", "B", forces.Options{Optimize: true, NBins: 60})
//	_ = bond.SetQuadratic(1, 200, 0, 0, 0, 3)
//	opt := optimizer.New(params, engine, source)
//	_ = opt.AddState(stateX)
//	_ = opt.AddForce(bond)
//	err := opt.RunOptimization(ctx, 5000, 10)
//	if errors.Is(err, ibi.ErrEngine) {
//		// the simulation failed; no potential was touched
//	}
package ibi
