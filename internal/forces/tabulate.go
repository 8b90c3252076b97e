package forces

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/msibi/internal/analysis"
	"github.com/san-kum/msibi/internal/ibi"
)

// spacingTolerance is the relative deviation from uniform bin spacing
// accepted when loading a table from file.
const spacingTolerance = 1e-6

// SetQuadratic seeds a table by sampling
//
//	U(x) = k2(x-x0)² + k3(x-x0)³ + k4(x-x0)⁴
//
// at nbins+1 evenly spaced points over [xMin, xMax]. The force is the
// negative analytic derivative.
func (f *Force) SetQuadratic(x0, k2, k3, k4, xMin, xMax float64) error {
	if err := f.canTabulate(); err != nil {
		return err
	}
	if !(xMax > xMin) {
		return ibi.Configf("%s: x_max (%g) must exceed x_min (%g)", f, xMax, xMin)
	}

	x := linspace(xMin, xMax, f.nbins+1)
	u := make([]float64, len(x))
	force := make([]float64, len(x))
	for i, xi := range x {
		d := xi - x0
		u[i] = k2*d*d + k3*d*d*d + k4*d*d*d*d
		force[i] = -(2*k2*d + 3*k3*d*d + 4*k4*d*d*d)
	}

	f.setTable(x, u, force)
	f.logger.Debug("seeded quadratic table",
		"interaction", f.name, "kind", f.kind.String(),
		"x_min", xMin, "x_max", xMax, "nbins", f.nbins)
	return nil
}

// SetFromFile loads a table whose first two columns are x and U. The bin
// count and spacing are inferred from the file; the force is derived by
// finite differences.
func (f *Force) SetFromFile(path string) error {
	if err := f.canTabulate(); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open table %s: %w", path, err)
	}
	defer file.Close()

	cols, err := analysis.ReadColumns(file, 2)
	if err != nil {
		return fmt.Errorf("read table %s: %w", path, err)
	}
	x, u := cols[0], cols[1]
	if len(x) < 2 {
		return ibi.Configf("%s: table %s needs at least two rows", f, path)
	}

	dx := x[1] - x[0]
	if dx <= 0 {
		return ibi.Configf("%s: table %s must have increasing x", f, path)
	}
	for i := 2; i < len(x); i++ {
		if math.Abs((x[i]-x[i-1])-dx) > spacingTolerance*math.Max(1, math.Abs(dx)) {
			return ibi.Configf("%s: table %s is not evenly spaced at row %d", f, path, i)
		}
	}

	if f.nbins != len(x)-1 {
		f.logger.Info("bin count taken from table file",
			"interaction", f.name, "path", path, "previous", f.nbins, "nbins", len(x)-1)
	}
	f.nbins = len(x) - 1
	f.setTable(x, u, negGradient(u, dx))
	return nil
}

// linspace returns n evenly spaced samples over [lo, hi], both inclusive.
func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// negGradient returns -dU/dx using central differences in the interior and
// one-sided differences at the ends.
func negGradient(u []float64, dx float64) []float64 {
	n := len(u)
	out := make([]float64, n)
	if n < 2 || dx == 0 {
		return out
	}
	out[0] = -(u[1] - u[0]) / dx
	out[n-1] = -(u[n-1] - u[n-2]) / dx
	for i := 1; i < n-1; i++ {
		out[i] = -(u[i+1] - u[i-1]) / (2 * dx)
	}
	return out
}
