package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/msibi/internal/ibi"
)

// SavitzkyGolay smooths y with a least-squares polynomial of degree order
// fitted over a sliding window of odd length. The first and last half window
// are evaluated from the polynomial fitted to the first and last full window,
// so the output has the same length as y.
func SavitzkyGolay(y []float64, window, order int) ([]float64, error) {
	if window <= 0 || window%2 == 0 {
		return nil, ibi.Configf("smoothing window must be a positive odd integer, got %d", window)
	}
	if order < 0 || order >= window {
		return nil, ibi.Configf("smoothing order must be in [0, %d), got %d", window, order)
	}
	if window > len(y) {
		return nil, ibi.Configf("smoothing window %d exceeds %d samples", window, len(y))
	}

	hat, err := savgolHat(window, order)
	if err != nil {
		return nil, err
	}

	n := len(y)
	half := window / 2
	out := make([]float64, n)

	center := hat.RawRowView(half)
	for i := half; i < n-half; i++ {
		out[i] = floats.Dot(center, y[i-half:i+half+1])
	}

	head := y[:window]
	tail := y[n-window:]
	for i := 0; i < half; i++ {
		out[i] = floats.Dot(hat.RawRowView(i), head)
		out[n-half+i] = floats.Dot(hat.RawRowView(half+1+i), tail)
	}

	return out, nil
}

// savgolHat returns the window x window projection A(AᵀA)⁻¹Aᵀ onto
// polynomials of the given order sampled at offsets -half..half.
func savgolHat(window, order int) (*mat.Dense, error) {
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		z := float64(i - half)
		v := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, v)
			v *= z
		}
	}

	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}

	var pinv mat.Dense
	if err := pinv.Solve(a, mat.NewDiagDense(window, ones)); err != nil {
		return nil, fmt.Errorf("savitzky-golay projection (window %d, order %d): %w", window, order, err)
	}

	var hat mat.Dense
	hat.Mul(a, &pinv)
	return &hat, nil
}
