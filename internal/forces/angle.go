package forces

import "math"

// Angle is a three-body interaction over the bend angle. Types keep their
// declared order; the middle type is the vertex.
type Angle struct {
	*Force
}

func NewAngle(type1, type2, type3 string, opts Options) (*Angle, error) {
	a := &Angle{}
	f, err := newForce(KindAngle, []string{type1, type2, type3}, a, opts)
	if err != nil {
		return nil, err
	}
	a.Force = f
	return a, nil
}

// SetHarmonic makes the angle static: U = k/2 (θ - t0)².
func (a *Angle) SetHarmonic(k, t0 float64) error {
	return a.setStatic(StaticParams{K: k, X0: t0})
}

func (a *Angle) evalStatic(theta float64, p StaticParams) (float64, float64) {
	d := theta - p.X0
	return 0.5 * p.K * d * d, -p.K * d
}

func (a *Angle) staticDomain(StaticParams) (float64, float64) {
	return 0, math.Pi
}
