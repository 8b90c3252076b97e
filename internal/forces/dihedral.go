package forces

import (
	"math"

	"github.com/san-kum/msibi/internal/ibi"
)

// Dihedral is a four-body interaction over the torsion angle. Types keep
// their declared order.
type Dihedral struct {
	*Force
}

func NewDihedral(type1, type2, type3, type4 string, opts Options) (*Dihedral, error) {
	d := &Dihedral{}
	f, err := newForce(KindDihedral, []string{type1, type2, type3, type4}, d, opts)
	if err != nil {
		return nil, err
	}
	d.Force = f
	return d, nil
}

// SetHarmonic makes the dihedral static:
//
//	U = k/2 (1 + d cos(nφ - φ0))
//
// d must be +1 or -1 and n a positive multiplicity.
func (d *Dihedral) SetHarmonic(k, phi0 float64, sign, n int) error {
	if sign != 1 && sign != -1 {
		return ibi.Configf("%s: d must be 1 or -1, got %d", d.Force, sign)
	}
	if n <= 0 {
		return ibi.Configf("%s: multiplicity n must be positive, got %d", d.Force, n)
	}
	return d.setStatic(StaticParams{K: k, X0: phi0, D: sign, N: n})
}

func (d *Dihedral) evalStatic(phi float64, p StaticParams) (float64, float64) {
	arg := float64(p.N)*phi - p.X0
	u := 0.5 * p.K * (1 + float64(p.D)*math.Cos(arg))
	f := 0.5 * p.K * float64(p.D) * float64(p.N) * math.Sin(arg)
	return u, f
}

func (d *Dihedral) staticDomain(StaticParams) (float64, float64) {
	return -math.Pi, math.Pi
}
