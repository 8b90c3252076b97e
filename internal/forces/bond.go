package forces

// Bond is a two-body interaction over the bond length. Its types are stored
// in natural order so "B-A" and "A-B" name the same bond.
type Bond struct {
	*Force
}

func NewBond(type1, type2 string, opts Options) (*Bond, error) {
	b := &Bond{}
	f, err := newForce(KindBond, sortedPair(type1, type2), b, opts)
	if err != nil {
		return nil, err
	}
	b.Force = f
	return b, nil
}

// SetHarmonic makes the bond static: U = k/2 (r - r0)².
func (b *Bond) SetHarmonic(k, r0 float64) error {
	return b.setStatic(StaticParams{K: k, X0: r0})
}

func (b *Bond) evalStatic(r float64, p StaticParams) (float64, float64) {
	d := r - p.X0
	return 0.5 * p.K * d * d, -p.K * d
}

func (b *Bond) staticDomain(p StaticParams) (float64, float64) {
	hi := 2 * p.X0
	if hi <= 0 {
		hi = 1
	}
	return 0, hi
}
