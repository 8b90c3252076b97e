package forces

import (
	"math"

	"github.com/san-kum/msibi/internal/ibi"
)

// Pair is a non-bonded two-body interaction. Pairs are always tabulated;
// SetLJ gives them a Lennard-Jones starting table.
type Pair struct {
	*Force
	RCut          float64
	ExcludeBonded bool
}

func NewPair(type1, type2 string, rCut float64, excludeBonded bool, opts Options) (*Pair, error) {
	if rCut < 0 {
		return nil, ibi.Configf("pair %s-%s: r_cut must not be negative, got %g", type1, type2, rCut)
	}
	p := &Pair{RCut: rCut, ExcludeBonded: excludeBonded}
	f, err := newForce(KindPair, sortedPair(type1, type2), p, opts)
	if err != nil {
		return nil, err
	}
	p.Force = f
	return p, nil
}

// SetLJ tabulates a 12-6 Lennard-Jones potential over [rMin, rCut]:
//
//	U = 4ε((σ/r)¹² - (σ/r)⁶)
func (p *Pair) SetLJ(epsilon, sigma, rMin, rCut float64) error {
	if err := p.canTabulate(); err != nil {
		return err
	}
	if rMin <= 0 || rCut <= rMin {
		return ibi.Configf("%s: need 0 < r_min < r_cut, got r_min=%g r_cut=%g", p.Force, rMin, rCut)
	}
	if sigma <= 0 {
		return ibi.Configf("%s: sigma must be positive, got %g", p.Force, sigma)
	}

	r := linspace(rMin, rCut, p.nbins+1)
	u := make([]float64, len(r))
	force := make([]float64, len(r))
	for i, ri := range r {
		s6 := math.Pow(sigma/ri, 6)
		s12 := s6 * s6
		u[i] = 4 * epsilon * (s12 - s6)
		force[i] = 24 * epsilon / ri * (2*s12 - s6)
	}

	p.RCut = rCut
	p.setTable(r, u, force)
	return nil
}

// Pairs never become static.
func (p *Pair) evalStatic(float64, StaticParams) (float64, float64) { return 0, 0 }

func (p *Pair) staticDomain(StaticParams) (float64, float64) { return 0, p.RCut }
