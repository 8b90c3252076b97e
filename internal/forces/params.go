package forces

import (
	"github.com/san-kum/msibi/internal/ibi"
)

type Harmonic struct {
	K  float64
	X0 float64
	D  int
	N  int
}

type Quadratic struct {
	X0   float64
	K2   float64
	K3   float64
	K4   float64
	XMin float64
	XMax float64
}

type LJ struct {
	Epsilon float64
	Sigma   float64
	RMin    float64
	RCut    float64
}

// Params selects how an interaction gets its potential. Exactly one of the
// analytic form (Harmonic) or a tabulated source (Quadratic, LJ, TableFile)
// must be set.
type Params struct {
	Harmonic  *Harmonic
	Quadratic *Quadratic
	LJ        *LJ
	TableFile string
}

func (p Params) validate(kind Kind, optimize bool) error {
	sources := 0
	if p.Quadratic != nil {
		sources++
	}
	if p.LJ != nil {
		sources++
	}
	if p.TableFile != "" {
		sources++
	}

	switch {
	case p.Harmonic != nil && sources > 0:
		return ibi.Configf("%s: harmonic parameters cannot be combined with a tabulated source", kind)
	case p.Harmonic == nil && sources == 0:
		return ibi.Configf("%s: define either harmonic parameters or a tabulated source", kind)
	case sources > 1:
		return ibi.Configf("%s: only one tabulated source may be given", kind)
	case p.Harmonic != nil && kind == KindPair:
		return ibi.Configf("pairs have no harmonic form; use lj, quadratic or a table file")
	case p.Harmonic != nil && optimize:
		return ibi.Configf("%s: an optimized interaction needs a tabulated source", kind)
	case p.LJ != nil && kind != KindPair:
		return ibi.Configf("%s: lj is only available for pairs", kind)
	}
	return nil
}

// Definition declares an interaction and its initial potential.
type Definition struct {
	Kind          Kind
	Types         []string
	Options       Options
	RCut          float64
	ExcludeBonded bool
	Params        Params
}

// Build validates a definition and returns the configured interaction.
func Build(def Definition) (Interaction, error) {
	if len(def.Types) != def.Kind.Arity() {
		return nil, ibi.Configf("%s needs %d types, got %d", def.Kind, def.Kind.Arity(), len(def.Types))
	}
	if err := def.Params.validate(def.Kind, def.Options.Optimize); err != nil {
		return nil, err
	}

	t := def.Types
	p := def.Params

	var (
		in       Interaction
		harmonic func(Harmonic) error
		err      error
	)
	switch def.Kind {
	case KindBond:
		var b *Bond
		b, err = NewBond(t[0], t[1], def.Options)
		in, harmonic = b, func(h Harmonic) error { return b.SetHarmonic(h.K, h.X0) }
	case KindAngle:
		var a *Angle
		a, err = NewAngle(t[0], t[1], t[2], def.Options)
		in, harmonic = a, func(h Harmonic) error { return a.SetHarmonic(h.K, h.X0) }
	case KindDihedral:
		var d *Dihedral
		d, err = NewDihedral(t[0], t[1], t[2], t[3], def.Options)
		in, harmonic = d, func(h Harmonic) error { return d.SetHarmonic(h.K, h.X0, h.D, h.N) }
	case KindPair:
		var pr *Pair
		pr, err = NewPair(t[0], t[1], def.RCut, def.ExcludeBonded, def.Options)
		in = pr
		if err == nil && p.LJ != nil {
			if err := pr.SetLJ(p.LJ.Epsilon, p.LJ.Sigma, p.LJ.RMin, p.LJ.RCut); err != nil {
				return nil, err
			}
			return pr, nil
		}
	default:
		return nil, ibi.Configf("unknown interaction kind %v", def.Kind)
	}
	if err != nil {
		return nil, err
	}

	base := in.Base()
	switch {
	case p.Harmonic != nil:
		err = harmonic(*p.Harmonic)
	case p.Quadratic != nil:
		q := p.Quadratic
		err = base.SetQuadratic(q.X0, q.K2, q.K3, q.K4, q.XMin, q.XMax)
	case p.TableFile != "":
		err = base.SetFromFile(p.TableFile)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}
