package forces

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/san-kum/msibi/internal/analysis"
	"github.com/san-kum/msibi/internal/ibi"
)

const (
	DefaultNBins           = 100
	DefaultSmoothingWindow = 7
	DefaultSmoothingOrder  = 2
)

type Kind int

const (
	KindBond Kind = iota
	KindAngle
	KindPair
	KindDihedral
)

var kindNames = map[Kind]string{
	KindBond:     "bond",
	KindAngle:    "angle",
	KindPair:     "pair",
	KindDihedral: "dihedral",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Arity is the number of particle types the interaction spans.
func (k Kind) Arity() int {
	switch k {
	case KindAngle:
		return 3
	case KindDihedral:
		return 4
	default:
		return 2
	}
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, ibi.Configf("unknown interaction kind %q", s)
}

type Format int

const (
	FormatNone Format = iota
	FormatStatic
	FormatTable
)

func (f Format) String() string {
	switch f {
	case FormatStatic:
		return "static"
	case FormatTable:
		return "table"
	default:
		return "none"
	}
}

// StaticParams is the analytic parameter set of a static interaction.
// X0 is the equilibrium distance, angle or phase. D and N are only used by
// dihedrals.
type StaticParams struct {
	K  float64
	X0 float64
	D  int
	N  int
}

type Options struct {
	Optimize        bool
	NBins           int
	SmoothingWindow int
	SmoothingOrder  int
	Logger          *slog.Logger
}

// StateInfo identifies a state from the interaction's point of view. The
// interaction never holds the state itself.
type StateInfo struct {
	ID    string
	KT    float64
	Alpha float64
}

type stateData struct {
	info      StateInfo
	params    StaticParams
	target    []float64
	fitScores []float64
}

// Interaction is implemented by Bond, Angle, Pair and Dihedral.
type Interaction interface {
	Base() *Force
}

// staticModel evaluates the analytic form of a static interaction.
type staticModel interface {
	evalStatic(x float64, p StaticParams) (u, f float64)
	staticDomain(p StaticParams) (lo, hi float64)
}

// Force is the state shared by every interaction kind: identity, mode,
// tabulated curve, smoothing configuration, history and per-state data.
type Force struct {
	kind     Kind
	types    []string
	name     string
	optimize bool
	format   Format
	static   StaticParams
	model    staticModel

	nbins  int
	window int
	order  int

	x         []float64
	potential []float64
	force     []float64
	dx        float64
	history   [][]float64

	states     map[string]*stateData
	stateOrder []string

	logger *slog.Logger
}

func newForce(kind Kind, types []string, model staticModel, opts Options) (*Force, error) {
	if len(types) != kind.Arity() {
		return nil, ibi.Configf("%s needs %d types, got %d", kind, kind.Arity(), len(types))
	}
	for _, t := range types {
		if t == "" {
			return nil, ibi.Configf("%s type names must not be empty", kind)
		}
	}

	f := &Force{
		kind:     kind,
		types:    types,
		name:     strings.Join(types, "-"),
		optimize: opts.Optimize,
		model:    model,
		nbins:    DefaultNBins,
		window:   DefaultSmoothingWindow,
		order:    DefaultSmoothingOrder,
		states:   make(map[string]*stateData),
		logger:   opts.Logger,
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	if opts.NBins != 0 {
		if err := f.SetNBins(opts.NBins); err != nil {
			return nil, err
		}
	}
	if opts.SmoothingWindow != 0 {
		f.window = opts.SmoothingWindow
	}
	if opts.SmoothingOrder != 0 {
		f.order = opts.SmoothingOrder
	}
	if err := validateSmoothing(f.window, f.order); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Force) Base() *Force { return f }

func (f *Force) Name() string    { return f.name }
func (f *Force) Kind() Kind      { return f.kind }
func (f *Force) Optimize() bool  { return f.optimize }
func (f *Force) Format() Format  { return f.format }
func (f *Force) NBins() int      { return f.nbins }
func (f *Force) DX() float64     { return f.dx }
func (f *Force) String() string  { return f.kind.String() + " " + f.name }
func (f *Force) Types() []string { return append([]string(nil), f.types...) }

// IsOptimized reports whether the optimizer refines this interaction.
func (f *Force) IsOptimized() bool {
	return f.optimize && f.format == FormatTable
}

func (f *Force) SetNBins(n int) error {
	if n <= 0 {
		return ibi.Configf("nbins must be a positive integer, got %d", n)
	}
	if f.format == FormatTable && n != f.nbins {
		return ibi.Usagef("%s: nbins is fixed once the table is set", f)
	}
	f.nbins = n
	return nil
}

func (f *Force) SmoothingWindow() int { return f.window }
func (f *Force) SmoothingOrder() int  { return f.order }

func (f *Force) SetSmoothingWindow(w int) error {
	if err := validateSmoothing(w, f.order); err != nil {
		return err
	}
	f.window = w
	return nil
}

func (f *Force) SetSmoothingOrder(o int) error {
	if err := validateSmoothing(f.window, o); err != nil {
		return err
	}
	f.order = o
	return nil
}

func validateSmoothing(window, order int) error {
	if window <= 0 || window%2 == 0 {
		return ibi.Configf("smoothing window must be a positive odd integer, got %d", window)
	}
	if order <= 0 {
		return ibi.Configf("smoothing order must be a positive integer, got %d", order)
	}
	if order >= window {
		return ibi.Configf("smoothing order %d must be less than window %d", order, window)
	}
	return nil
}

// XRange returns a copy of the sample positions of the table.
func (f *Force) XRange() []float64 {
	if f.format == FormatStatic {
		x, _, _ := f.staticCurve()
		return x
	}
	return clone(f.x)
}

// Potential returns a copy of the tabulated potential. For static
// interactions the curve is rebuilt from the analytic parameters on the
// kind's default domain; it is a lossy convenience and is not what the
// engine evaluates.
func (f *Force) Potential() []float64 {
	switch f.format {
	case FormatTable:
		return clone(f.potential)
	case FormatStatic:
		f.logger.Warn("reading the potential of a static interaction; values are reconstructed from analytic parameters",
			"interaction", f.name, "kind", f.kind.String())
		_, u, _ := f.staticCurve()
		return u
	default:
		return nil
	}
}

// ForceCurve returns a copy of the tabulated force, -dU/dx. Static
// interactions follow the same reconstruction policy as Potential.
func (f *Force) ForceCurve() []float64 {
	switch f.format {
	case FormatTable:
		return clone(f.force)
	case FormatStatic:
		f.logger.Warn("reading the force of a static interaction; values are reconstructed from analytic parameters",
			"interaction", f.name, "kind", f.kind.String())
		_, _, fc := f.staticCurve()
		return fc
	default:
		return nil
	}
}

// SetPotential replaces the tabulated potential with a copy of u and
// recomputes the force by finite differences.
func (f *Force) SetPotential(u []float64) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: potential can only be set on a table interaction (format %s)", f, f.format)
	}
	if len(u) != f.nbins+1 {
		return ibi.Configf("%s: potential has %d samples, want nbins+1 = %d", f, len(u), f.nbins+1)
	}
	f.potential = clone(u)
	f.force = negGradient(f.potential, f.dx)
	return nil
}

// StaticParams returns the analytic parameters of a static interaction.
func (f *Force) StaticParams() (StaticParams, error) {
	if f.format != FormatStatic {
		return StaticParams{}, ibi.Usagef("%s is not static", f)
	}
	return f.static, nil
}

// SmoothPotential applies the Savitzky-Golay filter in place.
func (f *Force) SmoothPotential() error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: smoothing requires a table interaction (format %s)", f, f.format)
	}
	smoothed, err := f.Smooth(f.potential)
	if err != nil {
		return err
	}
	f.potential = smoothed
	f.force = negGradient(f.potential, f.dx)
	return nil
}

// Smooth returns u filtered with this interaction's window and order
// without modifying the interaction.
func (f *Force) Smooth(u []float64) ([]float64, error) {
	out, err := analysis.SavitzkyGolay(u, f.window, f.order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f, err)
	}
	return out, nil
}

// PotentialHistory returns a copy of the potential after each completed
// optimization iteration.
func (f *Force) PotentialHistory() [][]float64 {
	out := make([][]float64, len(f.history))
	for i, h := range f.history {
		out[i] = clone(h)
	}
	return out
}

func (f *Force) setTable(x, u, force []float64) {
	f.format = FormatTable
	f.x = x
	f.potential = u
	f.force = force
	if len(x) > 1 {
		f.dx = x[1] - x[0]
	}
}

func (f *Force) canTabulate() error {
	if f.format == FormatStatic {
		return ibi.Usagef("%s is static and cannot become a table", f)
	}
	if len(f.history) > 0 {
		return ibi.Usagef("%s: table domain is fixed after optimization started", f)
	}
	return nil
}

func (f *Force) setStatic(p StaticParams) error {
	if f.optimize {
		return ibi.Usagef("%s is marked for optimization; static parameters are not allowed", f)
	}
	if f.format == FormatTable {
		return ibi.Usagef("%s already holds a table potential", f)
	}
	for _, v := range []float64{p.K, p.X0} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ibi.Configf("%s: static parameters must be finite", f)
		}
	}
	// states attached before any parameters were set have nothing to keep
	if f.format == FormatNone {
		for _, sd := range f.states {
			sd.params = p
		}
	}
	f.format = FormatStatic
	f.static = p
	return nil
}

func (f *Force) staticCurve() (x, u, force []float64) {
	lo, hi := f.model.staticDomain(f.static)
	x = linspace(lo, hi, f.nbins+1)
	u = make([]float64, len(x))
	force = make([]float64, len(x))
	for i, xi := range x {
		u[i], force[i] = f.model.evalStatic(xi, f.static)
	}
	return x, u, force
}

func clone(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}
