package state

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
)

const (
	DefaultIntegrator   = "nvt"
	DefaultDt           = 0.001
	DefaultOutputPeriod = 10000
	DefaultTableWidth   = 1000
)

// RunParams are the engine settings shared by every state of an
// optimization.
type RunParams struct {
	NSteps           int
	Integrator       string
	IntegratorKwargs map[string]any
	Dt               float64
	OutputPeriod     int
	TableWidth       int
}

func DefaultRunParams() RunParams {
	return RunParams{
		NSteps:           1000000,
		Integrator:       DefaultIntegrator,
		IntegratorKwargs: map[string]any{"tau": 0.1},
		Dt:               DefaultDt,
		OutputPeriod:     DefaultOutputPeriod,
		TableWidth:       DefaultTableWidth,
	}
}

func (p RunParams) Validate() error {
	if p.NSteps <= 0 {
		return ibi.Configf("n_steps must be positive, got %d", p.NSteps)
	}
	if p.Integrator == "" {
		return ibi.Configf("integrator must not be empty")
	}
	if !(p.Dt > 0) || math.IsInf(p.Dt, 1) {
		return ibi.Configf("dt must be positive and finite, got %g", p.Dt)
	}
	if p.OutputPeriod <= 0 {
		return ibi.Configf("output period must be positive, got %d", p.OutputPeriod)
	}
	if p.TableWidth <= 0 {
		return ibi.Configf("table width must be positive, got %d", p.TableWidth)
	}
	for k, v := range p.IntegratorKwargs {
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ibi.Configf("integrator kwarg %s must be finite, got %g", k, f)
		}
	}
	return nil
}

type SectionKind int

const (
	SectionHeader SectionKind = iota
	SectionInit
	SectionEntry
	SectionTrailer
)

func (k SectionKind) String() string {
	switch k {
	case SectionHeader:
		return "header"
	case SectionInit:
		return "init"
	case SectionEntry:
		return "entry"
	case SectionTrailer:
		return "trailer"
	default:
		return "unknown"
	}
}

// Section is one block of a run script. Interaction and Format are set for
// init and entry sections, Name only for entries.
type Section struct {
	Kind        SectionKind
	Interaction forces.Kind
	Format      forces.Format
	Name        string
	Lines       []string
}

// Script is a run script assembled from typed sections.
type Script struct {
	Sections []Section
}

func (sc *Script) add(sec Section) {
	sc.Sections = append(sc.Sections, sec)
}

// Find returns the sections of the given kind in script order.
func (sc *Script) Find(kind SectionKind) []Section {
	var out []Section
	for _, s := range sc.Sections {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (sc *Script) Render() string {
	var b strings.Builder
	for i, s := range sc.Sections {
		if i > 0 && s.Kind != SectionEntry {
			b.WriteByte('\n')
		}
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

var kindOrder = []forces.Kind{forces.KindPair, forces.KindBond, forces.KindAngle, forces.KindDihedral}

var staticHandles = map[forces.Kind]string{
	forces.KindBond:     "harmonic_bond",
	forces.KindAngle:    "harmonic_angle",
	forces.KindDihedral: "harmonic_dihedral",
}

var tableHandles = map[forces.Kind]string{
	forces.KindPair:     "table",
	forces.KindBond:     "btable",
	forces.KindAngle:    "atable",
	forces.KindDihedral: "dtable",
}

// BuildScript assembles the run script of s. tables maps each table
// interaction to the file written for it this iteration, keyed by kind and
// name.
func BuildScript(s *State, p RunParams, interactions []forces.Interaction, tables map[string]string) (*Script, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	byKind := make(map[forces.Kind][]forces.Interaction)
	for _, in := range interactions {
		f := in.Base()
		if f.Format() == forces.FormatNone {
			return nil, ibi.Usagef("%s has neither a table nor static parameters", f)
		}
		byKind[f.Kind()] = append(byKind[f.Kind()], in)
	}

	sc := &Script{}
	sc.add(Section{Kind: SectionHeader, Lines: headerLines(s, p)})

	for _, kind := range kindOrder {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}

		for _, format := range []forces.Format{forces.FormatStatic, forces.FormatTable} {
			members := filterFormat(group, format)
			if len(members) == 0 {
				continue
			}
			sc.add(Section{
				Kind:        SectionInit,
				Interaction: kind,
				Format:      format,
				Lines:       initLines(kind, format, members),
			})
			for _, in := range members {
				line, err := entryLine(s, in, tables)
				if err != nil {
					return nil, err
				}
				sc.add(Section{
					Kind:        SectionEntry,
					Interaction: kind,
					Format:      format,
					Name:        in.Base().Name(),
					Lines:       []string{line},
				})
			}
		}
	}

	sc.add(Section{Kind: SectionTrailer, Lines: trailerLines(s, p)})
	return sc, nil
}

func filterFormat(group []forces.Interaction, format forces.Format) []forces.Interaction {
	var out []forces.Interaction
	for _, in := range group {
		if in.Base().Format() == format {
			out = append(out, in)
		}
	}
	return out
}

func headerLines(s *State, p RunParams) []string {
	return []string{
		"import hoomd",
		"import hoomd.md",
		"from hoomd.init import read_gsd",
		"",
		`hoomd.context.initialize("")`,
		fmt.Sprintf("system = read_gsd(%s, frame=-1, time_step=0)", strconv.Quote(s.TrajFile)),
		fmt.Sprintf("pot_width = %d", p.TableWidth),
		"nl = hoomd.md.nlist.cell()",
	}
}

func initLines(kind forces.Kind, format forces.Format, members []forces.Interaction) []string {
	if format == forces.FormatStatic {
		return []string{fmt.Sprintf("%s = hoomd.md.%s.harmonic()", staticHandles[kind], kind)}
	}
	if kind != forces.KindPair {
		return []string{fmt.Sprintf("%s = hoomd.md.%s.table(width=pot_width)", tableHandles[kind], kind)}
	}

	lines := []string{"table = hoomd.md.pair.table(width=pot_width, nlist=nl)"}
	for _, in := range members {
		if p, ok := in.(*forces.Pair); ok && p.ExcludeBonded {
			lines = append(lines, `nl.reset_exclusions(exclusions=["bond", "angle", "dihedral"])`)
			break
		}
	}
	return lines
}

func entryLine(s *State, in forces.Interaction, tables map[string]string) (string, error) {
	f := in.Base()
	types := f.Types()

	if f.Format() == forces.FormatTable {
		path, ok := tables[tableKey(f)]
		if !ok {
			return "", ibi.Usagef("no table file written for %s", f)
		}
		if f.Kind() == forces.KindPair {
			return fmt.Sprintf("table.set_from_file(%s, %s, filename=%s)",
				strconv.Quote(types[0]), strconv.Quote(types[1]), strconv.Quote(path)), nil
		}
		return fmt.Sprintf("%s.set_from_file(%s, %s)",
			tableHandles[f.Kind()], strconv.Quote(f.Name()), strconv.Quote(path)), nil
	}

	params, err := f.StaticParamsFor(s.ID())
	if err != nil {
		return "", err
	}
	handle := staticHandles[f.Kind()]
	name := strconv.Quote(f.Name())
	switch f.Kind() {
	case forces.KindBond:
		return fmt.Sprintf("%s.bond_coeff.set(%s, k=%s, r0=%s)", handle, name, pyFloat(params.K), pyFloat(params.X0)), nil
	case forces.KindAngle:
		return fmt.Sprintf("%s.angle_coeff.set(%s, k=%s, t0=%s)", handle, name, pyFloat(params.K), pyFloat(params.X0)), nil
	case forces.KindDihedral:
		return fmt.Sprintf("%s.dihedral_coeff.set(%s, k=%s, d=%d, n=%d, phi0=%s)",
			handle, name, pyFloat(params.K), params.D, params.N, pyFloat(params.X0)), nil
	}
	return "", ibi.Usagef("%s cannot be static", f)
}

func trailerLines(s *State, p RunParams) []string {
	kwargs := make(map[string]any, len(p.IntegratorKwargs)+1)
	for k, v := range p.IntegratorKwargs {
		kwargs[k] = v
	}
	kwargs["kT"] = s.KT

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{"group=_all"}
	for _, k := range keys {
		args = append(args, k+"="+pyValue(kwargs[k]))
	}

	return []string{
		"_all = hoomd.group.all()",
		fmt.Sprintf("hoomd.md.integrate.mode_standard(dt=%s)", pyFloat(p.Dt)),
		fmt.Sprintf("integrator = hoomd.md.integrate.%s(%s)", p.Integrator, strings.Join(args, ", ")),
		fmt.Sprintf("hoomd.dump.gsd(filename=%s, period=%d, group=_all, overwrite=True)",
			strconv.Quote(s.QueryTraj), p.OutputPeriod),
		fmt.Sprintf("hoomd.run(%d)", p.NSteps),
	}
}

func pyFloat(v float64) string {
	return formatKT(v)
}

func pyValue(v any) string {
	switch x := v.(type) {
	case float64:
		return pyFloat(x)
	case float32:
		return pyFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return strconv.Quote(x)
	case nil:
		return "None"
	default:
		return fmt.Sprint(x)
	}
}
