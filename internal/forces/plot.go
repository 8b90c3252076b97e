package forces

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/msibi/internal/ibi"
)

const (
	plotHeight = 12
	plotWidth  = 70
)

// PlotFitScores draws the fit score of every completed iteration for a state.
func (f *Force) PlotFitScores(w io.Writer, stateID string) error {
	scores, err := f.FitScores(stateID)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("%s fit scores, state %s", f, stateID)
	return plot(w, scores, caption)
}

// PlotTargetDistribution draws the target distribution recorded for a state.
func (f *Force) PlotTargetDistribution(w io.Writer, stateID string) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: target distributions require a table interaction", f)
	}
	target, err := f.TargetDistribution(stateID)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("%s target distribution, state %s [%g, %g]", f, stateID, f.x[0], f.x[len(f.x)-1])
	return plot(w, target, caption)
}

// PlotPotential draws the current table potential.
func (f *Force) PlotPotential(w io.Writer) error {
	if f.format != FormatTable {
		return ibi.Usagef("%s: only table potentials can be plotted (format %s)", f, f.format)
	}
	caption := fmt.Sprintf("%s potential [%g, %g]", f, f.x[0], f.x[len(f.x)-1])
	return plot(w, f.potential, caption)
}

func plot(w io.Writer, data []float64, caption string) error {
	if len(data) == 0 {
		_, err := fmt.Fprintf(w, "%s: no data\n", caption)
		return err
	}

	opts := []asciigraph.Option{
		asciigraph.Height(plotHeight),
		asciigraph.Caption(caption),
	}
	if len(data) > 1 {
		opts = append(opts, asciigraph.Width(plotWidth))
	}

	_, err := fmt.Fprintln(w, asciigraph.Plot(data, opts...))
	return err
}
