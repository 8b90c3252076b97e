package analysis

import (
	"context"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Request describes one structural distribution to extract from a trajectory.
// The returned distribution must have NBins+1 samples aligned with the
// evenly spaced grid [XMin, XMax].
type Request struct {
	Trajectory    string
	Kind          string
	Types         []string
	XMin          float64
	XMax          float64
	NBins         int
	NFrames       int
	RCut          float64
	ExcludeBonded bool
}

// Args renders the request as command line flags.
func (r Request) Args() []string {
	args := []string{
		"--traj", r.Trajectory,
		"--kind", r.Kind,
		"--types", strings.Join(r.Types, ","),
		"--x-min", strconv.FormatFloat(r.XMin, 'g', -1, 64),
		"--x-max", strconv.FormatFloat(r.XMax, 'g', -1, 64),
		"--nbins", strconv.Itoa(r.NBins),
	}
	if r.NFrames > 0 {
		args = append(args, "--frames", strconv.Itoa(r.NFrames))
	}
	if r.RCut > 0 {
		args = append(args, "--r-cut", strconv.FormatFloat(r.RCut, 'g', -1, 64))
	}
	if r.ExcludeBonded {
		args = append(args, "--exclude-bonded")
	}
	return args
}

// Source turns a trajectory into a structural distribution.
type Source interface {
	Distribution(ctx context.Context, req Request) ([]float64, error)
}

// Normalize returns a copy of p scaled to unit sum. An all-zero input is
// returned unscaled.
func Normalize(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	sum := floats.Sum(out)
	if sum == 0 {
		return out
	}
	floats.Scale(1/sum, out)
	return out
}
