// Package optimizer drives multistate iterative Boltzmann inversion: it runs
// the engine for every state, compares the resulting distributions with
// their targets and refines the tabulated potentials.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/san-kum/msibi/internal/analysis"
	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
	"github.com/san-kum/msibi/internal/sim"
	"github.com/san-kum/msibi/internal/state"
)

type Options struct {
	DensityThreshold float64
	Parallel         int
	Convergence      ConvergenceConfig
	Logger           *slog.Logger
}

// Report summarizes one committed iteration. Scores are keyed by
// interaction (kind and name) and then by state id; Potentials by
// interaction. Best is the highest mean fit score of the current
// RunOptimization call.
type Report struct {
	Iteration  int
	Scores     map[string]map[string]float64
	Potentials map[string][]float64
	Mean       float64
	Best       float64
	Elapsed    time.Duration
	Converged  bool
}

type Observer interface {
	OnIteration(r Report)
}

type ObserverFunc func(r Report)

func (f ObserverFunc) OnIteration(r Report) { f(r) }

type Optimizer struct {
	params    state.RunParams
	source    analysis.Source
	runner    *sim.Runner
	threshold float64

	states       []*state.State
	interactions []forces.Interaction
	names        map[string]bool

	iteration   int
	targetsDone bool
	converged   bool
	convergence *convergence
	observers   []Observer
	logger      *slog.Logger
}

func New(params state.RunParams, engine sim.Engine, source analysis.Source, opts Options) (*Optimizer, error) {
	if engine == nil {
		return nil, ibi.Configf("an engine is required")
	}
	if source == nil {
		return nil, ibi.Configf("a distribution source is required")
	}
	if opts.DensityThreshold < 0 || opts.DensityThreshold >= 1 {
		return nil, ibi.Configf("density threshold must be in [0, 1), got %g", opts.DensityThreshold)
	}
	if opts.DensityThreshold == 0 {
		opts.DensityThreshold = DefaultDensityThreshold
	}
	if opts.Convergence.Enabled && opts.Convergence.Patience <= 0 {
		return nil, ibi.Configf("convergence patience must be positive, got %d", opts.Convergence.Patience)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Optimizer{
		params:    params,
		source:    source,
		runner:    sim.NewRunner(engine, opts.Parallel, logger),
		threshold: opts.DensityThreshold,
		names:     make(map[string]bool),
		logger:    logger,

		convergence: newConvergence(opts.Convergence, logger),
	}, nil
}

func (o *Optimizer) AddObserver(obs Observer) { o.observers = append(o.observers, obs) }

// AddRunObserver forwards per-state engine completions to obs.
func (o *Optimizer) AddRunObserver(obs sim.Observer) { o.runner.AddObserver(obs) }

func (o *Optimizer) States() []*state.State {
	return append([]*state.State(nil), o.states...)
}

func (o *Optimizer) Interactions() []forces.Interaction {
	return append([]forces.Interaction(nil), o.interactions...)
}

// Iteration is the number of committed iterations.
func (o *Optimizer) Iteration() int { return o.iteration }

func (o *Optimizer) Converged() bool { return o.converged }

// AddState registers s and attaches it to every interaction added so far.
// On error no interaction keeps the attachment.
func (o *Optimizer) AddState(s *state.State) error {
	for _, existing := range o.states {
		if existing.ID() == s.ID() {
			return ibi.Configf("state %s already added", s.ID())
		}
	}
	for i, in := range o.interactions {
		if err := in.Base().AddState(s.Info()); err != nil {
			for _, done := range o.interactions[:i] {
				done.Base().RemoveState(s.ID())
			}
			return err
		}
	}
	o.states = append(o.states, s)
	o.targetsDone = false
	o.logger.Info("state added", "state", s.ID(), "kT", s.KT, "alpha", s.Alpha)
	return nil
}

// AddForce registers an interaction and attaches every state added so far.
// States the interaction already carries must be registered here too. On
// error the interaction keeps only the attachments it came with.
func (o *Optimizer) AddForce(in forces.Interaction) error {
	f := in.Base()
	key := f.String()
	if o.names[key] {
		return ibi.Configf("%s already added", key)
	}
	switch {
	case f.Format() == forces.FormatNone:
		return ibi.Usagef("%s has neither a table nor static parameters", f)
	case f.Optimize() && f.Format() != forces.FormatTable:
		return ibi.Usagef("%s is marked for optimization but has no table potential", f)
	}

	known := make(map[string]bool, len(o.states))
	for _, s := range o.states {
		known[s.ID()] = true
	}
	for _, id := range f.StateIDs() {
		if !known[id] {
			return ibi.Usagef("%s is attached to state %s, which was not added", f, id)
		}
	}

	var attached []string
	for _, s := range o.states {
		if f.HasState(s.ID()) {
			continue
		}
		if err := f.AddState(s.Info()); err != nil {
			for _, id := range attached {
				f.RemoveState(id)
			}
			return err
		}
		attached = append(attached, s.ID())
	}
	o.names[key] = true
	o.interactions = append(o.interactions, in)
	o.targetsDone = false
	o.logger.Info("interaction added", "interaction", key, "format", f.Format().String(), "optimize", f.Optimize())
	return nil
}

func (o *Optimizer) optimized() []forces.Interaction {
	var out []forces.Interaction
	for _, in := range o.interactions {
		if in.Base().IsOptimized() {
			out = append(out, in)
		}
	}
	return out
}

// RunOptimization performs nIterations iterations of nSteps engine steps
// each. An iteration is committed to every optimized interaction at once or
// not at all; a failed iteration is reported as an *ibi.IterationError.
func (o *Optimizer) RunOptimization(ctx context.Context, nSteps, nIterations int) error {
	if nSteps <= 0 {
		return ibi.Configf("n_steps must be positive, got %d", nSteps)
	}
	if nIterations <= 0 {
		return ibi.Configf("n_iterations must be positive, got %d", nIterations)
	}
	if len(o.states) == 0 {
		return ibi.Usagef("no states added")
	}
	if len(o.interactions) == 0 {
		return ibi.Usagef("no interactions added")
	}
	for _, in := range o.interactions {
		if in.Base().Format() == forces.FormatNone {
			return ibi.Usagef("%s has neither a table nor static parameters", in.Base())
		}
	}
	if len(o.optimized()) == 0 {
		o.logger.Warn("no interaction is marked for optimization; potentials will not change")
	}

	params := o.params
	params.NSteps = nSteps
	if err := params.Validate(); err != nil {
		return err
	}

	if !o.targetsDone {
		if err := o.computeTargets(ctx); err != nil {
			return err
		}
		o.targetsDone = true
	}

	o.convergence.reset()
	o.converged = false

	for i := 0; i < nIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := o.iterate(ctx, params)
		if err != nil {
			return err
		}
		for _, obs := range o.observers {
			obs.OnIteration(report)
		}
		if report.Converged {
			o.converged = true
			o.logger.Info("optimization converged", "iteration", report.Iteration)
			break
		}
	}
	return nil
}

func (o *Optimizer) request(f *forces.Force, in forces.Interaction, traj string, nframes int) analysis.Request {
	x := f.XRange()
	req := analysis.Request{
		Trajectory: traj,
		Kind:       f.Kind().String(),
		Types:      f.Types(),
		XMin:       x[0],
		XMax:       x[len(x)-1],
		NBins:      f.NBins(),
		NFrames:    nframes,
	}
	if p, ok := in.(*forces.Pair); ok {
		req.RCut = p.RCut
		req.ExcludeBonded = p.ExcludeBonded
	}
	return req
}

func (o *Optimizer) computeTargets(ctx context.Context) error {
	for _, in := range o.optimized() {
		f := in.Base()
		for _, s := range o.states {
			p, err := o.source.Distribution(ctx, o.request(f, in, s.TrajFile, s.NFrames))
			if err != nil {
				return fmt.Errorf("target distribution of %s in state %s: %w", f, s.ID(), err)
			}
			target := analysis.Normalize(p)
			if allZero(target) {
				return fmt.Errorf("%w: target distribution of %s in state %s", ibi.ErrZeroDistribution, f, s.ID())
			}
			if err := f.SetTargetDistribution(s.ID(), target); err != nil {
				return err
			}
			o.logger.Debug("target distribution computed", "interaction", f.String(), "state", s.ID())
		}
	}
	return nil
}

type staged struct {
	force     *forces.Force
	potential []float64
	scores    map[string]float64
}

func (o *Optimizer) iterate(ctx context.Context, params state.RunParams) (Report, error) {
	start := time.Now()
	iter := o.iteration
	fail := func(s *state.State, err error) error {
		id := ""
		if s != nil {
			id = s.ID()
		}
		return &ibi.IterationError{Iteration: iter, State: id, Wrapped: err}
	}

	jobs := make([]sim.Job, 0, len(o.states))
	for _, s := range o.states {
		if err := s.PrepareQuery(iter); err != nil {
			return Report{}, fail(s, err)
		}
		if err := s.SaveRunscript(params, o.interactions, iter); err != nil {
			return Report{}, fail(s, err)
		}
		jobs = append(jobs, sim.Job{
			StateID: s.ID(),
			Dir:     s.Dir,
			Script:  state.RunscriptFile,
			Output:  s.QueryTraj,
		})
	}

	o.logger.Info("running engine",
		"iteration", iter,
		"states", len(jobs),
		"parallel", o.runner.Parallel(),
		"n_steps", params.NSteps,
	)
	results, err := o.runner.RunAll(ctx, jobs)
	if err != nil {
		return Report{}, fail(o.failedState(results), err)
	}

	var updates []staged
	for _, in := range o.optimized() {
		f := in.Base()
		up := staged{force: f, scores: make(map[string]float64, len(o.states))}

		terms := make([]updateTerm, 0, len(o.states))
		for _, s := range o.states {
			raw, err := o.source.Distribution(ctx, o.request(f, in, s.QueryTraj, s.NFrames))
			if err != nil {
				return Report{}, fail(s, fmt.Errorf("distribution of %s: %w", f, err))
			}
			target, err := f.TargetDistribution(s.ID())
			if err != nil {
				return Report{}, fail(s, err)
			}
			if len(raw) != len(target) {
				return Report{}, fail(s, fmt.Errorf("%w: %s distribution has %d samples, want %d",
					ibi.ErrDimensionMismatch, f, len(raw), len(target)))
			}
			dist := analysis.Normalize(raw)

			score, err := analysis.CalcSimilarity(dist, target)
			if err != nil {
				return Report{}, fail(s, fmt.Errorf("score %s: %w", f, err))
			}
			up.scores[s.ID()] = score
			terms = append(terms, updateTerm{kT: s.KT, alpha: s.Alpha, sim: dist, target: target})
		}

		smoothed, err := f.Smooth(ibiUpdate(f.Potential(), terms, o.threshold))
		if err != nil {
			return Report{}, fail(nil, err)
		}
		up.potential = smoothed
		updates = append(updates, up)
	}

	report := Report{
		Iteration:  iter,
		Scores:     make(map[string]map[string]float64, len(updates)),
		Potentials: make(map[string][]float64, len(updates)),
	}
	for _, up := range updates {
		if err := up.force.CanCommit(up.potential, up.scores); err != nil {
			return Report{}, fail(nil, err)
		}
	}

	var sum float64
	var n int
	for _, up := range updates {
		if err := up.force.Commit(up.potential, up.scores); err != nil {
			return Report{}, fail(nil, err)
		}
		report.Scores[up.force.String()] = up.scores
		report.Potentials[up.force.String()] = up.force.Potential()
		for _, v := range up.scores {
			sum += v
			n++
		}
	}
	o.iteration++

	if n > 0 {
		report.Mean = sum / float64(n)
		report.Converged = o.convergence.observe(report.Mean)
		report.Best = o.convergence.best
	}
	report.Elapsed = time.Since(start)

	o.logger.Info("iteration complete",
		"iteration", iter,
		"mean_fit_score", report.Mean,
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)
	return report, nil
}

func (o *Optimizer) failedState(results []sim.Result) *state.State {
	for _, r := range results {
		if r.Err == nil || errors.Is(r.Err, context.Canceled) {
			continue
		}
		for _, s := range o.states {
			if s.ID() == r.StateID {
				return s
			}
		}
	}
	return nil
}

// SavePotentials writes the potential and potential history of every
// optimized interaction into dir.
func (o *Optimizer) SavePotentials(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, in := range o.optimized() {
		f := in.Base()
		base := fmt.Sprintf("%s_%s", f.Kind(), f.Name())
		if err := f.SavePotential(filepath.Join(dir, base+".csv")); err != nil {
			return err
		}
		if err := f.SavePotentialHistory(filepath.Join(dir, base+"_history.json")); err != nil {
			return err
		}
	}
	return nil
}

func allZero(p []float64) bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}
	return true
}
