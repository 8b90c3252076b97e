package config

import (
	"log/slog"
	"strconv"

	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/optimizer"
	"github.com/san-kum/msibi/internal/state"
)

func (c *Config) RunParams() state.RunParams {
	return state.RunParams{
		NSteps:           c.Engine.NSteps,
		Integrator:       c.Engine.Integrator,
		IntegratorKwargs: c.Engine.IntegratorKwargs,
		Dt:               c.Engine.Dt,
		OutputPeriod:     c.Engine.OutputPeriod,
		TableWidth:       c.Engine.TableWidth,
	}
}

func (c *Config) OptimizerOptions(logger *slog.Logger) optimizer.Options {
	conv := c.Optimization.Convergence
	return optimizer.Options{
		DensityThreshold: c.Optimization.DensityThreshold,
		Parallel:         c.Engine.Parallel,
		Convergence: optimizer.ConvergenceConfig{
			Enabled:   conv.Enabled,
			Patience:  conv.Patience,
			Threshold: conv.Threshold,
		},
		Logger: logger,
	}
}

func (c *Config) StateConfigs(logger *slog.Logger) []state.Config {
	out := make([]state.Config, 0, len(c.States))
	for _, s := range c.States {
		alpha := state.DefaultAlpha
		if s.Alpha != nil {
			alpha = *s.Alpha
		}
		out = append(out, state.Config{
			Name:             s.Name,
			KT:               s.KT,
			TrajFile:         c.resolve(s.TrajFile),
			Alpha:            alpha,
			BackupTrajectory: s.BackupTrajectory,
			NFrames:          s.NFrames,
			Root:             c.RootDir(),
			Logger:           logger,
		})
	}
	return out
}

func (c *Config) Definitions(logger *slog.Logger) ([]forces.Definition, error) {
	defs := make([]forces.Definition, 0, len(c.Forces))
	for _, f := range c.Forces {
		kind, err := forces.ParseKind(f.Kind)
		if err != nil {
			return nil, err
		}

		def := forces.Definition{
			Kind:  kind,
			Types: f.Types,
			Options: forces.Options{
				Optimize:        f.Optimize,
				NBins:           f.NBins,
				SmoothingWindow: f.SmoothingWindow,
				SmoothingOrder:  f.SmoothingOrder,
				Logger:          logger,
			},
			RCut:          f.RCut,
			ExcludeBonded: f.ExcludeBonded,
			Params:        forces.Params{TableFile: c.resolve(f.TableFile)},
		}
		if h := f.Harmonic; h != nil {
			def.Params.Harmonic = &forces.Harmonic{K: h.K, X0: h.X0, D: h.D, N: h.N}
		}
		if q := f.Quadratic; q != nil {
			def.Params.Quadratic = &forces.Quadratic{X0: q.X0, K2: q.K2, K3: q.K3, K4: q.K4, XMin: q.XMin, XMax: q.XMax}
		}
		if lj := f.LJ; lj != nil {
			def.Params.LJ = &forces.LJ{Epsilon: lj.Epsilon, Sigma: lj.Sigma, RMin: lj.RMin, RCut: lj.RCut}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// BuildInteractions constructs every configured interaction.
func (c *Config) BuildInteractions(logger *slog.Logger) ([]forces.Interaction, error) {
	defs, err := c.Definitions(logger)
	if err != nil {
		return nil, err
	}
	out := make([]forces.Interaction, 0, len(defs))
	for _, def := range defs {
		in, err := forces.Build(def)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
