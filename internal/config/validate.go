package config

import (
	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
	"github.com/san-kum/msibi/internal/logger"
)

func validateConfig(cfg *Config) error {
	if !logger.ValidLevel(cfg.LogLevel) {
		return ibi.Configf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return ibi.Configf("invalid log_format: %s (must be text or json)", cfg.LogFormat)
	}

	if err := cfg.RunParams().Validate(); err != nil {
		return err
	}
	if cfg.Engine.Parallel < 0 {
		return ibi.Configf("engine.parallel cannot be negative")
	}

	opt := cfg.Optimization
	if opt.NIterations <= 0 {
		return ibi.Configf("optimization.n_iterations must be positive, got %d", opt.NIterations)
	}
	if opt.DensityThreshold < 0 || opt.DensityThreshold >= 1 {
		return ibi.Configf("optimization.density_threshold must be in [0, 1), got %g", opt.DensityThreshold)
	}
	if opt.Convergence.Enabled && opt.Convergence.Patience <= 0 {
		return ibi.Configf("optimization.convergence.patience must be positive")
	}

	if len(cfg.States) == 0 {
		return ibi.Configf("at least one state must be defined")
	}
	seen := make(map[string]bool)
	for _, s := range cfg.States {
		if s.Name == "" {
			return ibi.Configf("state name cannot be empty")
		}
		if s.KT <= 0 {
			return ibi.Configf("state %s: kT must be positive", s.Name)
		}
		if s.TrajFile == "" {
			return ibi.Configf("state %s: traj_file is required", s.Name)
		}
		if s.Alpha != nil && (*s.Alpha < 0 || *s.Alpha > 1) {
			return ibi.Configf("state %s: alpha should be between 0.0 and 1.0", s.Name)
		}
		key := s.Name + "@" + formatFloat(s.KT)
		if seen[key] {
			return ibi.Configf("duplicate state: %s at kT %g", s.Name, s.KT)
		}
		seen[key] = true
	}

	if len(cfg.Forces) == 0 {
		return ibi.Configf("at least one force must be defined")
	}
	optimized := 0
	for i, f := range cfg.Forces {
		kind, err := forces.ParseKind(f.Kind)
		if err != nil {
			return err
		}
		if len(f.Types) != kind.Arity() {
			return ibi.Configf("forces[%d]: %s needs %d types, got %d", i, kind, kind.Arity(), len(f.Types))
		}
		if kind == forces.KindPair && f.RCut < 0 {
			return ibi.Configf("forces[%d]: r_cut cannot be negative", i)
		}
		if f.Optimize {
			optimized++
		}
	}
	if optimized == 0 {
		return ibi.Configf("at least one force must set optimize: true")
	}
	return nil
}
