package optimizer

import (
	"log/slog"
)

// ConvergenceConfig stops an optimization early once the mean fit score
// stops improving. Progress is measured on the misfit, 1 - score, relative
// to the last iteration that counted as progress.
type ConvergenceConfig struct {
	Enabled   bool
	Patience  int
	Threshold float64
}

func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.001}
}

// convergence follows the mean fit score of the iterations of one
// RunOptimization call. The best score is kept even when detection is off.
type convergence struct {
	cfg    ConvergenceConfig
	seen   int
	best   float64
	anchor float64
	stale  int
	logger *slog.Logger
}

func newConvergence(cfg ConvergenceConfig, logger *slog.Logger) *convergence {
	if logger == nil {
		logger = slog.Default()
	}
	return &convergence{cfg: cfg, logger: logger}
}

func (c *convergence) reset() {
	c.seen, c.best, c.anchor, c.stale = 0, 0, 0, 0
}

// observe records the mean fit score of an iteration and reports whether
// the run has converged.
func (c *convergence) observe(score float64) bool {
	c.seen++
	if c.seen == 1 || score > c.best {
		c.best = score
	}
	if !c.cfg.Enabled {
		return false
	}

	misfit := 1 - score
	if c.seen == 1 {
		c.anchor = misfit
		return false
	}
	if c.anchor > 0 && (c.anchor-misfit)/c.anchor >= c.cfg.Threshold {
		c.anchor = misfit
		c.stale = 0
		return false
	}

	c.stale++
	c.logger.Debug("fit score stalled", "score", score, "best", c.best, "stale", c.stale, "patience", c.cfg.Patience)
	if c.stale < c.cfg.Patience {
		return false
	}
	c.logger.Info("convergence detected", "stale", c.stale, "best_fit_score", c.best)
	return true
}
