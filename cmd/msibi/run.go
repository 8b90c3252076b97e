package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/msibi/internal/analysis"
	"github.com/san-kum/msibi/internal/config"
	"github.com/san-kum/msibi/internal/export"
	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/logger"
	"github.com/san-kum/msibi/internal/optimizer"
	"github.com/san-kum/msibi/internal/sim"
	"github.com/san-kum/msibi/internal/state"
	"github.com/san-kum/msibi/internal/storage"
	"github.com/san-kum/msibi/internal/tui"
	"github.com/san-kum/msibi/internal/viz"
)

const logFile = "msibi.log"

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if f := cmd.Flags().Lookup("iterations"); f != nil && f.Changed {
		cfg.Optimization.NIterations = iterations
	}
	if f := cmd.Flags().Lookup("n-steps"); f != nil && f.Changed {
		cfg.Engine.NSteps = nSteps
	}
	if f := cmd.Flags().Lookup("parallel"); f != nil && f.Changed {
		cfg.Engine.Parallel = parallel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	log := logger.NewFormat(cfg.LogLevel, cfg.LogFormat, w)
	logger.SetDefault(log)
	return log
}

func runMetadata(cfg *config.Config) storage.RunMetadata {
	meta := storage.RunMetadata{
		Name:   cfg.Name,
		Root:   cfg.RootDir(),
		NSteps: cfg.Engine.NSteps,
	}
	for _, s := range cfg.StateConfigs(nil) {
		meta.States = append(meta.States, storage.StateRecord{ID: state.DirName(s.Name, s.KT), KT: s.KT, Alpha: s.Alpha})
	}
	for _, f := range cfg.Forces {
		meta.Interactions = append(meta.Interactions, fmt.Sprintf("%s %v", f.Kind, f.Types))
	}
	return meta
}

// buildStates creates every state directory. Nothing is rolled back when a
// later state fails.
func buildStates(cfg *config.Config, log *slog.Logger) ([]*state.State, error) {
	var states []*state.State
	for _, sc := range cfg.StateConfigs(log) {
		s, err := state.New(sc)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	record, err := st.Create(runMetadata(cfg))
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	if live {
		f, err := os.Create(filepath.Join(record.Dir(), logFile))
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log := setupLogger(cfg, logOut).With("run", record.ID())
	log.Info("run started", "config", configFile, "data", record.Dir())

	interactions, runErr := cfg.BuildInteractions(log)
	if runErr == nil {
		runErr = optimize(cmd.Context(), cfg, interactions, record, log)
	}
	if err := record.Finish(runErr); err != nil {
		log.Error("failed to finalize run record", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	out := filepath.Join(record.Dir(), "potentials")
	fmt.Printf("\nrun %s complete; potentials saved to %s\n\n", record.ID(), out)
	for _, in := range interactions {
		f := in.Base()
		if !f.IsOptimized() {
			continue
		}
		if err := f.PlotPotential(os.Stdout); err != nil {
			return err
		}
		for _, id := range f.StateIDs() {
			if err := f.PlotFitScores(os.Stdout, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func optimize(ctx context.Context, cfg *config.Config, interactions []forces.Interaction, record *storage.Run, log *slog.Logger) error {
	states, err := buildStates(cfg, log)
	if err != nil {
		return err
	}

	engine := sim.NewCommandEngine(cfg.Engine.Command, log)
	source := analysis.NewCommandSource(cfg.Analyzer.Command, log)
	opt, err := optimizer.New(cfg.RunParams(), engine, source, cfg.OptimizerOptions(log))
	if err != nil {
		return err
	}
	for _, s := range states {
		if err := opt.AddState(s); err != nil {
			return err
		}
	}
	for _, in := range interactions {
		if err := opt.AddForce(in); err != nil {
			return err
		}
	}
	opt.AddObserver(record)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	n := cfg.Optimization.NIterations
	steps := cfg.Engine.NSteps
	if live {
		ids := make([]string, len(states))
		for i, s := range states {
			ids[i] = s.ID()
		}
		err = tui.Run(ctx, cfg.Name, n, ids, func(ctx context.Context, p *tui.Progress) error {
			opt.AddObserver(p)
			opt.AddRunObserver(p)
			return opt.RunOptimization(ctx, steps, n)
		}, tea.WithAltScreen())
	} else {
		opt.AddObserver(optimizer.ObserverFunc(func(r optimizer.Report) {
			fmt.Print(viz.RenderReport(r))
		}))
		err = opt.RunOptimization(ctx, steps, n)
	}

	if opt.Iteration() > 0 {
		dir := filepath.Join(record.Dir(), "potentials")
		if saveErr := opt.SavePotentials(dir); saveErr != nil {
			log.Error("failed to save potentials", "error", saveErr)
		} else if plotErr := writePotentialPlots(dir, interactions); plotErr != nil {
			log.Warn("failed to write potential plots", "error", plotErr)
		}
	}
	return err
}

func writePotentialPlots(dir string, interactions []forces.Interaction) error {
	for _, in := range interactions {
		f := in.Base()
		if !f.IsOptimized() {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.svg", f.Kind(), f.Name()))
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		err = export.CurvesToSVG(out, export.HistoryCurves(f.XRange(), f.PotentialHistory()), 800, 400)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("plot %s: %w", f, err)
		}
	}
	return nil
}
