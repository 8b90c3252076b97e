package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/msibi/internal/viz"
)

var (
	dataDir    string
	logLevel   string
	logFormat  string
	theme      string
	configFile string
	preset     string
	live       bool
	iterations int
	nSteps     int
	parallel   int
	stateName  string
	iteration  int
	plotHeight int
	plotWidth  int
)

// main registers the msibi commands and exits with status 1 when the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "msibi",
		Short:         "multistate iterative boltzmann inversion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			viz.SetTheme(theme)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".msibi", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json); overrides the config")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "default", "color theme")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run an optimization",
		Args:  cobra.NoArgs,
		RunE:  runOptimization,
	}
	runCmd.Flags().StringVarP(&configFile, "config", "c", "msibi.yaml", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "engine preset")
	runCmd.Flags().BoolVar(&live, "live", false, "show a live progress view")
	runCmd.Flags().IntVar(&iterations, "iterations", 0, "number of iterations; overrides the config")
	runCmd.Flags().IntVar(&nSteps, "n-steps", 0, "engine steps per iteration; overrides the config")
	runCmd.Flags().IntVar(&parallel, "parallel", 0, "states run concurrently; overrides the config")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check a config file",
		Args:  cobra.NoArgs,
		RunE:  validateConfig,
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "msibi.yaml", "config file path (yaml)")

	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "print the engine run script generated for a state",
		Args:  cobra.NoArgs,
		RunE:  printScript,
	}
	scriptCmd.Flags().StringVarP(&configFile, "config", "c", "msibi.yaml", "config file path (yaml)")
	scriptCmd.Flags().StringVar(&preset, "preset", "", "engine preset")
	scriptCmd.Flags().StringVar(&stateName, "state", "", "state name (default: first state)")
	scriptCmd.Flags().IntVar(&iteration, "iteration", 0, "iteration number used in table file names")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the fit scores of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and fit scores as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list engine presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, validateCmd, scriptCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, viz.StatusFail.Render("error:"), err)
		os.Exit(1)
	}
}
