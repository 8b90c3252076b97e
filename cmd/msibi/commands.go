package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/msibi/internal/config"
	"github.com/san-kum/msibi/internal/ibi"
	"github.com/san-kum/msibi/internal/state"
	"github.com/san-kum/msibi/internal/storage"
	"github.com/san-kum/msibi/internal/viz"
)

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	interactions, err := cfg.BuildInteractions(nil)
	if err != nil {
		return err
	}
	if err := cfg.RunParams().Validate(); err != nil {
		return err
	}

	fmt.Printf("%s %s\n\n", viz.StatusOK.Render("valid:"), configFile)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tKT\tALPHA\tTRAJECTORY")
	for _, s := range cfg.StateConfigs(nil) {
		fmt.Fprintf(w, "%s\t%g\t%g\t%s\n", state.DirName(s.Name, s.KT), s.KT, s.Alpha, s.TrajFile)
	}
	w.Flush()
	fmt.Println()

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTERACTION\tFORMAT\tOPTIMIZE\tBINS")
	for _, in := range interactions {
		f := in.Base()
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", f, f.Format(), f.Optimize(), f.NBins())
	}
	return w.Flush()
}

// printScript renders the run script of one state into a scratch root so
// the configured root is left untouched.
func printScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	interactions, err := cfg.BuildInteractions(nil)
	if err != nil {
		return err
	}
	params := cfg.RunParams()
	if err := params.Validate(); err != nil {
		return err
	}

	configs := cfg.StateConfigs(nil)
	sc := configs[0]
	if stateName != "" {
		found := false
		for _, c := range configs {
			if c.Name == stateName {
				sc, found = c, true
				break
			}
		}
		if !found {
			return ibi.Usagef("no state named %q in %s", stateName, configFile)
		}
	}

	root, err := os.MkdirTemp("", "msibi-script-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(root)

	sc.Root = root
	s, err := state.New(sc)
	if err != nil {
		return err
	}
	for _, in := range interactions {
		if err := in.Base().AddState(s.Info()); err != nil {
			return err
		}
	}
	if err := s.SaveRunscript(params, interactions, iteration); err != nil {
		return err
	}
	data, err := os.ReadFile(s.RunscriptPath())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	fmt.Print(viz.RenderRunTable(runs))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	rows, err := st.LoadScores(args[0])
	if err != nil {
		return err
	}
	series := storage.ScoreSeries(rows)

	fmt.Print(viz.RenderRunSummary(*meta, series))
	fmt.Println()

	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		data := series[k]
		if len(data) == 0 {
			continue
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption("fit score: "+k),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	return st.ExportJSON(os.Stdout, args[0])
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tINTEGRATOR\tSTEPS\tDT\tKWARGS")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%v\n", name, p.Integrator, p.NSteps, p.Dt, p.IntegratorKwargs)
	}
	return w.Flush()
}
