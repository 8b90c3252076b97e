package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/msibi/internal/optimizer"
	"github.com/san-kum/msibi/internal/storage"
)

const sparkWidth = 30

// RenderReport formats one committed iteration.
func RenderReport(r optimizer.Report) string {
	var b strings.Builder
	status := StatusOK.Render("✓")
	if r.Converged {
		status = StatusOK.Render("converged")
	}
	fmt.Fprintf(&b, "%s %s %s  %s %s  %s %s  %s\n",
		Title.Render(fmt.Sprintf("iteration %d", r.Iteration)),
		MetricLabel.Render("mean fit"),
		MetricValue.Render(fmt.Sprintf("%.4f", r.Mean)),
		MetricLabel.Render("best"),
		MetricValue.Render(fmt.Sprintf("%.4f", r.Best)),
		MetricLabel.Render("elapsed"),
		r.Elapsed.Round(time.Millisecond),
		status,
	)
	for _, name := range sortedKeys(r.Scores) {
		byState := r.Scores[name]
		parts := make([]string, 0, len(byState))
		for _, id := range sortedKeys(byState) {
			parts = append(parts, fmt.Sprintf("%s=%s", id, scoreStyle(byState[id]).Render(fmt.Sprintf("%.4f", byState[id]))))
		}
		fmt.Fprintf(&b, "  %-18s %s\n", name, strings.Join(parts, " "))
	}
	return b.String()
}

// RenderRunTable lists stored runs, newest last.
func RenderRunTable(runs []storage.RunMetadata) string {
	if len(runs) == 0 {
		return Subtle.Render("no runs recorded") + "\n"
	}

	header := fmt.Sprintf("%-36s  %-14s  %-16s  %5s  %8s  %s", "ID", "NAME", "STARTED", "ITERS", "MEAN FIT", "STATUS")
	lines := []string{Title.Render(header)}
	for _, r := range runs {
		lines = append(lines, fmt.Sprintf("%-36s  %-14s  %-16s  %5d  %8.4f  %s",
			r.ID,
			truncate(r.Name, 14),
			r.Started.Format("2006-01-02 15:04"),
			r.Iterations,
			r.MeanFitScore,
			runStatus(r),
		))
	}
	return strings.Join(lines, "\n") + "\n"
}

// RenderRunSummary shows a run's metadata and the fit score history of
// every interaction in every state.
func RenderRunSummary(meta storage.RunMetadata, series map[string][]float64) string {
	var rows []string
	rows = append(rows, Title.Render(meta.Name)+"  "+Subtle.Render(meta.ID))
	rows = append(rows, fmt.Sprintf("%s %d  %s %d  %s %.4f  %s %.4f  %s",
		MetricLabel.Render("iterations"), meta.Iterations,
		MetricLabel.Render("n_steps"), meta.NSteps,
		MetricLabel.Render("mean fit"), meta.MeanFitScore,
		MetricLabel.Render("best fit"), meta.BestFitScore,
		runStatus(meta),
	))
	if meta.Error != "" {
		rows = append(rows, StatusFail.Render(meta.Error))
	}

	if len(meta.States) > 0 {
		rows = append(rows, "", MetricLabel.Render("states"))
		for _, s := range meta.States {
			rows = append(rows, fmt.Sprintf("  %-12s kT=%-6g alpha=%g", s.ID, s.KT, s.Alpha))
		}
	}

	if len(series) > 0 {
		rows = append(rows, "", MetricLabel.Render("fit scores"))
		for _, key := range sortedKeys(series) {
			scores := series[key]
			last := scores[len(scores)-1]
			rows = append(rows, fmt.Sprintf("  %-28s %s %s",
				truncate(key, 28), Sparkline(scores, sparkWidth), scoreStyle(last).Render(fmt.Sprintf("%.4f", last))))
		}
	}

	return Panel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)) + "\n"
}

func runStatus(r storage.RunMetadata) string {
	switch {
	case r.Error != "":
		return StatusFail.Render("failed")
	case r.Finished.IsZero():
		return StatusWarn.Render("running")
	case r.Converged:
		return StatusOK.Render("converged")
	default:
		return StatusOK.Render("done")
	}
}

func scoreStyle(v float64) lipgloss.Style {
	switch {
	case v > 0.9:
		return SparkHigh
	case v > 0.6:
		return SparkMid
	default:
		return SparkLow
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
