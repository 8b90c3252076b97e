// Package tui shows a running optimization as a live terminal view.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/msibi/internal/optimizer"
	"github.com/san-kum/msibi/internal/sim"
	"github.com/san-kum/msibi/internal/viz"
)

const (
	barWidth   = 40
	plotWidth  = 60
	plotHeight = 8
	sparkWidth = 30
)

type (
	iterationMsg optimizer.Report
	jobMsg       sim.Result
	doneMsg      struct{ err error }
	tickMsg      time.Time
)

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type jobStatus int

const (
	jobPending jobStatus = iota
	jobOK
	jobFailed
)

// Model is the bubbletea model of the live view.
type Model struct {
	title   string
	total   int
	states  []string
	cancel  context.CancelFunc
	started time.Time

	iteration  int
	jobs       map[string]jobStatus
	series     map[string][]float64
	potentials map[string][]float64
	last       optimizer.Report
	frame      int

	done     bool
	quitting bool
	err      error
}

func NewModel(title string, total int, states []string, cancel context.CancelFunc) Model {
	m := Model{
		title:      title,
		total:      total,
		states:     append([]string(nil), states...),
		cancel:     cancel,
		started:    time.Now(),
		series:     make(map[string][]float64),
		potentials: make(map[string][]float64),
	}
	m.resetJobs()
	return m
}

func (m *Model) resetJobs() {
	m.jobs = make(map[string]jobStatus, len(m.states))
	for _, id := range m.states {
		m.jobs[id] = jobPending
	}
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case jobMsg:
		status := jobOK
		if msg.Err != nil {
			status = jobFailed
		}
		m.jobs[msg.StateID] = status
	case iterationMsg:
		r := optimizer.Report(msg)
		m.last = r
		m.iteration = r.Iteration + 1
		for name, byState := range r.Scores {
			for id, score := range byState {
				key := name + " @ " + id
				m.series[key] = append(m.series[key], score)
			}
		}
		for name, u := range r.Potentials {
			m.potentials[name] = u
		}
		m.resetJobs()
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		m.frame++
		if !m.done {
			return m, tick()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	status := viz.Spinner(m.frame) + " running"
	switch {
	case m.err != nil:
		status = viz.StatusFail.Render("failed")
	case m.last.Converged:
		status = viz.StatusOK.Render("converged")
	case m.done:
		status = viz.StatusOK.Render("done")
	case m.quitting:
		status = viz.StatusWarn.Render("cancelling")
	}
	fmt.Fprintf(&b, "%s  %s  %s\n\n", viz.Title.Render(m.title), status,
		viz.Subtle.Render(time.Since(m.started).Round(time.Second).String()))

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.iteration) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s %s %d/%d\n", viz.MetricLabel.Render("iterations"), viz.ProgressBar(pct, barWidth), m.iteration, m.total)
	if m.iteration > 0 {
		fmt.Fprintf(&b, "%s %s\n", viz.MetricLabel.Render("mean fit  "), viz.MetricValue.Render(fmt.Sprintf("%.4f", m.last.Mean)))
	}

	b.WriteString("\n" + viz.MetricLabel.Render("engine") + "\n")
	for _, id := range m.states {
		mark := viz.Subtle.Render("·")
		switch m.jobs[id] {
		case jobOK:
			mark = viz.StatusOK.Render("✓")
		case jobFailed:
			mark = viz.StatusFail.Render("✗")
		}
		fmt.Fprintf(&b, "  %s %s\n", mark, id)
	}

	if len(m.series) > 0 {
		b.WriteString("\n" + viz.MetricLabel.Render("fit scores") + "\n")
		for _, key := range sortedKeys(m.series) {
			s := m.series[key]
			fmt.Fprintf(&b, "  %-28s %s %.4f\n", key, viz.Sparkline(s, sparkWidth), s[len(s)-1])
		}
	}

	for _, name := range sortedKeys(m.potentials) {
		b.WriteString("\n" + viz.MetricLabel.Render("potential "+name) + "\n")
		b.WriteString(viz.PlotCurve(m.potentials[name], plotWidth, plotHeight, 0, 0))
	}

	if m.err != nil {
		b.WriteString("\n" + viz.StatusFail.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + viz.Subtle.Render("q: stop") + "\n")
	return b.String()
}

// Err is the error the optimization finished with.
func (m Model) Err() error { return m.err }

// Progress forwards optimizer and engine events to a running program.
type Progress struct {
	program *tea.Program
}

func (p *Progress) OnIteration(r optimizer.Report) { p.program.Send(iterationMsg(r)) }
func (p *Progress) OnJobDone(r sim.Result)         { p.program.Send(jobMsg(r)) }

var (
	_ optimizer.Observer = (*Progress)(nil)
	_ sim.Observer       = (*Progress)(nil)
)

// Run shows the live view while fn executes. Quitting the view cancels the
// context passed to fn; Run waits for fn to return either way.
func Run(ctx context.Context, title string, total int, states []string, fn func(ctx context.Context, p *Progress) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewModel(title, total, states, cancel), opts...)
	progress := &Progress{program: program}

	errCh := make(chan error, 1)
	go func() {
		err := fn(ctx, progress)
		errCh <- err
		program.Send(doneMsg{err: err})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("live view: %w", err)
	}
	cancel()
	return <-errCh
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
