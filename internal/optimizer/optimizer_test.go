package optimizer_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/msibi/internal/analysis"
	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
	"github.com/san-kum/msibi/internal/optimizer"
	"github.com/san-kum/msibi/internal/sim"
	"github.com/san-kum/msibi/internal/state"
)

// fakeSource returns a gaussian over the requested grid. Query trajectories
// are shifted by shift relative to the target.
type fakeSource struct {
	mu     sync.Mutex
	shift  float64
	failOn string
	calls  []analysis.Request
}

func (s *fakeSource) Distribution(_ context.Context, req analysis.Request) ([]float64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.failOn != "" && strings.Contains(req.Trajectory, s.failOn) {
		return nil, fmt.Errorf("analysis of %s failed", req.Trajectory)
	}

	center := (req.XMin + req.XMax) / 2
	if filepath.Base(req.Trajectory) == state.QueryFile {
		center += s.shift
	}
	sigma := (req.XMax - req.XMin) / 8
	dx := (req.XMax - req.XMin) / float64(req.NBins)
	p := make([]float64, req.NBins+1)
	for i := range p {
		x := req.XMin + float64(i)*dx
		p[i] = math.Exp(-(x - center) * (x - center) / (2 * sigma * sigma))
	}
	return p, nil
}

func touchEngine() sim.Engine {
	return sim.EngineFunc(func(_ context.Context, job sim.Job) error {
		return os.WriteFile(job.Output, []byte(job.StateID), 0644)
	})
}

func newState(root, name string, kT float64, backup bool) *state.State {
	s, err := state.New(state.Config{
		Name:             name,
		KT:               kT,
		TrajFile:         filepath.Join(root, name+".gsd"),
		Alpha:            1,
		BackupTrajectory: backup,
		Root:             root,
	})
	Expect(err).NotTo(HaveOccurred())
	return s
}

func newTableBond(t1, t2 string, nbins int) *forces.Bond {
	b, err := forces.NewBond(t1, t2, forces.Options{Optimize: true, NBins: nbins})
	Expect(err).NotTo(HaveOccurred())
	Expect(b.SetQuadratic(1.5, 5, 0, 0, 0.5, 2.5)).To(Succeed())
	return b
}

var _ = Describe("Optimizer", func() {
	var (
		root   string
		source *fakeSource
		params state.RunParams
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		source = &fakeSource{shift: 0.1}
		params = state.DefaultRunParams()
	})

	newOptimizer := func(engine sim.Engine, opts optimizer.Options) *optimizer.Optimizer {
		o, err := optimizer.New(params, engine, source, opts)
		Expect(err).NotTo(HaveOccurred())
		return o
	}

	Describe("registration", func() {
		It("attaches states and interactions regardless of order", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			a := newState(root, "A", 1.0, false)
			b := newState(root, "B", 4.0, false)
			bond := newTableBond("A", "B", 40)

			Expect(o.AddState(a)).To(Succeed())
			Expect(o.AddForce(bond)).To(Succeed())
			Expect(o.AddState(b)).To(Succeed())

			Expect(bond.StateIDs()).To(Equal([]string{"A_1.0", "B_4.0"}))
		})

		It("rejects duplicate states and interactions", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			a := newState(root, "A", 1.0, false)
			bond := newTableBond("A", "B", 40)
			Expect(o.AddState(a)).To(Succeed())
			Expect(o.AddForce(bond)).To(Succeed())

			Expect(o.AddState(a)).To(MatchError(ibi.ErrConfig))
			Expect(o.AddForce(newTableBond("B", "A", 40))).To(MatchError(ibi.ErrConfig))
		})

		It("rejects optimized interactions without a table", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			b, err := forces.NewBond("A", "A", forces.Options{Optimize: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(o.AddForce(b)).To(MatchError(ibi.ErrUsage))
		})

		It("rejects interactions without parameters", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			b, err := forces.NewBond("A", "B", forces.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(o.AddForce(b)).To(MatchError(ibi.ErrUsage))
			Expect(o.Interactions()).To(BeEmpty())
		})

		It("rejects interactions attached to states it does not know", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			bond := newTableBond("A", "B", 40)
			Expect(bond.AddState(forces.StateInfo{ID: "Z_1.0", KT: 1, Alpha: 1})).To(Succeed())

			Expect(o.AddForce(bond)).To(MatchError(ibi.ErrUsage))
			Expect(bond.StateIDs()).To(Equal([]string{"Z_1.0"}))
		})

		It("keeps interactions it already attached to the optimizer's states", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			a := newState(root, "A", 1.0, false)
			Expect(o.AddState(a)).To(Succeed())
			bond := newTableBond("A", "B", 40)
			Expect(bond.AddState(a.Info())).To(Succeed())

			Expect(o.AddForce(bond)).To(Succeed())
			Expect(bond.StateIDs()).To(Equal([]string{"A_1.0"}))
		})

		It("detaches a state from every interaction when adding it fails", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			first := newTableBond("A", "B", 40)
			second := newTableBond("A", "A", 40)
			Expect(o.AddForce(first)).To(Succeed())
			Expect(o.AddForce(second)).To(Succeed())

			a := newState(root, "A", 1.0, false)
			Expect(second.AddState(a.Info())).To(Succeed())

			Expect(o.AddState(a)).To(MatchError(ibi.ErrConfig))
			Expect(first.StateIDs()).To(BeEmpty())
			Expect(o.States()).To(BeEmpty())
		})

		It("validates options", func() {
			_, err := optimizer.New(params, touchEngine(), source, optimizer.Options{DensityThreshold: 2})
			Expect(err).To(MatchError(ibi.ErrConfig))
			_, err = optimizer.New(params, nil, source, optimizer.Options{})
			Expect(err).To(MatchError(ibi.ErrConfig))
		})
	})

	Describe("RunOptimization", func() {
		It("optimizes a bond against two states", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			a := newState(root, "A", 1.0, false)
			b := newState(root, "B", 4.0, false)
			bond := newTableBond("A", "B", 60)
			Expect(o.AddState(a)).To(Succeed())
			Expect(o.AddState(b)).To(Succeed())
			Expect(o.AddForce(bond)).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 1000, 1)).To(Succeed())

			Expect(bond.Potential()).To(HaveLen(61))
			Expect(bond.PotentialHistory()).To(HaveLen(1))
			for _, id := range []string{a.ID(), b.ID()} {
				scores, err := bond.FitScores(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(scores).To(HaveLen(1))
				Expect(scores[0]).To(BeNumerically(">", 0))
				Expect(scores[0]).To(BeNumerically("<", 1))
			}

			script, err := os.ReadFile(a.RunscriptPath())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(script)).To(ContainSubstring("hoomd.run(1000)"))
			Expect(string(script)).To(ContainSubstring("kT=1.0"))
		})

		It("records one score per state and one potential per iteration", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{Parallel: 2})
			states := []*state.State{newState(root, "A", 1.0, true), newState(root, "B", 2.0, false)}
			bond := newTableBond("A", "A", 50)
			for _, s := range states {
				Expect(o.AddState(s)).To(Succeed())
			}
			Expect(o.AddForce(bond)).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 100, 2)).To(Succeed())
			Expect(o.RunOptimization(context.Background(), 100, 1)).To(Succeed())

			Expect(o.Iteration()).To(Equal(3))
			Expect(bond.PotentialHistory()).To(HaveLen(3))
			for _, s := range states {
				scores, err := bond.FitScores(s.ID())
				Expect(err).NotTo(HaveOccurred())
				Expect(scores).To(HaveLen(3))
			}
			Expect(states[0].BackupPath(0)).To(BeAnExistingFile())
			Expect(states[0].BackupPath(1)).To(BeAnExistingFile())
		})

		It("computes target distributions once", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 30))).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 10, 3)).To(Succeed())

			targets := 0
			for _, req := range source.calls {
				if filepath.Base(req.Trajectory) == "A.gsd" {
					targets++
				}
			}
			Expect(targets).To(Equal(1))
			Expect(source.calls).To(HaveLen(4))
		})

		It("leaves the potential unchanged when distributions already match", func() {
			source.shift = 0
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			bond := newTableBond("A", "A", 40)
			Expect(o.AddForce(bond)).To(Succeed())
			initial := bond.Potential()

			Expect(o.RunOptimization(context.Background(), 10, 1)).To(Succeed())

			got := bond.Potential()
			for i := range initial {
				Expect(got[i]).To(BeNumerically("~", initial[i], 1e-8))
			}
			scores, err := bond.FitScores("A_1.0")
			Expect(err).NotTo(HaveOccurred())
			Expect(scores[0]).To(BeNumerically("~", 1, 1e-12))
		})

		It("holds static interactions fixed", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			static, err := forces.NewBond("A", "B", forces.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(static.SetHarmonic(100, 1)).To(Succeed())
			Expect(o.AddForce(static)).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 40))).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 10, 2)).To(Succeed())

			p, err := static.StaticParams()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.K).To(Equal(100.0))
			_, err = static.FitScores("A_1.0")
			Expect(err).To(MatchError(ibi.ErrUsage))
		})

		It("notifies observers after every iteration", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 40))).To(Succeed())

			var reports []optimizer.Report
			o.AddObserver(optimizer.ObserverFunc(func(r optimizer.Report) {
				reports = append(reports, r)
			}))

			Expect(o.RunOptimization(context.Background(), 10, 3)).To(Succeed())

			Expect(reports).To(HaveLen(3))
			for i, r := range reports {
				Expect(r.Iteration).To(Equal(i))
				Expect(r.Scores).To(HaveKey("bond A-A"))
				Expect(r.Mean).To(BeNumerically(">", 0))
			}
		})

		It("stops early once converged", func() {
			source.shift = 0
			o := newOptimizer(touchEngine(), optimizer.Options{
				Convergence: optimizer.ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01},
			})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 40))).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 10, 10)).To(Succeed())
			Expect(o.Converged()).To(BeTrue())
			Expect(o.Iteration()).To(Equal(3))
		})

		It("waits out the full patience again on the next call", func() {
			source.shift = 0
			o := newOptimizer(touchEngine(), optimizer.Options{
				Convergence: optimizer.ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01},
			})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 40))).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 10, 10)).To(Succeed())
			Expect(o.RunOptimization(context.Background(), 10, 10)).To(Succeed())
			Expect(o.Converged()).To(BeTrue())
			Expect(o.Iteration()).To(Equal(6))
		})

		It("reports the best mean fit score of the call", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 40))).To(Succeed())

			var reports []optimizer.Report
			o.AddObserver(optimizer.ObserverFunc(func(r optimizer.Report) {
				reports = append(reports, r)
			}))
			Expect(o.RunOptimization(context.Background(), 10, 3)).To(Succeed())

			best := 0.0
			for _, r := range reports {
				best = math.Max(best, r.Mean)
				Expect(r.Best).To(Equal(best))
			}
		})

		It("saves potentials and histories", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "B", 40))).To(Succeed())
			Expect(o.RunOptimization(context.Background(), 10, 2)).To(Succeed())

			out := filepath.Join(root, "potentials")
			Expect(o.SavePotentials(out)).To(Succeed())
			Expect(filepath.Join(out, "bond_A-B.csv")).To(BeAnExistingFile())

			history, err := forces.LoadPotentialHistory(filepath.Join(out, "bond_A-B_history.json"))
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0]).To(HaveLen(41))
		})

		It("rejects invalid arguments", func() {
			o := newOptimizer(touchEngine(), optimizer.Options{})
			Expect(o.RunOptimization(context.Background(), 10, 1)).To(MatchError(ibi.ErrUsage))
			Expect(o.AddState(newState(root, "A", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("A", "A", 40))).To(Succeed())
			Expect(o.RunOptimization(context.Background(), 0, 1)).To(MatchError(ibi.ErrConfig))
			Expect(o.RunOptimization(context.Background(), 10, 0)).To(MatchError(ibi.ErrConfig))
		})
	})

	Describe("failed iterations", func() {
		var (
			a, b *state.State
			bond *forces.Bond
		)

		setup := func(engine sim.Engine) *optimizer.Optimizer {
			o := newOptimizer(engine, optimizer.Options{})
			a = newState(root, "A", 1.0, false)
			b = newState(root, "B", 4.0, false)
			bond = newTableBond("A", "B", 60)
			Expect(o.AddState(a)).To(Succeed())
			Expect(o.AddState(b)).To(Succeed())
			Expect(o.AddForce(bond)).To(Succeed())
			return o
		}

		expectNothingCommitted := func(o *optimizer.Optimizer, initial []float64) {
			Expect(o.Iteration()).To(Equal(0))
			Expect(bond.PotentialHistory()).To(BeEmpty())
			Expect(bond.Potential()).To(Equal(initial))
			for _, id := range []string{a.ID(), b.ID()} {
				scores, err := bond.FitScores(id)
				Expect(err).NotTo(HaveOccurred())
				Expect(scores).To(BeEmpty())
			}
		}

		It("commits nothing when the engine fails for one state", func() {
			touch := touchEngine()
			o := setup(sim.EngineFunc(func(ctx context.Context, job sim.Job) error {
				if job.StateID == "B_4.0" {
					return fmt.Errorf("%w: exit status 1", ibi.ErrEngine)
				}
				return touch.Run(ctx, job)
			}))
			initial := bond.Potential()

			err := o.RunOptimization(context.Background(), 100, 1)
			Expect(err).To(MatchError(ibi.ErrEngine))

			var iterErr *ibi.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())
			Expect(iterErr.Iteration).To(Equal(0))
			Expect(iterErr.State).To(Equal("B_4.0"))

			expectNothingCommitted(o, initial)
		})

		It("commits nothing when analysis of the last state fails", func() {
			o := setup(touchEngine())
			initial := bond.Potential()
			source.failOn = filepath.Join("B_4.0", state.QueryFile)

			err := o.RunOptimization(context.Background(), 100, 1)
			var iterErr *ibi.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())
			Expect(iterErr.State).To(Equal("B_4.0"))

			expectNothingCommitted(o, initial)
		})

		It("commits no interaction when a later one cannot take the update", func() {
			o := setup(touchEngine())
			other := newTableBond("A", "A", 40)
			Expect(o.AddForce(other)).To(Succeed())
			Expect(other.AddState(forces.StateInfo{ID: "Z_1.0", KT: 1, Alpha: 1})).To(Succeed())
			initial := bond.Potential()

			err := o.RunOptimization(context.Background(), 100, 1)
			Expect(err).To(MatchError(ibi.ErrUsage))
			var iterErr *ibi.IterationError
			Expect(errors.As(err, &iterErr)).To(BeTrue())

			expectNothingCommitted(o, initial)
			Expect(other.PotentialHistory()).To(BeEmpty())
		})

		It("reports a zero target distribution", func() {
			o, err := optimizer.New(params, touchEngine(), zeroSource{}, optimizer.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(o.AddState(newState(root, "C", 1.0, false))).To(Succeed())
			Expect(o.AddForce(newTableBond("C", "C", 20))).To(Succeed())

			Expect(o.RunOptimization(context.Background(), 10, 1)).To(MatchError(ibi.ErrZeroDistribution))
		})
	})
})

type zeroSource struct{}

func (zeroSource) Distribution(_ context.Context, req analysis.Request) ([]float64, error) {
	return make([]float64, req.NBins+1), nil
}
