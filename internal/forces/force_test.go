package forces_test

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
)

func newBond(optimize bool) *forces.Bond {
	b, err := forces.NewBond("A", "A", forces.Options{Optimize: optimize, NBins: 100})
	Expect(err).NotTo(HaveOccurred())
	return b
}

func newAngle(optimize bool) *forces.Angle {
	a, err := forces.NewAngle("A", "B", "A", forces.Options{Optimize: optimize, NBins: 100})
	Expect(err).NotTo(HaveOccurred())
	return a
}

var _ = Describe("Force", func() {
	Describe("tabulated potentials", func() {
		It("derives dx from the range and bin count", func() {
			b := newBond(false)
			Expect(b.SetQuadratic(2, 1, 1, 1, 1, 3)).To(Succeed())
			Expect(b.DX()).To(BeNumerically("~", 0.02, 1e-12))
		})

		It("stores a copy of a new potential", func() {
			b := newBond(true)
			Expect(b.SetQuadratic(2, 100, 0, 0, 1, 3)).To(Succeed())
			initial := b.Potential()

			doubled := make([]float64, len(initial))
			for i, v := range initial {
				doubled[i] = 2 * v
			}
			Expect(b.SetPotential(doubled)).To(Succeed())
			doubled[0] = -1

			got := b.Potential()
			Expect(got[0]).To(BeNumerically("~", 2*initial[0], 1e-12))
			Expect(b.Format()).To(Equal(forces.FormatTable))
		})

		It("rejects potentials of the wrong length", func() {
			b := newBond(true)
			Expect(b.SetQuadratic(2, 100, 0, 0, 1, 3)).To(Succeed())
			Expect(b.SetPotential([]float64{1, 2, 3})).To(MatchError(ibi.ErrConfig))
		})

		It("rejects setting a potential on a static interaction", func() {
			b := newBond(false)
			Expect(b.SetHarmonic(500, 2)).To(Succeed())
			Expect(b.SetPotential([]float64{1, 2, 3})).To(MatchError(ibi.ErrUsage))
		})

		It("computes the force as the negative derivative", func() {
			b := newBond(false)
			Expect(b.SetQuadratic(1.5, 300, 0, 0, 0, 3)).To(Succeed())
			x := b.XRange()
			f := b.ForceCurve()
			for i := range x {
				Expect(f[i]).To(BeNumerically("~", -600*(x[i]-1.5), 1e-9))
			}
		})

		It("rejects an empty range", func() {
			b := newBond(true)
			Expect(b.SetQuadratic(1, 1, 0, 0, 3, 3)).To(MatchError(ibi.ErrConfig))
		})
	})

	Describe("smoothing", func() {
		It("changes a noisy curve", func() {
			b := newBond(true)
			Expect(b.SetQuadratic(2, 100, 0, 0, 1, 3)).To(Succeed())

			rng := rand.New(rand.NewSource(42))
			noisy := b.Potential()
			for i := range noisy {
				noisy[i] += rng.NormFloat64() * 0.5
			}
			Expect(b.SetPotential(noisy)).To(Succeed())
			Expect(b.SetSmoothingWindow(5)).To(Succeed())
			Expect(b.SmoothPotential()).To(Succeed())
			Expect(b.SmoothingWindow()).To(Equal(5))

			smoothed := b.Potential()
			changed := 0
			for i := range smoothed {
				if smoothed[i] != noisy[i] {
					changed++
				}
			}
			Expect(changed).To(BeNumerically(">", 0))
		})

		It("reduces noise monotonically", func() {
			b := newBond(true)
			Expect(b.SetQuadratic(2, 100, 0, 0, 1, 3)).To(Succeed())

			rng := rand.New(rand.NewSource(3))
			noisy := b.Potential()
			for i := range noisy {
				noisy[i] += rng.NormFloat64()
			}
			Expect(b.SetPotential(noisy)).To(Succeed())

			Expect(b.SmoothPotential()).To(Succeed())
			once := b.Potential()
			Expect(b.SmoothPotential()).To(Succeed())
			twice := b.Potential()

			var first, second float64
			for i := range noisy {
				first += math.Abs(once[i] - noisy[i])
				second += math.Abs(twice[i] - once[i])
			}
			Expect(second).To(BeNumerically("<", first))
		})
	})

	Describe("property validation", func() {
		It("accepts valid settings", func() {
			b := newBond(false)
			Expect(b.SetSmoothingWindow(5)).To(Succeed())
			Expect(b.SetSmoothingOrder(3)).To(Succeed())
			Expect(b.SmoothingOrder()).To(Equal(3))
			Expect(b.SetNBins(60)).To(Succeed())
			Expect(b.NBins()).To(Equal(60))
		})

		DescribeTable("rejects invalid settings immediately",
			func(apply func(*forces.Bond) error) {
				Expect(apply(newBond(false))).To(MatchError(ibi.ErrConfig))
			},
			Entry("zero window", func(b *forces.Bond) error { return b.SetSmoothingWindow(0) }),
			Entry("even window", func(b *forces.Bond) error { return b.SetSmoothingWindow(4) }),
			Entry("window not above order", func(b *forces.Bond) error { return b.SetSmoothingWindow(1) }),
			Entry("zero order", func(b *forces.Bond) error { return b.SetSmoothingOrder(0) }),
			Entry("order not below window", func(b *forces.Bond) error { return b.SetSmoothingOrder(7) }),
			Entry("zero bins", func(b *forces.Bond) error { return b.SetNBins(0) }),
			Entry("negative bins", func(b *forces.Bond) error { return b.SetNBins(-5) }),
		)

		It("fixes the bin count once tabulated", func() {
			b := newBond(true)
			Expect(b.SetQuadratic(1, 1, 0, 0, 0, 2)).To(Succeed())
			Expect(b.SetNBins(50)).To(MatchError(ibi.ErrUsage))
			Expect(b.SetNBins(100)).To(Succeed())
		})
	})

	Describe("static interactions", func() {
		var angle *forces.Angle

		BeforeEach(func() {
			angle = newAngle(false)
			Expect(angle.SetHarmonic(500, 2)).To(Succeed())
		})

		It("refuses tabulated-only operations", func() {
			Expect(angle.SmoothPotential()).To(MatchError(ibi.ErrUsage))
			Expect(angle.SavePotential(filepath.Join(GinkgoT().TempDir(), "a.csv"))).To(MatchError(ibi.ErrUsage))
			Expect(angle.SavePotentialHistory(filepath.Join(GinkgoT().TempDir(), "h.json"))).To(MatchError(ibi.ErrUsage))
			Expect(angle.AddState(forces.StateInfo{ID: "X_1.0", KT: 1, Alpha: 1})).To(Succeed())
			Expect(angle.PlotFitScores(&bytes.Buffer{}, "X_1.0")).To(MatchError(ibi.ErrUsage))
			_, err := angle.FitScores("X_1.0")
			Expect(err).To(MatchError(ibi.ErrUsage))
		})

		It("cannot become a table", func() {
			Expect(angle.SetQuadratic(2, 100, 0, 0, 0, math.Pi)).To(MatchError(ibi.ErrUsage))
		})

		It("reconstructs a lossy curve from its parameters", func() {
			u := angle.Potential()
			Expect(u).To(HaveLen(angle.NBins() + 1))
			x := angle.XRange()
			Expect(x[0]).To(BeNumerically("~", 0, 1e-12))
			Expect(x[len(x)-1]).To(BeNumerically("~", math.Pi, 1e-12))
			Expect(angle.ForceCurve()).To(HaveLen(angle.NBins() + 1))
		})

		It("exposes its analytic parameters", func() {
			p, err := angle.StaticParams()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.K).To(Equal(500.0))
			Expect(p.X0).To(Equal(2.0))
		})

		It("is rejected when marked for optimization", func() {
			a := newAngle(true)
			Expect(a.SetHarmonic(500, 2)).To(MatchError(ibi.ErrUsage))
		})

		It("cannot be set over an existing table", func() {
			b := newBond(false)
			Expect(b.SetQuadratic(1, 1, 0, 0, 0, 2)).To(Succeed())
			Expect(b.SetHarmonic(500, 1)).To(MatchError(ibi.ErrUsage))
		})

		It("gives states attached before configuration the new parameters", func() {
			b := newBond(false)
			Expect(b.AddState(forces.StateInfo{ID: "X_1.0", KT: 1, Alpha: 1})).To(Succeed())
			Expect(b.SetHarmonic(500, 2)).To(Succeed())

			p, err := b.StaticParamsFor("X_1.0")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.K).To(Equal(500.0))
			Expect(p.X0).To(Equal(2.0))
		})

		It("rejects non-finite parameters", func() {
			Expect(newBond(false).SetHarmonic(math.NaN(), 1)).To(MatchError(ibi.ErrConfig))
			Expect(newBond(false).SetHarmonic(500, math.Inf(1))).To(MatchError(ibi.ErrConfig))
		})
	})

	Describe("file round trips", func() {
		It("reloads a saved potential", func() {
			path := filepath.Join(GinkgoT().TempDir(), "test.csv")

			b1, err := forces.NewBond("A", "B", forces.Options{Optimize: true, NBins: 60})
			Expect(err).NotTo(HaveOccurred())
			Expect(b1.SetQuadratic(1, 200, 0, 0, 0, 3)).To(Succeed())
			Expect(b1.SavePotential(path)).To(Succeed())

			b2, err := forces.NewBond("A", "B", forces.Options{Optimize: true, NBins: 60})
			Expect(err).NotTo(HaveOccurred())
			Expect(b2.SetFromFile(path)).To(Succeed())

			p1, p2 := b1.Potential(), b2.Potential()
			Expect(p2).To(HaveLen(len(p1)))
			for i := range p1 {
				Expect(p2[i]).To(BeNumerically("~", p1[i], 1e-9))
			}
			Expect(b2.DX()).To(BeNumerically("~", b1.DX(), 1e-12))
		})

		It("infers the bin count from the file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "table.txt")
			Expect(os.WriteFile(path, []byte("0 4\n0.5 1\n1.0 0\n1.5 1\n2.0 4\n"), 0644)).To(Succeed())

			b := newBond(true)
			Expect(b.SetFromFile(path)).To(Succeed())
			Expect(b.NBins()).To(Equal(4))
			Expect(b.ForceCurve()[2]).To(BeNumerically("~", 0, 1e-12))
		})

		It("rejects unevenly spaced tables", func() {
			path := filepath.Join(GinkgoT().TempDir(), "table.txt")
			Expect(os.WriteFile(path, []byte("0 4\n0.5 1\n1.2 0\n"), 0644)).To(Succeed())
			Expect(newBond(true).SetFromFile(path)).To(MatchError(ibi.ErrConfig))
		})

		It("writes the engine table format", func() {
			path := filepath.Join(GinkgoT().TempDir(), "bond.txt")
			b := newBond(false)
			Expect(b.SetQuadratic(2, 1, 1, 1, 1, 3)).To(Succeed())
			Expect(b.WriteTable(path)).To(Succeed())

			c := newBond(false)
			Expect(c.SetFromFile(path)).To(Succeed())
			Expect(c.NBins()).To(Equal(100))
		})
	})

	Describe("per-state data", func() {
		var bond *forces.Bond

		BeforeEach(func() {
			var err error
			bond, err = forces.NewBond("A", "B", forces.Options{Optimize: true, NBins: 60})
			Expect(err).NotTo(HaveOccurred())
			Expect(bond.SetQuadratic(1, 200, 0, 0, 0, 3)).To(Succeed())
			Expect(bond.AddState(forces.StateInfo{ID: "X_1.0", KT: 1, Alpha: 1})).To(Succeed())
			Expect(bond.AddState(forces.StateInfo{ID: "Y_4.0", KT: 4, Alpha: 0.5})).To(Succeed())
		})

		It("keeps attach order and refuses duplicates", func() {
			Expect(bond.StateIDs()).To(Equal([]string{"X_1.0", "Y_4.0"}))
			Expect(bond.AddState(forces.StateInfo{ID: "X_1.0"})).To(MatchError(ibi.ErrConfig))
		})

		It("reports unattached states", func() {
			_, err := bond.FitScores("Z_2.0")
			Expect(err).To(MatchError(ibi.ErrUnattached))
			Expect(bond.PlotTargetDistribution(&bytes.Buffer{}, "Z_2.0")).To(MatchError(ibi.ErrUnattached))
		})

		It("commits one history entry and one score per state", func() {
			u := bond.Potential()
			Expect(bond.Commit(u, map[string]float64{"X_1.0": 0.8, "Y_4.0": 0.7})).To(Succeed())

			Expect(bond.PotentialHistory()).To(HaveLen(1))
			x, _ := bond.FitScores("X_1.0")
			y, _ := bond.FitScores("Y_4.0")
			Expect(x).To(Equal([]float64{0.8}))
			Expect(y).To(Equal([]float64{0.7}))
		})

		It("commits nothing when scores are incomplete", func() {
			Expect(bond.Commit(bond.Potential(), map[string]float64{"X_1.0": 0.8})).To(MatchError(ibi.ErrUsage))
			Expect(bond.Commit(bond.Potential(), map[string]float64{"X_1.0": 0.8, "Z_2.0": 0.1})).To(MatchError(ibi.ErrUnattached))
			Expect(bond.PotentialHistory()).To(BeEmpty())
			x, _ := bond.FitScores("X_1.0")
			Expect(x).To(BeEmpty())
		})

		It("checks an update without applying it", func() {
			u := bond.Potential()
			Expect(bond.CanCommit(u, map[string]float64{"X_1.0": 0.8, "Y_4.0": 0.7})).To(Succeed())
			Expect(bond.CanCommit(u[:10], map[string]float64{"X_1.0": 0.8, "Y_4.0": 0.7})).To(MatchError(ibi.ErrDimensionMismatch))
			Expect(bond.CanCommit(u, map[string]float64{"X_1.0": 0.8})).To(MatchError(ibi.ErrUsage))
			Expect(bond.PotentialHistory()).To(BeEmpty())
		})

		It("detaches states", func() {
			bond.RemoveState("X_1.0")
			bond.RemoveState("Z_2.0")
			Expect(bond.StateIDs()).To(Equal([]string{"Y_4.0"}))
			Expect(bond.HasState("X_1.0")).To(BeFalse())
			Expect(bond.Commit(bond.Potential(), map[string]float64{"Y_4.0": 0.5})).To(Succeed())
		})

		It("validates target distribution length", func() {
			Expect(bond.SetTargetDistribution("X_1.0", make([]float64, 10))).To(MatchError(ibi.ErrDimensionMismatch))
			Expect(bond.SetTargetDistribution("X_1.0", make([]float64, 61))).To(Succeed())
		})

		It("plots scores and targets", func() {
			target := make([]float64, 61)
			for i := range target {
				target[i] = math.Exp(-float64(i-20) * float64(i-20) / 20)
			}
			Expect(bond.SetTargetDistribution("X_1.0", target)).To(Succeed())
			Expect(bond.Commit(bond.Potential(), map[string]float64{"X_1.0": 0.8, "Y_4.0": 0.7})).To(Succeed())

			var buf bytes.Buffer
			Expect(bond.PlotFitScores(&buf, "X_1.0")).To(Succeed())
			Expect(bond.PlotTargetDistribution(&buf, "X_1.0")).To(Succeed())
			Expect(bond.PlotPotential(&buf)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("fit scores"))
			Expect(buf.String()).To(ContainSubstring("target distribution"))
		})

		It("saves the history with shape (iterations, nbins+1, 2)", func() {
			u := bond.Potential()
			scores := map[string]float64{"X_1.0": 0.5, "Y_4.0": 0.5}
			Expect(bond.Commit(u, scores)).To(Succeed())
			Expect(bond.Commit(u, scores)).To(Succeed())

			path := filepath.Join(GinkgoT().TempDir(), "history.json")
			Expect(bond.SavePotentialHistory(path)).To(Succeed())
			h, err := forces.LoadPotentialHistory(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(HaveLen(2))
			Expect(h[0]).To(HaveLen(61))
			Expect(h[1][60][0]).To(BeNumerically("~", 3.0, 1e-12))
		})
	})
})
