package forces_test

import (
	"math"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
)

var _ = Describe("Bond", func() {
	DescribeTable("names are independent of argument order",
		func(t1, t2, want string) {
			a, err := forces.NewBond(t1, t2, forces.Options{})
			Expect(err).NotTo(HaveOccurred())
			b, err := forces.NewBond(t2, t1, forces.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Name()).To(Equal(want))
			Expect(b.Name()).To(Equal(want))
		},
		Entry("letters", "B", "A", "A-B"),
		Entry("same type", "A", "A", "A-A"),
		Entry("natural numbers", "A10", "A2", "A2-A10"),
		Entry("case insensitive", "b", "A", "A-b"),
	)

	It("sets harmonic parameters", func() {
		b, err := forces.NewBond("A", "B", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.SetHarmonic(500, 2)).To(Succeed())
		Expect(b.Format()).To(Equal(forces.FormatStatic))
		p, _ := b.StaticParams()
		Expect(p.K).To(Equal(500.0))
		Expect(p.X0).To(Equal(2.0))
	})

	It("samples a quadratic over the full range", func() {
		b, err := forces.NewBond("A", "B", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.SetQuadratic(1.5, 300, 0, 0, 0, 3)).To(Succeed())
		Expect(b.Format()).To(Equal(forces.FormatTable))
		Expect(b.Potential()).To(HaveLen(b.NBins() + 1))
		x := b.XRange()
		Expect(x[0]).To(Equal(0.0))
		Expect(x[len(x)-1]).To(BeNumerically("~", 3.0, 1e-12))
	})
})

var _ = Describe("Angle", func() {
	It("keeps declared order", func() {
		a, err := forces.NewAngle("B", "A", "C", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Name()).To(Equal("B-A-C"))
		Expect(a.Optimize()).To(BeFalse())
		Expect(a.Kind()).To(Equal(forces.KindAngle))
	})

	It("samples a quadratic over [0, π]", func() {
		a, err := forces.NewAngle("A", "B", "A", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.SetQuadratic(2, 100, 0, 0, 0, math.Pi)).To(Succeed())
		x := a.XRange()
		Expect(x).To(HaveLen(a.NBins() + 1))
		Expect(x[0]).To(Equal(0.0))
		Expect(x[len(x)-1]).To(BeNumerically("~", math.Pi, 1e-3))
	})

	It("saves its table", func() {
		a, err := forces.NewAngle("A", "B", "A", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.SetQuadratic(2, 100, 0, 0, 0, math.Pi)).To(Succeed())
		path := filepath.Join(GinkgoT().TempDir(), "ABA_angle.csv")
		Expect(a.SavePotential(path)).To(Succeed())
		Expect(path).To(BeAnExistingFile())
	})
})

var _ = Describe("Pair", func() {
	It("sorts its types", func() {
		p, err := forces.NewPair("B", "A", 3.0, true, forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("A-B"))
		Expect(p.Types()).To(Equal([]string{"A", "B"}))
		Expect(p.ExcludeBonded).To(BeTrue())
	})

	It("tabulates Lennard-Jones", func() {
		p, err := forces.NewPair("A", "B", 3.0, false, forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.SetLJ(1.0, 1.0, 0.1, 3.0)).To(Succeed())
		Expect(p.Format()).To(Equal(forces.FormatTable))

		x := p.XRange()
		Expect(x[0]).To(BeNumerically("~", 0.1, 1e-12))
		Expect(x[len(x)-1]).To(BeNumerically("~", 3.0, 1e-12))
		Expect(p.Potential()).To(HaveLen(len(x)))
		Expect(p.ForceCurve()).To(HaveLen(len(x)))

		minIdx := 0
		u := p.Potential()
		for i := range u {
			if u[i] < u[minIdx] {
				minIdx = i
			}
		}
		Expect(x[minIdx]).To(BeNumerically("~", math.Pow(2, 1.0/6), 0.05))
	})

	It("rejects an invalid LJ range", func() {
		p, err := forces.NewPair("A", "B", 3.0, false, forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.SetLJ(1, 1, 0, 3)).To(MatchError(ibi.ErrConfig))
		Expect(p.SetLJ(1, 1, 2, 1)).To(MatchError(ibi.ErrConfig))
	})
})

var _ = Describe("Dihedral", func() {
	It("keeps declared order", func() {
		d, err := forces.NewDihedral("A", "B", "A", "B", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Name()).To(Equal("A-B-A-B"))
	})

	It("sets harmonic parameters", func() {
		d, err := forces.NewDihedral("A", "B", "A", "B", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.SetHarmonic(500, 0, -1, 1)).To(Succeed())
		p, err := d.StaticParams()
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(forces.StaticParams{K: 500, X0: 0, D: -1, N: 1}))
	})

	It("validates d and n", func() {
		d, err := forces.NewDihedral("A", "B", "A", "B", forces.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.SetHarmonic(500, 0, 2, 1)).To(MatchError(ibi.ErrConfig))
		Expect(d.SetHarmonic(500, 0, 1, 0)).To(MatchError(ibi.ErrConfig))
	})

	It("samples a quadratic over [-π, π]", func() {
		d, err := forces.NewDihedral("A", "B", "A", "B", forces.Options{Optimize: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.SetQuadratic(0, 100, 0, 0, -math.Pi, math.Pi)).To(Succeed())
		x := d.XRange()
		Expect(x).To(HaveLen(d.NBins() + 1))
		Expect(x[0]).To(BeNumerically("~", -math.Pi, 1e-3))
		Expect(x[len(x)-1]).To(BeNumerically("~", math.Pi, 1e-3))
	})
})

var _ = Describe("Build", func() {
	quad := &forces.Quadratic{X0: 1, K2: 200, XMin: 0, XMax: 3}

	DescribeTable("rejects ambiguous or incomplete definitions",
		func(def forces.Definition) {
			_, err := forces.Build(def)
			Expect(err).To(MatchError(ibi.ErrConfig))
		},
		Entry("neither", forces.Definition{Kind: forces.KindBond, Types: []string{"A", "B"}}),
		Entry("both", forces.Definition{Kind: forces.KindBond, Types: []string{"A", "B"},
			Params: forces.Params{Harmonic: &forces.Harmonic{K: 1, X0: 1}, Quadratic: quad}}),
		Entry("two sources", forces.Definition{Kind: forces.KindBond, Types: []string{"A", "B"},
			Params: forces.Params{Quadratic: quad, TableFile: "x.csv"}}),
		Entry("harmonic pair", forces.Definition{Kind: forces.KindPair, Types: []string{"A", "B"},
			Params: forces.Params{Harmonic: &forces.Harmonic{K: 1, X0: 1}}}),
		Entry("optimized harmonic", forces.Definition{Kind: forces.KindAngle, Types: []string{"A", "B", "A"},
			Options: forces.Options{Optimize: true}, Params: forces.Params{Harmonic: &forces.Harmonic{K: 1, X0: 1}}}),
		Entry("lj bond", forces.Definition{Kind: forces.KindBond, Types: []string{"A", "B"},
			Params: forces.Params{LJ: &forces.LJ{Epsilon: 1, Sigma: 1, RMin: 0.1, RCut: 3}}}),
		Entry("wrong arity", forces.Definition{Kind: forces.KindAngle, Types: []string{"A", "B"},
			Params: forces.Params{Quadratic: quad}}),
	)

	It("builds every kind", func() {
		bond, err := forces.Build(forces.Definition{Kind: forces.KindBond, Types: []string{"B", "A"},
			Options: forces.Options{Optimize: true, NBins: 60}, Params: forces.Params{Quadratic: quad}})
		Expect(err).NotTo(HaveOccurred())
		Expect(bond).To(BeAssignableToTypeOf(&forces.Bond{}))
		Expect(bond.Base().Name()).To(Equal("A-B"))
		Expect(bond.Base().IsOptimized()).To(BeTrue())

		angle, err := forces.Build(forces.Definition{Kind: forces.KindAngle, Types: []string{"A", "B", "A"},
			Params: forces.Params{Harmonic: &forces.Harmonic{K: 500, X0: 2}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(angle.Base().Format()).To(Equal(forces.FormatStatic))

		dihedral, err := forces.Build(forces.Definition{Kind: forces.KindDihedral, Types: []string{"A", "B", "A", "B"},
			Params: forces.Params{Harmonic: &forces.Harmonic{K: 50, X0: 0, D: 1, N: 2}}})
		Expect(err).NotTo(HaveOccurred())
		p, _ := dihedral.Base().StaticParams()
		Expect(p.N).To(Equal(2))

		pair, err := forces.Build(forces.Definition{Kind: forces.KindPair, Types: []string{"A", "A"}, RCut: 3,
			Params: forces.Params{LJ: &forces.LJ{Epsilon: 1, Sigma: 1, RMin: 0.1, RCut: 3}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pair.(*forces.Pair).RCut).To(Equal(3.0))
	})

	It("loads a table file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "pair.txt")
		Expect(os.WriteFile(path, []byte("x,U\n0.5,2\n1.0,1\n1.5,0\n"), 0644)).To(Succeed())
		pair, err := forces.Build(forces.Definition{Kind: forces.KindPair, Types: []string{"A", "A"},
			Options: forces.Options{Optimize: true}, Params: forces.Params{TableFile: path}})
		Expect(err).NotTo(HaveOccurred())
		Expect(pair.Base().NBins()).To(Equal(2))
	})
})

var _ = Describe("Kind", func() {
	It("parses names", func() {
		k, err := forces.ParseKind("Dihedral")
		Expect(err).NotTo(HaveOccurred())
		Expect(k).To(Equal(forces.KindDihedral))
		Expect(k.String()).To(Equal("dihedral"))
		_, err = forces.ParseKind("improper")
		Expect(err).To(MatchError(ibi.ErrConfig))
	})
})
