package mpc_test

import (
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/poly"
)

var _ = Describe("Problem", func() {
	var (
		cfg mpc.Config
		ref poly.Poly
		x0  dynamo.State
	)

	BeforeEach(func() {
		cfg = mpc.DefaultConfig(15, 0)
		cfg.N = 6
		ref = poly.Poly{0.3, 0.05, -0.01, 0.0005}
		x0 = dynamo.State{0, 0, 0.01, 12, 0.3, -0.06}
	})

	randomPoint := func(p *mpc.Problem, seed int64) []float64 {
		rng := rand.New(rand.NewSource(seed))
		z := p.WarmStart(nil)
		for i := range z {
			z[i] += 0.1 * rng.NormFloat64()
		}
		return z
	}

	It("lays out N states and N-1 actuations", func() {
		p := mpc.NewProblem(cfg, x0, ref)
		Expect(p.Dim()).To(Equal(6*cfg.N + 2*(cfg.N-1)))
		Expect(p.NumConstraints()).To(Equal(6 * cfg.N))
	})

	It("bounds only the actuators", func() {
		p := mpc.NewProblem(cfg, x0, ref)
		lo, hi := p.Bounds()
		for i := 0; i < 6*cfg.N; i++ {
			Expect(math.IsInf(lo[i], -1)).To(BeTrue())
			Expect(math.IsInf(hi[i], 1)).To(BeTrue())
		}
		for t := 0; t < cfg.N-1; t++ {
			d := 6*cfg.N + 2*t
			Expect(lo[d]).To(Equal(-cfg.MaxSteer))
			Expect(hi[d]).To(Equal(cfg.MaxSteer))
			Expect(lo[d+1]).To(Equal(-1.0))
			Expect(hi[d+1]).To(Equal(1.0))
		}
	})

	It("produces a warm start that satisfies the dynamics", func() {
		p := mpc.NewProblem(cfg, x0, ref)
		acts := []dynamo.Actuation{{Delta: 0.1, A: 0.5}, {Delta: 2, A: -3}}
		z := p.WarmStart(acts)

		c := make([]float64, p.NumConstraints())
		p.Constraints(c, z)
		lo, hi := p.Bounds()
		Expect(nlp.Violation(c, z, lo, hi)).To(BeNumerically("<", 1e-12))

		_, us := p.Unpack(z)
		Expect(us[0]).To(Equal(dynamo.Actuation{Delta: 0.1, A: 0.5}))
		Expect(us[1]).To(Equal(dynamo.Actuation{Delta: cfg.MaxSteer, A: -1}))
		Expect(us[2]).To(Equal(dynamo.Actuation{}))
	})

	It("has an analytic cost gradient matching finite differences", func() {
		p := mpc.NewProblem(cfg, x0, ref)
		z := randomPoint(p, 1)

		got := make([]float64, p.Dim())
		p.CostGrad(got, z)
		want := fd.Gradient(nil, p.Cost, z, &fd.Settings{Formula: fd.Central, Step: 1e-6})

		for i := range want {
			Expect(got[i]).To(BeNumerically("~", want[i], 1e-4*math.Max(1, math.Abs(want[i]))), "component %d", i)
		}
	})

	It("has a constraint Jacobian transpose matching finite differences", func() {
		p := mpc.NewProblem(cfg, x0, ref)
		z := randomPoint(p, 2)
		n, m := p.Dim(), p.NumConstraints()

		jac := mat.NewDense(m, n, nil)
		fd.Jacobian(jac, p.Constraints, z, &fd.JacobianSettings{Formula: fd.Central, Step: 1e-6})

		rng := rand.New(rand.NewSource(3))
		w := make([]float64, m)
		for i := range w {
			w[i] = rng.NormFloat64()
		}
		var want mat.VecDense
		want.MulVec(jac.T(), mat.NewVecDense(m, w))

		got := make([]float64, n)
		p.ConstraintsJacT(got, z, w)
		for i := 0; i < n; i++ {
			Expect(got[i]).To(BeNumerically("~", want.AtVec(i), 1e-5*math.Max(1, math.Abs(want.AtVec(i)))), "component %d", i)
		}
	})

	It("charges rate penalties only between consecutive actuations", func() {
		cfg.Weights = mpc.Weights{DeltaRate: 1, ARate: 1}
		p := mpc.NewProblem(cfg, x0, ref)
		z := make([]float64, p.Dim())
		first := 6 * cfg.N
		z[first] = 0.2
		z[first+1] = 0.5
		// One jump of 0.2 in delta and 0.5 in a between actuations 0 and 1.
		Expect(p.Cost(z)).To(BeNumerically("~", 0.04+0.25, 1e-12))
	})

	Context("with the shortest horizon", func() {
		It("has a single actuation and no rate terms", func() {
			cfg.N = 2
			cfg.Weights = mpc.Weights{DeltaRate: 1e6, ARate: 1e6}
			p := mpc.NewProblem(cfg, x0, ref)
			Expect(p.Dim()).To(Equal(14))

			z := p.WarmStart([]dynamo.Actuation{{Delta: 0.3, A: 0.7}})
			Expect(p.Cost(z)).To(Equal(0.0))

			g := make([]float64, p.Dim())
			Expect(func() { p.CostGrad(g, z) }).NotTo(Panic())
			Expect(g).To(HaveEach(0.0))
		})
	})
})
