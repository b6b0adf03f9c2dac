package mpc_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/nlp"
	"github.com/san-kum/mpcsim/internal/poly"
)

// stubSolver counts calls and either fails or returns the guess with the
// first actuation overwritten.
type stubSolver struct {
	calls int
	fail  bool
	first dynamo.Actuation
}

func (s *stubSolver) Solve(p nlp.Problem, x0 []float64) (*nlp.Solution, error) {
	s.calls++
	if s.fail {
		return &nlp.Solution{Status: nlp.Infeasible}, nlp.ErrNotConverged
	}
	x := append([]float64(nil), x0...)
	first := p.Dim() - 2*(p.NumConstraints()/6-1)
	x[first] = s.first.Delta
	x[first+1] = s.first.A
	return &nlp.Solution{X: x, Status: nlp.Converged}, nil
}

var straight = poly.Poly{0, 0, 0, 0}

var _ = Describe("Controller", func() {
	Describe("configuration", func() {
		DescribeTable("rejects invalid values",
			func(mutate func(*mpc.Config), field string) {
				cfg := mpc.DefaultConfig(10, 0)
				mutate(&cfg)
				c, err := mpc.New(cfg)
				Expect(c).To(BeNil())
				Expect(errors.Is(err, mpc.ErrInvalidConfig)).To(BeTrue())

				var cerr *mpc.ConfigError
				Expect(errors.As(err, &cerr)).To(BeTrue())
				Expect(cerr.Field).To(Equal(field))
			},
			Entry("horizon too short", func(c *mpc.Config) { c.N = 1 }, "n"),
			Entry("zero dt", func(c *mpc.Config) { c.Dt = 0 }, "dt"),
			Entry("negative delay", func(c *mpc.Config) { c.DelaySteps = -1 }, "delay_steps"),
			Entry("zero wheelbase", func(c *mpc.Config) { c.Lf = 0 }, "lf"),
			Entry("zero steering limit", func(c *mpc.Config) { c.MaxSteer = 0 }, "max_steer"),
			Entry("negative weight", func(c *mpc.Config) { c.Weights.CTE = -1 }, "weights.cte"),
			Entry("delay consumes horizon", func(c *mpc.Config) { c.DelaySteps = c.N }, "delay_steps"),
		)

		It("accepts the defaults", func() {
			c, err := mpc.New(mpc.DefaultConfig(10, 2))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Config().N).To(Equal(mpc.DefaultN))
		})
	})

	Describe("live tuning", func() {
		var c *mpc.Controller

		BeforeEach(func() {
			var err error
			c, err = mpc.New(mpc.DefaultConfig(10, 0))
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("rejects values that would invalidate the config",
			func(name string, value float64, field string) {
				before := c.GetParams()
				err := c.SetParam(name, value)
				Expect(errors.Is(err, mpc.ErrInvalidConfig)).To(BeTrue())

				var cerr *mpc.ConfigError
				Expect(errors.As(err, &cerr)).To(BeTrue())
				Expect(cerr.Field).To(Equal(field))

				Expect(c.GetParams()).To(Equal(before))
				cfg := c.Config()
				Expect(cfg.Validate()).To(Succeed())
			},
			Entry("NaN weight", "w_cte", math.NaN(), "weights.cte"),
			Entry("infinite weight", "w_delta_rate", math.Inf(1), "weights.delta_rate"),
			Entry("negative weight", "w_a", -2.0, "weights.a"),
			Entry("NaN target", "target_velocity", math.NaN(), "target_velocity"),
			Entry("infinite target", "target_velocity", math.Inf(1), "target_velocity"),
			Entry("negative infinite target", "target_velocity", math.Inf(-1), "target_velocity"),
		)

		It("applies valid updates", func() {
			Expect(c.SetParam("w_cte", 42)).To(Succeed())
			Expect(c.SetParam("target_velocity", 7.5)).To(Succeed())
			Expect(c.GetParams()).To(HaveKeyWithValue("w_cte", 42.0))
			Expect(c.Config().TargetVelocity).To(Equal(7.5))

			res, err := c.Solve(dynamo.State{0, 0, 0, 7.5, 0, 0}, straight)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Fallback).To(BeFalse())
		})

		It("rejects unknown names", func() {
			Expect(c.SetParam("w_bogus", 1)).NotTo(Succeed())
		})
	})

	Describe("input validation", func() {
		var (
			stub *stubSolver
			c    *mpc.Controller
		)

		BeforeEach(func() {
			stub = &stubSolver{}
			var err error
			c, err = mpc.New(mpc.DefaultConfig(10, 0), mpc.WithSolver(stub))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects non-finite states without solving", func() {
			_, err := c.Solve(dynamo.State{0, math.NaN(), 0, 10, 0, 0}, straight)
			Expect(errors.Is(err, mpc.ErrInvalidInput)).To(BeTrue())
			Expect(stub.calls).To(BeZero())
		})

		It("rejects non-finite coefficients without solving", func() {
			for _, bad := range []poly.Poly{{0, math.NaN(), 0, 0}, {0, 0, 0, math.Inf(-1)}} {
				_, err := c.Solve(dynamo.State{0, 0, 0, 10, 0, 0}, bad)
				Expect(errors.Is(err, mpc.ErrInvalidInput)).To(BeTrue())
			}
			Expect(stub.calls).To(BeZero())
		})

		It("rejects coefficient vectors of the wrong length", func() {
			_, err := c.Solve(dynamo.State{0, 0, 0, 10, 0, 0}, poly.Poly{0, 0, 0})
			Expect(errors.Is(err, mpc.ErrInvalidInput)).To(BeTrue())
			Expect(stub.calls).To(BeZero())
		})

		It("leaves carried state untouched", func() {
			stub.first = dynamo.Actuation{Delta: 0.1, A: 0.4}
			_, err := c.Solve(dynamo.State{0, 0, 0, 10, 0, 0}, straight)
			Expect(err).NotTo(HaveOccurred())
			held := c.Held()

			_, err = c.Solve(dynamo.State{math.Inf(1), 0, 0, 10, 0, 0}, straight)
			Expect(err).To(HaveOccurred())
			Expect(c.Held()).To(Equal(held))
			Expect(c.Predicted().Len()).To(Equal(mpc.DefaultN - 1))
		})

		It("returns a zero command from Compute", func() {
			cmd, err := c.Compute(dynamo.State{0, 0, math.NaN(), 10, 0, 0}, straight)
			Expect(err).To(MatchError(mpc.ErrInvalidInput))
			Expect(cmd).To(Equal(dynamo.Command{}))
		})
	})

	Describe("solving", func() {
		It("stays put at equilibrium", func() {
			c, err := mpc.New(mpc.DefaultConfig(10, 0))
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Solve(dynamo.State{0, 0, 0, 10, 0, 0}, straight)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Fallback).To(BeFalse())
			Expect(res.Command.Steer).To(BeNumerically("~", 0, 1e-6))
			Expect(res.Command.Throttle).To(BeNumerically("~", 0, 1e-6))
			Expect(res.Predicted.Len()).To(Equal(mpc.DefaultN - 1))
			Expect(res.Horizon).To(HaveLen(mpc.DefaultN))
		})

		Context("with two steps of latency on a straight road", func() {
			state := dynamo.State{0, 0, 0, 10, 0, 0}

			It("compensates and holds speed at the target", func() {
				c, err := mpc.New(mpc.DefaultConfig(10, 2))
				Expect(err).NotTo(HaveOccurred())

				res, err := c.Solve(state, straight)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Compensated[dynamo.X]).To(BeNumerically("~", 2.0, 1e-12))
				Expect(res.Command.Steer).To(BeNumerically("~", 0, 1e-6))
				Expect(res.Command.Throttle).To(BeNumerically("~", 0, 1e-6))
			})

			It("accelerates towards a faster target", func() {
				c, err := mpc.New(mpc.DefaultConfig(20, 2))
				Expect(err).NotTo(HaveOccurred())

				res, err := c.Solve(state, straight)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Command.Throttle).To(BeNumerically(">", 0))
				Expect(res.Command.Steer).To(BeNumerically("~", 0, 1e-6))
			})
		})

		It("keeps commands inside [-1, 1]", func() {
			c, err := mpc.New(mpc.DefaultConfig(25, 1))
			Expect(err).NotTo(HaveOccurred())

			states := []dynamo.State{
				{0, 0, 0, 5, 3, 0.4},
				{0, 0, 0.3, 30, -4, -0.5},
				{0, 0, 0, 0, 0, 0},
				{0, 0, -0.2, 15, 1, 0.2},
			}
			for _, s := range states {
				res, _ := c.Solve(s, poly.Poly{s[dynamo.CTE], 0.05, 0, 0})
				Expect(math.Abs(res.Command.Steer)).To(BeNumerically("<=", 1))
				Expect(math.Abs(res.Command.Throttle)).To(BeNumerically("<=", 1))
			}
		})

		It("mirrors its command for a mirrored road", func() {
			state := dynamo.State{0, -0.5, 0.05, 10, 0.5, -0.05}
			ref := poly.Poly{0, 0.02, -0.001, 0.0001}

			mirrored := state
			for _, i := range []int{dynamo.Y, dynamo.Psi, dynamo.CTE, dynamo.EPsi} {
				mirrored[i] = -mirrored[i]
			}
			negRef := make(poly.Poly, len(ref))
			for i, c := range ref {
				negRef[i] = -c
			}

			a, err := mpc.New(mpc.DefaultConfig(10, 0))
			Expect(err).NotTo(HaveOccurred())
			b, err := mpc.New(mpc.DefaultConfig(10, 0))
			Expect(err).NotTo(HaveOccurred())

			ra, _ := a.Solve(state, ref)
			rb, _ := b.Solve(mirrored, negRef)
			Expect(rb.Command.Steer).To(BeNumerically("~", -ra.Command.Steer, 1e-6))
			Expect(rb.Command.Throttle).To(BeNumerically("~", ra.Command.Throttle, 1e-6))
		})

		It("tracks tighter with a heavier cross-track weight", func() {
			state := dynamo.State{0, 0, 0, 10, 1, 0}
			ref := poly.Poly{1, 0, 0, 0}

			sumCTE := func(w float64) float64 {
				cfg := mpc.DefaultConfig(10, 0)
				cfg.Weights.CTE = w
				c, err := mpc.New(cfg)
				Expect(err).NotTo(HaveOccurred())
				res, err := c.Solve(state, ref)
				Expect(err).NotTo(HaveOccurred())
				sum := 0.0
				for _, s := range res.Horizon[1:] {
					sum += s[dynamo.CTE] * s[dynamo.CTE]
				}
				return sum
			}

			Expect(sumCTE(500)).To(BeNumerically("<", sumCTE(1)))
		})

		It("solves the shortest horizon", func() {
			cfg := mpc.DefaultConfig(10, 0)
			cfg.N = 2
			c, err := mpc.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			res, err := c.Solve(dynamo.State{0, 0, 0, 8, 0.2, 0}, poly.Poly{0.2, 0, 0, 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Predicted.Len()).To(Equal(1))
			Expect(c.Predicted().Len()).To(Equal(1))
		})
	})

	Describe("fallback", func() {
		var (
			stub *stubSolver
			c    *mpc.Controller
		)
		state := dynamo.State{0, 0, 0, 10, 0, 0}

		BeforeEach(func() {
			stub = &stubSolver{fail: true}
			var err error
			c, err = mpc.New(mpc.DefaultConfig(10, 0), mpc.WithSolver(stub))
			Expect(err).NotTo(HaveOccurred())
		})

		It("issues the neutral command before any success", func() {
			res, err := c.Solve(state, straight)
			Expect(errors.Is(err, mpc.ErrConvergence)).To(BeTrue())
			Expect(errors.Is(err, nlp.ErrNotConverged)).To(BeTrue())
			Expect(res.Fallback).To(BeTrue())
			Expect(res.Command).To(Equal(mpc.NeutralCommand))
			Expect(c.Held()).To(Equal(dynamo.Actuation{Delta: 0, A: -0.1}))
			Expect(c.Predicted().Len()).To(BeZero())
		})

		It("holds the last successful actuation", func() {
			stub.fail = false
			stub.first = dynamo.Actuation{Delta: 0.1, A: 0.5}
			ok, err := c.Solve(state, straight)
			Expect(err).NotTo(HaveOccurred())

			stub.fail = true
			for i := 0; i < 2; i++ {
				res, err := c.Solve(state, straight)
				Expect(err).To(MatchError(mpc.ErrConvergence))
				Expect(res.Fallback).To(BeTrue())
				Expect(res.Command.Steer).To(BeNumerically("~", ok.Command.Steer, 1e-12))
				Expect(res.Command.Throttle).To(Equal(0.5))
			}
		})

		It("lets Compute return the fallback command", func() {
			cmd, err := c.Compute(state, straight)
			Expect(errors.Is(err, mpc.ErrConvergence)).To(BeTrue())
			Expect(cmd).To(Equal(mpc.NeutralCommand))
		})
	})

	It("forgets carried state on Reset", func() {
		stub := &stubSolver{first: dynamo.Actuation{Delta: 0.05, A: 0.2}}
		c, err := mpc.New(mpc.DefaultConfig(10, 1), mpc.WithSolver(stub))
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Solve(dynamo.State{0, 0, 0, 10, 0, 0}, straight)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Held()).NotTo(Equal(dynamo.Actuation{}))

		c.Reset()
		Expect(c.Held()).To(Equal(dynamo.Actuation{}))
		Expect(c.Predicted().Len()).To(BeZero())

		stub.fail = true
		res, _ := c.Solve(dynamo.State{0, 0, 0, 10, 0, 0}, straight)
		Expect(res.Command).To(Equal(mpc.NeutralCommand))
	})
})
