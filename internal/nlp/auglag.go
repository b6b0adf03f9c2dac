package nlp

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Settings tune the augmented-Lagrangian backend.
type Settings struct {
	MaxOuter       int           `yaml:"max_outer"`
	MaxInner       int           `yaml:"max_inner"`
	FeasibilityTol float64       `yaml:"feasibility_tol"`
	OptimalityTol  float64       `yaml:"optimality_tol"`
	GradTol        float64       `yaml:"grad_tol"`
	InitialPenalty float64       `yaml:"initial_penalty"`
	PenaltyGrowth  float64       `yaml:"penalty_growth"`
	MaxPenalty     float64       `yaml:"max_penalty"`
	Runtime        time.Duration `yaml:"runtime"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxOuter:       30,
		MaxInner:       400,
		FeasibilityTol: 1e-6,
		OptimalityTol:  1e-4,
		GradTol:        1e-8,
		InitialPenalty: 100,
		PenaltyGrowth:  10,
		MaxPenalty:     1e9,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.MaxOuter <= 0:
		return fmt.Errorf("max_outer must be positive, got %d", s.MaxOuter)
	case s.MaxInner <= 0:
		return fmt.Errorf("max_inner must be positive, got %d", s.MaxInner)
	case s.FeasibilityTol <= 0:
		return fmt.Errorf("feasibility_tol must be positive, got %g", s.FeasibilityTol)
	case s.InitialPenalty <= 0:
		return fmt.Errorf("initial_penalty must be positive, got %g", s.InitialPenalty)
	case s.PenaltyGrowth <= 1:
		return fmt.Errorf("penalty_growth must exceed 1, got %g", s.PenaltyGrowth)
	case s.MaxPenalty < s.InitialPenalty:
		return fmt.Errorf("max_penalty %g below initial_penalty %g", s.MaxPenalty, s.InitialPenalty)
	}
	return nil
}

// AugLag is a Powell-Hestenes-Rockafellar augmented-Lagrangian solver.
// Equalities and bounds are folded into a smooth merit function whose
// unconstrained minimum is found with L-BFGS; multipliers and the penalty
// are updated between inner solves.
type AugLag struct {
	settings Settings
}

func NewAugLag(s Settings) *AugLag {
	return &AugLag{settings: s}
}

func (a *AugLag) Settings() Settings { return a.settings }

// merit holds the multiplier state of one Solve call.
type merit struct {
	p            Problem
	lower, upper []float64
	lambda       []float64
	muLo, muHi   []float64
	rho          float64

	c, w, g []float64
}

func newMerit(p Problem) *merit {
	n, m := p.Dim(), p.NumConstraints()
	lo, hi := p.Bounds()
	return &merit{
		p:      p,
		lower:  lo,
		upper:  hi,
		lambda: make([]float64, m),
		muLo:   make([]float64, n),
		muHi:   make([]float64, n),
		c:      make([]float64, m),
		w:      make([]float64, m),
		g:      make([]float64, n),
	}
}

func (m *merit) value(x []float64) float64 {
	f := m.p.Cost(x)
	m.p.Constraints(m.c, x)
	for i, ci := range m.c {
		f += m.lambda[i]*ci + 0.5*m.rho*ci*ci
	}
	inv := 0.5 / m.rho
	for j, xj := range x {
		if !math.IsInf(m.lower[j], -1) {
			t := math.Max(0, m.muLo[j]+m.rho*(m.lower[j]-xj))
			f += inv * (t*t - m.muLo[j]*m.muLo[j])
		}
		if !math.IsInf(m.upper[j], 1) {
			t := math.Max(0, m.muHi[j]+m.rho*(xj-m.upper[j]))
			f += inv * (t*t - m.muHi[j]*m.muHi[j])
		}
	}
	return f
}

func (m *merit) grad(grad, x []float64) {
	m.p.CostGrad(grad, x)
	m.p.Constraints(m.c, x)
	for i, ci := range m.c {
		m.w[i] = m.lambda[i] + m.rho*ci
	}
	m.p.ConstraintsJacT(grad, x, m.w)
	for j, xj := range x {
		if !math.IsInf(m.lower[j], -1) {
			grad[j] -= math.Max(0, m.muLo[j]+m.rho*(m.lower[j]-xj))
		}
		if !math.IsInf(m.upper[j], 1) {
			grad[j] += math.Max(0, m.muHi[j]+m.rho*(xj-m.upper[j]))
		}
	}
}

func (m *merit) updateMultipliers(x []float64) {
	m.p.Constraints(m.c, x)
	for i, ci := range m.c {
		m.lambda[i] += m.rho * ci
	}
	for j, xj := range x {
		if !math.IsInf(m.lower[j], -1) {
			m.muLo[j] = math.Max(0, m.muLo[j]+m.rho*(m.lower[j]-xj))
		}
		if !math.IsInf(m.upper[j], 1) {
			m.muHi[j] = math.Max(0, m.muHi[j]+m.rho*(xj-m.upper[j]))
		}
	}
}

func (a *AugLag) Solve(p Problem, x0 []float64) (*Solution, error) {
	s := a.settings
	n := p.Dim()
	if len(x0) != n {
		return nil, fmt.Errorf("%w: initial guess has %d entries, problem has %d", ErrDimension, len(x0), n)
	}
	lo, hi := p.Bounds()
	if len(lo) != n || len(hi) != n {
		return nil, fmt.Errorf("%w: bounds sized %d/%d, problem has %d", ErrDimension, len(lo), len(hi), n)
	}

	x := make([]float64, n)
	copy(x, x0)
	Project(x, lo, hi)

	m := newMerit(p)
	m.rho = s.InitialPenalty

	sol := &Solution{Status: Infeasible}
	start := time.Now()
	prevViol := math.Inf(1)
	optimal := false

	for outer := 0; outer < s.MaxOuter; outer++ {
		settings := &optimize.Settings{
			GradientThreshold: s.GradTol,
			MajorIterations:   s.MaxInner,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Relative:   1e-12,
				Iterations: 20,
			},
		}
		if s.Runtime > 0 {
			remaining := s.Runtime - time.Since(start)
			if remaining <= 0 {
				break
			}
			settings.Runtime = remaining
		}

		problem := optimize.Problem{Func: m.value, Grad: m.grad}
		res, err := optimize.Minimize(problem, x, settings, &optimize.LBFGS{})
		sol.OuterIterations++
		if res != nil {
			sol.InnerIterations += res.Stats.MajorIterations
			if allFinite(res.X) {
				copy(x, res.X)
			}
		}
		if res == nil && err != nil {
			return sol, fmt.Errorf("%w: inner solve: %v", ErrNotConverged, err)
		}

		m.grad(m.g, x)
		optimal = floats.Norm(m.g, math.Inf(1)) <= s.OptimalityTol

		p.Constraints(m.c, x)
		viol := Violation(m.c, x, lo, hi)
		m.updateMultipliers(x)

		// Leave headroom for the final projection onto the bounds.
		if viol <= 0.1*s.FeasibilityTol && optimal {
			break
		}
		if viol > 0.25*prevViol {
			m.rho = math.Min(m.rho*s.PenaltyGrowth, s.MaxPenalty)
		}
		prevViol = viol
	}

	Project(x, lo, hi)
	p.Constraints(m.c, x)
	sol.X = x
	sol.Cost = p.Cost(x)
	sol.Violation = Violation(m.c, x, lo, hi)

	switch {
	case sol.Violation > s.FeasibilityTol || math.IsNaN(sol.Cost):
		sol.Status = Infeasible
		return sol, fmt.Errorf("%w: violation %.3g after %d outer iterations", ErrNotConverged, sol.Violation, sol.OuterIterations)
	case optimal:
		sol.Status = Converged
	default:
		sol.Status = Suboptimal
	}
	return sol, nil
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
