// Package nlp defines the contract between a nonlinear program and the
// backend that solves it, and ships an augmented-Lagrangian backend built
// on gonum's unconstrained minimizers.
//
// A program is
//
//	minimize    f(x)
//	subject to  c(x) = 0
//	            lower <= x <= upper
//
// Builders implement [Problem]; backends implement [Solver]. Neither side
// knows about the other, so a backend can be swapped without touching the
// builder.
package nlp

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotConverged indicates the backend could not reach a feasible point.
	ErrNotConverged = errors.New("nlp: solver did not converge")

	// ErrDimension indicates an initial guess or bound of the wrong size.
	ErrDimension = errors.New("nlp: dimension mismatch")
)

// Problem is a smooth nonlinear program with equality constraints and
// simple bounds. Implementations must not retain the slices they are given.
type Problem interface {
	// Dim is the number of decision variables.
	Dim() int
	// Bounds returns per-variable limits; use ±Inf for free variables.
	Bounds() (lower, upper []float64)
	Cost(x []float64) float64
	// CostGrad overwrites grad with ∇f(x).
	CostGrad(grad, x []float64)
	NumConstraints() int
	// Constraints overwrites c with the equality residuals c(x).
	Constraints(c, x []float64)
	// ConstraintsJacT accumulates J(x)ᵀw into dst.
	ConstraintsJacT(dst, x, w []float64)
}

type Status int

const (
	// Converged: feasible and stationary within tolerance.
	Converged Status = iota
	// Suboptimal: feasible, but the stationarity test was not met before
	// the iteration or time budget ran out.
	Suboptimal
	// Infeasible: constraint violation above tolerance.
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case Suboptimal:
		return "suboptimal"
	case Infeasible:
		return "infeasible"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type Solution struct {
	X               []float64
	Cost            float64
	Violation       float64
	OuterIterations int
	InnerIterations int
	Status          Status
}

// Solver solves a Problem from the warm-start x0. On failure it returns a
// non-nil error wrapping ErrNotConverged; the Solution, if any, is the best
// point reached.
type Solver interface {
	Solve(p Problem, x0 []float64) (*Solution, error)
}

// Violation is the infinity norm of equality residuals and bound excess.
func Violation(c, x, lower, upper []float64) float64 {
	v := 0.0
	for _, ci := range c {
		v = math.Max(v, math.Abs(ci))
	}
	for i, xi := range x {
		v = math.Max(v, lower[i]-xi)
		v = math.Max(v, xi-upper[i])
	}
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// Project clips x onto [lower, upper] in place.
func Project(x, lower, upper []float64) {
	for i := range x {
		if x[i] < lower[i] {
			x[i] = lower[i]
		} else if x[i] > upper[i] {
			x[i] = upper[i]
		}
	}
}
