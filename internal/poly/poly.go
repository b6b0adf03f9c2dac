// Package poly evaluates and fits the reference-path polynomial.
//
// A [Poly] holds coefficients lowest degree first, so p[i] multiplies x^i.
// The path is expressed in the vehicle frame at the time it is fitted:
// the vehicle sits at the origin looking down +x.
package poly

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrTooFewPoints indicates a fit was requested with fewer points than coefficients.
	ErrTooFewPoints = errors.New("poly: not enough points for requested degree")

	// ErrLengthMismatch indicates x and y samples of different lengths.
	ErrLengthMismatch = errors.New("poly: x and y sample lengths differ")
)

type Poly []float64

func (p Poly) Degree() int { return len(p) - 1 }

// Eval returns f(x) using Horner's scheme.
func (p Poly) Eval(x float64) float64 {
	result := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		result = result*x + p[i]
	}
	return result
}

// Deriv returns f'(x). Constant and empty polynomials yield 0.
func (p Poly) Deriv(x float64) float64 {
	result := 0.0
	for i := len(p) - 1; i >= 1; i-- {
		result = result*x + float64(i)*p[i]
	}
	return result
}

// Deriv2 returns f''(x).
func (p Poly) Deriv2(x float64) float64 {
	result := 0.0
	for i := len(p) - 1; i >= 2; i-- {
		result = result*x + float64(i*(i-1))*p[i]
	}
	return result
}

func (p Poly) Clone() Poly {
	c := make(Poly, len(p))
	copy(c, p)
	return c
}

func (p Poly) IsValid() bool {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Fit returns the least-squares polynomial of the given degree through (xs, ys).
func Fit(xs, ys []float64, degree int) (Poly, error) {
	if len(xs) != len(ys) {
		return nil, ErrLengthMismatch
	}
	if degree < 0 {
		return nil, fmt.Errorf("poly: negative degree %d", degree)
	}
	cols := degree + 1
	if len(xs) < cols {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrTooFewPoints, len(xs), cols)
	}

	// Columns are built in x/scale so that long lookahead distances do
	// not blow up the Vandermonde condition number.
	scale := 0.0
	for _, x := range xs {
		scale = math.Max(scale, math.Abs(x))
	}
	if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		scale = 1
	}

	a := mat.NewDense(len(xs), cols, nil)
	for i, x := range xs {
		u := x / scale
		v := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, v)
			v *= u
		}
	}
	b := mat.NewVecDense(len(ys), append([]float64(nil), ys...))

	var qr mat.QR
	qr.Factorize(a)

	var coeffs mat.VecDense
	if err := qr.SolveVecTo(&coeffs, false, b); err != nil {
		return nil, fmt.Errorf("poly: fit: %w", err)
	}

	out := make(Poly, cols)
	div := 1.0
	for i := range out {
		out[i] = coeffs.AtVec(i) / div
		div *= scale
	}
	return out, nil
}

// ToVehicleFrame maps global waypoints into the frame of a vehicle at
// (x, y) with heading psi.
func ToVehicleFrame(px, py []float64, x, y, psi float64) ([]float64, []float64) {
	n := len(px)
	if len(py) < n {
		n = len(py)
	}
	vx := make([]float64, n)
	vy := make([]float64, n)
	sin, cos := math.Sincos(-psi)
	for i := 0; i < n; i++ {
		dx := px[i] - x
		dy := py[i] - y
		vx[i] = dx*cos - dy*sin
		vy[i] = dx*sin + dy*cos
	}
	return vx, vy
}
