package mpc

import (
	"math"

	"github.com/san-kum/mpcsim/internal/dynamo"
	"github.com/san-kum/mpcsim/internal/models"
	"github.com/san-kum/mpcsim/internal/poly"
)

const actDim = 2

// Problem is the finite-horizon program for one control cycle. Decision
// variables are laid out as
//
//	z[6t : 6t+6]          state t,     t in [0, N)
//	z[6N+2t : 6N+2t+2]    actuation t, t in [0, N-1)
//
// The first state is pinned to x0 by equality rows rather than removed,
// and each later state is tied to its predecessor by the bicycle model.
type Problem struct {
	cfg   Config
	model *models.Bicycle
	ref   poly.Poly
	x0    dynamo.State

	lower, upper []float64
}

// NewProblem builds the program anchored at the compensated state x0.
func NewProblem(cfg Config, x0 dynamo.State, ref poly.Poly) *Problem {
	p := &Problem{
		cfg:   cfg,
		model: models.NewBicycle(cfg.Lf),
		ref:   ref,
		x0:    x0,
	}

	n := p.Dim()
	p.lower = make([]float64, n)
	p.upper = make([]float64, n)
	for i := 0; i < p.actStart(); i++ {
		p.lower[i] = math.Inf(-1)
		p.upper[i] = math.Inf(1)
	}
	for t := 0; t < cfg.N-1; t++ {
		d, a := p.deltaIdx(t), p.accelIdx(t)
		p.lower[d], p.upper[d] = -cfg.MaxSteer, cfg.MaxSteer
		p.lower[a], p.upper[a] = -1, 1
	}
	return p
}

func (p *Problem) actStart() int       { return dynamo.StateDim * p.cfg.N }
func (p *Problem) stateIdx(t int) int  { return dynamo.StateDim * t }
func (p *Problem) deltaIdx(t int) int  { return p.actStart() + actDim*t }
func (p *Problem) accelIdx(t int) int  { return p.actStart() + actDim*t + 1 }
func (p *Problem) Dim() int            { return p.actStart() + actDim*(p.cfg.N-1) }
func (p *Problem) NumConstraints() int { return dynamo.StateDim * p.cfg.N }

func (p *Problem) Bounds() ([]float64, []float64) {
	return p.lower, p.upper
}

func (p *Problem) state(z []float64, t int) dynamo.State {
	var s dynamo.State
	copy(s[:], z[p.stateIdx(t):p.stateIdx(t)+dynamo.StateDim])
	return s
}

func (p *Problem) actuation(z []float64, t int) dynamo.Actuation {
	return dynamo.Actuation{Delta: z[p.deltaIdx(t)], A: z[p.accelIdx(t)]}
}

// Cost sums tracking error over every state, effort over every actuation,
// and rate of change over every consecutive actuation pair.
func (p *Problem) Cost(z []float64) float64 {
	w := p.cfg.Weights
	cost := 0.0
	for t := 0; t < p.cfg.N; t++ {
		i := p.stateIdx(t)
		cte := z[i+dynamo.CTE]
		epsi := z[i+dynamo.EPsi]
		dv := z[i+dynamo.V] - p.cfg.TargetVelocity
		cost += w.CTE*cte*cte + w.EPsi*epsi*epsi + w.V*dv*dv
	}
	for t := 0; t < p.cfg.N-1; t++ {
		d, a := z[p.deltaIdx(t)], z[p.accelIdx(t)]
		cost += w.Delta*d*d + w.A*a*a
	}
	for t := 0; t < p.cfg.N-2; t++ {
		dd := z[p.deltaIdx(t+1)] - z[p.deltaIdx(t)]
		da := z[p.accelIdx(t+1)] - z[p.accelIdx(t)]
		cost += w.DeltaRate*dd*dd + w.ARate*da*da
	}
	return cost
}

func (p *Problem) CostGrad(grad, z []float64) {
	for i := range grad {
		grad[i] = 0
	}
	w := p.cfg.Weights
	for t := 0; t < p.cfg.N; t++ {
		i := p.stateIdx(t)
		grad[i+dynamo.CTE] = 2 * w.CTE * z[i+dynamo.CTE]
		grad[i+dynamo.EPsi] = 2 * w.EPsi * z[i+dynamo.EPsi]
		grad[i+dynamo.V] = 2 * w.V * (z[i+dynamo.V] - p.cfg.TargetVelocity)
	}
	for t := 0; t < p.cfg.N-1; t++ {
		d, a := p.deltaIdx(t), p.accelIdx(t)
		grad[d] += 2 * w.Delta * z[d]
		grad[a] += 2 * w.A * z[a]
	}
	for t := 0; t < p.cfg.N-2; t++ {
		d0, d1 := p.deltaIdx(t), p.deltaIdx(t+1)
		a0, a1 := p.accelIdx(t), p.accelIdx(t+1)
		gd := 2 * w.DeltaRate * (z[d1] - z[d0])
		ga := 2 * w.ARate * (z[a1] - z[a0])
		grad[d0] -= gd
		grad[d1] += gd
		grad[a0] -= ga
		grad[a1] += ga
	}
}

// Constraints fills the anchor rows c[0:6] = z0 - x0 followed by one
// block per step, c[6(t+1):6(t+2)] = z_{t+1} - Step(z_t, u_t).
func (p *Problem) Constraints(c, z []float64) {
	for k := 0; k < dynamo.StateDim; k++ {
		c[k] = z[k] - p.x0[k]
	}
	for t := 0; t < p.cfg.N-1; t++ {
		pred := p.model.Step(p.state(z, t), p.actuation(z, t), p.ref, p.cfg.Dt)
		row := dynamo.StateDim * (t + 1)
		next := p.stateIdx(t + 1)
		for k := 0; k < dynamo.StateDim; k++ {
			c[row+k] = z[next+k] - pred[k]
		}
	}
}

// ConstraintsJacT accumulates J(z)ᵀw into dst. Each dynamics row is
// z_{t+1,k} - g_k(z_t, u_t), so it contributes +w to state t+1 and -∂g/∂·
// to step t.
func (p *Problem) ConstraintsJacT(dst, z, w []float64) {
	for k := 0; k < dynamo.StateDim; k++ {
		dst[k] += w[k]
	}

	dt, lf := p.cfg.Dt, p.cfg.Lf
	for t := 0; t < p.cfg.N-1; t++ {
		row := dynamo.StateDim * (t + 1)
		wx, wy, wpsi, wv, wcte, wepsi := w[row], w[row+1], w[row+2], w[row+3], w[row+4], w[row+5]

		next := p.stateIdx(t + 1)
		for k := 0; k < dynamo.StateDim; k++ {
			dst[next+k] += w[row+k]
		}

		i := p.stateIdx(t)
		x, psi, v, epsi := z[i+dynamo.X], z[i+dynamo.Psi], z[i+dynamo.V], z[i+dynamo.EPsi]
		delta := z[p.deltaIdx(t)]
		sin, cos := math.Sincos(psi)
		df := p.ref.Deriv(x)
		d2f := p.ref.Deriv2(x)

		// ∂g/∂x: x' = x + ..., cte' = f(x) + ..., epsi' = -atan(f'(x)) + ...
		dst[i+dynamo.X] -= wx + wcte*df - wepsi*d2f/(1+df*df)
		// ∂g/∂y: y' = y + ..., cte' = -y + ...
		dst[i+dynamo.Y] -= wy - wcte
		// ∂g/∂psi
		dst[i+dynamo.Psi] -= -wx*v*sin*dt + wy*v*cos*dt + wpsi + wepsi
		// ∂g/∂v
		yawPerV := delta / lf * dt
		dst[i+dynamo.V] -= wx*cos*dt + wy*sin*dt + wpsi*yawPerV + wv + wcte*math.Sin(epsi)*dt + wepsi*yawPerV
		// ∂g/∂epsi: only cte' depends on it
		dst[i+dynamo.EPsi] -= wcte * v * math.Cos(epsi) * dt
		// ∂g/∂delta and ∂g/∂a
		dst[p.deltaIdx(t)] -= (wpsi + wepsi) * v / lf * dt
		dst[p.accelIdx(t)] -= wv * dt
	}
}

// WarmStart returns an initial guess that satisfies the dynamics exactly:
// the given actuations (clipped to bounds, zero-padded) are rolled out from
// x0.
func (p *Problem) WarmStart(us []dynamo.Actuation) []float64 {
	n := p.cfg.N - 1
	acts := make([]dynamo.Actuation, n)
	for t := 0; t < n && t < len(us); t++ {
		acts[t] = dynamo.Actuation{
			Delta: clamp(us[t].Delta, -p.cfg.MaxSteer, p.cfg.MaxSteer),
			A:     clamp(us[t].A, -1, 1),
		}
	}

	z := make([]float64, p.Dim())
	for t, s := range p.model.Rollout(p.x0, acts, p.ref, p.cfg.Dt) {
		copy(z[p.stateIdx(t):], s[:])
	}
	for t, u := range acts {
		z[p.deltaIdx(t)] = u.Delta
		z[p.accelIdx(t)] = u.A
	}
	return z
}

// Unpack splits a solution vector into states and actuations.
func (p *Problem) Unpack(z []float64) ([]dynamo.State, []dynamo.Actuation) {
	states := make([]dynamo.State, p.cfg.N)
	for t := range states {
		states[t] = p.state(z, t)
	}
	acts := make([]dynamo.Actuation, p.cfg.N-1)
	for t := range acts {
		acts[t] = p.actuation(z, t)
	}
	return states, acts
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
