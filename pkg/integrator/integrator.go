// Package integrator advances the rigid-body state in time. Two steppers
// share one interface: a fixed-step semi-implicit Euler (the baseline,
// symplectic for mechanical systems) and an adaptive RK4(5) with local
// error control.
package integrator

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/venlab/physgate/pkg/types"
)

// Step size and tolerance defaults.
const (
	MinFixedStep = 1e-4
	MaxFixedStep = 1e-2

	DefaultATol = 1e-6
	DefaultRTol = 1e-4
)

// State is the flat kinematic state of the active bodies, index-aligned
// with the arena's insertion order.
type State struct {
	Pos   []types.Vector2
	Vel   []types.Vector2
	Angle []float64
	Omega []float64
}

// NewState allocates a state for n bodies.
func NewState(n int) *State {
	return &State{
		Pos:   make([]types.Vector2, n),
		Vel:   make([]types.Vector2, n),
		Angle: make([]float64, n),
		Omega: make([]float64, n),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := NewState(len(s.Pos))
	copy(c.Pos, s.Pos)
	copy(c.Vel, s.Vel)
	copy(c.Angle, s.Angle)
	copy(c.Omega, s.Omega)
	return c
}

// CopyFrom overwrites s with o.
func (s *State) CopyFrom(o *State) {
	copy(s.Pos, o.Pos)
	copy(s.Vel, o.Vel)
	copy(s.Angle, o.Angle)
	copy(s.Omega, o.Omega)
}

// Norm returns the Euclidean norm of the flattened state, used by the
// adaptive acceptance rule.
func (s *State) Norm() float64 {
	flat := make([]float64, 0, 6*len(s.Pos))
	for i := range s.Pos {
		flat = append(flat, s.Pos[i].X, s.Pos[i].Y, s.Vel[i].X, s.Vel[i].Y, s.Angle[i], s.Omega[i])
	}
	return floats.Norm(flat, 2)
}

// IsFinite reports whether every component is a finite number.
func (s *State) IsFinite() bool {
	for i := range s.Pos {
		if !s.Pos[i].IsFinite() || !s.Vel[i].IsFinite() {
			return false
		}
		if math.IsNaN(s.Angle[i]) || math.IsInf(s.Angle[i], 0) ||
			math.IsNaN(s.Omega[i]) || math.IsInf(s.Omega[i], 0) {
			return false
		}
	}
	return true
}

// Derivative evaluates accelerations at (t, state): linear acceleration
// and angular acceleration per body.
type Derivative func(t float64, s *State) (accel []types.Vector2, alpha []float64)

// Result reports one committed step.
type Result struct {
	H        float64 // step actually taken
	ErrEst   float64 // local error estimate (0 for fixed step)
	Rejected int     // rejected attempts before acceptance
}

// Stepper advances the state in place from t by up to hMax seconds.
type Stepper interface {
	Step(t float64, s *State, d Derivative, hMax float64) Result
}

// SymplecticEuler is the fixed-step baseline: velocities first, then
// positions with the updated velocities.
type SymplecticEuler struct {
	H float64
}

// NewSymplecticEuler clamps the step into the supported range.
func NewSymplecticEuler(h float64) *SymplecticEuler {
	if h < MinFixedStep {
		h = MinFixedStep
	}
	if h > MaxFixedStep {
		h = MaxFixedStep
	}
	return &SymplecticEuler{H: h}
}

// Step advances by min(H, hMax).
func (e *SymplecticEuler) Step(t float64, s *State, d Derivative, hMax float64) Result {
	h := e.H
	if hMax > 0 && hMax < h {
		h = hMax
	}
	accel, alpha := d(t, s)
	for i := range s.Pos {
		s.Vel[i] = s.Vel[i].Add(accel[i].MultiplyScalar(h))
		s.Pos[i] = s.Pos[i].Add(s.Vel[i].MultiplyScalar(h))
		s.Omega[i] += alpha[i] * h
		s.Angle[i] += s.Omega[i] * h
	}
	return Result{H: h}
}

// RK45 is the adaptive Runge-Kutta-Fehlberg 4(5) stepper. A step is
// accepted iff err <= atol + rtol*||state||; rejected attempts shrink
// the step and are counted.
type RK45 struct {
	ATol float64
	RTol float64
	h    float64
	hMin float64
	hMax float64
}

// NewRK45 builds the adaptive stepper with an initial step hint.
func NewRK45(hInit, atol, rtol float64) *RK45 {
	if hInit <= 0 {
		hInit = 1e-3
	}
	if atol <= 0 {
		atol = DefaultATol
	}
	if rtol <= 0 {
		rtol = DefaultRTol
	}
	return &RK45{ATol: atol, RTol: rtol, h: hInit, hMin: 1e-7, hMax: 0.05}
}

// Fehlberg coefficients.
var (
	rkA = [6][5]float64{
		{},
		{1.0 / 4},
		{3.0 / 32, 9.0 / 32},
		{1932.0 / 2197, -7200.0 / 2197, 7296.0 / 2197},
		{439.0 / 216, -8, 3680.0 / 513, -845.0 / 4104},
		{-8.0 / 27, 2, -3544.0 / 2565, 1859.0 / 4104, -11.0 / 40},
	}
	rkB5 = [6]float64{16.0 / 135, 0, 6656.0 / 12825, 28561.0 / 56430, -9.0 / 50, 2.0 / 55}
	rkB4 = [6]float64{25.0 / 216, 0, 1408.0 / 2565, 2197.0 / 4104, -1.0 / 5, 0}
	rkC  = [6]float64{0, 1.0 / 4, 3.0 / 8, 12.0 / 13, 1, 1.0 / 2}
)

type deriv struct {
	vel   []types.Vector2
	accel []types.Vector2
	omega []float64
	alpha []float64
}

// Step attempts RK45 steps until one is accepted or the step floor is
// reached (the floor step is then taken regardless, so the integration
// always progresses).
func (r *RK45) Step(t float64, s *State, d Derivative, hMax float64) Result {
	rejected := 0
	h := r.h
	for {
		if hMax > 0 && h > hMax {
			h = hMax
		}
		next, errEst := r.attempt(t, s, d, h)
		tol := r.ATol + r.RTol*s.Norm()
		if errEst <= tol || h <= r.hMin {
			s.CopyFrom(next)
			// Grow the next step conservatively on acceptance.
			if errEst > 0 {
				factor := 0.9 * math.Pow(tol/errEst, 0.2)
				if factor > 4 {
					factor = 4
				}
				r.h = clamp(h*factor, r.hMin, r.hMax)
			} else {
				r.h = clamp(h*2, r.hMin, r.hMax)
			}
			return Result{H: h, ErrEst: errEst, Rejected: rejected}
		}
		rejected++
		factor := 0.9 * math.Pow(tol/errEst, 0.25)
		if factor < 0.1 {
			factor = 0.1
		}
		h = clamp(h*factor, r.hMin, r.hMax)
	}
}

// attempt evaluates one trial step of size h and its 4th/5th order error.
func (r *RK45) attempt(t float64, s *State, d Derivative, h float64) (*State, float64) {
	n := len(s.Pos)
	var k [6]deriv

	for stage := 0; stage < 6; stage++ {
		ys := s.Clone()
		for prev := 0; prev < stage; prev++ {
			a := rkA[stage][prev] * h
			if a == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				ys.Pos[i] = ys.Pos[i].Add(k[prev].vel[i].MultiplyScalar(a))
				ys.Vel[i] = ys.Vel[i].Add(k[prev].accel[i].MultiplyScalar(a))
				ys.Angle[i] += k[prev].omega[i] * a
				ys.Omega[i] += k[prev].alpha[i] * a
			}
		}
		accel, alpha := d(t+rkC[stage]*h, ys)
		k[stage] = deriv{
			vel:   append([]types.Vector2(nil), ys.Vel...),
			accel: accel,
			omega: append([]float64(nil), ys.Omega...),
			alpha: alpha,
		}
	}

	next := s.Clone()
	low := s.Clone()
	for stage := 0; stage < 6; stage++ {
		b5 := rkB5[stage] * h
		b4 := rkB4[stage] * h
		for i := 0; i < n; i++ {
			next.Pos[i] = next.Pos[i].Add(k[stage].vel[i].MultiplyScalar(b5))
			next.Vel[i] = next.Vel[i].Add(k[stage].accel[i].MultiplyScalar(b5))
			next.Angle[i] += k[stage].omega[i] * b5
			next.Omega[i] += k[stage].alpha[i] * b5

			low.Pos[i] = low.Pos[i].Add(k[stage].vel[i].MultiplyScalar(b4))
			low.Vel[i] = low.Vel[i].Add(k[stage].accel[i].MultiplyScalar(b4))
			low.Angle[i] += k[stage].omega[i] * b4
			low.Omega[i] += k[stage].alpha[i] * b4
		}
	}

	var errEst float64
	for i := 0; i < n; i++ {
		errEst = math.Max(errEst, next.Pos[i].Subtract(low.Pos[i]).Magnitude())
		errEst = math.Max(errEst, next.Vel[i].Subtract(low.Vel[i]).Magnitude())
		errEst = math.Max(errEst, math.Abs(next.Angle[i]-low.Angle[i]))
		errEst = math.Max(errEst, math.Abs(next.Omega[i]-low.Omega[i]))
	}
	return next, errEst
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
