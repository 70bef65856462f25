// Package events detects zero-crossings of scalar predicates between
// consecutive integrator states and resolves them to precise times with
// a bracketing bisection root-finder.
package events

import (
	"math"
	"sort"

	"github.com/venlab/physgate/pkg/types"
)

const (
	// MaxBisectIterations caps the root-finder; on exhaustion the event
	// is recorded at the bracket midpoint with a warning, never dropped.
	MaxBisectIterations = 50

	// tieEpsilon is the time separation under which two crossings count
	// as simultaneous and the kind priority decides.
	tieEpsilon = 1e-9
)

// Direction restricts which sign changes fire a predicate.
type Direction int

const (
	CrossAny  Direction = 0
	CrossDown Direction = -1 // positive to non-positive
	CrossUp   Direction = 1  // negative to non-negative
)

// Predicate is one watched scalar function g(state, t). The simulator
// materializes trial states before Eval is called, so Eval reads the
// current working state directly.
type Predicate struct {
	ID       string
	Kind     types.EventKind
	Actors   []string
	Severity types.Severity
	Terminal bool
	Dir      Direction

	// Eval returns g at the currently materialized state.
	Eval func(t float64) float64

	// Disarmed predicates are skipped by Scan. Prime and Rearm do not
	// change the flag.
	Disarmed bool

	lastG     float64
	lastValid bool
}

// fires reports whether the g0→g1 transition matches the direction.
func (p *Predicate) fires(g0, g1 float64) bool {
	switch p.Dir {
	case CrossDown:
		return g0 > 0 && g1 <= 0
	case CrossUp:
		return g0 < 0 && g1 >= 0
	default:
		return (g0 > 0 && g1 <= 0) || (g0 < 0 && g1 >= 0)
	}
}

// Crossing is one resolved event candidate.
type Crossing struct {
	Pred      *Predicate
	T         float64
	G         float64
	Converged bool
}

// Detector owns the predicate table for one simulation run.
type Detector struct {
	preds []*Predicate
	tol   float64
}

// New builds a detector with the given root-finding time tolerance.
func New(tol float64) *Detector {
	if tol <= 0 {
		tol = 1e-4
	}
	return &Detector{tol: tol}
}

// Tolerance returns the root-finding time tolerance.
func (d *Detector) Tolerance() float64 { return d.tol }

// Add registers a predicate.
func (d *Detector) Add(p *Predicate) { d.preds = append(d.preds, p) }

// Predicates returns the registered predicates in registration order.
func (d *Detector) Predicates() []*Predicate { return d.preds }

// Prime evaluates every predicate at the committed state so the next
// Scan has a baseline. probe materializes the state at time t.
func (d *Detector) Prime(t float64, probe func(t float64)) {
	probe(t)
	for _, p := range d.preds {
		p.lastG = p.Eval(t)
		p.lastValid = true
	}
}

// Scan checks every predicate for a matching sign change across
// [t0, t1] and returns the earliest crossing, bisected to the detector
// tolerance. probe(t) must materialize the trial state at time t. With
// no crossing, Scan leaves the state materialized at t1; otherwise it is
// left at the crossing time of the last predicate bisected, which need
// not be the returned crossing.
//
// Ties within 1e-9 s are broken by the fixed kind priority
// (collision > contact > separation > threshold > state-change > custom).
func (d *Detector) Scan(t0, t1 float64, probe func(t float64)) *Crossing {
	type hit struct {
		p  *Predicate
		g0 float64
	}
	var hits []hit

	probe(t1)
	g1s := make([]float64, len(d.preds))
	for i, p := range d.preds {
		g1s[i] = p.Eval(t1)
		if p.Disarmed || !p.lastValid {
			continue
		}
		if p.fires(p.lastG, g1s[i]) {
			hits = append(hits, hit{p: p, g0: p.lastG})
		}
	}
	if len(hits) == 0 {
		for i, p := range d.preds {
			p.lastG = g1s[i]
			p.lastValid = true
		}
		return nil
	}

	crossings := make([]*Crossing, 0, len(hits))
	for _, h := range hits {
		crossings = append(crossings, d.bisect(h.p, t0, t1, h.g0, probe))
	}

	sort.SliceStable(crossings, func(i, j int) bool {
		dt := crossings[i].T - crossings[j].T
		if math.Abs(dt) < tieEpsilon {
			return crossings[i].Pred.Kind.Priority() < crossings[j].Pred.Kind.Priority()
		}
		return dt < 0
	})
	return crossings[0]
}

// Rearm re-evaluates the baseline after the simulator restarted from an
// event time.
func (d *Detector) Rearm(t float64, probe func(t float64)) {
	d.Prime(t, probe)
}

// bisect narrows [lo, hi] until the bracket is shorter than the time
// tolerance. The returned crossing carries the first in-bracket time at
// which the predicate has fired.
func (d *Detector) bisect(p *Predicate, lo, hi, gLo float64, probe func(t float64)) *Crossing {
	converged := false
	for i := 0; i < MaxBisectIterations; i++ {
		if hi-lo <= d.tol {
			converged = true
			break
		}
		mid := 0.5 * (lo + hi)
		probe(mid)
		gMid := p.Eval(mid)
		if p.fires(gLo, gMid) {
			hi = mid
		} else {
			lo, gLo = mid, gMid
		}
	}
	t := hi
	if !converged {
		t = 0.5 * (lo + hi)
	}
	probe(t)
	return &Crossing{Pred: p, T: t, G: p.Eval(t), Converged: converged}
}
