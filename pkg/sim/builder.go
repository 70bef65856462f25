package sim

import (
	"fmt"

	"github.com/venlab/physgate/pkg/arena"
	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/events"
	"github.com/venlab/physgate/pkg/integrator"
	"github.com/venlab/physgate/pkg/predicate"
	"github.com/venlab/physgate/pkg/types"
)

// captureState copies the active arena bodies into a flat integrator
// state. Order is arena insertion order.
func captureState(bodies []*arena.Body) *integrator.State {
	st := integrator.NewState(len(bodies))
	for i, b := range bodies {
		st.Pos[i] = b.State.Position
		st.Vel[i] = b.State.Velocity
		st.Angle[i] = b.State.Angle
		st.Omega[i] = b.State.AngularVel
	}
	return st
}

// materialize writes a flat state back onto the arena bodies.
func materialize(bodies []*arena.Body, st *integrator.State) {
	for i, b := range bodies {
		b.State.Position = st.Pos[i]
		b.State.Velocity = st.Vel[i]
		b.State.Angle = st.Angle[i]
		b.State.AngularVel = st.Omega[i]
	}
}

// eventName resolves the id an emitted event should carry: if an
// expectation matches the predicate's kind and actors, the expectation
// name wins so contract references (stage exits, end conditions,
// acceptance) line up with the log.
func eventName(c *contract.Contract, kind types.EventKind, actors []string, fallback string) string {
	for _, e := range c.ExpectedEvents {
		if e.Kind != "" && e.Kind != kind {
			continue
		}
		if e.Body != "" && !containsString(actors, e.Body) {
			continue
		}
		if e.Surface != "" && !containsString(actors, e.Surface) {
			continue
		}
		if e.Kind == "" && e.Body == "" && e.Surface == "" {
			continue // an unconstrained expectation matches nothing here
		}
		return e.Name
	}
	return fallback
}

func containsString(haystack []string, want string) bool {
	for _, s := range haystack {
		if s == want {
			return true
		}
	}
	return false
}

// buildPredicates registers the predicate table for the current arena
// population. Called at start and again after merges change the body
// set. Evaluation closures read the arena, which the simulator
// materializes before each probe.
func (s *Simulator) buildPredicates() {
	s.det = events.New(s.eventTol())

	bodies := s.active

	// Contact and separation per body/surface pairing. The active set
	// gates force application; detection watches every declared pairing,
	// whether or not the current stage enables it.
	for _, b := range bodies {
		body := b
		for _, srf := range s.c.Surfaces {
			srf := srf
			dist := func(t float64) float64 { return s.model.SignedDistance(body, srf) }
			actors := []string{body.ID, srf.ID}
			s.det.Add(&events.Predicate{
				ID:       eventName(s.c, types.EventContact, actors, fmt.Sprintf("contact_%s_%s", body.ID, srf.ID)),
				Kind:     types.EventContact,
				Actors:   actors,
				Severity: types.SeverityMedium,
				Dir:      events.CrossDown,
				Eval:     dist,
			})
			s.det.Add(&events.Predicate{
				ID:       eventName(s.c, types.EventSeparation, actors, fmt.Sprintf("separation_%s_%s", body.ID, srf.ID)),
				Kind:     types.EventSeparation,
				Actors:   actors,
				Severity: types.SeverityLow,
				Dir:      events.CrossUp,
				Eval:     dist,
			})
		}
	}

	// Body-body collision gap.
	for i := range bodies {
		for j := i + 1; j < len(bodies); j++ {
			a, b := bodies[i], bodies[j]
			if !s.model.Active().CollisionOn(a.ID, b.ID) {
				continue
			}
			actors := []string{a.ID, b.ID}
			s.det.Add(&events.Predicate{
				ID:       eventName(s.c, types.EventCollision, actors, fmt.Sprintf("collision_%s_%s", a.ID, b.ID)),
				Kind:     types.EventCollision,
				Actors:   actors,
				Severity: types.SeverityHigh,
				Dir:      events.CrossDown,
				Eval:     func(t float64) float64 { return s.model.Gap(a, b) },
			})
		}
	}

	// Velocity direction change: g = v_prev · v_now against the last
	// committed sample's velocity.
	for _, b := range bodies {
		body := b
		actors := []string{body.ID}
		s.det.Add(&events.Predicate{
			ID:       eventName(s.c, types.EventStateChange, actors, fmt.Sprintf("reversal_%s", body.ID)),
			Kind:     types.EventStateChange,
			Actors:   actors,
			Severity: types.SeverityLow,
			Dir:      events.CrossDown,
			Eval: func(t float64) float64 {
				return s.prevVel[body.ID].Dot(body.State.Velocity)
			},
		})
	}

	// Contract-declared constraints become threshold predicates over the
	// pre-parsed expression tree.
	for _, cn := range s.c.Constraints {
		tree, err := predicate.Parse(cn.Expr)
		if err != nil {
			// The gate rejects unparsable expressions; reaching here
			// means the caller skipped validation.
			s.log.Warn("skipping unparsable constraint", "id", cn.ID, "err", err)
			continue
		}
		body, ok := s.ar.Get(cn.Body)
		if !ok || !body.Active {
			continue
		}
		tgt := body
		s.det.Add(&events.Predicate{
			ID:       cn.ID,
			Kind:     types.EventThreshold,
			Actors:   []string{cn.Body},
			Severity: types.SeverityHigh,
			Dir:      events.CrossUp,
			Eval: func(t float64) float64 {
				return tree.Margin(tgt.State)
			},
		})
	}

	// Flag terminal predicates.
	if s.c.End.Event != "" {
		for _, p := range s.det.Predicates() {
			if p.ID == s.c.End.Event {
				p.Terminal = true
			}
		}
	}
}

// eventTol returns the bisection tolerance: 1e-4 s or a tenth of the
// contract's event time tolerance, whichever is smaller.
func (s *Simulator) eventTol() float64 {
	tol := 1e-4
	if t := s.c.Tolerances.EventTimeSec / 10; t > 0 && t < tol {
		tol = t
	}
	return tol
}
