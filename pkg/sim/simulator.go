// Package sim orchestrates one simulation run: the integrator core, the
// force model, the event detector and the stage controller, producing an
// append-only trace.
package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/zerodha/logf"

	"github.com/venlab/physgate/pkg/arena"
	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/events"
	"github.com/venlab/physgate/pkg/forces"
	"github.com/venlab/physgate/pkg/gate"
	"github.com/venlab/physgate/pkg/integrator"
	"github.com/venlab/physgate/pkg/stage"
	"github.com/venlab/physgate/pkg/trace"
	"github.com/venlab/physgate/pkg/types"
)

// DivergenceSpeed is the speed above which a run is declared divergent.
const DivergenceSpeed = 1e6

// Failure wraps an unexpected error from inside the core with the
// partial trace produced so far.
type Failure struct {
	Code  string
	Trace *trace.Trace
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Code, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Simulator runs one contract to completion. Each run builds a fresh
// workspace: no state is shared between calls.
type Simulator struct {
	c    *contract.Contract
	log  logf.Logger
	opts Options

	ar      *arena.Arena
	model   *forces.Model
	ctl     *stage.Controller
	det     *events.Detector
	stepper integrator.Stepper
	tr      *trace.Trace

	active  []*arena.Body
	st      *integrator.State
	t       float64
	substep float64
	prevVel map[string]types.Vector2

	stageEnteredAt   float64
	stepsSinceSample int
}

// Simulate validates the contract through the Pre-Sim Gate and runs it.
// A gate failure aborts with the *gate.Error; simulation failures
// (divergence, budget exhaustion) are reported in the trace, not as
// errors. An optional tEnd overrides the contract's end time without
// mutating the caller's contract.
func Simulate(c *contract.Contract, log logf.Logger, opts Options, tEnd ...float64) (*trace.Trace, error) {
	if _, err := gate.Assert(c); err != nil {
		return nil, err
	}
	if len(tEnd) > 0 && tEnd[0] > 0 {
		override := *c
		override.End.TEnd = tEnd[0]
		c = &override
	}
	return New(c, log, opts).Run()
}

// New builds a simulator workspace for one run.
func New(c *contract.Contract, log logf.Logger, opts Options) *Simulator {
	if opts.SampleEvery <= 0 {
		opts.SampleEvery = 1
	}
	s := &Simulator{
		c:       c,
		log:     log,
		opts:    opts,
		ar:      arena.FromContract(c),
		ctl:     stage.New(c, log),
		tr:      &trace.Trace{},
		stepper: opts.stepper(),
		prevVel: map[string]types.Vector2{},
	}
	s.substep = opts.Step
	if s.substep < integrator.MinFixedStep {
		s.substep = integrator.MinFixedStep
	}
	if s.substep > integrator.MaxFixedStep {
		s.substep = integrator.MaxFixedStep
	}
	s.model = forces.New(c, forces.Config{
		Gravity:     c.World.Gravity,
		VEps:        c.Tolerances.VEps,
		HardContact: opts.HardContact,
	})
	s.model.SetActive(s.ctl.ActiveSet())
	s.rebuild()
	return s
}

// rebuild refreshes the active body list, the flat state and the
// predicate table. Called at start and after merges change the body set.
func (s *Simulator) rebuild() {
	s.active = s.ar.Active()
	s.st = captureState(s.active)
	for _, b := range s.active {
		if _, ok := s.prevVel[b.ID]; !ok {
			s.prevVel[b.ID] = b.State.Velocity
		}
	}
	s.buildPredicates()
}

// Run advances the system to its end condition and returns the trace.
// The returned trace is valid for every end reason; the error is non-nil
// only for unexpected internal failures, wrapped with the partial trace.
func (s *Simulator) Run() (tr *trace.Trace, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.tr.EndReason = trace.EndDivergence
			tr = s.tr
			err = &Failure{Code: gate.CodeValidationException, Trace: s.tr, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := time.Now()
	defer func() { s.tr.Stats.CPUTime = time.Since(start) }()

	s.model.RefreshContacts(s.active)
	s.commitSample()
	s.det.Prime(s.t, s.probeFrom(s.st, s.t))
	s.log.Info("simulation started", "bodies", len(s.active), "mode", string(s.opts.Mode), "t_end", s.c.End.TEnd)

	for {
		if reason, done := s.checkTermination(); done {
			s.finish(reason)
			return s.tr, nil
		}

		t0 := s.t
		base := s.st.Clone()
		hMax := s.horizon(t0)

		res := s.stepper.Step(t0, s.st, s.deriv, hMax)
		t1 := t0 + res.H
		s.tr.Stats.Steps++
		s.tr.Stats.RejectedSteps += res.Rejected
		if res.ErrEst > s.tr.Stats.MaxLocalError {
			s.tr.Stats.MaxLocalError = res.ErrEst
		}

		// Rope constraints act impulsively on the proposed state.
		materialize(s.active, s.st)
		s.model.ApplyRopes(s.active)
		s.st = captureState(s.active)

		cross := s.det.Scan(t0, t1, s.probeBetween(base, t0, t1))
		if cross != nil {
			if err := s.stepToEvent(base, t0, cross); err != nil {
				return s.tr, &Failure{Code: gate.CodeValidationException, Trace: s.tr, Err: err}
			}
			if cross.Pred.Terminal {
				s.finish(trace.EndTerminalEvent)
				return s.tr, nil
			}
			continue
		}

		s.t = t1
		materialize(s.active, s.st)
		s.model.RefreshContacts(s.active)

		s.stepsSinceSample++
		if s.stepsSinceSample >= s.opts.SampleEvery {
			s.commitSample()
		}

		if err := s.maybeExitStageOnTime(); err != nil {
			return s.tr, &Failure{Code: gate.CodeValidationException, Trace: s.tr, Err: err}
		}
	}
}

// checkTermination inspects the committed state for an end condition.
func (s *Simulator) checkTermination() (trace.EndReason, bool) {
	if !s.st.IsFinite() {
		return trace.EndDivergence, true
	}
	for _, b := range s.active {
		if b.State.Velocity.Magnitude() > DivergenceSpeed {
			return trace.EndDivergence, true
		}
	}
	if s.outOfBounds() {
		return trace.EndBoundExit, true
	}
	if budget := s.c.World.StatsBudget; budget > 0 && s.tr.Stats.Steps >= budget {
		return trace.EndBudgetExhausted, true
	}
	if s.c.End.TEnd > 0 && s.t >= s.c.End.TEnd-1e-12 {
		return trace.EndTimeLimit, true
	}
	return "", false
}

// outOfBounds reports whether any active body left the world box.
func (s *Simulator) outOfBounds() bool {
	bounds := s.c.World.Bounds
	if bounds.Min == bounds.Max {
		return false // no bounds declared
	}
	for _, b := range s.active {
		if !bounds.Contains(b.State.Position) {
			return true
		}
	}
	return false
}

// horizon caps the next step so the integrator lands exactly on the end
// time and any stage time bound.
func (s *Simulator) horizon(t0 float64) float64 {
	h := math.Inf(1)
	if s.c.End.TEnd > 0 {
		h = s.c.End.TEnd - t0
	}
	if st, ok := s.ctl.ActiveStage(); ok && st.Exit.Time > 0 {
		if d := s.stageEnteredAt + st.Exit.Time - t0; d < h {
			h = d
		}
	}
	if h <= 0 {
		h = 1e-12
	}
	return h
}

// deriv evaluates accelerations at a trial state by materializing it and
// querying the force model. Evaluation order is fixed by the arena.
func (s *Simulator) deriv(t float64, st *integrator.State) ([]types.Vector2, []float64) {
	materialize(s.active, st)
	fs := s.model.Accumulate(s.active)
	accel := make([]types.Vector2, len(s.active))
	alpha := make([]float64, len(s.active))
	for i, b := range s.active {
		accel[i] = fs[i].Force.DivideScalar(b.Mass)
		if b.Inertia > 0 {
			alpha[i] = fs[i].Torque / b.Inertia
		}
	}
	return accel, alpha
}

// eulerSubstep advances a state copy by h with semi-implicit Euler
// substeps no larger than the configured fixed step; used for event
// probing and the re-step to an event time so both see the same
// trajectory regardless of the main stepper.
func (s *Simulator) eulerSubstep(t0 float64, w *integrator.State, h float64) {
	remaining := h
	t := t0
	for remaining > 0 {
		dt := remaining
		if dt > s.substep {
			dt = s.substep
		}
		accel, alpha := s.deriv(t, w)
		for i := range w.Pos {
			w.Vel[i] = w.Vel[i].Add(accel[i].MultiplyScalar(dt))
			w.Pos[i] = w.Pos[i].Add(w.Vel[i].MultiplyScalar(dt))
			w.Omega[i] += alpha[i] * dt
			w.Angle[i] += w.Omega[i] * dt
		}
		t += dt
		remaining -= dt
	}
}

// probeFrom materializes the state at an arbitrary time at or after the
// base time.
func (s *Simulator) probeFrom(base *integrator.State, t0 float64) func(float64) {
	return func(t float64) {
		if t <= t0 {
			materialize(s.active, base)
			return
		}
		w := base.Clone()
		s.eulerSubstep(t0, w, t-t0)
		materialize(s.active, w)
	}
}

// probeBetween is probeFrom with the committed endpoints pinned so the
// scan evaluates exactly the proposed states at t0 and t1.
func (s *Simulator) probeBetween(base *integrator.State, t0, t1 float64) func(float64) {
	return func(t float64) {
		switch {
		case t <= t0:
			materialize(s.active, base)
		case t >= t1-1e-15:
			materialize(s.active, s.st)
		default:
			w := base.Clone()
			s.eulerSubstep(t0, w, t-t0)
			materialize(s.active, w)
		}
	}
}

// stepToEvent re-steps from the pre-step state to exactly the event
// time, emits the event, applies its effects and restarts the detector.
func (s *Simulator) stepToEvent(base *integrator.State, t0 float64, cross *events.Crossing) error {
	if cross.T > t0 {
		w := base.Clone()
		s.eulerSubstep(t0, w, cross.T-t0)
		s.st = w
	} else {
		s.st = base.Clone()
	}
	s.t = cross.T
	materialize(s.active, s.st)

	if !cross.Converged {
		s.log.Warn("event root-finding did not converge; recording at bracket midpoint",
			"event", cross.Pred.ID, "t", cross.T)
	}

	ev := types.Event{
		ID:       cross.Pred.ID,
		Kind:     cross.Pred.Kind,
		Time:     cross.T,
		Actors:   append([]string(nil), cross.Pred.Actors...),
		Params:   map[string]float64{"g": cross.G},
		Severity: cross.Pred.Severity,
		Terminal: cross.Pred.Terminal,
	}

	s.applyEventDynamics(cross)
	s.tr.RecordEvent(ev)
	s.log.Info("event", "id", ev.ID, "kind", string(ev.Kind), "t", ev.Time)

	s.model.RefreshContacts(s.active)
	s.st = captureState(s.active)
	s.commitSample() // events always force a sample

	if st, ok := s.ctl.ActiveStage(); ok && st.Exit.Event != "" && st.Exit.Event == ev.ID {
		if err := s.exitStage(); err != nil {
			return err
		}
	}

	s.det.Rearm(s.t, s.probeFrom(s.st, s.t))
	return nil
}

// applyEventDynamics mutates velocities for events that act impulsively.
func (s *Simulator) applyEventDynamics(cross *events.Crossing) {
	switch cross.Pred.Kind {
	case types.EventCollision:
		a, okA := s.ar.Get(cross.Pred.Actors[0])
		b, okB := s.ar.Get(cross.Pred.Actors[1])
		if !okA || !okB {
			return
		}
		if s.pairMergesThisStage(a.ID, b.ID) {
			return // the stage merge sets the composite velocity
		}
		// Bodies carry no restitution of their own; body-body impacts
		// not resolved by a merge are treated as elastic.
		s.model.ResolveBodyCollision(a, b, 1.0)
	case types.EventContact:
		if !s.opts.HardContact {
			return
		}
		b, okB := s.ar.Get(cross.Pred.Actors[0])
		srf, okS := s.c.SurfaceByID(cross.Pred.Actors[1])
		if okB && okS {
			s.model.ResolveSurfaceImpact(b, srf)
		}
	}
}

// pairMergesThisStage reports whether the active stage merges the pair.
func (s *Simulator) pairMergesThisStage(a, b string) bool {
	st, ok := s.ctl.ActiveStage()
	if !ok {
		return false
	}
	for _, m := range st.Merges {
		if (m.A == a && m.B == b) || (m.A == b && m.B == a) {
			return true
		}
	}
	return false
}

// maybeExitStageOnTime advances the stage when its time bound is hit.
func (s *Simulator) maybeExitStageOnTime() error {
	st, ok := s.ctl.ActiveStage()
	if !ok || st.Exit.Time <= 0 {
		return nil
	}
	if s.t >= s.stageEnteredAt+st.Exit.Time-1e-12 {
		return s.exitStage()
	}
	return nil
}

// exitStage applies the stage transition: merges, FSM advance, new
// initial conditions, and a full rebuild of state and predicates.
func (s *Simulator) exitStage() error {
	st, _ := s.ctl.ActiveStage()
	if err := s.ctl.Advance(s.t, s.ar); err != nil {
		return err
	}

	// Announce merges in the event log so expectations can match them.
	for _, m := range st.Merges {
		actors := []string{m.A, m.B, m.Into}
		s.tr.RecordEvent(types.Event{
			ID:       eventName(s.c, types.EventStateChange, actors, "merge_"+m.Into),
			Kind:     types.EventStateChange,
			Time:     s.t,
			Actors:   actors,
			Severity: types.SeverityHigh,
		})
		if merged, ok := s.ar.Get(m.Into); ok {
			s.prevVel[m.Into] = merged.State.Velocity
		}
	}

	s.stageEnteredAt = s.t
	s.model.SetActive(s.ctl.ActiveSet())
	s.rebuild()
	s.model.RefreshContacts(s.active)
	s.commitSample()
	s.det.Prime(s.t, s.probeFrom(s.st, s.t))
	return nil
}

// commitSample appends the current committed state to the trace and
// refreshes the per-body previous velocities used by reversal detection.
func (s *Simulator) commitSample() {
	// Strictly monotone sample times: an event sample followed by a
	// stage-exit sample at the same instant collapses to one.
	if last := s.tr.Final(); last != nil && s.t <= last.T {
		s.tr.Samples = s.tr.Samples[:len(s.tr.Samples)-1]
	}
	s.tr.Append(trace.Sample{
		T:        s.t,
		Bodies:   s.ar.Snapshot(),
		Energy:   s.model.Energy(s.active),
		Momentum: s.model.Momentum(s.active),
	})
	for _, b := range s.active {
		s.prevVel[b.ID] = b.State.Velocity
	}
	s.stepsSinceSample = 0
}

// finish stamps the end reason and logs the run summary.
func (s *Simulator) finish(reason trace.EndReason) {
	if s.stepsSinceSample > 0 {
		s.commitSample()
	}
	s.tr.EndReason = reason
	s.log.Info("simulation finished", "reason", string(reason),
		"t", s.t, "steps", s.tr.Stats.Steps, "events", len(s.tr.Events))
}
