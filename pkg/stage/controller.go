// Package stage drives the discrete side of a simulation: the active
// stage pointer, the stage-dependent interaction set, and the entity
// merges and re-initializations applied at stage boundaries.
package stage

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/zerodha/logf"

	"github.com/venlab/physgate/pkg/arena"
	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/forces"
)

// StateDone is the terminal FSM state once every stage has exited.
const StateDone = "done"

// advanceEvent is the single FSM event name; transitions are keyed by
// source state.
const advanceEvent = "advance"

// Controller owns the stage machine for one run.
type Controller struct {
	*fsm.FSM
	c   *contract.Contract
	idx int
	log logf.Logger
}

// New builds the controller with one FSM state per declared stage. A
// contract with no stages gets a single implicit stage enabling every
// declared interaction channel.
func New(c *contract.Contract, log logf.Logger) *Controller {
	var events fsm.Events
	initial := StateDone
	if len(c.Stages) > 0 {
		initial = c.Stages[0].ID
		for i, st := range c.Stages {
			dst := StateDone
			if i+1 < len(c.Stages) {
				dst = c.Stages[i+1].ID
			}
			events = append(events, fsm.EventDesc{
				Name: advanceEvent,
				Src:  []string{st.ID},
				Dst:  dst,
			})
		}
	}
	return &Controller{
		FSM: fsm.NewFSM(initial, events, fsm.Callbacks{}),
		c:   c,
		log: log,
	}
}

// Done reports whether every stage has exited.
func (ctl *Controller) Done() bool {
	return len(ctl.c.Stages) == 0 || ctl.Current() == StateDone
}

// ActiveStage returns the current stage declaration.
func (ctl *Controller) ActiveStage() (contract.Stage, bool) {
	if ctl.idx >= len(ctl.c.Stages) || ctl.Done() {
		return contract.Stage{}, false
	}
	return ctl.c.Stages[ctl.idx], true
}

// ActiveSet builds the interaction switchboard for the force model from
// the current stage. With no stages declared, every channel is enabled
// for every declared pairing.
func (ctl *Controller) ActiveSet() forces.ActiveSet {
	set := forces.ActiveSet{
		Contact:   map[[2]string]bool{},
		Friction:  map[[2]string]bool{},
		Springs:   map[string]bool{},
		Ropes:     map[string]bool{},
		Collision: map[[2]string]bool{},
	}

	st, ok := ctl.ActiveStage()
	if !ok {
		if len(ctl.c.Stages) > 0 {
			return set // past the last stage: everything off
		}
		// Implicit single stage: all declared interactions live.
		for _, b := range ctl.c.Bodies {
			for _, s := range ctl.c.Surfaces {
				set.Contact[[2]string{b.ID, s.ID}] = true
				set.Friction[[2]string{b.ID, s.ID}] = true
			}
		}
		for _, sp := range ctl.c.Springs {
			set.Springs[sp.ID] = true
		}
		for _, rp := range ctl.c.Ropes {
			set.Ropes[rp.ID] = true
		}
		for i := range ctl.c.Bodies {
			for j := i + 1; j < len(ctl.c.Bodies); j++ {
				set.Collision[[2]string{ctl.c.Bodies[i].ID, ctl.c.Bodies[j].ID}] = true
			}
		}
		return set
	}

	for _, ia := range st.Interactions {
		switch ia.Kind {
		case contract.InteractionContact:
			set.Contact[[2]string{ia.Pair[0], ia.Pair[1]}] = true
		case contract.InteractionFriction:
			set.Friction[[2]string{ia.Pair[0], ia.Pair[1]}] = true
			// Friction presumes contact on the same pairing.
			set.Contact[[2]string{ia.Pair[0], ia.Pair[1]}] = true
		case contract.InteractionSpring:
			set.Springs[ia.Pair[0]] = true
		case contract.InteractionRope:
			set.Ropes[ia.Pair[0]] = true
		case contract.InteractionCollision:
			set.Collision[[2]string{ia.Pair[0], ia.Pair[1]}] = true
		}
	}
	return set
}

// Advance exits the current stage at time t: the stage's merges are
// applied to the arena, the FSM transitions, and the new stage's
// initial conditions are applied atomically.
func (ctl *Controller) Advance(t float64, ar *arena.Arena) error {
	st, ok := ctl.ActiveStage()
	if !ok {
		return fmt.Errorf("no active stage to advance from")
	}

	for _, m := range st.Merges {
		merged, err := ar.Merge(m.A, m.B, m.Into)
		if err != nil {
			return fmt.Errorf("stage %s merge: %w", st.ID, err)
		}
		ctl.log.Info("bodies merged", "stage", st.ID, "a", m.A, "b", m.B, "into", m.Into,
			"mass", merged.Mass, "vx", merged.State.Velocity.X, "vy", merged.State.Velocity.Y)
	}

	if err := ctl.Event(context.Background(), advanceEvent); err != nil {
		return fmt.Errorf("stage %s advance: %w", st.ID, err)
	}
	ctl.idx++

	if next, ok := ctl.ActiveStage(); ok {
		for _, in := range next.Init {
			b, found := ar.Get(in.Body)
			if !found || !b.Active {
				return fmt.Errorf("stage %s init: %w: %q", next.ID, arena.ErrUnknownBody, in.Body)
			}
			if in.Position != nil {
				b.State.Position = *in.Position
			}
			if in.Velocity != nil {
				b.State.Velocity = *in.Velocity
			}
		}
		ctl.log.Info("stage entered", "stage", next.ID, "t", t)
	} else {
		ctl.log.Info("final stage exited", "t", t)
	}
	return nil
}
