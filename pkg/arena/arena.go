// Package arena holds the simulation's body table: bodies addressed by
// stable string ids, backed by an append-only slice so retired bodies
// remain referencable by historical events.
package arena

import (
	"errors"
	"fmt"

	"github.com/EngoEngine/ecs"
	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/types"
)

// ErrUnknownBody is returned for lookups of ids never added to the arena.
var ErrUnknownBody = errors.New("unknown body id")

// Body is one live or retired rigid body.
type Body struct {
	Entity  ecs.BasicEntity
	ID      string
	Kind    types.BodyKind
	Mass    float64
	Inertia float64
	Radius  float64
	State   types.BodyState

	// Active is false once the body has been retired by a merge.
	Active bool
}

// Arena is the body table. Iteration order is insertion order, which
// keeps force accumulation and event detection deterministic.
type Arena struct {
	bodies []*Body
	index  map[string]int
}

// FromContract builds the arena from the contract's body declarations.
func FromContract(c *contract.Contract) *Arena {
	a := &Arena{index: make(map[string]int, len(c.Bodies))}
	for _, b := range c.Bodies {
		a.add(&Body{
			Entity:  ecs.NewBasic(),
			ID:      b.ID,
			Kind:    b.Kind,
			Mass:    b.Mass,
			Inertia: b.Inertia,
			Radius:  b.Radius,
			State: types.BodyState{
				ID:         b.ID,
				Position:   b.Position,
				Velocity:   b.Velocity,
				Angle:      b.Angle,
				AngularVel: b.AngularVel,
			},
			Active: true,
		})
	}
	return a
}

func (a *Arena) add(b *Body) {
	a.index[b.ID] = len(a.bodies)
	a.bodies = append(a.bodies, b)
}

// Get returns the body with the given id, active or retired.
func (a *Arena) Get(id string) (*Body, bool) {
	i, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return a.bodies[i], true
}

// Active returns the live bodies in insertion order.
func (a *Arena) Active() []*Body {
	out := make([]*Body, 0, len(a.bodies))
	for _, b := range a.bodies {
		if b.Active {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the total body count, retired bodies included.
func (a *Arena) Len() int { return len(a.bodies) }

// Snapshot returns a deep copy of the active body states in insertion
// order, suitable for appending to a trace sample.
func (a *Arena) Snapshot() []types.BodyState {
	var out []types.BodyState
	for _, b := range a.bodies {
		if b.Active {
			out = append(out, b.State.Clone())
		}
	}
	return out
}

// Merge retires bodies a and b and introduces a composite with conserved
// total mass, center-of-mass position and momentum-conserving velocity.
// The composite inherits the union of the parents' active contacts.
func (ar *Arena) Merge(aID, bID, into string) (*Body, error) {
	ba, ok := ar.Get(aID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBody, aID)
	}
	bb, ok := ar.Get(bID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBody, bID)
	}
	if _, exists := ar.index[into]; exists {
		return nil, fmt.Errorf("merge target %q already exists", into)
	}

	m := ba.Mass + bb.Mass
	com := ba.State.Position.MultiplyScalar(ba.Mass).
		Add(bb.State.Position.MultiplyScalar(bb.Mass)).DivideScalar(m)
	vel := ba.State.Velocity.MultiplyScalar(ba.Mass).
		Add(bb.State.Velocity.MultiplyScalar(bb.Mass)).DivideScalar(m)

	contacts := append([]string(nil), ba.State.Contacts...)
	for _, cid := range bb.State.Contacts {
		dup := false
		for _, have := range contacts {
			if have == cid {
				dup = true
				break
			}
		}
		if !dup {
			contacts = append(contacts, cid)
		}
	}

	ba.Active = false
	bb.Active = false

	merged := &Body{
		Entity:  ecs.NewBasic(),
		ID:      into,
		Kind:    types.BodyAssembly,
		Mass:    m,
		Inertia: ba.Inertia + bb.Inertia,
		Radius:  maxFloat(ba.Radius, bb.Radius),
		State: types.BodyState{
			ID:       into,
			Position: com,
			Velocity: vel,
			Contacts: contacts,
		},
		Active: true,
	}
	ar.add(merged)
	return merged, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
