package forces

import (
	"github.com/venlab/physgate/pkg/arena"
	"github.com/venlab/physgate/pkg/types"
)

// Energy returns the total mechanical energy of the active bodies:
// kinetic + gravitational potential + stored spring energy. The
// gravitational reference is the world origin.
func (m *Model) Energy(bodies []*arena.Body) float64 {
	var e float64
	for _, b := range bodies {
		v := b.State.Velocity.Magnitude()
		e += 0.5 * b.Mass * v * v
		e += 0.5 * b.Inertia * b.State.AngularVel * b.State.AngularVel
		e -= b.Mass * m.cfg.Gravity.Dot(b.State.Position)
	}

	idx := make(map[string]int, len(bodies))
	for i, b := range bodies {
		idx[b.ID] = i
	}
	for _, sp := range m.c.Springs {
		if !m.active.Springs[sp.ID] {
			continue
		}
		pa, _, _, oka := m.endpointState(sp.EndA, bodies, idx)
		pb, _, _, okb := m.endpointState(sp.EndB, bodies, idx)
		if !oka && !okb {
			continue
		}
		stretch := pb.Subtract(pa).Magnitude() - sp.RestLength
		e += 0.5 * sp.Stiffness * stretch * stretch
	}
	return e
}

// Momentum returns the total linear momentum of the active bodies.
func (m *Model) Momentum(bodies []*arena.Body) types.Vector2 {
	var p types.Vector2
	for _, b := range bodies {
		p = p.Add(b.State.Velocity.MultiplyScalar(b.Mass))
	}
	return p
}
