package forces

import (
	"github.com/venlab/physgate/pkg/arena"
	"github.com/venlab/physgate/pkg/contract"
)

// ResolveBodyCollision applies a restitution impulse along the line of
// centers of two colliding bodies. Call when the signed gap crosses zero
// with approach velocity.
func (m *Model) ResolveBodyCollision(a, b *arena.Body, restitution float64) {
	n := a.State.Position.Subtract(b.State.Position).Normalize()
	relVel := a.State.Velocity.Subtract(b.State.Velocity).Dot(n)
	if relVel >= 0 {
		return // already separating
	}
	invMass := 1/a.Mass + 1/b.Mass
	j := -(1 + restitution) * relVel / invMass
	a.State.Velocity = a.State.Velocity.Add(n.MultiplyScalar(j / a.Mass))
	b.State.Velocity = b.State.Velocity.Subtract(n.MultiplyScalar(j / b.Mass))
}

// ResolveSurfaceImpact applies the hard-contact restitution impulse on a
// body hitting a surface: the normal velocity component is reflected and
// scaled by e.
func (m *Model) ResolveSurfaceImpact(b *arena.Body, s contract.Surface) {
	vn := b.State.Velocity.Dot(s.Normal)
	if vn >= 0 {
		return
	}
	b.State.Velocity = b.State.Velocity.Subtract(s.Normal.MultiplyScalar((1 + s.Material.Restitution) * vn))
}

// ApplyRopes enforces the inextensibility constraints: when a rope is
// taut (L > L0) an impulse along the rope drives the length back and
// zeroes the radial relative velocity. Slack ropes exert nothing.
func (m *Model) ApplyRopes(bodies []*arena.Body) {
	idx := make(map[string]int, len(bodies))
	for i, b := range bodies {
		idx[b.ID] = i
	}

	for _, rp := range m.c.Ropes {
		if !m.active.Ropes[rp.ID] {
			continue
		}
		pa, va, ia, oka := m.endpointState(rp.EndA, bodies, idx)
		pb, vb, ib, okb := m.endpointState(rp.EndB, bodies, idx)
		if !oka && !okb {
			continue
		}
		axis := pb.Subtract(pa)
		length := axis.Magnitude()
		if length <= rp.Length+rp.Tolerance {
			continue
		}
		dir := axis.DivideScalar(length)

		// Zero the separating radial velocity with a momentum-conserving
		// impulse, then project the positions back onto the rope length.
		relVel := vb.Subtract(va).Dot(dir)
		if relVel > 0 {
			var invMass float64
			if oka {
				invMass += 1 / bodies[ia].Mass
			}
			if okb {
				invMass += 1 / bodies[ib].Mass
			}
			if invMass > 0 {
				j := relVel / invMass
				if oka {
					bodies[ia].State.Velocity = bodies[ia].State.Velocity.Add(dir.MultiplyScalar(j / bodies[ia].Mass))
				}
				if okb {
					bodies[ib].State.Velocity = bodies[ib].State.Velocity.Subtract(dir.MultiplyScalar(j / bodies[ib].Mass))
				}
			}
		}

		excess := length - rp.Length
		switch {
		case oka && okb:
			wa := bodies[ib].Mass / (bodies[ia].Mass + bodies[ib].Mass)
			bodies[ia].State.Position = bodies[ia].State.Position.Add(dir.MultiplyScalar(excess * wa))
			bodies[ib].State.Position = bodies[ib].State.Position.Subtract(dir.MultiplyScalar(excess * (1 - wa)))
		case oka:
			bodies[ia].State.Position = bodies[ia].State.Position.Add(dir.MultiplyScalar(excess))
		case okb:
			bodies[ib].State.Position = bodies[ib].State.Position.Subtract(dir.MultiplyScalar(excess))
		}
	}
}

// RefreshContacts rewrites each body's contact list from the current
// geometry so samples carry the live contact set.
func (m *Model) RefreshContacts(bodies []*arena.Body) {
	for _, b := range bodies {
		b.State.Contacts = b.State.Contacts[:0]
		for _, s := range m.c.Surfaces {
			if !m.active.ContactOn(b.ID, s.ID) {
				continue
			}
			if d := m.SignedDistance(b, s); d <= 0 {
				b.State.Contacts = append(b.State.Contacts, s.ID)
			}
		}
	}
}
