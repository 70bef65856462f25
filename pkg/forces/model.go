// Package forces aggregates the total force and torque on each body:
// gravity, compliant surface contact, Coulomb friction, springs, rope
// constraints and collision impulses.
package forces

import (
	"math"

	"github.com/venlab/physgate/pkg/arena"
	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/types"
)

// Contact model defaults. The compliant normal force is
// F_n = max(0, -k_c*d - c_c*(v·n)) with critical damping c_c = 2*sqrt(m*k_c).
const (
	DefaultContactStiffness = 1e5
)

// Config carries the world parameters the model needs per call.
type Config struct {
	Gravity          types.Vector2
	ContactStiffness float64
	VEps             float64

	// HardContact mirrors the engine option. The model does not read it:
	// the compliant normal force applies in both modes.
	HardContact bool
}

// ActiveSet is the stage-dependent interaction switchboard. Nil maps
// mean the channel is fully disabled.
type ActiveSet struct {
	Contact   map[[2]string]bool // (body, surface)
	Friction  map[[2]string]bool // (body, surface)
	Springs   map[string]bool    // spring id
	Ropes     map[string]bool    // rope id
	Collision map[[2]string]bool // (body, body), either order
}

// ContactOn reports whether contact between body b and surface s is live.
func (a ActiveSet) ContactOn(b, s string) bool { return a.Contact[[2]string{b, s}] }

// FrictionOn reports whether friction between body b and surface s is live.
func (a ActiveSet) FrictionOn(b, s string) bool { return a.Friction[[2]string{b, s}] }

// CollisionOn reports whether the pair participates in collisions.
func (a ActiveSet) CollisionOn(p, q string) bool {
	return a.Collision[[2]string{p, q}] || a.Collision[[2]string{q, p}]
}

// BodyForce is the aggregate generalized force on one body.
type BodyForce struct {
	Force  types.Vector2
	Torque float64
}

// Model evaluates the contract's force terms against the current arena
// state. It holds no mutable state of its own besides the active set.
type Model struct {
	c      *contract.Contract
	cfg    Config
	active ActiveSet
}

// New builds a force model for one simulation run.
func New(c *contract.Contract, cfg Config) *Model {
	if cfg.ContactStiffness <= 0 {
		cfg.ContactStiffness = DefaultContactStiffness
	}
	return &Model{c: c, cfg: cfg}
}

// SetActive swaps the stage-dependent interaction set.
func (m *Model) SetActive(s ActiveSet) { m.active = s }

// Active returns the current interaction set.
func (m *Model) Active() ActiveSet { return m.active }

// SignedDistance returns the gap between a body and a surface along the
// surface normal. Negative means penetration. Ball bodies measure from
// their rim, other kinds from their reference point.
func (m *Model) SignedDistance(b *arena.Body, s contract.Surface) float64 {
	d := b.State.Position.Subtract(s.Anchor).Dot(s.Normal)
	if b.Kind == types.BodyBall {
		d -= b.Radius
	}
	if s.Kind == types.SurfaceSegment && s.Length > 0 {
		// Outside the segment extent there is no surface to touch.
		t := tangentOf(s)
		along := b.State.Position.Subtract(s.Anchor).Dot(t)
		if along < 0 || along > s.Length {
			return math.Inf(1)
		}
	}
	return d
}

// Gap returns the sphere-sphere separation between two bodies; negative
// means overlap.
func (m *Model) Gap(a, b *arena.Body) float64 {
	return a.State.Position.Subtract(b.State.Position).Magnitude() - (a.Radius + b.Radius)
}

// Accumulate computes the total force and torque on each body at the
// current state. The result slice is index-aligned with bodies, which
// must be in arena insertion order for determinism.
func (m *Model) Accumulate(bodies []*arena.Body) []BodyForce {
	out := make([]BodyForce, len(bodies))

	// Gravity first, then springs, then contact normals; friction last
	// because static friction balances the already-applied tangential
	// force.
	for i, b := range bodies {
		out[i].Force = m.cfg.Gravity.MultiplyScalar(b.Mass)
	}

	m.accumulateSprings(bodies, out)

	type contactInfo struct {
		normalSum types.Vector2 // accumulated normal force vectors
		magnitude float64       // aggregate |F_n| over all touching surfaces
		muS, muK  float64       // strongest friction pair among contacts
		touching  bool
	}
	contacts := make([]contactInfo, len(bodies))

	for i, b := range bodies {
		for _, s := range m.c.Surfaces {
			if !m.active.ContactOn(b.ID, s.ID) {
				continue
			}
			d := m.SignedDistance(b, s)
			if d > 0 || math.IsInf(d, 1) {
				continue
			}
			vn := b.State.Velocity.Dot(s.Normal)
			cc := 2 * math.Sqrt(b.Mass*m.cfg.ContactStiffness)
			fn := -m.cfg.ContactStiffness*d - cc*vn
			if fn < 0 {
				fn = 0
			}
			contacts[i].normalSum = contacts[i].normalSum.Add(s.Normal.MultiplyScalar(fn))
			contacts[i].magnitude += fn
			contacts[i].touching = true
			if m.active.FrictionOn(b.ID, s.ID) {
				if s.Material.StaticFriction > contacts[i].muS {
					contacts[i].muS = s.Material.StaticFriction
					contacts[i].muK = s.Material.KineticFriction
				}
			}
		}
		out[i].Force = out[i].Force.Add(contacts[i].normalSum)
	}

	for i, b := range bodies {
		ci := contacts[i]
		if !ci.touching || ci.magnitude == 0 || (ci.muS == 0 && ci.muK == 0) {
			continue
		}
		n := ci.normalSum.Normalize()
		vt := b.State.Velocity.Subtract(n.MultiplyScalar(b.State.Velocity.Dot(n)))
		if vt.Magnitude() > m.cfg.VEps {
			// Kinetic: oppose sliding with μ_k * aggregate normal.
			out[i].Force = out[i].Force.Add(vt.Normalize().MultiplyScalar(-ci.muK * ci.magnitude))
			continue
		}
		// Static: balance the applied tangential force up to μ_s * N,
		// then hand over to kinetic in the same step.
		applied := out[i].Force
		appliedT := applied.Subtract(n.MultiplyScalar(applied.Dot(n)))
		limit := ci.muS * ci.magnitude
		if appliedT.Magnitude() <= limit {
			out[i].Force = out[i].Force.Subtract(appliedT)
		} else {
			out[i].Force = out[i].Force.Add(appliedT.Normalize().MultiplyScalar(-ci.muK * ci.magnitude))
		}
	}

	return out
}

// accumulateSprings adds equal-and-opposite spring forces to both
// endpoint bodies.
func (m *Model) accumulateSprings(bodies []*arena.Body, out []BodyForce) {
	idx := make(map[string]int, len(bodies))
	for i, b := range bodies {
		idx[b.ID] = i
	}

	for _, sp := range m.c.Springs {
		if !m.active.Springs[sp.ID] {
			continue
		}
		pa, va, ia, oka := m.endpointState(sp.EndA, bodies, idx)
		pb, vb, ib, okb := m.endpointState(sp.EndB, bodies, idx)
		if !oka && !okb {
			continue
		}
		axis := pb.Subtract(pa)
		length := axis.Magnitude()
		if length == 0 {
			continue
		}
		dir := axis.DivideScalar(length)
		stretch := length - sp.RestLength
		rate := vb.Subtract(va).Dot(dir)
		f := sp.Stiffness*stretch + sp.Damping*rate
		// f > 0 pulls the endpoints together.
		if oka {
			out[ia].Force = out[ia].Force.Add(dir.MultiplyScalar(f))
		}
		if okb {
			out[ib].Force = out[ib].Force.Add(dir.MultiplyScalar(-f))
		}
	}
}

// endpointState resolves an endpoint into position, velocity and, for
// body endpoints, the index into the bodies slice.
func (m *Model) endpointState(ep contract.Endpoint, bodies []*arena.Body, idx map[string]int) (types.Vector2, types.Vector2, int, bool) {
	if ep.Fixed() {
		return *ep.Anchor, types.Vector2{}, -1, false
	}
	i, ok := idx[ep.Body]
	if !ok {
		return types.Vector2{}, types.Vector2{}, -1, false
	}
	return bodies[i].State.Position, bodies[i].State.Velocity, i, true
}

// tangentOf returns the declared tangent, or the normal rotated by -90°
// so that (tangent, normal) is right-handed.
func tangentOf(s contract.Surface) types.Vector2 {
	if s.Tangent != nil {
		return *s.Tangent
	}
	return types.Vector2{X: s.Normal.Y, Y: -s.Normal.X}
}
