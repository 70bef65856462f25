// Package contract defines the typed Physics Contract: the declarative
// description of bodies, surfaces, stages and acceptance criteria that is
// the only input to the simulation core.
package contract

import "github.com/venlab/physgate/pkg/types"

// SchemaMajor is the contract schema major version this core accepts.
const SchemaMajor = 1

// Contract is the immutable root value. The caller owns it; the core
// never mutates a contract after decoding.
type Contract struct {
	SchemaVersion  string
	World          World
	Bodies         []Body
	Surfaces       []Surface
	Springs        []Spring
	Ropes          []Rope
	Stages         []Stage
	ExpectedEvents []ExpectedEvent
	Constraints    []Constraint
	Tolerances     Tolerances
	End            EndCondition
}

// AABB is an axis-aligned box delimiting the simulation world.
type AABB struct {
	Min types.Vector2
	Max types.Vector2
}

// Contains reports whether p lies inside the box.
func (b AABB) Contains(p types.Vector2) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// World holds the global simulation parameters.
type World struct {
	Gravity  types.Vector2
	Bounds   AABB
	StepHint float64

	// StatsBudget bounds the total integrator step count; zero means
	// unbounded. On exhaustion the simulator returns a partial trace.
	StatsBudget int
}

// Body is one rigid body declaration.
type Body struct {
	ID         string
	Kind       types.BodyKind
	Mass       float64
	Inertia    float64
	Size       *types.Vector2
	Radius     float64
	Position   types.Vector2
	Velocity   types.Vector2
	Angle      float64
	AngularVel float64
}

// Material carries the surface contact properties.
type Material struct {
	StaticFriction  float64
	KineticFriction float64
	Restitution     float64
}

// Surface is one surface primitive declaration.
type Surface struct {
	ID       string
	Kind     types.SurfaceKind
	Anchor   types.Vector2
	Normal   types.Vector2
	Tangent  *types.Vector2
	Length   float64
	Material Material
}

// Endpoint references either a body by id or a fixed world anchor.
type Endpoint struct {
	Body   string
	Anchor *types.Vector2
}

// Fixed reports whether the endpoint is a world anchor.
func (e Endpoint) Fixed() bool { return e.Anchor != nil }

// Spring is a linear spring between two endpoints.
type Spring struct {
	ID         string
	EndA       Endpoint
	EndB       Endpoint
	RestLength float64
	Stiffness  float64
	Damping    float64
}

// Rope is an inextensible unilateral constraint between two endpoints.
type Rope struct {
	ID        string
	EndA      Endpoint
	EndB      Endpoint
	Length    float64
	Tolerance float64
}

// InteractionKind enumerates the interaction channels a stage can enable.
type InteractionKind string

const (
	InteractionContact   InteractionKind = "contact"
	InteractionFriction  InteractionKind = "friction"
	InteractionSpring    InteractionKind = "spring"
	InteractionRope      InteractionKind = "rope"
	InteractionCollision InteractionKind = "collision"
)

// Valid reports whether the kind is a declared interaction channel.
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionContact, InteractionFriction, InteractionSpring,
		InteractionRope, InteractionCollision:
		return true
	}
	return false
}

// Interaction activates one channel between a named pair of entities.
type Interaction struct {
	Kind InteractionKind
	Pair [2]string
}

// Merge declares an inelastic merge effect: bodies A and B are retired
// and replaced by a composite body named Into.
type Merge struct {
	A    string
	B    string
	Into string
}

// BodyInit re-initializes part of a body's state on stage entry.
type BodyInit struct {
	Body     string
	Position *types.Vector2
	Velocity *types.Vector2
}

// StageExit declares when a stage ends: a referenced event fires or the
// stage clock reaches Time (zero means no time bound).
type StageExit struct {
	Event string
	Time  float64
}

// Stage declares a maximal interval over which the active interaction
// set is constant.
type Stage struct {
	ID           string
	Interactions []Interaction
	Entry        string // predicate expression; syntax-checked by the gate, not evaluated during a run
	Exit         StageExit
	Merges       []Merge
	Init         []BodyInit
}

// Bounds is a closed numeric interval.
type Bounds struct {
	Min float64
	Max float64
}

// ExpectedEvent is one acceptance expectation over the event log.
type ExpectedEvent struct {
	Name    string
	Body    string
	Surface string
	Kind    types.EventKind
	Window  *Bounds
	Value   *Bounds
}

// Constraint declares a watched scalar condition over one body's state,
// e.g. "x > 5". The expression becoming true raises a threshold event
// whose id is the constraint id.
type Constraint struct {
	ID   string
	Body string
	Expr string
}

// Tolerances gathers the acceptance thresholds. Penalty weights are held
// here so the test suite can pin them.
type Tolerances struct {
	R2Min          float64
	RelErr         float64
	EventTimeSec   float64
	EnergyDriftRel float64
	VEps           float64

	PenaltyMissingEvent float64
	PenaltyEventWindow  float64
	PenaltyDrift        float64
	PenaltyBounds       float64
}

// DefaultTolerances returns the documented default thresholds.
func DefaultTolerances() Tolerances {
	return Tolerances{
		R2Min:          0.95,
		RelErr:         0.05,
		EventTimeSec:   0.1,
		EnergyDriftRel: 0.02,
		VEps:           1e-3,

		PenaltyMissingEvent: 0.3,
		PenaltyEventWindow:  0.1,
		PenaltyDrift:        0.1,
		PenaltyBounds:       0.2,
	}
}

// EndCondition terminates the simulation at TEnd seconds and/or when the
// referenced event fires.
type EndCondition struct {
	TEnd  float64
	Event string
}

// BodyByID returns the body declaration with the given id.
func (c *Contract) BodyByID(id string) (Body, bool) {
	for _, b := range c.Bodies {
		if b.ID == id {
			return b, true
		}
	}
	return Body{}, false
}

// SurfaceByID returns the surface declaration with the given id.
func (c *Contract) SurfaceByID(id string) (Surface, bool) {
	for _, s := range c.Surfaces {
		if s.ID == id {
			return s, true
		}
	}
	return Surface{}, false
}

// SpringByID returns the spring declaration with the given id.
func (c *Contract) SpringByID(id string) (Spring, bool) {
	for _, s := range c.Springs {
		if s.ID == id {
			return s, true
		}
	}
	return Spring{}, false
}

// RopeByID returns the rope declaration with the given id.
func (c *Contract) RopeByID(id string) (Rope, bool) {
	for _, r := range c.Ropes {
		if r.ID == id {
			return r, true
		}
	}
	return Rope{}, false
}

// MergedIDs returns every composite id introduced by stage merges.
func (c *Contract) MergedIDs() []string {
	var ids []string
	for _, st := range c.Stages {
		for _, m := range st.Merges {
			ids = append(ids, m.Into)
		}
	}
	return ids
}
