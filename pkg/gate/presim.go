package gate

import (
	"fmt"
	"math"

	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/predicate"
)

// Per-check score weights. A check that contributes at least one error
// costs its full weight.
const (
	weightSchema      = 0.4
	weightUnits       = 0.2
	weightGeometry    = 0.2
	weightPhysics     = 0.1
	weightFeasibility = 0.1
)

const (
	unitNormTolerance  = 1e-6
	normalGravityLimit = 0.99
	gravityMin         = 1.0
	gravityMax         = 20.0
	earthGravityMin    = 9.0
	earthGravityMax    = 10.0
)

// Validate runs the five gate checks in order and returns the structured
// report. It is pure: no side effects, the contract is never mutated.
func Validate(c *contract.Contract) *Report {
	r := &Report{Score: 1.0, Details: map[string]CheckDetail{}}

	checks := []struct {
		name   string
		weight float64
		run    func(*contract.Contract, *Report) int
	}{
		{"schema", weightSchema, checkSchema},
		{"units", weightUnits, checkUnits},
		{"geometry", weightGeometry, checkGeometry},
		{"physics", weightPhysics, checkPhysics},
		{"feasibility", weightFeasibility, checkFeasibility},
	}

	for _, chk := range checks {
		errs := chk.run(c, r)
		if errs > 0 {
			r.Score -= chk.weight
		}
		r.Details[chk.name] = CheckDetail{Passed: errs == 0, Issues: errs}
	}
	if r.Score < 0 {
		r.Score = 0
	}
	r.Success = len(r.Errors) == 0
	return r
}

// Assert is the gate operation: on failure it returns a *Error carrying
// the full report, on success the report for logging.
func Assert(c *contract.Contract) (*Report, error) {
	r := Validate(c)
	if !r.Success {
		return r, &Error{Report: r}
	}
	return r, nil
}

// checkSchema verifies required fields, id grammar and uniqueness, and
// enumeration membership. Returns the number of errors contributed.
func checkSchema(c *contract.Contract, r *Report) int {
	before := len(r.Errors)

	seen := map[string]string{}
	declare := func(id, loc string) {
		if id == "" {
			r.addError(CodeSchemaViolation, loc, "id is required", "give the entity a non-empty id")
			return
		}
		if !contract.ValidID(id) {
			r.addError(CodeSchemaViolation, loc, fmt.Sprintf("id %q does not match [A-Za-z_][A-Za-z0-9_]*", id), "rename the id")
			return
		}
		if prev, dup := seen[id]; dup {
			r.addError(CodeSchemaViolation, loc, fmt.Sprintf("id %q already declared at %s", id, prev), "ids must be unique")
			return
		}
		seen[id] = loc
	}

	if len(c.Bodies) == 0 {
		r.addError(CodeSchemaViolation, "bodies", "at least one body is required", "declare a body")
	}
	for i, b := range c.Bodies {
		loc := fmt.Sprintf("bodies[%d]", i)
		declare(b.ID, loc)
		if !b.Kind.Valid() {
			r.addError(CodeSchemaViolation, loc+".kind", fmt.Sprintf("unknown body kind %q", b.Kind), "use slider|block|ball|spring-mass|assembly")
		}
	}
	for i, s := range c.Surfaces {
		loc := fmt.Sprintf("surfaces[%d]", i)
		declare(s.ID, loc)
		if !s.Kind.Valid() {
			r.addError(CodeSchemaViolation, loc+".kind", fmt.Sprintf("unknown surface kind %q", s.Kind), "use plane|incline|segment")
		}
	}
	for i, s := range c.Springs {
		declare(s.ID, fmt.Sprintf("springs[%d]", i))
	}
	for i, rp := range c.Ropes {
		declare(rp.ID, fmt.Sprintf("ropes[%d]", i))
	}
	for i, st := range c.Stages {
		loc := fmt.Sprintf("stages[%d]", i)
		declare(st.ID, loc)
		for j, ia := range st.Interactions {
			if !ia.Kind.Valid() {
				r.addError(CodeSchemaViolation, fmt.Sprintf("%s.interactions[%d]", loc, j),
					fmt.Sprintf("unknown interaction kind %q", ia.Kind),
					"use contact|friction|spring|rope|collision")
			}
		}
		if st.Entry != "" {
			if _, err := predicate.Parse(st.Entry); err != nil {
				r.addError(CodeSchemaViolation, loc+".entry", err.Error(), "fix the predicate expression")
			}
		}
	}
	for i, cn := range c.Constraints {
		loc := fmt.Sprintf("constraints[%d]", i)
		declare(cn.ID, loc)
		if _, err := predicate.Parse(cn.Expr); err != nil {
			r.addError(CodeSchemaViolation, loc+".expr", err.Error(), "fix the predicate expression")
		}
	}

	if c.End.TEnd <= 0 && c.End.Event == "" {
		r.addError(CodeSchemaViolation, "end_condition", "t_end > 0 or a terminal event is required", "set end_condition.t_end")
	}

	return len(r.Errors) - before
}

// checkUnits verifies normalized magnitudes: gravity range, positive
// masses and sizes.
func checkUnits(c *contract.Contract, r *Report) int {
	before := len(r.Errors)

	g := c.World.Gravity.Magnitude()
	if g < gravityMin || g > gravityMax {
		r.addError(CodeGravityOutOfRange, "world.gravity",
			fmt.Sprintf("gravity magnitude %.3f m/s² outside [%.0f, %.0f]", g, gravityMin, gravityMax),
			"use a physically plausible gravity vector")
	} else if g < earthGravityMin || g > earthGravityMax {
		r.addWarning("gravity magnitude %.3f m/s² is outside Earth-like [%.1f, %.1f]", g, earthGravityMin, earthGravityMax)
	}

	for i, b := range c.Bodies {
		loc := fmt.Sprintf("bodies[%d]", i)
		if b.Mass <= 0 || math.IsNaN(b.Mass) {
			r.addError(CodeInvalidMass, loc+".mass",
				fmt.Sprintf("mass must be positive, got %v", b.Mass), "set mass > 0")
		}
		if b.Size != nil && (b.Size.X <= 0 || b.Size.Y <= 0) {
			r.addError(CodeInvalidSize, loc+".size",
				fmt.Sprintf("size components must be positive, got %v", *b.Size), "set positive extents")
		}
		if b.Kind == "ball" && b.Radius <= 0 {
			r.addError(CodeInvalidSize, loc+".radius",
				fmt.Sprintf("ball radius must be positive, got %v", b.Radius), "set radius > 0")
		}
	}

	return len(r.Errors) - before
}

// checkGeometry verifies unit normals, normal/gravity alignment and that
// stage-referenced entities exist.
func checkGeometry(c *contract.Contract, r *Report) int {
	before := len(r.Errors)

	ghat := c.World.Gravity.Normalize()
	for i, s := range c.Surfaces {
		loc := fmt.Sprintf("surfaces[%d].normal", i)
		norm := s.Normal.Magnitude()
		if math.Abs(norm-1) > unitNormTolerance {
			r.addError(CodeNormalNotUnit, loc,
				fmt.Sprintf("‖n‖ = %.6f, must be 1 within %.0e", norm, unitNormTolerance),
				"normalize the surface normal")
			continue
		}
		if c.World.Gravity.Magnitude() > 0 {
			if align := math.Abs(s.Normal.Dot(ghat)); align > normalGravityLimit {
				r.addError(CodeNormalParallelGravity, loc,
					fmt.Sprintf("|n·ĝ| = %.4f exceeds %.2f", align, normalGravityLimit),
					"tilt the surface away from the gravity axis")
			}
		}
	}

	known := knownIDs(c)
	for i, st := range c.Stages {
		loc := fmt.Sprintf("stages[%d]", i)
		for j, ia := range st.Interactions {
			for _, id := range ia.Pair {
				if id == "" {
					continue
				}
				if !known[id] {
					r.addError(CodeMissingBodyRef, fmt.Sprintf("%s.interactions[%d]", loc, j),
						fmt.Sprintf("referenced entity %q is not declared", id),
						"declare the entity or fix the reference")
				}
			}
		}
		for j, m := range st.Merges {
			mloc := fmt.Sprintf("%s.merges[%d]", loc, j)
			if !known[m.A] {
				r.addError(CodeMissingBodyRef, mloc, fmt.Sprintf("merge input %q is not declared", m.A), "")
			}
			if !known[m.B] {
				r.addError(CodeMissingBodyRef, mloc, fmt.Sprintf("merge input %q is not declared", m.B), "")
			}
		}
		for j, in := range st.Init {
			if !known[in.Body] {
				r.addError(CodeMissingBodyRef, fmt.Sprintf("%s.init[%d]", loc, j),
					fmt.Sprintf("re-initialized body %q is not declared", in.Body), "")
			}
		}
	}
	for i, cn := range c.Constraints {
		if cn.Body != "" && !known[cn.Body] {
			r.addError(CodeMissingBodyRef, fmt.Sprintf("constraints[%d]", i),
				fmt.Sprintf("constrained body %q is not declared", cn.Body), "")
		}
	}

	return len(r.Errors) - before
}

// checkPhysics verifies material and interaction parameter ranges.
func checkPhysics(c *contract.Contract, r *Report) int {
	before := len(r.Errors)

	for i, s := range c.Surfaces {
		loc := fmt.Sprintf("surfaces[%d]", i)
		m := s.Material
		if m.StaticFriction < 0 {
			r.addError(CodeNegativeFriction, loc+".mu_s",
				fmt.Sprintf("μ_s must be ≥ 0, got %v", m.StaticFriction), "set μ_s ≥ 0")
		}
		if m.KineticFriction < 0 {
			r.addError(CodeNegativeFriction, loc+".mu_k",
				fmt.Sprintf("μ_k must be ≥ 0, got %v", m.KineticFriction), "set μ_k ≥ 0")
		}
		if m.StaticFriction >= 0 && m.KineticFriction >= 0 && m.KineticFriction > m.StaticFriction {
			r.addError(CodeFrictionInconsistent, loc,
				fmt.Sprintf("μ_k (%v) exceeds μ_s (%v)", m.KineticFriction, m.StaticFriction),
				"kinetic friction must not exceed static friction")
		}
		if m.Restitution < 0 || m.Restitution > 1 {
			r.addError(CodeInvalidRestitution, loc+".restitution",
				fmt.Sprintf("e must be in [0,1], got %v", m.Restitution), "clamp restitution into [0,1]")
		}
	}

	for i, sp := range c.Springs {
		if sp.Stiffness <= 0 {
			r.addError(CodeSchemaViolation, fmt.Sprintf("springs[%d].stiffness", i),
				fmt.Sprintf("spring stiffness must be positive, got %v", sp.Stiffness), "set k > 0")
		}
	}
	for i, rp := range c.Ropes {
		if rp.Length <= 0 {
			r.addError(CodeInvalidSize, fmt.Sprintf("ropes[%d].length", i),
				fmt.Sprintf("rope length must be positive, got %v", rp.Length), "set length > 0")
		}
	}

	return len(r.Errors) - before
}

// checkFeasibility verifies expected-event windows and references.
func checkFeasibility(c *contract.Contract, r *Report) int {
	before := len(r.Errors)

	bodies := map[string]bool{}
	for _, b := range c.Bodies {
		bodies[b.ID] = true
	}
	for _, id := range c.MergedIDs() {
		bodies[id] = true
	}
	surfaces := map[string]bool{}
	for _, s := range c.Surfaces {
		surfaces[s.ID] = true
	}

	for i, e := range c.ExpectedEvents {
		loc := fmt.Sprintf("expected_events[%d]", i)
		if e.Window != nil {
			if e.Window.Min < 0 || e.Window.Min > e.Window.Max {
				r.addError(CodeInvalidTimeWindow, loc+".window",
					fmt.Sprintf("window [%v, %v] violates 0 ≤ t_min ≤ t_max", e.Window.Min, e.Window.Max),
					"fix the expected time window")
			}
		}
		if e.Body != "" && !bodies[e.Body] {
			r.addError(CodeMissingBodyRef, loc,
				fmt.Sprintf("referenced body %q is not declared", e.Body), "")
		}
		if e.Surface != "" && !surfaces[e.Surface] {
			r.addError(CodeMissingSurfaceRef, loc,
				fmt.Sprintf("referenced surface %q is not declared", e.Surface), "")
		}
	}

	return len(r.Errors) - before
}

// knownIDs collects every resolvable entity id, including composites
// introduced by stage merges.
func knownIDs(c *contract.Contract) map[string]bool {
	known := map[string]bool{}
	for _, b := range c.Bodies {
		known[b.ID] = true
	}
	for _, s := range c.Surfaces {
		known[s.ID] = true
	}
	for _, s := range c.Springs {
		known[s.ID] = true
	}
	for _, rp := range c.Ropes {
		known[rp.ID] = true
	}
	for _, id := range c.MergedIDs() {
		known[id] = true
	}
	return known
}
