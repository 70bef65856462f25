package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/venlab/physgate/pkg/types"
	"github.com/venlab/physgate/pkg/units"
)

var (
	// ErrSchemaVersion is returned for a missing, malformed or
	// unsupported schema_version field.
	ErrSchemaVersion = errors.New("unsupported contract schema version")
	// ErrMalformed is returned when the wire payload is not valid JSON.
	ErrMalformed = errors.New("malformed contract payload")
)

var (
	versionRe = regexp.MustCompile(`^physics-contract/(\d+)\.(\d+)\.(\d+)$`)
	idRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidID reports whether s matches the contract id grammar.
func ValidID(s string) bool { return idRe.MatchString(s) }

// quantity is a wire scalar: a bare number (assumed SI) or a
// {value, unit} pair.
type quantity struct {
	Value float64
	Unit  string
	Set   bool
}

func (q *quantity) UnmarshalJSON(b []byte) error {
	q.Set = true
	if len(b) > 0 && b[0] == '{' {
		var pair struct {
			Value float64 `json:"value"`
			Unit  string  `json:"unit"`
		}
		if err := json.Unmarshal(b, &pair); err != nil {
			return err
		}
		q.Value, q.Unit = pair.Value, pair.Unit
		return nil
	}
	return json.Unmarshal(b, &q.Value)
}

// si normalizes the quantity against the slot's expected dimension.
func (q quantity) si(want units.Dimension, slot string) (float64, error) {
	if !q.Set || q.Unit == "" {
		return q.Value, nil // bare numbers are assumed SI
	}
	v, dim, err := units.Normalize(q.Value, q.Unit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", slot, err)
	}
	if err := units.Check(dim, want); err != nil {
		return 0, fmt.Errorf("%s: %w", slot, err)
	}
	return v, nil
}

// vec2 is a wire vector: a two-element array of quantities.
type vec2 [2]quantity

func (v vec2) si(want units.Dimension, slot string) (types.Vector2, error) {
	x, err := v[0].si(want, slot+"[0]")
	if err != nil {
		return types.Vector2{}, err
	}
	y, err := v[1].si(want, slot+"[1]")
	if err != nil {
		return types.Vector2{}, err
	}
	return types.Vector2{X: x, Y: y}, nil
}

type wireEndpoint struct {
	Body   string `json:"body,omitempty"`
	Anchor *vec2  `json:"anchor,omitempty"`
}

func (w wireEndpoint) decode(slot string) (Endpoint, error) {
	ep := Endpoint{Body: w.Body}
	if w.Anchor != nil {
		p, err := w.Anchor.si(units.DimLength, slot+".anchor")
		if err != nil {
			return Endpoint{}, err
		}
		ep.Anchor = &p
	}
	return ep, nil
}

type wireContract struct {
	SchemaVersion string `json:"schema_version"`
	World         struct {
		Gravity     vec2                    `json:"gravity"`
		Bounds      struct{ Min, Max vec2 } `json:"bounds"`
		StepHint    quantity                `json:"step_hint"`
		StatsBudget int                     `json:"stats_budget"`
	} `json:"world"`
	Bodies []struct {
		ID         string   `json:"id"`
		Kind       string   `json:"kind"`
		Mass       quantity `json:"mass"`
		Inertia    quantity `json:"inertia"`
		Size       *vec2    `json:"size,omitempty"`
		Radius     quantity `json:"radius"`
		Position   vec2     `json:"position"`
		Velocity   vec2     `json:"velocity"`
		Angle      quantity `json:"angle"`
		AngularVel quantity `json:"angular_velocity"`
	} `json:"bodies"`
	Surfaces []struct {
		ID          string   `json:"id"`
		Kind        string   `json:"kind"`
		Anchor      vec2     `json:"anchor"`
		Normal      vec2     `json:"normal"`
		Tangent     *vec2    `json:"tangent,omitempty"`
		Length      quantity `json:"length"`
		MuS         quantity `json:"mu_s"`
		MuK         quantity `json:"mu_k"`
		Restitution quantity `json:"restitution"`
	} `json:"surfaces"`
	Springs []struct {
		ID         string       `json:"id"`
		EndA       wireEndpoint `json:"end_a"`
		EndB       wireEndpoint `json:"end_b"`
		RestLength quantity     `json:"rest_length"`
		Stiffness  quantity     `json:"stiffness"`
		Damping    quantity     `json:"damping"`
	} `json:"springs,omitempty"`
	Ropes []struct {
		ID        string       `json:"id"`
		EndA      wireEndpoint `json:"end_a"`
		EndB      wireEndpoint `json:"end_b"`
		Length    quantity     `json:"length"`
		Tolerance quantity     `json:"tolerance"`
	} `json:"ropes,omitempty"`
	Stages []struct {
		ID           string `json:"id"`
		Interactions []struct {
			Kind string    `json:"kind"`
			Pair [2]string `json:"pair"`
		} `json:"interactions"`
		Entry  string `json:"entry,omitempty"`
		Exit   struct {
			Event string   `json:"event,omitempty"`
			Time  quantity `json:"time,omitempty"`
		} `json:"exit"`
		Merges []struct {
			A    string `json:"a"`
			B    string `json:"b"`
			Into string `json:"into"`
		} `json:"merges,omitempty"`
		Init []struct {
			Body     string `json:"body"`
			Position *vec2  `json:"position,omitempty"`
			Velocity *vec2  `json:"velocity,omitempty"`
		} `json:"init,omitempty"`
	} `json:"stages"`
	ExpectedEvents []struct {
		Name    string      `json:"name"`
		Body    string      `json:"body,omitempty"`
		Surface string      `json:"surface,omitempty"`
		Kind    string      `json:"kind,omitempty"`
		Window  *[2]float64 `json:"window,omitempty"`
		Value   *[2]float64 `json:"value,omitempty"`
	} `json:"expected_events,omitempty"`
	Constraints []struct {
		ID   string `json:"id"`
		Body string `json:"body"`
		Expr string `json:"expr"`
	} `json:"constraints,omitempty"`
	Tolerances *struct {
		R2Min          *float64 `json:"r2_min,omitempty"`
		RelErr         *float64 `json:"rel_err,omitempty"`
		EventTimeSec   *float64 `json:"event_time_sec,omitempty"`
		EnergyDriftRel *float64 `json:"energy_drift_rel,omitempty"`
		VEps           *float64 `json:"v_eps,omitempty"`

		PenaltyMissingEvent *float64 `json:"penalty_missing_event,omitempty"`
		PenaltyEventWindow  *float64 `json:"penalty_event_window,omitempty"`
		PenaltyDrift        *float64 `json:"penalty_drift,omitempty"`
		PenaltyBounds       *float64 `json:"penalty_bounds,omitempty"`
	} `json:"tolerances,omitempty"`
	End struct {
		TEnd  quantity `json:"t_end"`
		Event string   `json:"event,omitempty"`
	} `json:"end_condition"`
}

// Decode parses a contract wire payload into a typed Contract. It fails
// on malformed JSON, unsupported schema major versions, unknown units and
// dimension mismatches. Semantic validity is the Pre-Sim Gate's job.
func Decode(data []byte) (*Contract, error) {
	var w wireContract
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := versionRe.FindStringSubmatch(w.SchemaVersion)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrSchemaVersion, w.SchemaVersion)
	}
	if major, _ := strconv.Atoi(m[1]); major != SchemaMajor {
		return nil, fmt.Errorf("%w: major %s, supported %d", ErrSchemaVersion, m[1], SchemaMajor)
	}

	c := &Contract{SchemaVersion: w.SchemaVersion, Tolerances: DefaultTolerances()}

	var err error
	if c.World.Gravity, err = w.World.Gravity.si(units.DimAccel, "world.gravity"); err != nil {
		return nil, err
	}
	if c.World.Bounds.Min, err = w.World.Bounds.Min.si(units.DimLength, "world.bounds.min"); err != nil {
		return nil, err
	}
	if c.World.Bounds.Max, err = w.World.Bounds.Max.si(units.DimLength, "world.bounds.max"); err != nil {
		return nil, err
	}
	if c.World.StepHint, err = w.World.StepHint.si(units.DimTime, "world.step_hint"); err != nil {
		return nil, err
	}
	c.World.StatsBudget = w.World.StatsBudget

	for _, b := range w.Bodies {
		body := Body{ID: b.ID, Kind: types.BodyKind(b.Kind)}
		if body.Mass, err = b.Mass.si(units.DimMass, b.ID+".mass"); err != nil {
			return nil, err
		}
		if body.Inertia, err = b.Inertia.si(units.DimInertia, b.ID+".inertia"); err != nil {
			return nil, err
		}
		if b.Size != nil {
			sz, err := b.Size.si(units.DimLength, b.ID+".size")
			if err != nil {
				return nil, err
			}
			body.Size = &sz
		}
		if body.Radius, err = b.Radius.si(units.DimLength, b.ID+".radius"); err != nil {
			return nil, err
		}
		if body.Position, err = b.Position.si(units.DimLength, b.ID+".position"); err != nil {
			return nil, err
		}
		if body.Velocity, err = b.Velocity.si(units.DimVelocity, b.ID+".velocity"); err != nil {
			return nil, err
		}
		if body.Angle, err = b.Angle.si(units.DimAngle, b.ID+".angle"); err != nil {
			return nil, err
		}
		if body.AngularVel, err = b.AngularVel.si(units.DimAngularVel, b.ID+".angular_velocity"); err != nil {
			return nil, err
		}
		c.Bodies = append(c.Bodies, body)
	}

	for _, s := range w.Surfaces {
		srf := Surface{ID: s.ID, Kind: types.SurfaceKind(s.Kind)}
		if srf.Anchor, err = s.Anchor.si(units.DimLength, s.ID+".anchor"); err != nil {
			return nil, err
		}
		if srf.Normal, err = s.Normal.si(units.Dimensionless, s.ID+".normal"); err != nil {
			return nil, err
		}
		if s.Tangent != nil {
			tg, err := s.Tangent.si(units.Dimensionless, s.ID+".tangent")
			if err != nil {
				return nil, err
			}
			srf.Tangent = &tg
		}
		if srf.Length, err = s.Length.si(units.DimLength, s.ID+".length"); err != nil {
			return nil, err
		}
		if srf.Material.StaticFriction, err = s.MuS.si(units.Dimensionless, s.ID+".mu_s"); err != nil {
			return nil, err
		}
		if srf.Material.KineticFriction, err = s.MuK.si(units.Dimensionless, s.ID+".mu_k"); err != nil {
			return nil, err
		}
		if srf.Material.Restitution, err = s.Restitution.si(units.Dimensionless, s.ID+".restitution"); err != nil {
			return nil, err
		}
		c.Surfaces = append(c.Surfaces, srf)
	}

	for _, s := range w.Springs {
		sp := Spring{ID: s.ID}
		if sp.EndA, err = s.EndA.decode(s.ID + ".end_a"); err != nil {
			return nil, err
		}
		if sp.EndB, err = s.EndB.decode(s.ID + ".end_b"); err != nil {
			return nil, err
		}
		if sp.RestLength, err = s.RestLength.si(units.DimLength, s.ID+".rest_length"); err != nil {
			return nil, err
		}
		if sp.Stiffness, err = s.Stiffness.si(units.DimStiffness, s.ID+".stiffness"); err != nil {
			return nil, err
		}
		if sp.Damping, err = s.Damping.si(units.Dimensionless, s.ID+".damping"); err != nil {
			return nil, err
		}
		c.Springs = append(c.Springs, sp)
	}

	for _, r := range w.Ropes {
		rp := Rope{ID: r.ID}
		if rp.EndA, err = r.EndA.decode(r.ID + ".end_a"); err != nil {
			return nil, err
		}
		if rp.EndB, err = r.EndB.decode(r.ID + ".end_b"); err != nil {
			return nil, err
		}
		if rp.Length, err = r.Length.si(units.DimLength, r.ID+".length"); err != nil {
			return nil, err
		}
		if rp.Tolerance, err = r.Tolerance.si(units.DimLength, r.ID+".tolerance"); err != nil {
			return nil, err
		}
		c.Ropes = append(c.Ropes, rp)
	}

	for _, st := range w.Stages {
		stage := Stage{ID: st.ID, Entry: st.Entry}
		for _, ia := range st.Interactions {
			stage.Interactions = append(stage.Interactions, Interaction{
				Kind: InteractionKind(ia.Kind),
				Pair: ia.Pair,
			})
		}
		stage.Exit.Event = st.Exit.Event
		if stage.Exit.Time, err = st.Exit.Time.si(units.DimTime, st.ID+".exit.time"); err != nil {
			return nil, err
		}
		for _, m := range st.Merges {
			stage.Merges = append(stage.Merges, Merge{A: m.A, B: m.B, Into: m.Into})
		}
		for _, in := range st.Init {
			bi := BodyInit{Body: in.Body}
			if in.Position != nil {
				p, err := in.Position.si(units.DimLength, st.ID+".init.position")
				if err != nil {
					return nil, err
				}
				bi.Position = &p
			}
			if in.Velocity != nil {
				v, err := in.Velocity.si(units.DimVelocity, st.ID+".init.velocity")
				if err != nil {
					return nil, err
				}
				bi.Velocity = &v
			}
			stage.Init = append(stage.Init, bi)
		}
		c.Stages = append(c.Stages, stage)
	}

	for _, e := range w.ExpectedEvents {
		ee := ExpectedEvent{
			Name:    e.Name,
			Body:    e.Body,
			Surface: e.Surface,
			Kind:    types.EventKind(e.Kind),
		}
		if e.Window != nil {
			ee.Window = &Bounds{Min: e.Window[0], Max: e.Window[1]}
		}
		if e.Value != nil {
			ee.Value = &Bounds{Min: e.Value[0], Max: e.Value[1]}
		}
		c.ExpectedEvents = append(c.ExpectedEvents, ee)
	}

	for _, cn := range w.Constraints {
		c.Constraints = append(c.Constraints, Constraint{ID: cn.ID, Body: cn.Body, Expr: cn.Expr})
	}

	if t := w.Tolerances; t != nil {
		if t.R2Min != nil {
			c.Tolerances.R2Min = *t.R2Min
		}
		if t.RelErr != nil {
			c.Tolerances.RelErr = *t.RelErr
		}
		if t.EventTimeSec != nil {
			c.Tolerances.EventTimeSec = *t.EventTimeSec
		}
		if t.EnergyDriftRel != nil {
			c.Tolerances.EnergyDriftRel = *t.EnergyDriftRel
		}
		if t.VEps != nil {
			c.Tolerances.VEps = *t.VEps
		}
		if t.PenaltyMissingEvent != nil {
			c.Tolerances.PenaltyMissingEvent = *t.PenaltyMissingEvent
		}
		if t.PenaltyEventWindow != nil {
			c.Tolerances.PenaltyEventWindow = *t.PenaltyEventWindow
		}
		if t.PenaltyDrift != nil {
			c.Tolerances.PenaltyDrift = *t.PenaltyDrift
		}
		if t.PenaltyBounds != nil {
			c.Tolerances.PenaltyBounds = *t.PenaltyBounds
		}
	}

	if c.End.TEnd, err = w.End.TEnd.si(units.DimTime, "end_condition.t_end"); err != nil {
		return nil, err
	}
	c.End.Event = w.End.Event

	return c, nil
}
