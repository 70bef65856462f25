package postsim

import (
	"fmt"
	"math"

	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/trace"
	"github.com/venlab/physgate/pkg/types"
)

// Check is one acceptance finding.
type Check struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Detail  string  `json:"detail"`
	Penalty float64 `json:"penalty"`
	Fatal   bool    `json:"fatal,omitempty"`
}

// Report is the Post-Sim Gate output. Success requires the score to
// reach r2_min and no fatal penalty.
type Report struct {
	Success  bool     `json:"success"`
	Score    float64  `json:"score"`
	Checks   []Check  `json:"checks"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Report) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Score -= c.Penalty
	}
}

// Acceptance runs the full Post-Sim Gate over a finished trace. It is
// pure: neither the trace nor the contract is mutated.
func Acceptance(tr *trace.Trace, c *contract.Contract) *Report {
	r := &Report{Score: 1.0}
	tol := c.Tolerances

	if err := QuickCheck(tr, c); err != nil {
		r.add(Check{
			Name:    "quick_check",
			Passed:  false,
			Detail:  err.Error(),
			Penalty: tol.PenaltyBounds,
			Fatal:   true,
		})
	} else {
		r.add(Check{Name: "quick_check", Passed: true, Detail: "trace is sane"})
	}

	checkExpectedEvents(tr, c, r)
	checkDrift(tr, c, r)

	if r.Score < 0 {
		r.Score = 0
	}
	fatal := false
	for _, chk := range r.Checks {
		if chk.Fatal && !chk.Passed {
			fatal = true
			break
		}
	}
	r.Success = r.Score >= tol.R2Min && !fatal
	return r
}

// checkExpectedEvents verifies presence, timing window and value bounds
// for every expectation in the contract.
func checkExpectedEvents(tr *trace.Trace, c *contract.Contract, r *Report) {
	tol := c.Tolerances
	for _, exp := range c.ExpectedEvents {
		ev, found := matchEvent(tr, exp)
		name := "expected_event:" + exp.Name

		if !found {
			r.add(Check{
				Name:    name,
				Passed:  false,
				Detail:  "no matching event in the trace",
				Penalty: tol.PenaltyMissingEvent,
				Fatal:   true,
			})
			continue
		}

		if exp.Window != nil {
			lo := exp.Window.Min - tol.EventTimeSec
			hi := exp.Window.Max + tol.EventTimeSec
			if ev.Time < lo || ev.Time > hi {
				r.add(Check{
					Name:    name,
					Passed:  false,
					Detail:  fmt.Sprintf("event at t=%.4f outside window [%.4f, %.4f]", ev.Time, lo, hi),
					Penalty: tol.PenaltyEventWindow,
				})
				continue
			}
		}

		if exp.Value != nil {
			if g, ok := ev.Params["g"]; ok && (g < exp.Value.Min || g > exp.Value.Max) {
				r.add(Check{
					Name:    name,
					Passed:  false,
					Detail:  fmt.Sprintf("event value %.4f outside [%.4f, %.4f]", g, exp.Value.Min, exp.Value.Max),
					Penalty: tol.PenaltyEventWindow,
				})
				continue
			}
		}

		r.add(Check{Name: name, Passed: true,
			Detail: fmt.Sprintf("matched %s at t=%.4f", ev.ID, ev.Time)})
	}
}

// matchEvent finds the first event satisfying the expectation: an exact
// id match, or a kind match with the referenced actors present.
func matchEvent(tr *trace.Trace, exp contract.ExpectedEvent) (types.Event, bool) {
	for _, ev := range tr.Events {
		if ev.ID == exp.Name {
			return ev, true
		}
		if exp.Kind != "" && ev.Kind != exp.Kind {
			continue
		}
		if exp.Body != "" && !actorIn(ev, exp.Body) {
			continue
		}
		if exp.Surface != "" && !actorIn(ev, exp.Surface) {
			continue
		}
		if exp.Kind == "" && exp.Body == "" && exp.Surface == "" {
			continue // only an id match can satisfy a bare-name expectation
		}
		return ev, true
	}
	return types.Event{}, false
}

// anchored reports whether any spring or rope is tied to a fixed world
// anchor, which makes it an external momentum source.
func anchored(c *contract.Contract) bool {
	for _, sp := range c.Springs {
		if sp.EndA.Fixed() || sp.EndB.Fixed() {
			return true
		}
	}
	for _, rp := range c.Ropes {
		if rp.EndA.Fixed() || rp.EndB.Fixed() {
			return true
		}
	}
	return false
}

func actorIn(ev types.Event, id string) bool {
	for _, a := range ev.Actors {
		if a == id {
			return true
		}
	}
	return false
}

// checkDrift verifies the conservation classes: energy within tolerance
// for conservative contracts (non-increasing within tolerance for
// dissipative ones), and momentum for contracts with no external input.
func checkDrift(tr *trace.Trace, c *contract.Contract, r *Report) {
	tol := c.Tolerances

	if len(tr.Samples) < 2 {
		r.Warnings = append(r.Warnings, "trace too short for drift analysis")
		return
	}

	if dissipative(c) {
		// Dissipative runs may only lose energy; any gain beyond the
		// tolerance is an integrator artifact.
		e0 := tr.Samples[0].Energy
		ref := math.Max(math.Abs(e0), 1)
		var gain float64
		for _, s := range tr.Samples {
			if d := (s.Energy - e0) / ref; d > gain {
				gain = d
			}
		}
		if gain > tol.EnergyDriftRel {
			r.add(Check{
				Name:    "energy_drift",
				Passed:  false,
				Detail:  fmt.Sprintf("dissipative run gained %.4f relative energy", gain),
				Penalty: tol.PenaltyDrift,
			})
		} else {
			r.add(Check{Name: "energy_drift", Passed: true, Detail: "dissipation is monotone within tolerance"})
		}
	} else {
		if drift := energyDrift(tr); drift > tol.EnergyDriftRel {
			r.add(Check{
				Name:    "energy_drift",
				Passed:  false,
				Detail:  fmt.Sprintf("relative energy drift %.4f exceeds %.4f", drift, tol.EnergyDriftRel),
				Penalty: tol.PenaltyDrift,
			})
		} else {
			r.add(Check{Name: "energy_drift", Passed: true,
				Detail: fmt.Sprintf("relative energy drift %.4f within %.4f", drift, tol.EnergyDriftRel)})
		}
	}

	// Momentum is only a conserved class when nothing external acts on
	// the system: zero gravity, no surfaces to push back, and no springs
	// or ropes tied to world anchors.
	if c.World.Gravity.Magnitude() == 0 && len(c.Surfaces) == 0 && !anchored(c) {
		p0 := tr.Samples[0].Momentum
		ref := math.Max(p0.Magnitude(), 1)
		var worst float64
		for _, s := range tr.Samples {
			if d := s.Momentum.Subtract(p0).Magnitude() / ref; d > worst {
				worst = d
			}
		}
		if worst > tol.RelErr {
			r.add(Check{
				Name:    "momentum_drift",
				Passed:  false,
				Detail:  fmt.Sprintf("relative momentum drift %.4f exceeds %.4f", worst, tol.RelErr),
				Penalty: tol.PenaltyDrift,
			})
		} else {
			r.add(Check{Name: "momentum_drift", Passed: true,
				Detail: fmt.Sprintf("relative momentum drift %.4f within %.4f", worst, tol.RelErr)})
		}
	}
}
