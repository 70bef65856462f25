// Package postsim is the Post-Sim Gate: quantitative acceptance tests
// over a finished trace. It is fail-open — a failing report still leaves
// the trace usable for diagnosis.
package postsim

import (
	"fmt"
	"math"

	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/trace"
)

// QuickCheck is the fast sanity pass. It fails on NaN/Inf samples, an
// empty trace, a world-bounds exit, or energy drift with no recognized
// dissipative interaction to explain it.
func QuickCheck(tr *trace.Trace, c *contract.Contract) error {
	if tr == nil || len(tr.Samples) == 0 {
		return fmt.Errorf("trace has no samples")
	}

	for i, s := range tr.Samples {
		if math.IsNaN(s.Energy) || math.IsInf(s.Energy, 0) || !s.Momentum.IsFinite() {
			return fmt.Errorf("sample %d at t=%.6f carries non-finite aggregates", i, s.T)
		}
		for _, b := range s.Bodies {
			if !b.IsFinite() {
				return fmt.Errorf("body %s non-finite at t=%.6f", b.ID, s.T)
			}
		}
	}

	bounds := c.World.Bounds
	if bounds.Min != bounds.Max {
		for _, s := range tr.Samples {
			for _, b := range s.Bodies {
				if !bounds.Contains(b.Position) {
					return fmt.Errorf("body %s left world bounds at t=%.6f", b.ID, s.T)
				}
			}
		}
	}

	if !dissipative(c) {
		if drift := energyDrift(tr); drift > c.Tolerances.EnergyDriftRel {
			return fmt.Errorf("energy drift %.4f exceeds %.4f with no dissipative interaction",
				drift, c.Tolerances.EnergyDriftRel)
		}
	}
	return nil
}

// energyDrift returns the maximum relative deviation of total energy
// from its initial value.
func energyDrift(tr *trace.Trace) float64 {
	if len(tr.Samples) == 0 {
		return 0
	}
	e0 := tr.Samples[0].Energy
	ref := math.Max(math.Abs(e0), 1)
	var worst float64
	for _, s := range tr.Samples {
		if d := math.Abs(s.Energy-e0) / ref; d > worst {
			worst = d
		}
	}
	return worst
}

// dissipative reports whether the contract declares any interaction that
// legitimately removes mechanical energy: kinetic friction, inelastic
// surface impacts, damped springs, stage merges, or any rope.
func dissipative(c *contract.Contract) bool {
	for _, s := range c.Surfaces {
		if s.Material.KineticFriction > 0 || s.Material.Restitution < 1 {
			return true
		}
	}
	for _, sp := range c.Springs {
		if sp.Damping > 0 {
			return true
		}
	}
	for _, st := range c.Stages {
		if len(st.Merges) > 0 {
			return true
		}
	}
	return len(c.Ropes) > 0
}
