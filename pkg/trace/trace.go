// Package trace holds the simulator's output: the time-indexed sample
// sequence, the causal event log and the run statistics.
package trace

import (
	"time"

	"github.com/venlab/physgate/pkg/types"
)

// EndReason records why the simulation stopped.
type EndReason string

const (
	EndTimeLimit       EndReason = "t_end"
	EndTerminalEvent   EndReason = "terminal_event"
	EndDivergence      EndReason = "divergence"
	EndBoundExit       EndReason = "bound_exit"
	EndBudgetExhausted EndReason = "budget_exhausted"
)

// Sample is one committed state snapshot.
type Sample struct {
	T        float64           `json:"t"`
	Bodies   []types.BodyState `json:"bodies"`
	Energy   float64           `json:"energy"`
	Momentum types.Vector2     `json:"momentum"`
}

// Stats aggregates the integrator's bookkeeping for a run.
type Stats struct {
	Steps         int           `json:"steps"`
	RejectedSteps int           `json:"rejected_steps"`
	CPUTime       time.Duration `json:"cpu_time_ns"`
	MaxLocalError float64       `json:"max_local_error"`
}

// Trace is append-only during simulation and read-only afterwards.
type Trace struct {
	Samples   []Sample      `json:"samples"`
	Events    []types.Event `json:"events"`
	Stats     Stats         `json:"stats"`
	EndReason EndReason     `json:"end_reason"`
}

// Append commits one sample. Callers guarantee monotonically increasing
// sample times.
func (tr *Trace) Append(s Sample) {
	tr.Samples = append(tr.Samples, s)
}

// RecordEvent appends one event to the log.
func (tr *Trace) RecordEvent(e types.Event) {
	tr.Events = append(tr.Events, e)
}

// Final returns the last committed sample, or nil for an empty trace.
func (tr *Trace) Final() *Sample {
	if len(tr.Samples) == 0 {
		return nil
	}
	return &tr.Samples[len(tr.Samples)-1]
}

// Duration returns the simulated time span.
func (tr *Trace) Duration() float64 {
	if len(tr.Samples) == 0 {
		return 0
	}
	return tr.Samples[len(tr.Samples)-1].T - tr.Samples[0].T
}

// EventsNamed returns the events whose id matches name, in log order.
func (tr *Trace) EventsNamed(name string) []types.Event {
	var out []types.Event
	for _, e := range tr.Events {
		if e.ID == name {
			out = append(out, e)
		}
	}
	return out
}

// BodyAt returns the state of the named body in sample i.
func (tr *Trace) BodyAt(i int, id string) (types.BodyState, bool) {
	if i < 0 || i >= len(tr.Samples) {
		return types.BodyState{}, false
	}
	for _, b := range tr.Samples[i].Bodies {
		if b.ID == id {
			return b, true
		}
	}
	return types.BodyState{}, false
}
