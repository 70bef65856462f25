package trace

import (
	"fmt"
	"math"

	"github.com/venlab/physgate/pkg/types"
)

// Summary holds the headline numbers of a finished run.
type Summary struct {
	Duration   float64
	MaxSpeed   float64
	MaxEnergy  float64
	MinEnergy  float64
	EventCount int
	Final      map[string]types.BodyState
}

// Summarize walks the samples once and extracts the run statistics.
func (tr *Trace) Summarize() *Summary {
	s := &Summary{
		Duration:   tr.Duration(),
		EventCount: len(tr.Events),
		Final:      map[string]types.BodyState{},
		MinEnergy:  math.Inf(1),
		MaxEnergy:  math.Inf(-1),
	}
	if len(tr.Samples) == 0 {
		s.MinEnergy, s.MaxEnergy = 0, 0
		return s
	}

	for _, sample := range tr.Samples {
		s.MaxEnergy = math.Max(s.MaxEnergy, sample.Energy)
		s.MinEnergy = math.Min(s.MinEnergy, sample.Energy)
		for _, b := range sample.Bodies {
			s.MaxSpeed = math.Max(s.MaxSpeed, b.Velocity.Magnitude())
		}
	}
	for _, b := range tr.Samples[len(tr.Samples)-1].Bodies {
		s.Final[b.ID] = b.Clone()
	}
	return s
}

// String returns a one-line rendering of the summary.
func (s *Summary) String() string {
	return fmt.Sprintf("Duration=%.3fs, MaxSpeed=%.3fm/s, Events=%d, Bodies=%d",
		s.Duration, s.MaxSpeed, s.EventCount, len(s.Final))
}
