package sim

import "github.com/venlab/physgate/pkg/integrator"

// Mode selects the integrator behind the stepper interface.
type Mode string

const (
	ModeFixed    Mode = "fixed"
	ModeAdaptive Mode = "adaptive"
)

// Options are the engine-level knobs; contract-level behavior lives in
// the contract itself.
type Options struct {
	Mode Mode
	Step float64
	ATol float64
	RTol float64

	// SampleEvery commits every Nth accepted step as a sample; event
	// steps are always committed.
	SampleEvery int

	// HardContact adds a restitution impulse at each surface contact
	// event. The compliant normal force still acts while a body
	// penetrates a surface.
	HardContact bool
}

// DefaultOptions returns the fixed-step baseline configuration.
func DefaultOptions() Options {
	return Options{
		Mode:        ModeFixed,
		Step:        1e-3,
		ATol:        integrator.DefaultATol,
		RTol:        integrator.DefaultRTol,
		SampleEvery: 1,
	}
}

// stepper builds the configured integrator.
func (o Options) stepper() integrator.Stepper {
	if o.Mode == ModeAdaptive {
		return integrator.NewRK45(o.Step, o.ATol, o.RTol)
	}
	return integrator.NewSymplecticEuler(o.Step)
}
