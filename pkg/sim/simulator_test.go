package sim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerodha/logf"

	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/gate"
	"github.com/venlab/physgate/pkg/postsim"
	"github.com/venlab/physgate/pkg/sim"
	"github.com/venlab/physgate/pkg/trace"
	"github.com/venlab/physgate/pkg/types"
)

func testLogger() logf.Logger {
	return logf.New(logf.Opts{Level: logf.FatalLevel})
}

// inclineContract is the frictionless 30° incline scenario: one slider,
// gravity 9.8, expected to reach 9.8 m/s after 2 s.
func inclineContract() *contract.Contract {
	return &contract.Contract{
		SchemaVersion: "physics-contract/1.0.0",
		World: contract.World{
			Gravity: types.Vector2{Y: -9.8},
			Bounds: contract.AABB{
				Min: types.Vector2{X: -50, Y: -50},
				Max: types.Vector2{X: 50, Y: 50},
			},
		},
		Bodies: []contract.Body{
			{ID: "slider", Kind: types.BodySlider, Mass: 1},
		},
		Surfaces: []contract.Surface{
			{ID: "incline", Kind: types.SurfaceIncline,
				Normal: types.Vector2{X: -0.5, Y: math.Sqrt(3) / 2}},
		},
		Tolerances: contract.DefaultTolerances(),
		End:        contract.EndCondition{TEnd: 2},
	}
}

// TEST: GIVEN the frictionless incline scenario WHEN simulated THEN the slider obeys a = g·sinθ and energy holds
func TestFrictionlessIncline(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.Step = 5e-4
	tr, err := sim.Simulate(inclineContract(), testLogger(), opts)
	require.NoError(t, err)
	require.Equal(t, trace.EndTimeLimit, tr.EndReason)

	final := tr.Final()
	require.NotNil(t, final)
	assert.InDelta(t, 2.0, final.T, 1e-9)

	slider := final.Bodies[0]
	// v = g·sin(30°)·t = 4.9·2 = 9.8 m/s along the incline.
	assert.InDelta(t, 9.8, slider.Velocity.Magnitude(), 0.2)

	// Displacement along the incline: ½·a·t² = 9.8 m.
	assert.InDelta(t, 9.8, slider.Position.Magnitude(), 0.25)

	// Conservative stage: relative energy drift within 2%.
	e0 := tr.Samples[0].Energy
	ref := math.Max(math.Abs(e0), 1)
	for _, s := range tr.Samples {
		assert.LessOrEqual(t, math.Abs(s.Energy-e0)/ref, 0.02)
	}

	require.NoError(t, postsim.QuickCheck(tr, inclineContract()))
}

// TEST: GIVEN the spring-mass oscillator scenario WHEN simulated adaptively THEN the period and amplitude match
func TestSpringMassOscillator(t *testing.T) {
	anchor := types.Vector2{}
	c := &contract.Contract{
		World: contract.World{
			Bounds: contract.AABB{
				Min: types.Vector2{X: -5, Y: -5},
				Max: types.Vector2{X: 5, Y: 5},
			},
		},
		Bodies: []contract.Body{
			{ID: "m", Kind: types.BodySpringMass, Mass: 1, Position: types.Vector2{X: 0.1}},
		},
		Springs: []contract.Spring{
			{ID: "k", EndA: contract.Endpoint{Anchor: &anchor},
				EndB: contract.Endpoint{Body: "m"}, RestLength: 0, Stiffness: 100},
		},
		Tolerances: contract.DefaultTolerances(),
		End:        contract.EndCondition{TEnd: 2},
	}

	opts := sim.DefaultOptions()
	opts.Mode = sim.ModeAdaptive
	opts.ATol = 1e-9
	opts.RTol = 1e-7
	tr, err := sim.New(c, testLogger(), opts).Run()
	require.NoError(t, err)
	require.Equal(t, trace.EndTimeLimit, tr.EndReason)

	// x(t) = 0.1·cos(ω t) with ω = √(k/m) = 10 rad/s.
	final := tr.Final()
	assert.InDelta(t, 0.1*math.Cos(10*2), final.Bodies[0].Position.X, 0.003)

	// Amplitude stable within 1%; reversal events pin samples at the
	// turning points, so the sampled maximum tracks the true amplitude.
	var maxX float64
	for _, s := range tr.Samples {
		if x := math.Abs(s.Bodies[0].Position.X); x > maxX {
			maxX = x
		}
	}
	assert.InDelta(t, 0.1, maxX, 0.001)

	acc := postsim.Acceptance(tr, c)
	assert.True(t, acc.Success)
	assert.GreaterOrEqual(t, acc.Score, 0.98)
}

// mergeContract is the inelastic collision scenario: two balls meet at
// t≈0.5 s and the stage transition merges them into an assembly.
func mergeContract() *contract.Contract {
	return &contract.Contract{
		World: contract.World{
			Bounds: contract.AABB{
				Min: types.Vector2{X: -10, Y: -10},
				Max: types.Vector2{X: 10, Y: 10},
			},
		},
		Bodies: []contract.Body{
			{ID: "a", Kind: types.BodyBall, Mass: 1, Radius: 0.1,
				Velocity: types.Vector2{X: 1}},
			{ID: "b", Kind: types.BodyBall, Mass: 1, Radius: 0.1,
				Position: types.Vector2{X: 0.7}},
		},
		Stages: []contract.Stage{
			{
				ID: "approach",
				Interactions: []contract.Interaction{
					{Kind: contract.InteractionCollision, Pair: [2]string{"a", "b"}},
				},
				Exit:   contract.StageExit{Event: "impact"},
				Merges: []contract.Merge{{A: "a", B: "b", Into: "A_assembly"}},
			},
			{ID: "joined"},
		},
		ExpectedEvents: []contract.ExpectedEvent{
			{Name: "impact", Kind: types.EventCollision, Body: "a",
				Window: &contract.Bounds{Min: 0.4, Max: 0.6}},
			{Name: "E_merge", Kind: types.EventStateChange, Body: "A_assembly",
				Window: &contract.Bounds{Min: 0.4, Max: 0.6}},
		},
		Tolerances: contract.DefaultTolerances(),
		End:        contract.EndCondition{TEnd: 1},
	}
}

// TEST: GIVEN the inelastic merge scenario WHEN simulated THEN momentum is conserved and E_merge fires in its window
func TestInelasticMerge(t *testing.T) {
	c := mergeContract()
	tr, err := sim.New(c, testLogger(), sim.DefaultOptions()).Run()
	require.NoError(t, err)
	require.Equal(t, trace.EndTimeLimit, tr.EndReason)

	merges := tr.EventsNamed("E_merge")
	require.Len(t, merges, 1)
	assert.InDelta(t, 0.5, merges[0].Time, 0.05)

	final := tr.Final()
	require.Len(t, final.Bodies, 1)
	assert.Equal(t, "A_assembly", final.Bodies[0].ID)
	// Momentum conservation: (1·1 + 1·0) / 2 kg = 0.5 m/s.
	assert.InDelta(t, 0.5, final.Bodies[0].Velocity.X, 1e-6)
	assert.InDelta(t, 1.0, final.Momentum.X, 1e-6)

	acc := postsim.Acceptance(tr, c)
	assert.True(t, acc.Success)
}

// TEST: GIVEN sliding with kinetic friction WHEN simulated THEN the block decelerates at μ_k·g
func TestKineticFrictionDeceleration(t *testing.T) {
	c := &contract.Contract{
		World: contract.World{
			Gravity: types.Vector2{Y: -9.8},
			Bounds: contract.AABB{
				Min: types.Vector2{X: -50, Y: -50},
				Max: types.Vector2{X: 50, Y: 50},
			},
		},
		Bodies: []contract.Body{
			{ID: "block", Kind: types.BodyBlock, Mass: 1, Velocity: types.Vector2{X: 5}},
		},
		Surfaces: []contract.Surface{
			{ID: "floor", Kind: types.SurfacePlane, Normal: types.Vector2{Y: 1},
				Material: contract.Material{StaticFriction: 0.3, KineticFriction: 0.25}},
		},
		Tolerances: contract.DefaultTolerances(),
		End:        contract.EndCondition{TEnd: 1},
	}

	tr, err := sim.New(c, testLogger(), sim.DefaultOptions()).Run()
	require.NoError(t, err)

	final := tr.Final()
	// v(1) = 5 − μ_k·g·1 = 2.55 m/s.
	assert.InDelta(t, 2.55, final.Bodies[0].Velocity.X, 0.1)

	// Friction only removes energy.
	assert.Less(t, final.Energy, tr.Samples[0].Energy)
}

// TEST: GIVEN a contract the gate rejects WHEN Simulate is called THEN no trace is produced and the report is attached
func TestSimulateRejectsInvalidContract(t *testing.T) {
	c := inclineContract()
	c.Surfaces[0].Normal = types.Vector2{X: 0.6, Y: 0.6}

	tr, err := sim.Simulate(c, testLogger(), sim.DefaultOptions())
	assert.Nil(t, tr)
	var gateErr *gate.Error
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, gate.CodeNormalNotUnit, gateErr.Report.Errors[0].Code)
}

// TEST: GIVEN a step budget WHEN it runs out THEN a partial trace ends with budget_exhausted
func TestBudgetExhausted(t *testing.T) {
	c := inclineContract()
	c.World.StatsBudget = 100

	tr, err := sim.New(c, testLogger(), sim.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Equal(t, trace.EndBudgetExhausted, tr.EndReason)
	assert.Less(t, tr.Final().T, 2.0)
	assert.NotEmpty(t, tr.Samples)
}

// TEST: GIVEN a body leaving the world box WHEN simulated THEN the run ends with bound_exit
func TestBoundExit(t *testing.T) {
	c := inclineContract()
	c.World.Bounds = contract.AABB{
		Min: types.Vector2{X: -1, Y: -1},
		Max: types.Vector2{X: 1, Y: 1},
	}

	tr, err := sim.New(c, testLogger(), sim.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Equal(t, trace.EndBoundExit, tr.EndReason)
}

// TEST: GIVEN a terminal event WHEN it fires THEN the run stops with terminal_event
func TestTerminalEvent(t *testing.T) {
	c := mergeContract()
	c.End.Event = "impact"
	c.End.TEnd = 5

	tr, err := sim.New(c, testLogger(), sim.DefaultOptions()).Run()
	require.NoError(t, err)
	assert.Equal(t, trace.EndTerminalEvent, tr.EndReason)
	assert.InDelta(t, 0.5, tr.Final().T, 0.05)
}

// TEST: GIVEN a declared constraint WHEN it is violated THEN a threshold event is recorded
func TestConstraintViolationEvent(t *testing.T) {
	c := inclineContract()
	c.Constraints = []contract.Constraint{
		{ID: "too_fast", Body: "slider", Expr: "speed > 5"},
	}

	tr, err := sim.New(c, testLogger(), sim.DefaultOptions()).Run()
	require.NoError(t, err)

	hits := tr.EventsNamed("too_fast")
	require.NotEmpty(t, hits)
	// speed = 4.9·t → 5 m/s at t ≈ 1.02 s.
	assert.InDelta(t, 5.0/4.9, hits[0].Time, 0.05)
	assert.Equal(t, types.EventThreshold, hits[0].Kind)
}

// TEST: GIVEN hard-contact mode WHEN a ball drops on a surface THEN it rebounds at e times the impact speed
func TestHardContactBounce(t *testing.T) {
	c := &contract.Contract{
		World: contract.World{
			Gravity: types.Vector2{Y: -9.8},
			Bounds: contract.AABB{
				Min: types.Vector2{X: -10, Y: -10},
				Max: types.Vector2{X: 10, Y: 10},
			},
		},
		Bodies: []contract.Body{
			{ID: "ball", Kind: types.BodyBall, Mass: 1, Radius: 0.1,
				Position: types.Vector2{X: 2, Y: 1.1}},
		},
		Surfaces: []contract.Surface{
			// Tilted a hair so the gate's parallel-gravity rule holds;
			// the dynamics below treat it as effectively horizontal.
			{ID: "pad", Kind: types.SurfacePlane,
				Normal:   types.Vector2{X: -math.Sin(0.15), Y: math.Cos(0.15)},
				Material: contract.Material{Restitution: 0.5}},
		},
		Tolerances: contract.DefaultTolerances(),
		End:        contract.EndCondition{TEnd: 1},
	}

	opts := sim.DefaultOptions()
	opts.HardContact = true
	tr, err := sim.New(c, testLogger(), opts).Run()
	require.NoError(t, err)

	var contacts []types.Event
	for _, ev := range tr.Events {
		if ev.Kind == types.EventContact {
			contacts = append(contacts, ev)
		}
	}
	require.NotEmpty(t, contacts)

	// Impact speed along the normal is √(2·g_n·d0) for the initial gap
	// d0; the rebound carries half of it back out.
	n := c.Surfaces[0].Normal
	d0 := c.Bodies[0].Position.Dot(n) - c.Bodies[0].Radius
	gn := 9.8 * n.Y
	want := 0.5 * math.Sqrt(2*gn*d0)

	idx := -1
	for i, s := range tr.Samples {
		if s.T > contacts[0].Time {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	ball, ok := tr.BodyAt(idx, "ball")
	require.True(t, ok)
	assert.Greater(t, ball.Velocity.Dot(n), 0.0)
	assert.InDelta(t, want, ball.Velocity.Dot(n), 0.2)
}

// TEST: GIVEN the same contract twice WHEN simulated in fixed-step mode THEN the traces are bit-for-bit identical
func TestFixedStepReproducibility(t *testing.T) {
	run := func() *trace.Trace {
		tr, err := sim.New(mergeContract(), testLogger(), sim.DefaultOptions()).Run()
		require.NoError(t, err)
		return tr
	}
	a, b := run(), run()
	assert.Equal(t, a.Samples, b.Samples)
	assert.Equal(t, a.Events, b.Events)
	assert.Equal(t, a.EndReason, b.EndReason)
}
