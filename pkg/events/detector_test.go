package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlab/physgate/pkg/events"
	"github.com/venlab/physgate/pkg/types"
)

// scanLinear runs one Prime+Scan cycle over a set of predicates whose g
// functions depend only on the probed time.
func scanLinear(t0, t1 float64, preds ...*events.Predicate) *events.Crossing {
	d := events.New(1e-6)
	var now float64
	probe := func(t float64) { now = t }
	for _, p := range preds {
		eval := p.Eval
		p.Eval = func(t float64) float64 { return eval(now) }
		d.Add(p)
	}
	d.Prime(t0, probe)
	return d.Scan(t0, t1, probe)
}

// TEST: GIVEN a linear down-crossing WHEN Scan runs THEN the root is located within the tolerance
func TestScanFindsRoot(t *testing.T) {
	p := &events.Predicate{
		ID:   "hit",
		Kind: types.EventContact,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 0.5 - t }, // root at 0.5
	}
	cross := scanLinear(0, 1, p)
	require.NotNil(t, cross)
	assert.Equal(t, "hit", cross.Pred.ID)
	assert.InDelta(t, 0.5, cross.T, 1e-5)
	assert.True(t, cross.Converged)
}

// TEST: GIVEN no sign change WHEN Scan runs THEN nil is returned
func TestScanNoCrossing(t *testing.T) {
	p := &events.Predicate{
		ID:   "quiet",
		Kind: types.EventThreshold,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 1 + t },
	}
	assert.Nil(t, scanLinear(0, 1, p))
}

// TEST: GIVEN a down-only predicate WHEN the value rises through zero THEN it does not fire
func TestScanDirectionFilter(t *testing.T) {
	p := &events.Predicate{
		ID:   "up",
		Kind: types.EventSeparation,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return t - 0.5 }, // up-crossing
	}
	assert.Nil(t, scanLinear(0, 1, p))

	p2 := &events.Predicate{
		ID:   "up2",
		Kind: types.EventSeparation,
		Dir:  events.CrossUp,
		Eval: func(t float64) float64 { return t - 0.5 },
	}
	cross := scanLinear(0, 1, p2)
	require.NotNil(t, cross)
	assert.InDelta(t, 0.5, cross.T, 1e-5)
}

// TEST: GIVEN two crossings WHEN Scan runs THEN the earliest wins
func TestScanEarliestWins(t *testing.T) {
	early := &events.Predicate{
		ID:   "early",
		Kind: types.EventThreshold,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 0.25 - t },
	}
	late := &events.Predicate{
		ID:   "late",
		Kind: types.EventCollision,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 0.75 - t },
	}
	cross := scanLinear(0, 1, early, late)
	require.NotNil(t, cross)
	assert.Equal(t, "early", cross.Pred.ID)
}

// TEST: GIVEN two simultaneous crossings WHEN Scan runs THEN the kind priority breaks the tie
func TestScanTiePriority(t *testing.T) {
	threshold := &events.Predicate{
		ID:   "thresh",
		Kind: types.EventThreshold,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 0.5 - t },
	}
	collision := &events.Predicate{
		ID:   "boom",
		Kind: types.EventCollision,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 0.5 - t },
	}
	cross := scanLinear(0, 1, threshold, collision)
	require.NotNil(t, cross)
	assert.Equal(t, "boom", cross.Pred.ID)
}

// TEST: GIVEN a disarmed predicate WHEN Scan runs THEN it never fires
func TestScanDisarmed(t *testing.T) {
	p := &events.Predicate{
		ID:       "off",
		Kind:     types.EventContact,
		Dir:      events.CrossDown,
		Disarmed: true,
		Eval:     func(t float64) float64 { return 0.5 - t },
	}
	assert.Nil(t, scanLinear(0, 1, p))
}

// TEST: GIVEN a committed crossing WHEN Rearm then Scan run past it THEN the same root does not re-fire
func TestRearmNoRefire(t *testing.T) {
	d := events.New(1e-6)
	var now float64
	probe := func(t float64) { now = t }
	d.Add(&events.Predicate{
		ID:   "once",
		Kind: types.EventContact,
		Dir:  events.CrossDown,
		Eval: func(t float64) float64 { return 0.5 - now },
	})

	d.Prime(0, probe)
	cross := d.Scan(0, 1, probe)
	require.NotNil(t, cross)

	d.Rearm(cross.T, probe)
	assert.Nil(t, d.Scan(cross.T, 1, probe))
}
