package predicate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlab/physgate/pkg/predicate"
	"github.com/venlab/physgate/pkg/types"
)

// TEST: GIVEN valid expressions WHEN Parse is called THEN the tree mirrors the grammar
func TestParseValid(t *testing.T) {
	tests := []struct {
		expr  string
		field predicate.Field
		op    predicate.Op
		abs   bool
		thr   float64
	}{
		{"x > 5", predicate.FieldX, predicate.OpGT, false, 5},
		{"y <= -2.5", predicate.FieldY, predicate.OpLE, false, -2.5},
		{"vx < 0", predicate.FieldVX, predicate.OpLT, false, 0},
		{"speed >= 9.8", predicate.FieldSpeed, predicate.OpGE, false, 9.8},
		{"abs(vy) > 1e-3", predicate.FieldVY, predicate.OpGT, true, 1e-3},
		{"omega < 6.28", predicate.FieldOmega, predicate.OpLT, false, 6.28},
	}
	for _, tc := range tests {
		tree, err := predicate.Parse(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.field, tree.Field, tc.expr)
		assert.Equal(t, tc.op, tree.Op, tc.expr)
		assert.Equal(t, tc.abs, tree.Abs, tc.expr)
		assert.Equal(t, tc.thr, tree.Threshold, tc.expr)
	}
}

// TEST: GIVEN malformed expressions WHEN Parse is called THEN ErrSyntax is returned
func TestParseInvalid(t *testing.T) {
	for _, expr := range []string{"", "x", "x == 5", "altitude > 5", "x > banana", "x >"} {
		_, err := predicate.Parse(expr)
		assert.ErrorIs(t, err, predicate.ErrSyntax, expr)
	}
}

// TEST: GIVEN a parsed predicate WHEN Holds is evaluated THEN the comparison is applied to the state
func TestHolds(t *testing.T) {
	b := types.BodyState{
		Position: types.Vector2{X: 6, Y: -1},
		Velocity: types.Vector2{X: 3, Y: 4},
	}

	gt, err := predicate.Parse("x > 5")
	require.NoError(t, err)
	assert.True(t, gt.Holds(b))

	speed, err := predicate.Parse("speed >= 5")
	require.NoError(t, err)
	assert.True(t, speed.Holds(b))

	lt, err := predicate.Parse("y < -2")
	require.NoError(t, err)
	assert.False(t, lt.Holds(b))
}

// TEST: GIVEN a predicate WHEN Margin is evaluated THEN the sign flips exactly at the threshold
func TestMarginSign(t *testing.T) {
	tree, err := predicate.Parse("x > 5")
	require.NoError(t, err)

	below := types.BodyState{Position: types.Vector2{X: 4}}
	above := types.BodyState{Position: types.Vector2{X: 6}}
	assert.Negative(t, tree.Margin(below))
	assert.Positive(t, tree.Margin(above))

	lt, err := predicate.Parse("x < 5")
	require.NoError(t, err)
	assert.Positive(t, lt.Margin(below))
	assert.Negative(t, lt.Margin(above))
}
