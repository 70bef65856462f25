package types_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venlab/physgate/pkg/types"
)

// TEST: GIVEN two vectors WHEN Add is called THEN the component-wise sum is returned
func TestVector2Add(t *testing.T) {
	v := types.Vector2{X: 1, Y: 2}.Add(types.Vector2{X: 3, Y: -1})
	assert.Equal(t, types.Vector2{X: 4, Y: 1}, v)
}

// TEST: GIVEN two vectors WHEN Subtract is called THEN the component-wise difference is returned
func TestVector2Subtract(t *testing.T) {
	v := types.Vector2{X: 1, Y: 2}.Subtract(types.Vector2{X: 3, Y: -1})
	assert.Equal(t, types.Vector2{X: -2, Y: 3}, v)
}

// TEST: GIVEN two vectors WHEN Dot is called THEN the scalar product is returned
func TestVector2Dot(t *testing.T) {
	assert.Equal(t, 5.0, types.Vector2{X: 1, Y: 2}.Dot(types.Vector2{X: 3, Y: 1}))
}

// TEST: GIVEN a vector WHEN Magnitude is called THEN the Euclidean norm is returned
func TestVector2Magnitude(t *testing.T) {
	assert.InDelta(t, 5.0, types.Vector2{X: 3, Y: 4}.Magnitude(), 1e-12)
}

// TEST: GIVEN a vector WHEN Normalize is called THEN a unit vector is returned
func TestVector2Normalize(t *testing.T) {
	n := types.Vector2{X: 3, Y: 4}.Normalize()
	assert.InDelta(t, 1.0, n.Magnitude(), 1e-12)
	assert.InDelta(t, 0.6, n.X, 1e-12)
}

// TEST: GIVEN the zero vector WHEN Normalize is called THEN the zero vector is returned
func TestVector2NormalizeZero(t *testing.T) {
	assert.Equal(t, types.Vector2{}, types.Vector2{}.Normalize())
}

// TEST: GIVEN a vector WHEN DivideScalar is called with zero THEN the original vector is returned
func TestVector2DivideScalarZero(t *testing.T) {
	v := types.Vector2{X: 1, Y: 2}
	assert.Equal(t, v, v.DivideScalar(0))
}

// TEST: GIVEN a vector WHEN Perp is called THEN the result is orthogonal
func TestVector2Perp(t *testing.T) {
	v := types.Vector2{X: 2, Y: 5}
	assert.InDelta(t, 0.0, v.Dot(v.Perp()), 1e-12)
}

// TEST: GIVEN a NaN component WHEN IsFinite is called THEN false is returned
func TestVector2IsFinite(t *testing.T) {
	assert.True(t, types.Vector2{X: 1, Y: 2}.IsFinite())
	assert.False(t, types.Vector2{X: math.NaN(), Y: 2}.IsFinite())
	assert.False(t, types.Vector2{X: 0, Y: math.Inf(1)}.IsFinite())
}

// TEST: GIVEN an event kind ordering WHEN Priority is compared THEN collisions outrank every other kind
func TestEventKindPriority(t *testing.T) {
	assert.Less(t, types.EventCollision.Priority(), types.EventContact.Priority())
	assert.Less(t, types.EventContact.Priority(), types.EventSeparation.Priority())
	assert.Less(t, types.EventSeparation.Priority(), types.EventThreshold.Priority())
	assert.Less(t, types.EventThreshold.Priority(), types.EventStateChange.Priority())
	assert.Less(t, types.EventStateChange.Priority(), types.EventCustom.Priority())
}

// TEST: GIVEN a body state WHEN Clone is called THEN contact slices are independent
func TestBodyStateClone(t *testing.T) {
	b := types.BodyState{ID: "a", Contacts: []string{"s1"}}
	c := b.Clone()
	c.Contacts[0] = "s2"
	assert.Equal(t, "s1", b.Contacts[0])
}
