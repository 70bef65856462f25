package contract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venlab/physgate/pkg/contract"
	"github.com/venlab/physgate/pkg/types"
	"github.com/venlab/physgate/pkg/units"
)

const minimalContract = `{
  "schema_version": "physics-contract/1.0.0",
  "world": {
    "gravity": [0, -9.8],
    "bounds": {"min": [-100, -100], "max": [100, 100]},
    "step_hint": 0.001
  },
  "bodies": [
    {
      "id": "slider",
      "kind": "slider",
      "mass": {"value": 1, "unit": "kg"},
      "position": [0, 0],
      "velocity": [0, 0]
    }
  ],
  "surfaces": [
    {
      "id": "ground",
      "kind": "plane",
      "anchor": [0, 0],
      "normal": [0, 1],
      "mu_s": 0.3,
      "mu_k": 0.2,
      "restitution": 0.5
    }
  ],
  "stages": [
    {
      "id": "roll",
      "interactions": [{"kind": "friction", "pair": ["slider", "ground"]}],
      "exit": {"time": 2}
    }
  ],
  "expected_events": [
    {"name": "stop", "body": "slider", "kind": "threshold", "window": [0.5, 1.5]}
  ],
  "end_condition": {"t_end": 2}
}`

// TEST: GIVEN a well-formed payload WHEN Decode is called THEN the typed contract mirrors the wire values
func TestDecodeMinimal(t *testing.T) {
	c, err := contract.Decode([]byte(minimalContract))
	require.NoError(t, err)

	assert.Equal(t, "physics-contract/1.0.0", c.SchemaVersion)
	assert.Equal(t, types.Vector2{X: 0, Y: -9.8}, c.World.Gravity)
	assert.Equal(t, 0.001, c.World.StepHint)

	require.Len(t, c.Bodies, 1)
	assert.Equal(t, "slider", c.Bodies[0].ID)
	assert.Equal(t, types.BodySlider, c.Bodies[0].Kind)
	assert.Equal(t, 1.0, c.Bodies[0].Mass)

	require.Len(t, c.Surfaces, 1)
	assert.Equal(t, 0.3, c.Surfaces[0].Material.StaticFriction)
	assert.Equal(t, 0.2, c.Surfaces[0].Material.KineticFriction)
	assert.Equal(t, 0.5, c.Surfaces[0].Material.Restitution)

	require.Len(t, c.Stages, 1)
	assert.Equal(t, 2.0, c.Stages[0].Exit.Time)

	require.Len(t, c.ExpectedEvents, 1)
	require.NotNil(t, c.ExpectedEvents[0].Window)
	assert.Equal(t, 0.5, c.ExpectedEvents[0].Window.Min)

	assert.Equal(t, 2.0, c.End.TEnd)
}

// TEST: GIVEN no tolerances WHEN Decode is called THEN the documented defaults are applied
func TestDecodeDefaultTolerances(t *testing.T) {
	c, err := contract.Decode([]byte(minimalContract))
	require.NoError(t, err)

	assert.Equal(t, 0.95, c.Tolerances.R2Min)
	assert.Equal(t, 0.05, c.Tolerances.RelErr)
	assert.Equal(t, 0.1, c.Tolerances.EventTimeSec)
	assert.Equal(t, 0.02, c.Tolerances.EnergyDriftRel)
	assert.Equal(t, 1e-3, c.Tolerances.VEps)
	assert.Equal(t, 0.3, c.Tolerances.PenaltyMissingEvent)
	assert.Equal(t, 0.2, c.Tolerances.PenaltyBounds)
}

// TEST: GIVEN an unsupported major version WHEN Decode is called THEN ErrSchemaVersion is returned
func TestDecodeSchemaVersion(t *testing.T) {
	for _, version := range []string{"", "physics-contract/2.0.0", "contract/1.0.0", "physics-contract/1.0"} {
		payload := `{"schema_version": "` + version + `", "world": {"gravity": [0,-9.8]}, "bodies": [], "stages": [], "end_condition": {"t_end": 1}}`
		_, err := contract.Decode([]byte(payload))
		assert.ErrorIs(t, err, contract.ErrSchemaVersion, version)
	}
}

// TEST: GIVEN invalid JSON WHEN Decode is called THEN ErrMalformed is returned
func TestDecodeMalformed(t *testing.T) {
	_, err := contract.Decode([]byte("{not json"))
	assert.ErrorIs(t, err, contract.ErrMalformed)
}

// TEST: GIVEN a quantity with an unknown unit WHEN Decode is called THEN the units error surfaces
func TestDecodeUnknownUnit(t *testing.T) {
	payload := `{
	  "schema_version": "physics-contract/1.0.0",
	  "world": {"gravity": [0, -9.8]},
	  "bodies": [{"id": "b", "kind": "block", "mass": {"value": 2, "unit": "stone"}, "position": [0,0], "velocity": [0,0]}],
	  "stages": [],
	  "end_condition": {"t_end": 1}
	}`
	_, err := contract.Decode([]byte(payload))
	assert.ErrorIs(t, err, units.ErrUnknownUnit)
}

// TEST: GIVEN a quantity whose unit sits in the wrong slot WHEN Decode is called THEN a dimension mismatch surfaces
func TestDecodeDimensionMismatch(t *testing.T) {
	payload := `{
	  "schema_version": "physics-contract/1.0.0",
	  "world": {"gravity": [0, -9.8]},
	  "bodies": [{"id": "b", "kind": "block", "mass": {"value": 2, "unit": "m/s"}, "position": [0,0], "velocity": [0,0]}],
	  "stages": [],
	  "end_condition": {"t_end": 1}
	}`
	_, err := contract.Decode([]byte(payload))
	assert.ErrorIs(t, err, units.ErrDimensionMismatch)
}

// TEST: GIVEN id strings WHEN ValidID is called THEN the contract grammar is enforced
func TestValidID(t *testing.T) {
	assert.True(t, contract.ValidID("block_1"))
	assert.True(t, contract.ValidID("_x"))
	assert.False(t, contract.ValidID("1block"))
	assert.False(t, contract.ValidID("a-b"))
	assert.False(t, contract.ValidID(""))
}

// TEST: GIVEN declared merges WHEN MergedIDs is called THEN every composite id is listed
func TestMergedIDs(t *testing.T) {
	c := &contract.Contract{
		Stages: []contract.Stage{
			{ID: "s1", Merges: []contract.Merge{{A: "a", B: "b", Into: "ab"}}},
			{ID: "s2"},
		},
	}
	assert.Equal(t, []string{"ab"}, c.MergedIDs())
}
