package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in       string
		wantVal  float64
		wantUnit string
	}{
		{"500 μL", 500, "μL"},
		{"2 g", 2, "g"},
		{"1.5mL", 1.5, "ml"},
		{"", 0, ""},
		{"0", 0, ""},
	}
	for _, c := range cases {
		v, u := Parse(c.in)
		assert.Equal(t, c.wantVal, v, c.in)
		assert.Equal(t, c.wantUnit, u, c.in)
	}
}

func TestNormalizeVolume(t *testing.T) {
	v, u := Normalize(500, "μL", Volume, "mL")
	assert.InDelta(t, 0.5, v, 1e-9)
	assert.Equal(t, "mL", u)

	v, u = Normalize(2, "g", Weight, "mg")
	assert.InDelta(t, 2000, v, 1e-9)
	assert.Equal(t, "mg", u)
}

func TestUnitRoundTripScenario6(t *testing.T) {
	val, unit := Parse("500 μL")
	require.Equal(t, float64(500), val)
	require.Equal(t, "μL", unit)
	norm, canon := Normalize(val, unit, Volume, "mL")
	assert.InDelta(t, 0.5, norm, 1e-9)
	assert.Equal(t, "mL", canon)

	val, unit = Parse("2 g")
	require.Equal(t, float64(2), val)
	require.Equal(t, "g", unit)
	norm, canon = Normalize(val, unit, Weight, "mg")
	assert.InDelta(t, 2000, norm, 1e-9)
	assert.Equal(t, "mg", canon)
}

func TestConvertRequiresPositiveDensity(t *testing.T) {
	assert.Equal(t, 0.0, Convert(Weight, Volume, 100, 0))
	assert.Equal(t, 0.0, Convert(Weight, Weight, 100, 1.2))
	assert.InDelta(t, 0.1, Convert(Weight, Volume, 100, 1.0), 1e-9)
	assert.InDelta(t, 120000, Convert(Volume, Weight, 100, 1.2), 1e-9)
}

func TestResolveMmolToAmountRoundTrip(t *testing.T) {
	c := Chemical{MolecularWeight: 100, Density: 1.2, State: StateLiquid, Form: FormNeat}
	kind, val, err := ResolveMmolToAmount(5, c)
	require.NoError(t, err)
	assert.Equal(t, "mL", kind)

	mg := Convert(Volume, Weight, val, c.Density)
	assert.InDelta(t, 5*c.MolecularWeight, mg, 1e-6*5*c.MolecularWeight)
}

func TestResolveMmolToAmountNeatSolid(t *testing.T) {
	c := Chemical{MolecularWeight: 100, State: StateSolid, Form: FormNeat}
	kind, val, err := ResolveMmolToAmount(0.1, c)
	require.NoError(t, err)
	assert.Equal(t, "mg", kind)
	assert.InDelta(t, 10.0, val, 1e-9)
}

func TestResolveMmolToAmountSolution(t *testing.T) {
	c := Chemical{Form: FormSolution, ActiveContent: 1.0}
	kind, val, err := ResolveMmolToAmount(0.15, c)
	require.NoError(t, err)
	assert.Equal(t, "mL", kind)
	assert.InDelta(t, 0.15, val, 1e-9)
}

func TestResolveMmolToAmountBeadsMissingMW(t *testing.T) {
	c := Chemical{Form: FormBeads, ActiveContent: 10}
	_, _, err := ResolveMmolToAmount(1, c)
	assert.Error(t, err)
}

func TestEquivalentToMmolRequiresScale(t *testing.T) {
	_, err := EquivalentToMmol(1.0, 0)
	assert.Error(t, err)

	v, err := EquivalentToMmol(1.5, 100)
	require.NoError(t, err)
	assert.InDelta(t, 150, v, 1e-9)
}

func TestClip(t *testing.T) {
	assert.Equal(t, 0.1, Clip(0.01, 0.1, 5))
	assert.Equal(t, 5.0, Clip(9, 0.1, 5))
	assert.Equal(t, 2.0, Clip(2, 0.1, 5))
}

func TestRoundWeightAndVolume(t *testing.T) {
	assert.Equal(t, 10.1, RoundWeight(10.05))
	assert.Equal(t, 0.051, RoundVolume(0.0505))
}
