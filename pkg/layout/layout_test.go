package layout

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	c, err := Parse("W-1-3:5")
	require.NoError(t, err)
	assert.Equal(t, "W", c.Zone)
	assert.Equal(t, []int{1, 3}, c.Index)
	require.NotNil(t, c.Slot)
	assert.Equal(t, 5, *c.Slot)
	assert.Equal(t, "W-1-3:5", c.String())
}

func TestIsTrayAndIsWell(t *testing.T) {
	tray, err := Parse("T-1:-1")
	require.NoError(t, err)
	assert.True(t, tray.IsTray())
	assert.False(t, tray.IsWell())

	well, err := Parse("T-1:4")
	require.NoError(t, err)
	assert.False(t, well.IsTray())
	assert.True(t, well.IsWell())
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("1-2-3")
	assert.Error(t, err)
}

func TestSlotWellRoundTrip(t *testing.T) {
	g := Grid{Cols: 6, Rows: 4}
	well, err := g.SlotToWell(7)
	require.NoError(t, err)
	assert.Equal(t, "B2", well)

	slot, err := g.WellToSlot(well)
	require.NoError(t, err)
	assert.Equal(t, 7, slot)
}

func TestSlotWellRoundTripProperty(t *testing.T) {
	g := Grid{Cols: 8, Rows: 6}
	f := func(slotU8 uint8) bool {
		slot := int(slotU8) % (g.Cols * g.Rows)
		well, err := g.SlotToWell(slot)
		if err != nil {
			return false
		}
		back, err := g.WellToSlot(well)
		if err != nil {
			return false
		}
		return back == slot
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestSlotOutOfRange(t *testing.T) {
	g := Grid{Cols: 2, Rows: 1}
	_, err := g.SlotToWell(2)
	assert.Error(t, err)
}

func TestWellOutOfRange(t *testing.T) {
	g := Grid{Cols: 2, Rows: 1}
	_, err := g.WellToSlot("B1")
	assert.Error(t, err)
	_, err = g.WellToSlot("A3")
	assert.Error(t, err)
}

func TestIsAirlockPrefixed(t *testing.T) {
	assert.True(t, IsAirlockPrefixed("MSB-1"))
	assert.True(t, IsAirlockPrefixed("AS-2"))
	assert.False(t, IsAirlockPrefixed("W-1-3"))
	assert.False(t, IsAirlockPrefixed("TB-2-1"))
}

func TestHasAnyPrefixOverride(t *testing.T) {
	custom := []string{"ZZ"}
	assert.True(t, HasAnyPrefix("ZZ-1", custom))
	assert.False(t, HasAnyPrefix("MSB-1", custom))
}
