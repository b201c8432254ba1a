// Package layout implements the station's layout-code grammar
// (ZONE[-i[-j]][:slot]) and the row-major well/slot mapping for a tray's
// (cols, rows) grid. Grounded on config/constants.py's TraySpec table and
// spec §4.3.
package layout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Code is a parsed layout code: a zone prefix plus an optional tray/well
// index chain and an optional trailing slot.
//
//	"W-1-3"       -> Zone="W", Index=[1,3], Slot=nil
//	"W-1-3:5"     -> Zone="W", Index=[1,3], Slot=&5
//	"T-1"         -> Zone="T", Index=[1],   Slot=nil
type Code struct {
	Zone  string
	Index []int
	Slot  *int
}

var codePattern = regexp.MustCompile(`^([A-Za-z]+)((?:-[0-9]+)*)(?::(-?[0-9]+))?$`)

// Parse decodes a layout code string. The zone must start with a letter;
// slot == -1 designates the tray itself, slot >= 0 designates a well.
func Parse(s string) (Code, error) {
	m := codePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Code{}, fmt.Errorf("layout: malformed code %q", s)
	}
	var idx []int
	if m[2] != "" {
		for _, part := range strings.Split(strings.TrimPrefix(m[2], "-"), "-") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return Code{}, fmt.Errorf("layout: malformed index segment in %q: %w", s, err)
			}
			idx = append(idx, n)
		}
	}
	c := Code{Zone: m[1], Index: idx}
	if m[3] != "" {
		slot, err := strconv.Atoi(m[3])
		if err != nil {
			return Code{}, fmt.Errorf("layout: malformed slot in %q: %w", s, err)
		}
		c.Slot = &slot
	}
	return c, nil
}

// String re-renders a Code into ZONE[-i[-j]][:slot] form.
func (c Code) String() string {
	var b strings.Builder
	b.WriteString(c.Zone)
	for _, i := range c.Index {
		fmt.Fprintf(&b, "-%d", i)
	}
	if c.Slot != nil {
		fmt.Fprintf(&b, ":%d", *c.Slot)
	}
	return b.String()
}

// IsTray reports whether the code addresses the tray itself (slot == -1).
func (c Code) IsTray() bool {
	return c.Slot != nil && *c.Slot == -1
}

// IsWell reports whether the code addresses a specific well (slot >= 0).
func (c Code) IsWell() bool {
	return c.Slot != nil && *c.Slot >= 0
}

// Grid is a tray's physical geometry: cols columns by rows rows.
type Grid struct {
	Cols int
	Rows int
}

// SlotToWell converts a 0-based row-major slot index into a well label
// (letter + 1-based column), e.g. slot 7 in a (cols=6) grid -> "B2".
func (g Grid) SlotToWell(slot int) (string, error) {
	if slot < 0 || slot >= g.Cols*g.Rows {
		return "", fmt.Errorf("layout: slot %d out of range [0,%d) for grid %dx%d", slot, g.Cols*g.Rows, g.Cols, g.Rows)
	}
	row := slot / g.Cols
	col := slot % g.Cols
	return fmt.Sprintf("%s%d", rowLetter(row), col+1), nil
}

// WellToSlot converts a well label back into a 0-based row-major slot.
func (g Grid) WellToSlot(well string) (int, error) {
	well = strings.TrimSpace(well)
	if well == "" {
		return 0, fmt.Errorf("layout: empty well label")
	}
	letterEnd := 0
	for letterEnd < len(well) && isLetter(well[letterEnd]) {
		letterEnd++
	}
	if letterEnd == 0 || letterEnd == len(well) {
		return 0, fmt.Errorf("layout: malformed well label %q", well)
	}
	row, err := letterToRow(well[:letterEnd])
	if err != nil {
		return 0, fmt.Errorf("layout: %w in well %q", err, well)
	}
	col, err := strconv.Atoi(well[letterEnd:])
	if err != nil {
		return 0, fmt.Errorf("layout: malformed column in well %q: %w", well, err)
	}
	if row < 0 || row >= g.Rows {
		return 0, fmt.Errorf("layout: well row out of range in %q for grid %dx%d", well, g.Cols, g.Rows)
	}
	if col < 1 || col > g.Cols {
		return 0, fmt.Errorf("layout: well column out of range in %q for grid %dx%d", well, g.Cols, g.Rows)
	}
	return row*g.Cols + (col - 1), nil
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// rowLetter renders a 0-based row index as a letter starting at 'A'.
// Grids in this domain never exceed 26 rows, so single-letter labels
// suffice; a wider grid is a Configuration fault the caller should catch
// against the tray spec before reaching here.
func rowLetter(row int) string {
	return string(rune('A' + row))
}

func letterToRow(letter string) (int, error) {
	if len(letter) != 1 {
		return 0, fmt.Errorf("multi-letter row labels are not supported")
	}
	b := strings.ToUpper(letter)[0]
	if b < 'A' || b > 'Z' {
		return 0, fmt.Errorf("invalid row letter %q", letter)
	}
	return int(b - 'A'), nil
}

// airlockPrefixes are the zone prefixes identifying intermediate/airlock
// trays that discharge orchestration must never target. Exposed as a
// variable, not a hard-coded check, so callers can override per §9's
// "airlock exclusion is a prefix predicate, not a hard-coded list".
var airlockPrefixes = []string{"MSB", "MS", "AS", "TS"}

// IsAirlockPrefixed reports whether code starts with one of the default
// airlock prefixes.
func IsAirlockPrefixed(code string) bool {
	return HasAnyPrefix(code, airlockPrefixes)
}

// HasAnyPrefix reports whether code starts with any of prefixes, letting
// a caller supply a custom override set instead of the package default.
func HasAnyPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// DefaultAirlockPrefixes returns a copy of the built-in airlock prefix list.
func DefaultAirlockPrefixes() []string {
	out := make([]string, len(airlockPrefixes))
	copy(out, airlockPrefixes)
	return out
}
