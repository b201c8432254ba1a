// Package amount implements the unit algebra shared by the task graph
// builder and the resource analyzer: parsing "<number><unit>" strings,
// normalizing them to a canonical mass or volume unit, converting between
// mass and volume via density, and resolving a target mmol amount into a
// concrete weighable/pipettable quantity for a given chemical form.
package amount

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind distinguishes the two phases the algebra operates over.
type Kind string

const (
	Weight Kind = "weight"
	Volume Kind = "volume"
)

var amountPattern = regexp.MustCompile(`^([0-9.]+)\s*([a-zA-Z%\x{00B5}\x{03BC}]*)`)

// Parse extracts the leading numeric prefix and trailing unit suffix from
// text such as "500 μL" or "2g". The suffix is returned lowercased (the
// microlitre suffix as "μL"); it is not checked against a list of known
// units, so an unrecognized suffix comes back as it is. Text with no
// suffix yields "", and text that only strconv.ParseFloat accepts (such as
// "-5") yields the unit "unknown". Parse never errors on malformed input —
// it returns (0, "") for blank/zero text, mirroring the source's tolerant
// parser.
func Parse(text string) (float64, string) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" || t == "0" {
		return 0, ""
	}
	m := amountPattern.FindStringSubmatch(t)
	if m == nil {
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			return v, "unknown"
		}
		return 0, ""
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ""
	}
	return v, canonicalUnit(m[2])
}

// canonicalUnit spells the microlitre suffix as "μL", folding the
// micro-symbol variant (U+00B5 MICRO SIGN) onto U+03BC GREEK SMALL LETTER
// MU so downstream comparisons never have to special-case the codepoint.
// Only called from Parse, which lowercases its input first, so u is always
// already lowercase here; every other suffix is returned unchanged.
func canonicalUnit(u string) string {
	switch u {
	case "µl", "μl":
		return "μL"
	default:
		return u
	}
}

// Normalize converts (value, unit) into the package's canonical unit for
// the given Kind ("mg" for Weight, "mL" for Volume). An unrecognized unit
// falls back to defaultUnit with the value left unchanged.
func Normalize(value float64, unit string, kind Kind, defaultUnit string) (float64, string) {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch kind {
	case Volume:
		switch u {
		case "l":
			return value * 1000, "mL"
		case "ml":
			return value, "mL"
		case "ul", "μl", "µl":
			return value / 1000, "mL"
		}
	case Weight:
		switch u {
		case "kg":
			return value * 1e6, "mg"
		case "g":
			return value * 1000, "mg"
		case "mg":
			return value, "mg"
		}
	}
	return value, defaultUnit
}

// Convert performs cross-phase conversion using density (g/mL). It requires
// density > 0 and returns 0 otherwise. Converting between the same kind is a
// caller error and always returns 0 — callers must not cross-call identity.
func Convert(fromKind, toKind Kind, value, density float64) float64 {
	if density <= 0 {
		return 0
	}
	switch {
	case fromKind == Weight && toKind == Volume:
		return value / 1000 / density
	case fromKind == Volume && toKind == Weight:
		return value * density * 1000
	default:
		return 0
	}
}

// PhysicalForm classifies how a chemical's active ingredient is expressed,
// which in turn selects the resolve_mmol_to_amount formula.
type PhysicalForm string

const (
	FormNeat     PhysicalForm = "neat"
	FormSolution PhysicalForm = "solution"
	FormBeads    PhysicalForm = "beads"
	FormUnknown  PhysicalForm = "unknown"
)

// PhysicalState classifies the bulk phase of a neat chemical.
type PhysicalState string

const (
	StateSolid   PhysicalState = "solid"
	StateLiquid  PhysicalState = "liquid"
	StateGas     PhysicalState = "gas"
	StateUnknown PhysicalState = "unknown"
)

// Chemical is the minimal view of a chemical directory entry this package
// needs to resolve amounts; pkg/chemical.Chemical satisfies it structurally.
type Chemical struct {
	MolecularWeight float64 // g/mol, 0 if unset
	Density         float64 // g/mL, 0 if unset
	State           PhysicalState
	Form            PhysicalForm
	ActiveContent   float64 // mmol/mL for solution, wt% for beads
}

// ResolveMmolToAmount converts a target molar amount into a concrete
// weighable or pipettable quantity per §4.1. The returned kind is "mg" or
// "mL"; the value is already in that unit.
func ResolveMmolToAmount(targetMmol float64, c Chemical) (kind string, value float64, err error) {
	switch c.Form {
	case FormNeat:
		switch c.State {
		case StateSolid:
			if c.MolecularWeight <= 0 {
				return "", 0, fmt.Errorf("amount: neat solid missing molecular weight")
			}
			return "mg", targetMmol * c.MolecularWeight, nil
		case StateLiquid:
			if c.MolecularWeight <= 0 || c.Density <= 0 {
				return "", 0, fmt.Errorf("amount: neat liquid missing molecular weight or density")
			}
			return "mL", targetMmol * c.MolecularWeight / c.Density / 1000, nil
		default:
			return "", 0, fmt.Errorf("amount: neat chemical has unsupported physical state %q", c.State)
		}
	case FormSolution:
		if c.ActiveContent <= 0 {
			return "", 0, fmt.Errorf("amount: solution missing active content (mmol/mL)")
		}
		return "mL", targetMmol / c.ActiveContent, nil
	case FormBeads:
		if c.MolecularWeight <= 0 {
			return "", 0, fmt.Errorf("amount: beads missing molecular weight")
		}
		if c.ActiveContent <= 0 {
			return "", 0, fmt.Errorf("amount: beads missing active content (wt%%)")
		}
		return "mg", targetMmol * c.MolecularWeight / (c.ActiveContent / 100), nil
	default:
		return "", 0, fmt.Errorf("amount: unresolvable physical form %q", c.Form)
	}
}

// EquivalentToMmol converts an equivalent ("eq") amount into mmol given the
// recipe's reaction scale (mmol). scaleMmol must be positive.
func EquivalentToMmol(eq, scaleMmol float64) (float64, error) {
	if scaleMmol <= 0 {
		return 0, fmt.Errorf("amount: reaction scale (mmol) is required to convert eq")
	}
	return eq * scaleMmol, nil
}

// RoundWeight rounds a milligram value to 0.1 mg, the builder's target
// weight precision.
func RoundWeight(mg float64) float64 {
	return round(mg, 1)
}

// RoundVolume rounds a milliliter value to 1 μL (0.001 mL), the builder's
// target volume precision.
func RoundVolume(ml float64) float64 {
	return round(ml, 3)
}

func round(v float64, decimals int) float64 {
	p := 1.0
	for range decimals {
		p *= 10
	}
	if v < 0 {
		return -roundHalfUp(-v*p) / p
	}
	return roundHalfUp(v*p) / p
}

func roundHalfUp(v float64) float64 {
	f := float64(int64(v))
	if v-f >= 0.5 {
		return f + 1
	}
	return f
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
