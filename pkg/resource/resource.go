// Package resource implements the resource-readiness analyzer (C5): given a
// built task payload and a station inventory snapshot, it computes
// consumable and reagent demand, pads for dead volume, aggregates supply,
// and produces a shortage/surplus report. Grounded on
// station_controller.py's analyze_resource_readiness.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/synthline/corestation/pkg/amount"
	"github.com/synthline/corestation/pkg/builder"
	"github.com/synthline/corestation/pkg/chemical"
	"github.com/synthline/corestation/pkg/layout"
)

// usable fractions of nominal tip capacity, per §4.5.
const (
	usable50uL = 0.05 * 0.7
	usable1mL  = 1.0 * 0.7
	usable5mL  = 5.0 * 0.7
)

// Payload is the builder's output, narrowed to what the analyzer needs.
type Payload struct {
	Units           []builder.Unit
	ExperimentCount int
}

// InventoryDetail is one substance slot within an Inventory Row. The seven
// optional fields mirror the station's own fallback order for "how much is
// here" — different API responses populate different keys, and the
// analyzer takes the first one present, per §4.5.
type InventoryDetail struct {
	Slot      int
	Well      string
	Substance string

	AvailableWeight string
	CurWeight       string
	InitialWeight   string
	AvailableVolume string
	CurVolume       string
	InitialVolume   string
	Value           string
}

// InventoryRow is one tray position reported by the station.
type InventoryRow struct {
	LayoutCode  string
	TrayCode    layout.ResourceCode
	DisplayName string
	Count       int
	Details     []InventoryDetail
}

// ReagentRow is one line of the reagent section of a Report.
type ReagentRow struct {
	Substance   string
	NeedMg      float64
	NeedMl      float64
	BaseNeedMg  float64
	BaseNeedMl  float64
	AvailableMg float64
	AvailableMl float64
	Status      string // "satisfied" or "short"
	Diff        string // formatted, e.g. "-3.000mL" or "12.5mg"
}

// ConsumableRow is one line of the consumable section of a Report.
type ConsumableRow struct {
	Code      layout.ResourceCode
	Name      string
	Need      int
	Available int
	Diff      int
	Status    string // "satisfied" or "short"
}

// Report is the analyzer's output.
type Report struct {
	Ready                 bool
	Reagents              []ReagentRow
	Consumables           []ConsumableRow
	Missing               []string
	Redundant             []string
	SecondaryCheckFailed  bool
	SecondaryCheckMessage string
}

var consumableNames = map[layout.ResourceCode]string{
	layout.Tip50UL:                "50 μL tip",
	layout.Tip1ML:                 "1 mL tip",
	layout.Tip5ML:                 "5 mL tip",
	layout.TestTubeMagnet2ML:      "reaction-tube magnet",
	layout.ReactionTube2ML:        "reaction tube",
	layout.ReactionSealCap:        "reaction seal cap",
	layout.FlashFilterInnerBottle: "flash filter inner bottle",
	layout.FlashFilterOuterBottle: "flash filter outer bottle",
}

// tipUsage returns the tip code and the number of tips one pipetting
// operation of volumeML needs, per §4.5's three volume bands.
func tipUsage(volumeML float64) (layout.ResourceCode, int) {
	switch {
	case volumeML <= usable50uL:
		return layout.Tip50UL, 1
	case volumeML <= usable1mL:
		return layout.Tip1ML, 1
	default:
		return layout.Tip5ML, int(math.Ceil(volumeML / usable5mL))
	}
}

type pipetteKey struct {
	row       int
	substance string
}

// demand computes consumable and reagent need from the built payload.
func demand(p Payload) (map[layout.ResourceCode]int, map[string]*ReagentRow) {
	hasStir := false
	for _, u := range p.Units {
		if u.Kind == builder.KindStir {
			hasStir = true
			break
		}
	}
	sealCapNeed := 0
	if hasStir && p.ExperimentCount > 0 {
		sealCapNeed = int(math.Ceil(float64(p.ExperimentCount) / 24))
	}

	need := map[layout.ResourceCode]int{
		layout.Tip50UL:                0,
		layout.Tip1ML:                 0,
		layout.Tip5ML:                 0,
		layout.TestTubeMagnet2ML:      0,
		layout.ReactionTube2ML:        p.ExperimentCount,
		layout.ReactionSealCap:        sealCapNeed,
		layout.FlashFilterInnerBottle: 0,
		layout.FlashFilterOuterBottle: 0,
	}

	reagentNeed := map[string]*ReagentRow{}
	getRow := func(name string) *ReagentRow {
		r, ok := reagentNeed[name]
		if !ok {
			r = &ReagentRow{Substance: name}
			reagentNeed[name] = r
		}
		return r
	}

	magnetFromUnits := 0
	pipettingTipPlan := map[pipetteKey]float64{}
	filteringRows := map[int]bool{}
	filteringDiluentTipPlan := map[string]float64{}

	for _, u := range p.Units {
		switch u.Kind {
		case builder.KindAddPowder:
			if u.Substance == "" {
				continue
			}
			getRow(u.Substance).BaseNeedMg += u.TargetWeightMg

		case builder.KindPipette:
			if u.Substance == "" {
				continue
			}
			getRow(u.Substance).BaseNeedMl += u.AddVolumeML
			if u.AddVolumeML > 0 {
				key := pipetteKey{row: u.Row, substance: u.Substance}
				if u.AddVolumeML > pipettingTipPlan[key] {
					pipettingTipPlan[key] = u.AddVolumeML
				}
			}

		case builder.KindAddMagnet:
			magnetFromUnits++

		case builder.KindFilterSample:
			if u.Substance == "" {
				continue
			}
			getRow(u.Substance).BaseNeedMl += u.AddVolumeML
			need[layout.FlashFilterInnerBottle]++
			need[layout.FlashFilterOuterBottle]++
			filteringRows[u.Row] = true
			if u.AddVolumeML > filteringDiluentTipPlan[u.Substance] {
				filteringDiluentTipPlan[u.Substance] = u.AddVolumeML
			}
		}
	}

	if magnetFromUnits > need[layout.TestTubeMagnet2ML] {
		need[layout.TestTubeMagnet2ML] = magnetFromUnits
	}

	for _, maxVol := range pipettingTipPlan {
		if maxVol <= 0 {
			continue
		}
		code, count := tipUsage(maxVol)
		need[code] += count
	}

	if len(filteringRows) > 0 && p.ExperimentCount > 0 {
		need[layout.Tip50UL] += len(filteringRows) * p.ExperimentCount
	}
	for _, maxVol := range filteringDiluentTipPlan {
		if maxVol > 0 {
			need[layout.Tip5ML]++
		}
	}

	return need, reagentNeed
}

// parseDetailAmount extracts a (kind, value) pair from the first populated
// field of detail, per §4.5's fallback order. Blank units default by field
// name: weight fields to mg, volume fields to mL.
func parseDetailAmount(d InventoryDetail, state string) (kind string, value float64) {
	candidates := []struct {
		raw       string
		isWeight  bool
		isVolume  bool
	}{
		{d.AvailableWeight, true, false},
		{d.CurWeight, true, false},
		{d.InitialWeight, true, false},
		{d.AvailableVolume, false, true},
		{d.CurVolume, false, true},
		{d.InitialVolume, false, true},
		{d.Value, false, false},
	}

	for _, c := range candidates {
		if strings.TrimSpace(c.raw) == "" {
			continue
		}
		num, unit := amount.Parse(c.raw)
		if unit == "" {
			if c.isWeight {
				unit = "mg"
			} else if c.isVolume {
				unit = "mL"
			}
		}
		k, v := normalizeAmount(num, unit, state)
		if k != "" {
			return k, v
		}
	}
	return "", 0
}

// normalizeAmount resolves a raw (value, unit) pair to "mg" or "ml", falling
// back to the chemical's physical state when the unit itself is ambiguous
// or absent.
func normalizeAmount(value float64, unit, state string) (string, float64) {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "mg":
		return "mg", value
	case "g":
		return "mg", value * 1000
	case "l":
		return "ml", value * 1000
	case "ml":
		return "ml", value
	case "ul", "μl", "µl":
		return "ml", value / 1000
	}
	switch {
	case strings.Contains(state, "liquid"):
		return "ml", value
	case strings.Contains(state, "solid"):
		return "mg", value
	default:
		return "", value
	}
}

// supply aggregates consumable stock and reagent stock from inventory,
// excluding airlock-prefixed rows.
func supply(rows []InventoryRow, dir *chemical.Directory) (map[layout.ResourceCode]int, map[string]struct{ mg, ml float64 }, map[string]float64) {
	consumableStock := map[layout.ResourceCode]int{}
	reagentStock := map[string]struct{ mg, ml float64 }{}
	substanceDeadVolume := map[string]float64{}

	for _, row := range rows {
		if layout.IsAirlockPrefixed(strings.ToUpper(row.LayoutCode)) {
			continue
		}

		if consumableCode, ok := layout.TrayToConsumable[row.TrayCode]; ok {
			consumableStock[consumableCode] += row.Count
		}

		deadVol := layout.ContainerDeadVolumeML[row.TrayCode]

		for _, d := range row.Details {
			if d.Substance == "" {
				continue
			}
			state := ""
			if c, err := dir.Lookup(d.Substance, -1); err == nil {
				state = string(c.State)
			}
			kind, val := parseDetailAmount(d, state)
			if kind == "" || val <= 0 {
				continue
			}
			entry := reagentStock[d.Substance]
			if kind == "mg" {
				entry.mg += val
			} else {
				entry.ml += val
			}
			reagentStock[d.Substance] = entry

			if deadVol > 0 {
				if prev, ok := substanceDeadVolume[d.Substance]; !ok || deadVol > prev {
					substanceDeadVolume[d.Substance] = deadVol
				}
			}
		}
	}

	return consumableStock, reagentStock, substanceDeadVolume
}

// StationChecker is the narrow station-side secondary check C6 implements.
type StationChecker interface {
	CheckTaskResource(ctx context.Context, taskID int) (CheckResult, error)
}

// CheckResult is the station's response to check_task_resource.
type CheckResult struct {
	Code         int
	Message      string
	ResourceType string
	Number       int
}

// AnalyzeReadiness computes the shortage/surplus report per §4.5. When the
// report is ready and taskID is non-nil, it invokes checker's secondary
// check; a station-side code 1200 flips Ready to false. Other non-200
// codes, and a nil checker, are treated as advisory only.
func AnalyzeReadiness(ctx context.Context, payload Payload, inventory []InventoryRow, dir *chemical.Directory, checker StationChecker, taskID *int) (Report, error) {
	needConsumables, reagentNeed := demand(payload)
	consumableStock, reagentStock, substanceDeadVolume := supply(inventory, dir)

	var missing, redundant []string
	var reagentReport []ReagentRow

	reagentNames := make([]string, 0, len(reagentNeed))
	for name := range reagentNeed {
		reagentNames = append(reagentNames, name)
	}
	sort.Strings(reagentNames)

	for _, name := range reagentNames {
		r := reagentNeed[name]
		needMg := r.BaseNeedMg
		if r.BaseNeedMg > 0 {
			needMg += layout.PowderDeadWeightMG
		}
		needMl := r.BaseNeedMl
		if r.BaseNeedMl > 0 {
			needMl += substanceDeadVolume[name]
		}

		stock := reagentStock[name]
		var density float64
		if c, err := dir.Lookup(name, -1); err == nil {
			density = c.Density
		}

		status := "satisfied"
		var diffText string

		switch {
		case needMl > 0:
			totalMl := stock.ml
			if totalMl < needMl && stock.mg > 0 {
				totalMl += amount.Convert(amount.Weight, amount.Volume, stock.mg, density)
			}
			diff := totalMl - needMl
			diffText = fmt.Sprintf("%.3fmL", diff)
			if diff < 0 {
				status = "short"
				missing = append(missing, fmt.Sprintf("%s:%.3fmL", name, -diff))
			} else {
				redundant = append(redundant, fmt.Sprintf("%s:%.3fmL", name, diff))
			}

		case needMg > 0:
			totalMg := stock.mg
			if totalMg < needMg && stock.ml > 0 {
				totalMg += amount.Convert(amount.Volume, amount.Weight, stock.ml, density)
			}
			diff := totalMg - needMg
			diffText = fmt.Sprintf("%.1fmg", diff)
			if diff < 0 {
				status = "short"
				missing = append(missing, fmt.Sprintf("%s:%.1fmg", name, -diff))
			} else {
				redundant = append(redundant, fmt.Sprintf("%s:%.1fmg", name, diff))
			}
		}

		reagentReport = append(reagentReport, ReagentRow{
			Substance:   name,
			NeedMg:      amount.RoundWeight(needMg),
			NeedMl:      amount.RoundVolume(needMl),
			BaseNeedMg:  amount.RoundWeight(r.BaseNeedMg),
			BaseNeedMl:  amount.RoundVolume(r.BaseNeedMl),
			AvailableMg: amount.RoundWeight(stock.mg),
			AvailableMl: amount.RoundVolume(stock.ml),
			Status:      status,
			Diff:        diffText,
		})
	}

	var consumableReport []ConsumableRow
	consumableCodes := make([]layout.ResourceCode, 0, len(needConsumables))
	for code := range needConsumables {
		consumableCodes = append(consumableCodes, code)
	}
	sort.Slice(consumableCodes, func(i, j int) bool { return consumableCodes[i] < consumableCodes[j] })

	for _, code := range consumableCodes {
		needCnt := needConsumables[code]
		availCnt := consumableStock[code]
		diff := availCnt - needCnt
		status := "satisfied"
		name := consumableNames[code]
		if name == "" {
			name = strconv.Itoa(int(code))
		}
		if diff < 0 {
			status = "short"
			missing = append(missing, fmt.Sprintf("%s:%d", name, -diff))
		} else {
			redundant = append(redundant, fmt.Sprintf("%s:%d", name, diff))
		}
		consumableReport = append(consumableReport, ConsumableRow{
			Code: code, Name: name, Need: needCnt, Available: availCnt, Diff: diff, Status: status,
		})
	}

	report := Report{
		Ready:       len(missing) == 0,
		Reagents:    reagentReport,
		Consumables: consumableReport,
		Missing:     missing,
		Redundant:   redundant,
	}

	if report.Ready && taskID != nil && checker != nil {
		result, err := checker.CheckTaskResource(ctx, *taskID)
		if err != nil {
			// The secondary check is optional and best-effort, mirroring
			// analyze_resource_readiness's try/except around this same
			// call: a transport hiccup here is logged and never touches
			// report.Ready, since the primary analysis above already
			// computed a trustworthy answer.
			slog.Warn("resource: secondary check failed, ignoring", "task_id", *taskID, "error", err)
			return report, nil
		}
		if result.Code == 1200 {
			report.Ready = false
			report.SecondaryCheckFailed = true
			report.SecondaryCheckMessage = fmt.Sprintf("secondary check failed: %s short %d", result.ResourceType, result.Number)
		}
	}

	return report, nil
}
