// Package builder implements the task graph builder (C4): it converts a
// tabular experiment recipe into an ordered list of Operation Units laid out
// on a 2-D grid of (column = experiment index, row = ordered step). Grounded
// on station_controller.py's build_task_payload and its _add_* helpers.
package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/synthline/corestation/pkg/amount"
	"github.com/synthline/corestation/pkg/chemical"
)

// Kind identifies an Operation Unit's action.
type Kind string

const (
	KindAddPowder    Kind = "add-powder"
	KindPipette      Kind = "pipette"
	KindAddMagnet    Kind = "add-magnet"
	KindStir         Kind = "stir"
	KindFilterSample Kind = "filter-sample"
)

// Unit is one emitted Operation Unit.
type Unit struct {
	ID     string
	Kind   Kind
	Column int
	Row    int

	Substance  string
	ChemicalID int

	TargetWeightMg float64
	OffsetMg       float64
	AddVolumeML    float64

	RotationSpeedRPM    int
	ReactionDurationSec int
	IsWait              bool
	IsHeating           bool
	TemperatureC        float64
	TargetTemperatureC  *float64

	SamplingVolumeML float64
	SinglePressNum   int
}

// Params holds the recipe's global parameters, mirroring the spreadsheet's
// parameter sheet. Zero values reproduce the source's defaults where one
// exists (see per-field comments).
type Params struct {
	TaskName string

	WeighingErrorPct  float64 // default 1.0 if zero
	MaxErrorMg        float64 // default 1.0 if zero
	ReactionScaleMmol float64

	ReactorType string // blank skips reaction-stir
	AutoMagnet  bool
	FixedOrder  bool

	ReactionTemperatureC *float64 // nil -> 25
	TargetTemperatureC   *float64 // nil -> no heating
	ReactionTimeHours    float64
	RotationSpeedRPM     int
	WaitTargetTemp       bool

	InternalStandardName     string // blank skips IS-add and post-IS stir
	InternalStandardAmount   float64 // mg for solid IS, μL for liquid IS; 0 -> defaults below
	PostISStirMinutes        float64 // blank (<=0) skips post-IS stir even if IS name set
	PostISStirRotationRPM    int     // default 600 if zero

	DiluentName        string // blank skips filter-sample
	DilutionVolumeUL   float64
	SampleVolumeUL     float64
}

func (p Params) weighingErrorPct() float64 {
	if p.WeighingErrorPct == 0 {
		return 1.0
	}
	return p.WeighingErrorPct
}

func (p Params) maxErrorMg() float64 {
	if p.MaxErrorMg == 0 {
		return 1.0
	}
	return p.MaxErrorMg
}

// Recipe is the builder's input: headers and rows of a parsed spreadsheet.
type Recipe struct {
	Params  Params
	Headers []string
	Rows    [][]string
}

// UnknownChemicalError is raised when a data row names a substance absent
// from the directory.
type UnknownChemicalError struct {
	Row    int
	Column int
	Name   string
}

func (e *UnknownChemicalError) Error() string {
	return fmt.Sprintf("builder: experiment %d: unknown chemical %q", e.Row+1, e.Name)
}

// AmountError wraps a pkg/amount resolution failure with its row/column
// location (reaction scale missing for eq, missing active-content, etc.).
type AmountError struct {
	Row    int
	Column int
	Name   string
	Err    error
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("builder: experiment %d: %s: %v", e.Row+1, e.Name, e.Err)
}

func (e *AmountError) Unwrap() error { return e.Err }

// ExperimentCountError is the recipe validator's fault for an experiment
// count outside {12, 24, 36, 48}.
type ExperimentCountError struct {
	Count int
}

func (e *ExperimentCountError) Error() string {
	return fmt.Sprintf("builder: experiment count %d is not one of 12/24/36/48", e.Count)
}

// ValidateExperimentCount enforces the recipe invariant ahead of Build.
func ValidateExperimentCount(n int) error {
	switch n {
	case 12, 24, 36, 48:
		return nil
	default:
		return &ExperimentCountError{Count: n}
	}
}

const magnetCell = "magnet"

// columnKind classifies what a reagent column (or virtual split of one)
// emits.
type columnKind string

const (
	ckSolid        columnKind = "solid"
	ckLiquid       columnKind = "liquid"
	ckOther        columnKind = "other"
	ckMagnetManual columnKind = "magnet_manual"
	ckMagnetAuto   columnKind = "magnet_auto"
)

// orderedColumn is one entry of the final column ordering, possibly a
// virtual split of a source reagent column.
type orderedColumn struct {
	key            int // unique synthetic key; negative for virtual/synthetic columns
	srcNameCol     int
	srcAmountCol   int // -1 if absent
	kind           columnKind
	splitKind      columnKind // "" when the source column was not split
	maxVolumeML    float64
	isReagentGroup bool
	isMagnetOnly   bool
}

// Build converts a Recipe into the ordered Operation Unit list per §4.4.
func Build(r Recipe, dir *chemical.Directory) ([]Unit, error) {
	cols := inferColumns(r.Headers, r.Rows, dir)
	ordered := orderColumns(cols, r.Params.AutoMagnet, r.Params.FixedOrder)

	rowOf := make(map[int]int, len(ordered))
	nextRow := 0
	for _, c := range ordered {
		rowOf[c.key] = nextRow
		nextRow++
	}
	rowReaction := nextRow
	rowIntStd := nextRow + 1
	rowStirAfter := nextRow + 2
	rowFilter := nextRow + 3

	var units []Unit

	for expIdx, row := range r.Rows {
		for _, col := range ordered {
			targetRow := rowOf[col.key]

			if col.kind == ckMagnetAuto {
				if !rowHasExplicitMagnet(row) {
					units = append(units, newMagnetUnit(expIdx, targetRow))
				}
				continue
			}

			if col.srcNameCol < 0 || col.srcNameCol >= len(row) {
				continue
			}
			name := strings.TrimSpace(row[col.srcNameCol])
			if name == "" || name == "0" {
				continue
			}

			if name == magnetCell {
				if col.isMagnetOnly || col.splitKind == "" {
					units = append(units, newMagnetUnit(expIdx, targetRow))
				}
				continue
			}
			if col.isMagnetOnly {
				continue
			}

			chem, err := dir.Lookup(name, expIdx)
			if err != nil {
				return nil, &UnknownChemicalError{Row: expIdx, Column: col.srcNameCol, Name: name}
			}

			kind := classifyKind(chem)
			if col.splitKind != "" && columnKind(kind) != col.splitKind {
				continue
			}

			if !col.isReagentGroup {
				continue
			}

			amtText := "0"
			if col.srcAmountCol >= 0 && col.srcAmountCol < len(row) {
				amtText = row[col.srcAmountCol]
			}
			amtVal, amtUnit := parseAmountUnit(amtText)
			if amtVal <= 0 {
				continue
			}

			u, err := buildReagentUnit(expIdx, targetRow, name, chem, amtVal, amtUnit, r.Params.weighingErrorPct(), r.Params.maxErrorMg(), r.Params.ReactionScaleMmol)
			if err != nil {
				return nil, &AmountError{Row: expIdx, Column: col.srcNameCol, Name: name, Err: err}
			}
			if u != nil {
				units = append(units, *u)
			}
		}

		if r.Params.ReactorType != "" {
			units = append(units, buildReactionUnit(expIdx, rowReaction, r.Params))
		}

		if r.Params.InternalStandardName != "" {
			if u, ok := buildInternalStandardUnit(expIdx, rowIntStd, r.Params, dir); ok {
				units = append(units, u)
			}
			if r.Params.PostISStirMinutes > 0 {
				units = append(units, buildPostISStirUnit(expIdx, rowStirAfter, r.Params))
			}
		}

		if r.Params.DiluentName != "" {
			if u, ok := buildFilterUnit(expIdx, rowFilter, r.Params, dir); ok {
				units = append(units, u)
			}
		}
	}

	return units, nil
}

func rowHasExplicitMagnet(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == magnetCell {
			return true
		}
	}
	return false
}

func classifyKind(c chemical.Chemical) string {
	switch c.State {
	case amount.StateLiquid:
		return "liquid"
	case amount.StateSolid:
		return "solid"
	default:
		return "other"
	}
}

// inferColumns walks headers in source order, opening reagent pairs and
// magnet-only columns, scanning data rows to classify each reagent column
// and splitting mixed solid/liquid columns into virtual columns.
func inferColumns(headers []string, rows [][]string, dir *chemical.Directory) []orderedColumn {
	var cols []orderedColumn
	nextVirtualKey := -1

	colIdx := 0
	for colIdx < len(headers) {
		header := strings.ToLower(strings.TrimSpace(headers[colIdx]))

		if strings.HasPrefix(header, "reagent") {
			nameCol := colIdx
			amtCol := -1
			if colIdx+1 < len(headers) {
				amtCol = colIdx + 1
			}

			var hasLiquid, hasSolid, hasOther, hasMagnetManual bool
			var maxLiquidVolML float64

			for _, row := range rows {
				if nameCol >= len(row) {
					continue
				}
				name := strings.TrimSpace(row[nameCol])
				if name == "" || name == "0" {
					continue
				}
				if name == magnetCell {
					hasMagnetManual = true
					continue
				}
				chem, err := dir.Lookup(name, -1)
				if err != nil {
					hasOther = true
					continue
				}
				switch classifyKind(chem) {
				case "liquid":
					hasLiquid = true
					amtText := "0"
					if amtCol >= 0 && amtCol < len(row) {
						amtText = row[amtCol]
					}
					val, unit := parseAmountUnit(amtText)
					if vol := toMLForOrdering(val, unit); vol > maxLiquidVolML {
						maxLiquidVolML = vol
					}
				case "solid":
					hasSolid = true
				default:
					hasOther = true
				}
			}

			if hasLiquid && hasSolid {
				cols = append(cols, orderedColumn{
					key: nextVirtualKey, srcNameCol: nameCol, srcAmountCol: amtCol,
					kind: ckSolid, splitKind: ckSolid, isReagentGroup: true,
				})
				nextVirtualKey--

				if hasMagnetManual {
					cols = append(cols, orderedColumn{
						key: nextVirtualKey, srcNameCol: nameCol, srcAmountCol: -1,
						kind: ckMagnetManual, isMagnetOnly: true,
					})
					nextVirtualKey--
				}

				cols = append(cols, orderedColumn{
					key: nextVirtualKey, srcNameCol: nameCol, srcAmountCol: amtCol,
					kind: ckLiquid, splitKind: ckLiquid, maxVolumeML: maxLiquidVolML, isReagentGroup: true,
				})
				nextVirtualKey--

				if hasOther {
					cols = append(cols, orderedColumn{
						key: nextVirtualKey, srcNameCol: nameCol, srcAmountCol: amtCol,
						kind: ckOther, splitKind: ckOther, isReagentGroup: true,
					})
					nextVirtualKey--
				}
			} else {
				finalKind := ckOther
				switch {
				case hasMagnetManual:
					finalKind = ckMagnetManual
				case hasLiquid:
					finalKind = ckLiquid
				case hasSolid:
					finalKind = ckSolid
				}
				// Matches the source exactly: an unsplit reagent column keeps
				// is_reagent_group=true/is_magnet_only=false even when its
				// final_type is magnet_manual (a column that happened to
				// contain only "magnet" cells, or a mix the split rule
				// didn't trigger on since it takes two phases to split).
				col := orderedColumn{
					key: nameCol, srcNameCol: nameCol, srcAmountCol: amtCol,
					kind: finalKind, isReagentGroup: true, isMagnetOnly: false,
				}
				if finalKind == ckLiquid {
					col.maxVolumeML = maxLiquidVolML
				}
				cols = append(cols, col)
			}

			colIdx += 2
			continue
		}

		if header == "magnet" {
			cols = append(cols, orderedColumn{
				key: colIdx, srcNameCol: colIdx, srcAmountCol: -1,
				kind: ckMagnetManual, isMagnetOnly: true,
			})
			colIdx++
			continue
		}

		colIdx++
	}

	return cols
}

// orderColumns applies the auto or fixed ordering heuristic, inserting a
// synthetic magnet column when autoMagnet is set.
func orderColumns(cols []orderedColumn, autoMagnet, fixedOrder bool) []orderedColumn {
	const syntheticMagnetKey = -999999

	if !fixedOrder {
		var solids, manualMagnets, liquids, others []orderedColumn
		for _, c := range cols {
			switch c.kind {
			case ckSolid:
				solids = append(solids, c)
			case ckMagnetManual:
				manualMagnets = append(manualMagnets, c)
			case ckLiquid:
				liquids = append(liquids, c)
			default:
				others = append(others, c)
			}
		}
		sort.SliceStable(liquids, func(i, j int) bool { return liquids[i].maxVolumeML > liquids[j].maxVolumeML })

		var out []orderedColumn
		out = append(out, solids...)
		if autoMagnet {
			out = append(out, orderedColumn{key: syntheticMagnetKey, kind: ckMagnetAuto})
		}
		out = append(out, manualMagnets...)
		out = append(out, liquids...)
		out = append(out, others...)
		return out
	}

	var out []orderedColumn
	inserted := false
	for _, c := range cols {
		if autoMagnet && !inserted && c.kind == ckLiquid {
			out = append(out, orderedColumn{key: syntheticMagnetKey, kind: ckMagnetAuto})
			inserted = true
		}
		out = append(out, c)
	}
	if autoMagnet && !inserted {
		out = append(out, orderedColumn{key: syntheticMagnetKey, kind: ckMagnetAuto})
	}
	return out
}

func newUnitID() string {
	return "unit-" + uuid.New().String()[:8]
}

func newMagnetUnit(col, row int) Unit {
	return Unit{ID: newUnitID(), Kind: KindAddMagnet, Column: col, Row: row}
}

// parseAmountUnit splits a reagent-amount cell like "2mL" or "500mg" into
// its numeric and unit parts, character by character — the same shape as
// the source's _split_amount_unit, including its "mL" default when no unit
// suffix is present.
func parseAmountUnit(text string) (float64, string) {
	var numberPart, unitPart strings.Builder
	for _, ch := range text {
		if (ch >= '0' && ch <= '9') || ch == '.' {
			numberPart.WriteRune(ch)
		} else {
			unitPart.WriteRune(ch)
		}
	}
	val, _ := parseFloatOrZero(numberPart.String())
	u := strings.TrimSpace(unitPart.String())
	u = strings.ReplaceAll(u, "µ", "μ")
	if u == "" {
		u = "mL"
	}
	return val, u
}

func parseFloatOrZero(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// toMLForOrdering converts a parsed amount to mL strictly for the liquid
// column's max-volume ordering key; amounts expressed in any other unit
// (mmol, eq, g, mg) don't participate in that comparison and contribute 0.
func toMLForOrdering(value float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "ml":
		return value
	case "ul", "μl":
		return value / 1000
	default:
		return 0
	}
}

// buildReagentUnit emits the add-powder or pipette unit for one reagent
// cell, grounded on _add_reagent_unit. Returns (nil, nil) when the chemical's
// state is neither solid nor liquid and its form is neither solution nor
// beads — the source leaves this case unhandled (no unit_type assigned) and
// the idiomatic reading is to emit nothing rather than a broken unit.
func buildReagentUnit(col, row int, name string, chem chemical.Chemical, amtVal float64, amtUnit string, errorPct, maxErrorMg, reactionScaleMmol float64) (*Unit, error) {
	u := Unit{ID: newUnitID(), Column: col, Row: row, Substance: name, ChemicalID: chem.StationID}

	amtUnit = strings.ToLower(amtUnit)
	var targetMmol float64
	haveTargetMmol := false

	switch amtUnit {
	case "eq":
		scaled, err := amount.EquivalentToMmol(amtVal, reactionScaleMmol)
		if err != nil {
			return nil, err
		}
		targetMmol = scaled
		haveTargetMmol = true
		amtVal = scaled
		amtUnit = "mmol"
	case "mmol":
		targetMmol = amtVal
		haveTargetMmol = true
	}

	if haveTargetMmol && (chem.Form == amount.FormSolution || chem.Form == amount.FormBeads) {
		kind, value, err := amount.ResolveMmolToAmount(targetMmol, chem.ToAmountChemical())
		if err != nil {
			return nil, err
		}
		if kind == "mL" {
			u.Kind = KindPipette
			u.AddVolumeML = amount.RoundVolume(value)
			return &u, nil
		}
		// beads -> mg, add-powder with the standard weighing tolerance.
		offset := amount.Clip(value*errorPct/100, 0.1, maxErrorMg)
		u.Kind = KindAddPowder
		u.TargetWeightMg = amount.RoundWeight(value)
		u.OffsetMg = amount.RoundWeight(offset)
		return &u, nil
	}

	switch chem.State {
	case amount.StateSolid:
		var targetMg float64
		switch amtUnit {
		case "mmol":
			targetMg = amtVal * chem.MolecularWeight
		case "g":
			targetMg = amtVal * 1000
		case "mg":
			targetMg = amtVal
		}
		offset := amount.Clip(targetMg*errorPct/100, 0.1, maxErrorMg)
		u.Kind = KindAddPowder
		u.TargetWeightMg = amount.RoundWeight(targetMg)
		u.OffsetMg = amount.RoundWeight(offset)
		return &u, nil

	case amount.StateLiquid:
		var targetVolML float64
		switch amtUnit {
		case "mmol":
			if chem.Density <= 0 {
				return nil, fmt.Errorf("amount: neat liquid %q missing density, cannot resolve mmol amount", name)
			}
			massMg := amtVal * chem.MolecularWeight
			targetVolML = amount.Convert(amount.Weight, amount.Volume, massMg, chem.Density)
		case "ml":
			targetVolML = amtVal
		case "ul", "μl":
			targetVolML = amtVal / 1000
		}
		u.Kind = KindPipette
		u.AddVolumeML = amount.RoundVolume(targetVolML)
		return &u, nil

	default:
		return nil, nil
	}
}

func buildReactionUnit(col, row int, p Params) Unit {
	temp := 25.0
	if p.ReactionTemperatureC != nil {
		temp = *p.ReactionTemperatureC
	}

	u := Unit{
		ID: newUnitID(), Kind: KindStir, Column: col, Row: row,
		TemperatureC:        temp,
		RotationSpeedRPM:    p.RotationSpeedRPM,
		ReactionDurationSec: int(p.ReactionTimeHours * 3600),
		IsWait:              p.WaitTargetTemp,
	}
	if p.TargetTemperatureC != nil {
		u.IsHeating = true
		t := *p.TargetTemperatureC
		u.TargetTemperatureC = &t
	}
	return u
}

func buildInternalStandardUnit(col, row int, p Params, dir *chemical.Directory) (Unit, bool) {
	chem, err := dir.Lookup(p.InternalStandardName, col)
	if err != nil {
		return Unit{}, false
	}

	u := Unit{ID: newUnitID(), Column: col, Row: row, Substance: p.InternalStandardName, ChemicalID: chem.StationID}

	switch chem.State {
	case amount.StateSolid:
		targetMg := p.InternalStandardAmount
		if targetMg == 0 {
			targetMg = 10.0
		}
		offset := amount.Clip(targetMg*p.weighingErrorPct()/100, 0.1, p.maxErrorMg())
		u.Kind = KindAddPowder
		u.TargetWeightMg = amount.RoundWeight(targetMg)
		u.OffsetMg = amount.RoundWeight(offset)
	case amount.StateLiquid:
		targetVolML := 0.1
		if p.InternalStandardAmount != 0 {
			targetVolML = p.InternalStandardAmount / 1000
		}
		u.Kind = KindPipette
		u.AddVolumeML = amount.RoundVolume(targetVolML)
	default:
		return Unit{}, false
	}
	return u, true
}

func buildPostISStirUnit(col, row int, p Params) Unit {
	rpm := p.PostISStirRotationRPM
	if rpm == 0 {
		rpm = 600
	}
	return Unit{
		ID: newUnitID(), Kind: KindStir, Column: col, Row: row,
		TemperatureC:        25,
		RotationSpeedRPM:    rpm,
		ReactionDurationSec: int(p.PostISStirMinutes * 60),
		IsHeating:           false,
	}
}

func buildFilterUnit(col, row int, p Params, dir *chemical.Directory) (Unit, bool) {
	chem, err := dir.Lookup(p.DiluentName, col)
	if err != nil {
		return Unit{}, false
	}
	return Unit{
		ID: newUnitID(), Kind: KindFilterSample, Column: col, Row: row,
		Substance:        p.DiluentName,
		ChemicalID:       chem.StationID,
		AddVolumeML:      amount.RoundVolume(p.DilutionVolumeUL / 1000),
		SamplingVolumeML: amount.RoundVolume(p.SampleVolumeUL / 1000),
		SinglePressNum:   6,
	}, true
}
