package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthline/corestation/pkg/amount"
	"github.com/synthline/corestation/pkg/builder"
	"github.com/synthline/corestation/pkg/chemical"
	"github.com/synthline/corestation/pkg/layout"
)

func testDirectory() *chemical.Directory {
	return chemical.NewDirectory([]chemical.Chemical{
		{Name: "NaOH", State: amount.StateSolid, Form: amount.FormNeat, MolecularWeight: 40},
		{Name: "water", State: amount.StateLiquid, Form: amount.FormNeat, MolecularWeight: 18, Density: 1.0},
	})
}

func mgDetail(substance, available string) InventoryDetail {
	return InventoryDetail{Substance: substance, AvailableWeight: available}
}

func mlDetail(substance, available string) InventoryDetail {
	return InventoryDetail{Substance: substance, AvailableVolume: available}
}

func TestAnalyzeReadinessSatisfiedWhenSupplyCoversDemandPlusDeadVolume(t *testing.T) {
	payload := Payload{
		ExperimentCount: 12,
		Units: []builder.Unit{
			{Kind: builder.KindAddPowder, Row: 0, Column: 0, Substance: "NaOH", TargetWeightMg: 1000},
			{Kind: builder.KindPipette, Row: 1, Column: 0, Substance: "water", AddVolumeML: 0.5},
		},
	}
	inventory := []InventoryRow{
		{
			LayoutCode: "W-1", TrayCode: layout.ReagentBottleTray8ML, Count: 1,
			Details: []InventoryDetail{mgDetail("NaOH", "5000mg")},
		},
		{
			LayoutCode: "W-2", TrayCode: layout.ReagentBottleTray2ML, Count: 1,
			Details: []InventoryDetail{mlDetail("water", "2mL")},
		},
		{LayoutCode: "TUBE-1", TrayCode: layout.ReactionTubeTray2ML, Count: 12},
		{LayoutCode: "TIP-1", TrayCode: layout.TipTray1ML, Count: 1},
	}

	report, err := AnalyzeReadiness(context.Background(), payload, inventory, testDirectory(), nil, nil)
	require.NoError(t, err)
	assert.True(t, report.Ready)
	assert.Empty(t, report.Missing)

	var tubes ConsumableRow
	for _, c := range report.Consumables {
		if c.Code == layout.ReactionTube2ML {
			tubes = c
		}
	}
	assert.Equal(t, 12, tubes.Need)
	assert.Equal(t, "satisfied", tubes.Status)
}

func TestAnalyzeReadinessShortReagentIsFlagged(t *testing.T) {
	payload := Payload{
		ExperimentCount: 12,
		Units: []builder.Unit{
			{Kind: builder.KindAddPowder, Row: 0, Column: 0, Substance: "NaOH", TargetWeightMg: 1000},
		},
	}
	inventory := []InventoryRow{
		{
			LayoutCode: "W-1", TrayCode: layout.ReagentBottleTray8ML, Count: 1,
			Details: []InventoryDetail{mgDetail("NaOH", "500mg")},
		},
	}

	report, err := AnalyzeReadiness(context.Background(), payload, inventory, testDirectory(), nil, nil)
	require.NoError(t, err)
	assert.False(t, report.Ready)

	var naoh ReagentRow
	for _, r := range report.Reagents {
		if r.Substance == "NaOH" {
			naoh = r
		}
	}
	assert.Equal(t, "short", naoh.Status)
	assert.InDelta(t, 1020.0, naoh.NeedMg, 1e-9) // 1000mg + 20mg powder dead weight
}

func TestAnalyzeReadinessExcludesAirlockPrefixedInventory(t *testing.T) {
	payload := Payload{
		ExperimentCount: 12,
		Units: []builder.Unit{
			{Kind: builder.KindAddPowder, Row: 0, Column: 0, Substance: "NaOH", TargetWeightMg: 100},
		},
	}
	inventory := []InventoryRow{
		{
			LayoutCode: "MSB-1", TrayCode: layout.ReagentBottleTray8ML, Count: 1,
			Details: []InventoryDetail{mgDetail("NaOH", "5000mg")},
		},
	}

	report, err := AnalyzeReadiness(context.Background(), payload, inventory, testDirectory(), nil, nil)
	require.NoError(t, err)
	assert.False(t, report.Ready)
}

func TestAnalyzeReadinessTipSizingByVolumeBand(t *testing.T) {
	payload := Payload{
		ExperimentCount: 1,
		Units: []builder.Unit{
			{Kind: builder.KindPipette, Row: 0, Column: 0, Substance: "water", AddVolumeML: 8.0},
		},
	}
	need, _ := demand(payload)
	assert.Equal(t, 3, need[layout.Tip5ML]) // ceil(8.0 / 3.5) == 3
	assert.Equal(t, 0, need[layout.Tip1ML])
}

func TestAnalyzeReadinessReactionSealCapOnlyWhenStirPresent(t *testing.T) {
	withStir := Payload{ExperimentCount: 48, Units: []builder.Unit{{Kind: builder.KindStir}}}
	need, _ := demand(withStir)
	assert.Equal(t, 2, need[layout.ReactionSealCap]) // ceil(48/24)

	withoutStir := Payload{ExperimentCount: 48, Units: []builder.Unit{{Kind: builder.KindAddPowder, Substance: "x"}}}
	need, _ = demand(withoutStir)
	assert.Equal(t, 0, need[layout.ReactionSealCap])
}

type fakeChecker struct {
	result CheckResult
}

func (f fakeChecker) CheckTaskResource(ctx context.Context, taskID int) (CheckResult, error) {
	return f.result, nil
}

type erroringChecker struct{ err error }

func (f erroringChecker) CheckTaskResource(context.Context, int) (CheckResult, error) {
	return CheckResult{}, f.err
}

func TestAnalyzeReadinessSecondaryCheckOverridesToNotReady(t *testing.T) {
	payload := Payload{
		ExperimentCount: 1,
		Units: []builder.Unit{
			{Kind: builder.KindPipette, Row: 0, Column: 0, Substance: "water", AddVolumeML: 0.1},
		},
	}
	inventory := []InventoryRow{
		{
			LayoutCode: "W-1", TrayCode: layout.ReagentBottleTray2ML, Count: 1,
			Details: []InventoryDetail{mlDetail("water", "5mL")},
		},
		{LayoutCode: "TUBE-1", TrayCode: layout.ReactionTubeTray2ML, Count: 1},
		{LayoutCode: "TIP-1", TrayCode: layout.TipTray1ML, Count: 1},
	}

	taskID := 42
	checker := fakeChecker{result: CheckResult{Code: 1200, ResourceType: "reagent", Number: 1}}
	report, err := AnalyzeReadiness(context.Background(), payload, inventory, testDirectory(), checker, &taskID)
	require.NoError(t, err)
	assert.False(t, report.Ready)
	assert.True(t, report.SecondaryCheckFailed)
}

// TestAnalyzeReadinessSwallowsSecondaryCheckTransportError mirrors
// analyze_resource_readiness's try/except around the optional secondary
// check: a transport error there must never fail the whole readiness
// computation or flip a trustworthy Ready=true result.
func TestAnalyzeReadinessSwallowsSecondaryCheckTransportError(t *testing.T) {
	payload := Payload{
		ExperimentCount: 1,
		Units: []builder.Unit{
			{Kind: builder.KindPipette, Row: 0, Column: 0, Substance: "water", AddVolumeML: 0.1},
		},
	}
	inventory := []InventoryRow{
		{
			LayoutCode: "W-1", TrayCode: layout.ReagentBottleTray2ML, Count: 1,
			Details: []InventoryDetail{mlDetail("water", "5mL")},
		},
		{LayoutCode: "TUBE-1", TrayCode: layout.ReactionTubeTray2ML, Count: 1},
		{LayoutCode: "TIP-1", TrayCode: layout.TipTray1ML, Count: 1},
	}

	taskID := 42
	checker := erroringChecker{err: errors.New("connection reset")}
	report, err := AnalyzeReadiness(context.Background(), payload, inventory, testDirectory(), checker, &taskID)
	require.NoError(t, err)
	assert.True(t, report.Ready)
	assert.False(t, report.SecondaryCheckFailed)
}

func TestAnalyzeReadinessSecondaryCheckPassCodeLeavesReady(t *testing.T) {
	payload := Payload{
		ExperimentCount: 1,
		Units: []builder.Unit{
			{Kind: builder.KindPipette, Row: 0, Column: 0, Substance: "water", AddVolumeML: 0.1},
		},
	}
	inventory := []InventoryRow{
		{
			LayoutCode: "W-1", TrayCode: layout.ReagentBottleTray2ML, Count: 1,
			Details: []InventoryDetail{mlDetail("water", "5mL")},
		},
		{LayoutCode: "TUBE-1", TrayCode: layout.ReactionTubeTray2ML, Count: 1},
		{LayoutCode: "TIP-1", TrayCode: layout.TipTray1ML, Count: 1},
	}

	taskID := 42
	checker := fakeChecker{result: CheckResult{Code: 200}}
	report, err := AnalyzeReadiness(context.Background(), payload, inventory, testDirectory(), checker, &taskID)
	require.NoError(t, err)
	assert.True(t, report.Ready)
	assert.False(t, report.SecondaryCheckFailed)
}
