package chemical

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthline/corestation/pkg/amount"
)

func TestValidateDuplicateNamesIsFatal(t *testing.T) {
	entries := []Chemical{
		{Name: "NaOH", State: amount.StateSolid, Form: amount.FormNeat, MolecularWeight: 40},
		{Name: "NaOH", State: amount.StateSolid, Form: amount.FormNeat, MolecularWeight: 40},
	}
	report := Validate(entries)
	assert.False(t, report.OK())
	assert.Contains(t, report.Errors[0], "NaOH")
}

func TestValidateFormSpecificWarnings(t *testing.T) {
	entries := []Chemical{
		{Name: "acid-1", State: amount.StateLiquid, Form: amount.FormNeat}, // missing MW, density
		{Name: "sol-1", Form: amount.FormSolution},                        // missing active content
		{Name: "bead-1", Form: amount.FormBeads},                          // missing both
		{Name: "ok-1", State: amount.StateSolid, Form: amount.FormNeat, MolecularWeight: 58.44},
	}
	report := Validate(entries)
	assert.True(t, report.OK())
	// acid-1: MW+density (2); sol-1: missing state + missing content (2);
	// bead-1: missing state + missing fields (2); ok-1: none.
	assert.Len(t, report.Warnings, 6)
}

func TestValidateAllowedStates(t *testing.T) {
	entries := []Chemical{
		{Name: "x", State: "plasma", Form: amount.FormNeat, MolecularWeight: 1},
	}
	report := Validate(entries)
	assert.True(t, report.OK())
	require.NotEmpty(t, report.Warnings)
}

func TestDeduplicateMergesByName(t *testing.T) {
	entries := []Chemical{
		{Name: "NaOH", CAS: "1310-73-2"},
		{Name: "NaOH", MolecularWeight: 40},
		{Name: "", CAS: "unnamed-row"},
	}
	out := Deduplicate(entries)
	require.Len(t, out, 2)
	assert.Equal(t, "NaOH", out[0].Name)
	assert.Equal(t, "1310-73-2", out[0].CAS)
	assert.Equal(t, 40.0, out[0].MolecularWeight)
	assert.Equal(t, "unnamed-row", out[1].CAS)
}

func TestJoinAndWrapValues(t *testing.T) {
	assert.Equal(t, "a;b", JoinValues([]string{"a", "b", "a"}))
	assert.Equal(t, "a", JoinValues([]string{"a", ""}))
	assert.Equal(t, "", JoinValues(nil))

	assert.Equal(t, "(a;b)", WrapValues([]string{"a", "b"}))
	assert.Equal(t, "a", WrapValues([]string{"a"}))
}

type fakeStation struct {
	list     []StationRecord
	nextID   int
	created  []string
	updated  []int
	deleted  []int
}

func (f *fakeStation) ChemicalList(ctx context.Context) ([]StationRecord, error) {
	return f.list, nil
}

func (f *fakeStation) AddChemical(ctx context.Context, name, cas, state string) (int, error) {
	f.nextID++
	f.created = append(f.created, name)
	f.list = append(f.list, StationRecord{StationID: f.nextID, Name: name, CAS: cas, State: state})
	return f.nextID, nil
}

func (f *fakeStation) UpdateChemical(ctx context.Context, stationID int, name, cas, state string) error {
	f.updated = append(f.updated, stationID)
	return nil
}

func (f *fakeStation) DeleteChemical(ctx context.Context, stationID int) error {
	f.deleted = append(f.deleted, stationID)
	return nil
}

func TestAlignCreatesUpdatesAndBackfills(t *testing.T) {
	station := &fakeStation{
		list: []StationRecord{
			{StationID: 7, Name: "KOH", CAS: "1310-58-3", State: "solid"},
			{StationID: 8, Name: "stale", CAS: "0-0-0", State: "solid"},
		},
	}
	entries := []Chemical{
		{Name: "KOH", CAS: "1310-58-3", State: amount.StateLiquid}, // state differs -> update
		{Name: "new-salt", CAS: "9-9-9", State: amount.StateSolid}, // absent -> create
	}

	result, err := Align(context.Background(), station, entries, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Deleted)

	assert.Equal(t, 7, entries[0].StationID)
	assert.NotZero(t, entries[1].StationID)
	assert.Empty(t, station.deleted)
}

func TestAlignAutoDelete(t *testing.T) {
	station := &fakeStation{
		list: []StationRecord{
			{StationID: 7, Name: "KOH", CAS: "1310-58-3", State: "solid"},
			{StationID: 8, Name: "stale", CAS: "0-0-0", State: "solid"},
		},
	}
	entries := []Chemical{
		{Name: "KOH", CAS: "1310-58-3", State: amount.StateSolid},
	}

	result, err := Align(context.Background(), station, entries, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []int{8}, station.deleted)
}

func TestDirectoryLookupNotFound(t *testing.T) {
	d := NewDirectory([]Chemical{{Name: "NaOH"}})

	c, err := d.Lookup("NaOH", 0)
	require.NoError(t, err)
	assert.Equal(t, "NaOH", c.Name)

	_, err = d.Lookup("missing", 3)
	require.Error(t, err)
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "missing", nfe.Substance)
	assert.Equal(t, 3, nfe.Column)
}

func TestLoadEntriesParsesFlatYAMLList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chemicals.yaml")
	body := `
- name: NaOH
  cas: "1310-73-2"
  molecularweight: 40
  state: solid
  form: neat
- name: Water
  cas: "7732-18-5"
  molecularweight: 18.015
  density: 1.0
  state: liquid
  form: neat
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	entries, err := LoadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "NaOH", entries[0].Name)
	assert.Equal(t, "Water", entries[1].Name)
}

func TestLoadEntriesMissingFileFails(t *testing.T) {
	_, err := LoadEntries(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
