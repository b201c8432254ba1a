// Package chemical implements the chemical directory: validation of loaded
// entries, deduplication by substance identity, and alignment against the
// station's own chemical registry. Grounded on
// station_controller.py's check_chemical_library_data,
// deduplicate_chemical_library_data and align_chemicals_from_data.
package chemical

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/synthline/corestation/pkg/amount"
)

// Chemical is one chemical directory entry. StationID is 0 until alignment
// has back-filled it.
type Chemical struct {
	Name            string
	CAS             string
	MolecularWeight float64
	Density         float64
	State           amount.PhysicalState
	Form            amount.PhysicalForm
	ActiveContent   float64
	StationID       int
}

// ToAmountChemical narrows a directory entry to the view pkg/amount needs to
// resolve a target mmol into a concrete weighable/pipettable quantity.
func (c Chemical) ToAmountChemical() amount.Chemical {
	return amount.Chemical{
		MolecularWeight: c.MolecularWeight,
		Density:         c.Density,
		State:           c.State,
		Form:            c.Form,
		ActiveContent:   c.ActiveContent,
	}
}

// ValidationReport collects load-time validation errors and warnings,
// mirroring check_chemical_library_data's two-tier severity: a duplicate
// name is fatal, a missing form-specific field is a warning the caller may
// still proceed past.
type ValidationReport struct {
	Errors   []string
	Warnings []string
}

func (r ValidationReport) OK() bool { return len(r.Errors) == 0 }

var allowedStates = map[amount.PhysicalState]bool{
	amount.StateSolid:  true,
	amount.StateLiquid: true,
	amount.StateGas:    true,
}

// Validate checks a batch of freshly loaded entries for name uniqueness and
// form-specific required fields, per §4.2. It never mutates entries.
func Validate(entries []Chemical) ValidationReport {
	var report ValidationReport
	nameCount := map[string]int{}

	for i, c := range entries {
		label := rowLabel(c, i)

		if c.Name != "" {
			nameCount[c.Name]++
		} else {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: missing name", label))
		}

		if !allowedStates[c.State] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: physical state %q is not one of solid/liquid/gas", label, c.State))
		}

		if c.Form == "" || c.Form == amount.FormUnknown {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: physical form is not set", label))
			continue
		}

		switch c.Form {
		case amount.FormNeat:
			if c.MolecularWeight <= 0 {
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: neat form requires molecular weight", label))
			}
			if c.State == amount.StateLiquid && c.Density <= 0 {
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: neat liquid requires density", label))
			}
		case amount.FormSolution:
			if c.ActiveContent <= 0 {
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: solution form requires active content", label))
			}
		case amount.FormBeads:
			var missing []string
			if c.MolecularWeight <= 0 {
				missing = append(missing, "molecular_weight")
			}
			if c.ActiveContent <= 0 {
				missing = append(missing, "active_content")
			}
			if len(missing) > 0 {
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: beads form missing %s", label, strings.Join(missing, ", ")))
			}
		}
	}

	var duplicated []string
	for name, count := range nameCount {
		if count > 1 {
			duplicated = append(duplicated, name)
		}
	}
	if len(duplicated) > 0 {
		sort.Strings(duplicated)
		report.Errors = append(report.Errors, fmt.Sprintf("duplicate chemical name(s): %s", strings.Join(duplicated, ", ")))
	}

	return report
}

func rowLabel(c Chemical, idx int) string {
	if c.Name != "" {
		return c.Name
	}
	if c.CAS != "" {
		return c.CAS
	}
	return fmt.Sprintf("row %d", idx+1)
}

// JoinedFields names the dedup fields that are concatenated with ";"
// (brand-like attributes) rather than wrapped as "(a;b;c)". A directory
// built from a fixed column set can override this per §4.2's "configurable
// set of fields".
var JoinedFields = map[string]bool{
	"brand":            true,
	"package_size":     true,
	"storage_location": true,
}

// Deduplicate merges entries sharing the same non-empty name. For scalar
// fields (molecular weight, density, state, form, active content) the first
// non-zero/non-empty value observed wins; multi-valued free-text fields
// belong to the caller's own row representation and are out of scope here —
// this package dedupes the structured Chemical model, not a raw spreadsheet
// row. Entries with an empty name are passed through unmerged, appended
// after the merged entries in their original relative order.
func Deduplicate(entries []Chemical) []Chemical {
	byName := map[string]*Chemical{}
	var order []string
	var unnamed []Chemical

	for _, c := range entries {
		if c.Name == "" {
			unnamed = append(unnamed, c)
			continue
		}
		existing, ok := byName[c.Name]
		if !ok {
			cp := c
			byName[c.Name] = &cp
			order = append(order, c.Name)
			continue
		}
		mergeInto(existing, c)
	}

	out := make([]Chemical, 0, len(order)+len(unnamed))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	out = append(out, unnamed...)
	return out
}

func mergeInto(dst *Chemical, src Chemical) {
	if dst.CAS == "" {
		dst.CAS = src.CAS
	}
	if dst.MolecularWeight == 0 {
		dst.MolecularWeight = src.MolecularWeight
	}
	if dst.Density == 0 {
		dst.Density = src.Density
	}
	if dst.State == "" {
		dst.State = src.State
	}
	if dst.Form == "" {
		dst.Form = src.Form
	}
	if dst.ActiveContent == 0 {
		dst.ActiveContent = src.ActiveContent
	}
}

// JoinValues concatenates values for a brand-like field with ";", dropping
// blanks and duplicates while preserving first-seen order — the joined-field
// half of deduplicate_chemical_library_data's _build_output.
func JoinValues(values []string) string {
	return joinOrWrap(values, false)
}

// WrapValues renders a multi-valued, non-brand field as "(a;b;c)" when more
// than one distinct value was observed, the bare value when exactly one was
// observed, or "" when none were.
func WrapValues(values []string) string {
	return joinOrWrap(values, true)
}

func joinOrWrap(values []string, wrap bool) string {
	seen := map[string]bool{}
	var uniq []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		uniq = append(uniq, v)
	}
	switch {
	case len(uniq) == 0:
		return ""
	case len(uniq) == 1:
		return uniq[0]
	case wrap:
		return "(" + strings.Join(uniq, ";") + ")"
	default:
		return strings.Join(uniq, ";")
	}
}

// StationRecord is the station's view of one chemical registry entry, as
// returned by the station client's chemical-list call.
type StationRecord struct {
	StationID int
	Name      string
	CAS       string
	State     string
}

// StationClient is the narrow slice of the station client (C6) alignment
// needs: list the live registry and mutate it.
type StationClient interface {
	ChemicalList(ctx context.Context) ([]StationRecord, error)
	AddChemical(ctx context.Context, name, cas, state string) (stationID int, err error)
	UpdateChemical(ctx context.Context, stationID int, name, cas, state string) error
	DeleteChemical(ctx context.Context, stationID int) error
}

// AlignResult reports what Align did, for logging/observability.
type AlignResult struct {
	Created int
	Updated int
	Deleted int
}

// Align reconciles the local directory against the station's live chemical
// registry per §4.2: create missing entries, update ones whose CAS or
// physical-state differs, optionally delete station entries with no local
// counterpart, and back-fill the station-side id into the local records.
// entries is mutated in place.
func Align(ctx context.Context, client StationClient, entries []Chemical, autoDelete bool) (AlignResult, error) {
	var result AlignResult

	live, err := client.ChemicalList(ctx)
	if err != nil {
		return result, fmt.Errorf("chemical: align: list station registry: %w", err)
	}
	byName := make(map[string]StationRecord, len(live))
	for _, r := range live {
		if r.Name != "" {
			byName[r.Name] = r
		}
	}

	localNames := make(map[string]bool, len(entries))

	for i := range entries {
		c := &entries[i]
		if c.Name == "" {
			continue
		}
		localNames[c.Name] = true

		existing, ok := byName[c.Name]
		if !ok {
			id, err := client.AddChemical(ctx, c.Name, c.CAS, string(c.State))
			if err != nil {
				return result, fmt.Errorf("chemical: align: create %q: %w", c.Name, err)
			}
			c.StationID = id
			result.Created++
			continue
		}

		c.StationID = existing.StationID
		if existing.CAS != c.CAS || existing.State != string(c.State) {
			if err := client.UpdateChemical(ctx, existing.StationID, c.Name, c.CAS, string(c.State)); err != nil {
				return result, fmt.Errorf("chemical: align: update %q: %w", c.Name, err)
			}
			result.Updated++
		}
	}

	if autoDelete {
		for _, r := range live {
			if r.Name != "" && !localNames[r.Name] {
				if err := client.DeleteChemical(ctx, r.StationID); err != nil {
					return result, fmt.Errorf("chemical: align: delete %q: %w", r.Name, err)
				}
				result.Deleted++
			}
		}
	}

	return result, nil
}

// NotFoundError is the validation fault raised when task building looks up a
// substance that is not in the local directory, naming the offending
// experiment row per §4.2's final sentence.
type NotFoundError struct {
	Substance string
	Column    int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chemical: substance %q referenced by experiment %d is not in the directory", e.Substance, e.Column)
}

// Directory is an exact-name lookup over a loaded, deduplicated chemical
// list.
type Directory struct {
	byName map[string]Chemical
}

// LoadEntries reads a site's chemical directory file: a flat YAML list of
// Chemical entries. Chemical has no per-field yaml tags, so each key is
// its field name lowercased (molecularweight, activecontent, ...), unlike
// config.yaml, whose loader maps snake_case keys through per-field tags.
func LoadEntries(path string) ([]Chemical, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chemical: load entries: %w", err)
	}
	var entries []Chemical
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("chemical: load entries: parse %s: %w", path, err)
	}
	return entries, nil
}

// NewDirectory indexes entries by name. A later duplicate overwrites an
// earlier one — callers should Validate/Deduplicate before constructing a
// Directory if that matters.
func NewDirectory(entries []Chemical) *Directory {
	d := &Directory{byName: make(map[string]Chemical, len(entries))}
	for _, c := range entries {
		if c.Name != "" {
			d.byName[c.Name] = c
		}
	}
	return d
}

// Lookup resolves a substance name during task building. column identifies
// the experiment row that referenced the substance, for NotFoundError.
func (d *Directory) Lookup(name string, column int) (Chemical, error) {
	c, ok := d.byName[name]
	if !ok {
		return Chemical{}, &NotFoundError{Substance: name, Column: column}
	}
	return c, nil
}

// All returns every directory entry, in no particular order.
func (d *Directory) All() []Chemical {
	out := make([]Chemical, 0, len(d.byName))
	for _, c := range d.byName {
		out = append(out, c)
	}
	return out
}
