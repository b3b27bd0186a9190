// Package mapping loads the editable, fixed-schema mapping tables the
// pipeline consults: crawl hotfixes, dataset-ID corrections, normalization
// maps, molecular-data field maps, and per-dataset overrides.  Every table is
// data, never code — the transformers in the pipeline stages read these
// structures and contain no hard-coded portal quirks.
//
// All files live in the results config directory and are consumed read-only.
// A missing file yields the zero table, so fresh deployments start without
// hand-curated fixes.
package mapping

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// crawl-hotfix-mapping.json
// ─────────────────────────────────────────────────────────────────────────────

// ControlledAccessRowFix replaces a known-broken controlled-access table row.
// A row matches when the page's humId, the row's cell count, and its first
// cell text all agree.
type ControlledAccessRowFix struct {
	HumID     string   `json:"humId"`
	CellCount int      `json:"cellCount"`
	FirstCell string   `json:"firstCell"`
	Cells     []string `json:"cells"`
}

// CrawlHotfix is the schema of crawl-hotfix-mapping.json.
type CrawlHotfix struct {
	// SkipPages lists humIds that must not be fetched at all.
	SkipPages []string `json:"skipPages"`

	// ReleaseURLSuffix overrides the release-page URL suffix, keyed by
	// "{humVersionId}-{lang}".
	ReleaseURLSuffix map[string]string `json:"releaseUrlSuffix"`

	// ControlledAccessRows replaces hand-identified broken rows.
	ControlledAccessRows []ControlledAccessRowFix `json:"controlledAccessRows"`

	// DataSummaryPages lists humIds whose detail page is a data-summary
	// variant with a different table layout.
	DataSummaryPages []string `json:"dataSummaryPages"`
}

// SkipSet returns the skip list as a set.
func (c *CrawlHotfix) SkipSet() map[string]bool {
	out := make(map[string]bool, len(c.SkipPages))
	for _, id := range c.SkipPages {
		out[id] = true
	}
	return out
}

// DataSummarySet returns the data-summary page list as a set.
func (c *CrawlHotfix) DataSummarySet() map[string]bool {
	out := make(map[string]bool, len(c.DataSummaryPages))
	for _, id := range c.DataSummaryPages {
		out[id] = true
	}
	return out
}

// RowFix returns the replacement cells for a controlled-access row, or nil.
func (c *CrawlHotfix) RowFix(humID string, cellCount int, firstCell string) []string {
	for _, fix := range c.ControlledAccessRows {
		if fix.HumID == humID && fix.CellCount == cellCount && fix.FirstCell == firstCell {
			return fix.Cells
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// dataset-id-mapping.json
// ─────────────────────────────────────────────────────────────────────────────

// DatasetIDMapping is the schema of dataset-id-mapping.json: every correction
// table the dataset-ID reconciliation pipeline applies.
type DatasetIDMapping struct {
	// Global, Publication and ControlledAccess substitute whole tokens by
	// context before any other rule runs.
	Global           map[string]string `json:"global"`
	Publication      map[string]string `json:"publication"`
	ControlledAccess map[string]string `json:"controlledAccess"`

	// PerHum holds research-scoped token substitutions (bilingual aliases,
	// manual alias lists), keyed by humId then raw token.
	PerHum map[string]map[string]string `json:"perHum"`

	// JgadTypoToJgas corrects tokens mistyped in the JGAD namespace that are
	// actually studies.
	JgadTypoToJgas map[string]string `json:"jgadTypoToJgas"`

	// FormatToJgas converts JGAX and legacy JGA forms into JGAS.
	FormatToJgas map[string]string `json:"formatToJgas"`

	// SpecialCases substitutes a whole cleaned cell string with a token list
	// before splitting.
	SpecialCases map[string][]string `json:"specialCases"`

	// NoSplit lists cleaned cell strings that must not be whitespace-split.
	NoSplit []string `json:"noSplit"`

	// InvalidIDs and InvalidJGAS are deny lists; invalid JGAS are dropped
	// silently, other invalid IDs are dropped after expansion.
	InvalidIDs  []string `json:"invalidIds"`
	InvalidJGAS []string `json:"invalidJgas"`

	// IgnoreJgadByHum drops specific expanded JGADs per research;
	// AdditionalJgadByHum unions extra JGADs into a study's expansion.
	// Ignores are applied last and win over additions.
	IgnoreJgadByHum     map[string][]string            `json:"ignoreJgadByHum"`
	AdditionalJgadByHum map[string]map[string][]string `json:"additionalJgadByHum"`
}

func toSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

// InvalidIDSet returns the invalid-ID deny list as a set.
func (m *DatasetIDMapping) InvalidIDSet() map[string]bool { return toSet(m.InvalidIDs) }

// InvalidJGASSet returns the invalid-JGAS deny list as a set.
func (m *DatasetIDMapping) InvalidJGASSet() map[string]bool { return toSet(m.InvalidJGAS) }

// NoSplitSet returns the no-split allow list as a set.
func (m *DatasetIDMapping) NoSplitSet() map[string]bool { return toSet(m.NoSplit) }

// ─────────────────────────────────────────────────────────────────────────────
// normalize-mapping.json
// ─────────────────────────────────────────────────────────────────────────────

// NormalizeMapping is the schema of normalize-mapping.json.
type NormalizeMapping struct {
	// Criteria maps the folded form of a raw criteria string (lowercased,
	// NFKC, whitespace and hyphens removed) to one of the three canonical
	// values.  Both Japanese and English forms appear as keys.
	Criteria map[string]string `json:"criteria"`

	// Policy maps raw policy labels to policy IDs.
	Policy map[string]string `json:"policy"`

	// GrantIDDeny lists grant-ID strings to drop after width folding.
	GrantIDDeny []string `json:"grantIdDeny"`

	// PublicationInSubmission lists publication titles that mean "paper not
	// yet published"; such rows are dropped.
	PublicationInSubmission []string `json:"publicationInSubmission"`

	// DOIDeny lists DOI strings that must be nulled out.
	DOIDeny []string `json:"doiDeny"`
}

// ─────────────────────────────────────────────────────────────────────────────
// moldata-field-mapping.json
// ─────────────────────────────────────────────────────────────────────────────

// DiscardKey is the sentinel canonical value marking "discard this row".
const DiscardKey = "__DISCARD__"

// MolDataFieldMapping is the schema of moldata-field-mapping.json.
type MolDataFieldMapping struct {
	// Keys maps a raw row label (ja or en, folded) to its canonical field
	// names.  A single-element list is a plain rename; a multi-element list
	// is a split key (the row is duplicated into each canonical field); the
	// DiscardKey sentinel drops the row.
	Keys map[string][]string `json:"keys"`

	// IDFields lists the canonical fields harvested for dataset-ID tokens in
	// addition to the row header.
	IDFields []string `json:"idFields"`
}

// IDFieldSet returns IDFields as a set.
func (m *MolDataFieldMapping) IDFieldSet() map[string]bool { return toSet(m.IDFields) }

// ─────────────────────────────────────────────────────────────────────────────
// dataset-overrides.json
// ─────────────────────────────────────────────────────────────────────────────

// DatasetOverride pins criteria/releaseDate for one (humId, datasetId), and
// optionally redirects metadata inheritance to an explicit ancestor.
type DatasetOverride struct {
	HumID       string   `json:"humId"`
	DatasetID   string   `json:"datasetId"`
	Criteria    []string `json:"criteria"`
	ReleaseDate *string  `json:"releaseDate"`
	InheritFrom string   `json:"inheritFrom"`
}

// DatasetOverrides is the schema of dataset-overrides.json.
type DatasetOverrides struct {
	Overrides []DatasetOverride `json:"overrides"`
}

// Find returns the override for (humID, datasetID), or nil.
func (d *DatasetOverrides) Find(humID, datasetID string) *DatasetOverride {
	for i := range d.Overrides {
		o := &d.Overrides[i]
		if o.HumID == humID && o.DatasetID == datasetID {
			return o
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────────────────────

// Tables bundles every mapping table for injection into the stages.
type Tables struct {
	CrawlHotfix CrawlHotfix
	DatasetID   DatasetIDMapping
	Normalize   NormalizeMapping
	MolData     MolDataFieldMapping
	Overrides   DatasetOverrides
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrCodeConfig, "failed to read mapping file %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, errors.ErrCodeConfig, "malformed mapping file %s", path)
	}
	return nil
}

// Load reads every mapping table from configDir.  Missing files yield zero
// tables; malformed files are a fatal ErrCodeConfig.
func Load(configDir string) (*Tables, error) {
	t := &Tables{}
	files := []struct {
		name string
		dst  interface{}
	}{
		{"crawl-hotfix-mapping.json", &t.CrawlHotfix},
		{"dataset-id-mapping.json", &t.DatasetID},
		{"normalize-mapping.json", &t.Normalize},
		{"moldata-field-mapping.json", &t.MolData},
		{"dataset-overrides.json", &t.Overrides},
	}
	for _, f := range files {
		if err := loadJSON(filepath.Join(configDir, f.name), f.dst); err != nil {
			return nil, err
		}
	}
	return t, nil
}
