// Package icd10 attaches ICD10 codes to the disease labels of structured
// datasets.  A master table maps each code to its one canonical label; a
// per-research split table expands hand-identified compound labels ("diabetes
// and obesity") into their component codes.  Check mode validates that every
// emitted disease carries a code and the exact master label.
package icd10

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Tables is the schema of icd10-labels.json.
type Tables struct {
	// Labels maps an ICD10 code to its canonical disease label.
	Labels map[string]string `json:"labels"`

	// Splits expands a raw compound label into component codes, keyed by
	// humId then raw label.
	Splits map[string]map[string][]string `json:"splits"`
}

// Load reads the master table from path.
func Load(path string) (*Tables, error) {
	t := &Tables{}
	if err := runner.ReadJSON(path, t); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "failed to load icd10 label table").WithDetail(path)
	}
	return t, nil
}

// Normalizer rewrites searchable disease lists in place.
type Normalizer struct {
	tables  *Tables
	byLabel map[string]string
	logger  logging.Logger
}

// New indexes the master table by folded label for reverse lookup.  Codes
// are walked in sorted order so two codes sharing one folded label always
// resolve to the same (lowest) code.
func New(tables *Tables, logger logging.Logger) *Normalizer {
	log := logger.Named("icd10")
	codes := make([]string, 0, len(tables.Labels))
	for code := range tables.Labels {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	byLabel := make(map[string]string, len(codes))
	for _, code := range codes {
		folded := foldLabel(tables.Labels[code])
		if kept, dup := byLabel[folded]; dup {
			log.Warn("two codes share one folded label",
				logging.String("kept", kept), logging.String("ignored", code))
			continue
		}
		byLabel[folded] = code
	}
	return &Normalizer{tables: tables, byLabel: byLabel, logger: log}
}

func foldLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Apply rewrites every experiment's diseases to {label, icd10} pairs.
// Compound labels split per the research's split table; known labels get
// their code and the master spelling; unknown labels are left untouched with
// a warning.  Idempotent.
func (n *Normalizer) Apply(ds *dataset.Dataset) {
	splits := n.tables.Splits[ds.HumID]
	for ei := range ds.Experiments {
		s := ds.Experiments[ei].Searchable
		if s == nil || len(s.Diseases) == 0 {
			continue
		}
		var out []dataset.Disease
		for _, d := range s.Diseases {
			out = append(out, n.rewrite(d, splits)...)
		}
		s.Diseases = out
	}
}

func (n *Normalizer) rewrite(d dataset.Disease, splits map[string][]string) []dataset.Disease {
	if codes, ok := splits[d.Label]; ok {
		out := make([]dataset.Disease, 0, len(codes))
		for _, code := range codes {
			label, known := n.tables.Labels[code]
			if !known {
				n.logger.Warn("split table names a code missing from the master table",
					logging.String("icd10", code))
				continue
			}
			c := code
			out = append(out, dataset.Disease{Label: label, ICD10: &c})
		}
		return out
	}

	if code, ok := n.byLabel[foldLabel(d.Label)]; ok {
		return []dataset.Disease{{Label: n.tables.Labels[code], ICD10: &code}}
	}

	if d.ICD10 == nil {
		n.logger.Warn("disease label not in the master table", logging.String("label", d.Label))
	}
	return []dataset.Disease{d}
}

// Violation is one check failure.
type Violation struct {
	DatasetID string
	Label     string
	Reason    string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %q: %s", v.DatasetID, v.Label, v.Reason)
}

// Check validates a dataset's diseases: every entry must carry a code, and
// its label must exactly equal the master label for that code.
func (n *Normalizer) Check(ds *dataset.Dataset) []Violation {
	var out []Violation
	for _, exp := range ds.Experiments {
		if exp.Searchable == nil {
			continue
		}
		for _, d := range exp.Searchable.Diseases {
			if d.ICD10 == nil {
				out = append(out, Violation{DatasetID: ds.DatasetID, Label: d.Label, Reason: "missing icd10 code"})
				continue
			}
			master, known := n.tables.Labels[*d.ICD10]
			if !known {
				out = append(out, Violation{DatasetID: ds.DatasetID, Label: d.Label,
					Reason: fmt.Sprintf("unknown icd10 code %s", *d.ICD10)})
				continue
			}
			if d.Label != master {
				out = append(out, Violation{DatasetID: ds.DatasetID, Label: d.Label,
					Reason: fmt.Sprintf("label differs from master label %q for %s", master, *d.ICD10)})
			}
		}
	}
	return out
}
