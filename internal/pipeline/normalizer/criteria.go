package normalizer

import (
	"regexp"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

// builtinCriteria maps the folded form of every known raw criteria spelling
// (ja and en) to its canonical value.  The normalize-mapping file can extend
// this table for newly observed spellings.
var builtinCriteria = map[string]dataset.Criteria{
	fold("Controlled-access (Type I)"):  dataset.CriteriaControlledTypeI,
	fold("Controlled-access (Type II)"): dataset.CriteriaControlledTypeII,
	fold("Unrestricted-access"):         dataset.CriteriaUnrestricted,
	fold("controlled access type 1"):    dataset.CriteriaControlledTypeI,
	fold("controlled access type 2"):    dataset.CriteriaControlledTypeII,
	fold("unrestricted access"):         dataset.CriteriaUnrestricted,
	fold("制限公開(Type I)"):               dataset.CriteriaControlledTypeI,
	fold("制限公開(TypeI)"):                dataset.CriteriaControlledTypeI,
	fold("制限公開(Type II)"):              dataset.CriteriaControlledTypeII,
	fold("制限公開(TypeII)"):               dataset.CriteriaControlledTypeII,
	fold("非制限公開"):                      dataset.CriteriaUnrestricted,
}

var criteriaSplitter = regexp.MustCompile(`[,、/／]`)

// CriteriaNormalizer canonicalizes raw access-criteria strings.
type CriteriaNormalizer struct {
	table  map[string]dataset.Criteria
	logger logging.Logger
}

// NewCriteriaNormalizer merges the built-in table with file-supplied
// extensions (extension keys are folded on load).
func NewCriteriaNormalizer(m *mapping.NormalizeMapping, logger logging.Logger) *CriteriaNormalizer {
	table := make(map[string]dataset.Criteria, len(builtinCriteria)+len(m.Criteria))
	for k, v := range builtinCriteria {
		table[k] = v
	}
	for raw, canonical := range m.Criteria {
		c := dataset.Criteria(canonical)
		if c.Valid() {
			table[fold(raw)] = c
		}
	}
	return &CriteriaNormalizer{table: table, logger: logger.Named("normalizer.criteria")}
}

// Normalize splits a raw criteria cell on comma/slash and maps each part to
// its canonical value.  Unknown parts are logged and dropped; duplicates are
// collapsed preserving first-seen order.
func (n *CriteriaNormalizer) Normalize(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range criteriaSplitter.Split(raw, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		canonical, ok := n.table[fold(part)]
		if !ok {
			n.logger.Warn("unknown access criteria value dropped", logging.String("raw", part))
			continue
		}
		if !seen[string(canonical)] {
			seen[string(canonical)] = true
			out = append(out, string(canonical))
		}
	}
	return out
}

// NormalizeAll flattens and canonicalizes a list of raw criteria cells.
func (n *CriteriaNormalizer) NormalizeAll(raw []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range raw {
		for _, c := range n.Normalize(r) {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
