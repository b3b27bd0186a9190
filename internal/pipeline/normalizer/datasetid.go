package normalizer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/relation"
)

// IDContext selects the per-context override table applied to a raw token.
type IDContext string

const (
	CtxGeneral          IDContext = "general"
	CtxPublication      IDContext = "publication"
	CtxControlledAccess IDContext = "controlledAccess"
)

var (
	reParens    = regexp.MustCompile(`[(（][^)）]*[)）]`)
	reJgasExact = regexp.MustCompile(`^JGAS\d{6}$`)
	reJgadRange = regexp.MustCompile(`^JGAD(\d+)-JGAD(\d+)$`)
)

// annotationTokensJa are removed as substrings: the portal glues them
// directly onto IDs ("JGAD000001データ追加").
var annotationTokensJa = []string{"データ追加", "データ削除", "追加", "に"}

// annotationTokensEn are removed case-insensitively.
var annotationTokensEn = []string{"Dataset addition", "Data addition", "data added", "data deleted"}

// Reconciler applies the ordered dataset-ID cleanup pipeline of §dataset
// reconciliation: annotation stripping, token splitting, per-context and
// per-research substitutions, namespace conversion, range expansion, and
// study→dataset expansion through the relation port.  Pure except for the
// relation lookup.
type Reconciler struct {
	tables      *mapping.DatasetIDMapping
	port        relation.Port
	logger      logging.Logger
	invalidIDs  map[string]bool
	invalidJGAS map[string]bool
	noSplit     map[string]bool
}

// NewReconciler builds a Reconciler over the loaded mapping tables.
func NewReconciler(tables *mapping.DatasetIDMapping, port relation.Port, logger logging.Logger) *Reconciler {
	return &Reconciler{
		tables:      tables,
		port:        port,
		logger:      logger.Named("normalizer.datasetid"),
		invalidIDs:  tables.InvalidIDSet(),
		invalidJGAS: tables.InvalidJGASSet(),
		noSplit:     tables.NoSplitSet(),
	}
}

// Reconcile turns one raw ID cell into the list of clean dataset IDs it
// denotes.  The result may be empty; it never contains a JGAS accession.
func (r *Reconciler) Reconcile(ctx context.Context, humID, raw string, idCtx IDContext) ([]string, error) {
	cleaned := r.stripAnnotations(raw)
	if cleaned == "" {
		return nil, nil
	}

	var tokens []string
	if special, ok := r.tables.SpecialCases[cleaned]; ok {
		tokens = append(tokens, special...)
	} else if r.noSplit[cleaned] {
		tokens = []string{cleaned}
	} else {
		tokens = strings.Fields(cleaned)
	}

	var out []string
	seen := map[string]bool{}
	for _, tok := range tokens {
		expanded, err := r.reconcileToken(ctx, humID, tok, idCtx)
		if err != nil {
			return nil, err
		}
		for _, id := range expanded {
			if r.invalidIDs[id] {
				continue
			}
			if r.ignored(humID, id) {
				continue
			}
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (r *Reconciler) stripAnnotations(raw string) string {
	s := reParens.ReplaceAllString(raw, " ")
	for _, t := range annotationTokensEn {
		s = removeFold(s, t)
	}
	for _, t := range annotationTokensJa {
		s = strings.ReplaceAll(s, t, "")
	}
	s = strings.NewReplacer("、", " ", ",", " ", "/", " ", "／", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// removeFold deletes every case-insensitive occurrence of sub from s.
func removeFold(s, sub string) string {
	lower := strings.ToLower(s)
	lowerSub := strings.ToLower(sub)
	for {
		i := strings.Index(lower, lowerSub)
		if i < 0 {
			return s
		}
		s = s[:i] + s[i+len(sub):]
		lower = lower[:i] + lower[i+len(sub):]
	}
}

func (r *Reconciler) reconcileToken(ctx context.Context, humID, tok string, idCtx IDContext) ([]string, error) {
	// a. per-context override, falling back to the global table.
	tok = r.contextOverride(tok, idCtx)

	// b. JGAD tokens that are really mistyped studies.
	if sub, ok := r.tables.JgadTypoToJgas[tok]; ok {
		tok = sub
	}

	// c. research-scoped aliases.
	if perHum, ok := r.tables.PerHum[humID]; ok {
		if sub, ok := perHum[tok]; ok {
			tok = sub
		}
	}

	// d. JGAX and legacy JGA forms.
	if sub, ok := r.tables.FormatToJgas[tok]; ok {
		tok = sub
	}

	// e. inclusive JGAD range enumeration.
	enumerated := ExpandJgadRange(tok)

	// f. study → dataset expansion.
	var out []string
	for _, id := range enumerated {
		if !dataset.IsStudyID(id) {
			out = append(out, id)
			continue
		}
		if r.invalidJGAS[id] {
			continue
		}
		if !reJgasExact.MatchString(id) {
			r.logger.Warn("dropping malformed study accession", logging.String("id", id), logging.String("humId", humID))
			continue
		}
		jgads, err := r.expandStudy(ctx, humID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, jgads...)
	}
	return out, nil
}

func (r *Reconciler) contextOverride(tok string, idCtx IDContext) string {
	var table map[string]string
	switch idCtx {
	case CtxPublication:
		table = r.tables.Publication
	case CtxControlledAccess:
		table = r.tables.ControlledAccess
	}
	if sub, ok := table[tok]; ok {
		return sub
	}
	if sub, ok := r.tables.Global[tok]; ok {
		return sub
	}
	return tok
}

// expandStudy resolves a JGAS accession through the relation port and unions
// the per-research additional-JGAD table.  An expansion that resolves to
// nothing drops the study with a warning.
func (r *Reconciler) expandStudy(ctx context.Context, humID, jgasID string) ([]string, error) {
	jgads, err := r.port.DatasetsFromStudy(ctx, jgasID)
	if err != nil {
		return nil, err
	}
	if add, ok := r.tables.AdditionalJgadByHum[humID]; ok {
		jgads = append(jgads, add[jgasID]...)
	}
	if len(jgads) == 0 {
		r.logger.Warn("study expanded to no datasets, dropping",
			logging.String("jgasId", jgasID), logging.String("humId", humID))
	}
	return jgads, nil
}

func (r *Reconciler) ignored(humID, id string) bool {
	for _, ig := range r.tables.IgnoreJgadByHum[humID] {
		if ig == id {
			return true
		}
	}
	return false
}

// ExpandJgadRange enumerates "JGAD######-JGAD######" inclusively, preserving
// the digit width of the lower bound.  Non-range tokens and malformed ranges
// (upper < lower) pass through as a single token.
func ExpandJgadRange(tok string) []string {
	m := reJgadRange.FindStringSubmatch(tok)
	if m == nil {
		return []string{tok}
	}
	lo, err1 := strconv.Atoi(m[1])
	hi, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || hi < lo {
		return []string{tok}
	}
	width := len(m[1])
	out := make([]string, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, fmt.Sprintf("JGAD%0*d", width, n))
	}
	return out
}
