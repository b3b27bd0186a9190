package structurer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// summaryMeta is the per-language dataset metadata carried by a summary row.
type summaryMeta struct {
	Criteria    []string
	ReleaseDate *string
	TypeOfData  *string
}

// langSide bundles one language's view of a version: summary metadata per
// datasetId and molecular-data rows per datasetId.
type langSide struct {
	meta    map[string]summaryMeta
	rows    map[string][]record.MolData
	rowList []record.MolData
	present bool
}

func buildLangSide(rec *record.Record) langSide {
	side := langSide{meta: map[string]summaryMeta{}, rows: map[string][]record.MolData{}}
	if rec == nil {
		return side
	}
	side.present = true
	for _, sd := range rec.Summary.Datasets {
		for _, id := range sd.IDs {
			if _, ok := side.meta[id]; ok {
				continue
			}
			side.meta[id] = summaryMeta{
				Criteria:    sd.Criteria,
				ReleaseDate: sd.ReleaseDate,
				TypeOfData:  sd.TypeOfData,
			}
		}
	}
	side.rowList = rec.MolecularData
	for _, md := range rec.MolecularData {
		for _, id := range md.ExtractedDatasetIDs {
			side.rows[id] = append(side.rows[id], md)
		}
	}
	return side
}

// orderedIDs lists every datasetId of a version: summary order first, then
// molecular-data discovery order.
func orderedIDs(ja, en langSide) []string {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	// Summary ids, ja then en.
	for _, side := range []langSide{ja, en} {
		ids := make([]string, 0, len(side.meta))
		for id := range side.meta {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			add(id)
		}
	}
	// Molecular-data ids in row order.
	for _, side := range []langSide{ja, en} {
		for _, md := range side.rowList {
			for _, id := range md.ExtractedDatasetIDs {
				add(id)
			}
		}
	}
	return out
}

// findMatchingMolData is the fallback for summary datasetIds that no row's
// extracted-ID set names.  A row matches when its header token set contains
// the full id, or when the id is a dotted prefix of a header token and no
// other summary id shares that prefix relationship.  Two or more candidate
// rows make the match ambiguous and the fallback is rejected.
func findMatchingMolData(id string, side langSide, summaryIDs map[string]summaryMeta, logger logging.Logger) []record.MolData {
	var direct []record.MolData
	var prefixed []record.MolData

	for _, md := range side.rowList {
		tokens := strings.Fields(md.ID)
		for _, tok := range tokens {
			if tok == id {
				direct = append(direct, md)
				break
			}
			if strings.HasPrefix(tok, id+".") {
				// Reject when another summary id also prefixes this token.
				exclusive := true
				for other := range summaryIDs {
					if other != id && (strings.HasPrefix(tok, other+".") || tok == other) {
						exclusive = false
						break
					}
				}
				if exclusive {
					prefixed = append(prefixed, md)
				}
				break
			}
		}
	}

	if len(direct) > 0 {
		return direct
	}
	switch len(prefixed) {
	case 0:
		return nil
	case 1:
		return prefixed
	default:
		logger.Warn("ambiguous molecular-data fallback match rejected", logging.String("datasetId", id))
		return nil
	}
}

// inheritMeta resolves metadata for a child id by dotted-prefix ancestry:
// the nearest (longest) id with summary metadata that is a dotted prefix of
// child wins.  An explicit override's inheritFrom supersedes prefix search.
func inheritMeta(child string, meta map[string]summaryMeta, override *mapping.DatasetOverride) (summaryMeta, bool) {
	if m, ok := meta[child]; ok {
		return m, true
	}
	if override != nil && override.InheritFrom != "" {
		if m, ok := meta[override.InheritFrom]; ok {
			return m, true
		}
	}
	best := ""
	for ancestor := range meta {
		if strings.HasPrefix(child, ancestor+".") && len(ancestor) > len(best) {
			best = ancestor
		}
	}
	if best == "" {
		return summaryMeta{}, false
	}
	return meta[best], true
}

// ─────────────────────────────────────────────────────────────────────────────
// Version history
// ─────────────────────────────────────────────────────────────────────────────

// emission is one previously assigned (version, content) pair of a datasetId.
type emission struct {
	Version string
	Ordinal int
	Key     string
}

// versionHistory assigns stable dataset versions across humVersionIds:
// identical (ja, en) experiment content reuses the earlier version, new
// content gets the next integer.
type versionHistory struct {
	byID map[string][]emission
}

func newVersionHistory() *versionHistory {
	return &versionHistory{byID: map[string][]emission{}}
}

// contentKey canonicalizes the per-language experiment lists.  Map keys
// serialize sorted under encoding/json, so equal content yields equal keys.
func contentKey(jaRows, enRows []record.MolData) (string, error) {
	payload := struct {
		Ja []record.MolData `json:"ja"`
		En []record.MolData `json:"en"`
	}{Ja: jaRows, En: enRows}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStructure, "failed to canonicalize experiment content")
	}
	return string(b), nil
}

// Assign returns the version and its ordinal for (datasetID, content),
// reusing an earlier version on exact match.
func (h *versionHistory) Assign(datasetID, key string) (string, int) {
	for _, e := range h.byID[datasetID] {
		if e.Key == key {
			return e.Version, e.Ordinal
		}
	}
	n := len(h.byID[datasetID]) + 1
	v := fmt.Sprintf("v%d", n)
	h.byID[datasetID] = append(h.byID[datasetID], emission{Version: v, Ordinal: n, Key: key})
	return v, n
}

// ─────────────────────────────────────────────────────────────────────────────
// Experiment merge
// ─────────────────────────────────────────────────────────────────────────────

// mergeExperiments pairs the ja and en row lists positionally (the portal
// renders both languages from one underlying table) and projects each pair
// into a bilingual Experiment.
func mergeExperiments(jaRows, enRows []record.MolData) []dataset.Experiment {
	n := len(jaRows)
	if len(enRows) > n {
		n = len(enRows)
	}
	out := make([]dataset.Experiment, 0, n)
	for i := 0; i < n; i++ {
		var jr, er *record.MolData
		if i < len(jaRows) {
			jr = &jaRows[i]
		}
		if i < len(enRows) {
			er = &enRows[i]
		}
		out = append(out, mergeExperiment(jr, er))
	}
	return out
}

func mergeExperiment(ja, en *record.MolData) dataset.Experiment {
	exp := dataset.Experiment{
		Data: map[string]bilingual.TextValue{},
	}

	var jaHeader, enHeader *record.TextValue
	if ja != nil {
		jaHeader = &record.TextValue{Text: ja.ID}
		exp.Footers.Ja = ja.Footers
	}
	if en != nil {
		enHeader = &record.TextValue{Text: en.ID}
		exp.Footers.En = en.Footers
	}
	exp.Header = mergeTextValue(jaHeader, enHeader)

	for _, field := range unionFields(ja, en) {
		var jv, ev *record.TextValue
		if ja != nil {
			if vs := ja.Data[field]; len(vs) > 0 {
				jv = &vs[0]
			}
		}
		if en != nil {
			if vs := en.Data[field]; len(vs) > 0 {
				ev = &vs[0]
			}
		}
		exp.Data[field] = mergeTextValue(jv, ev)
	}

	exp.Searchable = buildSearchable(exp.Data)
	return exp
}

func unionFields(ja, en *record.MolData) []string {
	seen := map[string]bool{}
	var out []string
	for _, md := range []*record.MolData{ja, en} {
		if md == nil {
			continue
		}
		fields := make([]string, 0, len(md.Data))
		for f := range md.Data {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
