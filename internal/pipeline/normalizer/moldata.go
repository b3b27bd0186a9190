package normalizer

import (
	"context"
	"regexp"
	"sort"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

// reAccession finds dataset/study accession tokens embedded in free text
// (row headers, ID-bearing cells).  Ranges and dotted portal-local IDs are
// captured whole so the reconciler can expand them.
var reAccession = regexp.MustCompile(`(?:JGAD\d+-JGAD\d+|JGAD\d+|JGAS\d+|JGAX\d+|JGA\d+|DRA\d+|E-GEAD\d+|GEA\d+|BP\d+|METABO[A-Z0-9]+|hum\d{4}[.\w-]*)`)

// MolDataNormalizer canonicalizes molecular-data row maps: key rewriting
// through the field table (renames, split keys, discard sentinel), value
// text normalization, and dataset-ID harvesting for the structurer's
// inversion.
type MolDataNormalizer struct {
	table      *mapping.MolDataFieldMapping
	keys       map[string][]string
	idFields   map[string]bool
	reconciler *Reconciler
	logger     logging.Logger
}

// NewMolDataNormalizer folds the table's raw-label keys on construction.
func NewMolDataNormalizer(table *mapping.MolDataFieldMapping, reconciler *Reconciler, logger logging.Logger) *MolDataNormalizer {
	keys := make(map[string][]string, len(table.Keys))
	for raw, canonicals := range table.Keys {
		keys[fold(raw)] = canonicals
	}
	return &MolDataNormalizer{
		table:      table,
		keys:       keys,
		idFields:   table.IDFieldSet(),
		reconciler: reconciler,
		logger:     logger.Named("normalizer.moldata"),
	}
}

// Normalize rewrites one molecular-data row group in place and returns it.
func (n *MolDataNormalizer) Normalize(ctx context.Context, humID string, md record.MolData, lang bilingual.Lang) (record.MolData, error) {
	out := record.MolData{
		ID:      NormalizeText(md.ID, lang),
		Data:    map[string][]record.TextValue{},
		Footers: md.Footers,
	}

	// Sorted key order keeps warnings and merge results deterministic.
	rawKeys := make([]string, 0, len(md.Data))
	for k := range md.Data {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	for _, rawKey := range rawKeys {
		values := normalizeValues(md.Data[rawKey], lang)
		canonicals, known := n.keys[fold(rawKey)]
		if !known {
			n.logger.Warn("unknown molecular-data key preserved",
				logging.String("key", rawKey), logging.String("humId", humID))
			out.Data[rawKey] = append(out.Data[rawKey], values...)
			continue
		}
		for _, canonical := range canonicals {
			if canonical == mapping.DiscardKey {
				continue
			}
			// Split keys duplicate the row; repeated hits on one canonical
			// field merge by concatenation.
			out.Data[canonical] = append(out.Data[canonical], values...)
		}
	}

	ids, err := n.harvestIDs(ctx, humID, out)
	if err != nil {
		return record.MolData{}, err
	}
	out.ExtractedDatasetIDs = ids
	return out, nil
}

func normalizeValues(values []record.TextValue, lang bilingual.Lang) []record.TextValue {
	out := make([]record.TextValue, 0, len(values))
	for _, v := range values {
		out = append(out, record.TextValue{
			Text:    NormalizeText(v.Text, lang),
			RawHTML: v.RawHTML,
		})
	}
	return out
}

// harvestIDs reconciles every accession token found in the row header and in
// the ID-bearing canonical fields.
func (n *MolDataNormalizer) harvestIDs(ctx context.Context, humID string, md record.MolData) ([]string, error) {
	var texts []string
	texts = append(texts, md.ID)

	fields := make([]string, 0, len(md.Data))
	for f := range md.Data {
		if n.idFields[f] {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, v := range md.Data[f] {
			texts = append(texts, v.Text)
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, text := range texts {
		for _, tok := range reAccession.FindAllString(text, -1) {
			ids, err := n.reconciler.Reconcile(ctx, humID, tok, CtxGeneral)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out, nil
}
