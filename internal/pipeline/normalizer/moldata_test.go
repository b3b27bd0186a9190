package normalizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/relation"
)

func newMolDataNormalizer(table *mapping.MolDataFieldMapping, port relation.Port) *MolDataNormalizer {
	if table == nil {
		table = &mapping.MolDataFieldMapping{}
	}
	rec := newReconciler(&mapping.DatasetIDMapping{}, port)
	return NewMolDataNormalizer(table, rec, logging.NewNopLogger())
}

func tv(text string) record.TextValue { return record.TextValue{Text: text} }

func TestMolDataKeyRewrite(t *testing.T) {
	n := newMolDataNormalizer(&mapping.MolDataFieldMapping{
		Keys: map[string][]string{
			"Platform":      {"platform"},
			"プラットフォーム":     {"platform"},
			"Sample/Tissue": {"sample", "tissue"},
			"Internal note": {mapping.DiscardKey},
		},
	}, nil)

	md := record.MolData{
		ID: "JGAD000001 NGS",
		Data: map[string][]record.TextValue{
			"Platform":      {tv("Illumina HiSeq 2500")},
			"プラットフォーム":     {tv("Illumina NovaSeq 6000")},
			"Sample/Tissue": {tv("blood")},
			"Internal note": {tv("drop me")},
			"Novel field":   {tv("kept as-is")},
		},
	}

	out, err := n.Normalize(context.Background(), "hum0001", md, bilingual.Ja)
	require.NoError(t, err)

	require.Len(t, out.Data["platform"], 2, "ja and en labels merge into one canonical field")
	assert.Equal(t, []record.TextValue{tv("blood")}, out.Data["sample"], "split key duplicates the row")
	assert.Equal(t, []record.TextValue{tv("blood")}, out.Data["tissue"])
	assert.NotContains(t, out.Data, "Internal note", "discard sentinel removes the row")
	assert.Contains(t, out.Data, "Novel field", "unknown keys are preserved")
}

func TestMolDataKeyMergeIsDeterministic(t *testing.T) {
	table := &mapping.MolDataFieldMapping{Keys: map[string][]string{
		"a-label": {"merged"},
		"b-label": {"merged"},
	}}
	md := record.MolData{
		ID: "x",
		Data: map[string][]record.TextValue{
			"b-label": {tv("second")},
			"a-label": {tv("first")},
		},
	}
	for i := 0; i < 10; i++ {
		out, err := newMolDataNormalizer(table, nil).Normalize(context.Background(), "hum0001", md, bilingual.En)
		require.NoError(t, err)
		assert.Equal(t, []record.TextValue{tv("first"), tv("second")}, out.Data["merged"],
			"concatenation follows sorted source-key order")
	}
}

func TestMolDataHarvestsIDs(t *testing.T) {
	n := newMolDataNormalizer(&mapping.MolDataFieldMapping{
		Keys:     map[string][]string{"Dataset ID": {"datasetId"}},
		IDFields: []string{"datasetId"},
	}, relation.Static{"JGAS000114": {"JGAD000220"}})

	md := record.MolData{
		ID: "JGAS000114 whole-genome sequencing",
		Data: map[string][]record.TextValue{
			"Dataset ID": {tv("JGAD000106-JGAD000108")},
			"Platform":   {tv("JGAD999999 mentioned in a non-ID field")},
		},
	}

	out, err := n.Normalize(context.Background(), "hum0014", md, bilingual.En)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"JGAD000220", "JGAD000106", "JGAD000107", "JGAD000108"},
		out.ExtractedDatasetIDs,
		"header study expands; ID field range enumerates; non-ID fields are not harvested")
}
