package icd10

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

func testTables() *Tables {
	return &Tables{
		Labels: map[string]string{
			"E11": "Type 2 diabetes mellitus",
			"E66": "Obesity",
		},
		Splits: map[string]map[string][]string{
			"hum0001": {"diabetes and obesity": {"E11", "E66"}},
		},
	}
}

func dsWith(humID string, diseases ...dataset.Disease) *dataset.Dataset {
	return &dataset.Dataset{
		DatasetID: "JGAD000001",
		HumID:     humID,
		Experiments: []dataset.Experiment{{
			Searchable: &dataset.Searchable{Diseases: diseases},
		}},
	}
}

func TestApplyAttachesCodes(t *testing.T) {
	n := New(testTables(), logging.NewNopLogger())

	ds := dsWith("hum0002", dataset.Disease{Label: "type 2 Diabetes  Mellitus"})
	n.Apply(ds)

	got := ds.Experiments[0].Searchable.Diseases
	require.Len(t, got, 1)
	assert.Equal(t, "Type 2 diabetes mellitus", got[0].Label, "label is rewritten to the master spelling")
	require.NotNil(t, got[0].ICD10)
	assert.Equal(t, "E11", *got[0].ICD10)
}

func TestApplySplitsCompoundLabels(t *testing.T) {
	n := New(testTables(), logging.NewNopLogger())

	ds := dsWith("hum0001", dataset.Disease{Label: "diabetes and obesity"})
	n.Apply(ds)

	got := ds.Experiments[0].Searchable.Diseases
	require.Len(t, got, 2)
	assert.Equal(t, "Type 2 diabetes mellitus", got[0].Label)
	assert.Equal(t, "E11", *got[0].ICD10)
	assert.Equal(t, "Obesity", got[1].Label)
	assert.Equal(t, "E66", *got[1].ICD10)
}

func TestDuplicateLabelResolvesToLowestCode(t *testing.T) {
	tables := &Tables{Labels: map[string]string{
		"C18": "Malignant neoplasm of colon",
		"C19": "Malignant neoplasm of colon",
	}}

	// Map iteration order varies between runs; the reverse index must not.
	for i := 0; i < 20; i++ {
		n := New(tables, logging.NewNopLogger())
		ds := dsWith("hum0003", dataset.Disease{Label: "malignant neoplasm of colon"})
		n.Apply(ds)

		got := ds.Experiments[0].Searchable.Diseases
		require.Len(t, got, 1)
		require.NotNil(t, got[0].ICD10)
		assert.Equal(t, "C18", *got[0].ICD10)
	}
}

func TestApplyLeavesUnknownLabels(t *testing.T) {
	n := New(testTables(), logging.NewNopLogger())

	ds := dsWith("hum0002", dataset.Disease{Label: "unknown syndrome"})
	n.Apply(ds)

	got := ds.Experiments[0].Searchable.Diseases
	require.Len(t, got, 1)
	assert.Equal(t, "unknown syndrome", got[0].Label)
	assert.Nil(t, got[0].ICD10)
}

func TestApplyIdempotent(t *testing.T) {
	n := New(testTables(), logging.NewNopLogger())

	ds := dsWith("hum0001", dataset.Disease{Label: "diabetes and obesity"})
	n.Apply(ds)
	first := append([]dataset.Disease(nil), ds.Experiments[0].Searchable.Diseases...)
	n.Apply(ds)
	assert.Equal(t, first, ds.Experiments[0].Searchable.Diseases)
}

func TestCheck(t *testing.T) {
	n := New(testTables(), logging.NewNopLogger())

	e11 := "E11"
	bogus := "Z99"
	ds := dsWith("hum0002",
		dataset.Disease{Label: "Type 2 diabetes mellitus", ICD10: &e11},
		dataset.Disease{Label: "no code"},
		dataset.Disease{Label: "wrong label", ICD10: &e11},
		dataset.Disease{Label: "Obesity", ICD10: &bogus},
	)

	violations := n.Check(ds)
	require.Len(t, violations, 3)
	assert.Equal(t, "missing icd10 code", violations[0].Reason)
	assert.Contains(t, violations[1].Reason, "differs from master label")
	assert.Contains(t, violations[2].Reason, "unknown icd10 code")
}
