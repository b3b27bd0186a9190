package structurer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

func newStructurer(overrides *mapping.DatasetOverrides) *Structurer {
	if overrides == nil {
		overrides = &mapping.DatasetOverrides{}
	}
	return New(overrides, logging.NewNopLogger())
}

func strptr(s string) *string { return &s }

// rec builds a minimal normalized record with one summary dataset and one
// molecular-data row.
func rec(humVersionID, lang, datasetID, platform string) *record.Record {
	return &record.Record{
		HumID:        humVersionID[:7],
		HumVersionID: humVersionID,
		Lang:         lang,
		Title:        "T2D study (" + lang + ")",
		Summary: record.Summary{
			Datasets: []record.SummaryDataset{{
				RawID:       datasetID,
				IDs:         []string{datasetID},
				Criteria:    []string{"Controlled-access (Type I)"},
				ReleaseDate: strptr("2020-01-05"),
				TypeOfData:  strptr("WGS"),
			}},
		},
		MolecularData: []record.MolData{{
			ID: datasetID + " NGS",
			Data: map[string][]record.TextValue{
				"platform": {{Text: platform}},
			},
			ExtractedDatasetIDs: []string{datasetID},
		}},
		Releases: []record.Release{
			{Version: 1, Date: strptr("2020-01-05")},
			{Version: 2, Date: strptr("2021-06-01")},
		},
	}
}

func withVersion(r *record.Record, v int) *record.Record {
	r.Version = v
	return r
}

func TestBuildEmitsBilingualDataset(t *testing.T) {
	out, err := newStructurer(nil).Build("hum0001", []VersionInput{{
		Version:      1,
		HumVersionID: "hum0001-v1",
		Ja:           withVersion(rec("hum0001-v1", "ja", "JGAD000001", "Illumina NovaSeq 6000"), 1),
		En:           withVersion(rec("hum0001-v1", "en", "JGAD000001", "Illumina NovaSeq 6000"), 1),
	}})
	require.NoError(t, err)

	require.Len(t, out.Datasets, 1)
	ds := out.Datasets[0]
	assert.Equal(t, "JGAD000001", ds.DatasetID)
	assert.Equal(t, "v1", ds.Version)
	assert.Equal(t, "hum0001", ds.HumID)
	assert.Equal(t, "2020-01-05", *ds.ReleaseDate)
	assert.Equal(t, "WGS", *ds.TypeOfData.Ja)
	assert.Equal(t, "WGS", *ds.TypeOfData.En)
	require.Len(t, ds.Criteria, 1)
	assert.Equal(t, "Controlled-access (Type I)", string(ds.Criteria[0]))

	require.Len(t, ds.Experiments, 1)
	exp := ds.Experiments[0]
	assert.Equal(t, "JGAD000001 NGS", exp.Header.Ja.Text)
	assert.Equal(t, "JGAD000001 NGS", exp.Header.En.Text)
	require.NotNil(t, exp.Searchable)
	assert.Equal(t, "Illumina", *exp.Searchable.PlatformVendor)
	assert.Equal(t, "NovaSeq 6000", *exp.Searchable.PlatformModel)

	require.Len(t, out.Versions, 1)
	assert.Equal(t, []string{"hum0001-v1"}, out.Research.VersionIDs)
	assert.Equal(t, 1, out.Research.LatestVersion)
	assert.Equal(t, "T2D study (ja)", *out.Research.Title.Ja)
	assert.Equal(t, "T2D study (en)", *out.Research.Title.En)
}

func TestVersionReuseAcrossHumVersions(t *testing.T) {
	v1 := VersionInput{
		Version:      1,
		HumVersionID: "hum0001-v1",
		Ja:           withVersion(rec("hum0001-v1", "ja", "JGAD000001", "Illumina HiSeq 2500"), 1),
		En:           withVersion(rec("hum0001-v1", "en", "JGAD000001", "Illumina HiSeq 2500"), 1),
	}
	v2same := VersionInput{
		Version:      2,
		HumVersionID: "hum0001-v2",
		Ja:           withVersion(rec("hum0001-v2", "ja", "JGAD000001", "Illumina HiSeq 2500"), 2),
		En:           withVersion(rec("hum0001-v2", "en", "JGAD000001", "Illumina HiSeq 2500"), 2),
	}

	out, err := newStructurer(nil).Build("hum0001", []VersionInput{v1, v2same})
	require.NoError(t, err)
	require.Len(t, out.Datasets, 2)
	assert.Equal(t, "v1", out.Datasets[0].Version)
	assert.Equal(t, 1, out.Datasets[0].VersionNumber)
	assert.Equal(t, "v1", out.Datasets[1].Version, "identical content in both languages shares the version")
	assert.Equal(t, 1, out.Datasets[1].VersionNumber)

	// Changing one field in en only forces a new version.
	v2changed := VersionInput{
		Version:      2,
		HumVersionID: "hum0001-v2",
		Ja:           withVersion(rec("hum0001-v2", "ja", "JGAD000001", "Illumina HiSeq 2500"), 2),
		En:           withVersion(rec("hum0001-v2", "en", "JGAD000001", "Illumina NovaSeq 6000"), 2),
	}
	out, err = newStructurer(nil).Build("hum0001", []VersionInput{v1, v2changed})
	require.NoError(t, err)
	assert.Equal(t, "v1", out.Datasets[0].Version)
	assert.Equal(t, "v2", out.Datasets[1].Version, "a single-language change produces a new version")
	assert.Equal(t, 2, out.Datasets[1].VersionNumber)
}

func TestVersionOrdinalPastNine(t *testing.T) {
	h := newVersionHistory()
	var v string
	var n int
	for i := 1; i <= 11; i++ {
		v, n = h.Assign("JGAD000001", fmt.Sprintf("content-%d", i))
	}
	assert.Equal(t, "v11", v)
	assert.Equal(t, 11, n, "the ordinal keeps counting where the display form stops sorting")

	v, n = h.Assign("JGAD000001", "content-10")
	assert.Equal(t, "v10", v)
	assert.Equal(t, 10, n, "reused content returns its original ordinal")
}

func TestDottedPrefixInheritance(t *testing.T) {
	ja := &record.Record{
		HumID: "hum0014", HumVersionID: "hum0014-v3", Version: 3, Lang: "ja",
		Summary: record.Summary{Datasets: []record.SummaryDataset{{
			RawID:       "hum0014.v3.T2DM-1",
			IDs:         []string{"hum0014.v3.T2DM-1"},
			Criteria:    []string{"Unrestricted-access"},
			ReleaseDate: strptr("2019-04-01"),
		}}},
		MolecularData: []record.MolData{{
			ID:                  "hum0014.v3.T2DM-1.v1 GWAS",
			Data:                map[string][]record.TextValue{"platform": {{Text: "Illumina OmniExpress"}}},
			ExtractedDatasetIDs: []string{"hum0014.v3.T2DM-1.v1"},
		}},
	}

	out, err := newStructurer(nil).Build("hum0014", []VersionInput{{Version: 3, HumVersionID: "hum0014-v3", Ja: ja}})
	require.NoError(t, err)

	byID := map[string]bool{}
	for _, ds := range out.Datasets {
		byID[ds.DatasetID] = true
		if ds.DatasetID == "hum0014.v3.T2DM-1.v1" {
			require.NotNil(t, ds.ReleaseDate)
			assert.Equal(t, "2019-04-01", *ds.ReleaseDate, "child inherits from the dotted-prefix ancestor")
			assert.Equal(t, "Unrestricted-access", string(ds.Criteria[0]))
		}
	}
	assert.True(t, byID["hum0014.v3.T2DM-1"])
	assert.True(t, byID["hum0014.v3.T2DM-1.v1"])
}

func TestOverrideSupersedesInheritance(t *testing.T) {
	overrides := &mapping.DatasetOverrides{Overrides: []mapping.DatasetOverride{{
		HumID:       "hum0001",
		DatasetID:   "JGAD000001",
		Criteria:    []string{"Controlled-access (Type II)"},
		ReleaseDate: strptr("2022-12-01"),
	}}}

	out, err := newStructurer(overrides).Build("hum0001", []VersionInput{{
		Version:      1,
		HumVersionID: "hum0001-v1",
		Ja:           withVersion(rec("hum0001-v1", "ja", "JGAD000001", "x"), 1),
	}})
	require.NoError(t, err)

	ds := out.Datasets[0]
	assert.Equal(t, "2022-12-01", *ds.ReleaseDate)
	assert.Equal(t, "Controlled-access (Type II)", string(ds.Criteria[0]))
}

func TestFallbackHeaderMatch(t *testing.T) {
	// Summary names a dataset that no row's extracted IDs mention; the row
	// header carries a dotted descendant of it.
	ja := &record.Record{
		HumID: "hum0002", HumVersionID: "hum0002-v1", Version: 1, Lang: "ja",
		Summary: record.Summary{Datasets: []record.SummaryDataset{{
			RawID: "hum0002.v1.CC", IDs: []string{"hum0002.v1.CC"},
		}}},
		MolecularData: []record.MolData{{
			ID:                  "hum0002.v1.CC.v1 methylation",
			Data:                map[string][]record.TextValue{"assayType": {{Text: "Methylation array"}}},
			ExtractedDatasetIDs: []string{"hum0002.v1.CC.v1"},
		}},
	}

	out, err := newStructurer(nil).Build("hum0002", []VersionInput{{Version: 1, HumVersionID: "hum0002-v1", Ja: ja}})
	require.NoError(t, err)

	var found bool
	for _, ds := range out.Datasets {
		if ds.DatasetID == "hum0002.v1.CC" {
			found = true
			require.Len(t, ds.Experiments, 1, "fallback matches the dotted descendant's row")
		}
	}
	assert.True(t, found)
}

func TestPublicationIDsRewrittenToOwningDatasets(t *testing.T) {
	ja := rec("hum0001-v1", "ja", "JGAD000001", "x")
	ja.Version = 1
	// The experiment row also carries a raw token that the publication cites.
	ja.MolecularData[0].ExtractedDatasetIDs = []string{"JGAD000001", "hum0001.v1.raw"}
	ja.Publications = []record.Publication{{
		Title:      "A study",
		DatasetIDs: []string{"hum0001.v1.raw", "DRA000777"},
	}}

	out, err := newStructurer(nil).Build("hum0001", []VersionInput{{Version: 1, HumVersionID: "hum0001-v1", Ja: ja}})
	require.NoError(t, err)

	require.Len(t, out.Research.RelatedPublications, 1)
	assert.Equal(t, []string{"JGAD000001", "hum0001.v1.raw", "DRA000777"},
		out.Research.RelatedPublications[0].DatasetIDs,
		"cited tokens map to owning datasets; unknown tokens pass through")
}

func TestNoStudyAccessionSurvives(t *testing.T) {
	ja := rec("hum0001-v1", "ja", "JGAD000001", "x")
	ja.Version = 1
	ja.Summary.Datasets = append(ja.Summary.Datasets, record.SummaryDataset{
		RawID: "JGAS000114", IDs: []string{"JGAS000114"},
	})

	out, err := newStructurer(nil).Build("hum0001", []VersionInput{{Version: 1, HumVersionID: "hum0001-v1", Ja: ja}})
	require.NoError(t, err)
	for _, ds := range out.Datasets {
		assert.NotRegexp(t, `^JGAS\d+$`, ds.DatasetID)
	}
}

func TestUnevenListPairingByIdentity(t *testing.T) {
	ja := rec("hum0001-v1", "ja", "JGAD000001", "x")
	ja.Version = 1
	ja.Publications = []record.Publication{
		{Title: "日本語のみの論文"},
		{Title: "共通論文", DOI: strptr("10.1000/shared")},
	}
	en := rec("hum0001-v1", "en", "JGAD000001", "x")
	en.Version = 1
	en.Publications = []record.Publication{
		{Title: "Shared paper", DOI: strptr("10.1000/shared")},
	}

	out, err := newStructurer(nil).Build("hum0001", []VersionInput{{Version: 1, HumVersionID: "hum0001-v1", Ja: ja, En: en}})
	require.NoError(t, err)

	pubs := out.Research.RelatedPublications
	require.Len(t, pubs, 2)
	assert.Nil(t, pubs[0].Title.En, "unmatched entry stays ja-only")
	assert.Equal(t, "共通論文", *pubs[1].Title.Ja)
	assert.Equal(t, "Shared paper", *pubs[1].Title.En, "DOI pairs entries when lengths differ")
}

func TestReleaseDateAggregation(t *testing.T) {
	v1 := VersionInput{
		Version: 1, HumVersionID: "hum0001-v1",
		Ja: withVersion(rec("hum0001-v1", "ja", "JGAD000001", "a"), 1),
	}
	v2 := VersionInput{
		Version: 2, HumVersionID: "hum0001-v2",
		Ja: withVersion(rec("hum0001-v2", "ja", "JGAD000001", "b"), 2),
	}

	out, err := newStructurer(nil).Build("hum0001", []VersionInput{v2, v1})
	require.NoError(t, err)

	assert.Equal(t, "2020-01-05", *out.Research.FirstReleaseDate)
	assert.Equal(t, "2021-06-01", *out.Research.LastReleaseDate)
	assert.Equal(t, []string{"hum0001-v1", "hum0001-v2"}, out.Research.VersionIDs, "versions sort ascending before processing")
	require.Len(t, out.Versions, 2)
	assert.Equal(t, "2020-01-05", *out.Versions[0].VersionReleaseDate)
	assert.Equal(t, "2021-06-01", *out.Versions[1].VersionReleaseDate)
}
