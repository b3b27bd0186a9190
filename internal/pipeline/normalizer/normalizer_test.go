package normalizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/relation"
)

func TestNormalizeRecord(t *testing.T) {
	tables := &mapping.Tables{}
	port := relation.Static{"JGAS000114": {"JGAD000220"}}
	n := New(tables, port, "https://portal.example", "https://portal.example/en", logging.NewNopLogger())

	comingSoon := "Coming soon"
	date := "2020/1/5"
	rec := &record.Record{
		HumID:        "hum0001",
		HumVersionID: "hum0001-v1",
		Version:      1,
		Lang:         "ja",
		Title:        "2型糖尿病（T2D）研究",
		URL:          "/hum0001-v1",
		Summary: record.Summary{
			Aims: &record.TextValue{Text: "目的：解析"},
			URL:  "/study/hum0001",
			Datasets: []record.SummaryDataset{
				{RawID: "JGAS000114", Criteria: []string{"制限公開(TypeI)"}, ReleaseDate: &date},
				{RawID: "JGAD000001", ReleaseDate: &comingSoon},
			},
		},
		Releases: []record.Release{
			{Version: 1, Date: &date, Note: record.TextValue{Text: "初版"}},
		},
	}

	out, err := n.Normalize(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, "2型糖尿病 (T2D)研究", out.Title)
	assert.Equal(t, "https://portal.example/hum0001-v1", out.URL)
	assert.Equal(t, "目的: 解析", out.Summary.Aims.Text)
	assert.Equal(t, "https://portal.example/study/hum0001", out.Summary.URL)

	require.Len(t, out.Summary.Datasets, 2)
	assert.Equal(t, []string{"JGAD000220"}, out.Summary.Datasets[0].IDs, "study expands to its datasets")
	assert.Equal(t, []string{"Controlled-access (Type I)"}, out.Summary.Datasets[0].Criteria)
	assert.Equal(t, "2020-01-05", *out.Summary.Datasets[0].ReleaseDate)
	assert.Nil(t, out.Summary.Datasets[1].ReleaseDate, "coming-soon sentinel becomes null")

	require.Len(t, out.Releases, 1)
	assert.Equal(t, "2020-01-05", *out.Releases[0].Date)

	// Source record is not mutated.
	assert.Equal(t, "2型糖尿病（T2D）研究", rec.Title)
	assert.Empty(t, rec.Summary.Datasets[0].IDs)
}
