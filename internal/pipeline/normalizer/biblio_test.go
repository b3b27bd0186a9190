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

func newBiblio(m *mapping.NormalizeMapping, port relation.Port) *BiblioNormalizer {
	if m == nil {
		m = &mapping.NormalizeMapping{}
	}
	return NewBiblioNormalizer(m, newReconciler(&mapping.DatasetIDMapping{}, port), logging.NewNopLogger())
}

func strptr(s string) *string { return &s }

func TestPublicationsInSubmissionDropped(t *testing.T) {
	n := newBiblio(&mapping.NormalizeMapping{
		PublicationInSubmission: []string{"In submission"},
		DOIDeny:                 []string{"10.0000/deny"},
	}, relation.Static{"JGAS000114": {"JGAD000220", "JGAD000410"}})

	pubs := []record.Publication{
		{Title: "In submission", RawDatasetIDs: "JGAD000001"},
		{Title: "A GWAS of T2D", DOI: strptr("10.0000/deny"), RawDatasetIDs: "JGAS000114 / hum0014.v6.158k.v1"},
		{Title: "Another study", DOI: strptr("10.1000/xyz"), RawDatasetIDs: ""},
	}

	out, err := n.Publications(context.Background(), "hum0014", pubs, bilingual.En)
	require.NoError(t, err)
	require.Len(t, out, 2, "in-submission titles are dropped")

	assert.Nil(t, out[0].DOI, "denied DOI becomes null")
	assert.Equal(t, []string{"JGAD000220", "JGAD000410", "hum0014.v6.158k.v1"}, out[0].DatasetIDs)
	for _, id := range out[0].DatasetIDs {
		assert.NotRegexp(t, `^JGAS\d+$`, id)
	}

	assert.Equal(t, "10.1000/xyz", *out[1].DOI)
	assert.Empty(t, out[1].DatasetIDs)
}

func TestGrantsWidthFoldAndDeny(t *testing.T) {
	n := newBiblio(&mapping.NormalizeMapping{GrantIDDeny: []string{"none"}}, nil)

	out := n.Grants([]record.Grant{{
		GrantName:    "KAKENHI",
		ProjectTitle: "Diabetes genomics",
		GrantIDs:     []string{"１２３４５６７８", "none", "87654321"},
	}}, bilingual.Ja)

	require.Len(t, out, 1)
	assert.Equal(t, []string{"12345678", "87654321"}, out[0].GrantIDs,
		"full-width digits fold to half-width, denied IDs drop")
}

func TestControlledAccessUsers(t *testing.T) {
	n := newBiblio(nil, relation.Static{})

	users := []record.ControlledAccessUser{{
		Name:          strptr("Hanako  Sato"),
		Affiliation:   strptr("Example Institute"),
		Country:       strptr("Japan"),
		ResearchTitle: strptr("Replication（検証）study"),
		RawDatasetIDs: "JGAD000001、JGAD000002",
		PeriodRaw:     strptr("2020/4/1-2023/3/31"),
	}}

	out, err := n.ControlledAccessUsers(context.Background(), "hum0001", users, bilingual.Ja)
	require.NoError(t, err)
	require.Len(t, out, 1)

	u := out[0]
	assert.Equal(t, "Hanako Sato", *u.Name)
	assert.Equal(t, "Replication (検証)study", *u.ResearchTitle)
	assert.Equal(t, []string{"JGAD000001", "JGAD000002"}, u.DatasetIDs)
	require.NotNil(t, u.PeriodOfDataUse)
	assert.Equal(t, "2020-04-01", u.PeriodOfDataUse.From)
	assert.Equal(t, "2023-03-31", u.PeriodOfDataUse.To)
}
