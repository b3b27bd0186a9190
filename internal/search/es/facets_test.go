package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/domain/auth"
)

func TestDatasetFacetAggs_ReverseNestedShape(t *testing.T) {
	aggs := datasetFacetAggs()
	require.Contains(t, aggs, "facet_assayType")
	require.Contains(t, aggs, "facet_platform")

	raw, err := json.Marshal(aggs["facet_assayType"].AggMap())
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"nested":{"path":"experiments"}`)
	assert.Contains(t, body, `"field":"experiments.searchable.assayType"`)
	assert.Contains(t, body, `"reverse_nested":{}`)

	raw, err = json.Marshal(aggs["facet_platform"].AggMap())
	require.NoError(t, err)
	body = string(raw)
	assert.Contains(t, body, `"composite"`)
	assert.Contains(t, body, `"field":"experiments.searchable.platformVendor"`)
	assert.Contains(t, body, `"field":"experiments.searchable.platformModel"`)
}

func TestParseFacets_TermBucketsCountDatasets(t *testing.T) {
	aggs := map[string]json.RawMessage{
		"total": json.RawMessage(`{"value":12}`),
		"facet_assayType": json.RawMessage(`{
			"doc_count": 40,
			"values": {"buckets": [
				{"key": "WGS", "doc_count": 31, "datasets": {"doc_count": 7}},
				{"key": "RNA-seq", "doc_count": 9, "datasets": {"doc_count": 3}}
			]}
		}`),
	}

	facets, err := parseFacets(aggs)
	require.NoError(t, err)
	require.Len(t, facets, 1)

	// The count is the reverse-nested dataset count, not the experiment-row count.
	assert.Equal(t, []FacetBucket{
		{Value: "WGS", Count: 7},
		{Value: "RNA-seq", Count: 3},
	}, facets["assayType"])
}

func TestParseFacets_PlatformCompositeKeys(t *testing.T) {
	aggs := map[string]json.RawMessage{
		"facet_platform": json.RawMessage(`{
			"doc_count": 20,
			"values": {"buckets": [
				{"key": {"vendor": "Illumina", "model": "NovaSeq 6000"}, "doc_count": 14, "datasets": {"doc_count": 4}},
				{"key": {"vendor": "Illumina", "model": "HiSeq 2500"}, "doc_count": 6, "datasets": {"doc_count": 2}}
			]}
		}`),
	}

	facets, err := parseFacets(aggs)
	require.NoError(t, err)
	assert.Equal(t, []FacetBucket{
		{Value: "Illumina||NovaSeq 6000", Count: 4},
		{Value: "Illumina||HiSeq 2500", Count: 2},
	}, facets["platform"])
}

func TestSearchDatasets_FacetsRequestedAndParsed(t *testing.T) {
	engine := &fakeEngine{}
	engine.on("", "/research/_search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(authBuckets("hum0001")))
	})
	engine.on("", "/dataset/_search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"hits":{"total":{"value":0},"hits":[]},
			"aggregations":{
				"total":{"value":0},
				"facet_tissues":{"doc_count":5,"values":{"buckets":[
					{"key":"blood","doc_count":5,"datasets":{"doc_count":2}}
				]}}
			}
		}`))
	})
	server := httptest.NewServer(engine.handler())
	defer server.Close()

	q := newTestQuerier(t, server.URL)
	page, err := q.SearchDatasets(context.Background(), DatasetSearchParams{IncludeFacets: true}, auth.Anonymous)
	require.NoError(t, err)

	assert.Equal(t, []FacetBucket{{Value: "blood", Count: 2}}, page.Facets["tissues"])

	calls := engine.calls("", "/dataset/_search")
	require.Len(t, calls, 1)
	body := decodeBody(t, calls[0].Body)
	aggs := asMap(t, body["aggs"])
	assert.Contains(t, aggs, "facet_platform")
	assert.Contains(t, aggs, "facet_assayType")
}
