package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/domain/auth"
	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/search/es"
)

type fakeSearcher struct {
	datasetParams   *es.DatasetSearchParams
	researchParams  *es.ResearchSearchParams
	principal       auth.Principal
	datasetPage     *es.DatasetPage
	researchPage    *es.ResearchPage
	err             error
}

func (f *fakeSearcher) SearchDatasets(_ context.Context, p es.DatasetSearchParams, principal auth.Principal) (*es.DatasetPage, error) {
	f.datasetParams = &p
	f.principal = principal
	if f.err != nil {
		return nil, f.err
	}
	if f.datasetPage != nil {
		return f.datasetPage, nil
	}
	return &es.DatasetPage{Datasets: []dataset.Dataset{}}, nil
}

func (f *fakeSearcher) SearchResearches(_ context.Context, p es.ResearchSearchParams, principal auth.Principal) (*es.ResearchPage, error) {
	f.researchParams = &p
	f.principal = principal
	if f.err != nil {
		return nil, f.err
	}
	if f.researchPage != nil {
		return f.researchPage, nil
	}
	return &es.ResearchPage{Researches: []es.ResearchSummary{}}, nil
}

func newTestServer(searcher Searcher, adminUIDs map[string]bool) *Server {
	return New(config.ServerConfig{Port: 8080, Mode: "test"}, searcher, adminUIDs, nil, logging.NewNopLogger())
}

func get(t *testing.T, s *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSearchDatasets_ParsesFilters(t *testing.T) {
	searcher := &fakeSearcher{}
	s := newTestServer(searcher, nil)

	w := get(t, s, "/api/v1/datasets/search?assayType=WGS,RNA-seq&platform=Illumina||NovaSeq%206000&isTumor=true&subjectCountMin=100&sort=releaseDate&limit=5&facets=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	p := searcher.datasetParams
	require.NotNil(t, p)
	assert.Equal(t, []string{"WGS", "RNA-seq"}, p.AssayTypes)
	assert.Equal(t, []string{"Illumina||NovaSeq 6000"}, p.Platforms)
	require.NotNil(t, p.IsTumor)
	assert.True(t, *p.IsTumor)
	require.NotNil(t, p.SubjectCountMin)
	assert.Equal(t, float64(100), *p.SubjectCountMin)
	assert.Equal(t, "releaseDate", p.Sort)
	assert.Equal(t, 5, p.Page.Limit)
	assert.True(t, p.IncludeFacets)
}

func TestSearchDatasets_StructuralErrorsAre400(t *testing.T) {
	for _, path := range []string{
		"/api/v1/datasets/search?subjectCountMin=abc",
		"/api/v1/datasets/search?isTumor=maybe",
		"/api/v1/datasets/search?sort=alphabetical",
		"/api/v1/datasets/search?offset=-1",
		"/api/v1/datasets/search?limit=zero",
	} {
		w := get(t, newTestServer(&fakeSearcher{}, nil), path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)

		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), path)
		assert.NotEmpty(t, body.Error.Message, path)
	}
}

func TestSearchDatasets_NoMatchIsEmptyPage(t *testing.T) {
	searcher := &fakeSearcher{datasetPage: &es.DatasetPage{Datasets: []dataset.Dataset{}}}
	w := get(t, newTestServer(searcher, nil), "/api/v1/datasets/search", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var page es.DatasetPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Datasets)
}

func TestPrincipal_FromHeaders(t *testing.T) {
	searcher := &fakeSearcher{}
	s := newTestServer(searcher, map[string]bool{"admin-1": true})

	get(t, s, "/api/v1/datasets/search", nil)
	assert.Equal(t, auth.Anonymous, searcher.principal)

	get(t, s, "/api/v1/datasets/search", map[string]string{"X-User-Id": "u-42"})
	assert.Equal(t, auth.Principal{UserID: "u-42"}, searcher.principal)

	// Admin view only for uids in the admin file.
	get(t, s, "/api/v1/datasets/search", map[string]string{"X-User-Id": "admin-1", "X-Admin": "true"})
	assert.Equal(t, auth.Principal{UserID: "admin-1", Admin: true}, searcher.principal)

	get(t, s, "/api/v1/datasets/search", map[string]string{"X-User-Id": "u-42", "X-Admin": "true"})
	assert.Equal(t, auth.Principal{UserID: "u-42", Admin: false}, searcher.principal)
}

func TestSearchResearches_ParsesNestedDatasetFilters(t *testing.T) {
	searcher := &fakeSearcher{}
	s := newTestServer(searcher, nil)

	w := get(t, s, "/api/v1/researches/search?lang=ja&status=published&dataset.assayType=WGS", nil)
	require.Equal(t, http.StatusOK, w.Code)

	p := searcher.researchParams
	require.NotNil(t, p)
	assert.Equal(t, "ja", string(p.Lang))
	require.Len(t, p.Statuses, 1)
	require.NotNil(t, p.Dataset)
	assert.Equal(t, []string{"WGS"}, p.Dataset.AssayTypes)
}

func TestSearchResearches_InvalidLangAndStatus(t *testing.T) {
	s := newTestServer(&fakeSearcher{}, nil)

	w := get(t, s, "/api/v1/researches/search?lang=fr", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(t, s, "/api/v1/researches/search?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	w := get(t, newTestServer(&fakeSearcher{}, nil), "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
