package relation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	pkgerrors "github.com/nbdc/humandbs-pipeline/pkg/errors"
)

func newTestClient(t *testing.T, endpoint, cacheFile string) *Client {
	t.Helper()
	c, err := NewClient(config.RelationConfig{
		Endpoint:       endpoint,
		CacheFile:      cacheFile,
		RequestTimeout: 5 * time.Second,
	}, nil, logging.NewNopLogger(), prometheus.NewNop())
	require.NoError(t, err)
	return c
}

func TestDatasetsFromStudyMemoizes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/studies/JGAS000114/datasets", r.URL.Path)
		w.Write([]byte(`{"studyId":"JGAS000114","datasets":["JGAD000220","JGAD000410"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	for i := 0; i < 3; i++ {
		ids, err := c.DatasetsFromStudy(context.Background(), "JGAS000114")
		require.NoError(t, err)
		assert.Equal(t, []string{"JGAD000220", "JGAD000410"}, ids)
	}
	assert.Equal(t, int32(1), hits.Load(), "repeat lookups served from the run cache")
}

func TestDatasetsFromStudyUnknownIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ids, err := newTestClient(t, srv.URL, "").DatasetsFromStudy(context.Background(), "JGAS999999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDatasetsFromStudyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "").DatasetsFromStudy(context.Background(), "JGAS000001")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeRelationService))
}

func TestCacheFilePersistsAcrossRuns(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"studyId":"JGAS000001","datasets":["JGAD000001"]}`))
	}))
	defer srv.Close()

	cacheFile := filepath.Join(t.TempDir(), "relation-cache.json")

	first := newTestClient(t, srv.URL, cacheFile)
	_, err := first.DatasetsFromStudy(context.Background(), "JGAS000001")
	require.NoError(t, err)
	require.NoError(t, first.Flush())

	second := newTestClient(t, srv.URL, cacheFile)
	ids, err := second.DatasetsFromStudy(context.Background(), "JGAS000001")
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000001"}, ids)
	assert.Equal(t, int32(1), hits.Load(), "second run reads the persisted cache")
}

func TestStaticPort(t *testing.T) {
	port := Static{"JGAS000114": {"JGAD000220"}}

	ids, err := port.DatasetsFromStudy(context.Background(), "JGAS000114")
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000220"}, ids)

	ids, err = port.DatasetsFromStudy(context.Background(), "JGAS000999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
