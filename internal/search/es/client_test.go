package es

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	osClient, err := opensearch.NewClient(opensearch.Config{Addresses: []string{serverURL}})
	require.NoError(t, err)
	return &Client{
		os: osClient,
		indices: Indices{
			Research:        "research",
			ResearchVersion: "research-version",
			Dataset:         "dataset",
		},
		logger: logging.NewNopLogger(),
	}
}

func TestNewClient_RequiresAddress(t *testing.T) {
	_, err := NewClient(config.SearchConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfig, errors.GetCode(err))
}

func TestNewClient_CarriesIndexNames(t *testing.T) {
	c, err := NewClient(config.SearchConfig{
		Addresses:            []string{"http://localhost:9200"},
		ResearchIndex:        "research",
		ResearchVersionIndex: "research-version",
		DatasetIndex:         "dataset",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "research", c.Indices().Research)
	assert.Equal(t, "research-version", c.Indices().ResearchVersion)
	assert.Equal(t, "dataset", c.Indices().Dataset)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestPing_EngineDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexIO, errors.GetCode(err))
}
