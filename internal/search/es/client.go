// Package es is the search-engine adapter: one OpenSearch client shared by
// the index writer and the querier, plus the typed query DSL both compose
// their requests from.
package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Indices names the three logical indices.
type Indices struct {
	Research        string
	ResearchVersion string
	Dataset         string
}

// Client wraps the OpenSearch connection for the three pipeline indices.
type Client struct {
	os      *opensearch.Client
	indices Indices
	logger  logging.Logger
}

// NewClient builds a client from the search configuration.  Transient engine
// errors (429/502/503/504) are retried inside the transport with a flat
// backoff; everything else surfaces to the caller.
func NewClient(cfg config.SearchConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeConfig, "search: at least one address is required")
	}

	osCfg := opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{429, 502, 503, 504},
		Transport:     &http.Transport{MaxIdleConnsPerHost: 10},
	}

	osClient, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIndexIO, "search: client construction failed")
	}

	return &Client{
		os: osClient,
		indices: Indices{
			Research:        cfg.ResearchIndex,
			ResearchVersion: cfg.ResearchVersionIndex,
			Dataset:         cfg.DatasetIndex,
		},
		logger: logger,
	}, nil
}

// Indices returns the configured index names.
func (c *Client) Indices() Indices { return c.indices }

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.os.Ping(c.os.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexIO, "search: ping failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.Newf(errors.ErrCodeIndexIO, "search: ping returned status %d", resp.StatusCode)
	}
	return nil
}

// errorReason extracts the engine's error reason from a non-2xx response body.
func errorReason(resp *opensearchapi.Response) string {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Reason != "" {
		return body.Error.Type + ": " + body.Error.Reason
	}
	return resp.String()
}

// indexError folds a non-2xx engine response into a coded error.
func indexError(resp *opensearchapi.Response, op string) error {
	reason := errorReason(resp)
	switch resp.StatusCode {
	case http.StatusConflict:
		return errors.Newf(errors.ErrCodeIndexConflict, "search: %s conflict: %s", op, reason)
	case http.StatusNotFound:
		return errors.Newf(errors.ErrCodeDocumentNotFound, "search: %s target missing: %s", op, reason)
	default:
		return errors.Newf(errors.ErrCodeIndexIO, "search: %s failed with status %d: %s", op, resp.StatusCode, reason)
	}
}
