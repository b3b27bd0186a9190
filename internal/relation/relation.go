// Package relation wraps the external study→dataset lookup service that maps
// a JGAS study accession to its JGAD dataset accessions.  Lookups are
// memoized for the lifetime of a pipeline run, optionally read through a
// shared Redis tier, and persisted to a JSON cache file between runs so that
// re-runs on unchanged inputs never touch the service.
package relation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Port is the study→dataset expansion dependency injected into the
// normalizer.  Implementations must be safe for concurrent use.
type Port interface {
	// DatasetsFromStudy returns the JGAD accessions of a JGAS study.  An
	// empty slice is a valid answer (study exists but has no datasets yet).
	DatasetsFromStudy(ctx context.Context, jgasID string) ([]string, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP client with memoization
// ─────────────────────────────────────────────────────────────────────────────

// Client resolves studies against the relation service.  Resolution order:
// in-process cache, Redis (when configured), HTTP.  Every fresh answer is
// written back to both cache tiers.
type Client struct {
	cfg     config.RelationConfig
	http    *http.Client
	redis   *redis.Client
	logger  logging.Logger
	metrics *prometheus.Metrics

	mu    sync.RWMutex
	cache map[string][]string
}

// NewClient builds a Client, loading the persisted cache file when present.
// A nil redis client disables the shared tier.
func NewClient(cfg config.RelationConfig, rdb *redis.Client, logger logging.Logger, metrics *prometheus.Metrics) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		redis:   rdb,
		logger:  logger.Named("relation"),
		metrics: metrics,
		cache:   map[string][]string{},
	}
	if cfg.CacheFile != "" {
		if err := runner.ReadJSON(cfg.CacheFile, &c.cache); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(err, errors.ErrCodeRelationService, "failed to load relation cache file")
			}
			c.cache = map[string][]string{}
		}
	}
	return c, nil
}

// serviceResponse is the relation service's answer shape.
type serviceResponse struct {
	StudyID  string   `json:"studyId"`
	Datasets []string `json:"datasets"`
}

// DatasetsFromStudy implements Port.
func (c *Client) DatasetsFromStudy(ctx context.Context, jgasID string) ([]string, error) {
	c.mu.RLock()
	cached, ok := c.cache[jgasID]
	c.mu.RUnlock()
	if ok {
		c.metrics.RelationLookups.WithLabelValues("memo_hit").Inc()
		return cached, nil
	}

	if ids, ok := c.redisGet(ctx, jgasID); ok {
		c.store(jgasID, ids)
		c.metrics.RelationLookups.WithLabelValues("redis_hit").Inc()
		return ids, nil
	}

	ids, err := c.fetch(ctx, jgasID)
	if err != nil {
		c.metrics.RelationLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.RelationLookups.WithLabelValues("miss").Inc()
	c.store(jgasID, ids)
	c.redisSet(ctx, jgasID, ids)
	return ids, nil
}

func (c *Client) fetch(ctx context.Context, jgasID string) ([]string, error) {
	url := fmt.Sprintf("%s/studies/%s/datasets", c.cfg.Endpoint, jgasID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRelationService, "failed to build relation request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRelationService, "relation service request failed").WithDetail(jgasID)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Unknown study is a valid empty expansion, not an error.
		return []string{}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeRelationService, "relation service returned status %d", resp.StatusCode).WithDetail(jgasID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRelationService, "failed to read relation response")
	}
	var sr serviceResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "malformed relation response").WithDetail(jgasID)
	}
	if sr.Datasets == nil {
		sr.Datasets = []string{}
	}
	return sr.Datasets, nil
}

func (c *Client) store(jgasID string, ids []string) {
	c.mu.Lock()
	c.cache[jgasID] = ids
	c.mu.Unlock()
}

func (c *Client) redisKey(jgasID string) string { return "humandbs:relation:" + jgasID }

func (c *Client) redisGet(ctx context.Context, jgasID string) ([]string, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, c.redisKey(jgasID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("relation redis read failed", logging.String("jgasId", jgasID), logging.Err(err))
		}
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (c *Client) redisSet(ctx context.Context, jgasID string, ids []string) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	ttl := c.cfg.RedisTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := c.redis.Set(ctx, c.redisKey(jgasID), raw, ttl).Err(); err != nil {
		c.logger.Warn("relation redis write failed", logging.String("jgasId", jgasID), logging.Err(err))
	}
}

// Flush persists the in-process cache to the configured cache file.  Called
// once at stage teardown; the single-writer discipline keeps the file
// consistent.
func (c *Client) Flush() error {
	if c.cfg.CacheFile == "" {
		return nil
	}
	c.mu.RLock()
	snapshot := make(map[string][]string, len(c.cache))
	for k, v := range c.cache {
		snapshot[k] = v
	}
	c.mu.RUnlock()
	return runner.WriteJSONAtomic(c.cfg.CacheFile, snapshot)
}

// ─────────────────────────────────────────────────────────────────────────────
// Static port for tests and offline runs
// ─────────────────────────────────────────────────────────────────────────────

// Static is a Port backed by a fixed map.  Unknown studies expand to empty.
type Static map[string][]string

// DatasetsFromStudy implements Port.
func (s Static) DatasetsFromStudy(_ context.Context, jgasID string) ([]string, error) {
	if ids, ok := s[jgasID]; ok {
		return ids, nil
	}
	return []string{}, nil
}
