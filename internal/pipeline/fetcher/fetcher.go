// Package fetcher retrieves detail and release HTML from the portal.  Every
// response body is persisted under a content-addressed cache keyed by URL, so
// re-runs of the crawl stage are free and the downstream stages never touch
// the network.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// PageKind selects which portal page a request targets.
type PageKind string

const (
	PageDetail  PageKind = "detail"
	PageRelease PageKind = "release"
)

// Request identifies one page to fetch.
type Request struct {
	HumID        string
	HumVersionID string
	Lang         bilingual.Lang
	Kind         PageKind

	// UseCache false forces a re-fetch; the response still refreshes the
	// cache entry.
	UseCache bool
}

// retryableStatus is the set of transient HTTP statuses absorbed by backoff.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true, // 408
	http.StatusTooManyRequests:    true, // 429
	http.StatusBadGateway:         true, // 502
	http.StatusServiceUnavailable: true, // 503
	http.StatusGatewayTimeout:     true, // 504
}

// Fetcher retrieves and caches portal pages.
type Fetcher struct {
	portal  config.PortalConfig
	cfg     config.FetchConfig
	hotfix  *mapping.CrawlHotfix
	skip    map[string]bool
	client  *http.Client
	cache   *Cache
	mirror  Mirror
	logger  logging.Logger
	metrics *prometheus.Metrics

	// rnd drives backoff jitter; tests may replace it for determinism.
	rnd *rand.Rand
}

// New builds a Fetcher.  mirror may be nil when the snapshot mirror is
// disabled.
func New(portal config.PortalConfig, cfg config.FetchConfig, hotfix *mapping.CrawlHotfix,
	cache *Cache, mirror Mirror, logger logging.Logger, metrics *prometheus.Metrics) *Fetcher {
	return &Fetcher{
		portal:  portal,
		cfg:     cfg,
		hotfix:  hotfix,
		skip:    hotfix.SkipSet(),
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cache:   cache,
		mirror:  mirror,
		logger:  logger.Named("fetcher"),
		metrics: metrics,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ErrSkipped marks a humId on the configured skip list.
var ErrSkipped = errors.New(errors.ErrCodeFetch, "humId is on the skip list")

// URL computes the page URL for req, honoring the per-(humVersionId, lang)
// release-URL suffix override table.
func (f *Fetcher) URL(req Request) string {
	base := f.portal.BaseURLJa
	if req.Lang == bilingual.En {
		base = f.portal.BaseURLEn
	}
	switch req.Kind {
	case PageRelease:
		suffix := "/release"
		if o, ok := f.hotfix.ReleaseURLSuffix[fmt.Sprintf("%s-%s", req.HumVersionID, req.Lang)]; ok {
			suffix = o
		}
		return fmt.Sprintf("%s/%s%s", base, req.HumVersionID, suffix)
	default:
		return fmt.Sprintf("%s/%s", base, req.HumVersionID)
	}
}

// Fetch returns the raw HTML for req, from cache when allowed, otherwise from
// the portal with retries.  Non-retryable HTTP statuses surface as
// ErrCodeFetch.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.skip[req.HumID] {
		return nil, ErrSkipped.WithDetail(req.HumID)
	}

	url := f.URL(req)
	if req.UseCache {
		if body, ok := f.cache.Get(url); ok {
			f.metrics.PagesFetched.WithLabelValues(string(req.Kind), "hit").Inc()
			return body, nil
		}
	}

	start := time.Now()
	body, err := f.fetchWithRetry(ctx, url)
	f.metrics.FetchDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	f.metrics.PagesFetched.WithLabelValues(string(req.Kind), "miss").Inc()

	if err := f.cache.Put(url, body); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFetch, "failed to persist page cache entry")
	}
	if f.mirror != nil {
		// Mirror failures are logged, never fatal: the disk cache is the
		// source of truth.
		if err := f.mirror.Store(ctx, url, body); err != nil {
			f.logger.Warn("snapshot mirror store failed", logging.String("url", url), logging.Err(err))
		}
	}
	return body, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	backoff := f.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; ; attempt++ {
		body, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt >= f.cfg.MaxRetries {
			return nil, lastErr
		}

		f.metrics.FetchRetries.Inc()
		f.logger.Debug("retrying fetch",
			logging.String("url", url),
			logging.Int("attempt", attempt+1),
			logging.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeFetch, "fetch cancelled")
		case <-time.After(f.jitter(backoff)):
		}

		backoff *= 2
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}
}

// jitter spreads a backoff delay by ±25%.
func (f *Fetcher) jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.25
	return d + time.Duration((f.rnd.Float64()*2-1)*spread)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeFetch, "failed to build request")
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport errors (timeouts, connection resets) are retryable.
		return nil, true, errors.Wrap(err, errors.ErrCodeFetch, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := retryableStatus[resp.StatusCode]
		return nil, retryable, errors.Newf(errors.ErrCodeFetch, "portal returned status %d", resp.StatusCode).WithDetail(url)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, errors.ErrCodeFetch, "failed to read response body")
	}
	return body, false, nil
}
