// Package runner provides the shared machinery every pipeline stage uses: a
// bounded-concurrency work pool, per-record failure accounting, and atomic
// deterministic artifact writes.  Work items are independent, so no
// cross-worker coordination happens inside a stage.
package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
)

// DefaultConcurrency is the per-stage worker count when none is configured.
const DefaultConcurrency = 5

// ItemError records one failed work item.
type ItemError struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

// Report is the aggregate outcome of one stage run.  A stage never aborts on
// a record error; the caller decides whether a non-zero failure count aborts
// the pipeline.
type Report struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    []ItemError `json:"failed"`
}

// Ok reports whether the run completed without record failures.
func (r *Report) Ok() bool { return len(r.Failed) == 0 }

// Runner executes stage work items with bounded concurrency.
type Runner struct {
	concurrency int
	stage       string
	logger      logging.Logger
	metrics     *prometheus.Metrics
}

// New builds a Runner for the named stage.  concurrency ≤ 0 selects the
// default; max caps it.
func New(stage string, concurrency, max int, logger logging.Logger, metrics *prometheus.Metrics) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if max > 0 && concurrency > max {
		concurrency = max
	}
	return &Runner{
		concurrency: concurrency,
		stage:       stage,
		logger:      logger.Named(stage),
		metrics:     metrics,
	}
}

// Run processes keys with fn under the pool and returns the aggregate report.
// fn is called once per key; an fn error is recorded and does not stop the
// run.  Cancellation of ctx stops scheduling new items; in-flight items
// finish.  The Failed slice is sorted by key so re-runs yield identical
// reports.
func (r *Runner) Run(ctx context.Context, keys []string, fn func(ctx context.Context, key string) error) *Report {
	report := &Report{Total: len(keys)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, key := range keys {
		key := key
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := fn(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, ItemError{Key: key, Err: err.Error()})
				r.metrics.RecordsProcessed.WithLabelValues(r.stage, "failed").Inc()
				r.logger.Warn("work item failed", logging.String("key", key), logging.Err(err))
				return nil // record-level failure; keep the pool running
			}
			report.Succeeded++
			r.metrics.RecordsProcessed.WithLabelValues(r.stage, "ok").Inc()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Key < report.Failed[j].Key })

	r.logger.Info("stage run finished",
		logging.Int("total", report.Total),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", len(report.Failed)))
	return report
}

// WriteJSONAtomic serializes v deterministically (2-space indent, sorted map
// keys, trailing newline) and writes it via temp-file + rename, so a
// cancelled stage never leaves a torn artifact.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadJSON loads a JSON artifact into v.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
