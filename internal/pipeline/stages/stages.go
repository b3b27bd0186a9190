// Package stages wires the pipeline stages together over the results
// directory.  Each stage is independently re-runnable: it reads the previous
// stage's artifacts, processes records under a bounded pool, and writes its
// own artifacts atomically.  Per-record failures are collected in the
// runner.Report; only setup failures abort a stage.
package stages

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Stages holds everything the pipeline stages share: configuration, the
// mapping tables, and the observability handles.  Stage-specific dependencies
// (HTTP client, relation service, search engine) are constructed inside the
// stage that needs them, so `humandbs parse` never dials the search engine.
type Stages struct {
	cfg     *config.Config
	tables  *mapping.Tables
	logger  logging.Logger
	metrics *prometheus.Metrics
}

// New loads the mapping tables and returns a ready Stages.
func New(cfg *config.Config, logger logging.Logger, metrics *prometheus.Metrics) (*Stages, error) {
	tables, err := mapping.Load(cfg.Results.ConfigDir)
	if err != nil {
		return nil, err
	}
	return &Stages{cfg: cfg, tables: tables, logger: logger, metrics: metrics}, nil
}

// WithLogger returns a copy whose stages log through l.  The run command uses
// this to stamp a run ID on every record.
func (s *Stages) WithLogger(l logging.Logger) *Stages {
	c := *s
	c.logger = l
	return &c
}

// ─────────────────────────────────────────────────────────────────────────────
// Artifact layout
// ─────────────────────────────────────────────────────────────────────────────

func (s *Stages) resultsDir(dir string) string {
	return filepath.Join(s.cfg.Results.Dir, dir)
}

func (s *Stages) detailPath(hvid string, lang bilingual.Lang) string {
	return filepath.Join(s.cfg.Results.Dir, "detail-json", fmt.Sprintf("%s-%s.json", hvid, lang))
}

func (s *Stages) normalizedPath(hvid string, lang bilingual.Lang) string {
	return filepath.Join(s.cfg.Results.Dir, "normalized-json", fmt.Sprintf("%s-%s.json", hvid, lang))
}

func (s *Stages) structuredPath(kind, id string) string {
	return filepath.Join(s.cfg.Results.Dir, "structured-json", kind, id+".json")
}

func (s *Stages) structuredDir(kind string) string {
	return filepath.Join(s.cfg.Results.Dir, "structured-json", kind)
}

// listKeys returns the sorted basenames (without .json) of every JSON file in
// dir.  A missing directory is an empty work list, not an error: the caller
// may legitimately run a stage before its input stage has ever produced
// anything.
func listKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list artifact directory").WithDetail(dir)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// splitRecordKey splits a "{humVersionId}-{lang}" artifact key.
func splitRecordKey(key string) (hvid string, lang bilingual.Lang, ok bool) {
	for _, l := range bilingual.Langs {
		if strings.HasSuffix(key, "-"+string(l)) {
			return strings.TrimSuffix(key, "-"+string(l)), l, true
		}
	}
	return "", "", false
}

// workKeys expands humVersionIds into per-language work keys.
func workKeys(ids []string) []string {
	keys := make([]string, 0, len(ids)*len(bilingual.Langs))
	for _, id := range ids {
		for _, lang := range bilingual.Langs {
			keys = append(keys, fmt.Sprintf("%s-%s", id, lang))
		}
	}
	return keys
}
