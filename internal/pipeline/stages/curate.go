package stages

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/facet"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/icd10"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// FacetNormalize rewrites the searchable facet values of every structured
// dataset through the TSV mapping tables, then persists any pending rows the
// run discovered so a curator can fill them in.
func (s *Stages) FacetNormalize(ctx context.Context) (*runner.Report, error) {
	fac, err := facet.NewNormalizer(filepath.Join(s.cfg.Results.ConfigDir, "facet-mappings"), s.logger)
	if err != nil {
		return nil, err
	}
	defer fac.Close()

	keys, err := listKeys(s.structuredDir("dataset"))
	if err != nil {
		return nil, err
	}

	r := runner.New("facet-normalize", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	report := r.Run(ctx, keys, func(ctx context.Context, key string) error {
		path := s.structuredPath("dataset", key)
		var ds dataset.Dataset
		if err := runner.ReadJSON(path, &ds); err != nil {
			return errors.Wrap(err, errors.ErrCodeNormalize, "failed to read dataset").WithDetail(key)
		}
		fac.Apply(&ds)
		return runner.WriteJSONAtomic(path, ds)
	})

	if err := fac.Save(); err != nil {
		s.logger.Warn("failed to persist pending facet rows", logging.Err(err))
	}
	return report, nil
}

// ICD10Normalize rewrites dataset disease annotations against the master
// ICD10 label table.  In check mode nothing is written: every dataset is
// validated and the violations are returned for the caller to report.
func (s *Stages) ICD10Normalize(ctx context.Context, check bool) (*runner.Report, []icd10.Violation, error) {
	tables, err := icd10.Load(filepath.Join(s.cfg.Results.ConfigDir, "icd10-labels.json"))
	if err != nil {
		return nil, nil, err
	}
	norm := icd10.New(tables, s.logger)

	keys, err := listKeys(s.structuredDir("dataset"))
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	var violations []icd10.Violation

	r := runner.New("icd10-normalize", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	report := r.Run(ctx, keys, func(ctx context.Context, key string) error {
		path := s.structuredPath("dataset", key)
		var ds dataset.Dataset
		if err := runner.ReadJSON(path, &ds); err != nil {
			return errors.Wrap(err, errors.ErrCodeNormalize, "failed to read dataset").WithDetail(key)
		}
		if check {
			if vs := norm.Check(&ds); len(vs) > 0 {
				mu.Lock()
				violations = append(violations, vs...)
				mu.Unlock()
			}
			return nil
		}
		norm.Apply(&ds)
		return runner.WriteJSONAtomic(path, ds)
	})

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].DatasetID != violations[j].DatasetID {
			return violations[i].DatasetID < violations[j].DatasetID
		}
		return violations[i].Label < violations[j].Label
	})
	return report, violations, nil
}
