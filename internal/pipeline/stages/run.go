package stages

import (
	"context"

	"github.com/google/uuid"

	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
)

// RunAll executes the full chain — fetch through index — under a shared run
// ID, so every log line of one invocation can be correlated.  Stage reports
// are returned in execution order; the chain stops at the first stage whose
// setup fails, but per-record failures never stop it.
func (s *Stages) RunAll(ctx context.Context, ids []string, refresh bool) ([]*runner.Report, error) {
	runID := uuid.NewString()
	run := s.WithLogger(s.logger.With(logging.String("runId", runID)))
	run.logger.Info("pipeline run starting", logging.Int("humVersionIds", len(ids)))

	var reports []*runner.Report
	collect := func(rep *runner.Report, err error) error {
		if err != nil {
			return err
		}
		reports = append(reports, rep)
		return nil
	}

	if err := collect(run.Fetch(ctx, ids, refresh)); err != nil {
		return reports, err
	}
	if err := collect(run.Parse(ctx, ids)); err != nil {
		return reports, err
	}
	if err := collect(run.Normalize(ctx, ids)); err != nil {
		return reports, err
	}
	var humIDs []string
	if len(ids) > 0 {
		humIDs = humIDsOf(workKeys(ids))
	}
	if err := collect(run.Structure(ctx, humIDs)); err != nil {
		return reports, err
	}
	if err := collect(run.FacetNormalize(ctx)); err != nil {
		return reports, err
	}
	rep, _, err := run.ICD10Normalize(ctx, false)
	if err != nil {
		return reports, err
	}
	reports = append(reports, rep)
	if err := collect(run.Index(ctx)); err != nil {
		return reports, err
	}

	run.logger.Info("pipeline run finished", logging.Int("stages", len(reports)))
	return reports, nil
}
