package stages

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/normalizer"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/structurer"
	"github.com/nbdc/humandbs-pipeline/internal/relation"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// newRelationClient wires the relation service with its cache tiers.  The
// redis tier is optional; the JSON cache file participates always.
func (s *Stages) newRelationClient() (*relation.Client, error) {
	var rdb *redis.Client
	if s.cfg.Relation.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Relation.RedisAddr,
			Password: s.cfg.Relation.RedisPassword,
			DB:       s.cfg.Relation.RedisDB,
		})
	}
	return relation.NewClient(s.cfg.Relation, rdb, s.logger, s.metrics)
}

// Normalize canonicalizes every detail-json record into
// normalized-json/{humVersionId}-{lang}.json.  When ids is empty the work
// list is discovered from the detail-json directory.  The relation cache is
// flushed to disk once, at stage teardown.
func (s *Stages) Normalize(ctx context.Context, ids []string) (*runner.Report, error) {
	keys, err := s.recordKeys("detail-json", ids)
	if err != nil {
		return nil, err
	}
	rel, err := s.newRelationClient()
	if err != nil {
		return nil, err
	}
	n := normalizer.New(s.tables, rel, s.cfg.Portal.BaseURLJa, s.cfg.Portal.BaseURLEn, s.logger)

	r := runner.New("normalize", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	report := r.Run(ctx, keys, func(ctx context.Context, key string) error {
		hvid, lang, ok := splitRecordKey(key)
		if !ok {
			return errors.New(errors.ErrCodeValidation, "malformed work key").WithDetail(key)
		}
		var rec record.Record
		if err := runner.ReadJSON(s.detailPath(hvid, lang), &rec); err != nil {
			return errors.Wrap(err, errors.ErrCodeNormalize, "failed to read detail record").WithDetail(key)
		}
		out, err := n.Normalize(ctx, &rec)
		if err != nil {
			return err
		}
		return runner.WriteJSONAtomic(s.normalizedPath(hvid, lang), out)
	})

	if err := rel.Flush(); err != nil {
		s.logger.Warn("failed to flush relation cache file", logging.Err(err))
	}
	return report, nil
}

// recordKeys resolves the work list for a per-(humVersionId, lang) stage:
// the explicit ids expanded per language, or every artifact already present.
func (s *Stages) recordKeys(dir string, ids []string) ([]string, error) {
	if len(ids) > 0 {
		return workKeys(ids), nil
	}
	return listKeys(s.resultsDir(dir))
}

// Structure merges the normalized per-language records of each humId into
// the Research aggregate, its version snapshots, and the versioned dataset
// emissions.  When ids is empty every humId present under normalized-json is
// processed.
func (s *Stages) Structure(ctx context.Context, ids []string) (*runner.Report, error) {
	humIDs := ids
	if len(humIDs) == 0 {
		keys, err := listKeys(s.resultsDir("normalized-json"))
		if err != nil {
			return nil, err
		}
		humIDs = humIDsOf(keys)
	}
	st := structurer.New(&s.tables.Overrides, s.logger)

	r := runner.New("structure", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	return r.Run(ctx, humIDs, func(ctx context.Context, humID string) error {
		versions, err := s.loadVersionInputs(humID)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return errors.New(errors.ErrCodeStructure, "no normalized records for humId").WithDetail(humID)
		}
		out, err := st.Build(humID, versions)
		if err != nil {
			return err
		}
		if err := runner.WriteJSONAtomic(s.structuredPath("research", humID), out.Research); err != nil {
			return err
		}
		for _, v := range out.Versions {
			if err := runner.WriteJSONAtomic(s.structuredPath("research-version", v.HumVersionID), v); err != nil {
				return err
			}
		}
		for _, ds := range out.Datasets {
			id := ds.DatasetID + "-" + ds.Version
			if err := runner.WriteJSONAtomic(s.structuredPath("dataset", id), ds); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// humIDsOf reduces record keys to the sorted distinct humIds they belong to.
func humIDsOf(keys []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, key := range keys {
		hvid, _, ok := splitRecordKey(key)
		if !ok {
			continue
		}
		humID, _, ok := research.ParseHumVersionID(hvid)
		if !ok || seen[humID] {
			continue
		}
		seen[humID] = true
		out = append(out, humID)
	}
	sort.Strings(out)
	return out
}

// loadVersionInputs gathers every normalized (version, lang) record of one
// humId.  A missing language side stays nil; the structurer falls back to the
// present side.
func (s *Stages) loadVersionInputs(humID string) ([]structurer.VersionInput, error) {
	keys, err := listKeys(s.resultsDir("normalized-json"))
	if err != nil {
		return nil, err
	}
	byVersion := map[int]*structurer.VersionInput{}
	for _, key := range keys {
		hvid, lang, ok := splitRecordKey(key)
		if !ok {
			continue
		}
		owner, version, ok := research.ParseHumVersionID(hvid)
		if !ok || owner != humID {
			continue
		}
		in := byVersion[version]
		if in == nil {
			in = &structurer.VersionInput{Version: version, HumVersionID: hvid}
			byVersion[version] = in
		}
		var rec record.Record
		if err := runner.ReadJSON(s.normalizedPath(hvid, lang), &rec); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStructure, "failed to read normalized record").WithDetail(key)
		}
		if lang == bilingual.Ja {
			in.Ja = &rec
		} else {
			in.En = &rec
		}
	}
	versions := make([]structurer.VersionInput, 0, len(byVersion))
	for _, in := range byVersion {
		versions = append(versions, *in)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}
