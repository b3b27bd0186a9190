package stages

import (
	"context"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/fetcher"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/parser"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// newFetcher assembles the crawler with its cache and optional snapshot
// mirror.
func (s *Stages) newFetcher(ctx context.Context) (*fetcher.Fetcher, error) {
	cache, err := fetcher.NewCache(s.cfg.Fetch.CacheDir)
	if err != nil {
		return nil, err
	}
	var mirror fetcher.Mirror
	if s.cfg.Snapshot.Enabled {
		m, err := fetcher.NewObjectMirror(ctx, s.cfg.Snapshot)
		if err != nil {
			return nil, err
		}
		mirror = m
	}
	return fetcher.New(s.cfg.Portal, s.cfg.Fetch, &s.tables.CrawlHotfix, cache, mirror, s.logger, s.metrics), nil
}

// dropSkipped removes humVersionIds whose humId is on the crawl skip list.
func (s *Stages) dropSkipped(ids []string) []string {
	skip := s.tables.CrawlHotfix.SkipSet()
	kept := ids[:0:0]
	for _, id := range ids {
		humID, _, ok := research.ParseHumVersionID(id)
		if ok && skip[humID] {
			s.logger.Info("skipping humId on the crawl skip list", logging.String("humVersionId", id))
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

// Fetch populates the page cache with the detail and release HTML of every
// requested humVersionId, in both languages.  refresh forces a re-fetch even
// when a cache entry exists.
func (s *Stages) Fetch(ctx context.Context, ids []string, refresh bool) (*runner.Report, error) {
	f, err := s.newFetcher(ctx)
	if err != nil {
		return nil, err
	}
	r := runner.New("fetch", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	return r.Run(ctx, workKeys(s.dropSkipped(ids)), func(ctx context.Context, key string) error {
		hvid, lang, ok := splitRecordKey(key)
		if !ok {
			return errors.New(errors.ErrCodeValidation, "malformed work key").WithDetail(key)
		}
		humID, _, ok := research.ParseHumVersionID(hvid)
		if !ok {
			return errors.New(errors.ErrCodeValidation, "malformed humVersionId").WithDetail(hvid)
		}
		for _, kind := range []fetcher.PageKind{fetcher.PageDetail, fetcher.PageRelease} {
			req := fetcher.Request{
				HumID:        humID,
				HumVersionID: hvid,
				Lang:         lang,
				Kind:         kind,
				UseCache:     !refresh,
			}
			if _, err := f.Fetch(ctx, req); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

// Parse reads the cached HTML of every requested humVersionId, extracts the
// raw record, and writes detail-json/{humVersionId}-{lang}.json.  The release
// history is parsed from the release page and attached to the record.
func (s *Stages) Parse(ctx context.Context, ids []string) (*runner.Report, error) {
	f, err := s.newFetcher(ctx)
	if err != nil {
		return nil, err
	}
	detail := parser.NewDetailParser(&s.tables.CrawlHotfix, s.logger)
	release := parser.NewReleaseParser(s.logger)

	r := runner.New("parse", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	return r.Run(ctx, workKeys(s.dropSkipped(ids)), func(ctx context.Context, key string) error {
		hvid, lang, ok := splitRecordKey(key)
		if !ok {
			return errors.New(errors.ErrCodeValidation, "malformed work key").WithDetail(key)
		}
		rec, err := s.parseOne(ctx, f, detail, release, hvid, lang)
		if err != nil {
			return err
		}
		return runner.WriteJSONAtomic(s.detailPath(hvid, lang), rec)
	}), nil
}

func (s *Stages) parseOne(ctx context.Context, f *fetcher.Fetcher, detail *parser.DetailParser,
	release *parser.ReleaseParser, hvid string, lang bilingual.Lang) (*record.Record, error) {
	humID, _, ok := research.ParseHumVersionID(hvid)
	if !ok {
		return nil, errors.New(errors.ErrCodeValidation, "malformed humVersionId").WithDetail(hvid)
	}

	detailReq := fetcher.Request{HumID: humID, HumVersionID: hvid, Lang: lang, Kind: fetcher.PageDetail, UseCache: true}
	html, err := f.Fetch(ctx, detailReq)
	if err != nil {
		return nil, err
	}
	rec, err := detail.Parse(hvid, lang, f.URL(detailReq), html)
	if err != nil {
		return nil, err
	}

	releaseReq := fetcher.Request{HumID: humID, HumVersionID: hvid, Lang: lang, Kind: fetcher.PageRelease, UseCache: true}
	relHTML, err := f.Fetch(ctx, releaseReq)
	if err != nil {
		return nil, err
	}
	releases, err := release.Parse(hvid, relHTML)
	if err != nil {
		return nil, err
	}
	rec.Releases = releases
	return rec, nil
}
