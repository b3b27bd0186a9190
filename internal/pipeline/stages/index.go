package stages

import (
	"context"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/messaging/kafka"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
	"github.com/nbdc/humandbs-pipeline/internal/search/es"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// upsertRetries bounds how often an indexing upsert re-reads after losing an
// optimistic-concurrency race.
const upsertRetries = 3

// Index pushes every structured artifact into the search engine.  New
// documents are created; existing ones are updated under optimistic
// concurrency, re-reading on a lost race.  Successful writes publish
// document-updated events when the kafka producer is enabled.
func (s *Stages) Index(ctx context.Context) (*runner.Report, error) {
	producer, err := kafka.NewProducer(s.cfg.Kafka, s.logger)
	if err != nil {
		return nil, err
	}
	defer producer.Close()

	client, err := es.NewClient(s.cfg.Search, s.logger)
	if err != nil {
		return nil, err
	}
	writer := es.NewWriter(client, s.metrics, s.logger, producer)

	keys, err := s.indexKeys()
	if err != nil {
		return nil, err
	}

	indices := client.Indices()
	r := runner.New("index", s.cfg.Worker.Concurrency, s.cfg.Worker.Max, s.logger, s.metrics)
	return r.Run(ctx, keys, func(ctx context.Context, key string) error {
		kind, id, _ := strings.Cut(key, "/")
		switch kind {
		case "research":
			var doc research.Research
			if err := runner.ReadJSON(s.structuredPath(kind, id), &doc); err != nil {
				return errors.Wrap(err, errors.ErrCodeIndexIO, "failed to read artifact").WithDetail(key)
			}
			return s.upsert(ctx, writer, indices.Research, id, doc)
		case "research-version":
			var doc research.Version
			if err := runner.ReadJSON(s.structuredPath(kind, id), &doc); err != nil {
				return errors.Wrap(err, errors.ErrCodeIndexIO, "failed to read artifact").WithDetail(key)
			}
			return s.upsert(ctx, writer, indices.ResearchVersion, id, doc)
		default:
			var doc dataset.Dataset
			if err := runner.ReadJSON(s.structuredPath(kind, id), &doc); err != nil {
				return errors.Wrap(err, errors.ErrCodeIndexIO, "failed to read artifact").WithDetail(key)
			}
			return s.upsert(ctx, writer, indices.Dataset, id, doc)
		}
	}), nil
}

// indexKeys lists every structured artifact as a "{kind}/{id}" work key.
func (s *Stages) indexKeys() ([]string, error) {
	var keys []string
	for _, kind := range []string{"research", "research-version", "dataset"} {
		ids, err := listKeys(s.structuredDir(kind))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			keys = append(keys, kind+"/"+id)
		}
	}
	return keys, nil
}

// upsert creates docID, falling back to a guarded update when the document
// already exists.  A lost update race is retried with a fresh read; it is
// never surfaced as a record failure.
func (s *Stages) upsert(ctx context.Context, w *es.Writer, index, docID string, doc interface{}) error {
	err := w.Create(ctx, index, docID, doc)
	if err == nil || !errors.IsCode(err, errors.ErrCodeIndexConflict) {
		return err
	}
	for attempt := 0; attempt < upsertRetries; attempt++ {
		cur, err := w.Get(ctx, index, docID)
		if err != nil {
			return err
		}
		witness, err := w.Update(ctx, index, docID, doc, cur.SeqNo, cur.PrimaryTerm)
		if err != nil {
			return err
		}
		if witness != nil {
			return nil
		}
	}
	return errors.New(errors.ErrCodeIndexConflict, "update kept losing the concurrency race").WithDetail(docID)
}
