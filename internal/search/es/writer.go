package es

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// allocRetries bounds humId allocation attempts under create conflicts.
const allocRetries = 3

// EventSink receives a notification after every successful index write.  The
// kafka producer satisfies it; a nil sink disables events.
type EventSink interface {
	DocumentUpdated(ctx context.Context, index, docID, action string)
}

// Document is one fetched index document with its optimistic-concurrency
// witness.
type Document struct {
	ID          string
	SeqNo       int64
	PrimaryTerm int64
	Source      json.RawMessage
}

// Writer performs all index mutations.  Updates are guarded by sequence
// number + primary term; a lost race is reported as (nil, nil) so callers
// retry with a fresh read instead of treating it as a failure.
type Writer struct {
	client  *Client
	metrics *prometheus.Metrics
	logger  logging.Logger
	events  EventSink
}

// NewWriter builds a Writer. events may be nil.
func NewWriter(client *Client, metrics *prometheus.Metrics, logger logging.Logger, events EventSink) *Writer {
	return &Writer{client: client, metrics: metrics, logger: logger, events: events}
}

func (w *Writer) record(op, outcome string) {
	w.metrics.IndexOps.WithLabelValues(op, outcome).Inc()
}

func (w *Writer) notify(ctx context.Context, index, docID, action string) {
	if w.events != nil {
		w.events.DocumentUpdated(ctx, index, docID, action)
	}
}

// Create writes a new document with create-only semantics: an existing
// document with the same id fails with an index-conflict error.
func (w *Writer) Create(ctx context.Context, index, docID string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "search: marshal document")
	}

	req := opensearchapi.CreateRequest{
		Index:      index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, w.client.os)
	if err != nil {
		w.record("create", "error")
		return errors.Wrap(err, errors.ErrCodeIndexIO, "search: create request")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		if resp.StatusCode == http.StatusConflict {
			w.record("create", "conflict")
		} else {
			w.record("create", "error")
		}
		return indexError(resp, "create")
	}

	w.record("create", "ok")
	w.notify(ctx, index, docID, "create")
	return nil
}

// Update rewrites a document guarded by (seqNo, primaryTerm).  A concurrent
// writer winning the race yields (nil, nil); the caller re-reads and retries.
// On success the stored document is returned with its new witness.
func (w *Writer) Update(ctx context.Context, index, docID string, doc interface{}, seqNo, primaryTerm int64) (*Document, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: marshal document")
	}

	req := opensearchapi.IndexRequest{
		Index:         index,
		DocumentID:    docID,
		Body:          bytes.NewReader(body),
		IfSeqNo:       intPtr(seqNo),
		IfPrimaryTerm: intPtr(primaryTerm),
	}
	resp, err := req.Do(ctx, w.client.os)
	if err != nil {
		w.record("update", "error")
		return nil, errors.Wrap(err, errors.ErrCodeIndexIO, "search: update request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		w.record("update", "conflict")
		w.logger.Debug("index update lost optimistic-concurrency race",
			logging.String("index", index), logging.String("doc_id", docID),
			logging.Int64("seq_no", seqNo))
		return nil, nil
	}
	if resp.IsError() {
		w.record("update", "error")
		return nil, indexError(resp, "update")
	}

	var result struct {
		SeqNo       int64 `json:"_seq_no"`
		PrimaryTerm int64 `json:"_primary_term"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode update response")
	}

	w.record("update", "ok")
	w.notify(ctx, index, docID, "update")
	return &Document{ID: docID, SeqNo: result.SeqNo, PrimaryTerm: result.PrimaryTerm, Source: body}, nil
}

// Delete is soft: the document's status becomes deleted and it drops out of
// every non-admin query. The document itself stays in the index.
func (w *Writer) Delete(ctx context.Context, index, docID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]string{"status": string(research.StatusDeleted)},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "search: marshal delete patch")
	}

	req := opensearchapi.UpdateRequest{
		Index:      index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, w.client.os)
	if err != nil {
		w.record("delete", "error")
		return errors.Wrap(err, errors.ErrCodeIndexIO, "search: delete request")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		w.record("delete", "error")
		return indexError(resp, "delete")
	}

	w.record("delete", "ok")
	w.notify(ctx, index, docID, "delete")
	return nil
}

// Get fetches one document with its concurrency witness.
func (w *Writer) Get(ctx context.Context, index, docID string) (*Document, error) {
	req := opensearchapi.GetRequest{Index: index, DocumentID: docID}
	resp, err := req.Do(ctx, w.client.os)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIndexIO, "search: get request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Newf(errors.ErrCodeDocumentNotFound, "search: document %s/%s not found", index, docID)
	}
	if resp.IsError() {
		return nil, indexError(resp, "get")
	}

	var result struct {
		ID          string          `json:"_id"`
		SeqNo       int64           `json:"_seq_no"`
		PrimaryTerm int64           `json:"_primary_term"`
		Source      json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode get response")
	}
	return &Document{ID: result.ID, SeqNo: result.SeqNo, PrimaryTerm: result.PrimaryTerm, Source: result.Source}, nil
}

// CreateResearch writes a new research with its first version.  The version
// is written first so a reader never observes a research pointing at a
// missing version; if the research write then fails, the version is removed
// best-effort.
func (w *Writer) CreateResearch(ctx context.Context, res research.Research, v1 research.Version) error {
	if err := w.Create(ctx, w.client.indices.ResearchVersion, v1.HumVersionID, v1); err != nil {
		return err
	}

	if err := w.Create(ctx, w.client.indices.Research, res.HumID, res); err != nil {
		if rbErr := w.hardDelete(ctx, w.client.indices.ResearchVersion, v1.HumVersionID); rbErr != nil {
			w.logger.Error("rollback of orphaned research version failed",
				logging.String("hum_version_id", v1.HumVersionID), logging.Err(rbErr))
		}
		return err
	}
	return nil
}

// AllocateHumID reserves the next free humId: hum0001 when the index is
// empty, otherwise max+1 zero-padded to four digits.  build produces the
// research and its v1 for a candidate id; reservation relies on create-only
// semantics, so a concurrent allocator losing the race re-reads the max and
// tries again, up to allocRetries times.
func (w *Writer) AllocateHumID(ctx context.Context, build func(humID string) (research.Research, research.Version)) (string, error) {
	for attempt := 1; attempt <= allocRetries; attempt++ {
		maxN, err := w.maxHumID(ctx)
		if err != nil {
			return "", err
		}
		candidate := research.FormatHumID(maxN + 1)

		res, v1 := build(candidate)
		err = w.CreateResearch(ctx, res, v1)
		if err == nil {
			return candidate, nil
		}
		if !errors.IsCode(err, errors.ErrCodeIndexConflict) {
			return "", err
		}
		w.logger.Warn("humId allocation lost create race, retrying",
			logging.String("candidate", candidate), logging.Int("attempt", attempt))
	}
	return "", errors.Newf(errors.ErrCodeAllocExhausted, "search: humId allocation failed after %d attempts", allocRetries)
}

// maxHumID returns the highest allocated humId number, 0 when none exist.
// humIds are zero-padded, so a lexicographic descending sort finds the max.
func (w *Writer) maxHumID(ctx context.Context) (int, error) {
	size := 1
	body := Body{
		Query: MatchAll{},
		Size:  &size,
		Sort:  []Sort{{Field: "humId", Desc: true}},
	}
	raw, err := json.Marshal(body.Render())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "search: marshal max-humId query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{w.client.indices.Research},
		Body:  bytes.NewReader(raw),
	}
	resp, err := req.Do(ctx, w.client.os)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeIndexIO, "search: max-humId request")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, indexError(resp, "max-humId")
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source struct {
					HumID string `json:"humId"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode max-humId response")
	}
	if len(result.Hits.Hits) == 0 {
		return 0, nil
	}

	n, ok := research.ParseHumID(result.Hits.Hits[0].Source.HumID)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeIndexIO, "search: malformed humId %q in index", result.Hits.Hits[0].Source.HumID)
	}
	return n, nil
}

// hardDelete removes a document outright; only rollback paths use it.
func (w *Writer) hardDelete(ctx context.Context, index, docID string) error {
	req := opensearchapi.DeleteRequest{Index: index, DocumentID: docID}
	resp, err := req.Do(ctx, w.client.os)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexIO, "search: hard delete request")
	}
	defer resp.Body.Close()
	if resp.IsError() && resp.StatusCode != http.StatusNotFound {
		return indexError(resp, "hard delete")
	}
	return nil
}

func intPtr(v int64) *int {
	n := int(v)
	return &n
}
