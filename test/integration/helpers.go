// Package integration exercises the whole pipeline against fake portal,
// relation-service, and search-engine backends.  Every backend is an
// in-process httptest server, so the suite runs without any external
// infrastructure.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/pipeline/runner"
)

// ─────────────────────────────────────────────────────────────────────────────
// Portal fixtures
// ─────────────────────────────────────────────────────────────────────────────

const detailPage = `<html><body>
<h1>Genome-wide association study of type 2 diabetes</h1>
<section id="summary">
  <div class="aims">Clarify the genetic architecture of type 2 diabetes.</div>
  <div class="methods">WGS and genotyping.</div>
  <div class="targets">Japanese cohort</div>
  <div class="url"><a href="https://example.org/study">study site</a></div>
  <table class="dataset-table">
    <tr><th>Dataset ID</th><th>Criteria</th><th>Release Date</th><th>Type of Data</th></tr>
    <tr><td>JGAD000001</td><td>制限公開(Type I)</td><td>2020/1/5</td><td>WGS</td></tr>
    <tr><td>※2 JGAS000114</td><td>制限公開(Type I)</td><td>2020/3/1</td><td>SNP array</td></tr>
  </table>
  <p class="footer">※2 includes additional samples</p>
</section>
<section id="molecular-data">
  <div class="experiment">
    <h4>JGAD000001 NGS</h4>
    <table>
      <tr><th>Platform</th><td>Illumina HiSeq 2500</td></tr>
      <tr><th>Sample</th><td>100 cases</td><td>100 controls</td></tr>
    </table>
  </div>
</section>
<section id="data-provider">
  <table class="provider">
    <tr><th>Principal Investigator:</th><td>Taro Yamada</td></tr>
    <tr><th>Affiliation</th><td>Example University</td></tr>
  </table>
</section>
<section id="publications">
  <table>
    <tr><th>Title</th><th>DOI</th><th>Dataset ID</th></tr>
    <tr><td>A GWAS of T2D</td><td>10.1000/xyz</td><td>JGAD000001</td></tr>
  </table>
</section>
<section id="controlled-access-users">
  <table>
    <tr><th>Name</th><th>Affiliation</th><th>Country</th><th>Title</th><th>Dataset</th><th>Period</th></tr>
    <tr><td>Hanako Sato</td><td>Example Institute</td><td>Japan</td><td>Replication study</td><td>JGAD000001</td><td>2020/4/1-2023/3/31</td></tr>
  </table>
</section>
</body></html>`

const releasePage = `<html><body>
<section id="releases">
  <table>
    <tr><th>Version</th><th>Date</th><th>Note</th></tr>
    <tr><td>1</td><td>2020/1/5</td><td>Initial release</td></tr>
  </table>
</section>
</body></html>`

// ─────────────────────────────────────────────────────────────────────────────
// Fake backends
// ─────────────────────────────────────────────────────────────────────────────

// fakePortal serves the bilingual detail and release pages and counts
// upstream hits, so tests can prove the cache short-circuits refetches.
type fakePortal struct {
	srv  *httptest.Server
	hits int64
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{}
	pages := map[string]string{
		"/ja/hum0001-v1":         detailPage,
		"/en/hum0001-v1":         detailPage,
		"/ja/hum0001-v1/release": releasePage,
		"/en/hum0001-v1/release": releasePage,
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt64(&p.hits, 1)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePortal) Hits() int64 { return atomic.LoadInt64(&p.hits) }

// fakeRelation answers study-to-dataset expansion queries.
type fakeRelation struct {
	srv  *httptest.Server
	hits int64
}

func newFakeRelation(t *testing.T) *fakeRelation {
	t.Helper()
	rel := &fakeRelation{}
	rel.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studies/JGAS000114/datasets" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt64(&rel.hits, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"studyId":  "JGAS000114",
			"datasets": []string{"JGAD000002"},
		})
	}))
	t.Cleanup(rel.srv.Close)
	return rel
}

func (rel *fakeRelation) Hits() int64 { return atomic.LoadInt64(&rel.hits) }

// fakeSearch is a stateful stand-in for the search engine: create-only
// writes conflict on replay, reads return the optimistic-concurrency
// witness, and guarded updates bump it.
type fakeSearch struct {
	srv *httptest.Server

	mu      sync.Mutex
	seq     map[string]int64
	creates int
	updates int
}

func newFakeSearch(t *testing.T) *fakeSearch {
	t.Helper()
	fs := &fakeSearch{seq: map[string]int64{}}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSearch) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 3)
	if len(parts) != 3 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	key := parts[0] + "/" + parts[2]

	fs.mu.Lock()
	defer fs.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && parts[1] == "_create":
		fs.creates++
		if _, ok := fs.seq[key]; ok {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":{"type":"version_conflict_engine_exception"}}`)
			return
		}
		fs.seq[key] = 1
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created","_seq_no":1,"_primary_term":1}`)

	case r.Method == http.MethodGet && parts[1] == "_doc":
		n, ok := fs.seq[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"found":false}`)
			return
		}
		fmt.Fprintf(w, `{"_id":%q,"_seq_no":%d,"_primary_term":1,"found":true,"_source":{}}`, parts[2], n)

	case r.Method == http.MethodPut && parts[1] == "_doc":
		fs.updates++
		fs.seq[key]++
		fmt.Fprintf(w, `{"_seq_no":%d,"_primary_term":1}`, fs.seq[key])

	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (fs *fakeSearch) Has(index, id string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.seq[index+"/"+id]
	return ok
}

func (fs *fakeSearch) Counts() (creates, updates int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.creates, fs.updates
}

// ─────────────────────────────────────────────────────────────────────────────
// Config wiring
// ─────────────────────────────────────────────────────────────────────────────

func testConfig(t *testing.T, portal *fakePortal, rel *fakeRelation, search *fakeSearch) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{}
	cfg.Portal.BaseURLJa = portal.srv.URL + "/ja"
	cfg.Portal.BaseURLEn = portal.srv.URL + "/en"
	cfg.Fetch.CacheDir = filepath.Join(root, "cache")
	cfg.Fetch.RequestTimeout = 5 * time.Second
	cfg.Fetch.MaxRetries = 1
	cfg.Fetch.InitialBackoff = 10 * time.Millisecond
	cfg.Fetch.MaxBackoff = 50 * time.Millisecond
	cfg.Fetch.UserAgent = "humandbs-pipeline-integration"
	cfg.Results.Dir = filepath.Join(root, "results")
	cfg.Results.ConfigDir = filepath.Join(root, "config")
	cfg.Search.Addresses = []string{search.srv.URL}
	cfg.Search.ResearchIndex = "research"
	cfg.Search.ResearchVersionIndex = "research-version"
	cfg.Search.DatasetIndex = "dataset"
	cfg.Relation.Endpoint = rel.srv.URL
	cfg.Relation.CacheFile = filepath.Join(root, "relation-cache.json")
	cfg.Relation.RequestTimeout = 5 * time.Second
	cfg.Worker.Concurrency = 2
	cfg.Worker.Max = 4

	// Minimal curation config: the icd10 stage refuses to run without its
	// label master.
	require.NoError(t, runner.WriteJSONAtomic(
		filepath.Join(cfg.Results.ConfigDir, "icd10-labels.json"),
		map[string]interface{}{"labels": map[string]string{"E11": "Type 2 diabetes mellitus"}}))

	return cfg
}
