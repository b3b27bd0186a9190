// Package facet canonicalizes the searchable facet values of structured
// datasets against editable TSV mapping tables, one file per facet field.
// Each table row is "raw value<TAB>canonical value<TAB>notes"; the canonical
// column may hold the pending sentinel meaning "use the raw value as-is".
// Values never seen before are appended to the table as pending entries so
// curators can fill them in later.
package facet

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Pending marks a table row whose canonical value has not been curated yet;
// the raw value is used as-is.
const Pending = "__PENDING__"

// Fields lists every facet field with a mapping table.
var Fields = []string{
	"assayType", "tissue", "population", "platformVendor", "platformModel",
	"fileType", "healthStatus", "sex", "ageGroup", "libraryKit", "readType",
	"referenceGenome", "processedDataType", "cellLine",
}

type entry struct {
	Canonical string
	Notes     string
}

type table struct {
	entries map[string]entry
	// appended collects raw values first seen during this run.
	appended []string
}

// Normalizer rewrites searchable facet values through the per-field tables.
type Normalizer struct {
	dir    string
	logger logging.Logger

	mu     sync.RWMutex
	tables map[string]*table

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewNormalizer loads every field table from dir (missing files yield empty
// tables).
func NewNormalizer(dir string, logger logging.Logger) (*Normalizer, error) {
	n := &Normalizer{
		dir:    dir,
		logger: logger.Named("facet"),
		tables: map[string]*table{},
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "failed to create facet-mapping directory")
	}
	for _, field := range Fields {
		tbl, err := loadTable(n.path(field))
		if err != nil {
			return nil, err
		}
		n.tables[field] = tbl
	}
	return n, nil
}

func (n *Normalizer) path(field string) string {
	return filepath.Join(n.dir, field+".tsv")
}

func loadTable(path string) (*table, error) {
	tbl := &table{entries: map[string]entry{}}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tbl, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "failed to open facet mapping table")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.SplitN(line, "\t", 3)
		if len(cols) < 2 {
			return nil, errors.New(errors.ErrCodeConfig, "malformed facet mapping row").WithDetail(line)
		}
		e := entry{Canonical: cols[1]}
		if len(cols) == 3 {
			e.Notes = cols[2]
		}
		tbl.entries[cols[0]] = e
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "failed to read facet mapping table").WithDetail(path)
	}
	return tbl, nil
}

// Canonical maps one raw value through a field's table.  Unknown values are
// recorded as pending and returned as-is.
func (n *Normalizer) Canonical(field, raw string) string {
	if raw == "" {
		return raw
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	tbl, ok := n.tables[field]
	if !ok {
		return raw
	}
	e, known := tbl.entries[raw]
	if !known {
		tbl.entries[raw] = entry{Canonical: Pending}
		tbl.appended = append(tbl.appended, raw)
		return raw
	}
	if e.Canonical == Pending || e.Canonical == "" {
		return raw
	}
	return e.Canonical
}

// Apply rewrites every mapped facet field of a dataset's searchable blocks
// in place.  Idempotent: canonical values map to themselves once curated.
func (n *Normalizer) Apply(ds *dataset.Dataset) {
	for _, exp := range ds.Experiments {
		s := exp.Searchable
		if s == nil {
			continue
		}
		canonOpt(n, "assayType", &s.AssayType)
		canonList(n, "tissue", s.Tissues)
		canonOpt(n, "population", &s.Population)
		canonOpt(n, "platformVendor", &s.PlatformVendor)
		canonOpt(n, "platformModel", &s.PlatformModel)
		canonList(n, "fileType", s.FileTypes)
		canonList(n, "healthStatus", s.HealthStatus)
		canonList(n, "sex", s.Sex)
		canonList(n, "ageGroup", s.AgeGroup)
		canonList(n, "libraryKit", s.LibraryKits)
		canonOpt(n, "readType", &s.ReadType)
		canonOpt(n, "referenceGenome", &s.ReferenceGenome)
		canonList(n, "processedDataType", s.ProcessedDataTypes)
		canonOpt(n, "cellLine", &s.CellLine)
	}
}

func canonOpt(n *Normalizer, field string, v **string) {
	if *v == nil {
		return
	}
	c := n.Canonical(field, **v)
	if c != **v {
		*v = &c
	}
}

func canonList(n *Normalizer, field string, vs []string) {
	for i, v := range vs {
		if c := n.Canonical(field, v); c != v {
			vs[i] = c
		}
	}
}

// Save rewrites every table that gained pending entries during the run.
// Rows are written sorted by raw value for stable diffs.
func (n *Normalizer) Save() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, field := range Fields {
		tbl := n.tables[field]
		if len(tbl.appended) == 0 {
			continue
		}
		raws := make([]string, 0, len(tbl.entries))
		for raw := range tbl.entries {
			raws = append(raws, raw)
		}
		sort.Strings(raws)

		var sb strings.Builder
		for _, raw := range raws {
			e := tbl.entries[raw]
			fmt.Fprintf(&sb, "%s\t%s\t%s\n", raw, e.Canonical, e.Notes)
		}
		if err := writeFileAtomic(n.path(field), []byte(sb.String())); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfig, "failed to rewrite facet mapping table").WithDetail(field)
		}
		tbl.appended = nil
		n.logger.Info("facet mapping table updated", logging.String("field", field))
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Watch reloads tables when a curator edits them while a long-lived process
// (the API server) is running.  Stop with Close.
func (n *Normalizer) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfig, "failed to create facet table watcher")
	}
	if err := w.Add(n.dir); err != nil {
		w.Close()
		return errors.Wrap(err, errors.ErrCodeConfig, "failed to watch facet-mapping directory")
	}
	n.watcher = w
	n.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				field := strings.TrimSuffix(filepath.Base(ev.Name), ".tsv")
				n.reload(field)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				n.logger.Warn("facet table watcher error", logging.Err(err))
			case <-n.done:
				return
			}
		}
	}()
	return nil
}

func (n *Normalizer) reload(field string) {
	known := false
	for _, f := range Fields {
		if f == field {
			known = true
			break
		}
	}
	if !known {
		return
	}
	tbl, err := loadTable(n.path(field))
	if err != nil {
		n.logger.Warn("facet table reload failed", logging.String("field", field), logging.Err(err))
		return
	}
	n.mu.Lock()
	n.tables[field] = tbl
	n.mu.Unlock()
	n.logger.Info("facet table reloaded", logging.String("field", field))
}

// Close stops the watcher if one is running.
func (n *Normalizer) Close() error {
	if n.watcher != nil {
		close(n.done)
		return n.watcher.Close()
	}
	return nil
}
