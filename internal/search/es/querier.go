package es

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/nbdc/humandbs-pipeline/internal/domain/auth"
	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// humIDAggSize bounds the humId sets collected by aggregation during
// authorization resolution and the two-phase research search.
const humIDAggSize = 10000

// PlatformSep joins a platform vendor and model into one filter value.
const PlatformSep = "||"

// ─────────────────────────────────────────────────────────────────────────────
// Parameters
// ─────────────────────────────────────────────────────────────────────────────

// Page is offset pagination.
type Page struct {
	Offset int
	Limit  int
}

// DatasetSearchParams carries every dataset filter the API accepts.  Empty
// slices and nil pointers mean "no constraint".
type DatasetSearchParams struct {
	Query string

	HumIDs          []string
	Criteria        []string
	TypeOfData      []string
	ReleaseDateFrom string
	ReleaseDateTo   string

	AssayTypes         []string
	Tissues            []string
	Populations        []string
	FileTypes          []string
	HealthStatus       []string
	Sex                []string
	AgeGroups          []string
	LibraryKits        []string
	ReadTypes          []string
	ReferenceGenomes   []string
	ProcessedDataTypes []string
	CellLines          []string

	SubjectCountMin *float64
	SubjectCountMax *float64
	ReadLengthMin   *float64
	ReadLengthMax   *float64
	DataVolumeGbMin *float64
	DataVolumeGbMax *float64

	// Platforms are "vendor||model" tuples.
	Platforms []string

	IsTumor          *bool
	HasPhenotypeData *bool

	Diseases     []string
	DiseaseICD10 []string
	PolicyIDs    []string

	// Sort is "relevance", "releaseDate" or "datasetId".
	Sort string
	Page Page

	IncludeFacets  bool
	IncludeDeleted bool
}

// hasFilters reports whether any dataset-level constraint is set; the
// research search only runs its first phase when one is.
func (p *DatasetSearchParams) hasFilters() bool {
	if p == nil {
		return false
	}
	for _, vs := range [][]string{
		p.Criteria, p.TypeOfData, p.AssayTypes, p.Tissues, p.Populations,
		p.FileTypes, p.HealthStatus, p.Sex, p.AgeGroups, p.LibraryKits,
		p.ReadTypes, p.ReferenceGenomes, p.ProcessedDataTypes, p.CellLines,
		p.Platforms, p.Diseases, p.DiseaseICD10, p.PolicyIDs,
	} {
		if len(vs) > 0 {
			return true
		}
	}
	if p.Query != "" || p.ReleaseDateFrom != "" || p.ReleaseDateTo != "" {
		return true
	}
	return p.SubjectCountMin != nil || p.SubjectCountMax != nil ||
		p.ReadLengthMin != nil || p.ReadLengthMax != nil ||
		p.DataVolumeGbMin != nil || p.DataVolumeGbMax != nil ||
		p.IsTumor != nil || p.HasPhenotypeData != nil
}

// ResearchSearchParams carries the research-level filters plus an optional
// dataset filter block driving the first search phase.
type ResearchSearchParams struct {
	Query  string
	HumIDs []string

	Statuses []research.Status

	FirstReleaseDateFrom string
	FirstReleaseDateTo   string
	LastReleaseDateFrom  string
	LastReleaseDateTo    string

	Dataset *DatasetSearchParams

	Lang bilingual.Lang
	Page Page

	IncludeDeleted bool
}

// ─────────────────────────────────────────────────────────────────────────────
// Results
// ─────────────────────────────────────────────────────────────────────────────

// DatasetPage is one page of dataset search results.  Total is the distinct
// dataset count, not the raw hit count under collapsing.
type DatasetPage struct {
	Total    int64             `json:"total"`
	Datasets []dataset.Dataset `json:"datasets"`
	Facets   Facets            `json:"facets,omitempty"`
}

// DatasetSummary is the per-dataset slice of a research summary.
type DatasetSummary struct {
	DatasetID   string   `json:"datasetId"`
	Version     string   `json:"version"`
	ReleaseDate *string  `json:"releaseDate"`
	Criteria    []string `json:"criteria"`
	TypeOfData  string   `json:"typeOfData"`
}

// VersionSummary is the per-version slice of a research summary.
type VersionSummary struct {
	HumVersionID string           `json:"humVersionId"`
	Version      int              `json:"version"`
	ReleaseDate  *string          `json:"versionReleaseDate"`
	Datasets     []DatasetSummary `json:"datasets"`
}

// ResearchSummary is the language-projected research result.  Bilingual
// fields are flattened into the requested language with fallback to the
// other side.
type ResearchSummary struct {
	HumID            string           `json:"humId"`
	Title            string           `json:"title"`
	URL              string           `json:"url"`
	Aims             string           `json:"aims"`
	Methods          string           `json:"methods"`
	Targets          string           `json:"targets"`
	Status           research.Status  `json:"status"`
	FirstReleaseDate *string          `json:"firstReleaseDate"`
	LastReleaseDate  *string          `json:"lastReleaseDate"`
	Versions         []VersionSummary `json:"versions"`
}

// ResearchPage is one page of research search results.
type ResearchPage struct {
	Total      int64             `json:"total"`
	Researches []ResearchSummary `json:"researches"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Filter tables
// ─────────────────────────────────────────────────────────────────────────────

// nestedTermFilters maps each multi-value parameter to its nested keyword
// field under experiments.searchable.
var nestedTermFilters = []struct {
	field  string
	values func(*DatasetSearchParams) []string
}{
	{"experiments.searchable.assayType", func(p *DatasetSearchParams) []string { return p.AssayTypes }},
	{"experiments.searchable.tissues", func(p *DatasetSearchParams) []string { return p.Tissues }},
	{"experiments.searchable.population", func(p *DatasetSearchParams) []string { return p.Populations }},
	{"experiments.searchable.fileTypes", func(p *DatasetSearchParams) []string { return p.FileTypes }},
	{"experiments.searchable.healthStatus", func(p *DatasetSearchParams) []string { return p.HealthStatus }},
	{"experiments.searchable.sex", func(p *DatasetSearchParams) []string { return p.Sex }},
	{"experiments.searchable.ageGroup", func(p *DatasetSearchParams) []string { return p.AgeGroups }},
	{"experiments.searchable.libraryKits", func(p *DatasetSearchParams) []string { return p.LibraryKits }},
	{"experiments.searchable.readType", func(p *DatasetSearchParams) []string { return p.ReadTypes }},
	{"experiments.searchable.referenceGenome", func(p *DatasetSearchParams) []string { return p.ReferenceGenomes }},
	{"experiments.searchable.processedDataTypes", func(p *DatasetSearchParams) []string { return p.ProcessedDataTypes }},
	{"experiments.searchable.cellLine", func(p *DatasetSearchParams) []string { return p.CellLines }},
}

// nestedRangeFilters maps each bounded parameter pair to its nested numeric
// field.
var nestedRangeFilters = []struct {
	field string
	gte   func(*DatasetSearchParams) *float64
	lte   func(*DatasetSearchParams) *float64
}{
	{"experiments.searchable.subjectCount",
		func(p *DatasetSearchParams) *float64 { return p.SubjectCountMin },
		func(p *DatasetSearchParams) *float64 { return p.SubjectCountMax }},
	{"experiments.searchable.readLength",
		func(p *DatasetSearchParams) *float64 { return p.ReadLengthMin },
		func(p *DatasetSearchParams) *float64 { return p.ReadLengthMax }},
	{"experiments.searchable.dataVolumeGb",
		func(p *DatasetSearchParams) *float64 { return p.DataVolumeGbMin },
		func(p *DatasetSearchParams) *float64 { return p.DataVolumeGbMax }},
}

// ─────────────────────────────────────────────────────────────────────────────
// Querier
// ─────────────────────────────────────────────────────────────────────────────

// Querier answers the two search entry points.  Authorization is resolved
// against the research index before any dataset query runs; an unauthorized
// or empty-visibility request returns an empty page without touching the
// dataset index.
type Querier struct {
	client  *Client
	metrics *prometheus.Metrics
	logger  logging.Logger
}

// NewQuerier builds a Querier.
func NewQuerier(client *Client, metrics *prometheus.Metrics, logger logging.Logger) *Querier {
	return &Querier{client: client, metrics: metrics, logger: logger}
}

// SearchDatasets answers the dataset search for one principal.
func (q *Querier) SearchDatasets(ctx context.Context, p DatasetSearchParams, principal auth.Principal) (*DatasetPage, error) {
	start := time.Now()
	defer func() {
		q.metrics.SearchDuration.WithLabelValues("datasets").Observe(time.Since(start).Seconds())
	}()

	humIDs, err := q.accessibleHumIDs(ctx, principal, p.HumIDs, p.IncludeDeleted)
	if err != nil {
		q.metrics.SearchRequests.WithLabelValues("datasets", "error").Inc()
		return nil, err
	}
	if len(humIDs) == 0 {
		q.metrics.SearchRequests.WithLabelValues("datasets", "empty").Inc()
		return &DatasetPage{Datasets: []dataset.Dataset{}}, nil
	}

	body := q.datasetBody(&p, humIDs)
	resp, err := q.search(ctx, q.client.indices.Dataset, body)
	if err != nil {
		q.metrics.SearchRequests.WithLabelValues("datasets", "error").Inc()
		return nil, err
	}

	page := &DatasetPage{Datasets: make([]dataset.Dataset, 0, len(resp.Hits.Hits))}
	for _, hit := range resp.Hits.Hits {
		// The collapse representative is picked by the main sort; the
		// newest emission of the group is carried in the "top" inner hits.
		src := hit.Source
		if top, ok := hit.InnerHits[collapseInnerName]; ok && len(top.Hits.Hits) > 0 {
			src = top.Hits.Hits[0].Source
		}
		var d dataset.Dataset
		if err := json.Unmarshal(src, &d); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode dataset hit")
		}
		page.Datasets = append(page.Datasets, d)
	}

	page.Total = int64(len(page.Datasets))
	if raw, ok := resp.Aggregations["total"]; ok {
		var card struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &card); err == nil {
			page.Total = card.Value
		}
	}

	if p.IncludeFacets {
		facets, err := parseFacets(resp.Aggregations)
		if err != nil {
			return nil, err
		}
		page.Facets = facets
	}

	q.metrics.SearchRequests.WithLabelValues("datasets", "ok").Inc()
	return page, nil
}

// SearchResearches answers the research search.  When dataset filters are
// present the dataset index is consulted first, in aggregation-only mode, to
// restrict the candidate humId set.
func (q *Querier) SearchResearches(ctx context.Context, p ResearchSearchParams, principal auth.Principal) (*ResearchPage, error) {
	start := time.Now()
	defer func() {
		q.metrics.SearchDuration.WithLabelValues("researches").Observe(time.Since(start).Seconds())
	}()

	humIDs := p.HumIDs
	if p.Dataset.hasFilters() {
		matched, err := q.datasetPhaseHumIDs(ctx, p.Dataset)
		if err != nil {
			q.metrics.SearchRequests.WithLabelValues("researches", "error").Inc()
			return nil, err
		}
		if len(matched) == 0 {
			q.metrics.SearchRequests.WithLabelValues("researches", "empty").Inc()
			return &ResearchPage{Researches: []ResearchSummary{}}, nil
		}
		humIDs = intersect(humIDs, matched)
		if len(humIDs) == 0 {
			q.metrics.SearchRequests.WithLabelValues("researches", "empty").Inc()
			return &ResearchPage{Researches: []ResearchSummary{}}, nil
		}
	}

	body := q.researchBody(&p, principal, humIDs)
	resp, err := q.search(ctx, q.client.indices.Research, body)
	if err != nil {
		q.metrics.SearchRequests.WithLabelValues("researches", "error").Inc()
		return nil, err
	}

	page := &ResearchPage{
		Total:      resp.Hits.Total.Value,
		Researches: make([]ResearchSummary, 0, len(resp.Hits.Hits)),
	}
	for _, hit := range resp.Hits.Hits {
		var res research.Research
		if err := json.Unmarshal(hit.Source, &res); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode research hit")
		}
		summary, err := q.projectResearch(ctx, res, p.Lang)
		if err != nil {
			return nil, err
		}
		page.Researches = append(page.Researches, *summary)
	}

	q.metrics.SearchRequests.WithLabelValues("researches", "ok").Inc()
	return page, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Authorization
// ─────────────────────────────────────────────────────────────────────────────

// accessibleHumIDs resolves the humIds the principal may see, intersected
// with an explicit humId filter when present.  An empty result means the
// caller must answer with an empty page and skip the dataset index entirely.
func (q *Querier) accessibleHumIDs(ctx context.Context, principal auth.Principal, requested []string, includeDeleted bool) ([]string, error) {
	filter := []Query{visibilityQuery(principal, includeDeleted)}
	if len(requested) > 0 {
		filter = append(filter, Terms{Field: "humId", Values: requested})
	}

	size := 0
	body := Body{
		Query: Bool{Filter: filter},
		Size:  &size,
		Aggs:  map[string]Agg{"humIds": TermsAgg{Field: "humId", Size: humIDAggSize}},
	}
	resp, err := q.search(ctx, q.client.indices.Research, body)
	if err != nil {
		return nil, err
	}
	return termsAggKeys(resp.Aggregations, "humIds")
}

// visibilityQuery renders the research-level visibility rule for a
// principal: published for anonymous, published-or-owned for authenticated,
// status-set membership for admins.
func visibilityQuery(principal auth.Principal, includeDeleted bool) Query {
	if principal.Admin {
		statuses := principal.VisibleStatuses(includeDeleted)
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		return Terms{Field: "status", Values: values}
	}
	if principal.Authenticated() {
		return Bool{
			Should: []Query{
				Term{Field: "status", Value: string(research.StatusPublished)},
				Bool{Filter: []Query{
					Term{Field: "uids", Value: principal.UserID},
					Bool{MustNot: []Query{Term{Field: "status", Value: string(research.StatusDeleted)}}},
				}},
			},
			MinimumShouldMatch: 1,
		}
	}
	return Term{Field: "status", Value: string(research.StatusPublished)}
}

// ─────────────────────────────────────────────────────────────────────────────
// Dataset query construction
// ─────────────────────────────────────────────────────────────────────────────

// datasetBody builds the full dataset search request: table-driven filters,
// the platform special case, collapse by datasetId with the newest emission
// on top, the sort ladder and the cardinality total.
func (q *Querier) datasetBody(p *DatasetSearchParams, humIDs []string) Body {
	root := datasetFilterQuery(p, humIDs)

	limit := p.Page.Limit
	if limit <= 0 {
		limit = 20
	}

	body := Body{
		Query: root,
		From:  p.Page.Offset,
		Size:  &limit,
		Sort:  datasetSort(p),
		Collapse: &Collapse{
			Field: "datasetId",
			// version is a keyword ("v9" > "v10"); the numeric ordinal
			// carries the real order.
			InnerSort: []Sort{
				{Field: "versionNumber", Desc: true},
				{Field: "releaseDate", Desc: true, Missing: "_last"},
			},
		},
		Aggs: map[string]Agg{"total": CardinalityAgg{Field: "datasetId"}},
	}

	if p.IncludeFacets {
		for name, agg := range datasetFacetAggs() {
			body.Aggs[name] = agg
		}
	}
	return body
}

// datasetFilterQuery composes the filter tables from the parameter block.
// humIDs is the already-authorized set; the research search's first phase
// passes none because visibility is enforced in its second phase.
func datasetFilterQuery(p *DatasetSearchParams, humIDs []string) Query {
	var filter []Query
	if len(humIDs) > 0 {
		filter = append(filter, Terms{Field: "humId", Values: humIDs})
	}

	if len(p.Criteria) > 0 {
		filter = append(filter, Terms{Field: "criteria", Values: p.Criteria})
	}

	// typeOfData is a partial match across both language sides.
	for _, v := range p.TypeOfData {
		pattern := "*" + v + "*"
		filter = append(filter, Bool{
			Should: []Query{
				Wildcard{Field: "typeOfData.ja", Value: pattern},
				Wildcard{Field: "typeOfData.en", Value: pattern},
			},
			MinimumShouldMatch: 1,
		})
	}

	if p.ReleaseDateFrom != "" || p.ReleaseDateTo != "" {
		r := Range{Field: "releaseDate"}
		if p.ReleaseDateFrom != "" {
			r.GTE = p.ReleaseDateFrom
		}
		if p.ReleaseDateTo != "" {
			r.LTE = p.ReleaseDateTo
		}
		filter = append(filter, r)
	}

	for _, spec := range nestedTermFilters {
		if values := spec.values(p); len(values) > 0 {
			filter = append(filter, Nested{
				Path:  "experiments",
				Query: Terms{Field: spec.field, Values: values},
			})
		}
	}

	for _, spec := range nestedRangeFilters {
		gte, lte := spec.gte(p), spec.lte(p)
		if gte == nil && lte == nil {
			continue
		}
		r := Range{Field: spec.field}
		if gte != nil {
			r.GTE = *gte
		}
		if lte != nil {
			r.LTE = *lte
		}
		filter = append(filter, Nested{Path: "experiments", Query: r})
	}

	if len(p.Platforms) > 0 {
		filter = append(filter, platformQuery(p.Platforms))
	}

	if p.IsTumor != nil {
		filter = append(filter, Nested{
			Path:  "experiments",
			Query: Term{Field: "experiments.searchable.isTumor", Value: *p.IsTumor},
		})
	}
	if p.HasPhenotypeData != nil {
		filter = append(filter, Nested{
			Path:  "experiments",
			Query: Term{Field: "experiments.searchable.hasPhenotypeData", Value: *p.HasPhenotypeData},
		})
	}

	for _, v := range p.Diseases {
		filter = append(filter, DoubleNested(
			"experiments", "experiments.searchable.diseases",
			Wildcard{Field: "experiments.searchable.diseases.label", Value: "*" + v + "*"},
		))
	}
	for _, v := range p.DiseaseICD10 {
		filter = append(filter, DoubleNested(
			"experiments", "experiments.searchable.diseases",
			Prefix{Field: "experiments.searchable.diseases.icd10", Value: v, CaseInsensitive: true},
		))
	}
	if len(p.PolicyIDs) > 0 {
		filter = append(filter, DoubleNested(
			"experiments", "experiments.searchable.policies",
			Terms{Field: "experiments.searchable.policies.id", Values: p.PolicyIDs},
		))
	}

	root := Bool{Filter: filter}
	if p.Query != "" {
		root.Must = []Query{SimpleQueryString{Query: p.Query}}
	}
	return root
}

// platformQuery renders the platform tuples: both halves present means the
// experiment must match vendor AND model; a missing half degrades to OR.
// The whole clause is a should across the requested tuples.
func platformQuery(platforms []string) Query {
	var should []Query
	for _, raw := range platforms {
		vendor, model, both := splitPlatform(raw)
		terms := []Query{}
		if vendor != "" {
			terms = append(terms, Term{Field: "experiments.searchable.platformVendor", Value: vendor})
		}
		if model != "" {
			terms = append(terms, Term{Field: "experiments.searchable.platformModel", Value: model})
		}
		if len(terms) == 0 {
			continue
		}
		inner := Bool{}
		if both {
			inner.Must = terms
		} else {
			inner.Should = terms
			inner.MinimumShouldMatch = 1
		}
		should = append(should, Nested{Path: "experiments", Query: inner})
	}
	return Bool{Should: should, MinimumShouldMatch: 1}
}

func splitPlatform(raw string) (vendor, model string, both bool) {
	parts := strings.SplitN(raw, PlatformSep, 2)
	vendor = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	return vendor, model, vendor != "" && model != ""
}

// datasetSort renders the sort ladder: relevance only when a query is
// present, else releaseDate newest-first with absent dates last, else the
// stable datasetId order.  datasetId is always the final tiebreak.
func datasetSort(p *DatasetSearchParams) []Sort {
	switch {
	case p.Sort == "relevance" && p.Query != "":
		return []Sort{ScoreSort(), {Field: "datasetId"}}
	case p.Sort == "releaseDate":
		return []Sort{{Field: "releaseDate", Desc: true, Missing: "_last"}, {Field: "datasetId"}}
	default:
		return []Sort{{Field: "datasetId"}}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Research two-phase search
// ─────────────────────────────────────────────────────────────────────────────

// datasetPhaseHumIDs runs the dataset index in aggregation-only mode and
// collects the humIds of matching datasets.
func (q *Querier) datasetPhaseHumIDs(ctx context.Context, p *DatasetSearchParams) ([]string, error) {
	root := datasetFilterQuery(p, nil)

	size := 0
	body := Body{
		Query: root,
		Size:  &size,
		Aggs:  map[string]Agg{"humIds": TermsAgg{Field: "humId", Size: humIDAggSize}},
	}
	resp, err := q.search(ctx, q.client.indices.Dataset, body)
	if err != nil {
		return nil, err
	}
	return termsAggKeys(resp.Aggregations, "humIds")
}

// researchBody builds the second-phase research query.
func (q *Querier) researchBody(p *ResearchSearchParams, principal auth.Principal, humIDs []string) Body {
	filter := []Query{visibilityQuery(principal, p.IncludeDeleted)}
	if len(humIDs) > 0 {
		filter = append(filter, Terms{Field: "humId", Values: humIDs})
	}
	if len(p.Statuses) > 0 {
		values := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			values[i] = string(s)
		}
		filter = append(filter, Terms{Field: "status", Values: values})
	}
	for _, r := range []struct {
		field    string
		from, to string
	}{
		{"firstReleaseDate", p.FirstReleaseDateFrom, p.FirstReleaseDateTo},
		{"lastReleaseDate", p.LastReleaseDateFrom, p.LastReleaseDateTo},
	} {
		if r.from == "" && r.to == "" {
			continue
		}
		rq := Range{Field: r.field}
		if r.from != "" {
			rq.GTE = r.from
		}
		if r.to != "" {
			rq.LTE = r.to
		}
		filter = append(filter, rq)
	}

	root := Bool{Filter: filter}
	if p.Query != "" {
		root.Must = []Query{SimpleQueryString{
			Query: p.Query,
			Fields: []string{
				"title.ja", "title.en",
				"summary.aims.ja.text", "summary.aims.en.text",
				"summary.methods.ja.text", "summary.methods.en.text",
				"summary.targets.ja.text", "summary.targets.en.text",
			},
		}}
	}

	limit := p.Page.Limit
	if limit <= 0 {
		limit = 20
	}
	sorts := []Sort{{Field: "humId"}}
	if p.Query != "" {
		sorts = []Sort{ScoreSort(), {Field: "humId"}}
	}
	return Body{Query: root, From: p.Page.Offset, Size: &limit, Sort: sorts}
}

// projectResearch expands one research hit into its summary: multi-get the
// referenced versions, then the datasets each version points at, and flatten
// every bilingual field into the requested language.
func (q *Querier) projectResearch(ctx context.Context, res research.Research, lang bilingual.Lang) (*ResearchSummary, error) {
	if lang != bilingual.Ja && lang != bilingual.En {
		lang = bilingual.En
	}

	summary := &ResearchSummary{
		HumID:            res.HumID,
		Title:            res.Title.Pick(lang),
		URL:              res.URL.Pick(lang),
		Aims:             res.Summary.Aims.Pick(lang),
		Methods:          res.Summary.Methods.Pick(lang),
		Targets:          res.Summary.Targets.Pick(lang),
		Status:           res.Status,
		FirstReleaseDate: res.FirstReleaseDate,
		LastReleaseDate:  res.LastReleaseDate,
		Versions:         []VersionSummary{},
	}
	if len(res.VersionIDs) == 0 {
		return summary, nil
	}

	versionDocs, err := q.mget(ctx, q.client.indices.ResearchVersion, res.VersionIDs)
	if err != nil {
		return nil, err
	}

	var datasetIDs []string
	versions := make([]research.Version, 0, len(versionDocs))
	for _, raw := range versionDocs {
		var v research.Version
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode research version")
		}
		versions = append(versions, v)
		for _, ref := range v.Datasets {
			datasetIDs = append(datasetIDs, ref.DatasetID+"-"+ref.Version)
		}
	}

	datasets := map[string]dataset.Dataset{}
	if len(datasetIDs) > 0 {
		datasetDocs, err := q.mget(ctx, q.client.indices.Dataset, datasetIDs)
		if err != nil {
			return nil, err
		}
		for _, raw := range datasetDocs {
			var d dataset.Dataset
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode dataset")
			}
			datasets[d.DatasetID+"-"+d.Version] = d
		}
	}

	for _, v := range versions {
		vs := VersionSummary{
			HumVersionID: v.HumVersionID,
			Version:      v.Version,
			ReleaseDate:  v.VersionReleaseDate,
			Datasets:     make([]DatasetSummary, 0, len(v.Datasets)),
		}
		for _, ref := range v.Datasets {
			d, ok := datasets[ref.DatasetID+"-"+ref.Version]
			if !ok {
				q.logger.Warn("research version references a missing dataset",
					logging.String("hum_version_id", v.HumVersionID),
					logging.String("dataset_id", ref.DatasetID),
					logging.String("version", ref.Version))
				continue
			}
			criteria := make([]string, len(d.Criteria))
			for i, c := range d.Criteria {
				criteria[i] = string(c)
			}
			vs.Datasets = append(vs.Datasets, DatasetSummary{
				DatasetID:   d.DatasetID,
				Version:     d.Version,
				ReleaseDate: d.ReleaseDate,
				Criteria:    criteria,
				TypeOfData:  d.TypeOfData.Pick(lang),
			})
		}
		summary.Versions = append(summary.Versions, vs)
	}
	return summary, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine plumbing
// ─────────────────────────────────────────────────────────────────────────────

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID          string              `json:"_id"`
			SeqNo       int64               `json:"_seq_no"`
			PrimaryTerm int64               `json:"_primary_term"`
			Source      json.RawMessage     `json:"_source"`
			InnerHits   map[string]innerHit `json:"inner_hits"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type innerHit struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (q *Querier) search(ctx context.Context, index string, body Body) (*searchResponse, error) {
	raw, err := json.Marshal(body.Render())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: marshal request body")
	}

	req := opensearchapi.SearchRequest{
		Index:          []string{index},
		Body:           bytes.NewReader(raw),
		TrackTotalHits: true,
	}
	resp, err := req.Do(ctx, q.client.os)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIndexIO, "search: search request")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, indexError(resp, "search")
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode response")
	}
	return &out, nil
}

// mget fetches documents by id, skipping misses.
func (q *Querier) mget(ctx context.Context, index string, ids []string) ([]json.RawMessage, error) {
	raw, err := json.Marshal(map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: marshal mget body")
	}

	req := opensearchapi.MgetRequest{Index: index, Body: bytes.NewReader(raw)}
	resp, err := req.Do(ctx, q.client.os)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIndexIO, "search: mget request")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, indexError(resp, "mget")
	}

	var out struct {
		Docs []struct {
			Found  bool            `json:"found"`
			Source json.RawMessage `json:"_source"`
		} `json:"docs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode mget response")
	}

	docs := make([]json.RawMessage, 0, len(out.Docs))
	for _, d := range out.Docs {
		if d.Found {
			docs = append(docs, d.Source)
		}
	}
	return docs, nil
}

// termsAggKeys extracts the bucket keys of one terms aggregation.
func termsAggKeys(aggs map[string]json.RawMessage, name string) ([]string, error) {
	raw, ok := aggs[name]
	if !ok {
		return nil, nil
	}
	var agg struct {
		Buckets []struct {
			Key string `json:"key"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "search: decode terms aggregation")
	}
	keys := make([]string, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		keys = append(keys, b.Key)
	}
	return keys, nil
}

// intersect returns the ordered intersection of a and b; a nil a means "no
// constraint" and passes b through.
func intersect(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}
