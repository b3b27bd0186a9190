package es

// The query DSL is modelled as small typed builders instead of free-form
// nested maps.  Each builder renders itself to the engine's JSON shape via
// Map(); composition happens in Go types so the filter tables in querier.go
// stay declarative.

// Query is one engine query clause.
type Query interface {
	Map() map[string]interface{}
}

// ─────────────────────────────────────────────────────────────────────────────
// Leaf queries
// ─────────────────────────────────────────────────────────────────────────────

// Term is an exact single-value match.
type Term struct {
	Field string
	Value interface{}
}

func (q Term) Map() map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{q.Field: q.Value}}
}

// Terms is an exact any-of match.
type Terms struct {
	Field  string
	Values []string
}

func (q Terms) Map() map[string]interface{} {
	return map[string]interface{}{"terms": map[string]interface{}{q.Field: q.Values}}
}

// Range is a bounded comparison; nil bounds are omitted.
type Range struct {
	Field string
	GTE   interface{}
	LTE   interface{}
}

func (q Range) Map() map[string]interface{} {
	bounds := map[string]interface{}{}
	if q.GTE != nil {
		bounds["gte"] = q.GTE
	}
	if q.LTE != nil {
		bounds["lte"] = q.LTE
	}
	return map[string]interface{}{"range": map[string]interface{}{q.Field: bounds}}
}

// Wildcard is a pattern match. CaseInsensitive maps to the engine flag.
type Wildcard struct {
	Field           string
	Value           string
	CaseInsensitive bool
}

func (q Wildcard) Map() map[string]interface{} {
	inner := map[string]interface{}{"value": q.Value}
	if q.CaseInsensitive {
		inner["case_insensitive"] = true
	}
	return map[string]interface{}{"wildcard": map[string]interface{}{q.Field: inner}}
}

// Prefix is a leading-string match.
type Prefix struct {
	Field           string
	Value           string
	CaseInsensitive bool
}

func (q Prefix) Map() map[string]interface{} {
	inner := map[string]interface{}{"value": q.Value}
	if q.CaseInsensitive {
		inner["case_insensitive"] = true
	}
	return map[string]interface{}{"prefix": map[string]interface{}{q.Field: inner}}
}

// SimpleQueryString is the free-text query used for the research full-text
// search and the dataset relevance query.
type SimpleQueryString struct {
	Query  string
	Fields []string
}

func (q SimpleQueryString) Map() map[string]interface{} {
	inner := map[string]interface{}{"query": q.Query, "default_operator": "and"}
	if len(q.Fields) > 0 {
		inner["fields"] = q.Fields
	}
	return map[string]interface{}{"simple_query_string": inner}
}

// MatchAll matches every document.
type MatchAll struct{}

func (MatchAll) Map() map[string]interface{} {
	return map[string]interface{}{"match_all": map[string]interface{}{}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Compound queries
// ─────────────────────────────────────────────────────────────────────────────

// Bool combines clauses.  Empty slots are omitted from the rendered query.
type Bool struct {
	Must               []Query
	Should             []Query
	MustNot            []Query
	Filter             []Query
	MinimumShouldMatch int
}

func renderAll(qs []Query) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Map())
	}
	return out
}

func (q Bool) Map() map[string]interface{} {
	inner := map[string]interface{}{}
	if len(q.Must) > 0 {
		inner["must"] = renderAll(q.Must)
	}
	if len(q.Should) > 0 {
		inner["should"] = renderAll(q.Should)
	}
	if len(q.MustNot) > 0 {
		inner["must_not"] = renderAll(q.MustNot)
	}
	if len(q.Filter) > 0 {
		inner["filter"] = renderAll(q.Filter)
	}
	if q.MinimumShouldMatch > 0 {
		inner["minimum_should_match"] = q.MinimumShouldMatch
	}
	return map[string]interface{}{"bool": inner}
}

// Nested scopes a query to one nested path.
type Nested struct {
	Path  string
	Query Query
}

func (q Nested) Map() map[string]interface{} {
	return map[string]interface{}{"nested": map[string]interface{}{
		"path":  q.Path,
		"query": q.Query.Map(),
	}}
}

// DoubleNested scopes a query two nesting levels deep (experiments →
// diseases/policies).
func DoubleNested(outer, inner string, q Query) Nested {
	return Nested{Path: outer, Query: Nested{Path: inner, Query: q}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Sorting
// ─────────────────────────────────────────────────────────────────────────────

// Sort is one sort key.  Missing controls placement of absent values.
type Sort struct {
	Field   string
	Desc    bool
	Missing string // "_first" | "_last" | ""
}

func (s Sort) Map() map[string]interface{} {
	order := "asc"
	if s.Desc {
		order = "desc"
	}
	inner := map[string]interface{}{"order": order}
	if s.Missing != "" {
		inner["missing"] = s.Missing
	}
	return map[string]interface{}{s.Field: inner}
}

// ScoreSort sorts by relevance.
func ScoreSort() Sort { return Sort{Field: "_score", Desc: true} }

func renderSorts(sorts []Sort) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(sorts))
	for _, s := range sorts {
		out = append(out, s.Map())
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregations
// ─────────────────────────────────────────────────────────────────────────────

// Agg is one aggregation clause.
type Agg interface {
	AggMap() map[string]interface{}
}

// TermsAgg buckets by distinct field values.
type TermsAgg struct {
	Field string
	Size  int
}

func (a TermsAgg) AggMap() map[string]interface{} {
	inner := map[string]interface{}{"field": a.Field}
	if a.Size > 0 {
		inner["size"] = a.Size
	}
	return map[string]interface{}{"terms": inner}
}

// CardinalityAgg counts distinct field values; used for the true dataset
// total under field collapsing.
type CardinalityAgg struct {
	Field string
}

func (a CardinalityAgg) AggMap() map[string]interface{} {
	return map[string]interface{}{"cardinality": map[string]interface{}{"field": a.Field}}
}

// NestedAgg scopes sub-aggregations to a nested path.
type NestedAgg struct {
	Path string
	Subs map[string]Agg
}

func (a NestedAgg) AggMap() map[string]interface{} {
	return map[string]interface{}{
		"nested": map[string]interface{}{"path": a.Path},
		"aggs":   renderAggs(a.Subs),
	}
}

// ReverseNestedAgg re-scopes counting to the parent document so facet counts
// mean "datasets containing the value", not "matching experiment rows".
type ReverseNestedAgg struct {
	Subs map[string]Agg
}

func (a ReverseNestedAgg) AggMap() map[string]interface{} {
	m := map[string]interface{}{"reverse_nested": map[string]interface{}{}}
	if len(a.Subs) > 0 {
		m["aggs"] = renderAggs(a.Subs)
	}
	return m
}

// SubbedTermsAgg is a terms bucket with sub-aggregations.
type SubbedTermsAgg struct {
	Field string
	Size  int
	Subs  map[string]Agg
}

func (a SubbedTermsAgg) AggMap() map[string]interface{} {
	m := TermsAgg{Field: a.Field, Size: a.Size}.AggMap()
	m["aggs"] = renderAggs(a.Subs)
	return m
}

// CompositeVendorModelAgg buckets by the (platformVendor, platformModel)
// tuple; bucket keys are re-serialized to "vendor||model" on the way out.
type CompositeVendorModelAgg struct {
	VendorField string
	ModelField  string
	Size        int
	Subs        map[string]Agg
}

func (a CompositeVendorModelAgg) AggMap() map[string]interface{} {
	size := a.Size
	if size == 0 {
		size = 100
	}
	m := map[string]interface{}{
		"composite": map[string]interface{}{
			"size": size,
			"sources": []map[string]interface{}{
				{"vendor": map[string]interface{}{"terms": map[string]interface{}{"field": a.VendorField}}},
				{"model": map[string]interface{}{"terms": map[string]interface{}{"field": a.ModelField}}},
			},
		},
	}
	if len(a.Subs) > 0 {
		m["aggs"] = renderAggs(a.Subs)
	}
	return m
}

func renderAggs(aggs map[string]Agg) map[string]interface{} {
	out := make(map[string]interface{}, len(aggs))
	for name, a := range aggs {
		out[name] = a.AggMap()
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Request body
// ─────────────────────────────────────────────────────────────────────────────

// collapseInnerName is the inner-hits block carrying the group's top
// document by the collapse sort; response parsing reads it back by name.
const collapseInnerName = "top"

// Collapse folds hits sharing one field value, keeping the top inner hit by
// the given sort.
type Collapse struct {
	Field     string
	InnerSort []Sort
}

// Body is one complete search request body.
type Body struct {
	Query    Query
	From     int
	Size     *int
	Sort     []Sort
	Collapse *Collapse
	Aggs     map[string]Agg
	SeqNo    bool // request _seq_no/_primary_term with each hit
}

// Render produces the JSON-marshallable request body.
func (b Body) Render() map[string]interface{} {
	body := map[string]interface{}{}
	if b.Query != nil {
		body["query"] = b.Query.Map()
	}
	if b.From > 0 {
		body["from"] = b.From
	}
	if b.Size != nil {
		body["size"] = *b.Size
	}
	if len(b.Sort) > 0 {
		body["sort"] = renderSorts(b.Sort)
	}
	if b.Collapse != nil {
		collapse := map[string]interface{}{"field": b.Collapse.Field}
		if len(b.Collapse.InnerSort) > 0 {
			collapse["inner_hits"] = map[string]interface{}{
				"name": collapseInnerName,
				"size": 1,
				"sort": renderSorts(b.Collapse.InnerSort),
			}
		}
		body["collapse"] = collapse
	}
	if len(b.Aggs) > 0 {
		body["aggs"] = renderAggs(b.Aggs)
	}
	if b.SeqNo {
		body["seq_no_primary_term"] = true
	}
	return body
}
