package es

import (
	"encoding/json"
	"strings"

	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// FacetBucket is one facet value with its dataset count.
type FacetBucket struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Facets maps facet field name to its buckets.
type Facets map[string][]FacetBucket

// facetAggPrefix namespaces facet aggregations in the request so they don't
// collide with the cardinality total.
const facetAggPrefix = "facet_"

// facetTermFields lists the single-keyword facets.  platform is handled
// separately via the composite (vendor, model) aggregation.
var facetTermFields = []string{
	"assayType", "tissues", "population", "fileTypes", "healthStatus",
	"sex", "ageGroup", "libraryKits", "readType", "referenceGenome",
	"processedDataTypes", "cellLine",
}

// datasetFacetAggs builds the facet aggregations.  Every terms bucket nests
// a reverse_nested sub-aggregation so the reported count is the number of
// distinct datasets carrying the value, not the number of experiment rows.
func datasetFacetAggs() map[string]Agg {
	aggs := make(map[string]Agg, len(facetTermFields)+1)
	for _, field := range facetTermFields {
		aggs[facetAggPrefix+field] = NestedAgg{
			Path: "experiments",
			Subs: map[string]Agg{
				"values": SubbedTermsAgg{
					Field: "experiments.searchable." + field,
					Size:  100,
					Subs:  map[string]Agg{"datasets": ReverseNestedAgg{}},
				},
			},
		}
	}
	aggs[facetAggPrefix+"platform"] = NestedAgg{
		Path: "experiments",
		Subs: map[string]Agg{
			"values": CompositeVendorModelAgg{
				VendorField: "experiments.searchable.platformVendor",
				ModelField:  "experiments.searchable.platformModel",
				Subs:        map[string]Agg{"datasets": ReverseNestedAgg{}},
			},
		},
	}
	return aggs
}

// parseFacets extracts facet buckets from the aggregation section of a
// search response.  Composite platform keys are re-serialized to
// "vendor||model".
func parseFacets(aggs map[string]json.RawMessage) (Facets, error) {
	facets := Facets{}
	for name, raw := range aggs {
		if !strings.HasPrefix(name, facetAggPrefix) {
			continue
		}
		field := strings.TrimPrefix(name, facetAggPrefix)

		var wrapper struct {
			Values struct {
				Buckets []facetBucketJSON `json:"buckets"`
			} `json:"values"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeSerialization, "search: decode facet %s", field)
		}

		buckets := make([]FacetBucket, 0, len(wrapper.Values.Buckets))
		for _, b := range wrapper.Values.Buckets {
			value, err := b.value()
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrCodeSerialization, "search: decode facet %s bucket key", field)
			}
			count := b.DocCount
			if b.Datasets != nil {
				count = b.Datasets.DocCount
			}
			buckets = append(buckets, FacetBucket{Value: value, Count: count})
		}
		facets[field] = buckets
	}
	return facets, nil
}

type facetBucketJSON struct {
	Key      json.RawMessage `json:"key"`
	DocCount int64           `json:"doc_count"`
	Datasets *struct {
		DocCount int64 `json:"doc_count"`
	} `json:"datasets"`
}

// value decodes the bucket key: a plain string for terms buckets, a
// {vendor, model} object for platform composite buckets.
func (b facetBucketJSON) value() (string, error) {
	var s string
	if err := json.Unmarshal(b.Key, &s); err == nil {
		return s, nil
	}
	var tuple struct {
		Vendor string `json:"vendor"`
		Model  string `json:"model"`
	}
	if err := json.Unmarshal(b.Key, &tuple); err != nil {
		return "", err
	}
	return tuple.Vendor + PlatformSep + tuple.Model, nil
}
