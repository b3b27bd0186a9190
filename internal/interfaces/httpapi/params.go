package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/search/es"
)

// maxPageSize caps the limit parameter.
const maxPageSize = 100

// listParam reads a repeatable query parameter, additionally splitting each
// occurrence on commas.
func listParam(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func floatParam(c *gin.Context, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %q is not a number", name, raw)
	}
	return &v, nil
}

func boolParam(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %q is not a boolean", name, raw)
	}
	return &v, nil
}

func pageParams(c *gin.Context) (es.Page, error) {
	page := es.Page{Limit: 20}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return page, fmt.Errorf("parameter offset: %q is not a non-negative integer", raw)
		}
		page.Offset = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return page, fmt.Errorf("parameter limit: %q is not a positive integer", raw)
		}
		if v > maxPageSize {
			v = maxPageSize
		}
		page.Limit = v
	}
	return page, nil
}

// parseDatasetParams builds the dataset filter block.  prefix namespaces the
// parameters when the block rides inside the research search ("dataset.").
func parseDatasetParams(c *gin.Context, prefix string) (*es.DatasetSearchParams, error) {
	name := func(n string) string { return prefix + n }

	p := &es.DatasetSearchParams{
		Query:           c.Query(name("q")),
		HumIDs:          listParam(c, name("humId")),
		Criteria:        listParam(c, name("criteria")),
		TypeOfData:      listParam(c, name("typeOfData")),
		ReleaseDateFrom: c.Query(name("releaseDateFrom")),
		ReleaseDateTo:   c.Query(name("releaseDateTo")),

		AssayTypes:         listParam(c, name("assayType")),
		Tissues:            listParam(c, name("tissue")),
		Populations:        listParam(c, name("population")),
		FileTypes:          listParam(c, name("fileType")),
		HealthStatus:       listParam(c, name("healthStatus")),
		Sex:                listParam(c, name("sex")),
		AgeGroups:          listParam(c, name("ageGroup")),
		LibraryKits:        listParam(c, name("libraryKit")),
		ReadTypes:          listParam(c, name("readType")),
		ReferenceGenomes:   listParam(c, name("referenceGenome")),
		ProcessedDataTypes: listParam(c, name("processedDataType")),
		CellLines:          listParam(c, name("cellLine")),

		Platforms:    listParam(c, name("platform")),
		Diseases:     listParam(c, name("disease")),
		DiseaseICD10: listParam(c, name("diseaseIcd10")),
		PolicyIDs:    listParam(c, name("policyId")),

		Sort: c.Query(name("sort")),
	}

	var err error
	if p.SubjectCountMin, err = floatParam(c, name("subjectCountMin")); err != nil {
		return nil, err
	}
	if p.SubjectCountMax, err = floatParam(c, name("subjectCountMax")); err != nil {
		return nil, err
	}
	if p.ReadLengthMin, err = floatParam(c, name("readLengthMin")); err != nil {
		return nil, err
	}
	if p.ReadLengthMax, err = floatParam(c, name("readLengthMax")); err != nil {
		return nil, err
	}
	if p.DataVolumeGbMin, err = floatParam(c, name("dataVolumeGbMin")); err != nil {
		return nil, err
	}
	if p.DataVolumeGbMax, err = floatParam(c, name("dataVolumeGbMax")); err != nil {
		return nil, err
	}
	if p.IsTumor, err = boolParam(c, name("isTumor")); err != nil {
		return nil, err
	}
	if p.HasPhenotypeData, err = boolParam(c, name("hasPhenotypeData")); err != nil {
		return nil, err
	}

	switch p.Sort {
	case "", "relevance", "releaseDate", "datasetId":
	default:
		return nil, fmt.Errorf("parameter %s: %q is not one of relevance, releaseDate, datasetId", name("sort"), p.Sort)
	}

	if prefix == "" {
		if p.Page, err = pageParams(c); err != nil {
			return nil, err
		}
		p.IncludeFacets = c.Query("facets") == "true"
		p.IncludeDeleted = c.Query("includeDeleted") == "true"
	}
	return p, nil
}

func parseResearchParams(c *gin.Context) (*es.ResearchSearchParams, error) {
	p := &es.ResearchSearchParams{
		Query:                c.Query("q"),
		HumIDs:               listParam(c, "humId"),
		FirstReleaseDateFrom: c.Query("firstReleaseDateFrom"),
		FirstReleaseDateTo:   c.Query("firstReleaseDateTo"),
		LastReleaseDateFrom:  c.Query("lastReleaseDateFrom"),
		LastReleaseDateTo:    c.Query("lastReleaseDateTo"),
		IncludeDeleted:       c.Query("includeDeleted") == "true",
	}

	for _, raw := range listParam(c, "status") {
		st := research.Status(raw)
		if !st.Valid() {
			return nil, fmt.Errorf("parameter status: %q is not a research status", raw)
		}
		p.Statuses = append(p.Statuses, st)
	}

	switch lang := c.Query("lang"); lang {
	case "", "en":
		p.Lang = bilingual.En
	case "ja":
		p.Lang = bilingual.Ja
	default:
		return nil, fmt.Errorf("parameter lang: %q is not ja or en", lang)
	}

	var err error
	if p.Page, err = pageParams(c); err != nil {
		return nil, err
	}

	ds, err := parseDatasetParams(c, "dataset.")
	if err != nil {
		return nil, err
	}
	p.Dataset = ds
	return p, nil
}
