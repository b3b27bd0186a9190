package structurer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
)

// Canonical molecular-data field names consumed by the searchable
// projection.  The moldata field-mapping table rewrites raw row labels onto
// these names during normalization.
const (
	fieldAssayType         = "assayType"
	fieldTissue            = "tissue"
	fieldPopulation        = "population"
	fieldPlatform          = "platform"
	fieldFileType          = "fileType"
	fieldHealthStatus      = "healthStatus"
	fieldSubjectCount      = "subjectCount"
	fieldSex               = "sex"
	fieldAgeGroup          = "ageGroup"
	fieldLibraryKit        = "libraryKit"
	fieldReadType          = "readType"
	fieldReadLength        = "readLength"
	fieldReferenceGenome   = "referenceGenome"
	fieldProcessedDataType = "processedDataType"
	fieldCellLine          = "cellLine"
	fieldIsTumor           = "isTumor"
	fieldHasPhenotypeData  = "hasPhenotypeData"
	fieldDisease           = "disease"
	fieldPolicy            = "policy"
	fieldVariantCounts     = "variantCounts"
	fieldSequencingDepth   = "sequencingDepth"
	fieldTargetCoverage    = "targetCoverage"
	fieldDataVolume        = "dataVolume"
)

var (
	listSplitter = regexp.MustCompile(`[,、;]`)
	firstNumber  = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	variantPart  = regexp.MustCompile(`(?i)(snv|indel|cnv|sv|total)\s*[:=]?\s*([\d,]+)`)
)

// buildSearchable projects one merged experiment's data map into the facet
// block.  English values are preferred with fallback to Japanese, since
// facet vocabularies are curated in English.
func buildSearchable(data map[string]bilingual.TextValue) *dataset.Searchable {
	get := func(field string) string {
		return strings.TrimSpace(data[field].Pick(bilingual.En))
	}

	s := &dataset.Searchable{
		AssayType:          optString(get(fieldAssayType)),
		Tissues:            splitList(get(fieldTissue)),
		Population:         optString(get(fieldPopulation)),
		FileTypes:          splitList(get(fieldFileType)),
		HealthStatus:       splitList(get(fieldHealthStatus)),
		SubjectCount:       parseNumber(get(fieldSubjectCount)),
		Sex:                splitList(get(fieldSex)),
		AgeGroup:           splitList(get(fieldAgeGroup)),
		LibraryKits:        splitList(get(fieldLibraryKit)),
		ReadType:           optString(get(fieldReadType)),
		ReadLength:         parseNumber(get(fieldReadLength)),
		ReferenceGenome:    optString(get(fieldReferenceGenome)),
		ProcessedDataTypes: splitList(get(fieldProcessedDataType)),
		CellLine:           optString(get(fieldCellLine)),
		IsTumor:            parseBool(get(fieldIsTumor)),
		HasPhenotypeData:   parseBool(get(fieldHasPhenotypeData)),
		VariantCounts:      parseVariantCounts(get(fieldVariantCounts)),
		SequencingDepth:    parseNumber(get(fieldSequencingDepth)),
		TargetCoverage:     parseNumber(get(fieldTargetCoverage)),
		DataVolumeGb:       parseNumber(get(fieldDataVolume)),
	}

	vendor, model := splitPlatform(get(fieldPlatform))
	s.PlatformVendor = optString(vendor)
	s.PlatformModel = optString(model)

	for _, label := range splitList(get(fieldDisease)) {
		s.Diseases = append(s.Diseases, dataset.Disease{Label: label})
	}
	for _, id := range strings.Fields(get(fieldPolicy)) {
		s.Policies = append(s.Policies, dataset.Policy{ID: id})
	}

	if isZeroSearchable(s) {
		return nil
	}
	return s
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range listSplitter.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseNumber(s string) *float64 {
	m := firstNumber.FindString(s)
	if m == "" {
		return nil
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseBool(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "有", "あり", "腫瘍":
		v = true
	case "no", "false", "無", "なし", "正常":
		v = false
	default:
		return nil
	}
	return &v
}

// splitPlatform separates "Illumina NovaSeq 6000" into vendor and model on
// the first space.
func splitPlatform(s string) (vendor, model string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	parts := strings.SplitN(s, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func parseVariantCounts(s string) *dataset.VariantCounts {
	if s == "" {
		return nil
	}
	vc := &dataset.VariantCounts{}
	found := false
	for _, m := range variantPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(strings.ReplaceAll(m[2], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		found = true
		switch strings.ToLower(m[1]) {
		case "snv":
			vc.SNV = &n
		case "indel":
			vc.Indel = &n
		case "cnv":
			vc.CNV = &n
		case "sv":
			vc.SV = &n
		case "total":
			vc.Total = &n
		}
	}
	if !found {
		return nil
	}
	return vc
}

func isZeroSearchable(s *dataset.Searchable) bool {
	return s.AssayType == nil && s.Tissues == nil && s.Population == nil &&
		s.PlatformVendor == nil && s.PlatformModel == nil && s.FileTypes == nil &&
		s.HealthStatus == nil && s.SubjectCount == nil && s.Sex == nil &&
		s.AgeGroup == nil && s.LibraryKits == nil && s.ReadType == nil &&
		s.ReadLength == nil && s.ReferenceGenome == nil && s.ProcessedDataTypes == nil &&
		s.CellLine == nil && s.IsTumor == nil && s.HasPhenotypeData == nil &&
		s.Diseases == nil && s.Policies == nil && s.VariantCounts == nil &&
		s.SequencingDepth == nil && s.TargetCoverage == nil && s.DataVolumeGb == nil
}
