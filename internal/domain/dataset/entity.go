// Package dataset implements the Dataset entity: one versioned emission of a
// dataset identifier within a research snapshot, carrying the bilingual
// experiment rows and the searchable facet projection.
package dataset

import (
	"regexp"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
)

// reJGAS matches a study identifier.  The pipeline invariant is that no JGAS
// survives into structured output — every study is expanded into its
// datasets before emission.
var reJGAS = regexp.MustCompile(`^JGAS\d+$`)

// IsStudyID reports whether id is a JGAS study identifier.
func IsStudyID(id string) bool { return reJGAS.MatchString(id) }

// Criteria is one of the three canonical access criteria.
type Criteria string

const (
	CriteriaControlledTypeI  Criteria = "Controlled-access (Type I)"
	CriteriaControlledTypeII Criteria = "Controlled-access (Type II)"
	CriteriaUnrestricted     Criteria = "Unrestricted-access"
)

// Valid reports whether c is one of the three canonical values.
func (c Criteria) Valid() bool {
	switch c {
	case CriteriaControlledTypeI, CriteriaControlledTypeII, CriteriaUnrestricted:
		return true
	}
	return false
}

// Disease is one disease label with its attached ICD10 code.  ICD10 is nil
// until the icd10-normalize stage runs.
type Disease struct {
	Label string  `json:"label"`
	ICD10 *string `json:"icd10"`
}

// Policy references one data-access policy.
type Policy struct {
	ID string `json:"id"`
}

// VariantCounts carries per-class variant totals for variant-call datasets.
type VariantCounts struct {
	SNV   *int64 `json:"snv"`
	Indel *int64 `json:"indel"`
	CNV   *int64 `json:"cnv"`
	SV    *int64 `json:"sv"`
	Total *int64 `json:"total"`
}

// Searchable is the per-experiment facet projection.  It is built by the
// structure stage from canonical molecular-data fields and then canonicalized
// in place by the facet and icd10 normalizers.
type Searchable struct {
	AssayType          *string        `json:"assayType,omitempty"`
	Tissues            []string       `json:"tissues,omitempty"`
	Population         *string        `json:"population,omitempty"`
	PlatformVendor     *string        `json:"platformVendor,omitempty"`
	PlatformModel      *string        `json:"platformModel,omitempty"`
	FileTypes          []string       `json:"fileTypes,omitempty"`
	HealthStatus       []string       `json:"healthStatus,omitempty"`
	SubjectCount       *float64       `json:"subjectCount,omitempty"`
	Sex                []string       `json:"sex,omitempty"`
	AgeGroup           []string       `json:"ageGroup,omitempty"`
	LibraryKits        []string       `json:"libraryKits,omitempty"`
	ReadType           *string        `json:"readType,omitempty"`
	ReadLength         *float64       `json:"readLength,omitempty"`
	ReferenceGenome    *string        `json:"referenceGenome,omitempty"`
	ProcessedDataTypes []string       `json:"processedDataTypes,omitempty"`
	CellLine           *string        `json:"cellLine,omitempty"`
	IsTumor            *bool          `json:"isTumor,omitempty"`
	HasPhenotypeData   *bool          `json:"hasPhenotypeData,omitempty"`
	Diseases           []Disease      `json:"diseases,omitempty"`
	Policies           []Policy       `json:"policies,omitempty"`
	VariantCounts      *VariantCounts `json:"variantCounts,omitempty"`
	SequencingDepth    *float64       `json:"sequencingDepth,omitempty"`
	TargetCoverage     *float64       `json:"targetCoverage,omitempty"`
	DataVolumeGb       *float64       `json:"dataVolumeGb,omitempty"`
}

// Footers carries the per-language footnote lists of one experiment row.
type Footers struct {
	Ja []string `json:"ja,omitempty"`
	En []string `json:"en,omitempty"`
}

// Experiment is one molecular-data row, merged across languages.
type Experiment struct {
	Header     bilingual.TextValue            `json:"header"`
	Data       map[string]bilingual.TextValue `json:"data"`
	Footers    Footers                        `json:"footers"`
	Searchable *Searchable                    `json:"searchable,omitempty"`
}

// Dataset is one versioned emission of a datasetId.  (DatasetID, Version) is
// globally unique; Version is assigned by the structurer and monotonic in
// time for the same datasetId.
type Dataset struct {
	DatasetID string `json:"datasetId"`
	Version   string `json:"version"`

	// VersionNumber is the ordinal behind Version.  The display form sorts
	// lexicographically ("v9" > "v10"), so collapse and sort use this field.
	VersionNumber int `json:"versionNumber"`

	VersionReleaseDate *string        `json:"versionReleaseDate"`
	HumID              string         `json:"humId"`
	HumVersionID       string         `json:"humVersionId"`
	ReleaseDate        *string        `json:"releaseDate"`
	Criteria           []Criteria     `json:"criteria"`
	TypeOfData         bilingual.Text `json:"typeOfData"`
	Experiments        []Experiment   `json:"experiments"`
}
