// Package record defines the per-language intermediate records produced by
// the parse and normalize stages.  RawRecord and NormalizedRecord share one
// shape: normalization canonicalizes values in place and the two stages write
// to different artifact directories.  The per-language intermediates stay
// separate until the structure stage — dataset versioning depends on ja and
// en experiment content being distinguishable.
package record

// TextValue is one extracted cell or section: plain text plus the original
// markup for re-display.
type TextValue struct {
	Text    string `json:"text"`
	RawHTML string `json:"rawHtml"`
}

// Summary is the research-summary section of a detail page.
type Summary struct {
	Aims    *TextValue       `json:"aims"`
	Methods *TextValue       `json:"methods"`
	Targets *TextValue       `json:"targets"`
	URL     string           `json:"url"`
	Datasets []SummaryDataset `json:"datasets"`
	Footers []string         `json:"footers"`
}

// SummaryDataset is one row of the summary dataset table.  RawID preserves
// the cell text before ID reconciliation; IDs is the reconciled list (empty
// until the normalize stage runs).
type SummaryDataset struct {
	RawID       string   `json:"rawId"`
	IDs         []string `json:"ids"`
	Criteria    []string `json:"criteria"`
	ReleaseDate *string  `json:"releaseDate"`
	TypeOfData  *string  `json:"typeOfData"`
}

// MolData is one row group of the molecular-data table.  Data maps a header
// key (canonical after normalization) to the cell values; a key always maps
// to a list — single-valued cells are singleton lists, and the merge rule for
// split/duplicate keys is list concatenation with null absorption.
type MolData struct {
	ID      string                 `json:"id"`
	Data    map[string][]TextValue `json:"data"`
	Footers []string               `json:"footers"`

	// ExtractedDatasetIDs is every reconciled dataset-ID token harvested from
	// the row header and the ID-bearing data fields.  Populated by the
	// normalize stage; the structurer inverts it into per-dataset row lists.
	ExtractedDatasetIDs []string `json:"extractedDatasetIds"`
}

// Grant is one funding entry.
type Grant struct {
	GrantName    string   `json:"grantName"`
	ProjectTitle string   `json:"projectTitle"`
	GrantIDs     []string `json:"grantIds"`
}

// DataProvider is the data-provider section of a detail page.
type DataProvider struct {
	PrincipalInvestigators []string `json:"principalInvestigators"`
	Affiliations           []string `json:"affiliations"`
	ProjectNames           []string `json:"projectNames"`
	ProjectURLs            []string `json:"projectUrls"`
	Grants                 []Grant  `json:"grants"`
}

// Publication is one related-publication row.  RawDatasetIDs keeps the cell
// text before ID reconciliation.
type Publication struct {
	Title         string   `json:"title"`
	DOI           *string  `json:"doi"`
	RawDatasetIDs string   `json:"rawDatasetIds"`
	DatasetIDs    []string `json:"datasetIds"`
}

// Period is a data-use period with ISO date endpoints.
type Period struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ControlledAccessUser is one controlled-access-user row.  PeriodRaw keeps
// the cell text as parsed; the normalize stage derives PeriodOfDataUse from
// it.
type ControlledAccessUser struct {
	Name            *string  `json:"name"`
	Affiliation     *string  `json:"affiliation"`
	Country         *string  `json:"country"`
	ResearchTitle   *string  `json:"researchTitle"`
	DatasetIDs      []string `json:"datasetIds"`
	RawDatasetIDs   string   `json:"rawDatasetIds"`
	PeriodRaw       *string  `json:"periodRaw,omitempty"`
	PeriodOfDataUse *Period  `json:"periodOfDataUse"`
}

// Release is one row of the release-history page.
type Release struct {
	Version int       `json:"version"`
	Date    *string   `json:"date"`
	Note    TextValue `json:"note"`
}

// Record is one (humVersionId, language) snapshot.  The parse stage emits it
// raw; the normalize stage emits the canonicalized form under the same shape.
type Record struct {
	HumID        string `json:"humId"`
	HumVersionID string `json:"humVersionId"`
	Version      int    `json:"version"`
	Lang         string `json:"lang"`

	// Title is the page heading; URL is the page the record was parsed from.
	Title string `json:"title"`
	URL   string `json:"url"`

	Summary               Summary                `json:"summary"`
	MolecularData         []MolData              `json:"molecularData"`
	DataProvider          DataProvider           `json:"dataProvider"`
	Publications          []Publication          `json:"publications"`
	ControlledAccessUsers []ControlledAccessUser `json:"controlledAccessUsers"`
	Releases              []Release              `json:"releases"`
}
