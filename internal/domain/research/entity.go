// Package research implements the Research aggregate: the bilingual, versioned
// record of one portal research page, its status lifecycle, and its version
// snapshots.  Business rules that concern research visibility and status live
// here; persistence is handled by the search-index adapter.
package research

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
)

// ─────────────────────────────────────────────────────────────────────────────
// Identifiers
// ─────────────────────────────────────────────────────────────────────────────

var (
	reHumID        = regexp.MustCompile(`^hum(\d{4})$`)
	reHumVersionID = regexp.MustCompile(`^(hum\d{4})-v(\d+)$`)
)

// ValidHumID reports whether s is a well-formed research identifier
// (hum + 4 digits, zero-padded).
func ValidHumID(s string) bool { return reHumID.MatchString(s) }

// FormatHumID renders a numeric allocation as a zero-padded humId.
func FormatHumID(n int) string { return fmt.Sprintf("hum%04d", n) }

// ParseHumID extracts the numeric part of a humId; ok is false for malformed
// input.
func ParseHumID(s string) (n int, ok bool) {
	m := reHumID.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, _ = strconv.Atoi(m[1])
	return n, true
}

// HumVersionID renders the snapshot identifier for (humId, version).
func HumVersionID(humID string, version int) string {
	return fmt.Sprintf("%s-v%d", humID, version)
}

// ParseHumVersionID splits a humVersionId into its humId and version number.
func ParseHumVersionID(s string) (humID string, version int, ok bool) {
	m := reHumVersionID.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	version, _ = strconv.Atoi(m[2])
	return m[1], version, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Status lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Status is the publication state of a Research document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
)

// allowedTransitions defines the valid next states from each status.
//
//	draft ──► review ──► published ──► deleted
//	  ▲          │            │
//	  └──────────┘            │  (deletion is soft and terminal)
//	  draft ◄─ review
var allowedTransitions = map[Status][]Status{
	StatusDraft:     {StatusReview, StatusDeleted},
	StatusReview:    {StatusDraft, StatusPublished, StatusDeleted},
	StatusPublished: {StatusDeleted},
	StatusDeleted:   {},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the four statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusPublished, StatusDeleted:
		return true
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Entities
// ─────────────────────────────────────────────────────────────────────────────

// SummarySection is the bilingual research summary.
type SummarySection struct {
	Aims    bilingual.TextValue `json:"aims"`
	Methods bilingual.TextValue `json:"methods"`
	Targets bilingual.TextValue `json:"targets"`
	URL     bilingual.Text      `json:"url"`
}

// DataProvider is one bilingual data-provider entry.
type DataProvider struct {
	PrincipalInvestigator bilingual.Text `json:"principalInvestigator"`
	Affiliation           bilingual.Text `json:"affiliation"`
}

// Project is one bilingual research-project entry.
type Project struct {
	Name bilingual.Text `json:"name"`
	URL  bilingual.Text `json:"url"`
}

// Grant is one bilingual funding entry.  GrantIDs are language-independent
// after normalization, so they are stored once.
type Grant struct {
	Name         bilingual.Text `json:"name"`
	ProjectTitle bilingual.Text `json:"projectTitle"`
	GrantIDs     []string       `json:"grantIds"`
}

// Publication is one bilingual related-publication entry.  The DOI is the
// pairing identity during cross-language merge.
type Publication struct {
	Title      bilingual.Text `json:"title"`
	DOI        *string        `json:"doi"`
	DatasetIDs []string       `json:"datasetIds"`
}

// ControlledAccessUser is one bilingual controlled-access-user entry.
type ControlledAccessUser struct {
	Name            bilingual.Text `json:"name"`
	Affiliation     bilingual.Text `json:"affiliation"`
	Country         bilingual.Text `json:"country"`
	ResearchTitle   bilingual.Text `json:"researchTitle"`
	DatasetIDs      []string       `json:"datasetIds"`
	PeriodOfDataUse *record.Period `json:"periodOfDataUse"`
}

// Research is the bilingual aggregate for one humId.
type Research struct {
	HumID   string         `json:"humId"`
	URL     bilingual.Text `json:"url"`
	Title   bilingual.Text `json:"title"`
	Summary SummarySection `json:"summary"`

	DataProviders         []DataProvider         `json:"dataProvider"`
	ResearchProjects      []Project              `json:"researchProject"`
	Grants                []Grant                `json:"grant"`
	RelatedPublications   []Publication          `json:"relatedPublication"`
	ControlledAccessUsers []ControlledAccessUser `json:"controlledAccessUser"`

	// VersionIDs is the complete set of humVersionIds ever emitted;
	// LatestVersion is ≥ every element's version number.
	VersionIDs    []string `json:"versionIds"`
	LatestVersion int      `json:"latestVersion"`

	FirstReleaseDate *string `json:"firstReleaseDate"`
	LastReleaseDate  *string `json:"lastReleaseDate"`

	Status Status   `json:"status"`
	UIDs   []string `json:"uids"`
}

// DatasetRef points at one (datasetId, version) emission.
type DatasetRef struct {
	DatasetID string `json:"datasetId"`
	Version   string `json:"version"`
}

// Version is one snapshot of a research page.
type Version struct {
	HumID              string              `json:"humId"`
	HumVersionID       string              `json:"humVersionId"`
	Version            int                 `json:"version"`
	VersionReleaseDate *string             `json:"versionReleaseDate"`
	Datasets           []DatasetRef        `json:"datasets"`
	ReleaseNote        bilingual.TextValue `json:"releaseNote"`
}
