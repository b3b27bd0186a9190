package structurer

import (
	"sort"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/dataset"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

// VersionInput is one humVersionId's pair of normalized per-language records.
// Either side may be nil when the portal never published that language.
type VersionInput struct {
	Version      int
	HumVersionID string
	Ja, En       *record.Record
}

// Output is everything the structure stage emits for one humId.
type Output struct {
	Research research.Research
	Versions []research.Version
	Datasets []dataset.Dataset
}

// Structurer merges per-language records into bilingual structured documents.
type Structurer struct {
	overrides *mapping.DatasetOverrides
	logger    logging.Logger
}

// New builds a Structurer.
func New(overrides *mapping.DatasetOverrides, logger logging.Logger) *Structurer {
	return &Structurer{overrides: overrides, logger: logger.Named("structurer")}
}

// Build processes every version of one humId in ascending order and emits
// the Research aggregate, its version snapshots, and all dataset emissions.
func (s *Structurer) Build(humID string, versions []VersionInput) (*Output, error) {
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })

	hist := newVersionHistory()
	owners := map[string][]string{}
	out := &Output{}

	for _, in := range versions {
		ja := buildLangSide(in.Ja)
		en := buildLangSide(in.En)

		relDate := versionReleaseDate(in)
		ver := research.Version{
			HumID:              humID,
			HumVersionID:       in.HumVersionID,
			Version:            in.Version,
			VersionReleaseDate: relDate,
			ReleaseNote:        releaseNote(in),
		}

		for _, id := range orderedIDs(ja, en) {
			if dataset.IsStudyID(id) {
				s.logger.Warn("study accession reached the structure stage, skipping",
					logging.String("humId", humID), logging.String("datasetId", id))
				continue
			}

			jaRows := s.rowsFor(id, ja)
			enRows := s.rowsFor(id, en)

			key, err := contentKey(jaRows, enRows)
			if err != nil {
				return nil, err
			}
			dsVersion, dsOrdinal := hist.Assign(id, key)

			ds := dataset.Dataset{
				DatasetID:          id,
				Version:            dsVersion,
				VersionNumber:      dsOrdinal,
				VersionReleaseDate: relDate,
				HumID:              humID,
				HumVersionID:       in.HumVersionID,
				Experiments:        mergeExperiments(jaRows, enRows),
			}
			s.applyMeta(&ds, id, humID, ja, en)

			out.Datasets = append(out.Datasets, ds)
			ver.Datasets = append(ver.Datasets, research.DatasetRef{DatasetID: id, Version: dsVersion})

			for _, rows := range [][]record.MolData{jaRows, enRows} {
				for _, row := range rows {
					for _, tok := range row.ExtractedDatasetIDs {
						owners[tok] = unionOrdered(owners[tok], []string{id})
					}
				}
			}
		}

		out.Versions = append(out.Versions, ver)
	}

	out.Research = s.buildResearch(humID, versions, out.Versions, owners)
	return out, nil
}

// rowsFor returns the molecular-data rows of one dataset in one language,
// falling back to header string-matching when the extracted-ID inversion
// found nothing.
func (s *Structurer) rowsFor(id string, side langSide) []record.MolData {
	if rows := side.rows[id]; len(rows) > 0 {
		return rows
	}
	if _, inSummary := side.meta[id]; !inSummary {
		return nil
	}
	return findMatchingMolData(id, side, side.meta, s.logger)
}

// applyMeta resolves criteria, release date and type of data from summary
// metadata (with dotted-prefix inheritance) and the per-dataset override
// table.
func (s *Structurer) applyMeta(ds *dataset.Dataset, id, humID string, ja, en langSide) {
	override := s.overrides.Find(humID, id)

	jaMeta, jaOK := inheritMeta(id, ja.meta, override)
	enMeta, enOK := inheritMeta(id, en.meta, override)

	criteria := jaMeta.Criteria
	if len(criteria) == 0 {
		criteria = enMeta.Criteria
	}
	if override != nil && len(override.Criteria) > 0 {
		criteria = override.Criteria
	}
	for _, c := range criteria {
		dc := dataset.Criteria(c)
		if dc.Valid() {
			ds.Criteria = append(ds.Criteria, dc)
		}
	}

	switch {
	case override != nil && override.ReleaseDate != nil:
		ds.ReleaseDate = override.ReleaseDate
	case jaOK && jaMeta.ReleaseDate != nil:
		ds.ReleaseDate = jaMeta.ReleaseDate
	case enOK && enMeta.ReleaseDate != nil:
		ds.ReleaseDate = enMeta.ReleaseDate
	}

	ds.TypeOfData = mergeOptional(jaMeta.TypeOfData, enMeta.TypeOfData)
}

func versionReleaseDate(in VersionInput) *string {
	for _, rec := range []*record.Record{in.Ja, in.En} {
		if rec == nil {
			continue
		}
		for _, rel := range rec.Releases {
			if rel.Version == in.Version && rel.Date != nil {
				return rel.Date
			}
		}
	}
	return nil
}

func releaseNote(in VersionInput) bilingual.TextValue {
	var ja, en *record.TextValue
	if in.Ja != nil {
		for _, rel := range in.Ja.Releases {
			if rel.Version == in.Version && rel.Note.Text != "" {
				note := rel.Note
				ja = &note
				break
			}
		}
	}
	if in.En != nil {
		for _, rel := range in.En.Releases {
			if rel.Version == in.Version && rel.Note.Text != "" {
				note := rel.Note
				en = &note
				break
			}
		}
	}
	return mergeTextValue(ja, en)
}

// buildResearch projects the Research aggregate from the latest version's
// records, rewriting publication and controlled-access dataset IDs through
// the ownership map built during dataset emission.
func (s *Structurer) buildResearch(humID string, versions []VersionInput, emitted []research.Version, owners map[string][]string) research.Research {
	res := research.Research{
		HumID:  humID,
		Status: research.StatusPublished,
	}

	var latest VersionInput
	for _, in := range versions {
		if in.Ja != nil || in.En != nil {
			latest = in
		}
		res.VersionIDs = append(res.VersionIDs, in.HumVersionID)
		if in.Version > res.LatestVersion {
			res.LatestVersion = in.Version
		}
	}

	jaRec, enRec := latest.Ja, latest.En
	var jaTitle, enTitle, jaURL, enURL string
	var jaSummary, enSummary record.Summary
	var jaProvider, enProvider record.DataProvider
	var jaPubs, enPubs []record.Publication
	var jaCAU, enCAU []record.ControlledAccessUser
	if jaRec != nil {
		jaTitle, jaURL = jaRec.Title, jaRec.URL
		jaSummary = jaRec.Summary
		jaProvider = jaRec.DataProvider
		jaPubs = jaRec.Publications
		jaCAU = jaRec.ControlledAccessUsers
	}
	if enRec != nil {
		enTitle, enURL = enRec.Title, enRec.URL
		enSummary = enRec.Summary
		enProvider = enRec.DataProvider
		enPubs = enRec.Publications
		enCAU = enRec.ControlledAccessUsers
	}

	res.Title = mergeStrings(jaTitle, enTitle)
	res.URL = mergeStrings(jaURL, enURL)
	res.Summary = research.SummarySection{
		Aims:    mergeTextValue(jaSummary.Aims, enSummary.Aims),
		Methods: mergeTextValue(jaSummary.Methods, enSummary.Methods),
		Targets: mergeTextValue(jaSummary.Targets, enSummary.Targets),
		URL:     mergeStrings(jaSummary.URL, enSummary.URL),
	}
	res.DataProviders = mergeProviders(jaProvider, enProvider)
	res.ResearchProjects = mergeProjects(jaProvider, enProvider)
	res.Grants = mergeGrants(jaProvider.Grants, enProvider.Grants)
	res.RelatedPublications = mergePublications(jaPubs, enPubs)
	res.ControlledAccessUsers = mergeControlledAccessUsers(jaCAU, enCAU)

	for i := range res.RelatedPublications {
		res.RelatedPublications[i].DatasetIDs = rewriteOwners(res.RelatedPublications[i].DatasetIDs, owners)
	}
	for i := range res.ControlledAccessUsers {
		res.ControlledAccessUsers[i].DatasetIDs = rewriteOwners(res.ControlledAccessUsers[i].DatasetIDs, owners)
	}

	for _, v := range emitted {
		if v.VersionReleaseDate == nil {
			continue
		}
		if res.FirstReleaseDate == nil || *v.VersionReleaseDate < *res.FirstReleaseDate {
			res.FirstReleaseDate = v.VersionReleaseDate
		}
		if res.LastReleaseDate == nil || *v.VersionReleaseDate > *res.LastReleaseDate {
			res.LastReleaseDate = v.VersionReleaseDate
		}
	}
	return res
}

// rewriteOwners maps raw dataset-ID tokens to the datasets whose experiments
// actually carry them; tokens no experiment claims pass through unchanged.
func rewriteOwners(ids []string, owners map[string][]string) []string {
	var out []string
	for _, id := range ids {
		if owning, ok := owners[id]; ok {
			out = unionOrdered(out, owning)
		} else {
			out = unionOrdered(out, []string{id})
		}
	}
	return out
}
