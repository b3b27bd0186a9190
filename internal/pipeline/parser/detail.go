// Package parser turns fetched portal HTML into typed per-language records.
// The detail parser walks the fixed section layout of a research detail page
// (summary, molecular data, data provider, publications, controlled-access
// users); the release parser reads the release-history table.  Both are
// deterministic: the same bytes always yield the same record.
package parser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Section selectors of a detail page.  The portal renders each block inside a
// stable container id, so extraction is selector-driven rather than
// text-search-driven.
const (
	selSummary       = "#summary"
	selMolecularData = "#molecular-data"
	selDataProvider  = "#data-provider"
	selPublications  = "#publications"
	selControlled    = "#controlled-access-users"
)

// summary table column order: datasetId, criteria, release date, type of data.
const summaryDatasetCols = 4

// DetailParser extracts one record.Record per (humVersionId, language) detail
// page.
type DetailParser struct {
	hotfix      *mapping.CrawlHotfix
	dataSummary map[string]bool
	logger      logging.Logger
}

// NewDetailParser builds a DetailParser.
func NewDetailParser(hotfix *mapping.CrawlHotfix, logger logging.Logger) *DetailParser {
	return &DetailParser{
		hotfix:      hotfix,
		dataSummary: hotfix.DataSummarySet(),
		logger:      logger.Named("parser.detail"),
	}
}

// Parse extracts a raw record from html.  pageURL is recorded on the result
// for bilingual URL merging downstream.
func (p *DetailParser) Parse(humVersionID string, lang bilingual.Lang, pageURL string, html []byte) (*record.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeParse, "failed to parse detail HTML").WithDetail(humVersionID)
	}

	humID, version, ok := research.ParseHumVersionID(humVersionID)
	if !ok {
		return nil, errors.New(errors.ErrCodeParse, "malformed humVersionId").WithDetail(humVersionID)
	}

	rec := &record.Record{
		HumID:        humID,
		HumVersionID: humVersionID,
		Version:      version,
		Lang:         string(lang),
		Title:        cellText(doc.Find("h1").First()),
		URL:          pageURL,
	}

	summary, err := p.parseSummary(doc, humVersionID)
	if err != nil {
		// Data-summary pages lay the overview out inside the data tables
		// and carry no #summary section at all.
		if !p.dataSummary[humID] {
			return nil, err
		}
		p.logger.Debug("data-summary page without summary section", logging.String("humVersionId", humVersionID))
		summary = &record.Summary{}
	}
	rec.Summary = *summary
	rec.MolecularData = p.parseMolecularData(doc, humVersionID)
	rec.DataProvider = p.parseDataProvider(doc)
	rec.Publications = p.parsePublications(doc)
	rec.ControlledAccessUsers = p.parseControlledAccessUsers(doc, humID)
	return rec, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Summary
// ─────────────────────────────────────────────────────────────────────────────

func (p *DetailParser) parseSummary(doc *goquery.Document, humVersionID string) (*record.Summary, error) {
	sec := doc.Find(selSummary)
	if sec.Length() == 0 {
		return nil, errors.New(errors.ErrCodeParse, "summary section not found").WithDetail(humVersionID)
	}

	s := &record.Summary{
		Aims:    toTextValue(cellValue(sec.Find(".aims").First())),
		Methods: toTextValue(cellValue(sec.Find(".methods").First())),
		Targets: toTextValue(cellValue(sec.Find(".targets").First())),
		URL:     strings.TrimSpace(sec.Find(".url a").First().AttrOr("href", "")),
		Footers: parseFooters(sec),
	}

	sec.Find("table.dataset-table tbody tr, table.dataset-table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < summaryDatasetCols {
			return // header row or malformed
		}
		rawID := cellText(cells.Eq(0))
		if rawID == "" {
			return
		}
		ds := record.SummaryDataset{
			RawID:       rawID,
			ReleaseDate: optional(cellText(cells.Eq(2))),
			TypeOfData:  optional(cellText(cells.Eq(3))),
		}
		if c := cellText(cells.Eq(1)); c != "" {
			ds.Criteria = []string{c}
		}
		s.Datasets = append(s.Datasets, ds)
	})
	return s, nil
}

func toTextValue(v *valueParts) *record.TextValue {
	if v == nil {
		return nil
	}
	return &record.TextValue{Text: v.Text, RawHTML: v.RawHTML}
}

func parseFooters(sec *goquery.Selection) []string {
	var out []string
	sec.Find("p.footer").Each(func(_ int, f *goquery.Selection) {
		if text := strings.TrimSpace(f.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Molecular data
// ─────────────────────────────────────────────────────────────────────────────

// parseMolecularData extracts each div.experiment block: an h4 identifying
// header, a key/value table (th = row label, td… = values), and footers.
func (p *DetailParser) parseMolecularData(doc *goquery.Document, humVersionID string) []record.MolData {
	var out []record.MolData
	doc.Find(selMolecularData + " div.experiment").Each(func(_ int, block *goquery.Selection) {
		md := record.MolData{
			ID:      cellText(block.Find("h4").First()),
			Data:    map[string][]record.TextValue{},
			Footers: parseFooters(block),
		}
		block.Find("table tr").Each(func(_ int, row *goquery.Selection) {
			key := cellText(row.Find("th").First())
			if key == "" {
				return
			}
			var values []record.TextValue
			row.Find("td").Each(func(_ int, cell *goquery.Selection) {
				if v := cellValue(cell); v != nil {
					values = append(values, record.TextValue{Text: v.Text, RawHTML: v.RawHTML})
				}
			})
			if len(values) == 0 {
				return
			}
			md.Data[key] = append(md.Data[key], values...)
		})
		if md.ID == "" && len(md.Data) == 0 {
			p.logger.Warn("skipping empty molecular-data block", logging.String("humVersionId", humVersionID))
			return
		}
		out = append(out, md)
	})
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Data provider
// ─────────────────────────────────────────────────────────────────────────────

// Data-provider row labels, compared via foldHeader so case, whitespace and
// punctuation differences between the ja and en pages do not matter.
var providerLabels = map[string]string{
	foldHeader("Principal Investigator"): "pi",
	foldHeader("研究代表者"):                 "pi",
	foldHeader("Affiliation"):            "affiliation",
	foldHeader("所属機関"):                   "affiliation",
	foldHeader("Project Name"):           "project",
	foldHeader("プロジェクト/研究グループ名"):        "project",
	foldHeader("URL of Project"):         "projectUrl",
	foldHeader("プロジェクトURL"):             "projectUrl",
}

func (p *DetailParser) parseDataProvider(doc *goquery.Document) record.DataProvider {
	dp := record.DataProvider{}
	sec := doc.Find(selDataProvider)

	sec.Find("table.provider tr").Each(func(_ int, row *goquery.Selection) {
		label := providerLabels[foldHeader(row.Find("th").First().Text())]
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			text := cellText(cell)
			if text == "" {
				return
			}
			switch label {
			case "pi":
				dp.PrincipalInvestigators = append(dp.PrincipalInvestigators, text)
			case "affiliation":
				dp.Affiliations = append(dp.Affiliations, text)
			case "project":
				dp.ProjectNames = append(dp.ProjectNames, text)
			case "projectUrl":
				dp.ProjectURLs = append(dp.ProjectURLs, text)
			}
		})
	})

	// Grants table: grant name | project title | grant id(s).
	sec.Find("table.grants tbody tr, table.grants tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		g := record.Grant{
			GrantName:    cellText(cells.Eq(0)),
			ProjectTitle: cellText(cells.Eq(1)),
		}
		if ids := cellText(cells.Eq(2)); ids != "" {
			g.GrantIDs = strings.Fields(ids)
		}
		if g.GrantName == "" && g.ProjectTitle == "" && len(g.GrantIDs) == 0 {
			return
		}
		dp.Grants = append(dp.Grants, g)
	})
	return dp
}

// ─────────────────────────────────────────────────────────────────────────────
// Publications / controlled-access users
// ─────────────────────────────────────────────────────────────────────────────

// publications table: title | DOI | dataset id(s).
func (p *DetailParser) parsePublications(doc *goquery.Document) []record.Publication {
	var out []record.Publication
	doc.Find(selPublications + " table tbody tr, " + selPublications + " table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		title := cellText(cells.Eq(0))
		if title == "" {
			return
		}
		out = append(out, record.Publication{
			Title:         title,
			DOI:           optional(cellText(cells.Eq(1))),
			RawDatasetIDs: cellText(cells.Eq(2)),
		})
	})
	return out
}

// controlled-access table: name | affiliation | country | research title |
// dataset id(s) | period of data use.
const controlledAccessCols = 6

func (p *DetailParser) parseControlledAccessUsers(doc *goquery.Document, humID string) []record.ControlledAccessUser {
	var out []record.ControlledAccessUser
	doc.Find(selControlled + " table tbody tr, " + selControlled + " table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}

		texts := make([]string, cells.Length())
		cells.Each(func(i int, cell *goquery.Selection) { texts[i] = cellText(cell) })

		// Hand-authored replacement for known-broken rows.
		if fix := p.hotfix.RowFix(humID, len(texts), texts[0]); fix != nil {
			texts = fix
		}
		if len(texts) < controlledAccessCols {
			return
		}
		if texts[0] == "" && texts[1] == "" {
			return
		}
		out = append(out, record.ControlledAccessUser{
			Name:          optional(texts[0]),
			Affiliation:   optional(texts[1]),
			Country:       optional(texts[2]),
			ResearchTitle: optional(texts[3]),
			RawDatasetIDs: texts[4],
			PeriodRaw:     optional(texts[5]),
		})
	})
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Release history
// ─────────────────────────────────────────────────────────────────────────────

// ReleaseParser reads the release-history page: a table of version | date |
// note rows.
type ReleaseParser struct {
	logger logging.Logger
}

// NewReleaseParser builds a ReleaseParser.
func NewReleaseParser(logger logging.Logger) *ReleaseParser {
	return &ReleaseParser{logger: logger.Named("parser.release")}
}

// Parse extracts the release rows from html.
func (p *ReleaseParser) Parse(humVersionID string, html []byte) ([]record.Release, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeParse, "failed to parse release HTML").WithDetail(humVersionID)
	}

	var out []record.Release
	doc.Find("#releases table tbody tr, #releases table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		version, ok := parseReleaseVersion(cellText(cells.Eq(0)))
		if !ok {
			return
		}
		rel := record.Release{
			Version: version,
			Date:    optional(cellText(cells.Eq(1))),
		}
		if v := cellValue(cells.Eq(2)); v != nil {
			rel.Note = record.TextValue{Text: v.Text, RawHTML: v.RawHTML}
		}
		out = append(out, rel)
	})
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeParse, "release table not found or empty").WithDetail(humVersionID)
	}
	return out, nil
}

// parseReleaseVersion accepts "3" or "v3".
func parseReleaseVersion(s string) (int, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "v")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
