package normalizer

import (
	"context"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/relation"
)

// Normalizer canonicalizes one parsed record per (humVersionId, language).
// It owns the sub-normalizers for criteria, dataset IDs, molecular data and
// bibliography; the record shape is preserved.
type Normalizer struct {
	criteria   *CriteriaNormalizer
	reconciler *Reconciler
	moldata    *MolDataNormalizer
	biblio     *BiblioNormalizer
	baseJa     string
	baseEn     string
	logger     logging.Logger
}

// New wires a Normalizer from the mapping tables and the relation port.
// baseJa/baseEn are the portal base URLs used to absolutize relative links.
func New(tables *mapping.Tables, port relation.Port, baseJa, baseEn string, logger logging.Logger) *Normalizer {
	reconciler := NewReconciler(&tables.DatasetID, port, logger)
	return &Normalizer{
		criteria:   NewCriteriaNormalizer(&tables.Normalize, logger),
		reconciler: reconciler,
		moldata:    NewMolDataNormalizer(&tables.MolData, reconciler, logger),
		biblio:     NewBiblioNormalizer(&tables.Normalize, reconciler, logger),
		baseJa:     baseJa,
		baseEn:     baseEn,
		logger:     logger.Named("normalizer"),
	}
}

// Reconciler exposes the shared dataset-ID reconciler for callers that need
// token-level reconciliation outside a full record pass.
func (n *Normalizer) Reconciler() *Reconciler { return n.reconciler }

// Normalize returns the canonicalized form of rec.  rec itself is not
// mutated.
func (n *Normalizer) Normalize(ctx context.Context, rec *record.Record) (*record.Record, error) {
	lang := bilingual.Lang(rec.Lang)
	base := n.baseJa
	if lang == bilingual.En {
		base = n.baseEn
	}

	out := &record.Record{
		HumID:        rec.HumID,
		HumVersionID: rec.HumVersionID,
		Version:      rec.Version,
		Lang:         rec.Lang,
		Title:        NormalizeText(rec.Title, lang),
		URL:          NormalizeURL(rec.URL, base),
	}

	summary, err := n.normalizeSummary(ctx, rec, lang, base)
	if err != nil {
		return nil, err
	}
	out.Summary = *summary

	for _, md := range rec.MolecularData {
		nmd, err := n.moldata.Normalize(ctx, rec.HumID, md, lang)
		if err != nil {
			return nil, err
		}
		out.MolecularData = append(out.MolecularData, nmd)
	}

	out.DataProvider = n.normalizeProvider(rec.DataProvider, lang, base)

	out.Publications, err = n.biblio.Publications(ctx, rec.HumID, rec.Publications, lang)
	if err != nil {
		return nil, err
	}
	out.ControlledAccessUsers, err = n.biblio.ControlledAccessUsers(ctx, rec.HumID, rec.ControlledAccessUsers, lang)
	if err != nil {
		return nil, err
	}

	for _, rel := range rec.Releases {
		out.Releases = append(out.Releases, record.Release{
			Version: rel.Version,
			Date:    FixReleaseDate(rel.Date),
			Note: record.TextValue{
				Text:    NormalizeText(rel.Note.Text, lang),
				RawHTML: rel.Note.RawHTML,
			},
		})
	}
	return out, nil
}

func (n *Normalizer) normalizeSummary(ctx context.Context, rec *record.Record, lang bilingual.Lang, base string) (*record.Summary, error) {
	s := &record.Summary{
		Aims:    normalizeTextValue(rec.Summary.Aims, lang),
		Methods: normalizeTextValue(rec.Summary.Methods, lang),
		Targets: normalizeTextValue(rec.Summary.Targets, lang),
		URL:     NormalizeURL(rec.Summary.URL, base),
		Footers: rec.Summary.Footers,
	}
	for _, ds := range rec.Summary.Datasets {
		ids, err := n.reconciler.Reconcile(ctx, rec.HumID, ds.RawID, CtxGeneral)
		if err != nil {
			return nil, err
		}
		nds := record.SummaryDataset{
			RawID:       ds.RawID,
			IDs:         ids,
			Criteria:    n.criteria.NormalizeAll(ds.Criteria),
			ReleaseDate: FixReleaseDates(ds.ReleaseDate),
		}
		if ds.TypeOfData != nil {
			nds.TypeOfData = normalizeOptional(ds.TypeOfData, lang)
		}
		s.Datasets = append(s.Datasets, nds)
	}
	return s, nil
}

func (n *Normalizer) normalizeProvider(dp record.DataProvider, lang bilingual.Lang, base string) record.DataProvider {
	out := record.DataProvider{
		Grants: n.biblio.Grants(dp.Grants, lang),
	}
	for _, s := range dp.PrincipalInvestigators {
		out.PrincipalInvestigators = append(out.PrincipalInvestigators, NormalizeText(s, lang))
	}
	for _, s := range dp.Affiliations {
		out.Affiliations = append(out.Affiliations, NormalizeText(s, lang))
	}
	for _, s := range dp.ProjectNames {
		out.ProjectNames = append(out.ProjectNames, NormalizeText(s, lang))
	}
	for _, s := range dp.ProjectURLs {
		out.ProjectURLs = append(out.ProjectURLs, NormalizeURL(s, base))
	}
	return out
}

func normalizeTextValue(v *record.TextValue, lang bilingual.Lang) *record.TextValue {
	if v == nil {
		return nil
	}
	return &record.TextValue{
		Text:    NormalizeText(v.Text, lang),
		RawHTML: v.RawHTML,
	}
}
