package normalizer

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

// BiblioNormalizer canonicalizes publications, grants and controlled-access
// users.
type BiblioNormalizer struct {
	inSubmission map[string]bool
	doiDeny      map[string]bool
	grantDeny    map[string]bool
	reconciler   *Reconciler
	logger       logging.Logger
}

// NewBiblioNormalizer folds the deny lists into sets.
func NewBiblioNormalizer(m *mapping.NormalizeMapping, reconciler *Reconciler, logger logging.Logger) *BiblioNormalizer {
	inSubmission := map[string]bool{}
	for _, t := range m.PublicationInSubmission {
		inSubmission[fold(t)] = true
	}
	doiDeny := map[string]bool{}
	for _, d := range m.DOIDeny {
		doiDeny[strings.TrimSpace(d)] = true
	}
	grantDeny := map[string]bool{}
	for _, g := range m.GrantIDDeny {
		grantDeny[foldWidth(g)] = true
	}
	return &BiblioNormalizer{
		inSubmission: inSubmission,
		doiDeny:      doiDeny,
		grantDeny:    grantDeny,
		reconciler:   reconciler,
		logger:       logger.Named("normalizer.biblio"),
	}
}

// foldWidth converts full-width alphanumerics to half-width.
func foldWidth(s string) string { return norm.NFKC.String(strings.TrimSpace(s)) }

// Publications drops in-submission rows, nulls denied DOIs, and reconciles
// the raw dataset-ID cell with the publication override table.
func (n *BiblioNormalizer) Publications(ctx context.Context, humID string, pubs []record.Publication, lang bilingual.Lang) ([]record.Publication, error) {
	var out []record.Publication
	for _, p := range pubs {
		title := NormalizeText(p.Title, lang)
		if n.inSubmission[fold(title)] {
			continue
		}
		np := record.Publication{Title: title, RawDatasetIDs: p.RawDatasetIDs}
		if p.DOI != nil {
			doi := strings.TrimSpace(*p.DOI)
			if doi != "" && !n.doiDeny[doi] {
				np.DOI = &doi
			}
		}
		ids, err := n.reconciler.Reconcile(ctx, humID, p.RawDatasetIDs, CtxPublication)
		if err != nil {
			return nil, err
		}
		np.DatasetIDs = ids
		out = append(out, np)
	}
	return out, nil
}

// Grants folds grant IDs to half-width and filters the deny list.
func (n *BiblioNormalizer) Grants(grants []record.Grant, lang bilingual.Lang) []record.Grant {
	out := make([]record.Grant, 0, len(grants))
	for _, g := range grants {
		ng := record.Grant{
			GrantName:    NormalizeText(g.GrantName, lang),
			ProjectTitle: NormalizeText(g.ProjectTitle, lang),
		}
		for _, id := range g.GrantIDs {
			folded := foldWidth(id)
			if folded == "" || n.grantDeny[folded] {
				continue
			}
			ng.GrantIDs = append(ng.GrantIDs, folded)
		}
		out = append(out, ng)
	}
	return out
}

// ControlledAccessUsers normalizes each row's text, parses the period of
// data use, and reconciles the raw dataset-ID cell with the
// controlled-access override table.
func (n *BiblioNormalizer) ControlledAccessUsers(ctx context.Context, humID string, users []record.ControlledAccessUser, lang bilingual.Lang) ([]record.ControlledAccessUser, error) {
	var out []record.ControlledAccessUser
	for _, u := range users {
		nu := record.ControlledAccessUser{
			Name:          normalizeOptional(u.Name, lang),
			Affiliation:   normalizeOptional(u.Affiliation, lang),
			Country:       normalizeOptional(u.Country, lang),
			ResearchTitle: normalizeOptional(u.ResearchTitle, lang),
			RawDatasetIDs: u.RawDatasetIDs,
			PeriodRaw:     u.PeriodRaw,
		}
		nu.PeriodOfDataUse = ParsePeriod(u.PeriodRaw)
		if u.PeriodRaw != nil && nu.PeriodOfDataUse == nil {
			n.logger.Warn("unparseable period of data use",
				logging.String("humId", humID), logging.String("period", *u.PeriodRaw))
		}
		ids, err := n.reconciler.Reconcile(ctx, humID, u.RawDatasetIDs, CtxControlledAccess)
		if err != nil {
			return nil, err
		}
		nu.DatasetIDs = ids
		out = append(out, nu)
	}
	return out, nil
}

func normalizeOptional(s *string, lang bilingual.Lang) *string {
	if s == nil {
		return nil
	}
	v := NormalizeText(*s, lang)
	if v == "" {
		return nil
	}
	return &v
}
