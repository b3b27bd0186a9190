// Package structurer merges per-language normalized records into bilingual
// Research, ResearchVersion and Dataset documents: molecular-data inversion,
// metadata inheritance, cross-language pairing, and stable dataset-version
// assignment.
package structurer

import (
	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
)

func toValue(v *record.TextValue) *bilingual.Value {
	if v == nil {
		return nil
	}
	return &bilingual.Value{Text: v.Text, RawHTML: v.RawHTML}
}

func mergeTextValue(ja, en *record.TextValue) bilingual.TextValue {
	return bilingual.MergeValuePair(toValue(ja), toValue(en))
}

func mergeStrings(ja, en string) bilingual.Text { return bilingual.NewText(ja, en) }

func mergeOptional(ja, en *string) bilingual.Text {
	t := bilingual.Text{}
	if ja != nil && *ja != "" {
		t.Ja = ja
	}
	if en != nil && *en != "" {
		t.En = en
	}
	return t
}

// at returns list[i] or the zero value past the end; list halves of unequal
// length pair positionally with absent tails.
func at[T any](list []T, i int) (T, bool) {
	var zero T
	if i < len(list) {
		return list[i], true
	}
	return zero, false
}

// ─────────────────────────────────────────────────────────────────────────────
// List pairing
//
// Language halves are paired element-wise.  When both lists have the same
// length the pairing is positional; otherwise entries are paired on an
// identity key and the leftovers become ja-only / en-only entries.
// ─────────────────────────────────────────────────────────────────────────────

type pair[T any] struct {
	Ja *T
	En *T
}

// pairLists aligns two language halves.  key derives the identity used for
// non-positional matching; empty keys never match.
func pairLists[T any](ja, en []T, key func(T) string) []pair[T] {
	out := make([]pair[T], 0, len(ja)+len(en))

	if len(ja) == len(en) {
		for i := range ja {
			j, e := ja[i], en[i]
			out = append(out, pair[T]{Ja: &j, En: &e})
		}
		return out
	}

	enByKey := map[string]int{}
	for i, e := range en {
		if k := key(e); k != "" {
			if _, dup := enByKey[k]; !dup {
				enByKey[k] = i
			}
		}
	}
	used := make([]bool, len(en))

	for i := range ja {
		j := ja[i]
		if k := key(j); k != "" {
			if ei, ok := enByKey[k]; ok && !used[ei] {
				used[ei] = true
				e := en[ei]
				out = append(out, pair[T]{Ja: &j, En: &e})
				continue
			}
		}
		out = append(out, pair[T]{Ja: &j})
	}
	for i := range en {
		if !used[i] {
			e := en[i]
			out = append(out, pair[T]{En: &e})
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Section merges
// ─────────────────────────────────────────────────────────────────────────────

func mergeProviders(ja, en record.DataProvider) []research.DataProvider {
	n := len(ja.PrincipalInvestigators)
	if len(en.PrincipalInvestigators) > n {
		n = len(en.PrincipalInvestigators)
	}
	out := make([]research.DataProvider, 0, n)
	for i := 0; i < n; i++ {
		jpi, _ := at(ja.PrincipalInvestigators, i)
		epi, _ := at(en.PrincipalInvestigators, i)
		jaff, _ := at(ja.Affiliations, i)
		eaff, _ := at(en.Affiliations, i)
		out = append(out, research.DataProvider{
			PrincipalInvestigator: mergeStrings(jpi, epi),
			Affiliation:           mergeStrings(jaff, eaff),
		})
	}
	return out
}

func mergeProjects(ja, en record.DataProvider) []research.Project {
	n := len(ja.ProjectNames)
	if len(en.ProjectNames) > n {
		n = len(en.ProjectNames)
	}
	out := make([]research.Project, 0, n)
	for i := 0; i < n; i++ {
		jn, _ := at(ja.ProjectNames, i)
		en2, _ := at(en.ProjectNames, i)
		ju, _ := at(ja.ProjectURLs, i)
		eu, _ := at(en.ProjectURLs, i)
		out = append(out, research.Project{
			Name: mergeStrings(jn, en2),
			URL:  mergeStrings(ju, eu),
		})
	}
	return out
}

// grantKey pairs grants across languages on their first grant ID, which is
// language-independent.
func grantKey(g record.Grant) string {
	if len(g.GrantIDs) > 0 {
		return g.GrantIDs[0]
	}
	return ""
}

func mergeGrants(ja, en []record.Grant) []research.Grant {
	var out []research.Grant
	for _, p := range pairLists(ja, en, grantKey) {
		g := research.Grant{}
		var jn, jt, en2, et string
		if p.Ja != nil {
			jn, jt = p.Ja.GrantName, p.Ja.ProjectTitle
			g.GrantIDs = p.Ja.GrantIDs
		}
		if p.En != nil {
			en2, et = p.En.GrantName, p.En.ProjectTitle
			if len(g.GrantIDs) == 0 {
				g.GrantIDs = p.En.GrantIDs
			}
		}
		g.Name = mergeStrings(jn, en2)
		g.ProjectTitle = mergeStrings(jt, et)
		out = append(out, g)
	}
	return out
}

// pubKey pairs publications on DOI.
func pubKey(p record.Publication) string {
	if p.DOI != nil {
		return *p.DOI
	}
	return ""
}

func mergePublications(ja, en []record.Publication) []research.Publication {
	var out []research.Publication
	for _, p := range pairLists(ja, en, pubKey) {
		pub := research.Publication{}
		var jt, et string
		if p.Ja != nil {
			jt = p.Ja.Title
			pub.DOI = p.Ja.DOI
			pub.DatasetIDs = p.Ja.DatasetIDs
		}
		if p.En != nil {
			et = p.En.Title
			if pub.DOI == nil {
				pub.DOI = p.En.DOI
			}
			pub.DatasetIDs = unionOrdered(pub.DatasetIDs, p.En.DatasetIDs)
		}
		pub.Title = mergeStrings(jt, et)
		out = append(out, pub)
	}
	return out
}

// cauKey pairs controlled-access users on affiliation + name.  Both fields
// are typically romanized identically on the two pages.
func cauKey(u record.ControlledAccessUser) string {
	var k string
	if u.Affiliation != nil {
		k = *u.Affiliation
	}
	if u.Name != nil {
		k += "|" + *u.Name
	}
	if k == "" || k == "|" {
		return ""
	}
	return k
}

func mergeControlledAccessUsers(ja, en []record.ControlledAccessUser) []research.ControlledAccessUser {
	var out []research.ControlledAccessUser
	for _, p := range pairLists(ja, en, cauKey) {
		u := research.ControlledAccessUser{}
		var jn, ja2, jc, jt, en2, ea, ec, et *string
		if p.Ja != nil {
			jn, ja2, jc, jt = p.Ja.Name, p.Ja.Affiliation, p.Ja.Country, p.Ja.ResearchTitle
			u.DatasetIDs = p.Ja.DatasetIDs
			u.PeriodOfDataUse = p.Ja.PeriodOfDataUse
		}
		if p.En != nil {
			en2, ea, ec, et = p.En.Name, p.En.Affiliation, p.En.Country, p.En.ResearchTitle
			u.DatasetIDs = unionOrdered(u.DatasetIDs, p.En.DatasetIDs)
			if u.PeriodOfDataUse == nil {
				u.PeriodOfDataUse = p.En.PeriodOfDataUse
			}
		}
		u.Name = mergeOptional(jn, en2)
		u.Affiliation = mergeOptional(ja2, ea)
		u.Country = mergeOptional(jc, ec)
		u.ResearchTitle = mergeOptional(jt, et)
		out = append(out, u)
	}
	return out
}

// unionOrdered appends the members of b not already in a.
func unionOrdered(a, b []string) []string {
	seen := map[string]bool{}
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			a = append(a, s)
		}
	}
	return a
}
