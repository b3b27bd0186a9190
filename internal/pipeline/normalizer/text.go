// Package normalizer canonicalizes parsed records: text, URLs, dates,
// criteria, dataset identifiers, molecular-data keys, and bibliographic
// entries.  Every routine here is pure and idempotent except the study
// expansion, which goes through the injected relation port.
package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nbdc/humandbs-pipeline/internal/domain/bilingual"
)

var (
	// urlToken protects embedded URLs from punctuation rewriting.
	urlToken = regexp.MustCompile(`https?://[^\s　]+`)

	spaceRun      = regexp.MustCompile(`[ \t]+`)
	colonSpacing  = regexp.MustCompile(`\s*[:：]\s*`)
	parenPad      = regexp.MustCompile(`(\S)\(`)
	invisibleRune = strings.NewReplacer(
		" ", " ", // non-breaking space
		"　", " ", // ideographic space
		"​", "", // zero-width space
		"‌", "",
		"‍", "",
		"\uFEFF", "",
	)
	punctuation = strings.NewReplacer(
		"（", "(", "）", ")",
		"／", "/",
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-", "−", "-", "‐", "-", "―", "-",
	)
)

// NormalizeText canonicalizes free text per the portal's conventions: NFC,
// invisible-space collapse, punctuation unification, colon spacing, paren
// padding, whitespace collapse.  Newlines become spaces for Japanese and are
// deleted for English (English pages wrap mid-word).  URLs inside the text
// are never rewritten.  Idempotent.
func NormalizeText(s string, lang bilingual.Lang) string {
	if s == "" {
		return ""
	}

	// Carve out URLs, normalize the rest, then splice the URLs back.
	var urls []string
	s = urlToken.ReplaceAllStringFunc(s, func(u string) string {
		urls = append(urls, u)
		return "\x00"
	})

	s = norm.NFC.String(s)
	s = invisibleRune.Replace(s)
	if lang == bilingual.En {
		s = strings.ReplaceAll(s, "\r\n", "")
		s = strings.ReplaceAll(s, "\n", "")
	} else {
		s = strings.ReplaceAll(s, "\r\n", " ")
		s = strings.ReplaceAll(s, "\n", " ")
	}
	s = punctuation.Replace(s)
	s = colonSpacing.ReplaceAllString(s, ": ")
	s = parenPad.ReplaceAllString(s, "$1 (")
	s = spaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	for _, u := range urls {
		s = strings.Replace(s, "\x00", u, 1)
	}
	return s
}

// NormalizeURL resolves portal-relative URLs: absolute URLs pass through, a
// leading "/" is prefixed with base, anything else passes through unchanged.
func NormalizeURL(s, base string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if strings.HasPrefix(s, "/") {
		return strings.TrimSuffix(base, "/") + s
	}
	return s
}

// fold reduces a string to its lookup form: NFKC, lowercased, whitespace and
// hyphens removed.  Criteria and molecular-data key tables are keyed by the
// folded form so ja/en spelling variants land on one entry.
func fold(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', ' ', '　', '-', '‐', '−':
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
