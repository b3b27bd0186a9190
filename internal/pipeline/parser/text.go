package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// footnoteMarker matches a leading footnote reference (※ or *, optionally
// numbered) that some cells carry in front of their actual value.
var footnoteMarker = regexp.MustCompile(`^[※*]\d?\s*`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// cellText extracts the trimmed display text of a cell.  Empty cells and the
// "-" placeholder both mean "no value" and collapse to "".
func cellText(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Text())
	text = footnoteMarker.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if text == "-" {
		return ""
	}
	return text
}

// cellValue extracts a cell as text plus its inner markup.  Returns nil for
// empty cells.
func cellValue(sel *goquery.Selection) *valueParts {
	text := cellText(sel)
	if text == "" {
		return nil
	}
	html, err := sel.Html()
	if err != nil {
		html = ""
	}
	return &valueParts{Text: text, RawHTML: strings.TrimSpace(html)}
}

type valueParts struct {
	Text    string
	RawHTML string
}

// optional converts a cell string to a pointer, "" meaning absent.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// foldHeader canonicalizes a header label for comparison: NFKC, lowercased,
// whitespace and punctuation removed.  "Principal Investigator:" and
// "principalinvestigator" compare equal.
func foldHeader(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r > 0x7f && !isSpaceOrPunct(r):
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isSpaceOrPunct(r rune) bool {
	switch r {
	case '　', '：', '、', '。', '・', '（', '）', '「', '」':
		return true
	}
	return r == ' ' || r == '\t' || r == '\n'
}
