package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/record"
)

var (
	slashDate = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	isoDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// releaseDateSentinels are placeholder values meaning "not yet released";
// they normalize to null.
var releaseDateSentinels = map[string]bool{
	"Coming soon": true,
	"近日公開予定":      true,
}

// FixDate converts "YYYY/M/D" to zero-padded ISO "YYYY-MM-DD".  ISO dates
// pass through; anything else is returned verbatim.
func FixDate(s string) string {
	s = strings.TrimSpace(s)
	if isoDate.MatchString(s) {
		return s
	}
	m := slashDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
}

// FixReleaseDate converts a release-date cell to ISO.  Sentinel values mean
// the dataset is not released yet and yield nil.
func FixReleaseDate(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || releaseDateSentinels[v] {
		return nil
	}
	fixed := FixDate(v)
	return &fixed
}

// FixReleaseDates handles a space-separated list of release dates, fixing
// each part independently.  A value that is entirely a sentinel yields nil;
// within a list, parts FixDate cannot parse pass through unchanged.
func FixReleaseDates(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || releaseDateSentinels[v] {
		return nil
	}
	parts := strings.Fields(v)
	for i, p := range parts {
		parts[i] = FixDate(p)
	}
	out := strings.Join(parts, " ")
	return &out
}

// periodSep splits "from-to" on the separator between two date expressions,
// accepting "/", ISO, and "〜"/"-"/"～" separators.
var periodPattern = regexp.MustCompile(`^\s*(\d{4}[/-]\d{1,2}[/-]\d{1,2})\s*[-〜～]\s*(\d{4}[/-]\d{1,2}[/-]\d{1,2})\s*$`)

// ParsePeriod parses a period of data use ("YYYY/M/D-YYYY/M/D" or ISO-ISO)
// into ISO endpoints.  Unparseable values yield nil.
func ParsePeriod(raw *string) *record.Period {
	if raw == nil {
		return nil
	}
	m := periodPattern.FindStringSubmatch(*raw)
	if m == nil {
		return nil
	}
	return &record.Period{
		From: FixDate(normalizeDateSeparators(m[1])),
		To:   FixDate(normalizeDateSeparators(m[2])),
	}
}

// normalizeDateSeparators maps "2020-4-1" style inputs onto the slash form
// FixDate expands, leaving proper ISO untouched.
func normalizeDateSeparators(s string) string {
	if isoDate.MatchString(s) {
		return s
	}
	return strings.ReplaceAll(s, "-", "/")
}
