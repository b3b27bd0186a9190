// Package bilingual provides the ja/en value types shared by every structured
// entity.  A bilingual value is a tagged product {ja?, en?}; either side may
// be absent when the portal never published that language.
package bilingual

// Lang identifies one of the two portal languages.
type Lang string

const (
	Ja Lang = "ja"
	En Lang = "en"
)

// Langs lists both languages in canonical processing order.
var Langs = []Lang{Ja, En}

// Text is a bilingual plain-text mapping.  A nil side means the language
// variant was never published.
type Text struct {
	Ja *string `json:"ja"`
	En *string `json:"en"`
}

// Value is one language's rich value: the extracted text plus the source
// markup preserved for re-display.
type Value struct {
	Text    string `json:"text"`
	RawHTML string `json:"rawHtml"`
}

// TextValue is a bilingual rich-text mapping.
type TextValue struct {
	Ja *Value `json:"ja"`
	En *Value `json:"en"`
}

// NewText builds a Text from raw per-language strings; empty strings become
// absent sides.
func NewText(ja, en string) Text {
	t := Text{}
	if ja != "" {
		t.Ja = &ja
	}
	if en != "" {
		t.En = &en
	}
	return t
}

// Get returns the requested side, or nil.
func (t Text) Get(lang Lang) *string {
	if lang == Ja {
		return t.Ja
	}
	return t.En
}

// Pick returns the requested language's value with fallback to the other
// side, or "" when both are absent.  API projections use Pick with the
// caller's display language.
func (t Text) Pick(lang Lang) string {
	if v := t.Get(lang); v != nil {
		return *v
	}
	if lang == En {
		if t.Ja != nil {
			return *t.Ja
		}
	} else if t.En != nil {
		return *t.En
	}
	return ""
}

// HasAny reports whether at least one side is present.
func (t Text) HasAny() bool { return t.Ja != nil || t.En != nil }

// MergePair combines two per-language strings into one Text.  Nil pointers
// pass through as absent sides.
func MergePair(ja, en *string) Text { return Text{Ja: ja, En: en} }

// Get returns the requested side, or nil.
func (t TextValue) Get(lang Lang) *Value {
	if lang == Ja {
		return t.Ja
	}
	return t.En
}

// Pick returns the requested language's text with ja→en fallback.
func (t TextValue) Pick(lang Lang) string {
	if v := t.Get(lang); v != nil {
		return v.Text
	}
	if lang == En {
		if t.Ja != nil {
			return t.Ja.Text
		}
	} else if t.En != nil {
		return t.En.Text
	}
	return ""
}

// HasAny reports whether at least one side is present.
func (t TextValue) HasAny() bool { return t.Ja != nil || t.En != nil }

// MergeValuePair combines two per-language values into one TextValue.
func MergeValuePair(ja, en *Value) TextValue { return TextValue{Ja: ja, En: en} }
