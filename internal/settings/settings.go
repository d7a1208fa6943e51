// Package settings implements the three optional JSON-backed per-tenant
// configuration files of spec §4.4: IndexSettings, SynonymStore and
// RuleStore, each with a simple (non-LRU) in-memory cache invalidated on
// write.
package settings

import (
	"encoding/json"
	"strings"
)

// QueryType controls where prefix matching applies (spec §4.6).
type QueryType string

const (
	QueryTypePrefixLast QueryType = "prefixLast"
	QueryTypePrefixAll  QueryType = "prefixAll"
	QueryTypePrefixNone QueryType = "prefixNone"
)

// RemoveWordsMode controls the §4.7.4 no-results fallback.
type RemoveWordsMode string

const (
	RemoveWordsNone       RemoveWordsMode = "none"
	RemoveWordsLastWords  RemoveWordsMode = "lastWords"
	RemoveWordsFirstWords RemoveWordsMode = "firstWords"
)

// LanguageList represents a setting that is either a plain bool or a
// list of language codes (spec §4.4: removeStopWords, ignorePlurals).
type LanguageList struct {
	Enabled   bool
	Languages []string
}

func (l *LanguageList) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch {
	case s == "true":
		l.Enabled = true
		return nil
	case s == "false" || s == "null":
		l.Enabled = false
		return nil
	default:
		var langs []string
		if err := json.Unmarshal(data, &langs); err != nil {
			return err
		}
		l.Languages = langs
		l.Enabled = len(langs) > 0
		return nil
	}
}

func (l LanguageList) MarshalJSON() ([]byte, error) {
	if len(l.Languages) > 0 {
		return json.Marshal(l.Languages)
	}
	return json.Marshal(l.Enabled)
}

// FacetingAttribute is one parsed entry of attributesForFaceting. A
// "filterOnly(x)" entry enables filtering/facet-path generation for x
// without making it text-searchable.
type FacetingAttribute struct {
	Path       string
	FilterOnly bool
}

// ParseFacetingAttribute parses one attributesForFaceting string.
func ParseFacetingAttribute(raw string) FacetingAttribute {
	const prefix = "filterOnly("
	if strings.HasPrefix(raw, prefix) && strings.HasSuffix(raw, ")") {
		return FacetingAttribute{Path: raw[len(prefix) : len(raw)-1], FilterOnly: true}
	}
	return FacetingAttribute{Path: raw}
}

// CustomRankingRule is one parsed entry of the customRanking list, e.g.
// "desc(popularity)".
type CustomRankingRule struct {
	Field      string
	Descending bool
}

// ParseCustomRanking parses a "asc(x)"/"desc(x)" entry.
func ParseCustomRanking(raw string) (CustomRankingRule, bool) {
	switch {
	case strings.HasPrefix(raw, "desc(") && strings.HasSuffix(raw, ")"):
		return CustomRankingRule{Field: raw[5 : len(raw)-1], Descending: true}, true
	case strings.HasPrefix(raw, "asc(") && strings.HasSuffix(raw, ")"):
		return CustomRankingRule{Field: raw[4 : len(raw)-1], Descending: false}, true
	default:
		return CustomRankingRule{}, false
	}
}

// IndexSettings is the recognized options of spec §4.4.
type IndexSettings struct {
	SearchableAttributes    []string        `json:"searchableAttributes,omitempty"`
	AttributesForFaceting   []string        `json:"attributesForFaceting,omitempty"`
	AttributesToRetrieve    []string        `json:"attributesToRetrieve,omitempty"`
	UnretrievableAttributes []string        `json:"unretrievableAttributes,omitempty"`
	CustomRanking           []string        `json:"customRanking,omitempty"`
	AttributeForDistinct    string          `json:"attributeForDistinct,omitempty"`
	QueryType               QueryType       `json:"queryType,omitempty"`
	TypoTolerance           bool            `json:"typoTolerance"`
	MinWordSizeFor1Typo     int             `json:"minWordSizeFor1Typo,omitempty"`
	RemoveStopWords         LanguageList    `json:"removeStopWords,omitempty"`
	IgnorePlurals           LanguageList    `json:"ignorePlurals,omitempty"`
	QueryLanguages          []string        `json:"queryLanguages,omitempty"`
	RemoveWordsIfNoResults  RemoveWordsMode `json:"removeWordsIfNoResults,omitempty"`
	AdvancedSyntax          bool            `json:"advancedSyntax"`
	Distinct                int             `json:"distinct,omitempty"`
}

// Default returns the zero-value settings with documented defaults
// applied (spec §4.4).
func Default() IndexSettings {
	return IndexSettings{
		QueryType:              QueryTypePrefixLast,
		TypoTolerance:          true,
		MinWordSizeFor1Typo:    4,
		RemoveWordsIfNoResults: RemoveWordsNone,
	}
}

// FacetingAttributes parses AttributesForFaceting into structured form.
func (s IndexSettings) FacetingAttributes() []FacetingAttribute {
	out := make([]FacetingAttribute, len(s.AttributesForFaceting))
	for i, raw := range s.AttributesForFaceting {
		out[i] = ParseFacetingAttribute(raw)
	}
	return out
}

// CustomRankingRules parses CustomRanking into structured form, dropping
// any malformed entries.
func (s IndexSettings) CustomRankingRules() []CustomRankingRule {
	out := make([]CustomRankingRule, 0, len(s.CustomRanking))
	for _, raw := range s.CustomRanking {
		if r, ok := ParseCustomRanking(raw); ok {
			out = append(out, r)
		}
	}
	return out
}

// IsFacetAttribute reports whether path is declared for faceting
// (exactly, per spec §4.3's "declared in attributes_for_faceting").
func (s IndexSettings) IsFacetAttribute(path string) (FacetingAttribute, bool) {
	for _, fa := range s.FacetingAttributes() {
		if fa.Path == path {
			return fa, true
		}
	}
	return FacetingAttribute{}, false
}
