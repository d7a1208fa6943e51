package query

import (
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/cuemby/flapjack/internal/settings"
)

// SearchableField is one field × weight entry from the tenant's
// searchableAttributes (spec §4.6 schema facts).
type SearchableField struct {
	Path   string
	Weight float64
}

// ShortQueryPlaceholder is the sentinel of spec §4.6 for tokens of ≤2
// characters that would otherwise become prefix queries: it carries
// enough information for the executor to expand it at search time
// against the live segment state (§4.6.1), rather than matching
// anything on its own.
type ShortQueryPlaceholder struct {
	Token string
	Paths []SearchableField
}

// ParsedQuery is the QueryParser's output: a composed bleve query
// (advanced-syntax exclusions already folded in as MustNot clauses)
// plus any short-token placeholders pending executor-side expansion
// (spec §4.6/§4.6.1).
type ParsedQuery struct {
	Query        bleve.Query
	Placeholders []ShortQueryPlaceholder
	QueryWords   []string // flattened words, for highlighting
	HasText      bool     // false for an empty/match-all query (spec §4.7.2 step 4)
}

// AdvancedSyntax holds the phrases/exclusions extracted before normal
// token parsing when settings.AdvancedSyntax is enabled (spec §4.6).
type AdvancedSyntax struct {
	Phrases    [][]string
	Exclusions []string
	Remainder  string
}

// ExtractAdvancedSyntax pulls "quoted phrases" and -exclusions out of
// text, returning the remainder for normal tokenization.
func ExtractAdvancedSyntax(text string) AdvancedSyntax {
	var as AdvancedSyntax
	var remainder strings.Builder

	runes := []rune(text)
	i := 0
	for i < len(runes) {
		switch {
		case runes[i] == '"':
			end := strings.IndexRune(string(runes[i+1:]), '"')
			if end < 0 {
				remainder.WriteRune(runes[i])
				i++
				continue
			}
			phrase := string(runes[i+1 : i+1+end])
			words := strings.Fields(phrase)
			if len(words) > 0 {
				as.Phrases = append(as.Phrases, words)
			}
			i += end + 2

		case runes[i] == '-' && i+1 < len(runes) && !unicodeSpace(runes[i+1]):
			j := i + 1
			for j < len(runes) && !unicodeSpace(runes[j]) {
				j++
			}
			as.Exclusions = append(as.Exclusions, string(runes[i+1:j]))
			i = j

		default:
			remainder.WriteRune(runes[i])
			i++
		}
	}
	as.Remainder = remainder.String()
	return as
}

func unicodeSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }

// ParserInput bundles the parser's inputs (spec §4.6).
type ParserInput struct {
	Text           string
	SearchablePaths []SearchableField
	Settings       settings.IndexSettings
	Plurals        map[string][]string // pre-resolved per token, optional
}

const (
	fieldSearch = "json_search"
	fieldExact  = "json_exact"
)

// topNPaths returns how many leading (highest-weight) searchable paths
// are eligible for typo-tolerant fuzzy matching (spec §4.6: "top N
// paths (2 for 3+-token queries, 4 otherwise)").
func topNPaths(tokenCount int) int {
	if tokenCount >= 3 {
		return 2
	}
	return 4
}

// Parse builds a ParsedQuery from raw input per spec §4.6.
func Parse(in ParserInput) ParsedQuery {
	text := in.Text
	var phrases [][]string
	var exclusions []string
	if in.Settings.AdvancedSyntax {
		as := ExtractAdvancedSyntax(text)
		phrases = as.Phrases
		exclusions = as.Exclusions
		text = as.Remainder
	}

	tokens := Tokenize(text)
	n := topNPaths(len(tokens))

	var musts []bleve.Query
	var placeholders []ShortQueryPlaceholder
	var words []string

	for _, tok := range tokens {
		words = append(words, tok.Text)
		prefix := isPrefixToken(tok, in.Settings.QueryType)

		if len([]rune(tok.Text)) <= 2 {
			if tok.TrailSpace {
				musts = append(musts, exactTermQuery(tok.Text))
			} else if prefix {
				placeholders = append(placeholders, ShortQueryPlaceholder{Token: tok.Text, Paths: in.SearchablePaths})
				continue
			}
			continue
		}

		var should []bleve.Query
		for i, path := range in.SearchablePaths {
			field := fieldSearch
			if !prefix {
				field = fieldExact
			}
			tq := bleve.NewTermQuery(strings.ToLower(tok.Text))
			tq.SetField(field)
			tq.SetBoost(path.Weight)
			should = append(should, tq)

			if in.Settings.TypoTolerance && len([]rune(tok.Text)) >= in.Settings.MinWordSizeFor1Typo && i < n {
				fq := bleve.NewFuzzyQuery(strings.ToLower(tok.Text))
				fq.SetField(fieldExact)
				fq.SetFuzziness(1)
				fq.SetBoost(path.Weight * 0.5)
				should = append(should, fq)
			}

			if prefix && len([]rune(tok.Text)) >= 4 {
				stripped := string([]rune(tok.Text)[1:])
				pq := bleve.NewPrefixQuery(strings.ToLower(stripped))
				pq.SetField(fieldSearch)
				pq.SetBoost(path.Weight * 0.25)
				should = append(should, pq)
			}

			if plurals, ok := in.Plurals[tok.Text]; ok {
				for _, pl := range plurals {
					if pl == strings.ToLower(tok.Text) {
						continue
					}
					plq := bleve.NewTermQuery(pl)
					plq.SetField(field)
					plq.SetBoost(path.Weight * 0.75)
					should = append(should, plq)
				}
			}
		}
		if len(should) > 0 {
			musts = append(musts, bleve.NewDisjunctionQuery(should...))
		}
	}

	for _, phrase := range phrases {
		var andTerms []bleve.Query
		for _, w := range phrase {
			tq := bleve.NewTermQuery(strings.ToLower(w))
			tq.SetField(fieldExact)
			andTerms = append(andTerms, tq)
		}
		musts = append(musts, bleve.NewConjunctionQuery(andTerms...))
	}

	hasText := len(musts) > 0 || len(placeholders) > 0

	var q bleve.Query
	if len(musts) == 0 {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewConjunctionQuery(musts...)
	}

	if len(exclusions) > 0 {
		bq := bleve.NewBooleanQuery()
		bq.AddMust(q)
		for _, ex := range exclusions {
			tq := bleve.NewTermQuery(strings.ToLower(ex))
			tq.SetField(fieldExact)
			bq.AddMustNot(tq)
		}
		q = bq
	}

	return ParsedQuery{Query: q, Placeholders: placeholders, QueryWords: words, HasText: hasText}
}

func exactTermQuery(token string) bleve.Query {
	tq := bleve.NewTermQuery(strings.ToLower(token))
	tq.SetField(fieldExact)
	return tq
}

func isPrefixToken(tok Token, qt settings.QueryType) bool {
	switch qt {
	case settings.QueryTypePrefixAll:
		return true
	case settings.QueryTypePrefixNone:
		return false
	default: // prefixLast
		return tok.IsLast && !tok.TrailSpace
	}
}
