package query

import (
	"testing"

	"github.com/cuemby/flapjack/internal/settings"
)

func TestExtractAdvancedSyntaxPhraseAndExclusion(t *testing.T) {
	as := ExtractAdvancedSyntax(`"red couch" -leather sofa`)
	if len(as.Phrases) != 1 || len(as.Phrases[0]) != 2 {
		t.Fatalf("expected one two-word phrase, got %+v", as.Phrases)
	}
	if len(as.Exclusions) != 1 || as.Exclusions[0] != "leather" {
		t.Fatalf("expected exclusion 'leather', got %+v", as.Exclusions)
	}
}

func TestParseProducesQuery(t *testing.T) {
	in := ParserInput{
		Text:            "red couch",
		SearchablePaths: []SearchableField{{Path: "title", Weight: 1.0}},
		Settings:        settings.Default(),
	}
	parsed := Parse(in)
	if parsed.Query == nil {
		t.Fatal("expected a non-nil query")
	}
	if len(parsed.QueryWords) != 2 {
		t.Fatalf("expected 2 query words, got %v", parsed.QueryWords)
	}
}

func TestParseShortTokenPlaceholder(t *testing.T) {
	in := ParserInput{
		Text:            "tv",
		SearchablePaths: []SearchableField{{Path: "title", Weight: 1.0}},
		Settings:        settings.Default(),
	}
	parsed := Parse(in)
	if len(parsed.Placeholders) != 1 {
		t.Fatalf("expected a ShortQueryPlaceholder for 'tv', got %+v", parsed.Placeholders)
	}
}

func TestTopNPaths(t *testing.T) {
	if topNPaths(1) != 4 {
		t.Error("expected 4 for short queries")
	}
	if topNPaths(3) != 2 {
		t.Error("expected 2 for 3+-token queries")
	}
}
