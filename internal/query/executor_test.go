package query

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flapjack/internal/document"
	"github.com/cuemby/flapjack/internal/segment"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

func newTestStore(t *testing.T) *segment.Store {
	t.Helper()
	s, err := segment.Open(filepath.Join(t.TempDir(), "tenant1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func index(t *testing.T, s *segment.Store, cfg settings.IndexSettings, docs ...types.Document) {
	t.Helper()
	b := s.NewBatch()
	for _, d := range docs {
		require.NoError(t, b.Upsert(document.Convert(d, cfg)))
	}
	require.NoError(t, s.Commit(b))
}

func doc(id string, fields map[string]types.FieldValue) types.Document {
	return types.Document{ObjectID: id, Fields: fields}
}

func TestSearchBasicRelevance(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	index(t, s, cfg,
		doc("a", map[string]types.FieldValue{"title": types.Text("red leather couch")}),
		doc("b", map[string]types.FieldValue{"title": types.Text("red couch")}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "red couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	parsed := Parse(in)

	res, err := ex.Search(SearchRequest{ParsedQuery: parsed, Limit: 10, Settings: cfg})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Total, 1)
}

func TestSearchFilterAST(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	index(t, s, cfg,
		doc("a", map[string]types.FieldValue{"title": types.Text("couch"), "price": types.Float(50)}),
		doc("b", map[string]types.FieldValue{"title": types.Text("couch"), "price": types.Float(500)}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	parsed := Parse(in)

	res, err := ex.Search(SearchRequest{
		ParsedQuery: parsed,
		Filter:      LessThan("price", 100.0),
		Limit:       10,
		Settings:    cfg,
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "a", res.Documents[0].ObjectID)
}

func TestSearchCustomRankingTieBreak(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	cfg.CustomRanking = []string{"desc(popularity)"}
	index(t, s, cfg,
		doc("low", map[string]types.FieldValue{"title": types.Text("couch"), "popularity": types.Float(1)}),
		doc("high", map[string]types.FieldValue{"title": types.Text("couch"), "popularity": types.Float(9)}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	res, err := ex.Search(SearchRequest{ParsedQuery: Parse(in), Limit: 10, Settings: cfg})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "high", res.Documents[0].ObjectID)
}

func TestSearchExplicitSort(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	index(t, s, cfg,
		doc("a", map[string]types.FieldValue{"title": types.Text("couch"), "price": types.Float(500)}),
		doc("b", map[string]types.FieldValue{"title": types.Text("couch"), "price": types.Float(50)}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	res, err := ex.Search(SearchRequest{
		ParsedQuery: Parse(in),
		Sort:        []SortField{{Field: "price", Descending: false}},
		Limit:       10,
		Settings:    cfg,
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "b", res.Documents[0].ObjectID)
}

func TestSearchDistinct(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	cfg.AttributeForDistinct = "parent"
	cfg.Distinct = 1
	index(t, s, cfg,
		doc("a1", map[string]types.FieldValue{"title": types.Text("couch"), "parent": types.Text("p1")}),
		doc("a2", map[string]types.FieldValue{"title": types.Text("couch"), "parent": types.Text("p1")}),
		doc("b1", map[string]types.FieldValue{"title": types.Text("couch"), "parent": types.Text("p2")}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	res, err := ex.Search(SearchRequest{ParsedQuery: Parse(in), Limit: 10, Settings: cfg})
	require.NoError(t, err)
	assert.Len(t, res.Documents, 2)
}

func TestSearchRuleHidesAndPins(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	index(t, s, cfg,
		doc("a", map[string]types.FieldValue{"title": types.Text("couch")}),
		doc("b", map[string]types.FieldValue{"title": types.Text("couch")}),
		doc("c", map[string]types.FieldValue{"title": types.Text("couch")}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}

	effects := settings.RuleEffects{
		Hides: map[string]bool{"b": true},
		Pins:  []settings.Promotion{{ObjectID: "c", Position: 0}},
	}
	res, err := ex.Search(SearchRequest{ParsedQuery: Parse(in), Limit: 10, Settings: cfg, RuleEffects: effects})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "c", res.Documents[0].ObjectID)
	assert.Equal(t, 2, res.Total)
}

func TestSearchFacets(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	cfg.AttributesForFaceting = []string{"brand"}
	index(t, s, cfg,
		doc("a", map[string]types.FieldValue{"title": types.Text("couch"), "brand": types.Facet("acme")}),
		doc("b", map[string]types.FieldValue{"title": types.Text("couch"), "brand": types.Facet("acme")}),
		doc("c", map[string]types.FieldValue{"title": types.Text("couch"), "brand": types.Facet("other")}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	res, err := ex.Search(SearchRequest{
		ParsedQuery: Parse(in),
		Limit:       10,
		Settings:    cfg,
		Facets:      FacetRequest{Fields: []string{"brand"}, MaxValuesPerFacet: 10},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Facets["brand"])
	assert.Equal(t, int64(2), res.Facets["brand"]["acme"])
	assert.Equal(t, int64(1), res.Facets["brand"]["other"])
}

func TestSearchGeoAround(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	index(t, s, cfg,
		doc("near", map[string]types.FieldValue{
			"title":   types.Text("couch"),
			"_geoloc": types.Object(map[string]types.FieldValue{"lat": types.Float(40.0), "lng": types.Float(-74.0)}),
		}),
		doc("far", map[string]types.FieldValue{
			"title":   types.Text("couch"),
			"_geoloc": types.Object(map[string]types.FieldValue{"lat": types.Float(34.0), "lng": types.Float(-118.0)}),
		}),
	)

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	around := types.GeoPoint{Lat: 40.0, Lng: -74.0}
	res, err := ex.Search(SearchRequest{
		ParsedQuery: Parse(in),
		Limit:       10,
		Settings:    cfg,
		Geo: GeoParams{
			Around:             &around,
			HasAroundRadius:    true,
			AroundRadiusMeters: 1000,
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "near", res.Documents[0].ObjectID)
}

func TestSearchHighlighting(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	index(t, s, cfg, doc("a", map[string]types.FieldValue{"title": types.Text("red leather couch")}))

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "couch", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	res, err := ex.Search(SearchRequest{
		ParsedQuery:           Parse(in),
		Limit:                 10,
		Settings:              cfg,
		AttributesToHighlight: []string{"title"},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	hl, ok := res.Documents[0].Highlights["title"]
	require.True(t, ok)
	assert.Equal(t, MatchPartial, hl.MatchLevel)
}

func TestSearchWithFallbackRemovesWords(t *testing.T) {
	s := newTestStore(t)
	cfg := settings.Default()
	cfg.RemoveWordsIfNoResults = settings.RemoveWordsLastWords
	index(t, s, cfg, doc("a", map[string]types.FieldValue{"title": types.Text("red couch")}))

	ex := NewExecutor(s, nil)
	in := ParserInput{Text: "red couch ottoman", SearchablePaths: []SearchableField{{Path: "title", Weight: 1}}, Settings: cfg}
	res, err := ex.SearchWithFallback(in, SearchRequest{Limit: 10, Settings: cfg})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Total, 1)
}
