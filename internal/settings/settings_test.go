package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageListJSON(t *testing.T) {
	var l LanguageList
	require.NoError(t, l.UnmarshalJSON([]byte("true")))
	assert.True(t, l.Enabled)

	require.NoError(t, l.UnmarshalJSON([]byte(`["en","fr"]`)))
	assert.True(t, l.Enabled)
	assert.Equal(t, []string{"en", "fr"}, l.Languages)

	data, err := l.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["en","fr"]`, string(data))
}

func TestParseFacetingAttribute(t *testing.T) {
	fa := ParseFacetingAttribute("filterOnly(color)")
	assert.Equal(t, FacetingAttribute{Path: "color", FilterOnly: true}, fa)

	fa = ParseFacetingAttribute("brand")
	assert.Equal(t, FacetingAttribute{Path: "brand"}, fa)
}

func TestParseCustomRanking(t *testing.T) {
	r, ok := ParseCustomRanking("desc(popularity)")
	require.True(t, ok)
	assert.Equal(t, CustomRankingRule{Field: "popularity", Descending: true}, r)

	r, ok = ParseCustomRanking("asc(price)")
	require.True(t, ok)
	assert.Equal(t, CustomRankingRule{Field: "price", Descending: false}, r)

	_, ok = ParseCustomRanking("popularity")
	assert.False(t, ok)
}

func TestDefaultSettings(t *testing.T) {
	s := Default()
	assert.Equal(t, QueryTypePrefixLast, s.QueryType)
	assert.True(t, s.TypoTolerance)
	assert.Equal(t, 4, s.MinWordSizeFor1Typo)
}

func TestSynonymStoreExpandQuery(t *testing.T) {
	s := SynonymStore{Groups: []SynonymGroup{
		{ID: "g1", Words: []string{"couch", "sofa"}},
	}}
	s.Build()

	out := s.ExpandQuery("red couch")
	assert.Contains(t, out, "red couch")
	assert.Contains(t, out, "red sofa")

	out = s.ExpandQuery("blue chair")
	assert.Equal(t, []string{"blue chair"}, out)
}

func TestRuleStoreApplyRules(t *testing.T) {
	rs := RuleStore{Rules: []Rule{
		{
			ObjectID: "promo-shoes",
			Enabled:  true,
			Conditions: []Condition{
				{Pattern: "shoes", Anchoring: AnchorContains},
			},
			Consequence: Consequence{
				Promote: []Promotion{{ObjectID: "sku-1", Position: 0}},
				Hide:    []string{"sku-discontinued"},
			},
		},
		{
			ObjectID:   "disabled-rule",
			Enabled:    false,
			Conditions: []Condition{{Pattern: "shoes", Anchoring: AnchorContains}},
		},
	}}

	eff := rs.ApplyRules("running shoes", "", 1000)
	assert.Equal(t, []Promotion{{ObjectID: "sku-1", Position: 0}}, eff.Pins)
	assert.True(t, eff.Hides["sku-discontinued"])
	assert.Equal(t, []string{"promo-shoes"}, eff.AppliedRules)

	eff = rs.ApplyRules("hats", "", 1000)
	assert.Empty(t, eff.Pins)
}

func TestRuleValidityWindow(t *testing.T) {
	r := Rule{
		ObjectID: "seasonal",
		Enabled:  true,
		Validity: []Validity{{From: 100, Until: 200}},
	}
	assert.True(t, r.active(150))
	assert.False(t, r.active(50))
	assert.False(t, r.active(250))
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, "tenant1", "settings", Default)

	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, Default(), got)

	custom := Default()
	custom.AttributeForDistinct = "sku"
	require.NoError(t, store.Save(custom))

	got, err = store.Get()
	require.NoError(t, err)
	assert.Equal(t, "sku", got.AttributeForDistinct)

	store.Invalidate()
	got, err = store.Get()
	require.NoError(t, err)
	assert.Equal(t, "sku", got.AttributeForDistinct)

	path := filepath.Join(dir, "tenant1", "settings.json")
	assert.FileExists(t, path)
}

func TestTenantConfigLoadSynonyms(t *testing.T) {
	dir := t.TempDir()
	cfg := NewTenantConfig(dir, "tenant1")
	require.NoError(t, cfg.Synonyms.Save(SynonymStore{Groups: []SynonymGroup{
		{ID: "g1", Words: []string{"tv", "television"}},
	}}))

	syn, err := cfg.LoadSynonyms()
	require.NoError(t, err)
	assert.Contains(t, syn.ExpandQuery("smart tv"), "smart television")
}
