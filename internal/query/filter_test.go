package query

import (
	"testing"

	"github.com/cuemby/flapjack/internal/types"
)

func TestComparisonEval(t *testing.T) {
	doc := map[string]any{"price": 19.99, "brand": "acme"}

	if !GreaterThan("price", 10.0).Eval(doc) {
		t.Error("expected price > 10 to match")
	}
	if LessThan("price", 10.0).Eval(doc) {
		t.Error("expected price < 10 to not match")
	}
	if !Equals("brand", "acme").Eval(doc) {
		t.Error("expected brand equals")
	}
	if !NotEquals("brand", "other").Eval(doc) {
		t.Error("expected brand not-equals other")
	}
}

func TestAndOrNot(t *testing.T) {
	doc := map[string]any{"price": 5.0, "brand": "acme"}
	f := And(GreaterThan("price", 1.0), Equals("brand", "acme"))
	if !f.Eval(doc) {
		t.Error("expected AND to match")
	}
	f2 := Or(Equals("brand", "nope"), Equals("brand", "acme"))
	if !f2.Eval(doc) {
		t.Error("expected OR to match")
	}
	f3 := Not(Equals("brand", "acme"))
	if f3.Eval(doc) {
		t.Error("expected NOT to exclude")
	}
}

func TestParseFacetFilters(t *testing.T) {
	entries := []any{"brand:acme", []any{"color:red", "color:blue"}, "-discontinued:true"}
	f := ParseFacetFilters(entries)

	match := map[string]any{"brand": "acme", "color": "red", "discontinued": "false"}
	if !f.Eval(match) {
		t.Error("expected facet filter match")
	}
	noMatch := map[string]any{"brand": "acme", "color": "green", "discontinued": "false"}
	if f.Eval(noMatch) {
		t.Error("expected facet filter non-match on missing OR branch")
	}
}

func TestParseNumericFilters(t *testing.T) {
	f := ParseNumericFilters([]string{"price>=10", "price<=100"})
	if !f.Eval(map[string]any{"price": 50.0}) {
		t.Error("expected numeric range match")
	}
	if f.Eval(map[string]any{"price": 200.0}) {
		t.Error("expected numeric range exclude")
	}
}

func TestHaversineRoughDistance(t *testing.T) {
	nyc := gp(40.7128, -74.0060)
	la := gp(34.0522, -118.2437)
	d := HaversineMeters(nyc, la)
	if d < 3_900_000 || d > 4_000_000 {
		t.Errorf("unexpected distance %f", d)
	}
}

func TestBoundingBoxContains(t *testing.T) {
	box := BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 10, MaxLng: 10}
	if !box.Contains(gp(5, 5)) {
		t.Error("expected point inside box")
	}
	if box.Contains(gp(20, 20)) {
		t.Error("expected point outside box")
	}
}

func TestPolygonContains(t *testing.T) {
	poly := Polygon{gp(0, 0), gp(0, 10), gp(10, 10), gp(10, 0)}
	if !poly.Contains(gp(5, 5)) {
		t.Error("expected point inside polygon")
	}
	if poly.Contains(gp(20, 20)) {
		t.Error("expected point outside polygon")
	}
}

func TestHighlightFullMatch(t *testing.T) {
	h := Highlight("red couch", []string{"red", "couch"}, "", "")
	if h.MatchLevel != MatchFull {
		t.Errorf("expected full match, got %v", h.MatchLevel)
	}
}

func TestHighlightPartialMatch(t *testing.T) {
	h := Highlight("red leather couch", []string{"couch"}, "", "")
	if h.MatchLevel != MatchPartial {
		t.Errorf("expected partial match, got %v", h.MatchLevel)
	}
}

func TestFacetCacheRoundTrip(t *testing.T) {
	c := NewFacetCache(10)
	key := Key("tenant1", "brand:acme", []string{"color"})
	c.Put(key, map[string]FacetCounts{"color": {"red": 3}})

	got, ok := c.Get("tenant1", key)
	if !ok || got["color"]["red"] != 3 {
		t.Fatalf("expected cache hit, got %v ok=%v", got, ok)
	}

	c.InvalidateTenant("tenant1")
	_, ok = c.Get("tenant1", key)
	if ok {
		t.Fatal("expected cache miss after invalidation")
	}
}

func gp(lat, lng float64) types.GeoPoint {
	return types.GeoPoint{Lat: lat, Lng: lng}
}
