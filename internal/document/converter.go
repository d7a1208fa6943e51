package document

import (
	"strings"

	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

const facetValueMaxLen = 1000

// Segment is the physical representation a Document is converted into
// before being handed to the segment store (spec §3/§4.3).
type Segment struct {
	ObjectID string

	// JSONSearch is full-text, n-gram/prefix-indexed.
	JSONSearch string
	// JSONExact is full-text, exact-term-indexed (no prefix expansion).
	JSONExact string
	// JSONFilter is the typed object used for filter/sort evaluation and
	// projection on response.
	JSONFilter map[string]any
	// Facets maps a declared faceting path to every progressive value
	// along its hierarchy (spec: "split on \"> \" into progressive paths").
	Facets map[string][]string
	// Geo holds every valid {lat,lng} extracted from _geoloc.
	Geo []types.GeoPoint
}

// Convert turns a Document into its Segment form given the tenant's
// current faceting declarations (spec §4.3).
func Convert(doc types.Document, cfg settings.IndexSettings) Segment {
	seg := Segment{
		ObjectID:   doc.ObjectID,
		JSONFilter: make(map[string]any),
		Facets:     make(map[string][]string),
	}
	seg.JSONFilter["objectID"] = doc.ObjectID

	var searchParts, exactParts []string
	facetAttrs := cfg.FacetingAttributes()

	for path, v := range doc.Fields {
		if path == "_geoloc" {
			seg.Geo = extractGeoPoints(v)
			seg.JSONFilter[path] = fieldToFilterValue(v)
			continue
		}

		seg.JSONFilter[path] = fieldToFilterValue(v)

		s, e := searchableText(v)
		if s != "" {
			searchParts = append(searchParts, s)
		}
		if e != "" {
			exactParts = append(exactParts, e)
		}

		if fa, ok := matchFacetAttribute(path, facetAttrs); ok {
			for _, val := range facetValues(v) {
				seg.Facets[fa.Path] = append(seg.Facets[fa.Path], hierarchicalPaths(val)...)
			}
		}
	}

	seg.JSONSearch = strings.Join(searchParts, " ")
	seg.JSONExact = strings.Join(exactParts, " ")
	return seg
}

// searchableText returns the text contributed to the search and exact
// fields for a single field value (spec §4.3: string leaves only;
// arrays of strings joined by a single space).
func searchableText(v types.FieldValue) (search, exact string) {
	switch v.Kind {
	case types.FieldText, types.FieldFacet:
		return v.Text, v.Text
	case types.FieldArray:
		var parts []string
		for _, e := range v.Array {
			if e.IsScalarString() {
				parts = append(parts, e.Text)
			}
		}
		joined := strings.Join(parts, " ")
		return joined, joined
	default:
		return "", ""
	}
}

func fieldToFilterValue(v types.FieldValue) any {
	switch v.Kind {
	case types.FieldNull:
		return nil
	case types.FieldText, types.FieldFacet:
		return v.Text
	case types.FieldInteger:
		return v.Int
	case types.FieldFloat:
		return v.Float
	case types.FieldBool:
		return v.Bool
	case types.FieldDate:
		return v.Time
	case types.FieldArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = fieldToFilterValue(e)
		}
		return out
	case types.FieldObject:
		out := make(map[string]any, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = fieldToFilterValue(e)
		}
		return out
	default:
		return nil
	}
}

// matchFacetAttribute reports whether path is declared in
// attributesForFaceting, or is an ancestor of a declared "a > b > c"
// hierarchical path (spec: "emitted only if the field is declared ...
// or is an ancestor of one").
func matchFacetAttribute(path string, attrs []settings.FacetingAttribute) (settings.FacetingAttribute, bool) {
	for _, fa := range attrs {
		if fa.Path == path {
			return fa, true
		}
		if strings.HasPrefix(fa.Path, path+" > ") {
			return settings.FacetingAttribute{Path: path, FilterOnly: fa.FilterOnly}, true
		}
	}
	return settings.FacetingAttribute{}, false
}

func facetValues(v types.FieldValue) []string {
	switch v.Kind {
	case types.FieldText, types.FieldFacet:
		return []string{v.Text}
	case types.FieldArray:
		var out []string
		for _, e := range v.Array {
			out = append(out, facetValues(e)...)
		}
		return out
	default:
		return nil
	}
}

// hierarchicalPaths splits a "a > b > c" facet value into progressive
// paths ["a", "a > b", "a > b > c"], each truncated at 1000 characters
// (spec §4.3).
func hierarchicalPaths(val string) []string {
	segs := strings.Split(val, "> ")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
	}
	out := make([]string, 0, len(segs))
	acc := ""
	for i, s := range segs {
		if i == 0 {
			acc = s
		} else {
			acc = acc + " > " + s
		}
		out = append(out, truncate(acc, facetValueMaxLen))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func extractGeoPoints(v types.FieldValue) []types.GeoPoint {
	var pts []types.GeoPoint
	switch v.Kind {
	case types.FieldObject:
		if p, ok := geoPointFromObject(v.Obj); ok {
			pts = append(pts, p)
		}
	case types.FieldArray:
		for _, e := range v.Array {
			pts = append(pts, extractGeoPoints(e)...)
		}
	}
	return pts
}

func geoPointFromObject(obj map[string]types.FieldValue) (types.GeoPoint, bool) {
	lat, latOK := numericField(obj["lat"])
	lng, lngOK := numericField(obj["lng"])
	if !latOK || !lngOK {
		return types.GeoPoint{}, false
	}
	p := types.GeoPoint{Lat: lat, Lng: lng}
	return p, p.Valid()
}

func numericField(v types.FieldValue) (float64, bool) {
	switch v.Kind {
	case types.FieldFloat:
		return v.Float, true
	case types.FieldInteger:
		return float64(v.Int), true
	default:
		return 0, false
	}
}
