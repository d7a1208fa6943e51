package document

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

func TestConvertBasic(t *testing.T) {
	doc := types.Document{
		ObjectID: "obj-1",
		Fields: map[string]types.FieldValue{
			"title":      types.Text("Red Couch"),
			"price":      types.Float(199.99),
			"inStock":    types.Bool(true),
			"categories": types.Array([]types.FieldValue{types.Text("Furniture > Sofas"), types.Text("Sale")}),
		},
	}
	cfg := settings.Default()
	cfg.AttributesForFaceting = []string{"categories"}

	seg := Convert(doc, cfg)

	assert.Equal(t, "obj-1", seg.ObjectID)
	assert.Contains(t, seg.JSONSearch, "Red Couch")
	assert.Contains(t, seg.JSONSearch, "Furniture > Sofas")
	assert.Equal(t, "obj-1", seg.JSONFilter["objectID"])
	assert.Equal(t, 199.99, seg.JSONFilter["price"])
	assert.Equal(t, true, seg.JSONFilter["inStock"])

	assert.ElementsMatch(t, []string{"Furniture", "Furniture > Sofas", "Sale"}, seg.Facets["categories"])
}

func TestConvertFacetOnlyDeclared(t *testing.T) {
	doc := types.Document{
		ObjectID: "obj-2",
		Fields: map[string]types.FieldValue{
			"brand": types.Text("Acme"),
			"color": types.Text("blue"),
		},
	}
	cfg := settings.Default()
	cfg.AttributesForFaceting = []string{"brand"}

	seg := Convert(doc, cfg)
	assert.Contains(t, seg.Facets, "brand")
	assert.NotContains(t, seg.Facets, "color")
}

func TestConvertGeoLoc(t *testing.T) {
	doc := types.Document{
		ObjectID: "obj-3",
		Fields: map[string]types.FieldValue{
			"_geoloc": types.Object(map[string]types.FieldValue{
				"lat": types.Float(40.7128),
				"lng": types.Float(-74.0060),
			}),
		},
	}
	seg := Convert(doc, settings.Default())
	if assert.Len(t, seg.Geo, 1) {
		assert.InDelta(t, 40.7128, seg.Geo[0].Lat, 0.0001)
		assert.InDelta(t, -74.0060, seg.Geo[0].Lng, 0.0001)
	}
}

func TestConvertGeoLocInvalidDropped(t *testing.T) {
	doc := types.Document{
		ObjectID: "obj-4",
		Fields: map[string]types.FieldValue{
			"_geoloc": types.Object(map[string]types.FieldValue{
				"lat": types.Float(999),
				"lng": types.Float(0),
			}),
		},
	}
	seg := Convert(doc, settings.Default())
	assert.Empty(t, seg.Geo)
}

func TestConvertGeoLocArray(t *testing.T) {
	doc := types.Document{
		ObjectID: "obj-5",
		Fields: map[string]types.FieldValue{
			"_geoloc": types.Array([]types.FieldValue{
				types.Object(map[string]types.FieldValue{"lat": types.Float(1), "lng": types.Float(2)}),
				types.Object(map[string]types.FieldValue{"lat": types.Float(3), "lng": types.Float(4)}),
			}),
		},
	}
	seg := Convert(doc, settings.Default())
	assert.Len(t, seg.Geo, 2)
}

func TestFacetValueTruncation(t *testing.T) {
	long := make([]byte, 1500)
	for i := range long {
		long[i] = 'a'
	}
	paths := hierarchicalPaths(string(long))
	assert.Len(t, paths[0], facetValueMaxLen)
}
