// Package types holds the data model shared across the flapjack core:
// documents, field values, tasks and OpLog entries (spec §3).
package types

import "time"

// FieldKind identifies the dynamic type carried by a FieldValue.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldInteger
	FieldFloat
	FieldBool
	FieldDate
	FieldFacet
	FieldArray
	FieldObject
	FieldNull
)

// FieldValue is the tagged union described in spec §3: a Document's leaf
// or composite values. Only one of the typed accessors is valid for a
// given Kind.
type FieldValue struct {
	Kind  FieldKind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
	Array []FieldValue
	Obj   map[string]FieldValue
}

func Text(s string) FieldValue          { return FieldValue{Kind: FieldText, Text: s} }
func Integer(i int64) FieldValue        { return FieldValue{Kind: FieldInteger, Int: i} }
func Float(f float64) FieldValue        { return FieldValue{Kind: FieldFloat, Float: f} }
func Bool(b bool) FieldValue            { return FieldValue{Kind: FieldBool, Bool: b} }
func Date(t time.Time) FieldValue       { return FieldValue{Kind: FieldDate, Time: t} }
func Facet(s string) FieldValue         { return FieldValue{Kind: FieldFacet, Text: s} }
func Array(vs []FieldValue) FieldValue  { return FieldValue{Kind: FieldArray, Array: vs} }
func Object(m map[string]FieldValue) FieldValue {
	return FieldValue{Kind: FieldObject, Obj: m}
}

// IsScalarString reports whether the leaf value contributes to full-text
// search (spec §4.3: "Field values whose leaf is a string contribute to
// both _json_search and _json_exact").
func (v FieldValue) IsScalarString() bool {
	return v.Kind == FieldText || v.Kind == FieldFacet
}

// Document is a logical, tenant-scoped record: an externally or
// server-assigned object id plus a bag of named field values.
type Document struct {
	ObjectID string
	Fields   map[string]FieldValue
}

// GeoPoint is a single {lat,lng} pair extracted from a `_geoloc` field.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is within the legal lat/lng ranges
// (spec §4.3).
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
