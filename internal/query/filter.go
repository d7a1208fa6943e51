package query

import (
	"strconv"
	"strings"
)

// Filter is the AST of spec §4.7.1, evaluated against a hit's
// _json_filter representation after retrieval. Filtering post-search
// rather than pre-translating to segment-store range queries keeps the
// evaluator engine-agnostic and able to reason about the full typed
// value (arrays, nested objects) the way the converter produced it.
type Filter interface {
	Eval(doc map[string]any) bool
}

type andFilter struct{ items []Filter }
type orFilter struct{ items []Filter }
type notFilter struct{ inner Filter }

func And(items ...Filter) Filter { return andFilter{items} }
func Or(items ...Filter) Filter  { return orFilter{items} }
func Not(f Filter) Filter        { return notFilter{f} }

func (f andFilter) Eval(doc map[string]any) bool {
	for _, i := range f.items {
		if !i.Eval(doc) {
			return false
		}
	}
	return true
}

func (f orFilter) Eval(doc map[string]any) bool {
	if len(f.items) == 0 {
		return true
	}
	for _, i := range f.items {
		if i.Eval(doc) {
			return true
		}
	}
	return false
}

func (f notFilter) Eval(doc map[string]any) bool { return !f.inner.Eval(doc) }

type cmpOp int

const (
	opEquals cmpOp = iota
	opNotEquals
	opGreaterThan
	opGreaterThanOrEqual
	opLessThan
	opLessThanOrEqual
)

// Comparison is a leaf Equals/NotEquals/GreaterThan/.../LessThanOrEqual
// node over one field path.
type Comparison struct {
	Field string
	Op    cmpOp
	Value any
}

func Equals(field string, v any) Comparison { return Comparison{field, opEquals, v} }
func NotEquals(field string, v any) Comparison { return Comparison{field, opNotEquals, v} }
func GreaterThan(field string, v any) Comparison { return Comparison{field, opGreaterThan, v} }
func GreaterThanOrEqual(field string, v any) Comparison {
	return Comparison{field, opGreaterThanOrEqual, v}
}
func LessThan(field string, v any) Comparison { return Comparison{field, opLessThan, v} }
func LessThanOrEqual(field string, v any) Comparison {
	return Comparison{field, opLessThanOrEqual, v}
}

func (c Comparison) Eval(doc map[string]any) bool {
	actual, ok := doc[c.Field]
	switch c.Op {
	case opEquals:
		return ok && equalValue(actual, c.Value)
	case opNotEquals:
		return !ok || !equalValue(actual, c.Value)
	default:
		if !ok {
			return false
		}
		af, aok := toFloat(actual)
		vf, vok := toFloat(c.Value)
		if !aok || !vok {
			return false
		}
		switch c.Op {
		case opGreaterThan:
			return af > vf
		case opGreaterThanOrEqual:
			return af >= vf
		case opLessThan:
			return af < vf
		case opLessThanOrEqual:
			return af <= vf
		}
		return false
	}
}

func equalValue(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ParseFacetFilters parses the Algolia-style facetFilters shape: an AND
// of entries, each either a single "field:value" string or an OR-array
// of such strings, with optional leading "-" negation (spec §4.7.1).
func ParseFacetFilters(entries []any) Filter {
	var clauses []Filter
	for _, e := range entries {
		switch v := e.(type) {
		case string:
			clauses = append(clauses, facetFilterClause(v))
		case []any:
			var orClauses []Filter
			for _, s := range v {
				if str, ok := s.(string); ok {
					orClauses = append(orClauses, facetFilterClause(str))
				}
			}
			clauses = append(clauses, Or(orClauses...))
		}
	}
	return And(clauses...)
}

func facetFilterClause(raw string) Filter {
	negate := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	field, value, _ := strings.Cut(raw, ":")
	c := Equals(field, value)
	if negate {
		return Not(c)
	}
	return c
}

// ParseNumericFilters parses the Algolia-style numericFilters shape:
// "field op value" strings with op in {>=, <=, !=, >, <, =} (spec
// §4.7.1).
func ParseNumericFilters(entries []string) Filter {
	var clauses []Filter
	ops := []struct {
		token string
		op    cmpOp
	}{
		{">=", opGreaterThanOrEqual}, {"<=", opLessThanOrEqual},
		{"!=", opNotEquals}, {">", opGreaterThan}, {"<", opLessThan}, {"=", opEquals},
	}
	for _, raw := range entries {
		for _, o := range ops {
			if idx := strings.Index(raw, o.token); idx > 0 {
				field := strings.TrimSpace(raw[:idx])
				valStr := strings.TrimSpace(raw[idx+len(o.token):])
				val, err := strconv.ParseFloat(valStr, 64)
				if err != nil {
					break
				}
				clauses = append(clauses, Comparison{Field: field, Op: o.op, Value: val})
				break
			}
		}
	}
	return And(clauses...)
}
