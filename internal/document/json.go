// Package document implements the DocumentConverter of spec §4.3: it
// turns a logical Document into the segment store's physical
// representation (search/exact text, filter object, facet paths, geo
// fast fields) and back.
package document

import (
	"fmt"
	"time"

	"github.com/cuemby/flapjack/internal/types"
)

// FromJSON builds a Document from a decoded JSON object (spec §6.3:
// "objectID (or legacy _id) string, plus arbitrary JSON values").
func FromJSON(raw map[string]any) (types.Document, error) {
	objectID, _ := raw["objectID"].(string)
	if objectID == "" {
		objectID, _ = raw["_id"].(string)
	}
	if objectID == "" {
		objectID = NewObjectID()
	}

	fields := make(map[string]types.FieldValue, len(raw))
	for k, v := range raw {
		if k == "objectID" || k == "_id" {
			continue
		}
		fields[k] = fieldValueFromJSON(v)
	}
	return types.Document{ObjectID: objectID, Fields: fields}, nil
}

func fieldValueFromJSON(v any) types.FieldValue {
	switch val := v.(type) {
	case nil:
		return types.FieldValue{Kind: types.FieldNull}
	case string:
		return types.Text(val)
	case bool:
		return types.Bool(val)
	case float64:
		if val == float64(int64(val)) {
			return types.Integer(int64(val))
		}
		return types.Float(val)
	case []any:
		vs := make([]types.FieldValue, len(val))
		for i, e := range val {
			vs[i] = fieldValueFromJSON(e)
		}
		return types.Array(vs)
	case map[string]any:
		m := make(map[string]types.FieldValue, len(val))
		for k, e := range val {
			m[k] = fieldValueFromJSON(e)
		}
		return types.Object(m)
	default:
		return types.Text(fmt.Sprintf("%v", val))
	}
}

// ToJSON renders a Document back to a plain JSON-compatible map,
// including objectID (spec R2: converter round-trip).
func ToJSON(doc types.Document) map[string]any {
	out := make(map[string]any, len(doc.Fields)+1)
	out["objectID"] = doc.ObjectID
	for k, v := range doc.Fields {
		out[k] = fieldValueToJSON(v)
	}
	return out
}

func fieldValueToJSON(v types.FieldValue) any {
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
		return v.Time.Format(time.RFC3339)
	case types.FieldArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = fieldValueToJSON(e)
		}
		return out
	case types.FieldObject:
		out := make(map[string]any, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = fieldValueToJSON(e)
		}
		return out
	default:
		return nil
	}
}
