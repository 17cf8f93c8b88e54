package flatten

import (
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NoIndex marks rows that did not originate inside a list.
const NoIndex = -1

// Row is one flattened row. ParentID is empty for the root row.
type Row struct {
	Table     string
	ID        string
	ParentID  string
	ListIndex int
	Values    map[string]any
}

// Flatten converts one nested record into rows, depth-first, parents
// before children. The root row is always first. List order is
// preserved via ListIndex.
func Flatten(schema *Table, record map[string]any) ([]Row, error) {
	if schema == nil {
		return nil, errors.New("flatten: nil schema")
	}
	if record == nil {
		return nil, errors.New("flatten: nil record")
	}
	var rows []Row
	walk(schema, record, "", NoIndex, &rows)
	return rows, nil
}

func walk(schema *Table, record map[string]any, parentID string, index int, out *[]Row) {
	row := Row{
		Table:     schema.Name,
		ID:        uuid.NewString(),
		ParentID:  parentID,
		ListIndex: index,
		Values:    make(map[string]any),
	}

	// Children are collected first so the parent row can be appended
	// before recursing, keeping parents ahead of children in output.
	type pending struct {
		field Field
		items []map[string]any
	}
	type pendingScalars struct {
		field Field
		items []any
	}
	var records []pending
	var scalars []pendingScalars

	for _, f := range schema.Fields {
		raw, ok := record[f.Name]
		switch f.Kind {
		case Scalar:
			if !ok {
				row.Values[f.Name] = nil
				continue
			}
			row.Values[f.Name] = coerceScalar(raw)
		case Record:
			nested, _ := raw.(map[string]any)
			flattenInto(row.Values, f.Name, f.Fields, nested)
		case ScalarList:
			items, _ := raw.([]any)
			scalars = append(scalars, pendingScalars{field: f, items: items})
		case RecordList:
			items := recordSlice(raw)
			records = append(records, pending{field: f, items: items})
		}
	}

	*out = append(*out, row)

	for _, p := range scalars {
		for i, item := range p.items {
			*out = append(*out, Row{
				Table:     ScalarListTable(schema.Name, p.field.Name),
				ID:        uuid.NewString(),
				ParentID:  row.ID,
				ListIndex: i,
				Values:    map[string]any{ValueColumn: coerceScalar(item)},
			})
		}
	}
	for _, p := range records {
		for i, item := range p.items {
			walk(p.field.Child, item, row.ID, i, out)
		}
	}
}

// flattenInto writes a nested record's scalars onto the parent row
// under prefix__name column keys. A nil or malformed nested record
// degrades to all-nil columns, never an error.
func flattenInto(values map[string]any, prefix string, fields []Field, nested map[string]any) {
	for _, f := range fields {
		key := prefix + "__" + f.Name
		switch f.Kind {
		case Scalar:
			if nested == nil {
				values[key] = nil
				continue
			}
			raw, ok := nested[f.Name]
			if !ok {
				values[key] = nil
				continue
			}
			values[key] = coerceScalar(raw)
		case Record:
			var inner map[string]any
			if nested != nil {
				inner, _ = nested[f.Name].(map[string]any)
			}
			flattenInto(values, key, f.Fields, inner)
		default:
			// Lists nested inside Record fields are not part of any
			// upstream shape this engine consumes.
		}
	}
}

func recordSlice(raw any) []map[string]any {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// coerceScalar keeps JSON primitives as-is and degrades structured
// values (objects, arrays) appearing where a scalar was expected to
// nil rather than failing the record.
func coerceScalar(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case string, bool, float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return nil
	}
}

// =============================================================================
// VALUE ACCESS & COALESCING
// =============================================================================

// CoalesceFloat resolves a value the source reports under two possible
// field names, depending on how it typed the record: prefer the first,
// fall back to the second, default to sentinel when both are absent.
// Picking the wrong field silently corrupts downstream percentages, so
// this is a named, directly tested function rather than inline logic.
func CoalesceFloat(first, second *float64, sentinel float64) float64 {
	if first != nil {
		return *first
	}
	if second != nil {
		return *second
	}
	return sentinel
}

// AsFloat extracts a float from a flattened row value.
func AsFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// AsString extracts a string from a flattened row value.
func AsString(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// AsBool extracts a bool from a flattened row value.
func AsBool(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

// AsInt extracts an integer from a flattened row value. JSON numbers
// arrive as float64; fractional values are not integers and yield nil.
func AsInt(v any) *int {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	if f != math.Trunc(f) {
		return nil
	}
	n := int(f)
	return &n
}
