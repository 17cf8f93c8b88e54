/*
Package flatten converts nested records of unknown/variable shape into
flat rows across parent/child tables.

PURPOSE:
  The upstream catalog delivers deeply nested JSON (stores with nested
  hour windows, each with nested hourly occupancy samples; stores with
  nested clearance offers). Relational storage needs flat rows with
  stable identity, a back-reference to the parent row, and the position
  within any list a row came from. This package does exactly that
  conversion, driven by a schema tree, at arbitrary nesting depth.

SCHEMA MODEL:
  A Table describes one level of the tree. Each field is one of:
    Scalar      a leaf value stored on the row itself
    Record      a nested single object, flattened into the parent row
                with "field__"-prefixed column names (address.zip
                becomes address__zip)
    ScalarList  a list of leaf values, one child row per element
    RecordList  a list of nested objects, one child row per element in
                the child table

ROW IDENTITY:
  Every emitted row gets a synthetic UUID. Child rows carry their
  parent's UUID and their zero-based list index. The stored tree can be
  re-nested losslessly by following (ParentID, ListIndex).

FAILURE MODE:
  Malformed scalars (wrong JSON type, missing keys) degrade to nil
  values on the row. An empty or absent list emits zero child rows.
  Neither aborts the record: one bad store must not block the rest of
  the batch.

SEE ALSO:
  - flatten.go: the recursive walk and value coercion
  - ingest/shape.go: the concrete schemas for the upstream catalog
*/
package flatten

// FieldKind classifies how a source field maps onto rows.
type FieldKind int

const (
	Scalar FieldKind = iota
	Record
	ScalarList
	RecordList
)

// Field describes one named field of a table node.
type Field struct {
	Name string
	Kind FieldKind

	// Fields holds the nested shape for Record fields.
	Fields []Field

	// Child holds the child table for RecordList fields.
	Child *Table
}

// Table is one node of the schema tree.
type Table struct {
	Name   string
	Fields []Field
}

// ScalarListTable returns the derived child table name for a
// list-of-scalar field, mirroring the parent__field convention used
// for nested record columns.
func ScalarListTable(parent, field string) string {
	return parent + "__" + field
}

// scalar list child rows store their element under this column.
const ValueColumn = "value"
