// Package types provides shared value types for GoArchive.
package types

import (
	"github.com/elliotchance/orderedmap/v2"
)

// Row is an ordered name->value map for a single database record. Column
// order follows the source SELECT's result set, since tables are discovered
// at runtime rather than bound to a compile-time struct.
type Row = *orderedmap.OrderedMap[string, any]

// NewRow creates an empty Row.
func NewRow() Row {
	return orderedmap.NewOrderedMap[string, any]()
}

// RowFromColumns builds a Row from parallel column-name and value slices,
// preserving the given column order.
func RowFromColumns(columns []string, values []any) Row {
	row := NewRow()
	for i, col := range columns {
		if i < len(values) {
			row.Set(col, values[i])
		}
	}
	return row
}

// Columns returns the row's keys in iteration (insertion) order.
func Columns(row Row) []string {
	cols := make([]string, 0, row.Len())
	for el := row.Front(); el != nil; el = el.Next() {
		cols = append(cols, el.Key)
	}
	return cols
}

// Values returns the row's values in the same order as Columns.
func Values(row Row) []any {
	vals := make([]any, 0, row.Len())
	for el := row.Front(); el != nil; el = el.Next() {
		vals = append(vals, el.Value)
	}
	return vals
}

// Get returns the value stored under column, and whether it was present.
func Get(row Row, column string) (any, bool) {
	return row.Get(column)
}
