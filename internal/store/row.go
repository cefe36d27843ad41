package store

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Row maps column names to values in result column order. Setting a name
// twice keeps the first position and the last value, which is how duplicate
// column names in a select list collapse.
type Row struct {
	cols *orderedmap.OrderedMap[string, Value]
}

// NewRow returns an empty row sized for n columns.
func NewRow(n int) *Row {
	return &Row{cols: orderedmap.New[string, Value](n)}
}

// Set assigns a column value.
func (r *Row) Set(column string, v Value) {
	r.cols.Set(column, v)
}

// Get returns a column value.
func (r *Row) Get(column string) (Value, bool) {
	return r.cols.Get(column)
}

// Len returns the number of distinct columns.
func (r *Row) Len() int {
	return r.cols.Len()
}

// Columns returns column names in order.
func (r *Row) Columns() []string {
	names := make([]string, 0, r.cols.Len())
	for pair := r.cols.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Each visits columns in order.
func (r *Row) Each(fn func(column string, v Value)) {
	for pair := r.cols.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Map replaces every value with fn's result, keeping order.
func (r *Row) Map(fn func(column string, v Value) Value) {
	for pair := r.cols.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value = fn(pair.Key, pair.Value)
	}
}

func (r *Row) MarshalJSON() ([]byte, error) {
	return r.cols.MarshalJSON()
}

// Rows is an ordered query result. It always marshals as a JSON array.
type Rows []*Row

func (rs Rows) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]*Row(rs))
}
