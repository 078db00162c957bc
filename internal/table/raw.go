package table

import (
	"fmt"
	"strings"
)

// Raw is a table exactly as it was published by the source. Column names
// are unique, every row has exactly len(Columns) cells.
type Raw struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewRaw builds a Raw from a header and rows. Repeated header names get a
// `.1`, `.2`, ... suffix, empty names become their position, short rows are
// padded with empty cells and long rows are truncated.
func NewRaw(header []string, rows [][]string) Raw {
	columns := make([]string, len(header))
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprint(i)
		}
		unique := name
		for n := 1; ; n++ {
			if _, taken := index[unique]; !taken {
				break
			}
			unique = fmt.Sprintf("%s.%d", name, n)
		}
		columns[i] = unique
		index[unique] = i
	}

	fixed := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(columns))
		copy(cells, row)
		fixed[i] = cells
	}

	return Raw{
		Columns: columns,
		Rows:    fixed,
		index:   index,
	}
}

// Len returns the amount of rows in the table.
func (r Raw) Len() int {
	return len(r.Rows)
}

// Index returns the position of a column, or -1 if the table has no such column.
func (r Raw) Index(column string) int {
	if r.index == nil {
		for i, c := range r.Columns {
			if c == column {
				return i
			}
		}
		return -1
	}
	i, ok := r.index[column]
	if !ok {
		return -1
	}
	return i
}

// Value returns the cell of `row` under `column`.
func (r Raw) Value(row int, column string) (string, bool) {
	i := r.Index(column)
	if i < 0 || row < 0 || row >= len(r.Rows) {
		return "", false
	}
	return r.Rows[row][i], true
}

// Row returns a single row as a mapping from column name to cell.
func (r Raw) Row(row int) map[string]string {
	out := make(map[string]string, len(r.Columns))
	for i, c := range r.Columns {
		out[c] = r.Rows[row][i]
	}
	return out
}
