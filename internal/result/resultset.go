package result

import (
	"database/sql"
	"fmt"
)

// ResultSet is an ordered table of values. Column order is the order the
// backend reported, and row order is the order rows were read.
type ResultSet struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// Row is a read-only view of one row keyed by column name
type Row map[string]Value

// Empty reports whether there are no rows
func (r *ResultSet) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Len returns the number of rows
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}

	return len(r.Rows)
}

// Scalar returns the single cell of a 1x1 result
func (r *ResultSet) Scalar() (Value, bool) {
	if r == nil || len(r.Columns) != 1 || len(r.Rows) != 1 || len(r.Rows[0]) != 1 {
		return Null, false
	}

	return r.Rows[0][0], true
}

// Row returns row i keyed by column name. With duplicate column names the
// rightmost cell wins; use Rows for positional access.
func (r *ResultSet) Row(i int) Row {
	row := make(Row, len(r.Columns))

	for j, col := range r.Columns {
		if j < len(r.Rows[i]) {
			row[col] = r.Rows[i][j]
		}
	}

	return row
}

// Maps returns every row keyed by column name
func (r *ResultSet) Maps() []Row {
	out := make([]Row, 0, r.Len())
	for i := range r.Len() {
		out = append(out, r.Row(i))
	}

	return out
}

// Head returns a copy holding at most n rows
func (r *ResultSet) Head(n int) *ResultSet {
	if n < 0 || n >= r.Len() {
		return r
	}

	return &ResultSet{Columns: r.Columns, Rows: r.Rows[:n]}
}

// Scan reads every remaining row of rows into a ResultSet
func Scan(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	set := &ResultSet{Columns: columns, Rows: [][]Value{}}

	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))

		for i := range raw {
			ptrs[i] = &raw[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make([]Value, len(columns))
		for i, v := range raw {
			row[i] = FromDriver(v)
		}

		set.Rows = append(set.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return set, nil
}
