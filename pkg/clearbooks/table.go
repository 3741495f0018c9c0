package clearbooks

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row maps column name to the cell value.
type Row map[string]string

// Table is a fetched resource: ordered column names and ordered rows.
// Dates are held as YYYY-MM-DD and timestamps as YYYY-MM-DDTHH:MM:SS.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable returns an empty table with the given columns.
func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...), Rows: []Row{}}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether col is part of the table.
func (t *Table) HasColumn(col string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Value returns the cell at row i, column col ("" when absent).
func (t *Table) Value(i int, col string) string {
	if t == nil || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][col]
}

// Column returns every value of col in row order.
func (t *Table) Column(col string) []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[col]
	}
	return out
}

// Float parses the cell at row i, column col. Empty cells read as zero.
func (t *Table) Float(i int, col string) (float64, error) {
	return parseNumber(t.Value(i, col))
}

// Time parses the cell at row i, column col as a date or timestamp.
func (t *Table) Time(i int, col string) (time.Time, error) {
	v := strings.TrimSpace(t.Value(i, col))
	for _, layout := range []string{isoDateTime, isoDate} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s row %d: %q is not a date", col, i, v)
}

// Append adds the rows of other. Columns missing from t are appended to its column list;
// cells a row does not have read as "".
func (t *Table) Append(other *Table) {
	if t == nil || other == nil {
		return
	}
	for _, c := range other.Columns {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
		}
	}
	for _, r := range other.Rows {
		t.Rows = append(t.Rows, r.clone())
	}
}

// Equal reports whether both tables have the same columns in the same order and equal rows.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Columns) != len(other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for _, c := range t.Columns {
			if t.Rows[i][c] != other.Rows[i][c] {
				return false
			}
		}
	}
	return true
}

// Values returns the cells of row i in column order.
func (t *Table) Values(i int) []string {
	if t == nil || i < 0 || i >= len(t.Rows) {
		return nil
	}
	out := make([]string, len(t.Columns))
	for j, c := range t.Columns {
		out[j] = t.Rows[i][c]
	}
	return out
}

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

const isoDateTime = "2006-01-02T15:04:05"

func parseNumber(raw string) (float64, error) {
	v := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}
