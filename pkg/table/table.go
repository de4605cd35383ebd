package table

import (
	"fmt"
)

// Table is an ordered collection of named, equal-length columns. Column names
// are unique; row order is significant and preserved unless an operation
// explicitly reorders or aggregates.
type Table struct {
	names []string
	index map[string]int
	cols  [][]Value
}

// New constructs an empty table with the given column names. Duplicate names
// are rejected.
func New(names ...string) (*Table, error) {
	t := &Table{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
		cols:  make([][]Value, 0, len(names)),
	}
	for _, n := range names {
		if _, dup := t.index[n]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", n)
		}
		t.index[n] = len(t.names)
		t.names = append(t.names, n)
		t.cols = append(t.cols, nil)
	}
	return t, nil
}

// MustNew is New for statically known column sets; it panics on duplicates.
func MustNew(names ...string) *Table {
	t, err := New(names...)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns the column names in order. The slice is a copy.
func (t *Table) Columns() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.names) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0])
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AppendRow appends one cell per column, in column order.
func (t *Table) AppendRow(cells ...Value) error {
	if len(cells) != len(t.names) {
		return fmt.Errorf("table: row has %d cells, want %d", len(cells), len(t.names))
	}
	for i, c := range cells {
		t.cols[i] = append(t.cols[i], c)
	}
	return nil
}

// Column returns the cell slice of the named column. Callers must not mutate
// it; use Clone first for destructive work.
func (t *Table) Column(name string) ([]Value, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// At returns the cell at the given row in the named column. Missing columns
// and out-of-range rows yield null.
func (t *Table) At(row int, name string) Value {
	i, ok := t.index[name]
	if !ok || row < 0 || row >= t.NumRows() {
		return Null()
	}
	return t.cols[i][row]
}

// SetAt overwrites a single cell. Out-of-range addresses are ignored.
func (t *Table) SetAt(row int, name string, v Value) {
	i, ok := t.index[name]
	if !ok || row < 0 || row >= t.NumRows() {
		return
	}
	t.cols[i][row] = v
}

// Row returns a copy of row i in column order.
func (t *Table) Row(i int) []Value {
	out := make([]Value, len(t.names))
	for c := range t.names {
		out[c] = t.cols[c][i]
	}
	return out
}

// AddColumn appends a new column. The cell count must match the current row
// count (any count is accepted on a zero-column table).
func (t *Table) AddColumn(name string, cells []Value) error {
	if _, dup := t.index[name]; dup {
		return fmt.Errorf("table: duplicate column %q", name)
	}
	if len(t.names) > 0 && len(cells) != t.NumRows() {
		return fmt.Errorf("table: column %q has %d cells, want %d", name, len(cells), t.NumRows())
	}
	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	t.cols = append(t.cols, cells)
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := MustNew(t.names...)
	for i := range t.cols {
		out.cols[i] = append([]Value(nil), t.cols[i]...)
	}
	return out
}

// Select returns a new table containing the given row indices, in order. Row
// indices out of range are skipped.
func (t *Table) Select(rows []int) *Table {
	out := MustNew(t.names...)
	n := t.NumRows()
	for _, r := range rows {
		if r < 0 || r >= n {
			continue
		}
		for c := range t.cols {
			out.cols[c] = append(out.cols[c], t.cols[c][r])
		}
	}
	return out
}

// ColumnKind returns the inferred kind of the named column: the kind of its
// first non-null cell, widened to float when the column mixes ints and
// floats. Columns that are entirely null (or missing) report KindNull.
func (t *Table) ColumnKind(name string) Kind {
	col, ok := t.Column(name)
	if !ok {
		return KindNull
	}
	kind := KindNull
	for _, v := range col {
		if v.IsNull() {
			continue
		}
		if kind == KindNull {
			kind = v.Kind()
			continue
		}
		if kind == KindInt && v.Kind() == KindFloat {
			kind = KindFloat
		}
	}
	return kind
}

// FromStrings builds a typed table from a header row and raw string rows, as
// produced by delimited-text readers. Each column's cells are inferred with
// Infer; ragged rows are padded with nulls.
func FromStrings(headers []string, rows [][]string) (*Table, error) {
	t, err := New(headers...)
	if err != nil {
		return nil, err
	}
	cells := make([]Value, len(headers))
	for _, row := range rows {
		for i := range headers {
			if i < len(row) {
				cells[i] = Infer(row[i])
			} else {
				cells[i] = Null()
			}
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}
