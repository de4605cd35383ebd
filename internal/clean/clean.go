// Package clean applies deterministic row/column repairs to a table:
// duplicate removal, null handling, whitespace trimming, and date/email
// normalization. Every operation returns a new table and logs what it
// changed; malformed cell values degrade to null instead of failing, and
// declared columns that are absent are silently ignored.
package clean

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"salesetl/pkg/table"
)

// DuplicatePolicy selects which copy of a duplicated row survives.
type DuplicatePolicy string

const (
	// KeepFirst keeps the first occurrence. Default.
	KeepFirst DuplicatePolicy = "first"
	// KeepLast keeps the last occurrence.
	KeepLast DuplicatePolicy = "last"
	// DropAll removes every copy of any duplicated row.
	DropAll DuplicatePolicy = "drop_all"
)

// NullStrategy selects how nulls are handled.
type NullStrategy string

const (
	// Fill replaces nulls using a FillMethod.
	Fill NullStrategy = "fill"
	// Drop removes any row holding a null in the checked columns.
	Drop NullStrategy = "drop"
	// Skip leaves nulls untouched.
	Skip NullStrategy = "skip"
)

// FillMethod selects the replacement value for Fill.
type FillMethod string

const (
	// Constant fills with NullOptions.Constant.
	Constant FillMethod = "constant"
	// Mean fills numeric columns with the column mean; non-numeric columns
	// are skipped.
	Mean FillMethod = "mean"
	// Median fills numeric columns with the column median; non-numeric
	// columns are skipped.
	Median FillMethod = "median"
	// Mode fills with the first most-frequent non-null value.
	Mode FillMethod = "mode"
	// Forward propagates the last non-null value downward.
	Forward FillMethod = "forward"
	// Backward propagates the next non-null value upward.
	Backward FillMethod = "backward"
)

// NullOptions configures HandleNulls.
type NullOptions struct {
	Strategy NullStrategy
	Method   FillMethod
	Constant table.Value
	// Columns limits the checked columns; empty means all.
	Columns []string
}

// RemoveDuplicates drops rows identical across the subset columns (all
// columns when subset is empty) according to policy. Row order of survivors
// is preserved.
func RemoveDuplicates(t *table.Table, subset []string, policy DuplicatePolicy) *table.Table {
	if policy == "" {
		policy = KeepFirst
	}
	cols := subset
	if len(cols) == 0 {
		cols = t.Columns()
	} else {
		cols = presentColumns(t, cols)
	}

	// Group rows by identity hash, confirming with a cell compare so hash
	// collisions cannot merge distinct rows.
	type group struct {
		first []table.Value
		rows  []int
	}
	groups := map[uint64][]*group{}
	order := make([]*group, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		key := make([]table.Value, len(cols))
		for c, name := range cols {
			key[c] = t.At(i, name)
		}
		h := hashRow(key)
		var g *group
		for _, cand := range groups[h] {
			if rowsEqual(cand.first, key) {
				g = cand
				break
			}
		}
		if g == nil {
			g = &group{first: key}
			groups[h] = append(groups[h], g)
			order = append(order, g)
		}
		g.rows = append(g.rows, i)
	}

	var keep []int
	for _, g := range order {
		switch policy {
		case KeepLast:
			keep = append(keep, g.rows[len(g.rows)-1])
		case DropAll:
			if len(g.rows) == 1 {
				keep = append(keep, g.rows[0])
			}
		default:
			keep = append(keep, g.rows[0])
		}
	}
	sort.Ints(keep)

	out := t.Select(keep)
	if removed := t.NumRows() - out.NumRows(); removed > 0 {
		log.Printf("clean: removed %d duplicate rows policy=%s", removed, policy)
	}
	return out
}

// hashRow computes a stable identity for a row slice: kind byte plus
// canonical string form per cell, separated by unit separators.
func hashRow(cells []table.Value) uint64 {
	var b strings.Builder
	for _, c := range cells {
		b.WriteByte(byte(c.Kind()))
		b.WriteString(c.String())
		b.WriteByte(0x1f)
	}
	return xxh3.HashString(b.String())
}

func rowsEqual(a, b []table.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		an, bn := a[i].IsNull(), b[i].IsNull()
		if an != bn {
			return false
		}
		if an {
			continue
		}
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// HandleNulls applies the configured null strategy. Drop removes rows with a
// null in any checked column; Fill replaces nulls per the fill method; Skip
// returns an unmodified copy.
func HandleNulls(t *table.Table, opt NullOptions) *table.Table {
	cols := opt.Columns
	if len(cols) == 0 {
		cols = t.Columns()
	} else {
		cols = presentColumns(t, cols)
	}

	switch opt.Strategy {
	case Drop:
		var keep []int
		for i := 0; i < t.NumRows(); i++ {
			hasNull := false
			for _, name := range cols {
				if t.At(i, name).IsNull() {
					hasNull = true
					break
				}
			}
			if !hasNull {
				keep = append(keep, i)
			}
		}
		out := t.Select(keep)
		if dropped := t.NumRows() - out.NumRows(); dropped > 0 {
			log.Printf("clean: dropped %d rows with nulls", dropped)
		}
		return out

	case Fill:
		out := t.Clone()
		filled := 0
		for _, name := range cols {
			filled += fillColumn(out, name, opt)
		}
		if filled > 0 {
			log.Printf("clean: filled %d null cells method=%s", filled, opt.Method)
		}
		return out

	default: // Skip and unknown strategies leave data untouched
		return t.Clone()
	}
}

// fillColumn fills nulls in one column and returns how many cells changed.
func fillColumn(t *table.Table, name string, opt NullOptions) int {
	col, ok := t.Column(name)
	if !ok {
		return 0
	}
	n := len(col)

	var fill func(i int) table.Value
	switch opt.Method {
	case Mean:
		v, ok := columnMean(col)
		if !ok {
			return 0
		}
		fill = func(int) table.Value { return v }
	case Median:
		v, ok := columnMedian(col)
		if !ok {
			return 0
		}
		fill = func(int) table.Value { return v }
	case Mode:
		v, ok := columnMode(col)
		if !ok {
			return 0
		}
		fill = func(int) table.Value { return v }
	case Forward:
		last := table.Null()
		vals := make([]table.Value, n)
		for i := 0; i < n; i++ {
			if !col[i].IsNull() {
				last = col[i]
			}
			vals[i] = last
		}
		fill = func(i int) table.Value { return vals[i] }
	case Backward:
		next := table.Null()
		vals := make([]table.Value, n)
		for i := n - 1; i >= 0; i-- {
			if !col[i].IsNull() {
				next = col[i]
			}
			vals[i] = next
		}
		fill = func(i int) table.Value { return vals[i] }
	default: // Constant
		fill = func(int) table.Value { return opt.Constant }
	}

	changed := 0
	for i := 0; i < n; i++ {
		if !col[i].IsNull() {
			continue
		}
		v := fill(i)
		if v.IsNull() {
			continue
		}
		t.SetAt(i, name, v)
		changed++
	}
	return changed
}

// columnMean returns the mean of the non-null numeric cells. Non-numeric
// columns report no value, so mean/median fills skip them silently.
func columnMean(col []table.Value) (table.Value, bool) {
	sum, count := 0.0, 0
	for _, c := range col {
		f, ok := c.Float()
		if !ok {
			if !c.IsNull() {
				return table.Null(), false
			}
			continue
		}
		sum += f
		count++
	}
	if count == 0 {
		return table.Null(), false
	}
	return table.Float(sum / float64(count)), true
}

func columnMedian(col []table.Value) (table.Value, bool) {
	var vals []float64
	for _, c := range col {
		f, ok := c.Float()
		if !ok {
			if !c.IsNull() {
				return table.Null(), false
			}
			continue
		}
		vals = append(vals, f)
	}
	if len(vals) == 0 {
		return table.Null(), false
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return table.Float(vals[mid]), true
	}
	return table.Float((vals[mid-1] + vals[mid]) / 2), true
}

// columnMode returns the first most-frequent non-null value, first-seen order
// breaking ties.
func columnMode(col []table.Value) (table.Value, bool) {
	counts := map[string]int{}
	firstSeen := map[string]int{}
	repr := map[string]table.Value{}
	for i, c := range col {
		if c.IsNull() {
			continue
		}
		k := c.Kind().String() + "\x1f" + c.String()
		counts[k]++
		if _, seen := firstSeen[k]; !seen {
			firstSeen[k] = i
			repr[k] = c
		}
	}
	best, bestCount, bestSeen := "", 0, 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && firstSeen[k] < bestSeen) {
			best, bestCount, bestSeen = k, n, firstSeen[k]
		}
	}
	if bestCount == 0 {
		return table.Null(), false
	}
	return repr[best], true
}

// TrimWhitespace strips leading/trailing whitespace from text cells in the
// named columns (every text column when names is empty).
func TrimWhitespace(t *table.Table, names []string) *table.Table {
	if len(names) == 0 {
		names = t.Columns()
	} else {
		names = presentColumns(t, names)
	}
	out := t.Clone()
	trimmed := 0
	for _, name := range names {
		col, _ := out.Column(name)
		for i, c := range col {
			s, ok := c.Text()
			if !ok {
				continue
			}
			ts := strings.TrimSpace(s)
			if ts != s {
				out.SetAt(i, name, table.Text(ts))
				trimmed++
			}
		}
	}
	if trimmed > 0 {
		log.Printf("clean: trimmed whitespace in %d cells", trimmed)
	}
	return out
}

// commonDateLayouts are tried in order when no explicit layout is given.
var commonDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// StandardizeDates parses the named columns into timestamp cells, using
// layout when given, otherwise trying common layouts. Unparsable values
// become null. Cells already holding timestamps pass through.
func StandardizeDates(t *table.Table, names []string, layout string) *table.Table {
	names = presentColumns(t, names)
	out := t.Clone()
	nulled := 0
	for _, name := range names {
		col, _ := out.Column(name)
		for i, c := range col {
			if c.IsNull() {
				continue
			}
			if _, ok := c.Time(); ok {
				continue
			}
			s, ok := c.Text()
			if !ok {
				out.SetAt(i, name, table.Null())
				nulled++
				continue
			}
			ts, ok := parseDate(strings.TrimSpace(s), layout)
			if !ok {
				out.SetAt(i, name, table.Null())
				nulled++
				continue
			}
			out.SetAt(i, name, table.Time(ts))
		}
	}
	if nulled > 0 {
		log.Printf("clean: nulled %d unparsable date cells", nulled)
	}
	return out
}

func parseDate(s, layout string) (time.Time, bool) {
	if layout != "" {
		ts, err := time.Parse(layout, s)
		return ts, err == nil
	}
	for _, l := range commonDateLayouts {
		if ts, err := time.Parse(l, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// StandardizeEmails lowercases and trims text cells in the named columns.
func StandardizeEmails(t *table.Table, names []string) *table.Table {
	names = presentColumns(t, names)
	out := t.Clone()
	changed := 0
	for _, name := range names {
		col, _ := out.Column(name)
		for i, c := range col {
			s, ok := c.Text()
			if !ok {
				continue
			}
			norm := strings.ToLower(strings.TrimSpace(s))
			if norm != s {
				out.SetAt(i, name, table.Text(norm))
				changed++
			}
		}
	}
	if changed > 0 {
		log.Printf("clean: standardized %d email cells", changed)
	}
	return out
}

// Options configures the composed All pass.
type Options struct {
	RemoveDuplicates bool
	DuplicateSubset  []string
	DuplicatePolicy  DuplicatePolicy

	Nulls NullOptions

	TrimColumns  []string
	DateColumns  []string
	DateLayout   string
	EmailColumns []string
}

// All applies the enabled operations in fixed order: duplicates, nulls,
// whitespace, dates, emails.
func All(t *table.Table, opt Options) *table.Table {
	out := t
	if opt.RemoveDuplicates {
		out = RemoveDuplicates(out, opt.DuplicateSubset, opt.DuplicatePolicy)
	}
	if opt.Nulls.Strategy != "" && opt.Nulls.Strategy != Skip {
		out = HandleNulls(out, opt.Nulls)
	}
	out = TrimWhitespace(out, opt.TrimColumns)
	if len(opt.DateColumns) > 0 {
		out = StandardizeDates(out, opt.DateColumns, opt.DateLayout)
	}
	if len(opt.EmailColumns) > 0 {
		out = StandardizeEmails(out, opt.EmailColumns)
	}
	if out == t {
		out = t.Clone()
	}
	return out
}

// presentColumns filters names down to the ones the table actually has.
func presentColumns(t *table.Table, names []string) []string {
	out := names[:0:0]
	for _, n := range names {
		if t.HasColumn(n) {
			out = append(out, n)
		}
	}
	return out
}
