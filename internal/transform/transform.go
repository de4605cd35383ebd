// Package transform implements the data-shaping operations of the pipeline:
// relational joins, lookup enrichment, derived-column calculation from
// compiled expressions, grouped aggregation, and row filtering, plus the
// composed sales transformation the run itself executes.
package transform

import (
	"fmt"
	"log"
	"sort"
	"time"

	"salesetl/pkg/table"
)

// JoinError reports a join that cannot be performed, typically key columns
// from incompatible type families.
type JoinError struct {
	On  string
	Err error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join on %s: %v", e.On, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// ExpressionError reports a derived-field or filter expression that cannot be
// parsed or evaluated, naming the field it was meant to populate.
type ExpressionError struct {
	Field string
	Err   error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression for %q: %v", e.Field, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }

// JoinKind selects the relational join variant.
type JoinKind string

const (
	Inner JoinKind = "inner"
	Left  JoinKind = "left"
	Right JoinKind = "right"
	Outer JoinKind = "outer"
)

// DefaultSuffixes disambiguate colliding non-key column names, left then
// right.
var DefaultSuffixes = [2]string{"_x", "_y"}

// Join performs a hash join between left and right on the named key columns.
// When leftOn == rightOn the output carries a single key column; otherwise
// both are kept. Colliding non-key names get the suffixes. Null keys never
// match. Key columns from different type families fail with JoinError.
func Join(left, right *table.Table, leftOn, rightOn string, how JoinKind, suffixes [2]string) (*table.Table, error) {
	switch how {
	case Inner, Left, Right, Outer:
	default:
		return nil, &JoinError{On: leftOn, Err: fmt.Errorf("unknown join kind %q", how)}
	}
	if !left.HasColumn(leftOn) {
		return nil, &JoinError{On: leftOn, Err: fmt.Errorf("left table has no column %q", leftOn)}
	}
	if !right.HasColumn(rightOn) {
		return nil, &JoinError{On: rightOn, Err: fmt.Errorf("right table has no column %q", rightOn)}
	}
	lk, rk := left.ColumnKind(leftOn), right.ColumnKind(rightOn)
	if lk != table.KindNull && rk != table.KindNull && !sameFamily(lk, rk) {
		return nil, &JoinError{On: leftOn, Err: fmt.Errorf("key kinds %s and %s are incompatible", lk, rk)}
	}
	if suffixes == ([2]string{}) {
		suffixes = DefaultSuffixes
	}

	sharedKey := leftOn == rightOn

	// Output column plan: left columns, then right columns minus the shared
	// key, suffixing collisions on both sides.
	leftNames := left.Columns()
	var rightNames []string
	for _, n := range right.Columns() {
		if sharedKey && n == rightOn {
			continue
		}
		rightNames = append(rightNames, n)
	}
	collides := map[string]bool{}
	for _, ln := range leftNames {
		for _, rn := range rightNames {
			if ln == rn {
				collides[ln] = true
			}
		}
	}
	outNames := make([]string, 0, len(leftNames)+len(rightNames))
	for _, n := range leftNames {
		if collides[n] && n != leftOn {
			outNames = append(outNames, n+suffixes[0])
		} else {
			outNames = append(outNames, n)
		}
	}
	for _, n := range rightNames {
		if collides[n] && n != rightOn {
			outNames = append(outNames, n+suffixes[1])
		} else {
			outNames = append(outNames, n)
		}
	}

	out, err := table.New(outNames...)
	if err != nil {
		return nil, &JoinError{On: leftOn, Err: err}
	}

	// Hash the right side.
	rindex := map[string][]int{}
	for i := 0; i < right.NumRows(); i++ {
		k, ok := joinKey(right.At(i, rightOn))
		if !ok {
			continue
		}
		rindex[k] = append(rindex[k], i)
	}

	appendJoined := func(li, ri int) {
		cells := make([]table.Value, 0, len(outNames))
		for _, n := range leftNames {
			if li >= 0 {
				cells = append(cells, left.At(li, n))
			} else if sharedKey && n == leftOn && ri >= 0 {
				// Right-only rows still carry their key into the shared column.
				cells = append(cells, right.At(ri, rightOn))
			} else {
				cells = append(cells, table.Null())
			}
		}
		for _, n := range rightNames {
			if ri >= 0 {
				cells = append(cells, right.At(ri, n))
			} else {
				cells = append(cells, table.Null())
			}
		}
		out.AppendRow(cells...)
	}

	matchedRight := make([]bool, right.NumRows())
	for li := 0; li < left.NumRows(); li++ {
		k, ok := joinKey(left.At(li, leftOn))
		var matches []int
		if ok {
			matches = rindex[k]
		}
		if len(matches) == 0 {
			if how == Left || how == Outer {
				appendJoined(li, -1)
			}
			continue
		}
		for _, ri := range matches {
			matchedRight[ri] = true
			appendJoined(li, ri)
		}
	}
	if how == Right || how == Outer {
		for ri := 0; ri < right.NumRows(); ri++ {
			if !matchedRight[ri] {
				appendJoined(-1, ri)
			}
		}
	}
	log.Printf("transform: %s join on %s: %d x %d -> %d rows", how, leftOn, left.NumRows(), right.NumRows(), out.NumRows())
	return out, nil
}

func sameFamily(a, b table.Kind) bool {
	if a == b {
		return true
	}
	return a.Numeric() && b.Numeric()
}

// joinKey canonicalizes a key cell so int 2 and float 2.0 land in the same
// bucket. Null keys report false and never match.
func joinKey(v table.Value) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	if f, ok := v.Float(); ok {
		return "n:" + table.Float(f).String(), true
	}
	return v.Kind().String() + ":" + v.String(), true
}

// EnrichWithLookup copies the named columns from the first matching lookup
// row onto t: a column import keyed by t's key column against the lookup's
// key column. Imported columns are renamed "<prefix>_<col>" when prefix is
// non-empty; the lookup's own key column is never imported. Unmatched rows
// get nulls.
func EnrichWithLookup(t, lookup *table.Table, key, lookupKey string, cols []string, prefix string) (*table.Table, error) {
	if !t.HasColumn(key) {
		return nil, &JoinError{On: key, Err: fmt.Errorf("table has no column %q", key)}
	}
	if !lookup.HasColumn(lookupKey) {
		return nil, &JoinError{On: lookupKey, Err: fmt.Errorf("lookup has no column %q", lookupKey)}
	}

	index := map[string]int{}
	for i := lookup.NumRows() - 1; i >= 0; i-- {
		if k, ok := joinKey(lookup.At(i, lookupKey)); ok {
			index[k] = i // earlier rows overwrite, first match wins
		}
	}

	out := t.Clone()
	for _, col := range cols {
		if col == lookupKey {
			continue
		}
		if !lookup.HasColumn(col) {
			log.Printf("transform: enrich skipping absent lookup column %s", col)
			continue
		}
		name := col
		if prefix != "" {
			name = prefix + "_" + col
		}
		cells := make([]table.Value, t.NumRows())
		for i := 0; i < t.NumRows(); i++ {
			cells[i] = table.Null()
			if k, ok := joinKey(t.At(i, key)); ok {
				if ri, found := index[k]; found {
					cells[i] = lookup.At(ri, col)
				}
			}
		}
		if err := out.AddColumn(name, cells); err != nil {
			return nil, fmt.Errorf("enrich: %w", err)
		}
	}
	return out, nil
}

// Calculation names a derived column and the expression that populates it.
type Calculation struct {
	Name string
	Expr string
}

// CalculateFields appends one derived column per calculation, evaluating in
// the given order so later expressions can reference earlier results. A
// parse or evaluation failure reports ExpressionError naming the field.
func CalculateFields(t *table.Table, calcs []Calculation) (*table.Table, error) {
	out := t.Clone()
	for _, c := range calcs {
		expr, err := Compile(c.Expr)
		if err != nil {
			return nil, &ExpressionError{Field: c.Name, Err: err}
		}
		cells := make([]table.Value, out.NumRows())
		for i := 0; i < out.NumRows(); i++ {
			v, err := expr.Eval(out, i)
			if err != nil {
				return nil, &ExpressionError{Field: c.Name, Err: err}
			}
			cells[i] = v
		}
		if out.HasColumn(c.Name) {
			for i, v := range cells {
				out.SetAt(i, c.Name, v)
			}
			continue
		}
		if err := out.AddColumn(c.Name, cells); err != nil {
			return nil, &ExpressionError{Field: c.Name, Err: err}
		}
	}
	return out, nil
}

// Filter retains the rows for which expr evaluates to true. A non-boolean
// result is an ExpressionError.
func Filter(t *table.Table, src string) (*table.Table, error) {
	expr, err := Compile(src)
	if err != nil {
		return nil, &ExpressionError{Field: src, Err: err}
	}
	var keep []int
	for i := 0; i < t.NumRows(); i++ {
		v, err := expr.Eval(t, i)
		if err != nil {
			return nil, &ExpressionError{Field: src, Err: err}
		}
		if v.IsNull() {
			continue
		}
		b, ok := v.Bool()
		if !ok {
			return nil, &ExpressionError{Field: src, Err: fmt.Errorf("result is %s, want bool", v.Kind())}
		}
		if b {
			keep = append(keep, i)
		}
	}
	out := t.Select(keep)
	log.Printf("transform: filter %q kept %d of %d rows", src, out.NumRows(), t.NumRows())
	return out, nil
}

// Aggregations maps a source column to the functions applied to it. Supported
// functions: sum, mean, count, min, max.
type Aggregations map[string][]string

// Aggregate groups rows by the groupBy columns and applies the aggregation
// functions, emitting one row per group in first-seen order. Output columns
// are named "<column>_<function>". Sum and mean require numeric columns;
// non-numeric cells are skipped. Count counts non-null cells.
func Aggregate(t *table.Table, groupBy []string, aggs Aggregations) (*table.Table, error) {
	for _, g := range groupBy {
		if !t.HasColumn(g) {
			return nil, fmt.Errorf("aggregate: no group column %q", g)
		}
	}

	// Deterministic output column order: sorted source columns, functions in
	// their declared order.
	aggCols := make([]string, 0, len(aggs))
	for col := range aggs {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("aggregate: no column %q", col)
		}
		aggCols = append(aggCols, col)
	}
	sort.Strings(aggCols)

	outNames := append([]string(nil), groupBy...)
	for _, col := range aggCols {
		for _, fn := range aggs[col] {
			switch fn {
			case "sum", "mean", "count", "min", "max":
			default:
				return nil, fmt.Errorf("aggregate: unknown function %q", fn)
			}
			outNames = append(outNames, col+"_"+fn)
		}
	}

	type group struct {
		key  []table.Value
		rows []int
	}
	index := map[string]*group{}
	var order []*group
	for i := 0; i < t.NumRows(); i++ {
		key := make([]table.Value, len(groupBy))
		parts := make([]string, len(groupBy))
		for c, g := range groupBy {
			key[c] = t.At(i, g)
			parts[c] = key[c].Kind().String() + ":" + key[c].String()
		}
		k := fmt.Sprint(parts)
		grp, ok := index[k]
		if !ok {
			grp = &group{key: key}
			index[k] = grp
			order = append(order, grp)
		}
		grp.rows = append(grp.rows, i)
	}

	out, err := table.New(outNames...)
	if err != nil {
		return nil, err
	}
	for _, grp := range order {
		cells := append([]table.Value(nil), grp.key...)
		for _, col := range aggCols {
			for _, fn := range aggs[col] {
				cells = append(cells, aggregateCells(t, col, grp.rows, fn))
			}
		}
		out.AppendRow(cells...)
	}
	log.Printf("transform: aggregated %d rows into %d groups", t.NumRows(), out.NumRows())
	return out, nil
}

func aggregateCells(t *table.Table, col string, rows []int, fn string) table.Value {
	switch fn {
	case "count":
		n := 0
		for _, r := range rows {
			if !t.At(r, col).IsNull() {
				n++
			}
		}
		return table.Int(int64(n))
	case "sum", "mean":
		sum, n := 0.0, 0
		allInt := true
		for _, r := range rows {
			v := t.At(r, col)
			f, ok := v.Float()
			if !ok {
				continue
			}
			if v.Kind() != table.KindInt {
				allInt = false
			}
			sum += f
			n++
		}
		if n == 0 {
			return table.Null()
		}
		if fn == "mean" {
			return table.Float(sum / float64(n))
		}
		if allInt {
			return table.Int(int64(sum))
		}
		return table.Float(sum)
	case "min", "max":
		best := table.Null()
		for _, r := range rows {
			v := t.At(r, col)
			if v.IsNull() {
				continue
			}
			if best.IsNull() {
				best = v
				continue
			}
			if less, ok := valueLess(v, best); ok {
				if (fn == "min" && less) || (fn == "max" && !less && !v.Equal(best)) {
					best = v
				}
			}
		}
		return best
	}
	return table.Null()
}

func valueLess(a, b table.Value) (bool, bool) {
	if af, ok := a.Float(); ok {
		bf, ok := b.Float()
		if !ok {
			return false, false
		}
		return af < bf, true
	}
	if as, ok := a.Text(); ok {
		bs, ok := b.Text()
		if !ok {
			return false, false
		}
		return as < bs, true
	}
	if at, ok := a.Time(); ok {
		bt, ok := b.Time()
		if !ok {
			return false, false
		}
		return at.Before(bt), true
	}
	return false, false
}

// SalesData composes the domain transformation: left-join orders with
// customers on customer_id, enrich with product attributes under a "product"
// prefix via product_id, then compute the amount fields in dependency order.
// The products table is expected to carry product_name/category/brand/price
// columns.
func SalesData(orders, customers, products *table.Table) (*table.Table, error) {
	joined, err := Join(orders, customers, "customer_id", "customer_id", Left, DefaultSuffixes)
	if err != nil {
		return nil, err
	}
	enriched, err := EnrichWithLookup(joined, products, "product_id", "product_id",
		[]string{"product_name", "category", "brand", "price"}, "product")
	if err != nil {
		return nil, err
	}
	return CalculateFields(enriched, []Calculation{
		{Name: "total_amount", Expr: "quantity * unit_price"},
		{Name: "discount_amount", Expr: "total_amount * discount / 100"},
		{Name: "final_amount", Expr: "total_amount - discount_amount"},
	})
}

// AggregateDailySales truncates the date column to day granularity, then
// sums quantity/total_amount/final_amount and counts orders per day.
func AggregateDailySales(sales *table.Table, dateCol string) (*table.Table, error) {
	if !sales.HasColumn(dateCol) {
		return nil, fmt.Errorf("aggregate: no date column %q", dateCol)
	}
	truncated := sales.Clone()
	col, _ := truncated.Column(dateCol)
	for i, c := range col {
		if ts, ok := c.Time(); ok {
			day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
			truncated.SetAt(i, dateCol, table.Time(day))
		}
	}
	return Aggregate(truncated, []string{dateCol}, Aggregations{
		"quantity":     {"sum"},
		"total_amount": {"sum"},
		"final_amount": {"sum"},
		"order_id":     {"count"},
	})
}
