package pipeline

import (
	"fmt"
	"time"

	"salesetl/pkg/table"
)

// Star-schema shaping: project the cleaned/transformed datasets into the
// warehouse's dimension and fact layouts. Absent source columns become null
// columns so the destination column set stays stable across inputs.

type columnMapping struct {
	src, dst string
}

// project builds a table with the destination column names, copying cells
// from the source columns where they exist and filling null otherwise.
func project(t *table.Table, mappings []columnMapping) *table.Table {
	names := make([]string, len(mappings))
	for i, m := range mappings {
		names[i] = m.dst
	}
	out := table.MustNew(names...)
	for i := 0; i < t.NumRows(); i++ {
		cells := make([]table.Value, len(mappings))
		for j, m := range mappings {
			if t.HasColumn(m.src) {
				cells[j] = t.At(i, m.src)
			} else {
				cells[j] = table.Null()
			}
		}
		out.AppendRow(cells...)
	}
	return out
}

func buildDimCustomers(customers *table.Table) *table.Table {
	return project(customers, []columnMapping{
		{"customer_id", "customer_id"},
		{"customer_name", "customer_name"},
		{"email", "email"},
		{"city", "city"},
		{"country", "country"},
	})
}

func buildDimProducts(products *table.Table) *table.Table {
	return project(products, []columnMapping{
		{"product_id", "product_id"},
		{"product_name", "product_name"},
		{"category", "category"},
		{"brand", "brand"},
		{"price", "price"},
	})
}

// dateID renders a calendar date as YYYYMMDD.
func dateID(ts time.Time) int64 {
	return int64(ts.Year())*10000 + int64(ts.Month())*100 + int64(ts.Day())
}

// buildDimDate derives one row per distinct calendar date in dateCol.
// Rows whose date cell is null or non-time are skipped.
func buildDimDate(t *table.Table, dateCol string) (*table.Table, error) {
	if !t.HasColumn(dateCol) {
		return nil, fmt.Errorf("star: no date column %q", dateCol)
	}
	out := table.MustNew("date_id", "date", "year", "quarter", "month", "week", "day_of_week")
	seen := map[int64]bool{}
	col, _ := t.Column(dateCol)
	for _, c := range col {
		ts, ok := c.Time()
		if !ok {
			continue
		}
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		id := dateID(day)
		if seen[id] {
			continue
		}
		seen[id] = true
		_, week := day.ISOWeek()
		out.AppendRow(
			table.Int(id),
			table.Time(day),
			table.Int(int64(day.Year())),
			table.Int(int64((int(day.Month())-1)/3+1)),
			table.Int(int64(day.Month())),
			table.Int(int64(week)),
			table.Int(int64(day.Weekday())),
		)
	}
	return out, nil
}

// buildFactSales projects the transformed sales rows into the fact layout.
// date_id is derived from dateCol; created_at carries the same timestamp so
// incremental loads can watermark on it.
func buildFactSales(sales *table.Table, dateCol string) *table.Table {
	out := table.MustNew("customer_id", "product_id", "date_id",
		"quantity", "unit_price", "total_amount", "discount", "created_at")
	for i := 0; i < sales.NumRows(); i++ {
		var dateCell, createdCell table.Value
		if sales.HasColumn(dateCol) {
			if ts, ok := sales.At(i, dateCol).Time(); ok {
				dateCell = table.Int(dateID(ts))
				createdCell = table.Time(ts)
			}
		}
		cell := func(name string) table.Value {
			if sales.HasColumn(name) {
				return sales.At(i, name)
			}
			return table.Null()
		}
		out.AppendRow(
			cell("customer_id"),
			cell("product_id"),
			dateCell,
			cell("quantity"),
			cell("unit_price"),
			cell("total_amount"),
			cell("discount"),
			createdCell,
		)
	}
	return out
}
