package extract

import (
	"errors"
	"testing"

	"salesetl/pkg/table"
)

func TestJSONArrayOfObjects(t *testing.T) {
	path := writeFile(t, "customers.json", `[
		{"customer_id": "C1", "name": "Ada", "active": true},
		{"customer_id": "C2", "name": "Grace", "active": false}
	]`)
	tb, err := JSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if tb.NumRows() != 2 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
	if got := tb.At(0, "name"); got != table.Text("Ada") {
		t.Fatalf("name = %v", got)
	}
	if got := tb.At(1, "active"); got != table.Bool(false) {
		t.Fatalf("active = %v", got)
	}
}

func TestJSONSingleObjectBecomesOneRow(t *testing.T) {
	path := writeFile(t, "one.json", `{"id": 7, "ratio": 0.5}`)
	tb, err := JSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if tb.NumRows() != 1 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
	if got := tb.At(0, "id"); got != table.Int(7) {
		t.Fatalf("id = %v (integral numbers must stay int)", got)
	}
	if got := tb.At(0, "ratio"); got != table.Float(0.5) {
		t.Fatalf("ratio = %v", got)
	}
}

func TestJSONTopLevelScalarFails(t *testing.T) {
	path := writeFile(t, "scalar.json", `42`)
	_, err := JSON(path)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestJSONMalformed(t *testing.T) {
	path := writeFile(t, "broken.json", `{"a": `)
	_, err := JSON(path)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestJSONMissingFile(t *testing.T) {
	_, err := JSON("/no/such/file.json")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
}

func TestJSONNestedRecordPath(t *testing.T) {
	path := writeFile(t, "products.json", `{
		"updated_at": "2024-06-01",
		"catalog": {
			"products": [
				{"product_id": "P1", "details": {"brand": "Acme", "specs": {"weight": 1.2}}},
				{"product_id": "P2", "details": {"brand": "Zenith"}}
			]
		}
	}`)
	tb, err := JSONNested(path, "catalog.products", "updated_at")
	if err != nil {
		t.Fatal(err)
	}
	if tb.NumRows() != 2 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
	if got := tb.At(0, "details.brand"); got != table.Text("Acme") {
		t.Fatalf("details.brand = %v", got)
	}
	if got := tb.At(0, "details.specs.weight"); got != table.Float(1.2) {
		t.Fatalf("nested flatten = %v", got)
	}
	if got := tb.At(1, "details.specs.weight"); !got.IsNull() {
		t.Fatalf("absent nested field should be null, got %v", got)
	}
	// Metadata from the document root lands on every row.
	for i := 0; i < 2; i++ {
		if got := tb.At(i, "updated_at"); got != table.Text("2024-06-01") {
			t.Fatalf("row %d updated_at = %v", i, got)
		}
	}
}

func TestJSONNestedPathFallback(t *testing.T) {
	path := writeFile(t, "flat.json", `{"product_id": "P1", "brand": "Acme"}`)
	tb, err := JSONNested(path, "catalog.products")
	if err != nil {
		t.Fatal(err)
	}
	if tb.NumRows() != 1 || !tb.HasColumn("brand") {
		t.Fatalf("fallback should flatten whole document: rows=%d cols=%v", tb.NumRows(), tb.Columns())
	}
}

func TestJSONArraysKeptAsText(t *testing.T) {
	path := writeFile(t, "tags.json", `[{"id": 1, "tags": ["a", "b"]}]`)
	tb, err := JSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := tb.At(0, "tags"); got != table.Text(`["a","b"]`) {
		t.Fatalf("tags = %v", got)
	}
}
