package lake

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"salesetl/pkg/table"
)

func snapshotFixture() *table.Table {
	t := table.MustNew("order_id", "quantity", "unit_price", "shipped", "order_date")
	t.AppendRow(table.Text("O1"), table.Int(2), table.Float(9.99), table.Bool(true),
		table.Time(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))
	t.AppendRow(table.Text("O2"), table.Null(), table.Float(4.5), table.Bool(false), table.Null())
	return t
}

func TestSaveRawPathLayout(t *testing.T) {
	s := NewStorage(t.TempDir())
	ts := time.Date(2024, 6, 1, 13, 45, 10, 0, time.UTC)
	path, err := s.SaveRaw(snapshotFixture(), "orders", CSV, ts)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(s.Base(), "raw", "orders", "orders_20240601_134510.csv")
	if path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}
}

func TestSaveProcessedPathLayout(t *testing.T) {
	s := NewStorage(t.TempDir())
	ts := time.Date(2024, 6, 1, 13, 45, 10, 0, time.UTC)
	path, err := s.SaveProcessed(snapshotFixture(), "sales", JSON, ts)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, filepath.Join("processed", "sales_20240601_134510.json")) {
		t.Fatalf("path = %s", path)
	}
}

func TestSharedTimestampCorrelatesSnapshots(t *testing.T) {
	s := NewStorage(t.TempDir())
	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	p1, err := s.SaveRaw(snapshotFixture(), "orders", CSV, ts)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := s.SaveRaw(snapshotFixture(), "customers", CSV, ts)
	if err != nil {
		t.Fatal(err)
	}
	stamp := "20240601_080000"
	if !strings.Contains(p1, stamp) || !strings.Contains(p2, stamp) {
		t.Fatalf("timestamps differ: %s %s", p1, p2)
	}
}

func TestBinaryRoundTripPreservesTypes(t *testing.T) {
	s := NewStorage(t.TempDir())
	in := snapshotFixture()
	path, err := s.SaveRaw(in, "orders", Binary, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, ".bin") {
		t.Fatalf("ext = %s", path)
	}

	out, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != in.NumRows() || out.NumCols() != in.NumCols() {
		t.Fatalf("shape = %dx%d", out.NumRows(), out.NumCols())
	}
	for i := 0; i < in.NumRows(); i++ {
		for _, name := range in.Columns() {
			a, b := in.At(i, name), out.At(i, name)
			if a.Kind() != b.Kind() || (!a.IsNull() && !a.Equal(b)) {
				t.Fatalf("cell %d/%s: %v (%s) vs %v (%s)", i, name, a, a.Kind(), b, b.Kind())
			}
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	s := NewStorage(t.TempDir())
	path, err := s.SaveProcessed(snapshotFixture(), "sales", CSV, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.At(0, "quantity"); got != table.Int(2) {
		t.Fatalf("quantity = %v", got)
	}
	if got := out.At(1, "quantity"); !got.IsNull() {
		t.Fatalf("null survived as %v", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := NewStorage(t.TempDir())
	path, err := s.SaveProcessed(snapshotFixture(), "sales", JSON, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("rows = %d", out.NumRows())
	}
	if got := out.At(0, "order_id"); got != table.Text("O1") {
		t.Fatalf("order_id = %v", got)
	}
	f, ok := out.At(0, "unit_price").Float()
	if !ok || f != 9.99 {
		t.Fatalf("unit_price = %v", f)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	s := NewStorage(t.TempDir())
	_, err := s.SaveRaw(snapshotFixture(), "orders", Format("parquet"), time.Time{})
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) || ufe.Format != "parquet" {
		t.Fatalf("want UnsupportedFormatError, got %v", err)
	}
}

func TestEmptyTableSnapshot(t *testing.T) {
	s := NewStorage(t.TempDir())
	empty := table.MustNew("a", "b")
	path, err := s.SaveRaw(empty, "orders", Binary, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 0 || out.NumCols() != 2 {
		t.Fatalf("shape = %dx%d", out.NumRows(), out.NumCols())
	}
}
