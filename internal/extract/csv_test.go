package extract

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"salesetl/pkg/table"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCSVBasic(t *testing.T) {
	path := writeFile(t, "orders.csv", "Order ID,quantity,unit_price\nO1,2,9.99\nO2,1,4.50\n")
	tb, err := CSV(path, CSVOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := tb.Columns(); !reflect.DeepEqual(got, []string{"order_id", "quantity", "unit_price"}) {
		t.Fatalf("columns = %v", got)
	}
	if tb.NumRows() != 2 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
	if got := tb.At(0, "quantity"); got != table.Int(2) {
		t.Fatalf("quantity = %v", got)
	}
	if got := tb.At(1, "unit_price"); got != table.Float(4.5) {
		t.Fatalf("unit_price = %v", got)
	}
}

func TestCSVMissingFile(t *testing.T) {
	_, err := CSV(filepath.Join(t.TempDir(), "nope.csv"), CSVOptions{})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
}

func TestCSVEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.csv", "")
	tb, err := CSV(path, CSVOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if tb.NumRows() != 0 || tb.NumCols() != 0 {
		t.Fatalf("shape = %dx%d", tb.NumRows(), tb.NumCols())
	}
}

func TestCSVHeaderRowSkip(t *testing.T) {
	path := writeFile(t, "report.csv", "generated by export tool\nid,v\n1,a\n")
	tb, err := CSV(path, CSVOptions{HeaderRow: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !tb.HasColumn("id") || tb.NumRows() != 1 {
		t.Fatalf("columns=%v rows=%d", tb.Columns(), tb.NumRows())
	}
}

func TestCSVSemicolonDelimiter(t *testing.T) {
	path := writeFile(t, "euro.csv", "id;v\n1;x\n")
	tb, err := CSV(path, CSVOptions{Delimiter: ';'})
	if err != nil {
		t.Fatal(err)
	}
	if got := tb.At(0, "v"); got != table.Text("x") {
		t.Fatalf("v = %v", got)
	}
}

func TestCSVLatin1Encoding(t *testing.T) {
	// "café" with é as the single latin-1 byte 0xE9.
	path := writeFile(t, "latin.csv", "id,name\n1,caf\xe9\n")
	tb, err := CSV(path, CSVOptions{Encoding: "latin-1"})
	if err != nil {
		t.Fatal(err)
	}
	if got := tb.At(0, "name"); got != table.Text("café") {
		t.Fatalf("name = %v", got)
	}
}

func TestCSVInvalidUTF8(t *testing.T) {
	path := writeFile(t, "bad.csv", "id,name\n1,caf\xe9\n")
	_, err := CSV(path, CSVOptions{Encoding: "utf-8"})
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("want EncodingError, got %v", err)
	}
}

func TestCSVUnknownEncoding(t *testing.T) {
	path := writeFile(t, "x.csv", "id\n1\n")
	_, err := CSV(path, CSVOptions{Encoding: "ebcdic"})
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("want EncodingError, got %v", err)
	}
}

func TestCSVBOMHeader(t *testing.T) {
	path := writeFile(t, "bom.csv", "\uFEFFid,v\n1,x\n")
	tb, err := CSV(path, CSVOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !tb.HasColumn("id") {
		t.Fatalf("BOM not stripped, columns = %v", tb.Columns())
	}
}

func TestCSVRaggedRowsPadNull(t *testing.T) {
	path := writeFile(t, "ragged.csv", "a,b,c\n1,2,3\n4,5\n")
	tb, err := CSV(path, CSVOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := tb.At(1, "c"); !got.IsNull() {
		t.Fatalf("short row should pad null, got %v", got)
	}
}

func TestCSVWithValidation(t *testing.T) {
	path := writeFile(t, "orders.csv", "order_id,quantity\nO1,2\n")

	_, chk, err := CSVWithValidation(path, CSVOptions{}, []string{"order_id", "unit_price"}, -1)
	if err != nil {
		t.Fatal(err)
	}
	if chk.IsValid {
		t.Fatal("missing column should invalidate the check")
	}
	if len(chk.Errors) != 1 || !strings.Contains(chk.Errors[0], "unit_price") {
		t.Fatalf("errors = %v", chk.Errors)
	}

	_, chk, err = CSVWithValidation(path, CSVOptions{}, []string{"order_id"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !chk.IsValid || len(chk.Warnings) != 1 {
		t.Fatalf("row mismatch should warn only: valid=%v warnings=%v", chk.IsValid, chk.Warnings)
	}
}
