package transform

import (
	"testing"

	"salesetl/pkg/table"
)

func exprTable() *table.Table {
	t := table.MustNew("qty", "price", "status", "discount")
	t.AppendRow(table.Int(2), table.Float(9.99), table.Text("active"), table.Int(0))
	t.AppendRow(table.Int(5), table.Float(4.00), table.Text("closed"), table.Null())
	return t
}

func evalOne(t *testing.T, src string, row int) table.Value {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	v, err := e.Eval(exprTable(), row)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func TestExprArithmetic(t *testing.T) {
	cases := []struct {
		src  string
		want table.Value
	}{
		{"1 + 2", table.Int(3)},
		{"2 * 3 + 1", table.Int(7)},
		{"1 + 2 * 3", table.Int(7)},
		{"(1 + 2) * 3", table.Int(9)},
		{"7 / 2", table.Float(3.5)},
		{"-qty", table.Int(-2)},
		{"qty * price", table.Float(19.98)},
		{"1.5 + 0.5", table.Float(2.0)},
	}
	for _, c := range cases {
		if got := evalOne(t, c.src, 0); !got.Equal(c.want) || got.Kind() != c.want.Kind() {
			t.Fatalf("%q = %v (%s), want %v (%s)", c.src, got, got.Kind(), c.want, c.want.Kind())
		}
	}
}

func TestExprComparisonsAndLogic(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"qty > 1", true},
		{"qty >= 2", true},
		{"qty < 2", false},
		{"qty == 2", true},
		{"qty != 2", false},
		{"status == 'active'", true},
		{"status != \"active\"", false},
		{"qty > 1 && price < 10", true},
		{"qty > 10 || price < 10", true},
		{"!(qty > 1)", false},
		{"true && false", false},
	}
	for _, c := range cases {
		got := evalOne(t, c.src, 0)
		b, ok := got.Bool()
		if !ok || b != c.want {
			t.Fatalf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

func TestExprNullSemantics(t *testing.T) {
	// Arithmetic over null propagates null; comparison against null is false.
	if got := evalOne(t, "qty * discount", 1); !got.IsNull() {
		t.Fatalf("null arithmetic = %v", got)
	}
	got := evalOne(t, "discount > 0", 1)
	if b, ok := got.Bool(); !ok || b {
		t.Fatalf("null comparison = %v", got)
	}
}

func TestExprDivisionByZeroIsNull(t *testing.T) {
	if got := evalOne(t, "1 / 0", 0); !got.IsNull() {
		t.Fatalf("division by zero = %v", got)
	}
}

func TestExprUnknownColumn(t *testing.T) {
	e, err := Compile("missing + 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(exprTable(), 0); err == nil {
		t.Fatal("unknown column must fail at eval")
	}
}

func TestExprParseErrors(t *testing.T) {
	for _, src := range []string{"", "1 +", "(1 + 2", "1 2", "'open", "qty @ 2"} {
		if _, err := Compile(src); err == nil {
			t.Fatalf("Compile(%q) should fail", src)
		}
	}
}

func TestExprTypeErrors(t *testing.T) {
	for _, src := range []string{"status + 1", "qty && true", "status > 1"} {
		e, err := Compile(src)
		if err != nil {
			t.Fatalf("compile %q: %v", src, err)
		}
		if _, err := e.Eval(exprTable(), 0); err == nil {
			t.Fatalf("eval %q should fail", src)
		}
	}
}
