// Package table implements the in-memory tabular structure shared by every
// pipeline stage: an ordered sequence of named columns, each an equal-length
// slice of tagged scalar cells.
//
// Cells are represented by Value, a small tagged variant over the scalar
// types the pipeline understands (integer, float, text, boolean, timestamp,
// null). Column types are inferred once at ingestion time; operations never
// re-infer per call.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the scalar type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindTime
)

// String returns a short lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "null"
	}
}

// Numeric reports whether the kind belongs to the numeric family.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Value is a single tabular cell. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	t    time.Time
}

// Null returns the null cell.
func Null() Value { return Value{} }

// Int wraps an int64 cell.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a float64 cell.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text wraps a text cell.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Bool wraps a boolean cell.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Time wraps a timestamp cell.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }

// Kind returns the tag of the cell.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns the integer payload. The second result is false when the cell
// is not an integer.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the cell as a float64, widening integers. The second result
// is false for non-numeric cells.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Text returns the text payload; false when the cell is not text.
func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.s, true
}

// Bool returns the boolean payload; false when the cell is not a boolean.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Time returns the timestamp payload; false when the cell is not a timestamp.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Any returns the cell as a driver-friendly Go value: nil, int64, float64,
// string, bool, or time.Time.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// Equal compares two cells. Numeric cells compare across int/float; null only
// equals null.
func (v Value) Equal(o Value) bool {
	if v.kind.Numeric() && o.kind.Numeric() {
		a, _ := v.Float()
		b, _ := o.Float()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return false
	}
}

// String renders the cell for CSV output and logs. Null renders as the empty
// string; timestamps as RFC 3339.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// FromAny converts a plain Go value into a cell. Unknown types fall back to
// their fmt representation as text.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return Text(t)
	case time.Time:
		return Time(t)
	default:
		return Text(fmt.Sprint(t))
	}
}

// Infer parses raw text into the narrowest matching cell: empty string is
// null, then integer, float, boolean, otherwise text. Timestamps stay text
// until an explicit date standardization pass.
func Infer(s string) Value {
	if s == "" {
		return Null()
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return Text(s)
}
