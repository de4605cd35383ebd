// Package validate runs read-only quality checks over a table and produces a
// structured report: schema presence and type compatibility, per-column
// completeness against a null-ratio threshold, and per-column business
// predicates. The input table is never mutated.
package validate

import (
	"fmt"
	"log"
	"strings"

	"salesetl/pkg/table"
)

// DefaultMinCompleteness is the fraction of non-null cells a checked column
// must reach before it is flagged.
const DefaultMinCompleteness = 0.95

// Rule is a pure predicate over a single cell. A false return (or a panic,
// which is recovered) marks the cell as a violation.
type Rule func(v table.Value) bool

// Validator holds check thresholds.
type Validator struct {
	// MinCompleteness is the minimum acceptable per-column completeness
	// ratio, in [0,1].
	MinCompleteness float64
}

// New returns a Validator with the default completeness threshold.
func New() *Validator {
	return &Validator{MinCompleteness: DefaultMinCompleteness}
}

// SchemaReport lists required columns that are absent and columns whose
// observed kind is incompatible with the expected one.
type SchemaReport struct {
	IsValid        bool
	MissingColumns []string
	TypeMismatches map[string]string
}

// ColumnCompleteness is the null profile of one column.
type ColumnCompleteness struct {
	NullCount    int
	Completeness float64
}

// CompletenessReport maps checked columns to their null profile.
type CompletenessReport struct {
	IsValid bool
	Columns map[string]ColumnCompleteness
}

// Violation records one failing cell: its row index and offending value.
type Violation struct {
	Row   int
	Value table.Value
}

// RulesReport maps rule columns to every violation found, not just the first.
type RulesReport struct {
	IsValid    bool
	Violations map[string][]Violation
}

// Report aggregates all checks for one table. Sub-reports are kept even when
// an earlier check already decided overall invalidity.
type Report struct {
	IsValid      bool
	RowCount     int
	ColumnCount  int
	Schema       SchemaReport
	Completeness CompletenessReport
	Rules        RulesReport
}

// ValidationError is raised by callers when a Report comes back invalid.
type ValidationError struct {
	Report *Report
}

func (e *ValidationError) Error() string {
	r := e.Report
	var parts []string
	if !r.Schema.IsValid {
		parts = append(parts, fmt.Sprintf("schema (missing=%v mismatches=%d)", r.Schema.MissingColumns, len(r.Schema.TypeMismatches)))
	}
	if !r.Completeness.IsValid {
		parts = append(parts, "completeness below threshold")
	}
	if !r.Rules.IsValid {
		n := 0
		for _, vs := range r.Violations() {
			n += len(vs)
		}
		parts = append(parts, fmt.Sprintf("business rules (%d violations)", n))
	}
	return "data validation failed: " + strings.Join(parts, "; ")
}

// Violations exposes the rule violations for error reporting.
func (r *Report) Violations() map[string][]Violation { return r.Rules.Violations }

// Schema checks that every required column is present, and, for columns named
// in expected, that the observed column kind is compatible with the expected
// one. Numeric kinds are one family: an int column satisfies an expected
// float. All-null columns pass the type check.
func (v *Validator) Schema(t *table.Table, required []string, expected map[string]table.Kind) SchemaReport {
	rep := SchemaReport{IsValid: true, TypeMismatches: map[string]string{}}
	for _, col := range required {
		if !t.HasColumn(col) {
			rep.MissingColumns = append(rep.MissingColumns, col)
			rep.IsValid = false
		}
	}
	for col, want := range expected {
		if !t.HasColumn(col) {
			continue // absence is the schema check's concern only when required
		}
		got := t.ColumnKind(col)
		if got == table.KindNull {
			continue
		}
		if !kindCompatible(want, got) {
			rep.TypeMismatches[col] = fmt.Sprintf("want %s, got %s", want, got)
			rep.IsValid = false
		}
	}
	if !rep.IsValid {
		log.Printf("validate: schema check failed missing=%v mismatches=%d", rep.MissingColumns, len(rep.TypeMismatches))
	}
	return rep
}

// kindCompatible reports whether an observed kind satisfies an expected one.
// Int and float are interchangeable within the numeric family.
func kindCompatible(want, got table.Kind) bool {
	if want == got {
		return true
	}
	return want.Numeric() && got.Numeric()
}

// Completeness computes 1 - null_count/row_count for each named column (all
// columns when names is empty) and flags any that fall below the threshold.
// Zero-row tables are complete: there is nothing missing in no data.
func (v *Validator) Completeness(t *table.Table, names []string) CompletenessReport {
	if len(names) == 0 {
		names = t.Columns()
	}
	min := v.MinCompleteness
	if min <= 0 {
		min = DefaultMinCompleteness
	}

	rep := CompletenessReport{IsValid: true, Columns: map[string]ColumnCompleteness{}}
	rows := t.NumRows()
	for _, name := range names {
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		nulls := 0
		for _, c := range col {
			if c.IsNull() {
				nulls++
			}
		}
		ratio := 1.0
		if rows > 0 {
			ratio = 1 - float64(nulls)/float64(rows)
		}
		rep.Columns[name] = ColumnCompleteness{NullCount: nulls, Completeness: ratio}
		if ratio < min {
			rep.IsValid = false
			log.Printf("validate: column %s completeness %.3f below threshold %.3f", name, ratio, min)
		}
	}
	return rep
}

// CheckRules evaluates every cell of each rule's column against its
// predicate, collecting all violations. A panicking predicate marks the cell
// as a violation rather than propagating. Columns absent from the table are
// skipped.
func (v *Validator) CheckRules(t *table.Table, rules map[string]Rule) RulesReport {
	rep := RulesReport{IsValid: true, Violations: map[string][]Violation{}}
	for name, rule := range rules {
		col, ok := t.Column(name)
		if !ok {
			continue
		}
		for i, cell := range col {
			if !evalRule(rule, cell) {
				rep.Violations[name] = append(rep.Violations[name], Violation{Row: i, Value: cell})
				rep.IsValid = false
			}
		}
		if n := len(rep.Violations[name]); n > 0 {
			log.Printf("validate: rule on %s violated by %d rows", name, n)
		}
	}
	return rep
}

func evalRule(rule Rule, cell table.Value) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return rule(cell)
}

// All composes the schema, completeness, and rule checks. Overall validity is
// the conjunction of the sub-checks; every sub-report is preserved.
func (v *Validator) All(t *table.Table, required []string, expected map[string]table.Kind, rules map[string]Rule) *Report {
	rep := &Report{
		RowCount:     t.NumRows(),
		ColumnCount:  t.NumCols(),
		Schema:       v.Schema(t, required, expected),
		Completeness: v.Completeness(t, required),
		Rules:        v.CheckRules(t, rules),
	}
	rep.IsValid = rep.Schema.IsValid && rep.Completeness.IsValid && rep.Rules.IsValid
	log.Printf("validate: rows=%d cols=%d valid=%v", rep.RowCount, rep.ColumnCount, rep.IsValid)
	return rep
}

// Positive is a rule for numeric columns that must be strictly greater than
// zero. Nulls pass; completeness is a separate check.
func Positive(v table.Value) bool {
	if v.IsNull() {
		return true
	}
	f, ok := v.Float()
	if !ok {
		return false
	}
	return f > 0
}

// NonEmptyText is a rule for text columns that must carry a non-blank value.
func NonEmptyText(v table.Value) bool {
	if v.IsNull() {
		return false
	}
	s, ok := v.Text()
	return ok && s != ""
}
