package transform

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"salesetl/pkg/table"
)

// The expression language used by CalculateFields and Filter: column
// references, int/float/string/bool literals, arithmetic (+ - * /),
// comparisons (== != < <= > >=), logical && and ||, unary - and !, and
// parentheses. Expressions are parsed once into a closed AST and interpreted
// per row; there is no dynamic evaluation of arbitrary code.
//
// Null semantics: arithmetic over a null operand yields null; a comparison
// against null yields false; logical operators treat null as false.

// Expr is a compiled expression, reusable across rows and tables.
type Expr struct {
	src  string
	root node
}

// Compile parses src into an Expr. Unknown columns are not detected here;
// they surface at evaluation time against a concrete table.
func Compile(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("unexpected %q", p.peek().text)
	}
	return &Expr{src: src, root: root}, nil
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Eval evaluates the expression against one row of t.
func (e *Expr) Eval(t *table.Table, row int) (table.Value, error) {
	return e.root.eval(t, row)
}

type node interface {
	eval(t *table.Table, row int) (table.Value, error)
}

type litNode struct{ v table.Value }

func (n litNode) eval(*table.Table, int) (table.Value, error) { return n.v, nil }

type colNode struct{ name string }

func (n colNode) eval(t *table.Table, row int) (table.Value, error) {
	if !t.HasColumn(n.name) {
		return table.Null(), fmt.Errorf("unknown column %q", n.name)
	}
	return t.At(row, n.name), nil
}

type unaryNode struct {
	op    string
	child node
}

func (n unaryNode) eval(t *table.Table, row int) (table.Value, error) {
	v, err := n.child.eval(t, row)
	if err != nil {
		return table.Null(), err
	}
	switch n.op {
	case "-":
		if v.IsNull() {
			return table.Null(), nil
		}
		if i, ok := v.Int(); ok && v.Kind() == table.KindInt {
			return table.Int(-i), nil
		}
		if f, ok := v.Float(); ok {
			return table.Float(-f), nil
		}
		return table.Null(), fmt.Errorf("cannot negate %s", v.Kind())
	case "!":
		if v.IsNull() {
			return table.Bool(true), nil
		}
		b, ok := v.Bool()
		if !ok {
			return table.Null(), fmt.Errorf("cannot apply ! to %s", v.Kind())
		}
		return table.Bool(!b), nil
	}
	return table.Null(), fmt.Errorf("unknown unary operator %q", n.op)
}

type binNode struct {
	op   string
	l, r node
}

func (n binNode) eval(t *table.Table, row int) (table.Value, error) {
	// Logical operators short-circuit.
	if n.op == "&&" || n.op == "||" {
		lb, err := boolOperand(n.l, t, row)
		if err != nil {
			return table.Null(), err
		}
		if n.op == "&&" && !lb {
			return table.Bool(false), nil
		}
		if n.op == "||" && lb {
			return table.Bool(true), nil
		}
		rb, err := boolOperand(n.r, t, row)
		if err != nil {
			return table.Null(), err
		}
		return table.Bool(rb), nil
	}

	lv, err := n.l.eval(t, row)
	if err != nil {
		return table.Null(), err
	}
	rv, err := n.r.eval(t, row)
	if err != nil {
		return table.Null(), err
	}

	switch n.op {
	case "+", "-", "*", "/":
		return arith(n.op, lv, rv)
	case "==", "!=", "<", "<=", ">", ">=":
		return compare(n.op, lv, rv)
	}
	return table.Null(), fmt.Errorf("unknown operator %q", n.op)
}

func boolOperand(n node, t *table.Table, row int) (bool, error) {
	v, err := n.eval(t, row)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	b, ok := v.Bool()
	if !ok {
		return false, fmt.Errorf("logical operand is %s, want bool", v.Kind())
	}
	return b, nil
}

func arith(op string, l, r table.Value) (table.Value, error) {
	if l.IsNull() || r.IsNull() {
		return table.Null(), nil
	}
	lf, lok := l.Float()
	rf, rok := r.Float()
	if !lok || !rok {
		return table.Null(), fmt.Errorf("cannot apply %s to %s and %s", op, l.Kind(), r.Kind())
	}

	// Integer arithmetic stays integral except for division.
	if l.Kind() == table.KindInt && r.Kind() == table.KindInt && op != "/" {
		li, _ := l.Int()
		ri, _ := r.Int()
		switch op {
		case "+":
			return table.Int(li + ri), nil
		case "-":
			return table.Int(li - ri), nil
		case "*":
			return table.Int(li * ri), nil
		}
	}

	switch op {
	case "+":
		return table.Float(lf + rf), nil
	case "-":
		return table.Float(lf - rf), nil
	case "*":
		return table.Float(lf * rf), nil
	case "/":
		if rf == 0 {
			return table.Null(), nil
		}
		return table.Float(lf / rf), nil
	}
	return table.Null(), fmt.Errorf("unknown arithmetic operator %q", op)
}

func compare(op string, l, r table.Value) (table.Value, error) {
	if l.IsNull() || r.IsNull() {
		return table.Bool(false), nil
	}

	// Numeric comparison crosses the int/float divide.
	if lf, ok := l.Float(); ok {
		rf, ok := r.Float()
		if !ok {
			return table.Null(), fmt.Errorf("cannot compare %s with %s", l.Kind(), r.Kind())
		}
		return table.Bool(cmpOrdered(op, lf, rf)), nil
	}
	if ls, ok := l.Text(); ok {
		rs, ok := r.Text()
		if !ok {
			return table.Null(), fmt.Errorf("cannot compare %s with %s", l.Kind(), r.Kind())
		}
		return table.Bool(cmpOrdered(op, ls, rs)), nil
	}
	if lb, ok := l.Bool(); ok {
		rb, ok := r.Bool()
		if !ok {
			return table.Null(), fmt.Errorf("cannot compare %s with %s", l.Kind(), r.Kind())
		}
		switch op {
		case "==":
			return table.Bool(lb == rb), nil
		case "!=":
			return table.Bool(lb != rb), nil
		}
		return table.Null(), fmt.Errorf("cannot order booleans with %s", op)
	}
	if lt, ok := l.Time(); ok {
		rt, ok := r.Time()
		if !ok {
			return table.Null(), fmt.Errorf("cannot compare %s with %s", l.Kind(), r.Kind())
		}
		switch op {
		case "==":
			return table.Bool(lt.Equal(rt)), nil
		case "!=":
			return table.Bool(!lt.Equal(rt)), nil
		case "<":
			return table.Bool(lt.Before(rt)), nil
		case "<=":
			return table.Bool(!lt.After(rt)), nil
		case ">":
			return table.Bool(lt.After(rt)), nil
		case ">=":
			return table.Bool(!lt.Before(rt)), nil
		}
	}
	return table.Null(), fmt.Errorf("cannot compare %s with %s", l.Kind(), r.Kind())
}

func cmpOrdered[T float64 | string](op string, a, b T) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

// Lexer.

type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokString
	tokOp
	tokEOF
)

type token struct {
	kind tokKind
	text string
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case unicode.IsDigit(rune(c)) || (c == '.' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tokString, src[i+1 : j]})
			i = j + 1
		default:
			op := matchOp(src[i:])
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q", c)
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)
		}
	}
	return append(toks, token{tokEOF, ""}), nil
}

var operators = []string{"&&", "||", "==", "!=", "<=", ">=", "<", ">", "+", "-", "*", "/", "(", ")", "!"}

// matchOp returns the longest operator prefixing s, or "".
func matchOp(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || unicode.IsDigit(rune(c)) || c == '.'
}

// Parser: recursive descent, precedence climbing from || down to primaries.

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) eof() bool { return p.peek().kind == tokEOF }

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "||", l: left, r: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = binNode{op: "&&", l: left, r: right}
	}
}

func (p *parser) parseCmp() (node, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	return binNode{op: op, l: left, r: right}, nil
}

func (p *parser) parseAdd() (node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
}

func (p *parser) parseMul() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("-", "!"); ok {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.pos++
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", t.text)
			}
			return litNode{table.Float(f)}, nil
		}
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return litNode{table.Int(i)}, nil
	case tokString:
		p.pos++
		return litNode{table.Text(t.text)}, nil
	case tokIdent:
		p.pos++
		switch t.text {
		case "true":
			return litNode{table.Bool(true)}, nil
		case "false":
			return litNode{table.Bool(false)}, nil
		case "null":
			return litNode{table.Null()}, nil
		}
		return colNode{name: t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.pos++
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, ok := p.acceptOp(")"); !ok {
				return nil, fmt.Errorf("missing closing parenthesis")
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}
