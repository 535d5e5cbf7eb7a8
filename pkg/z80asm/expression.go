package z80asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jpenner/zasm/pkg/value"
)

// exprToken is one lexical token of an expression, emitted by the
// tokenizer ahead of Pratt parsing.
type exprToken struct {
	kind string // "num", "ident", "str", "op", "lparen", "rparen", "eof"
	text string
}

type exprLexer struct {
	toks []exprToken
	pos  int
}

func lexExpression(s string) ([]exprToken, error) {
	var toks []exprToken
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, exprToken{"lparen", "("})
			i++
		case c == ')':
			toks = append(toks, exprToken{"rparen", ")"})
			i++
		case c == '\'':
			j := i + 1
			for j < n && s[j] != '\'' {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated character literal")
			}
			toks = append(toks, exprToken{"num", s[i : j+1]})
			i = j + 1
		case c == '"':
			j := i + 1
			for j < n && s[j] != '"' {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, exprToken{"str", s[i+1 : j]})
			i = j + 1
		case c == '$':
			// $$ (segment base), $NN (hex literal), or $ (current address)
			if i+1 < n && s[i+1] == '$' {
				toks = append(toks, exprToken{"ident", "$$"})
				i += 2
			} else if i+1 < n && isHexDigit(s[i+1]) {
				j := i + 1
				for j < n && isHexDigit(s[j]) {
					j++
				}
				toks = append(toks, exprToken{"num", s[i:j]})
				i = j
			} else {
				toks = append(toks, exprToken{"ident", "$"})
				i++
			}
		case isDigit(c):
			j := i
			for j < n && (isAlnum(s[j]) || s[j] == '.') {
				j++
			}
			toks = append(toks, exprToken{"num", s[i:j]})
			i = j
		case c == '%' && i+1 < n && (s[i+1] == '0' || s[i+1] == '1'):
			// %NNNN binary literal, distinguished from the % modulo
			// operator by a binary digit immediately following.
			j := i + 1
			for j < n && (s[j] == '0' || s[j] == '1') {
				j++
			}
			toks = append(toks, exprToken{"num", s[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && (isAlnum(s[j]) || s[j] == '_' || s[j] == '.') {
				j++
			}
			toks = append(toks, exprToken{"ident", s[i:j]})
			i = j
		case c == ',':
			toks = append(toks, exprToken{"op", ","})
			i++
		default:
			two := ""
			if i+1 < n {
				two = s[i : i+2]
			}
			switch two {
			case "<<", ">>", "==", "!=", "<=", ">=", "&&", "||":
				toks = append(toks, exprToken{"op", two})
				i += 2
				continue
			}
			toks = append(toks, exprToken{"op", string(c)})
			i++
		}
	}
	toks = append(toks, exprToken{"eof", ""})
	return toks, nil
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isAlnum(c byte) bool    { return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '.'
}

// precedence table for the Pratt parser; higher binds tighter.
var binPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

// EvaluateExpression parses and evaluates a full expression string using
// a Pratt/operator-precedence parser. An unresolved identifier yields
// Invalid, not an error; only syntax errors and the arithmetic errors
// from pkg/value (division by a valid zero, negative shift count) are
// returned as Go errors.
func (a *Assembler) EvaluateExpression(expr string) (value.Value, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return value.Inv(), fmt.Errorf("empty expression")
	}
	toks, err := lexExpression(expr)
	if err != nil {
		return value.Value{}, err
	}
	p := &exprParser{lex: &exprLexer{toks: toks}, asm: a}

	var v value.Value
	if a.FlatOperators {
		v, err = p.parseFlat()
	} else {
		v, err = p.parseExpr(0)
	}
	if err != nil {
		return value.Value{}, err
	}
	if p.peek().kind != "eof" {
		return value.Value{}, fmt.Errorf("unexpected token %q in expression %q", p.peek().text, expr)
	}
	return v, nil
}

type exprParser struct {
	lex *exprLexer
	asm *Assembler
}

func (p *exprParser) peek() exprToken { return p.lex.toks[p.lex.pos] }
func (p *exprParser) next() exprToken {
	t := p.lex.toks[p.lex.pos]
	if p.lex.pos < len(p.lex.toks)-1 {
		p.lex.pos++
	}
	return t
}

// parseFlat implements the `flat_operators` legacy-compatibility mode:
// strict left-to-right evaluation, no precedence climbing.
func (p *exprParser) parseFlat() (value.Value, error) {
	v, err := p.parseUnary()
	if err != nil {
		return value.Value{}, err
	}
	for {
		tok := p.peek()
		if tok.kind != "op" || tok.text == "," {
			break
		}
		op := p.next().text
		rhs, err := p.parseUnary()
		if err != nil {
			return value.Value{}, err
		}
		v, err = applyBinary(op, v, rhs)
		if err != nil {
			return value.Value{}, err
		}
	}
	return v, nil
}

func (p *exprParser) parseExpr(minPrec int) (value.Value, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return value.Value{}, err
	}
	for {
		tok := p.peek()
		if tok.kind != "op" {
			break
		}
		prec, ok := binPrec[tok.text]
		if !ok || prec < minPrec {
			break
		}
		op := p.next().text
		rhs, err := p.parseExpr(prec + 1)
		if err != nil {
			return value.Value{}, err
		}
		lhs, err = applyBinary(op, lhs, rhs)
		if err != nil {
			return value.Value{}, err
		}
	}
	return lhs, nil
}

func applyBinary(op string, a, b value.Value) (value.Value, error) {
	switch op {
	case "+":
		return a.Add(b), nil
	case "-":
		return a.Sub(b), nil
	case "*":
		return a.Mul(b), nil
	case "/":
		return a.Div(b)
	case "%":
		return a.Mod(b)
	case "&":
		return a.And(b), nil
	case "|":
		return a.Or(b), nil
	case "^":
		return a.Xor(b), nil
	case "<<":
		return a.Shl(b)
	case ">>":
		return a.Shr(b)
	case "==":
		return a.Eq(b), nil
	case "!=":
		return a.Ne(b), nil
	case "<":
		return a.Lt(b), nil
	case "<=":
		return a.Le(b), nil
	case ">":
		return a.Gt(b), nil
	case ">=":
		return a.Ge(b), nil
	case "&&":
		return value.LogicalAnd(a, func() value.Value { return b }), nil
	case "||":
		return value.LogicalOr(a, func() value.Value { return b }), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported operator %q", op)
	}
}

func (p *exprParser) parseUnary() (value.Value, error) {
	tok := p.peek()
	if tok.kind == "op" && (tok.text == "-" || tok.text == "+" || tok.text == "~" || tok.text == "!") {
		p.next()
		v, err := p.parseUnary()
		if err != nil {
			return value.Value{}, err
		}
		switch tok.text {
		case "-":
			return v.Neg(), nil
		case "+":
			return v, nil
		case "~":
			return v.Not(), nil
		default: // "!"
			return value.Value{N: boolNot(v.N), V: v.V}, nil
		}
	}
	return p.parsePrimary()
}

func boolNot(n int32) int32 {
	if n == 0 {
		return 1
	}
	return 0
}

func (p *exprParser) parsePrimary() (value.Value, error) {
	tok := p.next()
	switch tok.kind {
	case "lparen":
		v, err := p.parseExpr(0)
		if err != nil {
			return value.Value{}, err
		}
		if p.peek().kind != "rparen" {
			return value.Value{}, fmt.Errorf("expected ')'")
		}
		p.next()
		return v, nil
	case "num":
		return parseNumericLiteral(tok.text)
	case "str":
		if len(tok.text) == 0 {
			return value.Of(0), nil
		}
		return value.Of(int32(tok.text[0])), nil
	case "ident":
		return p.parseIdentOrCall(tok.text)
	default:
		return value.Value{}, fmt.Errorf("unexpected token %q", tok.text)
	}
}

// builtinFuncs are the expression evaluator's unary/binary built-ins.
var builtinFuncs = map[string]bool{
	"lo": true, "hi": true, "sin": true, "defined": true,
	"required": true, "min": true, "max": true, "abs": true,
}

func (p *exprParser) parseIdentOrCall(name string) (value.Value, error) {
	lower := strings.ToLower(name)
	if builtinFuncs[lower] && p.peek().kind == "lparen" {
		return p.parseBuiltinCall(lower)
	}

	switch name {
	case "$":
		return p.asm.curSegment.Here(), nil
	case "$$":
		return p.asm.curSegment.Base(), nil
	}

	if reg, ok := parseRegister(name); ok {
		// A bare register name used in expression context (rare, but some
		// macro bodies pass register enum ordinals through arithmetic)
		// evaluates to its enum ordinal.
		return value.Of(int32(reg)), nil
	}

	// Labels are stored under their upper-cased name unless the assembler
	// is case-sensitive (see defineLabel), so they are looked up the same way.
	key := name
	if !p.asm.CaseSensitive {
		key = strings.ToUpper(name)
	}
	v := p.asm.scopes.Resolve(key)
	if v.IsInvalid() {
		p.asm.anyUnresolved = true
	}
	return v, nil
}

func (p *exprParser) parseBuiltinCall(name string) (value.Value, error) {
	p.next() // consume '('
	var args []value.Value
	if p.peek().kind != "rparen" {
		for {
			v, err := p.parseExpr(0)
			if err != nil {
				return value.Value{}, err
			}
			args = append(args, v)
			if p.peek().kind == "op" && p.peek().text == "," {
				p.next()
				continue
			}
			break
		}
	}
	if p.peek().kind != "rparen" {
		return value.Value{}, fmt.Errorf("expected ')' closing %s(...)", name)
	}
	p.next()

	switch name {
	case "lo":
		return arg1(args, name, func(a value.Value) value.Value { return a.Lo() })
	case "hi":
		return arg1(args, name, func(a value.Value) value.Value { return a.Hi() })
	case "abs":
		return arg1(args, name, func(a value.Value) value.Value { return a.Abs() })
	case "defined":
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("defined() takes exactly one argument")
		}
		if args[0].IsInvalid() {
			return value.Of(0), nil
		}
		return value.Of(1), nil
	case "required":
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("required() takes exactly one argument")
		}
		if args[0].IsInvalid() {
			return value.Value{}, fmt.Errorf("required value is undefined")
		}
		return args[0], nil
	case "min":
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("min() takes exactly two arguments")
		}
		return value.Min(args[0], args[1]), nil
	case "max":
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("max() takes exactly two arguments")
		}
		return value.Max(args[0], args[1]), nil
	case "sin":
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("sin() takes exactly one argument")
		}
		// A fixed-point sine table is a target/runtime concern upstream of
		// this core; treated as a documented stub returning 0, Valid only
		// once its argument is Valid.
		return value.Value{N: 0, V: args[0].V}, nil
	default:
		return value.Value{}, fmt.Errorf("unknown built-in function %s", name)
	}
}

func arg1(args []value.Value, name string, f func(value.Value) value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, fmt.Errorf("%s() takes exactly one argument", name)
	}
	return f(args[0]), nil
}

// parseNumericLiteral parses decimal, hex ($/0x), binary (%/0b), and
// character ('c') literal forms.
func parseNumericLiteral(s string) (value.Value, error) {
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2 {
		inner := s[1 : len(s)-1]
		if inner == "" {
			return value.Value{}, fmt.Errorf("empty character literal")
		}
		return value.Of(int32(inner[0])), nil
	}
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseInt(s[1:], 16, 64)
		return value.Of(int32(v)), err
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return value.Of(int32(v)), err
	}
	if strings.HasPrefix(s, "%") {
		v, err := strconv.ParseInt(s[1:], 2, 64)
		return value.Of(int32(v)), err
	}
	if strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B") {
		v, err := strconv.ParseInt(s[2:], 2, 64)
		return value.Of(int32(v)), err
	}
	if strings.HasSuffix(strings.ToLower(s), "h") && len(s) > 1 && isHexDigit(s[0]) {
		v, err := strconv.ParseInt(s[:len(s)-1], 16, 64)
		return value.Of(int32(v)), err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return value.Of(int32(v)), err
}

// resolveValue adapts the Pratt evaluator to the uint16 operand
// resolution the instruction encoders (instruction_table.go, encoder.go,
// instructions.go) were written against: unresolved/Preliminary values
// resolve to a zero placeholder, tracked via anyUnresolved for pass
// convergence instead of surfacing as an error.
func (a *Assembler) resolveValue(operand string) (uint16, error) {
	n, _, err := a.resolveValueValid(operand)
	return n, err
}

// resolveValueValid is resolveValue plus the expression's Validity, for
// callers that need to distinguish a genuine out-of-range value (Valid)
// from one computed against a not-yet-resolved forward reference
// (Preliminary/Invalid), which earlier passes must tolerate instead of
// rejecting outright.
func (a *Assembler) resolveValueValid(operand string) (uint16, bool, error) {
	v, err := a.EvaluateExpression(operand)
	if err != nil {
		return 0, false, err
	}
	if !v.IsValid() {
		a.anyUnresolved = true
	}
	return v.Uint16(), v.IsValid(), nil
}
