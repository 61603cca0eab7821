package frontend

import (
	"errors"
	"strconv"
	"strings"
)

// evalCondition decides whether a #if condition holds under the current
// definition table. Conditions the evaluator cannot handle, such as calls
// to function-like macros, keep the clause active so no live code is lost.
func (c *collector) evalCondition(text string) bool {
	v, err := evalExpr(text, c.defines, 0)
	if err != nil {
		return true
	}
	return v != 0
}

const maxExpandDepth = 16

var errBadExpr = errors.New("unsupported conditional expression")

func evalExpr(text string, defines map[string]string, depth int) (int64, error) {
	if depth > maxExpandDepth {
		return 0, errBadExpr
	}
	p := &condParser{toks: lexCond(text), defines: defines, depth: depth}
	v, err := p.parse(0)
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, errBadExpr
	}
	return v, nil
}

type condTok struct {
	kind byte // 'i' identifier, 'n' number, 'o' operator
	text string
	val  int64
}

func lexCond(s string) []condTok {
	var toks []condTok
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			i++
		case ch == '\\' && i+1 < len(s) && s[i+1] == '\n':
			i += 2
		case isIdentStart(ch):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, condTok{kind: 'i', text: s[i:j]})
			i = j
		case ch >= '0' && ch <= '9':
			j := i + 1
			for j < len(s) && (isIdentPart(s[j]) || s[j] == '\'') {
				j++
			}
			lit := strings.ReplaceAll(s[i:j], "'", "")
			lit = strings.TrimRight(lit, "uUlL")
			v, err := strconv.ParseInt(lit, 0, 64)
			if err != nil {
				if u, uerr := strconv.ParseUint(lit, 0, 64); uerr == nil {
					v = int64(u)
				} else {
					toks = append(toks, condTok{kind: 'o', text: "?bad"})
					i = j
					continue
				}
			}
			toks = append(toks, condTok{kind: 'n', val: v})
			i = j
		default:
			two := ""
			if i+1 < len(s) {
				two = s[i : i+2]
			}
			switch two {
			case "&&", "||", "==", "!=", "<=", ">=", "<<", ">>":
				toks = append(toks, condTok{kind: 'o', text: two})
				i += 2
				continue
			}
			toks = append(toks, condTok{kind: 'o', text: string(ch)})
			i++
		}
	}
	return toks
}

type condParser struct {
	toks    []condTok
	pos     int
	defines map[string]string
	depth   int
}

func (p *condParser) peek() (condTok, bool) {
	if p.pos >= len(p.toks) {
		return condTok{}, false
	}
	return p.toks[p.pos], true
}

func (p *condParser) eat(text string) bool {
	if t, ok := p.peek(); ok && t.kind == 'o' && t.text == text {
		p.pos++
		return true
	}
	return false
}

func binPrec(op string) int {
	switch op {
	case "||":
		return 1
	case "&&":
		return 2
	case "|":
		return 3
	case "^":
		return 4
	case "&":
		return 5
	case "==", "!=":
		return 6
	case "<", "<=", ">", ">=":
		return 7
	case "<<", ">>":
		return 8
	case "+", "-":
		return 9
	case "*", "/", "%":
		return 10
	}
	return 0
}

// parse implements precedence climbing over the C preprocessor operator
// set, including the ternary operator.
func (p *condParser) parse(minPrec int) (int64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != 'o' {
			return left, nil
		}
		if t.text == "?" && minPrec == 0 {
			p.pos++
			then, err := p.parse(0)
			if err != nil {
				return 0, err
			}
			if !p.eat(":") {
				return 0, errBadExpr
			}
			other, err := p.parse(0)
			if err != nil {
				return 0, err
			}
			if left != 0 {
				left = then
			} else {
				left = other
			}
			continue
		}
		prec := binPrec(t.text)
		if prec == 0 || prec < minPrec {
			return left, nil
		}
		p.pos++
		right, err := p.parse(prec + 1)
		if err != nil {
			return 0, err
		}
		left, err = applyBin(t.text, left, right)
		if err != nil {
			return 0, err
		}
	}
}

func (p *condParser) unary() (int64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, errBadExpr
	}
	switch {
	case t.kind == 'o' && t.text == "!":
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 1, nil
		}
		return 0, nil
	case t.kind == 'o' && t.text == "~":
		p.pos++
		v, err := p.unary()
		return ^v, err
	case t.kind == 'o' && t.text == "-":
		p.pos++
		v, err := p.unary()
		return -v, err
	case t.kind == 'o' && t.text == "+":
		p.pos++
		return p.unary()
	case t.kind == 'o' && t.text == "(":
		p.pos++
		v, err := p.parse(0)
		if err != nil {
			return 0, err
		}
		if !p.eat(")") {
			return 0, errBadExpr
		}
		return v, nil
	case t.kind == 'n':
		p.pos++
		return t.val, nil
	case t.kind == 'i' && t.text == "defined":
		p.pos++
		paren := p.eat("(")
		name, ok := p.peek()
		if !ok || name.kind != 'i' {
			return 0, errBadExpr
		}
		p.pos++
		if paren && !p.eat(")") {
			return 0, errBadExpr
		}
		if _, defined := p.defines[name.text]; defined {
			return 1, nil
		}
		return 0, nil
	case t.kind == 'i':
		p.pos++
		if next, ok := p.peek(); ok && next.kind == 'o' && next.text == "(" {
			// A function-like macro call; not worth emulating.
			return 0, errBadExpr
		}
		val, defined := p.defines[t.text]
		if !defined {
			// Undefined identifiers evaluate to zero.
			return 0, nil
		}
		if val == "" {
			return 0, errBadExpr
		}
		if strings.HasPrefix(val, "\x00") {
			return 0, errBadExpr
		}
		return evalExpr(val, p.defines, p.depth+1)
	}
	return 0, errBadExpr
}

func applyBin(op string, a, b int64) (int64, error) {
	bool2int := func(v bool) int64 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case "||":
		return bool2int(a != 0 || b != 0), nil
	case "&&":
		return bool2int(a != 0 && b != 0), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&":
		return a & b, nil
	case "==":
		return bool2int(a == b), nil
	case "!=":
		return bool2int(a != b), nil
	case "<":
		return bool2int(a < b), nil
	case "<=":
		return bool2int(a <= b), nil
	case ">":
		return bool2int(a > b), nil
	case ">=":
		return bool2int(a >= b), nil
	case "<<":
		if b < 0 || b > 63 {
			return 0, errBadExpr
		}
		return a << uint(b), nil
	case ">>":
		if b < 0 || b > 63 {
			return 0, errBadExpr
		}
		return a >> uint(b), nil
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, errBadExpr
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, errBadExpr
		}
		return a % b, nil
	}
	return 0, errBadExpr
}
