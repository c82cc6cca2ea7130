package tool

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errSyntax = errors.New("syntax error")

// Evaluate computes an arithmetic expression over float64 with JavaScript
// precedence: parentheses, ** (right-associative), unary sign, then * and /,
// then + and -. As in JavaScript, a signed base such as -2**2 must be
// parenthesised. Division by zero yields an infinity or NaN, not an error.
func Evaluate(expr string) (float64, error) {
	p := &calcParser{src: expr}
	p.skip()
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q at %d", errSyntax, p.src[p.pos], p.pos)
	}
	return v, nil
}

type calcParser struct {
	src string
	pos int
}

func (p *calcParser) skip() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\n\r\f\v", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *calcParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *calcParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		p.skip()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *calcParser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		p.skip()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			left /= right
		}
	}
}

func (p *calcParser) unary() (float64, error) {
	op := p.peek()
	if op != '-' && op != '+' {
		return p.power()
	}
	p.pos++
	p.skip()

	var v float64
	var err error
	if next := p.peek(); next == '-' || next == '+' {
		v, err = p.unary()
	} else {
		v, err = p.primary()
		if err == nil && p.atPow() {
			return 0, fmt.Errorf("%w: parenthesise the signed base of ** at %d", errSyntax, p.pos)
		}
	}
	if op == '-' {
		v = -v
	}
	return v, err
}

// power parses base ** exponent, where the exponent may itself be signed
// or another power.
func (p *calcParser) power() (float64, error) {
	base, err := p.primary()
	if err != nil || !p.atPow() {
		return base, err
	}
	p.pos += 2
	p.skip()
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *calcParser) atPow() bool {
	return strings.HasPrefix(p.src[p.pos:], "**")
}

func (p *calcParser) primary() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		p.skip()
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing ) at %d", errSyntax, p.pos)
		}
		p.pos++
		p.skip()
		return v, nil
	}

	start := p.pos
	dot := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			if dot {
				break
			}
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." {
		if p.pos >= len(p.src) {
			return 0, fmt.Errorf("%w: unexpected end of expression", errSyntax)
		}
		return 0, fmt.Errorf("%w: unexpected %q at %d", errSyntax, p.src[p.pos], p.pos)
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", errSyntax, lit)
	}
	p.skip()
	return v, nil
}

// FormatNumber renders f the way a JavaScript engine prints numbers:
// integers without a fraction, exponent notation outside [1e-6, 1e21),
// and Infinity or NaN for non-finite values.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		digits := strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
