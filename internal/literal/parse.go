package literal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/snek/internal/value"
)

// SyntaxError reports text that is not a Python-style literal.
type SyntaxError struct {
	Input   string
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid literal %q at offset %d: %s", e.Input, e.Pos, e.Message)
}

// Parse evaluates a Python-style literal: integers, floats, quoted strings,
// lists and tuples (both become List), True, False and None.
func Parse(s string) (value.Value, error) {
	p := &parser{src: strings.TrimSpace(s)}
	if p.src == "" {
		return nil, p.errorf("empty input")
	}
	v, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing text")
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Input: p.src, Pos: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) expr() (value.Value, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"':
		return p.str()
	case (c == 'r' || c == 'R' || c == 'u' || c == 'U') && p.pos+1 < len(p.src) &&
		(p.src[p.pos+1] == '\'' || p.src[p.pos+1] == '"'):
		raw := c == 'r' || c == 'R'
		p.pos++
		if raw {
			return p.rawStr()
		}
		return p.str()
	case c == '+' || c == '-' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *parser) sequence(open, end byte) (value.Value, error) {
	p.pos++ // open
	out := value.List{}
	sawComma := false
	for {
		p.skipSpace()
		if p.peek() == end {
			p.pos++
			break
		}
		if p.eof() {
			return nil, p.errorf("unterminated %q", open)
		}
		elem, err := p.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			sawComma = true
		case end:
		default:
			return nil, p.errorf("expected ',' or %q", end)
		}
	}
	// "(x)" is a parenthesised expression, not a tuple.
	if open == '(' && len(out) == 1 && !sawComma {
		return out[0], nil
	}
	return out, nil
}

func (p *parser) keyword() (value.Value, error) {
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True":
		return value.Bool(true), nil
	case "False":
		return value.Bool(false), nil
	case "None":
		return value.Null{}, nil
	default:
		p.pos = start
		return nil, p.errorf("name %q is not a literal", word)
	}
}

func (p *parser) number() (value.Value, error) {
	start := p.pos
	neg := false
	if c := p.peek(); c == '+' || c == '-' {
		neg = c == '-'
		p.pos++
		p.skipSpace()
	}
	numStart := p.pos

	if p.peek() == '0' && p.pos+1 < len(p.src) && strings.ContainsRune("xXoObB", rune(p.src[p.pos+1])) {
		base := map[byte]int{'x': 16, 'X': 16, 'o': 8, 'O': 8, 'b': 2, 'B': 2}[p.src[p.pos+1]]
		p.pos += 2
		digitsStart := p.pos
		for !p.eof() && (isHexDigit(p.peek()) || p.peek() == '_') {
			p.pos++
		}
		text := p.src[digitsStart:p.pos]
		n, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), base, 64)
		if err != nil || strings.HasSuffix(text, "_") || strings.Contains(text, "__") {
			p.pos = start
			return nil, p.errorf("invalid integer")
		}
		if neg {
			n = -n
		}
		return value.Int(n), nil
	}

	isFloat := false
	p.digits()
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		p.digits()
	}
	if p.peek() == 'e' || p.peek() == 'E' {
		isFloat = true
		p.pos++
		if p.peek() == '+' || p.peek() == '-' {
			p.pos++
		}
		if !isDigit(p.peek()) {
			return nil, p.errorf("invalid exponent")
		}
		p.digits()
	}
	text := p.src[numStart:p.pos]
	if text == "" || text == "." {
		p.pos = start
		return nil, p.errorf("expected a number")
	}
	if !p.eof() && isIdentPart(p.peek()) {
		return nil, p.errorf("invalid number suffix")
	}
	clean := strings.ReplaceAll(text, "_", "")

	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return nil, p.errorf("invalid float")
		}
		if neg {
			f = -f
		}
		return value.Float(f), nil
	}

	// Python 3 rejects leading zeros on non-zero decimal integers.
	if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
		p.pos = start
		return nil, p.errorf("leading zeros in decimal integer")
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("integer out of range")
	}
	if neg {
		n = -n
	}
	return value.Int(n), nil
}

// digits consumes decimal digits; an underscore is taken only between two
// digits.
func (p *parser) digits() {
	for !p.eof() {
		c := p.peek()
		if c == '_' && p.pos > 0 && isDigit(p.src[p.pos-1]) && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1]) {
			p.pos++
			continue
		}
		if !isDigit(c) {
			return
		}
		p.pos++
	}
}

func (p *parser) rawStr() (value.Value, error) {
	quote := p.peek()
	p.pos++
	start := p.pos
	for !p.eof() {
		switch p.peek() {
		case quote:
			s := p.src[start:p.pos]
			p.pos++
			return value.String(s), nil
		case '\\':
			p.pos += 2
		default:
			p.pos++
		}
	}
	return nil, p.errorf("unterminated string")
}

func (p *parser) str() (value.Value, error) {
	quote := p.peek()
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		switch c {
		case quote:
			p.pos++
			return value.String(b.String()), nil
		case '\n':
			return nil, p.errorf("newline in string")
		case '\\':
			if err := p.escape(&b); err != nil {
				return nil, err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return nil, p.errorf("unterminated string")
}

func (p *parser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.eof() {
		return p.errorf("unterminated escape")
	}
	c := p.peek()
	p.pos++
	simple := map[byte]string{
		'n': "\n", 't': "\t", 'r': "\r", '\\': "\\", '\'': "'", '"': "\"",
		'0': "\x00", 'a': "\a", 'b': "\b", 'f': "\f", 'v': "\v", '\n': "",
	}
	if s, ok := simple[c]; ok {
		b.WriteString(s)
		return nil
	}
	width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
	if width == 0 {
		// Unknown escapes keep their backslash.
		b.WriteByte('\\')
		b.WriteByte(c)
		return nil
	}
	if p.pos+width > len(p.src) {
		return p.errorf("truncated \\%c escape", c)
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
	if err != nil {
		return p.errorf("invalid \\%c escape", c)
	}
	p.pos += width
	b.WriteRune(rune(n))
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
