package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Decode parses wire text into a Value. The accepted grammar is JSON
// plus the bare tokens undefined, Infinity, -Infinity and NaN.
func Decode(text string) (Value, error) {
	p := &parser{src: text}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return Null, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Null, p.errorf("trailing data")
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("wire: %s at offset %d", msg, p.pos)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) parseValue() (Value, error) {
	if p.pos >= len(p.src) {
		return Null, p.errorf("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return Null, err
		}
		return String(s), nil
	case c == 't':
		if err := p.expect("true"); err != nil {
			return Null, err
		}
		return True, nil
	case c == 'f':
		if err := p.expect("false"); err != nil {
			return Null, err
		}
		return False, nil
	case c == 'n':
		if err := p.expect("null"); err != nil {
			return Null, err
		}
		return Null, nil
	case c == 'u':
		if err := p.expect(tokenUndefined); err != nil {
			return Null, err
		}
		return Undefined, nil
	case c == 'N':
		if err := p.expect(tokenNaN); err != nil {
			return Null, err
		}
		return Number(math.NaN()), nil
	case c == 'I':
		if err := p.expect(tokenInfinity); err != nil {
			return Null, err
		}
		return Number(math.Inf(1)), nil
	case c == '-' && strings.HasPrefix(p.src[p.pos:], tokenNegInfinity):
		p.pos += len(tokenNegInfinity)
		return Number(math.Inf(-1)), nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return Null, p.errorf("unexpected character %q", c)
	}
}

func (p *parser) expect(token string) error {
	if !strings.HasPrefix(p.src[p.pos:], token) {
		return p.errorf("invalid token")
	}
	p.pos += len(token)
	return nil
}

func (p *parser) parseNumber() (Value, error) {
	start := p.pos
	if p.pos < len(p.src) && p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			p.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return Null, fmt.Errorf("wire: invalid number %q at offset %d", p.src[start:p.pos], start)
	}
	return Number(f), nil
}

func (p *parser) parseString() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		if c != '\\' {
			b.WriteByte(c)
			p.pos++
			continue
		}
		p.pos++
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated escape")
		}
		switch e := p.src[p.pos]; e {
		case '"', '\\', '/':
			b.WriteByte(e)
			p.pos++
		case 'b':
			b.WriteByte('\b')
			p.pos++
		case 't':
			b.WriteByte('\t')
			p.pos++
		case 'n':
			b.WriteByte('\n')
			p.pos++
		case 'f':
			b.WriteByte('\f')
			p.pos++
		case 'r':
			b.WriteByte('\r')
			p.pos++
		case 'u':
			r, err := p.parseUnicodeEscape()
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		default:
			return "", p.errorf("invalid escape %q", e)
		}
	}
}

// parseUnicodeEscape decodes \uXXXX, pairing surrogates when the
// second half follows immediately.
func (p *parser) parseUnicodeEscape() (rune, error) {
	r1, err := p.hex4()
	if err != nil {
		return 0, err
	}
	if utf16.IsSurrogate(r1) {
		if strings.HasPrefix(p.src[p.pos:], `\u`) {
			save := p.pos
			p.pos++ // the backslash; hex4 consumes the 'u'
			r2, err := p.hex4()
			if err != nil {
				return 0, err
			}
			if r := utf16.DecodeRune(r1, r2); r != utf8.RuneError {
				return r, nil
			}
			p.pos = save
		}
		return utf8.RuneError, nil
	}
	return r1, nil
}

func (p *parser) hex4() (rune, error) {
	p.pos++ // the 'u'
	if p.pos+4 > len(p.src) {
		return 0, p.errorf("truncated unicode escape")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
	if err != nil {
		return 0, p.errorf("invalid unicode escape")
	}
	p.pos += 4
	return rune(n), nil
}

func (p *parser) parseArray() (Value, error) {
	p.pos++ // '['
	var elems []Value
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return Array(), nil
	}
	for {
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return Null, err
		}
		elems = append(elems, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Null, p.errorf("unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return Array(elems...), nil
		default:
			return Null, p.errorf("expected ',' or ']'")
		}
	}
}

func (p *parser) parseObject() (Value, error) {
	p.pos++ // '{'
	obj := NewObject()
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return obj, nil
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '"' {
			return Null, p.errorf("expected object key")
		}
		key, err := p.parseString()
		if err != nil {
			return Null, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return Null, p.errorf("expected ':'")
		}
		p.pos++
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return Null, err
		}
		obj.Set(key, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Null, p.errorf("unterminated object")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, nil
		default:
			return Null, p.errorf("expected ',' or '}'")
		}
	}
}
