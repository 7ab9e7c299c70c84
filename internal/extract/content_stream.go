package extract

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// TJ displacements below this (in thousandths of a text space unit) are
	// read as word gaps.
	tjWordGap = -200
	// Td/TD moves along the current line wider than this are read as word gaps.
	tdWordGap = 1.0
)

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokString
	tokNumber
	tokArrayStart
	tokArrayEnd
	tokOther
)

type token struct {
	kind tokenKind
	text string
	raw  []byte
	num  float64
}

// pageText decodes the text-showing operators of a page content stream.
// Shown strings are mapped through the font selected by Tf; text
// positioning that moves to a new line produces "\n".
func pageText(content []byte, fonts pageFonts) string {
	var (
		out     strings.Builder
		lx      = newLexer(content)
		operand []token
		array   []token
		inArray bool
		current *font
		gap     bool
	)

	newline := func() {
		s := out.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
		gap = false
	}
	write := func(raw []byte) {
		s := current.decode(raw)
		if s == "" {
			return
		}
		if gap {
			prev := out.String()
			if prev != "" && !strings.HasSuffix(prev, " ") && !strings.HasSuffix(prev, "\n") && !strings.HasPrefix(s, " ") {
				out.WriteByte(' ')
			}
			gap = false
		}
		out.WriteString(s)
	}

	for {
		tok, ok := lx.next()
		if !ok {
			break
		}

		switch tok.kind {
		case tokArrayStart:
			inArray = true
			array = array[:0]
			continue
		case tokArrayEnd:
			inArray = false
			operand = append(operand, token{kind: tokArrayEnd})
			continue
		}
		if inArray {
			array = append(array, tok)
			continue
		}
		if tok.kind != tokOperator {
			operand = append(operand, tok)
			continue
		}

		switch tok.text {
		case "Tf":
			if len(operand) >= 2 && operand[len(operand)-2].kind == tokOther {
				current = fonts[strings.TrimPrefix(operand[len(operand)-2].text, "/")]
			}
		case "Tj":
			if raw, ok := lastString(operand); ok {
				write(raw)
			}
		case "'", "\"":
			newline()
			if raw, ok := lastString(operand); ok {
				write(raw)
			}
		case "TJ":
			for _, el := range array {
				switch el.kind {
				case tokString:
					write(el.raw)
				case tokNumber:
					if el.num < tjWordGap {
						gap = true
					}
				}
			}
		case "Td", "TD":
			if n := len(operand); n >= 2 && operand[n-1].kind == tokNumber && operand[n-2].kind == tokNumber {
				switch {
				case operand[n-1].num != 0:
					newline()
				case operand[n-2].num > tdWordGap:
					gap = true
				}
			}
		case "T*", "ET":
			newline()
		case "BI":
			lx.skipInlineImage()
		}
		operand = operand[:0]
	}

	return tidyLines(stripControls(out.String()))
}

func lastString(operand []token) ([]byte, bool) {
	for i := len(operand) - 1; i >= 0; i-- {
		if operand[i].kind == tokString {
			return operand[i].raw, true
		}
	}
	return nil, false
}

// stripControls drops C0 control characters other than tab and newline;
// Postgres TEXT rejects NUL.
func stripControls(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7F {
			return -1
		}
		return r
	}, s)
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

type lexer struct {
	buf []byte
	pos int
}

func newLexer(b []byte) *lexer {
	return &lexer{buf: b}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.buf) && l.buf[l.pos] != '\n' && l.buf[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			l.pos++
			return token{kind: tokString, raw: l.literal()}, true
		case c == '<':
			if l.pos+1 < len(l.buf) && l.buf[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokOther, text: "<<"}, true
			}
			l.pos++
			return token{kind: tokString, raw: l.hex()}, true
		case c == '>':
			l.pos++
			if l.pos < len(l.buf) && l.buf[l.pos] == '>' {
				l.pos++
			}
			return token{kind: tokOther, text: ">>"}, true
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '/':
			l.pos++
			return token{kind: tokOther, text: "/" + l.word()}, true
		case c == '{' || c == '}' || c == ')':
			l.pos++
		default:
			w := l.word()
			if w == "" {
				l.pos++
				continue
			}
			if n, err := strconv.ParseFloat(w, 64); err == nil {
				return token{kind: tokNumber, text: w, num: n}, true
			}
			return token{kind: tokOperator, text: w}, true
		}
	}
	return token{}, false
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.buf) && !isSpace(l.buf[l.pos]) && !isDelim(l.buf[l.pos]) {
		l.pos++
	}
	return string(l.buf[start:l.pos])
}

// literal reads a (string) body; the opening paren is already consumed.
func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.buf) {
				return out
			}
			e := l.buf[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.buf) && l.buf[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.buf) && l.buf[l.pos] >= '0' && l.buf[l.pos] <= '7'; i++ {
						v = v*8 + int(l.buf[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// hex reads a <hex string> body; the opening bracket is already consumed.
func (l *lexer) hex() []byte {
	var digits []byte
	for l.pos < len(l.buf) && l.buf[l.pos] != '>' {
		c := l.buf[l.pos]
		if unhex(c) >= 0 {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		out = append(out, byte(unhex(digits[i])<<4|unhex(digits[i+1])))
	}
	return out
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func (l *lexer) skipInlineImage() {
	for l.pos+1 < len(l.buf) {
		if l.buf[l.pos] == 'E' && l.buf[l.pos+1] == 'I' &&
			(l.pos == 0 || isSpace(l.buf[l.pos-1])) &&
			(l.pos+2 >= len(l.buf) || isSpace(l.buf[l.pos+2])) {
			l.pos += 2
			return
		}
		l.pos++
	}
	l.pos = len(l.buf)
}

// decodeText interprets string bytes as UTF-16BE when marked with a BOM,
// UTF-8 when valid, and Latin-1 otherwise.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
