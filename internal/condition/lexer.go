package condition

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// twoCharOps must be tried before single-character operators.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

type lexer struct {
	src string
	pos int
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) errorf(pos int, msg string) error {
	return &SyntaxError{Expr: lx.src, Pos: pos, Msg: msg}
}

func (lx *lexer) next() (token, error) {
	for lx.pos < len(lx.src) && isSpace(lx.src[lx.pos]) {
		lx.pos++
	}
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := lx.src[lx.pos]
	switch {
	case isDigit(c):
		return lx.number()
	case isIdentStart(c):
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		return token{kind: tokIdent, text: lx.src[start:lx.pos], pos: start}, nil
	case c == '\'' || c == '"':
		return lx.str(c)
	}

	for _, op := range twoCharOps {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += 2
			return token{kind: tokOp, text: op, pos: start}, nil
		}
	}

	lx.pos++
	switch c {
	case '(':
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case '[':
		return token{kind: tokLBracket, text: "[", pos: start}, nil
	case ']':
		return token{kind: tokRBracket, text: "]", pos: start}, nil
	case ',':
		return token{kind: tokComma, text: ",", pos: start}, nil
	case '.':
		return token{kind: tokDot, text: ".", pos: start}, nil
	case '<', '>', '+', '-', '*', '/', '!':
		return token{kind: tokOp, text: string(c), pos: start}, nil
	case '=':
		return token{}, lx.errorf(start, "single '=' is not an operator, use '=='")
	case '&', '|':
		return token{}, lx.errorf(start, "use '"+string(c)+string(c)+"' or the keyword form")
	}
	return token{}, lx.errorf(start, "unexpected character "+strconv.QuoteRune(rune(c)))
}

func (lx *lexer) number() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.pos++
	}
	if lx.pos+1 < len(lx.src) && lx.src[lx.pos] == '.' && isDigit(lx.src[lx.pos+1]) {
		lx.pos++
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
	}
	if lx.pos < len(lx.src) && isIdentStart(lx.src[lx.pos]) {
		return token{}, lx.errorf(lx.pos, "identifier cannot start with a digit")
	}
	text := lx.src[start:lx.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, lx.errorf(start, "bad number "+text)
	}
	return token{kind: tokNumber, text: text, num: n, pos: start}, nil
}

func (lx *lexer) str(quote byte) (token, error) {
	start := lx.pos
	lx.pos++
	var b strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case quote:
			lx.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case '\\':
			if lx.pos+1 >= len(lx.src) {
				return token{}, lx.errorf(lx.pos, "unterminated escape")
			}
			lx.pos++
			switch esc := lx.src[lx.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			default:
				return token{}, lx.errorf(lx.pos, "unknown escape \\"+string(esc))
			}
		default:
			b.WriteByte(c)
		}
		lx.pos++
	}
	return token{}, lx.errorf(start, "unterminated string")
}

func isSpace(c byte) bool      { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }
