package condition

import "strings"

// keywords cannot be used as variable or function names.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true, "True": true, "False": true,
	"none": true, "None": true, "null": true,
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// Expression is a compiled guard. The zero-length expression always passes.
type Expression struct {
	src  string
	root node
}

// Compile parses src into an Expression.
// Syntax errors are *SyntaxError values that match ErrSyntax.
func Compile(src string) (*Expression, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return &Expression{src: src}, nil
	}

	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected "+describe(tok))
	}
	if deep := tooDeep(root, 0); deep != nil {
		return nil, &SyntaxError{Expr: src, Pos: deep.position(), Msg: "expression nested too deeply"}
	}

	return &Expression{src: src, root: root}, nil
}

// tooDeep returns the first node deeper than maxDepth, counted the way eval
// counts it, or nil when the tree fits.
func tooDeep(n node, depth int) node {
	if depth > maxDepth {
		return n
	}
	var children []node
	switch n := n.(type) {
	case *listNode:
		children = n.items
	case *memberNode:
		children = []node{n.target}
	case *callNode:
		children = n.args
	case *unaryNode:
		children = []node{n.operand}
	case *logicalNode:
		children = []node{n.left, n.right}
	case *compareNode:
		children = []node{n.left, n.right}
	case *arithNode:
		children = []node{n.left, n.right}
	}
	for _, c := range children {
		if deep := tooDeep(c, depth+1); deep != nil {
			return deep
		}
	}
	return nil
}

// MustCompile is Compile for expressions known to be valid.
func MustCompile(src string) *Expression {
	expr, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return expr
}

// String returns the source text.
func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	return e.src
}

// Empty reports whether the expression has no body and therefore always passes.
func (e *Expression) Empty() bool {
	return e == nil || e.root == nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, msg string) error {
	return &SyntaxError{Expr: p.src, Pos: tok.pos, Msg: msg}
}

func (p *parser) isKeyword(tok token, words ...string) bool {
	if tok.kind != tokIdent {
		return false
	}
	for _, w := range words {
		if tok.text == w {
			return true
		}
	}
	return false
}

func (p *parser) isOp(tok token, ops ...string) bool {
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected "+what+", found "+describe(tok))
	}
	return p.advance(), nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(p.peek(), "or") || p.isOp(p.peek(), "||") {
		tok := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{pos: tok.pos, op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword(p.peek(), "and") || p.isOp(p.peek(), "&&") {
		tok := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{pos: tok.pos, op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword(p.peek(), "not") || p.isOp(p.peek(), "!") {
		tok := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{pos: tok.pos, op: "not", operand: operand}, nil
	}
	return p.parseComparison()
}

// compareOp consumes a comparison operator if one is next.
func (p *parser) compareOp() (string, token, bool) {
	tok := p.peek()
	switch {
	case tok.kind == tokOp && compareOps[tok.text]:
		p.advance()
		return tok.text, tok, true
	case p.isKeyword(tok, "in"):
		p.advance()
		return "in", tok, true
	case p.isKeyword(tok, "not") && p.isKeyword(p.peekAt(1), "in"):
		p.advance()
		p.advance()
		return "notin", tok, true
	}
	return "", tok, false
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, tok, ok := p.compareOp()
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, next, chained := p.compareOp(); chained {
		return nil, p.errorf(next, "comparisons cannot be chained, combine them with 'and'")
	}
	return &compareNode{pos: tok.pos, op: op, left: left, right: right}, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp(p.peek(), "+", "-") {
		tok := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &arithNode{pos: tok.pos, op: tok.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp(p.peek(), "*", "/") {
		tok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &arithNode{pos: tok.pos, op: tok.text, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp(p.peek(), "-") {
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{pos: tok.pos, op: "-", operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.kind {
		case tokLParen:
			v, ok := n.(*variableNode)
			if !ok {
				return nil, p.errorf(tok, "only named helpers can be called")
			}
			p.advance()
			args, err := p.parseSequence(tokRParen, "')'")
			if err != nil {
				return nil, err
			}
			n = &callNode{pos: v.pos, name: v.name, args: args}
		case tokDot:
			p.advance()
			name, err := p.expect(tokIdent, "attribute name")
			if err != nil {
				return nil, err
			}
			n = &memberNode{pos: tok.pos, target: n, name: name.text}
		default:
			return n, nil
		}
	}
}

// parseSequence reads comma-separated expressions up to the closing token.
// A trailing comma is allowed.
func (p *parser) parseSequence(closing tokenKind, what string) ([]node, error) {
	var items []node
	for {
		if p.peek().kind == closing {
			p.advance()
			return items, nil
		}
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		tok := p.peek()
		switch tok.kind {
		case tokComma:
			p.advance()
		case closing:
		default:
			return nil, p.errorf(tok, "expected ',' or "+what+", found "+describe(tok))
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.advance()
		return &literalNode{pos: tok.pos, value: tok.num}, nil
	case tokString:
		p.advance()
		return &literalNode{pos: tok.pos, value: tok.text}, nil
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		p.advance()
		items, err := p.parseSequence(tokRBracket, "']'")
		if err != nil {
			return nil, err
		}
		return &listNode{pos: tok.pos, items: items}, nil
	case tokIdent:
		p.advance()
		switch tok.text {
		case "true", "True":
			return &literalNode{pos: tok.pos, value: true}, nil
		case "false", "False":
			return &literalNode{pos: tok.pos, value: false}, nil
		case "none", "None", "null":
			return &literalNode{pos: tok.pos, value: nil}, nil
		}
		if keywords[tok.text] {
			return nil, p.errorf(tok, "unexpected keyword '"+tok.text+"'")
		}
		return &variableNode{pos: tok.pos, name: tok.text}, nil
	}
	return nil, p.errorf(tok, "unexpected "+describe(tok))
}

func describe(tok token) string {
	switch tok.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return "string literal"
	case tokNumber:
		return "number " + tok.text
	default:
		return "'" + tok.text + "'"
	}
}
