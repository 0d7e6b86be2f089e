package volume

import (
	"fmt"
	"strings"
	"unicode"
)

// The dimension literals are printed Python values: nested lists and tuples
// of quoted strings, an <Element ...> repr, and the bare word None.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLBracket
	tokRBracket
	tokLParen
	tokRParen
	tokComma
	tokString
	tokAngle
	tokWord
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	switch c := l.src[l.pos]; c {
	case '[':
		l.pos++
		return token{tokLBracket, "[", start}, nil
	case ']':
		l.pos++
		return token{tokRBracket, "]", start}, nil
	case '(':
		l.pos++
		return token{tokLParen, "(", start}, nil
	case ')':
		l.pos++
		return token{tokRParen, ")", start}, nil
	case ',':
		l.pos++
		return token{tokComma, ",", start}, nil
	case '\'', '"':
		return l.quoted(c)
	case '<':
		end := strings.IndexByte(l.src[l.pos:], '>')
		if end < 0 {
			return token{}, fmt.Errorf("unterminated <...> at %d", start)
		}
		l.pos += end + 1
		return token{tokAngle, l.src[start+1 : l.pos-1], start}, nil
	}
	for l.pos < len(l.src) && !strings.ContainsRune("[](),'\"< \t\n", rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos == start {
		return token{}, fmt.Errorf("unexpected %q at %d", l.src[start], start)
	}
	return token{tokWord, l.src[start:l.pos], start}, nil
}

func (l *lexer) quoted(q byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == q:
			l.pos++
			return token{tokString, b.String(), start}, nil
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, fmt.Errorf("unterminated string at %d", start)
}

// node is a parsed value. Containers have children; leaves have text.
type node struct {
	kind     tokenKind // tokLBracket for lists, tokLParen for tuples, else the leaf kind
	text     string
	children []*node
}

func (n *node) isContainer() bool { return n.kind == tokLBracket || n.kind == tokLParen }

type parser struct {
	lex *lexer
	tok token
}

func parseLiteral(src string) (*node, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.value()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("trailing input at %d", p.tok.pos)
	}
	return n, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) value() (*node, error) {
	switch p.tok.kind {
	case tokLBracket:
		return p.container(tokRBracket)
	case tokLParen:
		return p.container(tokRParen)
	case tokString, tokAngle, tokWord:
		n := &node{kind: p.tok.kind, text: p.tok.text}
		return n, p.advance()
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of input")
	}
	return nil, fmt.Errorf("unexpected %q at %d", p.tok.text, p.tok.pos)
}

func (p *parser) container(closer tokenKind) (*node, error) {
	n := &node{kind: p.tok.kind}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.tok.kind != closer {
		child, err := p.value()
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
		switch p.tok.kind {
		case tokComma:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case closer:
		default:
			return nil, fmt.Errorf("expected ',' or closing bracket at %d", p.tok.pos)
		}
	}
	return n, p.advance()
}
