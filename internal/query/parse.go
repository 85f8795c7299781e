package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"dicom-deidentifier/internal/tagpath"
)

type tokenKind int

const (
	tokWord tokenKind = iota // tag path, operator, AND/OR or bare value
	tokString                // double-quoted value
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(text string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '"':
			end := strings.IndexByte(text[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, token{tokString, text[i+1 : i+1+end]})
			i += end + 2
		default:
			start := i
			for i < len(text) && !strings.ContainsRune(" \t\n()\"", rune(text[i])) {
				i++
			}
			toks = append(toks, token{tokWord, text[start:i]})
		}
	}
	return toks, nil
}

type parser struct {
	query string
	toks  []token
	pos   int
}

// Parse compiles a condition expression. The text must be non-empty; a
// label with no filter is handled by the caller, not by an empty query.
func Parse(text string) (Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SyntaxError{Query: text, Reason: "empty query"}
	}
	toks, err := lex(text)
	if err != nil {
		return nil, &SyntaxError{Query: text, Reason: err.Error()}
	}
	p := &parser{query: text, toks: toks}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, p.errorf("unexpected %q", p.toks[p.pos].text)
	}
	return node, nil
}

// MustParse is Parse for known-good queries; it panics on error.
func MustParse(text string) Node {
	n, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return n
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Query: p.query, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// parseExpr parses term (("AND"|"OR") term)*, left-associative.
func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokWord {
			return left, nil
		}
		var and bool
		switch strings.ToUpper(t.text) {
		case "AND":
			and = true
		case "OR":
			and = false
		default:
			return nil, p.errorf("expected AND or OR, got %q", t.text)
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{and: and, left: left, right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, p.errorf("unexpected end of query")
	}
	if t.kind == tokLParen {
		p.pos++
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.next()
		if !ok || closing.kind != tokRParen {
			return nil, p.errorf("unbalanced parentheses")
		}
		return node, nil
	}
	return p.parseCondition()
}

func (p *parser) parseCondition() (Node, error) {
	pathTok, ok := p.next()
	if !ok || pathTok.kind != tokWord {
		return nil, p.errorf("expected a tag path")
	}
	path, err := tagpath.Parse(pathTok.text)
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	opTok, ok := p.next()
	if !ok || opTok.kind != tokWord {
		return nil, p.errorf("expected an operator after %q", pathTok.text)
	}
	op, known := operatorNames[strings.ToLower(opTok.text)]
	if !known {
		return nil, p.errorf("unknown operator %q", opTok.text)
	}
	leaf := &leafNode{path: path, op: op}
	if !op.needsValue() {
		return leaf, nil
	}
	valTok, ok := p.next()
	if !ok || (valTok.kind != tokWord && valTok.kind != tokString) {
		return nil, p.errorf("operator %q requires a value", opTok.text)
	}
	if op.numeric() {
		f, err := strconv.ParseFloat(valTok.text, 64)
		if err != nil {
			return nil, p.errorf("operator %q requires a numeric value, got %q", opTok.text, valTok.text)
		}
		leaf.numVal = f
		return leaf, nil
	}
	if strings.ContainsAny(valTok.text, `"'`) {
		return nil, p.errorf("string value must not contain quotes")
	}
	leaf.strVal = valTok.text
	if strings.Contains(valTok.text, "*") {
		// Comparison is case-insensitive: compile the glob lowercased and
		// lowercase candidate values at match time. Only "*" is a wildcard;
		// the rest of the glob syntax is matched literally.
		g, err := glob.Compile(escapeNonStar(strings.ToLower(valTok.text)))
		if err != nil {
			return nil, p.errorf("bad wildcard value %q", valTok.text)
		}
		leaf.strGlob = g
	}
	return leaf, nil
}

// escapeNonStar backslash-escapes every glob metacharacter except "*".
func escapeNonStar(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '?', '[', ']', '{', '}', ',', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
