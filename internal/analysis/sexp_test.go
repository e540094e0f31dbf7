package analysis

import (
	"strconv"
	"strings"
	"testing"
	"unicode"

	"github.com/loam-lang/loam/internal/ast"
)

// parseSexp is the test fixture reader: it turns source text into the
// expression trees the analyzer consumes. Supports lists, symbols, ints,
// floats, #\c characters, 'x quote shorthand, [..] array literals and
// {..} map literals.
func parseSexp(t *testing.T, src string) []ast.Expr {
	t.Helper()
	p := &sexpParser{toks: tokenizeSexp(src)}
	var exprs []ast.Expr
	for !p.done() {
		expr := p.parse(t)
		if expr == nil {
			t.Fatalf("unexpected token %q in %q", p.peek(), src)
		}
		exprs = append(exprs, expr)
	}
	return exprs
}

func parseOneSexp(t *testing.T, src string) ast.Expr {
	t.Helper()
	exprs := parseSexp(t, src)
	if len(exprs) != 1 {
		t.Fatalf("want 1 expression in %q, got %d", src, len(exprs))
	}
	return exprs[0]
}

func tokenizeSexp(src string) []string {
	var toks []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case strings.ContainsRune("()[]{}'", rune(c)):
			toks = append(toks, string(c))
			i++
		case strings.HasPrefix(src[i:], `#\`) && i+2 < len(src):
			toks = append(toks, src[i:i+3])
			i += 3
		default:
			j := i
			for j < len(src) && !unicode.IsSpace(rune(src[j])) &&
				!strings.ContainsRune("()[]{}'", rune(src[j])) {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		}
	}
	return toks
}

type sexpParser struct {
	toks []string
	pos  int
}

func (p *sexpParser) done() bool { return p.pos >= len(p.toks) }

func (p *sexpParser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos]
}

func (p *sexpParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *sexpParser) parse(t *testing.T) ast.Expr {
	t.Helper()
	tok := p.next()
	switch tok {
	case "":
		return nil
	case "'":
		return ast.NewList(ast.NewSymbol(ast.FormQuote), p.parse(t))
	case "(":
		return ast.NewList(p.parseUntil(t, ")")...)
	case "[":
		return ast.NewArray(p.parseUntil(t, "]")...)
	case "{":
		return ast.NewMap(p.parseUntil(t, "}")...)
	case ")", "]", "}":
		return nil
	}
	if strings.HasPrefix(tok, `#\`) {
		return ast.NewChar(rune(tok[2]))
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return ast.NewInt(n)
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return ast.NewFloat(f)
	}
	return ast.NewSymbol(tok)
}

func (p *sexpParser) parseUntil(t *testing.T, close string) []ast.Expr {
	t.Helper()
	var items []ast.Expr
	for {
		if p.done() {
			t.Fatalf("unterminated form, expected %q", close)
		}
		if p.peek() == close {
			p.next()
			return items
		}
		items = append(items, p.parse(t))
	}
}

// analyzeSrc parses and runs the full pipeline, the common setup for the
// end-to-end tests.
func analyzeSrc(t *testing.T, shapes *ShapeRegistry, src string) *AnalysisContext {
	t.Helper()
	ctx := NewAnalysisContext(shapes)
	ctx.AnalyzeProgram(parseSexp(t, src))
	return ctx
}
