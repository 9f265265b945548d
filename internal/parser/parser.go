// internal/parser/parser.go
package parser

import (
	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
	"quill/internal/types"
)

// Operator precedence: comparisons bind looser than additive operators and
// do not chain.
var precedence = map[lexer.TokenType]int{
	lexer.TokenDoubleEqual: 1, // ==
	lexer.TokenNotEqual:    1, // !=
	lexer.TokenLT:          1, // <
	lexer.TokenGT:          1, // >
	lexer.TokenLE:          1, // <=
	lexer.TokenGE:          1, // >=
	lexer.TokenPlus:        2, // +
	lexer.TokenMinus:       2, // -
}

type Parser struct {
	tokens  []lexer.Token
	current int
	mod     *ast.Module
	reg     *types.Registry
	rep     *errors.Reporter
}

func NewParser(tokens []lexer.Token, reg *types.Registry, rep *errors.Reporter) *Parser {
	return &Parser{
		tokens: tokens,
		mod:    &ast.Module{},
		reg:    reg,
		rep:    rep,
	}
}

// ParseModule parses the whole token stream into one module.
func (p *Parser) ParseModule() *ast.Module {
	for !p.isAtEnd() {
		id, ok := p.declaration(true)
		if ok {
			p.mod.Top = append(p.mod.Top, id)
		}
	}
	return p.mod
}

// --- Expressions ---

func (p *Parser) expression() ast.Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseCast()
	for {
		tok := p.peek()
		prec, ok := precedence[tok.Type]
		if !ok || prec < minPrec {
			break
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		left = &ast.BinExpr{
			Base: ast.Base{Off: left.Pos()},
			Op:   tok.Type,
			L:    left,
			R:    right,
		}
		if left.(*ast.BinExpr).IsCmp() {
			break
		}
	}
	return left
}

// parseCast binds tighter than the binary operators: `a + 1 as int64`
// casts the literal, not the sum.
func (p *Parser) parseCast() ast.Expr {
	e := p.parseUnary()
	for p.match(lexer.TokenAs) {
		pos := p.previous().Pos
		t := p.parseType()
		e = &ast.ConvertExpr{Base: ast.Base{Off: pos}, X: e, To: t}
	}
	return e
}

func (p *Parser) parseUnary() ast.Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenNot:
		p.advance()
		return &ast.NotExpr{Base: ast.Base{Off: tok.Pos}, X: p.parseUnary()}
	case lexer.TokenAmp:
		p.advance()
		return &ast.AddrExpr{Base: ast.Base{Off: tok.Pos}, X: p.parseUnary()}
	case lexer.TokenStar:
		p.advance()
		return &ast.DerefExpr{Base: ast.Base{Off: tok.Pos}, X: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	e := p.primary()
	for {
		switch {
		case p.match(lexer.TokenLParen):
			e = p.finishCall(e)
		case p.check(lexer.TokenLBracket):
			// consecutive bracket groups collect into one access whose
			// argument count is the rank
			var args []ast.Expr
			for p.match(lexer.TokenLBracket) {
				args = append(args, p.expression())
				p.expect(lexer.TokenRBracket)
			}
			e = &ast.IndexExpr{Base: ast.Base{Off: e.Pos()}, X: e, Args: args}
		case p.match(lexer.TokenDot):
			name := p.peek()
			if !p.expect(lexer.TokenIdent) {
				return &ast.BadExpr{Base: ast.Base{Off: name.Pos}}
			}
			e = &ast.FieldExpr{Base: ast.Base{Off: e.Pos()}, X: e, Name: name.Sym}
		default:
			return e
		}
	}
}

func (p *Parser) finishCall(fn ast.Expr) ast.Expr {
	var args []ast.Expr
	if !p.check(lexer.TokenRParen) {
		for {
			args = append(args, p.expression())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.expect(lexer.TokenRParen)
	return &ast.CallExpr{Base: ast.Base{Off: fn.Pos()}, Fn: fn, Args: args}
}

func (p *Parser) primary() ast.Expr {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenInt:
		return &ast.IntLit{Base: ast.Base{Off: tok.Pos}, Val: tok.Val}
	case lexer.TokenTrue:
		return &ast.BoolLit{Base: ast.Base{Off: tok.Pos}, Val: true}
	case lexer.TokenFalse:
		return &ast.BoolLit{Base: ast.Base{Off: tok.Pos}, Val: false}
	case lexer.TokenUndef:
		return &ast.UndefExpr{Base: ast.Base{Off: tok.Pos}}
	case lexer.TokenIdent:
		return &ast.NameExpr{Base: ast.Base{Off: tok.Pos}, Name: tok.Sym, Decl: -1}
	case lexer.TokenLParen:
		e := p.expression()
		p.expect(lexer.TokenRParen)
		return e
	case lexer.TokenLBrace:
		return p.initList(tok.Pos)
	}
	p.rep.Errorf(errors.ParseError, tok.Pos, "unexpected token %s", tok)
	p.skipToNewline()
	return &ast.BadExpr{Base: ast.Base{Off: tok.Pos}}
}

func (p *Parser) initList(pos int) ast.Expr {
	var elems []ast.Expr
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		if len(elems) > 0 && !p.expect(lexer.TokenComma) {
			return &ast.BadExpr{Base: ast.Base{Off: pos}}
		}
		elems = append(elems, p.expression())
	}
	p.expect(lexer.TokenRBrace)
	return &ast.InitList{Base: ast.Base{Off: pos}, Elems: elems}
}

// --- Types ---

func (p *Parser) parseType() *ast.Type {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenInt8T:
		p.advance()
		return p.reg.Int8()
	case lexer.TokenInt32T:
		p.advance()
		return p.reg.Int32()
	case lexer.TokenInt64T:
		p.advance()
		return p.reg.Int64()
	case lexer.TokenBoolT:
		p.advance()
		return p.reg.Bool()
	case lexer.TokenStar:
		p.advance()
		return p.reg.Ptr(p.parseType())
	case lexer.TokenLBracket:
		var sizes []ast.Expr
		for p.match(lexer.TokenLBracket) {
			sizes = append(sizes, p.expression())
			p.expect(lexer.TokenRBracket)
		}
		return p.reg.Array(p.parseType(), sizes)
	case lexer.TokenFunc:
		p.advance()
		params, _ := p.parseParams(false)
		if !p.expect(lexer.TokenColon) {
			return p.reg.None()
		}
		return p.reg.Func(params, p.parseType())
	case lexer.TokenIdent:
		p.advance()
		return p.reg.Named(tok.Sym)
	}
	p.rep.Errorf(errors.ParseError, tok.Pos, "unknown type, got %s", tok)
	p.skipToNewline()
	return p.reg.None()
}

// parseParams reads a parenthesized parameter list. With declare set, each
// parameter is also registered as a variable declaration for the resolver.
func (p *Parser) parseParams(declare bool) ([]ast.Param, []ast.DeclID) {
	var params []ast.Param
	var decls []ast.DeclID
	if !p.expect(lexer.TokenLParen) {
		return params, decls
	}
	for !p.match(lexer.TokenRParen) {
		if len(params) > 0 && !p.expect(lexer.TokenComma) {
			return params, decls
		}
		name := p.peek()
		if !p.expect(lexer.TokenIdent) {
			return params, decls
		}
		if !p.expect(lexer.TokenColon) {
			return params, decls
		}
		t := p.parseType()
		params = append(params, ast.Param{Name: name.Sym, Type: t})
		if declare {
			d := &ast.Decl{Kind: ast.DeclVar, Name: name.Sym, Off: name.Pos, Type: t}
			decls = append(decls, p.mod.Register(d))
		}
	}
	return params, decls
}

// --- Token plumbing ---

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() lexer.Token {
	return p.tokens[p.current-1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.current]
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

// expect reports a parse error and skips to the next line when the current
// token is not the wanted one.
func (p *Parser) expect(t lexer.TokenType) bool {
	if p.match(t) {
		return true
	}
	tok := p.peek()
	p.rep.Errorf(errors.ParseError, tok.Pos, "expected token '%s', got %s instead", string(t), tok)
	p.skipToNewline()
	return false
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TokenEOF
}

func (p *Parser) skipToNewline() {
	line := p.peek().Line
	for !p.isAtEnd() && p.peek().Line <= line {
		p.advance()
	}
}
