// internal/parser/stmt.go
package parser

import (
	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
)

// declaration parses one `decl`. Functions and structs are only legal at
// the top level. Returns ok=false when the declaration failed to parse.
func (p *Parser) declaration(topLevel bool) (ast.DeclID, bool) {
	declTok := p.peek()
	if !p.expect(lexer.TokenDecl) {
		return -1, false
	}
	name := p.peek()
	if !p.expect(lexer.TokenIdent) {
		return -1, false
	}

	switch {
	case p.check(lexer.TokenFunc):
		if !topLevel {
			p.rep.Errorf(errors.ParseError, declTok.Pos, "nested function declarations are not supported")
			p.skipToNewline()
			return -1, false
		}
		return p.funcDecl(name)
	case p.check(lexer.TokenStruct):
		if !topLevel {
			p.rep.Errorf(errors.ParseError, declTok.Pos, "nested struct declarations are not supported")
			p.skipToNewline()
			return -1, false
		}
		return p.structDecl(name)
	default:
		return p.varDecl(name)
	}
}

func (p *Parser) funcDecl(name lexer.Token) (ast.DeclID, bool) {
	p.advance() // func
	params, paramDecls := p.parseParams(true)
	if !p.expect(lexer.TokenColon) {
		return -1, false
	}
	ret := p.parseType()
	body := p.block()
	d := &ast.Decl{
		Kind:   ast.DeclFunc,
		Name:   name.Sym,
		Off:    name.Pos,
		Type:   p.reg.Func(params, ret),
		Body:   body,
		Params: paramDecls,
	}
	return p.mod.Register(d), true
}

func (p *Parser) structDecl(name lexer.Token) (ast.DeclID, bool) {
	p.advance() // struct
	if !p.expect(lexer.TokenLBrace) {
		return -1, false
	}
	fields := make(map[*lexer.Sym]ast.Field)
	for !p.match(lexer.TokenRBrace) {
		if p.isAtEnd() {
			p.rep.Errorf(errors.ParseError, name.Pos, "unterminated struct declaration")
			return -1, false
		}
		fname := p.peek()
		if !p.expect(lexer.TokenIdent) {
			return -1, false
		}
		if !p.expect(lexer.TokenColon) {
			return -1, false
		}
		t := p.parseType()
		if !p.expect(lexer.TokenSemicolon) {
			return -1, false
		}
		if _, dup := fields[fname.Sym]; dup {
			p.rep.Errorf(errors.ParseError, fname.Pos, "duplicate field %s", fname.Sym)
			continue
		}
		fields[fname.Sym] = ast.Field{Index: int32(len(fields)), Type: t}
	}
	d := &ast.Decl{
		Kind: ast.DeclStruct,
		Name: name.Sym,
		Off:  name.Pos,
		Type: p.reg.Struct(fields),
	}
	return p.mod.Register(d), true
}

func (p *Parser) varDecl(name lexer.Token) (ast.DeclID, bool) {
	var t *ast.Type // nil: infer from the initializer
	if p.match(lexer.TokenColon) {
		t = p.parseType()
	}
	if !p.expect(lexer.TokenEqual) {
		return -1, false
	}
	init := p.expression()
	if !p.expect(lexer.TokenSemicolon) {
		return -1, false
	}
	d := &ast.Decl{
		Kind: ast.DeclVar,
		Name: name.Sym,
		Off:  name.Pos,
		Type: t,
		Init: init,
	}
	return p.mod.Register(d), true
}

// --- Statements ---

func (p *Parser) statement() ast.Stmt {
	switch {
	case p.match(lexer.TokenReturn):
		e := p.expression()
		p.expect(lexer.TokenSemicolon)
		return &ast.ReturnStmt{X: e}

	case p.check(lexer.TokenDecl):
		id, ok := p.declaration(false)
		if !ok {
			return &ast.BadStmt{}
		}
		return &ast.DeclStmt{D: id}

	case p.match(lexer.TokenIf):
		return p.ifStatement()

	case p.match(lexer.TokenWhile):
		cond := p.expression()
		body := p.block()
		return &ast.WhileStmt{Cond: cond, Body: body}

	case p.check(lexer.TokenLBrace):
		return p.block()
	}

	e := p.expression()
	if p.match(lexer.TokenEqual) {
		r := p.expression()
		p.expect(lexer.TokenSemicolon)
		return &ast.AssignStmt{L: e, R: r}
	}
	p.expect(lexer.TokenSemicolon)
	return &ast.ExprStmt{X: e}
}

func (p *Parser) ifStatement() ast.Stmt {
	cond := p.expression()
	then := p.block()
	var els ast.Stmt
	if p.match(lexer.TokenElse) {
		if p.match(lexer.TokenIf) {
			els = p.ifStatement()
		} else {
			els = p.block()
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}
}

func (p *Parser) block() *ast.BlockStmt {
	blk := &ast.BlockStmt{}
	if !p.expect(lexer.TokenLBrace) {
		return blk
	}
	for !p.match(lexer.TokenRBrace) {
		if p.isAtEnd() {
			p.rep.Errorf(errors.ParseError, p.peek().Pos, "unterminated block")
			return blk
		}
		blk.List = append(blk.List, p.statement())
	}
	return blk
}
