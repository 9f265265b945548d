// internal/compiler/stmt_compiler.go
package compiler

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/ir"
)

func (b *fnBuilder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		b.expr(s.X, refNone)

	case *ast.DeclStmt:
		b.localDecl(s.D)

	case *ast.AssignStmt:
		r := b.expr(s.R, refNone)
		b.expr(s.L, r)

	case *ast.ReturnStmt:
		r := b.expr(s.X, refNone)
		b.emit(ir.Instr{Kind: ir.Ret, To: ir.Ref(r)})

	case *ast.IfStmt:
		b.ifElse(s)

	case *ast.WhileStmt:
		b.while(s)

	case *ast.BlockStmt:
		for _, st := range s.List {
			b.stmt(st)
		}

	default:
		panic(fmt.Sprintf("lower: unexpected statement %T", s))
	}
}

// localDecl gives the declared name a value ref. A plain name initializer
// gets an explicit copy so the new name owns its own local; any other
// initializer's result local is reused directly.
func (b *fnBuilder) localDecl(id ast.DeclID) {
	d := b.c.mod.Decl(id)
	val := b.expr(d.Init, refNone)
	if _, isName := d.Init.(*ast.NameExpr); isName {
		n := b.newLocal(d.Type)
		d.ID = int32(n)
		b.emit(ir.Instr{Kind: ir.Copy, To: n, L: ir.Ref(val)})
	} else {
		d.ID = val
	}
}

func (b *fnBuilder) ifElse(s *ast.IfStmt) {
	cond := b.expr(s.Cond, refNone)
	check := b.newLocal(b.c.reg.Bool())
	b.emit(ir.Instr{Kind: ir.Bool, To: check})
	b.emit(ir.Instr{Kind: ir.Br, To: ir.Ref(ir.CondNe), L: ir.Ref(cond), R: check})
	extIdx := b.emitExt(0xffffffff)

	// the then/else label fields live in the extension; placeholders are
	// patched as the target blocks open
	b.f.Ins[extIdx].L = ir.Ref(len(b.f.Nodes))
	b.newNode()
	b.stmt(s.Then)
	thenGoto := b.emit(ir.Instr{Kind: ir.Goto})

	elseGoto := int32(-1)
	if s.Else != nil {
		b.f.Ins[extIdx].R = ir.Ref(len(b.f.Nodes))
		b.newNode()
		b.stmt(s.Else)
		elseGoto = b.emit(ir.Instr{Kind: ir.Goto})
	}

	post := ir.Ref(len(b.f.Nodes))
	b.newNode()
	b.f.Ins[thenGoto].To = post
	if s.Else != nil {
		b.f.Ins[elseGoto].To = post
	} else {
		b.f.Ins[extIdx].R = post
	}
}

// while emits the reversed loop shape, so each iteration runs the test
// once with a single backward branch:
//
//	goto cond
//	body: ...; goto cond
//	cond: if (c) goto post else goto body
//	post:
func (b *fnBuilder) while(s *ast.WhileStmt) {
	gotoCond := b.emit(ir.Instr{Kind: ir.Goto})

	body := ir.Ref(len(b.f.Nodes))
	b.newNode()
	b.stmt(s.Body)
	cond := ir.Ref(len(b.f.Nodes))
	b.f.Ins[gotoCond].To = cond
	b.emit(ir.Instr{Kind: ir.Goto, To: cond})

	b.newNode()
	c := b.expr(s.Cond, refNone)
	check := b.newLocal(b.c.reg.Bool())
	b.emit(ir.Instr{Kind: ir.Bool, To: check})
	post := ir.Ref(len(b.f.Nodes))
	b.emit(ir.Instr{Kind: ir.Br, To: ir.Ref(ir.CondEq), L: ir.Ref(c), R: check})
	b.emit(ir.Instr{L: post, R: body})
	b.newNode()
}
