// Package resolver builds the scope tree and attaches declaration ids to
// every name reference. Top-level declarations are gathered in a pre-pass
// so that mutual references resolve.
package resolver

import (
	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
)

// Scope maps identifiers to declarations. Sub holds child scopes in
// lexical order: the global scope has one child per function or struct,
// and inside functions each block statement appends a fresh sub-scope.
type Scope struct {
	Refs map[*lexer.Sym]ast.DeclID
	Sub  []*Scope
}

func newScope() *Scope {
	return &Scope{Refs: make(map[*lexer.Sym]ast.DeclID)}
}

func (s *Scope) child() *Scope {
	sub := newScope()
	s.Sub = append(s.Sub, sub)
	return sub
}

// Lookup searches a scope stack from innermost outward.
func Lookup(stack []*Scope, name *lexer.Sym) (ast.DeclID, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if id, ok := stack[i].Refs[name]; ok {
			return id, true
		}
	}
	return -1, false
}

type resolver struct {
	mod *ast.Module
	rep *errors.Reporter
}

// Resolve walks the module top-down and returns the scope tree rooted at
// the global scope. Name errors are reported through rep; the walk keeps
// going so later errors still surface.
func Resolve(mod *ast.Module, rep *errors.Reporter) *Scope {
	r := &resolver{mod: mod, rep: rep}
	global := newScope()
	for _, id := range mod.Top {
		r.declare(global, id)
	}
	for _, id := range mod.Top {
		d := mod.Decl(id)
		switch d.Kind {
		case ast.DeclFunc:
			fscope := global.child()
			stack := []*Scope{global, fscope}
			r.resolveType(d.Type, stack, d.Off)
			for _, pid := range d.Params {
				r.declare(fscope, pid)
			}
			for _, s := range d.Body.List {
				r.stmt(s, fscope, stack)
			}
		case ast.DeclStruct:
			sscope := global.child()
			r.resolveType(d.Type, []*Scope{global, sscope}, d.Off)
		case ast.DeclVar:
			stack := []*Scope{global}
			if d.Type != nil {
				r.resolveType(d.Type, stack, d.Off)
			}
			r.expr(d.Init, stack)
		}
	}
	return global
}

func (r *resolver) declare(sc *Scope, id ast.DeclID) {
	d := r.mod.Decl(id)
	if _, dup := sc.Refs[d.Name]; dup {
		r.rep.Errorf(errors.ResolveError, d.Off, "duplicate declaration of %s in this scope", d.Name)
		return
	}
	sc.Refs[d.Name] = id
}

func (r *resolver) stmt(s ast.Stmt, sc *Scope, stack []*Scope) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		r.expr(s.X, stack)
	case *ast.AssignStmt:
		r.expr(s.L, stack)
		r.expr(s.R, stack)
	case *ast.ReturnStmt:
		r.expr(s.X, stack)
	case *ast.DeclStmt:
		d := r.mod.Decl(s.D)
		if d.Type != nil {
			r.resolveType(d.Type, stack, d.Off)
		}
		r.expr(d.Init, stack)
		r.declare(sc, s.D)
	case *ast.IfStmt:
		r.expr(s.Cond, stack)
		r.stmt(s.Then, sc, stack)
		if s.Else != nil {
			r.stmt(s.Else, sc, stack)
		}
	case *ast.WhileStmt:
		r.expr(s.Cond, stack)
		r.stmt(s.Body, sc, stack)
	case *ast.BlockStmt:
		sub := sc.child()
		inner := append(stack, sub)
		for _, st := range s.List {
			r.stmt(st, sub, inner)
		}
	case *ast.BadStmt:
	}
}

func (r *resolver) expr(e ast.Expr, stack []*Scope) {
	switch e := e.(type) {
	case *ast.NameExpr:
		id, ok := Lookup(stack, e.Name)
		if !ok {
			r.rep.Errorf(errors.ResolveError, e.Pos(), "undeclared name %s", e.Name)
			return
		}
		e.Decl = id
	case *ast.CallExpr:
		r.expr(e.Fn, stack)
		for _, a := range e.Args {
			r.expr(a, stack)
		}
	case *ast.BinExpr:
		r.expr(e.L, stack)
		r.expr(e.R, stack)
	case *ast.NotExpr:
		r.expr(e.X, stack)
	case *ast.AddrExpr:
		r.expr(e.X, stack)
	case *ast.DerefExpr:
		r.expr(e.X, stack)
	case *ast.IndexExpr:
		r.expr(e.X, stack)
		for _, a := range e.Args {
			r.expr(a, stack)
		}
	case *ast.FieldExpr:
		// the field name resolves against the struct type, not the scopes
		r.expr(e.X, stack)
	case *ast.InitList:
		for _, el := range e.Elems {
			r.expr(el, stack)
		}
	case *ast.ConvertExpr:
		r.expr(e.X, stack)
		r.resolveType(e.To, stack, e.Pos())
	case *ast.IntLit, *ast.BoolLit, *ast.UndefExpr, *ast.BadExpr:
	}
}

// resolveType attaches struct declarations to named type references and
// resolves names inside array size expressions. Interned types may be
// shared between declarations; re-resolving them is idempotent.
func (r *resolver) resolveType(t *ast.Type, stack []*Scope, pos int) {
	switch t.Kind {
	case ast.TypeNamed:
		id, ok := Lookup(stack, t.Name)
		if !ok {
			r.rep.Errorf(errors.ResolveError, pos, "undeclared name %s", t.Name)
			return
		}
		if r.mod.Decl(id).Kind != ast.DeclStruct {
			r.rep.Errorf(errors.ResolveError, pos, "%s does not name a type", t.Name)
			return
		}
		t.Ref = id
	case ast.TypePtr:
		r.resolveType(t.Base, stack, pos)
	case ast.TypeArray:
		for _, sz := range t.Sizes {
			r.expr(sz, stack)
		}
		r.resolveType(t.Base, stack, pos)
	case ast.TypeFunc:
		for _, p := range t.Params {
			r.resolveType(p.Type, stack, pos)
		}
		r.resolveType(t.Base, stack, pos)
	case ast.TypeStruct:
		for _, f := range t.Fields {
			r.resolveType(f.Type, stack, pos)
		}
	}
}
