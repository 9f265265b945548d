// Package typecheck walks the resolved AST, assigns every expression a
// type, folds constants, and rewrites the tree in place: implicit
// conversions become explicit ConvertExpr nodes, and foldable subtrees are
// replaced by literals.
package typecheck

import (
	"fmt"
	"math"

	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
	"quill/internal/types"
)

type category uint8

const (
	rvalue category = iota
	lvalue
)

// limits holds the largest unsigned value each integer kind can represent.
var limits = map[ast.TypeKind]uint64{
	ast.TypeInt8:  math.MaxUint8,
	ast.TypeInt32: math.MaxUint32,
	ast.TypeInt64: math.MaxUint64,
}

type Checker struct {
	mod *ast.Module
	reg *types.Registry
	rep *errors.Reporter
	e2t map[ast.Expr]*ast.Type
	pos int // position of the declaration being checked, for layout errors
}

// Check type-checks the whole module and returns the expression-to-type
// side map. The AST is rewritten in place; parameter declarations get their
// id set to the parameter index.
func Check(mod *ast.Module, reg *types.Registry, rep *errors.Reporter) map[ast.Expr]*ast.Type {
	c := &Checker{
		mod: mod,
		reg: reg,
		rep: rep,
		e2t: make(map[ast.Expr]*ast.Type),
	}
	for _, id := range mod.Top {
		c.checkDecl(id, true)
	}
	return c.e2t
}

func (c *Checker) errorf(pos int, format string, args ...interface{}) {
	c.rep.Errorf(errors.TypeError, pos, format, args...)
}

// complete computes size and alignment on demand, folding array sizes.
func (c *Checker) complete(t *ast.Type) {
	c.reg.Complete(t, c.foldSize, c.rep, c.pos)
}

// foldSize checks a size expression as a constant int64 and hands the
// folded value to the registry.
func (c *Checker) foldSize(pe *ast.Expr) (uint64, bool) {
	before := c.rep.Count
	t := c.checkExpr(pe, c.reg.Int64(), rvalue, true)
	if c.rep.Count > before || t.Kind == ast.TypeNone {
		return 0, false
	}
	lit, ok := (*pe).(*ast.IntLit)
	if !ok {
		c.errorf((*pe).Pos(), "array size must be a constant expression")
		return 0, false
	}
	return lit.Val, true
}

func (c *Checker) checkDecl(id ast.DeclID, topLevel bool) {
	d := c.mod.Decl(id)
	c.pos = d.Off
	switch d.Kind {
	case ast.DeclVar:
		if d.Type == nil {
			// no annotation: the initializer decides
			d.Type = c.checkExpr(&d.Init, c.reg.None(), rvalue, topLevel)
			c.complete(d.Type)
			return
		}
		d.Type = c.resolveType(d.Type)
		c.complete(d.Type)
		// top-level variables become data symbols, so their initializer
		// must fold to a compile-time constant
		c.checkExpr(&d.Init, d.Type, rvalue, topLevel)

	case ast.DeclFunc:
		d.Type = c.resolveType(d.Type)
		c.complete(d.Type)
		for i, pid := range d.Params {
			pd := c.mod.Decl(pid)
			pd.Type = d.Type.Params[i].Type
			pd.ID = int32(i)
		}
		ret := d.Type.Base
		for _, s := range d.Body.List {
			c.checkStmt(s, ret)
		}

	case ast.DeclStruct:
		d.Type = c.resolveType(d.Type)
		c.complete(d.Type)
	}
}

func (c *Checker) checkStmt(s ast.Stmt, ret *ast.Type) {
	switch s := s.(type) {
	case *ast.ExprStmt:
		c.checkExpr(&s.X, c.reg.None(), rvalue, false)
	case *ast.AssignStmt:
		t := c.checkExpr(&s.L, c.reg.None(), lvalue, false)
		c.checkExpr(&s.R, t, rvalue, false)
	case *ast.DeclStmt:
		c.checkDecl(s.D, false)
	case *ast.ReturnStmt:
		c.checkExpr(&s.X, ret, rvalue, false)
	case *ast.IfStmt:
		c.checkExpr(&s.Cond, c.reg.Bool(), rvalue, false)
		c.checkStmt(s.Then, ret)
		if s.Else != nil {
			c.checkStmt(s.Else, ret)
		}
	case *ast.WhileStmt:
		c.checkExpr(&s.Cond, c.reg.Bool(), rvalue, false)
		c.checkStmt(s.Body, ret)
	case *ast.BlockStmt:
		for _, st := range s.List {
			c.checkStmt(st, ret)
		}
	case *ast.BadStmt:
	}
}

// checkExpr types the expression in *pe against the expected type. cat
// says whether the context needs an lvalue; fold requests compile-time
// evaluation, replacing foldable nodes with literals. On error the type is
// the None sentinel, so later checks do not cascade.
func (c *Checker) checkExpr(pe *ast.Expr, expect *ast.Type, cat category, fold bool) *ast.Type {
	t := c.reg.None()
	pos := (*pe).Pos()

	switch e := (*pe).(type) {
	case *ast.IntLit:
		if cat == lvalue {
			c.errorf(pos, "cannot assign to an integer")
			break
		}
		if expect.Kind.IsInteger() && e.Val <= limits[expect.Kind] {
			t = expect
			break
		}
		switch {
		case e.Val <= limits[ast.TypeInt8]:
			t = c.reg.Int8()
		case e.Val <= limits[ast.TypeInt32]:
			t = c.reg.Int32()
		default:
			t = c.reg.Int64()
		}

	case *ast.BoolLit:
		if cat == lvalue {
			c.errorf(pos, "cannot assign to a boolean")
			break
		}
		t = c.reg.Bool()

	case *ast.NameExpr:
		if fold {
			c.errorf(pos, "cannot evaluate a variable in a compilation context")
			break
		}
		if d := c.mod.Decl(e.Decl); d != nil && d.Type != nil {
			t = d.Type
		}

	case *ast.BinExpr:
		t = c.checkBinary(e, pe, cat, fold)

	case *ast.NotExpr:
		if cat == lvalue {
			c.errorf(pos, "cannot assign to the result of a boolean complement")
			break
		}
		op := c.checkExpr(&e.X, c.reg.Bool(), rvalue, fold)
		if !c.sameType(op, c.reg.Bool()) {
			c.errorf(pos, "cannot find the boolean complement of a non-boolean")
			break
		}
		t = c.reg.Bool()
		if fold {
			if lit, ok := e.X.(*ast.BoolLit); ok {
				*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: !lit.Val}
			}
		}

	case *ast.CallExpr:
		if fold {
			c.errorf(pos, "cannot evaluate a function call in a constant expression")
			break
		}
		if cat == lvalue {
			c.errorf(pos, "cannot assign to the result of a function call")
			break
		}
		op := c.checkExpr(&e.Fn, c.reg.None(), rvalue, false)
		if op.Kind != ast.TypeFunc {
			if op.Kind != ast.TypeNone {
				c.errorf(pos, "attempt to call a non-callable")
			}
			break
		}
		if len(e.Args) != len(op.Params) {
			c.errorf(pos, "function call with the wrong number of arguments provided")
			break
		}
		for i := range e.Args {
			c.checkExpr(&e.Args[i], op.Params[i].Type, rvalue, false)
		}
		t = op.Base

	case *ast.ConvertExpr:
		if cat == lvalue {
			c.errorf(pos, "cannot assign to the result of a cast expression")
			break
		}
		op := c.checkExpr(&e.X, c.reg.None(), rvalue, fold)
		e.To = c.resolveType(e.To)
		c.complete(e.To)
		if !c.compatWeak(op, e.To) {
			c.errorf(pos, "attempt to cast between fully incompatible types")
			break
		}
		t = e.To
		if fold && t.Kind.IsInteger() {
			if lit, ok := e.X.(*ast.IntLit); ok {
				val := lit.Val
				if op.Size > t.Size {
					val &= limits[t.Kind]
				}
				*pe = &ast.IntLit{Base: ast.Base{Off: pos, T: t}, Val: val}
			}
		}

	case *ast.AddrExpr:
		if cat == lvalue {
			c.errorf(pos, "cannot take the result of an address-of operation as an lvalue")
			break
		}
		if fold {
			c.errorf(pos, "cannot evaluate an address in a constant expression")
			break
		}
		if expect.Kind == ast.TypePtr {
			c.checkExpr(&e.X, expect.Base, lvalue, false)
			t = expect
		} else {
			op := c.checkExpr(&e.X, c.reg.None(), lvalue, false)
			t = c.reg.Ptr(op)
		}

	case *ast.DerefExpr:
		if fold {
			c.errorf(pos, "cannot evaluate a dereference in a constant expression")
			break
		}
		op := c.checkExpr(&e.X, c.reg.None(), rvalue, false)
		if op.Kind != ast.TypePtr {
			if op.Kind != ast.TypeNone {
				c.errorf(pos, "cannot dereference a non-pointer")
			}
			break
		}
		t = op.Base

	case *ast.IndexExpr:
		if fold {
			c.errorf(pos, "cannot evaluate an indexing operation in a constant expression")
			break
		}
		base := c.checkExpr(&e.X, c.reg.None(), rvalue, false)
		if base.Kind != ast.TypeArray {
			if base.Kind != ast.TypeNone {
				c.errorf(pos, "attempt to index something that does not support indexing")
			}
			break
		}
		if len(e.Args) != len(base.Sizes) {
			c.errorf(pos, "mismatch between the number of indices and the dimension of the array")
			break
		}
		for i := range e.Args {
			c.checkExpr(&e.Args[i], c.reg.Int64(), rvalue, false)
		}
		t = base.Base

	case *ast.FieldExpr:
		base := c.checkExpr(&e.X, c.reg.None(), cat, false)
		if base.Kind != ast.TypeStruct {
			if base.Kind != ast.TypeNone {
				c.errorf(pos, "attempt to access a field of a non-struct")
			}
			break
		}
		f, ok := base.Fields[e.Name]
		if !ok {
			c.errorf(pos, "no field named %s", e.Name)
			break
		}
		t = f.Type

	case *ast.InitList:
		t = c.checkInitList(e, expect, cat)

	case *ast.UndefExpr:
		if cat == lvalue {
			c.errorf(pos, "cannot assign to an undef-expression")
			break
		}
		if fold {
			c.errorf(pos, "cannot evaluate an undef-expression")
			break
		}
		t = expect

	case *ast.BadExpr:
	}

	if !c.compatStrong(t, expect, *pe) {
		c.errorf(pos, "the type of this expression mismatches what is expected here")
	}
	c.e2t[*pe] = t
	(*pe).SetType(t)
	c.complete(t)
	if !fold && expect.Kind != ast.TypeNone && expect.Kind != t.Kind {
		cv := &ast.ConvertExpr{Base: ast.Base{Off: pos, T: expect}, X: *pe, To: expect}
		*pe = cv
		c.e2t[cv] = expect
		t = expect
	}
	return t
}

func (c *Checker) checkBinary(e *ast.BinExpr, pe *ast.Expr, cat category, fold bool) *ast.Type {
	pos := e.Pos()
	none := c.reg.None()
	if cat == lvalue {
		c.errorf(pos, "cannot assign to the result of a binary expression")
		return none
	}
	L := c.checkExpr(&e.L, none, rvalue, fold)
	R := c.checkExpr(&e.R, none, rvalue, fold)

	bigger, smaller := L, R
	smallerE := e.R
	switch {
	case L.Size > R.Size:
		if !fold {
			cv := &ast.ConvertExpr{Base: ast.Base{Off: e.R.Pos(), T: L}, X: e.R, To: L}
			e.R = cv
			c.e2t[cv] = L
			smallerE = cv
		}
	case R.Size > L.Size:
		bigger, smaller = R, L
		if !fold {
			cv := &ast.ConvertExpr{Base: ast.Base{Off: e.L.Pos(), T: R}, X: e.L, To: R}
			e.L = cv
			c.e2t[cv] = R
			smallerE = cv
		} else {
			smallerE = e.L
		}
	}
	if !c.compatStrong(smaller, bigger, smallerE) {
		c.errorf(pos, "the operands to this binary operation are incompatible")
		return none
	}
	isCmp := e.IsCmp()
	if !isCmp && !c.compatStrong(bigger, c.reg.Int64(), smallerE) {
		c.errorf(pos, "cannot add or subtract non-integers")
		return none
	}
	t := bigger
	if isCmp {
		t = c.reg.Bool()
	}
	if fold {
		c.foldBinary(e, pe, t)
	}
	return t
}

// foldBinary replaces a binary node whose operands folded to literals with
// the computed literal.
func (c *Checker) foldBinary(e *ast.BinExpr, pe *ast.Expr, t *ast.Type) {
	li, lok := e.L.(*ast.IntLit)
	ri, rok := e.R.(*ast.IntLit)
	if !lok || !rok {
		return
	}
	pos := e.Pos()
	switch e.Op {
	case lexer.TokenPlus:
		*pe = &ast.IntLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val + ri.Val}
	case lexer.TokenMinus:
		*pe = &ast.IntLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val - ri.Val}
	case lexer.TokenDoubleEqual:
		*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val == ri.Val}
	case lexer.TokenNotEqual:
		*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val != ri.Val}
	case lexer.TokenLT:
		*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val < ri.Val}
	case lexer.TokenLE:
		*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val <= ri.Val}
	case lexer.TokenGT:
		*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val > ri.Val}
	case lexer.TokenGE:
		*pe = &ast.BoolLit{Base: ast.Base{Off: pos, T: t}, Val: li.Val >= ri.Val}
	default:
		panic(fmt.Sprintf("fold: unexpected binary operator %q", e.Op))
	}
}

// checkInitList traverses a braced initializer with an explicit stack
// mirroring the array rank, checking every leaf against the element type
// and the count at each level against that level's dimension.
func (c *Checker) checkInitList(e *ast.InitList, expect *ast.Type, cat category) *ast.Type {
	none := c.reg.None()
	pos := e.Pos()
	if cat == lvalue {
		c.errorf(pos, "cannot assign to an initializer list")
		return none
	}
	if expect.Kind != ast.TypeArray {
		c.errorf(pos, "can only initialize an array with an initializer list")
		return none
	}
	c.complete(expect)
	depth := len(expect.Sizes)
	if lit, ok := expect.Sizes[0].(*ast.IntLit); !ok || uint64(len(e.Elems)) != lit.Val {
		c.errorf(pos, "initializer does not match the shape of the array")
		return none
	}

	type frame struct {
		list *ast.InitList
		at   int
	}
	stack := []frame{{list: e}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.at == len(top.list.Elems) {
			stack = stack[:len(stack)-1]
			continue
		}
		reach := len(stack)
		if reach == depth {
			c.checkExpr(&top.list.Elems[top.at], expect.Base, rvalue, true)
			top.at++
			continue
		}
		sub, ok := top.list.Elems[top.at].(*ast.InitList)
		lit, sok := expect.Sizes[reach].(*ast.IntLit)
		if !ok || !sok || uint64(len(sub.Elems)) != lit.Val {
			c.errorf(pos, "initializer does not match the shape of the array")
			return none
		}
		top.at++
		stack = append(stack, frame{list: sub})
	}
	return expect
}

// resolveType canonicalizes a type built by the parser: named references
// become the struct declaration's type, and composites are rebuilt through
// the registry so interning still holds.
func (c *Checker) resolveType(t *ast.Type) *ast.Type {
	switch t.Kind {
	case ast.TypeNamed:
		if t.Ref < 0 {
			return c.reg.None()
		}
		d := c.mod.Decl(t.Ref)
		if d.Type == nil || d.Type.Kind != ast.TypeStruct {
			return c.reg.None()
		}
		return d.Type
	case ast.TypePtr:
		if b := c.resolveType(t.Base); b != t.Base {
			return c.reg.Ptr(b)
		}
		return t
	case ast.TypeArray:
		if b := c.resolveType(t.Base); b != t.Base {
			return c.reg.Array(b, t.Sizes)
		}
		return t
	case ast.TypeFunc:
		changed := false
		params := make([]ast.Param, len(t.Params))
		for i, p := range t.Params {
			params[i] = ast.Param{Name: p.Name, Type: c.resolveType(p.Type)}
			changed = changed || params[i].Type != p.Type
		}
		ret := c.resolveType(t.Base)
		if changed || ret != t.Base {
			return c.reg.Func(params, ret)
		}
		return t
	case ast.TypeStruct:
		// struct types are unique per declaration, so rewrite in place
		for name, f := range t.Fields {
			f.Type = c.resolveType(f.Type)
			t.Fields[name] = f
		}
		return t
	default:
		return t
	}
}

// sameType is structural equality; the None sentinel matches everything so
// one error does not multiply.
func (c *Checker) sameType(L, R *ast.Type) bool {
	if L == R {
		return true
	}
	if L.Kind == ast.TypeNone || R.Kind == ast.TypeNone {
		return true
	}
	if L.Kind != R.Kind {
		return false
	}
	switch L.Kind {
	case ast.TypeBool, ast.TypeInt8, ast.TypeInt32, ast.TypeInt64:
		return true
	case ast.TypePtr:
		return c.sameType(L.Base, R.Base)
	case ast.TypeArray:
		if !c.sameType(L.Base, R.Base) || len(L.Sizes) != len(R.Sizes) {
			return false
		}
		for i := range L.Sizes {
			ls, lok := L.Sizes[i].(*ast.IntLit)
			rs, rok := R.Sizes[i].(*ast.IntLit)
			if !lok || !rok || ls.Val != rs.Val {
				return false
			}
		}
		return true
	case ast.TypeFunc:
		if !c.sameType(L.Base, R.Base) || len(L.Params) != len(R.Params) {
			return false
		}
		for i := range L.Params {
			if !c.sameType(L.Params[i].Type, R.Params[i].Type) {
				return false
			}
		}
		return true
	case ast.TypeStruct:
		// one type per declaration: identity was handled above
		return false
	}
	return false
}

// compatStrong: same type, integer widening, or an integer literal whose
// value fits the target width.
func (c *Checker) compatStrong(test, ref *ast.Type, extra ast.Expr) bool {
	if test.Kind == ast.TypeNone || ref.Kind == ast.TypeNone {
		return true
	}
	if ref.Kind.IsInteger() {
		if test.Kind.IsInteger() && test.Kind <= ref.Kind {
			return true
		}
		if lit, ok := extra.(*ast.IntLit); ok && lit.Val <= limits[ref.Kind] {
			return true
		}
		return false
	}
	return c.sameType(test, ref)
}

// compatWeak: any primitive-to-primitive cast is allowed; every other pair
// requires identity.
func (c *Checker) compatWeak(test, ref *ast.Type) bool {
	if test.Kind == ast.TypeNone || ref.Kind == ast.TypeNone {
		return true
	}
	if ref.Kind.IsPrimitive() {
		return test.Kind.IsPrimitive()
	}
	return c.sameType(test, ref)
}
