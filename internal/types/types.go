// Package types owns the type registry: construction with interning, and
// on-demand completion (size/alignment) of constructed types.
package types

import (
	"fmt"
	"math"
	"strings"

	"modernc.org/mathutil"

	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
)

// FoldFunc evaluates an array-size expression to a constant, rewriting the
// slot in place. It reports its own errors and returns ok=false on failure.
type FoldFunc func(e *ast.Expr) (uint64, bool)

// Registry interns types so that structurally equal primitive, pointer,
// function and array types are pointer-equal. Struct types are never
// interned: each syntactic declaration yields its own type.
type Registry struct {
	prims  map[ast.TypeKind]*ast.Type
	ptrs   map[*ast.Type]*ast.Type
	funcs  map[string]*ast.Type
	arrays map[string]*ast.Type
}

func NewRegistry() *Registry {
	r := &Registry{
		prims:  make(map[ast.TypeKind]*ast.Type),
		ptrs:   make(map[*ast.Type]*ast.Type),
		funcs:  make(map[string]*ast.Type),
		arrays: make(map[string]*ast.Type),
	}
	r.prims[ast.TypeNone] = &ast.Type{Kind: ast.TypeNone, Size: 0, Align: 1}
	r.prims[ast.TypeBool] = &ast.Type{Kind: ast.TypeBool, Size: 1, Align: 1}
	r.prims[ast.TypeInt8] = &ast.Type{Kind: ast.TypeInt8, Size: 1, Align: 1}
	r.prims[ast.TypeInt32] = &ast.Type{Kind: ast.TypeInt32, Size: 4, Align: 4}
	r.prims[ast.TypeInt64] = &ast.Type{Kind: ast.TypeInt64, Size: 8, Align: 8}
	return r
}

func (r *Registry) Prim(k ast.TypeKind) *ast.Type { return r.prims[k] }
func (r *Registry) None() *ast.Type               { return r.prims[ast.TypeNone] }
func (r *Registry) Bool() *ast.Type               { return r.prims[ast.TypeBool] }
func (r *Registry) Int8() *ast.Type               { return r.prims[ast.TypeInt8] }
func (r *Registry) Int32() *ast.Type              { return r.prims[ast.TypeInt32] }
func (r *Registry) Int64() *ast.Type              { return r.prims[ast.TypeInt64] }

func (r *Registry) Ptr(base *ast.Type) *ast.Type {
	if t, ok := r.ptrs[base]; ok {
		return t
	}
	t := &ast.Type{Kind: ast.TypePtr, Base: base, Size: -1, Align: 0}
	r.ptrs[base] = t
	return t
}

// Array builds a row-major multi-dimensional array type. Interning is only
// possible once every size is an integer literal; otherwise each call
// yields a fresh type.
func (r *Registry) Array(base *ast.Type, sizes []ast.Expr) *ast.Type {
	key, keyed := arrayKey(base, sizes)
	if keyed {
		if t, ok := r.arrays[key]; ok {
			return t
		}
	}
	t := &ast.Type{Kind: ast.TypeArray, Base: base, Sizes: sizes, Size: -1}
	if keyed {
		r.arrays[key] = t
	}
	return t
}

func arrayKey(base *ast.Type, sizes []ast.Expr) (string, bool) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%p", base)
	for _, sz := range sizes {
		lit, ok := sz.(*ast.IntLit)
		if !ok {
			return "", false
		}
		fmt.Fprintf(&sb, ";%d", lit.Val)
	}
	return sb.String(), true
}

// Func interns on the parameter and return types; parameter names do not
// take part in type identity.
func (r *Registry) Func(params []ast.Param, ret *ast.Type) *ast.Type {
	var sb strings.Builder
	for _, p := range params {
		fmt.Fprintf(&sb, "%p,", p.Type)
	}
	fmt.Fprintf(&sb, "->%p", ret)
	key := sb.String()
	if t, ok := r.funcs[key]; ok {
		return t
	}
	t := &ast.Type{Kind: ast.TypeFunc, Base: ret, Params: params, Size: -1}
	r.funcs[key] = t
	return t
}

func (r *Registry) Struct(fields map[*lexer.Sym]ast.Field) *ast.Type {
	return &ast.Type{Kind: ast.TypeStruct, Fields: fields, Size: -1, ID: -1}
}

func (r *Registry) Named(name *lexer.Sym) *ast.Type {
	return &ast.Type{Kind: ast.TypeNamed, Name: name, Ref: -1, Size: -1}
}

// completing marks a struct whose layout is in progress, to catch
// value-recursive structs instead of looping.
const completing = -2

// Complete computes Size and Align, recursing over constituents. Array size
// expressions are folded through fold; a size that does not fold leaves the
// array with size 0 (the fold callback reports the error). pos anchors
// diagnostics that have no better position of their own.
func (r *Registry) Complete(t *ast.Type, fold FoldFunc, rep *errors.Reporter, pos int) {
	if t.Size != -1 {
		return
	}
	switch t.Kind {
	case ast.TypePtr:
		// Base layout is irrelevant to the pointer itself, and completing
		// it here would loop on self-referential structs.
		t.Size = 8
		t.Align = 8
	case ast.TypeArray:
		r.Complete(t.Base, fold, rep, pos)
		t.Align = t.Base.Align
		size := t.Base.Size
		for i := range t.Sizes {
			p := t.Sizes[i].Pos()
			v, ok := fold(&t.Sizes[i])
			if !ok {
				t.Size = 0
				return
			}
			if v != 0 && size > math.MaxInt64/int64(v) {
				rep.Errorf(errors.TypeError, p, "array size overflows")
				t.Size = 0
				return
			}
			size *= int64(v)
		}
		t.Size = size
	case ast.TypeFunc:
		for _, p := range t.Params {
			r.Complete(p.Type, fold, rep, pos)
		}
		r.Complete(t.Base, fold, rep, pos)
		t.Size = 0
		t.Align = 1
	case ast.TypeStruct:
		t.Size = completing
		names := make([]*lexer.Sym, len(t.Fields))
		for name, f := range t.Fields {
			names[f.Index] = name
		}
		var offset int64
		align := 1
		for _, name := range names {
			f := t.Fields[name]
			if f.Type.Size == completing {
				rep.Errorf(errors.TypeError, pos, "invalid recursive type")
				continue
			}
			r.Complete(f.Type, fold, rep, pos)
			fsize, falign := f.Type.Size, f.Type.Align
			if fsize < 0 {
				fsize = 0
			}
			if falign < 1 {
				falign = 1
			}
			offset = roundUp(offset, int64(falign))
			offset += fsize
			align = mathutil.Max(align, falign)
		}
		t.Align = align
		t.Size = roundUp(offset, int64(align))
	default:
		// Primitives are completed at construction; anything else here is
		// a compiler bug.
		panic(fmt.Sprintf("complete: unexpected type kind %d", t.Kind))
	}
}

func roundUp(n, align int64) int64 {
	return (n + align - 1) / align * align
}
