// internal/compiler/compiler.go
//
// Lowering from the type-checked AST to three-address code. Each function
// becomes a control-flow graph of basic blocks; initializer lists become
// blob symbols; structs become aggregate descriptors. Call sites whose
// callee has not been assigned a symbol index yet register a relocation
// that is patched once the whole module is built.
package compiler

import (
	"encoding/binary"
	"fmt"
	"math"

	"quill/internal/ast"
	"quill/internal/ir"
	"quill/internal/lexer"
	"quill/internal/types"
)

// reloc defers writing a callee's symbol index into the extension slot at
// byte offset offsetIn of symbol symIn's instruction stream.
type reloc struct {
	symIn    int32
	offsetIn int32
	ref      ast.DeclID
}

type Compiler struct {
	mod    *ast.Module
	reg    *types.Registry
	syms   []ir.Symbol
	relocs []reloc
	cur    int32 // symbol index of the function being built
}

// Compile lowers a fully checked module. It must only run when the error
// counter is zero: lowering is total on well-typed input, and any
// unreachable case in here is a compiler bug.
func Compile(mod *ast.Module, reg *types.Registry) *ir.Module {
	c := &Compiler{mod: mod, reg: reg}
	for _, id := range mod.Top {
		d := mod.Decl(id)
		d.ID = int32(len(c.syms))
		c.cur = d.ID
		switch d.Kind {
		case ast.DeclStruct:
			fields := make([]*ast.Type, len(d.Type.Fields))
			for _, f := range d.Type.Fields {
				fields[f.Index] = f.Type
			}
			d.Type.ID = d.ID
			c.syms = append(c.syms, ir.Symbol{Kind: ir.SymAggregate, Name: d.Name.Str, Fields: fields})

		case ast.DeclVar:
			// top-level variables are constant data
			data := make([]byte, d.Type.Size)
			c.serialize(data, d.Init)
			c.syms = append(c.syms, ir.Symbol{
				Kind:  ir.SymBlob,
				Name:  d.Name.Str,
				Data:  data,
				Align: int64(d.Type.Align),
			})

		case ast.DeclFunc:
			c.syms = append(c.syms, ir.Symbol{Kind: ir.SymFunc, Name: d.Name.Str})
			// building the body may append blob symbols, so index again
			// afterwards rather than holding on to the slot
			f := c.buildFunc(d)
			c.syms[d.ID].Func = f
		}
	}
	m := &ir.Module{Syms: c.syms}
	c.patchRelocs(m)
	return m
}

func (c *Compiler) patchRelocs(m *ir.Module) {
	for _, r := range c.relocs {
		id := c.mod.Decl(r.ref).ID
		if id == -1 {
			panic("relocation against an unassigned symbol")
		}
		m.Syms[r.symIn].Func.Ins[r.offsetIn/4] = ir.Ext(uint32(id))
	}
}

// fnBuilder accumulates one function body.
type fnBuilder struct {
	c *Compiler
	f *ir.Func
}

func (c *Compiler) buildFunc(d *ast.Decl) *ir.Func {
	f := &ir.Func{}
	f.Nodes = append(f.Nodes, ir.Node{})
	b := &fnBuilder{c: c, f: f}
	for i, pid := range d.Params {
		pd := c.mod.Decl(pid)
		b.newLocal(pd.Type)
		b.emit(ir.Instr{Kind: ir.Arg, To: ir.Ref(i), L: ir.Ref(i)})
	}
	for _, s := range d.Body.List {
		b.stmt(s)
	}
	f.Nodes[len(f.Nodes)-1].End = int32(len(f.Ins))
	return f
}

func (b *fnBuilder) newLocal(t *ast.Type) ir.Ref {
	n := len(b.f.Locals)
	if n >= int(ir.RefNone) {
		panic("function needs too many values")
	}
	b.f.Locals = append(b.f.Locals, t)
	return ir.Ref(n)
}

func (b *fnBuilder) emit(i ir.Instr) int32 {
	b.f.Ins = append(b.f.Ins, i)
	return int32(len(b.f.Ins) - 1)
}

func (b *fnBuilder) emitExt(v uint32) int32 {
	return b.emit(ir.Ext(v))
}

// newNode closes the current block at the instruction cursor and opens the
// next one. The new block's label is its index in Nodes.
func (b *fnBuilder) newNode() {
	at := int32(len(b.f.Ins))
	b.f.Nodes[len(b.f.Nodes)-1].End = at
	b.f.Nodes = append(b.f.Nodes, ir.Node{Begin: at})
}

// refNone marks "no store destination" for expr.
const refNone int32 = -1

// expr lowers one expression and returns the value ref holding the result.
// For global names the returned id is the symbol index, which is why the
// result is wider than ir.Ref. rv is the store source in assignment
// contexts: `a[1] = b` lowers b first and passes its ref as rv while
// lowering the left side.
func (b *fnBuilder) expr(e ast.Expr, rv int32) int32 {
	switch e := e.(type) {
	case *ast.IntLit:
		if e.Val > math.MaxUint32 {
			panic("integer immediate wider than 32 bits")
		}
		n := b.newLocal(e.Type())
		b.emit(ir.Instr{Kind: ir.Imm, To: n})
		b.emitExt(uint32(e.Val))
		return int32(n)

	case *ast.BoolLit:
		n := b.newLocal(e.Type())
		var v ir.Ref
		if e.Val {
			v = 1
		}
		b.emit(ir.Instr{Kind: ir.Bool, To: n, L: v})
		return int32(n)

	case *ast.NameExpr:
		d := b.c.mod.Decl(e.Decl)
		if rv != refNone {
			b.emit(ir.Instr{Kind: ir.Copy, To: ir.Ref(d.ID), L: ir.Ref(rv)})
		}
		return d.ID

	case *ast.BinExpr:
		return b.binary(e)

	case *ast.NotExpr:
		inner := b.expr(e.X, refNone)
		n := b.newLocal(e.Type())
		b.emit(ir.Instr{Kind: ir.BoolNeg, To: n, L: ir.Ref(inner)})
		return int32(n)

	case *ast.CallExpr:
		return b.call(e)

	case *ast.AddrExpr:
		return b.address(e)

	case *ast.DerefExpr:
		addr := b.expr(e.X, refNone)
		if rv != refNone {
			b.emit(ir.Instr{Kind: ir.Store, To: ir.Ref(rv), L: ir.Ref(addr)})
			return rv
		}
		size := e.Type().Size
		op := ir.MemCopy
		if size == 1 || size == 2 || size == 4 || size == 8 {
			op = ir.Load
		}
		n := b.newLocal(e.Type())
		b.emit(ir.Instr{Kind: op, To: n, L: ir.Ref(addr)})
		return int32(n)

	case *ast.IndexExpr, *ast.FieldExpr:
		// the address computation carries all the logic; go through a
		// synthesized deref so loads and stores share it
		addr := &ast.AddrExpr{Base: ast.Base{T: b.c.reg.Int64()}, X: e}
		deref := &ast.DerefExpr{Base: ast.Base{T: e.Type()}, X: addr}
		return b.expr(deref, rv)

	case *ast.InitList:
		t := e.Type()
		data := make([]byte, t.Size)
		b.c.serialize(data, e)
		ref := int32(len(b.c.syms))
		b.c.syms = append(b.c.syms, ir.Symbol{
			Kind:  ir.SymBlob,
			Name:  fmt.Sprintf(".G%x", ref),
			Data:  data,
			Align: int64(t.Align),
		})
		p := b.newLocal(b.c.reg.Int64())
		b.emit(ir.Instr{Kind: ir.GlobalRef, To: p})
		b.emitExt(uint32(ref))
		n := b.newLocal(t)
		b.emit(ir.Instr{Kind: ir.MemCopy, To: n, L: p})
		return int32(n)

	case *ast.ConvertExpr:
		from := b.expr(e.X, refNone)
		n := b.newLocal(e.Type())
		fromT := b.f.Locals[from]
		b.emit(ir.Instr{
			Kind: ir.Convert,
			To:   n,
			L:    ir.Ref(from),
			R:    ir.Ref(packConvert(e.Type().Kind, fromT.Kind)),
		})
		return int32(n)

	case *ast.UndefExpr:
		// a fresh value nothing writes to
		return int32(b.newLocal(e.Type()))
	}
	panic(fmt.Sprintf("lower: unexpected expression %T", e))
}

func packConvert(to, from ast.TypeKind) uint8 {
	return uint8(to)<<4 | uint8(from)
}

func (b *fnBuilder) binary(e *ast.BinExpr) int32 {
	L := b.expr(e.L, refNone)
	R := b.expr(e.R, refNone)
	n := b.newLocal(e.Type())
	if e.IsCmp() {
		b.emit(ir.Instr{Kind: ir.Set, To: n, L: ir.Ref(L), R: ir.Ref(R)})
		b.emit(ir.Instr{To: ir.Ref(condOf(e))})
		return int32(n)
	}
	op := ir.Add
	if e.Op == lexer.TokenMinus {
		op = ir.Sub
	}
	b.emit(ir.Instr{Kind: op, To: n, L: ir.Ref(L), R: ir.Ref(R)})
	return int32(n)
}

func condOf(e *ast.BinExpr) ir.Cond {
	switch e.Op {
	case lexer.TokenDoubleEqual:
		return ir.CondEq
	case lexer.TokenNotEqual:
		return ir.CondNe
	case lexer.TokenLT:
		return ir.CondLt
	case lexer.TokenLE:
		return ir.CondLe
	case lexer.TokenGT:
		return ir.CondGt
	case lexer.TokenGE:
		return ir.CondGe
	}
	panic(fmt.Sprintf("lower: unexpected comparison operator %q", e.Op))
}

func (b *fnBuilder) call(e *ast.CallExpr) int32 {
	// the operand is a function designator: nothing to compute
	fn := e.Fn.(*ast.NameExpr)
	callee := b.c.mod.Decl(fn.Decl)
	argc := len(e.Args)
	if argc >= int(ir.RefNone) {
		panic("call with too many arguments")
	}
	refs := make([]ir.Ref, argc)
	for i, a := range e.Args {
		refs[i] = ir.Ref(b.expr(a, refNone))
	}
	n := b.newLocal(e.Type())
	b.emit(ir.Instr{Kind: ir.Call, To: n, R: ir.Ref(argc)})
	extIdx := b.emitExt(uint32(0xffffffff))
	if callee.ID == -1 {
		b.c.relocs = append(b.c.relocs, reloc{symIn: b.c.cur, offsetIn: extIdx * 4, ref: fn.Decl})
	} else {
		b.f.Ins[extIdx] = ir.Ext(uint32(callee.ID))
	}
	// one byte per argument ref, filled from the low byte of each word
	for i := 0; i < argc; i += 4 {
		var w uint32
		for j := 0; j < 4 && i+j < argc; j++ {
			w |= uint32(refs[i+j]) << (8 * j)
		}
		b.emitExt(w)
	}
	return int32(n)
}

// address lowers &sub for each lvalue shape.
func (b *fnBuilder) address(e *ast.AddrExpr) int32 {
	switch sub := e.X.(type) {
	case *ast.NameExpr:
		name := b.expr(sub, refNone)
		n := b.newLocal(e.Type())
		b.emit(ir.Instr{Kind: ir.Address, To: n, L: ir.Ref(name)})
		return int32(n)

	case *ast.DerefExpr:
		// address-of-deref is the identity
		return b.expr(sub.X, refNone)

	case *ast.IndexExpr:
		baseT := sub.X.Type()
		var base int32
		if d, ok := sub.X.(*ast.DerefExpr); ok {
			base = b.expr(d.X, refNone)
		} else {
			addr := &ast.AddrExpr{Base: ast.Base{T: e.Type()}, X: sub.X}
			base = b.expr(addr, refNone)
		}
		n := b.newLocal(e.Type())

		// Horner scheme over the trailing dimensions, then scale by the
		// element size and add the base address.
		offset := ir.Ref(b.expr(sub.Args[0], refNone))
		for k := 1; k < len(sub.Args); k++ {
			size := baseT.Sizes[k].(*ast.IntLit)
			b.emit(ir.Instr{Kind: ir.Imm, To: n})
			b.emitExt(uint32(size.Val))
			b.emit(ir.Instr{Kind: ir.Mul, To: offset, L: offset, R: n})
			idx := ir.Ref(b.expr(sub.Args[k], refNone))
			b.emit(ir.Instr{Kind: ir.Add, To: offset, L: offset, R: idx})
		}
		b.emit(ir.Instr{Kind: ir.Imm, To: n})
		b.emitExt(uint32(baseT.Base.Size))
		b.emit(ir.Instr{Kind: ir.Mul, To: n, L: n, R: offset})
		b.emit(ir.Instr{Kind: ir.Add, To: n, L: n, R: ir.Ref(base)})
		return int32(n)

	case *ast.FieldExpr:
		inner := sub.X.Type()
		fld := inner.Fields[sub.Name]
		aggr := &ast.AddrExpr{Base: ast.Base{T: b.c.reg.Int64()}, X: sub.X}
		addr := ir.Ref(b.expr(aggr, refNone))
		offs := b.newLocal(b.c.reg.Int64())
		// byte offsets are resolved at emission time via the aggregate
		b.emit(ir.Instr{Kind: ir.OffsetOf, To: offs, L: ir.Ref(inner.ID), R: ir.Ref(fld.Index)})
		b.emit(ir.Instr{Kind: ir.Add, To: addr, L: addr, R: offs})
		return int32(addr)
	}
	panic(fmt.Sprintf("lower: address of a non-lvalue %T", e.X))
}

// serialize writes a compile-time-constant initializer into blob storage,
// little-endian.
func (c *Compiler) serialize(data []byte, e ast.Expr) {
	switch e := e.(type) {
	case *ast.InitList:
		t := e.Type()
		c.serializeList(data, e, t.Base.Size)
	case *ast.IntLit:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], e.Val)
		copy(data, buf[:e.Type().Size])
	case *ast.BoolLit:
		if e.Val {
			data[0] = 1
		}
	default:
		panic(fmt.Sprintf("serialize: unexpected expression %T", e))
	}
}

// serializeList walks the nesting and lays leaves out contiguously; only
// the leaves carry types, so the element size travels alongside.
func (c *Compiler) serializeList(data []byte, list *ast.InitList, elemSize int64) int64 {
	var off int64
	for _, el := range list.Elems {
		if sub, ok := el.(*ast.InitList); ok {
			off += c.serializeList(data[off:], sub, elemSize)
			continue
		}
		c.serialize(data[off:], el)
		off += elemSize
	}
	return off
}
