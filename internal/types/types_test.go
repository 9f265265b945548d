package types

import (
	"io"
	"testing"

	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
)

// foldLits is the completion callback used in tests: sizes are already
// literals.
func foldLits(pe *ast.Expr) (uint64, bool) {
	lit, ok := (*pe).(*ast.IntLit)
	if !ok {
		return 0, false
	}
	return lit.Val, true
}

func lits(vals ...uint64) []ast.Expr {
	out := make([]ast.Expr, len(vals))
	for i, v := range vals {
		out[i] = &ast.IntLit{Val: v}
	}
	return out
}

func discard() *errors.Reporter {
	return errors.NewReporter("test.ql", "", io.Discard)
}

func TestPrimitiveLayout(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		t     *ast.Type
		size  int64
		align int
	}{
		{r.Bool(), 1, 1},
		{r.Int8(), 1, 1},
		{r.Int32(), 4, 4},
		{r.Int64(), 8, 8},
	}
	for _, test := range tests {
		if test.t.Size != test.size || test.t.Align != test.align {
			t.Errorf("%s: size %d align %d, want %d/%d",
				test.t, test.t.Size, test.t.Align, test.size, test.align)
		}
	}
}

func TestInterning(t *testing.T) {
	r := NewRegistry()
	i32 := r.Int32()
	if r.Ptr(i32) != r.Ptr(i32) {
		t.Error("pointer types with the same base are not interned")
	}
	if r.Ptr(i32) == r.Ptr(r.Int64()) {
		t.Error("pointer types with different bases interned together")
	}
	f1 := r.Func([]ast.Param{{Type: i32}}, r.Bool())
	f2 := r.Func([]ast.Param{{Type: i32}}, r.Bool())
	if f1 != f2 {
		t.Error("structurally equal function types are not interned")
	}
	a1 := r.Array(i32, lits(2, 3))
	a2 := r.Array(i32, lits(2, 3))
	if a1 != a2 {
		t.Error("arrays with equal literal sizes are not interned")
	}
	if a1 == r.Array(i32, lits(3, 2)) {
		t.Error("arrays with different sizes interned together")
	}
}

func TestStructsAreNotInterned(t *testing.T) {
	r := NewRegistry()
	name := &lexer.Sym{Str: "x"}
	mk := func() *ast.Type {
		return r.Struct(map[*lexer.Sym]ast.Field{name: {Index: 0, Type: r.Int32()}})
	}
	if mk() == mk() {
		t.Error("each struct declaration must yield its own type")
	}
}

func TestArrayCompletion(t *testing.T) {
	r := NewRegistry()
	a := r.Array(r.Int32(), lits(2, 3))
	r.Complete(a, foldLits, discard(), 0)
	if a.Size != 24 || a.Align != 4 {
		t.Errorf("[2][3]int32: size %d align %d, want 24/4", a.Size, a.Align)
	}
	// completion is idempotent
	r.Complete(a, foldLits, discard(), 0)
	if a.Size != 24 {
		t.Errorf("second completion changed the size to %d", a.Size)
	}
}

func TestUnfoldableArraySize(t *testing.T) {
	r := NewRegistry()
	rep := discard()
	a := r.Array(r.Int32(), []ast.Expr{&ast.NameExpr{Decl: -1}})
	r.Complete(a, func(pe *ast.Expr) (uint64, bool) {
		rep.Errorf(errors.TypeError, 0, "unfoldable")
		return 0, false
	}, rep, 0)
	if a.Size != 0 {
		t.Errorf("unfoldable size left size %d, want 0", a.Size)
	}
	if rep.Count == 0 {
		t.Error("expected an error to be reported")
	}
}

func TestStructLayout(t *testing.T) {
	r := NewRegistry()
	a := &lexer.Sym{Str: "a"}
	b := &lexer.Sym{Str: "b"}
	c := &lexer.Sym{Str: "c"}
	tests := []struct {
		name   string
		fields map[*lexer.Sym]ast.Field
		size   int64
		align  int
	}{
		{
			"padding between fields",
			map[*lexer.Sym]ast.Field{
				a: {Index: 0, Type: r.Int8()},
				b: {Index: 1, Type: r.Int64()},
			},
			16, 8,
		},
		{
			"tail padding",
			map[*lexer.Sym]ast.Field{
				a: {Index: 0, Type: r.Int64()},
				b: {Index: 1, Type: r.Int8()},
			},
			16, 8,
		},
		{
			"packed",
			map[*lexer.Sym]ast.Field{
				a: {Index: 0, Type: r.Int8()},
				b: {Index: 1, Type: r.Int8()},
				c: {Index: 2, Type: r.Int32()},
			},
			8, 4,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := r.Struct(test.fields)
			r.Complete(s, foldLits, discard(), 0)
			if s.Size != test.size || s.Align != test.align {
				t.Errorf("size %d align %d, want %d/%d", s.Size, s.Align, test.size, test.align)
			}
		})
	}
}

func TestPointerCompletionDoesNotRecurse(t *testing.T) {
	r := NewRegistry()
	name := &lexer.Sym{Str: "next"}
	fields := make(map[*lexer.Sym]ast.Field)
	s := r.Struct(fields)
	fields[name] = ast.Field{Index: 0, Type: r.Ptr(s)}
	r.Complete(s, foldLits, discard(), 0)
	if s.Size != 8 || s.Align != 8 {
		t.Errorf("self-referential struct: size %d align %d, want 8/8", s.Size, s.Align)
	}
}

func TestRecursiveStructReported(t *testing.T) {
	r := NewRegistry()
	name := &lexer.Sym{Str: "s"}
	fields := make(map[*lexer.Sym]ast.Field)
	s := r.Struct(fields)
	fields[name] = ast.Field{Index: 0, Type: s}
	rep := discard()
	r.Complete(s, foldLits, rep, 0)
	if rep.Count == 0 {
		t.Error("value-recursive struct must be an error")
	}
}
