package typecheck

import (
	"io"
	"testing"

	"github.com/kr/pretty"

	"quill/internal/ast"
	"quill/internal/errors"
	"quill/internal/lexer"
	"quill/internal/parser"
	"quill/internal/resolver"
	"quill/internal/types"
)

type result struct {
	mod *ast.Module
	reg *types.Registry
	e2t map[ast.Expr]*ast.Type
	rep *errors.Reporter
}

func checkString(input string) result {
	rep := errors.NewReporter("test.ql", input, io.Discard)
	scanner := lexer.NewScanner(input, rep)
	reg := types.NewRegistry()
	p := parser.NewParser(scanner.ScanTokens(), reg, rep)
	mod := p.ParseModule()
	resolver.Resolve(mod, rep)
	e2t := Check(mod, reg, rep)
	return result{mod: mod, reg: reg, e2t: e2t, rep: rep}
}

func checkOK(t *testing.T, input string) result {
	t.Helper()
	res := checkString(input)
	if res.rep.Count != 0 {
		t.Fatalf("type checking failed with %d error(s)", res.rep.Count)
	}
	return res
}

func fn(t *testing.T, res result, i int) *ast.Decl {
	t.Helper()
	return res.mod.Decl(res.mod.Top[i])
}

func TestLiteralNarrowing(t *testing.T) {
	tests := []struct {
		val  string
		want ast.TypeKind
	}{
		{"0", ast.TypeInt8},
		{"255", ast.TypeInt8},
		{"256", ast.TypeInt32},
		{"4294967295", ast.TypeInt32},
		{"4294967296", ast.TypeInt64},
	}
	for _, test := range tests {
		t.Run(test.val, func(t *testing.T) {
			res := checkOK(t, "decl f func(): int64 { decl x = "+test.val+"; return x; }")
			d := res.mod.Decl(fn(t, res, 0).Body.List[0].(*ast.DeclStmt).D)
			if d.Type.Kind != test.want {
				t.Errorf("literal %s inferred as %s", test.val, d.Type)
			}
		})
	}
}

func TestLiteralTakesExpectedType(t *testing.T) {
	res := checkOK(t, "decl f func(): int64 { return 5; }")
	ret := fn(t, res, 0).Body.List[0].(*ast.ReturnStmt)
	lit, ok := ret.X.(*ast.IntLit)
	if !ok {
		t.Fatalf("return expression is %T, want a bare literal", ret.X)
	}
	if lit.Type().Kind != ast.TypeInt64 {
		t.Errorf("literal adopted %s, want int64", lit.Type())
	}
}

func TestWideningInsertsConvert(t *testing.T) {
	res := checkOK(t, "decl f func(a: int8, b: int32): int32 { return a + b; }")
	ret := fn(t, res, 0).Body.List[0].(*ast.ReturnStmt)
	add, ok := ret.X.(*ast.BinExpr)
	if !ok {
		t.Fatalf("return expression is %T, want binary", ret.X)
	}
	cv, ok := add.L.(*ast.ConvertExpr)
	if !ok {
		t.Fatalf("narrow side is %T, want an inserted convert", add.L)
	}
	if cv.To.Kind != ast.TypeInt32 || cv.Type().Kind != ast.TypeInt32 {
		t.Errorf("conversion targets %s, want int32", cv.To)
	}
	if add.Type().Kind != ast.TypeInt32 {
		t.Errorf("sum has type %s, want int32", add.Type())
	}
}

func TestComparisonIsBool(t *testing.T) {
	res := checkOK(t, "decl f func(a: int32): bool { return a == 0; }")
	ret := fn(t, res, 0).Body.List[0].(*ast.ReturnStmt)
	if ret.X.Type().Kind != ast.TypeBool {
		t.Errorf("comparison has type %s", ret.X.Type())
	}
}

func TestReturnInsertsConvert(t *testing.T) {
	res := checkOK(t, "decl f func(a: int8): int32 { return a; }")
	ret := fn(t, res, 0).Body.List[0].(*ast.ReturnStmt)
	cv, ok := ret.X.(*ast.ConvertExpr)
	if !ok {
		t.Fatalf("returned expression is %T, want an inserted convert", ret.X)
	}
	if cv.To.Kind != ast.TypeInt32 {
		t.Errorf("conversion targets %s", cv.To)
	}
}

func TestEveryExpressionIsMapped(t *testing.T) {
	res := checkOK(t, "decl f func(a: int32, b: int32): bool { return a + b == 10; }")
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
		got, ok := res.e2t[e]
		if !ok {
			t.Errorf("%T is missing from the type map", e)
			return
		}
		if got != e.Type() {
			t.Errorf("%T: node type %s disagrees with map entry %s", e, e.Type(), got)
		}
		switch e := e.(type) {
		case *ast.BinExpr:
			walk(e.L)
			walk(e.R)
		case *ast.ConvertExpr:
			walk(e.X)
		}
	}
	walk(fn(t, res, 0).Body.List[0].(*ast.ReturnStmt).X)
}

func TestParameterIDs(t *testing.T) {
	res := checkOK(t, "decl f func(a: int8, b: int32, c: bool): int32 { return b; }")
	d := fn(t, res, 0)
	for i, pid := range d.Params {
		if res.mod.Decl(pid).ID != int32(i) {
			t.Errorf("parameter %d has id %d", i, res.mod.Decl(pid).ID)
		}
	}
}

func TestCheckingIsIdempotent(t *testing.T) {
	const src = `
decl f func(a: int8, b: int32): int32 {
	decl x = a + b;
	if x == 0 {
		return 1;
	}
	return x;
}
`
	res := checkOK(t, src)
	first := pretty.Sprint(res.mod)
	before := res.rep.Count
	Check(res.mod, res.reg, res.rep)
	if res.rep.Count != before {
		t.Fatalf("second run reported %d new error(s)", res.rep.Count-before)
	}
	second := pretty.Sprint(res.mod)
	if first != second {
		t.Errorf("second run rewrote a fully checked tree:\n%s", pretty.Diff(first, second))
	}
}

func TestConstantFoldingInSizes(t *testing.T) {
	res := checkOK(t, "decl f func(): int32 { decl a: [2 + 3]int32 = undef; return a[0]; }")
	d := res.mod.Decl(fn(t, res, 0).Body.List[0].(*ast.DeclStmt).D)
	if d.Type.Size != 20 {
		t.Errorf("[2+3]int32 completed to size %d, want 20", d.Type.Size)
	}
	if lit, ok := d.Type.Sizes[0].(*ast.IntLit); !ok || lit.Val != 5 {
		t.Errorf("size expression did not fold to a literal: %T", d.Type.Sizes[0])
	}
}

func TestInitListShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"well formed", "decl a: [2][3]int32 = { {1,2,3}, {4,5,6} };", false},
		{"row too long", "decl a: [2][3]int32 = { {1,2,3,4}, {5,6,7} };", true},
		{"row too short", "decl a: [2][3]int32 = { {1,2}, {3,4} };", true},
		{"too few rows", "decl a: [2][3]int32 = { {1,2,3} };", true},
		{"flat where nested expected", "decl a: [2][3]int32 = { 1, 2 };", true},
		{"nested where flat expected", "decl a: [2]int32 = { {1}, {2} };", true},
		{"scalar context", "decl f func(): int32 { decl x: int32 = {1}; return x; }", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := checkString(test.input)
			if test.wantErr && res.rep.Count == 0 {
				t.Error("expected a type error")
			}
			if !test.wantErr && res.rep.Count != 0 {
				t.Errorf("got %d unexpected error(s)", res.rep.Count)
			}
		})
	}
}

func TestTypeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"add bools", "decl f func(a: bool, b: bool): bool { return a + b; }"},
		{"narrowing return", "decl f func(a: int32): int8 { return a; }"},
		{"call non-function", "decl f func(a: int32): int32 { return a(); }"},
		{"wrong arity", "decl g func(a: int32): int32 { return a; }\ndecl f func(): int32 { return g(); }"},
		{"index non-array", "decl f func(a: int32): int32 { return a[0]; }"},
		{"rank mismatch", "decl f func(a: [2][3]int32): int32 { return a[0]; }"},
		{"deref non-pointer", "decl f func(a: int32): int32 { return *a; }"},
		{"not on integer", "decl f func(a: int32): bool { return !a; }"},
		{"assign to literal", "decl f func(): int32 { 1 = 2; return 0; }"},
		{"assign to call", "decl g func(): int32 { return 0; }\ndecl f func(): int32 { g() = 1; return 0; }"},
		{"unknown field", "decl p struct { x: int32; }\ndecl f func(a: p): int32 { return a.y; }"},
		{"field of non-struct", "decl f func(a: int32): int32 { return a.x; }"},
		{"cast array to int", "decl f func(a: [2]int32): int32 { return a as int32; }"},
		{"non-constant global", "decl g func(): int32 { return 1; }\ndecl x: int32 = g();"},
		{"bool condition required", "decl f func(a: int32): int32 { if a { return 1; } return 0; }"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := checkString(test.input)
			if res.rep.Count == 0 {
				t.Error("expected a type error")
			}
		})
	}
}

func TestErrorSentinelSuppressesCascade(t *testing.T) {
	// one undeclared name, one report: the None type flows through the
	// addition and the return without further complaints
	res := checkString("decl f func(): int32 { return nowhere + 1; }")
	if res.rep.Count != 1 {
		t.Errorf("got %d error(s), want exactly 1", res.rep.Count)
	}
}

func TestStructFieldAccess(t *testing.T) {
	res := checkOK(t, `
decl point struct { x: int32; y: int64; }
decl f func(p: point): int64 { return p.y; }
`)
	st := res.mod.Decl(res.mod.Top[0]).Type
	if st.Size != 16 || st.Align != 8 {
		t.Errorf("struct layout: size %d align %d, want 16/8", st.Size, st.Align)
	}
	ret := fn(t, res, 1).Body.List[0].(*ast.ReturnStmt)
	if ret.X.Type().Kind != ast.TypeInt64 {
		t.Errorf("field access has type %s", ret.X.Type())
	}
}

func TestAddressAndDeref(t *testing.T) {
	res := checkOK(t, "decl f func(a: int32): int32 { decl p = &a; return *p; }")
	d := res.mod.Decl(fn(t, res, 0).Body.List[0].(*ast.DeclStmt).D)
	if d.Type.Kind != ast.TypePtr || d.Type.Base.Kind != ast.TypeInt32 {
		t.Errorf("address-of inferred %s, want *int32", d.Type)
	}
	ret := fn(t, res, 0).Body.List[1].(*ast.ReturnStmt)
	if ret.X.Type().Kind != ast.TypeInt32 {
		t.Errorf("deref has type %s", ret.X.Type())
	}
}

func TestUndefAdoptsExpectedType(t *testing.T) {
	res := checkOK(t, "decl f func(): int32 { decl x: int32 = undef; return x; }")
	d := res.mod.Decl(fn(t, res, 0).Body.List[0].(*ast.DeclStmt).D)
	if d.Init.Type().Kind != ast.TypeInt32 {
		t.Errorf("undef has type %s", d.Init.Type())
	}
}
