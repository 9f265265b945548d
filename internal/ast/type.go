package ast

import (
	"fmt"
	"strings"

	"quill/internal/lexer"
)

type TypeKind uint8

const (
	TypeNone TypeKind = iota // error sentinel: compatible with everything
	TypeBool
	TypeInt8
	TypeInt32
	TypeInt64
	TypePtr
	TypeArray
	TypeFunc
	TypeStruct
	TypeNamed // unresolved reference to a struct declaration
)

const (
	PrimBegin = TypeBool
	PrimEnd   = TypeInt64
)

func (k TypeKind) IsPrimitive() bool { return PrimBegin <= k && k <= PrimEnd }
func (k TypeKind) IsInteger() bool   { return TypeInt8 <= k && k <= TypeInt64 }

type Param struct {
	Name *lexer.Sym
	Type *Type
}

// Field is a struct member; Index is its declaration-order position.
type Field struct {
	Index int32
	Type  *Type
}

// Type is the compiler's type representation. Size stays -1 until the
// registry completes the type, and Align is only meaningful from then on
// (primitives are complete from construction); completion is idempotent.
//
// Which fields are meaningful depends on Kind:
//
//	Ptr    Base
//	Array  Base, Sizes (row-major, outermost first)
//	Func   Params, Base (the return type)
//	Struct Fields
//	Named  Name, then Ref once resolved
type Type struct {
	Kind   TypeKind
	Base   *Type
	Sizes  []Expr
	Params []Param
	Fields map[*lexer.Sym]Field
	Name   *lexer.Sym
	Ref    DeclID // Named: the struct declaration, -1 until resolved
	Size   int64
	Align  int
	ID     int32 // Struct: symbol index, assigned during lowering
}

func (t *Type) String() string {
	switch t.Kind {
	case TypeNone:
		return "<error>"
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypePtr:
		return "*" + t.Base.String()
	case TypeArray:
		var sb strings.Builder
		for _, sz := range t.Sizes {
			if lit, ok := sz.(*IntLit); ok {
				fmt.Fprintf(&sb, "[%d]", lit.Val)
			} else {
				sb.WriteString("[?]")
			}
		}
		sb.WriteString(t.Base.String())
		return sb.String()
	case TypeFunc:
		var sb strings.Builder
		sb.WriteString("func(")
		for i, p := range t.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %s", p.Name, p.Type)
		}
		sb.WriteString("): ")
		sb.WriteString(t.Base.String())
		return sb.String()
	case TypeStruct:
		names := make([]*lexer.Sym, len(t.Fields))
		for name, f := range t.Fields {
			names[f.Index] = name
		}
		var sb strings.Builder
		sb.WriteString("struct { ")
		for _, name := range names {
			fmt.Fprintf(&sb, "%s: %s; ", name, t.Fields[name].Type)
		}
		sb.WriteString("}")
		return sb.String()
	case TypeNamed:
		return t.Name.String()
	}
	return "<?>"
}
