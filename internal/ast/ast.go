package ast

import (
	"quill/internal/lexer"
)

// DeclID is the stable index of a declaration in its Module. Expressions
// refer to declarations by id rather than by pointer; -1 means unresolved.
type DeclID int32

type DeclKind uint8

const (
	DeclVar DeclKind = iota
	DeclFunc
	DeclStruct
)

// Decl is any named declaration: a variable (parameters included), a
// function, or a struct. ID starts out as -1 and is assigned later: the
// symbol index for top-level declarations, the parameter index for
// parameters, the local number for function-local variables.
type Decl struct {
	Kind   DeclKind
	Name   *lexer.Sym
	Off    int
	Type   *Type // nil for an untyped variable until the checker infers it
	Init   Expr  // DeclVar
	Body   *BlockStmt
	Params []DeclID // DeclFunc, same order as Type.Params
	ID     int32
}

// Module is one translation unit: every declaration it contains, plus the
// top-level declarations in source order.
type Module struct {
	Decls []*Decl
	Top   []DeclID
}

func (m *Module) Decl(id DeclID) *Decl {
	if id < 0 {
		return nil
	}
	return m.Decls[id]
}

// Register appends d and hands back its id.
func (m *Module) Register(d *Decl) DeclID {
	d.ID = -1
	id := DeclID(len(m.Decls))
	m.Decls = append(m.Decls, d)
	return id
}

// Base carries the source offset and resolved type shared by every
// expression node. The type is nil until the checker runs.
type Base struct {
	Off int
	T   *Type
}

func (b *Base) Pos() int        { return b.Off }
func (b *Base) Type() *Type     { return b.T }
func (b *Base) SetType(t *Type) { b.T = t }

type Expr interface {
	Pos() int
	Type() *Type
	SetType(*Type)
}

// IntLit is an integer literal. The value is the raw unsigned spelling.
type IntLit struct {
	Base
	Val uint64
}

type BoolLit struct {
	Base
	Val bool
}

// NameExpr is a reference to a declaration; Decl is attached by the resolver.
type NameExpr struct {
	Base
	Name *lexer.Sym
	Decl DeclID
}

type CallExpr struct {
	Base
	Fn   Expr
	Args []Expr
}

// BinExpr covers arithmetic (+ -) and comparisons (== != < <= > >=);
// the operator decides which.
type BinExpr struct {
	Base
	Op   lexer.TokenType
	L, R Expr
}

func (e *BinExpr) IsCmp() bool {
	switch e.Op {
	case lexer.TokenDoubleEqual, lexer.TokenNotEqual,
		lexer.TokenLT, lexer.TokenLE, lexer.TokenGT, lexer.TokenGE:
		return true
	}
	return false
}

type NotExpr struct {
	Base
	X Expr
}

type AddrExpr struct {
	Base
	X Expr
}

type DerefExpr struct {
	Base
	X Expr
}

// IndexExpr is a multi-dimensional array access; len(Args) is the rank.
type IndexExpr struct {
	Base
	X    Expr
	Args []Expr
}

type FieldExpr struct {
	Base
	X    Expr
	Name *lexer.Sym
}

type InitList struct {
	Base
	Elems []Expr
}

// ConvertExpr is a cast. The parser builds one for every `as` expression;
// the checker inserts more for implicit conversions. To is the target.
type ConvertExpr struct {
	Base
	X  Expr
	To *Type
}

// UndefExpr deliberately leaves a value uninitialized.
type UndefExpr struct {
	Base
}

// BadExpr is a placeholder for a subtree that failed to parse.
type BadExpr struct {
	Base
}

type Stmt interface {
	stmtNode()
}

type stmt struct{}

func (stmt) stmtNode() {}

type ExprStmt struct {
	stmt
	X Expr
}

type AssignStmt struct {
	stmt
	L, R Expr
}

type DeclStmt struct {
	stmt
	D DeclID
}

type ReturnStmt struct {
	stmt
	X Expr
}

type IfStmt struct {
	stmt
	Cond Expr
	Then Stmt
	Else Stmt // nil when absent
}

type WhileStmt struct {
	stmt
	Cond Expr
	Body Stmt
}

type BlockStmt struct {
	stmt
	List []Stmt
}

type BadStmt struct {
	stmt
}
