package ir

import (
	"quill/internal/ast"
)

// Node is a basic block: a half-open range of instruction indices. The
// graph is implicit in the terminator (Goto, Br or Ret); labels are block
// indices.
type Node struct {
	Begin, End int32
}

// Func is one lowered function body. Locals hold the type of every value
// ref; the first len(params) locals are the arguments. NumLabels is only
// set once the body has been flattened to two-address form, which also
// collapses Nodes to a single synthetic block.
type Func struct {
	Ins       []Instr
	Nodes     []Node
	Locals    []*ast.Type
	NumLabels int
}

type SymKind uint8

const (
	SymFunc SymKind = iota
	SymBlob
	SymAggregate
)

// Symbol is one module-level entity: a function body, a read-only byte
// blob, or an aggregate descriptor listing a struct's field types in
// declaration order.
type Symbol struct {
	Kind   SymKind
	Name   string
	Func   *Func
	Data   []byte // SymBlob
	Align  int64  // SymBlob
	Fields []*ast.Type
}

// Module is an ordered sequence of symbols; a declaration's id is its
// index here.
type Module struct {
	Syms []Symbol
}

// Names returns the parallel name sequence the object writer consumes.
func (m *Module) Names() []string {
	names := make([]string, len(m.Syms))
	for i := range m.Syms {
		names[i] = m.Syms[i].Name
	}
	return names
}
