// internal/compiler/twoaddr.go
//
// Flattening from three-address to two-address form: every block gets an
// explicit label instruction, binary arithmetic destinations alias their
// left source, and conditional branches become a branch plus a
// fall-through goto. This is the shape the instruction selector consumes.
package compiler

import (
	"fmt"

	"quill/internal/ir"
)

// ToTwoAddr rewrites a 3AC module. The symbol layout is unchanged; the
// original function bodies are destroyed.
func ToTwoAddr(m *ir.Module) *ir.Module {
	out := &ir.Module{Syms: make([]ir.Symbol, 0, len(m.Syms))}
	for i := range m.Syms {
		src := m.Syms[i]
		if src.Kind == ir.SymFunc {
			src.Func = twoAddrFunc(src.Func)
		}
		out.Syms = append(out.Syms, src)
	}
	return out
}

func twoAddrFunc(src *ir.Func) *ir.Func {
	dst := &ir.Func{Locals: src.Locals, NumLabels: len(src.Nodes)}
	for k, node := range src.Nodes {
		dst.Ins = append(dst.Ins, ir.Instr{Kind: ir.Label, To: ir.Ref(k)})
		for i := node.Begin; i < node.End; {
			in := src.Ins[i]
			switch in.Kind {
			case ir.Imm, ir.Set, ir.GlobalRef:
				dst.Ins = append(dst.Ins, in, src.Ins[i+1])
				i += 2

			case ir.Copy, ir.Bool, ir.Ret, ir.Goto, ir.Arg, ir.BoolNeg,
				ir.Load, ir.Store, ir.Address, ir.MemCopy, ir.Convert, ir.OffsetOf:
				dst.Ins = append(dst.Ins, in)
				i++

			case ir.Add, ir.Sub, ir.Mul:
				// the destination aliases the left source from here on
				dst.Ins = append(dst.Ins,
					ir.Instr{Kind: ir.Copy, To: in.To, L: in.L},
					ir.Instr{Kind: in.Kind, To: in.To, L: in.To, R: in.R})
				i++

			case ir.Br:
				// keep the then target on the branch; control falls
				// through to an explicit goto for the else target
				ext := src.Ins[i+1]
				dst.Ins = append(dst.Ins,
					ir.Instr{Kind: ir.Br, To: in.To, L: in.L, R: in.R},
					ir.Instr{L: ext.L},
					ir.Instr{Kind: ir.Goto, To: ext.R})
				i += 2

			case ir.Call:
				n := int32(1 + ir.ExtSlots(in))
				dst.Ins = append(dst.Ins, src.Ins[i:i+n]...)
				i += n

			default:
				panic(fmt.Sprintf("two-address lowering: unexpected opcode %s", in.Kind))
			}
		}
	}
	dst.Nodes = []ir.Node{{Begin: 0, End: int32(len(dst.Ins))}}
	src.Ins, src.Nodes, src.Locals = nil, nil, nil
	return dst
}
