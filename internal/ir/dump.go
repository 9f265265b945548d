package ir

import (
	"fmt"
	"io"
)

// Dump writes a human-readable listing of every symbol.
func (m *Module) Dump(w io.Writer) {
	for i := range m.Syms {
		s := &m.Syms[i]
		switch s.Kind {
		case SymFunc:
			fmt.Fprintf(w, "sym.%d %s func:\n", i, s.Name)
			s.Func.dump(w)
		case SymBlob:
			fmt.Fprintf(w, "sym.%d %s blob:\n", i, s.Name)
			for _, b := range s.Data {
				fmt.Fprintf(w, "%02x ", b)
			}
			fmt.Fprintln(w)
		case SymAggregate:
			fmt.Fprintf(w, "sym.%d %s aggregate:\n", i, s.Name)
			for j, f := range s.Fields {
				fmt.Fprintf(w, "\t%d: %s\n", j, f)
			}
		}
		fmt.Fprintln(w)
	}
}

func (f *Func) dump(w io.Writer) {
	if f.NumLabels > 0 {
		// two-address form: one flat range, labels are instructions
		f.dumpRange(w, 0, int32(len(f.Ins)))
		return
	}
	for k, node := range f.Nodes {
		fmt.Fprintf(w, "L%x:\n", k)
		f.dumpRange(w, node.Begin, node.End)
	}
}

func (f *Func) dumpRange(w io.Writer, begin, end int32) {
	for i := begin; i < end; {
		in := f.Ins[i]
		switch in.Kind {
		case Imm:
			fmt.Fprintf(w, "\t%%%x = #%x\n", in.To, f.Ins[i+1].Payload())
		case GlobalRef:
			fmt.Fprintf(w, "\t%%%x = GLOBAL.%x\n", in.To, f.Ins[i+1].Payload())
		case Set:
			fmt.Fprintf(w, "\t%%%x = set.%s %%%x, %%%x\n", in.To, Cond(f.Ins[i+1].To), in.L, in.R)
		case Add, Sub, Mul:
			fmt.Fprintf(w, "\t%%%x = %s %%%x, %%%x\n", in.To, in.Kind, in.L, in.R)
		case Call:
			fmt.Fprintf(w, "\t%%%x = call GLOBAL.%x (", in.To, f.Ins[i+1].Payload())
			for j, a := range PackedArgs(f.Ins, int(i)) {
				if j > 0 {
					fmt.Fprint(w, ", ")
				}
				fmt.Fprintf(w, "%%%x", a)
			}
			fmt.Fprintln(w, ")")
		case Copy:
			fmt.Fprintf(w, "\t%%%x = %%%x\n", in.To, in.L)
		case Ret:
			fmt.Fprintf(w, "\tret %%%x\n", in.To)
		case Arg:
			fmt.Fprintf(w, "\t%%%x = arg.%d\n", in.To, in.L)
		case Bool:
			fmt.Fprintf(w, "\t%%%x = bool(%d)\n", in.To, in.L)
		case BoolNeg:
			fmt.Fprintf(w, "\t%%%x = bool_neg %%%x\n", in.To, in.L)
		case Goto:
			fmt.Fprintf(w, "\tgoto L%x\n", in.To)
		case Br:
			ext := f.Ins[i+1]
			fmt.Fprintf(w, "\tbr.%s %%%x, %%%x, L%x, L%x\n", Cond(in.To), in.L, in.R, ext.L, ext.R)
		case Label:
			fmt.Fprintf(w, "L%x:\n", in.To)
		case Load:
			fmt.Fprintf(w, "\t%%%x = load %%%x\n", in.To, in.L)
		case Store:
			fmt.Fprintf(w, "\tstore %%%x, %%%x\n", in.To, in.L)
		case Address:
			fmt.Fprintf(w, "\t%%%x = &%%%x\n", in.To, in.L)
		case MemCopy:
			fmt.Fprintf(w, "\t%%%x = memcopy %%%x\n", in.To, in.L)
		case Convert:
			fmt.Fprintf(w, "\t%%%x = cvt.%x %%%x\n", in.To, in.R, in.L)
		case OffsetOf:
			fmt.Fprintf(w, "\t%%%x = offsetof sym.%x, field.%d\n", in.To, in.L, in.R)
		default:
			fmt.Fprintf(w, "\tunknown<%x %x %x %x>\n", byte(in.Kind), in.To, in.L, in.R)
		}
		i += 1 + int32(ExtSlots(in))
	}
}
