package ir

import (
	"strings"
	"testing"
)

func TestExtRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xff, 0x1234, 0xdeadbeef, 0xffffffff} {
		if got := Ext(v).Payload(); got != v {
			t.Errorf("Ext(%#x).Payload() = %#x", v, got)
		}
	}
}

func TestInstrIsFourBytes(t *testing.T) {
	// the record layout is the wire layout: kind, to, L, R
	in := Instr{Kind: Add, To: 1, L: 2, R: 3}
	if b := in.Encode(); b != [4]byte{byte(Add), 1, 2, 3} {
		t.Errorf("encoded %v", b)
	}
}

func TestExtSlots(t *testing.T) {
	tests := []struct {
		in   Instr
		want int
	}{
		{Instr{Kind: Imm}, 1},
		{Instr{Kind: Set}, 1},
		{Instr{Kind: GlobalRef}, 1},
		{Instr{Kind: Br}, 1},
		{Instr{Kind: Call, R: 0}, 1},
		{Instr{Kind: Call, R: 1}, 2},
		{Instr{Kind: Call, R: 4}, 2},
		{Instr{Kind: Call, R: 5}, 3},
		{Instr{Kind: Add}, 0},
		{Instr{Kind: Ret}, 0},
		{Instr{Kind: Label}, 0},
	}
	for _, test := range tests {
		if got := ExtSlots(test.in); got != test.want {
			t.Errorf("ExtSlots(%s, R=%d) = %d, want %d", test.in.Kind, test.in.R, got, test.want)
		}
	}
}

func TestPackedArgs(t *testing.T) {
	ins := []Instr{
		{Kind: Call, To: 6, R: 5},
		Ext(7),                   // callee id
		Ext(0x03020100),          // args 0..3
		Ext(0x00000004),          // arg 4, zero padded
	}
	args := PackedArgs(ins, 0)
	if len(args) != 5 {
		t.Fatalf("got %d args", len(args))
	}
	for i, a := range args {
		if a != Ref(i) {
			t.Errorf("arg %d = %%%x", i, a)
		}
	}
}

func TestDumpSmoke(t *testing.T) {
	f := &Func{
		Ins: []Instr{
			{Kind: Imm, To: 0},
			Ext(0x2a),
			{Kind: Ret, To: 0},
		},
		Nodes: []Node{{Begin: 0, End: 3}},
	}
	m := &Module{Syms: []Symbol{{Kind: SymFunc, Name: "main", Func: f}}}
	var sb strings.Builder
	m.Dump(&sb)
	out := sb.String()
	for _, want := range []string{"sym.0 main func:", "L0:", "%0 = #2a", "ret %0"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump is missing %q:\n%s", want, out)
		}
	}
}

func TestNames(t *testing.T) {
	m := &Module{Syms: []Symbol{
		{Kind: SymFunc, Name: "f"},
		{Kind: SymBlob, Name: ".G1"},
	}}
	names := m.Names()
	if len(names) != 2 || names[0] != "f" || names[1] != ".G1" {
		t.Errorf("names: %v", names)
	}
}
