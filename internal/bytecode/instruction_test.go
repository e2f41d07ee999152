package bytecode

import "testing"

func TestConstructorFieldLayout(t *testing.T) {
	ins := LoadMember(Register(1), MemberID(2), Register(3))
	if ins.Op != OpLoadMember || ins.A != 1 || ins.Member != 2 || ins.B != 3 {
		t.Fatalf("LoadMember built wrong fields: %+v", ins)
	}

	ins = Add(Register(10), Register(11), Register(12))
	if ins.Op != OpAdd || ins.B != 10 || ins.C != 11 || ins.A != 12 {
		t.Fatalf("Add built wrong fields: %+v", ins)
	}

	ins = LoadMethod(Register(1), MemberID(5), Register(2), Register(3))
	if ins.Op != OpLoadMethod || ins.A != 1 || ins.Member != 5 || ins.B != 2 || ins.C != 3 {
		t.Fatalf("LoadMethod built wrong fields: %+v", ins)
	}
}

func TestJmpLabelRoundTrip(t *testing.T) {
	ins := Jmp(Label(42))
	if ins.Label() != Label(42) {
		t.Fatalf("Label() = %d, want 42", ins.Label())
	}

	ins = JmpTrue(Register(1), Label(7))
	if ins.Op != OpJmpTrue || ins.A != 1 || ins.Label() != Label(7) {
		t.Fatalf("JmpTrue built wrong fields: %+v", ins)
	}
}
