package bytecode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"

	"github.com/tiro-lang/tiro/internal/binary"
)

// sampleInstructions covers every operand shape the instruction set
// uses at least once (spec §6.2).
func sampleInstructions() []Instruction {
	return []Instruction{
		LoadNull(0),
		LoadInt(-42, 1),
		LoadFloat(3.5, 2),
		LoadParam(Param(0), 3),
		StoreParam(3, Param(1)),
		LoadModule(MemberID(9), 4),
		StoreModule(4, MemberID(9)),
		LoadMember(Register(1), MemberID(2), Register(3)),
		StoreMember(Register(3), Register(1), MemberID(2)),
		LoadTupleMember(Register(1), 2, Register(3)),
		StoreTupleMember(Register(3), Register(1), 2),
		LoadIndex(Register(1), Register(2), Register(3)),
		StoreIndex(Register(3), Register(1), Register(2)),
		LoadClosure(5),
		LoadEnv(Register(1), 0, 2, Register(3)),
		StoreEnv(Register(3), Register(1), 0, 2),
		Add(Register(1), Register(2), Register(3)),
		UNeg(Register(1), Register(2)),
		Array(3, Register(4)),
		Env(Register(1), 2, Register(3)),
		Closure(MemberID(6), Register(1), Register(2)),
		Record(MemberID(7), Register(1)),
		Iterator(Register(1), Register(2)),
		IteratorNext(Register(1), Register(2), Register(3)),
		Formatter(Register(1)),
		AppendFormat(Register(1), Register(2)),
		FormatResult(Register(1), Register(2)),
		Copy(Register(1), Register(2)),
		Swap(Register(1), Register(2)),
		Push(Register(1)),
		Pop(),
		PopTo(Register(1)),
		Jmp(Label(0)),
		JmpTrue(Register(1), Label(0)),
		Call(Register(1), 2),
		LoadMethod(Register(1), MemberID(2), Register(3), Register(4)),
		CallMethod(Register(1), 2),
		Return(Register(1)),
		Rethrow(),
		AssertFail(Register(1), Register(2)),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, want := range sampleInstructions() {
		w := binary.NewWriter()
		Encode(w, want)

		r := binary.NewReader(w.Bytes())
		got, err := Decode(r)
		require.NoError(t, err, "decoding %s", want.Op)

		// Jmp's Off field is a Label pre-patch; Encode writes it
		// verbatim as an Offset, so the round-trip preserves the raw
		// bits even though the field means different things at
		// different pipeline stages.
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch for %s (-want +got):\n%s", want.Op, diff)
		}
		require.Equal(t, 0, r.Remaining(), "leftover bytes after decoding %s", want.Op)
	}
}

func TestDecodeEndOnEmptyBuffer(t *testing.T) {
	r := binary.NewReader(nil)
	_, err := Decode(r)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, End, de.Kind)
}

func TestDecodeInvalidOpcode(t *testing.T) {
	r := binary.NewReader([]byte{0xFF})
	_, err := Decode(r)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, InvalidOpcode, de.Kind)
}

func TestDecodeIncompleteInstruction(t *testing.T) {
	// OpAdd needs three registers (12 bytes); give it one.
	r := binary.NewReader([]byte{byte(OpAdd), 0, 0, 0, 1})
	_, err := Decode(r)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, IncompleteInstruction, de.Kind)
	require.Equal(t, OpAdd, de.Op)
}

// TestEncodeBytesStable pins the exact byte layout of one instruction
// so that an accidental reordering of operand writes is caught with a
// readable diff instead of a bare assertion failure.
func TestEncodeBytesStable(t *testing.T) {
	w := binary.NewWriter()
	Encode(w, LoadMember(Register(1), MemberID(2), Register(3)))

	want := []byte{
		byte(OpLoadMember),
		0, 0, 0, 1, // object
		0, 0, 0, 2, // name
		0, 0, 0, 3, // target
	}
	got := w.Bytes()
	if diff := cmp.Diff(want, got); diff != "" {
		unified, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(hexdump(want)),
			B:        difflib.SplitLines(hexdump(got)),
			FromFile: "want",
			ToFile:   "got",
			Context:  3,
		})
		t.Fatalf("encoded bytes mismatch (cmp):\n%s\n\nhexdump diff:\n%s", diff, unified)
	}
}

func hexdump(b []byte) string {
	s := ""
	for i, v := range b {
		if i > 0 {
			s += " "
		}
		s += byteHex(v)
	}
	return s + "\n"
}

func byteHex(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xF]})
}
