package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiro-lang/tiro/internal/binary"
)

// TestFunctionWriterSimpleReturn reproduces the end-to-end lowering
// example from spec §8.2: `Return Const(42)` lowers to exactly
// `LoadInt 42, r0; Return r0`, with the Return at offset 13.
func TestFunctionWriterSimpleReturn(t *testing.T) {
	fw := NewFunctionWriter()
	fw.Write(LoadInt(42, Register(0)))
	fw.Write(Return(Register(0)))
	code, handlers, refs := fw.Finish()

	require.Empty(t, handlers)
	require.Empty(t, refs)

	r := binary.NewReader(code)
	ins, err := Decode(r)
	require.NoError(t, err)
	require.Equal(t, OpLoadInt, ins.Op)
	require.Equal(t, int64(42), ins.Int)
	require.Equal(t, Register(0), ins.A)

	returnOffset := r.Pos()
	ins, err = Decode(r)
	require.NoError(t, err)
	require.Equal(t, OpReturn, ins.Op)
	require.Equal(t, Register(0), ins.A)
	require.Equal(t, 13, returnOffset)
	require.Equal(t, 0, r.Remaining())
}

func TestFunctionWriterLabelPatch(t *testing.T) {
	fw := NewFunctionWriter()
	const target Label = 0

	fw.Write(Jmp(target))
	fw.DefineLabel(target)
	fw.Write(Return(Register(0)))
	code, _, _ := fw.Finish()

	r := binary.NewReader(code)
	ins, err := Decode(r)
	require.NoError(t, err)
	require.Equal(t, OpJmp, ins.Op)
	require.Equal(t, Offset(5), ins.Off) // code length of the Jmp instruction itself
}

func TestFunctionWriterUndefinedLabelPanics(t *testing.T) {
	fw := NewFunctionWriter()
	fw.Write(Jmp(Label(99)))
	require.Panics(t, func() { fw.Finish() })
}

func TestFunctionWriterDuplicateLabelPanics(t *testing.T) {
	fw := NewFunctionWriter()
	fw.DefineLabel(Label(0))
	require.Panics(t, func() { fw.DefineLabel(Label(0)) })
}

func TestFunctionWriterModuleRefs(t *testing.T) {
	fw := NewFunctionWriter()
	fw.Write(LoadModule(MemberID(7), Register(0)))
	_, _, refs := fw.Finish()

	require.Len(t, refs, 1)
	require.Equal(t, MemberID(7), refs[0].Member)
	require.Equal(t, 1, refs[0].Pos) // opcode byte at 0, member slot starts at 1
}

// TestHandlerSimplificationMergesAdjacent exercises spec §4.4.1:
// adjacent handler regions sharing the same target are coalesced into
// one entry, even when StartHandler is called once per block.
func TestHandlerSimplificationMergesAdjacent(t *testing.T) {
	fw := NewFunctionWriter()
	const handler Label = 0

	fw.DefineLabel(handler)
	fw.StartHandler(handler)
	fw.Write(LoadNull(Register(0)))
	fw.StartHandler(handler) // adjacent block, same handler
	fw.Write(LoadNull(Register(1)))
	fw.StartHandler(InvalidLabel)
	fw.Write(Return(Register(0)))

	_, handlers, _ := fw.Finish()
	require.Len(t, handlers, 1)
	require.Equal(t, Offset(0), handlers[0].From)
	require.Equal(t, Offset(10), handlers[0].To)
	require.Equal(t, Offset(0), handlers[0].Target)
}

func TestHandlerSimplificationKeepsDistinctTargetsSeparate(t *testing.T) {
	fw := NewFunctionWriter()
	const h1, h2 Label = 0, 1

	fw.DefineLabel(h1)
	fw.Write(LoadNull(Register(0)))
	fw.DefineLabel(h2)
	fw.Write(LoadNull(Register(1)))

	fw.StartHandler(h1)
	fw.Write(LoadNull(Register(2)))
	fw.StartHandler(h2)
	fw.Write(LoadNull(Register(3)))
	fw.StartHandler(InvalidLabel)

	_, handlers, _ := fw.Finish()
	require.Len(t, handlers, 2)
	require.Equal(t, Offset(0), handlers[0].Target) // h1 defined before any write
	require.Equal(t, Offset(5), handlers[1].Target) // h2 defined after one LoadNull
}
