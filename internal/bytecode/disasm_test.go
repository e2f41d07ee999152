package bytecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisassembleSimpleReturn(t *testing.T) {
	fw := NewFunctionWriter()
	fw.Write(LoadInt(42, Register(0)))
	fw.Write(Return(Register(0)))
	code, handlers, _ := fw.Finish()

	out := Disassemble("answer", Function{Code: code, Handlers: handlers})
	require.Contains(t, out, "LoadInt value 42 target 0")
	require.Contains(t, out, "Return value 0")
	require.Contains(t, out, "(no handlers)")
}

func TestDisassembleShowsHandlerTable(t *testing.T) {
	fw := NewFunctionWriter()
	const handler Label = 0
	fw.DefineLabel(handler)
	fw.StartHandler(handler)
	fw.Write(LoadNull(Register(0)))
	fw.StartHandler(InvalidLabel)
	fw.Write(Return(Register(0)))
	code, handlers, _ := fw.Finish()

	out := Disassemble("f", Function{Code: code, Handlers: handlers})
	require.True(t, strings.Contains(out, "[0, 5) -> 0"))
}
