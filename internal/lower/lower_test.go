package lower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiro-lang/tiro/internal/binary"
	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
)

// decodeAll decodes every instruction in code, for asserting on the
// exact sequence Function produces.
func decodeAll(t *testing.T, code []byte) []bytecode.Instruction {
	t.Helper()
	var out []bytecode.Instruction
	r := binary.NewReader(code)
	for r.Remaining() > 0 {
		ins, err := bytecode.Decode(r)
		require.NoError(t, err)
		out = append(out, ins)
	}
	return out
}

func TestFunctionLowersConstantReturn(t *testing.T) {
	fn := &ir.Function{
		Name:       ir.InvalidIrSymbolID,
		EntryBlock: 0,
		Kind:       ir.FunctionNormal,
		Blocks: []ir.Block{
			{
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 0},
				},
				Terminator: ir.ReturnValue(0),
			},
		},
		Locals: []ir.RValue{ir.ConstInt(42)},
	}

	out, err := Function(fn)
	require.NoError(t, err)
	require.Equal(t, bytecode.FunctionNormal, out.Kind)
	require.EqualValues(t, 1, out.LocalCount)

	ins := decodeAll(t, out.Code)
	require.Len(t, ins, 2)
	require.Equal(t, bytecode.OpLoadInt, ins[0].Op)
	require.EqualValues(t, 42, ins[0].Int)
	require.Equal(t, bytecode.OpReturn, ins[1].Op)
	require.True(t, ins[1].Op.Halting())
}

func TestFunctionLowersBinaryOp(t *testing.T) {
	fn := &ir.Function{
		Name:       ir.InvalidIrSymbolID,
		EntryBlock: 0,
		Kind:       ir.FunctionNormal,
		Blocks: []ir.Block{
			{
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 0},
					{Kind: ir.StmtDefine, Local: 1},
					{Kind: ir.StmtDefine, Local: 2},
				},
				Terminator: ir.ReturnValue(2),
			},
		},
		Locals: []ir.RValue{
			ir.ConstInt(1),
			ir.ConstInt(2),
			ir.Binary(ir.BinAdd, 0, 1),
		},
	}

	out, err := Function(fn)
	require.NoError(t, err)

	ins := decodeAll(t, out.Code)
	require.Len(t, ins, 4)
	require.Equal(t, bytecode.OpLoadInt, ins[0].Op)
	require.Equal(t, bytecode.OpLoadInt, ins[1].Op)
	require.Equal(t, bytecode.OpAdd, ins[2].Op)
	require.Equal(t, bytecode.OpReturn, ins[3].Op)
}

// TestFunctionLowersBranchAlwaysEmitsBothTargets checks that a Branch
// terminator lowers to the conditional jump for its true target
// followed by an unconditional jump for the false target (spec §4.7
// step 6's branch-kind mapping, no fallthrough elision).
func TestFunctionLowersBranchAlwaysEmitsBothTargets(t *testing.T) {
	fn := &ir.Function{
		Name:       ir.InvalidIrSymbolID,
		EntryBlock: 0,
		Kind:       ir.FunctionNormal,
		Blocks: []ir.Block{
			{
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 0},
				},
				Terminator: ir.Terminator{
					Kind:        ir.TerminatorBranch,
					Cond:        0,
					BranchKind:  ir.BranchIfTrue,
					TrueTarget:  1,
					FalseTarget: 2,
				},
			},
			{
				Handler:      ir.InvalidBlockID,
				Stmts:        []ir.Stmt{{Kind: ir.StmtDefine, Local: 1}},
				Predecessors: []ir.BlockID{0},
				Terminator:   ir.ReturnValue(1),
			},
			{
				Handler:      ir.InvalidBlockID,
				Stmts:        []ir.Stmt{{Kind: ir.StmtDefine, Local: 2}},
				Predecessors: []ir.BlockID{0},
				Terminator:   ir.ReturnValue(2),
			},
		},
		Locals: []ir.RValue{
			ir.ConstBool(true),
			ir.ConstInt(1),
			ir.ConstInt(2),
		},
	}

	out, err := Function(fn)
	require.NoError(t, err)

	ins := decodeAll(t, out.Code)
	// block0: LoadTrue, JmpTrue, Jmp(false target)
	// block1: LoadInt, Return
	// block2: LoadInt, Return
	require.Len(t, ins, 7)
	require.Equal(t, bytecode.OpLoadTrue, ins[0].Op)
	require.Equal(t, bytecode.OpJmpTrue, ins[1].Op)
	require.Equal(t, bytecode.OpJmp, ins[2].Op)
	require.Equal(t, bytecode.OpLoadInt, ins[3].Op)
	require.Equal(t, bytecode.OpReturn, ins[4].Op)
	require.Equal(t, bytecode.OpLoadInt, ins[5].Op)
	require.Equal(t, bytecode.OpReturn, ins[6].Op)
}

// TestFunctionLowersPhiCopiesBeforeTerminator checks that the parallel
// copies the allocator resolves for a predecessor's phi edge are
// emitted ahead of that predecessor's terminator (spec §4.7 step 5).
func TestFunctionLowersPhiCopiesBeforeTerminator(t *testing.T) {
	// block0 (entry) jumps to block1, a plain predecessor of the phi
	// block2 — the allocator only schedules phi copies over a TerminatorJump
	// edge (spec §4.5.3 step 4), so the phi's predecessor must be a
	// regular block, not the function's Entry terminator itself.
	fn := &ir.Function{
		Name:       ir.InvalidIrSymbolID,
		EntryBlock: 0,
		Kind:       ir.FunctionNormal,
		Blocks: []ir.Block{
			{
				Handler:    ir.InvalidBlockID,
				Terminator: ir.EntryTo(1),
			},
			{
				Handler:      ir.InvalidBlockID,
				Stmts:        []ir.Stmt{{Kind: ir.StmtDefine, Local: 1}},
				Predecessors: []ir.BlockID{0},
				Terminator:   ir.JumpTo(2),
			},
			{
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 0},
				},
				Phis:         1,
				Predecessors: []ir.BlockID{1},
				Terminator:   ir.ReturnValue(0),
			},
		},
		Locals: []ir.RValue{
			ir.Phi(1),
			ir.ConstInt(7),
		},
	}

	out, err := Function(fn)
	require.NoError(t, err)
	ins := decodeAll(t, out.Code)
	// block0 (entry): Jmp. block1: LoadInt (local1), then a possible
	// phi copy, then Jmp. block2: Return. The phi itself (local0)
	// emits no instruction of its own.
	require.GreaterOrEqual(t, len(ins), 4)
	require.Equal(t, bytecode.OpJmp, ins[0].Op)
	require.Equal(t, bytecode.OpLoadInt, ins[1].Op)
	require.Equal(t, bytecode.OpJmp, ins[len(ins)-2].Op)
	require.Equal(t, bytecode.OpReturn, ins[len(ins)-1].Op)
}

func TestModuleProducesLinkObjectWithCanonicalItems(t *testing.T) {
	m := &ir.Module{
		Name: "main",
		TopLevel: []ir.TopLevelDef{
			{Kind: ir.TopLevelString, String: "greet"},
			{Kind: ir.TopLevelSymbol, Ref: 0},
			{Kind: ir.TopLevelFunction, FunctionIndex: 0},
		},
		Functions: []ir.Function{
			{
				Name:       ir.InvalidIrSymbolID,
				EntryBlock: 0,
				Kind:       ir.FunctionNormal,
				Blocks: []ir.Block{
					{
						Handler:    ir.InvalidBlockID,
						Stmts:      []ir.Stmt{{Kind: ir.StmtDefine, Local: 0}},
						Terminator: ir.ReturnValue(0),
					},
				},
				Locals: []ir.RValue{ir.ConstInt(1)},
			},
		},
		Exports: []ir.Export{{Symbol: 1, Value: 2}},
		Init:    ir.InvalidIrSymbolID,
	}

	obj, err := Module(m)
	require.NoError(t, err)
	require.Len(t, obj.Items, 3)
	require.Equal(t, bytecode.MemberString, obj.Items[0].Value.Kind)
	require.Equal(t, bytecode.MemberSymbol, obj.Items[1].Value.Kind)
	require.Equal(t, bytecode.MemberFunction, obj.Items[2].Value.Kind)
	require.EqualValues(t, 0, obj.Items[2].Value.Function, "the sole function's index into obj.Functions")
	require.Len(t, obj.Functions, 1)
	require.Len(t, obj.Exports, 1)
	require.EqualValues(t, 1, obj.Exports[0].Symbol)
	require.EqualValues(t, 2, obj.Exports[0].Value)
}
