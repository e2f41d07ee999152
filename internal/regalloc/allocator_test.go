package regalloc

import (
	"testing"

	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
)

// TestAllocateReusesDeadRegister builds a three-local function where
// both constants die at the point their sum is defined, and checks that
// the sum reuses local0's register instead of growing the frame
// (spec §4.5.3 step 3's reuse_dead_vars).
func TestAllocateReusesDeadRegister(t *testing.T) {
	fn := &ir.Function{
		EntryBlock: 0,
		Blocks: []ir.Block{
			{
				Handler:    ir.InvalidBlockID,
				Terminator: ir.EntryTo(1),
			},
			{
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 0},
					{Kind: ir.StmtDefine, Local: 1},
					{Kind: ir.StmtDefine, Local: 2},
				},
				Predecessors: []ir.BlockID{0},
				Terminator:   ir.ReturnValue(2),
			},
		},
		Locals: []ir.RValue{
			ir.ConstInt(1),
			ir.ConstInt(2),
			ir.Binary(ir.BinAdd, 0, 1),
		},
	}

	table := Allocate(fn)

	v0, v1, v2 := table.Get(0), table.Get(1), table.Get(2)
	if v0.Reg(0) != 0 {
		t.Fatalf("local0 = %s, want r0", v0)
	}
	if v1.Reg(0) != 1 {
		t.Fatalf("local1 = %s, want r1", v1)
	}
	if v2.Reg(0) != 0 {
		t.Fatalf("local2 = %s, want r0 (reused local0's dead register), got %s", v2, v2)
	}
	if table.TotalRegisters() != 2 {
		t.Fatalf("TotalRegisters() = %d, want 2", table.TotalRegisters())
	}
}

// TestAllocatePreallocatedSymbolBypassesFreshRegister checks the
// preallocation invariant of spec §4.5.2/§4.5.3: an ObserveAssign in a
// handler block reserves a permanent register for its symbol, and a
// PublishAssign anywhere in the function writes into that same
// location instead of allocating a fresh one.
func TestAllocatePreallocatedSymbolBypassesFreshRegister(t *testing.T) {
	const sym ir.SymbolID = 0

	fn := &ir.Function{
		EntryBlock: 0,
		Blocks: []ir.Block{
			{
				Handler:    ir.InvalidBlockID,
				Terminator: ir.EntryTo(1, 2),
			},
			{
				// Normal flow: const 5, then publish it into sym.
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 0},
					{Kind: ir.StmtDefine, Local: 1},
				},
				Predecessors: []ir.BlockID{0},
				Terminator:   ir.ReturnValue(1),
			},
			{
				// Handler block: observes sym at its top.
				Handler: ir.InvalidBlockID,
				Stmts: []ir.Stmt{
					{Kind: ir.StmtDefine, Local: 2},
				},
				Terminator: ir.ReturnValue(2),
			},
		},
		Locals: []ir.RValue{
			ir.ConstInt(5),
			ir.PublishAssign(sym, 0),
			ir.ObserveAssign(sym),
		},
	}

	table := Allocate(fn)

	if table.TotalRegisters() < 1 {
		t.Fatalf("TotalRegisters() = %d, want at least 1 for the preallocated symbol", table.TotalRegisters())
	}

	published := table.Get(1)
	if published.Size() != 1 || published.Reg(0) != 0 {
		t.Fatalf("PublishAssign result = %s, want the preallocated r0", published)
	}

	constLoc := table.Get(0)
	if constLoc.Reg(0) == published.Reg(0) {
		t.Fatalf("const value should not share the preallocated register, got %s", constLoc)
	}
	if constLoc.Reg(0) != bytecode.Register(1) {
		t.Fatalf("const value = %s, want r1 (first register above the preallocated range)", constLoc)
	}
}
