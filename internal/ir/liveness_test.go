package ir

import "testing"

func TestLivenessDiamondCrossesBranch(t *testing.T) {
	// entry(0) -> branch(1) [defines cond=0, a=1] -> then(2) [uses a in a Binary]
	//                                             -> else(3) [returns a]
	fn := &Function{
		EntryBlock: 0,
		Locals: []RValue{
			ConstBool(true),      // 0: cond, defined in block 1
			ConstInt(10),         // 1: "a", defined in block 1 before branching
			Binary(BinAdd, 1, 1), // 2: used in then-block
		},
		Blocks: []Block{
			{Handler: InvalidBlockID, Terminator: EntryTo(1)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{0},
				Stmts: []Stmt{
					{Kind: StmtDefine, Local: 0},
					{Kind: StmtDefine, Local: 1},
				},
				Terminator: BranchOn(BranchIfTrue, 0, 2, 3)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{1},
				Stmts:      []Stmt{{Kind: StmtDefine, Local: 2}},
				Terminator: ReturnValue(2)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{1},
				Terminator: ReturnValue(1)},
		},
	}

	lv := NewLiveness(fn)
	lv.Compute()

	liveIn2 := lv.LiveInValues(2)
	if !containsLocal(liveIn2, 1) {
		t.Errorf("value 1 (a) should be live-in to the then-block, got %v", liveIn2)
	}

	if !lv.LastUse(1, 2, 0) {
		t.Error("local 1's use inside block 2's Binary should be its last use")
	}
	if !lv.LastUse(1, 3, len(fn.Blocks[3].Stmts)) {
		t.Error("local 1's use as block 3's return value should be its last use")
	}
}

func TestLivenessDeadValue(t *testing.T) {
	fn := &Function{
		EntryBlock: 0,
		Locals: []RValue{
			ConstInt(1), // 0: never used
		},
		Blocks: []Block{
			{Handler: InvalidBlockID, Terminator: EntryTo(1)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{0},
				Stmts:      []Stmt{{Kind: StmtDefine, Local: 0}},
				Terminator: ReturnValue(InvalidLocalID)},
		},
	}

	lv := NewLiveness(fn)
	lv.Compute()

	if !lv.Dead(0) {
		t.Error("value 0 is never referenced and should be dead")
	}
}

func containsLocal(xs []LocalID, v LocalID) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
