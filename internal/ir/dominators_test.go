package ir

import "testing"

// diamond builds: entry(0) -> branch(1) -> {then(2), else(3)} -> join(4)
func diamond() *Function {
	return &Function{
		EntryBlock: 0,
		Locals: []RValue{
			ConstBool(true), // 0: condition
			ConstInt(1),     // 1: then value
			ConstInt(2),     // 2: else value
			Phi(1, 2),       // 3: join phi
		},
		Blocks: []Block{
			{Handler: InvalidBlockID, Terminator: EntryTo(1)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{0},
				Stmts:      []Stmt{{Kind: StmtDefine, Local: 0}},
				Terminator: BranchOn(BranchIfTrue, 0, 2, 3)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{1},
				Stmts:      []Stmt{{Kind: StmtDefine, Local: 1}},
				Terminator: JumpTo(4)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{1},
				Stmts:      []Stmt{{Kind: StmtDefine, Local: 2}},
				Terminator: JumpTo(4)},
			{Handler: InvalidBlockID, Predecessors: []BlockID{2, 3}, Phis: 1,
				Stmts:      []Stmt{{Kind: StmtDefine, Local: 3}},
				Terminator: ReturnValue(3)},
		},
	}
}

func TestDominatorTreeDiamond(t *testing.T) {
	fn := diamond()
	d := NewDominatorTree(fn)
	d.Compute()

	if !d.Dominates(0, 4) {
		t.Error("entry should dominate join block")
	}
	if d.Dominates(2, 3) || d.Dominates(3, 2) {
		t.Error("then/else branches should not dominate each other")
	}

	kids := d.ImmediatelyDominated(1)
	if len(kids) != 3 {
		t.Fatalf("branch block should immediately dominate then/else/join, got %v", kids)
	}
	want := map[BlockID]bool{2: true, 3: true, 4: true}
	for _, k := range kids {
		if !want[k] {
			t.Errorf("unexpected immediate dominee %d", k)
		}
	}
}
