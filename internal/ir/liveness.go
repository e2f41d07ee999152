package ir

import "sort"

type useSite struct {
	block BlockID
	index int
}

// Liveness answers the live-in and last-use queries the register
// allocator needs (spec §4.5, "dominator tree, liveness"). Phi
// operands are deliberately excluded from use tracking here: the
// allocator accounts for their liveness explicitly while building phi
// copy schedules (spec §4.5.3 step 4, §4.5.4), not through general
// liveness.
type Liveness struct {
	fn *Function

	liveIn  []map[LocalID]bool
	liveOut []map[LocalID]bool

	// uses records every (block, Stmts index) at which a value is read;
	// a terminator's own operand uses are recorded at index
	// len(Stmts), after every statement in the block.
	uses     map[LocalID][]useSite
	useCount map[LocalID]int
}

// NewLiveness allocates an uncomputed analysis for fn; call Compute
// before querying it.
func NewLiveness(fn *Function) *Liveness {
	return &Liveness{
		fn:       fn,
		liveIn:   make([]map[LocalID]bool, len(fn.Blocks)),
		liveOut:  make([]map[LocalID]bool, len(fn.Blocks)),
		uses:     make(map[LocalID][]useSite),
		useCount: make(map[LocalID]int),
	}
}

// Compute runs the iterative backward dataflow fixpoint and records
// per-value use sites. It must be called once before any query.
func (lv *Liveness) Compute() {
	n := len(lv.fn.Blocks)
	blockUses := make([]map[LocalID]bool, n)
	blockDefs := make([]map[LocalID]bool, n)

	for i := range lv.fn.Blocks {
		b := &lv.fn.Blocks[i]
		blockUses[i] = make(map[LocalID]bool)
		blockDefs[i] = make(map[LocalID]bool)

		recordUse := func(v LocalID, index int) {
			if !v.Valid() {
				return
			}
			if !blockDefs[i][v] {
				blockUses[i][v] = true
			}
			lv.uses[v] = append(lv.uses[v], useSite{block: BlockID(i), index: index})
			lv.useCount[v]++
		}

		for si, stmt := range b.Stmts {
			if si >= b.Phis {
				lv.fn.VisitUses(stmt.Local, func(v LocalID) { recordUse(v, si) })
			}
			blockDefs[i][stmt.Local] = true
		}

		term := b.Terminator
		termIndex := len(b.Stmts)
		switch term.Kind {
		case TerminatorBranch:
			recordUse(term.Cond, termIndex)
		case TerminatorReturn:
			recordUse(term.Value, termIndex)
		case TerminatorAssertFail:
			recordUse(term.Expr, termIndex)
			recordUse(term.Msg, termIndex)
		}

		lv.liveIn[i] = make(map[LocalID]bool)
		lv.liveOut[i] = make(map[LocalID]bool)
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			b := &lv.fn.Blocks[i]
			out := make(map[LocalID]bool)
			for _, succ := range b.Terminator.Targets() {
				for v := range lv.liveIn[succ] {
					out[v] = true
				}
			}

			in := make(map[LocalID]bool, len(blockUses[i])+len(out))
			for v := range blockUses[i] {
				in[v] = true
			}
			for v := range out {
				if !blockDefs[i][v] {
					in[v] = true
				}
			}

			if !mapsEqual(in, lv.liveIn[i]) || !mapsEqual(out, lv.liveOut[i]) {
				lv.liveIn[i] = in
				lv.liveOut[i] = out
				changed = true
			}
		}
	}
}

func mapsEqual(a, b map[LocalID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// LiveInValues returns, in ascending LocalID order for determinism,
// the values live at the start of block.
func (lv *Liveness) LiveInValues(block BlockID) []LocalID {
	set := lv.liveIn[block]
	out := make([]LocalID, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LastUse reports whether the use of value at (block, stmtIndex) is
// its last use: the highest-indexed use of value within block, and
// value does not survive past block (it is not in block's live-out
// set).
func (lv *Liveness) LastUse(value LocalID, block BlockID, stmtIndex int) bool {
	if lv.liveOut[block][value] {
		return false
	}
	maxIndex := -1
	for _, site := range lv.uses[value] {
		if site.block == block && site.index > maxIndex {
			maxIndex = site.index
		}
	}
	return maxIndex == stmtIndex
}

// Dead reports whether value is never used anywhere in the function.
func (lv *Liveness) Dead(value LocalID) bool {
	return lv.useCount[value] == 0
}
