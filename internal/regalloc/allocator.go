package regalloc

import (
	"fmt"

	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
)

// phiLink records a predecessor/successor edge whose phi operands
// still need their copy schedule built, deferred until every block
// has been colored (spec §4.5.3 step 4).
type phiLink struct {
	pred, succ ir.BlockID
	ctx        *context
}

type allocator struct {
	fn   *ir.Function
	doms *ir.DominatorTree
	live *ir.Liveness

	table *LocationTable

	preallocated uint32
	stack        []ir.BlockID
	phiLinks     []phiLink

	// phiSizes memoizes §4.5.1's recursive phi size resolution. 0 is
	// the sentinel for "resolution in progress", matching the
	// original algorithm's recursion-breaking trick.
	phiSizes map[ir.LocalID]uint32
}

// Allocate runs the greedy dominator-tree register allocator over fn
// and returns the resulting location table (spec §4.5).
func Allocate(fn *ir.Function) *LocationTable {
	doms := ir.NewDominatorTree(fn)
	doms.Compute()
	live := ir.NewLiveness(fn)
	live.Compute()

	a := &allocator{
		fn:       fn,
		doms:     doms,
		live:     live,
		table:    newLocationTable(fn.LocalCount()),
		phiSizes: make(map[ir.LocalID]uint32),
	}
	a.run()
	return a.table
}

func (a *allocator) run() {
	a.preallocateRegisters()

	a.stack = append(a.stack, a.fn.Entry())
	ctx := newContext(a.preallocated)
	for len(a.stack) > 0 {
		block := a.stack[len(a.stack)-1]
		a.stack = a.stack[:len(a.stack)-1]

		a.colorBlock(block, ctx)
		a.visitChildren(block)
	}

	for _, link := range a.phiLinks {
		a.implementPhiCopies(link.pred, link.succ, link.ctx)
	}
}

// preallocateRegisters scans handler-block ObserveAssign values and
// reserves a permanent register range for each distinct symbol at the
// bottom of the register file (spec §4.5.2).
func (a *allocator) preallocateRegisters() {
	var total uint32

	entry := a.fn.Block(a.fn.Entry())
	for _, handlerID := range entry.Terminator.Handlers {
		handler := a.fn.Block(handlerID)
		for _, stmt := range handler.Stmts {
			v := a.fn.Value(stmt.Local)
			if v.Kind != ir.RValueObserveAssign {
				continue
			}
			sym := v.Symbol
			if a.table.hasPreallocated(sym) {
				continue
			}

			size := a.sizeOf(stmt.Local)
			var regs [maxLocationSize]bytecode.Register
			for i := uint32(0); i < size; i++ {
				regs[i] = bytecode.Register(total)
				total++
			}
			loc := Location{regs: regs, size: int(size)}
			a.table.setPreallocated(sym, loc)
		}
	}

	a.table.totalRegisters = total
	a.preallocated = total
}

func (a *allocator) colorBlock(blockID ir.BlockID, ctx *context) {
	block := a.fn.Block(blockID)
	ctx.reset()

	a.occupyLiveIn(blockID, ctx)

	for i := 0; i < block.Phis; i++ {
		local := block.Stmts[i].Local
		loc := a.allocateRegisters(local, ctx)
		a.table.set(local, loc)
	}

	for i := block.Phis; i < len(block.Stmts); i++ {
		a.assignLocations(blockID, i, block.Stmts[i].Local, ctx)
	}

	for _, succ := range block.Terminator.Targets() {
		if a.fn.Block(succ).Phis > 0 {
			if block.Terminator.Kind != ir.TerminatorJump {
				panic("regalloc: phi operands can only move over plain jump edges")
			}
			a.phiLinks = append(a.phiLinks, phiLink{pred: blockID, succ: succ, ctx: ctx.snapshot()})
		}
	}
}

func (a *allocator) occupyLiveIn(blockID ir.BlockID, ctx *context) {
	for _, local := range a.live.LiveInValues(blockID) {
		ctx.setOccupied(a.table.Get(local))
	}
}

func (a *allocator) assignLocations(blockID ir.BlockID, stmtIndex int, local ir.LocalID, ctx *context) {
	needsDistinct := a.needsDistinctRegister(local)

	reuseDeadVars := func() {
		a.fn.VisitUses(local, func(v ir.LocalID) {
			if a.live.LastUse(v, blockID, stmtIndex) {
				a.deallocateRegisters(v, a.table.Get(v), ctx)
			}
		})
	}

	if !needsDistinct {
		reuseDeadVars()
	}

	loc := a.allocateRegisters(local, ctx)
	a.table.set(local, loc)

	if a.live.Dead(local) {
		a.deallocateRegisters(local, loc, ctx)
	}

	if needsDistinct {
		reuseDeadVars()
	}
}

func (a *allocator) implementPhiCopies(predID, succID ir.BlockID, ctx *context) {
	succ := a.fn.Block(succID)
	if succ.Phis == 0 {
		return
	}

	predIndex := -1
	for i, p := range succ.Predecessors {
		if p == predID {
			predIndex = i
			break
		}
	}
	if predIndex < 0 {
		panic("regalloc: failed to find predecessor block in successor")
	}

	var copies []RegisterCopy
	for i := 0; i < succ.Phis; i++ {
		phiLocal := succ.Stmts[i].Local
		sourceLocal := a.fn.PhiOperand(phiLocal, predIndex)

		sourceLoc := a.table.Get(sourceLocal)
		destLoc := a.table.Get(phiLocal)
		if sourceLoc.Size() != destLoc.Size() {
			panic("regalloc: phi operand and destination locations must have the same size")
		}

		ctx.setOccupied(sourceLoc)
		ctx.setOccupied(destLoc)

		for i := 0; i < sourceLoc.Size(); i++ {
			if sourceLoc.Reg(i) != destLoc.Reg(i) {
				copies = append(copies, RegisterCopy{Src: sourceLoc.Reg(i), Dst: destLoc.Reg(i)})
			}
		}
	}

	SequentializeParallelCopies(&copies, func() bytecode.Register { return a.allocateRegister(ctx) })
	a.table.phiCopies[predID] = copies
}

func (a *allocator) visitChildren(parent ir.BlockID) {
	start := len(a.stack)
	for _, child := range a.doms.ImmediatelyDominated(parent) {
		a.stack = append(a.stack, child)
	}
	for l, r := start, len(a.stack)-1; l < r; l, r = l+1, r-1 {
		a.stack[l], a.stack[r] = a.stack[r], a.stack[l]
	}
}

func (a *allocator) allocateRegisters(local ir.LocalID, ctx *context) Location {
	if sym, ok := a.checkPreallocated(local); ok {
		return a.table.getPreallocated(sym)
	}

	size := a.sizeOf(local)
	switch size {
	case 0:
		return NoLocation
	case 1:
		return oneRegister(a.allocateRegister(ctx))
	case 2:
		r0 := a.allocateRegister(ctx)
		r1 := a.allocateRegister(ctx)
		return twoRegisters(r0, r1)
	default:
		panic(fmt.Sprintf("regalloc: unsupported location size %d", size))
	}
}

func (a *allocator) deallocateRegisters(local ir.LocalID, loc Location, ctx *context) {
	if _, ok := a.checkPreallocated(local); ok {
		return
	}
	for i := 0; i < loc.Size(); i++ {
		a.deallocateRegister(loc.Reg(i), ctx)
	}
}

func (a *allocator) allocateRegister(ctx *context) bytecode.Register {
	reg := ctx.getFresh()
	if uint32(reg)+1 > a.table.totalRegisters {
		a.table.totalRegisters = uint32(reg) + 1
	}
	return reg
}

func (a *allocator) deallocateRegister(reg bytecode.Register, ctx *context) {
	ctx.clearOccupiedReg(reg)
}

// checkPreallocated reports whether local is a PublishAssign write,
// whose destination is its symbol's preallocated location rather than
// a freshly allocated one (spec §4.5.3, "Allocate & deallocate for a
// value").
func (a *allocator) checkPreallocated(local ir.LocalID) (ir.SymbolID, bool) {
	v := a.fn.Value(local)
	if v.Kind == ir.RValuePublishAssign {
		return v.Symbol, true
	}
	return 0, false
}

// needsDistinctRegister reports whether local's defining instruction
// lowers to multiple bytecode instructions that would clobber their
// own inputs if the result shared a register with an operand (spec
// §4.5.3 step 3).
func (a *allocator) needsDistinctRegister(local ir.LocalID) bool {
	switch a.fn.Value(local).Kind {
	case ir.RValueFormat, ir.RValueRecord:
		return true
	default:
		return false
	}
}

// sizeOf resolves the register-size rule of spec §4.5.1.
func (a *allocator) sizeOf(local ir.LocalID) uint32 {
	v := a.fn.Value(local)
	switch v.Kind {
	case ir.RValueWrite, ir.RValueGetAggregateMember,
		ir.RValueStoreParam, ir.RValueStoreModule, ir.RValueStoreMember,
		ir.RValueStoreTupleMember, ir.RValueStoreIndex, ir.RValueStoreEnv:
		return 0
	case ir.RValueAggregate:
		return v.Aggregate.Size()
	case ir.RValueLoadMethod, ir.RValueIteratorNext:
		return 2
	case ir.RValuePhi:
		if size, ok := a.phiSizes[local]; ok {
			if size == 0 {
				// In-progress sentinel: this recursive call is part
				// of the cycle that will resolve the size. The
				// operand loop below skips in-progress phis, so this
				// 0 never takes part in a size comparison; the outer
				// call stores the real size once operands settle.
				return 0
			}
			return size
		}
		if len(v.Operands) == 0 {
			return 0
		}
		a.phiSizes[local] = 0
		var resolved uint32
		haveResolved := false
		for _, operand := range v.Operands {
			if size, ok := a.phiSizes[operand]; ok && size == 0 {
				// A phi still being resolved further up the
				// recursion takes the size the other operands have.
				continue
			}
			opSize := a.sizeOfRealized(operand)
			if !haveResolved {
				resolved = opSize
				haveResolved = true
			} else if resolved != opSize {
				panic("regalloc: phi operands must not resolve to different sizes")
			}
		}
		a.phiSizes[local] = resolved
		return resolved
	default:
		return 1
	}
}

// sizeOfRealized is sizeOf, except that a GetAggregateMember resolves
// to the size of the specific sub-register it aliases rather than 0,
// matching the original's "realized" size used only when resolving
// phi operand sizes.
func (a *allocator) sizeOfRealized(local ir.LocalID) uint32 {
	v := a.fn.Value(local)
	if v.Kind == ir.RValueGetAggregateMember {
		return 1
	}
	return a.sizeOf(local)
}
