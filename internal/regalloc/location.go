// Package regalloc implements the greedy dominator-tree register
// allocator and the parallel-copy sequentializer used to resolve phi
// nodes into ordinary register moves (spec §4.5, §4.6).
package regalloc

import (
	"fmt"

	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
)

// maxLocationSize is the largest number of registers any single SSA
// value can occupy (spec §4.5.1: aggregates of size 1 or 2).
const maxLocationSize = 2

// Location is the set of contiguous registers assigned to one SSA
// value: 0 registers for aliases (Write, GetAggregateMember) and pure
// stores, 1 for ordinary values, or 2 for a two-register aggregate (a
// method handle, or IteratorNext's (valid, value) pair).
type Location struct {
	regs [maxLocationSize]bytecode.Register
	size int
}

// NoLocation is the zero-register alias location.
var NoLocation = Location{}

func oneRegister(r bytecode.Register) Location {
	return Location{regs: [maxLocationSize]bytecode.Register{r}, size: 1}
}

func twoRegisters(a, b bytecode.Register) Location {
	return Location{regs: [maxLocationSize]bytecode.Register{a, b}, size: 2}
}

// Size reports how many registers this location occupies.
func (l Location) Size() int { return l.size }

// Reg returns the i-th register of this location.
func (l Location) Reg(i int) bytecode.Register { return l.regs[i] }

func (l Location) String() string {
	switch l.size {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("r%d", l.regs[0])
	default:
		return fmt.Sprintf("(r%d,r%d)", l.regs[0], l.regs[1])
	}
}

// Equal reports whether two locations name the same registers.
func (l Location) Equal(other Location) bool {
	if l.size != other.size {
		return false
	}
	for i := 0; i < l.size; i++ {
		if l.regs[i] != other.regs[i] {
			return false
		}
	}
	return true
}

// RegisterCopy is one (source, destination) register move, one per
// underlying register of a phi copy (spec §4.5.4).
type RegisterCopy struct {
	Src, Dst bytecode.Register
}

// LocationTable maps every SSA value in a function to its assigned
// Location, records the total register count used, and the
// per-predecessor phi copy schedule the lowering pass replays as
// Copy instructions (spec §4.5, §4.7 step 3).
type LocationTable struct {
	locations []Location
	phiCopies map[ir.BlockID][]RegisterCopy

	preallocated     map[ir.SymbolID]Location
	totalRegisters   uint32
	preallocatedSize uint32
}

func newLocationTable(localCount int) *LocationTable {
	return &LocationTable{
		locations:    make([]Location, localCount),
		phiCopies:    make(map[ir.BlockID][]RegisterCopy),
		preallocated: make(map[ir.SymbolID]Location),
	}
}

// Get returns the location assigned to value.
func (t *LocationTable) Get(value ir.LocalID) Location { return t.locations[value] }

func (t *LocationTable) set(value ir.LocalID, loc Location) { t.locations[value] = loc }

// TotalRegisters reports the number of physical registers the
// function's frame requires.
func (t *LocationTable) TotalRegisters() uint32 { return t.totalRegisters }

// PhiCopies returns the Copy schedule to emit at the end of pred, for
// the Jump edge leaving it (spec §4.7 step 3). Empty if pred has no
// successor with phis.
func (t *LocationTable) PhiCopies(pred ir.BlockID) []RegisterCopy { return t.phiCopies[pred] }

func (t *LocationTable) setPreallocated(sym ir.SymbolID, loc Location) {
	t.preallocated[sym] = loc
}

func (t *LocationTable) hasPreallocated(sym ir.SymbolID) bool {
	_, ok := t.preallocated[sym]
	return ok
}

func (t *LocationTable) getPreallocated(sym ir.SymbolID) Location {
	return t.preallocated[sym]
}
