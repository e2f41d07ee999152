package regalloc

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/tiro-lang/tiro/internal/bytecode"
)

// context tracks, for one dominator-tree-preorder walk, which
// registers above the preallocated range are currently in use (spec
// §4.5.3's AllocContext). Registers below preallocated are never
// represented in occupied: they are reserved for the function's
// lifetime and both allocate_register and deallocate_register ignore
// them.
type context struct {
	preallocated uint32
	occupied     *bitset.BitSet
}

func newContext(preallocated uint32) *context {
	return &context{preallocated: preallocated, occupied: bitset.New(64)}
}

func (c *context) reset() {
	c.occupied.ClearAll()
}

func (c *context) toBitIndex(r bytecode.Register) uint {
	return uint(uint32(r) - c.preallocated)
}

func (c *context) fromBitIndex(i uint) bytecode.Register {
	return bytecode.Register(uint32(i) + c.preallocated)
}

func (c *context) setOccupiedReg(r bytecode.Register) {
	if uint32(r) < c.preallocated {
		return
	}
	c.occupied.Set(c.toBitIndex(r))
}

func (c *context) clearOccupiedReg(r bytecode.Register) {
	if uint32(r) < c.preallocated {
		return
	}
	c.occupied.Clear(c.toBitIndex(r))
}

func (c *context) setOccupied(loc Location) {
	for i := 0; i < loc.Size(); i++ {
		c.setOccupiedReg(loc.Reg(i))
	}
}

// getFresh returns the lowest-numbered free register above the
// preallocated range, marking it occupied (spec §4.5.3,
// "allocate_register").
func (c *context) getFresh() bytecode.Register {
	i := uint(0)
	for c.occupied.Test(i) {
		i++
	}
	c.occupied.Set(i)
	return c.fromBitIndex(i)
}

// snapshot returns an independent copy of this context, used when a
// phi link must remember the predecessor's allocation state for later
// spare-register allocation (spec §4.5.3 step 4, "PhiLink").
func (c *context) snapshot() *context {
	return &context{preallocated: c.preallocated, occupied: c.occupied.Clone()}
}
