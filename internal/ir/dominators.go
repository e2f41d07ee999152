package ir

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// DominatorTree computes and answers immediate-dominance queries over
// a Function's control-flow graph, using the iterative algorithm of
// Cooper, Harvey & Kennedy ("A Simple, Fast Dominance Algorithm"),
// which converges quickly on the small, mostly-structured CFGs this
// compiler produces.
type DominatorTree struct {
	fn *Function

	postorder   []BlockID
	postorderOf map[BlockID]int

	idom     map[BlockID]BlockID
	children map[BlockID][]BlockID
}

// NewDominatorTree allocates an uncomputed tree for fn; call Compute
// before querying it.
func NewDominatorTree(fn *Function) *DominatorTree {
	return &DominatorTree{
		fn:          fn,
		postorderOf: make(map[BlockID]int),
		idom:        make(map[BlockID]BlockID),
		children:    make(map[BlockID][]BlockID),
	}
}

// Compute runs the dominance fixpoint. It must be called once before
// any query.
func (d *DominatorTree) Compute() {
	entry := d.fn.Entry()

	visited := make(map[BlockID]bool)
	var walk func(b BlockID)
	walk = func(b BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, succ := range d.fn.Block(b).Terminator.Targets() {
			walk(succ)
		}
		d.postorder = append(d.postorder, b)
	}
	walk(entry)
	for i, b := range d.postorder {
		d.postorderOf[b] = i
	}

	d.idom[entry] = entry
	changed := true
	for changed {
		changed = false
		for i := len(d.postorder) - 2; i >= 0; i-- {
			b := d.postorder[i]
			var newIdom BlockID
			haveIdom := false
			for _, pred := range d.fn.Block(b).Predecessors {
				if _, ok := d.idom[pred]; !ok {
					continue
				}
				if !haveIdom {
					newIdom = pred
					haveIdom = true
					continue
				}
				newIdom = d.intersect(newIdom, pred)
			}
			if !haveIdom {
				continue
			}
			if cur, ok := d.idom[b]; !ok || cur != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}

	for b, p := range d.idom {
		if b == entry {
			continue
		}
		d.children[p] = append(d.children[p], b)
	}
}

func (d *DominatorTree) intersect(a, b BlockID) BlockID {
	for a != b {
		for d.postorderOf[a] < d.postorderOf[b] {
			a = d.idom[a]
		}
		for d.postorderOf[b] < d.postorderOf[a] {
			b = d.idom[b]
		}
	}
	return a
}

// ImmediatelyDominated returns the blocks whose immediate dominator is
// parent, in ascending BlockID order (spec §4.5.3: "children pushed in
// reverse to preserve left-to-right intent" — the caller is
// responsible for that reversal; this just fixes a stable base order).
func (d *DominatorTree) ImmediatelyDominated(parent BlockID) []BlockID {
	kids := append([]BlockID(nil), d.children[parent]...)
	for i := 1; i < len(kids); i++ {
		for j := i; j > 0 && kids[j-1] > kids[j]; j-- {
			kids[j-1], kids[j] = kids[j], kids[j-1]
		}
	}
	return kids
}

// String renders the dominator tree rooted at the function's entry
// block, for use in test failures and debug logging.
func (d *DominatorTree) String() string {
	entry := d.fn.Entry()
	tree := treeprint.NewWithRoot(fmt.Sprintf("block%d", entry))
	var add func(node treeprint.Tree, parent BlockID)
	add = func(node treeprint.Tree, parent BlockID) {
		for _, child := range d.ImmediatelyDominated(parent) {
			add(node.AddBranch(fmt.Sprintf("block%d", child)), child)
		}
	}
	add(tree, entry)
	return tree.String()
}

// Dominates reports whether a dominates b (reflexive).
func (d *DominatorTree) Dominates(a, b BlockID) bool {
	for b != a {
		next, ok := d.idom[b]
		if !ok || next == b {
			return false
		}
		b = next
	}
	return true
}
