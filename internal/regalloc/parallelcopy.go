package regalloc

import "github.com/tiro-lang/tiro/internal/bytecode"

// SequentializeParallelCopies implements Algorithm 1 of Boissinot,
// Darte, Rastello, Dupont-de-Dinechin & Guillon (2008), "Revisiting
// Out-of-SSA Translation for Correctness, Code Quality, and
// Efficiency", with one corrected condition noted below (spec §4.6).
//
// copies is mutated in place: on return it holds a sequence of plain
// register moves that, executed top to bottom, reproduce the parallel
// semantics of the original copy set, including in the presence of
// cycles and chains. allocSpare is called at most once, lazily, only
// if a cycle requires a temporary register.
func SequentializeParallelCopies(copies *[]RegisterCopy, allocSpare func() bytecode.Register) {
	in := *copies

	filtered := in[:0]
	for _, c := range in {
		if c.Src != c.Dst {
			filtered = append(filtered, c)
		}
	}
	in = filtered
	if len(in) == 0 {
		*copies = in
		return
	}

	loc := make(map[bytecode.Register]bytecode.Register)
	pred := make(map[bytecode.Register]bytecode.Register)
	predSet := make(map[bytecode.Register]bool)
	var todo []bytecode.Register

	for _, c := range in {
		loc[c.Src] = c.Src
		pred[c.Dst] = c.Src
		predSet[c.Dst] = true
		todo = append(todo, c.Dst)
	}

	var ready []bytecode.Register
	readyOrTodo := make(map[bytecode.Register]bool)
	for _, c := range in {
		if _, ok := loc[c.Dst]; !ok {
			if !readyOrTodo[c.Dst] {
				ready = append(ready, c.Dst)
				readyOrTodo[c.Dst] = true
			}
		}
	}

	out := make([]RegisterCopy, 0, len(in)+1)
	var spare *bytecode.Register

	for len(todo) > 0 {
		for len(ready) > 0 {
			b := ready[len(ready)-1]
			ready = ready[:len(ready)-1]

			a := pred[b]
			c := loc[a]
			out = append(out, RegisterCopy{Src: c, Dst: b})
			loc[a] = b

			if a == c && predSet[a] {
				ready = append(ready, a)
			}
		}

		b := todo[len(todo)-1]
		todo = todo[:len(todo)-1]

		// The original paper's condition is inverted here: a cycle is
		// present iff b has not yet received its final value through
		// the loc chain rooted at its predecessor.
		if b != loc[pred[b]] {
			if spare == nil {
				s := allocSpare()
				spare = &s
			}
			out = append(out, RegisterCopy{Src: b, Dst: *spare})
			loc[b] = *spare
			ready = append(ready, b)
		}
	}

	*copies = out
}
