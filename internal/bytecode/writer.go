package bytecode

import (
	"fmt"

	"github.com/tiro-lang/tiro/internal/binary"
)

// ModuleRef records a byte position in a function's code that holds a
// module reference awaiting the linker's patch (spec §4.7, §4.9 step
// 5). Member is the placeholder value written at Pos: before linking
// it names a LinkItem, not yet a final MemberID.
type ModuleRef struct {
	Pos    int
	Member MemberID
}

// rawHandler is a handler region before simplification: its target is
// still a Label, resolved to an Offset at Finish.
type rawHandler struct {
	from, to Offset
	target   Label
}

// FunctionWriter accumulates one Function's code buffer, tracking
// label definitions/references and module references for later
// patching (spec §4.4).
type FunctionWriter struct {
	w *binary.Writer

	labelDefs map[Label]Offset
	labelRefs []labelRef

	moduleRefs []ModuleRef

	raw []rawHandler

	activeHandler      Label
	activeHandlerStart Offset
	haveActiveHandler  bool
}

type labelRef struct {
	pos   int
	label Label
}

// NewFunctionWriter returns an empty FunctionWriter.
func NewFunctionWriter() *FunctionWriter {
	return &FunctionWriter{
		w:             binary.NewWriter(),
		labelDefs:     make(map[Label]Offset),
		activeHandler: InvalidLabel,
	}
}

// Pos returns the current code length, i.e. the offset the next
// instruction will be written at.
func (f *FunctionWriter) Pos() Offset {
	return Offset(f.w.Len())
}

// DefineLabel binds label to the current position. A label may be
// defined at most once; a second definition is an IR-contract
// violation (spec §4.4) and panics.
func (f *FunctionWriter) DefineLabel(label Label) {
	if _, ok := f.labelDefs[label]; ok {
		panic(fmt.Sprintf("bytecode: label %d defined twice", label))
	}
	f.labelDefs[label] = f.Pos()
}

// StartHandler marks the current position as the start of a region
// whose exceptions are handled by target's block, or closes the
// active handler region if target is InvalidLabel. A call with the
// same target as the currently active handler is a no-op, so that
// adjacent blocks sharing a handler do not produce spurious empty
// regions ahead of the deliberate merge pass in Finish (spec §4.4.1).
func (f *FunctionWriter) StartHandler(target Label) {
	if f.haveActiveHandler && f.activeHandler == target {
		return
	}
	f.closeActiveHandler()
	if target.Valid() {
		f.activeHandler = target
		f.activeHandlerStart = f.Pos()
		f.haveActiveHandler = true
	} else {
		f.haveActiveHandler = false
		f.activeHandler = InvalidLabel
	}
}

func (f *FunctionWriter) closeActiveHandler() {
	if !f.haveActiveHandler {
		return
	}
	end := f.Pos()
	if end != f.activeHandlerStart {
		f.raw = append(f.raw, rawHandler{from: f.activeHandlerStart, to: end, target: f.activeHandler})
	}
	f.haveActiveHandler = false
	f.activeHandler = InvalidLabel
}

// Write emits ins. Offset operands are interpreted as unresolved
// Labels and recorded for patching at Finish; MemberID operands are
// recorded as moduleRefs for the linker.
func (f *FunctionWriter) Write(ins Instruction) {
	offsetPos, memberPos := Encode(f.w, ins)
	if offsetPos >= 0 {
		f.labelRefs = append(f.labelRefs, labelRef{pos: offsetPos, label: ins.Label()})
	}
	if memberPos >= 0 {
		f.moduleRefs = append(f.moduleRefs, ModuleRef{Pos: memberPos, Member: ins.Member})
	}
}

// Finish closes any active handler, patches every labelRef slot with
// its label's definition offset, builds the handler table (running
// handler simplification, spec §4.4.1), and returns the finished code
// buffer alongside the moduleRefs the linker must patch.
//
// It is an error (panic, an IR-contract violation per spec §7) if any
// referenced label was never defined.
func (f *FunctionWriter) Finish() (code []byte, handlers []HandlerEntry, moduleRefs []ModuleRef) {
	f.closeActiveHandler()

	for _, ref := range f.labelRefs {
		target, ok := f.labelDefs[ref.label]
		if !ok {
			panic(fmt.Sprintf("bytecode: label %d used but never defined", ref.label))
		}
		f.w.OverwriteU32(ref.pos, uint32(target))
	}

	resolved := make([]HandlerEntry, 0, len(f.raw))
	for _, h := range f.raw {
		target, ok := f.labelDefs[h.target]
		if !ok {
			panic(fmt.Sprintf("bytecode: handler label %d used but never defined", h.target))
		}
		resolved = append(resolved, HandlerEntry{From: h.from, To: h.to, Target: target})
	}

	return f.w.Bytes(), simplifyHandlers(resolved), f.moduleRefs
}

// simplifyHandlers merges adjacent handler entries that share the
// same target and whose intervals abut (spec §4.4.1): a linear
// single-pass merge over entries that construction already produced
// in ascending `from` order.
func simplifyHandlers(entries []HandlerEntry) []HandlerEntry {
	if len(entries) == 0 {
		return entries
	}
	out := make([]HandlerEntry, 0, len(entries))
	cur := entries[0]
	for _, h := range entries[1:] {
		if h.Target == cur.Target && h.From == cur.To {
			cur.To = h.To
			continue
		}
		out = append(out, cur)
		cur = h
	}
	out = append(out, cur)
	return out
}
