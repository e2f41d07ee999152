package ir

import "math"

// TopLevelKind tags the variant held by a TopLevelDef: the minimal set
// of module-scope definitions a function's RValues may reference by
// IrSymbolId (spec §3.3's Member variants, minus Integer/Float which
// are always inlined as immediate operands).
type TopLevelKind int

const (
	TopLevelString TopLevelKind = iota
	// TopLevelSymbol, TopLevelImport and TopLevelVariable all name a
	// String def via Ref.
	TopLevelSymbol
	TopLevelImport
	TopLevelVariable
	// TopLevelFunction names an entry of Module.Functions via
	// FunctionIndex.
	TopLevelFunction
	// TopLevelRecordSchema lists field names as Symbol IrSymbolIds.
	TopLevelRecordSchema
)

// TopLevelDef is one module-scope definition, addressed by its index
// in Module.TopLevel (its IrSymbolId). RValues that reference module
// members (RValueLoadModule, RValueLoadMember's name, ...) carry that
// index in their Ref field; internal/lower turns each TopLevelDef into
// a link.LinkItem Definition.
type TopLevelDef struct {
	Kind TopLevelKind

	// String is TopLevelString's content.
	String string

	// Ref is TopLevelSymbol/TopLevelImport/TopLevelVariable's IrSymbolId
	// of the TopLevelString def naming them.
	Ref uint32

	// FunctionIndex is TopLevelFunction's index into Module.Functions.
	FunctionIndex uint32

	// Keys is TopLevelRecordSchema's field names, as IrSymbolIds of
	// TopLevelSymbol defs, in declaration order (the linker sorts them
	// into canonical order after renaming).
	Keys []uint32
}

const InvalidIrSymbolID uint32 = math.MaxUint32

// Export pairs a module-scope symbol with the value it exports, both
// named by IrSymbolId.
type Export struct {
	Symbol uint32
	Value  uint32
}

// Module is the SSA-form input to a full compilation: a name, its
// functions, and the flat pool of module-scope definitions its
// functions' RValues may reference (spec §3.2, §3.3).
type Module struct {
	Name string

	Functions []Function
	TopLevel  []TopLevelDef
	Exports   []Export

	// Init is the IrSymbolId of the TopLevelFunction def to run at
	// module load, or InvalidIrSymbolID for none.
	Init uint32
}
