// Package link implements the module linker (spec §4.8, §4.9): it
// merges one or more LinkObjects produced by internal/lower into a
// single bytecode.Module, assigning every member a dense, canonically
// ordered MemberID and patching every reference to match.
package link

import "github.com/tiro-lang/tiro/internal/bytecode"

// LinkItemKind tags the variant held by a LinkItem.
type LinkItemKind int

const (
	// LinkDefinition introduces a module member. IrID names the
	// IrSymbolId it corresponds to, or ir.InvalidIrSymbolID if the
	// member has no stable IR identity (e.g. a record schema's
	// canonicalized key list needs none beyond the schema itself).
	LinkDefinition LinkItemKind = iota
	// LinkUse references a module member defined elsewhere in the IR
	// module, identified by IrSymbolId, without requiring that member's
	// Definition to already exist in this LinkObject (spec §4.8).
	LinkUse
)

// LinkItem is one indexed entry of a LinkObject's item list. Its index
// within LinkObject.Items is the linkItemId that pre-link Member/
// RecordSchema/Export/function-code fields use as a placeholder
// MemberID (spec §4.8).
type LinkItem struct {
	Kind LinkItemKind

	// IrID is Definition's IrSymbolId, or ir.InvalidIrSymbolID.
	IrID uint32
	// Value is Definition's member value.
	Value bytecode.Member

	// Target is Use's referenced IrSymbolId.
	Target uint32
}

// Export pairs a symbol link item with the value link item it exports,
// both named by their index within the same LinkObject (spec §4.8).
type Export struct {
	Symbol, Value uint32
}

// LinkObject is the per-compilation-unit output of lowering: an
// indexed item list, the functions and record schemas those items may
// reference, an exports list, and the string contents those items'
// String definitions intern (spec §4.8).
type LinkObject struct {
	Items         []LinkItem
	Functions     []bytecode.Function
	RecordSchemas []bytecode.RecordSchema
	Exports       []Export
	Strings       bytecode.StringTable
}

// NewLinkObject returns an empty LinkObject ready for lowering to
// append to.
func NewLinkObject() *LinkObject {
	return &LinkObject{}
}
