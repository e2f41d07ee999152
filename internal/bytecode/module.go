package bytecode

import "fmt"

// HandlerEntry is one row of a Function's handler table (spec §3.4):
// exceptions raised by code in [From, To) are handled by the block
// starting at Target. Entries are non-overlapping and sorted by From.
type HandlerEntry struct {
	From, To, Target Offset
}

// FunctionKind distinguishes ordinary functions from closures (spec
// §3.4, §4.9.1's function ordering rule).
type FunctionKind int

const (
	FunctionNormal FunctionKind = iota
	FunctionClosure
)

func (k FunctionKind) String() string {
	if k == FunctionClosure {
		return "Closure"
	}
	return "Normal"
}

// Function is the finished, position-independent record of one
// compiled function (spec §3.4). Its Code still contains MemberID
// placeholders wherever ReferencesModule holds for the instruction at
// that offset; Refs names the byte position and referenced member for
// each, for the linker to patch (spec §4.7, §4.9 step 5).
type Function struct {
	Name       MemberID // InvalidMemberID if anonymous
	Kind       FunctionKind
	ParamCount uint32
	LocalCount uint32
	Code       []byte
	Handlers   []HandlerEntry
	Refs       []ModuleRef
}

// MemberKind tags the variant held by a Member (spec §3.3).
type MemberKind int

const (
	MemberInteger MemberKind = iota
	MemberFloat
	MemberString
	MemberSymbol
	MemberImport
	MemberVariable
	MemberFunction
	MemberRecordSchema
)

func (k MemberKind) String() string {
	switch k {
	case MemberInteger:
		return "Integer"
	case MemberFloat:
		return "Float"
	case MemberString:
		return "String"
	case MemberSymbol:
		return "Symbol"
	case MemberImport:
		return "Import"
	case MemberVariable:
		return "Variable"
	case MemberFunction:
		return "Function"
	case MemberRecordSchema:
		return "RecordSchema"
	default:
		return "MemberKind(?)"
	}
}

// typeOrder is the fixed enum order §4.9.1 sorts members by:
// Integer < Float < String < Symbol < Import < Variable < RecordSchema < Function.
func (k MemberKind) typeOrder() int {
	switch k {
	case MemberInteger:
		return 0
	case MemberFloat:
		return 1
	case MemberString:
		return 2
	case MemberSymbol:
		return 3
	case MemberImport:
		return 4
	case MemberVariable:
		return 5
	case MemberRecordSchema:
		return 6
	case MemberFunction:
		return 7
	default:
		return 8
	}
}

// TypeOrder exposes typeOrder to internal/link's canonical comparator
// (spec §4.9.1), which lives outside this package.
func (k MemberKind) TypeOrder() int { return k.typeOrder() }

// Member is a flat tagged union over the eight kinds a module slot may
// hold (spec §3.3), following the same rationale as Instruction: one
// generic record rather than eight boxed types.
type Member struct {
	Kind MemberKind

	Int    int64       // Integer
	Float  float64     // Float
	String StringHandle // String

	Name MemberID // Symbol.name, Import.moduleName, Variable.name: MemberId -> String

	Function FunctionID     // Function
	Schema   RecordSchemaID // RecordSchema
}

// StringHandle is an interned-string handle, opaque outside the
// module's string table (spec §3.2, §4.9 step 6).
type StringHandle uint32

func Integer(v int64) Member  { return Member{Kind: MemberInteger, Int: v} }
func Float64(v float64) Member { return Member{Kind: MemberFloat, Float: v} }
func StringMember(h StringHandle) Member { return Member{Kind: MemberString, String: h} }
func Symbol(name MemberID) Member   { return Member{Kind: MemberSymbol, Name: name} }
func Import(moduleName MemberID) Member { return Member{Kind: MemberImport, Name: moduleName} }
func Variable(name MemberID) Member { return Member{Kind: MemberVariable, Name: name} }
func FunctionMember(id FunctionID) Member    { return Member{Kind: MemberFunction, Function: id} }
func RecordSchemaMember(id RecordSchemaID) Member { return Member{Kind: MemberRecordSchema, Schema: id} }

func (m Member) String() string {
	switch m.Kind {
	case MemberInteger:
		return fmt.Sprintf("Integer(%d)", m.Int)
	case MemberFloat:
		return fmt.Sprintf("Float(%g)", m.Float)
	case MemberString:
		return fmt.Sprintf("String(%d)", m.String)
	case MemberSymbol:
		return fmt.Sprintf("Symbol(name=%d)", m.Name)
	case MemberImport:
		return fmt.Sprintf("Import(moduleName=%d)", m.Name)
	case MemberVariable:
		return fmt.Sprintf("Variable(name=%d)", m.Name)
	case MemberFunction:
		return fmt.Sprintf("Function(%d)", m.Function)
	case MemberRecordSchema:
		return fmt.Sprintf("RecordSchema(%d)", m.Schema)
	default:
		return "Member(?)"
	}
}

// RecordSchema is an ordered set of Symbol MemberIds serving as a
// record type's field names (spec §3.2, §3.4).
type RecordSchema struct {
	Keys []MemberID
}

// Export pairs an exported name (a Symbol member) with the member it
// names (spec §3.2).
type Export struct {
	Symbol MemberID
	Value  MemberID
}

// Module is the finished, linked, verifiable unit of compilation
// (spec §3.2). All ID-indexed slices use the slice index as the ID:
// Members[i] is the Member for MemberID(i), and so on.
type Module struct {
	Name string

	Members       []Member
	Functions     []Function
	RecordSchemas []RecordSchema

	// Exports is sorted by Symbol and contains unique symbols (spec
	// §3.2, §4.9 step 7).
	Exports []Export

	// Init names a Normal function run on module load, or
	// InvalidMemberID if the module has none.
	Init MemberID

	Strings StringTable
}

// StringTable is the module-local table of interned string contents,
// distinct from Members (spec §3.2): a Member of kind String holds a
// StringHandle into this table, not the bytes directly.
type StringTable struct {
	values []string
}

// NewStringTable returns an empty table.
func NewStringTable() *StringTable { return &StringTable{} }

// Intern returns the handle for s, appending a new entry if s has not
// been seen before in this table.
func (t *StringTable) Intern(s string) StringHandle {
	for i, v := range t.values {
		if v == s {
			return StringHandle(i)
		}
	}
	t.values = append(t.values, s)
	return StringHandle(len(t.values) - 1)
}

// Lookup returns the string content for h.
func (t *StringTable) Lookup(h StringHandle) (string, bool) {
	i := int(h)
	if i < 0 || i >= len(t.values) {
		return "", false
	}
	return t.values[i], true
}

// Len reports how many distinct strings are interned.
func (t *StringTable) Len() int { return len(t.values) }
