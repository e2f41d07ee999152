// Package ir defines the frozen, already-constructed SSA intermediate
// representation that the register allocator and lowering passes
// consume. It does not build this representation from source — that
// is the job of an upstream compiler stage this package only
// describes the shape of. What lives here is deliberately the minimal
// surface those two consumers need: blocks, instructions, terminators,
// a dominator tree, and liveness queries.
package ir

import "math"

// BlockID identifies a basic block within a Function.
type BlockID uint32

const InvalidBlockID BlockID = math.MaxUint32

func (b BlockID) Valid() bool { return b != InvalidBlockID }

// LocalID identifies one SSA value within a Function.
type LocalID uint32

const InvalidLocalID LocalID = math.MaxUint32

func (l LocalID) Valid() bool { return l != InvalidLocalID }

// SymbolID identifies a captured/observed variable binding, used by
// ObserveAssign and PublishAssign to correlate preallocated registers
// across a function's handler blocks (spec §4.5.2).
type SymbolID uint32

const InvalidSymbolID SymbolID = math.MaxUint32

func (s SymbolID) Valid() bool { return s != InvalidSymbolID }

// AggregateKind names the shape of a multi-register SSA value (spec
// §4.5.1).
type AggregateKind int

const (
	// AggregateMethodHandle is the (instance, function) pair produced
	// by a method lookup; it occupies 2 registers.
	AggregateMethodHandle AggregateKind = iota
)

// Size reports how many registers a value of this aggregate kind
// occupies.
func (k AggregateKind) Size() uint32 {
	switch k {
	case AggregateMethodHandle:
		return 2
	default:
		return 1
	}
}

// BinaryOp names a two-operand arithmetic/comparison/bitwise
// computation; it maps directly onto the matching bytecode opcode
// group during lowering.
type BinaryOp int

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow
	BinLSh
	BinRSh
	BinBAnd
	BinBOr
	BinBXor
	BinGt
	BinGte
	BinLt
	BinLte
	BinEq
	BinNEq
)

// UnaryOp names a one-operand computation.
type UnaryOp int

const (
	UnUAdd UnaryOp = iota
	UnUNeg
	UnBNot
	UnLNot
)

// ContainerKind names which container constructor a Container RValue
// builds from its operand list.
type ContainerKind int

const (
	ContainerArray ContainerKind = iota
	ContainerTuple
	ContainerSet
	ContainerMap
)

// RValueKind tags the variant held by an RValue.
type RValueKind int

const (
	// RValueUse is a trivial reference to another already-defined
	// local; it requires its own register like any other value
	// (unlike Write/GetAggregateMember, which are pure aliases).
	RValueUse RValueKind = iota
	RValueConstInt
	RValueConstFloat
	RValueConstBool
	RValueConstNull
	RValueBinaryOp
	RValueUnaryOp
	RValueContainer
	RValueCall
	RValueMethodCall
	RValueFormat
	// RValueRecord constructs a record instance from a schema
	// reference (a module-scope symbol resolved at link time) and its
	// field values, listed in Operands. Like Format, it lowers to
	// multiple bytecode instructions and therefore needs a distinct
	// result register (spec §4.5.3 step 3, §6.2's Record opcode).
	RValueRecord

	// RValueLoadParam reads the ParamIndex-th parameter.
	RValueLoadParam
	// RValueLoadModule reads the module member named by Ref.
	RValueLoadModule
	// RValueLoadMember reads the field named by Ref (a Symbol) off
	// Operands[0].
	RValueLoadMember
	// RValueLoadTupleMember reads slot Num1 of the tuple in
	// Operands[0].
	RValueLoadTupleMember
	// RValueLoadIndex reads Operands[1] of the container Operands[0].
	RValueLoadIndex
	// RValueLoadClosure reads the function's own closure environment.
	RValueLoadClosure
	// RValueLoadEnv reads slot Num2 of the environment Num1 levels
	// above Operands[0].
	RValueLoadEnv
	// RValueMakeEnv allocates a new closure environment of size Num1
	// with Operands[0] as its parent (or InvalidLocalID for none).
	RValueMakeEnv
	// RValueMakeClosure builds a closure over template function Ref
	// and environment Operands[0].
	RValueMakeClosure
	// RValueLoadMethod looks up method Ref on Operands[0], producing a
	// two-register (this, method) aggregate (spec §6.2's LoadMethod).
	RValueLoadMethod
	// RValueIterator creates an iterator over Operands[0].
	RValueIterator
	// RValueIteratorNext advances Operands[0], producing a
	// two-register (valid, value) aggregate.
	RValueIteratorNext

	// RValueStoreParam, RValueStoreModule, RValueStoreMember,
	// RValueStoreTupleMember, RValueStoreIndex and RValueStoreEnv are
	// pure effects: they write a value into storage outside the SSA
	// register file and therefore need zero registers of their own,
	// like RValueWrite.
	RValueStoreParam
	RValueStoreModule
	RValueStoreMember
	RValueStoreTupleMember
	RValueStoreIndex
	RValueStoreEnv

	// RValueWrite aliases another local's storage and therefore
	// requires zero registers (spec §4.5.1).
	RValueWrite
	// RValueGetAggregateMember reads a sub-register of its parent
	// aggregate's location and requires zero registers of its own.
	RValueGetAggregateMember
	// RValueAggregate materializes a multi-register value, sized by
	// its Aggregate field.
	RValueAggregate
	// RValuePhi merges values from a block's predecessors; its size
	// resolves recursively to the common size of its operands (spec
	// §4.5.1).
	RValuePhi
	// RValueObserveAssign binds a preallocated register for Symbol at
	// the top of a handler block (spec §4.5.2).
	RValueObserveAssign
	// RValuePublishAssign writes Value into Symbol's preallocated
	// location instead of allocating a fresh register (spec §4.5.3,
	// "Allocate & deallocate for a value").
	RValuePublishAssign
)

// RValue is a flat tagged union over every SSA value shape the
// allocator and lowering passes must recognize (same rationale as
// bytecode.Instruction: one generic record instead of one boxed type
// per kind).
type RValue struct {
	Kind RValueKind

	Int    int64
	Float  float64
	Bool   bool

	// Operands holds Use's referenced local, BinaryOp's (lhs, rhs),
	// UnaryOp's sole operand, Container's elements, Call's
	// (callee, args...), Write's source, Phi's per-predecessor
	// operands (indexed the same as the owning block's predecessors).
	Operands []LocalID

	BinOp BinaryOp
	UnOp  UnaryOp

	Container ContainerKind
	Aggregate AggregateKind

	// GetAggregateMember fields.
	Member uint32

	Symbol SymbolID

	// Ref names a module-scope definition this value resolves against
	// at link time (an IrSymbolId indexing Module.TopLevel): the
	// schema for RValueRecord, the member for RValueLoadModule /
	// RValueStoreModule, the field name for RValueLoadMember /
	// RValueStoreMember / RValueLoadMethod, or the template function
	// for RValueMakeClosure.
	Ref uint32

	// ParamIndex is RValueLoadParam / RValueStoreParam's parameter
	// slot.
	ParamIndex uint32

	// Num1, Num2 are generic secondary numeric operands: a tuple or
	// env slot index, or (for RValueLoadEnv/RValueStoreEnv) a
	// (level, index) pair, or (for RValueMakeEnv) the new
	// environment's size.
	Num1, Num2 uint32
}

func Use(local LocalID) RValue { return RValue{Kind: RValueUse, Operands: []LocalID{local}} }
func ConstInt(v int64) RValue  { return RValue{Kind: RValueConstInt, Int: v} }
func ConstFloat(v float64) RValue { return RValue{Kind: RValueConstFloat, Float: v} }
func ConstBool(v bool) RValue { return RValue{Kind: RValueConstBool, Bool: v} }
func ConstNull() RValue       { return RValue{Kind: RValueConstNull} }

func Binary(op BinaryOp, lhs, rhs LocalID) RValue {
	return RValue{Kind: RValueBinaryOp, BinOp: op, Operands: []LocalID{lhs, rhs}}
}
func Unary(op UnaryOp, value LocalID) RValue {
	return RValue{Kind: RValueUnaryOp, UnOp: op, Operands: []LocalID{value}}
}
func Container(kind ContainerKind, elems ...LocalID) RValue {
	return RValue{Kind: RValueContainer, Container: kind, Operands: elems}
}
func Call(callee LocalID, args ...LocalID) RValue {
	return RValue{Kind: RValueCall, Operands: append([]LocalID{callee}, args...)}
}
func MethodCall(method LocalID, args ...LocalID) RValue {
	return RValue{Kind: RValueMethodCall, Operands: append([]LocalID{method}, args...)}
}
func Record(schema uint32, fields ...LocalID) RValue {
	return RValue{Kind: RValueRecord, Ref: schema, Operands: fields}
}
func Format(parts ...LocalID) RValue { return RValue{Kind: RValueFormat, Operands: parts} }

func LoadParam(index uint32) RValue { return RValue{Kind: RValueLoadParam, ParamIndex: index} }
func LoadModule(ref uint32) RValue  { return RValue{Kind: RValueLoadModule, Ref: ref} }
func LoadMember(object LocalID, name uint32) RValue {
	return RValue{Kind: RValueLoadMember, Operands: []LocalID{object}, Ref: name}
}
func LoadTupleMember(tuple LocalID, index uint32) RValue {
	return RValue{Kind: RValueLoadTupleMember, Operands: []LocalID{tuple}, Num1: index}
}
func LoadIndex(container, index LocalID) RValue {
	return RValue{Kind: RValueLoadIndex, Operands: []LocalID{container, index}}
}
func LoadClosure() RValue { return RValue{Kind: RValueLoadClosure} }
func LoadEnv(env LocalID, level, index uint32) RValue {
	return RValue{Kind: RValueLoadEnv, Operands: []LocalID{env}, Num1: level, Num2: index}
}
func MakeEnv(parent LocalID, size uint32) RValue {
	return RValue{Kind: RValueMakeEnv, Operands: []LocalID{parent}, Num1: size}
}
func MakeClosure(template uint32, env LocalID) RValue {
	return RValue{Kind: RValueMakeClosure, Ref: template, Operands: []LocalID{env}}
}
func LoadMethod(object LocalID, name uint32) RValue {
	return RValue{Kind: RValueLoadMethod, Operands: []LocalID{object}, Ref: name}
}
func Iterator(container LocalID) RValue {
	return RValue{Kind: RValueIterator, Operands: []LocalID{container}}
}
func IteratorNext(iterator LocalID) RValue {
	return RValue{Kind: RValueIteratorNext, Operands: []LocalID{iterator}}
}

func StoreParam(source LocalID, index uint32) RValue {
	return RValue{Kind: RValueStoreParam, Operands: []LocalID{source}, ParamIndex: index}
}
func StoreModule(source LocalID, ref uint32) RValue {
	return RValue{Kind: RValueStoreModule, Operands: []LocalID{source}, Ref: ref}
}
func StoreMember(source, object LocalID, name uint32) RValue {
	return RValue{Kind: RValueStoreMember, Operands: []LocalID{source, object}, Ref: name}
}
func StoreTupleMember(source, tuple LocalID, index uint32) RValue {
	return RValue{Kind: RValueStoreTupleMember, Operands: []LocalID{source, tuple}, Num1: index}
}
func StoreIndex(source, container, index LocalID) RValue {
	return RValue{Kind: RValueStoreIndex, Operands: []LocalID{source, container, index}}
}
func StoreEnv(source, env LocalID, level, index uint32) RValue {
	return RValue{Kind: RValueStoreEnv, Operands: []LocalID{source, env}, Num1: level, Num2: index}
}

func Write(source LocalID) RValue {
	return RValue{Kind: RValueWrite, Operands: []LocalID{source}}
}
func GetAggregateMember(aggregate LocalID, member uint32) RValue {
	return RValue{Kind: RValueGetAggregateMember, Operands: []LocalID{aggregate}, Member: member}
}
func MakeAggregate(kind AggregateKind, parts ...LocalID) RValue {
	return RValue{Kind: RValueAggregate, Aggregate: kind, Operands: parts}
}
func Phi(operands ...LocalID) RValue {
	return RValue{Kind: RValuePhi, Operands: operands}
}
func ObserveAssign(symbol SymbolID) RValue {
	return RValue{Kind: RValueObserveAssign, Symbol: symbol}
}
func PublishAssign(symbol SymbolID, value LocalID) RValue {
	return RValue{Kind: RValuePublishAssign, Symbol: symbol, Operands: []LocalID{value}}
}

// StmtKind distinguishes the two statement shapes a block body holds
// (spec's needs_distinct_register switch over StmtType).
type StmtKind int

const (
	// StmtDefine introduces a new SSA local computed from an RValue.
	StmtDefine StmtKind = iota
	// StmtAssign stores into an already-allocated local's storage
	// without creating a new SSA name (used for in-place aggregate
	// writes); it carries no register pressure of its own.
	StmtAssign
)

// Stmt is one instruction slot within a Block, in program order. Phis
// are ordinary StmtDefine entries at the head of a block: Block.Phis
// reports how many of Stmts[:n] are phis.
type Stmt struct {
	Kind  StmtKind
	Local LocalID // StmtDefine's defined value; StmtAssign's target
}

// BranchKind names which predicate a Branch terminator tests (spec
// §4.7 step 5).
type BranchKind int

const (
	BranchIfTrue BranchKind = iota
	BranchIfFalse
	BranchIfNull
	BranchIfNotNull
)

// TerminatorKind tags the variant held by a Terminator.
type TerminatorKind int

const (
	TerminatorJump TerminatorKind = iota
	TerminatorBranch
	TerminatorReturn
	TerminatorAssertFail
	TerminatorEntry
)

// Terminator is a flat tagged union over a block's possible endings
// (spec §4.5, §4.7 step 5).
type Terminator struct {
	Kind TerminatorKind

	Jump        BlockID // TerminatorJump
	BranchKind  BranchKind
	Cond        LocalID
	TrueTarget  BlockID
	FalseTarget BlockID

	Value LocalID // TerminatorReturn's value
	Expr  LocalID // TerminatorAssertFail
	Msg   LocalID

	// Handlers lists the exception-handler blocks reachable from the
	// function's entry; only the Entry terminator (the function's
	// unique entry block) carries this.
	Handlers []BlockID

	// Next is the entry block's unconditional successor: the first
	// block of the function's real control flow. It coexists with
	// Handlers because the entry block both starts execution and
	// declares the handler set (spec §4.5.2's "handler-block
	// instructions", reached only via exceptions, not by Next).
	Next BlockID
}

func JumpTo(target BlockID) Terminator {
	return Terminator{Kind: TerminatorJump, Jump: target}
}
func BranchOn(kind BranchKind, cond LocalID, trueTarget, falseTarget BlockID) Terminator {
	return Terminator{Kind: TerminatorBranch, BranchKind: kind, Cond: cond, TrueTarget: trueTarget, FalseTarget: falseTarget}
}
func ReturnValue(v LocalID) Terminator {
	return Terminator{Kind: TerminatorReturn, Value: v}
}
func AssertFail(expr, msg LocalID) Terminator {
	return Terminator{Kind: TerminatorAssertFail, Expr: expr, Msg: msg}
}
func EntryTo(next BlockID, handlers ...BlockID) Terminator {
	return Terminator{Kind: TerminatorEntry, Next: next, Handlers: handlers}
}

// Targets returns every block this terminator may transfer control
// to, in a stable order (spec §4.5.3 step 4's visit_targets). Handler
// blocks are reached only through exceptional control flow, not
// normal successor-walking, so they are excluded here; the dominator
// tree and liveness analyses both operate over Targets alone.
func (t Terminator) Targets() []BlockID {
	switch t.Kind {
	case TerminatorJump:
		return []BlockID{t.Jump}
	case TerminatorBranch:
		return []BlockID{t.TrueTarget, t.FalseTarget}
	case TerminatorEntry:
		return []BlockID{t.Next}
	default:
		return nil
	}
}

// Block is one basic block of a Function: an exception-handler label,
// a sequence of statements (phis first), and a terminator.
type Block struct {
	// Handler is the block whose code handles exceptions raised while
	// executing this block, or InvalidBlockID if none (spec §4.7
	// step 2).
	Handler BlockID

	// Phis is the number of leading Stmts that are phi definitions
	// (spec §4.5.3 step 2).
	Phis int

	Stmts []Stmt

	Predecessors []BlockID

	Terminator Terminator
}

// FunctionKind distinguishes a normal function from a closure template
// (spec §3.4).
type FunctionKind int

const (
	FunctionNormal FunctionKind = iota
	FunctionClosure
)

// Function is the SSA-form input to the register allocator and
// lowering passes (spec §4.5).
type Function struct {
	EntryBlock BlockID

	Blocks []Block
	Locals []RValue

	ParamCount uint32

	Kind FunctionKind
	// Name is the IrSymbolId of this function's TopLevelSymbol def, or
	// InvalidIrSymbolID if anonymous.
	Name uint32
}

func (f *Function) Entry() BlockID    { return f.EntryBlock }
func (f *Function) BlockCount() int   { return len(f.Blocks) }
func (f *Function) LocalCount() int   { return len(f.Locals) }
func (f *Function) Block(id BlockID) *Block { return &f.Blocks[id] }
func (f *Function) Value(id LocalID) RValue { return f.Locals[id] }

// PhiOperand returns the phi local's operand corresponding to the
// index-th predecessor of the block owning it.
func (f *Function) PhiOperand(phiLocal LocalID, predIndex int) LocalID {
	return f.Locals[phiLocal].Operands[predIndex]
}

// VisitUses calls fn for every LocalID that the definition of local
// reads, in the order the allocator's reuse_dead_vars pass expects
// (spec §4.5.3 step 3).
func (f *Function) VisitUses(local LocalID, fn func(LocalID)) {
	v := f.Locals[local]
	switch v.Kind {
	case RValuePhi:
		// Phi operands are not treated as live uses at the
		// definition site (spec §4.5.3 step 2 comment); lowering
		// reads them separately via PhiOperand when building copy
		// schedules.
		return
	default:
		for _, op := range v.Operands {
			fn(op)
		}
	}
}
