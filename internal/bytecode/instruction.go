package bytecode

import "fmt"

// Instruction is a flat tagged union over all opcodes: a single
// generic record rather than one boxed type per opcode, so that the
// allocator and lowering passes can build and inspect instructions
// without an allocation per instruction. Which fields are meaningful
// is determined entirely by Op; see the per-field doc comments below
// and the per-opcode constructors, which are the intended way to build
// a value of this type (design note: a single generic constructor
// would also work, but the one-per-opcode helpers read far better at
// every call site that emits code).
//
// Offset-operand opcodes (Jmp, JmpTrue, JmpFalse, JmpNull, JmpNotNull)
// store their *unresolved* jump target as a Label in Off (the two
// types share the same representation); FunctionWriter.Write records
// it, and FunctionWriter.Finish patches it to a real Offset.
type Instruction struct {
	Op Op

	// A, B, C are generic register operands. Meaning depends on Op:
	// see the per-opcode constructors below for the canonical name of
	// each slot per instruction.
	A, B, C Register

	Member MemberID
	Off    Offset
	Param  Param

	N1, N2 uint32
	Int    int64
	Float  float64
}

// Label returns the Off field reinterpreted as an unresolved jump
// target; valid only when ReferencesOffset(i.Op) holds.
func (i Instruction) Label() Label { return Label(i.Off) }

func (i Instruction) String() string {
	return fmt.Sprintf("%s(a=%d,b=%d,c=%d,member=%d,off=%d,param=%d,n1=%d,n2=%d,int=%d,float=%g)",
		i.Op, i.A, i.B, i.C, i.Member, i.Off, i.Param, i.N1, i.N2, i.Int, i.Float)
}

// --- per-opcode constructors (spec §6.2) ---

func LoadNull(target Register) Instruction    { return Instruction{Op: OpLoadNull, A: target} }
func LoadFalse(target Register) Instruction   { return Instruction{Op: OpLoadFalse, A: target} }
func LoadTrue(target Register) Instruction    { return Instruction{Op: OpLoadTrue, A: target} }
func LoadInt(c int64, target Register) Instruction {
	return Instruction{Op: OpLoadInt, Int: c, A: target}
}
func LoadFloat(c float64, target Register) Instruction {
	return Instruction{Op: OpLoadFloat, Float: c, A: target}
}

func LoadParam(source Param, target Register) Instruction {
	return Instruction{Op: OpLoadParam, Param: source, A: target}
}
func StoreParam(source Register, target Param) Instruction {
	return Instruction{Op: OpStoreParam, A: source, Param: target}
}

func LoadModule(source MemberID, target Register) Instruction {
	return Instruction{Op: OpLoadModule, Member: source, A: target}
}
func StoreModule(source Register, target MemberID) Instruction {
	return Instruction{Op: OpStoreModule, A: source, Member: target}
}

func LoadMember(object Register, name MemberID, target Register) Instruction {
	return Instruction{Op: OpLoadMember, A: object, Member: name, B: target}
}
func StoreMember(source, object Register, name MemberID) Instruction {
	return Instruction{Op: OpStoreMember, A: source, B: object, Member: name}
}

func LoadTupleMember(tuple Register, index uint32, target Register) Instruction {
	return Instruction{Op: OpLoadTupleMember, A: tuple, N1: index, B: target}
}
func StoreTupleMember(source, tuple Register, index uint32) Instruction {
	return Instruction{Op: OpStoreTupleMember, A: source, B: tuple, N1: index}
}

func LoadIndex(array, index, target Register) Instruction {
	return Instruction{Op: OpLoadIndex, A: array, B: index, C: target}
}
func StoreIndex(source, array, index Register) Instruction {
	return Instruction{Op: OpStoreIndex, A: source, B: array, C: index}
}

func LoadClosure(target Register) Instruction { return Instruction{Op: OpLoadClosure, A: target} }
func LoadEnv(env Register, level, index uint32, target Register) Instruction {
	return Instruction{Op: OpLoadEnv, A: env, N1: level, N2: index, B: target}
}
func StoreEnv(source, env Register, level, index uint32) Instruction {
	return Instruction{Op: OpStoreEnv, A: source, B: env, N1: level, N2: index}
}

func binOp(op Op, lhs, rhs, target Register) Instruction {
	return Instruction{Op: op, A: target, B: lhs, C: rhs}
}

func Add(lhs, rhs, target Register) Instruction  { return binOp(OpAdd, lhs, rhs, target) }
func Sub(lhs, rhs, target Register) Instruction  { return binOp(OpSub, lhs, rhs, target) }
func Mul(lhs, rhs, target Register) Instruction  { return binOp(OpMul, lhs, rhs, target) }
func Div(lhs, rhs, target Register) Instruction  { return binOp(OpDiv, lhs, rhs, target) }
func Mod(lhs, rhs, target Register) Instruction  { return binOp(OpMod, lhs, rhs, target) }
func Pow(lhs, rhs, target Register) Instruction  { return binOp(OpPow, lhs, rhs, target) }
func LSh(lhs, rhs, target Register) Instruction  { return binOp(OpLSh, lhs, rhs, target) }
func RSh(lhs, rhs, target Register) Instruction  { return binOp(OpRSh, lhs, rhs, target) }
func BAnd(lhs, rhs, target Register) Instruction { return binOp(OpBAnd, lhs, rhs, target) }
func BOr(lhs, rhs, target Register) Instruction  { return binOp(OpBOr, lhs, rhs, target) }
func BXor(lhs, rhs, target Register) Instruction { return binOp(OpBXor, lhs, rhs, target) }
func Gt(lhs, rhs, target Register) Instruction   { return binOp(OpGt, lhs, rhs, target) }
func Gte(lhs, rhs, target Register) Instruction  { return binOp(OpGte, lhs, rhs, target) }
func Lt(lhs, rhs, target Register) Instruction   { return binOp(OpLt, lhs, rhs, target) }
func Lte(lhs, rhs, target Register) Instruction  { return binOp(OpLte, lhs, rhs, target) }
func Eq(lhs, rhs, target Register) Instruction   { return binOp(OpEq, lhs, rhs, target) }
func NEq(lhs, rhs, target Register) Instruction  { return binOp(OpNEq, lhs, rhs, target) }

func unOp(op Op, value, target Register) Instruction {
	return Instruction{Op: op, A: value, B: target}
}

func UAdd(value, target Register) Instruction { return unOp(OpUAdd, value, target) }
func UNeg(value, target Register) Instruction { return unOp(OpUNeg, value, target) }
func BNot(value, target Register) Instruction { return unOp(OpBNot, value, target) }
func LNot(value, target Register) Instruction { return unOp(OpLNot, value, target) }

func containerOp(op Op, count uint32, target Register) Instruction {
	return Instruction{Op: op, N1: count, A: target}
}

func Array(count uint32, target Register) Instruction { return containerOp(OpArray, count, target) }
func Tuple(count uint32, target Register) Instruction { return containerOp(OpTuple, count, target) }
func Set(count uint32, target Register) Instruction   { return containerOp(OpSet, count, target) }
func Map(count uint32, target Register) Instruction    { return containerOp(OpMap, count, target) }

func Env(parent Register, size uint32, target Register) Instruction {
	return Instruction{Op: OpEnv, A: parent, N1: size, B: target}
}
func Closure(template MemberID, env, target Register) Instruction {
	return Instruction{Op: OpClosure, Member: template, A: env, B: target}
}
func Record(template MemberID, target Register) Instruction {
	return Instruction{Op: OpRecord, Member: template, A: target}
}

func Iterator(container, target Register) Instruction {
	return Instruction{Op: OpIterator, A: container, B: target}
}
func IteratorNext(iterator, valid, value Register) Instruction {
	return Instruction{Op: OpIteratorNext, A: iterator, B: valid, C: value}
}

func Formatter(target Register) Instruction { return Instruction{Op: OpFormatter, A: target} }
func AppendFormat(value, formatter Register) Instruction {
	return Instruction{Op: OpAppendFormat, A: value, B: formatter}
}
func FormatResult(formatter, target Register) Instruction {
	return Instruction{Op: OpFormatResult, A: formatter, B: target}
}

func Copy(source, target Register) Instruction { return Instruction{Op: OpCopy, A: source, B: target} }
func Swap(a, b Register) Instruction            { return Instruction{Op: OpSwap, A: a, B: b} }
func Push(value Register) Instruction           { return Instruction{Op: OpPush, A: value} }
func Pop() Instruction                          { return Instruction{Op: OpPop} }
func PopTo(target Register) Instruction         { return Instruction{Op: OpPopTo, A: target} }

// Jmp* constructors take a not-yet-resolved Label; FunctionWriter
// patches it to a concrete Offset at finish().
func Jmp(target Label) Instruction { return Instruction{Op: OpJmp, Off: Offset(target)} }
func JmpTrue(condition Register, target Label) Instruction {
	return Instruction{Op: OpJmpTrue, A: condition, Off: Offset(target)}
}
func JmpFalse(condition Register, target Label) Instruction {
	return Instruction{Op: OpJmpFalse, A: condition, Off: Offset(target)}
}
func JmpNull(condition Register, target Label) Instruction {
	return Instruction{Op: OpJmpNull, A: condition, Off: Offset(target)}
}
func JmpNotNull(condition Register, target Label) Instruction {
	return Instruction{Op: OpJmpNotNull, A: condition, Off: Offset(target)}
}

func Call(function Register, count uint32) Instruction {
	return Instruction{Op: OpCall, A: function, N1: count}
}
func LoadMethod(object Register, name MemberID, this, method Register) Instruction {
	return Instruction{Op: OpLoadMethod, A: object, Member: name, B: this, C: method}
}
func CallMethod(method Register, count uint32) Instruction {
	return Instruction{Op: OpCallMethod, A: method, N1: count}
}
func Return(value Register) Instruction { return Instruction{Op: OpReturn, A: value} }
func Rethrow() Instruction              { return Instruction{Op: OpRethrow} }
func AssertFail(expr, message Register) Instruction {
	return Instruction{Op: OpAssertFail, A: expr, B: message}
}
