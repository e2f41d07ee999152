package bytecode

import "github.com/tiro-lang/tiro/internal/binary"

// Encode appends ins's opcode byte and operands, in the same
// declaration order Decode expects, to w. It is the direct inverse of
// Decode: for any verified function, decoding every instruction and
// re-encoding it reproduces the exact original bytes (spec §8.1
// round-trip invariant).
//
// Encode also returns the byte offsets of ins's Offset operand and
// MemberID operand within w, or -1 if ins.Op carries none; the
// FunctionWriter uses these to record labelRefs and moduleRefs
// without duplicating per-opcode operand layout knowledge.
func Encode(w *binary.Writer, ins Instruction) (offsetPos, memberPos int) {
	offsetPos, memberPos = -1, -1
	w.WriteU8(uint8(ins.Op))

	reg := func(r Register) { w.WriteU32(uint32(r)) }
	member := func(m MemberID) { memberPos = w.Len(); w.WriteU32(uint32(m)) }
	param := func(p Param) { w.WriteU32(uint32(p)) }
	offset := func(o Offset) { offsetPos = w.Len(); w.WriteU32(uint32(o)) }

	switch ins.Op {
	case OpLoadNull, OpLoadFalse, OpLoadTrue, OpLoadClosure, OpFormatter,
		OpPush, OpPopTo, OpReturn:
		reg(ins.A)
	case OpPop, OpRethrow:
	case OpLoadInt:
		w.WriteI64(ins.Int)
		reg(ins.A)
	case OpLoadFloat:
		w.WriteF64(ins.Float)
		reg(ins.A)
	case OpLoadParam:
		param(ins.Param)
		reg(ins.A)
	case OpStoreParam:
		reg(ins.A)
		param(ins.Param)
	case OpLoadModule:
		member(ins.Member)
		reg(ins.A)
	case OpStoreModule:
		reg(ins.A)
		member(ins.Member)
	case OpLoadMember:
		reg(ins.A)
		member(ins.Member)
		reg(ins.B)
	case OpStoreMember:
		reg(ins.A)
		reg(ins.B)
		member(ins.Member)
	case OpLoadTupleMember:
		reg(ins.A)
		w.WriteU32(ins.N1)
		reg(ins.B)
	case OpStoreTupleMember:
		reg(ins.A)
		reg(ins.B)
		w.WriteU32(ins.N1)
	case OpLoadIndex, OpStoreIndex, OpIteratorNext:
		reg(ins.A)
		reg(ins.B)
		reg(ins.C)
	case OpLoadEnv:
		reg(ins.A)
		w.WriteU32(ins.N1)
		w.WriteU32(ins.N2)
		reg(ins.B)
	case OpStoreEnv:
		reg(ins.A)
		reg(ins.B)
		w.WriteU32(ins.N1)
		w.WriteU32(ins.N2)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpLSh, OpRSh, OpBAnd, OpBOr, OpBXor,
		OpGt, OpGte, OpLt, OpLte, OpEq, OpNEq:
		reg(ins.B) // lhs
		reg(ins.C) // rhs
		reg(ins.A) // target
	case OpUAdd, OpUNeg, OpBNot, OpLNot:
		reg(ins.A)
		reg(ins.B)
	case OpArray, OpTuple, OpSet, OpMap:
		w.WriteU32(ins.N1)
		reg(ins.A)
	case OpEnv:
		reg(ins.A)
		w.WriteU32(ins.N1)
		reg(ins.B)
	case OpClosure:
		member(ins.Member)
		reg(ins.A)
		reg(ins.B)
	case OpRecord:
		member(ins.Member)
		reg(ins.A)
	case OpIterator, OpAppendFormat, OpFormatResult, OpCopy, OpSwap:
		reg(ins.A)
		reg(ins.B)
	case OpJmp:
		offset(ins.Off)
	case OpJmpTrue, OpJmpFalse, OpJmpNull, OpJmpNotNull:
		reg(ins.A)
		offset(ins.Off)
	case OpCall, OpCallMethod:
		reg(ins.A)
		w.WriteU32(ins.N1)
	case OpLoadMethod:
		reg(ins.A)
		member(ins.Member)
		reg(ins.B)
		reg(ins.C)
	case OpAssertFail:
		reg(ins.A)
		reg(ins.B)
	default:
		panic("bytecode: Encode given invalid opcode")
	}
	return
}
