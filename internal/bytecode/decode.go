package bytecode

import (
	"errors"
	"fmt"

	"github.com/tiro-lang/tiro/internal/binary"
)

// DecodeErrorKind classifies why Decode failed (spec §4.3, §6.3).
type DecodeErrorKind int

const (
	// InvalidOpcode means the leading byte does not name a known Op.
	InvalidOpcode DecodeErrorKind = iota
	// IncompleteInstruction means the opcode was valid but fewer
	// operand bytes remained than the opcode requires.
	IncompleteInstruction
	// End means the reader was already empty at an instruction
	// boundary: a clean end of the code stream, not a truncation.
	End
)

func (k DecodeErrorKind) String() string {
	switch k {
	case InvalidOpcode:
		return "InvalidOpcode"
	case IncompleteInstruction:
		return "IncompleteInstruction"
	case End:
		return "End"
	default:
		return "DecodeErrorKind(?)"
	}
}

// DecodeError is returned by Decode on any failure.
type DecodeError struct {
	Kind DecodeErrorKind
	Op   Op // meaningful only for IncompleteInstruction
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case InvalidOpcode:
		return "bytecode: invalid opcode"
	case IncompleteInstruction:
		return fmt.Sprintf("bytecode: incomplete instruction for %s", e.Op)
	case End:
		return "bytecode: end of code"
	default:
		return "bytecode: decode error"
	}
}

var errShortOperands = errors.New("bytecode: short operands")

// operandSize returns the exact operand byte width required by op, so
// Decode can check Reader.Remaining() once per instruction rather than
// failing mid-read (spec §4.3: "the decoder must know required operand
// byte count per opcode").
func operandSize(op Op) int {
	const (
		reg    = 4
		member = 4
		offset = 4
		param  = 4
		u32    = 4
		i64    = 8
		f64    = 8
	)
	switch op {
	case OpLoadNull, OpLoadFalse, OpLoadTrue, OpLoadClosure, OpFormatter,
		OpPush, OpPopTo, OpReturn:
		return reg
	case OpPop, OpRethrow:
		return 0
	case OpLoadInt:
		return i64 + reg
	case OpLoadFloat:
		return f64 + reg
	case OpLoadParam:
		return param + reg
	case OpStoreParam:
		return reg + param
	case OpLoadModule:
		return member + reg
	case OpStoreModule:
		return reg + member
	case OpLoadMember:
		return reg + member + reg
	case OpStoreMember:
		return reg + reg + member
	case OpLoadTupleMember:
		return reg + u32 + reg
	case OpStoreTupleMember:
		return reg + reg + u32
	case OpLoadIndex, OpStoreIndex, OpIteratorNext:
		return reg + reg + reg
	case OpLoadEnv:
		return reg + u32 + u32 + reg
	case OpStoreEnv:
		return reg + reg + u32 + u32
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpLSh, OpRSh, OpBAnd, OpBOr, OpBXor,
		OpGt, OpGte, OpLt, OpLte, OpEq, OpNEq:
		return reg + reg + reg
	case OpUAdd, OpUNeg, OpBNot, OpLNot, OpArray, OpTuple, OpSet, OpMap,
		OpIterator, OpAppendFormat, OpFormatResult, OpCopy, OpSwap:
		return reg + reg
	case OpEnv:
		return reg + u32 + reg
	case OpClosure:
		return member + reg + reg
	case OpRecord:
		return member + reg
	case OpJmp:
		return offset
	case OpJmpTrue, OpJmpFalse, OpJmpNull, OpJmpNotNull:
		return reg + offset
	case OpCall, OpCallMethod:
		return reg + u32
	case OpLoadMethod:
		return reg + member + reg + reg
	case OpAssertFail:
		return reg + reg
	default:
		return -1
	}
}

// Decode reads one instruction from r: first a u8 opcode, validated,
// then its operands in declaration order (spec §4.3).
func Decode(r *binary.Reader) (Instruction, error) {
	if r.Remaining() == 0 {
		return Instruction{}, &DecodeError{Kind: End}
	}

	opByte, err := r.ReadU8()
	if err != nil {
		return Instruction{}, &DecodeError{Kind: End}
	}
	if !ValidOpcode(opByte) {
		return Instruction{}, &DecodeError{Kind: InvalidOpcode}
	}
	op := Op(opByte)

	size := operandSize(op)
	if size < 0 {
		return Instruction{}, &DecodeError{Kind: InvalidOpcode}
	}
	if r.Remaining() < size {
		return Instruction{}, &DecodeError{Kind: IncompleteInstruction, Op: op}
	}

	ins, err := decodeOperands(r, op)
	if err != nil {
		return Instruction{}, &DecodeError{Kind: IncompleteInstruction, Op: op}
	}
	return ins, nil
}

func decodeOperands(r *binary.Reader, op Op) (Instruction, error) {
	ins := Instruction{Op: op}

	readReg := func() (Register, error) {
		v, err := r.ReadU32()
		return Register(v), err
	}
	readMember := func() (MemberID, error) {
		v, err := r.ReadU32()
		return MemberID(v), err
	}
	readParam := func() (Param, error) {
		v, err := r.ReadU32()
		return Param(v), err
	}
	readOffset := func() (Offset, error) {
		v, err := r.ReadU32()
		return Offset(v), err
	}

	var err error
	switch op {
	case OpLoadNull, OpLoadFalse, OpLoadTrue, OpLoadClosure, OpFormatter,
		OpPush, OpPopTo, OpReturn:
		ins.A, err = readReg()
	case OpPop, OpRethrow:
		// no operands
	case OpLoadInt:
		ins.Int, err = r.ReadI64()
		if err == nil {
			ins.A, err = readReg()
		}
	case OpLoadFloat:
		ins.Float, err = r.ReadF64()
		if err == nil {
			ins.A, err = readReg()
		}
	case OpLoadParam:
		ins.Param, err = readParam()
		if err == nil {
			ins.A, err = readReg()
		}
	case OpStoreParam:
		ins.A, err = readReg()
		if err == nil {
			ins.Param, err = readParam()
		}
	case OpLoadModule:
		ins.Member, err = readMember()
		if err == nil {
			ins.A, err = readReg()
		}
	case OpStoreModule:
		ins.A, err = readReg()
		if err == nil {
			ins.Member, err = readMember()
		}
	case OpLoadMember:
		if ins.A, err = readReg(); err == nil {
			if ins.Member, err = readMember(); err == nil {
				ins.B, err = readReg()
			}
		}
	case OpStoreMember:
		if ins.A, err = readReg(); err == nil {
			if ins.B, err = readReg(); err == nil {
				ins.Member, err = readMember()
			}
		}
	case OpLoadTupleMember:
		if ins.A, err = readReg(); err == nil {
			var n uint32
			if n, err = r.ReadU32(); err == nil {
				ins.N1 = n
				ins.B, err = readReg()
			}
		}
	case OpStoreTupleMember:
		if ins.A, err = readReg(); err == nil {
			if ins.B, err = readReg(); err == nil {
				ins.N1, err = r.ReadU32()
			}
		}
	case OpLoadIndex, OpStoreIndex, OpIteratorNext:
		if ins.A, err = readReg(); err == nil {
			if ins.B, err = readReg(); err == nil {
				ins.C, err = readReg()
			}
		}
	case OpLoadEnv:
		if ins.A, err = readReg(); err == nil {
			if ins.N1, err = r.ReadU32(); err == nil {
				if ins.N2, err = r.ReadU32(); err == nil {
					ins.B, err = readReg()
				}
			}
		}
	case OpStoreEnv:
		if ins.A, err = readReg(); err == nil {
			if ins.B, err = readReg(); err == nil {
				if ins.N1, err = r.ReadU32(); err == nil {
					ins.N2, err = r.ReadU32()
				}
			}
		}
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpLSh, OpRSh, OpBAnd, OpBOr, OpBXor,
		OpGt, OpGte, OpLt, OpLte, OpEq, OpNEq:
		if ins.B, err = readReg(); err == nil { // lhs
			if ins.C, err = readReg(); err == nil { // rhs
				ins.A, err = readReg() // target
			}
		}
	case OpUAdd, OpUNeg, OpBNot, OpLNot:
		if ins.A, err = readReg(); err == nil {
			ins.B, err = readReg()
		}
	case OpArray, OpTuple, OpSet, OpMap:
		if ins.N1, err = r.ReadU32(); err == nil {
			ins.A, err = readReg()
		}
	case OpEnv:
		if ins.A, err = readReg(); err == nil {
			if ins.N1, err = r.ReadU32(); err == nil {
				ins.B, err = readReg()
			}
		}
	case OpClosure:
		if ins.Member, err = readMember(); err == nil {
			if ins.A, err = readReg(); err == nil {
				ins.B, err = readReg()
			}
		}
	case OpRecord:
		if ins.Member, err = readMember(); err == nil {
			ins.A, err = readReg()
		}
	case OpIterator, OpAppendFormat, OpFormatResult, OpCopy, OpSwap:
		if ins.A, err = readReg(); err == nil {
			ins.B, err = readReg()
		}
	case OpJmp:
		ins.Off, err = readOffset()
	case OpJmpTrue, OpJmpFalse, OpJmpNull, OpJmpNotNull:
		if ins.A, err = readReg(); err == nil {
			ins.Off, err = readOffset()
		}
	case OpCall, OpCallMethod:
		if ins.A, err = readReg(); err == nil {
			ins.N1, err = r.ReadU32()
		}
	case OpLoadMethod:
		if ins.A, err = readReg(); err == nil {
			if ins.Member, err = readMember(); err == nil {
				if ins.B, err = readReg(); err == nil {
					ins.C, err = readReg()
				}
			}
		}
	case OpAssertFail:
		if ins.A, err = readReg(); err == nil {
			ins.B, err = readReg()
		}
	default:
		return Instruction{}, errShortOperands
	}
	if err != nil {
		return Instruction{}, err
	}
	return ins, nil
}
