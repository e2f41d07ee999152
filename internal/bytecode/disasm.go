package bytecode

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/tiro-lang/tiro/internal/binary"
)

// Disassemble renders fn's code and handler table as human-readable
// text: one "offset: Op operands..." line per instruction, followed by
// a tree view of the handler table rooted at the function itself. It
// never fails on a well-formed Function; a corrupt code buffer decodes
// to as many instructions as possible and reports the decode error
// inline.
func Disassemble(name string, fn Function) string {
	var b strings.Builder

	r := binary.NewReader(fn.Code)
	width := len(fmt.Sprintf("%d", len(fn.Code)))
	for {
		start := r.Pos()
		ins, err := Decode(r)
		if err != nil {
			de := err.(*DecodeError)
			if de.Kind == End {
				break
			}
			fmt.Fprintf(&b, "%*d: <decode error: %s>\n", width, start, de.Error())
			break
		}
		fmt.Fprintf(&b, "%*d: %s\n", width, start, disassembleInstruction(ins))
	}

	tree := treeprint.NewWithRoot(name)
	if len(fn.Handlers) == 0 {
		tree.AddNode("(no handlers)")
	} else {
		for _, h := range fn.Handlers {
			tree.AddNode(fmt.Sprintf("[%d, %d) -> %d", h.From, h.To, h.Target))
		}
	}
	b.WriteString(tree.String())

	return b.String()
}

// disassembleInstruction formats one already-decoded instruction using
// the operand names from §6.2 rather than the generic struct dump
// Instruction.String provides.
func disassembleInstruction(ins Instruction) string {
	switch ins.Op {
	case OpLoadNull, OpLoadFalse, OpLoadTrue, OpLoadClosure, OpFormatter:
		return fmt.Sprintf("%s target %d", ins.Op, ins.A)
	case OpPush:
		return fmt.Sprintf("%s value %d", ins.Op, ins.A)
	case OpPopTo:
		return fmt.Sprintf("%s target %d", ins.Op, ins.A)
	case OpReturn:
		return fmt.Sprintf("%s value %d", ins.Op, ins.A)
	case OpPop, OpRethrow:
		return ins.Op.String()
	case OpLoadInt:
		return fmt.Sprintf("%s value %d target %d", ins.Op, ins.Int, ins.A)
	case OpLoadFloat:
		return fmt.Sprintf("%s value %g target %d", ins.Op, ins.Float, ins.A)
	case OpLoadParam:
		return fmt.Sprintf("%s source %d target %d", ins.Op, ins.Param, ins.A)
	case OpStoreParam:
		return fmt.Sprintf("%s source %d target %d", ins.Op, ins.A, ins.Param)
	case OpLoadModule:
		return fmt.Sprintf("%s source %d target %d", ins.Op, ins.Member, ins.A)
	case OpStoreModule:
		return fmt.Sprintf("%s source %d target %d", ins.Op, ins.A, ins.Member)
	case OpLoadMember:
		return fmt.Sprintf("%s object %d name %d target %d", ins.Op, ins.A, ins.Member, ins.B)
	case OpStoreMember:
		return fmt.Sprintf("%s source %d object %d name %d", ins.Op, ins.A, ins.B, ins.Member)
	case OpLoadTupleMember:
		return fmt.Sprintf("%s tuple %d index %d target %d", ins.Op, ins.A, ins.N1, ins.B)
	case OpStoreTupleMember:
		return fmt.Sprintf("%s source %d tuple %d index %d", ins.Op, ins.A, ins.B, ins.N1)
	case OpLoadIndex:
		return fmt.Sprintf("%s array %d index %d target %d", ins.Op, ins.A, ins.B, ins.C)
	case OpStoreIndex:
		return fmt.Sprintf("%s source %d array %d index %d", ins.Op, ins.A, ins.B, ins.C)
	case OpLoadEnv:
		return fmt.Sprintf("%s env %d level %d index %d target %d", ins.Op, ins.A, ins.N1, ins.N2, ins.B)
	case OpStoreEnv:
		return fmt.Sprintf("%s source %d env %d level %d index %d", ins.Op, ins.A, ins.B, ins.N1, ins.N2)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpLSh, OpRSh, OpBAnd, OpBOr, OpBXor,
		OpGt, OpGte, OpLt, OpLte, OpEq, OpNEq:
		return fmt.Sprintf("%s lhs %d rhs %d target %d", ins.Op, ins.B, ins.C, ins.A)
	case OpUAdd, OpUNeg, OpBNot, OpLNot:
		return fmt.Sprintf("%s value %d target %d", ins.Op, ins.A, ins.B)
	case OpArray, OpTuple, OpSet, OpMap:
		return fmt.Sprintf("%s count %d target %d", ins.Op, ins.N1, ins.A)
	case OpEnv:
		return fmt.Sprintf("%s parent %d size %d target %d", ins.Op, ins.A, ins.N1, ins.B)
	case OpClosure:
		return fmt.Sprintf("%s template %d env %d target %d", ins.Op, ins.Member, ins.A, ins.B)
	case OpRecord:
		return fmt.Sprintf("%s template %d target %d", ins.Op, ins.Member, ins.A)
	case OpIterator:
		return fmt.Sprintf("%s container %d target %d", ins.Op, ins.A, ins.B)
	case OpIteratorNext:
		return fmt.Sprintf("%s iterator %d valid %d value %d", ins.Op, ins.A, ins.B, ins.C)
	case OpAppendFormat:
		return fmt.Sprintf("%s value %d formatter %d", ins.Op, ins.A, ins.B)
	case OpFormatResult:
		return fmt.Sprintf("%s formatter %d target %d", ins.Op, ins.A, ins.B)
	case OpCopy:
		return fmt.Sprintf("%s source %d target %d", ins.Op, ins.A, ins.B)
	case OpSwap:
		return fmt.Sprintf("%s a %d b %d", ins.Op, ins.A, ins.B)
	case OpJmp:
		return fmt.Sprintf("%s target %d", ins.Op, ins.Off)
	case OpJmpTrue, OpJmpFalse, OpJmpNull, OpJmpNotNull:
		return fmt.Sprintf("%s condition %d target %d", ins.Op, ins.A, ins.Off)
	case OpCall, OpCallMethod:
		return fmt.Sprintf("%s function %d count %d", ins.Op, ins.A, ins.N1)
	case OpLoadMethod:
		return fmt.Sprintf("%s object %d name %d this %d method %d", ins.Op, ins.A, ins.Member, ins.B, ins.C)
	case OpAssertFail:
		return fmt.Sprintf("%s expr %d message %d", ins.Op, ins.A, ins.B)
	default:
		return ins.String()
	}
}
