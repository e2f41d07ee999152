// Package lower turns a register-allocated IR function into a
// bytecode.Function, and an IR module's top-level definitions into a
// link.LinkObject ready for the linker (spec §4.7, §4.8).
package lower

import (
	"fmt"

	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
	"github.com/tiro-lang/tiro/internal/link"
	"github.com/tiro-lang/tiro/internal/regalloc"
)

// Module lowers every top-level definition and function of m into a
// single LinkObject (spec §4.8). Per-function lowering is independent
// of the others; walking them in declaration order keeps member
// ordering stable across runs (spec §5's parallelism note).
func Module(m *ir.Module) (*link.LinkObject, error) {
	obj := link.NewLinkObject()

	for i, def := range m.TopLevel {
		item, err := lowerTopLevel(obj, def)
		if err != nil {
			return nil, fmt.Errorf("lowering top-level def %d: %w", i, err)
		}
		item.IrID = uint32(i)
		obj.Items = append(obj.Items, item)
	}

	for i := range m.Functions {
		compiled, err := Function(&m.Functions[i])
		if err != nil {
			return nil, fmt.Errorf("lowering function %d: %w", i, err)
		}
		obj.Functions = append(obj.Functions, *compiled)
	}

	for i, def := range m.TopLevel {
		if def.Kind == ir.TopLevelFunction {
			obj.Items[i].Value.Function = bytecode.FunctionID(def.FunctionIndex)
		}
	}

	for _, exp := range m.Exports {
		obj.Exports = append(obj.Exports, link.Export{Symbol: exp.Symbol, Value: exp.Value})
	}

	return obj, nil
}

func lowerTopLevel(obj *link.LinkObject, def ir.TopLevelDef) (link.LinkItem, error) {
	switch def.Kind {
	case ir.TopLevelString:
		h := obj.Strings.Intern(def.String)
		return link.LinkItem{Kind: link.LinkDefinition, Value: bytecode.StringMember(h)}, nil
	case ir.TopLevelSymbol:
		return link.LinkItem{Kind: link.LinkDefinition, Value: bytecode.Symbol(bytecode.MemberID(def.Ref))}, nil
	case ir.TopLevelImport:
		return link.LinkItem{Kind: link.LinkDefinition, Value: bytecode.Import(bytecode.MemberID(def.Ref))}, nil
	case ir.TopLevelVariable:
		return link.LinkItem{Kind: link.LinkDefinition, Value: bytecode.Variable(bytecode.MemberID(def.Ref))}, nil
	case ir.TopLevelFunction:
		// Function placeholder; filled in by Module once every
		// function has a stable index (functions lower after defs).
		return link.LinkItem{Kind: link.LinkDefinition, Value: bytecode.FunctionMember(bytecode.InvalidFunctionID)}, nil
	case ir.TopLevelRecordSchema:
		keys := make([]bytecode.MemberID, len(def.Keys))
		for i, k := range def.Keys {
			keys[i] = bytecode.MemberID(k)
		}
		id := bytecode.RecordSchemaID(len(obj.RecordSchemas))
		obj.RecordSchemas = append(obj.RecordSchemas, bytecode.RecordSchema{Keys: keys})
		return link.LinkItem{Kind: link.LinkDefinition, Value: bytecode.RecordSchemaMember(id)}, nil
	default:
		panic("lower: unhandled top-level kind")
	}
}

// Function runs register allocation over fn and lowers it into a
// bytecode.Function (spec §4.7).
func Function(fn *ir.Function) (*bytecode.Function, error) {
	table := regalloc.Allocate(fn)
	l := &lowering{fn: fn, table: table, w: bytecode.NewFunctionWriter()}

	for id := ir.BlockID(0); int(id) < fn.BlockCount(); id++ {
		block := fn.Block(id)
		l.w.DefineLabel(bytecode.Label(id))
		if block.Handler.Valid() {
			l.w.StartHandler(bytecode.Label(block.Handler))
		} else {
			l.w.StartHandler(bytecode.InvalidLabel)
		}

		for i := block.Phis; i < len(block.Stmts); i++ {
			if err := l.emitStmt(block.Stmts[i].Local); err != nil {
				return nil, err
			}
		}

		for _, copy := range table.PhiCopies(id) {
			l.w.Write(bytecode.Copy(copy.Src, copy.Dst))
		}

		if err := l.emitTerminator(block.Terminator); err != nil {
			return nil, err
		}
	}

	code, handlers, refs := l.w.Finish()
	return &bytecode.Function{
		Name:       bytecode.MemberID(fn.Name),
		Kind:       functionKind(fn.Kind),
		ParamCount: fn.ParamCount,
		LocalCount: table.TotalRegisters(),
		Code:       code,
		Handlers:   handlers,
		Refs:       refs,
	}, nil
}

func functionKind(k ir.FunctionKind) bytecode.FunctionKind {
	if k == ir.FunctionClosure {
		return bytecode.FunctionClosure
	}
	return bytecode.FunctionNormal
}

type lowering struct {
	fn    *ir.Function
	table *regalloc.LocationTable
	w     *bytecode.FunctionWriter
}

// regOf resolves the register that holds local's value, following
// Write/GetAggregateMember aliases through to their underlying
// location instead of the (nonexistent) zero-size location those
// kinds are assigned directly (spec §4.7 step 4).
func (l *lowering) regOf(local ir.LocalID) bytecode.Register {
	v := l.fn.Value(local)
	switch v.Kind {
	case ir.RValueWrite:
		return l.regOf(v.Operands[0])
	case ir.RValueGetAggregateMember:
		return l.table.Get(v.Operands[0]).Reg(int(v.Member))
	default:
		return l.table.Get(local).Reg(0)
	}
}

func (l *lowering) emitStmt(local ir.LocalID) error {
	v := l.fn.Value(local)
	target := func() bytecode.Register { return l.table.Get(local).Reg(0) }
	op := func(i int) bytecode.Register { return l.regOf(v.Operands[i]) }

	switch v.Kind {
	case ir.RValueUse:
		l.w.Write(bytecode.Copy(op(0), target()))
	case ir.RValueConstInt:
		l.w.Write(bytecode.LoadInt(v.Int, target()))
	case ir.RValueConstFloat:
		l.w.Write(bytecode.LoadFloat(v.Float, target()))
	case ir.RValueConstBool:
		if v.Bool {
			l.w.Write(bytecode.LoadTrue(target()))
		} else {
			l.w.Write(bytecode.LoadFalse(target()))
		}
	case ir.RValueConstNull:
		l.w.Write(bytecode.LoadNull(target()))

	case ir.RValueBinaryOp:
		ctor, ok := binOps[v.BinOp]
		if !ok {
			return fmt.Errorf("lower: unhandled binary op %d", v.BinOp)
		}
		l.w.Write(ctor(op(0), op(1), target()))
	case ir.RValueUnaryOp:
		ctor, ok := unOps[v.UnOp]
		if !ok {
			return fmt.Errorf("lower: unhandled unary op %d", v.UnOp)
		}
		l.w.Write(ctor(op(0), target()))

	case ir.RValueContainer:
		for _, elem := range v.Operands {
			l.w.Write(bytecode.Push(l.regOf(elem)))
		}
		ctor, ok := containerOps[v.Container]
		if !ok {
			return fmt.Errorf("lower: unhandled container kind %d", v.Container)
		}
		l.w.Write(ctor(uint32(len(v.Operands)), target()))

	case ir.RValueCall:
		for _, arg := range v.Operands[1:] {
			l.w.Write(bytecode.Push(l.regOf(arg)))
		}
		l.w.Write(bytecode.Call(op(0), uint32(len(v.Operands)-1)))
		l.w.Write(bytecode.PopTo(target()))

	case ir.RValueMethodCall:
		agg := v.Operands[0]
		this, method := l.table.Get(agg).Reg(0), l.table.Get(agg).Reg(1)
		l.w.Write(bytecode.Push(this))
		for _, arg := range v.Operands[1:] {
			l.w.Write(bytecode.Push(l.regOf(arg)))
		}
		l.w.Write(bytecode.CallMethod(method, uint32(len(v.Operands))))
		l.w.Write(bytecode.PopTo(target()))

	case ir.RValueFormat:
		t := target()
		l.w.Write(bytecode.Formatter(t))
		for _, part := range v.Operands {
			l.w.Write(bytecode.AppendFormat(l.regOf(part), t))
		}
		l.w.Write(bytecode.FormatResult(t, t))

	case ir.RValueRecord:
		for _, field := range v.Operands {
			l.w.Write(bytecode.Push(l.regOf(field)))
		}
		l.w.Write(bytecode.Record(bytecode.MemberID(v.Ref), target()))

	case ir.RValueLoadParam:
		l.w.Write(bytecode.LoadParam(bytecode.Param(v.ParamIndex), target()))
	case ir.RValueLoadModule:
		l.w.Write(bytecode.LoadModule(bytecode.MemberID(v.Ref), target()))
	case ir.RValueLoadMember:
		l.w.Write(bytecode.LoadMember(op(0), bytecode.MemberID(v.Ref), target()))
	case ir.RValueLoadTupleMember:
		l.w.Write(bytecode.LoadTupleMember(op(0), v.Num1, target()))
	case ir.RValueLoadIndex:
		l.w.Write(bytecode.LoadIndex(op(0), op(1), target()))
	case ir.RValueLoadClosure:
		l.w.Write(bytecode.LoadClosure(target()))
	case ir.RValueLoadEnv:
		l.w.Write(bytecode.LoadEnv(op(0), v.Num1, v.Num2, target()))
	case ir.RValueMakeEnv:
		parent := bytecode.InvalidRegister
		if v.Operands[0].Valid() {
			parent = l.regOf(v.Operands[0])
		}
		l.w.Write(bytecode.Env(parent, v.Num1, target()))
	case ir.RValueMakeClosure:
		l.w.Write(bytecode.Closure(bytecode.MemberID(v.Ref), op(0), target()))
	case ir.RValueLoadMethod:
		loc := l.table.Get(local)
		l.w.Write(bytecode.LoadMethod(op(0), bytecode.MemberID(v.Ref), loc.Reg(0), loc.Reg(1)))
	case ir.RValueIterator:
		l.w.Write(bytecode.Iterator(op(0), target()))
	case ir.RValueIteratorNext:
		loc := l.table.Get(local)
		l.w.Write(bytecode.IteratorNext(op(0), loc.Reg(0), loc.Reg(1)))

	case ir.RValueStoreParam:
		l.w.Write(bytecode.StoreParam(op(0), bytecode.Param(v.ParamIndex)))
	case ir.RValueStoreModule:
		l.w.Write(bytecode.StoreModule(op(0), bytecode.MemberID(v.Ref)))
	case ir.RValueStoreMember:
		l.w.Write(bytecode.StoreMember(op(0), op(1), bytecode.MemberID(v.Ref)))
	case ir.RValueStoreTupleMember:
		l.w.Write(bytecode.StoreTupleMember(op(0), op(1), v.Num1))
	case ir.RValueStoreIndex:
		l.w.Write(bytecode.StoreIndex(op(0), op(1), op(2)))
	case ir.RValueStoreEnv:
		l.w.Write(bytecode.StoreEnv(op(0), op(1), v.Num1, v.Num2))

	case ir.RValueWrite, ir.RValueGetAggregateMember, ir.RValuePhi, ir.RValueAggregate:
		// Pure aliases; no instruction (spec §4.7 step 4). Aggregate
		// locals are populated by whichever multi-register instruction
		// targets their location (LoadMethod, IteratorNext), never
		// emitted on their own.

	case ir.RValueObserveAssign:
		// The preallocated register already holds the observed value
		// by construction; nothing to emit.

	case ir.RValuePublishAssign:
		src := l.regOf(v.Operands[0])
		dst := l.table.Get(local).Reg(0)
		if src != dst {
			l.w.Write(bytecode.Copy(src, dst))
		}

	default:
		return fmt.Errorf("lower: unhandled rvalue kind %d", v.Kind)
	}
	return nil
}

func (l *lowering) emitTerminator(t ir.Terminator) error {
	switch t.Kind {
	case ir.TerminatorEntry:
		l.w.Write(bytecode.Jmp(bytecode.Label(t.Next)))
	case ir.TerminatorJump:
		l.w.Write(bytecode.Jmp(bytecode.Label(t.Jump)))
	case ir.TerminatorBranch:
		cond := l.regOf(t.Cond)
		trueLabel, falseLabel := bytecode.Label(t.TrueTarget), bytecode.Label(t.FalseTarget)
		switch t.BranchKind {
		case ir.BranchIfTrue:
			l.w.Write(bytecode.JmpTrue(cond, trueLabel))
		case ir.BranchIfFalse:
			l.w.Write(bytecode.JmpFalse(cond, trueLabel))
		case ir.BranchIfNull:
			l.w.Write(bytecode.JmpNull(cond, trueLabel))
		case ir.BranchIfNotNull:
			l.w.Write(bytecode.JmpNotNull(cond, trueLabel))
		default:
			return fmt.Errorf("lower: unhandled branch kind %d", t.BranchKind)
		}
		l.w.Write(bytecode.Jmp(falseLabel))
	case ir.TerminatorReturn:
		l.w.Write(bytecode.Return(l.regOf(t.Value)))
	case ir.TerminatorAssertFail:
		l.w.Write(bytecode.AssertFail(l.regOf(t.Expr), l.regOf(t.Msg)))
	default:
		return fmt.Errorf("lower: unhandled terminator kind %d", t.Kind)
	}
	return nil
}

var binOps = map[ir.BinaryOp]func(lhs, rhs, target bytecode.Register) bytecode.Instruction{
	ir.BinAdd:  bytecode.Add,
	ir.BinSub:  bytecode.Sub,
	ir.BinMul:  bytecode.Mul,
	ir.BinDiv:  bytecode.Div,
	ir.BinMod:  bytecode.Mod,
	ir.BinPow:  bytecode.Pow,
	ir.BinLSh:  bytecode.LSh,
	ir.BinRSh:  bytecode.RSh,
	ir.BinBAnd: bytecode.BAnd,
	ir.BinBOr:  bytecode.BOr,
	ir.BinBXor: bytecode.BXor,
	ir.BinGt:   bytecode.Gt,
	ir.BinGte:  bytecode.Gte,
	ir.BinLt:   bytecode.Lt,
	ir.BinLte:  bytecode.Lte,
	ir.BinEq:   bytecode.Eq,
	ir.BinNEq:  bytecode.NEq,
}

var unOps = map[ir.UnaryOp]func(value, target bytecode.Register) bytecode.Instruction{
	ir.UnUAdd: bytecode.UAdd,
	ir.UnUNeg: bytecode.UNeg,
	ir.UnBNot: bytecode.BNot,
	ir.UnLNot: bytecode.LNot,
}

var containerOps = map[ir.ContainerKind]func(count uint32, target bytecode.Register) bytecode.Instruction{
	ir.ContainerArray: bytecode.Array,
	ir.ContainerTuple: bytecode.Tuple,
	ir.ContainerSet:   bytecode.Set,
	ir.ContainerMap:   bytecode.Map,
}
