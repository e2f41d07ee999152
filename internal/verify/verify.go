// Package verify implements the static bytecode module verifier (spec
// §4.10): a pass over a fully-linked bytecode.Module that rejects any
// module the interpreter could not safely execute — out-of-bounds
// register/member references, missing halting instructions, malformed
// handler tables — before a single instruction runs.
package verify

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tiro-lang/tiro/internal/binary"
	"github.com/tiro-lang/tiro/internal/bytecode"
)

// Limits are the implementation-defined caps the verifier enforces
// (spec §9 Open Question: exact values are implementation-defined).
type Limits struct {
	MaxLocals        uint32
	MaxContainerArgs uint32
}

// DefaultLimits returns the spec's suggested typical values: 2^16 for
// locals, 2^20 for container argument counts.
func DefaultLimits() Limits {
	return Limits{MaxLocals: 1 << 16, MaxContainerArgs: 1 << 20}
}

// VerificationError is returned by Verify on any rule violation (spec
// §6.3). Member is nil when the violation is not attributable to a
// single member (e.g. a missing module name).
type VerificationError struct {
	Module  string
	Member  *bytecode.MemberID
	Message string
	// Total is the module's member count at the time of failure,
	// carried for friendlier diagnostics ("member 12 of 40").
	Total int
}

func (e *VerificationError) Error() string {
	if e.Member != nil {
		return fmt.Sprintf("module %q verification error: %s (member %d of %d)",
			e.Module, e.Message, *e.Member, e.Total)
	}
	return fmt.Sprintf("module %q verification error: %s", e.Module, e.Message)
}

// failure is the payload Verify recovers at its boundary; it never
// escapes this package as a panic.
type failure struct{ err *VerificationError }

// Verify checks m against every rule in spec §4.10, returning a
// *VerificationError on the first violation found (module members are
// validated in ascending ID order, then each function's code). logger
// may be nil, in which case verification proceeds silently.
func Verify(logger *zap.Logger, m *bytecode.Module, limits Limits) (err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(failure)
			if !ok {
				panic(r)
			}
			err = f.err
		}
	}()

	v := &moduleVerifier{module: m, limits: limits, log: logger.Sugar()}
	v.verify()
	return nil
}

type moduleVerifier struct {
	module *bytecode.Module
	limits Limits
	seen   uint32
	log    *zap.SugaredLogger
}

func (v *moduleVerifier) fail(member bytecode.MemberID, format string, args ...any) {
	var mp *bytecode.MemberID
	if member.Valid() {
		mp = &member
	}
	panic(failure{&VerificationError{
		Module:  v.module.Name,
		Member:  mp,
		Message: fmt.Sprintf(format, args...),
		Total:   len(v.module.Members),
	}})
}

func (v *moduleVerifier) verify() {
	if v.module.Name == "" {
		v.fail(bytecode.InvalidMemberID, "module does not have a valid name")
	}

	for i, member := range v.module.Members {
		id := bytecode.MemberID(i)
		v.visitMember(id, member)
		v.seen++
	}
	v.log.Debugw("validate-member", "module", v.module.Name, "members", len(v.module.Members))

	for i, member := range v.module.Members {
		if member.Kind != bytecode.MemberFunction {
			continue
		}
		id := bytecode.MemberID(i)
		fn := v.function(id, member.Function)
		newFunctionVerifier(id, fn, v).verify()
	}

	if v.module.Init.Valid() {
		init := v.checkReference(v.module.Init, bytecode.InvalidMemberID)
		if init.Kind != bytecode.MemberFunction {
			v.fail(v.module.Init, "member is not a function (required by module init)")
		}
		fn := v.function(v.module.Init, init.Function)
		if fn.Kind != bytecode.FunctionNormal {
			v.fail(v.module.Init, "member is not a normal function (required by module init)")
		}
	}

	for _, export := range v.module.Exports {
		symbol := v.checkReference(export.Symbol, bytecode.InvalidMemberID)
		if symbol.Kind != bytecode.MemberSymbol {
			v.fail(export.Symbol, "member is not a symbol (required by usage as export name)")
		}

		value := v.checkReference(export.Value, bytecode.InvalidMemberID)
		switch value.Kind {
		case bytecode.MemberImport, bytecode.MemberRecordSchema:
			v.fail(export.Value, "forbidden export of internal type")
		case bytecode.MemberFunction:
			fn := v.function(export.Value, value.Function)
			if fn.Kind != bytecode.FunctionNormal {
				v.fail(export.Value, "member is not a normal function (required by export)")
			}
		}
	}
}

func (v *moduleVerifier) visitMember(id bytecode.MemberID, m bytecode.Member) {
	switch m.Kind {
	case bytecode.MemberInteger, bytecode.MemberFloat, bytecode.MemberVariable:
		// no further checks.
	case bytecode.MemberString:
		if _, ok := v.module.Strings.Lookup(m.String); !ok {
			v.fail(id, "invalid string reference")
		}
	case bytecode.MemberSymbol:
		name := v.checkReference(m.Name, id)
		if name.Kind != bytecode.MemberString {
			v.fail(id, "member %d is not a string (required by symbol)", m.Name)
		}
	case bytecode.MemberImport:
		name := v.checkReference(m.Name, id)
		if name.Kind != bytecode.MemberString {
			v.fail(id, "member %d is not a string (required by import)", m.Name)
		}
	case bytecode.MemberFunction:
		fn := v.function(id, m.Function)
		if fn.Name.Valid() {
			name := v.checkReference(fn.Name, id)
			if name.Kind != bytecode.MemberString {
				v.fail(id, "member %d is not a string (required by function name)", fn.Name)
			}
		}
		// Code and handlers are verified once all members have been
		// seen; see the second pass in verify().
	case bytecode.MemberRecordSchema:
		schema := v.recordSchema(id, m.Schema)
		for _, key := range schema.Keys {
			k := v.checkReference(key, id)
			if k.Kind != bytecode.MemberSymbol {
				v.fail(id, "member %d is not a symbol (required by record schema key)", key)
			}
		}
	default:
		v.fail(id, "member has unknown kind")
	}
}

// checkReference validates id as a reference from parent (or from the
// module itself, when parent is InvalidMemberID), enforcing the
// forward-reference ban: a reference to a member with id >= seen has
// not been visited yet and is rejected (spec §4.10.1).
func (v *moduleVerifier) checkReference(id, parent bytecode.MemberID) bytecode.Member {
	if !id.Valid() {
		v.fail(parent, "invalid module member id")
	}
	if int(id) >= len(v.module.Members) {
		v.fail(parent, "member id %d is out of bounds", id)
	}
	if uint32(id) >= v.seen {
		v.fail(parent, "member id %d has not been visited yet", id)
	}
	return v.module.Members[id]
}

func (v *moduleVerifier) function(id bytecode.MemberID, fnID bytecode.FunctionID) *bytecode.Function {
	if !fnID.Valid() || int(fnID) >= len(v.module.Functions) {
		v.fail(id, "invalid function reference")
	}
	return &v.module.Functions[fnID]
}

func (v *moduleVerifier) recordSchema(id bytecode.MemberID, schemaID bytecode.RecordSchemaID) *bytecode.RecordSchema {
	if !schemaID.Valid() || int(schemaID) >= len(v.module.RecordSchemas) {
		v.fail(id, "invalid record schema reference")
	}
	return &v.module.RecordSchemas[schemaID]
}

// functionVerifier checks one function's locals cap, decoded
// instructions, halting-instruction law, and handler table (spec
// §4.10.2, §4.10.3).
type functionVerifier struct {
	id     bytecode.MemberID
	fn     *bytecode.Function
	parent *moduleVerifier
	starts []int
}

func newFunctionVerifier(id bytecode.MemberID, fn *bytecode.Function, parent *moduleVerifier) *functionVerifier {
	return &functionVerifier{id: id, fn: fn, parent: parent}
}

func (f *functionVerifier) fail(format string, args ...any) {
	f.parent.fail(f.id, format, args...)
}

func (f *functionVerifier) verify() {
	if f.fn.LocalCount > f.parent.limits.MaxLocals {
		f.fail("function uses too many locals (%d locals, maximum is %d)", f.fn.LocalCount, f.parent.limits.MaxLocals)
	}

	entries := f.readInstructions()
	for _, e := range entries {
		f.verifyInstruction(e.ins)
	}

	if len(entries) == 0 {
		f.fail("function body must not be empty")
	} else if !entries[len(entries)-1].ins.Op.Halting() {
		f.fail("function body must end with a halting instruction")
	}

	f.verifyHandlers()
}

type insEntry struct {
	offset int
	ins    bytecode.Instruction
}

func (f *functionVerifier) readInstructions() []insEntry {
	var entries []insEntry
	r := binary.NewReader(f.fn.Code)
	for r.Remaining() > 0 {
		pos := r.Pos()
		ins, err := bytecode.Decode(r)
		if err != nil {
			f.fail("invalid bytecode: %s", err)
		}
		entries = append(entries, insEntry{offset: pos, ins: ins})
	}
	f.starts = make([]int, len(entries))
	for i, e := range entries {
		f.starts[i] = e.offset
	}
	return entries
}

func (f *functionVerifier) isInstructionStart(offset uint32) bool {
	i := sort.SearchInts(f.starts, int(offset))
	return i < len(f.starts) && f.starts[i] == int(offset)
}

func (f *functionVerifier) verifyHandlers() {
	handlers := f.fn.Handlers
	for i, cur := range handlers {
		if !f.isInstructionStart(uint32(cur.From)) {
			f.fail("invalid exception handler start instruction")
		}
		if i > 0 && uint32(cur.From) < uint32(handlers[i-1].To) {
			f.fail("exception handler entries must be ordered")
		}
		if uint32(cur.To) != uint32(len(f.fn.Code)) && !f.isInstructionStart(uint32(cur.To)) {
			f.fail("invalid exception handler end instruction")
		}
		if uint32(cur.To) <= uint32(cur.From) {
			f.fail("invalid exception handler interval")
		}
		if !f.isInstructionStart(uint32(cur.Target)) {
			f.fail("invalid exception handler target instruction")
		}
	}
}

func (f *functionVerifier) checkReg(r bytecode.Register) {
	if uint32(r) >= f.fn.LocalCount {
		f.fail("local index out of bounds")
	}
}

func (f *functionVerifier) checkParam(p bytecode.Param) {
	if uint32(p) >= f.fn.ParamCount {
		f.fail("parameter index out of bounds")
	}
}

func (f *functionVerifier) checkOffset(o bytecode.Offset) {
	if !f.isInstructionStart(uint32(o)) {
		f.fail("jump destination does not point to the start of an instruction")
	}
}

func (f *functionVerifier) checkMember(id bytecode.MemberID) bytecode.Member {
	return f.parent.checkReference(id, f.id)
}

func (f *functionVerifier) verifyInstruction(ins bytecode.Instruction) {
	switch ins.Op {
	case bytecode.OpLoadNull, bytecode.OpLoadFalse, bytecode.OpLoadTrue,
		bytecode.OpFormatter, bytecode.OpPush, bytecode.OpPopTo, bytecode.OpReturn:
		f.checkReg(ins.A)
	case bytecode.OpPop, bytecode.OpRethrow:
		// no operands
	case bytecode.OpLoadInt, bytecode.OpLoadFloat:
		f.checkReg(ins.A)

	case bytecode.OpLoadParam:
		f.checkParam(ins.Param)
		f.checkReg(ins.A)
	case bytecode.OpStoreParam:
		f.checkReg(ins.A)
		f.checkParam(ins.Param)

	case bytecode.OpLoadModule:
		f.checkMember(ins.Member)
		f.checkReg(ins.A)
	case bytecode.OpStoreModule:
		f.checkReg(ins.A)
		f.checkMember(ins.Member)

	case bytecode.OpLoadMember:
		f.checkReg(ins.A)
		if f.checkMember(ins.Member).Kind != bytecode.MemberSymbol {
			f.fail("name in LoadMember instruction must reference a symbol")
		}
		f.checkReg(ins.B)
	case bytecode.OpStoreMember:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
		if f.checkMember(ins.Member).Kind != bytecode.MemberSymbol {
			f.fail("name in StoreMember instruction must reference a symbol")
		}

	case bytecode.OpLoadTupleMember:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
	case bytecode.OpStoreTupleMember:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	case bytecode.OpLoadIndex, bytecode.OpStoreIndex, bytecode.OpIteratorNext:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
		f.checkReg(ins.C)

	case bytecode.OpLoadClosure:
		if f.fn.Kind != bytecode.FunctionClosure {
			f.fail("only closure functions can use the LoadClosure instruction")
		}
		f.checkReg(ins.A)
	case bytecode.OpLoadEnv:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
	case bytecode.OpStoreEnv:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
		bytecode.OpLSh, bytecode.OpRSh, bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor,
		bytecode.OpGt, bytecode.OpGte, bytecode.OpLt, bytecode.OpLte, bytecode.OpEq, bytecode.OpNEq:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
		f.checkReg(ins.C)
	case bytecode.OpUAdd, bytecode.OpUNeg, bytecode.OpBNot, bytecode.OpLNot:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	case bytecode.OpArray:
		f.checkReg(ins.A)
		if ins.N1 > f.parent.limits.MaxContainerArgs {
			f.fail("too many arguments in array construction")
		}
	case bytecode.OpTuple:
		f.checkReg(ins.A)
		if ins.N1 > f.parent.limits.MaxContainerArgs {
			f.fail("too many arguments in tuple construction")
		}
	case bytecode.OpSet:
		f.checkReg(ins.A)
		if ins.N1 > f.parent.limits.MaxContainerArgs {
			f.fail("too many arguments in set construction")
		}
	case bytecode.OpMap:
		f.checkReg(ins.A)
		if ins.N1%2 != 0 {
			f.fail("map instruction must specify an even number of keys and values")
		}
		if ins.N1 > f.parent.limits.MaxContainerArgs {
			f.fail("too many arguments in map construction")
		}

	case bytecode.OpEnv:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
	case bytecode.OpClosure:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
		member := f.checkMember(ins.Member)
		if member.Kind != bytecode.MemberFunction {
			f.fail("closure instruction must reference a closure function")
		}
		if fn := f.parent.function(f.id, member.Function); fn.Kind != bytecode.FunctionClosure {
			f.fail("closure instruction must reference a closure function")
		}
	case bytecode.OpRecord:
		if f.checkMember(ins.Member).Kind != bytecode.MemberRecordSchema {
			f.fail("record instruction must reference a record schema")
		}
		f.checkReg(ins.A)

	case bytecode.OpIterator:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	case bytecode.OpFormatter:
		f.checkReg(ins.A)
	case bytecode.OpAppendFormat:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
	case bytecode.OpFormatResult:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	case bytecode.OpCopy:
		f.checkReg(ins.A)
		f.checkReg(ins.B)
	case bytecode.OpSwap:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	case bytecode.OpJmp:
		f.checkOffset(ins.Off)
	case bytecode.OpJmpTrue, bytecode.OpJmpFalse, bytecode.OpJmpNull, bytecode.OpJmpNotNull:
		f.checkReg(ins.A)
		f.checkOffset(ins.Off)

	case bytecode.OpCall:
		f.checkReg(ins.A)
	case bytecode.OpLoadMethod:
		f.checkReg(ins.A)
		if f.checkMember(ins.Member).Kind != bytecode.MemberSymbol {
			f.fail("name in LoadMethod instruction must reference a symbol")
		}
		f.checkReg(ins.B)
		f.checkReg(ins.C)
	case bytecode.OpCallMethod:
		f.checkReg(ins.A)

	case bytecode.OpAssertFail:
		f.checkReg(ins.A)
		f.checkReg(ins.B)

	default:
		f.fail("unhandled opcode %s", ins.Op)
	}
}
