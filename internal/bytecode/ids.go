// Package bytecode implements the instruction set, module layout, and
// binary encoding/decoding of the verified bytecode produced by this
// compiler's backend. It owns the in-memory Module/Function/Member
// data model (spec §3) and the per-opcode serialization metadata
// (spec §6.2); it does not itself decide what bytecode to emit — that
// is internal/lower's job.
package bytecode

import "math"

// MemberID identifies a Module member: a constant, a symbol, an
// import, a variable, a function, or a record schema.
type MemberID uint32

// InvalidMemberID is the sentinel for "no member", e.g. an absent
// function name or absent module init.
const InvalidMemberID MemberID = math.MaxUint32

// Valid reports whether id refers to an actual member.
func (id MemberID) Valid() bool { return id != InvalidMemberID }

// FunctionID identifies a Function within a Module.
type FunctionID uint32

const InvalidFunctionID FunctionID = math.MaxUint32

func (id FunctionID) Valid() bool { return id != InvalidFunctionID }

// RecordSchemaID identifies a RecordSchema within a Module.
type RecordSchemaID uint32

const InvalidRecordSchemaID RecordSchemaID = math.MaxUint32

func (id RecordSchemaID) Valid() bool { return id != InvalidRecordSchemaID }

// Register is a per-function local register slot index.
type Register uint32

const InvalidRegister Register = math.MaxUint32

func (r Register) Valid() bool { return r != InvalidRegister }

// Param is a per-function parameter index.
type Param uint32

// Offset is a byte offset into a function's code buffer.
type Offset uint32

// Label is an allocator/lowering-local jump target, resolved to an
// Offset when the function's FunctionWriter finishes.
type Label uint32

const InvalidLabel Label = math.MaxUint32

func (l Label) Valid() bool { return l != InvalidLabel }
