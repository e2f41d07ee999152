package link

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
)

// defEntry records where one Definition item lives, ahead of the
// canonical sort that decides its final MemberID.
type defEntry struct {
	objIdx, itemIdx int
	item            LinkItem
}

// Link merges one or more LinkObjects produced for irModule into a
// single linked, canonically ordered bytecode.Module (spec §4.9). The
// IR module supplies the module's name and init symbol; everything
// else comes from the objects. logger may be nil, in which case
// linking proceeds silently.
func Link(logger *zap.Logger, irModule *ir.Module, objects ...*LinkObject) (*bytecode.Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &linker{irModule: irModule, objects: objects, log: logger.Sugar()}
	return l.run()
}

type linker struct {
	irModule *ir.Module
	objects  []*LinkObject
	log      *zap.SugaredLogger

	defs []defEntry

	// linkItemRename maps (objIdx, itemIdx) of a Definition to its new
	// dense MemberID (step 2).
	linkItemRename map[[2]int]bytecode.MemberID
	// irSymbolRename maps a Definition's IrSymbolId to its new MemberID,
	// for resolving Use items and the module's init (step 2, step 9).
	irSymbolRename map[uint32]bytecode.MemberID
	// defByIrID indexes defs by IrSymbolId, for resolving a Use's
	// referenced content during canonical ordering, before renaming
	// exists.
	defByIrID map[uint32]defEntry
}

func (l *linker) run() (*bytecode.Module, error) {
	// Step 1: gather Definitions and sort into canonical order.
	for oi, obj := range l.objects {
		for ii, item := range obj.Items {
			if item.Kind == LinkDefinition {
				l.defs = append(l.defs, defEntry{objIdx: oi, itemIdx: ii, item: item})
			}
		}
	}
	l.defByIrID = make(map[uint32]defEntry, len(l.defs))
	for _, d := range l.defs {
		if d.item.IrID != ir.InvalidIrSymbolID {
			l.defByIrID[d.item.IrID] = d
		}
	}
	sort.SliceStable(l.defs, func(i, j int) bool {
		return l.less(l.defs[i], l.defs[j])
	})
	l.log.Debugw("reorder", "objects", len(l.objects), "members", len(l.defs))

	// Step 2: rename maps.
	l.linkItemRename = make(map[[2]int]bytecode.MemberID, len(l.defs))
	l.irSymbolRename = make(map[uint32]bytecode.MemberID, len(l.defs))
	for newID, d := range l.defs {
		l.linkItemRename[[2]int{d.objIdx, d.itemIdx}] = bytecode.MemberID(newID)
		if d.item.IrID != ir.InvalidIrSymbolID {
			l.irSymbolRename[d.item.IrID] = bytecode.MemberID(newID)
		}
	}
	l.log.Debugw("rename", "renamed", len(l.linkItemRename))

	// Steps 4, 5, 8: copy functions and record schemas in their
	// original per-object declaration order (their "IDs" are not
	// reordered, only Member slots pointing at them move), patching
	// function code and sorting each schema's keys along the way.
	funcOffset := make([]int, len(l.objects))
	schemaOffset := make([]int, len(l.objects))
	var functions []bytecode.Function
	var schemas []bytecode.RecordSchema
	for oi, obj := range l.objects {
		funcOffset[oi] = len(functions)
		for _, fn := range obj.Functions {
			patched, err := l.patchFunction(oi, fn)
			if err != nil {
				return nil, err
			}
			functions = append(functions, patched)
		}
		l.log.Debugw("patch", "object", oi, "functions", len(obj.Functions))

		schemaOffset[oi] = len(schemas)
		for _, src := range obj.RecordSchemas {
			keys := make([]bytecode.MemberID, len(src.Keys))
			for k, placeholder := range src.Keys {
				keys[k] = l.resolveRef(oi, placeholder)
			}
			sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
			schemas = append(schemas, bytecode.RecordSchema{Keys: keys})
		}
	}

	// Step 3: fix member cross-references, building the final member
	// list in its new, dense order.
	members := make([]bytecode.Member, len(l.defs))
	for newID, d := range l.defs {
		members[newID] = l.rewriteMember(d.objIdx, d.item.Value, funcOffset, schemaOffset)
	}

	// Step 6: intern strings through a per-object source-to-destination
	// map, populated lazily on first occurrence.
	finalStrings := bytecode.NewStringTable()
	stringMaps := make([]map[bytecode.StringHandle]bytecode.StringHandle, len(l.objects))
	for oi := range l.objects {
		stringMaps[oi] = make(map[bytecode.StringHandle]bytecode.StringHandle)
	}
	for i := range members {
		if members[i].Kind != bytecode.MemberString {
			continue
		}
		oi := l.defs[i].objIdx
		sm := stringMaps[oi]
		h, ok := sm[members[i].String]
		if !ok {
			content, ok2 := l.objects[oi].Strings.Lookup(members[i].String)
			if !ok2 {
				return nil, fmt.Errorf("link: dangling string handle %d", members[i].String)
			}
			h = finalStrings.Intern(content)
			sm[members[i].String] = h
		}
		members[i].String = h
	}

	// Step 7: copy exports sorted by symbol MemberID.
	var exports []bytecode.Export
	for oi, obj := range l.objects {
		for _, e := range obj.Exports {
			exports = append(exports, bytecode.Export{
				Symbol: l.resolveRef(oi, bytecode.MemberID(e.Symbol)),
				Value:  l.resolveRef(oi, bytecode.MemberID(e.Value)),
			})
		}
	}
	sort.SliceStable(exports, func(i, j int) bool { return exports[i].Symbol < exports[j].Symbol })

	// Step 9: module name and init.
	init := bytecode.InvalidMemberID
	if l.irModule.Init != ir.InvalidIrSymbolID {
		id, ok := l.irSymbolRename[l.irModule.Init]
		if !ok {
			return nil, fmt.Errorf("link: init symbol %d has no definition", l.irModule.Init)
		}
		init = id
	}

	return &bytecode.Module{
		Name:          l.irModule.Name,
		Members:       members,
		Functions:     functions,
		RecordSchemas: schemas,
		Exports:       exports,
		Init:          init,
		Strings:       *finalStrings,
	}, nil
}

// resolveRef maps a pre-link MemberID-shaped placeholder (an index
// into objects[objIdx].Items) to its final MemberID, following a Use
// through to its Definition.
func (l *linker) resolveRef(objIdx int, placeholder bytecode.MemberID) bytecode.MemberID {
	if !placeholder.Valid() {
		return bytecode.InvalidMemberID
	}
	item := l.objects[objIdx].Items[placeholder]
	switch item.Kind {
	case LinkDefinition:
		return l.linkItemRename[[2]int{objIdx, int(placeholder)}]
	case LinkUse:
		id, ok := l.irSymbolRename[item.Target]
		if !ok {
			panic(fmt.Sprintf("link: use of symbol %d has no matching definition", item.Target))
		}
		return id
	default:
		panic("link: unhandled link item kind")
	}
}

// rewriteMember rewrites every internal reference field of a
// Definition value: MemberID fields through the rename map, and
// Function/RecordSchema fields through their per-object concatenation
// offset (step 3).
func (l *linker) rewriteMember(objIdx int, m bytecode.Member, funcOffset, schemaOffset []int) bytecode.Member {
	switch m.Kind {
	case bytecode.MemberSymbol, bytecode.MemberImport, bytecode.MemberVariable:
		m.Name = l.resolveRef(objIdx, m.Name)
	case bytecode.MemberFunction:
		m.Function = bytecode.FunctionID(funcOffset[objIdx] + int(m.Function))
	case bytecode.MemberRecordSchema:
		m.Schema = bytecode.RecordSchemaID(schemaOffset[objIdx] + int(m.Schema))
	}
	return m
}

// patchFunction rewrites fn's name (if present) and every module
// reference in its code buffer (spec §4.9 steps 5, 8).
func (l *linker) patchFunction(objIdx int, fn bytecode.Function) (bytecode.Function, error) {
	if fn.Name.Valid() {
		fn.Name = l.resolveRef(objIdx, fn.Name)
	}
	code := make([]byte, len(fn.Code))
	copy(code, fn.Code)
	for _, ref := range fn.Refs {
		if ref.Pos+4 > len(code) {
			return bytecode.Function{}, fmt.Errorf("link: patch site %d out of range in function named %d", ref.Pos, fn.Name)
		}
		resolved := l.resolveRef(objIdx, ref.Member)
		binary.BigEndian.PutUint32(code[ref.Pos:ref.Pos+4], uint32(resolved))
	}
	fn.Code = code
	fn.Refs = nil
	return fn, nil
}

// less implements the canonical member order of spec §4.9.1.
func (l *linker) less(a, b defEntry) bool {
	return l.compare(a.objIdx, a.item.Value, b.objIdx, b.item.Value) < 0
}

func (l *linker) compare(aObj int, a bytecode.Member, bObj int, b bytecode.Member) int {
	if d := a.Kind.TypeOrder() - b.Kind.TypeOrder(); d != 0 {
		return sign(d)
	}
	switch a.Kind {
	case bytecode.MemberInteger:
		return cmpInt64(a.Int, b.Int)
	case bytecode.MemberFloat:
		return cmpFloat64(a.Float, b.Float)
	case bytecode.MemberString:
		return strings.Compare(l.stringOf(aObj, a.String), l.stringOf(bObj, b.String))
	case bytecode.MemberSymbol, bytecode.MemberImport, bytecode.MemberVariable:
		aObj2, aName := l.resolveItemValue(aObj, a.Name)
		bObj2, bName := l.resolveItemValue(bObj, b.Name)
		return l.compare(aObj2, aName, bObj2, bName)
	case bytecode.MemberRecordSchema:
		return l.compareSchemas(aObj, l.objects[aObj].RecordSchemas[a.Schema], bObj, l.objects[bObj].RecordSchemas[b.Schema])
	case bytecode.MemberFunction:
		return l.compareFunctions(aObj, l.objects[aObj].Functions[a.Function], bObj, l.objects[bObj].Functions[b.Function])
	default:
		return 0
	}
}

func (l *linker) compareSchemas(aObj int, a bytecode.RecordSchema, bObj int, b bytecode.RecordSchema) int {
	for i := 0; i < len(a.Keys) && i < len(b.Keys); i++ {
		aObj2, aKey := l.resolveItemValue(aObj, a.Keys[i])
		bObj2, bKey := l.resolveItemValue(bObj, b.Keys[i])
		if d := l.compare(aObj2, aKey, bObj2, bKey); d != 0 {
			return d
		}
	}
	return sign(len(a.Keys) - len(b.Keys))
}

func (l *linker) compareFunctions(aObj int, a bytecode.Function, bObj int, b bytecode.Function) int {
	if d := int(a.Kind) - int(b.Kind); d != 0 {
		return sign(d)
	}
	aNamed, bNamed := a.Name.Valid(), b.Name.Valid()
	if aNamed != bNamed {
		if aNamed {
			return -1
		}
		return 1
	}
	if !aNamed {
		// Both anonymous: stable sort preserves insertion order.
		return 0
	}
	aObj2, aName := l.resolveItemValue(aObj, a.Name)
	bObj2, bName := l.resolveItemValue(bObj, b.Name)
	return l.compare(aObj2, aName, bObj2, bName)
}

// resolveItemValue returns the Member value ultimately named by a
// pre-link placeholder, following a Use to its Definition's value
// (used during canonical ordering, before renaming exists).
func (l *linker) resolveItemValue(objIdx int, placeholder bytecode.MemberID) (int, bytecode.Member) {
	item := l.objects[objIdx].Items[placeholder]
	if item.Kind == LinkDefinition {
		return objIdx, item.Value
	}
	d, ok := l.defByIrID[item.Target]
	if !ok {
		panic(fmt.Sprintf("link: use of symbol %d has no matching definition", item.Target))
	}
	return d.objIdx, d.item.Value
}

func (l *linker) stringOf(objIdx int, h bytecode.StringHandle) string {
	s, ok := l.objects[objIdx].Strings.Lookup(h)
	if !ok {
		panic(fmt.Sprintf("link: dangling string handle %d", h))
	}
	return s
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
