package recordlayout

import (
	"fmt"
	"strconv"

	"fortio.org/safecast"

	"cirgen/internal/cir"
	"cirgen/internal/layout"
	"cirgen/internal/trace"
	"cirgen/internal/types"
)

// Options tunes lowering decisions that do not affect the ABI.
type Options struct {
	// FineGrainedBitFieldAccess gives a bit-field run its own storage unit
	// when the run is a naturally aligned legal integer.
	FineGrainedBitFieldAccess bool
}

// Types converts source types to physical IR types and memoizes record
// layouts. It is not safe for concurrent use.
type Types struct {
	Ctx    *cir.Context
	DL     *cir.DataLayout
	Src    *types.Interner
	Oracle *layout.Engine
	Opts   Options
	Tracer trace.Tracer

	records    map[*types.RecordDecl]*RecordLayout
	inProgress map[*types.RecordDecl]bool
	vptrType   cir.TypeID
}

// NewTypes creates a converter. The data layout is configured from the
// oracle's target.
func NewTypes(ctx *cir.Context, oracle *layout.Engine, opts Options) *Types {
	tg := oracle.Target
	dl := cir.NewDataLayout(ctx)
	dl.BigEndian = tg.BigEndian
	dl.PtrSize, dl.PtrAlign = tg.PtrSize, tg.PtrAlign
	dl.Int64Align, dl.Int128Align = tg.Int64Align, tg.Int128Align
	dl.DoubleAlign, dl.MaxVecAlign = tg.DoubleAlign, tg.MaxVecAlign
	return &Types{
		Ctx: ctx, DL: dl, Src: oracle.Types, Oracle: oracle, Opts: opts, Tracer: trace.Nop,
		records:    make(map[*types.RecordDecl]*RecordLayout),
		inProgress: make(map[*types.RecordDecl]bool),
	}
}

// ConvertType returns the in-memory physical type of a source type.
func (ts *Types) ConvertType(id types.TypeID) cir.TypeID {
	t := ts.Src.MustLookup(id)
	c := ts.Ctx
	switch t.Kind {
	case types.KindVoid:
		return c.Void()
	case types.KindBool:
		return c.Bool()
	case types.KindInt:
		return c.Int(t.Width, t.Signed)
	case types.KindFloat:
		return c.Float(t.Width)
	case types.KindPointer:
		return c.Pointer(ts.convertPointee(t.Elem))
	case types.KindNullPtr:
		return c.Pointer(c.Void())
	case types.KindMemberPointer:
		// Itanium data member pointers are ptrdiff_t offsets.
		return c.Int(safecast.MustConv[uint16](ts.Oracle.Target.PtrSize*8), true)
	case types.KindArray:
		n := t.Count
		if n == types.IncompleteLength {
			n = 0
		}
		return c.Array(ts.ConvertType(t.Elem), n)
	case types.KindVector:
		return c.Vector(ts.ConvertType(t.Elem), t.Count)
	case types.KindRecord:
		return ts.ConvertRecord(ts.Src.Record(id))
	}
	panic(fmt.Sprintf("recordlayout: cannot convert %s", ts.Src.String(id)))
}

// convertPointee avoids lowering a record that is already being lowered:
// a pointer to it only needs the named (possibly incomplete) type.
func (ts *Types) convertPointee(id types.TypeID) cir.TypeID {
	if rd := ts.Src.Record(id); rd != nil && ts.inProgress[rd] {
		return ts.recordType(rd)
	}
	return ts.ConvertType(id)
}

func recordKind(rd *types.RecordDecl) cir.RecordKind {
	switch rd.Tag {
	case types.TagUnion:
		return cir.RecordUnion
	case types.TagClass:
		return cir.RecordClass
	}
	return cir.RecordStruct
}

func (ts *Types) recordType(rd *types.RecordDecl) cir.TypeID {
	return ts.Ctx.NamedRecord(rd.Name, recordKind(rd))
}

// ConvertRecord returns the complete object type of rd, lowering it on
// first use.
func (ts *Types) ConvertRecord(rd *types.RecordDecl) cir.TypeID {
	if ts.inProgress[rd] {
		return ts.recordType(rd)
	}
	return ts.RecordLayout(rd).CompleteObjectType
}

// RecordLayout returns the memoized layout of rd.
func (ts *Types) RecordLayout(rd *types.RecordDecl) *RecordLayout {
	if rl, ok := ts.records[rd]; ok {
		return rl
	}
	if ts.inProgress[rd] {
		panic("recordlayout: record " + rd.Name + " contains itself")
	}
	ts.inProgress[rd] = true
	rl := ts.computeRecordLayout(rd)
	delete(ts.inProgress, rd)
	ts.records[rd] = rl
	return rl
}

// BaseSubobjectType returns the storage type used for rd as a base. Records
// without a separate base type use their complete object type.
func (ts *Types) BaseSubobjectType(rd *types.RecordDecl) cir.TypeID {
	rl := ts.RecordLayout(rd)
	if rl.BaseSubobjectType != cir.NoType {
		return rl.BaseSubobjectType
	}
	return rl.CompleteObjectType
}

// IsZeroInitializable reports whether a value of type id is represented by
// all-zero bytes when zero-initialized.
func (ts *Types) IsZeroInitializable(id types.TypeID) bool {
	t := ts.Src.MustLookup(id)
	switch t.Kind {
	case types.KindArray:
		return ts.IsZeroInitializable(t.Elem)
	case types.KindMemberPointer:
		return false
	case types.KindRecord:
		return ts.RecordLayout(ts.Src.Record(id)).IsZeroInitializable()
	}
	return true
}

// IsZeroInitializableRecord is IsZeroInitializable for a declaration.
func (ts *Types) IsZeroInitializableRecord(rd *types.RecordDecl) bool {
	return ts.RecordLayout(rd).IsZeroInitializable()
}

// VPtrType is the type of a vtable pointer slot.
func (ts *Types) VPtrType() cir.TypeID {
	if ts.vptrType == cir.NoType {
		c := ts.Ctx
		fn := c.Func(nil, c.Int(32, false))
		ts.vptrType = c.Pointer(c.Pointer(fn))
	}
	return ts.vptrType
}

func (ts *Types) computeRecordLayout(rd *types.RecordDecl) *RecordLayout {
	span := trace.Begin(ts.Tracer, trace.ScopeRecord, "lower "+rd.Name, 0)
	ast := ts.Oracle.MustRecord(rd)
	ty := ts.recordType(rd)

	low := newLowering(ts, rd, ast, false)
	low.lower(false)

	baseTy := cir.NoType
	if rd.CXX && !rd.IsUnion() && !rd.Final {
		baseTy = ty
		if ast.NonVirtualSize != ast.Size {
			baseLow := newLowering(ts, rd, ast, low.packed)
			baseLow.lower(true)
			if baseLow.packed != low.packed {
				panic("recordlayout: non-virtual and complete types of " + rd.Name + " disagree on packedness")
			}
			baseTy = ts.Ctx.NamedRecord(rd.Name+".base", recordKind(rd))
			ts.Ctx.CompleteRecord(baseTy, baseLow.fieldTypes, baseLow.packed, baseLow.padded)
		}
	}

	// Completing the body last lets lowering the base type refer to the
	// still-incomplete complete type.
	ts.Ctx.CompleteRecord(ty, low.fieldTypes, low.packed, low.padded)
	if rd.IsUnion() && low.unionStorage >= 0 {
		ts.Ctx.SetUnionStorage(ty, low.unionStorage)
	}

	rl := &RecordLayout{
		Decl:               rd,
		CompleteObjectType: ty,
		BaseSubobjectType:  baseTy,
		fieldIdx:           low.fieldIdx,
		nonVirtualBases:    low.nonVirtualBases,
		virtualBases:       low.virtualBases,
		bitFields:          low.bitFields,
		zeroInit:           low.zeroInit,
		zeroInitAsBase:     low.zeroInitAsBase,
	}
	span.SetInt("members", len(low.fieldTypes)).
		Set("packed", strconv.FormatBool(low.packed)).
		End(ts.Ctx.TypeString(ty))
	return rl
}
