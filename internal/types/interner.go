package types

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the C scalar types.
type Builtins struct {
	Void       TypeID
	Bool       TypeID
	Char       TypeID
	SChar      TypeID
	UChar      TypeID
	Short      TypeID
	UShort     TypeID
	Int        TypeID
	UInt       TypeID
	Long       TypeID
	ULong      TypeID
	LongLong   TypeID
	ULongLong  TypeID
	Int128     TypeID
	UInt128    TypeID
	Float      TypeID
	Double     TypeID
	NullPtr    TypeID
	VoidPtr    TypeID
	SizeT      TypeID
	PtrDiff    TypeID
	CharPtr    TypeID
}

// Model fixes the integer widths of a data model.
type Model struct {
	ShortBits    uint16
	IntBits      uint16
	LongBits     uint16
	LongLongBits uint16
	CharSigned   bool
}

// LP64 is the Unix 64-bit data model.
var LP64 = Model{ShortBits: 16, IntBits: 32, LongBits: 64, LongLongBits: 64, CharSigned: true}

// ILP32 is the 32-bit data model.
var ILP32 = Model{ShortBits: 16, IntBits: 32, LongBits: 32, LongLongBits: 64, CharSigned: true}

// Interner hands out stable TypeIDs for structural descriptors and keeps
// the nominal record table.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	records  []*RecordDecl
	builtins Builtins
	model    Model
}

// NewInterner constructs an interner seeded with the builtins of model.
func NewInterner(model Model) *Interner {
	in := &Interner{
		index:   make(map[typeKey]TypeID, 64),
		records: []*RecordDecl{nil}, // 0 is the invalid record
		model:   model,
	}
	in.internRaw(Type{Kind: KindInvalid})
	b := &in.builtins
	b.Void = in.Intern(Type{Kind: KindVoid})
	b.Bool = in.Intern(Type{Kind: KindBool, Width: 8})
	b.Char = in.namedInt(8, model.CharSigned, "char")
	b.SChar = in.namedInt(8, true, "signed char")
	b.UChar = in.namedInt(8, false, "unsigned char")
	b.Short = in.namedInt(model.ShortBits, true, "short")
	b.UShort = in.namedInt(model.ShortBits, false, "unsigned short")
	b.Int = in.namedInt(model.IntBits, true, "int")
	b.UInt = in.namedInt(model.IntBits, false, "unsigned int")
	b.Long = in.namedInt(model.LongBits, true, "long")
	b.ULong = in.namedInt(model.LongBits, false, "unsigned long")
	b.LongLong = in.namedInt(model.LongLongBits, true, "long long")
	b.ULongLong = in.namedInt(model.LongLongBits, false, "unsigned long long")
	b.Int128 = in.namedInt(128, true, "__int128")
	b.UInt128 = in.namedInt(128, false, "unsigned __int128")
	b.Float = in.Intern(Type{Kind: KindFloat, Width: 32, Name: "float"})
	b.Double = in.Intern(Type{Kind: KindFloat, Width: 64, Name: "double"})
	b.NullPtr = in.Intern(Type{Kind: KindNullPtr})
	b.VoidPtr = in.Pointer(b.Void)
	b.CharPtr = in.Pointer(b.Char)
	b.SizeT = b.ULong
	b.PtrDiff = b.Long
	return in
}

// namedInt interns an integer with a spelling. Distinct spellings of the
// same width and signedness (char vs signed char) are distinct types.
func (in *Interner) namedInt(width uint16, signed bool, name string) TypeID {
	t := Type{Kind: KindInt, Width: width, Signed: signed, Name: name}
	for id := range in.types {
		if in.types[id].Kind == KindInt && in.types[id].Name == name {
			return TypeID(id) //nolint:gosec // bounded by len(types)
		}
	}
	return in.internRaw(t)
}

func (in *Interner) Builtins() Builtins { return in.builtins }
func (in *Interner) Model() Model       { return in.model }

// Intern ensures the descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	if t.Kind == KindInt && t.Name == "" {
		// prefer a builtin spelling when one matches
		for id := range in.types {
			bt := in.types[id]
			if bt.Kind == KindInt && bt.Quals == t.Quals && bt.Width == t.Width && bt.Signed == t.Signed {
				return TypeID(id) //nolint:gosec // bounded by len(types)
			}
		}
	}
	if id, ok := in.index[keyOf(t)]; ok {
		return id
	}
	return in.internRaw(t)
}

func (in *Interner) internRaw(t Type) TypeID {
	n, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(n)
	in.types = append(in.types, t)
	if _, ok := in.index[keyOf(t)]; !ok {
		in.index[keyOf(t)] = id
	}
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics on unknown ids.
func (in *Interner) MustLookup(id TypeID) Type {
	t, ok := in.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("types: unknown %v", id))
	}
	return t
}

// Int returns the integer type of the given width and signedness.
func (in *Interner) Int(width uint16, signed bool) TypeID {
	return in.Intern(Type{Kind: KindInt, Width: width, Signed: signed})
}

func (in *Interner) Pointer(elem TypeID) TypeID {
	return in.Intern(Type{Kind: KindPointer, Elem: elem})
}

// MemberPointer returns the type of a pointer to a data member of class
// with type member.
func (in *Interner) MemberPointer(member, class TypeID) TypeID {
	return in.Intern(Type{Kind: KindMemberPointer, Elem: member, Class: class})
}

// Array returns elem[n]; n may be IncompleteLength.
func (in *Interner) Array(elem TypeID, n int64) TypeID {
	return in.Intern(Type{Kind: KindArray, Elem: elem, Count: n})
}

func (in *Interner) Vector(elem TypeID, n int64) TypeID {
	return in.Intern(Type{Kind: KindVector, Elem: elem, Count: n})
}

// Qualified adds qualifiers to id.
func (in *Interner) Qualified(id TypeID, q Qual) TypeID {
	t := in.MustLookup(id)
	if t.Quals&q == q {
		return id
	}
	t.Quals |= q
	if t.Kind == KindInt || t.Kind == KindRecord {
		return in.internQualified(t)
	}
	return in.Intern(t)
}

func (in *Interner) internQualified(t Type) TypeID {
	for id := range in.types {
		if in.types[id] == t {
			return TypeID(id) //nolint:gosec // bounded by len(types)
		}
	}
	return in.internRaw(t)
}

// Unqualified strips all qualifiers.
func (in *Interner) Unqualified(id TypeID) TypeID {
	t := in.MustLookup(id)
	if t.Quals == 0 {
		return id
	}
	t.Quals = 0
	if t.Kind == KindInt || t.Kind == KindRecord {
		return in.internQualified(t)
	}
	return in.Intern(t)
}

// SameUnqualified compares two types ignoring qualifiers.
func (in *Interner) SameUnqualified(a, b TypeID) bool {
	return in.Unqualified(a) == in.Unqualified(b)
}

// NewRecord registers a nominal record and returns its type.
func (in *Interner) NewRecord(name string, tag TagKind) *RecordDecl {
	idx, err := safecast.Conv[uint32](len(in.records))
	if err != nil {
		panic(fmt.Errorf("record table overflow: %w", err))
	}
	rd := &RecordDecl{Name: name, Tag: tag, in: in}
	in.records = append(in.records, rd)
	rd.Self = in.internRaw(Type{Kind: KindRecord, Record: idx, Name: name})
	return rd
}

// Record returns the declaration behind a record type, or nil.
func (in *Interner) Record(id TypeID) *RecordDecl {
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindRecord {
		return nil
	}
	return in.records[t.Record]
}

// Records lists every registered record in declaration order.
func (in *Interner) Records() []*RecordDecl {
	return append([]*RecordDecl(nil), in.records[1:]...)
}

// RecordByName finds a record declaration by name.
func (in *Interner) RecordByName(name string) *RecordDecl {
	for _, rd := range in.records[1:] {
		if rd.Name == name {
			return rd
		}
	}
	return nil
}

func (in *Interner) Kind(id TypeID) Kind {
	t, _ := in.Lookup(id)
	return t.Kind
}

func (in *Interner) IsRecord(id TypeID) bool { return in.Kind(id) == KindRecord }
func (in *Interner) IsArray(id TypeID) bool  { return in.Kind(id) == KindArray }

func (in *Interner) IsConstantArray(id TypeID) bool {
	t, _ := in.Lookup(id)
	return t.Kind == KindArray && t.Count >= 0
}

func (in *Interner) IsIncompleteArray(id TypeID) bool {
	t, _ := in.Lookup(id)
	return t.Kind == KindArray && t.Count == IncompleteLength
}

func (in *Interner) IsIntegral(id TypeID) bool {
	k := in.Kind(id)
	return k == KindInt || k == KindBool
}

func (in *Interner) IsPointerLike(id TypeID) bool {
	k := in.Kind(id)
	return k == KindPointer || k == KindNullPtr || k == KindMemberPointer
}

func (in *Interner) IsSigned(id TypeID) bool {
	t, _ := in.Lookup(id)
	return t.Kind == KindInt && t.Signed
}

func (in *Interner) IsVolatile(id TypeID) bool { return in.MustLookup(id).IsVolatile() }
func (in *Interner) IsAtomic(id TypeID) bool   { return in.MustLookup(id).IsAtomic() }

// Elem returns the element type of arrays and vectors, or the pointee.
func (in *Interner) Elem(id TypeID) TypeID { return in.MustLookup(id).Elem }

// BaseElement strips every array layer.
func (in *Interner) BaseElement(id TypeID) TypeID {
	for in.Kind(id) == KindArray {
		id = in.Elem(id)
	}
	return id
}

// EvaluationKind classifies a type for emission.
func (in *Interner) EvaluationKind(id TypeID) EvaluationKind {
	switch in.Kind(id) {
	case KindRecord, KindArray:
		return EvalAggregate
	default:
		return EvalScalar
	}
}

// Destruction returns what must run when an object of type id dies.
func (in *Interner) Destruction(id TypeID) DestructionKind {
	id = in.BaseElement(id)
	rd := in.Record(id)
	if rd == nil {
		return DestructNone
	}
	if rd.NonTrivialDtor {
		return DestructCXX
	}
	if rd.NonTrivialCDtor {
		return DestructNontrivialCStruct
	}
	for _, f := range rd.Fields {
		if d := in.Destruction(f.Type); d != DestructNone {
			if rd.CXX {
				return DestructCXX
			}
			return d
		}
	}
	return DestructNone
}

// HasVolatileMember reports whether any field of a record is volatile.
func (in *Interner) HasVolatileMember(id TypeID) bool {
	rd := in.Record(id)
	if rd == nil {
		return false
	}
	for _, f := range rd.Fields {
		if in.IsVolatile(f.Type) || in.HasVolatileMember(f.Type) {
			return true
		}
	}
	return false
}

// String renders a C spelling of the type.
func (in *Interner) String(id TypeID) string {
	t, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	var prefix string
	if t.Quals&QualConst != 0 {
		prefix += "const "
	}
	if t.Quals&QualVolatile != 0 {
		prefix += "volatile "
	}
	if t.Quals&QualAtomic != 0 {
		prefix += "_Atomic "
	}
	switch t.Kind {
	case KindVoid, KindBool, KindNullPtr:
		return prefix + t.Kind.String()
	case KindInt:
		if t.Name != "" {
			return prefix + t.Name
		}
		if t.Signed {
			return prefix + "_BitInt(" + strconv.Itoa(int(t.Width)) + ")"
		}
		return prefix + "unsigned _BitInt(" + strconv.Itoa(int(t.Width)) + ")"
	case KindFloat:
		return prefix + t.Name
	case KindPointer:
		return prefix + in.String(t.Elem) + "*"
	case KindMemberPointer:
		return prefix + in.String(t.Elem) + " " + in.String(t.Class) + "::*"
	case KindArray:
		if t.Count == IncompleteLength {
			return prefix + in.String(t.Elem) + "[]"
		}
		return prefix + in.String(t.Elem) + "[" + strconv.FormatInt(t.Count, 10) + "]"
	case KindVector:
		return prefix + in.String(t.Elem) + " __attribute__((vector_size(" + strconv.FormatInt(t.Count, 10) + ")))"
	case KindRecord:
		rd := in.records[t.Record]
		return prefix + rd.Tag.String() + " " + rd.Name
	}
	return strings.TrimSpace(prefix) + "<invalid>"
}
