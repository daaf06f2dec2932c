package types

import "fmt"

// TypeID uniquely identifies a type inside an Interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates the source-level type constructors.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindInt
	KindFloat
	KindPointer
	KindMemberPointer // pointer to data member
	KindNullPtr
	KindArray
	KindVector
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPointer:
		return "pointer"
	case KindMemberPointer:
		return "member-pointer"
	case KindNullPtr:
		return "nullptr_t"
	case KindArray:
		return "array"
	case KindVector:
		return "vector"
	case KindRecord:
		return "record"
	default:
		return "invalid"
	}
}

// Qual is a set of cv and atomic qualifiers.
type Qual uint8

const (
	QualConst Qual = 1 << iota
	QualVolatile
	QualAtomic
)

// IncompleteLength marks an array without a bound (flexible array member).
const IncompleteLength int64 = -1

// Type is a compact descriptor. Which fields are meaningful depends on Kind.
type Type struct {
	Kind   Kind
	Quals  Qual
	Width  uint16 // bits, for KindInt and KindFloat
	Signed bool   // KindInt
	Elem   TypeID // pointee, element, or member type
	Class  TypeID // KindMemberPointer: the owning record
	Count  int64  // KindArray, KindVector
	Record uint32 // KindRecord: index into the record table
	Name   string // spelling for builtin integers, e.g. "unsigned short"
}

func (t Type) IsVolatile() bool { return t.Quals&QualVolatile != 0 }
func (t Type) IsAtomic() bool   { return t.Quals&QualAtomic != 0 }

// typeKey is the structural identity used for interning. Records are
// nominal and never share a key.
type typeKey struct {
	Kind   Kind
	Quals  Qual
	Width  uint16
	Signed bool
	Elem   TypeID
	Class  TypeID
	Count  int64
	Record uint32
}

func keyOf(t Type) typeKey {
	return typeKey{
		Kind: t.Kind, Quals: t.Quals, Width: t.Width, Signed: t.Signed,
		Elem: t.Elem, Class: t.Class, Count: t.Count, Record: t.Record,
	}
}

// EvaluationKind tells the emitter how values of a type travel.
type EvaluationKind uint8

const (
	EvalScalar EvaluationKind = iota
	EvalAggregate
)

// DestructionKind says what, if anything, must run when an object dies.
type DestructionKind uint8

const (
	DestructNone DestructionKind = iota
	DestructCXX
	DestructNontrivialCStruct
)

func (d DestructionKind) String() string {
	switch d {
	case DestructCXX:
		return "cxx-destructor"
	case DestructNontrivialCStruct:
		return "nontrivial-c-struct"
	default:
		return "none"
	}
}

func (id TypeID) String() string { return fmt.Sprintf("type#%d", id) }
