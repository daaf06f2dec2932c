package cir

import (
	"fmt"
	"strings"
)

// TypeID identifies an interned physical type.
type TypeID uint32

const NoType TypeID = 0

// TypeKind enumerates physical type kinds.
type TypeKind uint8

const (
	TypeInvalid TypeKind = iota
	TypeVoid
	TypeBool
	TypeInt
	TypeFloat
	TypePointer
	TypeArray
	TypeVector
	TypeRecord
	TypeFunc
)

func (k TypeKind) String() string {
	switch k {
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypePointer:
		return "ptr"
	case TypeArray:
		return "array"
	case TypeVector:
		return "vector"
	case TypeRecord:
		return "record"
	case TypeFunc:
		return "func"
	default:
		return "invalid"
	}
}

// RecordKind distinguishes struct-like records from unions.
type RecordKind uint8

const (
	RecordStruct RecordKind = iota
	RecordClass
	RecordUnion
)

// Type is a physical type descriptor. Fields are meaningful per Kind.
type Type struct {
	Kind   TypeKind
	Width  uint16 // TypeInt, TypeFloat: bits
	Signed bool   // TypeInt
	Elem   TypeID // pointee, array/vector element
	Count  int64  // TypeArray, TypeVector

	// TypeRecord
	Name     string // empty for anonymous (structurally uniqued) records
	Record   RecordKind
	Members  []TypeID
	Packed   bool
	Padded   bool // last member is explicit tail padding
	Complete bool
	// Storage is the member that defines a union's size and alignment,
	// -1 to pick the largest.
	Storage int

	// TypeFunc
	Params []TypeID
	Result TypeID
}

// IsUnion reports whether t is a union record.
func (t *Type) IsUnion() bool { return t.Kind == TypeRecord && t.Record == RecordUnion }

func (t *Type) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%t|%d|%d", t.Kind, t.Width, t.Signed, t.Elem, t.Count)
	switch t.Kind {
	case TypeRecord:
		fmt.Fprintf(&sb, "|r%d|%t|%t|%d|", t.Record, t.Packed, t.Padded, t.Storage)
		for _, m := range t.Members {
			fmt.Fprintf(&sb, "%d,", m)
		}
	case TypeFunc:
		sb.WriteString("|f")
		for _, p := range t.Params {
			fmt.Fprintf(&sb, "%d,", p)
		}
		fmt.Fprintf(&sb, "->%d", t.Result)
	}
	return sb.String()
}
