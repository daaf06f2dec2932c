package ast

import (
	"math/big"

	"cirgen/internal/types"
)

// APKind enumerates evaluated constant kinds.
type APKind uint8

const (
	APNone APKind = iota
	APIndeterminate
	APInt
	APFloat
	APLValue
	APMemberPointer
	APArray
	APStruct
	APUnion
	APVector
)

// APValue is a value computed by constant evaluation upstream of code
// generation. Which fields are meaningful depends on Kind.
type APValue struct {
	Kind  APKind
	Int   *big.Int
	Float float64

	// APLValue: the address of global Base plus Offset bytes. An empty
	// Base is the null pointer.
	Base   string
	Offset int64

	// APMemberPointer: the designated field, nil for the null member
	// pointer.
	Member *types.FieldDecl

	// APArray and APVector. Array elements past len(Elems) take Filler.
	Elems  []APValue
	Filler *APValue
	Size   int64

	// APStruct: one value per direct base, then one per field.
	Bases  []APValue
	Fields []APValue

	// APUnion
	UnionField *types.FieldDecl
	UnionValue *APValue
}

func APIntValue(v int64) APValue { return APValue{Kind: APInt, Int: big.NewInt(v)} }

func APBigInt(v *big.Int) APValue { return APValue{Kind: APInt, Int: new(big.Int).Set(v)} }

func APFloatValue(v float64) APValue { return APValue{Kind: APFloat, Float: v} }

func APNullPointer() APValue { return APValue{Kind: APLValue} }

func APAddress(global string, offset int64) APValue {
	return APValue{Kind: APLValue, Base: global, Offset: offset}
}

func APMemberPointerTo(f *types.FieldDecl) APValue { return APValue{Kind: APMemberPointer, Member: f} }

func APArrayValue(size int64, filler *APValue, elems ...APValue) APValue {
	return APValue{Kind: APArray, Size: size, Filler: filler, Elems: elems}
}

func APStructValue(bases []APValue, fields ...APValue) APValue {
	return APValue{Kind: APStruct, Bases: bases, Fields: fields}
}

func APUnionValue(f *types.FieldDecl, v APValue) APValue {
	return APValue{Kind: APUnion, UnionField: f, UnionValue: &v}
}

func APVectorValue(elems ...APValue) APValue {
	return APValue{Kind: APVector, Elems: elems, Size: int64(len(elems))}
}

// IsNullPointer reports whether v is the null pointer value.
func (v *APValue) IsNullPointer() bool { return v.Kind == APLValue && v.Base == "" && v.Offset == 0 }
