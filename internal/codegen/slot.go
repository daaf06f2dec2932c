package codegen

import (
	"cirgen/internal/cir"
	"cirgen/internal/recordlayout"
	"cirgen/internal/types"
)

// Address is a pointer value together with the type it points to and the
// alignment known for it.
type Address struct {
	Ptr   cir.Value
	Elem  cir.TypeID
	Align int64
}

// NoAddress is the address of an ignored slot.
var NoAddress = Address{Ptr: cir.NoValue}

func (a Address) Valid() bool { return a.Ptr != cir.NoValue }

// LValue is an addressable object of source type Type. Bit-field
// l-values address their storage unit.
type LValue struct {
	Addr     Address
	Type     types.TypeID
	Volatile bool
	BitField *recordlayout.BitFieldInfo
}

func (lv LValue) IsBitField() bool { return lv.BitField != nil }

// AggValueSlot is the destination of an aggregate expression.
type AggValueSlot struct {
	Addr Address
	// Zeroed means the storage already holds all-zero bytes, so zero
	// stores may be skipped.
	Zeroed bool
	// Aliased means the storage may be reachable through another pointer
	// while the expression is evaluated.
	Aliased bool
	// MayOverlap means the tail padding may belong to another object, so
	// copies must not write it.
	MayOverlap bool
	// ExternallyDestructed means the owner of the slot schedules its
	// destruction.
	ExternallyDestructed bool
	Volatile             bool
}

// IgnoredSlot discards the value.
func IgnoredSlot() AggValueSlot { return AggValueSlot{Addr: NoAddress} }

// SlotForAddr describes a fresh destination at addr.
func SlotForAddr(addr Address) AggValueSlot { return AggValueSlot{Addr: addr} }

// SlotForLValue describes a destination that is an existing l-value.
func SlotForLValue(lv LValue, externallyDestructed, aliased, mayOverlap bool) AggValueSlot {
	return AggValueSlot{
		Addr:                 lv.Addr,
		Aliased:              aliased,
		MayOverlap:           mayOverlap,
		ExternallyDestructed: externallyDestructed,
		Volatile:             lv.Volatile,
	}
}

func (s AggValueSlot) IsIgnored() bool { return !s.Addr.Valid() }
