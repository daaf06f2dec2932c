package cir

import (
	"fmt"
	"math/big"

	"fortio.org/safecast"
)

// Context owns the type and attribute arenas of one translation unit.
type Context struct {
	types     []Type
	typeIndex map[string]TypeID
	named     map[string]TypeID

	attrs     []Attr
	attrIndex map[string]AttrID
}

// NewContext creates an empty context.
func NewContext() *Context {
	c := &Context{
		types:     make([]Type, 1, 64),
		typeIndex: make(map[string]TypeID, 64),
		named:     make(map[string]TypeID),
		attrs:     make([]Attr, 1, 128),
		attrIndex: make(map[string]AttrID, 128),
	}
	return c
}

func (c *Context) intern(t Type) TypeID {
	k := t.key()
	if id, ok := c.typeIndex[k]; ok {
		return id
	}
	id := c.push(t)
	c.typeIndex[k] = id
	return id
}

func (c *Context) push(t Type) TypeID {
	id, err := safecast.Conv[uint32](len(c.types))
	if err != nil {
		panic(fmt.Errorf("cir: type arena overflow: %w", err))
	}
	c.types = append(c.types, t)
	return TypeID(id)
}

// Type returns the descriptor for id. The result must not be modified.
func (c *Context) Type(id TypeID) *Type {
	if id == NoType || int(id) >= len(c.types) {
		panic(fmt.Sprintf("cir: invalid type id %d", id))
	}
	return &c.types[id]
}

func (c *Context) Kind(id TypeID) TypeKind {
	if id == NoType || int(id) >= len(c.types) {
		return TypeInvalid
	}
	return c.types[id].Kind
}

func (c *Context) Void() TypeID  { return c.intern(Type{Kind: TypeVoid}) }
func (c *Context) Bool() TypeID  { return c.intern(Type{Kind: TypeBool}) }
func (c *Context) UInt8() TypeID { return c.Int(8, false) }
func (c *Context) SInt32() TypeID {
	return c.Int(32, true)
}
func (c *Context) SInt64() TypeID { return c.Int(64, true) }

// Int returns the integer type of the given width and signedness.
func (c *Context) Int(width uint16, signed bool) TypeID {
	return c.intern(Type{Kind: TypeInt, Width: width, Signed: signed})
}

// Float returns the binary floating-point type of the given width.
func (c *Context) Float(width uint16) TypeID {
	return c.intern(Type{Kind: TypeFloat, Width: width})
}

// Pointer returns a pointer to elem.
func (c *Context) Pointer(elem TypeID) TypeID {
	return c.intern(Type{Kind: TypePointer, Elem: elem})
}

// Array returns elem[n].
func (c *Context) Array(elem TypeID, n int64) TypeID {
	return c.intern(Type{Kind: TypeArray, Elem: elem, Count: n})
}

// ByteArray returns u8[n], the shape used for padding.
func (c *Context) ByteArray(n int64) TypeID {
	return c.Array(c.UInt8(), n)
}

// Vector returns a vector of n elements.
func (c *Context) Vector(elem TypeID, n int64) TypeID {
	return c.intern(Type{Kind: TypeVector, Elem: elem, Count: n})
}

// Func returns a function type.
func (c *Context) Func(params []TypeID, result TypeID) TypeID {
	return c.intern(Type{Kind: TypeFunc, Params: append([]TypeID(nil), params...), Result: result})
}

// AnonRecord returns a structurally uniqued anonymous record.
func (c *Context) AnonRecord(members []TypeID, packed, padded bool, kind RecordKind) TypeID {
	return c.intern(Type{
		Kind: TypeRecord, Record: kind, Members: append([]TypeID(nil), members...),
		Packed: packed, Padded: padded, Complete: true, Storage: -1,
	})
}

// NamedRecord returns the named record with this name, creating it
// incomplete on first use.
func (c *Context) NamedRecord(name string, kind RecordKind) TypeID {
	if id, ok := c.named[name]; ok {
		return id
	}
	id := c.push(Type{Kind: TypeRecord, Name: name, Record: kind, Storage: -1})
	c.named[name] = id
	return id
}

// LookupNamed finds a named record.
func (c *Context) LookupNamed(name string) (TypeID, bool) {
	id, ok := c.named[name]
	return id, ok
}

// CompleteRecord sets the body of a named record. A record body is fixed
// once: completing twice panics.
func (c *Context) CompleteRecord(id TypeID, members []TypeID, packed, padded bool) {
	t := c.Type(id)
	if t.Kind != TypeRecord || t.Name == "" {
		panic("cir: CompleteRecord on a non-named record")
	}
	if t.Complete {
		panic("cir: record " + t.Name + " completed twice")
	}
	t.Members = append([]TypeID(nil), members...)
	t.Packed = packed
	t.Padded = padded
	t.Complete = true
}

// SetUnionStorage records the member that sizes a union.
func (c *Context) SetUnionStorage(id TypeID, member int) {
	t := c.Type(id)
	if !t.IsUnion() {
		panic("cir: SetUnionStorage on a non-union")
	}
	t.Storage = member
}

// IsFundamentalIntWidth reports whether bits is a natively supported
// integer width.
func IsFundamentalIntWidth(bits int64) bool {
	switch bits {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

// Pow2 returns 2**n as a big.Int.
func Pow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}
