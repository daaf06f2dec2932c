package cir

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"fortio.org/safecast"
)

// AttrID identifies an interned constant attribute.
type AttrID uint32

const NoAttr AttrID = 0

// AttrKind enumerates constant attribute kinds.
type AttrKind uint8

const (
	AttrInvalid AttrKind = iota
	AttrInt
	AttrBool
	AttrFloat
	AttrZero
	AttrUndef
	AttrPoison
	AttrConstArray
	AttrConstRecord
	AttrConstVector
	AttrNullPtr
	AttrGlobalView
)

func (k AttrKind) String() string {
	switch k {
	case AttrInt:
		return "int"
	case AttrBool:
		return "bool"
	case AttrFloat:
		return "fp"
	case AttrZero:
		return "zero"
	case AttrUndef:
		return "undef"
	case AttrPoison:
		return "poison"
	case AttrConstArray:
		return "const_array"
	case AttrConstRecord:
		return "const_record"
	case AttrConstVector:
		return "const_vector"
	case AttrNullPtr:
		return "ptr_null"
	case AttrGlobalView:
		return "global_view"
	default:
		return "invalid"
	}
}

// Attr is an immutable typed constant. Int values hold the two's
// complement bit pattern, reduced to the type's width.
type Attr struct {
	Kind  AttrKind
	Type  TypeID
	Int   *big.Int
	Bool  bool
	Float float64
	Elems []AttrID
	// TrailingZeros counts zero elements of a const array beyond Elems.
	TrailingZeros int64
	Symbol        string  // AttrGlobalView
	Indices       []int64 // AttrGlobalView
}

func (a *Attr) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|", a.Kind, a.Type)
	switch a.Kind {
	case AttrInt:
		sb.WriteString(a.Int.Text(16))
	case AttrBool:
		fmt.Fprintf(&sb, "%t", a.Bool)
	case AttrFloat:
		fmt.Fprintf(&sb, "%x", math.Float64bits(a.Float))
	case AttrConstArray, AttrConstRecord, AttrConstVector:
		for _, e := range a.Elems {
			fmt.Fprintf(&sb, "%d,", e)
		}
		fmt.Fprintf(&sb, "|%d", a.TrailingZeros)
	case AttrGlobalView:
		fmt.Fprintf(&sb, "%s|%v", a.Symbol, a.Indices)
	}
	return sb.String()
}

func (c *Context) internAttr(a Attr) AttrID {
	k := a.key()
	if id, ok := c.attrIndex[k]; ok {
		return id
	}
	n, err := safecast.Conv[uint32](len(c.attrs))
	if err != nil {
		panic(fmt.Errorf("cir: attribute arena overflow: %w", err))
	}
	id := AttrID(n)
	c.attrs = append(c.attrs, a)
	c.attrIndex[k] = id
	return id
}

// Attr returns the attribute for id.
func (c *Context) Attr(id AttrID) Attr {
	if id == NoAttr || int(id) >= len(c.attrs) {
		panic(fmt.Sprintf("cir: invalid attribute id %d", id))
	}
	return c.attrs[id]
}

// AttrType returns the type of an attribute.
func (c *Context) AttrType(id AttrID) TypeID { return c.Attr(id).Type }

// AttrKindOf returns the kind of an attribute.
func (c *Context) AttrKindOf(id AttrID) AttrKind {
	if id == NoAttr {
		return AttrInvalid
	}
	return c.attrs[id].Kind
}

// IntAttr interns an integer constant; v is reduced modulo 2**width.
func (c *Context) IntAttr(t TypeID, v *big.Int) AttrID {
	ty := c.Type(t)
	if ty.Kind != TypeInt {
		panic("cir: IntAttr of non-integer type")
	}
	m := Pow2(uint(ty.Width))
	n := new(big.Int).Mod(v, m)
	return c.internAttr(Attr{Kind: AttrInt, Type: t, Int: n})
}

// IntAttrInt64 is IntAttr for small values.
func (c *Context) IntAttrInt64(t TypeID, v int64) AttrID {
	return c.IntAttr(t, big.NewInt(v))
}

// IntValue returns the unsigned bit pattern of an integer attribute.
func (c *Context) IntValue(id AttrID) *big.Int {
	return new(big.Int).Set(c.Attr(id).Int)
}

// SignedIntValue interprets an integer attribute per its type's signedness.
func (c *Context) SignedIntValue(id AttrID) *big.Int {
	a := c.Attr(id)
	ty := c.Type(a.Type)
	v := new(big.Int).Set(a.Int)
	if ty.Signed && ty.Width > 0 && v.Bit(int(ty.Width)-1) == 1 {
		v.Sub(v, Pow2(uint(ty.Width)))
	}
	return v
}

func (c *Context) BoolAttr(v bool) AttrID {
	return c.internAttr(Attr{Kind: AttrBool, Type: c.Bool(), Bool: v})
}

func (c *Context) FPAttr(t TypeID, v float64) AttrID {
	if c.Kind(t) != TypeFloat {
		panic("cir: FPAttr of non-float type")
	}
	if c.Type(t).Width == 32 {
		v = float64(float32(v))
	}
	return c.internAttr(Attr{Kind: AttrFloat, Type: t, Float: v})
}

// ZeroAttr is the all-zero value of t.
func (c *Context) ZeroAttr(t TypeID) AttrID {
	return c.internAttr(Attr{Kind: AttrZero, Type: t})
}

func (c *Context) UndefAttr(t TypeID) AttrID {
	return c.internAttr(Attr{Kind: AttrUndef, Type: t})
}

func (c *Context) PoisonAttr(t TypeID) AttrID {
	return c.internAttr(Attr{Kind: AttrPoison, Type: t})
}

func (c *Context) NullPtrAttr(t TypeID) AttrID {
	return c.internAttr(Attr{Kind: AttrNullPtr, Type: t})
}

// ConstArrayAttr builds an array constant. Elements beyond len(elems) up
// to the array length are implicit zeros.
func (c *Context) ConstArrayAttr(t TypeID, elems []AttrID) AttrID {
	ty := c.Type(t)
	if ty.Kind != TypeArray {
		panic("cir: ConstArrayAttr of non-array type")
	}
	if int64(len(elems)) > ty.Count {
		panic("cir: too many array elements")
	}
	return c.internAttr(Attr{
		Kind: AttrConstArray, Type: t, Elems: append([]AttrID(nil), elems...),
		TrailingZeros: ty.Count - int64(len(elems)),
	})
}

// ConstRecordAttr builds a record constant with one element per member.
func (c *Context) ConstRecordAttr(t TypeID, elems []AttrID) AttrID {
	return c.internAttr(Attr{Kind: AttrConstRecord, Type: t, Elems: append([]AttrID(nil), elems...)})
}

// AnonConstRecord builds a record constant of an anonymous record type
// whose members are the element types.
func (c *Context) AnonConstRecord(elems []AttrID, packed bool) AttrID {
	tys := make([]TypeID, len(elems))
	for i, e := range elems {
		tys[i] = c.AttrType(e)
	}
	return c.ConstRecordAttr(c.AnonRecord(tys, packed, false, RecordStruct), elems)
}

func (c *Context) ConstVectorAttr(t TypeID, elems []AttrID) AttrID {
	return c.internAttr(Attr{Kind: AttrConstVector, Type: t, Elems: append([]AttrID(nil), elems...)})
}

// GlobalViewAttr is the address of a global, optionally indexed.
func (c *Context) GlobalViewAttr(t TypeID, symbol string, indices []int64) AttrID {
	return c.internAttr(Attr{Kind: AttrGlobalView, Type: t, Symbol: symbol, Indices: append([]int64(nil), indices...)})
}

// IsNullValue reports whether id is all-zero bits.
func (c *Context) IsNullValue(id AttrID) bool {
	a := c.Attr(id)
	switch a.Kind {
	case AttrZero, AttrNullPtr:
		return true
	case AttrInt:
		return a.Int.Sign() == 0
	case AttrBool:
		return !a.Bool
	case AttrFloat:
		return math.Float64bits(a.Float) == 0
	case AttrConstArray, AttrConstRecord, AttrConstVector:
		for _, e := range a.Elems {
			if !c.IsNullValue(e) {
				return false
			}
		}
		return true
	}
	return false
}
