package cir

import "fmt"

// DataLayout answers size, alignment and endianness questions about
// physical types.
type DataLayout struct {
	ctx *Context

	BigEndian   bool
	PtrSize     int64
	PtrAlign    int64
	Int64Align  int64
	Int128Align int64
	DoubleAlign int64
	MaxVecAlign int64

	records map[TypeID]*RecordOffsets
}

// RecordOffsets is the physical placement of a record's members.
type RecordOffsets struct {
	Size    int64
	Align   int64
	Offsets []int64
}

// NewDataLayout creates a layout over ctx with LP64 little-endian defaults.
func NewDataLayout(ctx *Context) *DataLayout {
	return &DataLayout{
		ctx: ctx, PtrSize: 8, PtrAlign: 8, Int64Align: 8, Int128Align: 16,
		DoubleAlign: 8, MaxVecAlign: 16,
		records: make(map[TypeID]*RecordOffsets),
	}
}

func (dl *DataLayout) Context() *Context { return dl.ctx }

// TypeSizeInBits is the number of value bits of t (no tail padding).
func (dl *DataLayout) TypeSizeInBits(t TypeID) int64 {
	ty := dl.ctx.Type(t)
	switch ty.Kind {
	case TypeInt, TypeFloat:
		return int64(ty.Width)
	case TypeBool:
		return 8
	}
	return dl.TypeAllocSize(t) * 8
}

// TypeStoreSize is the number of bytes written by a store of t.
func (dl *DataLayout) TypeStoreSize(t TypeID) int64 {
	return (dl.TypeSizeInBits(t) + 7) / 8
}

// TypeAllocSize is the distance between consecutive array elements of t.
func (dl *DataLayout) TypeAllocSize(t TypeID) int64 {
	ty := dl.ctx.Type(t)
	switch ty.Kind {
	case TypeVoid:
		return 1
	case TypeBool:
		return 1
	case TypeInt:
		return alignTo(pow2Bytes(int64(ty.Width)), dl.ABIAlign(t))
	case TypeFloat:
		return int64(ty.Width) / 8
	case TypePointer:
		return dl.PtrSize
	case TypeArray:
		return dl.TypeAllocSize(ty.Elem) * ty.Count
	case TypeVector:
		return pow2Ceil(dl.TypeAllocSize(ty.Elem) * ty.Count)
	case TypeRecord:
		return dl.Record(t).Size
	}
	panic(fmt.Sprintf("cir: no size for %s", ty.Kind))
}

// ABIAlign is the required alignment of t in bytes.
func (dl *DataLayout) ABIAlign(t TypeID) int64 {
	ty := dl.ctx.Type(t)
	switch ty.Kind {
	case TypeVoid, TypeBool:
		return 1
	case TypeInt:
		n := pow2Bytes(int64(ty.Width))
		switch {
		case n >= 16:
			return dl.Int128Align
		case n == 8:
			return dl.Int64Align
		}
		return n
	case TypeFloat:
		if ty.Width == 64 {
			return dl.DoubleAlign
		}
		return int64(ty.Width) / 8
	case TypePointer:
		return dl.PtrAlign
	case TypeArray:
		return dl.ABIAlign(ty.Elem)
	case TypeVector:
		return min(pow2Ceil(dl.TypeAllocSize(ty.Elem)*ty.Count), dl.MaxVecAlign)
	case TypeRecord:
		return dl.Record(t).Align
	}
	panic(fmt.Sprintf("cir: no alignment for %s", ty.Kind))
}

// Record returns member offsets of a complete record type.
func (dl *DataLayout) Record(t TypeID) *RecordOffsets {
	if ro, ok := dl.records[t]; ok {
		return ro
	}
	ty := dl.ctx.Type(t)
	if ty.Kind != TypeRecord {
		panic("cir: Record on non-record type")
	}
	if !ty.Complete {
		panic("cir: layout of incomplete record " + ty.Name)
	}
	members := ty.Members
	packed := ty.Packed
	ro := &RecordOffsets{Align: 1, Offsets: make([]int64, len(members))}
	if ty.IsUnion() {
		storage := dl.UnionStorage(t)
		if storage >= 0 {
			ro.Size = dl.TypeAllocSize(members[storage])
			if !packed {
				ro.Align = dl.ABIAlign(members[storage])
			}
		}
		if ty.Padded && len(members) > 0 {
			ro.Size += dl.TypeAllocSize(members[len(members)-1])
		}
		dl.records[t] = ro
		return ro
	}
	var off int64
	for i, m := range members {
		a := int64(1)
		if !packed {
			a = dl.ABIAlign(m)
		}
		off = alignTo(off, a)
		ro.Offsets[i] = off
		off += dl.TypeAllocSize(m)
		ro.Align = max(ro.Align, a)
	}
	ro.Size = alignTo(off, ro.Align)
	dl.records[t] = ro
	return ro
}

// UnionStorage returns the member index that defines a union's storage:
// the explicit choice, else the most aligned, then largest, member.
func (dl *DataLayout) UnionStorage(t TypeID) int {
	ty := dl.ctx.Type(t)
	if ty.Storage >= 0 {
		return ty.Storage
	}
	n := len(ty.Members)
	if ty.Padded {
		n--
	}
	best := -1
	var bestAlign, bestSize int64
	for i := 0; i < n; i++ {
		a, s := dl.ABIAlign(ty.Members[i]), dl.TypeAllocSize(ty.Members[i])
		if best < 0 || a > bestAlign || (a == bestAlign && s > bestSize) {
			best, bestAlign, bestSize = i, a, s
		}
	}
	return best
}

// MemberOffset returns the byte offset of member idx of a record.
func (dl *DataLayout) MemberOffset(t TypeID, idx int) int64 {
	return dl.Record(t).Offsets[idx]
}

func alignTo(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// AlignTo rounds n up to a multiple of a.
func AlignTo(n, a int64) int64 { return alignTo(n, a) }

func pow2Bytes(bits int64) int64 { return pow2Ceil((bits + 7) / 8) }

func pow2Ceil(n int64) int64 {
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}
