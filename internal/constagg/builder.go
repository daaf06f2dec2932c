package constagg

import (
	"fmt"
	"math/big"
	"slices"
	"sort"

	"cirgen/internal/cir"
)

// Element is one constant placed at a byte offset.
type Element struct {
	Attr   cir.AttrID
	Offset int64
}

// AggregateBuilder assembles an aggregate constant from elements placed at
// byte offsets. Elements are kept sorted by offset and never overlap; an
// overlapping Add splits the elements it covers and replaces them.
//
// A builder serves one top-level constant and is finalized once by Build.
type AggregateBuilder struct {
	ctx *cir.Context
	dl  *cir.DataLayout

	// TrailingZeroMin is the array compaction cutoff used when Build
	// produces an array.
	TrailingZeroMin int64

	elems   []cir.AttrID
	offsets []int64
	size    int64
	// naturalLayout is true while laying out elems in order with only
	// their natural alignment reproduces offsets.
	naturalLayout bool
}

// NewAggregateBuilder returns an empty builder.
func NewAggregateBuilder(ctx *cir.Context, dl *cir.DataLayout) *AggregateBuilder {
	return &AggregateBuilder{ctx: ctx, dl: dl, TrailingZeroMin: DefaultTrailingZeroMin, naturalLayout: true}
}

// Size is the number of bytes covered so far.
func (b *AggregateBuilder) Size() int64 { return b.size }

// NaturalLayout reports whether no explicit padding is needed so far.
func (b *AggregateBuilder) NaturalLayout() bool { return b.naturalLayout }

// Elements returns the current elements in offset order.
func (b *AggregateBuilder) Elements() []Element {
	out := make([]Element, len(b.elems))
	for i, e := range b.elems {
		out[i] = Element{Attr: e, Offset: b.offsets[i]}
	}
	return out
}

func (b *AggregateBuilder) sizeOf(a cir.AttrID) int64 {
	return b.dl.TypeAllocSize(b.ctx.AttrType(a))
}

func (b *AggregateBuilder) alignOf(a cir.AttrID) int64 {
	return b.dl.ABIAlign(b.ctx.AttrType(a))
}

// padding is a zero filler of n bytes.
func (b *AggregateBuilder) padding(n int64) cir.AttrID {
	t := b.ctx.UInt8()
	if n > 1 {
		t = b.ctx.ByteArray(n)
	}
	return b.ctx.ZeroAttr(t)
}

func (b *AggregateBuilder) replace(first, last int, elems []cir.AttrID, offsets []int64) {
	b.elems = slices.Replace(b.elems, first, last, elems...)
	b.offsets = slices.Replace(b.offsets, first, last, offsets...)
}

// Add places c at offset. It reports false when an existing element that
// c overlaps cannot be split at c's boundaries.
func (b *AggregateBuilder) Add(c cir.AttrID, offset int64, allowOverwrite bool) bool {
	if offset >= b.size {
		align := b.alignOf(c)
		aligned := cir.AlignTo(b.size, align)
		switch {
		case aligned > offset || cir.AlignTo(offset, align) != offset:
			b.naturalLayout = false
		case aligned < offset:
			b.elems = append(b.elems, b.padding(offset-b.size))
			b.offsets = append(b.offsets, b.size)
		}
		b.elems = append(b.elems, c)
		b.offsets = append(b.offsets, offset)
		b.size = offset + b.sizeOf(c)
		return true
	}

	first, ok := b.splitAt(offset)
	if !ok {
		return false
	}
	end := offset + b.sizeOf(c)
	last, ok := b.splitAt(end)
	if !ok {
		return false
	}
	if first != last && !allowOverwrite {
		panic(fmt.Sprintf("constagg: unexpectedly overwriting bytes [%d, %d)", offset, end))
	}
	b.replace(first, last, []cir.AttrID{c}, []int64{offset})
	b.size = max(b.size, end)
	b.naturalLayout = false
	return true
}

// AddBits stores the low width bits of bits at bit offset offsetInBits,
// merging partial bytes with what is already there.
func (b *AggregateBuilder) AddBits(bits *big.Int, width, offsetInBits int64, allowOverwrite bool) bool {
	const charWidth = 8
	u8 := b.ctx.UInt8()
	v := truncBits(bits, width)
	offsetWithinChar := offsetInBits % charWidth

	for offsetInChars := offsetInBits / charWidth; ; offsetInChars++ {
		wanted := min(width, charWidth-offsetWithinChar)

		thisChar := new(big.Int)
		if b.dl.BigEndian {
			shift := width - charWidth + offsetWithinChar
			if shift > 0 {
				thisChar.Rsh(v, uint(shift))
			} else {
				thisChar.Lsh(v, uint(-shift))
			}
		} else {
			thisChar.Lsh(v, uint(offsetWithinChar))
		}
		thisChar = truncBits(thisChar, charWidth)

		if wanted == charWidth {
			if !b.Add(b.ctx.IntAttr(u8, thisChar), offsetInChars, allowOverwrite) {
				return false
			}
		} else {
			first, ok := b.splitAt(offsetInChars)
			if !ok {
				return false
			}
			last, ok := b.splitAt(offsetInChars + 1)
			if !ok {
				return false
			}

			var lo int64
			if b.dl.BigEndian {
				lo = charWidth - offsetWithinChar - wanted
			} else {
				lo = offsetWithinChar
			}
			mask := new(big.Int).Lsh(truncBits(big.NewInt(-1), wanted), uint(lo))
			thisChar.And(thisChar, mask)

			if first == last || b.isNullOrUndef(b.elems[first]) {
				if !b.Add(b.ctx.IntAttr(u8, thisChar), offsetInChars, true) {
					return false
				}
			} else {
				prev := b.ctx.Attr(b.elems[first])
				if prev.Kind != cir.AttrInt || b.sizeOf(b.elems[first]) != 1 {
					return false
				}
				if !allowOverwrite && new(big.Int).And(prev.Int, mask).Sign() != 0 {
					panic("constagg: unexpectedly overwriting bit-field")
				}
				thisChar.Or(thisChar, new(big.Int).AndNot(prev.Int, mask))
				b.elems[first] = b.ctx.IntAttr(u8, thisChar)
			}
		}

		if wanted == width {
			break
		}
		if !b.dl.BigEndian {
			v = new(big.Int).Rsh(v, uint(wanted))
		}
		width -= wanted
		v = truncBits(v, width)
		offsetWithinChar = 0
	}
	return true
}

func (b *AggregateBuilder) isNullOrUndef(a cir.AttrID) bool {
	return b.ctx.IsNullValue(a) || b.ctx.AttrKindOf(a) == cir.AttrUndef
}

// truncBits returns the low width bits of v as a non-negative value.
func truncBits(v *big.Int, width int64) *big.Int {
	return new(big.Int).Mod(v, cir.Pow2(uint(width)))
}

// Condense collapses the elements covering desired at offset into one
// constant of that type.
func (b *AggregateBuilder) Condense(offset int64, desired cir.TypeID) {
	size := b.dl.TypeAllocSize(desired)
	first, ok := b.splitAt(offset)
	if !ok {
		return
	}
	last, ok := b.splitAt(offset + size)
	if !ok || first == last {
		return
	}

	if last-first == 1 && b.offsets[first] == offset && b.dl.TypeAllocSize(b.ctx.AttrType(b.elems[first])) == size {
		// One element covering the whole type: wrap it if the type is a
		// single-member record of that element.
		elem := b.elems[first]
		t := b.ctx.Type(desired)
		if t.Kind == cir.TypeRecord && len(t.Members) == 1 && t.Members[0] == b.ctx.AttrType(elem) && !t.IsUnion() {
			b.elems[first] = b.ctx.ConstRecordAttr(desired, []cir.AttrID{elem})
		}
		return
	}

	c := b.buildFrom(b.elems[first:last], b.offsets[first:last], offset, size, false, desired, false)
	b.replace(first, last, []cir.AttrID{c}, []int64{offset})
}

// Build produces the final constant. allowOversized permits elements
// beyond the size of desired, as for a flexible array member.
func (b *AggregateBuilder) Build(desired cir.TypeID, allowOversized bool) cir.AttrID {
	return b.buildFrom(b.elems, b.offsets, 0, b.size, b.naturalLayout, desired, allowOversized)
}

func (b *AggregateBuilder) buildFrom(elems []cir.AttrID, offsets []int64, start, size int64, natural bool, desired cir.TypeID, allowOversized bool) cir.AttrID {
	c := b.ctx
	if len(elems) == 0 {
		return c.ZeroAttr(desired)
	}
	offsetOf := func(i int) int64 { return offsets[i] - start }

	if dt := c.Type(desired); dt.Kind == cir.TypeArray {
		if allowOversized {
			panic("constagg: oversized array constant")
		}
		if arr, common, ok := b.asArray(elems, offsetOf, dt.Elem); ok {
			return emitArrayConstant(c, b.TrailingZeroMin, desired, common, dt.Count, arr, c.ZeroAttr(common))
		}
	}

	desiredSize := b.dl.TypeAllocSize(desired)
	if size > desiredSize {
		if !allowOversized {
			panic(fmt.Sprintf("constagg: %d bytes of elements for a %d byte type", size, desiredSize))
		}
		desiredSize = size
	}

	var align int64 = 1
	for _, e := range elems {
		align = max(align, b.alignOf(e))
	}
	alignedSize := cir.AlignTo(size, align)

	packed := false
	unpacked := elems
	switch {
	case desiredSize < alignedSize || cir.AlignTo(desiredSize, align) != desiredSize:
		natural = false
		packed = true
	case desiredSize > alignedSize:
		unpacked = append(slices.Clone(elems), b.padding(desiredSize-size))
	}

	var packedElems []cir.AttrID
	if !natural {
		var sizeSoFar int64
		for i, e := range elems {
			want := offsetOf(i)
			if want < sizeSoFar {
				panic("constagg: elements out of order")
			}
			if want != cir.AlignTo(sizeSoFar, b.alignOf(e)) {
				packed = true
			}
			if want != sizeSoFar {
				packedElems = append(packedElems, b.padding(want-sizeSoFar))
			}
			packedElems = append(packedElems, e)
			sizeSoFar = want + b.sizeOf(e)
		}
		if packed {
			if sizeSoFar > desiredSize {
				panic("constagg: packed elements exceed desired size")
			}
			if sizeSoFar < desiredSize {
				packedElems = append(packedElems, b.padding(desiredSize-sizeSoFar))
			}
		}
	}

	out := unpacked
	if packed {
		out = packedElems
	}
	if b.layoutMatches(desired, out, packed) {
		return c.ConstRecordAttr(desired, out)
	}
	return c.AnonConstRecord(out, packed)
}

// asArray lays elems out as array elements of elemTy when every non-null
// element has the same type, of elemTy's size, on an element boundary.
func (b *AggregateBuilder) asArray(elems []cir.AttrID, offsetOf func(int) int64, elemTy cir.TypeID) ([]cir.AttrID, cir.TypeID, bool) {
	c := b.ctx
	stride := b.dl.TypeAllocSize(elemTy)
	common := cir.NoType
	for _, e := range elems {
		if !c.IsNullValue(e) {
			common = c.AttrType(e)
			break
		}
	}
	if common == cir.NoType {
		return nil, elemTy, true
	}
	if stride == 0 || b.dl.TypeAllocSize(common) != stride {
		return nil, cir.NoType, false
	}
	var arr []cir.AttrID
	for i, e := range elems {
		if c.IsNullValue(e) {
			continue
		}
		if c.AttrType(e) != common || offsetOf(i)%stride != 0 {
			return nil, cir.NoType, false
		}
		idx := offsetOf(i) / stride
		for int64(len(arr)) <= idx {
			arr = append(arr, c.ZeroAttr(common))
		}
		arr[idx] = e
	}
	return arr, common, true
}

// layoutMatches reports whether desired can hold elems as its members.
func (b *AggregateBuilder) layoutMatches(desired cir.TypeID, elems []cir.AttrID, packed bool) bool {
	t := b.ctx.Type(desired)
	if t.Kind != cir.TypeRecord || !t.Complete || t.Packed != packed || len(t.Members) != len(elems) {
		return false
	}
	if t.IsUnion() && len(t.Members) != 1 {
		return false
	}
	for i, e := range elems {
		if t.Members[i] != b.ctx.AttrType(e) {
			return false
		}
	}
	return true
}

// splitAt returns the index of the first element at or after pos,
// splitting the element that straddles pos.
func (b *AggregateBuilder) splitAt(pos int64) (int, bool) {
	if pos >= b.size {
		return len(b.elems), true
	}
	for {
		after := sort.Search(len(b.offsets), func(i int) bool { return b.offsets[i] > pos })
		if after == 0 {
			return 0, true
		}
		i := after - 1
		if b.offsets[i] == pos {
			return i, true
		}
		if b.offsets[i]+b.sizeOf(b.elems[i]) <= pos {
			return i + 1, true
		}
		if !b.split(i) {
			return 0, false
		}
	}
}

// split replaces element i by its parts.
func (b *AggregateBuilder) split(i int) bool {
	b.naturalLayout = false
	c := b.ctx
	a := c.Attr(b.elems[i])
	off := b.offsets[i]
	t := c.Type(a.Type)

	switch a.Kind {
	case cir.AttrConstArray, cir.AttrConstVector:
		stride := b.dl.TypeAllocSize(t.Elem)
		parts := make([]cir.AttrID, t.Count)
		offs := make([]int64, t.Count)
		for j := range t.Count {
			if j < int64(len(a.Elems)) {
				parts[j] = a.Elems[j]
			} else {
				parts[j] = c.ZeroAttr(t.Elem)
			}
			offs[j] = off + j*stride
		}
		b.replace(i, i+1, parts, offs)
		return true

	case cir.AttrConstRecord:
		ro := b.dl.Record(a.Type)
		if t.IsUnion() && len(a.Elems) != 1 {
			return false
		}
		offs := make([]int64, len(a.Elems))
		for j := range a.Elems {
			offs[j] = off + ro.Offsets[j]
		}
		b.replace(i, i+1, a.Elems, offs)
		return true

	case cir.AttrZero:
		return b.splitZero(i, a.Type)

	case cir.AttrUndef:
		b.replace(i, i+1, nil, nil)
		return true

	case cir.AttrInt:
		n := b.dl.TypeStoreSize(a.Type)
		buf := make([]byte, n)
		b.dl.PutInt(buf, a.Int)
		u8 := c.UInt8()
		parts := make([]cir.AttrID, n)
		offs := make([]int64, n)
		for j, by := range buf {
			parts[j] = c.IntAttrInt64(u8, int64(by))
			offs[j] = off + int64(j)
		}
		b.replace(i, i+1, parts, offs)
		return true
	}
	return false
}

// splitZero expands a zero constant into zero constants of its parts.
// Scalars become zero bytes.
func (b *AggregateBuilder) splitZero(i int, ty cir.TypeID) bool {
	c := b.ctx
	off := b.offsets[i]
	t := c.Type(ty)
	var parts []cir.AttrID
	var offs []int64
	switch t.Kind {
	case cir.TypeArray, cir.TypeVector:
		stride := b.dl.TypeAllocSize(t.Elem)
		for j := range t.Count {
			parts = append(parts, c.ZeroAttr(t.Elem))
			offs = append(offs, off+j*stride)
		}
	case cir.TypeRecord:
		ro := b.dl.Record(ty)
		var end int64
		for j, m := range t.Members {
			mo := ro.Offsets[j]
			if t.IsUnion() {
				if j != b.dl.UnionStorage(ty) {
					continue
				}
				mo = 0
			}
			if mo > end {
				parts = append(parts, b.padding(mo-end))
				offs = append(offs, off+end)
			}
			parts = append(parts, c.ZeroAttr(m))
			offs = append(offs, off+mo)
			end = mo + b.dl.TypeAllocSize(m)
		}
		if end < ro.Size {
			parts = append(parts, b.padding(ro.Size-end))
			offs = append(offs, off+end)
		}
	case cir.TypeInt, cir.TypeFloat, cir.TypePointer, cir.TypeBool:
		n := b.dl.TypeAllocSize(ty)
		u8 := c.UInt8()
		for j := range n {
			parts = append(parts, c.ZeroAttr(u8))
			offs = append(offs, off+j)
		}
	default:
		return false
	}
	b.replace(i, i+1, parts, offs)
	return true
}
