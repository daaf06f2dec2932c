package layout

import (
	"cirgen/internal/types"
)

// RecordLayout is the source-level (Itanium) layout of a record: where each
// field, base and virtual base lives. Field offsets are in bits, everything
// else in bytes.
type RecordLayout struct {
	Size            int64
	Align           int64
	DataSize        int64 // size without reusable tail padding
	NonVirtualSize  int64
	NonVirtualAlign int64

	FieldOffsets []int64 // bits, indexed by FieldDecl.Index

	BaseOffsets  map[*types.RecordDecl]int64 // direct non-virtual bases
	VBaseOffsets map[*types.RecordDecl]int64 // every virtual base

	PrimaryBase          *types.RecordDecl
	PrimaryBaseIsVirtual bool
	HasOwnVFPtr          bool
}

// FieldOffset returns the offset of f in bits.
func (rl *RecordLayout) FieldOffset(f *types.FieldDecl) int64 {
	return rl.FieldOffsets[f.Index]
}

// BaseOffset returns the byte offset of a direct non-virtual base.
func (rl *RecordLayout) BaseOffset(base *types.RecordDecl) int64 {
	return rl.BaseOffsets[base]
}

// VBaseOffset returns the byte offset of a virtual base in the complete object.
func (rl *RecordLayout) VBaseOffset(base *types.RecordDecl) int64 {
	return rl.VBaseOffsets[base]
}

type recordBuilder struct {
	e     *Engine
	state *layoutState
	rd    *types.RecordDecl
	out   *RecordLayout

	dataBits int64 // data size in bits
	sizeBits int64
	align    int64
	unfilled int64 // unused bits of the last bit-field unit

	indirectPrimary map[*types.RecordDecl]bool
	visitedVBases   map[*types.RecordDecl]bool
}

func (e *Engine) computeRecord(rd *types.RecordDecl, state *layoutState) (*RecordLayout, *LayoutError) {
	b := &recordBuilder{
		e:     e,
		state: state,
		rd:    rd,
		out: &RecordLayout{
			FieldOffsets: make([]int64, len(rd.Fields)),
			BaseOffsets:  make(map[*types.RecordDecl]int64),
			VBaseOffsets: make(map[*types.RecordDecl]int64),
		},
		align:           1,
		indirectPrimary: make(map[*types.RecordDecl]bool),
		visitedVBases:   make(map[*types.RecordDecl]bool),
	}
	if rd.CXX {
		if err := b.layoutNonVirtualBases(); err != nil {
			return nil, err
		}
	}
	if err := b.layoutFields(); err != nil {
		return nil, err
	}
	out := b.out
	out.NonVirtualSize = ceilBytes(b.sizeBits)
	out.NonVirtualAlign = b.align
	dataSize := ceilBytes(b.dataBits)
	if rd.CXX {
		if err := b.layoutVirtualBases(rd); err != nil {
			return nil, err
		}
		dataSize = ceilBytes(b.dataBits)
	}
	if rd.AlignAttr > 0 {
		b.align = max(b.align, int64(rd.AlignAttr))
	}
	size := ceilBytes(b.sizeBits)
	if rd.CXX && size == 0 {
		size = 1
	}
	out.Align = b.align
	out.Size = roundUp(size, b.align)
	out.DataSize = dataSize
	if rd.IsPOD() {
		out.DataSize = out.Size
		out.NonVirtualSize = out.Size
	}
	return out, nil
}

func ceilBytes(bits int64) int64 { return (bits + 7) / 8 }

func (b *recordBuilder) updateAlign(a int64) {
	b.align = max(b.align, a)
}

func (b *recordBuilder) setDataBits(bits int64) {
	b.dataBits = bits
	b.sizeBits = max(b.sizeBits, bits)
}

func (b *recordBuilder) baseAlign(rl *RecordLayout) int64 {
	if b.rd.Packed {
		return 1
	}
	return rl.NonVirtualAlign
}

func (b *recordBuilder) baseLayout(rd *types.RecordDecl) (*RecordLayout, *LayoutError) {
	return b.e.record(rd, b.state)
}

func hasVBases(rd *types.RecordDecl) bool { return len(rd.VirtualBases()) > 0 }

func (b *recordBuilder) determinePrimaryBase() *LayoutError {
	rd := b.rd
	if !rd.IsDynamic() {
		return nil
	}
	if hasVBases(rd) {
		for _, bs := range rd.Bases {
			br := b.e.Types.Record(bs.Type)
			if br != nil && hasVBases(br) {
				if err := b.addIndirectPrimaryBases(br); err != nil {
					return err
				}
			}
		}
	}
	for _, bs := range rd.Bases {
		if bs.Virtual {
			continue
		}
		if br := b.e.Types.Record(bs.Type); br != nil && br.IsDynamic() {
			b.out.PrimaryBase = br
			return nil
		}
	}
	var firstNearlyEmpty *types.RecordDecl
	for _, vb := range rd.VirtualBases() {
		nearlyEmpty, err := b.isNearlyEmpty(vb)
		if err != nil {
			return err
		}
		if !nearlyEmpty {
			continue
		}
		if !b.indirectPrimary[vb] {
			b.out.PrimaryBase, b.out.PrimaryBaseIsVirtual = vb, true
			return nil
		}
		if firstNearlyEmpty == nil {
			firstNearlyEmpty = vb
		}
	}
	if firstNearlyEmpty != nil {
		b.out.PrimaryBase, b.out.PrimaryBaseIsVirtual = firstNearlyEmpty, true
	}
	return nil
}

func (b *recordBuilder) isNearlyEmpty(rd *types.RecordDecl) (bool, *LayoutError) {
	if !rd.IsDynamic() {
		return false, nil
	}
	rl, err := b.baseLayout(rd)
	if err != nil {
		return false, err
	}
	return rl.NonVirtualSize == b.e.Target.PtrSize, nil
}

func (b *recordBuilder) addIndirectPrimaryBases(rd *types.RecordDecl) *LayoutError {
	rl, err := b.baseLayout(rd)
	if err != nil {
		return err
	}
	if rl.PrimaryBaseIsVirtual {
		b.indirectPrimary[rl.PrimaryBase] = true
	}
	for _, bs := range rd.Bases {
		if br := b.e.Types.Record(bs.Type); br != nil && hasVBases(br) {
			if err := b.addIndirectPrimaryBases(br); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *recordBuilder) layoutNonVirtualBases() *LayoutError {
	if err := b.determinePrimaryBase(); err != nil {
		return err
	}
	rd := b.rd
	if pb := b.out.PrimaryBase; pb != nil {
		if b.out.PrimaryBaseIsVirtual {
			b.visitedVBases[pb] = true
			if err := b.layoutVirtualBase(pb, true); err != nil {
				return err
			}
		} else if err := b.layoutNonVirtualBase(pb); err != nil {
			return err
		}
	} else if rd.IsDynamic() {
		ptr := BytesToBits(b.e.Target.PtrSize)
		b.setDataBits(ptr)
		b.updateAlign(b.e.Target.PtrAlign)
		b.out.HasOwnVFPtr = true
	}
	for _, bs := range rd.Bases {
		if bs.Virtual {
			continue
		}
		br := b.e.Types.Record(bs.Type)
		if br == nil {
			return &LayoutError{Kind: LayoutErrNotRecord, Type: bs.Type}
		}
		if br == b.out.PrimaryBase && !b.out.PrimaryBaseIsVirtual {
			continue
		}
		if err := b.layoutNonVirtualBase(br); err != nil {
			return err
		}
	}
	return nil
}

// placeBase returns the byte offset for a base subobject and updates sizes.
func (b *recordBuilder) placeBase(base *types.RecordDecl, rl *RecordLayout, atZero bool) int64 {
	align := b.baseAlign(rl)
	b.updateAlign(align)
	if base.IsEmpty() {
		b.sizeBits = max(b.sizeBits, BytesToBits(rl.Size))
		return 0
	}
	offset := roundUp(ceilBytes(b.dataBits), align)
	if atZero {
		offset = 0
	}
	b.setDataBits(BytesToBits(offset + rl.NonVirtualSize))
	return offset
}

func (b *recordBuilder) layoutNonVirtualBase(base *types.RecordDecl) *LayoutError {
	rl, err := b.baseLayout(base)
	if err != nil {
		return err
	}
	offset := b.placeBase(base, rl, false)
	b.out.BaseOffsets[base] = offset
	return b.addPrimaryVBaseOffsets(base, offset)
}

func (b *recordBuilder) layoutVirtualBase(base *types.RecordDecl, atZero bool) *LayoutError {
	rl, err := b.baseLayout(base)
	if err != nil {
		return err
	}
	offset := b.placeBase(base, rl, atZero)
	b.out.VBaseOffsets[base] = offset
	return b.addPrimaryVBaseOffsets(base, offset)
}

// addPrimaryVBaseOffsets records indirect primary virtual bases: they share
// the address of the first subobject that claims them as primary.
func (b *recordBuilder) addPrimaryVBaseOffsets(cls *types.RecordDecl, offset int64) *LayoutError {
	if !hasVBases(cls) {
		return nil
	}
	rl, err := b.baseLayout(cls)
	if err != nil {
		return err
	}
	if pb := rl.PrimaryBase; pb != nil && rl.PrimaryBaseIsVirtual {
		if _, ok := b.out.VBaseOffsets[pb]; !ok {
			b.out.VBaseOffsets[pb] = offset
			if err := b.addPrimaryVBaseOffsets(pb, offset); err != nil {
				return err
			}
		}
	}
	for _, bs := range cls.Bases {
		if bs.Virtual {
			continue
		}
		br := b.e.Types.Record(bs.Type)
		if err := b.addPrimaryVBaseOffsets(br, offset+rl.BaseOffsets[br]); err != nil {
			return err
		}
	}
	return nil
}

func (b *recordBuilder) layoutVirtualBases(cls *types.RecordDecl) *LayoutError {
	var pb *types.RecordDecl
	pbVirtual := false
	if cls == b.rd {
		pb, pbVirtual = b.out.PrimaryBase, b.out.PrimaryBaseIsVirtual
	} else {
		rl, err := b.baseLayout(cls)
		if err != nil {
			return err
		}
		pb, pbVirtual = rl.PrimaryBase, rl.PrimaryBaseIsVirtual
	}
	for _, bs := range cls.Bases {
		br := b.e.Types.Record(bs.Type)
		if br == nil {
			return &LayoutError{Kind: LayoutErrNotRecord, Type: bs.Type}
		}
		if bs.Virtual && (pb != br || !pbVirtual) && !b.indirectPrimary[br] && !b.visitedVBases[br] {
			b.visitedVBases[br] = true
			if _, placed := b.out.VBaseOffsets[br]; !placed {
				if err := b.layoutVirtualBase(br, false); err != nil {
					return err
				}
			}
		}
		if hasVBases(br) {
			if err := b.layoutVirtualBases(br); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *recordBuilder) layoutFields() *LayoutError {
	for _, f := range b.rd.Fields {
		var err *LayoutError
		if f.IsBitField() {
			err = b.layoutBitField(f)
		} else {
			err = b.layoutField(f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *recordBuilder) layoutField(f *types.FieldDecl) *LayoutError {
	union := b.rd.IsUnion()
	b.unfilled = 0
	ti, err := b.e.typeInfo(f.Type, b.state)
	if err != nil {
		return err
	}
	fieldSize, effSize := ti.Size, ti.Size
	if fr := b.e.Types.Record(f.Type); fr != nil && f.NoUniqueAddress {
		frl, err := b.baseLayout(fr)
		if err != nil {
			return err
		}
		effSize = frl.DataSize
		if fr.IsEmpty() {
			effSize = 0
		}
	}
	align := ti.Align
	if b.rd.Packed {
		align = 1
	}
	var offset int64
	if !union {
		offset = roundUp(ceilBytes(b.dataBits), align)
	}
	b.out.FieldOffsets[f.Index] = BytesToBits(offset)
	if union {
		b.setDataBits(max(b.dataBits, BytesToBits(effSize)))
	} else {
		b.setDataBits(BytesToBits(offset + effSize))
	}
	b.sizeBits = max(b.sizeBits, BytesToBits(offset+fieldSize))
	b.updateAlign(align)
	return nil
}

func (b *recordBuilder) layoutBitField(f *types.FieldDecl) *LayoutError {
	tg := b.e.Target
	union := b.rd.IsUnion()
	ti, err := b.e.typeInfo(f.Type, b.state)
	if err != nil {
		return err
	}
	width := int64(f.BitWidth)
	unitBits := BytesToBits(ti.Size)
	fieldAlign := BytesToBits(ti.Align)

	var offset int64
	if !union {
		offset = b.dataBits - b.unfilled
	}
	if !tg.UseBitFieldTypeAlignment {
		if !(width == 0 && tg.UseZeroLengthBitfieldAlignment) {
			fieldAlign = 1
		}
	}
	if b.rd.Packed && width != 0 {
		fieldAlign = 1
	}
	if width == 0 || (offset%fieldAlign)+width > unitBits {
		offset = roundUp(offset, fieldAlign)
	}
	b.out.FieldOffsets[f.Index] = offset

	if union {
		b.setDataBits(max(b.dataBits, roundUp(width, 8)))
	} else {
		end := offset + width
		b.setDataBits(roundUp(end, 8))
		b.unfilled = b.dataBits - end
	}
	if f.Name != "" || (width == 0 && tg.UseZeroLengthBitfieldAlignment) {
		b.updateAlign(max(1, fieldAlign/8))
	}
	return nil
}
