package recordlayout

import (
	"slices"

	"fortio.org/safecast"

	"cirgen/internal/cir"
	"cirgen/internal/layout"
	"cirgen/internal/types"
)

type memberKind uint8

const (
	memberVFPtr memberKind = iota
	memberField
	memberBase
	memberVBase
	memberScissor
)

// memberInfo is one accumulated member. A nil data type marks a member
// without storage of its own: bit-fields sharing a run's storage, virtual
// bases living inside another base, the scissor.
type memberInfo struct {
	offset int64 // bytes
	kind   memberKind
	data   cir.TypeID
	field  *types.FieldDecl
	base   *types.RecordDecl
}

type lowering struct {
	ts  *Types
	c   *cir.Context
	dl  *cir.DataLayout
	rd  *types.RecordDecl
	ast *layout.RecordLayout

	members    []memberInfo
	fieldTypes []cir.TypeID

	fieldIdx        map[*types.FieldDecl]int
	bitFields       map[*types.FieldDecl]BitFieldInfo
	nonVirtualBases map[*types.RecordDecl]int
	virtualBases    map[*types.RecordDecl]int

	zeroInit       bool
	zeroInitAsBase bool
	packed         bool
	padded         bool
	unionStorage   int
}

func newLowering(ts *Types, rd *types.RecordDecl, ast *layout.RecordLayout, packed bool) *lowering {
	return &lowering{
		ts: ts, c: ts.Ctx, dl: ts.DL, rd: rd, ast: ast,
		fieldIdx:        make(map[*types.FieldDecl]int),
		bitFields:       make(map[*types.FieldDecl]BitFieldInfo),
		nonVirtualBases: make(map[*types.RecordDecl]int),
		virtualBases:    make(map[*types.RecordDecl]int),
		zeroInit:        true,
		zeroInitAsBase:  true,
		packed:          packed,
		unionStorage:    -1,
	}
}

func (l *lowering) alignment(t cir.TypeID) int64 {
	if l.packed {
		return 1
	}
	return l.dl.ABIAlign(t)
}

func (l *lowering) size(t cir.TypeID) int64 { return l.dl.TypeAllocSize(t) }

func (l *lowering) fieldBitOffset(f *types.FieldDecl) int64 { return l.ast.FieldOffset(f) }

func (l *lowering) storageInfo(offset int64, t cir.TypeID) memberInfo {
	return memberInfo{offset: offset, kind: memberField, data: t}
}

// fieldStorageType returns the storage of a non-bit-field. A potentially
// overlapping record member uses its base-subobject type so following
// members may reuse its tail padding.
func (l *lowering) fieldStorageType(f *types.FieldDecl) cir.TypeID {
	if f.NoUniqueAddress {
		if frd := l.ts.Src.Record(f.Type); frd != nil && frd.CXX && !frd.IsEmpty() {
			return l.ts.BaseSubobjectType(frd)
		}
	}
	return l.ts.ConvertType(f.Type)
}

func (l *lowering) baseStorageType(rd *types.RecordDecl) cir.TypeID {
	return l.ts.BaseSubobjectType(rd)
}

// bitFieldStorageType is the unit covering numBits: an unsigned integer
// when the byte-rounded width is a native integer width, else a byte array.
func (l *lowering) bitFieldStorageType(numBits int64) cir.TypeID {
	aligned := cir.AlignTo(numBits, 8)
	if cir.IsFundamentalIntWidth(aligned) {
		return l.c.Int(safecast.MustConv[uint16](aligned), false)
	}
	return l.c.ByteArray(aligned / 8)
}

func (l *lowering) appendPaddingBytes(n int64) {
	if n != 0 {
		l.fieldTypes = append(l.fieldTypes, l.c.ByteArray(n))
		l.padded = true
	}
}

func (l *lowering) lower(nvBaseType bool) {
	if l.rd.IsUnion() {
		l.lowerUnion(nvBaseType)
		return
	}
	size := l.ast.Size
	if nvBaseType {
		size = l.ast.NonVirtualSize
	}
	l.accumulateFields()
	if l.rd.CXX {
		l.accumulateVPtrs()
		l.accumulateBases()
		if len(l.members) == 0 {
			l.appendPaddingBytes(size)
			return
		}
		if !nvBaseType {
			l.accumulateVBases()
		}
	}
	l.sortMembers()
	// The capstone marks the object size so trailing padding is explicit.
	l.members = append(l.members, l.storageInfo(size, l.c.UInt8()))
	l.determinePacked(nvBaseType)
	l.insertPadding()
	l.members = l.members[:len(l.members)-1]
	l.calculateZeroInit()
	l.fillOutputFields()
}

func (l *lowering) sortMembers() {
	slices.SortStableFunc(l.members, func(a, b memberInfo) int {
		switch {
		case a.offset < b.offset:
			return -1
		case a.offset > b.offset:
			return 1
		}
		return 0
	})
}

func (l *lowering) accumulateFields() {
	fields := l.rd.Fields
	for i := 0; i < len(fields); {
		f := fields[i]
		switch {
		case f.IsBitField():
			end := i + 1
			for end < len(fields) && fields[end].IsBitField() {
				end++
			}
			l.accumulateBitFields(fields[i:end])
			i = end
		case l.ts.Src.IsIncompleteArray(f.Type):
			// A flexible array member ends the record.
			return
		case l.ts.Oracle.IsZeroSizeField(f):
			i++
		default:
			l.members = append(l.members, memberInfo{
				offset: layout.BitsToBytes(l.fieldBitOffset(f)),
				kind:   memberField,
				data:   l.fieldStorageType(f),
				field:  f,
			})
			i++
		}
	}
}

func (l *lowering) isBetterAsSingleFieldRun(runBits, startBitOffset int64) bool {
	if !l.ts.Opts.FineGrainedBitFieldAccess {
		return false
	}
	if runBits < 8 || runBits&(runBits-1) != 0 || !cir.IsFundamentalIntWidth(runBits) {
		return false
	}
	return startBitOffset%(l.dl.ABIAlign(l.c.Int(safecast.MustConv[uint16](runBits), false))*8) == 0
}

// accumulateBitFields coalesces consecutive bit-fields into storage runs.
// A run ends at a zero-length bit-field when the target aligns on them, at
// a gap in the oracle's offsets, or when the fine-grained policy prefers a
// separate unit.
func (l *lowering) accumulateBitFields(fields []*types.FieldDecl) {
	tg := l.ts.Oracle.Target
	run := -1
	var startBitOffset, tail int64
	startAsSingleRun := false
	for i := 0; ; {
		if run < 0 {
			if i == len(fields) {
				return
			}
			if !fields[i].IsZeroLengthBitField() {
				run = i
				startBitOffset = l.fieldBitOffset(fields[i])
				tail = startBitOffset + int64(fields[i].BitWidth)
				startAsSingleRun = l.isBetterAsSingleFieldRun(tail-startBitOffset, startBitOffset)
			}
			i++
			continue
		}
		if i < len(fields) && !startAsSingleRun &&
			!l.isBetterAsSingleFieldRun(tail-startBitOffset, startBitOffset) &&
			(!fields[i].IsZeroLengthBitField() || (!tg.UseZeroLengthBitfieldAlignment && !tg.UseBitFieldTypeAlignment)) &&
			tail == l.fieldBitOffset(fields[i]) {
			tail += int64(fields[i].BitWidth)
			i++
			continue
		}
		storage := l.bitFieldStorageType(tail - startBitOffset)
		at := layout.BitsToBytes(startBitOffset)
		l.members = append(l.members, l.storageInfo(at, storage))
		for ; run < i; run++ {
			l.members = append(l.members, memberInfo{offset: at, kind: memberField, field: fields[run]})
		}
		run = -1
		startAsSingleRun = false
	}
}

func (l *lowering) accumulateVPtrs() {
	if l.ast.HasOwnVFPtr {
		l.members = append(l.members, memberInfo{offset: 0, kind: memberVFPtr, data: l.ts.VPtrType()})
	}
}

func (l *lowering) accumulateBases() {
	if pb := l.ast.PrimaryBase; pb != nil && l.ast.PrimaryBaseIsVirtual {
		l.members = append(l.members, memberInfo{offset: 0, kind: memberBase, data: l.baseStorageType(pb), base: pb})
	}
	for _, bs := range l.rd.Bases {
		if bs.Virtual {
			continue
		}
		brd := l.ts.Src.Record(bs.Type)
		// Bases can be zero-sized without being empty when they only hold a
		// flexible array member.
		if brd.IsEmpty() || l.ts.Oracle.MustRecord(brd).NonVirtualSize == 0 {
			continue
		}
		l.members = append(l.members, memberInfo{
			offset: l.ast.BaseOffset(brd), kind: memberBase, data: l.baseStorageType(brd), base: brd,
		})
	}
}

// hasOwnStorage reports whether query gets its own storage inside decl,
// i.e. it is not the primary virtual base of decl or of any of its bases.
func (l *lowering) hasOwnStorage(decl, query *types.RecordDecl) bool {
	dl := l.ts.Oracle.MustRecord(decl)
	if dl.PrimaryBaseIsVirtual && dl.PrimaryBase == query {
		return false
	}
	for _, bs := range decl.Bases {
		if !l.hasOwnStorage(l.ts.Src.Record(bs.Type), query) {
			return false
		}
	}
	return true
}

func (l *lowering) accumulateVBases() {
	scissor := l.ast.NonVirtualSize
	vbases := l.rd.VirtualBases()
	if l.ts.Oracle.Target.OverlappingVBaseABI {
		for _, vb := range vbases {
			if vb.IsEmpty() {
				continue
			}
			if l.ts.Oracle.IsNearlyEmpty(vb) && !l.hasOwnStorage(l.rd, vb) {
				continue
			}
			scissor = min(scissor, l.ast.VBaseOffset(vb))
		}
	}
	l.members = append(l.members, memberInfo{offset: scissor, kind: memberScissor, base: l.rd})
	for _, vb := range vbases {
		if vb.IsEmpty() {
			continue
		}
		off := l.ast.VBaseOffset(vb)
		if l.ts.Oracle.IsNearlyEmpty(vb) && !l.hasOwnStorage(l.rd, vb) {
			l.members = append(l.members, memberInfo{offset: off, kind: memberVBase, base: vb})
			continue
		}
		l.members = append(l.members, memberInfo{offset: off, kind: memberVBase, data: l.baseStorageType(vb), base: vb})
	}
}

// determinePacked must run before insertPadding: padding depends on the
// decision, never the reverse.
func (l *lowering) determinePacked(nvBaseType bool) {
	if l.packed {
		return
	}
	align, nvAlign := int64(1), int64(1)
	var nvSize int64
	if !nvBaseType && l.rd.CXX {
		nvSize = l.ast.NonVirtualSize
	}
	for _, m := range l.members {
		if m.data == cir.NoType {
			continue
		}
		a := l.dl.ABIAlign(m.data)
		if m.offset%a != 0 {
			l.packed = true
		}
		if m.offset < nvSize {
			nvAlign = max(nvAlign, a)
		}
		align = max(align, a)
	}
	capstone := &l.members[len(l.members)-1]
	if capstone.offset%align != 0 {
		l.packed = true
	}
	if nvSize%nvAlign != 0 {
		l.packed = true
	}
	if !l.packed {
		capstone.data = l.c.Int(safecast.MustConv[uint16](align*8), false)
	}
}

func (l *lowering) insertPadding() {
	type gap struct{ at, size int64 }
	var gaps []gap
	var size int64
	for _, m := range l.members {
		if m.data == cir.NoType {
			continue
		}
		if m.offset < size {
			panic("recordlayout: overlapping members in " + l.rd.Name)
		}
		if m.offset != cir.AlignTo(size, l.alignment(m.data)) {
			gaps = append(gaps, gap{size, m.offset - size})
		}
		size = m.offset + l.size(m.data)
	}
	if len(gaps) == 0 {
		return
	}
	l.padded = true
	for _, g := range gaps {
		l.members = append(l.members, l.storageInfo(g.at, l.c.ByteArray(g.size)))
	}
	l.sortMembers()
}

func (l *lowering) fieldIsZeroInitializable(f *types.FieldDecl) bool {
	return l.ts.IsZeroInitializable(f.Type)
}

func (l *lowering) calculateZeroInit() {
	for _, m := range l.members {
		switch m.kind {
		case memberField:
			if m.field == nil || l.fieldIsZeroInitializable(m.field) {
				continue
			}
			l.zeroInit, l.zeroInitAsBase = false, false
			return
		case memberBase, memberVBase:
			if l.ts.IsZeroInitializableRecord(m.base) {
				continue
			}
			l.zeroInit = false
			if m.kind == memberBase {
				l.zeroInitAsBase = false
			}
		}
	}
}

func (l *lowering) fillOutputFields() {
	for _, m := range l.members {
		if m.data != cir.NoType {
			l.fieldTypes = append(l.fieldTypes, m.data)
		}
		last := len(l.fieldTypes) - 1
		switch m.kind {
		case memberField:
			if m.field == nil {
				continue
			}
			if m.data == cir.NoType {
				if m.field.IsUnnamedBitField() {
					continue
				}
				l.setBitFieldInfo(m.field, m.offset, l.fieldTypes[last])
			}
			l.fieldIdx[m.field] = last
		case memberBase:
			l.nonVirtualBases[m.base] = last
		case memberVBase:
			if m.data != cir.NoType {
				l.virtualBases[m.base] = last
			}
		}
	}
}

func (l *lowering) setBitFieldInfo(f *types.FieldDecl, storageOffset int64, storage cir.TypeID) {
	info := BitFieldInfo{
		Name:          f.Name,
		Signed:        l.ts.Src.IsSigned(f.Type),
		Offset:        l.fieldBitOffset(f) - layout.BytesToBits(storageOffset),
		Size:          int64(f.BitWidth),
		StorageSize:   l.dl.TypeAllocSize(storage) * 8,
		StorageOffset: storageOffset,
		StorageType:   storage,
	}
	if info.Size > info.StorageSize {
		info.Size = info.StorageSize
	}
	// Bits count from the most significant end on big-endian targets.
	if l.dl.BigEndian {
		info.Offset = info.StorageSize - (info.Offset + info.Size)
	}
	l.bitFields[f] = info
}

// lowerUnion keeps every member type and picks the storage member: the
// most aligned, then largest, unless a named member that is not
// zero-initializable pins the choice.
func (l *lowering) lowerUnion(nvBaseType bool) {
	layoutSize := l.ast.Size
	if nvBaseType {
		layoutSize = l.ast.DataSize
	}
	storage := cir.NoType
	storageIdx := -1
	seenNamed := false
	for _, f := range l.rd.Fields {
		var ft cir.TypeID
		if f.IsBitField() {
			if f.IsZeroLengthBitField() {
				continue
			}
			ft = l.bitFieldStorageType(int64(f.BitWidth))
		} else {
			ft = l.fieldStorageType(f)
		}
		idx := len(l.fieldTypes)
		l.fieldTypes = append(l.fieldTypes, ft)
		l.fieldIdx[f] = idx
		if f.IsBitField() {
			l.setBitFieldInfo(f, 0, ft)
		}
		if !seenNamed {
			seenNamed = f.Name != ""
			if !seenNamed {
				if frd := l.ts.Src.Record(f.Type); frd != nil {
					seenNamed = frd.FindFirstNamedDataMember() != nil
				}
			}
			if seenNamed && !l.fieldIsZeroInitializable(f) {
				l.zeroInit, l.zeroInitAsBase = false, false
				storage, storageIdx = ft, idx
			}
		}
		if !l.zeroInit {
			continue
		}
		if l.betterUnionStorage(ft, storage) {
			storage, storageIdx = ft, idx
		}
	}
	if storage == cir.NoType {
		l.appendPaddingBytes(layoutSize)
		return
	}
	if layoutSize < l.size(storage) {
		storage = l.c.ByteArray(layoutSize)
		storageIdx = len(l.fieldTypes)
		l.fieldTypes = append(l.fieldTypes, storage)
	} else {
		l.appendPaddingBytes(layoutSize - l.size(storage))
	}
	l.unionStorage = storageIdx
	if layoutSize%l.dl.ABIAlign(storage) != 0 || (l.rd.Packed && l.ast.Align < l.dl.ABIAlign(storage)) {
		l.packed = true
	}
}

// betterUnionStorage reports whether ft should replace the current union
// storage type. A packed union takes its largest member; otherwise the
// most aligned member wins, then the larger one.
func (l *lowering) betterUnionStorage(ft, cur cir.TypeID) bool {
	if cur == cir.NoType {
		return true
	}
	if l.rd.Packed {
		return l.size(ft) > l.size(cur)
	}
	fa, ca := l.dl.ABIAlign(ft), l.dl.ABIAlign(cur)
	return fa > ca || (fa == ca && l.size(ft) > l.size(cur))
}
