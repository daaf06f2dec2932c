package recordlayout

import (
	"fmt"
	"strings"

	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// BitFieldInfo locates a bit-field inside its storage unit.
type BitFieldInfo struct {
	Name string
	// Offset is the bit offset of the field within the storage integer,
	// counted from the least significant bit. On big-endian targets it is
	// mirrored so the same shift arithmetic applies.
	Offset        int64
	Size          int64 // bits
	Signed        bool
	StorageSize   int64 // bits
	StorageOffset int64 // bytes from the start of the record
	StorageType   cir.TypeID
}

// Access returns the IR descriptor for a get/set of this bit-field.
func (bf BitFieldInfo) Access() cir.BitfieldInfo {
	return cir.BitfieldInfo{Name: bf.Name, StorageType: bf.StorageType, Size: bf.Size, Offset: bf.Offset, Signed: bf.Signed}
}

// RecordLayout is the physical layout of one record. It is immutable once
// built.
type RecordLayout struct {
	Decl *types.RecordDecl

	// CompleteObjectType is the type of a complete object.
	CompleteObjectType cir.TypeID
	// BaseSubobjectType is the type used when the record is a base class
	// or a [[no_unique_address]] member; NoType for C records.
	BaseSubobjectType cir.TypeID

	fieldIdx        map[*types.FieldDecl]int
	nonVirtualBases map[*types.RecordDecl]int
	virtualBases    map[*types.RecordDecl]int
	bitFields       map[*types.FieldDecl]BitFieldInfo

	zeroInit       bool
	zeroInitAsBase bool
}

// FieldIndex returns the member index holding f. Bit-fields map to their
// storage member, union fields to their own member.
func (rl *RecordLayout) FieldIndex(f *types.FieldDecl) (int, bool) {
	i, ok := rl.fieldIdx[f]
	return i, ok
}

// MustFieldIndex is FieldIndex for fields known to have storage.
func (rl *RecordLayout) MustFieldIndex(f *types.FieldDecl) int {
	i, ok := rl.fieldIdx[f]
	if !ok {
		panic(fmt.Sprintf("recordlayout: field %s has no storage in %s", f, rl.Decl.Name))
	}
	return i
}

// NonVirtualBaseIndex returns the member index of a direct non-virtual base.
func (rl *RecordLayout) NonVirtualBaseIndex(base *types.RecordDecl) (int, bool) {
	i, ok := rl.nonVirtualBases[base]
	return i, ok
}

// VirtualBaseIndex returns the member index of a virtual base in the
// complete object type.
func (rl *RecordLayout) VirtualBaseIndex(base *types.RecordDecl) (int, bool) {
	i, ok := rl.virtualBases[base]
	return i, ok
}

// BitField returns the bit-field info for f.
func (rl *RecordLayout) BitField(f *types.FieldDecl) (BitFieldInfo, bool) {
	bf, ok := rl.bitFields[f]
	return bf, ok
}

// IsZeroInitializable reports whether a complete object may be
// zero-initialized by filling it with zero bytes.
func (rl *RecordLayout) IsZeroInitializable() bool { return rl.zeroInit }

// IsZeroInitializableAsBase is IsZeroInitializable for base subobjects.
func (rl *RecordLayout) IsZeroInitializableAsBase() bool { return rl.zeroInitAsBase }

// ChunkKind classifies a byte range of a record.
type ChunkKind uint8

const (
	ChunkMember ChunkKind = iota
	ChunkPadding
)

// Chunk is one byte range of the complete object.
type Chunk struct {
	Kind   ChunkKind
	Offset int64
	Size   int64
	Type   cir.TypeID // NoType for implicit alignment padding
	Member int        // member index, -1 for implicit padding
}

// Chunks lists every byte range of the complete object type in order.
// Implicit alignment gaps between members appear as padding chunks, so
// the result tiles [0, size) exactly.
func (rl *RecordLayout) Chunks(dl *cir.DataLayout) []Chunk {
	c := dl.Context()
	t := c.Type(rl.CompleteObjectType)
	ro := dl.Record(rl.CompleteObjectType)
	var out []Chunk
	var end int64
	for i, m := range t.Members {
		off := ro.Offsets[i]
		if t.IsUnion() {
			if i != dl.UnionStorage(rl.CompleteObjectType) && !(t.Padded && i == len(t.Members)-1) {
				continue
			}
			off = end
		}
		if off > end {
			out = append(out, Chunk{Kind: ChunkPadding, Offset: end, Size: off - end, Member: -1})
		}
		kind := ChunkMember
		if (t.Padded && i == len(t.Members)-1) || isPaddingMember(rl, i) {
			kind = ChunkPadding
		}
		size := dl.TypeAllocSize(m)
		out = append(out, Chunk{Kind: kind, Offset: off, Size: size, Type: m, Member: i})
		end = off + size
	}
	if end < ro.Size {
		out = append(out, Chunk{Kind: ChunkPadding, Offset: end, Size: ro.Size - end, Member: -1})
	}
	return out
}

// isPaddingMember reports whether member i backs no field or base.
func isPaddingMember(rl *RecordLayout, i int) bool {
	for _, idx := range rl.fieldIdx {
		if idx == i {
			return false
		}
	}
	for _, idx := range rl.nonVirtualBases {
		if idx == i {
			return false
		}
	}
	for _, idx := range rl.virtualBases {
		if idx == i {
			return false
		}
	}
	if i == 0 && rl.Decl.CXX && rl.Decl.IsDynamic() {
		return false
	}
	return true
}

// FormatChunks renders chunks as "type @offset" entries, e.g.
// "[!s8i @0, pad(3) @1, !s32i @4]".
func FormatChunks(c *cir.Context, chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		if ch.Kind == ChunkPadding {
			parts[i] = fmt.Sprintf("pad(%d) @%d", ch.Size, ch.Offset)
			continue
		}
		parts[i] = fmt.Sprintf("%s @%d", c.TypeString(ch.Type), ch.Offset)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
