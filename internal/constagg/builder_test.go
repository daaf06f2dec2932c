package constagg_test

import (
	"bytes"
	"math/big"
	"testing"

	"cirgen/internal/cir"
	"cirgen/internal/constagg"
)

func newBuilder(bigEndian bool) (*constagg.AggregateBuilder, *cir.Context, *cir.DataLayout) {
	ctx := cir.NewContext()
	dl := cir.NewDataLayout(ctx)
	dl.BigEndian = bigEndian
	return constagg.NewAggregateBuilder(ctx, dl), ctx, dl
}

// checkDisjoint verifies elements are ordered and never overlap.
func checkDisjoint(t *testing.T, b *constagg.AggregateBuilder, ctx *cir.Context, dl *cir.DataLayout) {
	t.Helper()
	var end int64
	for i, e := range b.Elements() {
		if e.Offset < end {
			t.Fatalf("element %d at %d overlaps previous element ending at %d", i, e.Offset, end)
		}
		end = e.Offset + dl.TypeAllocSize(ctx.AttrType(e.Attr))
	}
	if end > b.Size() {
		t.Fatalf("elements end at %d beyond size %d", end, b.Size())
	}
}

func TestAggregateBuilder_AppendKeepsNaturalLayout(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	s32 := ctx.SInt32()
	b.Add(ctx.IntAttrInt64(s32, 1), 0, false)
	b.Add(ctx.IntAttrInt64(s32, 2), 4, false)
	if !b.NaturalLayout() {
		t.Fatal("aligned appends should keep a natural layout")
	}
	c := b.Build(ctx.AnonRecord([]cir.TypeID{s32, s32}, false, false, cir.RecordStruct), false)
	if got := ctx.Attr(c); got.Kind != cir.AttrConstRecord || len(got.Elems) != 2 {
		t.Fatalf("got %s", ctx.AttrString(c))
	}
	checkDisjoint(t, b, ctx, dl)
}

func TestAggregateBuilder_GapBecomesPadding(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	s8 := ctx.Int(8, true)
	b.Add(ctx.IntAttrInt64(s8, 1), 0, false)
	b.Add(ctx.IntAttrInt64(s8, 2), 3, false)

	elems := b.Elements()
	if len(elems) != 3 || elems[1].Offset != 1 || !ctx.IsNullValue(elems[1].Attr) {
		t.Fatalf("expected explicit padding at 1, got %+v", elems)
	}
	if dl.TypeAllocSize(ctx.AttrType(elems[1].Attr)) != 2 {
		t.Fatalf("padding size = %d, want 2", dl.TypeAllocSize(ctx.AttrType(elems[1].Attr)))
	}
	checkDisjoint(t, b, ctx, dl)
}

func TestAggregateBuilder_MisalignedAppendIsPacked(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	s8, s32 := ctx.Int(8, true), ctx.SInt32()
	b.Add(ctx.IntAttrInt64(s8, 1), 0, false)
	b.Add(ctx.IntAttrInt64(s32, 2), 1, false)
	if b.NaturalLayout() {
		t.Fatal("misaligned append must clear the natural layout flag")
	}
	c := b.Build(ctx.ByteArray(5), false)
	ty := ctx.Type(ctx.AttrType(c))
	if ty.Kind != cir.TypeRecord || !ty.Packed {
		t.Fatalf("expected packed record, got %s", ctx.AttrString(c))
	}
	if got := dl.Encode(c); !bytes.Equal(got, []byte{1, 2, 0, 0, 0}) {
		t.Fatalf("bytes = %v", got)
	}
}

func TestAggregateBuilder_OverwriteSplitsInteger(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	b.Add(ctx.IntAttrInt64(ctx.SInt32(), 0x11223344), 0, false)
	if !b.Add(ctx.IntAttrInt64(ctx.UInt8(), 0xff), 1, true) {
		t.Fatal("integer should split into bytes")
	}
	checkDisjoint(t, b, ctx, dl)
	if len(b.Elements()) != 4 {
		t.Fatalf("expected 4 byte elements, got %d", len(b.Elements()))
	}
	c := b.Build(ctx.ByteArray(4), false)
	if got := dl.Encode(c); !bytes.Equal(got, []byte{0x44, 0xff, 0x22, 0x11}) {
		t.Fatalf("bytes = %x", got)
	}
}

func TestAggregateBuilder_FloatIsNotSplittable(t *testing.T) {
	b, ctx, _ := newBuilder(false)
	b.Add(ctx.FPAttr(ctx.Float(64), 1.5), 0, false)
	if b.Add(ctx.IntAttrInt64(ctx.UInt8(), 1), 2, true) {
		t.Fatal("overwriting part of a float must fail")
	}
}

func TestAggregateBuilder_OverwriteUndefDropsIt(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	b.Add(ctx.UndefAttr(ctx.SInt32()), 0, false)
	if !b.Add(ctx.IntAttrInt64(ctx.UInt8(), 7), 2, true) {
		t.Fatal("undef should be droppable")
	}
	checkDisjoint(t, b, ctx, dl)
	if got := dl.Encode(b.Build(ctx.ByteArray(4), false)); !bytes.Equal(got, []byte{0, 0, 7, 0}) {
		t.Fatalf("bytes = %v", got)
	}
}

func TestAggregateBuilder_AddBits(t *testing.T) {
	type field struct {
		value  int64
		width  int64
		offset int64
	}
	tests := []struct {
		name      string
		bigEndian bool
		fields    []field
		want      []byte
	}{
		{"shared byte little endian", false, []field{{5, 3, 0}, {3, 5, 3}}, []byte{0x1d, 0}},
		{"shared byte big endian", true, []field{{5, 3, 0}, {3, 5, 3}}, []byte{0xa3, 0}},
		{"straddle little endian", false, []field{{0xabc, 12, 4}}, []byte{0xc0, 0xab}},
		{"straddle big endian", true, []field{{0xabc, 12, 4}}, []byte{0x0a, 0xbc}},
		{"value truncated to width", false, []field{{0x1ff, 4, 0}}, []byte{0x0f, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ctx, dl := newBuilder(tt.bigEndian)
			for _, f := range tt.fields {
				if !b.AddBits(big.NewInt(f.value), f.width, f.offset, false) {
					t.Fatalf("AddBits(%#x, %d, %d) failed", f.value, f.width, f.offset)
				}
			}
			checkDisjoint(t, b, ctx, dl)
			if got := dl.Encode(b.Build(ctx.ByteArray(2), false)); !bytes.Equal(got, tt.want) {
				t.Fatalf("bytes = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestAggregateBuilder_AddBitsMergesIntoSplitInteger(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	b.Add(ctx.IntAttrInt64(ctx.Int(16, false), 0x0f00), 0, false)
	if !b.AddBits(big.NewInt(0xa), 4, 12, true) {
		t.Fatal("AddBits into an integer should split it")
	}
	if got := dl.Encode(b.Build(ctx.ByteArray(2), false)); !bytes.Equal(got, []byte{0x00, 0xaf}) {
		t.Fatalf("bytes = %x", got)
	}
}

func TestAggregateBuilder_CondenseRebuildsSubobject(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	s32 := ctx.SInt32()
	arr := ctx.Array(s32, 3)
	b.Add(ctx.ConstArrayAttr(arr, []cir.AttrID{ctx.IntAttrInt64(s32, 1), ctx.IntAttrInt64(s32, 2), ctx.IntAttrInt64(s32, 3)}), 0, false)
	b.Add(ctx.IntAttrInt64(s32, 9), 4, true)
	if len(b.Elements()) != 3 {
		t.Fatalf("expected the array to be split, got %d elements", len(b.Elements()))
	}
	b.Condense(0, arr)
	elems := b.Elements()
	if len(elems) != 1 || ctx.AttrKindOf(elems[0].Attr) != cir.AttrConstArray || ctx.AttrType(elems[0].Attr) != arr {
		t.Fatalf("condense left %+v", elems)
	}
	if got := dl.Encode(elems[0].Attr); !bytes.Equal(got, []byte{1, 0, 0, 0, 9, 0, 0, 0, 3, 0, 0, 0}) {
		t.Fatalf("bytes = %v", got)
	}
}

func TestAggregateBuilder_CondenseRebuildsShortElement(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	s32 := ctx.SInt32()
	pair := ctx.AnonRecord([]cir.TypeID{s32, s32}, false, false, cir.RecordStruct)
	b.Add(ctx.IntAttrInt64(s32, 7), 0, false)
	b.Condense(0, pair)
	elems := b.Elements()
	if len(elems) != 1 || elems[0].Offset != 0 {
		t.Fatalf("condense left %+v", elems)
	}
	if ctx.AttrKindOf(elems[0].Attr) != cir.AttrConstRecord {
		t.Fatalf("element not rebuilt: %s", ctx.AttrString(elems[0].Attr))
	}
	if got := dl.Encode(elems[0].Attr); !bytes.Equal(got, []byte{7, 0, 0, 0}) {
		t.Fatalf("bytes = %v", got)
	}
	checkDisjoint(t, b, ctx, dl)
}

func TestAggregateBuilder_EmptyBuildIsZero(t *testing.T) {
	b, ctx, _ := newBuilder(false)
	c := b.Build(ctx.SInt64(), false)
	if ctx.AttrKindOf(c) != cir.AttrZero {
		t.Fatalf("got %s", ctx.AttrString(c))
	}
}

func TestAggregateBuilder_OversizedBuild(t *testing.T) {
	b, ctx, dl := newBuilder(false)
	s32 := ctx.SInt32()
	for i := range int64(3) {
		b.Add(ctx.IntAttrInt64(s32, i+1), i*4, false)
	}
	rec := ctx.AnonRecord([]cir.TypeID{s32}, false, false, cir.RecordStruct)
	c := b.Build(rec, true)
	if got := dl.TypeAllocSize(ctx.AttrType(c)); got != 12 {
		t.Fatalf("oversized constant has %d bytes, want 12", got)
	}
}
