package recordlayout_test

import (
	"strings"
	"testing"

	"cirgen/internal/cir"
	"cirgen/internal/layout"
	"cirgen/internal/recordlayout"
	"cirgen/internal/types"
)

func newTypes(tg layout.Target) (*recordlayout.Types, *types.Interner) {
	in := types.NewInterner(tg.Model)
	return recordlayout.NewTypes(cir.NewContext(), layout.New(tg, in), recordlayout.Options{}), in
}

func members(ts *recordlayout.Types, id cir.TypeID) string {
	t := ts.Ctx.Type(id)
	parts := make([]string, len(t.Members))
	for i, m := range t.Members {
		parts[i] = ts.Ctx.TypeString(m)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// checkTiling verifies the structural guarantees every lowered record
// must meet: member offsets never decrease, chunks tile the object, and
// the physical size matches the source layout.
func checkTiling(t *testing.T, ts *recordlayout.Types, rd *types.RecordDecl) {
	t.Helper()
	rl := ts.RecordLayout(rd)
	want := ts.Oracle.MustRecord(rd).Size
	if got := ts.DL.TypeAllocSize(rl.CompleteObjectType); got != want {
		t.Fatalf("%s: physical size %d, source size %d", rd.Name, got, want)
	}
	ro := ts.DL.Record(rl.CompleteObjectType)
	for i := 1; i < len(ro.Offsets); i++ {
		if ro.Offsets[i] < ro.Offsets[i-1] {
			t.Fatalf("%s: member %d at %d precedes member %d at %d", rd.Name, i, ro.Offsets[i], i-1, ro.Offsets[i-1])
		}
	}
	var end int64
	for _, ch := range rl.Chunks(ts.DL) {
		if ch.Offset != end {
			t.Fatalf("%s: chunk at %d, expected %d", rd.Name, ch.Offset, end)
		}
		end += ch.Size
	}
	if end != want {
		t.Fatalf("%s: chunks cover %d bytes, want %d", rd.Name, end, want)
	}
}

func TestLowering_NaturalPaddingChunks(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	b := in.Builtins()
	rd := in.NewRecord("S", types.TagStruct)
	c := rd.AddField("c", b.Char)
	i := rd.AddField("i", b.Int)
	rd.Complete()

	rl := ts.RecordLayout(rd)
	ty := ts.Ctx.Type(rl.CompleteObjectType)
	if ty.Packed || ty.Padded {
		t.Fatalf("packed=%v padded=%v, want neither", ty.Packed, ty.Padded)
	}
	if got := members(ts, rl.CompleteObjectType); got != "{!s8i, !s32i}" {
		t.Fatalf("members = %s", got)
	}
	if rl.MustFieldIndex(c) != 0 || rl.MustFieldIndex(i) != 1 {
		t.Fatalf("field indices = %d,%d", rl.MustFieldIndex(c), rl.MustFieldIndex(i))
	}
	got := recordlayout.FormatChunks(ts.Ctx, rl.Chunks(ts.DL))
	if got != "[!s8i @0, pad(3) @1, !s32i @4]" {
		t.Fatalf("chunks = %s", got)
	}
	if rl.BaseSubobjectType != cir.NoType {
		t.Fatal("C record should have no base subobject type")
	}
	checkTiling(t, ts, rd)
}

func TestLowering_PackedRecord(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	b := in.Builtins()
	rd := in.NewRecord("P", types.TagStruct)
	rd.Packed = true
	rd.AddField("c", b.Char)
	rd.AddField("i", b.Int)
	rd.Complete()

	rl := ts.RecordLayout(rd)
	ty := ts.Ctx.Type(rl.CompleteObjectType)
	if !ty.Packed || ty.Padded {
		t.Fatalf("packed=%v padded=%v, want packed only", ty.Packed, ty.Padded)
	}
	if got := recordlayout.FormatChunks(ts.Ctx, rl.Chunks(ts.DL)); got != "[!s8i @0, !s32i @1]" {
		t.Fatalf("chunks = %s", got)
	}
	checkTiling(t, ts, rd)
}

func TestLowering_BitFieldRuns(t *testing.T) {
	tests := []struct {
		name    string
		widths  []int
		members string
		chunks  string
		index   []int
	}{
		{"contiguous", []int{3, 5}, "{!u8i, !cir.array<!u8i x 3>}", "[!u8i @0, pad(3) @1]", []int{0, 0}},
		{"straddle", []int{3, 5, 30}, "{!u8i, !u32i}", "[!u8i @0, pad(3) @1, !u32i @4]", []int{0, 0, 1}},
		{"zero-length", []int{3, 0, 4}, "{!u8i, !cir.array<!u8i x 3>, !u8i, !cir.array<!u8i x 3>}",
			"[!u8i @0, pad(3) @1, !u8i @4, pad(3) @5]", []int{0, -1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, in := newTypes(layout.X86_64LinuxGNU())
			rd := in.NewRecord("B", types.TagStruct)
			var fields []*types.FieldDecl
			for i, w := range tt.widths {
				name := string(rune('a' + i))
				if w == 0 {
					name = ""
				}
				fields = append(fields, rd.AddBitField(name, in.Builtins().Int, w))
			}
			rd.Complete()
			rl := ts.RecordLayout(rd)
			if got := members(ts, rl.CompleteObjectType); got != tt.members {
				t.Fatalf("members = %s, want %s", got, tt.members)
			}
			if got := recordlayout.FormatChunks(ts.Ctx, rl.Chunks(ts.DL)); got != tt.chunks {
				t.Fatalf("chunks = %s, want %s", got, tt.chunks)
			}
			for i, f := range fields {
				idx, ok := rl.FieldIndex(f)
				if tt.index[i] < 0 {
					if ok {
						t.Fatalf("unnamed bit-field %d got index %d", i, idx)
					}
					continue
				}
				if !ok || idx != tt.index[i] {
					t.Fatalf("field %d index = %d (%v), want %d", i, idx, ok, tt.index[i])
				}
			}
			checkTiling(t, ts, rd)
		})
	}
}

func TestLowering_BitFieldInfo(t *testing.T) {
	tests := []struct {
		name   string
		target layout.Target
		offA   int64
		offB   int64
	}{
		{"little-endian", layout.X86_64LinuxGNU(), 0, 3},
		{"big-endian", layout.PPC64LinuxGNU(), 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, in := newTypes(tt.target)
			rd := in.NewRecord("B", types.TagStruct)
			a := rd.AddBitField("a", in.Builtins().Int, 3)
			bf := rd.AddBitField("b", in.Builtins().UInt, 5)
			rd.Complete()
			rl := ts.RecordLayout(rd)

			ia, _ := rl.BitField(a)
			ib, _ := rl.BitField(bf)
			if ia.Offset != tt.offA || ib.Offset != tt.offB {
				t.Fatalf("offsets = %d,%d want %d,%d", ia.Offset, ib.Offset, tt.offA, tt.offB)
			}
			if ia.Size != 3 || ib.Size != 5 || ia.StorageSize != 8 || ia.StorageOffset != 0 {
				t.Fatalf("a=%+v b=%+v", ia, ib)
			}
			if !ia.Signed || ib.Signed {
				t.Fatalf("signedness a=%v b=%v", ia.Signed, ib.Signed)
			}
		})
	}
}

func TestLowering_FineGrainedBitFields(t *testing.T) {
	in := types.NewInterner(types.LP64)
	ts := recordlayout.NewTypes(cir.NewContext(), layout.New(layout.X86_64LinuxGNU(), in),
		recordlayout.Options{FineGrainedBitFieldAccess: true})
	rd := in.NewRecord("F", types.TagStruct)
	a := rd.AddBitField("a", in.Builtins().Int, 8)
	b := rd.AddBitField("b", in.Builtins().Int, 8)
	rd.Complete()
	rl := ts.RecordLayout(rd)
	if rl.MustFieldIndex(a) == rl.MustFieldIndex(b) {
		t.Fatal("byte-sized bit-fields should get separate storage")
	}
	checkTiling(t, ts, rd)
}

func TestLowering_UnionStorage(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	b := in.Builtins()
	rd := in.NewRecord("U", types.TagUnion)
	rd.AddField("c", b.Char)
	i := rd.AddField("i", b.Int)
	s := rd.AddField("s", in.Array(b.Short, 3))
	rd.Complete()

	rl := ts.RecordLayout(rd)
	if got := members(ts, rl.CompleteObjectType); got != "{!s8i, !s32i, !cir.array<!s16i x 3>, !cir.array<!u8i x 4>}" {
		t.Fatalf("members = %s", got)
	}
	if got := ts.DL.UnionStorage(rl.CompleteObjectType); got != rl.MustFieldIndex(i) {
		t.Fatalf("storage member = %d, want %d", got, rl.MustFieldIndex(i))
	}
	if rl.MustFieldIndex(s) != 2 {
		t.Fatalf("index(s) = %d", rl.MustFieldIndex(s))
	}
	if !rl.IsZeroInitializable() {
		t.Fatal("plain union should be zero-initializable")
	}
	if got := recordlayout.FormatChunks(ts.Ctx, rl.Chunks(ts.DL)); got != "[!s32i @0, pad(4) @4]" {
		t.Fatalf("chunks = %s", got)
	}
	checkTiling(t, ts, rd)
}

func TestLowering_PackedUnionTakesLargestMember(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	b := in.Builtins()
	rd := in.NewRecord("U", types.TagUnion)
	rd.Packed = true
	rd.AddField("c", b.Char)
	rd.AddField("i", b.Int)
	s := rd.AddField("s", in.Array(b.Short, 3))
	rd.Complete()

	rl := ts.RecordLayout(rd)
	if got := members(ts, rl.CompleteObjectType); got != "{!s8i, !s32i, !cir.array<!s16i x 3>}" {
		t.Fatalf("members = %s", got)
	}
	if got := ts.DL.UnionStorage(rl.CompleteObjectType); got != rl.MustFieldIndex(s) {
		t.Fatalf("storage member = %d, want %d", got, rl.MustFieldIndex(s))
	}
	if ty := ts.Ctx.Type(rl.CompleteObjectType); !ty.Packed || ty.Padded {
		t.Fatalf("packed=%v padded=%v, want packed only", ty.Packed, ty.Padded)
	}
	checkTiling(t, ts, rd)
}

func TestLowering_UnionMemberPointerNotZeroInit(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	b := in.Builtins()
	cls := in.NewRecord("C", types.TagStruct)
	cls.CXX = true
	cls.AddField("x", b.Int)
	cls.Complete()

	rd := in.NewRecord("U", types.TagUnion)
	rd.CXX = true
	mp := rd.AddField("mp", in.MemberPointer(b.Int, cls.Self))
	rd.AddField("d", b.Double)
	rd.Complete()

	rl := ts.RecordLayout(rd)
	if rl.IsZeroInitializable() || rl.IsZeroInitializableAsBase() {
		t.Fatal("union led by a member pointer is not zero-initializable")
	}
	if got := ts.DL.UnionStorage(rl.CompleteObjectType); got != rl.MustFieldIndex(mp) {
		t.Fatalf("storage member = %d, want the member pointer", got)
	}
}

func TestLowering_EmptyCXXRecord(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	rd := in.NewRecord("E", types.TagStruct)
	rd.CXX = true
	rd.Complete()
	rl := ts.RecordLayout(rd)
	ty := ts.Ctx.Type(rl.CompleteObjectType)
	if !ty.Padded || members(ts, rl.CompleteObjectType) != "{!cir.array<!u8i x 1>}" {
		t.Fatalf("empty record = %s padded=%v", members(ts, rl.CompleteObjectType), ty.Padded)
	}
	checkTiling(t, ts, rd)
}

func TestLowering_NonPrimaryVirtualBase(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	v := in.NewRecord("V", types.TagStruct)
	v.CXX = true
	v.AddField("v", in.Builtins().Int)
	v.Complete()
	d := in.NewRecord("D", types.TagStruct)
	d.AddBase(v.Self, true)
	d.AddField("c", in.Builtins().Char)
	d.Complete()

	rl := ts.RecordLayout(d)
	ty := ts.Ctx.Type(rl.CompleteObjectType)
	if !ty.Packed || !ty.Padded {
		t.Fatalf("packed=%v padded=%v", ty.Packed, ty.Padded)
	}
	want := "{!cir.ptr<!cir.ptr<!cir.func<() -> !u32i>>>, !s8i, !cir.array<!u8i x 3>, !rec_V}"
	if got := members(ts, rl.CompleteObjectType); got != want {
		t.Fatalf("members = %s\nwant %s", got, want)
	}
	if idx, ok := rl.VirtualBaseIndex(v); !ok || idx != 3 {
		t.Fatalf("virtual base index = %d (%v)", idx, ok)
	}
	base := rl.BaseSubobjectType
	if base == rl.CompleteObjectType || ts.Ctx.TypeString(base) != "!rec_D.base" {
		t.Fatalf("base subobject type = %s", ts.Ctx.TypeString(base))
	}
	if got := ts.DL.TypeAllocSize(base); got != 9 {
		t.Fatalf("base subobject size = %d, want 9", got)
	}
	checkTiling(t, ts, d)
}

func TestLowering_VirtualPrimaryBase(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	a := in.NewRecord("A", types.TagStruct)
	a.CXX = true
	a.Polymorphic = true
	a.Complete()
	b := in.NewRecord("B", types.TagStruct)
	b.AddBase(a.Self, true)
	x := b.AddField("x", in.Builtins().Int)
	b.Complete()

	rl := ts.RecordLayout(b)
	if got := members(ts, rl.CompleteObjectType); got != "{!rec_A, !s32i, !cir.array<!u8i x 4>}" {
		t.Fatalf("members = %s", got)
	}
	if idx, ok := rl.NonVirtualBaseIndex(a); !ok || idx != 0 {
		t.Fatalf("primary base index = %d (%v)", idx, ok)
	}
	if _, ok := rl.VirtualBaseIndex(a); ok {
		t.Fatal("primary virtual base shares storage and needs no separate index")
	}
	if rl.MustFieldIndex(x) != 1 {
		t.Fatalf("index(x) = %d", rl.MustFieldIndex(x))
	}
	checkTiling(t, ts, b)
}

func TestLowering_MemberPointerFieldNotZeroInit(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	cls := in.NewRecord("C", types.TagStruct)
	cls.CXX = true
	cls.AddField("x", in.Builtins().Int)
	cls.Complete()
	rd := in.NewRecord("H", types.TagStruct)
	rd.CXX = true
	rd.AddField("p", in.MemberPointer(in.Builtins().Int, cls.Self))
	rd.Complete()
	if ts.RecordLayout(rd).IsZeroInitializable() {
		t.Fatal("record holding a member pointer is not zero-initializable")
	}
	if !ts.RecordLayout(cls).IsZeroInitializable() {
		t.Fatal("plain record should be zero-initializable")
	}
}

func TestLowering_Deterministic(t *testing.T) {
	build := func() string {
		ts, in := newTypes(layout.X86_64LinuxGNU())
		b := in.Builtins()
		inner := in.NewRecord("In", types.TagStruct)
		inner.AddField("d", b.Double)
		inner.AddBitField("f", b.UInt, 7)
		inner.Complete()
		outer := in.NewRecord("Out", types.TagStruct)
		outer.AddField("c", b.Char)
		outer.AddField("in", inner.Self)
		outer.AddField("arr", in.Array(b.Short, 3))
		outer.AddField("next", in.Pointer(outer.Self))
		outer.Complete()
		rl := ts.RecordLayout(outer)
		checkTiling(t, ts, outer)
		return members(ts, rl.CompleteObjectType) + recordlayout.FormatChunks(ts.Ctx, rl.Chunks(ts.DL))
	}
	first := build()
	for range 3 {
		if got := build(); got != first {
			t.Fatalf("lowering not deterministic:\n%s\n%s", first, got)
		}
	}
}

func TestLowering_PackedOnlyWhenMisaligned(t *testing.T) {
	ts, in := newTypes(layout.X86_64LinuxGNU())
	b := in.Builtins()
	var recs []*types.RecordDecl
	mk := func(name string, packed bool, fields ...types.TypeID) {
		rd := in.NewRecord(name, types.TagStruct)
		rd.Packed = packed
		for i, f := range fields {
			rd.AddField(string(rune('a'+i)), f)
		}
		rd.Complete()
		recs = append(recs, rd)
	}
	mk("R1", false, b.Char, b.Int, b.Char)
	mk("R2", true, b.Char, b.Long)
	mk("R3", true, b.Int, b.Int)
	mk("R4", false, b.Double, b.Char)
	mk("R5", true, b.Char, b.Char)

	for _, rd := range recs {
		rl := ts.RecordLayout(rd)
		ty := ts.Ctx.Type(rl.CompleteObjectType)
		src := ts.Oracle.MustRecord(rd)
		misaligned := false
		var maxAlign int64 = 1
		for _, f := range rd.Fields {
			ft := ts.ConvertType(f.Type)
			a := ts.DL.ABIAlign(ft)
			maxAlign = max(maxAlign, a)
			if src.FieldOffset(f)/8%a != 0 {
				misaligned = true
			}
		}
		if src.Size%maxAlign != 0 {
			misaligned = true
		}
		if ty.Packed != misaligned {
			t.Fatalf("%s: packed=%v, misaligned=%v", rd.Name, ty.Packed, misaligned)
		}
		checkTiling(t, ts, rd)
	}
}
