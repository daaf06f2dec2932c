package cir_test

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"cirgen/internal/cir"
)

func TestContext_InterningIsStructural(t *testing.T) {
	c := cir.NewContext()
	if c.Int(32, true) != c.SInt32() {
		t.Fatal("s32 not uniqued")
	}
	a := c.AnonRecord([]cir.TypeID{c.SInt32(), c.UInt8()}, false, false, cir.RecordStruct)
	b := c.AnonRecord([]cir.TypeID{c.SInt32(), c.UInt8()}, false, false, cir.RecordStruct)
	if a != b {
		t.Fatal("identical anonymous records must be the same type")
	}
	if p := c.AnonRecord([]cir.TypeID{c.SInt32(), c.UInt8()}, true, false, cir.RecordStruct); p == a {
		t.Fatal("packed record must differ from unpacked")
	}
	x := c.IntAttrInt64(c.SInt32(), -1)
	y := c.IntAttr(c.SInt32(), new(big.Int).SetUint64(0xffffffff))
	if x != y {
		t.Fatal("-1 and 0xffffffff are the same s32 constant")
	}
	if got := c.SignedIntValue(x).Int64(); got != -1 {
		t.Fatalf("signed value = %d", got)
	}
}

func TestContext_NamedRecordCompletesOnce(t *testing.T) {
	c := cir.NewContext()
	id := c.NamedRecord("A", cir.RecordStruct)
	c.CompleteRecord(id, []cir.TypeID{c.SInt32()}, false, false)
	defer func() {
		if recover() == nil {
			t.Fatal("second completion must panic")
		}
	}()
	c.CompleteRecord(id, []cir.TypeID{c.SInt32()}, false, false)
}

func TestDataLayout_RecordOffsets(t *testing.T) {
	c := cir.NewContext()
	dl := cir.NewDataLayout(c)
	tests := []struct {
		name    string
		members []cir.TypeID
		packed  bool
		offsets []int64
		size    int64
		align   int64
	}{
		{"natural", []cir.TypeID{c.UInt8(), c.SInt32()}, false, []int64{0, 4}, 8, 4},
		{"packed", []cir.TypeID{c.UInt8(), c.SInt32()}, true, []int64{0, 1}, 5, 1},
		{"padding array", []cir.TypeID{c.UInt8(), c.ByteArray(3), c.SInt32()}, false, []int64{0, 1, 4}, 8, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := c.AnonRecord(tt.members, tt.packed, false, cir.RecordStruct)
			ro := dl.Record(rt)
			for i, off := range tt.offsets {
				if ro.Offsets[i] != off {
					t.Fatalf("member %d at %d, want %d", i, ro.Offsets[i], off)
				}
			}
			if ro.Size != tt.size || ro.Align != tt.align {
				t.Fatalf("size/align = %d/%d, want %d/%d", ro.Size, ro.Align, tt.size, tt.align)
			}
		})
	}
}

func TestDataLayout_UnionStorage(t *testing.T) {
	c := cir.NewContext()
	dl := cir.NewDataLayout(c)
	u := c.NamedRecord("U", cir.RecordUnion)
	c.CompleteRecord(u, []cir.TypeID{c.SInt32(), c.Float(32), c.ByteArray(4)}, false, true)
	if got := dl.TypeAllocSize(u); got != 8 {
		t.Fatalf("union size = %d, want 8", got)
	}
	if got := dl.ABIAlign(u); got != 4 {
		t.Fatalf("union align = %d, want 4", got)
	}
}

func TestDataLayout_EncodeEndianness(t *testing.T) {
	c := cir.NewContext()
	dl := cir.NewDataLayout(c)
	v := c.IntAttrInt64(c.SInt32(), 0x01020304)
	if got := dl.Encode(v); !bytes.Equal(got, []byte{4, 3, 2, 1}) {
		t.Fatalf("little-endian encode = %v", got)
	}
	dl.BigEndian = true
	if got := dl.Encode(v); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("big-endian encode = %v", got)
	}
}

func TestDataLayout_EncodeRecord(t *testing.T) {
	c := cir.NewContext()
	dl := cir.NewDataLayout(c)
	rec := c.AnonConstRecord([]cir.AttrID{
		c.IntAttrInt64(c.UInt8(), 7),
		c.IntAttrInt64(c.SInt32(), 9),
	}, false)
	want := []byte{7, 0, 0, 0, 9, 0, 0, 0}
	if got := dl.Encode(rec); !bytes.Equal(got, want) {
		t.Fatalf("encode = %v, want %v", got, want)
	}
}

func TestConstArray_TrailingZeros(t *testing.T) {
	c := cir.NewContext()
	arr := c.Array(c.SInt32(), 10)
	a := c.ConstArrayAttr(arr, []cir.AttrID{c.IntAttrInt64(c.SInt32(), 1)})
	if got := c.Attr(a).TrailingZeros; got != 9 {
		t.Fatalf("trailing zeros = %d", got)
	}
	if s := c.AttrString(a); !strings.Contains(s, "trailing_zeros<9>") {
		t.Fatalf("printed %q", s)
	}
}

func TestVerify_ReportsViolations(t *testing.T) {
	c := cir.NewContext()
	m := cir.NewModule("t", c, cir.NewDataLayout(c))
	fn := m.GetOrAddFunc("f", c.Func(nil, c.Void()))
	b := cir.NewBuilder(m, fn)
	slot := b.Alloca(c.SInt32(), "x", 4)
	b.Store(b.ConstInt(c.SInt64(), 1), slot, 4, false)
	err := cir.Verify(m)
	if err == nil {
		t.Fatal("expected verify errors")
	}
	var ve *cir.VerifyError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VerifyError, got %T", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "unterminated") || !strings.Contains(msg, "type mismatch") {
		t.Fatalf("missing violations in %q", msg)
	}
}

func TestPrint_Function(t *testing.T) {
	c := cir.NewContext()
	m := cir.NewModule("t", c, cir.NewDataLayout(c))
	fn := m.GetOrAddFunc("f", c.Func(nil, c.Void()))
	b := cir.NewBuilder(m, fn)
	slot := b.Alloca(c.SInt32(), "x", 4)
	b.Store(b.ConstInt(c.SInt32(), 3), slot, 4, false)
	b.Return(cir.NoValue)
	if err := cir.Verify(m); err != nil {
		t.Fatalf("verify: %v", err)
	}
	want := `cir.func @f() {
^bb0:
  %0 = cir.alloca !s32i, ["x"] {alignment = 4}
  %1 = cir.const #cir.int<3> : !s32i
  cir.store align(4) %1, %0
  cir.return
}
`
	if got := m.String(); got != want {
		t.Fatalf("printed:\n%s\nwant:\n%s", got, want)
	}
}
