package llvmexport

import (
	"math/big"
	"strings"
	"testing"

	"github.com/llir/llvm/ir/types"

	"cirgen/internal/cir"
)

func newModule() (*cir.Context, *cir.Module) {
	c := cir.NewContext()
	return c, cir.NewModule("t", c, cir.NewDataLayout(c))
}

func TestType_RecursiveRecord(t *testing.T) {
	c, m := newModule()
	s := c.NamedRecord("S", cir.RecordStruct)
	c.CompleteRecord(s, []cir.TypeID{c.SInt32(), c.Pointer(s)}, false, false)

	x := New(m.Layout)
	got, err := x.Type(s)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := got.(*types.StructType)
	if !ok || len(st.Fields) != 2 || st.Name() != "S" {
		t.Fatalf("S = %v", got)
	}
	if pt, ok := st.Fields[1].(*types.PointerType); !ok || pt.ElemType != st {
		t.Fatalf("self pointer = %v", st.Fields[1])
	}
	if len(x.Mod.TypeDefs) != 1 {
		t.Fatalf("type defs = %d", len(x.Mod.TypeDefs))
	}
}

func TestType_Union(t *testing.T) {
	c, m := newModule()
	u := c.AnonRecord([]cir.TypeID{c.Array(c.UInt8(), 5), c.SInt32()}, false, false, cir.RecordUnion)
	got, err := New(m.Layout).Type(u)
	if err != nil {
		t.Fatal(err)
	}
	st := got.(*types.StructType)
	if len(st.Fields) != 2 || !st.Fields[0].Equal(types.I32) || !st.Fields[1].Equal(types.NewArray(4, types.I8)) {
		t.Fatalf("union = %v", st)
	}
}

func TestType_Scalars(t *testing.T) {
	c, m := newModule()
	x := New(m.Layout)
	tests := []struct {
		name string
		in   cir.TypeID
		want types.Type
	}{
		{"bool", c.Bool(), types.I8},
		{"i17", c.Int(17, true), types.NewInt(17)},
		{"double", c.Float(64), types.Double},
		{"void pointer", c.Pointer(c.Void()), types.NewPointer(types.I8)},
		{"vector", c.Vector(c.Float(32), 4), types.NewVector(4, types.Float)},
		{"func", c.Func([]cir.TypeID{c.SInt64()}, c.Void()), types.NewFunc(types.Void, types.I64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.Type(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := x.Type(c.Float(24)); err == nil {
		t.Fatal("24-bit float accepted")
	}
}

func TestModule_Globals(t *testing.T) {
	c, m := newModule()
	s32 := c.SInt32()
	arr := c.Array(s32, 6)
	m.AddGlobal(&cir.Global{Name: "a", Type: arr, Init: c.ConstArrayAttr(arr, []cir.AttrID{c.IntAttrInt64(s32, 1), c.IntAttrInt64(s32, -1)}), Align: 16})
	m.AddGlobal(&cir.Global{Name: "z", Type: arr, Init: c.ZeroAttr(arr), Constant: true})
	p := c.Pointer(s32)
	m.AddGlobal(&cir.Global{Name: "p", Type: p, Init: c.GlobalViewAttr(p, "a", []int64{4})})
	m.AddGlobal(&cir.Global{Name: "q", Type: c.Pointer(arr), Init: c.GlobalViewAttr(c.Pointer(arr), "a", nil)})
	m.AddGlobal(&cir.Global{Name: "ext", Type: s32})
	m.GetOrAddFunc("f", c.Func([]cir.TypeID{s32}, c.Void()))

	lm, err := Module(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(lm.Globals) != 5 || len(lm.Funcs) != 1 {
		t.Fatalf("globals=%d funcs=%d", len(lm.Globals), len(lm.Funcs))
	}
	a := lm.Globals[0]
	if a.Init == nil || !strings.Contains(a.Init.Ident(), "i32 -1") || strings.Count(a.Init.Ident(), "i32 0") != 4 {
		t.Fatalf("a = %s", a.Init.Ident())
	}
	if a.Align != 16 {
		t.Fatalf("align = %d", a.Align)
	}
	if z := lm.Globals[1]; !z.Immutable || z.Init.Ident() != "zeroinitializer" {
		t.Fatalf("z = %v", z.Init)
	}
	if pv := lm.Globals[2].Init; !pv.Type().Equal(types.NewPointer(types.I32)) || !strings.Contains(pv.Ident(), "getelementptr") {
		t.Fatalf("p = %s", pv.Ident())
	}
	if q := lm.Globals[3].Init; q != lm.Globals[0] {
		t.Fatalf("q = %s, want @a itself", q.Ident())
	}
	if lm.Globals[4].Init != nil {
		t.Fatal("declaration got an initializer")
	}
	if !strings.Contains(lm.String(), "@ext = external global i32") {
		t.Fatalf("module:\n%s", lm)
	}
}

func TestConst_SignedAndBool(t *testing.T) {
	c, m := newModule()
	x := New(m.Layout)
	i8 := c.Int(8, true)
	got, err := x.Const(c.IntAttr(i8, big.NewInt(-2)))
	if err != nil {
		t.Fatal(err)
	}
	if got.Ident() != "-2" {
		t.Fatalf("i8 -2 = %s", got.Ident())
	}
	u8 := c.UInt8()
	if got, _ := x.Const(c.IntAttrInt64(u8, 255)); got.Ident() != "255" {
		t.Fatalf("u8 255 = %s", got.Ident())
	}
	if got, _ := x.Const(c.BoolAttr(true)); got.Ident() != "1" || !got.Type().Equal(types.I8) {
		t.Fatalf("true = %s", got)
	}
}

func TestConst_RecordArity(t *testing.T) {
	c, m := newModule()
	r := c.AnonRecord([]cir.TypeID{c.SInt32(), c.SInt32()}, false, false, cir.RecordStruct)
	if _, err := New(m.Layout).Const(c.ConstRecordAttr(r, []cir.AttrID{c.IntAttrInt64(c.SInt32(), 1)})); err == nil {
		t.Fatal("short record constant accepted")
	}
}
