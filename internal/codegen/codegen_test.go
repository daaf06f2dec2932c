package codegen

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/cir/interp"
	"cirgen/internal/constagg"
	"cirgen/internal/diag"
	"cirgen/internal/layout"
	"cirgen/internal/recordlayout"
	"cirgen/internal/source"
	"cirgen/internal/types"
)

type fixture struct {
	in   *types.Interner
	b    types.Builtins
	unit *ast.Unit
	bag  *diag.Bag
}

func newFixture() *fixture {
	in := types.NewInterner(layout.X86_64LinuxGNU().Model)
	return &fixture{in: in, b: in.Builtins(), unit: &ast.Unit{Name: "t", Types: in}, bag: diag.NewBag(64)}
}

func (f *fixture) module() *Module {
	ts := recordlayout.NewTypes(cir.NewContext(), layout.New(layout.X86_64LinuxGNU(), f.in), recordlayout.Options{})
	return NewModule(f.unit, ts, constagg.NewEmitter(ts, constagg.DefaultOptions()), diag.BagReporter{Bag: f.bag}, DefaultPolicy())
}

func (f *fixture) record(name string, fields ...string) *types.RecordDecl {
	rd := f.in.NewRecord(name, types.TagStruct)
	for _, n := range fields {
		rd.AddField(n, f.b.Int)
	}
	rd.Complete()
	return rd
}

func (f *fixture) extern(name string, result types.TypeID) {
	f.unit.Funcs = append(f.unit.Funcs, &ast.FuncDecl{Name: name, Result: result})
}

func (f *fixture) define(name string, result types.TypeID, body ...*ast.Stmt) {
	f.unit.Funcs = append(f.unit.Funcs, &ast.FuncDecl{Name: name, Result: result, Body: body})
}

func local(name string, t types.TypeID, init *ast.Expr) *ast.Stmt {
	return &ast.Stmt{Kind: ast.StmtDecl, Var: &ast.VarDecl{Name: name, Type: t, Init: init}}
}

func ints(t types.TypeID, vs ...int64) []*ast.Expr {
	out := make([]*ast.Expr, len(vs))
	for i, v := range vs {
		out[i] = ast.IntLit(t, v)
	}
	return out
}

func le32(vs ...uint32) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	return out
}

// run verifies the module and executes fn.
func run(t *testing.T, m *Module, fn string) (*interp.Machine, interp.Val) {
	t.Helper()
	if err := cir.Verify(m.IR); err != nil {
		t.Fatalf("verify: %v\n%s", err, m.IR)
	}
	mc := interp.New(m.IR)
	v, err := mc.Run(fn)
	if err != nil {
		t.Fatalf("run %s: %v\n%s", fn, err, m.IR)
	}
	return mc, v
}

func read(t *testing.T, mc *interp.Machine, p interp.Pointer, n int64) []byte {
	t.Helper()
	got, err := mc.Read(p, n)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func countOps(fn *cir.Func, kind cir.OpKind) int {
	n := 0
	fn.Ops(func(_ *cir.Block, op *cir.Op) {
		if op.Kind == kind {
			n++
		}
	})
	return n
}

func TestEmitFunction_PartialArrayInit(t *testing.T) {
	f := newFixture()
	arr := f.in.Array(f.b.Int, 4)
	f.define("f", f.b.Void, local("a", arr, ast.InitList(arr, ints(f.b.Int, 1, 2)...)))
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if got := read(t, mc, mc.Locals["a"], 16); !bytes.Equal(got, le32(1, 2, 0, 0)) {
		t.Fatalf("a = %v", got)
	}
}

func TestEmitFunction_ArrayFillerRunsPerElement(t *testing.T) {
	f := newFixture()
	arr := f.in.Array(f.b.Int, 5)
	f.extern("g", f.b.Int)
	f.define("f", f.b.Void, local("a", arr, ast.ArrayInit(arr, ast.Call(f.b.Int, "g"), ints(f.b.Int, 1, 2, 3)...)))
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if !slices.Equal(mc.Stats.Calls, []string{"g", "g"}) {
		t.Fatalf("calls = %v, want the filler once per remaining element", mc.Stats.Calls)
	}
	if mc.Stats.BackEdges != 1 {
		t.Fatalf("back edges = %d, want 1", mc.Stats.BackEdges)
	}
	if got := read(t, mc, mc.Locals["a"], 20); !bytes.Equal(got, le32(1, 2, 3, 0, 0)) {
		t.Fatalf("a = %v", got)
	}
}

func TestEmitAggExpr_ZeroedSlotSkipsZeroStores(t *testing.T) {
	tests := []struct {
		name   string
		zeroed bool
		stores int
	}{
		{"zeroed", true, 1},
		{"fresh", false, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rd := f.record("P", "a", "b", "c", "d")
			m := f.module()
			fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
			g := newFuncGen(m, fn, source.Span{})
			addr := g.alloca(rd.Self, "p")
			init := ast.InitList(rd.Self, ast.IntLit(f.b.Int, 0), ast.IntLit(f.b.Int, 5), ast.ValueInit(f.b.Int))
			if err := g.emitAggExpr(init, AggValueSlot{Addr: addr, Zeroed: tt.zeroed}); err != nil {
				t.Fatal(err)
			}
			if got := countOps(fn, cir.OpStore); got != tt.stores {
				t.Fatalf("stores = %d, want %d", got, tt.stores)
			}
		})
	}
}

func TestEmitFunction_SparseInitUsesMemset(t *testing.T) {
	f := newFixture()
	rd := f.record("W", "a", "b", "c", "d", "e", "f", "g", "h")
	f.define("f", f.b.Void, local("w", rd.Self, ast.InitList(rd.Self, ints(f.b.Int, 0, 0, 0, 0, 0, 0, 0, 7)...)))
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if mc.Stats.MemSets != 1 || mc.Stats.Stores != 1 {
		t.Fatalf("memsets = %d stores = %d, want 1 and 1", mc.Stats.MemSets, mc.Stats.Stores)
	}
	if got := read(t, mc, mc.Locals["w"], 32); !bytes.Equal(got, le32(0, 0, 0, 0, 0, 0, 0, 7)) {
		t.Fatalf("w = %v", got)
	}
}

func TestEmitAggExpr_ConditionalDestroysOnce(t *testing.T) {
	for _, cond := range []bool{true, false} {
		f := newFixture()
		rd := f.in.NewRecord("S", types.TagStruct)
		rd.AddField("x", f.b.Int)
		rd.NonTrivialCDtor = true
		rd.Complete()
		f.extern("mk", rd.Self)
		m := f.module()
		fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
		g := newFuncGen(m, fn, source.Span{})
		addr := g.alloca(rd.Self, "r")

		e := ast.Cond(rd.Self, ast.BoolLit(f.b.Bool, cond), ast.Call(rd.Self, "mk"), ast.Call(rd.Self, "mk"))
		if err := g.emitAggExpr(e, SlotForAddr(addr)); err != nil {
			t.Fatal(err)
		}
		active := g.cleanups.active()
		if len(active) != 1 || active[0].Kind != CleanupDestroy {
			t.Fatalf("cond=%v: active cleanups = %+v, want one destroy", cond, active)
		}
		g.popCleanupsTo(0)
		g.b.Return(cir.NoValue)

		mc, _ := run(t, m, "f")
		if want := []string{"mk", "__destructor_S"}; !slices.Equal(mc.Stats.Calls, want) {
			t.Fatalf("cond=%v: calls = %v, want %v", cond, mc.Stats.Calls, want)
		}
	}
}

func TestEmitGlobal_DynamicInitFallback(t *testing.T) {
	f := newFixture()
	rd := f.record("S", "a", "b")
	f.extern("h", f.b.Int)
	first := &ast.VarDecl{Name: "s", Type: rd.Self, Global: true,
		Init: ast.InitList(rd.Self, ast.IntLit(f.b.Int, 1), ast.Call(f.b.Int, "h"))}
	second := &ast.VarDecl{Name: "t", Type: rd.Self, Global: true,
		Init: ast.InitList(rd.Self, ast.Call(f.b.Int, "h"), ast.IntLit(f.b.Int, 2))}
	f.unit.Globals = []*ast.VarDecl{first, second}
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}

	for v, want := range map[*ast.VarDecl]string{first: "__cxx_global_var_init", second: "__cxx_global_var_init.1"} {
		gl, ok := m.Global(v)
		if !ok || gl.DynamicInit != want {
			t.Fatalf("%s: dynamic init = %+v, want %s", v.Name, gl, want)
		}
		if !m.ctx.IsNullValue(gl.Init) {
			t.Fatalf("%s: static value is not zero", v.Name)
		}
	}
	found := false
	for _, d := range f.bag.Items() {
		found = found || d.Code == diag.CstFallbackDynamic
	}
	if !found {
		t.Fatalf("missing fallback diagnostic in %s", f.bag.Format())
	}

	mc, _ := run(t, m, "__cxx_global_var_init")
	p, _ := mc.Global("s")
	if got := read(t, mc, p, 8); !bytes.Equal(got, le32(1, 0)) {
		t.Fatalf("s = %v", got)
	}
	if _, err := mc.Run("__cxx_global_var_init.1"); err != nil {
		t.Fatal(err)
	}
	p, _ = mc.Global("t")
	if got := read(t, mc, p, 8); !bytes.Equal(got, le32(0, 2)) {
		t.Fatalf("t = %v", got)
	}
}

func TestEmitFunction_UnionInit(t *testing.T) {
	f := newFixture()
	rd := f.in.NewRecord("U", types.TagUnion)
	rd.AddField("i", f.b.Int)
	fl := rd.AddField("f", f.b.Float)
	rd.Complete()
	f.define("f", f.b.Void, local("u", rd.Self, ast.UnionInit(rd.Self, fl, ast.FloatLit(f.b.Float, 1))))
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if got := read(t, mc, mc.Locals["u"], 4); !bytes.Equal(got, []byte{0, 0, 0x80, 0x3f}) {
		t.Fatalf("u = %x", got)
	}
}

// ordering builds a comparison category class holding one signed char.
func (f *fixture) ordering() *types.RecordDecl {
	rd := f.in.NewRecord("strong_ordering", types.TagClass)
	rd.AddField("v", f.b.SChar)
	rd.Complete()
	return rd
}

func TestEmitFunction_ThreeWayCompare(t *testing.T) {
	tests := []struct {
		l, r int64
		want int8
	}{
		{1, 2, -1},
		{2, 2, 0},
		{3, 2, 1},
	}
	for _, tt := range tests {
		f := newFixture()
		ord := f.ordering()
		cmp := ast.Compare3Way(ord.Self, ast.IntLit(f.b.Int, tt.l), ast.IntLit(f.b.Int, tt.r), false)
		f.define("f", f.b.Void, local("r", ord.Self, cmp))
		m := f.module()
		if err := m.EmitUnit(); err != nil {
			t.Fatal(err)
		}
		mc, _ := run(t, m, "f")
		if got := int8(read(t, mc, mc.Locals["r"], 1)[0]); got != tt.want {
			t.Fatalf("%d <=> %d = %d, want %d", tt.l, tt.r, got, tt.want)
		}
	}
}

func TestEmitFunction_AggregateCompareRejected(t *testing.T) {
	f := newFixture()
	rd := f.record("S", "a")
	ord := f.ordering()
	a := &ast.VarDecl{Name: "a", Type: rd.Self}
	f.define("f", f.b.Void,
		&ast.Stmt{Kind: ast.StmtDecl, Var: a},
		&ast.Stmt{Kind: ast.StmtExpr, Expr: ast.Compare3Way(ord.Self, ast.Ref(a), ast.Ref(a), false)},
	)
	m := f.module()
	err := m.EmitUnit()
	var ue *UnsupportedError
	if !errors.As(err, &ue) || ue.Code != diag.EmtAggregateCompare || ue.Kind != UnsupportedInput {
		t.Fatalf("err = %v, want an aggregate comparison rejection", err)
	}
	if fn, _ := m.IR.Func("f"); !fn.Decl || len(fn.Blocks) != 0 {
		t.Fatal("failed function kept a body")
	}
	if !f.bag.HasErrors() {
		t.Fatal("no diagnostic reported")
	}
}

func TestEmitFunction_DesignatedInitUpdate(t *testing.T) {
	f := newFixture()
	arr := f.in.Array(f.b.Int, 3)
	rd := f.in.NewRecord("Q", types.TagStruct)
	rd.AddField("a", arr)
	rd.AddField("b", f.b.Int)
	rd.Complete()
	q := &ast.VarDecl{Name: "q", Type: rd.Self, Global: true,
		Init: ast.InitList(rd.Self, ast.InitList(arr, ints(f.b.Int, 1, 2, 3)...), ast.IntLit(f.b.Int, 4))}
	f.unit.Globals = []*ast.VarDecl{q}
	upd := ast.DesignatedUpdate(rd.Self, ast.Ref(q), ast.InitList(rd.Self, ast.NoInit(arr), ast.IntLit(f.b.Int, 9)))
	f.define("f", f.b.Void, local("x", rd.Self, upd))
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if got := read(t, mc, mc.Locals["x"], 16); !bytes.Equal(got, le32(1, 2, 3, 9)) {
		t.Fatalf("x = %v", got)
	}
}

func TestEmitFunction_ReturnsAggregateByValue(t *testing.T) {
	f := newFixture()
	rd := f.record("S", "a", "b")
	s := &ast.VarDecl{Name: "s", Type: rd.Self, Init: ast.InitList(rd.Self, ints(f.b.Int, 1, 2)...)}
	f.define("mk", rd.Self,
		&ast.Stmt{Kind: ast.StmtDecl, Var: s},
		&ast.Stmt{Kind: ast.StmtReturn, Expr: ast.Ref(s)},
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, v := run(t, m, "mk")
	if !bytes.Equal(v.Bytes, le32(1, 2)) {
		t.Fatalf("result = %v", v.Bytes)
	}
	if mc.Stats.Copies != 1 {
		t.Fatalf("copies = %d, want 1", mc.Stats.Copies)
	}
}

func TestEmitFunction_NotYetImplemented(t *testing.T) {
	tests := []struct {
		name string
		code diag.Code
		decl func(f *fixture) *ast.Stmt
	}{
		{"variable array", diag.NYIVariableArray, func(f *fixture) *ast.Stmt {
			return local("v", f.in.Array(f.b.Int, types.IncompleteLength), nil)
		}},
		{"destructible array", diag.NYIArrayEHCleanup, func(f *fixture) *ast.Stmt {
			rd := f.in.NewRecord("D", types.TagStruct)
			rd.AddField("x", f.b.Int)
			rd.NonTrivialCDtor = true
			rd.Complete()
			return local("d", f.in.Array(rd.Self, 2), nil)
		}},
		{"va_arg", diag.NYIVAArg, func(f *fixture) *ast.Stmt {
			rd := f.record("S", "a")
			return local("s", rd.Self, &ast.Expr{Kind: ast.ExprVAArg, Type: rd.Self, Data: ast.VAArgData{}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.define("f", f.b.Void, tt.decl(f))
			m := f.module()
			var ue *UnsupportedError
			if err := m.EmitUnit(); !errors.As(err, &ue) || ue.Kind != UnsupportedNYI || ue.Code != tt.code {
				t.Fatalf("err = %v, want %s", err, tt.code.ID())
			}
		})
	}
}

func TestCleanupStack_DeactivationScope(t *testing.T) {
	var s cleanupStack
	outer := s.push(Cleanup{Kind: CleanupLifetimeEnd})
	scope := s.beginDeactivation()
	s.deferDeactivation(s.push(Cleanup{Kind: CleanupDestroy}))
	s.deferDeactivation(s.push(Cleanup{Kind: CleanupDestroy}))
	if n := len(s.active()); n != 3 {
		t.Fatalf("active = %d before scope end", n)
	}
	scope.end()
	active := s.active()
	if len(active) != 1 || active[0].Kind != CleanupLifetimeEnd || !s.entries[outer].Active {
		t.Fatalf("active after scope end = %+v", active)
	}
}

func TestEmitAggExpr_CallReturnSlot(t *testing.T) {
	tests := []struct {
		name    string
		slot    func(addr Address) AggValueSlot
		copies  int
		destroy bool
	}{
		{"plain", SlotForAddr, 0, false},
		{"aliased", func(a Address) AggValueSlot { return AggValueSlot{Addr: a, Aliased: true} }, 1, false},
		{"overlapping", func(a Address) AggValueSlot { return AggValueSlot{Addr: a, MayOverlap: true} }, 1, false},
		{"ignored", func(Address) AggValueSlot { return IgnoredSlot() }, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rd := f.in.NewRecord("S", types.TagStruct)
			rd.AddField("x", f.b.Int)
			rd.AddField("y", f.b.Int)
			rd.NonTrivialCDtor = true
			rd.Complete()
			f.extern("mk", rd.Self)
			m := f.module()
			fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
			g := newFuncGen(m, fn, source.Span{})
			addr := g.alloca(rd.Self, "r")

			slot := tt.slot(addr)
			slot.ExternallyDestructed = !tt.destroy
			if err := g.emitAggExpr(ast.Call(rd.Self, "mk"), slot); err != nil {
				t.Fatal(err)
			}
			if got := countOps(fn, cir.OpCopy); got != tt.copies {
				t.Fatalf("copies = %d, want %d\n%s", got, tt.copies, m.IR)
			}
			if got := len(g.cleanups.active()) == 1; got != tt.destroy {
				t.Fatalf("destroy pushed = %v, want %v", got, tt.destroy)
			}
			g.popCleanupsTo(0)
			g.b.Return(cir.NoValue)
			run(t, m, "f")
		})
	}
}

func TestEmitAggregateCopy_OverlapCopiesDataSize(t *testing.T) {
	f := newFixture()
	rd := f.in.NewRecord("B", types.TagStruct)
	rd.CXX = true
	rd.AddField("i", f.b.Int)
	rd.AddField("c", f.b.Char)
	rd.AddCtor(&types.CtorDecl{Params: []types.TypeID{f.b.Int}})
	rd.Complete()
	m := f.module()
	fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
	g := newFuncGen(m, fn, source.Span{})
	dst, src := g.alloca(rd.Self, "d"), g.alloca(rd.Self, "s")

	for _, overlap := range []bool{false, true} {
		if err := g.emitAggregateCopy(dst, src, rd.Self, overlap, false); err != nil {
			t.Fatal(err)
		}
	}
	var sizes []int64
	fn.Ops(func(_ *cir.Block, op *cir.Op) {
		if op.Kind == cir.OpCopy {
			sizes = append(sizes, op.Size)
		}
	})
	if want := []int64{0, 5}; !slices.Equal(sizes, want) {
		t.Fatalf("copy sizes = %v, want %v", sizes, want)
	}
}

func TestEmitAggExpr_ConstructorCall(t *testing.T) {
	f := newFixture()
	rd := f.in.NewRecord("S", types.TagStruct)
	rd.CXX = true
	rd.AddField("x", f.b.Int)
	ctor := rd.AddCtor(&types.CtorDecl{Params: []types.TypeID{f.b.Int}})
	rd.Complete()
	m := f.module()
	fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
	g := newFuncGen(m, fn, source.Span{})
	addr := g.alloca(rd.Self, "s")

	if err := g.emitAggExpr(ast.Construct(rd.Self, ctor, ast.IntLit(f.b.Int, 7)), SlotForAddr(addr)); err != nil {
		t.Fatal(err)
	}
	g.b.Return(cir.NoValue)
	if got := countOps(fn, cir.OpAlloca); got != 1 {
		t.Fatalf("allocas = %d, want 1", got)
	}
	mc, _ := run(t, m, "f")
	if want := []string{"S::S"}; !slices.Equal(mc.Stats.Calls, want) {
		t.Fatalf("calls = %v, want %v", mc.Stats.Calls, want)
	}
	if mc.Stats.Copies != 0 {
		t.Fatalf("copies = %d, want 0", mc.Stats.Copies)
	}
}

func TestEmitFunction_CommaKeepsLeftEffects(t *testing.T) {
	f := newFixture()
	rd := f.record("S", "a", "b")
	f.extern("h", f.b.Int)
	s := &ast.VarDecl{Name: "s", Type: rd.Self, Init: ast.InitList(rd.Self, ints(f.b.Int, 1, 2)...)}
	f.define("f", rd.Self,
		&ast.Stmt{Kind: ast.StmtDecl, Var: s},
		&ast.Stmt{Kind: ast.StmtReturn, Expr: ast.Comma(ast.Call(f.b.Int, "h"), ast.Ref(s))},
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, v := run(t, m, "f")
	if want := []string{"h"}; !slices.Equal(mc.Stats.Calls, want) {
		t.Fatalf("calls = %v, want %v", mc.Stats.Calls, want)
	}
	if !bytes.Equal(v.Bytes, le32(1, 2)) {
		t.Fatalf("result = %v", v.Bytes)
	}
}

func TestEmitFunction_AggregateAssign(t *testing.T) {
	f := newFixture()
	rd := f.record("S", "a", "b")
	s := &ast.VarDecl{Name: "s", Type: rd.Self, Init: ast.InitList(rd.Self, ints(f.b.Int, 1, 2)...)}
	u := &ast.VarDecl{Name: "u", Type: rd.Self, Init: ast.InitList(rd.Self, ints(f.b.Int, 3, 4)...)}
	f.define("f", rd.Self,
		&ast.Stmt{Kind: ast.StmtDecl, Var: s},
		&ast.Stmt{Kind: ast.StmtDecl, Var: u},
		&ast.Stmt{Kind: ast.StmtExpr, Expr: ast.Assign(ast.Ref(s), ast.Ref(u))},
		&ast.Stmt{Kind: ast.StmtReturn, Expr: ast.Ref(s)},
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	_, v := run(t, m, "f")
	if !bytes.Equal(v.Bytes, le32(3, 4)) {
		t.Fatalf("result = %v", v.Bytes)
	}
}

func TestEmitFunction_BitCastCopiesBytes(t *testing.T) {
	f := newFixture()
	src := f.record("S", "a", "b")
	dst := f.record("T", "x", "y")
	s := &ast.VarDecl{Name: "s", Type: src.Self, Init: ast.InitList(src.Self, ints(f.b.Int, 5, 6)...)}
	u := &ast.VarDecl{Name: "u", Type: dst.Self, Init: ast.Cast(ast.CastLValueToRValueBitCast, dst.Self, ast.Ref(s))}
	f.define("f", dst.Self,
		&ast.Stmt{Kind: ast.StmtDecl, Var: s},
		&ast.Stmt{Kind: ast.StmtDecl, Var: u},
		&ast.Stmt{Kind: ast.StmtReturn, Expr: ast.Ref(u)},
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	fn, _ := m.IR.Func("f")
	if got := countOps(fn, cir.OpMemCpy); got != 1 {
		t.Fatalf("memcpy ops = %d, want 1", got)
	}
	_, v := run(t, m, "f")
	if !bytes.Equal(v.Bytes, le32(5, 6)) {
		t.Fatalf("result = %v", v.Bytes)
	}
}

func exprStmt(e *ast.Expr) *ast.Stmt { return &ast.Stmt{Kind: ast.StmtExpr, Expr: e} }

// tailReuser is B{int i; char c; B();}: data size 5, size 8.
func (f *fixture) tailReuser() (*types.RecordDecl, *types.FieldDecl, *types.FieldDecl) {
	rd := f.in.NewRecord("B", types.TagStruct)
	rd.CXX = true
	i := rd.AddField("i", f.b.Int)
	c := rd.AddField("c", f.b.Char)
	rd.AddCtor(&types.CtorDecl{})
	rd.Complete()
	return rd, i, c
}

func TestEmitFunction_AssignKeepsNoUniqueAddressNeighbour(t *testing.T) {
	f := newFixture()
	b, bi, bc := f.tailReuser()
	d := f.in.NewRecord("D", types.TagStruct)
	d.CXX = true
	fb := d.AddField("b", b.Self)
	fb.NoUniqueAddress = true
	fd := d.AddField("d", f.b.Char)
	d.Complete()

	x := &ast.VarDecl{Name: "x", Type: d.Self}
	y := &ast.VarDecl{Name: "y", Type: b.Self}
	f.define("f", f.b.Void,
		&ast.Stmt{Kind: ast.StmtDecl, Var: x},
		&ast.Stmt{Kind: ast.StmtDecl, Var: y},
		exprStmt(ast.Assign(ast.Member(ast.Ref(x), fd), ast.IntLit(f.b.Char, 77))),
		exprStmt(ast.Assign(ast.Member(ast.Ref(y), bi), ast.IntLit(f.b.Int, 3))),
		exprStmt(ast.Assign(ast.Member(ast.Ref(y), bc), ast.IntLit(f.b.Char, 4))),
		exprStmt(ast.Assign(ast.Member(ast.Ref(x), fb), ast.Ref(y))),
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if got, want := read(t, mc, mc.Locals["x"], 8), []byte{3, 0, 0, 0, 4, 77, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("x = %v, want %v", got, want)
	}
}

func TestEmitFunction_BaseInitKeepsTailField(t *testing.T) {
	f := newFixture()
	b, bi, bc := f.tailReuser()
	d := f.in.NewRecord("D", types.TagStruct)
	d.AddBase(b.Self, false)
	d.AddField("d", f.b.Char)
	d.Complete()

	y := &ast.VarDecl{Name: "y", Type: b.Self}
	x := &ast.VarDecl{Name: "x", Type: d.Self, Init: ast.InitList(d.Self, ast.Ref(y), ast.IntLit(f.b.Char, 77))}
	f.define("f", f.b.Void,
		&ast.Stmt{Kind: ast.StmtDecl, Var: y},
		exprStmt(ast.Assign(ast.Member(ast.Ref(y), bi), ast.IntLit(f.b.Int, 3))),
		exprStmt(ast.Assign(ast.Member(ast.Ref(y), bc), ast.IntLit(f.b.Char, 4))),
		&ast.Stmt{Kind: ast.StmtDecl, Var: x},
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if got, want := read(t, mc, mc.Locals["x"], 6), []byte{3, 0, 0, 0, 4, 77}; !bytes.Equal(got, want) {
		t.Fatalf("x = %v, want %v", got, want)
	}
}

func TestEmitFunction_OverlappingMemsetStopsAtDataSize(t *testing.T) {
	f := newFixture()
	arr := f.in.Array(f.b.Int, 8)
	big := f.in.NewRecord("Big", types.TagStruct)
	big.CXX = true
	big.NonTrivialCopy = true
	big.AddField("a", arr)
	big.AddField("c", f.b.Char)
	big.Complete()
	d := f.in.NewRecord("D", types.TagStruct)
	d.CXX = true
	fb := d.AddField("b", big.Self)
	fb.NoUniqueAddress = true
	fd := d.AddField("d", f.b.Char)
	d.Complete()

	x := &ast.VarDecl{Name: "x", Type: d.Self}
	rhs := ast.InitList(big.Self, ast.InitList(arr, ast.IntLit(f.b.Int, 1)), ast.IntLit(f.b.Char, 0))
	f.define("f", f.b.Void,
		&ast.Stmt{Kind: ast.StmtDecl, Var: x},
		exprStmt(ast.Assign(ast.Member(ast.Ref(x), fd), ast.IntLit(f.b.Char, 77))),
		exprStmt(ast.Assign(ast.Member(ast.Ref(x), fb), rhs)),
	)
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	mc, _ := run(t, m, "f")
	if mc.Stats.MemSets != 1 {
		t.Fatalf("memsets = %d, want 1", mc.Stats.MemSets)
	}
	got := read(t, mc, mc.Locals["x"], 34)
	if !bytes.Equal(got[:4], le32(1)) || got[33] != 77 {
		t.Fatalf("x = %v", got)
	}
}

func TestCheckAggExprForMemSetUse(t *testing.T) {
	tests := []struct {
		name     string
		userCtor bool
		memsets  int
	}{
		{"plain elements", false, 1},
		{"constructed elements", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rd := f.in.NewRecord("S", types.TagStruct)
			rd.CXX = true
			rd.AddField("a", f.b.Int)
			rd.AddField("b", f.b.Int)
			if tt.userCtor {
				rd.AddCtor(&types.CtorDecl{})
			}
			rd.Complete()
			at := f.in.Array(rd.Self, 8)
			m := f.module()
			fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
			g := newFuncGen(m, fn, source.Span{})
			ae := &aggEmitter{g: g, m: m, dest: SlotForAddr(g.alloca(at, "a"))}
			ae.checkAggExprForMemSetUse(ast.InitList(at))
			if got := countOps(fn, cir.OpMemSet); got != tt.memsets {
				t.Fatalf("memsets = %d, want %d", got, tt.memsets)
			}
			if ae.dest.Zeroed != (tt.memsets == 1) {
				t.Fatalf("zeroed = %v", ae.dest.Zeroed)
			}
		})
	}
}

func TestEmitFunction_InitListStopsAtFlexibleArray(t *testing.T) {
	f := newFixture()
	rd := f.in.NewRecord("F", types.TagStruct)
	rd.AddField("n", f.b.Int)
	rd.AddField("data", f.in.Array(f.b.Int, types.IncompleteLength))
	rd.Complete()
	f.define("f", f.b.Void, local("x", rd.Self, ast.InitList(rd.Self, ast.IntLit(f.b.Int, 5))))
	m := f.module()
	if err := m.EmitUnit(); err != nil {
		t.Fatal(err)
	}
	fn, _ := m.IR.Func("f")
	if got := countOps(fn, cir.OpMemSet); got != 0 {
		t.Fatalf("memsets = %d, want 0\n%s", got, m.IR)
	}
	mc, _ := run(t, m, "f")
	if got := read(t, mc, mc.Locals["x"], 4); !bytes.Equal(got, le32(5)) {
		t.Fatalf("x = %v", got)
	}
}

func TestEmitAggExpr_ConditionalArmTemporariesLiveToFullExpression(t *testing.T) {
	for _, cond := range []bool{true, false} {
		f := newFixture()
		rd := f.in.NewRecord("S", types.TagStruct)
		rd.AddField("x", f.b.Int)
		rd.NonTrivialCDtor = true
		rd.Complete()
		f.extern("tmp", rd.Self)
		f.extern("mk", rd.Self)
		m := f.module()
		fn := m.IR.GetOrAddFunc("f", m.ctx.Func(nil, m.ctx.Void()))
		g := newFuncGen(m, fn, source.Span{})
		addr := g.alloca(rd.Self, "r")

		then := ast.Comma(ast.Call(rd.Self, "tmp"), ast.Call(rd.Self, "mk"))
		e := ast.Cond(rd.Self, ast.BoolLit(f.b.Bool, cond), then, ast.Call(rd.Self, "mk"))
		slot := SlotForAddr(addr)
		slot.ExternallyDestructed = true
		if err := g.emitAggExpr(e, slot); err != nil {
			t.Fatal(err)
		}
		active := g.cleanups.active()
		if len(active) != 1 || len(active[0].Guards) != 1 || !active[0].Guards[0].When {
			t.Fatalf("cond=%v: active cleanups = %+v, want one guarded destroy", cond, active)
		}
		g.popCleanupsTo(0)
		g.b.Return(cir.NoValue)

		want := []string{"mk"}
		if cond {
			want = []string{"tmp", "mk", "__destructor_S"}
		}
		mc, _ := run(t, m, "f")
		if !slices.Equal(mc.Stats.Calls, want) {
			t.Fatalf("cond=%v: calls = %v, want %v", cond, mc.Stats.Calls, want)
		}
	}
}
