package codegen

import (
	"fmt"

	"fortio.org/safecast"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/source"
	"cirgen/internal/types"
)

// funcGen emits the body of one IR function.
type funcGen struct {
	m    *Module
	fn   *cir.Func
	b    *cir.Builder
	decl *ast.FuncDecl // nil for dynamic initializers
	span source.Span

	locals   map[*ast.VarDecl]Address
	opaques  map[*ast.Expr]opaqueValue
	cleanups cleanupStack
	retSlot  Address
	temps    int
}

// opaqueValue is the once-evaluated operand of a binary conditional.
type opaqueValue struct {
	scalar cir.Value
	lv     LValue
	agg    bool
}

func newFuncGen(m *Module, fn *cir.Func, sp source.Span) *funcGen {
	return &funcGen{
		m: m, fn: fn, b: cir.NewBuilder(m.IR, fn), span: sp,
		locals:  make(map[*ast.VarDecl]Address),
		opaques: make(map[*ast.Expr]opaqueValue),
		retSlot: NoAddress,
	}
}

func (g *funcGen) emitBody(fd *ast.FuncDecl) error {
	for _, p := range fd.Params {
		ty := g.m.Types.ConvertType(p.Type)
		v := g.fn.NewValue(ty)
		g.fn.Params = append(g.fn.Params, v)
		addr := g.alloca(p.Type, p.Name)
		g.b.Store(v, addr.Ptr, addr.Align, false)
		g.locals[p] = addr
	}
	if g.m.src.EvaluationKind(fd.Result) == types.EvalAggregate {
		g.retSlot = g.alloca(fd.Result, "__retval")
	}
	for i, s := range fd.Body {
		if g.b.Block().Terminated() {
			break
		}
		if s.Span.Empty() {
			s.Span = fd.Span.Child("body[%d]", i)
		}
		if err := g.emitStmt(s); err != nil {
			return err
		}
	}
	if !g.b.Block().Terminated() {
		g.popCleanupsTo(0)
		g.emitReturn(cir.NoValue)
	}
	return nil
}

func (g *funcGen) emitStmt(s *ast.Stmt) error {
	g.span = s.Span
	switch s.Kind {
	case ast.StmtDecl:
		return g.emitAutoVarDecl(s.Var)
	case ast.StmtExpr:
		depth := g.cleanups.depth()
		if err := g.emitIgnored(s.Expr); err != nil {
			return err
		}
		g.popCleanupsTo(depth)
		return nil
	case ast.StmtReturn:
		return g.emitReturnStmt(s.Expr)
	}
	return fmt.Errorf("codegen: unknown statement kind %d", s.Kind)
}

func (g *funcGen) emitReturnStmt(e *ast.Expr) error {
	if e == nil {
		g.emitAllCleanups()
		g.emitReturn(cir.NoValue)
		return nil
	}
	if g.retSlot.Valid() {
		slot := AggValueSlot{Addr: g.retSlot, ExternallyDestructed: true}
		if err := g.emitAggExpr(e, slot); err != nil {
			return err
		}
		g.emitAllCleanups()
		g.emitReturn(cir.NoValue)
		return nil
	}
	v, err := g.emitScalar(e)
	if err != nil {
		return err
	}
	g.emitAllCleanups()
	g.emitReturn(v)
	return nil
}

// emitReturn ends the function. Aggregate results are loaded from the
// return slot; a missing scalar result is undefined.
func (g *funcGen) emitReturn(v cir.Value) {
	switch {
	case g.retSlot.Valid():
		v = g.b.Load(g.retSlot.Ptr, g.retSlot.Align, false)
	case v == cir.NoValue && g.decl != nil && g.m.src.Kind(g.decl.Result) != types.KindVoid:
		v = g.b.Const(g.m.ctx.UndefAttr(g.m.Types.ConvertType(g.decl.Result)))
	}
	g.b.Return(v)
}

// emitAutoVarDecl allocates a local, runs its initializer and schedules
// its destruction.
func (g *funcGen) emitAutoVarDecl(v *ast.VarDecl) error {
	src := g.m.src
	if src.IsIncompleteArray(v.Type) {
		return g.m.nyi(diag.NYIVariableArray, g.span, v.Name)
	}
	addr := g.alloca(v.Type, v.Name)
	g.locals[v] = addr
	if v.Init != nil {
		lv := LValue{Addr: addr, Type: v.Type, Volatile: src.IsVolatile(v.Type)}
		slot := AggValueSlot{Addr: addr, ExternallyDestructed: true, Volatile: lv.Volatile}
		depth := g.cleanups.depth()
		if err := g.emitInitializerTo(v.Init, lv, slot); err != nil {
			return err
		}
		g.popCleanupsTo(depth)
	}
	if src.Destruction(v.Type) != types.DestructNone {
		if src.IsArray(v.Type) {
			return g.m.nyi(diag.NYIArrayEHCleanup, g.span, "destruction of local array "+v.Name)
		}
		g.pushDestroy(addr, v.Type)
	}
	return nil
}

// emitInitializerTo evaluates init into lv; aggregates go through slot.
func (g *funcGen) emitInitializerTo(init *ast.Expr, lv LValue, slot AggValueSlot) error {
	if g.m.src.EvaluationKind(lv.Type) == types.EvalAggregate {
		return g.emitAggExpr(init, slot)
	}
	if slot.Zeroed && g.isSimpleZero(init) {
		return nil
	}
	v, err := g.emitScalar(init)
	if err != nil {
		return err
	}
	g.emitStoreThroughLValue(v, lv)
	return nil
}

// alloca reserves a named stack slot for a value of source type t.
func (g *funcGen) alloca(t types.TypeID, name string) Address {
	ty := g.m.Types.ConvertType(t)
	align := g.m.oracle.AlignOf(t)
	return Address{Ptr: g.b.Alloca(ty, name, align), Elem: ty, Align: align}
}

// createTemp reserves an unnamed temporary.
func (g *funcGen) createTemp(t types.TypeID, prefix string) Address {
	g.temps++
	return g.alloca(t, fmt.Sprintf("%s.%d", prefix, g.temps))
}

func (g *funcGen) addrOfGlobal(gl *cir.Global, t types.TypeID) Address {
	ty := g.m.Types.ConvertType(t)
	p := g.b.GetGlobal(gl.Name, gl.Type)
	return Address{Ptr: g.b.Bitcast(p, ty), Elem: ty, Align: max(gl.Align, 1)}
}

func (g *funcGen) globalAddr(v *ast.VarDecl) (Address, error) {
	gl, err := g.m.global(v)
	if err != nil {
		return NoAddress, err
	}
	return g.addrOfGlobal(gl, v.Type), nil
}

// withElem reinterprets addr as pointing to ty.
func (g *funcGen) withElem(addr Address, ty cir.TypeID) Address {
	if addr.Elem == ty {
		return addr
	}
	return Address{Ptr: g.b.Bitcast(addr.Ptr, ty), Elem: ty, Align: addr.Align}
}

// alignAt is the alignment guaranteed at offset off from an address
// aligned to align.
func alignAt(align, off int64) int64 {
	if off == 0 {
		return align
	}
	return min(align, off&-off)
}

func (g *funcGen) sizeConst(n int64) cir.Value {
	return g.b.ConstInt(g.m.ctx.Int(safecast.MustConv[uint16](g.m.oracle.Target.PtrSize*8), false), n)
}

// emitMemSetZero zero-fills the object of type t at addr.
func (g *funcGen) emitMemSetZero(addr Address, t types.TypeID) {
	g.emitMemSetBytes(addr, g.m.oracle.SizeOf(t))
}

// emitMemSetBytes zeroes the first n bytes at addr.
func (g *funcGen) emitMemSetBytes(addr Address, n int64) {
	g.b.MemSet(addr.Ptr, g.b.ConstInt(g.m.ctx.UInt8(), 0), g.sizeConst(n))
}

// emitNullInitialization stores the null value of t at addr: zero bytes
// for zero-initializable types, a null constant otherwise.
func (g *funcGen) emitNullInitialization(addr Address, t types.TypeID) {
	if g.m.Types.IsZeroInitializable(t) {
		g.emitMemSetZero(addr, t)
		return
	}
	c := g.m.Consts.EmitNullConstant(t)
	dst := g.withElem(addr, g.m.ctx.AttrType(c))
	g.b.Store(g.b.Const(c), dst.Ptr, dst.Align, false)
}
