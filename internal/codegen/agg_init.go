package codegen

import (
	"math"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/types"
)

// visitInitList initializes dest from a braced list. In update mode the
// list patches an object whose base value is already in place, so
// missing members are left alone.
func (ae *aggEmitter) visitInitList(e *ast.Expr, update bool) error {
	g, m := ae.g, ae.m
	d, ok := e.InitList()
	if !ok {
		return m.reject(diag.EmtNotAggregate, g.span, "initializer update is not a list")
	}
	if d.Transparent && len(d.Inits) == 1 {
		return ae.visit(d.Inits[0])
	}
	t := e.Type
	ae.ensureSlot(t)
	if !update {
		ae.checkAggExprForMemSetUse(e)
	}

	if m.src.IsArray(t) {
		return ae.emitArrayInit(ae.dest.Addr, t, d)
	}
	rd := m.src.Record(m.src.Unqualified(t))
	if rd == nil {
		return m.reject(diag.EmtNotAggregate, g.span, "initializer list for "+m.src.String(t))
	}
	if rd.IsUnion() {
		return ae.emitUnionInit(rd, d)
	}

	scope := g.cleanups.beginDeactivation()
	defer scope.end()
	idx := 0
	if err := ae.emitBaseInits(rd, d.Inits, &idx, update); err != nil {
		return err
	}
	zeroInit := m.Types.IsZeroInitializable(t)
	for _, f := range rd.Fields {
		if m.src.IsIncompleteArray(f.Type) {
			break
		}
		if f.IsUnnamedBitField() {
			continue
		}
		if idx >= len(d.Inits) && (update || (ae.dest.Zeroed && zeroInit)) {
			break
		}
		lv := g.emitLValueForField(ae.dest.Addr, f, ae.dest.Volatile)
		if idx < len(d.Inits) {
			if err := ae.emitInitializationToLValue(d.Inits[idx], lv); err != nil {
				return err
			}
			idx++
		} else {
			ae.emitNullInitializationToLValue(lv)
		}
		if !lv.IsBitField() && m.src.Destruction(f.Type) != types.DestructNone {
			g.pushDestroyAndDeferDeactivation(lv.Addr, f.Type)
		}
	}
	return nil
}

// emitBaseInits initializes the direct bases of rd from the leading
// list elements.
func (ae *aggEmitter) emitBaseInits(rd *types.RecordDecl, inits []*ast.Expr, idx *int, update bool) error {
	g, m := ae.g, ae.m
	if len(rd.Bases) == 0 {
		return nil
	}
	derived := m.oracle.MustRecord(rd)
	for _, b := range rd.Bases {
		if b.Virtual {
			return m.nyi(diag.NYIVirtualBaseInit, g.span, rd.Name)
		}
		brd := m.src.Record(b.Type)
		addr, _ := g.baseAddr(ae.dest.Addr, rd, brd)
		overlap := derived.BaseOffset(brd)+m.oracle.MustRecord(brd).Size > derived.NonVirtualSize
		switch {
		case *idx < len(inits):
			slot := AggValueSlot{Addr: addr, Zeroed: ae.dest.Zeroed, ExternallyDestructed: true, MayOverlap: overlap, Volatile: ae.dest.Volatile}
			if err := g.emitAggExpr(inits[*idx], slot); err != nil {
				return err
			}
			*idx++
		case update:
			continue
		case !ae.dest.Zeroed:
			g.emitNullInitialization(addr, b.Type)
		}
		if m.src.Destruction(b.Type) != types.DestructNone {
			g.pushDestroyAndDeferDeactivation(addr, b.Type)
		}
	}
	return nil
}

func (ae *aggEmitter) emitUnionInit(rd *types.RecordDecl, d ast.InitListData) error {
	g := ae.g
	if d.UnionField == nil {
		if !ae.dest.Zeroed {
			g.emitNullInitialization(ae.dest.Addr, rd.Self)
		}
		return nil
	}
	lv := g.emitLValueForField(ae.dest.Addr, d.UnionField, ae.dest.Volatile)
	if len(d.Inits) == 0 {
		ae.emitNullInitializationToLValue(lv)
		return nil
	}
	return ae.emitInitializationToLValue(d.Inits[0], lv)
}

// emitInitializationToLValue stores one list element into lv.
func (ae *aggEmitter) emitInitializationToLValue(init *ast.Expr, lv LValue) error {
	g, m := ae.g, ae.m
	e := init.IgnoreParens()
	switch {
	case e.Kind == ast.ExprNoInit:
		return nil
	case ae.dest.Zeroed && g.isSimpleZero(e):
		return nil
	case e.Kind == ast.ExprImplicitValueInit:
		ae.emitNullInitializationToLValue(lv)
		return nil
	}
	if m.src.EvaluationKind(lv.Type) == types.EvalAggregate {
		slot := SlotForLValue(lv, true, false, false)
		slot.Zeroed = ae.dest.Zeroed
		return g.emitAggExpr(init, slot)
	}
	v, err := g.emitScalar(init)
	if err != nil {
		return err
	}
	g.emitStoreThroughLValue(v, lv)
	return nil
}

// emitNullInitializationToLValue value-initializes lv unless the storage
// is already zero.
func (ae *aggEmitter) emitNullInitializationToLValue(lv LValue) {
	g, m := ae.g, ae.m
	if ae.dest.Zeroed && m.Types.IsZeroInitializable(lv.Type) {
		return
	}
	if m.src.EvaluationKind(lv.Type) == types.EvalAggregate {
		g.emitNullInitialization(lv.Addr, lv.Type)
		return
	}
	g.emitStoreThroughLValue(g.b.Const(m.Consts.EmitNullConstant(lv.Type)), lv)
}

// checkAggExprForMemSetUse zero-fills a large destination first when
// most of its initializer is zero, so the zero stores can be skipped.
func (ae *aggEmitter) checkAggExprForMemSetUse(e *ast.Expr) {
	g, m := ae.g, ae.m
	if ae.dest.Zeroed || ae.dest.Volatile || ae.dest.IsIgnored() {
		return
	}
	if rd := m.src.Record(m.src.Unqualified(m.src.BaseElement(e.Type))); rd != nil && rd.CXX && rd.UserDeclaredCtor {
		return
	}
	size := m.oracle.SizeOf(e.Type)
	if ae.dest.MayOverlap {
		size = m.oracle.DataSizeOf(e.Type)
	}
	if size <= m.Policy.MemsetMinSize {
		return
	}
	if g.numNonZeroBytesInInit(e)*m.Policy.MemsetNonzeroRatio > size {
		return
	}
	g.emitMemSetBytes(ae.dest.Addr, size)
	ae.dest.Zeroed = true
}

// numNonZeroBytesInInit over-approximates the bytes an initializer
// stores that are not zero. Anything it does not understand counts in
// full.
func (g *funcGen) numNonZeroBytesInInit(e *ast.Expr) int64 {
	m := g.m
	e = ignoreNoopCasts(e)
	if g.isSimpleZero(e) {
		return 0
	}
	d, ok := e.InitList()
	for ok && d.Transparent && len(d.Inits) == 1 {
		e = d.Inits[0]
		d, ok = e.InitList()
	}
	if !ok || !m.Types.IsZeroInitializable(e.Type) {
		return m.oracle.SizeOf(e.Type)
	}
	var n int64
	if rd := m.src.Record(m.src.Unqualified(e.Type)); rd != nil && !rd.IsUnion() {
		i := 0
		for range rd.Bases {
			if i == len(d.Inits) {
				return n
			}
			n += g.numNonZeroBytesInInit(d.Inits[i])
			i++
		}
		for _, f := range rd.Fields {
			if m.src.IsIncompleteArray(f.Type) || i == len(d.Inits) {
				break
			}
			if f.IsUnnamedBitField() {
				continue
			}
			n += g.numNonZeroBytesInInit(d.Inits[i])
			i++
		}
		return n
	}
	for _, init := range d.Inits {
		n += g.numNonZeroBytesInInit(init)
	}
	return n
}

func ignoreNoopCasts(e *ast.Expr) *ast.Expr {
	for {
		e = e.IgnoreParens()
		if e.Kind != ast.ExprCast || e.Data.(ast.CastData).Kind != ast.CastNoOp {
			return e
		}
		e = e.Data.(ast.CastData).Operand
	}
}

// isSimpleZero reports whether e is obviously the zero bit pattern.
func (g *funcGen) isSimpleZero(e *ast.Expr) bool {
	m := g.m
	e = e.IgnoreParens()
	for e.Kind == ast.ExprCast {
		d := e.Data.(ast.CastData)
		if !g.castPreservesZero(d.Kind) {
			break
		}
		e = d.Operand.IgnoreParens()
	}
	switch e.Kind {
	case ast.ExprIntLiteral:
		return e.Data.(ast.IntLiteralData).Value == 0
	case ast.ExprCharLiteral:
		return e.Data.(ast.CharLiteralData).Value == 0
	case ast.ExprBoolLiteral:
		return !e.Data.(ast.BoolLiteralData).Value
	case ast.ExprFloatLiteral:
		v := e.Data.(ast.FloatLiteralData).Value
		return v == 0 && !math.Signbit(v)
	case ast.ExprNullPtrLiteral:
		return m.oracle.Target.NullPointerIsZero
	case ast.ExprImplicitValueInit:
		return m.Types.IsZeroInitializable(e.Type)
	}
	return false
}

func (g *funcGen) castPreservesZero(k ast.CastKind) bool {
	switch k {
	case ast.CastNoOp, ast.CastIntegral, ast.CastIntegralToBoolean, ast.CastIntegralToFloating,
		ast.CastFloatingToIntegral, ast.CastFloating, ast.CastFloatingToBoolean, ast.CastBitCast,
		ast.CastUserDefinedConversion, ast.CastConstructorConversion,
		ast.CastAtomicToNonAtomic, ast.CastNonAtomicToAtomic:
		return true
	case ast.CastNullToPointer, ast.CastIntegralToPointer, ast.CastPointerToIntegral, ast.CastPointerToBoolean:
		return g.m.oracle.Target.NullPointerIsZero
	}
	return false
}

// emitArrayInit stores the explicit elements one by one and the filler
// in a loop over the remaining elements.
func (ae *aggEmitter) emitArrayInit(addr Address, t types.TypeID, d ast.InitListData) error {
	g, m := ae.g, ae.m
	c := m.ctx
	n := m.src.MustLookup(t).Count
	elemT := m.src.Elem(t)
	elemTy := m.Types.ConvertType(elemT)
	elemSize := m.oracle.SizeOf(elemT)
	if m.src.Destruction(elemT) != types.DestructNone {
		return m.nyi(diag.NYIArrayEHCleanup, g.span, "array of "+m.src.String(elemT))
	}
	if int64(len(d.Inits)) > n {
		return m.reject(diag.EmtTypeMismatch, g.span, "excess elements in array initializer")
	}

	one := g.sizeConst(1)
	begin := g.b.ArrayDecay(addr.Ptr)
	elem := begin
	for i, init := range d.Inits {
		if i > 0 {
			elem = g.b.PtrStride(elem, one)
		}
		lv := LValue{
			Addr:     Address{Ptr: elem, Elem: elemTy, Align: alignAt(addr.Align, int64(i)*elemSize)},
			Type:     elemT,
			Volatile: ae.dest.Volatile,
		}
		if err := ae.emitInitializationToLValue(init, lv); err != nil {
			return err
		}
	}
	numInit := int64(len(d.Inits))
	if numInit == n {
		return nil
	}

	filler := d.Filler
	if filler == nil {
		filler = ast.ValueInit(elemT)
	}
	if ae.dest.Zeroed && g.hasTrivialFiller(filler) && m.Types.IsZeroInitializable(elemT) {
		return nil
	}

	cur := begin
	if numInit > 0 {
		cur = g.b.PtrStride(elem, one)
	}
	end := g.b.PtrStride(begin, g.sizeConst(n))
	ptrTy := c.Pointer(elemTy)
	ptrAlign := m.oracle.Target.PtrSize
	tmp := g.b.Alloca(ptrTy, "arrayinit.temp", ptrAlign)
	g.b.Store(cur, tmp, ptrAlign, false)

	body, exit := g.b.NewBlock(), g.b.NewBlock()
	g.b.Br(body)
	g.b.SetInsertBlock(body)
	p := g.b.Load(tmp, ptrAlign, false)
	lv := LValue{
		Addr:     Address{Ptr: p, Elem: elemTy, Align: min(addr.Align, m.oracle.AlignOf(elemT))},
		Type:     elemT,
		Volatile: ae.dest.Volatile,
	}
	depth := g.cleanups.depth()
	if err := ae.emitInitializationToLValue(filler, lv); err != nil {
		return err
	}
	g.popCleanupsTo(depth)
	next := g.b.PtrStride(p, one)
	g.b.Store(next, tmp, ptrAlign, false)
	g.b.CondBr(g.b.Cmp(cir.CmpNe, next, end), body, exit)
	g.b.SetInsertBlock(exit)
	return nil
}

// hasTrivialFiller reports whether the filler only produces zeros.
func (g *funcGen) hasTrivialFiller(filler *ast.Expr) bool {
	e := filler.IgnoreParens()
	switch e.Kind {
	case ast.ExprImplicitValueInit:
		return true
	case ast.ExprConstruct:
		d := e.Data.(ast.ConstructData)
		return d.Ctor != nil && d.Ctor.Trivial && len(d.Args) == 0
	}
	return g.isSimpleZero(e)
}
