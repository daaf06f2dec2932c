package codegen

import (
	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/types"
)

// aggEmitter evaluates one aggregate expression into dest.
type aggEmitter struct {
	g    *funcGen
	m    *Module
	dest AggValueSlot
}

// emitAggExpr evaluates the aggregate e into slot. An ignored slot only
// keeps the side effects.
func (g *funcGen) emitAggExpr(e *ast.Expr, slot AggValueSlot) error {
	ae := &aggEmitter{g: g, m: g.m, dest: slot}
	return ae.visit(e)
}

// ensureSlot gives an ignored destination a temporary. It reports whether
// a temporary was created.
func (ae *aggEmitter) ensureSlot(t types.TypeID) bool {
	if !ae.dest.IsIgnored() {
		return false
	}
	ae.dest.Addr = ae.g.createTemp(t, "agg.tmp")
	return true
}

func (ae *aggEmitter) visit(e *ast.Expr) error {
	g, m := ae.g, ae.m
	switch e.Kind {
	case ast.ExprParen, ast.ExprDefaultArg, ast.ExprDefaultInit, ast.ExprMaterializeTemporary:
		return ae.visit(e.Data.(ast.WrapData).Inner)

	case ast.ExprExprWithCleanups:
		depth := g.cleanups.depth()
		if err := ae.visit(e.Data.(ast.WrapData).Inner); err != nil {
			return err
		}
		g.popCleanupsTo(depth)
		return nil

	case ast.ExprConstant:
		return ae.visitConstant(e)

	case ast.ExprDeclRef, ast.ExprMember, ast.ExprUnary, ast.ExprSubscript, ast.ExprStringLiteral, ast.ExprOpaqueValue:
		return ae.emitAggLoadOfLValue(e)

	case ast.ExprCast:
		return ae.visitCast(e)

	case ast.ExprCall:
		return ae.visitCall(e)

	case ast.ExprConstruct:
		return ae.visitConstruct(e)

	case ast.ExprConditional, ast.ExprBinaryConditional:
		return ae.visitConditional(e)

	case ast.ExprComma:
		d := e.Data.(ast.BinaryData)
		if err := g.emitIgnored(d.LHS); err != nil {
			return err
		}
		return ae.visit(d.RHS)

	case ast.ExprAssign:
		return ae.visitAssign(e)

	case ast.ExprCompare3Way:
		return ae.visitCompare3Way(e)

	case ast.ExprInitList, ast.ExprParenListInit:
		return ae.visitInitList(e, false)

	case ast.ExprDesignatedInitUpdate:
		d := e.Data.(ast.DesignatedInitUpdateData)
		ae.ensureSlot(e.Type)
		if err := g.emitAggExpr(d.Base, ae.dest); err != nil {
			return err
		}
		// The base wrote every byte it owns.
		ae.dest.Zeroed = false
		return ae.visitInitList(d.Updater, true)

	case ast.ExprImplicitValueInit:
		if ae.dest.IsIgnored() || ae.dest.Zeroed {
			return nil
		}
		g.emitNullInitialization(ae.dest.Addr, e.Type)
		return nil

	case ast.ExprNoInit:
		return nil

	case ast.ExprVAArg:
		return m.nyi(diag.NYIVAArg, g.span, "aggregate va_arg")
	}
	return m.reject(diag.EmtNotAggregate, g.span, e.Kind.String()+" does not produce an aggregate")
}

func (ae *aggEmitter) visitConstant(e *ast.Expr) error {
	g, m := ae.g, ae.m
	d := e.Data.(ast.ConstantData)
	if d.Value == nil {
		return ae.visit(d.Inner)
	}
	if ae.dest.IsIgnored() {
		return nil
	}
	c := m.Consts.TryEmitAPValue(d.Value, e.Type)
	if c == cir.NoAttr {
		return ae.visit(d.Inner)
	}
	if ae.dest.Zeroed && m.ctx.IsNullValue(c) {
		return nil
	}
	dst := g.withElem(ae.dest.Addr, m.ctx.AttrType(c))
	g.b.Store(g.b.Const(c), dst.Ptr, dst.Align, ae.dest.Volatile)
	return nil
}

// emitAggLoadOfLValue copies the object designated by e into dest.
func (ae *aggEmitter) emitAggLoadOfLValue(e *ast.Expr) error {
	lv, err := ae.g.emitLValue(e)
	if err != nil {
		return err
	}
	return ae.emitFinalDestCopy(e.Type, lv)
}

// emitFinalDestCopy copies src into dest. Nothing is read for an ignored
// destination unless src is volatile.
func (ae *aggEmitter) emitFinalDestCopy(t types.TypeID, src LValue) error {
	if ae.dest.IsIgnored() {
		if !src.Volatile {
			return nil
		}
		ae.ensureSlot(t)
	}
	return ae.g.emitAggregateCopy(ae.dest.Addr, src.Addr, t, ae.dest.MayOverlap, ae.dest.Volatile || src.Volatile)
}

// emitAggregateCopy copies an object of type t. A destination that may
// overlap other objects only receives the data size.
func (g *funcGen) emitAggregateCopy(dst, src Address, t types.TypeID, mayOverlap, volatile bool) error {
	m := g.m
	if rd := m.src.Record(m.src.Unqualified(t)); rd != nil && rd.NonTrivialCopy {
		return m.nyi(diag.NYINonTrivialCopy, g.span, rd.Name)
	}
	if dst.Ptr == src.Ptr {
		return nil
	}
	var size int64
	if mayOverlap {
		size = m.oracle.DataSizeOf(t)
	}
	s := g.withElem(src, dst.Elem)
	g.b.Copy(dst.Ptr, s.Ptr, size, volatile)
	return nil
}

func (ae *aggEmitter) visitCast(e *ast.Expr) error {
	g, m := ae.g, ae.m
	d := e.Data.(ast.CastData)
	switch d.Kind {
	case ast.CastToUnion:
		if ae.dest.IsIgnored() {
			return g.emitIgnored(d.Operand)
		}
		rd := m.src.Record(m.src.Unqualified(e.Type))
		if rd == nil || !rd.IsUnion() {
			return m.reject(diag.EmtUnsupportedCast, g.span, "cast to union of non-union type")
		}
		for _, f := range rd.Fields {
			if m.src.SameUnqualified(f.Type, d.Operand.Type) {
				lv := g.emitLValueForField(ae.dest.Addr, f, ae.dest.Volatile)
				return ae.emitInitializationToLValue(d.Operand, lv)
			}
		}
		return m.reject(diag.EmtUnsupportedCast, g.span, "no union member of type "+m.src.String(d.Operand.Type))

	case ast.CastNoOp, ast.CastUserDefinedConversion, ast.CastConstructorConversion:
		return ae.visit(d.Operand)

	case ast.CastLValueToRValue:
		if ae.dest.IsIgnored() && m.src.IsVolatile(d.Operand.Type) {
			ae.ensureSlot(e.Type)
		}
		return ae.visit(d.Operand)

	case ast.CastLValueToRValueBitCast:
		lv, err := g.emitLValue(d.Operand)
		if err != nil {
			return err
		}
		if ae.dest.IsIgnored() {
			return nil
		}
		g.b.MemCpy(ae.dest.Addr.Ptr, lv.Addr.Ptr, g.sizeConst(m.oracle.SizeOf(e.Type)))
		return nil

	case ast.CastDerivedToBase, ast.CastUncheckedDerivedToBase, ast.CastBaseToDerived, ast.CastDynamic:
		return m.nyi(diag.NYIDerivedToBase, g.span, d.Kind.String())

	case ast.CastAtomicToNonAtomic, ast.CastNonAtomicToAtomic:
		return m.nyi(diag.NYIAtomicAggregate, g.span, d.Kind.String())
	}
	return m.reject(diag.EmtUnsupportedCast, g.span, d.Kind.String()+" cannot produce an aggregate")
}

// visitCall stores the returned aggregate into dest. A temporary is used
// when dest may be observed during the call, when its tail padding is not
// ours, or when an ignored result still needs destruction.
func (ae *aggEmitter) visitCall(e *ast.Expr) error {
	g, m := ae.g, ae.m
	t := e.Type
	requiresDestruction := !ae.dest.ExternallyDestructed && m.src.Destruction(t) == types.DestructNontrivialCStruct
	useTemp := ae.dest.Aliased || ae.dest.MayOverlap || (ae.dest.IsIgnored() && requiresDestruction)

	v, err := g.emitCall(e)
	if err != nil {
		return err
	}
	if ae.dest.IsIgnored() && !useTemp {
		return nil
	}
	target := ae.dest.Addr
	if useTemp {
		target = g.createTemp(t, "tmp")
	}
	dst := g.withElem(target, g.fn.ValueType(v))
	g.b.Store(v, dst.Ptr, dst.Align, ae.dest.Volatile && !useTemp)
	if requiresDestruction {
		g.pushDestroy(target, t)
	}
	if !useTemp || ae.dest.IsIgnored() {
		return nil
	}
	if err := ae.emitFinalDestCopy(t, LValue{Addr: target, Type: t}); err != nil {
		return err
	}
	if !requiresDestruction {
		g.b.LifetimeEnd(target.Ptr)
	}
	return nil
}

// CtorName is the symbol of constructor c.
func CtorName(c *types.CtorDecl) string {
	return c.Record.Name + "::" + c.Name
}

func (ae *aggEmitter) visitConstruct(e *ast.Expr) error {
	g, m := ae.g, ae.m
	d := e.Data.(ast.ConstructData)
	t := e.Type
	if m.src.IsArray(t) {
		return m.nyi(diag.NYIArrayConstructor, g.span, m.src.String(t))
	}
	ctor := d.Ctor
	if ctor == nil {
		return m.reject(diag.EmtUnknownDecl, g.span, "construction without a constructor")
	}
	if ctor.Trivial {
		switch {
		case len(d.Args) == 0:
			if d.ZeroInit && !ae.dest.IsIgnored() && !ae.dest.Zeroed {
				g.emitNullInitialization(ae.dest.Addr, t)
			}
			return nil
		case (ctor.Copy || ctor.Move) && len(d.Args) == 1:
			return ae.visit(d.Args[0])
		}
	}

	temp := ae.ensureSlot(t)
	if d.ZeroInit && !ae.dest.Zeroed {
		g.emitNullInitialization(ae.dest.Addr, t)
	}
	c := m.ctx
	params := []cir.TypeID{c.Pointer(ae.dest.Addr.Elem)}
	args := []cir.Value{ae.dest.Addr.Ptr}
	for i, a := range d.Args {
		pt := a.Type
		if i < len(ctor.Params) {
			pt = ctor.Params[i]
		}
		v, err := g.emitArg(a, pt)
		if err != nil {
			return err
		}
		params = append(params, m.Types.ConvertType(pt))
		args = append(args, v)
	}
	name := CtorName(ctor)
	m.IR.GetOrAddFunc(name, c.Func(params, c.Void()))
	g.b.Call(name, args, cir.NoType)
	if temp && m.src.Destruction(t) != types.DestructNone {
		g.pushDestroy(ae.dest.Addr, t)
	}
	return nil
}

// visitConditional evaluates both arms into the same destination. A C
// struct needing destruction gets one cleanup after the join, whichever
// arm ran. Cleanups pushed by an arm stay on the stack, guarded by the
// condition.
func (ae *aggEmitter) visitConditional(e *ast.Expr) error {
	g, m := ae.g, ae.m
	d := e.Data.(ast.ConditionalData)
	t := e.Type

	if d.Opaque != nil {
		if err := g.bindOpaque(d.Opaque); err != nil {
			return err
		}
		defer delete(g.opaques, d.Opaque)
	}
	cv, err := g.emitScalar(d.Cond)
	if err != nil {
		return err
	}
	cond := g.toBool(cv, d.Cond.Type)

	destroy := !ae.dest.ExternallyDestructed && m.src.Destruction(t) == types.DestructNontrivialCStruct
	if destroy {
		ae.ensureSlot(t)
		ae.dest.ExternallyDestructed = true
	}

	thenB, elseB, endB := g.b.NewBlock(), g.b.NewBlock(), g.b.NewBlock()
	g.b.CondBr(cond, thenB, elseB)
	for _, arm := range []struct {
		blk  *cir.Block
		expr *ast.Expr
	}{{thenB, d.Then}, {elseB, d.Else}} {
		g.b.SetInsertBlock(arm.blk)
		depth := g.cleanups.depth()
		if err := g.emitAggExpr(arm.expr, ae.dest); err != nil {
			return err
		}
		// Temporaries of an arm live to the end of the full expression,
		// but only exist when that arm ran.
		g.cleanups.guardFrom(depth, cond, arm.blk == thenB)
		if !g.b.Block().Terminated() {
			g.b.Br(endB)
		}
	}
	g.b.SetInsertBlock(endB)
	if destroy {
		g.pushDestroy(ae.dest.Addr, t)
	}
	return nil
}

// bindOpaque evaluates the shared operand of a binary conditional once.
func (g *funcGen) bindOpaque(o *ast.Expr) error {
	src := o.Data.(ast.OpaqueValueData).Source
	if g.m.src.EvaluationKind(src.Type) == types.EvalAggregate {
		lv, err := g.emitLValue(src)
		if err != nil {
			return err
		}
		g.opaques[o] = opaqueValue{lv: lv, agg: true}
		return nil
	}
	v, err := g.emitScalar(src)
	if err != nil {
		return err
	}
	g.opaques[o] = opaqueValue{scalar: v}
	return nil
}

func (ae *aggEmitter) visitAssign(e *ast.Expr) error {
	g, m := ae.g, ae.m
	d := e.Data.(ast.BinaryData)
	if m.src.IsAtomic(d.LHS.Type) {
		return m.nyi(diag.NYIAtomicAggregate, g.span, "assignment to an atomic aggregate")
	}
	lhs, err := g.emitLValue(d.LHS)
	if err != nil {
		return err
	}
	// The target may be a [[no_unique_address]] member whose tail
	// padding holds a later member.
	slot := SlotForLValue(lhs, true, true, true)
	if !slot.Volatile && m.src.HasVolatileMember(d.LHS.Type) {
		slot.Volatile = true
	}
	if err := g.emitAggExpr(d.RHS, slot); err != nil {
		return err
	}
	if err := ae.emitFinalDestCopy(e.Type, lhs); err != nil {
		return err
	}
	if !ae.dest.IsIgnored() && !ae.dest.ExternallyDestructed &&
		m.src.Destruction(e.Type) == types.DestructNontrivialCStruct {
		g.pushDestroy(ae.dest.Addr, e.Type)
	}
	return nil
}

// visitCompare3Way stores the ordering of two scalars into the first
// member of the comparison category object.
func (ae *aggEmitter) visitCompare3Way(e *ast.Expr) error {
	g, m := ae.g, ae.m
	d := e.Data.(ast.Compare3WayData)
	if m.src.IsRecord(m.src.Unqualified(d.LHS.Type)) || m.src.IsArray(d.LHS.Type) {
		return m.reject(diag.EmtAggregateCompare, g.span, "three-way comparison of "+m.src.String(d.LHS.Type))
	}
	rd := m.src.Record(m.src.Unqualified(e.Type))
	if rd == nil || len(rd.Fields) == 0 {
		return m.reject(diag.EmtTypeMismatch, g.span, "three-way comparison result is not a class")
	}
	l, err := g.emitScalar(d.LHS)
	if err != nil {
		return err
	}
	r, err := g.emitScalar(d.RHS)
	if err != nil {
		return err
	}
	if ae.dest.IsIgnored() {
		return nil
	}
	f := rd.Fields[0]
	v := g.b.Cmp3Way(l, r, m.Types.ConvertType(f.Type), cir.Ordering{
		Less: -1, Equal: 0, Greater: 1,
		Partial: d.Partial, Unordered: m.Policy.PartialOrderingUnordered,
	})
	g.emitStoreThroughLValue(v, g.emitLValueForField(ae.dest.Addr, f, ae.dest.Volatile))
	return nil
}
