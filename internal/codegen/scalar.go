package codegen

import (
	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/types"
)

// emitScalar evaluates a scalar expression to an IR value.
func (g *funcGen) emitScalar(e *ast.Expr) (cir.Value, error) {
	m := g.m
	c := m.ctx
	switch e.Kind {
	case ast.ExprIntLiteral:
		return g.intConst(e.Type, e.Data.(ast.IntLiteralData).Value), nil
	case ast.ExprCharLiteral:
		return g.intConst(e.Type, e.Data.(ast.CharLiteralData).Value), nil
	case ast.ExprBoolLiteral:
		v := e.Data.(ast.BoolLiteralData).Value
		if m.src.Kind(e.Type) == types.KindBool {
			return g.b.Const(c.BoolAttr(v)), nil
		}
		return g.intConst(e.Type, boolInt(v)), nil
	case ast.ExprFloatLiteral:
		return g.b.Const(c.FPAttr(m.Types.ConvertType(e.Type), e.Data.(ast.FloatLiteralData).Value)), nil
	case ast.ExprNullPtrLiteral, ast.ExprImplicitValueInit:
		return g.b.Const(m.Consts.EmitNullConstant(e.Type)), nil

	case ast.ExprParen, ast.ExprExprWithCleanups, ast.ExprMaterializeTemporary, ast.ExprDefaultArg, ast.ExprDefaultInit:
		return g.emitScalar(e.Data.(ast.WrapData).Inner)

	case ast.ExprConstant:
		d := e.Data.(ast.ConstantData)
		if d.Value != nil {
			a := m.Consts.TryEmitAPValue(d.Value, e.Type)
			if a != cir.NoAttr && c.AttrType(a) == m.Types.ConvertType(e.Type) {
				return g.b.Const(a), nil
			}
		}
		return g.emitScalar(d.Inner)

	case ast.ExprDeclRef, ast.ExprMember, ast.ExprSubscript:
		lv, err := g.emitLValue(e)
		if err != nil {
			return cir.NoValue, err
		}
		return g.emitLoadOfLValue(lv), nil

	case ast.ExprOpaqueValue:
		if b, ok := g.opaques[e]; ok {
			if b.agg {
				return g.emitLoadOfLValue(b.lv), nil
			}
			return b.scalar, nil
		}
		return cir.NoValue, m.reject(diag.EmtNotAggregate, g.span, "unbound opaque value")

	case ast.ExprUnary:
		return g.emitUnary(e)

	case ast.ExprBinary:
		return g.emitBinary(e)

	case ast.ExprCast:
		return g.emitScalarCast(e)

	case ast.ExprCall:
		return g.emitCall(e)

	case ast.ExprAssign:
		d := e.Data.(ast.BinaryData)
		v, err := g.emitScalar(d.RHS)
		if err != nil {
			return cir.NoValue, err
		}
		lv, err := g.emitLValue(d.LHS)
		if err != nil {
			return cir.NoValue, err
		}
		g.emitStoreThroughLValue(v, lv)
		return v, nil

	case ast.ExprComma:
		d := e.Data.(ast.BinaryData)
		if err := g.emitIgnored(d.LHS); err != nil {
			return cir.NoValue, err
		}
		return g.emitScalar(d.RHS)

	case ast.ExprConditional, ast.ExprBinaryConditional:
		return cir.NoValue, m.nyi(diag.NYIScalarConditional, g.span, m.src.String(e.Type))

	case ast.ExprInitList, ast.ExprParenListInit:
		d := e.Data.(ast.InitListData)
		if m.src.Kind(e.Type) == types.KindVector {
			return g.emitVectorInitList(e, d)
		}
		if len(d.Inits) == 0 {
			return g.b.Const(m.Consts.EmitNullConstant(e.Type)), nil
		}
		return g.emitScalar(d.Inits[0])

	case ast.ExprVAArg:
		return cir.NoValue, m.nyi(diag.NYIVAArg, g.span, "")
	}
	return cir.NoValue, m.reject(diag.EmtTypeMismatch, g.span, "expression is not a scalar: "+e.Kind.String())
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (g *funcGen) intConst(t types.TypeID, v int64) cir.Value {
	if g.m.src.Kind(t) == types.KindBool {
		return g.b.Const(g.m.ctx.BoolAttr(v != 0))
	}
	return g.b.ConstInt(g.m.Types.ConvertType(t), v)
}

func (g *funcGen) emitUnary(e *ast.Expr) (cir.Value, error) {
	m := g.m
	d := e.Data.(ast.UnaryData)
	switch d.Op {
	case ast.UnaryDeref:
		lv, err := g.emitLValue(e)
		if err != nil {
			return cir.NoValue, err
		}
		return g.emitLoadOfLValue(lv), nil
	case ast.UnaryAddrOf:
		lv, err := g.emitLValue(d.Operand)
		if err != nil {
			return cir.NoValue, err
		}
		if lv.IsBitField() {
			return cir.NoValue, m.reject(diag.EmtTypeMismatch, g.span, "address of a bit-field")
		}
		pt := m.Types.ConvertType(e.Type)
		return g.b.Bitcast(lv.Addr.Ptr, m.ctx.Type(pt).Elem), nil
	}

	x, err := g.emitScalar(d.Operand)
	if err != nil {
		return cir.NoValue, err
	}
	switch d.Op {
	case ast.UnaryMinus:
		return g.b.BinOp(cir.BinSub, g.b.ConstInt(g.fn.ValueType(x), 0), x), nil
	case ast.UnaryNot:
		return g.b.BinOp(cir.BinXor, x, g.b.ConstInt(g.fn.ValueType(x), -1)), nil
	case ast.UnaryLNot:
		isZero := g.b.Cmp(cir.CmpEq, g.toBool(x, d.Operand.Type), g.b.Const(m.ctx.BoolAttr(false)))
		return g.fromBool(isZero, e.Type), nil
	}
	return cir.NoValue, m.reject(diag.EmtTypeMismatch, g.span, "unknown unary operator")
}

var binKinds = map[ast.BinaryOp]cir.BinKind{
	ast.BinAdd: cir.BinAdd, ast.BinSub: cir.BinSub, ast.BinMul: cir.BinMul,
	ast.BinAnd: cir.BinAnd, ast.BinOr: cir.BinOr, ast.BinXor: cir.BinXor,
	ast.BinShl: cir.BinShl, ast.BinShr: cir.BinShr,
}

var cmpKinds = map[ast.BinaryOp]cir.CmpKind{
	ast.BinEq: cir.CmpEq, ast.BinNe: cir.CmpNe, ast.BinLt: cir.CmpLt,
	ast.BinGt: cir.CmpGt, ast.BinLe: cir.CmpLe, ast.BinGe: cir.CmpGe,
}

func (g *funcGen) emitBinary(e *ast.Expr) (cir.Value, error) {
	d := e.Data.(ast.BinaryData)
	l, err := g.emitScalar(d.LHS)
	if err != nil {
		return cir.NoValue, err
	}
	r, err := g.emitScalar(d.RHS)
	if err != nil {
		return cir.NoValue, err
	}
	if d.Op.IsComparison() {
		return g.fromBool(g.b.Cmp(cmpKinds[d.Op], l, r), e.Type), nil
	}
	return g.b.BinOp(binKinds[d.Op], l, r), nil
}

// toBool converts a scalar of source type t to an IR bool.
func (g *funcGen) toBool(v cir.Value, t types.TypeID) cir.Value {
	m := g.m
	ty := g.fn.ValueType(v)
	switch m.src.Kind(t) {
	case types.KindBool:
		return v
	case types.KindFloat:
		return g.b.Cmp(cir.CmpNe, v, g.b.Const(m.ctx.FPAttr(ty, 0)))
	case types.KindPointer, types.KindNullPtr:
		return g.b.Cmp(cir.CmpNe, v, g.b.Const(m.ctx.NullPtrAttr(ty)))
	case types.KindMemberPointer:
		return g.b.Cmp(cir.CmpNe, v, g.b.ConstInt(ty, -1))
	}
	return g.b.Cast(cir.CastIntToBool, v, m.ctx.Bool())
}

// fromBool widens an IR bool to source type t.
func (g *funcGen) fromBool(b cir.Value, t types.TypeID) cir.Value {
	if g.m.src.Kind(t) == types.KindBool {
		return b
	}
	return g.b.Cast(cir.CastBoolToInt, b, g.m.Types.ConvertType(t))
}

func (g *funcGen) emitScalarCast(e *ast.Expr) (cir.Value, error) {
	m := g.m
	d := e.Data.(ast.CastData)
	to := m.Types.ConvertType(e.Type)

	switch d.Kind {
	case ast.CastLValueToRValue:
		lv, err := g.emitLValue(d.Operand)
		if err != nil {
			return cir.NoValue, err
		}
		return g.emitLoadOfLValue(lv), nil
	case ast.CastArrayToPointerDecay:
		lv, err := g.emitLValue(d.Operand)
		if err != nil {
			return cir.NoValue, err
		}
		return g.b.Bitcast(g.b.ArrayDecay(lv.Addr.Ptr), m.ctx.Type(to).Elem), nil
	case ast.CastNullToPointer, ast.CastNullToMemberPointer:
		if ast.HasSideEffects(m.src, d.Operand) {
			if err := g.emitIgnored(d.Operand); err != nil {
				return cir.NoValue, err
			}
		}
		return g.b.Const(m.Consts.EmitNullConstant(e.Type)), nil
	case ast.CastDerivedToBase, ast.CastUncheckedDerivedToBase, ast.CastBaseToDerived, ast.CastDynamic:
		return cir.NoValue, m.nyi(diag.NYIDerivedToBase, g.span, d.Kind.String())
	case ast.CastReinterpretMemberPointer:
		return cir.NoValue, m.nyi(diag.NYIMemberPointer, g.span, d.Kind.String())
	case ast.CastAtomicToNonAtomic, ast.CastNonAtomicToAtomic:
		return cir.NoValue, m.nyi(diag.NYIAtomicAggregate, g.span, d.Kind.String())
	case ast.CastToUnion, ast.CastLValueToRValueBitCast:
		return cir.NoValue, m.reject(diag.EmtUnsupportedCast, g.span, d.Kind.String()+" to a scalar")
	}

	v, err := g.emitScalar(d.Operand)
	if err != nil {
		return cir.NoValue, err
	}
	from := g.fn.ValueType(v)
	switch d.Kind {
	case ast.CastNoOp, ast.CastUserDefinedConversion, ast.CastConstructorConversion:
		return v, nil
	case ast.CastIntegral:
		switch {
		case from == to:
			return v, nil
		case m.ctx.Kind(from) == cir.TypeBool:
			return g.b.Cast(cir.CastBoolToInt, v, to), nil
		}
		return g.b.Cast(cir.CastIntegral, v, to), nil
	case ast.CastIntegralToBoolean, ast.CastFloatingToBoolean, ast.CastPointerToBoolean:
		return g.fromBool(g.toBool(v, d.Operand.Type), e.Type), nil
	case ast.CastIntegralToFloating:
		return g.b.Cast(cir.CastIntToFloat, v, to), nil
	case ast.CastFloatingToIntegral:
		return g.b.Cast(cir.CastFloatToInt, v, to), nil
	case ast.CastFloating:
		if from == to {
			return v, nil
		}
		return g.b.Cast(cir.CastFloating, v, to), nil
	case ast.CastBitCast:
		if m.ctx.Kind(from) == cir.TypePointer && m.ctx.Kind(to) == cir.TypePointer {
			return g.b.Bitcast(v, m.ctx.Type(to).Elem), nil
		}
		return g.b.Cast(cir.CastBitcast, v, to), nil
	case ast.CastPointerToIntegral:
		return g.b.Cast(cir.CastPtrToInt, v, to), nil
	case ast.CastIntegralToPointer:
		return g.b.Cast(cir.CastIntToPtr, v, to), nil
	}
	return cir.NoValue, m.reject(diag.EmtUnsupportedCast, g.span, d.Kind.String())
}

// emitCall calls a function declared in the unit. Aggregate arguments are
// evaluated into temporaries and passed by value.
func (g *funcGen) emitCall(e *ast.Expr) (cir.Value, error) {
	m := g.m
	d := e.Data.(ast.CallData)
	fd := m.unit.Func(d.Callee)
	if fd == nil {
		return cir.NoValue, m.reject(diag.EmtCallNeedsPrototype, g.span, "call to undeclared function "+d.Callee)
	}
	if len(fd.Params) != len(d.Args) {
		return cir.NoValue, m.reject(diag.EmtTypeMismatch, g.span, "wrong number of arguments to "+d.Callee)
	}
	m.declareFunc(fd)
	args := make([]cir.Value, len(d.Args))
	for i, a := range d.Args {
		v, err := g.emitArg(a, fd.Params[i].Type)
		if err != nil {
			return cir.NoValue, err
		}
		args[i] = v
	}
	return g.b.Call(fd.Name, args, m.Types.ConvertType(fd.Result)), nil
}

func (g *funcGen) emitArg(a *ast.Expr, t types.TypeID) (cir.Value, error) {
	if g.m.src.EvaluationKind(t) != types.EvalAggregate {
		return g.emitScalar(a)
	}
	lv, err := g.materializeTemporary(a, t, true)
	if err != nil {
		return cir.NoValue, err
	}
	return g.b.Load(lv.Addr.Ptr, lv.Addr.Align, false), nil
}

func (g *funcGen) emitVectorInitList(e *ast.Expr, d ast.InitListData) (cir.Value, error) {
	m := g.m
	ty := m.Types.ConvertType(e.Type)
	vec := g.b.Const(m.ctx.ZeroAttr(ty))
	for i, init := range d.Inits {
		if m.src.Kind(init.Type) == types.KindVector {
			return cir.NoValue, m.nyi(diag.NYIVectorElement, g.span, "vector element of a vector initializer")
		}
		v, err := g.emitScalar(init)
		if err != nil {
			return cir.NoValue, err
		}
		vec = g.b.VecInsert(vec, v, g.b.ConstInt(m.ctx.SInt32(), int64(i)))
	}
	return vec, nil
}

// emitIgnored evaluates e for its side effects only.
func (g *funcGen) emitIgnored(e *ast.Expr) error {
	m := g.m
	if m.src.EvaluationKind(e.Type) == types.EvalAggregate {
		return g.emitAggExpr(e, IgnoredSlot())
	}
	if m.src.Kind(e.Type) == types.KindVoid {
		switch e.IgnoreParens().Kind {
		case ast.ExprCall:
			_, err := g.emitCall(e.IgnoreParens())
			return err
		case ast.ExprComma:
			d := e.IgnoreParens().Data.(ast.BinaryData)
			if err := g.emitIgnored(d.LHS); err != nil {
				return err
			}
			return g.emitIgnored(d.RHS)
		case ast.ExprCast:
			return g.emitIgnored(e.IgnoreParens().Data.(ast.CastData).Operand)
		}
		return nil
	}
	if !ast.HasSideEffects(m.src, e) {
		return nil
	}
	_, err := g.emitScalar(e)
	return err
}
