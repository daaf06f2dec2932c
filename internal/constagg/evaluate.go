package constagg

import (
	"math"
	"math/big"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// evaluate folds a side-effect-free scalar expression built from
// literals, casts and arithmetic. Aggregates are handled by visit.
func (em *Emitter) evaluate(e *ast.Expr) (ast.APValue, bool) {
	fail := ast.APValue{}
	if e == nil {
		return fail, false
	}
	switch e.Kind {
	case ast.ExprIntLiteral:
		return em.intValue(big.NewInt(e.Data.(ast.IntLiteralData).Value), e.Type), true
	case ast.ExprCharLiteral:
		return em.intValue(big.NewInt(e.Data.(ast.CharLiteralData).Value), e.Type), true
	case ast.ExprBoolLiteral:
		return boolValue(e.Data.(ast.BoolLiteralData).Value), true
	case ast.ExprFloatLiteral:
		return em.floatValue(e.Data.(ast.FloatLiteralData).Value, e.Type), true
	case ast.ExprNullPtrLiteral:
		return ast.APNullPointer(), true

	case ast.ExprParen, ast.ExprExprWithCleanups, ast.ExprMaterializeTemporary,
		ast.ExprDefaultArg, ast.ExprDefaultInit:
		return em.evaluate(e.Data.(ast.WrapData).Inner)

	case ast.ExprConstant:
		if d := e.Data.(ast.ConstantData); d.Value != nil {
			return *d.Value, true
		}
		return em.evaluate(e.Data.(ast.ConstantData).Inner)

	case ast.ExprCast:
		return em.evalCast(e)
	case ast.ExprUnary:
		return em.evalUnary(e)
	case ast.ExprBinary:
		return em.evalBinary(e)

	case ast.ExprComma:
		return em.evaluate(e.Data.(ast.BinaryData).RHS)

	case ast.ExprConditional:
		d := e.Data.(ast.ConditionalData)
		if d.Opaque != nil {
			return fail, false
		}
		cond, ok := em.evaluate(d.Cond)
		if !ok {
			return fail, false
		}
		truth, ok := isTrue(cond)
		if !ok {
			return fail, false
		}
		if truth {
			return em.evaluate(d.Then)
		}
		return em.evaluate(d.Else)
	}
	return fail, false
}

func boolValue(b bool) ast.APValue {
	if b {
		return ast.APIntValue(1)
	}
	return ast.APIntValue(0)
}

func isTrue(v ast.APValue) (bool, bool) {
	switch v.Kind {
	case ast.APInt:
		return v.Int.Sign() != 0, true
	case ast.APFloat:
		return v.Float != 0, true
	case ast.APLValue:
		return !v.IsNullPointer(), true
	}
	return false, false
}

// intValue wraps v to the width and signedness of t.
func (em *Emitter) intValue(v *big.Int, t types.TypeID) ast.APValue {
	st := em.src.MustLookup(t)
	switch st.Kind {
	case types.KindBool:
		return boolValue(v.Sign() != 0)
	case types.KindInt:
		m := cir.Pow2(uint(st.Width))
		n := new(big.Int).Mod(v, m)
		if st.Signed && n.Bit(int(st.Width)-1) == 1 {
			n.Sub(n, m)
		}
		return ast.APBigInt(n)
	}
	return ast.APBigInt(v)
}

func (em *Emitter) floatValue(f float64, t types.TypeID) ast.APValue {
	if st := em.src.MustLookup(t); st.Kind == types.KindFloat && st.Width == 32 {
		f = float64(float32(f))
	}
	return ast.APFloatValue(f)
}

func (em *Emitter) evalCast(e *ast.Expr) (ast.APValue, bool) {
	fail := ast.APValue{}
	d := e.Data.(ast.CastData)
	switch d.Kind {
	case ast.CastNullToPointer:
		return ast.APNullPointer(), true
	case ast.CastNullToMemberPointer:
		return ast.APValue{Kind: ast.APMemberPointer}, true
	case ast.CastArrayToPointerDecay:
		if g := em.globalRef(d.Operand); g != nil {
			return ast.APAddress(g.Name, 0), true
		}
		return fail, false
	}

	v, ok := em.evaluate(d.Operand)
	if !ok {
		return fail, false
	}
	switch d.Kind {
	case ast.CastNoOp, ast.CastLValueToRValue, ast.CastAtomicToNonAtomic, ast.CastNonAtomicToAtomic,
		ast.CastBitCast:
		return v, true

	case ast.CastIntegral:
		if v.Kind != ast.APInt {
			return fail, false
		}
		return em.intValue(v.Int, e.Type), true

	case ast.CastIntegralToBoolean, ast.CastFloatingToBoolean, ast.CastPointerToBoolean:
		truth, ok := isTrue(v)
		if !ok {
			return fail, false
		}
		return boolValue(truth), true

	case ast.CastIntegralToFloating:
		if v.Kind != ast.APInt {
			return fail, false
		}
		f, _ := new(big.Float).SetInt(v.Int).Float64()
		return em.floatValue(f, e.Type), true

	case ast.CastFloatingToIntegral:
		if v.Kind != ast.APFloat || math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return fail, false
		}
		n, _ := big.NewFloat(math.Trunc(v.Float)).Int(nil)
		return em.intValue(n, e.Type), true

	case ast.CastFloating:
		if v.Kind != ast.APFloat {
			return fail, false
		}
		return em.floatValue(v.Float, e.Type), true

	case ast.CastIntegralToPointer:
		if v.Kind == ast.APInt && v.Int.Sign() == 0 && em.oracle.Target.NullPointerIsZero {
			return ast.APNullPointer(), true
		}

	case ast.CastPointerToIntegral:
		if v.Kind == ast.APLValue && v.IsNullPointer() && em.oracle.Target.NullPointerIsZero {
			return em.intValue(big.NewInt(0), e.Type), true
		}
	}
	return fail, false
}

func (em *Emitter) evalUnary(e *ast.Expr) (ast.APValue, bool) {
	fail := ast.APValue{}
	d := e.Data.(ast.UnaryData)
	if d.Op == ast.UnaryAddrOf {
		return em.evalAddress(d.Operand)
	}
	v, ok := em.evaluate(d.Operand)
	if !ok {
		return fail, false
	}
	switch d.Op {
	case ast.UnaryMinus:
		switch v.Kind {
		case ast.APInt:
			return em.intValue(new(big.Int).Neg(v.Int), e.Type), true
		case ast.APFloat:
			return em.floatValue(-v.Float, e.Type), true
		}
	case ast.UnaryNot:
		if v.Kind == ast.APInt {
			return em.intValue(new(big.Int).Not(v.Int), e.Type), true
		}
	case ast.UnaryLNot:
		if truth, ok := isTrue(v); ok {
			return em.intValue(boolValue(!truth).Int, e.Type), true
		}
	}
	return fail, false
}

// evalAddress folds &global, &global.field and &global[i].
func (em *Emitter) evalAddress(e *ast.Expr) (ast.APValue, bool) {
	fail := ast.APValue{}
	e = e.IgnoreParens()
	if g := em.globalRef(e); g != nil {
		return ast.APAddress(g.Name, 0), true
	}
	switch e.Kind {
	case ast.ExprMember:
		d := e.Data.(ast.MemberData)
		if d.Arrow || d.Field.IsBitField() {
			return fail, false
		}
		base, ok := em.evalAddress(d.Base)
		if !ok {
			return fail, false
		}
		base.Offset += em.oracle.MustRecord(d.Field.Parent).FieldOffset(d.Field) / 8
		return base, true
	case ast.ExprSubscript:
		d := e.Data.(ast.SubscriptData)
		base, ok := em.evalAddress(d.Base.IgnoreParens())
		if !ok {
			return fail, false
		}
		idx, ok := em.evaluate(d.Index)
		if !ok || idx.Kind != ast.APInt || !idx.Int.IsInt64() {
			return fail, false
		}
		base.Offset += idx.Int.Int64() * em.oracle.SizeOf(e.Type)
		return base, true
	}
	return fail, false
}

func (em *Emitter) globalRef(e *ast.Expr) *ast.VarDecl {
	e = e.IgnoreParens()
	if e == nil || e.Kind != ast.ExprDeclRef {
		return nil
	}
	if v := e.Data.(ast.DeclRefData).Var; v != nil && v.Global {
		return v
	}
	return nil
}

func (em *Emitter) evalBinary(e *ast.Expr) (ast.APValue, bool) {
	fail := ast.APValue{}
	d := e.Data.(ast.BinaryData)
	l, ok := em.evaluate(d.LHS)
	if !ok {
		return fail, false
	}
	r, ok := em.evaluate(d.RHS)
	if !ok || l.Kind != r.Kind {
		return fail, false
	}

	switch l.Kind {
	case ast.APInt:
		if d.Op.IsComparison() {
			return em.intValue(boolValue(compare(d.Op, l.Int.Cmp(r.Int))).Int, e.Type), true
		}
		n := new(big.Int)
		switch d.Op {
		case ast.BinAdd:
			n.Add(l.Int, r.Int)
		case ast.BinSub:
			n.Sub(l.Int, r.Int)
		case ast.BinMul:
			n.Mul(l.Int, r.Int)
		case ast.BinAnd:
			n.And(l.Int, r.Int)
		case ast.BinOr:
			n.Or(l.Int, r.Int)
		case ast.BinXor:
			n.Xor(l.Int, r.Int)
		case ast.BinShl, ast.BinShr:
			if r.Int.Sign() < 0 || !r.Int.IsInt64() || r.Int.Int64() >= 128 {
				return fail, false
			}
			s := uint(r.Int.Int64())
			if d.Op == ast.BinShl {
				n.Lsh(l.Int, s)
			} else {
				n.Rsh(l.Int, s)
			}
		default:
			return fail, false
		}
		return em.intValue(n, e.Type), true

	case ast.APFloat:
		if d.Op.IsComparison() {
			if math.IsNaN(l.Float) || math.IsNaN(r.Float) {
				return em.intValue(boolValue(d.Op == ast.BinNe).Int, e.Type), true
			}
			return em.intValue(boolValue(compare(d.Op, cmpFloat(l.Float, r.Float))).Int, e.Type), true
		}
		var f float64
		switch d.Op {
		case ast.BinAdd:
			f = l.Float + r.Float
		case ast.BinSub:
			f = l.Float - r.Float
		case ast.BinMul:
			f = l.Float * r.Float
		default:
			return fail, false
		}
		return em.floatValue(f, e.Type), true
	}
	return fail, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compare(op ast.BinaryOp, c int) bool {
	switch op {
	case ast.BinEq:
		return c == 0
	case ast.BinNe:
		return c != 0
	case ast.BinLt:
		return c < 0
	case ast.BinGt:
		return c > 0
	case ast.BinLe:
		return c <= 0
	case ast.BinGe:
		return c >= 0
	}
	return false
}
