package ast

import "cirgen/internal/types"

// Constructors used by the unit frontend and tests. They fill Kind, Type
// and Data; callers set Span when they have one.

func IntLit(t types.TypeID, v int64) *Expr {
	return &Expr{Kind: ExprIntLiteral, Type: t, Data: IntLiteralData{Value: v}}
}

func FloatLit(t types.TypeID, v float64) *Expr {
	return &Expr{Kind: ExprFloatLiteral, Type: t, Data: FloatLiteralData{Value: v}}
}

func BoolLit(t types.TypeID, v bool) *Expr {
	return &Expr{Kind: ExprBoolLiteral, Type: t, Data: BoolLiteralData{Value: v}}
}

func CharLit(t types.TypeID, v int64) *Expr {
	return &Expr{Kind: ExprCharLiteral, Type: t, Data: CharLiteralData{Value: v}}
}

func StringLit(t types.TypeID, s string) *Expr {
	return &Expr{Kind: ExprStringLiteral, Type: t, Data: StringLiteralData{Value: s}}
}

func NullPtr(t types.TypeID) *Expr {
	return &Expr{Kind: ExprNullPtrLiteral, Type: t, Data: NullPtrData{}}
}

func Ref(v *VarDecl) *Expr {
	return &Expr{Kind: ExprDeclRef, Type: v.Type, Data: DeclRefData{Var: v}}
}

func Member(base *Expr, f *types.FieldDecl) *Expr {
	return &Expr{Kind: ExprMember, Type: f.Type, Data: MemberData{Base: base, Field: f}}
}

func Unary(op UnaryOp, t types.TypeID, operand *Expr) *Expr {
	return &Expr{Kind: ExprUnary, Type: t, Data: UnaryData{Op: op, Operand: operand}}
}

func Index(t types.TypeID, base, idx *Expr) *Expr {
	return &Expr{Kind: ExprSubscript, Type: t, Data: SubscriptData{Base: base, Index: idx}}
}

func Binary(op BinaryOp, t types.TypeID, lhs, rhs *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Type: t, Data: BinaryData{Op: op, LHS: lhs, RHS: rhs}}
}

// Wrap builds one of the transparent wrapper kinds around inner.
func Wrap(kind ExprKind, inner *Expr) *Expr {
	return &Expr{Kind: kind, Type: inner.Type, Span: inner.Span, Data: WrapData{Inner: inner}}
}

func Paren(inner *Expr) *Expr { return Wrap(ExprParen, inner) }

func Constant(inner *Expr, v *APValue) *Expr {
	return &Expr{Kind: ExprConstant, Type: inner.Type, Span: inner.Span, Data: ConstantData{Inner: inner, Value: v}}
}

func Cast(kind CastKind, t types.TypeID, operand *Expr) *Expr {
	return &Expr{Kind: ExprCast, Type: t, Data: CastData{Kind: kind, Operand: operand}}
}

func InitList(t types.TypeID, inits ...*Expr) *Expr {
	return &Expr{Kind: ExprInitList, Type: t, Data: InitListData{Inits: inits}}
}

// ArrayInit is an array initializer list with an explicit filler.
func ArrayInit(t types.TypeID, filler *Expr, inits ...*Expr) *Expr {
	return &Expr{Kind: ExprInitList, Type: t, Data: InitListData{Inits: inits, Filler: filler}}
}

// UnionInit designates field f of a union. A nil value zero-initializes
// the union.
func UnionInit(t types.TypeID, f *types.FieldDecl, v *Expr) *Expr {
	d := InitListData{UnionField: f}
	if v != nil {
		d.Inits = []*Expr{v}
	}
	return &Expr{Kind: ExprInitList, Type: t, Data: d}
}

func ValueInit(t types.TypeID) *Expr {
	return &Expr{Kind: ExprImplicitValueInit, Type: t}
}

func NoInit(t types.TypeID) *Expr {
	return &Expr{Kind: ExprNoInit, Type: t}
}

func DesignatedUpdate(t types.TypeID, base, updater *Expr) *Expr {
	return &Expr{Kind: ExprDesignatedInitUpdate, Type: t, Data: DesignatedInitUpdateData{Base: base, Updater: updater}}
}

func Construct(t types.TypeID, ctor *types.CtorDecl, args ...*Expr) *Expr {
	return &Expr{Kind: ExprConstruct, Type: t, Data: ConstructData{Ctor: ctor, Args: args}}
}

func Call(t types.TypeID, callee string, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Type: t, Data: CallData{Callee: callee, Args: args}}
}

func Cond(t types.TypeID, c, then, els *Expr) *Expr {
	return &Expr{Kind: ExprConditional, Type: t, Data: ConditionalData{Cond: c, Then: then, Else: els}}
}

// BinaryCond builds common ?: els. The common operand is evaluated once;
// toBool converts the bound value into the condition.
func BinaryCond(t types.TypeID, common *Expr, toBool func(*Expr) *Expr, els *Expr) *Expr {
	opaque := &Expr{Kind: ExprOpaqueValue, Type: common.Type, Span: common.Span, Data: OpaqueValueData{Source: common}}
	return &Expr{Kind: ExprBinaryConditional, Type: t, Data: ConditionalData{
		Cond: toBool(opaque), Then: opaque, Else: els, Opaque: opaque,
	}}
}

func Comma(lhs, rhs *Expr) *Expr {
	return &Expr{Kind: ExprComma, Type: rhs.Type, Data: BinaryData{LHS: lhs, RHS: rhs}}
}

func Assign(lhs, rhs *Expr) *Expr {
	return &Expr{Kind: ExprAssign, Type: lhs.Type, Data: BinaryData{LHS: lhs, RHS: rhs}}
}

func Compare3Way(t types.TypeID, lhs, rhs *Expr, partial bool) *Expr {
	return &Expr{Kind: ExprCompare3Way, Type: t, Data: Compare3WayData{LHS: lhs, RHS: rhs, Partial: partial}}
}
