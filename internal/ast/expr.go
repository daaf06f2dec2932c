package ast

import (
	"cirgen/internal/source"
	"cirgen/internal/types"
)

// ExprKind enumerates expression kinds.
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	// ExprIntLiteral is an integer literal.
	ExprIntLiteral
	ExprFloatLiteral
	ExprBoolLiteral
	ExprCharLiteral
	// ExprStringLiteral is an array of char holding the bytes plus a NUL.
	ExprStringLiteral
	ExprNullPtrLiteral
	// ExprDeclRef names a variable.
	ExprDeclRef
	// ExprMember is base.field or base->field.
	ExprMember
	ExprUnary
	ExprSubscript
	ExprBinary
	// ExprParen, ExprExprWithCleanups, ExprMaterializeTemporary,
	// ExprDefaultArg and ExprDefaultInit wrap one inner expression.
	ExprParen
	ExprExprWithCleanups
	ExprMaterializeTemporary
	ExprDefaultArg
	ExprDefaultInit
	// ExprConstant carries a folded value next to its source expression.
	ExprConstant
	ExprCast
	// ExprInitList is a braced initializer; ExprParenListInit is the
	// parenthesized aggregate form.
	ExprInitList
	ExprParenListInit
	// ExprImplicitValueInit value-initializes its type.
	ExprImplicitValueInit
	// ExprNoInit keeps the base value inside a designated update.
	ExprNoInit
	ExprDesignatedInitUpdate
	ExprConstruct
	ExprCall
	ExprConditional
	// ExprBinaryConditional is the GNU a ?: b form. Its Opaque value binds a.
	ExprBinaryConditional
	ExprOpaqueValue
	ExprComma
	ExprAssign
	ExprCompare3Way
	ExprVAArg
)

func (k ExprKind) String() string {
	switch k {
	case ExprIntLiteral:
		return "IntLiteral"
	case ExprFloatLiteral:
		return "FloatLiteral"
	case ExprBoolLiteral:
		return "BoolLiteral"
	case ExprCharLiteral:
		return "CharLiteral"
	case ExprStringLiteral:
		return "StringLiteral"
	case ExprNullPtrLiteral:
		return "NullPtrLiteral"
	case ExprDeclRef:
		return "DeclRef"
	case ExprMember:
		return "Member"
	case ExprUnary:
		return "Unary"
	case ExprSubscript:
		return "Subscript"
	case ExprBinary:
		return "Binary"
	case ExprParen:
		return "Paren"
	case ExprExprWithCleanups:
		return "ExprWithCleanups"
	case ExprMaterializeTemporary:
		return "MaterializeTemporary"
	case ExprDefaultArg:
		return "DefaultArg"
	case ExprDefaultInit:
		return "DefaultInit"
	case ExprConstant:
		return "Constant"
	case ExprCast:
		return "Cast"
	case ExprInitList:
		return "InitList"
	case ExprParenListInit:
		return "ParenListInit"
	case ExprImplicitValueInit:
		return "ImplicitValueInit"
	case ExprNoInit:
		return "NoInit"
	case ExprDesignatedInitUpdate:
		return "DesignatedInitUpdate"
	case ExprConstruct:
		return "Construct"
	case ExprCall:
		return "Call"
	case ExprConditional:
		return "Conditional"
	case ExprBinaryConditional:
		return "BinaryConditional"
	case ExprOpaqueValue:
		return "OpaqueValue"
	case ExprComma:
		return "Comma"
	case ExprAssign:
		return "Assign"
	case ExprCompare3Way:
		return "Compare3Way"
	case ExprVAArg:
		return "VAArg"
	default:
		return "Invalid"
	}
}

// Expr is a typed expression node. Type is always resolved.
type Expr struct {
	Kind ExprKind
	Type types.TypeID
	Span source.Span
	Data ExprData
}

// ExprData is the kind-specific payload of an expression.
type ExprData interface {
	exprData()
}

type IntLiteralData struct{ Value int64 }

func (IntLiteralData) exprData() {}

type FloatLiteralData struct{ Value float64 }

func (FloatLiteralData) exprData() {}

type BoolLiteralData struct{ Value bool }

func (BoolLiteralData) exprData() {}

type CharLiteralData struct{ Value int64 }

func (CharLiteralData) exprData() {}

type StringLiteralData struct{ Value string }

func (StringLiteralData) exprData() {}

type NullPtrData struct{}

func (NullPtrData) exprData() {}

// DeclRefData refers to a variable declared elsewhere in the unit.
type DeclRefData struct{ Var *VarDecl }

func (DeclRefData) exprData() {}

type MemberData struct {
	Base  *Expr
	Field *types.FieldDecl
	Arrow bool
}

func (MemberData) exprData() {}

// UnaryOp enumerates unary operators.
type UnaryOp uint8

const (
	UnaryDeref UnaryOp = iota
	UnaryAddrOf
	UnaryMinus
	UnaryNot
	UnaryLNot
)

type UnaryData struct {
	Op      UnaryOp
	Operand *Expr
}

func (UnaryData) exprData() {}

type SubscriptData struct {
	Base  *Expr
	Index *Expr
}

func (SubscriptData) exprData() {}

// BinaryOp enumerates scalar binary operators.
type BinaryOp uint8

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
	BinEq
	BinNe
	BinLt
	BinGt
	BinLe
	BinGe
)

// IsComparison reports whether op yields a truth value.
func (op BinaryOp) IsComparison() bool { return op >= BinEq }

// BinaryData is shared by ExprBinary, ExprComma and ExprAssign.
type BinaryData struct {
	Op  BinaryOp
	LHS *Expr
	RHS *Expr
}

func (BinaryData) exprData() {}

// WrapData is the payload of the transparent wrapper kinds.
type WrapData struct{ Inner *Expr }

func (WrapData) exprData() {}

type ConstantData struct {
	Inner *Expr
	Value *APValue
}

func (ConstantData) exprData() {}

// CastKind enumerates conversions.
type CastKind uint8

const (
	CastNoOp CastKind = iota
	CastLValueToRValue
	CastLValueToRValueBitCast
	CastIntegral
	CastIntegralToBoolean
	CastIntegralToFloating
	CastFloatingToIntegral
	CastFloatingToBoolean
	CastFloating
	CastBitCast
	CastNullToPointer
	CastNullToMemberPointer
	CastPointerToIntegral
	CastPointerToBoolean
	CastIntegralToPointer
	CastArrayToPointerDecay
	CastToUnion
	CastDerivedToBase
	CastUncheckedDerivedToBase
	CastBaseToDerived
	CastDynamic
	CastConstructorConversion
	CastUserDefinedConversion
	CastAtomicToNonAtomic
	CastNonAtomicToAtomic
	CastReinterpretMemberPointer
)

func (k CastKind) String() string {
	switch k {
	case CastNoOp:
		return "NoOp"
	case CastLValueToRValue:
		return "LValueToRValue"
	case CastLValueToRValueBitCast:
		return "LValueToRValueBitCast"
	case CastIntegral:
		return "IntegralCast"
	case CastIntegralToBoolean:
		return "IntegralToBoolean"
	case CastIntegralToFloating:
		return "IntegralToFloating"
	case CastFloatingToIntegral:
		return "FloatingToIntegral"
	case CastFloatingToBoolean:
		return "FloatingToBoolean"
	case CastFloating:
		return "FloatingCast"
	case CastBitCast:
		return "BitCast"
	case CastNullToPointer:
		return "NullToPointer"
	case CastNullToMemberPointer:
		return "NullToMemberPointer"
	case CastPointerToIntegral:
		return "PointerToIntegral"
	case CastPointerToBoolean:
		return "PointerToBoolean"
	case CastIntegralToPointer:
		return "IntegralToPointer"
	case CastArrayToPointerDecay:
		return "ArrayToPointerDecay"
	case CastToUnion:
		return "ToUnion"
	case CastDerivedToBase:
		return "DerivedToBase"
	case CastUncheckedDerivedToBase:
		return "UncheckedDerivedToBase"
	case CastBaseToDerived:
		return "BaseToDerived"
	case CastDynamic:
		return "Dynamic"
	case CastConstructorConversion:
		return "ConstructorConversion"
	case CastUserDefinedConversion:
		return "UserDefinedConversion"
	case CastAtomicToNonAtomic:
		return "AtomicToNonAtomic"
	case CastNonAtomicToAtomic:
		return "NonAtomicToAtomic"
	case CastReinterpretMemberPointer:
		return "ReinterpretMemberPointer"
	}
	return "Unknown"
}

type CastData struct {
	Kind    CastKind
	Operand *Expr
}

func (CastData) exprData() {}

// InitListData is the payload of ExprInitList and ExprParenListInit.
type InitListData struct {
	// Inits holds one element per base class, in declaration order,
	// followed by one per named field.
	Inits []*Expr
	// Filler initializes array elements past len(Inits). Nil means
	// value-initialization.
	Filler *Expr
	// UnionField is the member a union initializer designates; nil
	// zero-initializes the union.
	UnionField *types.FieldDecl
	// Transparent lists forward their single element unchanged.
	Transparent bool
}

func (InitListData) exprData() {}

type DesignatedInitUpdateData struct {
	Base    *Expr
	Updater *Expr // an ExprInitList; ExprNoInit elements keep the base
}

func (DesignatedInitUpdateData) exprData() {}

type ConstructData struct {
	Ctor *types.CtorDecl
	Args []*Expr
	// ZeroInit zero-fills the object before running the constructor.
	ZeroInit bool
}

func (ConstructData) exprData() {}

type CallData struct {
	Callee string
	Args   []*Expr
}

func (CallData) exprData() {}

// ConditionalData is the payload of ExprConditional and
// ExprBinaryConditional. For the binary form Opaque is the shared
// condition value and Then refers to it.
type ConditionalData struct {
	Cond   *Expr
	Then   *Expr
	Else   *Expr
	Opaque *Expr
}

func (ConditionalData) exprData() {}

// OpaqueValueData refers to a value computed once elsewhere.
type OpaqueValueData struct{ Source *Expr }

func (OpaqueValueData) exprData() {}

// Compare3WayData is a <=> whose result is a comparison-category record
// holding a single integer.
type Compare3WayData struct {
	LHS     *Expr
	RHS     *Expr
	Partial bool // partial ordering, with an unordered outcome
}

func (Compare3WayData) exprData() {}

type VAArgData struct{ List *Expr }

func (VAArgData) exprData() {}
