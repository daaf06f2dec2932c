package ast

import "cirgen/internal/types"

// IgnoreParens strips parentheses.
func (e *Expr) IgnoreParens() *Expr {
	for e != nil && e.Kind == ExprParen {
		e = e.Data.(WrapData).Inner
	}
	return e
}

// IgnoreWrappers strips every transparent wrapper kind.
func (e *Expr) IgnoreWrappers() *Expr {
	for e != nil {
		switch e.Kind {
		case ExprParen, ExprExprWithCleanups, ExprMaterializeTemporary, ExprDefaultArg, ExprDefaultInit:
			e = e.Data.(WrapData).Inner
		case ExprConstant:
			e = e.Data.(ConstantData).Inner
		default:
			return e
		}
	}
	return e
}

// InitList returns the payload of an initializer list, or false.
func (e *Expr) InitList() (InitListData, bool) {
	if e == nil || (e.Kind != ExprInitList && e.Kind != ExprParenListInit) {
		return InitListData{}, false
	}
	d, _ := e.Data.(InitListData)
	return d, true
}

// Children returns the direct sub-expressions of e in evaluation order.
func (e *Expr) Children() []*Expr {
	var out []*Expr
	add := func(xs ...*Expr) {
		for _, x := range xs {
			if x != nil {
				out = append(out, x)
			}
		}
	}
	switch d := e.Data.(type) {
	case MemberData:
		add(d.Base)
	case UnaryData:
		add(d.Operand)
	case SubscriptData:
		add(d.Base, d.Index)
	case BinaryData:
		add(d.LHS, d.RHS)
	case WrapData:
		add(d.Inner)
	case ConstantData:
		add(d.Inner)
	case CastData:
		add(d.Operand)
	case InitListData:
		add(d.Inits...)
		add(d.Filler)
	case DesignatedInitUpdateData:
		add(d.Base, d.Updater)
	case ConstructData:
		add(d.Args...)
	case CallData:
		add(d.Args...)
	case ConditionalData:
		if d.Opaque != nil {
			add(d.Opaque.Data.(OpaqueValueData).Source)
		}
		add(d.Cond, d.Then, d.Else)
	case Compare3WayData:
		add(d.LHS, d.RHS)
	case VAArgData:
		add(d.List)
	}
	return out
}

// HasSideEffects conservatively reports whether evaluating e may have an
// observable effect beyond producing its value.
func HasSideEffects(in *types.Interner, e *Expr) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ExprCall, ExprAssign, ExprVAArg:
		return true
	case ExprConstruct:
		if c := e.Data.(ConstructData).Ctor; c == nil || !c.Trivial {
			return true
		}
	case ExprDeclRef:
		return in != nil && in.IsVolatile(e.Type)
	case ExprOpaqueValue:
		return false
	}
	for _, c := range e.Children() {
		if HasSideEffects(in, c) {
			return true
		}
	}
	return false
}
