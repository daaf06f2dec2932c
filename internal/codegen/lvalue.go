package codegen

import (
	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/diag"
	"cirgen/internal/types"
)

// emitLValue computes the address designated by e.
func (g *funcGen) emitLValue(e *ast.Expr) (LValue, error) {
	m := g.m
	switch e.Kind {
	case ast.ExprParen, ast.ExprDefaultArg, ast.ExprDefaultInit:
		return g.emitLValue(e.Data.(ast.WrapData).Inner)

	case ast.ExprExprWithCleanups:
		// The l-value outlives the full-expression; its temporaries stay
		// on the cleanup stack for the enclosing statement.
		return g.emitLValue(e.Data.(ast.WrapData).Inner)

	case ast.ExprConstant:
		return g.emitLValue(e.Data.(ast.ConstantData).Inner)

	case ast.ExprDeclRef:
		v := e.Data.(ast.DeclRefData).Var
		if v == nil {
			return LValue{}, m.reject(diag.EmtUnknownDecl, g.span, "reference to an unnamed variable")
		}
		addr, ok := g.locals[v]
		if !ok {
			if !v.Global {
				return LValue{}, m.reject(diag.EmtUnknownDecl, g.span, "reference to undeclared variable "+v.Name)
			}
			var err error
			if addr, err = g.globalAddr(v); err != nil {
				return LValue{}, err
			}
		}
		return LValue{Addr: addr, Type: e.Type, Volatile: m.src.IsVolatile(e.Type)}, nil

	case ast.ExprMember:
		d := e.Data.(ast.MemberData)
		var base Address
		volatile := false
		if d.Arrow {
			p, err := g.emitScalar(d.Base)
			if err != nil {
				return LValue{}, err
			}
			pointee := m.src.Elem(d.Base.Type)
			base = g.withElem(Address{Ptr: p, Elem: g.b.PtrElem(p), Align: m.oracle.AlignOf(pointee)}, m.Types.ConvertType(pointee))
			volatile = m.src.IsVolatile(pointee)
		} else {
			lv, err := g.emitLValue(d.Base)
			if err != nil {
				return LValue{}, err
			}
			base, volatile = lv.Addr, lv.Volatile
		}
		return g.emitLValueForField(base, d.Field, volatile), nil

	case ast.ExprUnary:
		d := e.Data.(ast.UnaryData)
		if d.Op != ast.UnaryDeref {
			break
		}
		p, err := g.emitScalar(d.Operand)
		if err != nil {
			return LValue{}, err
		}
		ty := m.Types.ConvertType(e.Type)
		addr := g.withElem(Address{Ptr: p, Elem: g.b.PtrElem(p), Align: m.oracle.AlignOf(e.Type)}, ty)
		return LValue{Addr: addr, Type: e.Type, Volatile: m.src.IsVolatile(e.Type)}, nil

	case ast.ExprSubscript:
		return g.emitSubscript(e)

	case ast.ExprStringLiteral:
		gl, err := m.stringGlobal(e.Data.(ast.StringLiteralData).Value, e.Type)
		if err != nil {
			return LValue{}, err
		}
		return LValue{Addr: g.addrOfGlobal(gl, e.Type), Type: e.Type}, nil

	case ast.ExprOpaqueValue:
		if b, ok := g.opaques[e]; ok && b.agg {
			return b.lv, nil
		}
		return LValue{}, m.reject(diag.EmtNotAggregate, g.span, "unbound opaque value")

	case ast.ExprComma:
		d := e.Data.(ast.BinaryData)
		if err := g.emitIgnored(d.LHS); err != nil {
			return LValue{}, err
		}
		return g.emitLValue(d.RHS)

	case ast.ExprMaterializeTemporary:
		inner := e.Data.(ast.WrapData).Inner
		return g.materializeTemporary(inner, e.Type, true)
	}

	// Any other aggregate is computed into a temporary.
	if m.src.EvaluationKind(e.Type) == types.EvalAggregate {
		return g.materializeTemporary(e, e.Type, true)
	}
	return LValue{}, m.reject(diag.EmtNotAggregate, g.span, "expression is not an l-value: "+e.Kind.String())
}

// materializeTemporary evaluates e into a fresh temporary. The temporary
// is destroyed at the end of the full-expression when destroy is set.
func (g *funcGen) materializeTemporary(e *ast.Expr, t types.TypeID, destroy bool) (LValue, error) {
	addr := g.createTemp(t, "ref.tmp")
	lv := LValue{Addr: addr, Type: t}
	slot := AggValueSlot{Addr: addr, ExternallyDestructed: true}
	if err := g.emitInitializerTo(e, lv, slot); err != nil {
		return LValue{}, err
	}
	if destroy && g.m.src.Destruction(t) != types.DestructNone {
		g.pushDestroy(addr, t)
	}
	return lv, nil
}

func (g *funcGen) emitSubscript(e *ast.Expr) (LValue, error) {
	m := g.m
	d := e.Data.(ast.SubscriptData)
	var base cir.Value
	if m.src.IsArray(d.Base.Type) {
		lv, err := g.emitLValue(d.Base)
		if err != nil {
			return LValue{}, err
		}
		base = g.b.ArrayDecay(lv.Addr.Ptr)
	} else {
		p, err := g.emitScalar(d.Base)
		if err != nil {
			return LValue{}, err
		}
		base = p
	}
	idx, err := g.emitScalar(d.Index)
	if err != nil {
		return LValue{}, err
	}
	ty := m.Types.ConvertType(e.Type)
	p := g.b.PtrStride(base, idx)
	addr := g.withElem(Address{Ptr: p, Elem: g.b.PtrElem(p), Align: m.oracle.AlignOf(e.Type)}, ty)
	return LValue{Addr: addr, Type: e.Type, Volatile: m.src.IsVolatile(e.Type)}, nil
}

// emitLValueForField addresses field f of the record at base. Bit-fields
// address their storage unit; fields without storage alias the record
// start.
func (g *funcGen) emitLValueForField(base Address, f *types.FieldDecl, volatile bool) LValue {
	m := g.m
	rl := m.Types.RecordLayout(f.Parent)
	src := m.oracle.MustRecord(f.Parent)
	volatile = volatile || m.src.IsVolatile(f.Type)

	if f.IsBitField() {
		info, ok := rl.BitField(f)
		if !ok {
			panic("codegen: bit-field without access info: " + f.String())
		}
		p := g.b.GetMember(base.Ptr, rl.MustFieldIndex(f), f.Name)
		addr := g.withElem(Address{Ptr: p, Elem: g.b.PtrElem(p), Align: alignAt(base.Align, info.StorageOffset)}, info.StorageType)
		return LValue{Addr: addr, Type: f.Type, Volatile: volatile, BitField: &info}
	}

	ty := m.Types.ConvertType(f.Type)
	align := alignAt(base.Align, src.FieldOffset(f)/8)
	idx, ok := rl.FieldIndex(f)
	if !ok {
		addr := g.withElem(base, ty)
		addr.Align = align
		return LValue{Addr: addr, Type: f.Type, Volatile: volatile}
	}
	p := g.b.GetMember(base.Ptr, idx, f.Name)
	addr := g.withElem(Address{Ptr: p, Elem: g.b.PtrElem(p), Align: align}, ty)
	return LValue{Addr: addr, Type: f.Type, Volatile: volatile}
}

// baseAddr addresses the non-virtual base subobject brd of the record at
// derived.
func (g *funcGen) baseAddr(derived Address, rd, brd *types.RecordDecl) (Address, bool) {
	rl := g.m.Types.RecordLayout(rd)
	ty := g.m.Types.BaseSubobjectType(brd)
	idx, ok := rl.NonVirtualBaseIndex(brd)
	if !ok {
		return g.withElem(derived, ty), false
	}
	off := g.m.oracle.MustRecord(rd).BaseOffset(brd)
	p := g.b.GetMember(derived.Ptr, idx, brd.Name)
	return g.withElem(Address{Ptr: p, Elem: g.b.PtrElem(p), Align: alignAt(derived.Align, off)}, ty), true
}

func (g *funcGen) emitLoadOfLValue(lv LValue) cir.Value {
	if lv.IsBitField() {
		return g.b.GetBitfield(g.m.Types.ConvertType(lv.Type), lv.Addr.Ptr, lv.BitField.Access(), lv.Addr.Align, lv.Volatile)
	}
	return g.b.Load(lv.Addr.Ptr, lv.Addr.Align, lv.Volatile)
}

func (g *funcGen) emitStoreThroughLValue(v cir.Value, lv LValue) {
	if lv.IsBitField() {
		g.b.SetBitfield(g.m.Types.ConvertType(lv.Type), lv.Addr.Ptr, v, lv.BitField.Access(), lv.Addr.Align, lv.Volatile)
		return
	}
	g.b.Store(v, lv.Addr.Ptr, lv.Addr.Align, lv.Volatile)
}
