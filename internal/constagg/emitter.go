package constagg

import (
	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/layout"
	"cirgen/internal/recordlayout"
	"cirgen/internal/trace"
	"cirgen/internal/types"
)

// Options tunes the shape of emitted constants.
type Options struct {
	// TrailingZeroMin is the number of trailing zero elements from which
	// an array constant is emitted as a prefix plus a zero tail.
	TrailingZeroMin int64
}

// DefaultOptions returns the standard options.
func DefaultOptions() Options {
	return Options{TrailingZeroMin: DefaultTrailingZeroMin}
}

// Emitter folds initializers into constant attributes. A nil result
// (cir.NoAttr) means the initializer is not a constant and must be
// emitted as code.
type Emitter struct {
	Types  *recordlayout.Types
	Opts   Options
	Tracer trace.Tracer

	ctx    *cir.Context
	src    *types.Interner
	oracle *layout.Engine
}

// NewEmitter creates an emitter over ts.
func NewEmitter(ts *recordlayout.Types, opts Options) *Emitter {
	if opts.TrailingZeroMin <= 0 {
		opts.TrailingZeroMin = DefaultTrailingZeroMin
	}
	return &Emitter{
		Types: ts, Opts: opts, Tracer: trace.Nop,
		ctx: ts.Ctx, src: ts.Src, oracle: ts.Oracle,
	}
}

func (em *Emitter) newBuilder() *AggregateBuilder {
	b := NewAggregateBuilder(em.ctx, em.Types.DL)
	b.TrailingZeroMin = em.Opts.TrailingZeroMin
	return b
}

// TryEmitForInitializer folds the initializer of v. A variable without
// an initializer gets its null constant.
func (em *Emitter) TryEmitForInitializer(v *ast.VarDecl) cir.AttrID {
	span := trace.Begin(em.Tracer, trace.ScopeNode, "const "+v.Name, 0)
	c := em.tryEmitForInitializer(v)
	if c == cir.NoAttr {
		span.End("dynamic")
	} else {
		span.End("folded")
	}
	return c
}

func (em *Emitter) tryEmitForInitializer(v *ast.VarDecl) cir.AttrID {
	if init := v.Init.IgnoreWrappers(); init != nil && init.Kind == ast.ExprConstruct {
		d := init.Data.(ast.ConstructData)
		if d.Ctor != nil && d.Ctor.Trivial && len(d.Args) == 0 {
			return em.EmitNullConstant(v.Type)
		}
	}
	if v.Evaluated != nil {
		if c := em.TryEmitAPValue(v.Evaluated, v.Type); c != cir.NoAttr {
			return c
		}
	}
	if v.Init == nil {
		return em.EmitNullConstant(v.Type)
	}
	return em.TryEmitPrivateForMemory(v.Init, v.Type)
}

// TryEmitPrivateForMemory folds e as a value of type t stored in memory.
func (em *Emitter) TryEmitPrivateForMemory(e *ast.Expr, t types.TypeID) cir.AttrID {
	if c := em.visit(e, t); c != cir.NoAttr {
		return c
	}
	if ast.HasSideEffects(em.src, e) {
		return cir.NoAttr
	}
	v, ok := em.evaluate(e)
	if !ok {
		return cir.NoAttr
	}
	return em.TryEmitAPValue(&v, t)
}

// visit folds aggregate-shaped expressions structurally. Scalars fall
// through to the evaluator.
func (em *Emitter) visit(e *ast.Expr, t types.TypeID) cir.AttrID {
	if e == nil {
		return cir.NoAttr
	}
	switch e.Kind {
	case ast.ExprParen, ast.ExprExprWithCleanups, ast.ExprMaterializeTemporary,
		ast.ExprDefaultArg, ast.ExprDefaultInit:
		return em.visit(e.Data.(ast.WrapData).Inner, t)

	case ast.ExprConstant:
		d := e.Data.(ast.ConstantData)
		if d.Value != nil {
			if c := em.TryEmitAPValue(d.Value, t); c != cir.NoAttr {
				return c
			}
		}
		return em.visit(d.Inner, t)

	case ast.ExprCast:
		d := e.Data.(ast.CastData)
		switch d.Kind {
		case ast.CastToUnion:
			return em.emitToUnion(d.Operand, t)
		case ast.CastNoOp, ast.CastLValueToRValue, ast.CastConstructorConversion,
			ast.CastUserDefinedConversion, ast.CastAtomicToNonAtomic, ast.CastNonAtomicToAtomic:
			return em.visit(d.Operand, t)
		case ast.CastNullToPointer:
			return em.ctx.NullPtrAttr(em.Types.ConvertType(t))
		case ast.CastNullToMemberPointer:
			return em.EmitNullConstant(t)
		}
		return cir.NoAttr

	case ast.ExprInitList, ast.ExprParenListInit:
		return em.visitInitList(e, t)

	case ast.ExprImplicitValueInit:
		return em.EmitNullForMemory(t)

	case ast.ExprDesignatedInitUpdate:
		return em.emitDesignatedUpdate(e, t)

	case ast.ExprConstruct:
		d := e.Data.(ast.ConstructData)
		if d.Ctor == nil || !d.Ctor.Trivial {
			return cir.NoAttr
		}
		if len(d.Args) == 0 {
			return em.EmitNullConstant(t)
		}
		// A trivial copy of a temporary is the temporary.
		if arg := d.Args[0].IgnoreParens(); arg.Kind == ast.ExprMaterializeTemporary {
			return em.visit(arg.Data.(ast.WrapData).Inner, t)
		}
		return cir.NoAttr

	case ast.ExprStringLiteral:
		return em.emitStringLiteral(e.Data.(ast.StringLiteralData).Value, t)

	case ast.ExprNullPtrLiteral:
		return em.ctx.NullPtrAttr(em.Types.ConvertType(t))
	}
	return cir.NoAttr
}

func (em *Emitter) visitInitList(e *ast.Expr, t types.TypeID) cir.AttrID {
	d, _ := e.InitList()
	if d.Transparent && len(d.Inits) == 1 {
		return em.visit(d.Inits[0], t)
	}
	switch em.src.Kind(t) {
	case types.KindArray:
		return em.emitArrayInitList(e, t)
	case types.KindRecord:
		return em.emitRecordInitList(e, t)
	case types.KindVector:
		return em.emitVectorInitList(e, t)
	}
	// Braced scalar.
	switch len(d.Inits) {
	case 0:
		return em.EmitNullForMemory(t)
	case 1:
		return em.TryEmitPrivateForMemory(d.Inits[0], t)
	}
	return cir.NoAttr
}

func (em *Emitter) emitVectorInitList(e *ast.Expr, t types.TypeID) cir.AttrID {
	d, _ := e.InitList()
	vt := em.src.MustLookup(t)
	if int64(len(d.Inits)) > vt.Count {
		return cir.NoAttr
	}
	elems := make([]cir.AttrID, vt.Count)
	for i := range elems {
		if i >= len(d.Inits) {
			elems[i] = em.EmitNullForMemory(vt.Elem)
			continue
		}
		if em.src.Kind(d.Inits[i].Type) == types.KindVector {
			return cir.NoAttr
		}
		if elems[i] = em.TryEmitPrivateForMemory(d.Inits[i], vt.Elem); elems[i] == cir.NoAttr {
			return cir.NoAttr
		}
	}
	return em.ctx.ConstVectorAttr(em.Types.ConvertType(t), elems)
}
