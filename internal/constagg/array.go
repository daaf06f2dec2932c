package constagg

import (
	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// DefaultTrailingZeroMin is the number of trailing zero elements from
// which an array constant is emitted as a prefix plus a zero tail. The
// prefix is itself an array only when it has that many elements too.
const DefaultTrailingZeroMin int64 = 8

// emitArrayConstant builds an array of bound elements from elems followed
// by filler. common is the type shared by every element, NoType if they
// differ; mixed element types produce a packed anonymous record.
func emitArrayConstant(c *cir.Context, trailingZeroMin int64, desired, common cir.TypeID, bound int64, elems []cir.AttrID, filler cir.AttrID) cir.AttrID {
	nonzero := bound
	if int64(len(elems)) < nonzero && (filler == cir.NoAttr || c.IsNullValue(filler)) {
		nonzero = int64(len(elems))
	}
	if nonzero == int64(len(elems)) {
		for nonzero > 0 && c.IsNullValue(elems[nonzero-1]) {
			nonzero--
		}
	}
	if nonzero == 0 {
		return c.ZeroAttr(desired)
	}

	trailing := bound - nonzero
	if trailing >= trailingZeroMin {
		fillerTy := common
		if fillerTy == cir.NoType {
			fillerTy = c.Type(desired).Elem
		}
		zeros := c.ZeroAttr(c.Array(fillerTy, trailing))
		var out []cir.AttrID
		// A short nonzero prefix stays as separate elements.
		if common != cir.NoType && nonzero >= trailingZeroMin {
			out = []cir.AttrID{c.ConstArrayAttr(c.Array(common, nonzero), elems[:nonzero]), zeros}
		} else {
			out = append(append(out, elems[:nonzero]...), zeros)
		}
		return c.AnonConstRecord(out, true)
	}

	if int64(len(elems)) != bound {
		if filler == cir.NoAttr {
			filler = c.ZeroAttr(c.Type(desired).Elem)
		}
		if common != cir.NoType && c.AttrType(filler) != common {
			common = cir.NoType
		}
		full := make([]cir.AttrID, bound)
		copy(full, elems)
		for i := int64(len(elems)); i < bound; i++ {
			full[i] = filler
		}
		elems = full
	}

	if common != cir.NoType {
		return c.ConstArrayAttr(c.Array(common, bound), elems)
	}
	return c.AnonConstRecord(elems, true)
}

// emitArrayInitList folds an array init list.
func (em *Emitter) emitArrayInitList(e *ast.Expr, t types.TypeID) cir.AttrID {
	d, _ := e.InitList()
	at := em.src.MustLookup(t)
	elemT := at.Elem
	bound := at.Count
	if bound == types.IncompleteLength {
		bound = int64(len(d.Inits))
	}

	var filler cir.AttrID
	switch {
	case d.Filler != nil:
		if filler = em.TryEmitPrivateForMemory(d.Filler, elemT); filler == cir.NoAttr {
			return cir.NoAttr
		}
	case int64(len(d.Inits)) < bound:
		filler = em.EmitNullForMemory(elemT)
	}

	elems := make([]cir.AttrID, 0, len(d.Inits))
	common := cir.NoType
	for i, init := range d.Inits {
		c := em.TryEmitPrivateForMemory(init, elemT)
		if c == cir.NoAttr {
			return cir.NoAttr
		}
		switch ct := em.ctx.AttrType(c); {
		case i == 0:
			common = ct
		case ct != common:
			common = cir.NoType
		}
		elems = append(elems, c)
	}
	if len(elems) == 0 && filler != cir.NoAttr {
		common = em.ctx.AttrType(filler)
	}

	desired := em.ctx.Array(em.Types.ConvertType(elemT), bound)
	return emitArrayConstant(em.ctx, em.Opts.TrailingZeroMin, desired, common, bound, elems, filler)
}

// emitStringLiteral builds a char array from s, truncated or zero padded
// to the array bound.
func (em *Emitter) emitStringLiteral(s string, t types.TypeID) cir.AttrID {
	at := em.src.MustLookup(t)
	if at.Kind != types.KindArray {
		return cir.NoAttr
	}
	bound := at.Count
	if bound == types.IncompleteLength {
		bound = int64(len(s)) + 1
	}
	elemTy := em.Types.ConvertType(at.Elem)
	if em.ctx.Kind(elemTy) != cir.TypeInt {
		return cir.NoAttr
	}
	elems := make([]cir.AttrID, 0, min(bound, int64(len(s))))
	for i := 0; i < len(s) && int64(i) < bound; i++ {
		elems = append(elems, em.ctx.IntAttrInt64(elemTy, int64(s[i])))
	}
	desired := em.ctx.Array(elemTy, bound)
	return emitArrayConstant(em.ctx, em.Opts.TrailingZeroMin, desired, elemTy, bound, elems, em.ctx.ZeroAttr(elemTy))
}

// updateDesignated applies a designated initializer list to the object of
// type t at byte offset off.
func (em *Emitter) updateDesignated(b *AggregateBuilder, off int64, t types.TypeID, updater *ast.Expr) bool {
	if rd := em.src.Record(t); rd != nil {
		rb := recordBuilder{em: em, b: b}
		return rb.buildInitList(updater, rd, off, true)
	}
	at := em.src.MustLookup(t)
	if at.Kind != types.KindArray || at.Count == types.IncompleteLength {
		return false
	}
	d, ok := updater.InitList()
	if !ok {
		return false
	}
	elemT := at.Elem
	elemSize := em.oracle.SizeOf(elemT)
	elemTy := em.Types.ConvertType(elemT)

	var filler cir.AttrID
	if d.Filler != nil && d.Filler.Kind != ast.ExprNoInit {
		if filler = em.TryEmitPrivateForMemory(d.Filler, elemT); filler == cir.NoAttr {
			return false
		}
	}
	n := int64(len(d.Inits))
	if filler != cir.NoAttr {
		n = at.Count
	}

	for i := range n {
		pos := off + i*elemSize
		var init *ast.Expr
		if i < int64(len(d.Inits)) {
			init = d.Inits[i]
		}
		switch {
		case init == nil && filler != cir.NoAttr:
			if !b.Add(filler, pos, true) {
				return false
			}
		case init == nil || init.Kind == ast.ExprNoInit:
		case isInitList(init):
			if !em.updateDesignated(b, pos, elemT, init) {
				return false
			}
			b.Condense(pos, elemTy)
		default:
			c := em.TryEmitPrivateForMemory(init, elemT)
			if c == cir.NoAttr || !b.Add(c, pos, true) {
				return false
			}
		}
	}
	return true
}

func isInitList(e *ast.Expr) bool {
	_, ok := e.InitList()
	return ok
}
