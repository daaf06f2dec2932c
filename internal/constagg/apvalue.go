package constagg

import (
	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// TryEmitAPValue emits an evaluated value as a constant of type t.
func (em *Emitter) TryEmitAPValue(v *ast.APValue, t types.TypeID) cir.AttrID {
	c := em.ctx
	switch v.Kind {
	case ast.APNone, ast.APIndeterminate:
		return c.UndefAttr(em.Types.ConvertType(t))

	case ast.APInt:
		ty := em.Types.ConvertType(t)
		switch c.Kind(ty) {
		case cir.TypeBool:
			return c.BoolAttr(v.Int.Sign() != 0)
		case cir.TypeInt:
			return c.IntAttr(ty, v.Int)
		case cir.TypePointer:
			if v.Int.Sign() == 0 && em.oracle.Target.NullPointerIsZero {
				return c.NullPtrAttr(ty)
			}
		}
		return cir.NoAttr

	case ast.APFloat:
		ty := em.Types.ConvertType(t)
		if c.Kind(ty) != cir.TypeFloat {
			return cir.NoAttr
		}
		return c.FPAttr(ty, v.Float)

	case ast.APLValue:
		ty := em.Types.ConvertType(t)
		if c.Kind(ty) != cir.TypePointer {
			return cir.NoAttr
		}
		if v.Base == "" {
			if v.Offset == 0 {
				return c.NullPtrAttr(ty)
			}
			return cir.NoAttr
		}
		var indices []int64
		if v.Offset != 0 {
			indices = []int64{v.Offset}
		}
		return c.GlobalViewAttr(ty, v.Base, indices)

	case ast.APMemberPointer:
		return em.emitMemberPointer(v, t)

	case ast.APStruct, ast.APUnion:
		return em.emitRecordAPValue(v, t)

	case ast.APArray:
		return em.emitArrayAPValue(v, t)

	case ast.APVector:
		vt := em.src.MustLookup(t)
		if vt.Kind != types.KindVector || int64(len(v.Elems)) != vt.Count {
			return cir.NoAttr
		}
		elems := make([]cir.AttrID, len(v.Elems))
		for i := range v.Elems {
			if elems[i] = em.TryEmitAPValue(&v.Elems[i], vt.Elem); elems[i] == cir.NoAttr {
				return cir.NoAttr
			}
		}
		return c.ConstVectorAttr(em.Types.ConvertType(t), elems)
	}
	return cir.NoAttr
}

func (em *Emitter) emitArrayAPValue(v *ast.APValue, t types.TypeID) cir.AttrID {
	at := em.src.MustLookup(t)
	if at.Kind != types.KindArray {
		return cir.NoAttr
	}
	elemT := at.Elem
	bound := at.Count
	if bound == types.IncompleteLength {
		bound = max(v.Size, int64(len(v.Elems)))
	}

	var filler cir.AttrID
	if v.Filler != nil && int64(len(v.Elems)) < bound {
		if filler = em.TryEmitAPValue(v.Filler, elemT); filler == cir.NoAttr {
			return cir.NoAttr
		}
	}

	elems := make([]cir.AttrID, 0, len(v.Elems))
	common := cir.NoType
	for i := range v.Elems {
		c := em.TryEmitAPValue(&v.Elems[i], elemT)
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

// emitMemberPointer emits an Itanium data member pointer: the byte offset
// of the member in the class, -1 for null.
func (em *Emitter) emitMemberPointer(v *ast.APValue, t types.TypeID) cir.AttrID {
	ty := em.Types.ConvertType(t)
	if v.Member == nil {
		return em.ctx.IntAttrInt64(ty, -1)
	}
	f := v.Member
	off := em.oracle.MustRecord(f.Parent).FieldOffset(f) / 8
	mp := em.src.MustLookup(t)
	if cls := em.src.Record(mp.Class); cls != nil && cls != f.Parent {
		baseOff, ok := em.baseOffset(cls, f.Parent)
		if !ok {
			return cir.NoAttr
		}
		off += baseOff
	}
	return em.ctx.IntAttrInt64(ty, off)
}

// baseOffset finds the byte offset of a non-virtual base inside rd.
func (em *Emitter) baseOffset(rd, base *types.RecordDecl) (int64, bool) {
	src := em.oracle.MustRecord(rd)
	for _, bs := range rd.Bases {
		if bs.Virtual {
			continue
		}
		brd := em.src.Record(bs.Type)
		if brd == base {
			return src.BaseOffset(brd), true
		}
		if off, ok := em.baseOffset(brd, base); ok {
			return src.BaseOffset(brd) + off, true
		}
	}
	return 0, false
}
