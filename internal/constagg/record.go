package constagg

import (
	"cmp"
	"math/big"
	"slices"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// recordBuilder places the fields of one record constant into an
// AggregateBuilder. Offsets passed around are absolute byte offsets of
// the subobject being built.
type recordBuilder struct {
	em *Emitter
	b  *AggregateBuilder
}

func (rb *recordBuilder) appendField(c cir.AttrID, offset int64, allowOverwrite bool) bool {
	return rb.b.Add(c, offset, allowOverwrite)
}

// appendBitField stores an integer constant into the bits of f.
func (rb *recordBuilder) appendBitField(rd *types.RecordDecl, f *types.FieldDecl, bitOffset int64, c cir.AttrID, allowOverwrite bool) bool {
	ctx := rb.em.ctx
	var v *big.Int
	switch ctx.AttrKindOf(c) {
	case cir.AttrInt:
		v = ctx.IntValue(c)
	case cir.AttrBool:
		v = big.NewInt(0)
		if ctx.Attr(c).Bool {
			v.SetInt64(1)
		}
	case cir.AttrZero:
		v = big.NewInt(0)
	default:
		return false
	}
	info, ok := rb.em.Types.RecordLayout(rd).BitField(f)
	if !ok {
		return false
	}
	return rb.b.AddBits(v, info.Size, bitOffset, allowOverwrite)
}

// buildInitList places the fields initialized by an init list for a
// record of type rd at byte offset start.
func (rb *recordBuilder) buildInitList(e *ast.Expr, rd *types.RecordDecl, start int64, allowOverwrite bool) bool {
	d, ok := e.InitList()
	if !ok {
		return false
	}
	if len(rd.Bases) > 0 {
		return false
	}
	em := rb.em
	src := em.oracle.MustRecord(rd)

	next := 0
	for _, f := range rd.Fields {
		if rd.IsUnion() && f != d.UnionField {
			continue
		}
		if f.IsUnnamedBitField() {
			continue
		}
		var init *ast.Expr
		if next < len(d.Inits) {
			init = d.Inits[next]
			next++
		}
		if init != nil && init.Kind == ast.ExprNoInit {
			continue
		}
		if em.oracle.IsZeroSizeField(f) {
			if ast.HasSideEffects(em.src, init) {
				return false
			}
			continue
		}

		fieldBits := src.FieldOffset(f)
		if allowOverwrite && init != nil && isInitList(init) &&
			(em.src.IsArray(f.Type) || em.src.IsRecord(f.Type)) {
			off := start + fieldBits/8
			if !em.updateDesignated(rb.b, off, f.Type, init) {
				return false
			}
			rb.b.Condense(off, em.Types.ConvertType(f.Type))
			continue
		}

		var c cir.AttrID
		if init != nil {
			c = em.TryEmitPrivateForMemory(init, f.Type)
		} else {
			c = em.EmitNullForMemory(f.Type)
		}
		if c == cir.NoAttr {
			return false
		}

		if !f.IsBitField() {
			if !rb.appendField(c, start+fieldBits/8, allowOverwrite) {
				return false
			}
			if f.NoUniqueAddress {
				allowOverwrite = true
			}
		} else if !rb.appendBitField(rd, f, start*8+fieldBits, c, allowOverwrite) {
			return false
		}
	}
	return true
}

type baseInfo struct {
	decl   *types.RecordDecl
	offset int64
	index  int
}

// buildAPValue places an evaluated record value of type rd at byte
// offset start.
func (rb *recordBuilder) buildAPValue(v *ast.APValue, rd *types.RecordDecl, start int64) bool {
	em := rb.em
	src := em.oracle.MustRecord(rd)
	if src.HasOwnVFPtr {
		return false
	}

	if len(rd.Bases) > 0 {
		bases := make([]baseInfo, 0, len(rd.Bases))
		for i, bs := range rd.Bases {
			if bs.Virtual {
				panic("constagg: virtual base in constant record " + rd.Name)
			}
			brd := em.src.Record(bs.Type)
			bases = append(bases, baseInfo{decl: brd, offset: src.BaseOffset(brd), index: i})
		}
		slices.SortStableFunc(bases, func(a, b baseInfo) int { return cmp.Compare(a.offset, b.offset) })
		for _, bi := range bases {
			if bi.index >= len(v.Bases) {
				return false
			}
			if !rb.buildAPValue(&v.Bases[bi.index], bi.decl, start+bi.offset) {
				return false
			}
		}
	}

	allowOverwrite := false
	for i, f := range rd.Fields {
		if rd.IsUnion() && f != v.UnionField {
			continue
		}
		if f.IsUnnamedBitField() || em.oracle.IsZeroSizeField(f) {
			continue
		}
		var fv *ast.APValue
		switch {
		case rd.IsUnion():
			fv = v.UnionValue
		case i < len(v.Fields):
			fv = &v.Fields[i]
		}
		if fv == nil {
			return false
		}
		c := em.TryEmitAPValue(fv, f.Type)
		if c == cir.NoAttr {
			return false
		}
		fieldBits := src.FieldOffset(f)
		if !f.IsBitField() {
			if !rb.appendField(c, start+fieldBits/8, allowOverwrite) {
				return false
			}
			if f.NoUniqueAddress {
				allowOverwrite = true
			}
		} else if !rb.appendBitField(rd, f, start*8+fieldBits, c, allowOverwrite) {
			return false
		}
	}
	return true
}

// emitRecordInitList folds a record init list.
func (em *Emitter) emitRecordInitList(e *ast.Expr, t types.TypeID) cir.AttrID {
	rd := em.src.Record(t)
	b := em.newBuilder()
	rb := recordBuilder{em: em, b: b}
	if !rb.buildInitList(e, rd, 0, false) {
		return cir.NoAttr
	}
	return b.Build(em.Types.ConvertType(t), rd.HasFlexibleArrayMember())
}

// emitRecordAPValue emits an evaluated struct or union value.
func (em *Emitter) emitRecordAPValue(v *ast.APValue, t types.TypeID) cir.AttrID {
	rd := em.src.Record(t)
	if rd == nil {
		return cir.NoAttr
	}
	b := em.newBuilder()
	rb := recordBuilder{em: em, b: b}
	if !rb.buildAPValue(v, rd, 0) {
		return cir.NoAttr
	}
	return b.Build(em.Types.ConvertType(t), rd.HasFlexibleArrayMember())
}

// emitDesignatedUpdate folds a base constant overwritten by a designated
// initializer list.
func (em *Emitter) emitDesignatedUpdate(e *ast.Expr, t types.TypeID) cir.AttrID {
	d := e.Data.(ast.DesignatedInitUpdateData)
	base := em.visit(d.Base, t)
	if base == cir.NoAttr {
		return cir.NoAttr
	}
	b := em.newBuilder()
	if !b.Add(base, 0, false) {
		return cir.NoAttr
	}
	if !em.updateDesignated(b, 0, t, d.Updater) {
		return cir.NoAttr
	}
	flexible := false
	if rd := em.src.Record(t); rd != nil {
		flexible = rd.HasFlexibleArrayMember()
	}
	return b.Build(em.Types.ConvertType(t), flexible)
}

// emitToUnion builds a union constant from a value of one of its member
// types.
func (em *Emitter) emitToUnion(operand *ast.Expr, t types.TypeID) cir.AttrID {
	rd := em.src.Record(t)
	if rd == nil || !rd.IsUnion() {
		panic("constagg: union cast to non-union type")
	}
	var field *types.FieldDecl
	for _, f := range rd.Fields {
		if em.src.SameUnqualified(f.Type, operand.Type) {
			field = f
			break
		}
	}
	if field == nil {
		return cir.NoAttr
	}
	c := em.TryEmitPrivateForMemory(operand, field.Type)
	if c == cir.NoAttr {
		return cir.NoAttr
	}
	ty := em.Types.ConvertType(t)
	if em.ctx.AttrType(c) == ty {
		return c
	}
	b := em.newBuilder()
	b.Add(c, 0, false)
	return b.Build(ty, false)
}
