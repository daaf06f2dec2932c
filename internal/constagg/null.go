package constagg

import (
	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// EmitNullConstant returns the value of a zero-initialized object of type
// t. Most types are all-zero bytes; data member pointers are -1.
func (em *Emitter) EmitNullConstant(t types.TypeID) cir.AttrID {
	if em.Types.IsZeroInitializable(t) {
		return em.ctx.ZeroAttr(em.Types.ConvertType(t))
	}
	st := em.src.MustLookup(t)
	switch st.Kind {
	case types.KindArray:
		elem := em.EmitNullConstant(st.Elem)
		n := max(st.Count, 0)
		elems := make([]cir.AttrID, n)
		for i := range elems {
			elems[i] = elem
		}
		return em.ctx.ConstArrayAttr(em.Types.ConvertType(t), elems)
	case types.KindRecord:
		return em.nullRecord(em.src.Record(t), true)
	case types.KindMemberPointer:
		return em.ctx.IntAttrInt64(em.Types.ConvertType(t), -1)
	}
	panic("constagg: no null constant for " + em.src.String(t))
}

// EmitNullForMemory is EmitNullConstant for a value stored in memory.
func (em *Emitter) EmitNullForMemory(t types.TypeID) cir.AttrID {
	return em.EmitNullConstant(t)
}

func (em *Emitter) nullForBase(base *types.RecordDecl) cir.AttrID {
	if em.Types.RecordLayout(base).IsZeroInitializableAsBase() {
		return em.ctx.ZeroAttr(em.Types.BaseSubobjectType(base))
	}
	return em.nullRecord(base, false)
}

// nullRecord builds a record null constant member by member. complete
// selects the complete object type over the base subobject type.
func (em *Emitter) nullRecord(rd *types.RecordDecl, complete bool) cir.AttrID {
	rl := em.Types.RecordLayout(rd)
	ty := rl.CompleteObjectType
	if !complete {
		ty = em.Types.BaseSubobjectType(rd)
	}

	if rd.IsUnion() {
		b := em.newBuilder()
		if f := rd.FindFirstNamedDataMember(); f != nil && !em.oracle.IsZeroSizeField(f) {
			b.Add(em.EmitNullConstant(f.Type), 0, false)
		}
		return b.Build(ty, false)
	}

	members := em.ctx.Type(ty).Members
	elems := make([]cir.AttrID, len(members))

	for _, bs := range rd.Bases {
		if bs.Virtual {
			continue
		}
		base := em.src.Record(bs.Type)
		if base.IsEmpty() || em.oracle.MustRecord(base).NonVirtualSize == 0 {
			continue
		}
		if i, ok := rl.NonVirtualBaseIndex(base); ok {
			elems[i] = em.nullForBase(base)
		}
	}

	for _, f := range rd.Fields {
		if f.IsBitField() || em.oracle.IsZeroSizeField(f) {
			continue
		}
		i, ok := rl.FieldIndex(f)
		if !ok || elems[i] != cir.NoAttr {
			continue
		}
		c := em.EmitNullConstant(f.Type)
		if frd := em.src.Record(f.Type); frd != nil && em.ctx.AttrType(c) != members[i] {
			// [[no_unique_address]] members are stored as base subobjects.
			c = em.nullForBase(frd)
		}
		elems[i] = c
	}

	if complete {
		for _, vb := range rd.VirtualBases() {
			if vb.IsEmpty() {
				continue
			}
			i, ok := rl.VirtualBaseIndex(vb)
			if !ok || elems[i] != cir.NoAttr {
				continue
			}
			elems[i] = em.nullForBase(vb)
		}
	}

	for i, m := range members {
		if elems[i] == cir.NoAttr {
			elems[i] = em.ctx.ZeroAttr(m)
		}
	}
	return em.ctx.ConstRecordAttr(ty, elems)
}
