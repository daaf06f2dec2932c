package cir

import "fmt"

// Builder appends ops to the current block of a function.
type Builder struct {
	Mod *Module
	Ctx *Context
	Fn  *Func
	cur *Block
}

// NewBuilder creates a builder for fn, starting a body if fn has none.
func NewBuilder(m *Module, fn *Func) *Builder {
	b := &Builder{Mod: m, Ctx: m.Ctx, Fn: fn}
	if fn.Decl || len(fn.Blocks) == 0 {
		fn.Decl = false
		b.cur = fn.NewBlock()
	} else {
		b.cur = fn.Blocks[len(fn.Blocks)-1]
	}
	return b
}

// Block returns the insertion block.
func (b *Builder) Block() *Block { return b.cur }

// SetInsertBlock moves the insertion point to the end of blk.
func (b *Builder) SetInsertBlock(blk *Block) { b.cur = blk }

// NewBlock creates a block without moving the insertion point.
func (b *Builder) NewBlock() *Block { return b.Fn.NewBlock() }

func (b *Builder) emit(op Op) Value {
	if b.cur.Terminated() {
		panic(fmt.Sprintf("cir: op %s appended after terminator in bb%d", op.Kind, b.cur.ID))
	}
	b.cur.Ops = append(b.cur.Ops, op)
	return op.Result
}

func (b *Builder) result(t TypeID) Value { return b.Fn.NewValue(t) }

// PtrElem returns the pointee of a pointer-typed value.
func (b *Builder) PtrElem(v Value) TypeID {
	t := b.Fn.ValueType(v)
	if b.Ctx.Kind(t) != TypePointer {
		panic("cir: value is not a pointer")
	}
	return b.Ctx.Type(t).Elem
}

// Alloca reserves a stack slot.
func (b *Builder) Alloca(t TypeID, name string, align int64) Value {
	r := b.result(b.Ctx.Pointer(t))
	return b.emit(Op{Kind: OpAlloca, Result: r, Type: t, Name: name, Align: align})
}

// GetGlobal yields the address of a global.
func (b *Builder) GetGlobal(name string, t TypeID) Value {
	r := b.result(b.Ctx.Pointer(t))
	return b.emit(Op{Kind: OpGetGlobal, Result: r, Type: t, Name: name})
}

// GetMember addresses member idx of the record pointed to by base.
func (b *Builder) GetMember(base Value, idx int, name string) Value {
	rec := b.PtrElem(base)
	rt := b.Ctx.Type(rec)
	if rt.Kind != TypeRecord || idx < 0 || idx >= len(rt.Members) {
		panic(fmt.Sprintf("cir: get_member %d out of range", idx))
	}
	mt := rt.Members[idx]
	r := b.result(b.Ctx.Pointer(mt))
	return b.emit(Op{Kind: OpGetMember, Result: r, Type: mt, Operands: []Value{base}, Index: idx, Name: name})
}

// PtrStride advances ptr by stride elements of its pointee type.
func (b *Builder) PtrStride(ptr, stride Value) Value {
	r := b.result(b.Fn.ValueType(ptr))
	return b.emit(Op{Kind: OpPtrStride, Result: r, Type: b.Fn.ValueType(ptr), Operands: []Value{ptr, stride}})
}

// Cast converts v to type t.
func (b *Builder) Cast(kind CastKind, v Value, t TypeID) Value {
	r := b.result(t)
	return b.emit(Op{Kind: OpCast, Result: r, Type: t, Operands: []Value{v}, Cast: kind})
}

// Bitcast reinterprets a pointer as a pointer to elem.
func (b *Builder) Bitcast(ptr Value, elem TypeID) Value {
	pt := b.Ctx.Pointer(elem)
	if b.Fn.ValueType(ptr) == pt {
		return ptr
	}
	return b.Cast(CastBitcast, ptr, pt)
}

// ArrayDecay converts a pointer to an array into a pointer to its first
// element.
func (b *Builder) ArrayDecay(ptr Value) Value {
	at := b.PtrElem(ptr)
	return b.Cast(CastArrayToPtrDecay, ptr, b.Ctx.Pointer(b.Ctx.Type(at).Elem))
}

// Load reads a value of the pointee type.
func (b *Builder) Load(ptr Value, align int64, volatile bool) Value {
	t := b.PtrElem(ptr)
	r := b.result(t)
	return b.emit(Op{Kind: OpLoad, Result: r, Type: t, Operands: []Value{ptr}, Align: align, Volatile: volatile})
}

// Store writes v to ptr.
func (b *Builder) Store(v, ptr Value, align int64, volatile bool) {
	b.emit(Op{Kind: OpStore, Result: NoValue, Operands: []Value{v, ptr}, Align: align, Volatile: volatile})
}

// Copy copies the pointee of src to dst. size is zero for a full copy.
func (b *Builder) Copy(dst, src Value, size int64, volatile bool) {
	b.emit(Op{Kind: OpCopy, Result: NoValue, Type: b.PtrElem(dst), Operands: []Value{dst, src}, Size: size, Volatile: volatile})
}

// MemCpy copies n bytes.
func (b *Builder) MemCpy(dst, src, n Value) {
	b.emit(Op{Kind: OpMemCpy, Result: NoValue, Operands: []Value{dst, src, n}})
}

// MemSet fills n bytes at dst with val.
func (b *Builder) MemSet(dst, val, n Value) {
	b.emit(Op{Kind: OpMemSet, Result: NoValue, Operands: []Value{dst, val, n}})
}

// Const materializes a constant attribute.
func (b *Builder) Const(a AttrID) Value {
	t := b.Ctx.AttrType(a)
	r := b.result(t)
	return b.emit(Op{Kind: OpConst, Result: r, Type: t, Attr: a})
}

// ConstInt materializes an integer of type t.
func (b *Builder) ConstInt(t TypeID, v int64) Value {
	return b.Const(b.Ctx.IntAttrInt64(t, v))
}

// Call calls a function by name. result is NoType for void calls.
func (b *Builder) Call(callee string, args []Value, result TypeID) Value {
	r := NoValue
	if result != NoType && b.Ctx.Kind(result) != TypeVoid {
		r = b.result(result)
	}
	b.emit(Op{Kind: OpCall, Result: r, Type: result, Operands: append([]Value(nil), args...), Name: callee})
	return r
}

// BinOp applies an arithmetic operation.
func (b *Builder) BinOp(kind BinKind, lhs, rhs Value) Value {
	t := b.Fn.ValueType(lhs)
	r := b.result(t)
	return b.emit(Op{Kind: OpBinOp, Result: r, Type: t, Operands: []Value{lhs, rhs}, Bin: kind})
}

// Cmp compares two values yielding a bool.
func (b *Builder) Cmp(kind CmpKind, lhs, rhs Value) Value {
	t := b.Ctx.Bool()
	r := b.result(t)
	return b.emit(Op{Kind: OpCmp, Result: r, Type: t, Operands: []Value{lhs, rhs}, Cmp: kind})
}

// Cmp3Way yields ord.Less/Equal/Greater (or Unordered) as a value of type t.
func (b *Builder) Cmp3Way(lhs, rhs Value, t TypeID, ord Ordering) Value {
	r := b.result(t)
	return b.emit(Op{Kind: OpCmp3Way, Result: r, Type: t, Operands: []Value{lhs, rhs}, Ordering: ord})
}

// GetBitfield loads a bit-field from its storage address.
func (b *Builder) GetBitfield(t TypeID, addr Value, info BitfieldInfo, align int64, volatile bool) Value {
	r := b.result(t)
	return b.emit(Op{Kind: OpGetBitfield, Result: r, Type: t, Operands: []Value{addr}, Bitfield: info, Align: align, Volatile: volatile})
}

// SetBitfield stores v into a bit-field and yields the stored value.
func (b *Builder) SetBitfield(t TypeID, addr, v Value, info BitfieldInfo, align int64, volatile bool) Value {
	r := b.result(t)
	return b.emit(Op{Kind: OpSetBitfield, Result: r, Type: t, Operands: []Value{addr, v}, Bitfield: info, Align: align, Volatile: volatile})
}

// LifetimeEnd marks the end of a stack slot's lifetime.
func (b *Builder) LifetimeEnd(ptr Value) {
	b.emit(Op{Kind: OpLifetimeEnd, Result: NoValue, Operands: []Value{ptr}})
}

// VecInsert replaces element idx of a vector value.
func (b *Builder) VecInsert(vec, elt, idx Value) Value {
	t := b.Fn.ValueType(vec)
	r := b.result(t)
	return b.emit(Op{Kind: OpVecInsert, Result: r, Type: t, Operands: []Value{vec, elt, idx}})
}

// Br ends the block with an unconditional branch.
func (b *Builder) Br(dest *Block) {
	b.cur.Term = Terminator{Kind: TermBr, Then: dest.ID, Cond: NoValue, Value: NoValue}
}

// CondBr ends the block with a conditional branch.
func (b *Builder) CondBr(cond Value, then, els *Block) {
	b.cur.Term = Terminator{Kind: TermCondBr, Cond: cond, Then: then.ID, Else: els.ID, Value: NoValue}
}

// Return ends the block; v is NoValue for void.
func (b *Builder) Return(v Value) {
	b.cur.Term = Terminator{Kind: TermReturn, Cond: NoValue, Value: v}
}
