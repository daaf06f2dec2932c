package cir

// Value is an SSA value local to a function. NoValue marks an absent
// operand or result.
type Value int32

const NoValue Value = -1

// OpKind enumerates operations.
type OpKind uint8

const (
	OpInvalid OpKind = iota
	// OpAlloca reserves stack storage of Type; the result is a pointer.
	OpAlloca
	// OpGetGlobal yields the address of the global Name.
	OpGetGlobal
	// OpGetMember yields the address of member Index of the record pointed
	// to by Operands[0].
	OpGetMember
	// OpPtrStride advances Operands[0] by Operands[1] elements.
	OpPtrStride
	// OpCast converts Operands[0] per Cast.
	OpCast
	OpLoad
	// OpStore writes Operands[0] to the address Operands[1].
	OpStore
	// OpCopy copies an aggregate from Operands[1] to Operands[0]. Size is
	// the number of bytes when only a prefix is copied, zero for the whole
	// type.
	OpCopy
	// OpMemCpy copies Operands[2] bytes from Operands[1] to Operands[0].
	OpMemCpy
	// OpMemSet fills Operands[2] bytes at Operands[0] with Operands[1].
	OpMemSet
	OpCall
	OpConst
	OpBinOp
	OpCmp
	// OpCmp3Way compares Operands[0] and Operands[1] yielding the integers
	// in Ordering.
	OpCmp3Way
	OpGetBitfield
	OpSetBitfield
	OpLifetimeEnd
	OpVecInsert
)

func (k OpKind) String() string {
	switch k {
	case OpAlloca:
		return "cir.alloca"
	case OpGetGlobal:
		return "cir.get_global"
	case OpGetMember:
		return "cir.get_member"
	case OpPtrStride:
		return "cir.ptr_stride"
	case OpCast:
		return "cir.cast"
	case OpLoad:
		return "cir.load"
	case OpStore:
		return "cir.store"
	case OpCopy:
		return "cir.copy"
	case OpMemCpy:
		return "cir.libc.memcpy"
	case OpMemSet:
		return "cir.libc.memset"
	case OpCall:
		return "cir.call"
	case OpConst:
		return "cir.const"
	case OpBinOp:
		return "cir.binop"
	case OpCmp:
		return "cir.cmp"
	case OpCmp3Way:
		return "cir.cmp3way"
	case OpGetBitfield:
		return "cir.get_bitfield"
	case OpSetBitfield:
		return "cir.set_bitfield"
	case OpLifetimeEnd:
		return "cir.lifetime_end"
	case OpVecInsert:
		return "cir.vec.insert"
	default:
		return "cir.invalid"
	}
}

// CastKind enumerates cast operations.
type CastKind uint8

const (
	CastBitcast CastKind = iota
	CastArrayToPtrDecay
	CastIntegral
	CastFloating
	CastIntToFloat
	CastFloatToInt
	CastIntToBool
	CastBoolToInt
	CastPtrToInt
	CastIntToPtr
)

func (k CastKind) String() string {
	return [...]string{
		"bitcast", "array_to_ptrdecay", "integral", "floating", "int_to_float",
		"float_to_int", "int_to_bool", "bool_to_int", "ptr_to_int", "int_to_ptr",
	}[k]
}

// BinKind enumerates arithmetic operations.
type BinKind uint8

const (
	BinAdd BinKind = iota
	BinSub
	BinMul
	BinDiv
	BinRem
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
)

func (k BinKind) String() string {
	return [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr"}[k]
}

// CmpKind enumerates comparison predicates.
type CmpKind uint8

const (
	CmpEq CmpKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (k CmpKind) String() string {
	return [...]string{"eq", "ne", "lt", "le", "gt", "ge"}[k]
}

// Ordering holds the results of a three-way comparison. Unordered is
// meaningful for partial orderings only.
type Ordering struct {
	Less, Equal, Greater int64
	Partial              bool
	Unordered            int64
}

// BitfieldInfo describes a bit-field access within its storage unit.
type BitfieldInfo struct {
	Name        string
	StorageType TypeID
	Size        int64 // bits
	Offset      int64 // bits from the start (little-endian) or end (big-endian) of storage
	Signed      bool
}

// Op is one operation. Which fields are meaningful depends on Kind.
type Op struct {
	Kind     OpKind
	Result   Value
	Type     TypeID // result type; OpAlloca: the allocated type
	Operands []Value

	Attr     AttrID // OpConst
	Index    int    // OpGetMember
	Name     string // alloca, member, callee or global name
	Align    int64
	Volatile bool
	Size     int64 // OpCopy: partial size in bytes

	Cast     CastKind
	Bin      BinKind
	Cmp      CmpKind
	Ordering Ordering
	Bitfield BitfieldInfo
}
