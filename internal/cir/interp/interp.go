// Package interp executes IR functions over a flat byte memory. It exists to
// observe emitted code: which bytes end up where, how many stores ran, and
// how often loops went round.
package interp

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"cirgen/internal/cir"
)

// Pointer addresses a byte inside a region. Region -1 is null.
type Pointer struct {
	Region int
	Off    int64
}

var Null = Pointer{Region: -1}

// Val is a runtime value.
type Val struct {
	Int   *big.Int // integers and bools, unsigned bit pattern
	Float float64
	Ptr   Pointer
	Bytes []byte // aggregates
}

// Stats counts what a run did.
type Stats struct {
	Stores    int // scalar stores and bit-field writes
	Copies    int
	MemSets   int
	BackEdges int
	Steps     int
	Calls     []string
}

type region struct {
	name string
	data []byte
	ptrs map[int64]Pointer // pointers stored in memory, by offset
}

// Machine holds memory across runs.
type Machine struct {
	mod     *cir.Module
	dl      *cir.DataLayout
	c       *cir.Context
	regions []*region
	globals map[string]Pointer

	// Locals maps alloca names to their most recent slot.
	Locals map[string]Pointer
	Stats  Stats
	// MaxSteps bounds a run; zero means 1<<20.
	MaxSteps int
}

// ErrStepLimit is returned when a run exceeds MaxSteps.
var ErrStepLimit = errors.New("interp: step limit exceeded")

// New creates a machine with every initialized global materialized.
func New(m *cir.Module) *Machine {
	mc := &Machine{mod: m, dl: m.Layout, c: m.Ctx, globals: make(map[string]Pointer), Locals: make(map[string]Pointer)}
	for _, g := range m.Globals {
		p := mc.alloc(g.Name, mc.dl.TypeAllocSize(g.Type))
		if g.Init != cir.NoAttr {
			copy(mc.regions[p.Region].data, mc.dl.Encode(g.Init))
		}
		mc.globals[g.Name] = p
	}
	return mc
}

func (mc *Machine) alloc(name string, n int64) Pointer {
	mc.regions = append(mc.regions, &region{name: name, data: make([]byte, n), ptrs: make(map[int64]Pointer)})
	return Pointer{Region: len(mc.regions) - 1}
}

// Global returns the address of a global.
func (mc *Machine) Global(name string) (Pointer, bool) {
	p, ok := mc.globals[name]
	return p, ok
}

// Read returns n bytes at p.
func (mc *Machine) Read(p Pointer, n int64) ([]byte, error) {
	if p.Region < 0 || p.Region >= len(mc.regions) {
		return nil, fmt.Errorf("interp: bad pointer %+v", p)
	}
	r := mc.regions[p.Region]
	if p.Off < 0 || p.Off+n > int64(len(r.data)) {
		return nil, fmt.Errorf("interp: access [%d,%d) outside %s (size %d)", p.Off, p.Off+n, r.name, len(r.data))
	}
	return r.data[p.Off : p.Off+n], nil
}

// Run executes the named function.
func (mc *Machine) Run(name string, args ...Val) (Val, error) {
	f, ok := mc.mod.Func(name)
	if !ok || f.Decl {
		return Val{}, fmt.Errorf("interp: no body for @%s", name)
	}
	limit := mc.MaxSteps
	if limit == 0 {
		limit = 1 << 20
	}
	env := make([]Val, f.NumValues())
	for i, p := range f.Params {
		if i < len(args) {
			env[p] = args[i]
		}
	}
	cur := f.Blocks[0]
	for {
		for i := range cur.Ops {
			mc.Stats.Steps++
			if mc.Stats.Steps > limit {
				return Val{}, ErrStepLimit
			}
			if err := mc.exec(f, env, &cur.Ops[i]); err != nil {
				return Val{}, fmt.Errorf("@%s bb%d: %s: %w", f.Name, cur.ID, cur.Ops[i].Kind, err)
			}
		}
		t := cur.Term
		var next cir.BlockID
		switch t.Kind {
		case cir.TermReturn:
			if t.Value == cir.NoValue {
				return Val{}, nil
			}
			return env[t.Value], nil
		case cir.TermBr:
			next = t.Then
		case cir.TermCondBr:
			next = t.Else
			if env[t.Cond].Int.Sign() != 0 {
				next = t.Then
			}
		default:
			return Val{}, fmt.Errorf("interp: @%s bb%d has no terminator", f.Name, cur.ID)
		}
		if next <= cur.ID {
			mc.Stats.BackEdges++
		}
		cur = f.Blocks[next]
	}
}

func (mc *Machine) exec(f *cir.Func, env []Val, op *cir.Op) error {
	c, dl := mc.c, mc.dl
	arg := func(i int) Val { return env[op.Operands[i]] }
	switch op.Kind {
	case cir.OpAlloca:
		p := mc.alloc(op.Name, dl.TypeAllocSize(op.Type))
		mc.Locals[op.Name] = p
		env[op.Result] = Val{Ptr: p}
	case cir.OpGetGlobal:
		p, ok := mc.globals[op.Name]
		if !ok {
			return fmt.Errorf("unknown global @%s", op.Name)
		}
		env[op.Result] = Val{Ptr: p}
	case cir.OpGetMember:
		base := arg(0).Ptr
		rec := c.Type(f.ValueType(op.Operands[0])).Elem
		var off int64
		if !c.Type(rec).IsUnion() {
			off = dl.MemberOffset(rec, op.Index)
		}
		env[op.Result] = Val{Ptr: Pointer{Region: base.Region, Off: base.Off + off}}
	case cir.OpPtrStride:
		base := arg(0).Ptr
		elem := c.Type(f.ValueType(op.Operands[0])).Elem
		n := signed(arg(1).Int, f, c, op.Operands[1]).Int64()
		env[op.Result] = Val{Ptr: Pointer{Region: base.Region, Off: base.Off + n*dl.TypeAllocSize(elem)}}
	case cir.OpCast:
		env[op.Result] = mc.cast(f, op, arg(0))
	case cir.OpConst:
		env[op.Result] = mc.constant(op.Attr)
	case cir.OpLoad:
		val, err := mc.load(arg(0).Ptr, op.Type)
		if err != nil {
			return err
		}
		env[op.Result] = val
	case cir.OpStore:
		mc.Stats.Stores++
		return mc.store(arg(1).Ptr, f.ValueType(op.Operands[0]), arg(0))
	case cir.OpCopy:
		mc.Stats.Copies++
		n := op.Size
		if n == 0 {
			n = dl.TypeAllocSize(op.Type)
		}
		return mc.copyBytes(arg(0).Ptr, arg(1).Ptr, n)
	case cir.OpMemCpy:
		mc.Stats.Copies++
		return mc.copyBytes(arg(0).Ptr, arg(1).Ptr, arg(2).Int.Int64())
	case cir.OpMemSet:
		mc.Stats.MemSets++
		dst, err := mc.Read(arg(0).Ptr, arg(2).Int.Int64())
		if err != nil {
			return err
		}
		b := byte(arg(1).Int.Uint64())
		for i := range dst {
			dst[i] = b
		}
	case cir.OpCall:
		mc.Stats.Calls = append(mc.Stats.Calls, op.Name)
		if op.Result != cir.NoValue {
			env[op.Result] = mc.zero(op.Type)
		}
	case cir.OpBinOp:
		env[op.Result] = mc.binop(f, op, arg(0), arg(1))
	case cir.OpCmp:
		env[op.Result] = mc.cmp(f, op, arg(0), arg(1))
	case cir.OpCmp3Way:
		a := signed(arg(0).Int, f, c, op.Operands[0])
		b := signed(arg(1).Int, f, c, op.Operands[1])
		var r int64
		switch a.Cmp(b) {
		case -1:
			r = op.Ordering.Less
		case 0:
			r = op.Ordering.Equal
		default:
			r = op.Ordering.Greater
		}
		env[op.Result] = Val{Int: wrap(c, op.Type, big.NewInt(r))}
	case cir.OpGetBitfield:
		val, err := mc.getBitfield(arg(0).Ptr, op)
		if err != nil {
			return err
		}
		env[op.Result] = val
	case cir.OpSetBitfield:
		mc.Stats.Stores++
		if err := mc.setBitfield(arg(0).Ptr, op, arg(1)); err != nil {
			return err
		}
		env[op.Result] = arg(1)
	case cir.OpLifetimeEnd:
	case cir.OpVecInsert:
		vec := arg(0)
		elem := c.Type(op.Type).Elem
		sz := dl.TypeAllocSize(elem)
		out := append([]byte(nil), vec.Bytes...)
		idx := arg(2).Int.Int64()
		tmp := mc.encodeVal(elem, arg(1))
		copy(out[idx*sz:], tmp)
		env[op.Result] = Val{Bytes: out}
	default:
		return fmt.Errorf("unsupported op")
	}
	return nil
}

func signed(x *big.Int, f *cir.Func, c *cir.Context, v cir.Value) *big.Int {
	t := f.ValueType(v)
	if c.Kind(t) != cir.TypeInt {
		return x
	}
	ty := c.Type(t)
	out := new(big.Int).Set(x)
	if ty.Signed && out.Bit(int(ty.Width)-1) == 1 {
		out.Sub(out, cir.Pow2(uint(ty.Width)))
	}
	return out
}

func wrap(c *cir.Context, t cir.TypeID, x *big.Int) *big.Int {
	w := uint(8)
	if c.Kind(t) == cir.TypeInt {
		w = uint(c.Type(t).Width)
	} else if c.Kind(t) == cir.TypeBool {
		w = 1
	}
	return new(big.Int).Mod(x, cir.Pow2(w))
}

func (mc *Machine) zero(t cir.TypeID) Val {
	switch mc.c.Kind(t) {
	case cir.TypeInt, cir.TypeBool:
		return Val{Int: new(big.Int)}
	case cir.TypeFloat:
		return Val{}
	case cir.TypePointer:
		return Val{Ptr: Null}
	}
	return Val{Bytes: make([]byte, mc.dl.TypeAllocSize(t))}
}

func (mc *Machine) constant(id cir.AttrID) Val {
	c := mc.c
	a := c.Attr(id)
	switch a.Kind {
	case cir.AttrInt:
		return Val{Int: new(big.Int).Set(a.Int)}
	case cir.AttrBool:
		if a.Bool {
			return Val{Int: big.NewInt(1)}
		}
		return Val{Int: new(big.Int)}
	case cir.AttrFloat:
		return Val{Float: a.Float}
	case cir.AttrNullPtr:
		return Val{Ptr: Null}
	case cir.AttrGlobalView:
		p := mc.globals[a.Symbol]
		return Val{Ptr: p}
	}
	switch c.Kind(a.Type) {
	case cir.TypeInt, cir.TypeBool:
		return Val{Int: new(big.Int)}
	case cir.TypeFloat:
		return Val{}
	case cir.TypePointer:
		return Val{Ptr: Null}
	}
	return Val{Bytes: mc.dl.Encode(id)}
}

func (mc *Machine) encodeVal(t cir.TypeID, val Val) []byte {
	c, dl := mc.c, mc.dl
	n := dl.TypeAllocSize(t)
	out := make([]byte, n)
	switch c.Kind(t) {
	case cir.TypeInt, cir.TypeBool:
		dl.PutInt(out[:dl.TypeStoreSize(t)], val.Int)
	case cir.TypeFloat:
		var bits uint64
		if c.Type(t).Width == 32 {
			bits = uint64(math.Float32bits(float32(val.Float)))
		} else {
			bits = math.Float64bits(val.Float)
		}
		dl.PutInt(out, new(big.Int).SetUint64(bits))
	case cir.TypePointer:
	default:
		copy(out, val.Bytes)
	}
	return out
}

func (mc *Machine) store(p Pointer, t cir.TypeID, val Val) error {
	n := mc.dl.TypeStoreSize(t)
	if mc.c.Kind(t) != cir.TypeInt && mc.c.Kind(t) != cir.TypeBool {
		n = mc.dl.TypeAllocSize(t)
	}
	dst, err := mc.Read(p, n)
	if err != nil {
		return err
	}
	copy(dst, mc.encodeVal(t, val))
	if mc.c.Kind(t) == cir.TypePointer {
		mc.regions[p.Region].ptrs[p.Off] = val.Ptr
	}
	return nil
}

func (mc *Machine) load(p Pointer, t cir.TypeID) (Val, error) {
	c, dl := mc.c, mc.dl
	switch c.Kind(t) {
	case cir.TypeInt, cir.TypeBool:
		src, err := mc.Read(p, dl.TypeStoreSize(t))
		if err != nil {
			return Val{}, err
		}
		return Val{Int: wrap(c, t, dl.GetInt(src))}, nil
	case cir.TypeFloat:
		n := dl.TypeAllocSize(t)
		src, err := mc.Read(p, n)
		if err != nil {
			return Val{}, err
		}
		bits := dl.GetInt(src).Uint64()
		if n == 4 {
			return Val{Float: float64(math.Float32frombits(uint32(bits)))}, nil
		}
		return Val{Float: math.Float64frombits(bits)}, nil
	case cir.TypePointer:
		if _, err := mc.Read(p, dl.PtrSize); err != nil {
			return Val{}, err
		}
		if ptr, ok := mc.regions[p.Region].ptrs[p.Off]; ok {
			return Val{Ptr: ptr}, nil
		}
		return Val{Ptr: Null}, nil
	}
	src, err := mc.Read(p, dl.TypeAllocSize(t))
	if err != nil {
		return Val{}, err
	}
	return Val{Bytes: append([]byte(nil), src...)}, nil
}

func (mc *Machine) copyBytes(dst, src Pointer, n int64) error {
	d, err := mc.Read(dst, n)
	if err != nil {
		return err
	}
	s, err := mc.Read(src, n)
	if err != nil {
		return err
	}
	copy(d, s)
	for off, p := range mc.regions[src.Region].ptrs {
		if off >= src.Off && off < src.Off+n {
			mc.regions[dst.Region].ptrs[dst.Off+off-src.Off] = p
		}
	}
	return nil
}

func (mc *Machine) cast(f *cir.Func, op *cir.Op, x Val) Val {
	c := mc.c
	switch op.Cast {
	case cir.CastBitcast, cir.CastArrayToPtrDecay:
		return x
	case cir.CastIntegral, cir.CastBoolToInt:
		return Val{Int: wrap(c, op.Type, signed(x.Int, f, c, op.Operands[0]))}
	case cir.CastIntToBool:
		if x.Int.Sign() != 0 {
			return Val{Int: big.NewInt(1)}
		}
		return Val{Int: new(big.Int)}
	case cir.CastIntToFloat:
		fl, _ := new(big.Float).SetInt(signed(x.Int, f, c, op.Operands[0])).Float64()
		return Val{Float: fl}
	case cir.CastFloatToInt:
		bf := big.NewFloat(math.Trunc(x.Float))
		i, _ := bf.Int(nil)
		return Val{Int: wrap(c, op.Type, i)}
	case cir.CastFloating:
		if c.Type(op.Type).Width == 32 {
			return Val{Float: float64(float32(x.Float))}
		}
		return x
	case cir.CastPtrToInt:
		return Val{Int: big.NewInt(x.Ptr.Off)}
	case cir.CastIntToPtr:
		if x.Int.Sign() == 0 {
			return Val{Ptr: Null}
		}
		return Val{Ptr: Pointer{Region: -1, Off: x.Int.Int64()}}
	}
	return x
}

func (mc *Machine) binop(f *cir.Func, op *cir.Op, a, b Val) Val {
	c := mc.c
	x := signed(a.Int, f, c, op.Operands[0])
	y := signed(b.Int, f, c, op.Operands[1])
	r := new(big.Int)
	switch op.Bin {
	case cir.BinAdd:
		r.Add(x, y)
	case cir.BinSub:
		r.Sub(x, y)
	case cir.BinMul:
		r.Mul(x, y)
	case cir.BinDiv:
		if y.Sign() != 0 {
			r.Quo(x, y)
		}
	case cir.BinRem:
		if y.Sign() != 0 {
			r.Rem(x, y)
		}
	case cir.BinAnd:
		r.And(a.Int, b.Int)
	case cir.BinOr:
		r.Or(a.Int, b.Int)
	case cir.BinXor:
		r.Xor(a.Int, b.Int)
	case cir.BinShl:
		r.Lsh(a.Int, uint(y.Uint64()))
	case cir.BinShr:
		r.Rsh(x, uint(y.Uint64()))
	}
	return Val{Int: wrap(c, op.Type, r)}
}

func (mc *Machine) cmp(f *cir.Func, op *cir.Op, a, b Val) Val {
	c := mc.c
	var ord int
	if c.Kind(f.ValueType(op.Operands[0])) == cir.TypePointer {
		switch {
		case a.Ptr == b.Ptr:
			ord = 0
		case a.Ptr.Region != b.Ptr.Region || a.Ptr.Off < b.Ptr.Off:
			ord = -1
		default:
			ord = 1
		}
	} else {
		ord = signed(a.Int, f, c, op.Operands[0]).Cmp(signed(b.Int, f, c, op.Operands[1]))
	}
	var res bool
	switch op.Cmp {
	case cir.CmpEq:
		res = ord == 0
	case cir.CmpNe:
		res = ord != 0
	case cir.CmpLt:
		res = ord < 0
	case cir.CmpLe:
		res = ord <= 0
	case cir.CmpGt:
		res = ord > 0
	case cir.CmpGe:
		res = ord >= 0
	}
	if res {
		return Val{Int: big.NewInt(1)}
	}
	return Val{Int: new(big.Int)}
}

func (mc *Machine) bitfieldStorage(p Pointer, info cir.BitfieldInfo) ([]byte, error) {
	return mc.Read(p, mc.dl.TypeAllocSize(info.StorageType))
}

func (mc *Machine) getBitfield(p Pointer, op *cir.Op) (Val, error) {
	info := op.Bitfield
	raw, err := mc.bitfieldStorage(p, info)
	if err != nil {
		return Val{}, err
	}
	unit := mc.dl.GetInt(raw)
	mask := new(big.Int).Sub(cir.Pow2(uint(info.Size)), big.NewInt(1))
	val := new(big.Int).Rsh(unit, uint(info.Offset))
	val.And(val, mask)
	if info.Signed && val.Bit(int(info.Size)-1) == 1 {
		val.Sub(val, cir.Pow2(uint(info.Size)))
	}
	return Val{Int: wrap(mc.c, op.Type, val)}, nil
}

func (mc *Machine) setBitfield(p Pointer, op *cir.Op, x Val) error {
	info := op.Bitfield
	raw, err := mc.bitfieldStorage(p, info)
	if err != nil {
		return err
	}
	unit := mc.dl.GetInt(raw)
	mask := new(big.Int).Sub(cir.Pow2(uint(info.Size)), big.NewInt(1))
	field := new(big.Int).And(x.Int, mask)
	hole := new(big.Int).Lsh(mask, uint(info.Offset))
	unit.AndNot(unit, hole)
	unit.Or(unit, field.Lsh(field, uint(info.Offset)))
	mc.dl.PutInt(raw, unit)
	return nil
}
