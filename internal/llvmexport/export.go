// Package llvmexport renders IR modules as LLVM IR via llir/llvm. Types,
// global constants and function signatures are exported; function bodies
// stay in the native form.
package llvmexport

import (
	"fmt"
	"math/big"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"cirgen/internal/cir"
)

// Exporter translates types and constants of one context. It memoizes
// types so recursive records resolve to the same named struct.
type Exporter struct {
	ctx *cir.Context
	dl  *cir.DataLayout
	Mod *ir.Module

	types   map[cir.TypeID]types.Type
	symbols map[string]constant.Constant
}

// New returns an exporter writing into a fresh LLVM module.
func New(dl *cir.DataLayout) *Exporter {
	return &Exporter{
		ctx:     dl.Context(),
		dl:      dl,
		Mod:     ir.NewModule(),
		types:   make(map[cir.TypeID]types.Type),
		symbols: make(map[string]constant.Constant),
	}
}

// Module exports every global and function of m.
func Module(m *cir.Module) (*ir.Module, error) {
	x := New(m.Layout)
	x.Mod.SourceFilename = m.Name
	globals := make([]*ir.Global, len(m.Globals))
	for i, g := range m.Globals {
		gv, err := x.DeclareGlobal(g.Name, g.Type)
		if err != nil {
			return nil, err
		}
		gv.Immutable = g.Constant
		if g.Align > 0 {
			gv.Align = ir.Align(g.Align)
		}
		globals[i] = gv
	}
	for _, f := range m.Funcs {
		ft, err := x.Type(f.Type)
		if err != nil {
			return nil, fmt.Errorf("func @%s: %w", f.Name, err)
		}
		sig := ft.(*types.FuncType)
		params := make([]*ir.Param, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = ir.NewParam("", p)
		}
		x.symbols[f.Name] = x.Mod.NewFunc(f.Name, sig.RetType, params...)
	}
	// initializers may refer to any symbol, so they come last
	for i, g := range m.Globals {
		if g.Init == cir.NoAttr {
			continue
		}
		c, err := x.Const(g.Init)
		if err != nil {
			return nil, fmt.Errorf("global @%s: %w", g.Name, err)
		}
		globals[i].Init = c
	}
	return x.Mod, nil
}

// DeclareGlobal adds an external global that constants may address.
func (x *Exporter) DeclareGlobal(name string, t cir.TypeID) (*ir.Global, error) {
	lt, err := x.Type(t)
	if err != nil {
		return nil, fmt.Errorf("global @%s: %w", name, err)
	}
	gv := x.Mod.NewGlobal(name, lt)
	x.symbols[name] = gv
	return gv, nil
}

// Type translates id. Booleans are i8 in memory; void pointees become
// i8.
func (x *Exporter) Type(id cir.TypeID) (types.Type, error) {
	if t, ok := x.types[id]; ok {
		return t, nil
	}
	ty := x.ctx.Type(id)
	var out types.Type
	switch ty.Kind {
	case cir.TypeVoid:
		out = types.Void
	case cir.TypeBool:
		out = types.I8
	case cir.TypeInt:
		out = types.NewInt(uint64(ty.Width))
	case cir.TypeFloat:
		ft, err := floatType(ty.Width)
		if err != nil {
			return nil, err
		}
		out = ft
	case cir.TypePointer:
		if x.ctx.Kind(ty.Elem) == cir.TypeVoid {
			out = types.NewPointer(types.I8)
			break
		}
		elem, err := x.Type(ty.Elem)
		if err != nil {
			return nil, err
		}
		out = types.NewPointer(elem)
	case cir.TypeArray, cir.TypeVector:
		elem, err := x.Type(ty.Elem)
		if err != nil {
			return nil, err
		}
		if ty.Kind == cir.TypeArray {
			out = types.NewArray(uint64(ty.Count), elem)
		} else {
			out = types.NewVector(uint64(ty.Count), elem)
		}
	case cir.TypeFunc:
		ret, err := x.Type(ty.Result)
		if err != nil {
			return nil, err
		}
		params := make([]types.Type, len(ty.Params))
		for i, p := range ty.Params {
			if params[i], err = x.Type(p); err != nil {
				return nil, err
			}
		}
		out = types.NewFunc(ret, params...)
	case cir.TypeRecord:
		return x.recordType(id, ty)
	default:
		return nil, fmt.Errorf("llvmexport: unsupported type %s", x.ctx.TypeString(id))
	}
	x.types[id] = out
	return out, nil
}

func floatType(width uint16) (*types.FloatType, error) {
	switch width {
	case 16:
		return types.Half, nil
	case 32:
		return types.Float, nil
	case 64:
		return types.Double, nil
	case 80:
		return types.X86_FP80, nil
	case 128:
		return types.FP128, nil
	}
	return nil, fmt.Errorf("llvmexport: no %d-bit float type", width)
}

// recordType maps a struct record member for member. A union becomes its
// storage member followed by byte padding up to the union's size.
func (x *Exporter) recordType(id cir.TypeID, ty *cir.Type) (types.Type, error) {
	st := types.NewStruct()
	st.Packed = ty.Packed
	if ty.Name != "" {
		x.Mod.NewTypeDef(ty.Name, st)
	}
	// registered before the members so self references terminate
	x.types[id] = st
	if !ty.Complete {
		st.Opaque = true
		return st, nil
	}

	members := ty.Members
	if ty.IsUnion() {
		members = nil
		if s := x.dl.UnionStorage(id); s >= 0 {
			members = []cir.TypeID{ty.Members[s]}
		}
	}
	var used int64
	for _, m := range members {
		mt, err := x.Type(m)
		if err != nil {
			delete(x.types, id)
			return nil, err
		}
		st.Fields = append(st.Fields, mt)
		used += x.dl.TypeAllocSize(m)
	}
	if ty.IsUnion() {
		if pad := x.dl.TypeAllocSize(id) - used; pad > 0 {
			st.Fields = append(st.Fields, types.NewArray(uint64(pad), types.I8))
		}
	}
	return st, nil
}

// Const translates an attribute. Arrays with a zero tail are expanded to
// their full length.
func (x *Exporter) Const(id cir.AttrID) (constant.Constant, error) {
	a := x.ctx.Attr(id)
	t, err := x.Type(a.Type)
	if err != nil {
		return nil, err
	}
	switch a.Kind {
	case cir.AttrInt:
		it, ok := t.(*types.IntType)
		if !ok {
			return nil, x.mismatch(a)
		}
		c := constant.NewInt(it, 0)
		c.X = signedValue(a.Int, x.ctx.Type(a.Type))
		return c, nil
	case cir.AttrBool:
		v := int64(0)
		if a.Bool {
			v = 1
		}
		return constant.NewInt(types.I8, v), nil
	case cir.AttrFloat:
		ft, ok := t.(*types.FloatType)
		if !ok {
			return nil, x.mismatch(a)
		}
		return constant.NewFloat(ft, a.Float), nil
	case cir.AttrZero:
		return constant.NewZeroInitializer(t), nil
	case cir.AttrUndef, cir.AttrPoison:
		return constant.NewUndef(t), nil
	case cir.AttrNullPtr:
		pt, ok := t.(*types.PointerType)
		if !ok {
			return nil, x.mismatch(a)
		}
		return constant.NewNull(pt), nil
	case cir.AttrConstArray:
		at, ok := t.(*types.ArrayType)
		if !ok {
			return nil, x.mismatch(a)
		}
		if len(a.Elems) == 0 {
			return constant.NewZeroInitializer(at), nil
		}
		elems, err := x.consts(a.Elems)
		if err != nil {
			return nil, err
		}
		for int64(len(elems)) < int64(at.Len) {
			elems = append(elems, zeroOf(at.ElemType))
		}
		return constant.NewArray(at, elems...), nil
	case cir.AttrConstRecord:
		st, ok := t.(*types.StructType)
		if !ok {
			return nil, x.mismatch(a)
		}
		fields, err := x.consts(a.Elems)
		if err != nil {
			return nil, err
		}
		if len(fields) != len(st.Fields) {
			return nil, fmt.Errorf("llvmexport: %d values for %d members of %s", len(fields), len(st.Fields), x.ctx.TypeString(a.Type))
		}
		return constant.NewStruct(st, fields...), nil
	case cir.AttrConstVector:
		vt, ok := t.(*types.VectorType)
		if !ok {
			return nil, x.mismatch(a)
		}
		elems, err := x.consts(a.Elems)
		if err != nil {
			return nil, err
		}
		return constant.NewVector(vt, elems...), nil
	case cir.AttrGlobalView:
		return x.globalView(a, t)
	}
	return nil, fmt.Errorf("llvmexport: unsupported constant %s", x.ctx.AttrString(id))
}

func (x *Exporter) consts(ids []cir.AttrID) ([]constant.Constant, error) {
	out := make([]constant.Constant, len(ids))
	for i, e := range ids {
		c, err := x.Const(e)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// globalView addresses a symbol plus a byte offset.
func (x *Exporter) globalView(a cir.Attr, t types.Type) (constant.Constant, error) {
	sym, ok := x.symbols[a.Symbol]
	if !ok {
		return nil, fmt.Errorf("llvmexport: unknown symbol @%s", a.Symbol)
	}
	var c constant.Constant = sym
	if len(a.Indices) > 0 {
		bytePtr := types.NewPointer(types.I8)
		c = constant.NewBitCast(c, bytePtr)
		for _, off := range a.Indices {
			c = constant.NewGetElementPtr(types.I8, c, constant.NewInt(types.I64, off))
		}
	}
	if !c.Type().Equal(t) {
		c = constant.NewBitCast(c, t)
	}
	return c, nil
}

// zeroOf spells scalar zeros the way LLVM prints them.
func zeroOf(t types.Type) constant.Constant {
	switch t := t.(type) {
	case *types.IntType:
		return constant.NewInt(t, 0)
	case *types.FloatType:
		return constant.NewFloat(t, 0)
	case *types.PointerType:
		return constant.NewNull(t)
	}
	return constant.NewZeroInitializer(t)
}

// signedValue renders a bit pattern in the signedness of its type.
func signedValue(v *big.Int, ty *cir.Type) *big.Int {
	out := new(big.Int).Set(v)
	if ty.Signed && ty.Width > 0 && out.Bit(int(ty.Width)-1) == 1 {
		out.Sub(out, cir.Pow2(uint(ty.Width)))
	}
	return out
}

func (x *Exporter) mismatch(a cir.Attr) error {
	return fmt.Errorf("llvmexport: constant kind %d does not fit type %s", a.Kind, x.ctx.TypeString(a.Type))
}
