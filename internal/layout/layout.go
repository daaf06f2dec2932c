package layout

import (
	"cirgen/internal/types"
)

// TypeLayout is the size and alignment of a source type, in bytes.
type TypeLayout struct {
	Size  int64
	Align int64
}

// Engine answers source-level layout questions: type sizes and record
// field, base and virtual-base offsets. Results are memoized per engine.
type Engine struct {
	Target Target
	Types  *types.Interner

	cache *cache
}

// New creates an Engine for the target.
func New(target Target, typesIn *types.Interner) *Engine {
	return &Engine{Target: target, Types: typesIn, cache: newCache()}
}

type layoutState struct {
	stack []*types.RecordDecl
	index map[*types.RecordDecl]int
}

func newLayoutState() *layoutState {
	return &layoutState{index: make(map[*types.RecordDecl]int, 8)}
}

// TypeInfo returns the size and alignment of t.
func (e *Engine) TypeInfo(t types.TypeID) (TypeLayout, error) {
	l, err := e.typeInfo(t, newLayoutState())
	if err != nil {
		return l, err
	}
	return l, nil
}

// SizeOf returns sizeof(t) in bytes; it panics on types without a layout,
// which upstream checking rules out.
func (e *Engine) SizeOf(t types.TypeID) int64 {
	l, err := e.TypeInfo(t)
	if err != nil {
		panic(err)
	}
	return l.Size
}

// AlignOf returns alignof(t) in bytes.
func (e *Engine) AlignOf(t types.TypeID) int64 {
	l, err := e.TypeInfo(t)
	if err != nil {
		panic(err)
	}
	return l.Align
}

// DataSizeOf is sizeof(t) without tail padding that a derived object or a
// [[no_unique_address]] neighbour may reuse.
func (e *Engine) DataSizeOf(t types.TypeID) int64 {
	if rd := e.Types.Record(t); rd != nil && rd.CXX && !rd.IsPOD() {
		rl, err := e.Record(rd)
		if err != nil {
			panic(err)
		}
		return rl.DataSize
	}
	return e.SizeOf(t)
}

func (e *Engine) typeInfo(id types.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	t, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{Align: 1}, &LayoutError{Kind: LayoutErrBadType, Type: id}
	}
	tg := e.Target
	switch t.Kind {
	case types.KindBool:
		return TypeLayout{Size: 1, Align: 1}, nil
	case types.KindInt:
		return e.intLayout(t.Width), nil
	case types.KindFloat:
		if t.Width == 32 {
			return TypeLayout{Size: 4, Align: 4}, nil
		}
		return TypeLayout{Size: 8, Align: tg.DoubleAlign}, nil
	case types.KindPointer, types.KindNullPtr, types.KindMemberPointer:
		return TypeLayout{Size: tg.PtrSize, Align: tg.PtrAlign}, nil
	case types.KindArray:
		el, err := e.typeInfo(t.Elem, state)
		if err != nil {
			return el, err
		}
		if t.Count == types.IncompleteLength {
			return TypeLayout{Size: 0, Align: el.Align}, nil
		}
		return TypeLayout{Size: el.Size * t.Count, Align: el.Align}, nil
	case types.KindVector:
		el, err := e.typeInfo(t.Elem, state)
		if err != nil {
			return el, err
		}
		size := powerOf2Ceil(el.Size * t.Count)
		return TypeLayout{Size: size, Align: min(size, tg.MaxVecAlign)}, nil
	case types.KindRecord:
		rd := e.Types.Record(id)
		rl, err := e.record(rd, state)
		if err != nil {
			return TypeLayout{Align: 1}, err
		}
		return TypeLayout{Size: rl.Size, Align: rl.Align}, nil
	case types.KindVoid:
		return TypeLayout{Size: 1, Align: 1}, nil
	}
	return TypeLayout{Align: 1}, &LayoutError{Kind: LayoutErrBadType, Type: id}
}

func (e *Engine) intLayout(width uint16) TypeLayout {
	size := powerOf2Ceil(int64(width+7) / 8)
	switch {
	case size >= 16:
		return TypeLayout{Size: size, Align: e.Target.Int128Align}
	case size == 8:
		return TypeLayout{Size: 8, Align: e.Target.Int64Align}
	}
	return TypeLayout{Size: size, Align: size}
}

// Record returns the layout of rd, computing it on first use.
func (e *Engine) Record(rd *types.RecordDecl) (*RecordLayout, error) {
	rl, err := e.record(rd, newLayoutState())
	if err != nil {
		return nil, err
	}
	return rl, nil
}

// MustRecord is Record for callers that run after layout has succeeded.
func (e *Engine) MustRecord(rd *types.RecordDecl) *RecordLayout {
	rl, err := e.Record(rd)
	if err != nil {
		panic(err)
	}
	return rl
}

func (e *Engine) record(rd *types.RecordDecl, state *layoutState) (*RecordLayout, *LayoutError) {
	if rd == nil {
		return nil, &LayoutError{Kind: LayoutErrNotRecord}
	}
	if rl, ok := e.cache.get(rd); ok {
		return rl, nil
	}
	if !rd.IsComplete() {
		return nil, &LayoutError{Kind: LayoutErrIncomplete, Type: rd.Self, Record: rd.Name}
	}
	if idx, ok := state.index[rd]; ok {
		cycle := make([]string, 0, len(state.stack)-idx+1)
		for _, r := range state.stack[idx:] {
			cycle = append(cycle, r.Name)
		}
		cycle = append(cycle, rd.Name)
		return nil, &LayoutError{Kind: LayoutErrRecursive, Type: rd.Self, Record: rd.Name, Cycle: cycle}
	}
	state.index[rd] = len(state.stack)
	state.stack = append(state.stack, rd)
	rl, err := e.computeRecord(rd, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, rd)
	if err != nil {
		return nil, err
	}
	e.cache.put(rd, rl)
	return rl, nil
}

// IsNearlyEmpty reports whether rd holds nothing but a vtable pointer.
func (e *Engine) IsNearlyEmpty(rd *types.RecordDecl) bool {
	if !rd.IsDynamic() {
		return false
	}
	rl, err := e.Record(rd)
	return err == nil && rl.NonVirtualSize == e.Target.PtrSize
}

// IsZeroSizeField reports whether f occupies no storage: zero-length
// bit-fields and empty [[no_unique_address]] members.
func (e *Engine) IsZeroSizeField(f *types.FieldDecl) bool {
	if f.IsBitField() {
		return f.BitWidth == 0
	}
	if !f.NoUniqueAddress {
		return false
	}
	rd := e.Types.Record(f.Type)
	return rd != nil && rd.IsEmpty()
}

func roundUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func powerOf2Ceil(n int64) int64 {
	if n <= 1 {
		return 1
	}
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// BitsToBytes converts a bit count to whole bytes, rounding down.
func BitsToBytes(bits int64) int64 { return bits / 8 }

// BytesToBits converts a byte count to bits.
func BytesToBits(n int64) int64 { return n * 8 }
