package cir

import "fortio.org/safecast"

// BlockID indexes Func.Blocks.
type BlockID int

// TermKind enumerates block terminators.
type TermKind uint8

const (
	TermNone TermKind = iota
	TermBr
	TermCondBr
	TermReturn
	TermUnreachable
)

// Terminator ends a block.
type Terminator struct {
	Kind  TermKind
	Cond  Value
	Then  BlockID // TermBr target
	Else  BlockID
	Value Value // TermReturn, NoValue for void
}

// Block is a straight-line op sequence ending in a terminator.
type Block struct {
	ID   BlockID
	Ops  []Op
	Term Terminator
}

// Terminated reports whether the block already has a terminator.
func (b *Block) Terminated() bool { return b == nil || b.Term.Kind != TermNone }

// Func is a function definition or declaration.
type Func struct {
	Name   string
	Type   TypeID // TypeFunc
	Params []Value
	Blocks []*Block
	// Decl marks an external declaration without a body.
	Decl bool

	values []TypeID
}

// NewValue allocates an SSA value of type t.
func (f *Func) NewValue(t TypeID) Value {
	f.values = append(f.values, t)
	return Value(safecast.MustConv[int32](len(f.values) - 1))
}

// ValueType returns the type of v.
func (f *Func) ValueType(v Value) TypeID {
	if v < 0 || int(v) >= len(f.values) {
		return NoType
	}
	return f.values[v]
}

// NumValues returns the number of allocated values.
func (f *Func) NumValues() int { return len(f.values) }

// NewBlock appends an empty block.
func (f *Func) NewBlock() *Block {
	b := &Block{ID: BlockID(len(f.Blocks))}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Ops calls fn for every op of every block in order.
func (f *Func) Ops(fn func(b *Block, op *Op)) {
	for _, b := range f.Blocks {
		for i := range b.Ops {
			fn(b, &b.Ops[i])
		}
	}
}

// Global is a module-level variable.
type Global struct {
	Name     string
	Type     TypeID
	Init     AttrID // NoAttr for an external declaration
	Constant bool
	Align    int64
	// DynamicInit names the function that finishes initialization at
	// startup, empty when Init is complete.
	DynamicInit string
}

// Module is one translation unit of IR.
type Module struct {
	Name   string
	Ctx    *Context
	Layout *DataLayout

	Globals []*Global
	Funcs   []*Func

	globalIdx map[string]int
	funcIdx   map[string]int
}

// NewModule creates an empty module over ctx and dl.
func NewModule(name string, ctx *Context, dl *DataLayout) *Module {
	return &Module{
		Name: name, Ctx: ctx, Layout: dl,
		globalIdx: make(map[string]int), funcIdx: make(map[string]int),
	}
}

// Global returns the global with the given name.
func (m *Module) Global(name string) (*Global, bool) {
	i, ok := m.globalIdx[name]
	if !ok {
		return nil, false
	}
	return m.Globals[i], true
}

// AddGlobal inserts g; a later definition with the same name replaces an
// earlier one in place.
func (m *Module) AddGlobal(g *Global) *Global {
	if i, ok := m.globalIdx[g.Name]; ok {
		m.Globals[i] = g
		return g
	}
	m.globalIdx[g.Name] = len(m.Globals)
	m.Globals = append(m.Globals, g)
	return g
}

// Func returns the function with the given name.
func (m *Module) Func(name string) (*Func, bool) {
	i, ok := m.funcIdx[name]
	if !ok {
		return nil, false
	}
	return m.Funcs[i], true
}

// GetOrAddFunc returns the named function, declaring it if absent.
func (m *Module) GetOrAddFunc(name string, fnType TypeID) *Func {
	if f, ok := m.Func(name); ok {
		return f
	}
	f := &Func{Name: name, Type: fnType, Decl: true}
	m.funcIdx[name] = len(m.Funcs)
	m.Funcs = append(m.Funcs, f)
	return f
}
