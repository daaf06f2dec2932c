package codegen

import (
	"errors"
	"fmt"

	"cirgen/internal/ast"
	"cirgen/internal/cir"
	"cirgen/internal/constagg"
	"cirgen/internal/diag"
	"cirgen/internal/layout"
	"cirgen/internal/recordlayout"
	"cirgen/internal/trace"
	"cirgen/internal/types"
)

// Policy holds the tunable thresholds of aggregate emission.
type Policy struct {
	// MemsetMinSize is the object size in bytes above which an
	// initializer may be preceded by a single zero fill.
	MemsetMinSize int64
	// MemsetNonzeroRatio: zero fill when nonzero*ratio <= size.
	MemsetNonzeroRatio int64
	// PartialOrderingUnordered is the value of an unordered <=> result.
	PartialOrderingUnordered int64
}

func DefaultPolicy() Policy {
	return Policy{MemsetMinSize: 16, MemsetNonzeroRatio: 4, PartialOrderingUnordered: -127}
}

// Module emits one translation unit into an IR module.
type Module struct {
	IR     *cir.Module
	Types  *recordlayout.Types
	Consts *constagg.Emitter
	Policy Policy
	Tracer trace.Tracer

	unit     *ast.Unit
	reporter diag.Reporter
	ctx      *cir.Context
	src      *types.Interner
	oracle   *layout.Engine

	// globals maps each emitted variable to its storage, so a global
	// reached twice is materialized once.
	globals map[*ast.VarDecl]*cir.Global
	strings map[string]string
	initSeq int
}

// NewModule prepares emission of u. The constant emitter must share the
// type converter ts.
func NewModule(u *ast.Unit, ts *recordlayout.Types, consts *constagg.Emitter, r diag.Reporter, p Policy) *Module {
	if r == nil {
		r = diag.NopReporter{}
	}
	return &Module{
		IR:       cir.NewModule(u.Name, ts.Ctx, ts.DL),
		Types:    ts,
		Consts:   consts,
		Policy:   p,
		Tracer:   trace.Nop,
		unit:     u,
		reporter: r,
		ctx:      ts.Ctx,
		src:      ts.Src,
		oracle:   ts.Oracle,
		globals:  make(map[*ast.VarDecl]*cir.Global),
		strings:  make(map[string]string),
	}
}

// EmitUnit emits every global and then every function. Failures of one
// declaration do not stop the others; they are joined in the result.
func (m *Module) EmitUnit() error {
	var errs []error
	for _, v := range m.unit.Globals {
		if err := m.EmitGlobalVarDefinition(v); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fd := range m.unit.Funcs {
		if err := m.EmitFunction(fd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitGlobalVarDefinition defines v. A constant initializer becomes the
// global's value; otherwise the global is zero-initialized and a dynamic
// initializer function finishes the job.
func (m *Module) EmitGlobalVarDefinition(v *ast.VarDecl) error {
	if _, ok := m.globals[v]; ok {
		return nil
	}
	span := trace.Begin(m.Tracer, trace.ScopeRecord, "global "+v.Name, 0)
	c := m.Consts.TryEmitForInitializer(v)
	if c != cir.NoAttr {
		m.globals[v] = m.IR.AddGlobal(&cir.Global{
			Name: v.Name, Type: m.ctx.AttrType(c), Init: c, Align: m.oracle.AlignOf(v.Type),
		})
		span.End("constant")
		return nil
	}

	if rd := m.src.Record(v.Type); rd != nil && rd.HasFlexibleArrayMember() {
		diag.ReportError(m.reporter, diag.CstFlexibleArrayDyn, v.Span,
			fmt.Sprintf("initializer of %s with a flexible array member is not a constant", v.Name)).Emit()
		span.End("rejected")
		return &UnsupportedError{Kind: UnsupportedInput, Code: diag.CstFlexibleArrayDyn, Span: v.Span, Detail: v.Name}
	}
	if m.src.Destruction(v.Type) != types.DestructNone {
		span.End("rejected")
		return m.nyi(diag.NYIGlobalDestructor, v.Span, v.Name)
	}

	diag.ReportInfo(m.reporter, diag.CstFallbackDynamic, v.Span,
		fmt.Sprintf("initializer of %s is emitted as code", v.Name)).Emit()
	null := m.Consts.EmitNullConstant(v.Type)
	g := m.IR.AddGlobal(&cir.Global{
		Name: v.Name, Type: m.ctx.AttrType(null), Init: null, Align: m.oracle.AlignOf(v.Type),
	})
	m.globals[v] = g

	name := "__cxx_global_var_init"
	if m.initSeq > 0 {
		name = fmt.Sprintf("%s.%d", name, m.initSeq)
	}
	m.initSeq++
	fn := m.IR.GetOrAddFunc(name, m.ctx.Func(nil, m.ctx.Void()))
	gen := newFuncGen(m, fn, v.Span)
	addr := gen.addrOfGlobal(g, v.Type)
	slot := AggValueSlot{Addr: addr, Zeroed: true, ExternallyDestructed: true, Volatile: m.src.IsVolatile(v.Type)}
	lv := LValue{Addr: addr, Type: v.Type, Volatile: slot.Volatile}
	if err := gen.emitInitializerTo(v.Init, lv, slot); err != nil {
		fn.Blocks, fn.Decl = nil, true
		span.End("failed")
		return err
	}
	gen.popCleanupsTo(0)
	gen.b.Return(cir.NoValue)
	g.DynamicInit = name
	span.End("dynamic")
	return nil
}

// EmitFunction emits fd; a declaration only declares the symbol.
func (m *Module) EmitFunction(fd *ast.FuncDecl) error {
	fn := m.declareFunc(fd)
	if !fd.IsDefinition() || !fn.Decl {
		return nil
	}
	span := trace.Begin(m.Tracer, trace.ScopeRecord, "func "+fd.Name, 0)
	g := newFuncGen(m, fn, fd.Span)
	g.decl = fd
	if err := g.emitBody(fd); err != nil {
		fn.Blocks, fn.Decl = nil, true
		span.End("failed")
		return err
	}
	trace.Point(m.Tracer, trace.ScopeNode, "emitted "+fd.Name, fmt.Sprintf("%d blocks", len(fn.Blocks)), span.ID())
	span.End("ok")
	return nil
}

func (m *Module) declareFunc(fd *ast.FuncDecl) *cir.Func {
	params := make([]cir.TypeID, len(fd.Params))
	for i, p := range fd.Params {
		params[i] = m.Types.ConvertType(p.Type)
	}
	return m.IR.GetOrAddFunc(fd.Name, m.ctx.Func(params, m.Types.ConvertType(fd.Result)))
}

// global returns the storage of v, emitting its definition on first use.
func (m *Module) global(v *ast.VarDecl) (*cir.Global, error) {
	if g, ok := m.globals[v]; ok {
		return g, nil
	}
	if err := m.EmitGlobalVarDefinition(v); err != nil {
		return nil, err
	}
	return m.globals[v], nil
}

// stringGlobal returns a private constant holding s as an array of t.
func (m *Module) stringGlobal(s string, t types.TypeID) (*cir.Global, error) {
	key := fmt.Sprintf("%s|%d", s, t)
	if name, ok := m.strings[key]; ok {
		g, _ := m.IR.Global(name)
		return g, nil
	}
	c := m.Consts.TryEmitPrivateForMemory(ast.StringLit(t, s), t)
	if c == cir.NoAttr {
		return nil, fmt.Errorf("codegen: string literal of type %s is not a constant", m.src.String(t))
	}
	name := fmt.Sprintf(".str.%d", len(m.strings))
	m.strings[key] = name
	return m.IR.AddGlobal(&cir.Global{
		Name: name, Type: m.ctx.AttrType(c), Init: c, Constant: true, Align: m.oracle.AlignOf(t),
	}), nil
}

// Global returns the emitted storage of v, if any.
func (m *Module) Global(v *ast.VarDecl) (*cir.Global, bool) {
	g, ok := m.globals[v]
	return g, ok
}
