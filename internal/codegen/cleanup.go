package codegen

import (
	"cirgen/internal/cir"
	"cirgen/internal/types"
)

// CleanupKind enumerates what a cleanup does when its scope exits.
type CleanupKind uint8

const (
	// CleanupDestroy runs the destructor of Type at Addr.
	CleanupDestroy CleanupKind = iota + 1
	// CleanupLifetimeEnd ends the lifetime of a temporary at Addr.
	CleanupLifetimeEnd
	// CleanupCall calls Fn with Addr.
	CleanupCall
)

func (k CleanupKind) String() string {
	switch k {
	case CleanupDestroy:
		return "destroy"
	case CleanupLifetimeEnd:
		return "lifetime-end"
	case CleanupCall:
		return "call"
	default:
		return "invalid"
	}
}

// Cleanup is one entry of the cleanup stack.
type Cleanup struct {
	Kind   CleanupKind
	Addr   Address
	Type   types.TypeID
	Fn     string
	Active bool
	// Guards are the branch conditions under which the cleanup was
	// pushed; it runs only when all of them held.
	Guards []CleanupGuard
}

// CleanupGuard requires Cond to equal When.
type CleanupGuard struct {
	Cond cir.Value
	When bool
}

// CleanupHandle identifies a pushed cleanup.
type CleanupHandle int

// cleanupStack holds cleanups in push order. Entries leave the stack only
// through popCleanupsTo, which emits the active ones in reverse order.
type cleanupStack struct {
	entries  []Cleanup
	deferred []CleanupHandle
}

func (s *cleanupStack) depth() int { return len(s.entries) }

func (s *cleanupStack) push(c Cleanup) CleanupHandle {
	c.Active = true
	s.entries = append(s.entries, c)
	return CleanupHandle(len(s.entries) - 1)
}

func (s *cleanupStack) deactivate(h CleanupHandle) {
	if int(h) < len(s.entries) {
		s.entries[h].Active = false
	}
}

// deferDeactivation marks h for deactivation when the innermost
// deactivation scope completes normally.
func (s *cleanupStack) deferDeactivation(h CleanupHandle) {
	s.deferred = append(s.deferred, h)
}

// guardFrom makes the cleanups pushed above depth conditional on cond
// being when.
func (s *cleanupStack) guardFrom(depth int, cond cir.Value, when bool) {
	for i := depth; i < len(s.entries); i++ {
		e := &s.entries[i]
		e.Guards = append(e.Guards, CleanupGuard{Cond: cond, When: when})
	}
}

// active returns the cleanups that would run on scope exit, innermost
// last.
func (s *cleanupStack) active() []Cleanup {
	var out []Cleanup
	for _, c := range s.entries {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// deactivationScope collects cleanups pushed while one aggregate is being
// initialized. Once the whole aggregate is complete its owner destroys it,
// so the per-member cleanups are switched off together.
type deactivationScope struct {
	s     *cleanupStack
	start int
}

func (s *cleanupStack) beginDeactivation() deactivationScope {
	return deactivationScope{s: s, start: len(s.deferred)}
}

func (d deactivationScope) end() {
	for _, h := range d.s.deferred[d.start:] {
		d.s.deactivate(h)
	}
	d.s.deferred = d.s.deferred[:d.start]
}

// popCleanupsTo emits the active cleanups above depth in LIFO order and removes
// them.
func (g *funcGen) popCleanupsTo(depth int) {
	s := &g.cleanups
	if !g.b.Block().Terminated() {
		for i := len(s.entries) - 1; i >= depth; i-- {
			if s.entries[i].Active {
				g.emitCleanup(s.entries[i])
			}
		}
	}
	s.entries = s.entries[:depth]
}

// emitAllCleanups runs every active cleanup without popping; used on
// return paths.
func (g *funcGen) emitAllCleanups() {
	s := &g.cleanups
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Active {
			g.emitCleanup(s.entries[i])
		}
	}
}

func (g *funcGen) emitCleanup(c Cleanup) {
	if len(c.Guards) == 0 {
		g.runCleanup(c)
		return
	}
	done := g.b.NewBlock()
	for _, gd := range c.Guards {
		next := g.b.NewBlock()
		if gd.When {
			g.b.CondBr(gd.Cond, next, done)
		} else {
			g.b.CondBr(gd.Cond, done, next)
		}
		g.b.SetInsertBlock(next)
	}
	g.runCleanup(c)
	g.b.Br(done)
	g.b.SetInsertBlock(done)
}

func (g *funcGen) runCleanup(c Cleanup) {
	switch c.Kind {
	case CleanupDestroy:
		g.emitDestroy(c.Addr, c.Type)
	case CleanupLifetimeEnd:
		g.b.LifetimeEnd(c.Addr.Ptr)
	case CleanupCall:
		g.callVoid(c.Fn, c.Addr)
	}
}

// pushDestroy schedules destruction of the object of type t at addr.
func (g *funcGen) pushDestroy(addr Address, t types.TypeID) CleanupHandle {
	return g.cleanups.push(Cleanup{Kind: CleanupDestroy, Addr: addr, Type: t})
}

// pushDestroyAndDeferDeactivation is pushDestroy for a member of an
// aggregate under construction.
func (g *funcGen) pushDestroyAndDeferDeactivation(addr Address, t types.TypeID) {
	g.cleanups.deferDeactivation(g.pushDestroy(addr, t))
}

// DestructorName is the symbol of the destructor of rd.
func DestructorName(rd *types.RecordDecl) string {
	if rd.NonTrivialDtor || rd.CXX {
		return rd.Name + "::~" + rd.Name
	}
	return "__destructor_" + rd.Name
}

func (g *funcGen) emitDestroy(addr Address, t types.TypeID) {
	rd := g.m.src.Record(g.m.src.Unqualified(t))
	if rd == nil {
		panic("codegen: destroying a non-record of type " + g.m.src.String(t))
	}
	g.callVoid(DestructorName(rd), addr)
}

// callVoid calls fn(addr), declaring fn on first use.
func (g *funcGen) callVoid(fn string, addr Address) {
	c := g.m.ctx
	g.m.IR.GetOrAddFunc(fn, c.Func([]cir.TypeID{c.Pointer(addr.Elem)}, c.Void()))
	g.b.Call(fn, []cir.Value{addr.Ptr}, cir.NoType)
}
