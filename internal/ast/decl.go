package ast

import (
	"cirgen/internal/source"
	"cirgen/internal/types"
)

// VarDecl is a global, local or parameter variable.
type VarDecl struct {
	Name   string
	Type   types.TypeID
	Init   *Expr
	Global bool
	// Evaluated is the folded value of Init, when constant evaluation
	// succeeded upstream.
	Evaluated *APValue
	Span      source.Span
}

// StmtKind enumerates the statements a function body may hold.
type StmtKind uint8

const (
	StmtDecl StmtKind = iota
	StmtExpr
	StmtReturn
)

type Stmt struct {
	Kind StmtKind
	Var  *VarDecl // StmtDecl
	Expr *Expr    // StmtExpr, StmtReturn (nil for a bare return)
	Span source.Span
}

// FuncDecl is a function. A nil Body declares an external function.
type FuncDecl struct {
	Name   string
	Result types.TypeID
	Params []*VarDecl
	Body   []*Stmt
	Span   source.Span
}

func (f *FuncDecl) IsDefinition() bool { return f.Body != nil }

// Unit is one translation unit.
type Unit struct {
	Name    string
	Types   *types.Interner
	Globals []*VarDecl
	Funcs   []*FuncDecl
}

// Func returns the function named name, or nil.
func (u *Unit) Func(name string) *FuncDecl {
	for _, f := range u.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global returns the global variable named name, or nil.
func (u *Unit) Global(name string) *VarDecl {
	for _, g := range u.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}
