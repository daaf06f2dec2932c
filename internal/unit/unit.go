// Package unit reads translation units written in TOML: record
// definitions, global variables with initializers, and small function
// bodies. It produces the types and ast input of the emitters.
package unit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cirgen/internal/ast"
	"cirgen/internal/diag"
	"cirgen/internal/source"
	"cirgen/internal/types"
)

type fileSpec struct {
	Records   []recordSpec `toml:"record"`
	Globals   []globalSpec `toml:"global"`
	Functions []funcSpec   `toml:"function"`
}

type recordSpec struct {
	Name            string      `toml:"name"`
	Kind            string      `toml:"kind"`
	CXX             bool        `toml:"cxx"`
	Packed          bool        `toml:"packed"`
	Align           int         `toml:"align"`
	Bases           []baseSpec  `toml:"bases"`
	Polymorphic     bool        `toml:"polymorphic"`
	Final           bool        `toml:"final"`
	NontrivialDtor  bool        `toml:"nontrivial_dtor"`
	NontrivialCDtor bool        `toml:"nontrivial_c_dtor"`
	NontrivialCopy  bool        `toml:"nontrivial_copy"`
	Fields          []fieldSpec `toml:"fields"`
	Ctors           []ctorSpec  `toml:"ctors"`
}

type baseSpec struct {
	Type    string `toml:"type"`
	Virtual bool   `toml:"virtual"`
}

type fieldSpec struct {
	Name            string `toml:"name"`
	Type            string `toml:"type"`
	Bits            *int   `toml:"bits"`
	NoUniqueAddress bool   `toml:"no_unique_address"`
}

type ctorSpec struct {
	Name    string   `toml:"name"`
	Params  []string `toml:"params"`
	Trivial bool     `toml:"trivial"`
	Default bool     `toml:"default"`
	Copy    bool     `toml:"copy"`
	Move    bool     `toml:"move"`
}

type globalSpec struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
	Init any    `toml:"init"`
}

type paramSpec struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

type funcSpec struct {
	Name    string           `toml:"name"`
	Returns string           `toml:"returns"`
	Params  []paramSpec      `toml:"params"`
	Body    []map[string]any `toml:"body"`
}

type parser struct {
	file    string
	in      *types.Interner
	b       types.Builtins
	r       diag.Reporter
	unit    *ast.Unit
	globals map[string]*ast.VarDecl
	funcs   map[string]*ast.FuncDecl
	errs    []error
}

// ParseFile reads the unit at path into the interner in.
func ParseFile(path string, in *types.Interner, r diag.Reporter) (*ast.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit: %w", err)
	}
	return Parse(path, data, in, r)
}

// Parse builds a unit named after file from TOML data. Every malformed
// declaration is reported; the joined errors are returned together with
// a nil unit.
func Parse(file string, data []byte, in *types.Interner, r diag.Reporter) (*ast.Unit, error) {
	if r == nil {
		r = diag.NopReporter{}
	}
	p := &parser{
		file:    file,
		in:      in,
		b:       in.Builtins(),
		r:       r,
		unit:    &ast.Unit{Name: unitName(file), Types: in},
		globals: make(map[string]*ast.VarDecl),
		funcs:   make(map[string]*ast.FuncDecl),
	}

	var spec fileSpec
	meta, err := toml.Decode(string(data), &spec)
	if err != nil {
		err = p.fail(ParseErrSyntax, source.Span{File: file}, err.Error())
		return nil, err
	}
	for _, k := range meta.Undecoded() {
		// Initializer and body trees decode into generic values; only
		// declaration-level keys can be misspelled.
		if len(k) <= 2 {
			_ = p.fail(ParseErrBadField, source.Span{File: file, Decl: k.String()}, "unknown key "+k.String())
		}
	}
	spec.normalize()

	p.records(spec.Records)
	p.declareFuncs(spec.Functions)
	p.declareGlobals(spec.Globals)
	p.globalInits(spec.Globals)
	p.funcBodies(spec.Functions)

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return p.unit, nil
}

func unitName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (p *parser) fail(kind ParseErrorKind, sp source.Span, detail string) error {
	err := &ParseError{Kind: kind, Span: sp, Detail: detail}
	diag.ReportError(p.r, err.Code(), sp, err.Error()).Emit()
	p.errs = append(p.errs, err)
	return err
}

func (p *parser) span(format string, args ...any) source.Span {
	return source.Span{File: p.file, Decl: fmt.Sprintf(format, args...)}
}

func (p *parser) records(specs []recordSpec) {
	decls := make([]*types.RecordDecl, len(specs))
	for i, rs := range specs {
		sp := p.span("record %s", rs.Name)
		if rs.Name == "" {
			_ = p.fail(ParseErrBadField, p.span("record[%d]", i), "record without a name")
			continue
		}
		if p.in.RecordByName(rs.Name) != nil {
			_ = p.fail(ParseErrDuplicate, sp, rs.Name)
			continue
		}
		var tag types.TagKind
		switch rs.Kind {
		case "", "struct":
			tag = types.TagStruct
		case "class":
			tag = types.TagClass
		case "union":
			tag = types.TagUnion
		default:
			_ = p.fail(ParseErrBadField, sp, fmt.Sprintf("unknown record kind %q", rs.Kind))
			continue
		}
		decls[i] = p.in.NewRecord(rs.Name, tag)
	}

	// Fields may name records declared later in the file.
	for i, rs := range specs {
		rd := decls[i]
		if rd == nil {
			continue
		}
		sp := p.span("record %s", rs.Name)
		rd.CXX = rs.CXX || rd.Tag == types.TagClass
		rd.Packed = rs.Packed
		rd.AlignAttr = rs.Align
		rd.Polymorphic = rs.Polymorphic
		rd.Final = rs.Final
		rd.NonTrivialDtor = rs.NontrivialDtor
		rd.NonTrivialCDtor = rs.NontrivialCDtor
		rd.NonTrivialCopy = rs.NontrivialCopy
		if rs.Align < 0 || rs.Align&(rs.Align-1) != 0 {
			_ = p.fail(ParseErrBadField, sp, fmt.Sprintf("alignment %d is not a power of two", rs.Align))
		}

		for j, bs := range rs.Bases {
			bt, err := p.parseType(bs.Type, sp.Child("bases[%d]", j))
			if err != nil {
				continue
			}
			if !p.in.IsRecord(bt) || p.in.Record(bt).IsUnion() {
				_ = p.fail(ParseErrBadField, sp.Child("bases[%d]", j), bs.Type+" is not a class")
				continue
			}
			rd.AddBase(bt, bs.Virtual)
		}

		seen := make(map[string]bool, len(rs.Fields))
		for j, fs := range rs.Fields {
			fsp := sp.Child("fields[%d]", j)
			if fs.Name != "" {
				if seen[fs.Name] {
					_ = p.fail(ParseErrDuplicate, fsp, rs.Name+"::"+fs.Name)
					continue
				}
				seen[fs.Name] = true
			}
			ft, err := p.parseType(fs.Type, fsp)
			if err != nil {
				continue
			}
			var f *types.FieldDecl
			if fs.Bits != nil {
				if *fs.Bits < 0 || !p.in.IsIntegral(ft) {
					_ = p.fail(ParseErrBadField, fsp, fmt.Sprintf("bit-field %q needs an integer type and a width >= 0", fs.Name))
					continue
				}
				f = rd.AddBitField(fs.Name, ft, *fs.Bits)
			} else {
				if fs.Name == "" {
					_ = p.fail(ParseErrBadField, fsp, "only bit-fields may be unnamed")
					continue
				}
				if p.in.IsIncompleteArray(ft) && j != len(rs.Fields)-1 {
					_ = p.fail(ParseErrBadField, fsp, "flexible array member must be last")
					continue
				}
				f = rd.AddField(fs.Name, ft)
			}
			f.NoUniqueAddress = fs.NoUniqueAddress
		}

		for j, cs := range rs.Ctors {
			csp := sp.Child("ctors[%d]", j)
			c := &types.CtorDecl{Name: cs.Name, Trivial: cs.Trivial, Default: cs.Default, Copy: cs.Copy, Move: cs.Move}
			for k, ps := range cs.Params {
				pt, err := p.parseType(ps, csp.Child("params[%d]", k))
				if err != nil {
					continue
				}
				c.Params = append(c.Params, pt)
			}
			rd.AddCtor(c)
		}
	}
	for _, rd := range decls {
		if rd != nil {
			rd.Complete()
		}
	}
}

func (p *parser) declareFuncs(specs []funcSpec) {
	for _, fs := range specs {
		sp := p.span("function %s", fs.Name)
		if _, dup := p.funcs[fs.Name]; dup || fs.Name == "" {
			_ = p.fail(ParseErrDuplicate, sp, fs.Name)
			continue
		}
		result := p.b.Void
		if fs.Returns != "" {
			var err error
			if result, err = p.parseType(fs.Returns, sp.Child("returns")); err != nil {
				continue
			}
		}
		fd := &ast.FuncDecl{Name: fs.Name, Result: result, Span: sp}
		for i, ps := range fs.Params {
			pt, err := p.parseType(ps.Type, sp.Child("params[%d]", i))
			if err != nil {
				continue
			}
			fd.Params = append(fd.Params, &ast.VarDecl{Name: ps.Name, Type: pt, Span: sp.Child("params[%d]", i)})
		}
		p.funcs[fs.Name] = fd
		p.unit.Funcs = append(p.unit.Funcs, fd)
	}
}

func (p *parser) declareGlobals(specs []globalSpec) {
	for _, gs := range specs {
		sp := p.span("global %s", gs.Name)
		if _, dup := p.globals[gs.Name]; dup || gs.Name == "" {
			_ = p.fail(ParseErrDuplicate, sp, gs.Name)
			continue
		}
		t, err := p.parseType(gs.Type, sp.Child("type"))
		if err != nil {
			continue
		}
		v := &ast.VarDecl{Name: gs.Name, Type: t, Global: true, Span: sp}
		p.globals[gs.Name] = v
		p.unit.Globals = append(p.unit.Globals, v)
	}
}

func (p *parser) globalInits(specs []globalSpec) {
	for _, gs := range specs {
		v := p.globals[gs.Name]
		if v == nil || gs.Init == nil || v.Init != nil {
			continue
		}
		e, err := p.expr(gs.Init, v.Type, v.Span.Child("init"), nil)
		if err != nil {
			continue
		}
		v.Init = e
	}
}

// scope holds the locals visible in a function body.
type scope struct {
	fn   *ast.FuncDecl
	vars map[string]*ast.VarDecl
}

func (p *parser) lookup(name string, sc *scope) *ast.VarDecl {
	if sc != nil {
		if v, ok := sc.vars[name]; ok {
			return v
		}
	}
	return p.globals[name]
}

func (p *parser) funcBodies(specs []funcSpec) {
	for _, fs := range specs {
		fd := p.funcs[fs.Name]
		if fd == nil || fd.Body != nil || fs.Body == nil {
			continue
		}
		sc := &scope{fn: fd, vars: make(map[string]*ast.VarDecl)}
		for _, prm := range fd.Params {
			sc.vars[prm.Name] = prm
		}
		body := make([]*ast.Stmt, 0, len(fs.Body))
		for i, raw := range fs.Body {
			if st, err := p.stmt(raw, fd.Span.Child("body[%d]", i), sc); err == nil {
				body = append(body, st)
			}
		}
		fd.Body = body
	}
}

func (p *parser) stmt(raw map[string]any, sp source.Span, sc *scope) (*ast.Stmt, error) {
	switch {
	case raw["var"] != nil:
		name, _ := raw["var"].(string)
		ts, _ := raw["type"].(string)
		if name == "" {
			return nil, p.fail(ParseErrBadField, sp, "local without a name")
		}
		if _, dup := sc.vars[name]; dup {
			return nil, p.fail(ParseErrDuplicate, sp, name)
		}
		t, err := p.parseType(ts, sp.Child("type"))
		if err != nil {
			return nil, err
		}
		v := &ast.VarDecl{Name: name, Type: t, Span: sp}
		if init, ok := raw["init"]; ok {
			if v.Init, err = p.expr(init, t, sp.Child("init"), sc); err != nil {
				return nil, err
			}
		}
		sc.vars[name] = v
		return &ast.Stmt{Kind: ast.StmtDecl, Var: v, Span: sp}, nil

	case raw["assign"] != nil:
		lhs, err := p.lvalue(raw["assign"], sp.Child("assign"), sc)
		if err != nil {
			return nil, err
		}
		from, ok := raw["from"]
		if !ok {
			return nil, p.fail(ParseErrBadInit, sp, "assignment without from")
		}
		rhs, err := p.expr(from, p.in.Unqualified(lhs.Type), sp.Child("from"), sc)
		if err != nil {
			return nil, err
		}
		e := ast.Assign(lhs, rhs)
		e.Span = sp
		return &ast.Stmt{Kind: ast.StmtExpr, Expr: e, Span: sp}, nil

	case raw["return"] != nil:
		if p.in.Kind(sc.fn.Result) == types.KindVoid {
			return &ast.Stmt{Kind: ast.StmtReturn, Span: sp}, nil
		}
		e, err := p.expr(raw["return"], sc.fn.Result, sp.Child("return"), sc)
		if err != nil {
			return nil, err
		}
		return &ast.Stmt{Kind: ast.StmtReturn, Expr: e, Span: sp}, nil

	case raw["expr"] != nil:
		e, err := p.untyped(raw["expr"], sp.Child("expr"), sc)
		if err != nil {
			return nil, err
		}
		return &ast.Stmt{Kind: ast.StmtExpr, Expr: e, Span: sp}, nil

	case raw["call"] != nil:
		e, err := p.untyped(raw, sp, sc)
		if err != nil {
			return nil, err
		}
		return &ast.Stmt{Kind: ast.StmtExpr, Expr: e, Span: sp}, nil
	}
	return nil, p.fail(ParseErrBadField, sp, "statement needs one of var, assign, return, expr or call")
}
