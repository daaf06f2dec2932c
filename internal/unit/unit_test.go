package unit

import (
	"errors"
	"strings"
	"testing"

	"cirgen/internal/ast"
	"cirgen/internal/diag"
	"cirgen/internal/types"
)

func parse(t *testing.T, src string) (*ast.Unit, *types.Interner) {
	t.Helper()
	in := types.NewInterner(types.LP64)
	bag := diag.NewBag(32)
	u, err := Parse("t.toml", []byte(src), in, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, bag.Format())
	}
	return u, in
}

func parseErr(t *testing.T, src string) (*diag.Bag, error) {
	t.Helper()
	bag := diag.NewBag(32)
	u, err := Parse("t.toml", []byte(src), types.NewInterner(types.LP64), diag.BagReporter{Bag: bag})
	if err == nil {
		t.Fatalf("expected an error, got unit %+v", u)
	}
	return bag, err
}

func TestParseType(t *testing.T) {
	in := types.NewInterner(types.LP64)
	b := in.Builtins()
	s := in.NewRecord("S", types.TagStruct)
	s.AddField("x", b.Int)
	s.Complete()
	p := &parser{file: "t", in: in, b: b, r: diag.NopReporter{}}

	tests := []struct {
		spelling string
		want     types.TypeID
	}{
		{"int", b.Int},
		{"signed", b.Int},
		{"unsigned", b.UInt},
		{"unsigned long int", b.ULong},
		{"long long", b.LongLong},
		{"signed char", b.SChar},
		{"char", b.Char},
		{"unsigned __int128", b.UInt128},
		{"_Bool", b.Bool},
		{"S", s.Self},
		{"S*", in.Pointer(s.Self)},
		{"const int", in.Qualified(b.Int, types.QualConst)},
		{"volatile S", in.Qualified(s.Self, types.QualVolatile)},
		{"int[2][3]", in.Array(in.Array(b.Int, 3), 2)},
		{"char[]", in.Array(b.Char, types.IncompleteLength)},
		{"float __vector(4)", in.Vector(b.Float, 4)},
		{"int S::*", in.MemberPointer(b.Int, s.Self)},
		{"_BitInt(7)", in.Int(7, true)},
		{"unsigned _BitInt(9)", in.Int(9, false)},
		{"int*[4]", in.Array(in.Pointer(b.Int), 4)},
	}
	for _, tt := range tests {
		t.Run(tt.spelling, func(t *testing.T) {
			got, err := p.parseType(tt.spelling, p.span("t"))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("%q = %s, want %s", tt.spelling, in.String(got), in.String(tt.want))
			}
		})
	}
}

func TestParseType_Errors(t *testing.T) {
	tests := []struct {
		spelling string
		kind     ParseErrorKind
	}{
		{"Nope", ParseErrUnknownRecord},
		{"int Nope::*", ParseErrUnknownRecord},
		{"int[", ParseErrBadType},
		{"signed unsigned", ParseErrBadType},
		{"long short", ParseErrBadType},
		{"int $", ParseErrBadType},
		{"", ParseErrBadType},
		{"_BitInt(0)", ParseErrBadType},
	}
	for _, tt := range tests {
		t.Run(tt.spelling, func(t *testing.T) {
			in := types.NewInterner(types.LP64)
			p := &parser{file: "t", in: in, b: in.Builtins(), r: diag.NopReporter{}}
			_, err := p.parseType(tt.spelling, p.span("global g.type"))
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Kind != tt.kind {
				t.Fatalf("err = %v", err)
			}
			if pe.Span.Decl != "global g.type" {
				t.Fatalf("span = %s", pe.Span)
			}
		})
	}
}

func TestParse_RecordsAndGlobals(t *testing.T) {
	u, in := parse(t, `
[[record]]
name = "A"
fields = [
  { name = "c", type = "char" },
  { name = "i", type = "int", bits = 3 },
  { name = "", type = "int", bits = 0 },
  { name = "next", type = "B*" },
]

[[record]]
name = "B"
kind = "union"
fields = [{ name = "i", type = "int" }, { name = "f", type = "float" }]

[[global]]
name = "x"
type = "A"
init = [1, 2]

[[global]]
name = "u"
type = "B"
init = { field = "f", value = 1.0 }

[[global]]
name = "zero"
type = "int[8]"
`)
	a := in.RecordByName("A")
	if a == nil || !a.IsComplete() || len(a.Fields) != 4 {
		t.Fatalf("record A = %+v", a)
	}
	if !a.Fields[1].IsBitField() || a.Fields[1].BitWidth != 3 || !a.Fields[2].IsUnnamedBitField() {
		t.Fatal("bit-fields not declared")
	}
	if in.Elem(a.Fields[3].Type) != in.RecordByName("B").Self {
		t.Fatal("forward reference to B not resolved")
	}

	x := u.Global("x")
	d, ok := x.Init.InitList()
	if !ok || len(d.Inits) != 2 {
		t.Fatalf("x init = %+v", x.Init)
	}
	if d.Inits[1].Type != in.Builtins().Int || d.Inits[1].Kind != ast.ExprIntLiteral {
		t.Fatalf("bit-field initializer = %+v", d.Inits[1])
	}
	ud, ok := u.Global("u").Init.InitList()
	if !ok || ud.UnionField == nil || ud.UnionField.Name != "f" || ud.Inits[0].Kind != ast.ExprFloatLiteral {
		t.Fatalf("union init = %+v", ud)
	}
	if u.Global("zero").Init != nil {
		t.Fatal("global without init got one")
	}
	if u.Name != "t" {
		t.Fatalf("unit name = %q", u.Name)
	}
}

func TestParse_FunctionBody(t *testing.T) {
	u, in := parse(t, `
[[record]]
name = "S"
fields = [{ name = "a", type = "int" }, { name = "b", type = "int" }]

[[function]]
name = "g"
returns = "int"

[[function]]
name = "mk"
returns = "S"

[[function]]
name = "f"
returns = "int"
params = [{ name = "flag", type = "bool" }]
body = [
  { var = "a", type = "int[5]", init = { list = [1, 2, 3], filler = { call = "g" } } },
  { var = "s", type = "S", init = { cond = "flag", then = { call = "mk" }, else = [1, 2] } },
  { var = "t", type = "S" },
  { assign = "t", from = "s" },
  { call = "g" },
  { return = { ref = "s", field = "b" } },
]
`)
	f := u.Func("f")
	if !f.IsDefinition() || len(f.Body) != 6 {
		t.Fatalf("body = %d statements", len(f.Body))
	}
	if u.Func("g").IsDefinition() {
		t.Fatal("g has no body and must stay a declaration")
	}
	d, _ := f.Body[0].Var.Init.InitList()
	if d.Filler == nil || d.Filler.Kind != ast.ExprCall || len(d.Inits) != 3 {
		t.Fatalf("array init = %+v", d)
	}
	if c := f.Body[1].Var.Init; c.Kind != ast.ExprConditional {
		t.Fatalf("cond = %v", c.Kind)
	} else if cd := c.Data.(ast.ConditionalData); cd.Cond.Type != in.Builtins().Bool {
		t.Fatalf("condition type = %s", in.String(cd.Cond.Type))
	}
	if f.Body[2].Var.Init != nil {
		t.Fatal("t must be uninitialized")
	}
	if e := f.Body[3].Expr; e.Kind != ast.ExprAssign || e.Type != in.RecordByName("S").Self {
		t.Fatalf("assign = %+v", e)
	}
	if e := f.Body[4].Expr; e.Kind != ast.ExprCall || e.Type != in.Builtins().Int {
		t.Fatalf("call statement = %+v", e)
	}
	ret := f.Body[5]
	if ret.Kind != ast.StmtReturn || ret.Expr.Kind != ast.ExprCast || ret.Expr.Data.(ast.CastData).Operand.Kind != ast.ExprMember {
		t.Fatalf("return = %+v", ret.Expr)
	}
}

func TestParse_Conversions(t *testing.T) {
	u, in := parse(t, `
[[global]]
name = "c"
type = "char"
init = 7

[[global]]
name = "d"
type = "double"
init = "c"

[[global]]
name = "p"
type = "int*"
init = 0

[[global]]
name = "arr"
type = "int[3]"

[[global]]
name = "q"
type = "int*"
init = { addr = "arr" }

[[global]]
name = "s"
type = "char[6]"
init = { str = "hello" }
`)
	d := u.Global("d").Init
	if d.Kind != ast.ExprCast || d.Data.(ast.CastData).Kind != ast.CastIntegralToFloating {
		t.Fatalf("d = %+v", d)
	}
	if p := u.Global("p").Init; p.Data.(ast.CastData).Kind != ast.CastNullToPointer {
		t.Fatalf("p = %+v", p)
	}
	if q := u.Global("q").Init; q.Data.(ast.CastData).Kind != ast.CastArrayToPointerDecay {
		t.Fatalf("q = %+v", q)
	}
	if s := u.Global("s").Init; s.Kind != ast.ExprStringLiteral || s.Type != in.Array(in.Builtins().Char, 6) {
		t.Fatalf("s = %+v", s)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
		decl string
	}{
		{"duplicate global", "[[global]]\nname = \"x\"\ntype = \"int\"\n[[global]]\nname = \"x\"\ntype = \"int\"\n", diag.UntDuplicateDecl, "global x"},
		{"unknown record", "[[global]]\nname = \"x\"\ntype = \"Q\"\n", diag.UntUnknownRecord, "global x.type"},
		{"excess elements", "[[global]]\nname = \"x\"\ntype = \"int[2]\"\ninit = [1, 2, 3]\n", diag.UntBadInit, "global x.init"},
		{"unknown variable", "[[global]]\nname = \"x\"\ntype = \"int\"\ninit = \"y\"\n", diag.UntBadInit, "global x.init"},
		{"bad element", "[[global]]\nname = \"x\"\ntype = \"int[2]\"\ninit = [1, 2.5]\n", diag.UntBadInit, "global x.init[1]"},
		{"float bit-field", "[[record]]\nname = \"A\"\nfields = [{ name = \"f\", type = \"float\", bits = 2 }]\n", diag.UntBadField, "record A.fields[0]"},
		{"unknown key", "[[record]]\nname = \"A\"\npaked = true\n", diag.UntBadField, "record.paked"},
		{"misplaced flexible array", "[[record]]\nname = \"A\"\nfields = [{ name = \"a\", type = \"int[]\" }, { name = \"b\", type = \"int\" }]\n", diag.UntBadField, "record A.fields[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag, err := parseErr(t, tt.src)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v", err)
			}
			items := bag.Items()
			if len(items) == 0 || items[0].Code != tt.code {
				t.Fatalf("diagnostics:\n%s", bag.Format())
			}
			if items[0].Primary.Decl != tt.decl {
				t.Fatalf("span = %q, want %q", items[0].Primary.Decl, tt.decl)
			}
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := parseErr(t, "[[global]\nname = 1")
	if !strings.Contains(err.Error(), "invalid TOML") {
		t.Fatalf("err = %v", err)
	}
}

func TestParse_NormalizesIdentifiers(t *testing.T) {
	const decomposed, composed = "Cafe\u0301", "Caf\u00e9"
	u, in := parse(t, "[[record]]\nname = \""+decomposed+"\"\nfields = [{ name = \"x\", type = \"int\" }]\n"+
		"[[global]]\nname = \"c\"\ntype = \""+composed+"\"\ninit = [1]\n"+
		"[[global]]\nname = \"s\"\ntype = \"char[4]\"\ninit = { str = \"e\u0301\" }\n")
	if in.RecordByName(composed) == nil {
		t.Fatal("record name not normalized")
	}
	if u.Global("c") == nil {
		t.Fatal("global c missing")
	}
	s := u.Global("s").Init
	if s.Kind != ast.ExprStringLiteral || s.Data.(ast.StringLiteralData).Value != "e\u0301" {
		t.Fatalf("string literal = %+v", s)
	}
}
