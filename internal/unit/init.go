package unit

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"cirgen/internal/ast"
	"cirgen/internal/source"
	"cirgen/internal/types"
)

// castKinds maps cast spellings accepted by { cast = ... } to kinds.
var castKinds = func() map[string]ast.CastKind {
	m := make(map[string]ast.CastKind)
	for k := ast.CastNoOp; k <= ast.CastReinterpretMemberPointer; k++ {
		m[k.String()] = k
	}
	return m
}()

var binaryOps = map[string]ast.BinaryOp{
	"+": ast.BinAdd, "-": ast.BinSub, "*": ast.BinMul,
	"&": ast.BinAnd, "|": ast.BinOr, "^": ast.BinXor,
	"<<": ast.BinShl, ">>": ast.BinShr,
	"==": ast.BinEq, "!=": ast.BinNe, "<": ast.BinLt, ">": ast.BinGt, "<=": ast.BinLe, ">=": ast.BinGe,
}

func at(sp source.Span, i int) source.Span {
	return source.Span{File: sp.File, Decl: fmt.Sprintf("%s[%d]", sp.Decl, i)}
}

func elems(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// expr builds the initializer v for an object of type t.
func (p *parser) expr(v any, t types.TypeID, sp source.Span, sc *scope) (*ast.Expr, error) {
	e, err := p.build(v, t, sp, sc)
	if err != nil {
		return nil, err
	}
	if e.Span.Empty() {
		e.Span = sp
	}
	return e, nil
}

func (p *parser) build(v any, t types.TypeID, sp source.Span, sc *scope) (*ast.Expr, error) {
	ut := p.in.Unqualified(t)
	switch x := v.(type) {
	case int64:
		return p.intLit(x, ut, sp)
	case float64:
		switch p.in.Kind(ut) {
		case types.KindFloat:
			return ast.FloatLit(ut, x), nil
		case types.KindInt, types.KindBool:
			if x == math.Trunc(x) {
				return p.intLit(int64(x), ut, sp)
			}
		}
		return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%v does not initialize %s", x, p.in.String(t)))
	case bool:
		if p.in.Kind(ut) == types.KindBool {
			return ast.BoolLit(ut, x), nil
		}
		n := int64(0)
		if x {
			n = 1
		}
		return p.intLit(n, ut, sp)
	case string:
		return p.ref(x, t, sp, sc)
	case map[string]any:
		return p.tagged(x, t, sp, sc)
	}
	if l, ok := elems(v); ok {
		return p.list(l, t, sp, sc)
	}
	return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("unsupported value %v", v))
}

func (p *parser) intLit(n int64, t types.TypeID, sp source.Span) (*ast.Expr, error) {
	switch p.in.Kind(t) {
	case types.KindInt:
		return ast.IntLit(t, n), nil
	case types.KindBool:
		return ast.BoolLit(t, n != 0), nil
	case types.KindFloat:
		return ast.FloatLit(t, float64(n)), nil
	case types.KindPointer:
		if n == 0 {
			return ast.Cast(ast.CastNullToPointer, t, ast.NullPtr(p.b.NullPtr)), nil
		}
		return ast.Cast(ast.CastIntegralToPointer, t, ast.IntLit(p.b.Long, n)), nil
	case types.KindMemberPointer:
		if n == 0 {
			return ast.Cast(ast.CastNullToMemberPointer, t, ast.NullPtr(p.b.NullPtr)), nil
		}
	case types.KindNullPtr:
		if n == 0 {
			return ast.NullPtr(t), nil
		}
	}
	return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%d does not initialize %s", n, p.in.String(t)))
}

// natural returns the type an untyped value has on its own.
func (p *parser) natural(v any, sc *scope) (types.TypeID, bool) {
	switch x := v.(type) {
	case int64:
		return p.b.Int, true
	case float64:
		return p.b.Double, true
	case bool:
		return p.b.Bool, true
	case string:
		if d := p.lookup(x, sc); d != nil {
			return d.Type, true
		}
	case map[string]any:
		if ts, ok := x["type"].(string); ok {
			t, err := p.parseType(ts, source.Span{File: p.file, Decl: "type"})
			return t, err == nil
		}
		if name, ok := x["call"].(string); ok {
			if fd := p.funcs[name]; fd != nil {
				return fd.Result, true
			}
			return p.b.Int, true
		}
		if _, ok := x["ref"]; ok {
			if lv, problem := p.resolve(x, sc); problem == "" {
				return lv.Type, true
			}
		}
	}
	return types.NoTypeID, false
}

// untyped builds v at its natural type.
func (p *parser) untyped(v any, sp source.Span, sc *scope) (*ast.Expr, error) {
	t, ok := p.natural(v, sc)
	if !ok {
		return nil, p.fail(ParseErrBadInit, sp, "expression needs a type")
	}
	return p.expr(v, t, sp, sc)
}

// lvalue builds a variable reference, optionally followed by a member or
// subscript: "x" or { ref = "x", field = "f", index = 2 }.
func (p *parser) lvalue(v any, sp source.Span, sc *scope) (*ast.Expr, error) {
	e, problem := p.resolve(v, sc)
	if problem != "" {
		return nil, p.fail(ParseErrBadInit, sp, problem)
	}
	e.Span = sp
	return e, nil
}

// resolve is lvalue without reporting; a non-empty problem describes the
// failure.
func (p *parser) resolve(v any, sc *scope) (*ast.Expr, string) {
	var name string
	var m map[string]any
	switch x := v.(type) {
	case string:
		name = x
	case map[string]any:
		m = x
		name, _ = x["ref"].(string)
	}
	d := p.lookup(name, sc)
	if d == nil {
		return nil, fmt.Sprintf("unknown variable %q", name)
	}
	e := ast.Ref(d)
	if m == nil {
		return e, ""
	}
	if fname, ok := m["field"].(string); ok {
		for _, part := range strings.Split(fname, ".") {
			rd := p.in.Record(p.in.Unqualified(e.Type))
			if rd == nil {
				return nil, p.in.String(e.Type) + " has no fields"
			}
			f := rd.Field(part)
			if f == nil {
				return nil, fmt.Sprintf("%s has no field %q", rd.Name, part)
			}
			e = ast.Member(e, f)
		}
	}
	if idx, ok := m["index"].(int64); ok {
		if !p.in.IsArray(e.Type) {
			return nil, p.in.String(e.Type) + " is not an array"
		}
		e = ast.Index(p.in.Elem(e.Type), e, ast.IntLit(p.b.Long, idx))
	}
	return e, ""
}

// ref reads a variable as a value of type t. Aggregates are referenced
// in place; scalars are loaded and converted.
func (p *parser) ref(v any, t types.TypeID, sp source.Span, sc *scope) (*ast.Expr, error) {
	lv, err := p.lvalue(v, sp, sc)
	if err != nil {
		return nil, err
	}
	if p.in.EvaluationKind(t) == types.EvalAggregate {
		if !p.in.SameUnqualified(lv.Type, t) {
			return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%s does not initialize %s", p.in.String(lv.Type), p.in.String(t)))
		}
		return lv, nil
	}
	if p.in.IsArray(lv.Type) && p.in.Kind(t) == types.KindPointer {
		return ast.Cast(ast.CastArrayToPointerDecay, p.in.Unqualified(t), lv), nil
	}
	load := ast.Cast(ast.CastLValueToRValue, p.in.Unqualified(lv.Type), lv)
	return p.convert(load, t, sp)
}

// convert applies the implicit scalar conversion from e.Type to t.
func (p *parser) convert(e *ast.Expr, t types.TypeID, sp source.Span) (*ast.Expr, error) {
	t = p.in.Unqualified(t)
	if p.in.SameUnqualified(e.Type, t) {
		return e, nil
	}
	from, to := p.in.Kind(e.Type), p.in.Kind(t)
	intLike := func(k types.Kind) bool { return k == types.KindInt || k == types.KindBool }
	var kind ast.CastKind
	switch {
	case intLike(from) && to == types.KindBool:
		kind = ast.CastIntegralToBoolean
	case intLike(from) && to == types.KindInt:
		kind = ast.CastIntegral
	case intLike(from) && to == types.KindFloat:
		kind = ast.CastIntegralToFloating
	case from == types.KindFloat && to == types.KindInt:
		kind = ast.CastFloatingToIntegral
	case from == types.KindFloat && to == types.KindBool:
		kind = ast.CastFloatingToBoolean
	case from == types.KindFloat && to == types.KindFloat:
		kind = ast.CastFloating
	case from == types.KindPointer && to == types.KindBool:
		kind = ast.CastPointerToBoolean
	case from == types.KindPointer && to == types.KindPointer:
		kind = ast.CastBitCast
	case from == types.KindPointer && to == types.KindInt:
		kind = ast.CastPointerToIntegral
	default:
		return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("cannot convert %s to %s", p.in.String(e.Type), p.in.String(t)))
	}
	c := ast.Cast(kind, t, e)
	c.Span = sp
	return c, nil
}

// list builds a braced initializer for t.
func (p *parser) list(l []any, t types.TypeID, sp source.Span, sc *scope) (*ast.Expr, error) {
	ut := p.in.Unqualified(t)
	switch p.in.Kind(ut) {
	case types.KindArray, types.KindVector:
		inits, err := p.elements(l, ut, sp, sc)
		if err != nil {
			return nil, err
		}
		return ast.InitList(ut, inits...), nil

	case types.KindRecord:
		rd := p.in.Record(ut)
		if rd.IsUnion() {
			switch len(l) {
			case 0:
				return ast.UnionInit(ut, nil, nil), nil
			case 1:
				f := firstNamedField(rd)
				if f == nil {
					return nil, p.fail(ParseErrBadInit, sp, "union "+rd.Name+" has no named member")
				}
				e, err := p.expr(l[0], f.Type, at(sp, 0), sc)
				if err != nil {
					return nil, err
				}
				return ast.UnionInit(ut, f, e), nil
			}
			return nil, p.fail(ParseErrBadInit, sp, "union initializer takes one element")
		}
		targets := p.initTargets(rd)
		if len(l) > len(targets) {
			return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%d initializers for %d members of %s", len(l), len(targets), rd.Name))
		}
		inits := make([]*ast.Expr, len(l))
		for i, v := range l {
			e, err := p.expr(v, targets[i], at(sp, i), sc)
			if err != nil {
				return nil, err
			}
			inits[i] = e
		}
		return ast.InitList(ut, inits...), nil
	}

	// Braces around a scalar.
	switch len(l) {
	case 0:
		return ast.ValueInit(ut), nil
	case 1:
		return p.expr(l[0], t, at(sp, 0), sc)
	}
	return nil, p.fail(ParseErrBadInit, sp, "too many initializers for "+p.in.String(t))
}

func (p *parser) elements(l []any, t types.TypeID, sp source.Span, sc *scope) ([]*ast.Expr, error) {
	elem := p.in.Elem(t)
	if n := p.in.MustLookup(t).Count; n != types.IncompleteLength && int64(len(l)) > n {
		return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%d initializers for %s", len(l), p.in.String(t)))
	}
	inits := make([]*ast.Expr, len(l))
	for i, v := range l {
		e, err := p.expr(v, elem, at(sp, i), sc)
		if err != nil {
			return nil, err
		}
		inits[i] = e
	}
	return inits, nil
}

// initTargets lists the types an init list of rd initializes: bases in
// declaration order, then the named fields.
func (p *parser) initTargets(rd *types.RecordDecl) []types.TypeID {
	var out []types.TypeID
	for _, b := range rd.Bases {
		out = append(out, b.Type)
	}
	for _, f := range rd.Fields {
		if !f.IsUnnamedBitField() {
			out = append(out, f.Type)
		}
	}
	return out
}

func firstNamedField(rd *types.RecordDecl) *types.FieldDecl {
	for _, f := range rd.Fields {
		if f.Name != "" {
			return f
		}
	}
	return nil
}

// tagged builds the table forms of an initializer. An optional type key
// builds the value at that type and converts it to t.
func (p *parser) tagged(m map[string]any, t types.TypeID, sp source.Span, sc *scope) (*ast.Expr, error) {
	if ts, ok := m["type"].(string); ok {
		own, err := p.parseType(ts, sp.Child("type"))
		if err != nil {
			return nil, err
		}
		rest := make(map[string]any, len(m))
		for k, v := range m {
			if k != "type" {
				rest[k] = v
			}
		}
		e, err := p.tagged(rest, own, sp, sc)
		if err != nil || p.in.SameUnqualified(own, t) || p.in.EvaluationKind(t) == types.EvalAggregate {
			return e, err
		}
		return p.convert(e, t, sp)
	}

	ut := p.in.Unqualified(t)
	switch {
	case m["list"] != nil:
		l, ok := elems(m["list"])
		if !ok || (!p.in.IsArray(ut) && m["filler"] != nil) {
			return nil, p.fail(ParseErrBadInit, sp, "list with filler needs an array type")
		}
		if _, hasFiller := m["filler"]; !hasFiller {
			return p.list(l, t, sp.Child("list"), sc)
		}
		inits, err := p.elements(l, ut, sp.Child("list"), sc)
		if err != nil {
			return nil, err
		}
		filler, err := p.expr(m["filler"], p.in.Elem(ut), sp.Child("filler"), sc)
		if err != nil {
			return nil, err
		}
		return ast.ArrayInit(ut, filler, inits...), nil

	case m["field"] != nil && m["ref"] == nil && m["to_union"] == nil:
		rd := p.in.Record(ut)
		name, _ := m["field"].(string)
		if rd == nil || !rd.IsUnion() {
			return nil, p.fail(ParseErrBadInit, sp, "field designator needs a union type")
		}
		f := rd.Field(name)
		if f == nil {
			return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("union %s has no member %q", rd.Name, name))
		}
		var v *ast.Expr
		if raw, ok := m["value"]; ok {
			var err error
			if v, err = p.expr(raw, f.Type, sp.Child("value"), sc); err != nil {
				return nil, err
			}
		} else {
			v = ast.ValueInit(f.Type)
		}
		return ast.UnionInit(ut, f, v), nil

	case m["ctor"] != nil:
		rd := p.in.Record(ut)
		name, _ := m["ctor"].(string)
		if rd == nil {
			return nil, p.fail(ParseErrBadInit, sp, "constructor call needs a class type")
		}
		c := rd.FindCtor(name)
		if c == nil {
			return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%s has no constructor %q", rd.Name, name))
		}
		args, err := p.args(m["args"], c.Params, sp, sc)
		if err != nil {
			return nil, err
		}
		e := ast.Construct(ut, c, args...)
		if z, _ := m["zero_init"].(bool); z {
			d := e.Data.(ast.ConstructData)
			d.ZeroInit = true
			e.Data = d
		}
		return e, nil

	case m["call"] != nil:
		name, _ := m["call"].(string)
		fd := p.funcs[name]
		var params []types.TypeID
		result := ut
		if fd != nil {
			for _, prm := range fd.Params {
				params = append(params, prm.Type)
			}
			result = p.in.Unqualified(fd.Result)
		} else {
			// Left for the emitter to reject.
			raw, _ := elems(m["args"])
			for _, a := range raw {
				nt, ok := p.natural(a, sc)
				if !ok {
					return nil, p.fail(ParseErrBadInit, sp, "argument needs a type")
				}
				params = append(params, nt)
			}
		}
		args, err := p.args(m["args"], params, sp, sc)
		if err != nil {
			return nil, err
		}
		call := ast.Call(result, name, args...)
		call.Span = sp
		if p.in.SameUnqualified(result, ut) {
			return call, nil
		}
		if p.in.EvaluationKind(ut) == types.EvalAggregate || p.in.EvaluationKind(result) == types.EvalAggregate {
			return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("%s returns %s, not %s", name, p.in.String(result), p.in.String(t)))
		}
		return p.convert(call, ut, sp)

	case m["cond"] != nil:
		c, err := p.condition(m["cond"], sp.Child("cond"), sc)
		if err != nil {
			return nil, err
		}
		then, err := p.expr(m["then"], t, sp.Child("then"), sc)
		if err != nil {
			return nil, err
		}
		els, err := p.expr(m["else"], t, sp.Child("else"), sc)
		if err != nil {
			return nil, err
		}
		return ast.Cond(ut, c, then, els), nil

	case m["str"] != nil:
		s, _ := m["str"].(string)
		if !p.in.IsArray(ut) || p.in.Kind(p.in.Elem(ut)) != types.KindInt {
			return nil, p.fail(ParseErrBadInit, sp, "string literal needs a character array")
		}
		return ast.StringLit(ut, s), nil

	case m["value_init"] != nil:
		return ast.ValueInit(ut), nil

	case m["keep"] != nil:
		return ast.NoInit(ut), nil

	case m["base"] != nil:
		base, err := p.expr(m["base"], t, sp.Child("base"), sc)
		if err != nil {
			return nil, err
		}
		l, ok := elems(m["update"])
		if !ok {
			return nil, p.fail(ParseErrBadInit, sp, "designated update needs an update list")
		}
		upd, err := p.list(l, t, sp.Child("update"), sc)
		if err != nil {
			return nil, err
		}
		return ast.DesignatedUpdate(ut, base, upd), nil

	case m["ref"] != nil:
		return p.ref(m, t, sp, sc)

	case m["addr"] != nil:
		lv, err := p.lvalue(m["addr"], sp.Child("addr"), sc)
		if err != nil {
			return nil, err
		}
		if p.in.IsArray(lv.Type) && p.in.Kind(ut) == types.KindPointer &&
			p.in.SameUnqualified(p.in.Elem(lv.Type), p.in.Elem(ut)) {
			return ast.Cast(ast.CastArrayToPointerDecay, ut, lv), nil
		}
		addr := ast.Unary(ast.UnaryAddrOf, p.in.Pointer(lv.Type), lv)
		return p.convert(addr, ut, sp)

	case m["to_union"] != nil:
		rd := p.in.Record(ut)
		name, _ := m["field"].(string)
		var f *types.FieldDecl
		if rd != nil && rd.IsUnion() {
			f = rd.Field(name)
		}
		if f == nil {
			return nil, p.fail(ParseErrBadInit, sp, "to_union needs a union type and a member")
		}
		op, err := p.expr(m["to_union"], f.Type, sp.Child("to_union"), sc)
		if err != nil {
			return nil, err
		}
		return ast.Cast(ast.CastToUnion, ut, op), nil

	case m["cast"] != nil:
		name, _ := m["cast"].(string)
		kind, ok := castKinds[name]
		if !ok {
			return nil, p.fail(ParseErrBadInit, sp, "unknown cast "+name+"; known: "+strings.Join(sortedCasts(), ", "))
		}
		var op *ast.Expr
		var err error
		if kind == ast.CastLValueToRValueBitCast || kind == ast.CastLValueToRValue {
			op, err = p.lvalue(m["value"], sp.Child("value"), sc)
		} else {
			op, err = p.untyped(m["value"], sp.Child("value"), sc)
		}
		if err != nil {
			return nil, err
		}
		return ast.Cast(kind, ut, op), nil

	case m["cmp3"] != nil:
		l, ok := elems(m["cmp3"])
		if !ok || len(l) != 2 {
			return nil, p.fail(ParseErrBadInit, sp, "cmp3 takes two operands")
		}
		lhs, err := p.untyped(l[0], at(sp.Child("cmp3"), 0), sc)
		if err != nil {
			return nil, err
		}
		rhs, err := p.expr(l[1], lhs.Type, at(sp.Child("cmp3"), 1), sc)
		if err != nil {
			return nil, err
		}
		partial, _ := m["partial"].(bool)
		return ast.Compare3Way(ut, lhs, rhs, partial), nil

	case m["comma"] != nil:
		l, ok := elems(m["comma"])
		if !ok || len(l) != 2 {
			return nil, p.fail(ParseErrBadInit, sp, "comma takes two operands")
		}
		lhs, err := p.untyped(l[0], at(sp.Child("comma"), 0), sc)
		if err != nil {
			return nil, err
		}
		rhs, err := p.expr(l[1], t, at(sp.Child("comma"), 1), sc)
		if err != nil {
			return nil, err
		}
		return ast.Comma(lhs, rhs), nil

	case m["op"] != nil:
		name, _ := m["op"].(string)
		op, ok := binaryOps[name]
		if !ok || p.in.EvaluationKind(ut) == types.EvalAggregate {
			return nil, p.fail(ParseErrBadInit, sp, fmt.Sprintf("bad binary operator %q", name))
		}
		operand := ut
		if op.IsComparison() {
			nt, ok := p.natural(m["lhs"], sc)
			if !ok {
				return nil, p.fail(ParseErrBadInit, sp, "comparison operand needs a type")
			}
			operand = p.in.Unqualified(nt)
		}
		lhs, err := p.expr(m["lhs"], operand, sp.Child("lhs"), sc)
		if err != nil {
			return nil, err
		}
		rhs, err := p.expr(m["rhs"], operand, sp.Child("rhs"), sc)
		if err != nil {
			return nil, err
		}
		if op.IsComparison() {
			return p.convert(ast.Binary(op, p.b.Bool, lhs, rhs), ut, sp)
		}
		return ast.Binary(op, ut, lhs, rhs), nil

	case m["temp"] != nil:
		inner, err := p.expr(m["temp"], t, sp.Child("temp"), sc)
		if err != nil {
			return nil, err
		}
		return ast.Wrap(ast.ExprMaterializeTemporary, inner), nil

	case m["va_arg"] != nil:
		list, err := p.untyped(m["va_arg"], sp.Child("va_arg"), sc)
		if err != nil {
			return nil, err
		}
		return &ast.Expr{Kind: ast.ExprVAArg, Type: ut, Span: sp, Data: ast.VAArgData{List: list}}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return nil, p.fail(ParseErrBadInit, sp, "unrecognized initializer table with keys "+strings.Join(keys, ", "))
}

func (p *parser) args(raw any, params []types.TypeID, sp source.Span, sc *scope) ([]*ast.Expr, error) {
	var l []any
	if raw != nil {
		var ok bool
		if l, ok = elems(raw); !ok {
			return nil, p.fail(ParseErrBadInit, sp.Child("args"), "args must be a list")
		}
	}
	if len(l) != len(params) {
		return nil, p.fail(ParseErrBadInit, sp.Child("args"), fmt.Sprintf("%d arguments for %d parameters", len(l), len(params)))
	}
	out := make([]*ast.Expr, len(l))
	for i, a := range l {
		e, err := p.expr(a, params[i], at(sp.Child("args"), i), sc)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// condition builds a controlling expression of type bool.
func (p *parser) condition(v any, sp source.Span, sc *scope) (*ast.Expr, error) {
	if b, ok := v.(bool); ok {
		return ast.BoolLit(p.b.Bool, b), nil
	}
	e, err := p.untyped(v, sp, sc)
	if err != nil {
		return nil, err
	}
	return p.convert(e, p.b.Bool, sp)
}

func sortedCasts() []string {
	out := make([]string, 0, len(castKinds))
	for k := range castKinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
