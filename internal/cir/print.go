package cir

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// TypeString spells a type in the textual IR form.
func (c *Context) TypeString(id TypeID) string {
	if id == NoType {
		return "!cir.void"
	}
	t := c.Type(id)
	switch t.Kind {
	case TypeVoid:
		return "!cir.void"
	case TypeBool:
		return "!cir.bool"
	case TypeInt:
		if t.Signed {
			return fmt.Sprintf("!s%di", t.Width)
		}
		return fmt.Sprintf("!u%di", t.Width)
	case TypeFloat:
		if t.Width == 32 {
			return "!cir.float"
		}
		return "!cir.double"
	case TypePointer:
		return "!cir.ptr<" + c.TypeString(t.Elem) + ">"
	case TypeArray:
		return fmt.Sprintf("!cir.array<%s x %d>", c.TypeString(t.Elem), t.Count)
	case TypeVector:
		return fmt.Sprintf("!cir.vector<%s x %d>", c.TypeString(t.Elem), t.Count)
	case TypeRecord:
		if t.Name != "" {
			return "!rec_" + t.Name
		}
		return c.recordBody(t)
	case TypeFunc:
		ps := make([]string, len(t.Params))
		for i, p := range t.Params {
			ps[i] = c.TypeString(p)
		}
		return fmt.Sprintf("!cir.func<(%s) -> %s>", strings.Join(ps, ", "), c.TypeString(t.Result))
	}
	return "!cir.invalid"
}

func (c *Context) recordBody(t *Type) string {
	var sb strings.Builder
	sb.WriteString("!cir.record<")
	switch t.Record {
	case RecordUnion:
		sb.WriteString("union ")
	case RecordClass:
		sb.WriteString("class ")
	default:
		sb.WriteString("struct ")
	}
	if t.Name != "" {
		sb.WriteString(strconv.Quote(t.Name) + " ")
	}
	if !t.Complete {
		sb.WriteString("incomplete>")
		return sb.String()
	}
	if t.Packed {
		sb.WriteString("packed ")
	}
	if t.Padded {
		sb.WriteString("padded ")
	}
	sb.WriteString("{")
	for i, m := range t.Members {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.TypeString(m))
	}
	sb.WriteString("}>")
	return sb.String()
}

// AttrString spells a constant attribute.
func (c *Context) AttrString(id AttrID) string {
	if id == NoAttr {
		return "<none>"
	}
	a := c.Attr(id)
	ty := c.TypeString(a.Type)
	switch a.Kind {
	case AttrInt:
		return fmt.Sprintf("#cir.int<%s> : %s", c.SignedIntValue(id).String(), ty)
	case AttrBool:
		return fmt.Sprintf("#cir.bool<%t> : %s", a.Bool, ty)
	case AttrFloat:
		return fmt.Sprintf("#cir.fp<%s> : %s", strconv.FormatFloat(a.Float, 'g', -1, 64), ty)
	case AttrZero:
		return "#cir.zero : " + ty
	case AttrUndef:
		return "#cir.undef : " + ty
	case AttrPoison:
		return "#cir.poison : " + ty
	case AttrNullPtr:
		return "#cir.ptr<null> : " + ty
	case AttrGlobalView:
		if len(a.Indices) == 0 {
			return fmt.Sprintf("#cir.global_view<@%s> : %s", a.Symbol, ty)
		}
		return fmt.Sprintf("#cir.global_view<@%s, %v> : %s", a.Symbol, a.Indices, ty)
	case AttrConstArray:
		s := "#cir.const_array<[" + c.attrList(a.Elems) + "]"
		if a.TrailingZeros > 0 {
			s += fmt.Sprintf(", trailing_zeros<%d>", a.TrailingZeros)
		}
		return s + "> : " + ty
	case AttrConstRecord:
		return "#cir.const_record<{" + c.attrList(a.Elems) + "}> : " + ty
	case AttrConstVector:
		return "#cir.const_vector<[" + c.attrList(a.Elems) + "]> : " + ty
	}
	return "#cir.invalid"
}

func (c *Context) attrList(ids []AttrID) string {
	parts := make([]string, len(ids))
	for i, e := range ids {
		parts[i] = c.AttrString(e)
	}
	return strings.Join(parts, ", ")
}

// Print writes the module in textual form: named record bodies, globals,
// then functions.
func (m *Module) Print(w io.Writer) error {
	var sb strings.Builder
	c := m.Ctx
	for _, name := range sortedKeys(c.named) {
		t := c.Type(c.named[name])
		fmt.Fprintf(&sb, "!rec_%s = %s\n", name, c.recordBody(t))
	}
	for _, g := range m.Globals {
		kw := "cir.global"
		if g.Constant {
			kw += " constant"
		}
		if g.Init == NoAttr {
			fmt.Fprintf(&sb, "%s external @%s : %s\n", kw, g.Name, c.TypeString(g.Type))
			continue
		}
		fmt.Fprintf(&sb, "%s @%s = %s", kw, g.Name, c.AttrString(g.Init))
		if g.DynamicInit != "" {
			fmt.Fprintf(&sb, " ctor(@%s)", g.DynamicInit)
		}
		sb.WriteString("\n")
	}
	for _, f := range m.Funcs {
		m.printFunc(&sb, f)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String renders the module.
func (m *Module) String() string {
	var sb strings.Builder
	_ = m.Print(&sb)
	return sb.String()
}

func (m *Module) printFunc(sb *strings.Builder, f *Func) {
	c := m.Ctx
	if f.Decl {
		fmt.Fprintf(sb, "cir.func private @%s : %s\n", f.Name, c.TypeString(f.Type))
		return
	}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%%%d : %s", p, c.TypeString(f.ValueType(p)))
	}
	fmt.Fprintf(sb, "cir.func @%s(%s) {\n", f.Name, strings.Join(params, ", "))
	for _, b := range f.Blocks {
		fmt.Fprintf(sb, "^bb%d:\n", b.ID)
		for i := range b.Ops {
			sb.WriteString("  ")
			sb.WriteString(FormatOp(c, f, &b.Ops[i]))
			sb.WriteString("\n")
		}
		sb.WriteString("  " + formatTerm(b.Term) + "\n")
	}
	sb.WriteString("}\n")
}

func v(x Value) string { return "%" + strconv.Itoa(int(x)) }

// FormatOp renders one op.
func FormatOp(c *Context, f *Func, op *Op) string {
	lhs := ""
	if op.Result != NoValue {
		lhs = v(op.Result) + " = "
	}
	vol := ""
	if op.Volatile {
		vol = " volatile"
	}
	ops := op.Operands
	switch op.Kind {
	case OpAlloca:
		return fmt.Sprintf("%s%s %s, [%q] {alignment = %d}", lhs, op.Kind, c.TypeString(op.Type), op.Name, op.Align)
	case OpGetGlobal:
		return fmt.Sprintf("%s%s @%s : %s", lhs, op.Kind, op.Name, c.TypeString(f.ValueType(op.Result)))
	case OpGetMember:
		return fmt.Sprintf("%s%s %s[%d] {name = %q} -> %s", lhs, op.Kind, v(ops[0]), op.Index, op.Name, c.TypeString(f.ValueType(op.Result)))
	case OpPtrStride:
		return fmt.Sprintf("%s%s %s, %s : %s", lhs, op.Kind, v(ops[0]), v(ops[1]), c.TypeString(op.Type))
	case OpCast:
		return fmt.Sprintf("%s%s %s %s : %s", lhs, op.Kind, op.Cast, v(ops[0]), c.TypeString(op.Type))
	case OpLoad:
		return fmt.Sprintf("%s%s%s align(%d) %s : %s", lhs, op.Kind, vol, op.Align, v(ops[0]), c.TypeString(op.Type))
	case OpStore:
		return fmt.Sprintf("%s%s align(%d) %s, %s", op.Kind, vol, op.Align, v(ops[0]), v(ops[1]))
	case OpCopy:
		s := fmt.Sprintf("%s%s %s to %s : %s", op.Kind, vol, v(ops[1]), v(ops[0]), c.TypeString(op.Type))
		if op.Size > 0 {
			s += fmt.Sprintf(" {size = %d}", op.Size)
		}
		return s
	case OpMemCpy:
		return fmt.Sprintf("%s %s bytes from %s to %s", op.Kind, v(ops[2]), v(ops[1]), v(ops[0]))
	case OpMemSet:
		return fmt.Sprintf("%s %s bytes at %s to %s", op.Kind, v(ops[2]), v(ops[0]), v(ops[1]))
	case OpCall:
		args := make([]string, len(ops))
		for i, a := range ops {
			args[i] = v(a)
		}
		return fmt.Sprintf("%s%s @%s(%s)", lhs, op.Kind, op.Name, strings.Join(args, ", "))
	case OpConst:
		return fmt.Sprintf("%s%s %s", lhs, op.Kind, c.AttrString(op.Attr))
	case OpBinOp:
		return fmt.Sprintf("%s%s(%s, %s, %s) : %s", lhs, op.Kind, op.Bin, v(ops[0]), v(ops[1]), c.TypeString(op.Type))
	case OpCmp:
		return fmt.Sprintf("%s%s(%s, %s, %s)", lhs, op.Kind, op.Cmp, v(ops[0]), v(ops[1]))
	case OpCmp3Way:
		o := op.Ordering
		kind := "strong"
		extra := ""
		if o.Partial {
			kind = "partial"
			extra = fmt.Sprintf(", unordered = %d", o.Unordered)
		}
		return fmt.Sprintf("%s%s(%s, %s) %s(lt = %d, eq = %d, gt = %d%s) : %s", lhs, op.Kind, v(ops[0]), v(ops[1]),
			kind, o.Less, o.Equal, o.Greater, extra, c.TypeString(op.Type))
	case OpGetBitfield, OpSetBitfield:
		bf := op.Bitfield
		args := make([]string, len(ops))
		for i, a := range ops {
			args[i] = v(a)
		}
		return fmt.Sprintf("%s%s%s align(%d) (#bfi_%s{size = %d, offset = %d, signed = %t, storage = %s}, %s) -> %s",
			lhs, op.Kind, vol, op.Align, bf.Name, bf.Size, bf.Offset, bf.Signed, c.TypeString(bf.StorageType),
			strings.Join(args, ", "), c.TypeString(op.Type))
	case OpLifetimeEnd:
		return fmt.Sprintf("%s %s", op.Kind, v(ops[0]))
	case OpVecInsert:
		return fmt.Sprintf("%s%s %s, %s[%s] : %s", lhs, op.Kind, v(ops[1]), v(ops[0]), v(ops[2]), c.TypeString(op.Type))
	}
	return op.Kind.String()
}

func formatTerm(t Terminator) string {
	switch t.Kind {
	case TermBr:
		return fmt.Sprintf("cir.br ^bb%d", t.Then)
	case TermCondBr:
		return fmt.Sprintf("cir.brcond %s ^bb%d, ^bb%d", v(t.Cond), t.Then, t.Else)
	case TermReturn:
		if t.Value == NoValue {
			return "cir.return"
		}
		return "cir.return " + v(t.Value)
	case TermUnreachable:
		return "cir.unreachable"
	}
	return "<unterminated>"
}

func sortedKeys(m map[string]TypeID) []string {
	return slices.Sorted(maps.Keys(m))
}
