package cir

import (
	"errors"
	"fmt"
)

// VerifyErrorKind enumerates IR invariant violations.
type VerifyErrorKind uint8

const (
	VerifyUnterminated VerifyErrorKind = iota + 1
	VerifyBadTarget
	VerifyBadOperand
	VerifyTypeMismatch
	VerifyBadMember
	VerifyBadAttr
)

// VerifyError reports one invariant violation.
type VerifyError struct {
	Kind  VerifyErrorKind
	Func  string
	Block BlockID
	Op    OpKind
	Msg   string
}

func (e *VerifyError) Error() string {
	where := e.Func
	if e.Func != "" {
		where = fmt.Sprintf("@%s bb%d", e.Func, e.Block)
	}
	switch e.Kind {
	case VerifyUnterminated:
		return fmt.Sprintf("%s: unterminated block", where)
	case VerifyBadTarget:
		return fmt.Sprintf("%s: branch to missing block: %s", where, e.Msg)
	case VerifyBadOperand:
		return fmt.Sprintf("%s: %s: bad operand: %s", where, e.Op, e.Msg)
	case VerifyTypeMismatch:
		return fmt.Sprintf("%s: %s: type mismatch: %s", where, e.Op, e.Msg)
	case VerifyBadMember:
		return fmt.Sprintf("%s: %s: %s", where, e.Op, e.Msg)
	case VerifyBadAttr:
		return fmt.Sprintf("%s: bad constant: %s", where, e.Msg)
	default:
		return fmt.Sprintf("%s: verify error kind=%d %s", where, e.Kind, e.Msg)
	}
}

// Verify checks module invariants and returns every violation joined.
func Verify(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, g := range m.Globals {
		if g.Init == NoAttr {
			continue
		}
		if err := verifyAttr(m.Ctx, g.Init, g.Type); err != nil {
			errs = append(errs, &VerifyError{Kind: VerifyBadAttr, Func: "", Msg: fmt.Sprintf("@%s: %v", g.Name, err)})
		}
	}
	for _, f := range m.Funcs {
		if f.Decl {
			continue
		}
		errs = append(errs, verifyFunc(m.Ctx, f)...)
	}
	return errors.Join(errs...)
}

func verifyFunc(c *Context, f *Func) []error {
	var errs []error
	fail := func(b *Block, kind VerifyErrorKind, op OpKind, format string, args ...any) {
		errs = append(errs, &VerifyError{Kind: kind, Func: f.Name, Block: b.ID, Op: op, Msg: fmt.Sprintf(format, args...)})
	}
	validBlock := func(id BlockID) bool { return id >= 0 && int(id) < len(f.Blocks) }
	for _, b := range f.Blocks {
		switch b.Term.Kind {
		case TermNone:
			fail(b, VerifyUnterminated, OpInvalid, "")
		case TermBr:
			if !validBlock(b.Term.Then) {
				fail(b, VerifyBadTarget, OpInvalid, "^bb%d", b.Term.Then)
			}
		case TermCondBr:
			if !validBlock(b.Term.Then) || !validBlock(b.Term.Else) {
				fail(b, VerifyBadTarget, OpInvalid, "^bb%d/^bb%d", b.Term.Then, b.Term.Else)
			}
			if c.Kind(f.ValueType(b.Term.Cond)) != TypeBool {
				fail(b, VerifyTypeMismatch, OpInvalid, "condition is not a bool")
			}
		}
		for i := range b.Ops {
			op := &b.Ops[i]
			for _, o := range op.Operands {
				if f.ValueType(o) == NoType {
					fail(b, VerifyBadOperand, op.Kind, "%s undefined", v(o))
				}
			}
			switch op.Kind {
			case OpLoad:
				if pt := f.ValueType(op.Operands[0]); c.Kind(pt) != TypePointer || c.Type(pt).Elem != op.Type {
					fail(b, VerifyTypeMismatch, op.Kind, "load of %s through %s", c.TypeString(op.Type), c.TypeString(pt))
				}
			case OpStore:
				vt, pt := f.ValueType(op.Operands[0]), f.ValueType(op.Operands[1])
				if c.Kind(pt) != TypePointer || c.Type(pt).Elem != vt {
					fail(b, VerifyTypeMismatch, op.Kind, "store of %s through %s", c.TypeString(vt), c.TypeString(pt))
				}
			case OpCopy:
				if f.ValueType(op.Operands[0]) != f.ValueType(op.Operands[1]) {
					fail(b, VerifyTypeMismatch, op.Kind, "copy between %s and %s",
						c.TypeString(f.ValueType(op.Operands[0])), c.TypeString(f.ValueType(op.Operands[1])))
				}
			case OpGetMember:
				pt := f.ValueType(op.Operands[0])
				if c.Kind(pt) != TypePointer || c.Kind(c.Type(pt).Elem) != TypeRecord {
					fail(b, VerifyBadMember, op.Kind, "base is not a record pointer")
					continue
				}
				rt := c.Type(c.Type(pt).Elem)
				if op.Index < 0 || op.Index >= len(rt.Members) {
					fail(b, VerifyBadMember, op.Kind, "member %d out of range", op.Index)
				}
			case OpConst:
				if err := verifyAttr(c, op.Attr, op.Type); err != nil {
					fail(b, VerifyBadAttr, op.Kind, "%v", err)
				}
			}
		}
	}
	return errs
}

func verifyAttr(c *Context, id AttrID, want TypeID) error {
	a := c.Attr(id)
	if want != NoType && a.Type != want {
		return fmt.Errorf("attribute type %s, want %s", c.TypeString(a.Type), c.TypeString(want))
	}
	switch a.Kind {
	case AttrConstArray:
		t := c.Type(a.Type)
		for _, e := range a.Elems {
			if err := verifyAttr(c, e, t.Elem); err != nil {
				return err
			}
		}
	case AttrConstRecord:
		t := c.Type(a.Type)
		if t.IsUnion() {
			if len(a.Elems) != 1 {
				return fmt.Errorf("union constant with %d elements", len(a.Elems))
			}
			return nil
		}
		if len(a.Elems) != len(t.Members) {
			return fmt.Errorf("record constant has %d elements, type has %d members", len(a.Elems), len(t.Members))
		}
		for i, e := range a.Elems {
			if err := verifyAttr(c, e, t.Members[i]); err != nil {
				return err
			}
		}
	}
	return nil
}
