package types

import "testing"

func TestInterner_Dedup(t *testing.T) {
	in := NewInterner(LP64)
	b := in.Builtins()
	if in.Pointer(b.Int) != in.Pointer(b.Int) || in.Array(b.Int, 4) != in.Array(b.Int, 4) {
		t.Fatal("structural types are not interned")
	}
	if in.Array(b.Int, 4) == in.Array(b.Int, 5) {
		t.Fatal("array bounds must distinguish types")
	}
	if b.Char == b.SChar || b.SizeT != b.ULong {
		t.Fatal("builtin identities wrong")
	}
	cv := in.Qualified(b.Int, QualConst|QualVolatile)
	if in.Unqualified(cv) != b.Int || !in.SameUnqualified(cv, b.Int) || !in.IsVolatile(cv) {
		t.Fatalf("qualified int = %s", in.String(cv))
	}
	if got := in.String(in.Qualified(b.ULong, QualConst)); got != "const unsigned long" {
		t.Fatalf("String = %q", got)
	}
}

func TestInterner_Models(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		long  uint16
	}{
		{"lp64", LP64, 64},
		{"ilp32", ILP32, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInterner(tt.model)
			if w := in.MustLookup(in.Builtins().Long).Width; w != tt.long {
				t.Fatalf("long width = %d, want %d", w, tt.long)
			}
		})
	}
}

func TestRecord_Predicates(t *testing.T) {
	in := NewInterner(LP64)
	b := in.Builtins()

	empty := in.NewRecord("E", TagStruct)
	empty.CXX = true
	empty.Complete()

	v := in.NewRecord("V", TagStruct)
	v.CXX = true
	v.AddField("x", b.Int)
	v.Complete()

	b1 := in.NewRecord("B1", TagStruct)
	b1.CXX = true
	b1.AddBase(v.Self, true)
	b1.Complete()
	b2 := in.NewRecord("B2", TagStruct)
	b2.CXX = true
	b2.AddBase(v.Self, true)
	b2.Complete()
	d := in.NewRecord("D", TagStruct)
	d.CXX = true
	d.AddBase(b1.Self, false)
	d.AddBase(b2.Self, false)
	d.Complete()

	if !empty.IsEmpty() || v.IsEmpty() {
		t.Fatal("IsEmpty wrong")
	}
	if !d.IsDynamic() || v.IsDynamic() {
		t.Fatal("IsDynamic wrong")
	}
	if vb := d.VirtualBases(); len(vb) != 1 || vb[0] != v {
		t.Fatalf("virtual bases = %v", vb)
	}

	flex := in.NewRecord("F", TagStruct)
	flex.AddField("n", b.Int)
	flex.AddField("data", in.Array(b.Char, IncompleteLength))
	flex.Complete()
	if !flex.HasFlexibleArrayMember() || v.HasFlexibleArrayMember() {
		t.Fatal("flexible array member not detected")
	}
	if in.RecordByName("F") != flex || in.Record(flex.Self) != flex {
		t.Fatal("record lookup")
	}
}

func TestInterner_Destruction(t *testing.T) {
	in := NewInterner(LP64)
	b := in.Builtins()
	dt := in.NewRecord("T", TagStruct)
	dt.CXX = true
	dt.NonTrivialDtor = true
	dt.Complete()
	holder := in.NewRecord("H", TagStruct)
	holder.AddField("t", in.Array(dt.Self, 2))
	holder.AddField("i", b.Int)
	holder.Complete()

	if got := in.Destruction(in.Array(holder.Self, 3)); got != DestructCXX {
		t.Fatalf("destruction = %s", got)
	}
	if got := in.Destruction(b.Int); got != DestructNone {
		t.Fatalf("int destruction = %s", got)
	}
	if in.EvaluationKind(holder.Self) != EvalAggregate || in.EvaluationKind(b.Int) != EvalScalar {
		t.Fatal("evaluation kinds")
	}
}
