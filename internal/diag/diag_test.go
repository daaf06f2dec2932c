package diag

import (
	"testing"

	"cirgen/internal/source"
)

func TestBagSortAndFormat(t *testing.T) {
	bag := NewBag(8)
	r := Dedup(BagReporter{Bag: bag})
	sp := source.Span{File: "u.toml", Decl: "global x"}
	r.Report(NYIVAArg, SevError, sp, "va_arg", nil)
	r.Report(NYIVAArg, SevError, sp, "va_arg", nil)
	ReportWarning(r, CstFallbackDynamic, source.Span{File: "u.toml", Decl: "global a"}, "dynamic").
		WithNote(sp, "used here").
		Emit()

	if bag.Len() != 2 {
		t.Fatalf("expected dedup to keep 2 diagnostics, got %d", bag.Len())
	}
	bag.Sort()
	want := "warning CST2002 u.toml [global a] dynamic\n" +
		"  note: used here at u.toml [global x]\n" +
		"error NYI9010 u.toml [global x] va_arg\n"
	if got := bag.Format(); got != want {
		t.Fatalf("format mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
	if !bag.HasErrors() {
		t.Fatalf("expected errors")
	}
}

func TestBagLimit(t *testing.T) {
	bag := NewBag(1)
	if !bag.Add(NewError(UntBadType, source.NoSpan, "a")) {
		t.Fatalf("first add must succeed")
	}
	if bag.Add(NewError(UntBadType, source.NoSpan, "b")) {
		t.Fatalf("second add must hit the limit")
	}
}

func TestNYICodes(t *testing.T) {
	for _, c := range AllNYI() {
		if !c.IsNYI() {
			t.Fatalf("%v should be NYI", c)
		}
		if c.Title() == codeDescription[UnknownCode] {
			t.Fatalf("%v has no description", c)
		}
	}
	if EmtUnsupportedCast.IsNYI() {
		t.Fatalf("emission code must not be NYI")
	}
}

func TestReportBuilder_EmitsOnce(t *testing.T) {
	var got []Diagnostic
	r := ReporterFunc(func(d Diagnostic) { got = append(got, d) })
	b := ReportError(r, LayRecursiveRecord, source.Span{File: "u.toml", Decl: "record A"}, "recursive")
	b.WithNote(source.Span{File: "u.toml", Decl: "record B"}, "via B").Emit()
	b.Emit()
	if len(got) != 1 || len(got[0].Notes) != 1 || got[0].Severity != SevError {
		t.Fatalf("reported %+v", got)
	}
	if s := got[0].String(); s != "error LAY1002 u.toml [record A] recursive" {
		t.Fatalf("String = %q", s)
	}
}
