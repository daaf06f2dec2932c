package observ

import (
	"errors"
	"strings"
	"testing"
)

func TestTimer_Report(t *testing.T) {
	tm := NewTimer()
	if err := tm.Time("parse", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if err := tm.Time("emit", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	tm.End(42, "ignored")

	r := tm.Report()
	if r.Units != 1 || len(r.Stages) != 2 {
		t.Fatalf("report = %+v", r)
	}
	if r.Stages[0].Name != "parse" || r.Stages[1].Note != "failed" {
		t.Fatalf("stages = %+v", r.Stages)
	}
}

func TestAggregate(t *testing.T) {
	a := Report{Units: 1, TotalMS: 3, Stages: []StageReport{{Name: "parse", DurationMS: 1}, {Name: "emit", DurationMS: 2}}}
	b := Report{Units: 1, TotalMS: 4, Stages: []StageReport{{Name: "emit", DurationMS: 3}, {Name: "verify", DurationMS: 1}}}
	got := Aggregate(a, b)
	if got.Units != 2 || got.TotalMS != 7 {
		t.Fatalf("aggregate = %+v", got)
	}
	want := []StageReport{{Name: "parse", DurationMS: 1}, {Name: "emit", DurationMS: 5}, {Name: "verify", DurationMS: 1}}
	if len(got.Stages) != len(want) {
		t.Fatalf("stages = %+v", got.Stages)
	}
	for i := range want {
		if got.Stages[i] != want[i] {
			t.Fatalf("stage %d = %+v, want %+v", i, got.Stages[i], want[i])
		}
	}
	s := got.Summary()
	if !strings.HasPrefix(s, "timings (2 units):") || !strings.Contains(s, "verify") {
		t.Fatalf("summary:\n%s", s)
	}
}
