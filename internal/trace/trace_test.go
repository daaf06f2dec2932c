package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRingTracer_Wraps(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i := range 5 {
		Point(r, ScopeUnit, "p", string(rune('a'+i)), 0)
	}
	evs := r.Snapshot()
	if len(evs) != 3 || r.Dropped() != 2 {
		t.Fatalf("kept %d, dropped %d", len(evs), r.Dropped())
	}
	for i, want := range []string{"c", "d", "e"} {
		if evs[i].Detail != want {
			t.Fatalf("event %d = %q, want %q", i, evs[i].Detail, want)
		}
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].Seq <= evs[i-1].Seq {
			t.Fatal("snapshot out of order")
		}
	}
}

func TestSpan_LevelsAndNesting(t *testing.T) {
	r := NewRingTracer(16, LevelUnit)
	ctx := WithTracer(context.Background(), r)

	ctx, outer := Enter(ctx, ScopeDriver, "emit")
	_, inner := Enter(ctx, ScopeUnit, "a.toml")
	_, hidden := Enter(ctx, ScopeRecord, "record A")
	if hidden.ID() != 0 {
		t.Fatal("record scope must not be traced at unit level")
	}
	hidden.Set("k", "v").End("ignored")
	inner.SetInt("stages", 3).End("ok")
	outer.End("1 units")
	if outer.End("again") != 0 {
		t.Fatal("second End emitted")
	}

	evs := r.Snapshot()
	if len(evs) != 4 {
		t.Fatalf("events = %d", len(evs))
	}
	if evs[1].ParentID != outer.ID() || evs[2].Extra["stages"] != "3" || evs[2].Kind != KindSpanEnd {
		t.Fatalf("inner events = %+v %+v", evs[1], evs[2])
	}
	if CurrentSpan(context.Background()).SpanID != 0 || FromContext(context.Background()) != Nop {
		t.Fatal("empty context defaults")
	}
}

func TestFormatEvent(t *testing.T) {
	r := NewRingTracer(4, LevelDebug)
	s := Begin(r, ScopeRecord, "record S", 0)
	s.Set("packed", "false").End("{i32, i8}")
	end := r.Snapshot()[1]

	text := string(FormatEvent(&end, FormatText))
	if !strings.Contains(text, "< record S ({i32, i8}) [") || !strings.HasSuffix(text, "{packed=false}\n") {
		t.Fatalf("text = %q", text)
	}

	var got map[string]any
	if err := json.Unmarshal(FormatEvent(&end, FormatNDJSON), &got); err != nil {
		t.Fatal(err)
	}
	if got["kind"] != "end" || got["scope"] != "record" || got["name"] != "record S" {
		t.Fatalf("ndjson = %v", got)
	}

	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatText); err != nil || strings.Count(buf.String(), "\n") != 2 {
		t.Fatalf("dump = %q, %v", buf.String(), err)
	}
}

func TestParseFlags(t *testing.T) {
	if _, err := ParseStorage("sideways"); err == nil {
		t.Fatal("bad mode accepted")
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatNDJSON {
		t.Fatalf("format = %v, %v", f, err)
	}
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr != Nop {
		t.Fatalf("off tracer = %v, %v", tr, err)
	}
	tr, err = New(Config{Level: LevelUnit, Storage: StoreBoth, Output: &bytes.Buffer{}})
	if err != nil || FindRing(tr) == nil {
		t.Fatalf("both tracer = %v, %v", tr, err)
	}
	tr, err = New(Config{Level: LevelUnit, Storage: StoreStream, Output: &bytes.Buffer{}})
	if err != nil || FindRing(tr) != nil {
		t.Fatalf("stream tracer = %v, %v", tr, err)
	}
	if _, err := New(Config{Level: LevelUnit}); err == nil {
		t.Fatal("tracer without storage accepted")
	}
	if s, _ := ParseStorage(" Both "); s.String() != "both" {
		t.Fatalf("storage = %v", s)
	}
}
