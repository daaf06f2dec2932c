package ui

import (
	"strings"
	"testing"

	"cirgen/internal/driver"
)

func TestProgressModel_Events(t *testing.T) {
	events := make(chan driver.Event)
	m := NewProgressModel("emit", []string{"a.toml", "b.toml"}, events).(*progressModel)

	m.applyEvent(driver.Event{Path: "a.toml", Stage: driver.StageLayout, Status: driver.StatusWorking})
	if m.items[0].status != "layout" || m.items[0].final {
		t.Fatalf("a = %+v", m.items[0])
	}
	m.applyEvent(driver.Event{Path: "a.toml", Stage: driver.StageEmit, Status: driver.StatusDone})
	m.applyEvent(driver.Event{Path: "b.toml", Stage: driver.StageParse, Status: driver.StatusCached})
	m.applyEvent(driver.Event{Path: "unknown.toml", Stage: driver.StageParse, Status: driver.StatusError})
	if got := m.fraction(); got != 1 {
		t.Fatalf("fraction = %v", got)
	}

	m.Update(doneMsg{})
	view := m.View()
	if !strings.Contains(view, "done: emit") || !strings.Contains(view, "cached") {
		t.Fatalf("view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"a-very-long-unit-name.toml", 10, "a-very-..."},
		{"abcdef", 2, "ab"},
		{"unbounded", 0, "unbounded"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
