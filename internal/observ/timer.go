// Package observ measures the stages a translation unit goes through.
package observ

import (
	"fmt"
	"strings"
	"time"
)

// Stage records the duration of one pipeline stage.
type Stage struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer collects stage timings of one unit. It is not safe for
// concurrent use; parallel units each own a Timer.
type Timer struct {
	stages []Stage
}

func NewTimer() *Timer { return &Timer{stages: make([]Stage, 0, 6)} }

// Begin starts a stage and returns its handle.
func (t *Timer) Begin(name string) int {
	t.stages = append(t.stages, Stage{Name: name, Start: time.Now()})
	return len(t.stages) - 1
}

// End finishes the stage idx.
func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.stages) {
		return
	}
	s := &t.stages[idx]
	s.Dur = time.Since(s.Start)
	s.Note = note
}

// Time runs fn as stage name. A failing stage is noted as such.
func (t *Timer) Time(name string, fn func() error) error {
	idx := t.Begin(name)
	err := fn()
	note := ""
	if err != nil {
		note = "failed"
	}
	t.End(idx, note)
	return err
}

// StageReport is the serializable form of a Stage.
type StageReport struct {
	Name       string  `json:"name" msgpack:"name"`
	DurationMS float64 `json:"duration_ms" msgpack:"duration_ms"`
	Note       string  `json:"note,omitempty" msgpack:"note,omitempty"`
}

// Report summarizes one or more units.
type Report struct {
	Units   int           `json:"units" msgpack:"units"`
	TotalMS float64       `json:"total_ms" msgpack:"total_ms"`
	Stages  []StageReport `json:"stages" msgpack:"stages"`
}

func (t *Timer) Report() Report {
	r := Report{Units: 1, Stages: make([]StageReport, len(t.stages))}
	var total time.Duration
	for i, s := range t.stages {
		total += s.Dur
		r.Stages[i] = StageReport{Name: s.Name, DurationMS: millis(s.Dur), Note: s.Note}
	}
	r.TotalMS = millis(total)
	return r
}

// Aggregate sums reports stage by stage, keeping the order in which
// stage names first appear.
func Aggregate(reports ...Report) Report {
	var out Report
	index := make(map[string]int)
	for _, r := range reports {
		out.Units += r.Units
		out.TotalMS += r.TotalMS
		for _, s := range r.Stages {
			i, ok := index[s.Name]
			if !ok {
				i = len(out.Stages)
				index[s.Name] = i
				out.Stages = append(out.Stages, StageReport{Name: s.Name})
			}
			out.Stages[i].DurationMS += s.DurationMS
		}
	}
	return out
}

// Summary renders r as an aligned table.
func (r Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "timings (%d unit", r.Units)
	if r.Units != 1 {
		sb.WriteByte('s')
	}
	sb.WriteString("):\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&sb, "  %-12s %8.2f ms", s.Name, s.DurationMS)
		if s.Note != "" {
			sb.WriteString("  // " + s.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-12s %8.2f ms\n", "total", r.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
