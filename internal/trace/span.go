package trace

import (
	"strconv"
	"sync/atomic"
	"time"
)

// seq orders events across all tracers; spans numbers span IDs from 1.
var seq, spans atomic.Uint64

// Span is an open begin/end pair. A span of a disabled tracer is inert, and
// so is a nil *Span.
type Span struct {
	t     Tracer
	ev    Event // the begin event; End reuses its identity
	extra map[string]string
}

// Begin emits the begin event of a span nested under parent (0 for a
// root).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{}
	}
	s := &Span{t: t, ev: Event{
		Time:     time.Now(),
		Seq:      seq.Add(1),
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   spans.Add(1),
		ParentID: parent,
		Name:     name,
	}}
	begin := s.ev
	t.Emit(&begin)
	return s
}

// Set attaches key=value to the end event.
func (s *Span) Set(key, value string) *Span {
	if s == nil || s.t == nil {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// SetInt is Set for an integer value.
func (s *Span) SetInt(key string, v int) *Span { return s.Set(key, strconv.Itoa(v)) }

// End emits the end event with detail and the elapsed time, which it also
// returns.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.t == nil {
		return 0
	}
	now := time.Now()
	end := s.ev
	end.Time = now
	end.Seq = seq.Add(1)
	end.Kind = KindSpanEnd
	end.Detail = detail
	end.Dur = now.Sub(s.ev.Time)
	end.Extra = s.extra
	s.t.Emit(&end)
	s.t = nil
	return end.Dur
}

// ID is the span's ID, 0 for an inert span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.ev.SpanID
}
