package trace

import (
	"errors"
	"io"
	"sync"
)

// writerTracer formats each event as it arrives.
type writerTracer struct {
	mu     sync.Mutex
	w      io.Writer
	owned  bool
	level  Level
	format Format
}

func (t *writerTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	line := FormatEvent(ev, t.format)
	t.mu.Lock()
	_, _ = t.w.Write(line) // best effort; a broken sink never fails a unit
	t.mu.Unlock()
}

func (t *writerTracer) Flush() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (t *writerTracer) Close() error {
	err := t.Flush()
	if c, ok := t.w.(io.Closer); ok && t.owned {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (t *writerTracer) Level() Level  { return t.level }
func (t *writerTracer) Enabled() bool { return true }

// fanout forwards every event to each sink.
type fanout struct {
	sinks []Tracer
	level Level
}

func (t *fanout) Emit(ev *Event) {
	for _, s := range t.sinks {
		s.Emit(ev)
	}
}

func (t *fanout) each(fn func(Tracer) error) error {
	var err error
	for _, s := range t.sinks {
		err = errors.Join(err, fn(s))
	}
	return err
}

func (t *fanout) Flush() error  { return t.each(Tracer.Flush) }
func (t *fanout) Close() error  { return t.each(Tracer.Close) }
func (t *fanout) Level() Level  { return t.level }
func (t *fanout) Enabled() bool { return true }
