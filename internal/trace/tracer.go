package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer receives trace events. Implementations must be goroutine-safe:
// the driver emits units in parallel.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

// Storage selects where events go. The bits combine.
type Storage uint8

const (
	StoreStream Storage = 1 << iota // written as they happen
	StoreRing                       // kept in memory for a post-mortem dump

	StoreBoth = StoreStream | StoreRing
)

var storageNames = map[string]Storage{
	"stream": StoreStream,
	"ring":   StoreRing,
	"both":   StoreBoth,
}

func (s Storage) String() string {
	for name, v := range storageNames {
		if v == s {
			return name
		}
	}
	return fmt.Sprintf("storage(%d)", uint8(s))
}

// ParseStorage reads a --trace-mode value.
func ParseStorage(s string) (Storage, error) {
	if v, ok := storageNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return StoreRing, fmt.Errorf("trace mode %q: want stream, ring or both", s)
}

type Config struct {
	Level      Level
	Storage    Storage
	Format     Format
	Output     io.Writer // wins over OutputPath
	OutputPath string    // "" and "-" mean stderr
	RingSize   int       // 4096 when unset
}

// New builds the tracer cfg describes. LevelOff yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.Storage&StoreBoth == 0 {
		return nil, fmt.Errorf("trace: no storage selected")
	}
	var sinks []Tracer
	if cfg.Storage&StoreStream != 0 {
		w, owned, err := cfg.output()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, &writerTracer{w: w, owned: owned, level: cfg.Level, format: cfg.format()})
	}
	if cfg.Storage&StoreRing != 0 {
		size := cfg.RingSize
		if size <= 0 {
			size = 4096
		}
		sinks = append(sinks, NewRingTracer(size, cfg.Level))
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return &fanout{sinks: sinks, level: cfg.Level}, nil
}

// format resolves FormatAuto from the output file extension.
func (cfg Config) format() Format {
	if cfg.Format != FormatAuto {
		return cfg.Format
	}
	switch {
	case strings.HasSuffix(cfg.OutputPath, ".ndjson"), strings.HasSuffix(cfg.OutputPath, ".json"):
		return FormatNDJSON
	}
	return FormatText
}

// output opens the stream destination. owned reports whether the tracer
// must close it.
func (cfg Config) output() (w io.Writer, owned bool, err error) {
	switch {
	case cfg.Output != nil:
		return cfg.Output, false, nil
	case cfg.OutputPath == "" || cfg.OutputPath == "-":
		return os.Stderr, false, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, false, fmt.Errorf("trace output: %w", err)
	}
	return f, true, nil
}

// FindRing returns the ring buffer inside t, if any.
func FindRing(t Tracer) *RingTracer {
	switch tt := t.(type) {
	case *RingTracer:
		return tt
	case *fanout:
		for _, s := range tt.sinks {
			if r := FindRing(s); r != nil {
				return r
			}
		}
	}
	return nil
}
