package trace

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Format selects how a stream tracer renders events.
type Format uint8

const (
	FormatAuto Format = iota // decided by the output path
	FormatText
	FormatNDJSON
)

var formatNames = map[string]Format{"": FormatAuto, "auto": FormatAuto, "text": FormatText, "ndjson": FormatNDJSON, "json": FormatNDJSON}

// ParseFormat reads a --trace-format value.
func ParseFormat(s string) (Format, error) {
	if f, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return FormatAuto, fmt.Errorf("trace format %q: want auto, text or ndjson", s)
}

// FormatEvent renders ev as one line, newline included.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return eventJSON(ev)
	}
	return eventText(ev)
}

// wireEvent is the NDJSON shape of an Event.
type wireEvent struct {
	Time   string            `json:"time"`
	Seq    uint64            `json:"seq"`
	Kind   string            `json:"kind"`
	Scope  string            `json:"scope"`
	Span   uint64            `json:"span_id"`
	Parent uint64            `json:"parent_id,omitempty"`
	Name   string            `json:"name"`
	Detail string            `json:"detail,omitempty"`
	DurUS  int64             `json:"dur_us,omitempty"`
	Attrs  map[string]string `json:"extra,omitempty"`
}

func eventJSON(ev *Event) []byte {
	out, err := json.Marshal(wireEvent{
		Time:   ev.Time.UTC().Format(time.RFC3339Nano),
		Seq:    ev.Seq,
		Kind:   ev.Kind.String(),
		Scope:  ev.Scope.String(),
		Span:   ev.SpanID,
		Parent: ev.ParentID,
		Name:   ev.Name,
		Detail: ev.Detail,
		DurUS:  ev.Dur.Microseconds(),
		Attrs:  ev.Extra,
	})
	if err != nil {
		return nil
	}
	return append(out, '\n')
}

var kindMarks = map[Kind]string{KindSpanBegin: "> ", KindSpanEnd: "< ", KindPoint: ". "}

// eventText renders `#seq scope > name (detail) [dur] {k=v, ...}`.
// Events inside a span are indented by two columns.
func eventText(ev *Event) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%06d %-6s ", ev.Seq, ev.Scope)
	if ev.ParentID != 0 {
		sb.WriteString("  ")
	}
	sb.WriteString(kindMarks[ev.Kind])
	sb.WriteString(ev.Name)
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Detail)
	}
	if ev.Kind == KindSpanEnd {
		fmt.Fprintf(&sb, " [%s]", ev.Dur.Round(time.Microsecond))
	}
	if len(ev.Extra) > 0 {
		attrs := make([]string, 0, len(ev.Extra))
		for _, k := range slices.Sorted(maps.Keys(ev.Extra)) {
			attrs = append(attrs, k+"="+ev.Extra[k])
		}
		fmt.Fprintf(&sb, " {%s}", strings.Join(attrs, ", "))
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
