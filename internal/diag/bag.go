package diag

import (
	"sort"
	"strings"

	"fortio.org/safecast"
)

type Bag struct {
	items []Diagnostic
	max   uint16
}

func NewBag(maxItems int) *Bag {
	return &Bag{
		items: make([]Diagnostic, 0, min(maxItems, 64)),
		max:   safecast.MustConv[uint16](maxItems),
	}
}

// Add appends d unless the limit is reached.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int { return len(b.items) }

// Items returns the backing slice; callers must not modify it.
func (b *Bag) Items() []Diagnostic { return b.items }

// Merge appends other, growing the limit if needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	total := len(b.items) + len(other.items)
	if total > int(b.max) {
		b.max = safecast.MustConv[uint16](total)
	}
	b.items = append(b.items, other.items...)
}

// Sort orders by file, declaration, severity (desc), code.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Primary.File != dj.Primary.File {
			return di.Primary.File < dj.Primary.File
		}
		if di.Primary.Decl != dj.Primary.Decl {
			return di.Primary.Decl < dj.Primary.Decl
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}

// Format renders one line per diagnostic, notes indented below.
func (b *Bag) Format() string {
	var sb strings.Builder
	for _, d := range b.items {
		sb.WriteString(d.String())
		sb.WriteByte('\n')
		for _, n := range d.Notes {
			sb.WriteString("  note: ")
			sb.WriteString(n.Msg)
			if !n.Span.Empty() {
				sb.WriteString(" at ")
				sb.WriteString(n.Span.String())
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
