package layout

import (
	"fmt"
	"strings"

	"cirgen/internal/types"
)

// LayoutErrorKind enumerates layout failures.
type LayoutErrorKind uint8

const (
	LayoutErrRecursive LayoutErrorKind = iota + 1
	LayoutErrIncomplete
	LayoutErrNotRecord
	LayoutErrBadType
)

// LayoutError reports a record that cannot be laid out.
type LayoutError struct {
	Kind   LayoutErrorKind
	Type   types.TypeID
	Record string
	Cycle  []string // for LayoutErrRecursive
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrRecursive:
		return fmt.Sprintf("record %s contains itself by value (cycle: %s)", e.Record, strings.Join(e.Cycle, " -> "))
	case LayoutErrIncomplete:
		return fmt.Sprintf("record %s is incomplete", e.Record)
	case LayoutErrNotRecord:
		return fmt.Sprintf("%v is not a record type", e.Type)
	case LayoutErrBadType:
		return fmt.Sprintf("%v has no layout", e.Type)
	default:
		return fmt.Sprintf("layout error kind=%d %v", e.Kind, e.Type)
	}
}
