package codegen

import (
	"fmt"

	"cirgen/internal/diag"
	"cirgen/internal/source"
)

// UnsupportedErrorKind separates features that are recognised but not
// implemented from input the emitter rejects.
type UnsupportedErrorKind uint8

const (
	UnsupportedNYI UnsupportedErrorKind = iota + 1
	UnsupportedInput
)

// UnsupportedError stops emission of one declaration. Code is the
// diagnostic reported for it; for UnsupportedNYI it names the feature.
type UnsupportedError struct {
	Kind   UnsupportedErrorKind
	Code   diag.Code
	Span   source.Span
	Detail string
}

func (e *UnsupportedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case UnsupportedNYI:
		if e.Detail == "" {
			return fmt.Sprintf("%s: not yet implemented: %s", e.Span, e.Code.Title())
		}
		return fmt.Sprintf("%s: not yet implemented: %s (%s)", e.Span, e.Code.Title(), e.Detail)
	case UnsupportedInput:
		return fmt.Sprintf("%s: %s: %s", e.Span, e.Code.Title(), e.Detail)
	default:
		return fmt.Sprintf("%s: unsupported kind=%d %s", e.Span, e.Kind, e.Detail)
	}
}

// nyi reports the feature and returns the error that aborts emission.
func (m *Module) nyi(code diag.Code, sp source.Span, detail string) error {
	msg := code.Title()
	if detail != "" {
		msg += ": " + detail
	}
	diag.ReportError(m.reporter, code, sp, msg).Emit()
	return &UnsupportedError{Kind: UnsupportedNYI, Code: code, Span: sp, Detail: detail}
}

// reject reports malformed or unsupported input.
func (m *Module) reject(code diag.Code, sp source.Span, detail string) error {
	diag.ReportError(m.reporter, code, sp, detail).Emit()
	return &UnsupportedError{Kind: UnsupportedInput, Code: code, Span: sp, Detail: detail}
}
