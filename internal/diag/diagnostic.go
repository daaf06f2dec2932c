package diag

import (
	"strings"

	"cirgen/internal/source"
)

// Note points at a related declaration.
type Note struct {
	Span source.Span
	Msg  string
}

// Diagnostic is one user-facing message about a declaration of a unit.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
}

func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Primary: primary, Message: msg}
}

func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

// WithNote returns d with one more note; d itself is unchanged.
func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes[:len(d.Notes):len(d.Notes)], Note{Span: sp, Msg: msg})
	return d
}

func (d Diagnostic) String() string {
	return strings.Join([]string{d.Severity.Label(), d.Code.ID(), d.Primary.String(), d.Message}, " ")
}
