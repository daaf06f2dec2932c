package unit

import (
	"fmt"

	"cirgen/internal/diag"
	"cirgen/internal/source"
)

// ParseErrorKind enumerates translation-unit input failures.
type ParseErrorKind uint8

const (
	ParseErrSyntax ParseErrorKind = iota + 1
	ParseErrBadType
	ParseErrUnknownRecord
	ParseErrBadInit
	ParseErrDuplicate
	ParseErrBadField
)

// ParseError reports one malformed declaration.
type ParseError struct {
	Kind   ParseErrorKind
	Span   source.Span
	Detail string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ParseErrSyntax:
		return fmt.Sprintf("%s: invalid TOML: %s", e.Span, e.Detail)
	case ParseErrBadType:
		return fmt.Sprintf("%s: malformed type: %s", e.Span, e.Detail)
	case ParseErrUnknownRecord:
		return fmt.Sprintf("%s: unknown record %s", e.Span, e.Detail)
	case ParseErrBadInit:
		return fmt.Sprintf("%s: malformed initializer: %s", e.Span, e.Detail)
	case ParseErrDuplicate:
		return fmt.Sprintf("%s: duplicate declaration of %s", e.Span, e.Detail)
	case ParseErrBadField:
		return fmt.Sprintf("%s: %s", e.Span, e.Detail)
	default:
		return fmt.Sprintf("%s: unit error kind=%d: %s", e.Span, e.Kind, e.Detail)
	}
}

// Code is the diagnostic code reported for the error.
func (e *ParseError) Code() diag.Code {
	switch e.Kind {
	case ParseErrBadType:
		return diag.UntBadType
	case ParseErrUnknownRecord:
		return diag.UntUnknownRecord
	case ParseErrBadInit:
		return diag.UntBadInit
	case ParseErrDuplicate:
		return diag.UntDuplicateDecl
	case ParseErrBadField, ParseErrSyntax:
		return diag.UntBadField
	}
	return diag.UntInfo
}
