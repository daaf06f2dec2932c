package source

import "fmt"

// Span locates a declaration inside a translation-unit file. Unit files
// describe declarations, not text, so positions are declaration paths
// such as "record A", "global x" or "global x.init[2]".
type Span struct {
	File string
	Decl string
}

// NoSpan is used for diagnostics that are not tied to a declaration.
var NoSpan = Span{}

func (s Span) Empty() bool { return s.File == "" && s.Decl == "" }

func (s Span) String() string {
	switch {
	case s.Empty():
		return "<unknown>"
	case s.Decl == "":
		return s.File
	case s.File == "":
		return "[" + s.Decl + "]"
	}
	return fmt.Sprintf("%s [%s]", s.File, s.Decl)
}

// Child returns a span for a sub-declaration of s.
func (s Span) Child(format string, args ...any) Span {
	sub := fmt.Sprintf(format, args...)
	if s.Decl == "" {
		return Span{File: s.File, Decl: sub}
	}
	return Span{File: s.File, Decl: s.Decl + "." + sub}
}
