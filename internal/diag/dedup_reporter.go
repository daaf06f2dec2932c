package diag

import "cirgen/internal/source"

// Dedup forwards each distinct (code, severity, span, message) to next once.
// A record reached from several globals would otherwise report its layout
// problem once per use. Notes do not take part in the comparison.
func Dedup(next Reporter) Reporter {
	type key struct {
		code Code
		sev  Severity
		span source.Span
		msg  string
	}
	seen := make(map[key]bool)
	return ReporterFunc(func(d Diagnostic) {
		k := key{d.Code, d.Severity, d.Primary, d.Message}
		if seen[k] || next == nil {
			return
		}
		seen[k] = true
		next.Report(d.Code, d.Severity, d.Primary, d.Message, d.Notes)
	})
}
