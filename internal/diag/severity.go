package diag

import "strings"

// Severity orders diagnostics. A unit holding any SevError fails.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

var severityLabels = [...]string{SevInfo: "info", SevWarning: "warning", SevError: "error"}

// Label is the lower-case form used in one-line output.
func (s Severity) Label() string {
	if int(s) < len(severityLabels) {
		return severityLabels[s]
	}
	return "info"
}

func (s Severity) String() string {
	if int(s) >= len(severityLabels) {
		return "UNKNOWN"
	}
	return strings.ToUpper(severityLabels[s])
}
