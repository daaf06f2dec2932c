package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity. Each level admits one more scope
// than the one below it.
type Level uint8

const (
	LevelOff    Level = iota
	LevelUnit         // driver and units
	LevelRecord       // plus record layouts and globals
	LevelDebug        // plus expression nodes
)

var levelNames = [...]string{"off", "unit", "record", "debug"}

// deepest is the innermost scope each level lets through.
var deepest = [...]Scope{LevelOff: 0, LevelUnit: ScopeUnit, LevelRecord: ScopeRecord, LevelDebug: ScopeNode}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel reads a --trace-level value; the empty string is off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("trace level %q: want one of %s", s, strings.Join(levelNames[:], ", "))
}

// ShouldEmit reports whether events of scope pass this level.
func (l Level) ShouldEmit(scope Scope) bool {
	return int(l) < len(deepest) && scope != 0 && scope <= deepest[l]
}
