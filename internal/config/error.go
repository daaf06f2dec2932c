package config

import "fmt"

// ErrorKind enumerates configuration failures.
type ErrorKind uint8

const (
	ErrRead ErrorKind = iota + 1
	ErrDecode
	ErrBadTarget
	ErrBadPolicy
)

// Error reports a configuration file that cannot be used.
type Error struct {
	Kind ErrorKind
	Path string
	Key  string // dotted key, for ErrBadTarget and ErrBadPolicy
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrRead:
		return fmt.Sprintf("%s: cannot read configuration: %v", e.Path, e.Err)
	case ErrDecode:
		return fmt.Sprintf("%s: failed to parse TOML: %v", e.Path, e.Err)
	case ErrBadTarget:
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Key, e.Err)
	case ErrBadPolicy:
		return fmt.Sprintf("%s: invalid %s: %v", e.Path, e.Key, e.Err)
	default:
		return fmt.Sprintf("configuration error kind=%d: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
