package audit

import "fmt"

// ErrorKind names one of the error surfaces documented in the error
// handling design: validation and graph-construction failures are fatal at
// load time, while Unresolved/ViolationConflict are collected into a
// Report instead of being returned as Go errors.
type ErrorKind int

const (
	ErrStoreValidation ErrorKind = iota
	ErrGraphCycle
	ErrFilterParse
	ErrProvider
	ErrUserAbort
)

func (k ErrorKind) String() string {
	switch k {
	case ErrStoreValidation:
		return "StoreValidation"
	case ErrGraphCycle:
		return "GraphCycle"
	case ErrFilterParse:
		return "FilterParse"
	case ErrProvider:
		return "ProviderError"
	case ErrUserAbort:
		return "UserAbort"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with one of the documented error kinds,
// so callers at the CLI boundary can map it to an exit code and a
// consistent surface name without string-matching messages.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap builds an Error of the given kind around cause.
func Wrap(kind ErrorKind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}
