// Package fault defines the error taxonomy shared by the registry, the
// lifecycle engine and the HTTP layer. Callers discriminate with errors.As;
// the server maps each type to a status code.
package fault

import "fmt"

// ValidationError indicates a submission that fails a capability schema or a
// request/parameters shape check.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// NotFoundError indicates an unknown identifier.
type NotFoundError struct {
	Msg string
}

func (e NotFoundError) Error() string { return e.Msg }

// DuplicateError indicates a capability or tenant uniqueness violation.
type DuplicateError struct {
	Msg string
}

func (e DuplicateError) Error() string { return e.Msg }

// IllegalTransitionError indicates a status change forbidden by the state machine.
type IllegalTransitionError struct {
	Msg string
}

func (e IllegalTransitionError) Error() string { return e.Msg }

// SchemaError indicates a malformed capability or limitations schema, such as
// an unresolved reference or a node without a type.
type SchemaError struct {
	Msg string
}

func (e SchemaError) Error() string { return e.Msg }

// CorruptedStateError indicates a violated data-integrity invariant, such as
// two active capability rows for one (quantity, method) pair. Never a user error.
type CorruptedStateError struct {
	Msg string
}

func (e CorruptedStateError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func Duplicatef(format string, args ...any) error {
	return DuplicateError{Msg: fmt.Sprintf(format, args...)}
}

func IllegalTransitionf(format string, args ...any) error {
	return IllegalTransitionError{Msg: fmt.Sprintf(format, args...)}
}

func Schemaf(format string, args ...any) error {
	return SchemaError{Msg: fmt.Sprintf(format, args...)}
}

func Corruptedf(format string, args ...any) error {
	return CorruptedStateError{Msg: fmt.Sprintf(format, args...)}
}
