// Package errs defines the error taxonomy shared by every core package,
// per spec.md §7. Callers wrap a sentinel with github.com/pkg/errors so
// errors.Is/errors.As keep working through the wrap chain while the
// message still carries a stack trace for debugging.
package errs

import "github.com/pkg/errors"

// Sentinel error kinds named in spec.md §7.
var (
	// ErrParse surfaces a statement kind, expression kind or operator
	// that the ingestion boundary (internal/specast) does not recognize.
	// Malformed JSON is reported with the decoder's own error, which is
	// not wrapped with ErrParse. Fatal, exit code 2.
	ErrParse = errors.New("parse error")

	// ErrEvaluation covers errors at evaluation time: an arithmetic or
	// logical operator applied to the wrong kind of value, dividing by
	// zero, an unbound $variable, `in` on a non-set, a non-boolean
	// `not` operand or property. Comparing values of different kinds is
	// not an error (equality is false, ordering falls back to string
	// form), and selecting an unknown column reads as nil. Fatal, exit
	// code 2.
	ErrEvaluation = errors.New("evaluation error")

	// ErrConstraintViolation is raised by the storage engine when a
	// unique index or foreign key check fails: unique violations are
	// caught eagerly at insert/update time, foreign key violations only
	// at commit. Not fatal either way: the offending transaction aborts
	// and exploration continues.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrLocked signals that a row lock acquisition would block. Not an
	// error surfaced to the user; it is how the executor tells the
	// interpreter/explorer that the current micro-step is inadmissible.
	ErrLocked = errors.New("row locked")

	// ErrMaxStatesExceeded is returned when exploration is cut off by
	// the MaxStates safety valve before reaching a verdict, per spec.md
	// §9.
	ErrMaxStatesExceeded = errors.New("max states exceeded")
)

// Wrap attaches msg as context to err, preserving the sentinel so
// errors.Is(result, ErrEvaluation) and friends keep working.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
