package condition

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned by Compile for malformed expressions.
	ErrSyntax = errors.New("condition: syntax error")

	// ErrEvaluation is the parent of every failure raised while evaluating.
	ErrEvaluation = errors.New("condition: evaluation failed")

	// ErrUnknownFunction is returned when a call names no helper.
	ErrUnknownFunction = errors.New("condition: unknown function")

	// ErrUnknownVariable is returned when an identifier is not in scope.
	ErrUnknownVariable = errors.New("condition: unknown variable")

	// ErrArity is returned when a helper receives the wrong number of arguments.
	ErrArity = errors.New("condition: wrong number of arguments")

	// ErrType is returned when an operand or argument has the wrong type.
	ErrType = errors.New("condition: type mismatch")

	// ErrDivideByZero is returned for division by zero.
	ErrDivideByZero = errors.New("condition: division by zero")
)

// SyntaxError describes where compilation failed.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at offset %d in %q: %s", ErrSyntax, e.Pos, e.Expr, e.Msg)
}

// Unwrap lets errors.Is match ErrSyntax.
func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// evalError wraps kind under ErrEvaluation so callers can match either.
func evalError(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrEvaluation, kind, fmt.Sprintf(format, args...))
}
