package repos

import "fmt"

// Domain errors are typed values so callers can map them with errors.As.
// Postgres errors pass through unwrapped except pgx.ErrNoRows, which lookup
// boundaries translate to NotFoundError.

type NotFoundError struct {
	Message string
}

func (e NotFoundError) Error() string { return e.Message }

func NotFoundf(format string, args ...any) error {
	return NotFoundError{Message: fmt.Sprintf(format, args...)}
}

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

func Validationf(format string, args ...any) error {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

type ForbiddenError struct {
	Message string
}

func (e ForbiddenError) Error() string { return e.Message }

func Forbiddenf(format string, args ...any) error {
	return ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

func Conflictf(format string, args ...any) error {
	return ConflictError{Message: fmt.Sprintf(format, args...)}
}

type WIPLimitError struct {
	Current int
	Limit   int
}

func (e WIPLimitError) Error() string {
	return fmt.Sprintf("WIP limit exceeded: you have %d case(s) in progress (limit: %d)", e.Current, e.Limit)
}
