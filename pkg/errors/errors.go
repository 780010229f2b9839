// Package errors defines the error taxonomy shared by the indexing, ranking
// and evaluation pipeline. Sentinels classify a failure; AppError attaches the
// offending path (and line, for parse failures) so the CLI can report it.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrCorruptIndex   = errors.New("corrupt index")
	ErrMalformedInput = errors.New("malformed input")
	ErrEmptyInput     = errors.New("empty input")
)

// AppError wraps a sentinel with the path and detail of the failure.
type AppError struct {
	Err     error
	Path    string
	Line    int
	Message string
}

func (e *AppError) Error() string {
	loc := e.Path
	switch {
	case e.Line > 0 && e.Path == "":
		loc = fmt.Sprintf("line %d", e.Line)
	case e.Line > 0:
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Err.Error(), loc, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, path string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Path:    path,
		Message: message,
	}
}

func Newf(sentinel error, path string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	}
}

// Configuration reports a missing or unreadable input path.
func Configuration(path string, cause error) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Path:    path,
		Message: cause.Error(),
	}
}

// CorruptIndex reports a persisted index that failed schema validation.
func CorruptIndex(path string, format string, args ...any) *AppError {
	return Newf(ErrCorruptIndex, path, format, args...)
}

// Malformed reports an unparseable line in a query, qrels or run file.
func Malformed(path string, line int, format string, args ...any) *AppError {
	return &AppError{
		Err:     ErrMalformedInput,
		Path:    path,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is and As are re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// ExitCode maps an error to the process exit status used by cmd/bm25.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		err = appErr.Err
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrCorruptIndex):
		return 3
	case errors.Is(err, ErrMalformedInput):
		return 4
	default:
		return 1
	}
}
