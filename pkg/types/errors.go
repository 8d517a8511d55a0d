package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrDecode     = errors.New("decode error")
	ErrStorage    = errors.New("storage error")
	ErrModeration = errors.New("moderation error")
	ErrConflict   = errors.New("conflict")
	ErrTimeout    = errors.New("timeout")

	ErrEvidenceNotFound     = errors.New("evidence not found")
	ErrQuizSettingsNotFound = errors.New("quiz settings not found")
)

// Error carries a kind and a message. It deliberately unwraps only to its
// kind so backend error types stay inside the package that produced them.
type Error struct {
	Kind    error
	Message string
}

func NewError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrTimeout)
}
