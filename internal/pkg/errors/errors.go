package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
)

var (
	ErrValidation        = fmt.Errorf("validation error: %w", ErrInvalid)
	ErrJobNotFound       = fmt.Errorf("job %w", ErrNotFound)
	ErrQueueUnavailable  = errors.New("queue unavailable")
	ErrDocumentLoad      = errors.New("document load error")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrIndexWrite        = errors.New("index write error")
	ErrIndexQuery        = errors.New("index query error")
	ErrGenerationService = errors.New("generation service error")
	ErrPersistence       = errors.New("persistence error")
)

// Wrap tags err with a taxonomy sentinel, keeping both in the chain.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Validation builds a validation error naming the offending field.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalid)
}
