package service

import (
	"context"
	"errors"
	"fmt"

	"membership-backend/internal/controlnumber"
	"membership-backend/internal/domain"
	"membership-backend/internal/repository"
)

// Error kinds. Handlers map them to status codes.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnavailable        = errors.New("store unavailable")
	ErrPartialApproval    = errors.New("member created but request status was not updated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

// kindError carries a user-facing message and matches its kind with errors.Is.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func validationError(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...any) error {
	return &kindError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// storeError classifies a repository failure.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, domain.ErrMalformedRecord):
		return notFoundError("Record not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, controlnumber.ErrSequenceExhausted):
		return conflictError("No control numbers left for today")
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Message returns the text shown to users for err.
func Message(err error) string {
	var ke *kindError
	switch {
	case errors.Is(err, ErrPartialApproval):
		return "Member was added but the request could not be marked approved. Run reconcile to repair."
	case errors.Is(err, ErrUnavailable):
		return "The database could not be reached. Please try again."
	case errors.As(err, &ke):
		return ke.msg
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials!"
	case errors.Is(err, ErrForbidden):
		return "You do not have access to this resource."
	}
	return "Something went wrong. Please try again."
}
