package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	// Registration errors
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrNotPending           = errors.New("registration is not pending")
	ErrNotVerified          = errors.New("registration is not verified")
	ErrNotOwner             = errors.New("registration belongs to another user")
	ErrDuplicateReference   = errors.New("payment reference already used")

	// Inventory errors
	ErrCapacityExceeded = errors.New("not enough seats available")
	ErrTierNotFound     = errors.New("ticket tier not found")
	ErrEventNotFound    = errors.New("event not found")

	// Ticket errors
	ErrTicketNotFound          = errors.New("ticket not found")
	ErrTicketCancelled         = errors.New("ticket has been cancelled")
	ErrAlreadyCheckedIn        = errors.New("ticket already checked in")
	ErrRegistrationNotVerified = errors.New("registration is not verified")

	// Validation errors
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidRegistrationID   = errors.New("invalid registration id")
	ErrInvalidEventID          = errors.New("invalid event id")
	ErrInvalidTierName         = errors.New("invalid tier name")
	ErrInvalidQuantity         = errors.New("quantity must be greater than zero")
	ErrInvalidToken            = errors.New("invalid ticket token")
	ErrMissingReason           = errors.New("rejection reason is required")
	ErrMissingPaymentReference = errors.New("payment reference is required")
)

// CapacityError reports a failed reservation along with the seats still available.
type CapacityError struct {
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough seats available (%d remaining)", e.Remaining)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// NotPendingError reports a guarded transition that failed because the
// registration already left the pending state.
type NotPendingError struct {
	Status RegistrationStatus
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("registration is not pending (status: %s)", e.Status)
}

func (e *NotPendingError) Is(target error) bool {
	return target == ErrNotPending
}

// AlreadyCheckedInError reports a replayed check-in with the original scan time.
type AlreadyCheckedInError struct {
	UsedAt time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("ticket already checked in at %s", e.UsedAt.Format(time.RFC3339))
}

func (e *AlreadyCheckedInError) Is(target error) bool {
	return target == ErrAlreadyCheckedIn
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrTierNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTicketNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidRegistrationID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidTierName) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrMissingReason) ||
		errors.Is(err, ErrMissingPaymentReference)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrNotVerified) ||
		errors.Is(err, ErrDuplicateReference) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrTicketCancelled) ||
		errors.Is(err, ErrRegistrationNotVerified)
}
