package repository

import (
	"context"

	"github.com/eventpass/eventpass/internal/domain"
)

// ReserveResult carries the outcome of a successful reservation
type ReserveResult struct {
	TotalAmountCents int64
	// Remaining is the tier availability after the decrement
	Remaining int
}

// ApproveResult carries the outcome of a successful approval
type ApproveResult struct {
	Registration *domain.Registration
	// Tokens are the freshly minted per-seat credentials
	Tokens []string
}

// AttendanceStats aggregates check-in counts for an event
type AttendanceStats struct {
	CheckedIn int `json:"checked_in"`
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

// RegistrationRepository persists registrations and drives their
// inventory-coupled state transitions in single transactions.
type RegistrationRepository interface {
	// Reserve atomically checks the payment reference, decrements tier
	// availability, enforces event capacity and inserts the pending
	// registration. The registration's ID, status and timestamps must be
	// set by the caller.
	Reserve(ctx context.Context, reg *domain.Registration) (*ReserveResult, error)

	// Approve transitions pending -> verified, mints one ticket per seat
	// and credits referral points exactly once, all in one transaction.
	Approve(ctx context.Context, registrationID, adminID string) (*ApproveResult, error)

	// Reject transitions pending -> rejected and restores tier availability.
	Reject(ctx context.Context, registrationID, adminID, reason string) (*domain.Registration, error)

	// Cancel transitions verified -> cancelled, restores tier availability
	// and voids the registration's still-active tickets.
	Cancel(ctx context.Context, registrationID string) (*domain.Registration, error)

	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error)
	GetByEventID(ctx context.Context, eventID string, limit, offset int) ([]*domain.Registration, error)
}

// TierRepository reads tier inventory and applies reconciliation corrections
type TierRepository interface {
	ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketTier, error)

	// HeldQuantities returns, per tier name, the summed quantity of
	// registrations that still hold inventory (pending + verified).
	HeldQuantities(ctx context.Context, eventID string) (map[string]int, error)

	// CompareAndSetAvailable writes the corrected availability only if the
	// stored value still equals old. Returns false when a concurrent
	// write invalidated the correction.
	CompareAndSetAvailable(ctx context.Context, eventID, tierName string, old, new int) (bool, error)
}

// EventRepository reads event records
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListIDs(ctx context.Context, limit, offset int) ([]string, error)
}

// TicketRepository persists per-seat credentials and consumes them at the venue
type TicketRepository interface {
	// CheckIn atomically flips an active ticket of a verified registration
	// to used. On conflict it returns a typed domain error describing why.
	CheckIn(ctx context.Context, token string) (*domain.Ticket, error)

	GetByToken(ctx context.Context, token string) (*domain.Ticket, error)
	EventAttendance(ctx context.Context, eventID string) (*AttendanceStats, error)
}
