package domain

import (
	"time"
)

// RegistrationStatus represents the lifecycle state of a registration
type RegistrationStatus string

const (
	// RegistrationStatusPending means payment proof submitted, awaiting review
	RegistrationStatusPending RegistrationStatus = "pending"
	// RegistrationStatusVerified means an admin accepted the payment
	RegistrationStatusVerified RegistrationStatus = "verified"
	// RegistrationStatusRejected means an admin declined the payment
	RegistrationStatusRejected RegistrationStatus = "rejected"
	// RegistrationStatusCancelled means the participant withdrew after approval
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
)

// String returns the string representation of the status
func (s RegistrationStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value
func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusVerified,
		RegistrationStatusRejected, RegistrationStatusCancelled:
		return true
	}
	return false
}

// HoldsInventory reports whether a registration in this status counts
// against tier and event capacity.
func (s RegistrationStatus) HoldsInventory() bool {
	return s == RegistrationStatusPending || s == RegistrationStatusVerified
}

// Registration represents a participant's seat reservation for an event
type Registration struct {
	ID               string             `json:"id"`
	EventID          string             `json:"event_id"`
	UserID           string             `json:"user_id"`
	TierName         string             `json:"tier_name"`
	Quantity         int                `json:"quantity"`
	TotalAmountCents int64              `json:"total_amount_cents"`
	Status           RegistrationStatus `json:"status"`
	PaymentReference string             `json:"payment_reference"`
	PaymentProof     string             `json:"payment_proof,omitempty"`
	RejectionReason  string             `json:"rejection_reason,omitempty"`
	ReviewedBy       string             `json:"reviewed_by,omitempty"`
	VerifiedAt       *time.Time         `json:"verified_at,omitempty"`
	RejectedAt       *time.Time         `json:"rejected_at,omitempty"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Validate checks registration invariants
func (r *Registration) Validate() error {
	if r.UserID == "" {
		return ErrInvalidUserID
	}
	if r.EventID == "" {
		return ErrInvalidEventID
	}
	if r.TierName == "" {
		return ErrInvalidTierName
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.PaymentReference == "" {
		return ErrMissingPaymentReference
	}
	return nil
}

// IsPending returns true while the registration awaits review
func (r *Registration) IsPending() bool {
	return r.Status == RegistrationStatusPending
}

// IsVerified returns true once an admin accepted the payment
func (r *Registration) IsVerified() bool {
	return r.Status == RegistrationStatusVerified
}

// BelongsToUser checks registration ownership
func (r *Registration) BelongsToUser(userID string) bool {
	return r.UserID == userID
}

// Approve transitions pending -> verified
func (r *Registration) Approve(adminID string) error {
	if r.Status != RegistrationStatusPending {
		return &NotPendingError{Status: r.Status}
	}
	now := time.Now()
	r.Status = RegistrationStatusVerified
	r.ReviewedBy = adminID
	r.VerifiedAt = &now
	r.UpdatedAt = now
	return nil
}

// Reject transitions pending -> rejected with a mandatory reason
func (r *Registration) Reject(adminID, reason string) error {
	if reason == "" {
		return ErrMissingReason
	}
	if r.Status != RegistrationStatusPending {
		return &NotPendingError{Status: r.Status}
	}
	now := time.Now()
	r.Status = RegistrationStatusRejected
	r.ReviewedBy = adminID
	r.RejectionReason = reason
	r.RejectedAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel transitions verified -> cancelled
func (r *Registration) Cancel() error {
	if r.Status != RegistrationStatusVerified {
		return ErrNotVerified
	}
	now := time.Now()
	r.Status = RegistrationStatusCancelled
	r.CancelledAt = &now
	r.UpdatedAt = now
	return nil
}
