package dto

import (
	"time"

	"github.com/eventpass/eventpass/internal/domain"
)

// CreateRegistrationRequest is the payload for submitting a registration
type CreateRegistrationRequest struct {
	EventID          string `json:"event_id" binding:"required"`
	TierName         string `json:"tier_name" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required,min=1"`
	PaymentReference string `json:"payment_reference" binding:"required"`
	PaymentProof     string `json:"payment_proof"`
}

// RejectRegistrationRequest is the payload for rejecting a registration
type RejectRegistrationRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RegistrationResponse is the API representation of a registration
type RegistrationResponse struct {
	ID               string     `json:"id"`
	EventID          string     `json:"event_id"`
	UserID           string     `json:"user_id"`
	TierName         string     `json:"tier_name"`
	Quantity         int        `json:"quantity"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewRegistrationResponse converts a domain registration to its API form
func NewRegistrationResponse(reg *domain.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		ID:               reg.ID,
		EventID:          reg.EventID,
		UserID:           reg.UserID,
		TierName:         reg.TierName,
		Quantity:         reg.Quantity,
		TotalAmountCents: reg.TotalAmountCents,
		Status:           reg.Status.String(),
		PaymentReference: reg.PaymentReference,
		RejectionReason:  reg.RejectionReason,
		VerifiedAt:       reg.VerifiedAt,
		RejectedAt:       reg.RejectedAt,
		CancelledAt:      reg.CancelledAt,
		CreatedAt:        reg.CreatedAt,
		UpdatedAt:        reg.UpdatedAt,
	}
}

// CreateRegistrationResponse carries the new registration plus the tier
// availability left after the reservation
type CreateRegistrationResponse struct {
	Registration *RegistrationResponse `json:"registration"`
	Remaining    int                   `json:"remaining"`
}

// ApproveRegistrationResponse carries the verified registration and the
// minted per-seat credentials
type ApproveRegistrationResponse struct {
	Registration *RegistrationResponse `json:"registration"`
	Tickets      []string              `json:"tickets"`
}

// RegistrationListResponse is a paginated list of registrations
type RegistrationListResponse struct {
	Registrations []*RegistrationResponse `json:"registrations"`
	Page          int                     `json:"page"`
	PageSize      int                     `json:"page_size"`
}

// NewRegistrationListResponse converts a page of domain registrations
func NewRegistrationListResponse(regs []*domain.Registration, page, pageSize int) *RegistrationListResponse {
	items := make([]*RegistrationResponse, 0, len(regs))
	for _, reg := range regs {
		items = append(items, NewRegistrationResponse(reg))
	}
	return &RegistrationListResponse{
		Registrations: items,
		Page:          page,
		PageSize:      pageSize,
	}
}

// ReconcileResponse summarizes a manually triggered reconciliation sweep
type ReconcileResponse struct {
	EventsScanned      int `json:"events_scanned"`
	TiersChecked       int `json:"tiers_checked"`
	CorrectionsApplied int `json:"corrections_applied"`
	CorrectionsSkipped int `json:"corrections_skipped"`
}
