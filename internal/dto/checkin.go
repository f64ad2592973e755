package dto

import (
	"time"

	"github.com/eventpass/eventpass/internal/domain"
)

// CheckInRequest is the payload for consuming a ticket at the venue
type CheckInRequest struct {
	Token string `json:"token" binding:"required"`
}

// TicketResponse is the API representation of a ticket
type TicketResponse struct {
	ID             string     `json:"id"`
	RegistrationID string     `json:"registration_id"`
	EventID        string     `json:"event_id"`
	UserID         string     `json:"user_id"`
	Status         string     `json:"status"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewTicketResponse converts a domain ticket to its API form.
// The token itself is deliberately omitted: callers already hold it.
func NewTicketResponse(ticket *domain.Ticket) *TicketResponse {
	return &TicketResponse{
		ID:             ticket.ID,
		RegistrationID: ticket.RegistrationID,
		EventID:        ticket.EventID,
		UserID:         ticket.UserID,
		Status:         ticket.Status.String(),
		UsedAt:         ticket.UsedAt,
		CreatedAt:      ticket.CreatedAt,
	}
}

// AttendanceResponse aggregates check-in progress for an event
type AttendanceResponse struct {
	EventID   string `json:"event_id"`
	CheckedIn int    `json:"checked_in"`
	Remaining int    `json:"remaining"`
	Total     int    `json:"total"`
}
