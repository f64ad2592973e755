package domain

import (
	"time"
)

// LifecycleEventType identifies a registration lifecycle transition
type LifecycleEventType string

const (
	EventRegistrationSubmitted LifecycleEventType = "registration.submitted"
	EventRegistrationApproved  LifecycleEventType = "registration.approved"
	EventRegistrationRejected  LifecycleEventType = "registration.rejected"
	EventRegistrationCancelled LifecycleEventType = "registration.cancelled"
	EventTicketCheckedIn       LifecycleEventType = "ticket.checked_in"
)

// LifecycleEvent is published to downstream consumers (mailer, PDF
// renderer) after the owning transaction commits.
type LifecycleEvent struct {
	EventID        string             `json:"event_id"`
	Type           LifecycleEventType `json:"type"`
	RegistrationID string             `json:"registration_id"`
	UserID         string             `json:"user_id"`
	TicketEventID  string             `json:"ticket_event_id"`
	TierName       string             `json:"tier_name,omitempty"`
	Quantity       int                `json:"quantity,omitempty"`
	Status         string             `json:"status,omitempty"`
	TicketToken    string             `json:"ticket_token,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// NewRegistrationEvent builds a lifecycle event from a registration
func NewRegistrationEvent(eventType LifecycleEventType, reg *Registration, eventID string) *LifecycleEvent {
	return &LifecycleEvent{
		EventID:        eventID,
		Type:           eventType,
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		TicketEventID:  reg.EventID,
		TierName:       reg.TierName,
		Quantity:       reg.Quantity,
		Status:         reg.Status.String(),
		OccurredAt:     time.Now(),
	}
}

// NewCheckInEvent builds a lifecycle event from a consumed ticket
func NewCheckInEvent(ticket *Ticket, eventID string) *LifecycleEvent {
	return &LifecycleEvent{
		EventID:        eventID,
		Type:           EventTicketCheckedIn,
		RegistrationID: ticket.RegistrationID,
		UserID:         ticket.UserID,
		TicketEventID:  ticket.EventID,
		TicketToken:    ticket.Token,
		OccurredAt:     time.Now(),
	}
}

// Key returns the partition key for the event
func (e *LifecycleEvent) Key() string {
	return e.RegistrationID
}
