package domain

import (
	"time"
)

// EventStatus represents whether an event accepts registrations
type EventStatus string

const (
	EventStatusOpen   EventStatus = "open"
	EventStatusClosed EventStatus = "closed"
)

// Event represents an event with a finite admission capacity
type Event struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Venue     string      `json:"venue"`
	StartsAt  time.Time   `json:"starts_at"`
	Capacity  int         `json:"capacity"`
	Status    EventStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IsOpen returns true if the event accepts new registrations
func (e *Event) IsOpen() bool {
	return e.Status == EventStatusOpen
}

// TicketTier is a named seat pool within an event.
// quantity_available only moves through conditional single-statement
// updates so it never leaves [0, quantity_total].
type TicketTier struct {
	EventID           string `json:"event_id"`
	Name              string `json:"name"`
	UnitPriceCents    int64  `json:"unit_price_cents"`
	QuantityTotal     int    `json:"quantity_total"`
	QuantityAvailable int    `json:"quantity_available"`
	Version           int64  `json:"version"`
}

// Sold returns the number of seats currently held or sold in this tier
func (t *TicketTier) Sold() int {
	return t.QuantityTotal - t.QuantityAvailable
}
