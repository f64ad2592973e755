package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TicketStatus represents the lifecycle state of a per-seat credential
type TicketStatus string

const (
	// TicketStatusActive means the credential can still be scanned
	TicketStatusActive TicketStatus = "active"
	// TicketStatusUsed means the credential was consumed at the venue
	TicketStatusUsed TicketStatus = "used"
	// TicketStatusCancelled means the owning registration was cancelled
	TicketStatusCancelled TicketStatus = "cancelled"
)

// String returns the string representation of the status
func (s TicketStatus) String() string {
	return string(s)
}

// TokenBytes is the entropy of a ticket token; tokens are hex encoded.
const TokenBytes = 32

// Ticket is a single-seat scannable credential minted on approval
type Ticket struct {
	ID             string       `json:"id"`
	RegistrationID string       `json:"registration_id"`
	EventID        string       `json:"event_id"`
	UserID         string       `json:"user_id"`
	Token          string       `json:"token"`
	Status         TicketStatus `json:"status"`
	UsedAt         *time.Time   `json:"used_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// IsActive returns true while the ticket can be scanned
func (t *Ticket) IsActive() bool {
	return t.Status == TicketStatusActive
}

// NewTicketToken generates a random credential token
func NewTicketToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate ticket token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
