package domain

import (
	"time"
)

// User is the minimal participant record this service needs:
// identity, who referred them, and their accumulated referral points.
type User struct {
	ID             string    `json:"id"`
	ReferredBy     string    `json:"referred_by,omitempty"`
	ReferralPoints int64     `json:"referral_points"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReferralPointsPerSeat is credited to the referrer for every approved seat
const ReferralPointsPerSeat = 10

// ReferralCredit records a one-time referral payout for an approved
// registration. The registration id is the primary key, which is what
// makes repeated approvals credit at most once.
type ReferralCredit struct {
	RegistrationID string    `json:"registration_id"`
	ReferrerID     string    `json:"referrer_id"`
	Points         int64     `json:"points"`
	CreatedAt      time.Time `json:"created_at"`
}
