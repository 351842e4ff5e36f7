package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionParty string

const (
	SessionPartyRider  SessionParty = "rider"
	SessionPartyDriver SessionParty = "driver"
)

type SessionResponse string

const (
	SessionResponseUnset      SessionResponse = ""
	SessionResponseAccepted   SessionResponse = "accepted"
	SessionResponseRefused    SessionResponse = "refused"
	SessionResponseNoResponse SessionResponse = "no_response"
)

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusApproved SessionStatus = "approved"
	SessionStatusCanceled SessionStatus = "canceled"
	SessionStatusDisputed SessionStatus = "disputed"
	SessionStatusReview   SessionStatus = "review"
)

// IsTerminal reports whether the session can no longer change state.
// Disputed and review sessions stay open for operator resolution.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusApproved || s == SessionStatusCanceled
}

// CarpoolSession accumulates both parties' answers to "did this trip
// happen". AgreedAmountMinor is set at most once, and only when both
// proposed amounts match; no settlement decision is made without it.
type CarpoolSession struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	MatchID           string              `json:"match_id" bson:"match_id" validate:"required"`
	SessionID         string              `json:"session_id" bson:"session_id" validate:"required"`
	TransactionID     *primitive.ObjectID `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	RiderResponse     SessionResponse     `json:"rider_response" bson:"rider_response"`
	DriverResponse    SessionResponse     `json:"driver_response" bson:"driver_response"`
	RiderAmountMinor  *int64              `json:"rider_amount_minor,omitempty" bson:"rider_amount_minor,omitempty"`
	DriverAmountMinor *int64              `json:"driver_amount_minor,omitempty" bson:"driver_amount_minor,omitempty"`
	AgreedAmountMinor *int64              `json:"agreed_amount_minor,omitempty" bson:"agreed_amount_minor,omitempty"`
	AuthRef           string              `json:"auth_ref,omitempty" bson:"auth_ref,omitempty"`
	Status            SessionStatus       `json:"status" bson:"status" default:"pending"`
	StartedAt         *time.Time          `json:"started_at,omitempty" bson:"started_at,omitempty"`
	DecidedAt         *time.Time          `json:"decided_at,omitempty" bson:"decided_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

// BothResponded reports whether each party has submitted a definite answer.
func (s *CarpoolSession) BothResponded() bool {
	return s.RiderResponse != SessionResponseUnset && s.DriverResponse != SessionResponseUnset
}

// AmountsAgree reports whether both proposed amounts are present and equal.
func (s *CarpoolSession) AmountsAgree() bool {
	return s.RiderAmountMinor != nil && s.DriverAmountMinor != nil &&
		*s.RiderAmountMinor == *s.DriverAmountMinor
}
