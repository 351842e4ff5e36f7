package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EscrowStatus string

const (
	EscrowStatusPending   EscrowStatus = "pending"
	EscrowStatusCompleted EscrowStatus = "completed"
	EscrowStatusRefunded  EscrowStatus = "refunded"
	EscrowStatusCancelled EscrowStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusCompleted || s == EscrowStatusRefunded || s == EscrowStatusCancelled
}

// EscrowTransaction is a provisional hold of rider funds pending mutual trip
// confirmation. Legal transitions: pending -> completed (settle),
// pending -> refunded (reverse before payout), completed -> refunded
// (reverse with driver clawback), pending -> cancelled (admin). A terminal
// status is never re-entered.
type EscrowTransaction struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MatchID      string             `json:"match_id" bson:"match_id" validate:"required"`
	RiderID      primitive.ObjectID `json:"rider_id" bson:"rider_id" validate:"required"`
	DriverID     primitive.ObjectID `json:"driver_id" bson:"driver_id" validate:"required"`
	AmountMinor  int64              `json:"amount_minor" bson:"amount_minor" validate:"required"`
	Currency     string             `json:"currency" bson:"currency" default:"USD"`
	Status       EscrowStatus       `json:"status" bson:"status" default:"pending"`
	AuthRef      string             `json:"auth_ref,omitempty" bson:"auth_ref,omitempty"`
	RefundRef    string             `json:"refund_ref,omitempty" bson:"refund_ref,omitempty"`
	CancelReason string             `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
	SettledAt    *time.Time         `json:"settled_at,omitempty" bson:"settled_at,omitempty"`
	RefundedAt   *time.Time         `json:"refunded_at,omitempty" bson:"refunded_at,omitempty"`
}

// CancelledAuthorization is the audit entry written when both parties refuse
// a session and the upstream payment authorization is released.
type CancelledAuthorization struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MatchID     string             `json:"match_id" bson:"match_id"`
	SessionID   string             `json:"session_id" bson:"session_id"`
	AuthRef     string             `json:"auth_ref,omitempty" bson:"auth_ref,omitempty"`
	CancelledAt time.Time          `json:"cancelled_at" bson:"cancelled_at"`
}
