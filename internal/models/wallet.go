package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Wallet holds the settled balance for one user. BalanceMinor is the
// authoritative amount in minor currency units (cents) and is only ever
// mutated through the wallet repository's atomic operations.
type Wallet struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID          primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	BalanceMinor    int64              `json:"balance_minor" bson:"balance_minor"`
	Currency        string             `json:"currency" bson:"currency" default:"USD"`
	PayoutAccountID string             `json:"payout_account_id,omitempty" bson:"payout_account_id,omitempty"`
	PaymentMethodID string             `json:"payment_method_id,omitempty" bson:"payment_method_id,omitempty"`
	IsActive        bool               `json:"is_active" bson:"is_active" default:"true"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

type WalletTransactionStatus string

const (
	WalletTransactionStatusPending WalletTransactionStatus = "pending"
	WalletTransactionStatusSuccess WalletTransactionStatus = "success"
	WalletTransactionStatusFailed  WalletTransactionStatus = "failed"
)

// WalletTransaction records a top-up in flight: created pending before the
// gateway authorization, flipped to success when the capture is confirmed
// and the wallet credited.
type WalletTransaction struct {
	ID          primitive.ObjectID      `json:"id" bson:"_id,omitempty"`
	UserID      primitive.ObjectID      `json:"user_id" bson:"user_id" validate:"required"`
	AmountMinor int64                   `json:"amount_minor" bson:"amount_minor" validate:"required"`
	Currency    string                  `json:"currency" bson:"currency" default:"USD"`
	Status      WalletTransactionStatus `json:"status" bson:"status" default:"pending"`
	AuthRef     string                  `json:"auth_ref,omitempty" bson:"auth_ref,omitempty"`
	CreatedAt   time.Time               `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at" bson:"updated_at"`
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusFailed    WithdrawalStatus = "failed"
)

// Withdrawal is a driver payout request. The amount is held (debited) before
// the gateway payout is attempted and released back on payout failure.
type Withdrawal struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID      primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	AmountMinor int64              `json:"amount_minor" bson:"amount_minor" validate:"required"`
	Currency    string             `json:"currency" bson:"currency" default:"USD"`
	Status      WithdrawalStatus   `json:"status" bson:"status" default:"pending"`
	PayoutRef   string             `json:"payout_ref,omitempty" bson:"payout_ref,omitempty"`
	FailReason  string             `json:"fail_reason,omitempty" bson:"fail_reason,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}
