package interfaces

import (
	"context"

	"carpool-pay/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WalletRepository owns balance storage. Credit and Debit are single atomic
// read-modify-write operations keyed by user id; callers never read a
// balance and write it back. Debit fails with utils.ErrInsufficientFunds
// without touching the balance when funds are short.
type WalletRepository interface {
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Wallet, error)

	// GetBalance returns 0 for an account that does not exist yet.
	GetBalance(ctx context.Context, userID primitive.ObjectID) (int64, error)

	// Credit adds amountMinor (> 0), creating the wallet if absent.
	Credit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error

	// Debit subtracts amountMinor (> 0) only if the balance covers it.
	Debit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error

	// ForceDebit subtracts amountMinor without a balance guard and may
	// leave the balance negative. Reserved for clawbacks.
	ForceDebit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error

	SetPayoutAccount(ctx context.Context, userID primitive.ObjectID, payoutAccountID string) error
}

type WalletTransactionRepository interface {
	Create(ctx context.Context, txn *models.WalletTransaction) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.WalletTransaction, error)

	// SetAuthRef stores the gateway authorization on a still-pending record.
	SetAuthRef(ctx context.Context, id primitive.ObjectID, authRef string) error

	// ClaimPending flips a pending record to the given status, storing the
	// gateway reference. It fails with utils.ErrAlreadyProcessed when the
	// record is no longer pending.
	ClaimPending(ctx context.Context, id primitive.ObjectID, status models.WalletTransactionStatus, authRef string) error
}

type WithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Withdrawal, error)
	ClaimPending(ctx context.Context, id primitive.ObjectID, status models.WithdrawalStatus, payoutRef, failReason string) error
}
