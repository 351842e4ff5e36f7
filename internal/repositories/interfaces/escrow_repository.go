package interfaces

import (
	"context"

	"carpool-pay/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EscrowRepository stores escrow transactions. Status changes go through
// ClaimStatus, a conditional update that admits exactly one winner under
// concurrent terminal calls.
type EscrowRepository interface {
	Create(ctx context.Context, txn *models.EscrowTransaction) error

	// GetByID fails with utils.ErrNotFound when the transaction is absent.
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.EscrowTransaction, error)

	// ClaimStatus atomically moves the transaction from one of the given
	// statuses to the target status, applying extra field updates, and
	// returns the document as it was before the claim. It fails with
	// utils.ErrNotFound if the id is unknown and utils.ErrAlreadyProcessed
	// if the current status is not in from.
	ClaimStatus(ctx context.Context, id primitive.ObjectID, from []models.EscrowStatus, to models.EscrowStatus, set map[string]interface{}) (*models.EscrowTransaction, error)

	GetByMatchID(ctx context.Context, matchID string) ([]*models.EscrowTransaction, error)
}
