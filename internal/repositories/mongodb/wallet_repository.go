package mongodb

import (
	"context"
	"fmt"
	"time"

	"carpool-pay/internal/models"
	"carpool-pay/internal/repositories/interfaces"
	"carpool-pay/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type walletRepository struct {
	collection *mongo.Collection
}

func NewWalletRepository(db *mongo.Database) interfaces.WalletRepository {
	return &walletRepository{
		collection: db.Collection("wallets"),
	}
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&wallet)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("wallet for user %s: %w", userID.Hex(), utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &wallet, nil
}

func (r *walletRepository) GetBalance(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var wallet models.Wallet
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&wallet)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			// An account that has never been credited holds zero.
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return wallet.BalanceMinor, nil
}

func (r *walletRepository) Credit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("credit amount must be positive: %w", utils.ErrInvalidRequest)
	}

	now := time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{"balance_minor": amountMinor},
			"$set": bson.M{"updated_at": now},
			"$setOnInsert": bson.M{
				"currency":   utils.DefaultCurrency,
				"is_active":  true,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	return nil
}

func (r *walletRepository) Debit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("debit amount must be positive: %w", utils.ErrInvalidRequest)
	}

	// The balance check and the subtraction are one conditional update, so
	// concurrent debits against the same wallet serialize on the document.
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"user_id":       userID,
			"balance_minor": bson.M{"$gte": amountMinor},
		},
		bson.M{
			"$inc": bson.M{"balance_minor": -amountMinor},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("debit of %d from user %s: %w", amountMinor, userID.Hex(), utils.ErrInsufficientFunds)
	}

	return nil
}

func (r *walletRepository) ForceDebit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("debit amount must be positive: %w", utils.ErrInvalidRequest)
	}

	now := time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{"balance_minor": -amountMinor},
			"$set": bson.M{"updated_at": now},
			"$setOnInsert": bson.M{
				"currency":   utils.DefaultCurrency,
				"is_active":  true,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to force debit wallet: %w", err)
	}

	return nil
}

func (r *walletRepository) SetPayoutAccount(ctx context.Context, userID primitive.ObjectID, payoutAccountID string) error {
	now := time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{"payout_account_id": payoutAccountID, "updated_at": now},
			"$setOnInsert": bson.M{
				"balance_minor": int64(0),
				"currency":      utils.DefaultCurrency,
				"is_active":     true,
				"created_at":    now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set payout account: %w", err)
	}

	return nil
}
