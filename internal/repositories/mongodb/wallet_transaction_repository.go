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
)

type walletTransactionRepository struct {
	collection *mongo.Collection
}

func NewWalletTransactionRepository(db *mongo.Database) interfaces.WalletTransactionRepository {
	return &walletTransactionRepository{
		collection: db.Collection("wallet_transactions"),
	}
}

func (r *walletTransactionRepository) Create(ctx context.Context, txn *models.WalletTransaction) error {
	txn.ID = primitive.NewObjectID()
	txn.Status = models.WalletTransactionStatusPending
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt

	_, err := r.collection.InsertOne(ctx, txn)
	if err != nil {
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}

	return nil
}

func (r *walletTransactionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&txn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet transaction: %w", err)
	}

	return &txn, nil
}

func (r *walletTransactionRepository) SetAuthRef(ctx context.Context, id primitive.ObjectID, authRef string) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.WalletTransactionStatusPending},
		bson.M{"$set": bson.M{"auth_ref": authRef, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to set auth ref: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}

	return nil
}

func (r *walletTransactionRepository) ClaimPending(ctx context.Context, id primitive.ObjectID, status models.WalletTransactionStatus, authRef string) error {
	updates := bson.M{"status": status, "updated_at": time.Now()}
	if authRef != "" {
		updates["auth_ref"] = authRef
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.WalletTransactionStatusPending},
		bson.M{"$set": updates},
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet transaction: %w", err)
	}
	if result.MatchedCount == 0 {
		exists, lookupErr := r.existsByID(ctx, id)
		if lookupErr != nil {
			return lookupErr
		}
		if !exists {
			return fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrNotFound)
		}
		return fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}

	return nil
}

func (r *walletTransactionRepository) existsByID(ctx context.Context, id primitive.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to look up wallet transaction: %w", err)
	}
	return count > 0, nil
}

type withdrawalRepository struct {
	collection *mongo.Collection
}

func NewWithdrawalRepository(db *mongo.Database) interfaces.WithdrawalRepository {
	return &withdrawalRepository{
		collection: db.Collection("withdrawals"),
	}
}

func (r *withdrawalRepository) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	withdrawal.ID = primitive.NewObjectID()
	withdrawal.Status = models.WithdrawalStatusPending
	withdrawal.CreatedAt = time.Now()
	withdrawal.UpdatedAt = withdrawal.CreatedAt

	_, err := r.collection.InsertOne(ctx, withdrawal)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return nil
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&withdrawal)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("withdrawal %s: %w", id.Hex(), utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return &withdrawal, nil
}

func (r *withdrawalRepository) ClaimPending(ctx context.Context, id primitive.ObjectID, status models.WithdrawalStatus, payoutRef, failReason string) error {
	updates := bson.M{"status": status, "updated_at": time.Now()}
	if payoutRef != "" {
		updates["payout_ref"] = payoutRef
	}
	if failReason != "" {
		updates["fail_reason"] = failReason
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.WithdrawalStatusPending},
		bson.M{"$set": updates},
	)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if result.MatchedCount == 0 {
		count, lookupErr := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if lookupErr != nil {
			return fmt.Errorf("failed to look up withdrawal: %w", lookupErr)
		}
		if count == 0 {
			return fmt.Errorf("withdrawal %s: %w", id.Hex(), utils.ErrNotFound)
		}
		return fmt.Errorf("withdrawal %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}

	return nil
}
