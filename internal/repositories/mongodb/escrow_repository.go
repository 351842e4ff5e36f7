package mongodb

import (
	"context"
	"fmt"
	"time"

	"carpool-pay/internal/models"
	"carpool-pay/internal/repositories/interfaces"
	"carpool-pay/internal/utils"

	"carpool-pay/pkg/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type escrowRepository struct {
	collection *mongo.Collection
	cache      cache.Cache
}

func NewEscrowRepository(db *mongo.Database, cache cache.Cache) interfaces.EscrowRepository {
	return &escrowRepository{
		collection: db.Collection("escrow_transactions"),
		cache:      cache,
	}
}

func (r *escrowRepository) Create(ctx context.Context, txn *models.EscrowTransaction) error {
	txn.ID = primitive.NewObjectID()
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt

	_, err := r.collection.InsertOne(ctx, txn)
	if err != nil {
		return fmt.Errorf("failed to create escrow transaction: %w", err)
	}

	return nil
}

func (r *escrowRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.EscrowTransaction, error) {
	// Terminal transactions are immutable, so the cache can serve them.
	if txn := r.getFromCache(ctx, id.Hex()); txn != nil {
		return txn, nil
	}

	var txn models.EscrowTransaction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&txn)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("escrow transaction %s: %w", id.Hex(), utils.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get escrow transaction: %w", err)
	}

	if txn.Status.IsTerminal() {
		r.cacheTransaction(ctx, &txn)
	}

	return &txn, nil
}

func (r *escrowRepository) ClaimStatus(ctx context.Context, id primitive.ObjectID, from []models.EscrowStatus, to models.EscrowStatus, set map[string]interface{}) (*models.EscrowTransaction, error) {
	updates := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range set {
		updates[k] = v
	}

	var before models.EscrowTransaction
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": updates},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == nil {
		r.invalidateCache(ctx, id.Hex())
		return &before, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to transition escrow transaction: %w", err)
	}

	// Nothing matched: either the id is unknown or the transaction has
	// already reached a status outside from.
	exists, lookupErr := r.exists(ctx, id)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if !exists {
		return nil, fmt.Errorf("escrow transaction %s: %w", id.Hex(), utils.ErrNotFound)
	}
	return nil, fmt.Errorf("escrow transaction %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
}

func (r *escrowRepository) GetByMatchID(ctx context.Context, matchID string) ([]*models.EscrowTransaction, error) {
	cursor, err := r.collection.Find(
		ctx,
		bson.M{"match_id": matchID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrow transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var txns []*models.EscrowTransaction
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode escrow transactions: %w", err)
	}

	return txns, nil
}

func (r *escrowRepository) exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to look up escrow transaction: %w", err)
	}
	return count > 0, nil
}

func (r *escrowRepository) cacheTransaction(ctx context.Context, txn *models.EscrowTransaction) {
	if r.cache == nil {
		return
	}
	key := utils.CacheEscrowPrefix + txn.ID.Hex()
	r.cache.Set(ctx, key, txn, 30*time.Minute)
}

func (r *escrowRepository) getFromCache(ctx context.Context, id string) *models.EscrowTransaction {
	if r.cache == nil {
		return nil
	}
	var txn models.EscrowTransaction
	if err := r.cache.Get(ctx, utils.CacheEscrowPrefix+id, &txn); err != nil {
		return nil
	}
	return &txn
}

func (r *escrowRepository) invalidateCache(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, utils.CacheEscrowPrefix+id)
}
