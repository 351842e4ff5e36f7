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

type sessionRepository struct {
	collection    *mongo.Collection
	cancellations *mongo.Collection
	cache         cache.Cache
}

func NewSessionRepository(db *mongo.Database, cache cache.Cache) interfaces.SessionRepository {
	return &sessionRepository{
		collection:    db.Collection("carpool_sessions"),
		cancellations: db.Collection("canceled_transactions"),
		cache:         cache,
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.CarpoolSession) error {
	session.ID = primitive.NewObjectID()
	session.Status = models.SessionStatusPending
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt

	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to create carpool session: %w", err)
	}

	return nil
}

func (r *sessionRepository) GetByKey(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error) {
	// Decided sessions are immutable, so the cache can serve them.
	if session := r.getFromCache(ctx, matchID, sessionID); session != nil {
		return session, nil
	}

	var session models.CarpoolSession
	err := r.collection.FindOne(ctx, bson.M{"match_id": matchID, "session_id": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("session %s/%s: %w", matchID, sessionID, utils.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to get carpool session: %w", err)
	}

	if session.Status.IsTerminal() {
		r.cacheSession(ctx, &session)
	}

	return &session, nil
}

func (r *sessionRepository) RecordResponse(ctx context.Context, matchID, sessionID string, party models.SessionParty, response models.SessionResponse, proposedAmountMinor int64, now time.Time) (*models.CarpoolSession, error) {
	responseField := "rider_response"
	amountField := "rider_amount_minor"
	if party == models.SessionPartyDriver {
		responseField = "driver_response"
		amountField = "driver_amount_minor"
	}

	var session models.CarpoolSession
	err := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"match_id": matchID, "session_id": sessionID, "status": models.SessionStatusPending},
		bson.M{
			"$set": bson.M{
				responseField: response,
				amountField:   proposedAmountMinor,
				"updated_at":  now,
			},
			// $min stamps started_at on the first response and keeps the
			// earliest value on every later one.
			"$min": bson.M{"started_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err == nil {
		return &session, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to record session response: %w", err)
	}

	// The session is absent or already decided; hand back the current state
	// so the caller can tell the two apart.
	return r.GetByKey(ctx, matchID, sessionID)
}

func (r *sessionRepository) SetAgreedAmount(ctx context.Context, matchID, sessionID string, amountMinor int64) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"match_id":            matchID,
			"session_id":          sessionID,
			"agreed_amount_minor": nil,
		},
		bson.M{"$set": bson.M{"agreed_amount_minor": amountMinor, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to set agreed amount: %w", err)
	}

	return nil
}

func (r *sessionRepository) ClaimDecision(ctx context.Context, matchID, sessionID string, to models.SessionStatus, now time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"match_id": matchID, "session_id": sessionID, "status": models.SessionStatusPending},
		bson.M{"$set": bson.M{"status": to, "decided_at": now, "updated_at": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim session decision: %w", err)
	}

	if result.ModifiedCount > 0 {
		r.invalidateCache(ctx, matchID, sessionID)
	}
	return result.ModifiedCount > 0, nil
}

func (r *sessionRepository) ClaimResolution(ctx context.Context, matchID, sessionID string, from []models.SessionStatus, to models.SessionStatus, now time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"match_id": matchID, "session_id": sessionID, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "decided_at": now, "updated_at": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim session resolution: %w", err)
	}

	if result.ModifiedCount > 0 {
		r.invalidateCache(ctx, matchID, sessionID)
	}
	return result.ModifiedCount > 0, nil
}

func (r *sessionRepository) ListByStatus(ctx context.Context, statuses []models.SessionStatus, params *utils.PaginationParams) ([]*models.CarpoolSession, int64, error) {
	filter := bson.M{"status": bson.M{"$in": statuses}}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.CarpoolSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, 0, fmt.Errorf("failed to decode sessions: %w", err)
	}

	return sessions, total, nil
}

func (r *sessionRepository) ListPendingStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.CarpoolSession, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"status":     models.SessionStatusPending,
		"started_at": bson.M{"$ne": nil, "$lte": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.CarpoolSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode stale sessions: %w", err)
	}

	return sessions, nil
}

func (r *sessionRepository) cacheSession(ctx context.Context, session *models.CarpoolSession) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, sessionCacheKey(session.MatchID, session.SessionID), session, 30*time.Minute)
}

func (r *sessionRepository) getFromCache(ctx context.Context, matchID, sessionID string) *models.CarpoolSession {
	if r.cache == nil {
		return nil
	}
	var session models.CarpoolSession
	if err := r.cache.Get(ctx, sessionCacheKey(matchID, sessionID), &session); err != nil {
		return nil
	}
	return &session
}

func (r *sessionRepository) invalidateCache(ctx context.Context, matchID, sessionID string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, sessionCacheKey(matchID, sessionID))
}

func sessionCacheKey(matchID, sessionID string) string {
	return utils.CacheSessionPrefix + matchID + ":" + sessionID
}

func (r *sessionRepository) RecordCancellation(ctx context.Context, entry *models.CancelledAuthorization) error {
	entry.ID = primitive.NewObjectID()
	if entry.CancelledAt.IsZero() {
		entry.CancelledAt = time.Now()
	}

	_, err := r.cancellations.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to record cancellation: %w", err)
	}

	return nil
}
