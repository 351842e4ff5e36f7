package interfaces

import (
	"context"
	"time"

	"carpool-pay/internal/models"
	"carpool-pay/internal/utils"
)

// SessionRepository stores carpool confirmation sessions, keyed by
// (match id, session id). Response recording and the decision claim are
// conditional updates guarded on status "pending" so two concurrent
// evaluations cannot both decide the same session.
type SessionRepository interface {
	Create(ctx context.Context, session *models.CarpoolSession) error

	// GetByKey fails with utils.ErrSessionNotFound when absent.
	GetByKey(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error)

	// RecordResponse writes one party's response and proposed amount,
	// stamping the start time if this is the first response. It only
	// applies while the session is pending and returns the updated
	// document.
	RecordResponse(ctx context.Context, matchID, sessionID string, party models.SessionParty, response models.SessionResponse, proposedAmountMinor int64, now time.Time) (*models.CarpoolSession, error)

	// SetAgreedAmount stores the agreed amount once; later calls with a
	// different value do not overwrite it.
	SetAgreedAmount(ctx context.Context, matchID, sessionID string, amountMinor int64) error

	// ClaimDecision moves the session from pending to the given status.
	// The return value reports whether this caller won the claim.
	ClaimDecision(ctx context.Context, matchID, sessionID string, to models.SessionStatus, now time.Time) (bool, error)

	// ClaimResolution moves an escalated session (disputed or review) to an
	// operator-chosen outcome, same winner semantics as ClaimDecision.
	ClaimResolution(ctx context.Context, matchID, sessionID string, from []models.SessionStatus, to models.SessionStatus, now time.Time) (bool, error)

	ListByStatus(ctx context.Context, statuses []models.SessionStatus, params *utils.PaginationParams) ([]*models.CarpoolSession, int64, error)

	// ListPendingStartedBefore feeds the timeout sweep.
	ListPendingStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.CarpoolSession, error)

	RecordCancellation(ctx context.Context, entry *models.CancelledAuthorization) error
}
