package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carpool-pay/internal/config"
	"carpool-pay/internal/models"
	"carpool-pay/internal/repositories/interfaces"
	"carpool-pay/internal/utils"
	"carpool-pay/pkg/logger"
	"carpool-pay/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CarpoolService runs the dual confirmation state machine. A session opens
// when a match is accepted, collects one response per party, and is decided
// exactly once: both accept with matching amounts settles the linked escrow,
// both refuse releases it, anything else escalates to a human.
type CarpoolService interface {
	CreateSession(ctx context.Context, matchID, sessionID string, transactionID *primitive.ObjectID, authRef string) (*models.CarpoolSession, error)
	GetSession(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error)
	SubmitResponse(ctx context.Context, matchID, sessionID string, party models.SessionParty, response models.SessionResponse, proposedAmountMinor int64) (*models.CarpoolSession, error)
	Evaluate(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error)
	Resolve(ctx context.Context, matchID, sessionID string, approve bool, reason string) (*models.CarpoolSession, error)
	ListEscalated(ctx context.Context, params *utils.PaginationParams) ([]*models.CarpoolSession, int64, error)
	SweepStale(ctx context.Context) (int, error)
}

type carpoolService struct {
	sessionRepo interfaces.SessionRepository
	escrow      EscrowService
	gateway     payment.Gateway
	notifier    NotifierService
	config      *config.EscrowConfig
	logger      *logger.Logger
}

func NewCarpoolService(
	sessionRepo interfaces.SessionRepository,
	escrow EscrowService,
	gateway payment.Gateway,
	notifier NotifierService,
	config *config.EscrowConfig,
	logger *logger.Logger,
) CarpoolService {
	return &carpoolService{
		sessionRepo: sessionRepo,
		escrow:      escrow,
		gateway:     gateway,
		notifier:    notifier,
		config:      config,
		logger:      logger,
	}
}

func (s *carpoolService) CreateSession(ctx context.Context, matchID, sessionID string, transactionID *primitive.ObjectID, authRef string) (*models.CarpoolSession, error) {
	if matchID == "" || sessionID == "" {
		return nil, fmt.Errorf("match id and session id are required: %w", utils.ErrInvalidRequest)
	}

	session := &models.CarpoolSession{
		MatchID:       matchID,
		SessionID:     sessionID,
		TransactionID: transactionID,
		AuthRef:       authRef,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.LogSessionEvent(matchID, sessionID, "session_created", nil)
	return session, nil
}

func (s *carpoolService) GetSession(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error) {
	return s.sessionRepo.GetByKey(ctx, matchID, sessionID)
}

func (s *carpoolService) SubmitResponse(ctx context.Context, matchID, sessionID string, party models.SessionParty, response models.SessionResponse, proposedAmountMinor int64) (*models.CarpoolSession, error) {
	if response != models.SessionResponseAccepted && response != models.SessionResponseRefused {
		return nil, fmt.Errorf("response must be accepted or refused: %w", utils.ErrInvalidRequest)
	}
	if proposedAmountMinor <= 0 {
		return nil, fmt.Errorf("proposed amount must be positive: %w", utils.ErrInvalidRequest)
	}

	session, err := s.sessionRepo.RecordResponse(ctx, matchID, sessionID, party, response, proposedAmountMinor, time.Now())
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusPending {
		// Decided while this response was in flight; late answers are
		// acknowledged but change nothing.
		return session, nil
	}

	s.logger.LogSessionEvent(matchID, sessionID, "response_recorded", map[string]interface{}{
		"party":    string(party),
		"response": string(response),
	})

	if !session.BothResponded() {
		return session, nil
	}
	return s.Evaluate(ctx, matchID, sessionID)
}

// Evaluate decides a session whose inputs are complete, or escalates one
// that timed out. It is idempotent: re-running it against a decided session
// is a no-op, and the pending-guarded claim means two concurrent evaluations
// act at most once.
func (s *carpoolService) Evaluate(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error) {
	session, err := s.sessionRepo.GetByKey(ctx, matchID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusPending {
		return session, nil
	}

	if !session.BothResponded() {
		if s.isStale(session) {
			return s.escalate(ctx, session)
		}
		return session, nil
	}

	riderAccepted := session.RiderResponse == models.SessionResponseAccepted
	driverAccepted := session.DriverResponse == models.SessionResponseAccepted

	switch {
	case riderAccepted && driverAccepted:
		return s.approve(ctx, session)
	case !riderAccepted && !driverAccepted:
		return s.cancel(ctx, session)
	default:
		return s.dispute(ctx, session, "responses disagree")
	}
}

func (s *carpoolService) approve(ctx context.Context, session *models.CarpoolSession) (*models.CarpoolSession, error) {
	// Both accepted, but settlement needs an agreed amount. Divergent
	// reports mean at least one party is wrong about what the trip cost.
	if !session.AmountsAgree() {
		return s.dispute(ctx, session, "reported amounts disagree")
	}
	if err := s.sessionRepo.SetAgreedAmount(ctx, session.MatchID, session.SessionID, *session.RiderAmountMinor); err != nil {
		return nil, err
	}

	won, err := s.sessionRepo.ClaimDecision(ctx, session.MatchID, session.SessionID, models.SessionStatusApproved, time.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		return s.sessionRepo.GetByKey(ctx, session.MatchID, session.SessionID)
	}

	if session.TransactionID != nil {
		if err := s.escrow.Settle(ctx, *session.TransactionID); err != nil && !errors.Is(err, utils.ErrAlreadyProcessed) {
			return nil, err
		}
	}

	s.logger.LogSessionEvent(session.MatchID, session.SessionID, "session_approved", map[string]interface{}{
		"agreed_amount_minor": *session.RiderAmountMinor,
	})
	return s.sessionRepo.GetByKey(ctx, session.MatchID, session.SessionID)
}

func (s *carpoolService) cancel(ctx context.Context, session *models.CarpoolSession) (*models.CarpoolSession, error) {
	// Claim the decision before touching the provider so that concurrent
	// evaluations release the upstream hold at most once.
	won, err := s.sessionRepo.ClaimDecision(ctx, session.MatchID, session.SessionID, models.SessionStatusCanceled, time.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		return s.sessionRepo.GetByKey(ctx, session.MatchID, session.SessionID)
	}

	// With no auth ref there is nothing to cancel upstream. If the provider
	// call fails the escrow stays pending and the hold is returned through
	// the operator cancel path; the authorization expires on its own.
	if session.AuthRef != "" {
		if err := s.gateway.CancelAuthorization(ctx, session.AuthRef); err != nil {
			s.logger.WithError(err).WithSession(session.MatchID, session.SessionID).Error("Failed to cancel authorization")
			return nil, fmt.Errorf("cancel authorization: %w", utils.ErrGatewayFailure)
		}
	}

	if err := s.sessionRepo.RecordCancellation(ctx, &models.CancelledAuthorization{
		MatchID:     session.MatchID,
		SessionID:   session.SessionID,
		AuthRef:     session.AuthRef,
		CancelledAt: time.Now(),
	}); err != nil {
		s.logger.WithError(err).WithSession(session.MatchID, session.SessionID).Error("Failed to record cancellation audit entry")
	}

	// The authorization is already released, so the held funds come back
	// without a second provider call: a cancelled, never captured hold
	// cannot be refunded again.
	if session.TransactionID != nil {
		if err := s.escrow.Cancel(ctx, *session.TransactionID, "both parties refused"); err != nil && !errors.Is(err, utils.ErrAlreadyProcessed) {
			return nil, err
		}
	}

	s.logger.LogSessionEvent(session.MatchID, session.SessionID, "session_canceled", nil)
	return s.sessionRepo.GetByKey(ctx, session.MatchID, session.SessionID)
}

func (s *carpoolService) dispute(ctx context.Context, session *models.CarpoolSession, reason string) (*models.CarpoolSession, error) {
	won, err := s.sessionRepo.ClaimDecision(ctx, session.MatchID, session.SessionID, models.SessionStatusDisputed, time.Now())
	if err != nil {
		return nil, err
	}

	updated, err := s.sessionRepo.GetByKey(ctx, session.MatchID, session.SessionID)
	if err != nil {
		return nil, err
	}
	if won {
		// Escrowed funds stay held until an operator resolves the dispute.
		s.notifier.NotifyDisputedSession(ctx, updated)
		s.logger.LogSessionEvent(session.MatchID, session.SessionID, "session_disputed", map[string]interface{}{
			"reason": reason,
		})
	}
	return updated, nil
}

// Resolve is the operator path out of a disputed or review session: approve
// settles the linked escrow to the driver, reject reverses it to the rider.
func (s *carpoolService) Resolve(ctx context.Context, matchID, sessionID string, approve bool, reason string) (*models.CarpoolSession, error) {
	session, err := s.sessionRepo.GetByKey(ctx, matchID, sessionID)
	if err != nil {
		return nil, err
	}

	from := []models.SessionStatus{models.SessionStatusDisputed, models.SessionStatusReview}
	to := models.SessionStatusCanceled
	if approve {
		to = models.SessionStatusApproved
	}

	won, err := s.sessionRepo.ClaimResolution(ctx, matchID, sessionID, from, to, time.Now())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("session %s/%s is not awaiting resolution: %w", matchID, sessionID, utils.ErrAlreadyProcessed)
	}

	if session.TransactionID != nil {
		if approve {
			err = s.escrow.Settle(ctx, *session.TransactionID)
		} else {
			_, err = s.escrow.Reverse(ctx, *session.TransactionID, reason)
		}
		if err != nil && !errors.Is(err, utils.ErrAlreadyProcessed) {
			return nil, err
		}
	}

	s.logger.LogSessionEvent(matchID, sessionID, "session_resolved", map[string]interface{}{
		"outcome": string(to),
		"reason":  reason,
	})
	return s.sessionRepo.GetByKey(ctx, matchID, sessionID)
}

func (s *carpoolService) ListEscalated(ctx context.Context, params *utils.PaginationParams) ([]*models.CarpoolSession, int64, error) {
	statuses := []models.SessionStatus{models.SessionStatusDisputed, models.SessionStatusReview}
	return s.sessionRepo.ListByStatus(ctx, statuses, params)
}

// SweepStale escalates every pending session whose first response is older
// than the escalation window. Failures on one session do not stop the sweep.
func (s *carpoolService) SweepStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.EscalationWindow)
	sessions, err := s.sessionRepo.ListPendingStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, session := range sessions {
		if _, err := s.escalate(ctx, session); err != nil {
			s.logger.WithError(err).WithSession(session.MatchID, session.SessionID).Error("Failed to escalate stale session")
			continue
		}
		escalated++
	}

	return escalated, nil
}

func (s *carpoolService) isStale(session *models.CarpoolSession) bool {
	return session.StartedAt != nil && time.Since(*session.StartedAt) >= s.config.EscalationWindow
}

func (s *carpoolService) escalate(ctx context.Context, session *models.CarpoolSession) (*models.CarpoolSession, error) {
	won, err := s.sessionRepo.ClaimDecision(ctx, session.MatchID, session.SessionID, models.SessionStatusReview, time.Now())
	if err != nil {
		return nil, err
	}

	updated, err := s.sessionRepo.GetByKey(ctx, session.MatchID, session.SessionID)
	if err != nil {
		return nil, err
	}
	if won {
		s.notifier.NotifyStaleSession(ctx, updated)
		s.logger.LogSessionEvent(session.MatchID, session.SessionID, "session_escalated", nil)
	}
	return updated, nil
}
