package services

import (
	"context"
	"fmt"
	"time"

	"carpool-pay/internal/config"
	"carpool-pay/internal/models"
	"carpool-pay/pkg/logger"
	"carpool-pay/pkg/mailer"
)

// NotifierService escalates cases that need a human decision. Every method
// is best-effort: a failed send is logged and never propagated, because the
// state transition that triggered it has already been recorded.
type NotifierService interface {
	NotifyStaleSession(ctx context.Context, session *models.CarpoolSession)
	NotifyDisputedSession(ctx context.Context, session *models.CarpoolSession)
	NotifyClawbackShortfall(ctx context.Context, txn *models.EscrowTransaction)
}

type notifierService struct {
	mailer mailer.Sender
	config *config.EscrowConfig
	logger *logger.Logger
}

func NewNotifierService(mailer mailer.Sender, config *config.EscrowConfig, logger *logger.Logger) NotifierService {
	return &notifierService{
		mailer: mailer,
		config: config,
		logger: logger,
	}
}

func (s *notifierService) NotifyStaleSession(ctx context.Context, session *models.CarpoolSession) {
	subject := fmt.Sprintf("[CarpoolPay] Session %s/%s needs review", session.MatchID, session.SessionID)
	body := fmt.Sprintf(
		"Carpool session %s (match %s) has been waiting for a response since %s.\n\n"+
			"Rider response: %s\nDriver response: %s\n\n"+
			"The session was moved to the review queue after exceeding the %s response window.\n",
		session.SessionID, session.MatchID, session.StartedAt.Format(time.RFC3339),
		responseOrNone(session.RiderResponse), responseOrNone(session.DriverResponse),
		s.config.EscalationWindow,
	)

	s.send(session.MatchID, session.SessionID, "stale_session", subject, body)
}

func (s *notifierService) NotifyDisputedSession(ctx context.Context, session *models.CarpoolSession) {
	subject := fmt.Sprintf("[CarpoolPay] Session %s/%s disputed", session.MatchID, session.SessionID)
	body := fmt.Sprintf(
		"Carpool session %s (match %s) entered dispute.\n\n"+
			"Rider response: %s\nDriver response: %s\n",
		session.SessionID, session.MatchID,
		responseOrNone(session.RiderResponse), responseOrNone(session.DriverResponse),
	)
	if session.RiderAmountMinor != nil && session.DriverAmountMinor != nil &&
		*session.RiderAmountMinor != *session.DriverAmountMinor {
		body += fmt.Sprintf(
			"\nReported amounts disagree: rider %d, driver %d (minor units).\n",
			*session.RiderAmountMinor, *session.DriverAmountMinor,
		)
	}

	s.send(session.MatchID, session.SessionID, "disputed_session", subject, body)
}

func (s *notifierService) NotifyClawbackShortfall(ctx context.Context, txn *models.EscrowTransaction) {
	subject := fmt.Sprintf("[CarpoolPay] Clawback rejected for transaction %s", txn.ID.Hex())
	body := fmt.Sprintf(
		"Reversal of settled transaction %s was rejected: debiting %d %s from driver %s "+
			"would overdraw the wallet and negative clawbacks are disabled.\n\n"+
			"Match: %s\nRider: %s\n\nResolve manually and retry the reversal.\n",
		txn.ID.Hex(), txn.AmountMinor, txn.Currency, txn.DriverID.Hex(),
		txn.MatchID, txn.RiderID.Hex(),
	)

	if err := s.mailer.Send(s.config.ReviewRecipients, subject, body); err != nil {
		s.logger.WithError(err).WithTransactionID(txn.ID).Error("Failed to send clawback escalation")
		return
	}
	s.logger.LogPaymentEvent(txn.ID, "clawback_escalated", txn.AmountMinor, txn.Currency)
}

func (s *notifierService) send(matchID, sessionID, event, subject, body string) {
	if err := s.mailer.Send(s.config.ReviewRecipients, subject, body); err != nil {
		s.logger.WithError(err).WithSession(matchID, sessionID).Error("Failed to send escalation mail")
		return
	}
	s.logger.LogSessionEvent(matchID, sessionID, event, map[string]interface{}{
		"recipients": s.config.ReviewRecipients,
	})
}

func responseOrNone(r models.SessionResponse) string {
	if r == "" {
		return "no_response"
	}
	return string(r)
}
