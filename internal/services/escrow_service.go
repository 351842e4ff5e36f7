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
	"carpool-pay/pkg/database"
	"carpool-pay/pkg/logger"
	"carpool-pay/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EscrowService manages the lifecycle of a payment held in escrow between a
// rider and a driver. Every status transition is a guarded claim: under
// concurrent settle/reverse calls on one transaction exactly one caller
// wins and the rest observe utils.ErrAlreadyProcessed.
type EscrowService interface {
	OpenEscrow(ctx context.Context, riderID, driverID primitive.ObjectID, amountMinor int64, currency, matchID, authRef string) (*models.EscrowTransaction, error)
	Settle(ctx context.Context, transactionID primitive.ObjectID) error
	Reverse(ctx context.Context, transactionID primitive.ObjectID, reason string) (refundRef string, err error)
	Cancel(ctx context.Context, transactionID primitive.ObjectID, reason string) error
	Get(ctx context.Context, transactionID primitive.ObjectID) (*models.EscrowTransaction, error)
}

type escrowService struct {
	escrowRepo interfaces.EscrowRepository
	walletRepo interfaces.WalletRepository
	transactor database.Transactor
	gateway    payment.Gateway
	notifier   NotifierService
	config     *config.EscrowConfig
	logger     *logger.Logger
}

func NewEscrowService(
	escrowRepo interfaces.EscrowRepository,
	walletRepo interfaces.WalletRepository,
	transactor database.Transactor,
	gateway payment.Gateway,
	notifier NotifierService,
	config *config.EscrowConfig,
	logger *logger.Logger,
) EscrowService {
	return &escrowService{
		escrowRepo: escrowRepo,
		walletRepo: walletRepo,
		transactor: transactor,
		gateway:    gateway,
		notifier:   notifier,
		config:     config,
		logger:     logger,
	}
}

func (s *escrowService) OpenEscrow(ctx context.Context, riderID, driverID primitive.ObjectID, amountMinor int64, currency, matchID, authRef string) (*models.EscrowTransaction, error) {
	if amountMinor <= 0 {
		return nil, fmt.Errorf("escrow amount must be positive: %w", utils.ErrInvalidRequest)
	}
	if riderID.IsZero() || driverID.IsZero() || matchID == "" {
		return nil, fmt.Errorf("rider, driver and match are required: %w", utils.ErrInvalidRequest)
	}
	if riderID == driverID {
		return nil, fmt.Errorf("rider and driver must differ: %w", utils.ErrInvalidRequest)
	}
	if currency == "" {
		currency = utils.DefaultCurrency
	}

	txn := &models.EscrowTransaction{
		MatchID:     matchID,
		RiderID:     riderID,
		DriverID:    driverID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Status:      models.EscrowStatusPending,
		AuthRef:     authRef,
	}

	// The rider debit and the pending record are one atomic decision: a
	// failed debit leaves no record and a failed insert restores the funds.
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.walletRepo.Debit(ctx, riderID, amountMinor); err != nil {
			return err
		}
		return s.escrowRepo.Create(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogPaymentEvent(txn.ID, "escrow_opened", amountMinor, currency)
	return txn, nil
}

func (s *escrowService) Settle(ctx context.Context, transactionID primitive.ObjectID) error {
	var txn *models.EscrowTransaction

	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		now := time.Now()
		before, err := s.escrowRepo.ClaimStatus(ctx, transactionID,
			[]models.EscrowStatus{models.EscrowStatusPending},
			models.EscrowStatusCompleted,
			map[string]interface{}{"settled_at": now},
		)
		if err != nil {
			return err
		}
		txn = before

		// Credit inside the same transaction: if it cannot be recorded the
		// status claim rolls back with it.
		return s.walletRepo.Credit(ctx, before.DriverID, before.AmountMinor)
	})
	if err != nil {
		return err
	}

	s.logger.LogPaymentEvent(transactionID, "escrow_settled", txn.AmountMinor, txn.Currency)
	return nil
}

func (s *escrowService) Reverse(ctx context.Context, transactionID primitive.ObjectID, reason string) (string, error) {
	txn, err := s.escrowRepo.GetByID(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if txn.Status == models.EscrowStatusRefunded || txn.Status == models.EscrowStatusCancelled {
		return "", fmt.Errorf("escrow transaction %s: %w", transactionID.Hex(), utils.ErrAlreadyProcessed)
	}

	// Provider refund comes first. If it fails nothing internal has moved,
	// so there is no half-open state to repair; the call is idempotent on
	// the transaction id and safe to retry.
	refundRef := ""
	if txn.AuthRef != "" {
		refund, err := s.gateway.Refund(ctx, &payment.RefundRequest{
			AuthRef:        txn.AuthRef,
			AmountMinor:    txn.AmountMinor,
			Reason:         reason,
			IdempotencyKey: transactionID.Hex(),
		})
		if err != nil {
			s.logger.WithError(err).WithTransactionID(transactionID).Error("Provider refund failed")
			return "", fmt.Errorf("provider refund: %w", utils.ErrGatewayFailure)
		}
		refundRef = refund.RefundRef
	}

	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		now := time.Now()
		set := map[string]interface{}{
			"cancel_reason": reason,
			"refunded_at":   now,
		}
		if refundRef != "" {
			set["refund_ref"] = refundRef
		}

		before, err := s.escrowRepo.ClaimStatus(ctx, transactionID,
			[]models.EscrowStatus{models.EscrowStatusPending, models.EscrowStatusCompleted},
			models.EscrowStatusRefunded,
			set,
		)
		if err != nil {
			return err
		}

		// A completed transaction already paid the driver, so the reversal
		// claws that credit back before restoring the rider.
		if before.Status == models.EscrowStatusCompleted {
			if err := s.clawBack(ctx, before); err != nil {
				return err
			}
		}

		return s.walletRepo.Credit(ctx, before.RiderID, before.AmountMinor)
	})
	if err != nil {
		if errors.Is(err, utils.ErrInsufficientFunds) {
			// Policy rejected a negative driver balance; hand the case to a
			// human instead of guessing.
			s.notifier.NotifyClawbackShortfall(ctx, txn)
		}
		return "", err
	}

	s.logger.LogPaymentEvent(transactionID, "escrow_reversed", txn.AmountMinor, txn.Currency)
	return refundRef, nil
}

func (s *escrowService) clawBack(ctx context.Context, txn *models.EscrowTransaction) error {
	err := s.walletRepo.Debit(ctx, txn.DriverID, txn.AmountMinor)
	if err == nil {
		return nil
	}
	if !errors.Is(err, utils.ErrInsufficientFunds) || !s.config.AllowNegativeClawback {
		return err
	}

	// Explicitly configured to let clawbacks overdraw the driver.
	return s.walletRepo.ForceDebit(ctx, txn.DriverID, txn.AmountMinor)
}

func (s *escrowService) Cancel(ctx context.Context, transactionID primitive.ObjectID, reason string) error {
	var txn *models.EscrowTransaction

	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		before, err := s.escrowRepo.ClaimStatus(ctx, transactionID,
			[]models.EscrowStatus{models.EscrowStatusPending},
			models.EscrowStatusCancelled,
			map[string]interface{}{"cancel_reason": reason},
		)
		if err != nil {
			return err
		}
		txn = before

		// Cancellation of a pending hold returns the rider's funds.
		return s.walletRepo.Credit(ctx, before.RiderID, before.AmountMinor)
	})
	if err != nil {
		return err
	}

	s.logger.LogPaymentEvent(transactionID, "escrow_cancelled", txn.AmountMinor, txn.Currency)
	return nil
}

func (s *escrowService) Get(ctx context.Context, transactionID primitive.ObjectID) (*models.EscrowTransaction, error) {
	return s.escrowRepo.GetByID(ctx, transactionID)
}
