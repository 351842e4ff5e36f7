package services

import (
	"context"
	"fmt"

	"carpool-pay/internal/models"
	"carpool-pay/internal/repositories/interfaces"
	"carpool-pay/internal/utils"
	"carpool-pay/pkg/database"
	"carpool-pay/pkg/logger"
	"carpool-pay/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WalletService interface {
	// Ledger primitives
	GetBalance(ctx context.Context, userID primitive.ObjectID) (int64, error)
	Credit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error
	Debit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error
	Transfer(ctx context.Context, fromUserID, toUserID primitive.ObjectID, amountMinor int64) error

	// Top-up via the payment gateway
	CreateTopUp(ctx context.Context, userID primitive.ObjectID, amountMinor int64, currency, paymentMethodID string) (*models.WalletTransaction, *payment.AuthorizeResponse, error)
	ConfirmTopUp(ctx context.Context, transactionID primitive.ObjectID) error

	// Driver payout
	Withdraw(ctx context.Context, userID primitive.ObjectID, amountMinor int64, currency, payoutAccountID string) (*models.Withdrawal, error)
}

type walletService struct {
	walletRepo     interfaces.WalletRepository
	topUpRepo      interfaces.WalletTransactionRepository
	withdrawalRepo interfaces.WithdrawalRepository
	transactor     database.Transactor
	gateway        payment.Gateway
	logger         *logger.Logger
}

func NewWalletService(
	walletRepo interfaces.WalletRepository,
	topUpRepo interfaces.WalletTransactionRepository,
	withdrawalRepo interfaces.WithdrawalRepository,
	transactor database.Transactor,
	gateway payment.Gateway,
	logger *logger.Logger,
) WalletService {
	return &walletService{
		walletRepo:     walletRepo,
		topUpRepo:      topUpRepo,
		withdrawalRepo: withdrawalRepo,
		transactor:     transactor,
		gateway:        gateway,
		logger:         logger,
	}
}

func (s *walletService) GetBalance(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.walletRepo.GetBalance(ctx, userID)
}

func (s *walletService) Credit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("credit amount must be positive: %w", utils.ErrInvalidRequest)
	}
	return s.walletRepo.Credit(ctx, userID, amountMinor)
}

func (s *walletService) Debit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("debit amount must be positive: %w", utils.ErrInvalidRequest)
	}
	return s.walletRepo.Debit(ctx, userID, amountMinor)
}

func (s *walletService) Transfer(ctx context.Context, fromUserID, toUserID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("transfer amount must be positive: %w", utils.ErrInvalidRequest)
	}
	if fromUserID == toUserID {
		return fmt.Errorf("transfer to the same account: %w", utils.ErrInvalidRequest)
	}

	// Debit and credit commit or abort as one unit.
	return s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.walletRepo.Debit(ctx, fromUserID, amountMinor); err != nil {
			return err
		}
		return s.walletRepo.Credit(ctx, toUserID, amountMinor)
	})
}

func (s *walletService) CreateTopUp(ctx context.Context, userID primitive.ObjectID, amountMinor int64, currency, paymentMethodID string) (*models.WalletTransaction, *payment.AuthorizeResponse, error) {
	if amountMinor < utils.MinTopUpAmountMinor || amountMinor > utils.MaxTopUpAmountMinor {
		return nil, nil, fmt.Errorf("top-up amount out of range: %w", utils.ErrInvalidRequest)
	}
	if currency == "" {
		currency = utils.DefaultCurrency
	}

	txn := &models.WalletTransaction{
		UserID:      userID,
		AmountMinor: amountMinor,
		Currency:    currency,
	}
	if err := s.topUpRepo.Create(ctx, txn); err != nil {
		return nil, nil, err
	}

	auth, err := s.gateway.Authorize(ctx, &payment.AuthorizeRequest{
		CustomerRef:     userID.Hex(),
		PaymentMethodID: paymentMethodID,
		AmountMinor:     amountMinor,
		Currency:        currency,
		Description:     "wallet top-up",
		IdempotencyKey:  txn.ID.Hex(),
		Metadata:        map[string]string{"transaction_id": txn.ID.Hex()},
	})
	if err != nil {
		s.logger.WithError(err).WithUserID(userID).Error("Top-up authorization failed")
		if claimErr := s.topUpRepo.ClaimPending(ctx, txn.ID, models.WalletTransactionStatusFailed, ""); claimErr != nil {
			s.logger.WithError(claimErr).Warn("Failed to mark top-up failed")
		}
		return nil, nil, fmt.Errorf("top-up authorization: %w", utils.ErrGatewayFailure)
	}

	if err := s.topUpRepo.SetAuthRef(ctx, txn.ID, auth.AuthRef); err != nil {
		return nil, nil, err
	}
	txn.AuthRef = auth.AuthRef

	s.logger.LogPaymentEvent(txn.ID, "topup_authorized", amountMinor, currency)
	return txn, auth, nil
}

func (s *walletService) ConfirmTopUp(ctx context.Context, transactionID primitive.ObjectID) error {
	txn, err := s.topUpRepo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status != models.WalletTransactionStatusPending {
		return fmt.Errorf("wallet transaction %s: %w", transactionID.Hex(), utils.ErrAlreadyProcessed)
	}
	if txn.AuthRef == "" {
		return fmt.Errorf("wallet transaction %s has no authorization: %w", transactionID.Hex(), utils.ErrInvalidRequest)
	}

	// External capture happens before any ledger mutation; a crash between
	// the two is re-driveable because the record stays pending and the
	// capture is idempotent on the transaction id.
	if err := s.gateway.Capture(ctx, txn.AuthRef); err != nil {
		s.logger.WithError(err).WithTransactionID(transactionID).Error("Top-up capture failed")
		return fmt.Errorf("top-up capture: %w", utils.ErrGatewayFailure)
	}

	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.topUpRepo.ClaimPending(ctx, transactionID, models.WalletTransactionStatusSuccess, ""); err != nil {
			return err
		}
		return s.walletRepo.Credit(ctx, txn.UserID, txn.AmountMinor)
	})
	if err != nil {
		return err
	}

	s.logger.LogPaymentEvent(transactionID, "topup_confirmed", txn.AmountMinor, txn.Currency)
	return nil
}

func (s *walletService) Withdraw(ctx context.Context, userID primitive.ObjectID, amountMinor int64, currency, payoutAccountID string) (*models.Withdrawal, error) {
	if amountMinor < utils.MinWithdrawAmountMinor {
		return nil, fmt.Errorf("minimum withdrawal is %d minor units: %w", utils.MinWithdrawAmountMinor, utils.ErrInvalidRequest)
	}
	if currency == "" {
		currency = utils.DefaultCurrency
	}

	if payoutAccountID == "" {
		wallet, err := s.walletRepo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		payoutAccountID = wallet.PayoutAccountID
	}
	if payoutAccountID == "" {
		return nil, fmt.Errorf("no payout account on file: %w", utils.ErrInvalidRequest)
	}

	withdrawal := &models.Withdrawal{
		UserID:      userID,
		AmountMinor: amountMinor,
		Currency:    currency,
	}
	if err := s.withdrawalRepo.Create(ctx, withdrawal); err != nil {
		return nil, err
	}

	// Hold the funds first so the balance can never be paid out twice.
	if err := s.walletRepo.Debit(ctx, userID, amountMinor); err != nil {
		if claimErr := s.withdrawalRepo.ClaimPending(ctx, withdrawal.ID, models.WithdrawalStatusFailed, "", "insufficient funds"); claimErr != nil {
			s.logger.WithError(claimErr).Warn("Failed to mark withdrawal failed")
		}
		return nil, err
	}

	payout, err := s.gateway.Payout(ctx, &payment.PayoutRequest{
		DestinationRef: payoutAccountID,
		AmountMinor:    amountMinor,
		Currency:       currency,
		IdempotencyKey: withdrawal.ID.Hex(),
	})
	if err != nil {
		// Release the hold; the ledger must not lose the driver's money on
		// a provider failure.
		if creditErr := s.walletRepo.Credit(ctx, userID, amountMinor); creditErr != nil {
			s.logger.WithError(creditErr).WithUserID(userID).Error("Failed to release withdrawal hold")
		}
		if claimErr := s.withdrawalRepo.ClaimPending(ctx, withdrawal.ID, models.WithdrawalStatusFailed, "", err.Error()); claimErr != nil {
			s.logger.WithError(claimErr).Warn("Failed to mark withdrawal failed")
		}
		return nil, fmt.Errorf("payout: %w", utils.ErrGatewayFailure)
	}

	if err := s.withdrawalRepo.ClaimPending(ctx, withdrawal.ID, models.WithdrawalStatusCompleted, payout.PayoutRef, ""); err != nil {
		return nil, err
	}

	withdrawal.Status = models.WithdrawalStatusCompleted
	withdrawal.PayoutRef = payout.PayoutRef
	s.logger.LogPaymentEvent(withdrawal.ID, "withdrawal_completed", amountMinor, currency)

	return withdrawal, nil
}
