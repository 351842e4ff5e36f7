package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"carpool-pay/internal/config"
	"carpool-pay/internal/models"
	"carpool-pay/internal/utils"
	"carpool-pay/pkg/logger"
	"carpool-pay/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore backs all in-memory fakes with a single lock so individual
// repository operations are atomic, mirroring Mongo's per-document updates.
type memStore struct {
	mu            sync.Mutex
	wallets       map[primitive.ObjectID]*models.Wallet
	escrows       map[primitive.ObjectID]*models.EscrowTransaction
	sessions      map[string]*models.CarpoolSession
	topUps        map[primitive.ObjectID]*models.WalletTransaction
	withdrawals   map[primitive.ObjectID]*models.Withdrawal
	cancellations []*models.CancelledAuthorization
}

func newMemStore() *memStore {
	return &memStore{
		wallets:     make(map[primitive.ObjectID]*models.Wallet),
		escrows:     make(map[primitive.ObjectID]*models.EscrowTransaction),
		sessions:    make(map[string]*models.CarpoolSession),
		topUps:      make(map[primitive.ObjectID]*models.WalletTransaction),
		withdrawals: make(map[primitive.ObjectID]*models.Withdrawal),
	}
}

func sessionKey(matchID, sessionID string) string {
	return matchID + "/" + sessionID
}

// snapshot copies the store so a failed transaction can be rolled back.
// Struct copies are shallow; the fakes replace pointer fields rather than
// mutating through them, so the copies stay isolated.
func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := newMemStore()
	for k, v := range s.wallets {
		w := *v
		snap.wallets[k] = &w
	}
	for k, v := range s.escrows {
		e := *v
		snap.escrows[k] = &e
	}
	for k, v := range s.sessions {
		sess := *v
		snap.sessions[k] = &sess
	}
	for k, v := range s.topUps {
		t := *v
		snap.topUps[k] = &t
	}
	for k, v := range s.withdrawals {
		w := *v
		snap.withdrawals[k] = &w
	}
	snap.cancellations = append([]*models.CancelledAuthorization(nil), s.cancellations...)
	return snap
}

func (s *memStore) restore(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = snap.wallets
	s.escrows = snap.escrows
	s.sessions = snap.sessions
	s.topUps = snap.topUps
	s.withdrawals = snap.withdrawals
	s.cancellations = snap.cancellations
}

// fakeTransactor serializes top-level transactions and rolls the store back
// when the unit of work fails. A context marker detects re-entrant calls the
// same way the real transactor checks mongo.SessionFromContext.
type fakeTransactor struct {
	store *memStore
	txMu  sync.Mutex
}

type txMarker struct{}

func (t *fakeTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}

	t.txMu.Lock()
	defer t.txMu.Unlock()

	snap := t.store.snapshot()
	err := fn(context.WithValue(ctx, txMarker{}, true))
	if err != nil {
		t.store.restore(snap)
	}
	return err
}

type fakeWalletRepo struct {
	store *memStore
}

func (r *fakeWalletRepo) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wallet, ok := r.store.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for user %s: %w", userID.Hex(), utils.ErrNotFound)
	}
	w := *wallet
	return &w, nil
}

func (r *fakeWalletRepo) GetBalance(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wallet, ok := r.store.wallets[userID]
	if !ok {
		return 0, nil
	}
	return wallet.BalanceMinor, nil
}

func (r *fakeWalletRepo) Credit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("credit amount must be positive: %w", utils.ErrInvalidRequest)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wallet, ok := r.store.wallets[userID]
	if !ok {
		wallet = &models.Wallet{UserID: userID, Currency: utils.DefaultCurrency, IsActive: true}
		r.store.wallets[userID] = wallet
	}
	wallet.BalanceMinor += amountMinor
	return nil
}

func (r *fakeWalletRepo) Debit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("debit amount must be positive: %w", utils.ErrInvalidRequest)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wallet, ok := r.store.wallets[userID]
	if !ok || wallet.BalanceMinor < amountMinor {
		return fmt.Errorf("debit of %d from user %s: %w", amountMinor, userID.Hex(), utils.ErrInsufficientFunds)
	}
	wallet.BalanceMinor -= amountMinor
	return nil
}

func (r *fakeWalletRepo) ForceDebit(ctx context.Context, userID primitive.ObjectID, amountMinor int64) error {
	if amountMinor <= 0 {
		return fmt.Errorf("debit amount must be positive: %w", utils.ErrInvalidRequest)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wallet, ok := r.store.wallets[userID]
	if !ok {
		wallet = &models.Wallet{UserID: userID, Currency: utils.DefaultCurrency, IsActive: true}
		r.store.wallets[userID] = wallet
	}
	wallet.BalanceMinor -= amountMinor
	return nil
}

func (r *fakeWalletRepo) SetPayoutAccount(ctx context.Context, userID primitive.ObjectID, payoutAccountID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wallet, ok := r.store.wallets[userID]
	if !ok {
		wallet = &models.Wallet{UserID: userID, Currency: utils.DefaultCurrency, IsActive: true}
		r.store.wallets[userID] = wallet
	}
	wallet.PayoutAccountID = payoutAccountID
	return nil
}

type fakeEscrowRepo struct {
	store *memStore
}

func (r *fakeEscrowRepo) Create(ctx context.Context, txn *models.EscrowTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn.ID = primitive.NewObjectID()
	txn.Status = models.EscrowStatusPending
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt
	stored := *txn
	r.store.escrows[txn.ID] = &stored
	return nil
}

func (r *fakeEscrowRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.EscrowTransaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn, ok := r.store.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow transaction %s: %w", id.Hex(), utils.ErrNotFound)
	}
	t := *txn
	return &t, nil
}

func (r *fakeEscrowRepo) ClaimStatus(ctx context.Context, id primitive.ObjectID, from []models.EscrowStatus, to models.EscrowStatus, set map[string]interface{}) (*models.EscrowTransaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn, ok := r.store.escrows[id]
	if !ok {
		return nil, fmt.Errorf("escrow transaction %s: %w", id.Hex(), utils.ErrNotFound)
	}
	eligible := false
	for _, status := range from {
		if txn.Status == status {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, fmt.Errorf("escrow transaction %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}

	before := *txn
	txn.Status = to
	txn.UpdatedAt = time.Now()
	for key, value := range set {
		switch key {
		case "settled_at":
			at := value.(time.Time)
			txn.SettledAt = &at
		case "refunded_at":
			at := value.(time.Time)
			txn.RefundedAt = &at
		case "refund_ref":
			txn.RefundRef = value.(string)
		case "cancel_reason":
			txn.CancelReason = value.(string)
		}
	}
	return &before, nil
}

func (r *fakeEscrowRepo) GetByMatchID(ctx context.Context, matchID string) ([]*models.EscrowTransaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*models.EscrowTransaction
	for _, txn := range r.store.escrows {
		if txn.MatchID == matchID {
			t := *txn
			result = append(result, &t)
		}
	}
	return result, nil
}

type fakeSessionRepo struct {
	store *memStore
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.CarpoolSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session.ID = primitive.NewObjectID()
	session.Status = models.SessionStatusPending
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	stored := *session
	r.store.sessions[sessionKey(session.MatchID, session.SessionID)] = &stored
	return nil
}

func (r *fakeSessionRepo) GetByKey(ctx context.Context, matchID, sessionID string) (*models.CarpoolSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.getLocked(matchID, sessionID)
}

func (r *fakeSessionRepo) getLocked(matchID, sessionID string) (*models.CarpoolSession, error) {
	session, ok := r.store.sessions[sessionKey(matchID, sessionID)]
	if !ok {
		return nil, fmt.Errorf("session %s/%s: %w", matchID, sessionID, utils.ErrSessionNotFound)
	}
	s := *session
	return &s, nil
}

func (r *fakeSessionRepo) RecordResponse(ctx context.Context, matchID, sessionID string, party models.SessionParty, response models.SessionResponse, proposedAmountMinor int64, now time.Time) (*models.CarpoolSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[sessionKey(matchID, sessionID)]
	if !ok || session.Status != models.SessionStatusPending {
		return r.getLocked(matchID, sessionID)
	}

	amount := proposedAmountMinor
	if party == models.SessionPartyDriver {
		session.DriverResponse = response
		session.DriverAmountMinor = &amount
	} else {
		session.RiderResponse = response
		session.RiderAmountMinor = &amount
	}
	if session.StartedAt == nil || now.Before(*session.StartedAt) {
		at := now
		session.StartedAt = &at
	}
	session.UpdatedAt = now

	s := *session
	return &s, nil
}

func (r *fakeSessionRepo) SetAgreedAmount(ctx context.Context, matchID, sessionID string, amountMinor int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[sessionKey(matchID, sessionID)]
	if !ok || session.AgreedAmountMinor != nil {
		return nil
	}
	amount := amountMinor
	session.AgreedAmountMinor = &amount
	return nil
}

func (r *fakeSessionRepo) ClaimDecision(ctx context.Context, matchID, sessionID string, to models.SessionStatus, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[sessionKey(matchID, sessionID)]
	if !ok || session.Status != models.SessionStatusPending {
		return false, nil
	}
	session.Status = to
	at := now
	session.DecidedAt = &at
	session.UpdatedAt = now
	return true, nil
}

func (r *fakeSessionRepo) ClaimResolution(ctx context.Context, matchID, sessionID string, from []models.SessionStatus, to models.SessionStatus, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	session, ok := r.store.sessions[sessionKey(matchID, sessionID)]
	if !ok {
		return false, nil
	}
	eligible := false
	for _, status := range from {
		if session.Status == status {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}
	session.Status = to
	at := now
	session.DecidedAt = &at
	session.UpdatedAt = now
	return true, nil
}

func (r *fakeSessionRepo) ListByStatus(ctx context.Context, statuses []models.SessionStatus, params *utils.PaginationParams) ([]*models.CarpoolSession, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*models.CarpoolSession
	for _, session := range r.store.sessions {
		for _, status := range statuses {
			if session.Status == status {
				s := *session
				result = append(result, &s)
				break
			}
		}
	}
	return result, int64(len(result)), nil
}

func (r *fakeSessionRepo) ListPendingStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.CarpoolSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var result []*models.CarpoolSession
	for _, session := range r.store.sessions {
		if session.Status == models.SessionStatusPending && session.StartedAt != nil && !session.StartedAt.After(cutoff) {
			s := *session
			result = append(result, &s)
		}
	}
	return result, nil
}

func (r *fakeSessionRepo) RecordCancellation(ctx context.Context, entry *models.CancelledAuthorization) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	if entry.CancelledAt.IsZero() {
		entry.CancelledAt = time.Now()
	}
	stored := *entry
	r.store.cancellations = append(r.store.cancellations, &stored)
	return nil
}

type fakeTopUpRepo struct {
	store *memStore
}

func (r *fakeTopUpRepo) Create(ctx context.Context, txn *models.WalletTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn.ID = primitive.NewObjectID()
	txn.Status = models.WalletTransactionStatusPending
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt
	stored := *txn
	r.store.topUps[txn.ID] = &stored
	return nil
}

func (r *fakeTopUpRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.WalletTransaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn, ok := r.store.topUps[id]
	if !ok {
		return nil, fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrNotFound)
	}
	t := *txn
	return &t, nil
}

func (r *fakeTopUpRepo) SetAuthRef(ctx context.Context, id primitive.ObjectID, authRef string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn, ok := r.store.topUps[id]
	if !ok || txn.Status != models.WalletTransactionStatusPending {
		return fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}
	txn.AuthRef = authRef
	return nil
}

func (r *fakeTopUpRepo) ClaimPending(ctx context.Context, id primitive.ObjectID, status models.WalletTransactionStatus, authRef string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	txn, ok := r.store.topUps[id]
	if !ok {
		return fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrNotFound)
	}
	if txn.Status != models.WalletTransactionStatusPending {
		return fmt.Errorf("wallet transaction %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}
	txn.Status = status
	if authRef != "" {
		txn.AuthRef = authRef
	}
	return nil
}

type fakeWithdrawalRepo struct {
	store *memStore
}

func (r *fakeWithdrawalRepo) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	withdrawal.ID = primitive.NewObjectID()
	withdrawal.Status = models.WithdrawalStatusPending
	withdrawal.CreatedAt = time.Now()
	withdrawal.UpdatedAt = withdrawal.CreatedAt
	stored := *withdrawal
	r.store.withdrawals[withdrawal.ID] = &stored
	return nil
}

func (r *fakeWithdrawalRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Withdrawal, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	withdrawal, ok := r.store.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id.Hex(), utils.ErrNotFound)
	}
	w := *withdrawal
	return &w, nil
}

func (r *fakeWithdrawalRepo) ClaimPending(ctx context.Context, id primitive.ObjectID, status models.WithdrawalStatus, payoutRef, failReason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	withdrawal, ok := r.store.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal %s: %w", id.Hex(), utils.ErrNotFound)
	}
	if withdrawal.Status != models.WithdrawalStatusPending {
		return fmt.Errorf("withdrawal %s: %w", id.Hex(), utils.ErrAlreadyProcessed)
	}
	withdrawal.Status = status
	if payoutRef != "" {
		withdrawal.PayoutRef = payoutRef
	}
	if failReason != "" {
		withdrawal.FailReason = failReason
	}
	return nil
}

type fakeGateway struct {
	mu sync.Mutex

	authorizeErr error
	captureErr   error
	cancelErr    error
	refundErr    error
	payoutErr    error

	authorizeCalls int
	captureCalls   int
	cancelCalls    int
	refundCalls    int
	payoutCalls    int

	cancelledRefs []string
}

func (g *fakeGateway) Authorize(ctx context.Context, request *payment.AuthorizeRequest) (*payment.AuthorizeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizeCalls++
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	return &payment.AuthorizeResponse{
		AuthRef:     fmt.Sprintf("auth_%d", g.authorizeCalls),
		Status:      "requires_capture",
		AmountMinor: request.AmountMinor,
		Currency:    request.Currency,
	}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, authRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	return g.captureErr
}

func (g *fakeGateway) CancelAuthorization(ctx context.Context, authRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelledRefs = append(g.cancelledRefs, authRef)
	return nil
}

func (g *fakeGateway) Refund(ctx context.Context, request *payment.RefundRequest) (*payment.RefundResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	// A cancelled authorization was never captured, so providers reject a
	// refund against it.
	for _, ref := range g.cancelledRefs {
		if ref == request.AuthRef {
			return nil, fmt.Errorf("authorization %s is cancelled and cannot be refunded", request.AuthRef)
		}
	}
	return &payment.RefundResponse{
		RefundRef:   fmt.Sprintf("re_%d", g.refundCalls),
		Status:      "succeeded",
		AmountMinor: request.AmountMinor,
	}, nil
}

func (g *fakeGateway) Payout(ctx context.Context, request *payment.PayoutRequest) (*payment.PayoutResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payoutCalls++
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	return &payment.PayoutResponse{
		PayoutRef:   fmt.Sprintf("po_%d", g.payoutCalls),
		Status:      "paid",
		AmountMinor: request.AmountMinor,
		Currency:    request.Currency,
	}, nil
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeSender struct {
	mu      sync.Mutex
	sendErr error
	sent    []sentMail
}

func (s *fakeSender) Send(to []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// testEnv wires the services against the in-memory fakes.
type testEnv struct {
	store          *memStore
	walletRepo     *fakeWalletRepo
	escrowRepo     *fakeEscrowRepo
	sessionRepo    *fakeSessionRepo
	topUpRepo      *fakeTopUpRepo
	withdrawalRepo *fakeWithdrawalRepo
	transactor     *fakeTransactor
	gateway        *fakeGateway
	sender         *fakeSender
	escrowConfig   *config.EscrowConfig

	wallet  WalletService
	escrow  EscrowService
	carpool CarpoolService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stdout"})
	if err != nil {
		t.Fatalf("failed to build test logger: %v", err)
	}

	store := newMemStore()
	env := &testEnv{
		store:          store,
		walletRepo:     &fakeWalletRepo{store: store},
		escrowRepo:     &fakeEscrowRepo{store: store},
		sessionRepo:    &fakeSessionRepo{store: store},
		topUpRepo:      &fakeTopUpRepo{store: store},
		withdrawalRepo: &fakeWithdrawalRepo{store: store},
		transactor:     &fakeTransactor{store: store},
		gateway:        &fakeGateway{},
		sender:         &fakeSender{},
		escrowConfig: &config.EscrowConfig{
			AllowNegativeClawback: false,
			EscalationWindow:      14 * 24 * time.Hour,
			ReviewRecipients:      []string{"ops@example.com"},
		},
	}

	notifier := NewNotifierService(env.sender, env.escrowConfig, log)
	env.wallet = NewWalletService(env.walletRepo, env.topUpRepo, env.withdrawalRepo, env.transactor, env.gateway, log)
	env.escrow = NewEscrowService(env.escrowRepo, env.walletRepo, env.transactor, env.gateway, notifier, env.escrowConfig, log)
	env.carpool = NewCarpoolService(env.sessionRepo, env.escrow, env.gateway, notifier, env.escrowConfig, log)
	return env
}

func (e *testEnv) seedWallet(t *testing.T, balanceMinor int64) primitive.ObjectID {
	t.Helper()
	userID := primitive.NewObjectID()
	if balanceMinor > 0 {
		if err := e.walletRepo.Credit(context.Background(), userID, balanceMinor); err != nil {
			t.Fatalf("failed to seed wallet: %v", err)
		}
	}
	return userID
}

func (e *testEnv) balance(t *testing.T, userID primitive.ObjectID) int64 {
	t.Helper()
	balance, err := e.walletRepo.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	return balance
}

// setSessionStartedAt backdates a session for timeout tests.
func (e *testEnv) setSessionStartedAt(matchID, sessionID string, at time.Time) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	if session, ok := e.store.sessions[sessionKey(matchID, sessionID)]; ok {
		session.StartedAt = &at
	}
}
