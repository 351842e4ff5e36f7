package services

import (
	"context"
	"sync"
	"testing"

	"carpool-pay/internal/models"
	"carpool-pay/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestOpenEscrowHoldsRiderFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)

	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 1500, "USD", "match-1", "auth_1")
	require.NoError(t, err)
	require.False(t, txn.ID.IsZero())

	assert.Equal(t, models.EscrowStatusPending, txn.Status)
	assert.Equal(t, int64(3500), env.balance(t, rider))
	assert.Equal(t, int64(0), env.balance(t, driver))
}

func TestOpenEscrowInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 1000)
	driver := env.seedWallet(t, 0)

	_, err := env.escrow.OpenEscrow(ctx, rider, driver, 1500, "USD", "match-1", "")
	require.ErrorIs(t, err, utils.ErrInsufficientFunds)

	// Nothing was created and the balance is untouched.
	assert.Equal(t, int64(1000), env.balance(t, rider))
	txns, err := env.escrowRepo.GetByMatchID(ctx, "match-1")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestOpenEscrowRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)

	_, err := env.escrow.OpenEscrow(ctx, rider, driver, 0, "USD", "match-1", "")
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	_, err = env.escrow.OpenEscrow(ctx, rider, rider, 1000, "USD", "match-1", "")
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	_, err = env.escrow.OpenEscrow(ctx, rider, driver, 1000, "USD", "", "")
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)
}

func TestSettleCreditsDriverOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "auth_1")
	require.NoError(t, err)

	require.NoError(t, env.escrow.Settle(ctx, txn.ID))
	assert.Equal(t, int64(2000), env.balance(t, driver))

	stored, err := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusCompleted, stored.Status)
	assert.NotNil(t, stored.SettledAt)

	// A second settle loses the claim and moves no money.
	err = env.escrow.Settle(ctx, txn.ID)
	require.ErrorIs(t, err, utils.ErrAlreadyProcessed)
	assert.Equal(t, int64(2000), env.balance(t, driver))
}

func TestSettleUnknownTransaction(t *testing.T) {
	env := newTestEnv(t)

	err := env.escrow.Settle(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestConcurrentSettleWinsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.escrow.Settle(ctx, txn.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, utils.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(2000), env.balance(t, driver))
}

func TestReversePendingRefundsRider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "auth_1")
	require.NoError(t, err)

	refundRef, err := env.escrow.Reverse(ctx, txn.ID, "rider complaint")
	require.NoError(t, err)
	assert.NotEmpty(t, refundRef)
	assert.Equal(t, 1, env.gateway.refundCalls)

	assert.Equal(t, int64(5000), env.balance(t, rider))
	assert.Equal(t, int64(0), env.balance(t, driver))

	stored, err := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, stored.Status)
	assert.Equal(t, refundRef, stored.RefundRef)
	assert.Equal(t, "rider complaint", stored.CancelReason)

	// Reversing again is rejected without another provider call.
	_, err = env.escrow.Reverse(ctx, txn.ID, "again")
	require.ErrorIs(t, err, utils.ErrAlreadyProcessed)
	assert.Equal(t, 1, env.gateway.refundCalls)
}

func TestReverseWithoutAuthRefSkipsProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "")
	require.NoError(t, err)

	refundRef, err := env.escrow.Reverse(ctx, txn.ID, "no upstream hold")
	require.NoError(t, err)
	assert.Empty(t, refundRef)
	assert.Equal(t, 0, env.gateway.refundCalls)
	assert.Equal(t, int64(5000), env.balance(t, rider))
}

func TestReverseCompletedClawsBackDriver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "auth_1")
	require.NoError(t, err)
	require.NoError(t, env.escrow.Settle(ctx, txn.ID))

	_, err = env.escrow.Reverse(ctx, txn.ID, "trip disputed after settlement")
	require.NoError(t, err)

	assert.Equal(t, int64(5000), env.balance(t, rider))
	assert.Equal(t, int64(0), env.balance(t, driver))

	stored, err := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, stored.Status)
}

func TestReverseClawbackShortfallEscalates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "auth_1")
	require.NoError(t, err)
	require.NoError(t, env.escrow.Settle(ctx, txn.ID))

	// The driver spends the settled funds before the reversal lands.
	require.NoError(t, env.walletRepo.Debit(ctx, driver, 2000))

	_, err = env.escrow.Reverse(ctx, txn.ID, "chargeback")
	require.ErrorIs(t, err, utils.ErrInsufficientFunds)

	// The status rolled back and the case went to review.
	stored, getErr := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.EscrowStatusCompleted, stored.Status)
	assert.Equal(t, int64(0), env.balance(t, driver))
	assert.Equal(t, int64(3000), env.balance(t, rider))
	assert.Equal(t, 1, env.sender.count())
}

func TestReverseNegativeClawbackWhenAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.escrowConfig.AllowNegativeClawback = true
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "auth_1")
	require.NoError(t, err)
	require.NoError(t, env.escrow.Settle(ctx, txn.ID))
	require.NoError(t, env.walletRepo.Debit(ctx, driver, 2000))

	_, err = env.escrow.Reverse(ctx, txn.ID, "chargeback")
	require.NoError(t, err)

	assert.Equal(t, int64(-2000), env.balance(t, driver))
	assert.Equal(t, int64(5000), env.balance(t, rider))
}

func TestReverseGatewayFailureLeavesLedgerUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "auth_1")
	require.NoError(t, err)

	env.gateway.refundErr = assert.AnError

	_, err = env.escrow.Reverse(ctx, txn.ID, "rider complaint")
	require.ErrorIs(t, err, utils.ErrGatewayFailure)

	// No internal state moved; the call is safe to retry.
	stored, getErr := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.EscrowStatusPending, stored.Status)
	assert.Equal(t, int64(3000), env.balance(t, rider))

	env.gateway.refundErr = nil
	_, err = env.escrow.Reverse(ctx, txn.ID, "rider complaint")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), env.balance(t, rider))
}

func TestCancelPendingReturnsFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "")
	require.NoError(t, err)

	require.NoError(t, env.escrow.Cancel(ctx, txn.ID, "operator cancel"))
	assert.Equal(t, int64(5000), env.balance(t, rider))

	stored, err := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowStatusCancelled, stored.Status)

	// A settled or cancelled transaction cannot be cancelled again.
	err = env.escrow.Cancel(ctx, txn.ID, "again")
	assert.ErrorIs(t, err, utils.ErrAlreadyProcessed)
}

func TestConcurrentSettleAndReverse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rider := env.seedWallet(t, 5000)
	driver := env.seedWallet(t, 0)
	txn, err := env.escrow.OpenEscrow(ctx, rider, driver, 2000, "USD", "match-1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var settleErr, reverseErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		settleErr = env.escrow.Settle(ctx, txn.ID)
	}()
	go func() {
		defer wg.Done()
		_, reverseErr = env.escrow.Reverse(ctx, txn.ID, "race")
	}()
	wg.Wait()

	// Whatever the interleaving, the total across wallets and escrow is
	// conserved: settle pays the driver, reverse repays the rider, and a
	// reverse after settle claws the driver back.
	total := env.balance(t, rider) + env.balance(t, driver)
	stored, err := env.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	if stored.Status == models.EscrowStatusCompleted {
		require.NoError(t, settleErr)
		assert.Equal(t, int64(5000), total)
		assert.Equal(t, int64(2000), env.balance(t, driver))
	} else {
		require.Equal(t, models.EscrowStatusRefunded, stored.Status)
		require.NoError(t, reverseErr)
		assert.Equal(t, int64(5000), total)
		assert.Equal(t, int64(5000), env.balance(t, rider))
	}
}
