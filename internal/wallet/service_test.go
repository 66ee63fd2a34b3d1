package wallet

import (
	"context"
	"testing"

	"tradearena/internal/model"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestService() (*Service, *store.Memory) {
	mem := store.NewMemory()
	return NewService(mem, zap.NewNop()), mem
}

func TestDepositAndWithdraw(t *testing.T) {
	svc, mem := newTestService()
	mem.SeedWallet(model.Wallet{UserID: "u1"})

	tx, err := svc.Deposit(context.Background(), "u1", d("250"), "topup")
	require.NoError(t, err)
	assert.True(t, tx.BalanceBefore.IsZero())
	assert.True(t, tx.BalanceAfter.Equal(d("250")))
	assert.Equal(t, types.WalletTxDeposit, tx.Kind)

	tx, err = svc.Withdraw(context.Background(), "u1", d("100"), "payout")
	require.NoError(t, err)
	assert.True(t, tx.BalanceAfter.Equal(d("150")))

	w, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.CreditBalance.Equal(d("150")))
	assert.True(t, w.TotalDeposited.Equal(d("250")))
	assert.True(t, w.TotalWithdrawn.Equal(d("100")))
}

func TestWithdrawNeverGoesNegative(t *testing.T) {
	svc, mem := newTestService()
	mem.SeedWallet(model.Wallet{UserID: "u1", CreditBalance: d("50")})

	_, err := svc.Withdraw(context.Background(), "u1", d("51"), "too much")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	w, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.CreditBalance.Equal(d("50")), "failed withdrawal leaves no trace")

	txs, err := svc.Transactions(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	svc, mem := newTestService()
	mem.SeedWallet(model.Wallet{UserID: "u1"})

	_, err := svc.Deposit(context.Background(), "u1", decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Withdraw(context.Background(), "u1", d("-5"), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransactionsNewestFirst(t *testing.T) {
	svc, mem := newTestService()
	mem.SeedWallet(model.Wallet{UserID: "u1"})

	for _, amount := range []string{"10", "20", "30"} {
		_, err := svc.Deposit(context.Background(), "u1", d(amount), "seed")
		require.NoError(t, err)
	}
	txs, err := svc.Transactions(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Amount.Equal(d("30")))
	assert.True(t, txs[1].Amount.Equal(d("20")))
}

func TestUnknownWallet(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Deposit(context.Background(), "ghost", d("10"), "")
	assert.ErrorIs(t, err, ErrNotFound)
}
