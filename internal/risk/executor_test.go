package risk

import (
	"context"
	"sync"
	"testing"

	"tradearena/internal/model"
	"tradearena/internal/position"
	"tradearena/internal/pricing"
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

type recordingNotifier struct {
	mu           sync.Mutex
	warnings     int
	calls        int
	liquidations []string
}

func (n *recordingNotifier) MarginWarning(ctx context.Context, userID string, level decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings++
}

func (n *recordingNotifier) MarginCall(ctx context.Context, userID string, level decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *recordingNotifier) Liquidation(ctx context.Context, userID, symbol string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.liquidations = append(n.liquidations, symbol)
}

type fixture struct {
	mem      *store.Memory
	prices   *pricing.StaticSource
	ledger   *position.Service
	exec     *Executor
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	prices := pricing.NewStaticSource()
	ledger := position.NewService(mem, prices, zap.NewNop())
	notifier := &recordingNotifier{}
	return &fixture{
		mem:      mem,
		prices:   prices,
		ledger:   ledger,
		exec:     NewExecutor(mem, ledger, prices, notifier, zap.NewNop()),
		notifier: notifier,
	}
}

func (f *fixture) seedLeveragedAccount(t *testing.T) *model.Position {
	t.Helper()
	f.mem.SeedAccount(model.Account{
		ID:               "a1",
		UserID:           "u1",
		StartingCapital:  d("10000"),
		CurrentCapital:   d("10000"),
		AvailableCapital: d("10000"),
		Status:           types.AccountStatusActive,
	})
	f.prices.Set("BTCUSD", d("50000"), d("50000"))
	p, err := f.ledger.OpenAtMarket(context.Background(), position.OpenRequest{
		AccountID: "a1",
		UserID:    "u1",
		Symbol:    "BTCUSD",
		Side:      types.PositionSideLong,
		Quantity:  d("1"),
		Leverage:  10,
	})
	require.NoError(t, err)
	require.True(t, p.MarginUsed.Equal(d("5000")))
	return p
}

func TestEvaluateSafe(t *testing.T) {
	f := newFixture(t)
	f.seedLeveragedAccount(t)

	snap, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.MarginStatusSafe, snap.Status)
	assert.True(t, snap.Equity.Equal(d("10000")))
	assert.True(t, snap.MarginLevel.Equal(d("200")))
	assert.False(t, snap.Liquidated)
	assert.Equal(t, 0, f.notifier.warnings)
}

func TestEvaluateWarningNotifies(t *testing.T) {
	f := newFixture(t)
	f.seedLeveragedAccount(t)

	// equity 8000, level 160: warning band.
	f.prices.Set("BTCUSD", d("48000"), d("48000"))
	snap, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.MarginStatusWarning, snap.Status)
	assert.Equal(t, 1, f.notifier.warnings)
	assert.Equal(t, 0, f.notifier.calls)
}

func TestEvaluateDangerEscalatesToMarginCall(t *testing.T) {
	f := newFixture(t)
	f.seedLeveragedAccount(t)

	// equity 7000, level 140: danger, above the margin-call line.
	f.prices.Set("BTCUSD", d("47000"), d("47000"))
	snap, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.MarginStatusDanger, snap.Status)
	assert.Equal(t, 1, f.notifier.warnings)
	assert.Equal(t, 0, f.notifier.calls)

	// equity 5500, level 110: danger below the margin-call line.
	f.prices.Set("BTCUSD", d("45500"), d("45500"))
	snap, err = f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.MarginStatusDanger, snap.Status)
	assert.Equal(t, 1, f.notifier.calls)
	assert.False(t, snap.Liquidated)
}

func TestEvaluateLiquidates(t *testing.T) {
	f := newFixture(t)
	p := f.seedLeveragedAccount(t)

	// equity 3000, level 60: breach.
	f.prices.Set("BTCUSD", d("43000"), d("43000"))
	snap, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.MarginStatusLiquidation, snap.Status)
	assert.True(t, snap.Liquidated)
	assert.Equal(t, []string{"BTCUSD"}, f.notifier.liquidations)

	closed, err := f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusLiquidated, closed.Status)
	assert.Equal(t, types.CloseReasonMarginCall, closed.CloseReason)
	assert.True(t, closed.ExitPrice.Equal(d("43000")))

	account, err := f.mem.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.AccountStatusLiquidated, account.Status)
	assert.True(t, account.CurrentCapital.Equal(d("3000")))
	assert.True(t, account.UsedMargin.Equal(d("0")))
}

func TestEvaluateIdempotentAfterLiquidation(t *testing.T) {
	f := newFixture(t)
	f.seedLeveragedAccount(t)

	f.prices.Set("BTCUSD", d("43000"), d("43000"))
	_, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)

	// A racing second evaluation finds the work already done.
	snap, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, snap.Liquidated)
	assert.True(t, snap.NoMarginUsed)

	account, err := f.mem.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, account.CurrentCapital.Equal(d("3000")), "loss applied once")
	assert.Equal(t, 1, account.TradesCount)
}

func TestUnpricedPositionBlocksAccountFlip(t *testing.T) {
	f := newFixture(t)
	f.seedLeveragedAccount(t)

	// Second position on a symbol that will lose its quote.
	f.prices.Set("NOQUOTE", d("100"), d("100"))
	_, err := f.ledger.OpenAtMarket(context.Background(), position.OpenRequest{
		AccountID: "a1",
		UserID:    "u1",
		Symbol:    "NOQUOTE",
		Side:      types.PositionSideLong,
		Quantity:  d("10"),
		Leverage:  10,
	})
	require.NoError(t, err)
	f.prices.Unset("NOQUOTE")

	f.prices.Set("BTCUSD", d("41000"), d("41000"))
	snap, err := f.exec.EvaluateAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.MarginStatusLiquidation, snap.Status)

	// The priced position is gone, the unpriced one survives the cycle
	// and the account stays active until flat.
	open, err := f.mem.ListOpenPositions(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "NOQUOTE", open[0].Symbol)

	account, err := f.mem.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.AccountStatusActive, account.Status)
}

func TestLiquidateLosingEveryRaceReportsNoEffect(t *testing.T) {
	f := newFixture(t)
	p := f.seedLeveragedAccount(t)

	// Stale view of the account and its open positions, as a sweep that
	// loaded them just before a racing sweep finished the job.
	staleAccount, err := f.mem.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	staleOpen, err := f.mem.ListOpenPositions(context.Background(), "a1")
	require.NoError(t, err)

	// The racing sweep closes everything and flips the account first.
	_, err = f.ledger.Close(context.Background(), p.ID, d("43000"), types.CloseReasonMarginCall)
	require.NoError(t, err)
	won, err := f.mem.SetAccountStatus(context.Background(), "a1", types.AccountStatusActive, types.AccountStatusLiquidated)
	require.NoError(t, err)
	require.True(t, won)

	marks := map[string]decimal.Decimal{p.ID: d("43000")}
	affected, err := f.exec.liquidate(context.Background(), staleAccount, staleOpen, marks)
	require.NoError(t, err)
	assert.False(t, affected, "loser of both races did no work")
}

func TestSweepAllIsolatesAccounts(t *testing.T) {
	f := newFixture(t)
	f.seedLeveragedAccount(t)
	f.mem.SeedAccount(model.Account{
		ID:               "a2",
		UserID:           "u2",
		StartingCapital:  d("5000"),
		CurrentCapital:   d("5000"),
		AvailableCapital: d("5000"),
		Status:           types.AccountStatusActive,
	})

	f.prices.Set("BTCUSD", d("43000"), d("43000"))
	summary, err := f.exec.SweepAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Affected)
	assert.Empty(t, summary.FailedIDs)

	a2, err := f.mem.GetAccount(context.Background(), "a2")
	require.NoError(t, err)
	assert.Equal(t, types.AccountStatusActive, a2.Status)
}
