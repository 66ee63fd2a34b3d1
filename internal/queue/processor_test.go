package queue

import (
	"context"
	"testing"
	"time"

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

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

type fixture struct {
	mem    *store.Memory
	prices *pricing.StaticSource
	ledger *position.Service
	proc   *Processor
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	prices := pricing.NewStaticSource()
	ledger := position.NewService(mem, prices, zap.NewNop())
	return &fixture{
		mem:    mem,
		prices: prices,
		ledger: ledger,
		proc:   NewProcessor(mem, ledger, prices, zap.NewNop()),
		svc:    NewService(mem, zap.NewNop()),
	}
}

func (f *fixture) seedAccount(id string) {
	f.mem.SeedAccount(model.Account{
		ID:               id,
		UserID:           "u1",
		CurrentCapital:   d("10000"),
		AvailableCapital: d("10000"),
		StartingCapital:  d("10000"),
		Status:           types.AccountStatusActive,
	})
}

func TestLimitOrderTriggersAtObservedPrice(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")

	o, err := f.svc.Create(context.Background(), CreateRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "BTCUSD",
		Side:       types.PositionSideLong,
		Quantity:   d("0.1"),
		Leverage:   10,
		LimitPrice: d("48000"),
	})
	require.NoError(t, err)

	// Ask above the limit: nothing fires.
	f.prices.Set("BTCUSD", d("48400"), d("48500"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Affected)

	// Ask gaps through the limit: entry fills at the observed ask, not
	// the configured limit.
	f.prices.Set("BTCUSD", d("47800"), d("47900"))
	summary, err = f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)

	open, err := f.mem.ListOpenPositions(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].EntryPrice.Equal(d("47900")), "entry = %s", open[0].EntryPrice)

	_, err = f.mem.GetQueuedOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestShortLimitTriggersOnBid(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")

	_, err := f.svc.Create(context.Background(), CreateRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "BTCUSD",
		Side:       types.PositionSideShort,
		Quantity:   d("0.1"),
		Leverage:   10,
		LimitPrice: d("52000"),
	})
	require.NoError(t, err)

	f.prices.Set("BTCUSD", d("52100"), d("52200"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)

	open, err := f.mem.ListOpenPositions(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, types.PositionSideShort, open[0].Side)
	assert.True(t, open[0].EntryPrice.Equal(d("52100")))
}

func TestExpiredOrderIsDropped(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")

	o, err := f.svc.Create(context.Background(), CreateRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "BTCUSD",
		Side:       types.PositionSideLong,
		Quantity:   d("0.1"),
		Leverage:   10,
		LimitPrice: d("48000"),
		TTL:        time.Nanosecond,
	})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	f.prices.Set("BTCUSD", d("47000"), d("47100"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Affected)

	_, err = f.mem.GetQueuedOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	open, err := f.mem.ListOpenPositions(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, open, "expired order must not open a position")
}

func TestStopLossClosesAtMark(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")
	f.prices.Set("BTCUSD", d("50000"), d("50000"))

	p, err := f.ledger.OpenAtMarket(context.Background(), position.OpenRequest{
		AccountID: "a1",
		UserID:    "u1",
		Symbol:    "BTCUSD",
		Side:      types.PositionSideLong,
		Quantity:  d("0.1"),
		Leverage:  10,
		StopLoss:  dp("49000"),
	})
	require.NoError(t, err)

	// Bid gaps below the stop: close at the bid, slippage included.
	f.prices.Set("BTCUSD", d("48500"), d("48600"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)

	closed, err := f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, closed.Status)
	assert.Equal(t, types.CloseReasonStopLoss, closed.CloseReason)
	assert.True(t, closed.ExitPrice.Equal(d("48500")), "exit = %s", closed.ExitPrice)
}

func TestTakeProfitOnShort(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")
	f.prices.Set("BTCUSD", d("50000"), d("50000"))

	p, err := f.ledger.OpenAtMarket(context.Background(), position.OpenRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "BTCUSD",
		Side:       types.PositionSideShort,
		Quantity:   d("0.1"),
		Leverage:   10,
		TakeProfit: dp("47000"),
	})
	require.NoError(t, err)

	// Short exits on the ask.
	f.prices.Set("BTCUSD", d("46800"), d("46900"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)

	closed, err := f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CloseReasonTakeProfit, closed.CloseReason)
	assert.True(t, closed.ExitPrice.Equal(d("46900")))
}

func TestStopLossWinsWhenGapCrossesBoth(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")
	f.prices.Set("BTCUSD", d("50000"), d("50000"))

	p, err := f.ledger.OpenAtMarket(context.Background(), position.OpenRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "BTCUSD",
		Side:       types.PositionSideShort,
		Quantity:   d("0.1"),
		Leverage:   10,
		StopLoss:   dp("51000"),
		TakeProfit: dp("49000"),
	})
	require.NoError(t, err)

	// A short marked on the ask at 51500 crosses the stop; the stop is
	// checked first.
	f.prices.Set("BTCUSD", d("51400"), d("51500"))
	_, err = f.proc.Process(context.Background())
	require.NoError(t, err)

	closed, err := f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CloseReasonStopLoss, closed.CloseReason)
}

func TestTrailingStopRatchetsAndFires(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")
	f.prices.Set("BTCUSD", d("50000"), d("50000"))

	p, err := f.ledger.OpenAtMarket(context.Background(), position.OpenRequest{
		AccountID:    "a1",
		UserID:       "u1",
		Symbol:       "BTCUSD",
		Side:         types.PositionSideLong,
		Quantity:     d("0.1"),
		Leverage:     10,
		TrailingStop: dp("1000"),
	})
	require.NoError(t, err)

	// Price improves: anchor ratchets up to the new bid.
	f.prices.Set("BTCUSD", d("52000"), d("52100"))
	_, err = f.proc.Process(context.Background())
	require.NoError(t, err)
	got, err := f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TrailingAnchor)
	assert.True(t, got.TrailingAnchor.Equal(d("52000")))

	// Pullback smaller than the trail distance: anchor holds, no close.
	f.prices.Set("BTCUSD", d("51500"), d("51600"))
	_, err = f.proc.Process(context.Background())
	require.NoError(t, err)
	got, err = f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusOpen, got.Status)
	assert.True(t, got.TrailingAnchor.Equal(d("52000")))

	// Pullback through anchor - trail: closes at the observed bid.
	f.prices.Set("BTCUSD", d("50900"), d("51000"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)
	got, err = f.mem.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, got.Status)
	assert.Equal(t, types.CloseReasonStopLoss, got.CloseReason)
	assert.True(t, got.ExitPrice.Equal(d("50900")))
}

func TestUnpricedSymbolSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")

	_, err := f.svc.Create(context.Background(), CreateRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "NOQUOTE",
		Side:       types.PositionSideLong,
		Quantity:   d("1"),
		Leverage:   5,
		LimitPrice: d("10"),
	})
	require.NoError(t, err)

	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.Affected)
	assert.Empty(t, summary.FailedIDs)

	orders, err := f.mem.ListQueuedOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1, "order stays queued until a quote arrives")
}

func TestCancelRacesTrigger(t *testing.T) {
	f := newFixture(t)
	f.seedAccount("a1")

	o, err := f.svc.Create(context.Background(), CreateRequest{
		AccountID:  "a1",
		UserID:     "u1",
		Symbol:     "BTCUSD",
		Side:       types.PositionSideLong,
		Quantity:   d("0.1"),
		Leverage:   10,
		LimitPrice: d("48000"),
	})
	require.NoError(t, err)

	removed, err := f.svc.Cancel(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	// The trigger path arriving after the cancel finds nothing to do.
	f.prices.Set("BTCUSD", d("47000"), d("47100"))
	summary, err := f.proc.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Affected)
	open, err := f.mem.ListOpenPositions(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, open)
}
