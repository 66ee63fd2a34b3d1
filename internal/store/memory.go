package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradearena/internal/model"
	"tradearena/internal/pricing"
	"tradearena/internal/settings"
	"tradearena/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-memory Store used by tests. It reproduces the conditional
// -update semantics of the Postgres implementation under a single mutex, so
// racing callers still degrade to "one wins, one no-ops".
type Memory struct {
	mu          sync.Mutex
	accounts    map[string]*model.Account
	positions   map[string]*model.Position
	wallets     map[string]*model.Wallet
	walletTxs   []model.WalletTransaction
	queued      map[string]*model.QueuedOrder
	contests    map[string]*model.Contest
	trades      []model.TradeRecord
	events      []*model.PositionEvent
	quotes      map[string]pricing.Quote
	cfg         *settings.Settings
	SettingsErr error
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]*model.Account),
		positions: make(map[string]*model.Position),
		wallets:   make(map[string]*model.Wallet),
		queued:    make(map[string]*model.QueuedOrder),
		contests:  make(map[string]*model.Contest),
		quotes:    make(map[string]pricing.Quote),
	}
}

// --- Seed helpers for tests ---

func (m *Memory) SeedAccount(a model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	m.accounts[a.ID] = &a
}

func (m *Memory) SeedWallet(w model.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.UserID] = &w
}

func (m *Memory) SeedContest(c model.Contest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.contests[c.ID] = &c
}

func (m *Memory) SeedSettings(cfg settings.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = &cfg
}

// --- Accounts ---

func (m *Memory) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListAccountsByUser(ctx context.Context, userID string) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (m *Memory) ListActiveAccounts(ctx context.Context) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Account
	for _, a := range m.accounts {
		if a.Status == types.AccountStatusActive {
			out = append(out, *a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (m *Memory) ListAccountsByContest(ctx context.Context, contestID string) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Account
	for _, a := range m.accounts {
		if a.ContestID == contestID {
			out = append(out, *a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func sortAccounts(accounts []model.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].JoinedAt.Equal(accounts[j].JoinedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].JoinedAt.Before(accounts[j].JoinedAt)
	})
}

func (m *Memory) SetAccountStatus(ctx context.Context, id string, from, to types.AccountStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

// --- Positions ---

func (m *Memory) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListOpenPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for _, p := range m.positions {
		if p.AccountID == accountID && p.Status == types.PositionStatusOpen {
			out = append(out, *p)
		}
	}
	sortPositions(out)
	return out, nil
}

func (m *Memory) ListOpenPositionsWithTriggers(ctx context.Context) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for _, p := range m.positions {
		if p.Status != types.PositionStatusOpen {
			continue
		}
		if p.StopLoss != nil || p.TakeProfit != nil || p.TrailingStop != nil {
			out = append(out, *p)
		}
	}
	sortPositions(out)
	return out, nil
}

func sortPositions(positions []model.Position) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Symbol != positions[j].Symbol {
			return positions[i].Symbol < positions[j].Symbol
		}
		if positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
}

func (m *Memory) OpenPosition(ctx context.Context, p *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[p.AccountID]
	if !ok {
		return ErrNotFound
	}
	if a.Status != types.AccountStatusActive || a.AvailableCapital.LessThan(p.MarginUsed) {
		return ErrInsufficientMargin
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	a.AvailableCapital = a.AvailableCapital.Sub(p.MarginUsed)
	a.UsedMargin = a.UsedMargin.Add(p.MarginUsed)
	a.OpenPositions++
	a.UpdatedAt = time.Now().UTC()
	cp := *p
	cp.Status = types.PositionStatusOpen
	m.positions[cp.ID] = &cp
	return nil
}

func (m *Memory) ClosePosition(ctx context.Context, params ClosePositionParams) (*model.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[params.PositionID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if p.Status != types.PositionStatusOpen {
		cp := *p
		return &cp, false, nil
	}

	status := types.PositionStatusClosed
	if params.Reason == types.CloseReasonMarginCall {
		status = types.PositionStatusLiquidated
	}
	exit := params.ExitPrice
	pnl := params.RealizedPnl
	closedAt := params.ClosedAt
	p.Status = status
	p.CloseReason = params.Reason
	p.ExitPrice = &exit
	p.RealizedPnl = &pnl
	p.ClosedAt = &closedAt

	if a, ok := m.accounts[p.AccountID]; ok {
		a.CurrentCapital = a.CurrentCapital.Add(pnl)
		a.AvailableCapital = a.AvailableCapital.Add(pnl).Add(p.MarginUsed)
		a.UsedMargin = a.UsedMargin.Sub(p.MarginUsed)
		a.RealizedPnl = a.RealizedPnl.Add(pnl)
		if pnl.GreaterThan(decimal.Zero) {
			a.GrossProfit = a.GrossProfit.Add(pnl)
		} else {
			a.GrossLoss = a.GrossLoss.Add(pnl)
		}
		a.TradesCount++
		if pnl.GreaterThan(decimal.Zero) {
			a.WinsCount++
		} else {
			a.LossesCount++
		}
		a.OpenPositions--
		a.UpdatedAt = time.Now().UTC()
	}

	m.trades = append(m.trades, model.TradeRecord{
		ID:          uuid.New().String(),
		PositionID:  p.ID,
		AccountID:   p.AccountID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Quantity:    p.Quantity,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   exit,
		RealizedPnl: pnl,
		CloseReason: params.Reason,
		ClosedAt:    closedAt,
	})
	m.events = append(m.events, &model.PositionEvent{
		ID:          uuid.New().String(),
		AccountID:   p.AccountID,
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		CloseReason: params.Reason,
		RealizedPnl: pnl,
		ExitPrice:   exit,
		CreatedAt:   closedAt,
		ExpiresAt:   closedAt.Add(params.EventTTL),
		DeliveredTo: make(map[string]bool),
	})

	cp := *p
	return &cp, true, nil
}

func (m *Memory) UpdateTrailingAnchor(ctx context.Context, positionID string, anchor decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionID]
	if !ok || p.Status != types.PositionStatusOpen {
		return nil
	}
	a := anchor
	p.TrailingAnchor = &a
	return nil
}

func (m *Memory) ListTradeHistory(ctx context.Context, accountID string, limit int) ([]model.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TradeRecord
	for i := len(m.trades) - 1; i >= 0; i-- {
		if m.trades[i].AccountID == accountID {
			out = append(out, m.trades[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- Wallets ---

func (m *Memory) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *Memory) AdjustWalletBalance(ctx context.Context, userID string, delta decimal.Decimal, kind types.WalletTxKind, reference string) (*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustWalletLocked(userID, delta, kind, reference)
}

func (m *Memory) adjustWalletLocked(userID string, delta decimal.Decimal, kind types.WalletTxKind, reference string) (*model.WalletTransaction, error) {
	w, ok := m.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	after := w.CreditBalance.Add(delta)
	if after.IsNegative() {
		return nil, ErrInsufficientBalance
	}
	before := w.CreditBalance
	w.CreditBalance = after
	switch kind {
	case types.WalletTxDeposit:
		w.TotalDeposited = w.TotalDeposited.Add(delta)
	case types.WalletTxWithdraw:
		w.TotalWithdrawn = w.TotalWithdrawn.Sub(delta)
	case types.WalletTxStake:
		w.TotalSpent = w.TotalSpent.Sub(delta)
	case types.WalletTxPrize:
		w.TotalWon = w.TotalWon.Add(delta)
	}
	w.UpdatedAt = time.Now().UTC()
	record := model.WalletTransaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		Kind:          kind,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
		CreatedAt:     time.Now().UTC(),
	}
	m.walletTxs = append(m.walletTxs, record)
	return &record, nil
}

func (m *Memory) ListWalletTransactions(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WalletTransaction
	for i := len(m.walletTxs) - 1; i >= 0; i-- {
		if m.walletTxs[i].UserID == userID {
			out = append(out, m.walletTxs[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- Queued orders ---

func (m *Memory) CreateQueuedOrder(ctx context.Context, o *model.QueuedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	cp := *o
	m.queued[cp.ID] = &cp
	return nil
}

func (m *Memory) GetQueuedOrder(ctx context.Context, id string) (*model.QueuedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.queued[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) DeleteQueuedOrder(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queued[id]; !ok {
		return false, nil
	}
	delete(m.queued, id)
	return true, nil
}

func (m *Memory) ListQueuedOrders(ctx context.Context) ([]model.QueuedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QueuedOrder
	for _, o := range m.queued {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListQueuedOrdersByAccount(ctx context.Context, accountID string) ([]model.QueuedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QueuedOrder
	for _, o := range m.queued {
		if o.AccountID == accountID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Contests ---

func (m *Memory) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListDueContests(ctx context.Context, now time.Time) ([]model.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Contest
	for _, c := range m.contests {
		if c.Status == types.ContestStatusActive && !c.EndTime.After(now) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (m *Memory) ListExpirableContests(ctx context.Context, now time.Time) ([]model.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Contest
	for _, c := range m.contests {
		if c.Status == types.ContestStatusPending && !c.StartTime.After(now) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Memory) FinalizeContest(ctx context.Context, contestID string, results []FinalResult, payouts []Payout) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok || c.Status != types.ContestStatusActive {
		return false, nil
	}
	c.Status = types.ContestStatusCompleted
	for _, r := range results {
		if a, ok := m.accounts[r.AccountID]; ok {
			a.Rank = r.Rank
			a.Status = r.Status
			a.UpdatedAt = time.Now().UTC()
		}
	}
	for _, p := range payouts {
		if _, err := m.adjustWalletLocked(p.UserID, p.Amount, p.Kind, p.Reference); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (m *Memory) ExpireContest(ctx context.Context, contestID string, refunds []Payout) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok || c.Status != types.ContestStatusPending {
		return false, nil
	}
	c.Status = types.ContestStatusExpired
	for _, a := range m.accounts {
		if a.ContestID == contestID {
			a.Status = types.AccountStatusRefunded
			a.UpdatedAt = time.Now().UTC()
		}
	}
	for _, p := range refunds {
		if _, err := m.adjustWalletLocked(p.UserID, p.Amount, p.Kind, p.Reference); err != nil {
			return false, err
		}
	}
	return true, nil
}

// --- Position events ---

func (m *Memory) TakePositionEvents(ctx context.Context, accountID, subscriberID string, now time.Time) ([]model.PositionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PositionEvent
	for _, e := range m.events {
		if e.AccountID != accountID || !e.ExpiresAt.After(now) || e.DeliveredTo[subscriberID] {
			continue
		}
		e.DeliveredTo[subscriberID] = true
		out = append(out, *e)
	}
	return out, nil
}

// --- Settings ---

func (m *Memory) LoadSettings(ctx context.Context) (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SettingsErr != nil {
		return settings.Defaults(), m.SettingsErr
	}
	if m.cfg == nil {
		return settings.Defaults(), nil
	}
	return *m.cfg, nil
}

// --- Quotes ---

func (m *Memory) UpsertQuote(ctx context.Context, q pricing.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
	return nil
}

func (m *Memory) GetQuote(ctx context.Context, symbol string) (pricing.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return pricing.Quote{}, ErrNotFound
	}
	return q, nil
}
