// Package store defines the persistence interface for the risk engine.
// PostgreSQL is the source of truth; an in-memory implementation backs the
// tests. The api and jobs processes share no memory, so every racing
// mutation here is expressed as a conditional update: the loser of a race
// observes "zero rows changed" and no-ops.
package store

import (
	"context"
	"errors"
	"time"

	"tradearena/internal/model"
	"tradearena/internal/pricing"
	"tradearena/internal/settings"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrInsufficientMargin  = errors.New("store: insufficient margin")
	ErrInsufficientBalance = errors.New("store: insufficient balance")
)

// ClosePositionParams carries a fully computed close. The realized P&L is
// computed by the caller from the open snapshot; entry price, quantity and
// margin are immutable while a position is open, so the value cannot go
// stale between read and commit.
type ClosePositionParams struct {
	PositionID  string
	ExitPrice   decimal.Decimal
	RealizedPnl decimal.Decimal
	Reason      types.CloseReason
	ClosedAt    time.Time
	EventTTL    time.Duration
}

// FinalResult is one account's final standing inside a contest.
type FinalResult struct {
	AccountID string
	Rank      int
	Status    types.AccountStatus
}

// Payout is a wallet credit issued during contest settlement.
type Payout struct {
	UserID    string
	Amount    decimal.Decimal
	Kind      types.WalletTxKind
	Reference string
}

type Store interface {
	settings.Source

	// --- Accounts ---

	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]model.Account, error)
	// ListActiveAccounts returns every active account for the margin sweep,
	// including flat ones; an account with no margin in use evaluates to a
	// no-op snapshot.
	ListActiveAccounts(ctx context.Context) ([]model.Account, error)
	ListAccountsByContest(ctx context.Context, contestID string) ([]model.Account, error)
	// SetAccountStatus transitions status only when the current status
	// matches from; reports whether this caller won the transition.
	SetAccountStatus(ctx context.Context, id string, from, to types.AccountStatus) (bool, error)

	// --- Positions ---

	GetPosition(ctx context.Context, id string) (*model.Position, error)
	ListOpenPositions(ctx context.Context, accountID string) ([]model.Position, error)
	// ListOpenPositionsWithTriggers returns open positions carrying a
	// stop-loss, take-profit or trailing stop, across all accounts.
	ListOpenPositionsWithTriggers(ctx context.Context) ([]model.Position, error)
	// OpenPosition atomically debits available capital, adds used margin,
	// bumps the open-position counter and inserts the position. Fails with
	// ErrInsufficientMargin when the account cannot cover the margin.
	OpenPosition(ctx context.Context, p *model.Position) error
	// ClosePosition is the single linearization point for a position's
	// lifecycle: the status flip, the account capital update, the trade
	// record and the position event commit as one unit. The second return
	// reports whether this caller won the open->terminal transition; the
	// loser receives the stored terminal row and must treat the call as a
	// no-op, not an error.
	ClosePosition(ctx context.Context, params ClosePositionParams) (*model.Position, bool, error)
	// UpdateTrailingAnchor ratchets the trailing-stop anchor; it only
	// applies while the position is still open.
	UpdateTrailingAnchor(ctx context.Context, positionID string, anchor decimal.Decimal) error

	ListTradeHistory(ctx context.Context, accountID string, limit int) ([]model.TradeRecord, error)

	// --- Wallets ---

	GetWallet(ctx context.Context, userID string) (*model.Wallet, error)
	// AdjustWalletBalance applies delta atomically, guarded so the balance
	// never goes negative, and appends the immutable transaction record
	// with before/after balances in the same unit of work.
	AdjustWalletBalance(ctx context.Context, userID string, delta decimal.Decimal, kind types.WalletTxKind, reference string) (*model.WalletTransaction, error)
	ListWalletTransactions(ctx context.Context, userID string, limit int) ([]model.WalletTransaction, error)

	// --- Queued orders ---

	CreateQueuedOrder(ctx context.Context, o *model.QueuedOrder) error
	GetQueuedOrder(ctx context.Context, id string) (*model.QueuedOrder, error)
	// DeleteQueuedOrder reports whether the row was still present; the
	// trigger path and a user cancel can race, one of them wins.
	DeleteQueuedOrder(ctx context.Context, id string) (bool, error)
	ListQueuedOrders(ctx context.Context) ([]model.QueuedOrder, error)
	ListQueuedOrdersByAccount(ctx context.Context, accountID string) ([]model.QueuedOrder, error)

	// --- Contests ---

	GetContest(ctx context.Context, id string) (*model.Contest, error)
	ListDueContests(ctx context.Context, now time.Time) ([]model.Contest, error)
	ListExpirableContests(ctx context.Context, now time.Time) ([]model.Contest, error)
	// FinalizeContest commits the active->completed flip, the final ranks
	// and statuses, and the prize payouts as one unit. Returns false when
	// the contest was no longer active (already finalized elsewhere).
	FinalizeContest(ctx context.Context, contestID string, results []FinalResult, payouts []Payout) (bool, error)
	// ExpireContest flips pending->expired and refunds stakes as one unit.
	ExpireContest(ctx context.Context, contestID string, refunds []Payout) (bool, error)

	// --- Quotes ---

	// UpsertQuote stores the latest quote for a symbol.
	UpsertQuote(ctx context.Context, q pricing.Quote) error
	GetQuote(ctx context.Context, symbol string) (pricing.Quote, error)

	// --- Position events ---

	// TakePositionEvents returns unexpired events for the account not yet
	// delivered to subscriberID and marks them delivered to it. Delivery
	// is at-most-once per subscriber, best effort.
	TakePositionEvents(ctx context.Context, accountID, subscriberID string, now time.Time) ([]model.PositionEvent, error)
}
