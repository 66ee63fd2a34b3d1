package model

import (
	"time"

	"tradearena/internal/types"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	ContestID        string              `json:"contest_id"`
	StartingCapital  decimal.Decimal     `json:"starting_capital"`
	CurrentCapital   decimal.Decimal     `json:"current_capital"`
	AvailableCapital decimal.Decimal     `json:"available_capital"`
	UsedMargin       decimal.Decimal     `json:"used_margin"`
	RealizedPnl      decimal.Decimal     `json:"realized_pnl"`
	GrossProfit      decimal.Decimal     `json:"gross_profit"`
	GrossLoss        decimal.Decimal     `json:"gross_loss"`
	TradesCount      int                 `json:"trades_count"`
	WinsCount        int                 `json:"wins_count"`
	LossesCount      int                 `json:"losses_count"`
	OpenPositions    int                 `json:"open_positions"`
	Rank             int                 `json:"rank"`
	Status           types.AccountStatus `json:"status"`
	JoinedAt         time.Time           `json:"joined_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type Position struct {
	ID             string               `json:"id"`
	AccountID      string               `json:"account_id"`
	UserID         string               `json:"user_id"`
	ContestID      string               `json:"contest_id"`
	Symbol         string               `json:"symbol"`
	Side           types.PositionSide   `json:"side"`
	Quantity       decimal.Decimal      `json:"quantity"`
	EntryPrice     decimal.Decimal      `json:"entry_price"`
	Leverage       int                  `json:"leverage"`
	MarginUsed     decimal.Decimal      `json:"margin_used"`
	ContractSize   decimal.Decimal      `json:"contract_size"`
	StopLoss       *decimal.Decimal     `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal     `json:"take_profit,omitempty"`
	TrailingStop   *decimal.Decimal     `json:"trailing_stop,omitempty"`
	TrailingAnchor *decimal.Decimal     `json:"trailing_anchor,omitempty"`
	Status         types.PositionStatus `json:"status"`
	CloseReason    types.CloseReason    `json:"close_reason,omitempty"`
	ExitPrice      *decimal.Decimal     `json:"exit_price,omitempty"`
	RealizedPnl    *decimal.Decimal     `json:"realized_pnl,omitempty"`
	OpenedAt       time.Time            `json:"opened_at"`
	ClosedAt       *time.Time           `json:"closed_at,omitempty"`
}

func (p *Position) IsTerminal() bool {
	return p.Status == types.PositionStatusClosed || p.Status == types.PositionStatusLiquidated
}

type Wallet struct {
	UserID         string          `json:"user_id"`
	CreditBalance  decimal.Decimal `json:"credit_balance"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	TotalWon       decimal.Decimal `json:"total_won"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type WalletTransaction struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Kind          types.WalletTxKind `json:"kind"`
	Amount        decimal.Decimal    `json:"amount"`
	BalanceBefore decimal.Decimal    `json:"balance_before"`
	BalanceAfter  decimal.Decimal    `json:"balance_after"`
	Reference     string             `json:"reference"`
	CreatedAt     time.Time          `json:"created_at"`
}

type QueuedOrder struct {
	ID         string             `json:"id"`
	AccountID  string             `json:"account_id"`
	UserID     string             `json:"user_id"`
	Symbol     string             `json:"symbol"`
	Side       types.PositionSide `json:"side"`
	Quantity   decimal.Decimal    `json:"quantity"`
	Leverage   int                `json:"leverage"`
	LimitPrice decimal.Decimal    `json:"limit_price"`
	StopLoss   *decimal.Decimal   `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal   `json:"take_profit,omitempty"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

type Contest struct {
	ID              string               `json:"id"`
	Kind            types.ContestKind    `json:"kind"`
	Name            string               `json:"name"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         time.Time            `json:"end_time"`
	Status          types.ContestStatus  `json:"status"`
	EntryFee        decimal.Decimal      `json:"entry_fee"`
	PrizePool       decimal.Decimal      `json:"prize_pool"`
	RankingMethod   types.RankingMethod  `json:"ranking_method"`
	TieBreakers     []types.TieBreaker   `json:"tie_breakers"`
	TiePrizePolicy  types.TiePrizePolicy `json:"tie_prize_policy"`
	MinimumTrades   int                  `json:"minimum_trades"`
	MinimumWinRate  *decimal.Decimal     `json:"minimum_win_rate,omitempty"`
	MinimumPnl      *decimal.Decimal     `json:"minimum_pnl,omitempty"`
	MinParticipants int                  `json:"min_participants"`
	FeeRate         decimal.Decimal      `json:"fee_rate"`
	VatRate         decimal.Decimal      `json:"vat_rate"`
}

type TradeRecord struct {
	ID          string             `json:"id"`
	PositionID  string             `json:"position_id"`
	AccountID   string             `json:"account_id"`
	Symbol      string             `json:"symbol"`
	Side        types.PositionSide `json:"side"`
	Quantity    decimal.Decimal    `json:"quantity"`
	EntryPrice  decimal.Decimal    `json:"entry_price"`
	ExitPrice   decimal.Decimal    `json:"exit_price"`
	RealizedPnl decimal.Decimal    `json:"realized_pnl"`
	CloseReason types.CloseReason  `json:"close_reason"`
	ClosedAt    time.Time          `json:"closed_at"`
}

type PositionEvent struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"account_id"`
	PositionID  string            `json:"position_id"`
	Symbol      string            `json:"symbol"`
	CloseReason types.CloseReason `json:"close_reason"`
	RealizedPnl decimal.Decimal   `json:"realized_pnl"`
	ExitPrice   decimal.Decimal   `json:"exit_price"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	DeliveredTo map[string]bool   `json:"-"`
}
