// Package position owns the lifecycle of a trading position: open, close,
// and the capital bookkeeping on the owning account. Closing is idempotent:
// the live price path and the scheduler sweep may both try to close the
// same position, and exactly one of them wins the status transition.
package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradearena/internal/metrics"
	"tradearena/internal/model"
	"tradearena/internal/pricing"
	"tradearena/internal/settings"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientMargin = store.ErrInsufficientMargin
	ErrNotFound           = store.ErrNotFound
)

type Service struct {
	store  store.Store
	prices pricing.Source
	log    *zap.Logger
}

func NewService(st store.Store, prices pricing.Source, log *zap.Logger) *Service {
	return &Service{store: st, prices: prices, log: log}
}

type OpenRequest struct {
	AccountID    string
	UserID       string
	Symbol       string
	Side         types.PositionSide
	Quantity     decimal.Decimal
	Leverage     int
	EntryPrice   decimal.Decimal
	ContractSize decimal.Decimal
	StopLoss     *decimal.Decimal
	TakeProfit   *decimal.Decimal
	TrailingStop *decimal.Decimal
}

type CloseResult struct {
	Position      *model.Position
	RealizedPnl   decimal.Decimal
	AlreadyClosed bool
}

// Open validates the request and opens the position, debiting available
// capital by the computed margin atomically. EntryPrice must be the
// observed market price; use OpenAtMarket on the live path.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*model.Position, error) {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("quantity must be positive")
	}
	if req.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be positive")
	}
	if req.Side != types.PositionSideLong && req.Side != types.PositionSideShort {
		return nil, errors.New("invalid side")
	}

	cfg := settings.LoadOrDefault(ctx, s.store)
	if req.Leverage < cfg.MinLeverage || req.Leverage > cfg.MaxLeverage {
		return nil, fmt.Errorf("leverage must be between %d and %d", cfg.MinLeverage, cfg.MaxLeverage)
	}
	if req.Quantity.GreaterThan(cfg.MaxPositionQty) {
		return nil, fmt.Errorf("max position size is %s", cfg.MaxPositionQty.String())
	}
	if err := validateTriggers(req); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && account.UserID != req.UserID {
		return nil, ErrNotFound
	}
	if account.Status != types.AccountStatusActive {
		return nil, errors.New("account is not active")
	}
	if account.OpenPositions >= cfg.MaxOpenPerAcct {
		return nil, fmt.Errorf("max open positions reached (%d)", cfg.MaxOpenPerAcct)
	}

	contractSize := req.ContractSize
	if contractSize.LessThanOrEqual(decimal.Zero) {
		contractSize = DefaultContractSize(req.Symbol)
	}
	notional := req.EntryPrice.Mul(req.Quantity).Mul(contractSize)
	if notional.GreaterThan(cfg.MaxNotionalUSD) {
		return nil, fmt.Errorf("max notional per position is %s USD", cfg.MaxNotionalUSD.String())
	}
	marginUsed := notional.Div(decimal.NewFromInt(int64(req.Leverage)))
	if account.AvailableCapital.LessThan(marginUsed) {
		return nil, ErrInsufficientMargin
	}

	p := &model.Position{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		UserID:       account.UserID,
		ContestID:    account.ContestID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		EntryPrice:   req.EntryPrice,
		Leverage:     req.Leverage,
		MarginUsed:   marginUsed,
		ContractSize: contractSize,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		TrailingStop: req.TrailingStop,
		Status:       types.PositionStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
	if req.TrailingStop != nil {
		anchor := req.EntryPrice
		p.TrailingAnchor = &anchor
	}
	if err := s.store.OpenPosition(ctx, p); err != nil {
		return nil, err
	}
	metrics.PositionsOpened.Inc()
	s.log.Info("position opened",
		zap.String("position_id", p.ID),
		zap.String("account_id", p.AccountID),
		zap.String("symbol", p.Symbol),
		zap.String("side", string(p.Side)),
		zap.String("margin_used", marginUsed.String()),
	)
	return p, nil
}

// OpenAtMarket resolves the entry price from the price source: ask for a
// long, bid for a short.
func (s *Service) OpenAtMarket(ctx context.Context, req OpenRequest) (*model.Position, error) {
	q, err := s.prices.GetPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("quote for %s: %w", req.Symbol, err)
	}
	if req.Side == types.PositionSideShort {
		req.EntryPrice = q.Bid
	} else {
		req.EntryPrice = q.Ask
	}
	return s.Open(ctx, req)
}

// Close settles a position at exitPrice. Closing an already-terminal
// position is a no-op returning the stored prior result: both the live
// path and the scheduler race to close the same records and the loser
// must not double-apply capital.
func (s *Service) Close(ctx context.Context, positionID string, exitPrice decimal.Decimal, reason types.CloseReason) (*CloseResult, error) {
	p, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	// Terminal first: a redundant close call must return the stored prior
	// result even when it carries a garbage price.
	if p.IsTerminal() {
		return priorResult(p), nil
	}
	if exitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("exit price must be positive")
	}

	cfg := settings.LoadOrDefault(ctx, s.store)
	pnl := Pnl(p.Side, p.EntryPrice, exitPrice, p.Quantity, p.ContractSize)
	closed, won, err := s.store.ClosePosition(ctx, store.ClosePositionParams{
		PositionID:  positionID,
		ExitPrice:   exitPrice,
		RealizedPnl: pnl,
		Reason:      reason,
		ClosedAt:    time.Now().UTC(),
		EventTTL:    time.Duration(cfg.EventTTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return priorResult(closed), nil
	}
	metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()
	s.log.Info("position closed",
		zap.String("position_id", closed.ID),
		zap.String("account_id", closed.AccountID),
		zap.String("reason", string(reason)),
		zap.String("realized_pnl", pnl.String()),
	)
	return &CloseResult{Position: closed, RealizedPnl: pnl}, nil
}

func priorResult(p *model.Position) *CloseResult {
	res := &CloseResult{Position: p, AlreadyClosed: true}
	if p.RealizedPnl != nil {
		res.RealizedPnl = *p.RealizedPnl
	}
	return res
}

// CloseAtMarket closes at the current observed price: bid for a long,
// ask for a short. Triggered stops also settle at the observed price,
// not the configured target (slippage is passed through).
func (s *Service) CloseAtMarket(ctx context.Context, positionID string, reason types.CloseReason) (*CloseResult, error) {
	p, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() {
		return priorResult(p), nil
	}
	q, err := s.prices.GetPrice(ctx, p.Symbol)
	if err != nil {
		return nil, fmt.Errorf("quote for %s: %w", p.Symbol, err)
	}
	exit := q.Bid
	if p.Side == types.PositionSideShort {
		exit = q.Ask
	}
	return s.Close(ctx, positionID, exit, reason)
}

func (s *Service) Get(ctx context.Context, positionID string) (*model.Position, error) {
	return s.store.GetPosition(ctx, positionID)
}

func (s *Service) ListOpen(ctx context.Context, accountID string) ([]model.Position, error) {
	return s.store.ListOpenPositions(ctx, accountID)
}

func (s *Service) TradeHistory(ctx context.Context, accountID string, limit int) ([]model.TradeRecord, error) {
	return s.store.ListTradeHistory(ctx, accountID, limit)
}

// Events returns unexpired close events not yet delivered to subscriberID.
func (s *Service) Events(ctx context.Context, accountID, subscriberID string) ([]model.PositionEvent, error) {
	return s.store.TakePositionEvents(ctx, accountID, subscriberID, time.Now().UTC())
}

// Pnl books profit or loss for a filled quantity between two prices.
func Pnl(side types.PositionSide, entry, exit, qty, contractSize decimal.Decimal) decimal.Decimal {
	size := qty.Mul(contractSize)
	if side == types.PositionSideShort {
		return entry.Sub(exit).Mul(size)
	}
	return exit.Sub(entry).Mul(size)
}

// UnrealizedPnl marks an open position against the current quote: bid for
// a long exit, ask for a short exit.
func UnrealizedPnl(p *model.Position, q pricing.Quote) decimal.Decimal {
	mark := q.Bid
	if p.Side == types.PositionSideShort {
		mark = q.Ask
	}
	return Pnl(p.Side, p.EntryPrice, mark, p.Quantity, p.ContractSize)
}

// DefaultContractSize assumes standard FX lots for slash-quoted currency
// pairs and unit contracts otherwise.
func DefaultContractSize(symbol string) decimal.Decimal {
	if len(symbol) == 7 && strings.Count(symbol, "/") == 1 {
		return decimal.NewFromInt(100000)
	}
	return decimal.NewFromInt(1)
}

func validateTriggers(req OpenRequest) error {
	entry := req.EntryPrice
	long := req.Side == types.PositionSideLong
	if req.StopLoss != nil {
		if req.StopLoss.LessThanOrEqual(decimal.Zero) {
			return errors.New("invalid stop loss")
		}
		if long && req.StopLoss.GreaterThanOrEqual(entry) {
			return errors.New("stop loss must be below entry for a long")
		}
		if !long && req.StopLoss.LessThanOrEqual(entry) {
			return errors.New("stop loss must be above entry for a short")
		}
	}
	if req.TakeProfit != nil {
		if req.TakeProfit.LessThanOrEqual(decimal.Zero) {
			return errors.New("invalid take profit")
		}
		if long && req.TakeProfit.LessThanOrEqual(entry) {
			return errors.New("take profit must be above entry for a long")
		}
		if !long && req.TakeProfit.GreaterThanOrEqual(entry) {
			return errors.New("take profit must be below entry for a short")
		}
	}
	if req.TrailingStop != nil && req.TrailingStop.LessThanOrEqual(decimal.Zero) {
		return errors.New("invalid trailing stop")
	}
	return nil
}
