package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradearena/internal/model"
	"tradearena/internal/settings"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNotFound = store.ErrNotFound

// Service is the user-facing side of the order queue: placing and
// cancelling resting limit orders. The Processor consumes the rows it
// creates.
type Service struct {
	store store.Store
	log   *zap.Logger
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{store: st, log: log}
}

type CreateRequest struct {
	AccountID  string
	UserID     string
	Symbol     string
	Side       types.PositionSide
	Quantity   decimal.Decimal
	Leverage   int
	LimitPrice decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	TTL        time.Duration
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.QueuedOrder, error) {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("quantity must be positive")
	}
	if req.LimitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("limit price must be positive")
	}
	if req.Side != types.PositionSideLong && req.Side != types.PositionSideShort {
		return nil, errors.New("invalid side")
	}
	cfg := settings.LoadOrDefault(ctx, s.store)
	if req.Leverage < cfg.MinLeverage || req.Leverage > cfg.MaxLeverage {
		return nil, fmt.Errorf("leverage must be between %d and %d", cfg.MinLeverage, cfg.MaxLeverage)
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

	now := time.Now().UTC()
	o := &model.QueuedOrder{
		ID:         uuid.New().String(),
		AccountID:  account.ID,
		UserID:     account.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Leverage:   req.Leverage,
		LimitPrice: req.LimitPrice,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		CreatedAt:  now,
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.QueuedOrderTTL) * time.Hour
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		o.ExpiresAt = &expires
	}
	if err := s.store.CreateQueuedOrder(ctx, o); err != nil {
		return nil, err
	}
	s.log.Info("limit order queued",
		zap.String("order_id", o.ID),
		zap.String("account_id", o.AccountID),
		zap.String("symbol", o.Symbol),
		zap.String("limit_price", o.LimitPrice.String()),
	)
	return o, nil
}

// Cancel removes a resting order. A false second return means the order
// was already consumed, by the trigger path or by an earlier cancel.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (bool, error) {
	o, err := s.store.GetQueuedOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.UserID != userID {
		return false, ErrNotFound
	}
	return s.store.DeleteQueuedOrder(ctx, orderID)
}

func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]model.QueuedOrder, error) {
	return s.store.ListQueuedOrdersByAccount(ctx, accountID)
}
