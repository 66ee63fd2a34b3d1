// Package queue evaluates pending conditional orders against current
// prices: limit entries waiting for a trigger price, and stop-loss /
// take-profit / trailing stops attached to open positions. Triggered
// orders execute at the observed market price - slippage passes through,
// the configured target is only the arming condition.
package queue

import (
	"context"
	"time"

	"tradearena/internal/metrics"
	"tradearena/internal/model"
	"tradearena/internal/position"
	"tradearena/internal/pricing"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Processor struct {
	store  store.Store
	ledger *position.Service
	prices pricing.Source
	log    *zap.Logger
}

func NewProcessor(st store.Store, ledger *position.Service, prices pricing.Source, log *zap.Logger) *Processor {
	return &Processor{store: st, ledger: ledger, prices: prices, log: log}
}

type Summary struct {
	Checked   int      `json:"checked"`
	Affected  int      `json:"affected"`
	FailedIDs []string `json:"failed_ids"`
}

// Process runs one evaluation cycle over queued limit orders and open
// positions with triggers. Quotes are fetched once per symbol; a symbol
// with no quote is skipped this cycle. Every item is evaluated
// independently: one failure never aborts the batch.
func (p *Processor) Process(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("queue").Observe(time.Since(start).Seconds())
	}()

	quotes := make(map[string]*pricing.Quote)
	summary := Summary{}

	orders, err := p.store.ListQueuedOrders(ctx)
	if err != nil {
		return summary, err
	}
	now := time.Now().UTC()
	for i := range orders {
		o := &orders[i]
		summary.Checked++
		fired, err := p.processOrder(ctx, o, now, quotes)
		if err != nil {
			summary.FailedIDs = append(summary.FailedIDs, o.ID)
			metrics.SweepFailures.WithLabelValues("queue").Inc()
			p.log.Warn("queued order evaluation failed", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if fired {
			summary.Affected++
		}
	}

	positions, err := p.store.ListOpenPositionsWithTriggers(ctx)
	if err != nil {
		return summary, err
	}
	for i := range positions {
		pos := &positions[i]
		summary.Checked++
		fired, err := p.processPosition(ctx, pos, quotes)
		if err != nil {
			summary.FailedIDs = append(summary.FailedIDs, pos.ID)
			metrics.SweepFailures.WithLabelValues("queue").Inc()
			p.log.Warn("trigger evaluation failed", zap.String("position_id", pos.ID), zap.Error(err))
			continue
		}
		if fired {
			summary.Affected++
		}
	}
	return summary, nil
}

func (p *Processor) quoteFor(ctx context.Context, symbol string, quotes map[string]*pricing.Quote) *pricing.Quote {
	if q, ok := quotes[symbol]; ok {
		return q
	}
	q, err := p.prices.GetPrice(ctx, symbol)
	if err != nil {
		quotes[symbol] = nil
		return nil
	}
	quotes[symbol] = &q
	return &q
}

func (p *Processor) processOrder(ctx context.Context, o *model.QueuedOrder, now time.Time, quotes map[string]*pricing.Quote) (bool, error) {
	if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
		_, err := p.store.DeleteQueuedOrder(ctx, o.ID)
		return false, err
	}
	q := p.quoteFor(ctx, o.Symbol, quotes)
	if q == nil {
		return false, nil
	}

	var entry decimal.Decimal
	switch o.Side {
	case types.PositionSideLong:
		if q.Ask.GreaterThan(o.LimitPrice) {
			return false, nil
		}
		entry = q.Ask
	case types.PositionSideShort:
		if q.Bid.LessThan(o.LimitPrice) {
			return false, nil
		}
		entry = q.Bid
	default:
		_, err := p.store.DeleteQueuedOrder(ctx, o.ID)
		return false, err
	}

	// The delete is the trigger's linearization point: a concurrent cycle
	// or a user cancel racing us deletes first and we no-op.
	won, err := p.store.DeleteQueuedOrder(ctx, o.ID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	_, err = p.ledger.Open(ctx, position.OpenRequest{
		AccountID:  o.AccountID,
		UserID:     o.UserID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Leverage:   o.Leverage,
		EntryPrice: entry,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
	})
	if err != nil {
		// The order is consumed either way; a rejected entry (for example
		// insufficient margin by now) is logged, not retried forever.
		p.log.Warn("limit order rejected at trigger", zap.String("order_id", o.ID), zap.Error(err))
		return false, nil
	}
	metrics.QueueTriggers.WithLabelValues("limit_entry").Inc()
	return true, nil
}

func (p *Processor) processPosition(ctx context.Context, pos *model.Position, quotes map[string]*pricing.Quote) (bool, error) {
	q := p.quoteFor(ctx, pos.Symbol, quotes)
	if q == nil {
		return false, nil
	}

	// A long exits on the bid, a short on the ask.
	mark := q.Bid
	if pos.Side == types.PositionSideShort {
		mark = q.Ask
	}

	if reason, ok := triggeredAt(pos, mark); ok {
		res, err := p.ledger.Close(ctx, pos.ID, mark, reason)
		if err != nil {
			return false, err
		}
		if res.AlreadyClosed {
			return false, nil
		}
		metrics.QueueTriggers.WithLabelValues(string(reason)).Inc()
		return true, nil
	}

	if pos.TrailingStop != nil {
		if anchor, improved := ratchetAnchor(pos, mark); improved {
			if err := p.store.UpdateTrailingAnchor(ctx, pos.ID, anchor); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// triggeredAt decides whether mark crosses any configured trigger.
// Stop-loss wins over take-profit when a gap crosses both.
func triggeredAt(pos *model.Position, mark decimal.Decimal) (types.CloseReason, bool) {
	long := pos.Side == types.PositionSideLong
	if pos.StopLoss != nil {
		if long && mark.LessThanOrEqual(*pos.StopLoss) {
			return types.CloseReasonStopLoss, true
		}
		if !long && mark.GreaterThanOrEqual(*pos.StopLoss) {
			return types.CloseReasonStopLoss, true
		}
	}
	if pos.TrailingStop != nil && pos.TrailingAnchor != nil {
		if long && mark.LessThanOrEqual(pos.TrailingAnchor.Sub(*pos.TrailingStop)) {
			return types.CloseReasonStopLoss, true
		}
		if !long && mark.GreaterThanOrEqual(pos.TrailingAnchor.Add(*pos.TrailingStop)) {
			return types.CloseReasonStopLoss, true
		}
	}
	if pos.TakeProfit != nil {
		if long && mark.GreaterThanOrEqual(*pos.TakeProfit) {
			return types.CloseReasonTakeProfit, true
		}
		if !long && mark.LessThanOrEqual(*pos.TakeProfit) {
			return types.CloseReasonTakeProfit, true
		}
	}
	return "", false
}

// ratchetAnchor moves the trailing anchor only in the favorable
// direction: up for a long, down for a short.
func ratchetAnchor(pos *model.Position, mark decimal.Decimal) (decimal.Decimal, bool) {
	if pos.TrailingAnchor == nil {
		return mark, true
	}
	if pos.Side == types.PositionSideLong && mark.GreaterThan(*pos.TrailingAnchor) {
		return mark, true
	}
	if pos.Side == types.PositionSideShort && mark.LessThan(*pos.TrailingAnchor) {
		return mark, true
	}
	return decimal.Zero, false
}
