// Package risk drives margin evaluation and forced liquidation. The same
// executor serves two triggers: the live per-request evaluation in the api
// process and the periodic backup sweep in the jobs process. Correctness
// under that race rests on the ledger's conditional close, not on locking.
package risk

import (
	"context"
	"time"

	"tradearena/internal/margin"
	"tradearena/internal/metrics"
	"tradearena/internal/model"
	"tradearena/internal/notify"
	"tradearena/internal/position"
	"tradearena/internal/pricing"
	"tradearena/internal/settings"
	"tradearena/internal/store"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Executor struct {
	store    store.Store
	ledger   *position.Service
	prices   pricing.Source
	notifier notify.Notifier
	log      *zap.Logger
}

func NewExecutor(st store.Store, ledger *position.Service, prices pricing.Source, notifier notify.Notifier, log *zap.Logger) *Executor {
	return &Executor{store: st, ledger: ledger, prices: prices, notifier: notifier, log: log}
}

// Snapshot is one account's margin health at evaluation time.
type Snapshot struct {
	Account       *model.Account     `json:"account"`
	Equity        decimal.Decimal    `json:"equity"`
	UnrealizedPnl decimal.Decimal    `json:"unrealized_pnl"`
	FreeMargin    decimal.Decimal    `json:"free_margin"`
	MarginLevel   decimal.Decimal    `json:"margin_level"`
	Status        types.MarginStatus `json:"status"`
	NoMarginUsed  bool               `json:"no_margin_used"`
	Liquidated    bool               `json:"liquidated"`
}

// SweepSummary reports one scheduled invocation for observability.
type SweepSummary struct {
	Checked   int      `json:"checked"`
	Affected  int      `json:"affected"`
	FailedIDs []string `json:"failed_ids"`
}

// EvaluateAccount recomputes margin health from current capital and
// quotes; nothing incremental is stored between evaluations. On a breach
// it closes every open position with reason margin_call. Positions whose
// symbol has no quote this cycle keep their entry mark and stay open for
// the next sweep.
func (e *Executor) EvaluateAccount(ctx context.Context, accountID string) (*Snapshot, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	open, err := e.store.ListOpenPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	unrealized := decimal.Zero
	marks := make(map[string]decimal.Decimal, len(open))
	for i := range open {
		p := &open[i]
		q, err := e.prices.GetPrice(ctx, p.Symbol)
		if err != nil {
			// Unavailable quote: skip the symbol this cycle, never
			// treat it as a zero price.
			continue
		}
		unrealized = unrealized.Add(position.UnrealizedPnl(p, q))
		mark := q.Bid
		if p.Side == types.PositionSideShort {
			mark = q.Ask
		}
		marks[p.ID] = mark
	}

	cfg := settings.LoadOrDefault(ctx, e.store)
	snap := margin.Evaluate(account.CurrentCapital, unrealized, account.UsedMargin, cfg.Thresholds)
	result := &Snapshot{
		Account:       account,
		Equity:        snap.Equity,
		UnrealizedPnl: unrealized,
		FreeMargin:    snap.Equity.Sub(account.UsedMargin),
		MarginLevel:   snap.Level,
		Status:        snap.Status,
		NoMarginUsed:  snap.NoMarginUsed,
	}

	switch snap.Status {
	case types.MarginStatusWarning:
		e.notifier.MarginWarning(ctx, account.UserID, snap.Level)
	case types.MarginStatusDanger:
		// Escalate once the level falls through the margin-call line.
		if snap.Level.LessThanOrEqual(cfg.Thresholds.MarginCall) {
			e.notifier.MarginCall(ctx, account.UserID, snap.Level)
		} else {
			e.notifier.MarginWarning(ctx, account.UserID, snap.Level)
		}
	case types.MarginStatusLiquidation:
		liquidated, err := e.liquidate(ctx, account, open, marks)
		if err != nil {
			return result, err
		}
		result.Liquidated = liquidated
	}
	return result, nil
}

// liquidate closes every priced open position with reason margin_call.
// Each close is individually idempotent, so a concurrent sweep doing the
// same work degrades to no-ops. The account flips to liquidated only once
// it is flat.
func (e *Executor) liquidate(ctx context.Context, account *model.Account, open []model.Position, marks map[string]decimal.Decimal) (bool, error) {
	closedAny := false
	for i := range open {
		p := &open[i]
		mark, ok := marks[p.ID]
		if !ok {
			continue
		}
		res, err := e.ledger.Close(ctx, p.ID, mark, types.CloseReasonMarginCall)
		if err != nil {
			e.log.Warn("liquidation close failed",
				zap.String("position_id", p.ID),
				zap.String("account_id", account.ID),
				zap.Error(err),
			)
			continue
		}
		if !res.AlreadyClosed {
			closedAny = true
			e.notifier.Liquidation(ctx, account.UserID, p.Symbol)
		}
	}

	remaining, err := e.store.ListOpenPositions(ctx, account.ID)
	if err != nil {
		return closedAny, err
	}
	if len(remaining) > 0 {
		return closedAny, nil
	}
	won, err := e.store.SetAccountStatus(ctx, account.ID, types.AccountStatusActive, types.AccountStatusLiquidated)
	if err != nil {
		return closedAny, err
	}
	if won {
		metrics.AccountsLiquidated.Inc()
		e.log.Info("account liquidated", zap.String("account_id", account.ID))
	}
	// A racing sweep that already flipped the status and closed everything
	// counted this account; losing both the closes and the CAS means this
	// caller did no work.
	return won || closedAny, nil
}

// SweepAll is the backup margin sweep. Per-account failures are collected
// and retried on the next tick; they never abort the batch.
func (e *Executor) SweepAll(ctx context.Context) (SweepSummary, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("margin").Observe(time.Since(start).Seconds())
	}()

	accounts, err := e.store.ListActiveAccounts(ctx)
	if err != nil {
		return SweepSummary{}, err
	}
	summary := SweepSummary{Checked: len(accounts)}
	for _, a := range accounts {
		snap, err := e.EvaluateAccount(ctx, a.ID)
		if err != nil {
			summary.FailedIDs = append(summary.FailedIDs, a.ID)
			metrics.SweepFailures.WithLabelValues("margin").Inc()
			e.log.Warn("margin sweep failed for account", zap.String("account_id", a.ID), zap.Error(err))
			continue
		}
		if snap.Liquidated {
			summary.Affected++
		}
	}
	return summary, nil
}
