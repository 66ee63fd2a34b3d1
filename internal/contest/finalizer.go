// Package contest settles time-bounded competitions and 1:1 challenges:
// it flattens remaining positions, applies qualification gates, ranks
// participants, resolves ties, and credits prize money to wallets. The
// active->completed flip is conditional, so re-finalizing an already
// completed contest is a no-op - the scheduler may legitimately revisit a
// contest after a crash.
package contest

import (
	"context"
	"fmt"
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

type Finalizer struct {
	store  store.Store
	ledger *position.Service
	prices pricing.Source
	log    *zap.Logger
}

func NewFinalizer(st store.Store, ledger *position.Service, prices pricing.Source, log *zap.Logger) *Finalizer {
	return &Finalizer{store: st, ledger: ledger, prices: prices, log: log}
}

type Summary struct {
	Checked   int      `json:"checked"`
	Affected  int      `json:"affected"`
	FailedIDs []string `json:"failed_ids"`
}

// Prize shares by final place. Fewer qualifiers than places renormalizes
// over the occupied places.
var placeShares = []decimal.Decimal{
	decimal.New(50, -2),
	decimal.New(30, -2),
	decimal.New(20, -2),
}

// FinalizeDue settles every active contest past its end time. Per-contest
// failures are isolated; the failing contest is retried next tick.
func (f *Finalizer) FinalizeDue(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues("contest").Observe(time.Since(start).Seconds())
	}()

	due, err := f.store.ListDueContests(ctx, time.Now().UTC())
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Checked: len(due)}
	for i := range due {
		done, err := f.Finalize(ctx, &due[i])
		if err != nil {
			summary.FailedIDs = append(summary.FailedIDs, due[i].ID)
			metrics.SweepFailures.WithLabelValues("contest").Inc()
			f.log.Warn("contest finalize failed", zap.String("contest_id", due[i].ID), zap.Error(err))
			continue
		}
		if done {
			summary.Affected++
		}
	}
	return summary, nil
}

// Finalize settles one contest. Returns false when another finalizer
// already completed it.
func (f *Finalizer) Finalize(ctx context.Context, c *model.Contest) (bool, error) {
	if c.Status != types.ContestStatusActive {
		return false, nil
	}

	accounts, err := f.store.ListAccountsByContest(ctx, c.ID)
	if err != nil {
		return false, err
	}

	// Flatten whatever is still open so final capital is fully realized.
	for i := range accounts {
		if err := f.flatten(ctx, &accounts[i]); err != nil {
			return false, err
		}
	}
	// Reload: flattening moved capital.
	accounts, err = f.store.ListAccountsByContest(ctx, c.ID)
	if err != nil {
		return false, err
	}

	var qualified []*model.Account
	var results []store.FinalResult
	for i := range accounts {
		a := &accounts[i]
		switch a.Status {
		case types.AccountStatusActive, types.AccountStatusLiquidated:
		default:
			continue // already settled or refunded
		}
		if qualifies(a, c) {
			qualified = append(qualified, a)
			continue
		}
		results = append(results, store.FinalResult{
			AccountID: a.ID,
			Rank:      0,
			Status:    types.AccountStatusDisqualified,
		})
	}

	standings := rank(qualified, c.RankingMethod, c.TieBreakers)
	payouts, draw := f.buildPayouts(c, standings)
	for i, s := range standings {
		status := types.AccountStatusCompleted
		if s.account.Status == types.AccountStatusLiquidated {
			status = types.AccountStatusLiquidated
		}
		if draw {
			status = types.AccountStatusRefunded
		}
		results = append(results, store.FinalResult{
			AccountID: s.account.ID,
			Rank:      i + 1,
			Status:    status,
		})
	}

	won, err := f.store.FinalizeContest(ctx, c.ID, results, payouts)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	metrics.ContestsFinalized.Inc()
	f.log.Info("contest finalized",
		zap.String("contest_id", c.ID),
		zap.Int("participants", len(accounts)),
		zap.Int("qualified", len(qualified)),
		zap.Int("payouts", len(payouts)),
	)
	return true, nil
}

// flatten closes every open position with reason contest_end. With no
// quote available the position settles at its entry price so settlement
// can always complete.
func (f *Finalizer) flatten(ctx context.Context, a *model.Account) error {
	open, err := f.store.ListOpenPositions(ctx, a.ID)
	if err != nil {
		return err
	}
	for i := range open {
		p := &open[i]
		exit := p.EntryPrice
		if q, err := f.prices.GetPrice(ctx, p.Symbol); err == nil {
			exit = q.Bid
			if p.Side == types.PositionSideShort {
				exit = q.Ask
			}
		}
		if _, err := f.ledger.Close(ctx, p.ID, exit, types.CloseReasonContestEnd); err != nil {
			return fmt.Errorf("flatten position %s: %w", p.ID, err)
		}
	}
	return nil
}

func qualifies(a *model.Account, c *model.Contest) bool {
	if a.TradesCount < c.MinimumTrades {
		return false
	}
	if c.MinimumWinRate != nil && winRate(a).LessThan(*c.MinimumWinRate) {
		return false
	}
	if c.MinimumPnl != nil && a.RealizedPnl.LessThan(*c.MinimumPnl) {
		return false
	}
	return true
}

// buildPayouts turns final standings into wallet credits. For a 1:1
// challenge the winner takes the pot; a full draw refunds both stakes.
// For competitions the prize pool pays the top places, with exhausted-tie
// groups resolved by the contest's tie prize policy. Every payout is
// net of the configured fee and VAT, rounded to cents.
func (f *Finalizer) buildPayouts(c *model.Contest, standings []standing) ([]store.Payout, bool) {
	if len(standings) == 0 {
		return nil, false
	}

	if c.Kind == types.ContestKindChallenge {
		if len(standings) >= 2 && standings[0].tieGroup == standings[1].tieGroup {
			// Dead heat after the whole tie-break chain: stakes go back.
			refunds := make([]store.Payout, 0, len(standings))
			for _, s := range standings {
				refunds = append(refunds, store.Payout{
					UserID:    s.account.UserID,
					Amount:    c.EntryFee,
					Kind:      types.WalletTxRefund,
					Reference: "challenge:" + c.ID + ":draw",
				})
			}
			return refunds, true
		}
		net := netAmount(c.PrizePool, c)
		if net.LessThanOrEqual(decimal.Zero) {
			return nil, false
		}
		return []store.Payout{{
			UserID:    standings[0].account.UserID,
			Amount:    net,
			Kind:      types.WalletTxPrize,
			Reference: "challenge:" + c.ID + ":winner",
		}}, false
	}

	if c.PrizePool.LessThanOrEqual(decimal.Zero) {
		return nil, false
	}

	places := len(placeShares)
	if len(standings) < places {
		places = len(standings)
	}
	total := decimal.Zero
	for i := 0; i < places; i++ {
		total = total.Add(placeShares[i])
	}

	var payouts []store.Payout
	for i := 0; i < places; {
		// Members of one tie group spanning paid places share the
		// group's combined slice per the tie prize policy.
		j := i
		for j < places && standings[j].tieGroup == standings[i].tieGroup {
			j++
		}
		combined := decimal.Zero
		for k := i; k < j; k++ {
			combined = combined.Add(placeShares[k].Div(total))
		}
		gross := c.PrizePool.Mul(combined)
		payouts = append(payouts, splitTieGroup(c, standings[i:j], gross, i)...)
		i = j
	}
	return payouts, false
}

func splitTieGroup(c *model.Contest, members []standing, gross decimal.Decimal, firstPlace int) []store.Payout {
	ref := func(place int) string {
		return fmt.Sprintf("contest:%s:rank:%d", c.ID, place+1)
	}
	if len(members) == 1 {
		net := netAmount(gross, c)
		if net.LessThanOrEqual(decimal.Zero) {
			return nil
		}
		return []store.Payout{{
			UserID:    members[0].account.UserID,
			Amount:    net,
			Kind:      types.WalletTxPrize,
			Reference: ref(firstPlace),
		}}
	}

	switch c.TiePrizePolicy {
	case types.TiePrizeFirstTakesAll:
		net := netAmount(gross, c)
		if net.LessThanOrEqual(decimal.Zero) {
			return nil
		}
		return []store.Payout{{
			UserID:    members[0].account.UserID,
			Amount:    net,
			Kind:      types.WalletTxPrize,
			Reference: ref(firstPlace),
		}}
	case types.TiePrizeSplitWeighted, types.TiePrizeHigherRankMore:
		// Weights n, n-1, .. 1 over the tied members in standing order.
		n := len(members)
		weightSum := decimal.NewFromInt(int64(n * (n + 1) / 2))
		var out []store.Payout
		for i, m := range members {
			w := decimal.NewFromInt(int64(n - i))
			net := netAmount(gross.Mul(w).Div(weightSum), c)
			if net.LessThanOrEqual(decimal.Zero) {
				continue
			}
			out = append(out, store.Payout{
				UserID:    m.account.UserID,
				Amount:    net,
				Kind:      types.WalletTxPrize,
				Reference: ref(firstPlace + i),
			})
		}
		return out
	default: // split_equal
		share := gross.Div(decimal.NewFromInt(int64(len(members))))
		var out []store.Payout
		for i, m := range members {
			net := netAmount(share, c)
			if net.LessThanOrEqual(decimal.Zero) {
				continue
			}
			out = append(out, store.Payout{
				UserID:    m.account.UserID,
				Amount:    net,
				Kind:      types.WalletTxPrize,
				Reference: ref(firstPlace + i),
			})
		}
		return out
	}
}

// netAmount deducts platform fee and VAT from a gross credit, rounded to
// cents.
func netAmount(gross decimal.Decimal, c *model.Contest) decimal.Decimal {
	net := gross.
		Sub(gross.Mul(c.FeeRate)).
		Sub(gross.Mul(c.VatRate))
	return net.Round(2)
}

// ExpireUnfilled expires pending contests past their start time that
// never reached the participant minimum, refunding every stake.
func (f *Finalizer) ExpireUnfilled(ctx context.Context) (Summary, error) {
	pending, err := f.store.ListExpirableContests(ctx, time.Now().UTC())
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Checked: len(pending)}
	for i := range pending {
		c := &pending[i]
		accounts, err := f.store.ListAccountsByContest(ctx, c.ID)
		if err != nil {
			summary.FailedIDs = append(summary.FailedIDs, c.ID)
			continue
		}
		if len(accounts) >= c.MinParticipants {
			continue // fills; activation is an admin action
		}
		refunds := make([]store.Payout, 0, len(accounts))
		for _, a := range accounts {
			refunds = append(refunds, store.Payout{
				UserID:    a.UserID,
				Amount:    c.EntryFee,
				Kind:      types.WalletTxRefund,
				Reference: "contest:" + c.ID + ":expired",
			})
		}
		won, err := f.store.ExpireContest(ctx, c.ID, refunds)
		if err != nil {
			summary.FailedIDs = append(summary.FailedIDs, c.ID)
			f.log.Warn("contest expire failed", zap.String("contest_id", c.ID), zap.Error(err))
			continue
		}
		if won {
			summary.Affected++
		}
	}
	return summary, nil
}

// Standings returns the live (or final) ordering for display.
func (f *Finalizer) Standings(ctx context.Context, contestID string) ([]model.Account, error) {
	c, err := f.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	accounts, err := f.store.ListAccountsByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*model.Account, 0, len(accounts))
	for i := range accounts {
		ptrs = append(ptrs, &accounts[i])
	}
	ranked := rank(ptrs, c.RankingMethod, c.TieBreakers)
	out := make([]model.Account, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, *s.account)
	}
	return out, nil
}
