package contest

import (
	"sort"

	"tradearena/internal/model"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// metric returns the primary ranking score for an account, higher is
// better for every method.
func metric(a *model.Account, method types.RankingMethod) decimal.Decimal {
	switch method {
	case types.RankByROI:
		return roi(a)
	case types.RankByTotalCapital:
		return a.CurrentCapital
	case types.RankByWinRate:
		return winRate(a)
	case types.RankByWinsCount:
		return decimal.NewFromInt(int64(a.WinsCount))
	case types.RankByProfitFactor:
		return profitFactor(a)
	default:
		return a.RealizedPnl
	}
}

func roi(a *model.Account) decimal.Decimal {
	if a.StartingCapital.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return a.CurrentCapital.Sub(a.StartingCapital).Div(a.StartingCapital).Mul(hundred)
}

func winRate(a *model.Account) decimal.Decimal {
	if a.TradesCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(a.WinsCount)).Div(decimal.NewFromInt(int64(a.TradesCount))).Mul(hundred)
}

// profitFactor is gross profit over absolute gross loss. A flawless
// record with no losing trade ranks by raw gross profit scaled up so it
// always beats any finite factor.
func profitFactor(a *model.Account) decimal.Decimal {
	loss := a.GrossLoss.Abs()
	if loss.IsZero() {
		return a.GrossProfit.Mul(decimal.NewFromInt(1000000))
	}
	return a.GrossProfit.Div(loss)
}

// compare orders two accounts for final standing: survivors before
// liquidated accounts, then primary metric descending, then the
// tie-breaker chain, then joined_at ascending as the stable last resort.
// Returns <0 when a ranks ahead of b, 0 when the chain exhausts with a
// genuine tie (the "split" breaker also stops the chain deliberately).
func compare(a, b *model.Account, method types.RankingMethod, breakers []types.TieBreaker) int {
	// A liquidated account ranks behind every survivor no matter how its
	// metric reads; blowing up the account forfeits the standing.
	aLiq := a.Status == types.AccountStatusLiquidated
	bLiq := b.Status == types.AccountStatusLiquidated
	if aLiq != bLiq {
		if aLiq {
			return 1
		}
		return -1
	}
	if c := cmpDec(metric(a, method), metric(b, method)); c != 0 {
		return -c // descending
	}
	for _, tb := range breakers {
		switch tb {
		case types.TieBreakTradesCount:
			if a.TradesCount != b.TradesCount {
				if a.TradesCount < b.TradesCount {
					return -1 // fewer trades for the same result ranks higher
				}
				return 1
			}
		case types.TieBreakWinRate:
			if c := cmpDec(winRate(a), winRate(b)); c != 0 {
				return -c
			}
		case types.TieBreakTotalCapital:
			if c := cmpDec(a.CurrentCapital, b.CurrentCapital); c != 0 {
				return -c
			}
		case types.TieBreakROI:
			if c := cmpDec(roi(a), roi(b)); c != 0 {
				return -c
			}
		case types.TieBreakJoinedAt:
			if !a.JoinedAt.Equal(b.JoinedAt) {
				if a.JoinedAt.Before(b.JoinedAt) {
					return -1
				}
				return 1
			}
		case types.TieBreakSplit:
			return 0
		}
	}
	return 0
}

func cmpDec(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

// standings sorts accounts into final order. Accounts that stay tied
// after the whole chain keep a deterministic order (joined_at, then ID)
// but are reported as one tie group for prize splitting.
type standing struct {
	account  *model.Account
	tieGroup int // 0-based index of the tie group this account belongs to
}

func rank(accounts []*model.Account, method types.RankingMethod, breakers []types.TieBreaker) []standing {
	sorted := make([]*model.Account, len(accounts))
	copy(sorted, accounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		c := compare(sorted[i], sorted[j], method, breakers)
		if c != 0 {
			return c < 0
		}
		// Deterministic order inside a tie group.
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]standing, len(sorted))
	group := 0
	for i, a := range sorted {
		if i > 0 && compare(sorted[i-1], a, method, breakers) != 0 {
			group++
		}
		out[i] = standing{account: a, tieGroup: group}
	}
	return out
}
