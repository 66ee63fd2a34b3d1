package contest

import (
	"testing"
	"time"

	"tradearena/internal/model"
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func acct(id string, pnl string, trades, wins int) *model.Account {
	return &model.Account{
		ID:              id,
		UserID:          "u-" + id,
		StartingCapital: d("10000"),
		CurrentCapital:  d("10000").Add(d(pnl)),
		RealizedPnl:     d(pnl),
		TradesCount:     trades,
		WinsCount:       wins,
		LossesCount:     trades - wins,
		Status:          types.AccountStatusActive,
		JoinedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func ids(standings []standing) []string {
	out := make([]string, len(standings))
	for i, s := range standings {
		out[i] = s.account.ID
	}
	return out
}

func TestLiquidatedRanksBehindSurvivors(t *testing.T) {
	blown := acct("blown", "2000", 4, 4) // best metric, but blew up
	blown.Status = types.AccountStatusLiquidated
	survivor := acct("survivor", "300", 10, 5)
	standings := rank([]*model.Account{blown, survivor}, types.RankByPnl, nil)

	assert.Equal(t, []string{"survivor", "blown"}, ids(standings))
	assert.NotEqual(t, standings[0].tieGroup, standings[1].tieGroup,
		"liquidated accounts never share a tie group with survivors")
}

func TestRankByPnlDescending(t *testing.T) {
	standings := rank([]*model.Account{
		acct("low", "100", 5, 3),
		acct("high", "900", 5, 3),
		acct("mid", "500", 5, 3),
	}, types.RankByPnl, nil)
	assert.Equal(t, []string{"high", "mid", "low"}, ids(standings))
}

func TestTieBreakFewerTradesRanksHigher(t *testing.T) {
	grinder := acct("grinder", "500", 40, 20)
	sniper := acct("sniper", "500", 3, 3)
	standings := rank(
		[]*model.Account{grinder, sniper},
		types.RankByPnl,
		[]types.TieBreaker{types.TieBreakTradesCount},
	)
	assert.Equal(t, []string{"sniper", "grinder"}, ids(standings))
	assert.NotEqual(t, standings[0].tieGroup, standings[1].tieGroup)
}

func TestTieBreakChainFallsThrough(t *testing.T) {
	a := acct("a", "500", 10, 8)
	b := acct("b", "500", 10, 4)
	standings := rank(
		[]*model.Account{b, a},
		types.RankByPnl,
		[]types.TieBreaker{types.TieBreakTradesCount, types.TieBreakWinRate},
	)
	// Same pnl, same trades count; win rate decides.
	assert.Equal(t, []string{"a", "b"}, ids(standings))
}

func TestSplitStopsTheChain(t *testing.T) {
	a := acct("a", "500", 10, 8)
	b := acct("b", "500", 10, 4)
	standings := rank(
		[]*model.Account{a, b},
		types.RankByPnl,
		[]types.TieBreaker{types.TieBreakSplit, types.TieBreakWinRate},
	)
	// Split short-circuits before win rate: one tie group.
	assert.Equal(t, standings[0].tieGroup, standings[1].tieGroup)
}

func TestExhaustedChainIsDeterministic(t *testing.T) {
	a := acct("a", "500", 10, 5)
	b := acct("b", "500", 10, 5)
	b.JoinedAt = a.JoinedAt.Add(time.Hour)

	first := rank([]*model.Account{b, a}, types.RankByPnl, []types.TieBreaker{types.TieBreakTradesCount})
	second := rank([]*model.Account{a, b}, types.RankByPnl, []types.TieBreaker{types.TieBreakTradesCount})
	assert.Equal(t, ids(first), ids(second), "input order must not matter")
	assert.Equal(t, []string{"a", "b"}, ids(first), "earlier join comes first")
	assert.Equal(t, first[0].tieGroup, first[1].tieGroup, "still one tie group")
}

func TestJoinedAtBreakerResolvesTie(t *testing.T) {
	a := acct("a", "500", 10, 5)
	b := acct("b", "500", 10, 5)
	b.JoinedAt = a.JoinedAt.Add(time.Hour)
	standings := rank(
		[]*model.Account{b, a},
		types.RankByPnl,
		[]types.TieBreaker{types.TieBreakJoinedAt},
	)
	assert.Equal(t, []string{"a", "b"}, ids(standings))
	assert.NotEqual(t, standings[0].tieGroup, standings[1].tieGroup)
}

func TestRankByROIIgnoresCapitalScale(t *testing.T) {
	big := acct("big", "0", 1, 1)
	big.StartingCapital = d("100000")
	big.CurrentCapital = d("105000") // 5% roi
	small := acct("small", "0", 1, 1)
	small.StartingCapital = d("1000")
	small.CurrentCapital = d("1100") // 10% roi

	standings := rank([]*model.Account{big, small}, types.RankByROI, nil)
	assert.Equal(t, []string{"small", "big"}, ids(standings))
}

func TestRankByWinRate(t *testing.T) {
	a := acct("a", "100", 10, 9)
	b := acct("b", "900", 10, 5)
	standings := rank([]*model.Account{b, a}, types.RankByWinRate, nil)
	assert.Equal(t, []string{"a", "b"}, ids(standings))
}

func TestProfitFactor(t *testing.T) {
	a := acct("a", "500", 10, 6)
	a.GrossProfit = d("1500")
	a.GrossLoss = d("-1000") // factor 1.5
	b := acct("b", "500", 10, 6)
	b.GrossProfit = d("2000")
	b.GrossLoss = d("-500") // factor 4

	standings := rank([]*model.Account{a, b}, types.RankByProfitFactor, nil)
	assert.Equal(t, []string{"b", "a"}, ids(standings))

	// A no-loss record beats any finite factor.
	c := acct("c", "500", 3, 3)
	c.GrossProfit = d("300")
	standings = rank([]*model.Account{a, b, c}, types.RankByProfitFactor, nil)
	assert.Equal(t, "c", standings[0].account.ID)
}

func TestRoiZeroStartingCapital(t *testing.T) {
	a := acct("a", "0", 0, 0)
	a.StartingCapital = decimal.Zero
	assert.True(t, roi(a).IsZero())
}
