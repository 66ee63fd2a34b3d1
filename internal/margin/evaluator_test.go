package margin

import (
	"testing"

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

func TestEvaluateClassification(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name       string
		capital    string
		unrealized string
		usedMargin string
		status     types.MarginStatus
		level      string
	}{
		{"healthy", "10000", "-1500", "2000", types.MarginStatusSafe, "425"},
		{"exactly safe", "4000", "0", "2000", types.MarginStatusSafe, "200"},
		{"just below safe", "3999", "0", "2000", types.MarginStatusWarning, "199.95"},
		{"exactly warning", "3000", "0", "2000", types.MarginStatusWarning, "150"},
		{"just below warning", "2999", "0", "2000", types.MarginStatusDanger, "149.95"},
		{"just above liquidation", "1601", "0", "2000", types.MarginStatusDanger, "80.05"},
		{"exactly liquidation", "1600", "0", "2000", types.MarginStatusLiquidation, "80"},
		{"deep breach", "10000", "-8500", "2000", types.MarginStatusLiquidation, "75"},
		{"negative equity", "1000", "-3000", "2000", types.MarginStatusLiquidation, "-100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := Evaluate(d(tc.capital), d(tc.unrealized), d(tc.usedMargin), th)
			assert.Equal(t, tc.status, snap.Status)
			assert.True(t, snap.Level.Equal(d(tc.level)), "level = %s, want %s", snap.Level, tc.level)
			assert.False(t, snap.NoMarginUsed)
		})
	}
}

func TestEvaluateNoMarginUsed(t *testing.T) {
	snap := Evaluate(d("5000"), d("-10000"), decimal.Zero, DefaultThresholds())
	assert.Equal(t, types.MarginStatusSafe, snap.Status)
	assert.True(t, snap.NoMarginUsed)
	assert.True(t, snap.Equity.Equal(d("-5000")))
}

func TestEvaluateEquityIncludesUnrealized(t *testing.T) {
	snap := Evaluate(d("10000"), d("250"), d("5000"), DefaultThresholds())
	assert.True(t, snap.Equity.Equal(d("10250")))
	assert.True(t, snap.Level.Equal(d("205")))
	assert.Equal(t, types.MarginStatusSafe, snap.Status)
}
