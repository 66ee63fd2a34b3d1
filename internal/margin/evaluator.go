// Package margin computes account margin health. Evaluation is pure:
// it never touches storage and never fails.
package margin

import (
	"tradearena/internal/types"

	"github.com/shopspring/decimal"
)

// Thresholds are margin-level percentages, descending:
// Safe > Warning > MarginCall > Liquidation.
type Thresholds struct {
	Safe        decimal.Decimal
	Warning     decimal.Decimal
	MarginCall  decimal.Decimal
	Liquidation decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Safe:        decimal.NewFromInt(200),
		Warning:     decimal.NewFromInt(150),
		MarginCall:  decimal.NewFromInt(120),
		Liquidation: decimal.NewFromInt(80),
	}
}

// Snapshot is the result of a single margin evaluation.
type Snapshot struct {
	Equity       decimal.Decimal
	Level        decimal.Decimal
	Status       types.MarginStatus
	NoMarginUsed bool
}

var hundred = decimal.NewFromInt(100)

// Evaluate maps (capital, unrealized P&L, used margin) to a margin status.
// With no margin in use the level is undefined and the account is safe.
// Negative equity produces a negative level, classified as liquidation.
func Evaluate(currentCapital, unrealizedPnl, usedMargin decimal.Decimal, th Thresholds) Snapshot {
	equity := currentCapital.Add(unrealizedPnl)
	if usedMargin.LessThanOrEqual(decimal.Zero) {
		return Snapshot{
			Equity:       equity,
			Status:       types.MarginStatusSafe,
			NoMarginUsed: true,
		}
	}
	level := equity.Div(usedMargin).Mul(hundred)
	return Snapshot{
		Equity: equity,
		Level:  level,
		Status: classify(level, th),
	}
}

func classify(level decimal.Decimal, th Thresholds) types.MarginStatus {
	switch {
	case level.GreaterThanOrEqual(th.Safe):
		return types.MarginStatusSafe
	case level.GreaterThanOrEqual(th.Warning):
		return types.MarginStatusWarning
	case level.GreaterThan(th.Liquidation):
		return types.MarginStatusDanger
	default:
		return types.MarginStatusLiquidation
	}
}
