// Package notify is the boundary to the notification collaborator.
// Delivery is fire-and-forget: a failed notification must never block or
// fail the financial mutation that produced it.
package notify

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Notifier interface {
	MarginWarning(ctx context.Context, userID string, level decimal.Decimal)
	MarginCall(ctx context.Context, userID string, level decimal.Decimal)
	Liquidation(ctx context.Context, userID, symbol string)
}

type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (Noop) MarginWarning(ctx context.Context, userID string, level decimal.Decimal) {}

func (Noop) MarginCall(ctx context.Context, userID string, level decimal.Decimal) {}

func (Noop) Liquidation(ctx context.Context, userID, symbol string) {}

// Log records notifications in the process log. Stands in until a real
// delivery channel is attached.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) MarginWarning(ctx context.Context, userID string, level decimal.Decimal) {
	l.log.Warn("margin warning", zap.String("user_id", userID), zap.String("margin_level", level.String()))
}

func (l *Log) MarginCall(ctx context.Context, userID string, level decimal.Decimal) {
	l.log.Warn("margin call", zap.String("user_id", userID), zap.String("margin_level", level.String()))
}

func (l *Log) Liquidation(ctx context.Context, userID, symbol string) {
	l.log.Warn("liquidation", zap.String("user_id", userID), zap.String("symbol", symbol))
}
