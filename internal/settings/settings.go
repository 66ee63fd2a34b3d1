// Package settings holds engine configuration that admins tune at runtime.
// Values are read fresh on every evaluation; any read failure falls back to
// hardcoded defaults so the engine never refuses to evaluate.
package settings

import (
	"context"

	"tradearena/internal/margin"

	"github.com/shopspring/decimal"
)

type Settings struct {
	Thresholds      margin.Thresholds
	MinLeverage     int
	MaxLeverage     int
	MaxPositionQty  decimal.Decimal
	MaxNotionalUSD  decimal.Decimal
	MaxOpenPerAcct  int
	QueuedOrderTTL  int // hours; 0 means orders never expire
	EventTTLSeconds int
}

func Defaults() Settings {
	return Settings{
		Thresholds:      margin.DefaultThresholds(),
		MinLeverage:     1,
		MaxLeverage:     500,
		MaxPositionQty:  decimal.NewFromInt(100),
		MaxNotionalUSD:  decimal.NewFromInt(500000),
		MaxOpenPerAcct:  50,
		QueuedOrderTTL:  0,
		EventTTLSeconds: 60,
	}
}

// Source loads live settings, typically from the settings table.
type Source interface {
	LoadSettings(ctx context.Context) (Settings, error)
}

// LoadOrDefault never fails: storage errors degrade to Defaults.
func LoadOrDefault(ctx context.Context, src Source) Settings {
	if src == nil {
		return Defaults()
	}
	s, err := src.LoadSettings(ctx)
	if err != nil {
		return Defaults()
	}
	return s
}
