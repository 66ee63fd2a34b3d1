package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type stubSource struct {
	s   Settings
	err error
}

func (s stubSource) LoadSettings(ctx context.Context) (Settings, error) {
	return s.s, s.err
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	got := LoadOrDefault(context.Background(), stubSource{err: errors.New("db down")})
	assert.Equal(t, Defaults(), got)

	got = LoadOrDefault(context.Background(), nil)
	assert.Equal(t, Defaults(), got)
}

func TestLoadOrDefaultPassesThrough(t *testing.T) {
	custom := Defaults()
	custom.MaxLeverage = 100
	custom.MaxPositionQty = decimal.NewFromInt(5)
	got := LoadOrDefault(context.Background(), stubSource{s: custom})
	assert.Equal(t, 100, got.MaxLeverage)
	assert.True(t, got.MaxPositionQty.Equal(decimal.NewFromInt(5)))
}
