// Package pricing defines the reference price feed consumed by the risk
// engine. The transport behind a Source is out of scope here; callers must
// treat ErrUnavailable as "skip this symbol this cycle", never as a zero
// price.
package pricing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("pricing: quote unavailable")

type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
}

type Source interface {
	GetPrice(ctx context.Context, symbol string) (Quote, error)
}

// StaticSource serves quotes from an in-memory table. Used by tests and by
// the jobs process in dry-run mode.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]Quote)}
}

func (s *StaticSource) Set(symbol string, bid, ask decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = Quote{Symbol: symbol, Bid: bid, Ask: ask, Timestamp: time.Now().UTC()}
}

func (s *StaticSource) Unset(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, symbol)
}

func (s *StaticSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return Quote{}, ErrUnavailable
	}
	return q, nil
}

// QuoteStore is the persistence half of the quote feed; the ingest
// endpoint writes rows, sources read them.
type QuoteStore interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// StoreSource reads quotes from persistent storage. Rows older than
// maxAge count as unavailable, so a stalled feed degrades to skipped
// symbols instead of evaluations against dead prices.
type StoreSource struct {
	store  QuoteStore
	maxAge time.Duration
}

func NewStoreSource(store QuoteStore, maxAge time.Duration) *StoreSource {
	return &StoreSource{store: store, maxAge: maxAge}
}

func (s *StoreSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	q, err := s.store.GetQuote(ctx, symbol)
	if err != nil {
		return Quote{}, ErrUnavailable
	}
	if s.maxAge > 0 && time.Since(q.Timestamp) > s.maxAge {
		return Quote{}, ErrUnavailable
	}
	return q, nil
}
