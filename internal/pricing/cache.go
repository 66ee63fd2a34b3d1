package pricing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedSource wraps a primary Source with a Redis read-through cache.
// Quotes are cached for a short TTL; Invalidate drops a symbol so the next
// read hits the primary. The cache is injected explicitly, never global.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{primary: primary, rdb: rdb, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

func (s *CachedSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	data, err := s.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if err == nil {
		var q Quote
		if json.Unmarshal(data, &q) == nil {
			return q, nil
		}
	}

	q, err := s.primary.GetPrice(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}

	if data, err := json.Marshal(q); err == nil {
		// Cache failures are ignored; the primary already answered.
		s.rdb.Set(ctx, quoteKey(symbol), data, s.ttl)
	}
	return q, nil
}

func (s *CachedSource) Invalidate(ctx context.Context, symbol string) {
	s.rdb.Del(ctx, quoteKey(symbol))
}
