package schwab

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"schwab-invest-bot/internal/logging"
)

// Quotes move constantly; a short TTL only smooths bursts within one
// strategy run. Balances and positions are never cached: stale account
// state must not size a trade.
const quoteTTL = 5 * time.Second

// CachedClient wraps a Client and caches quote lookups in Redis, falling back
// to an in-process cache when Redis is not configured or unavailable.
type CachedClient struct {
	Client

	redis  *redis.Client
	memory *gocache.Cache
	logger *logging.Logger
}

// NewCachedClient wraps inner with quote caching. redisClient may be nil, in
// which case only the in-process cache is used.
func NewCachedClient(inner Client, redisClient *redis.Client, logger *logging.Logger) *CachedClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedClient{
		Client: inner,
		redis:  redisClient,
		memory: gocache.New(quoteTTL, time.Minute),
		logger: logger.WithComponent("quote-cache"),
	}
}

func quoteKey(symbol string) string { return "quote:" + symbol }

func (c *CachedClient) cachedQuote(ctx context.Context, symbol string) *Quote {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, quoteKey(symbol)).Bytes()
		if err == nil {
			var q Quote
			if json.Unmarshal(raw, &q) == nil {
				return &q
			}
		} else if err != redis.Nil {
			c.logger.Debug("Redis quote lookup failed, using memory cache", "symbol", symbol, "error", err)
		}
	}
	if val, ok := c.memory.Get(quoteKey(symbol)); ok {
		if q, ok := val.(*Quote); ok {
			cp := *q
			return &cp
		}
	}
	return nil
}

func (c *CachedClient) storeQuote(ctx context.Context, q *Quote) {
	cp := *q
	c.memory.Set(quoteKey(q.Symbol), &cp, quoteTTL)
	if c.redis != nil {
		raw, err := json.Marshal(q)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, quoteKey(q.Symbol), raw, quoteTTL).Err(); err != nil {
			c.logger.Debug("Redis quote store failed", "symbol", q.Symbol, "error", err)
		}
	}
}

// GetQuote returns a cached quote when fresh, otherwise fetches and caches.
func (c *CachedClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if q := c.cachedQuote(ctx, symbol); q != nil {
		return q, nil
	}
	q, err := c.Client.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.storeQuote(ctx, q)
	return q, nil
}

// GetQuotes serves what it can from cache and batch-fetches the rest.
func (c *CachedClient) GetQuotes(ctx context.Context, symbols []string) (map[string]*Quote, error) {
	out := make(map[string]*Quote, len(symbols))
	var missing []string
	for _, symbol := range symbols {
		if q := c.cachedQuote(ctx, symbol); q != nil {
			out[symbol] = q
		} else {
			missing = append(missing, symbol)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.Client.GetQuotes(ctx, missing)
	if err != nil {
		// A partial cache hit is not a usable result for sizing decisions.
		return nil, err
	}
	for symbol, q := range fetched {
		c.storeQuote(ctx, q)
		out[symbol] = q
	}
	return out, nil
}
