// Package pricing fetches USD market prices and chart history, caching
// quotes for a short TTL and degrading to stale values when the upstream
// endpoint is unavailable.
package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"monoswap/internal/metrics"
	"monoswap/internal/model"
	"monoswap/internal/swaperr"
)

// Config tunes the cache.
type Config struct {
	TTL          time.Duration `mapstructure:"ttl"`
	BatchSize    int           `mapstructure:"batch-size"`
	MinInterval  time.Duration `mapstructure:"min-interval"`
	MaxAttempts  int           `mapstructure:"max-attempts"`
	RetryDelay   time.Duration `mapstructure:"retry-delay"`
	DefaultQuote string        `mapstructure:"quote"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          30 * time.Second,
		BatchSize:    10,
		MinInterval:  500 * time.Millisecond,
		MaxAttempts:  3,
		RetryDelay:   time.Second,
		DefaultQuote: "USD",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.DefaultQuote == "" {
		c.DefaultQuote = d.DefaultQuote
	}
	return c
}

type cacheKey struct {
	symbol string
	quote  string
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a TTL price cache in front of a Source. All outbound requests
// share one rate limiter so they are spaced at least MinInterval apart.
type Cache struct {
	source  Source
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]model.QuoteEntry
}

// NewCache creates a cache over source.
func NewCache(source Source, cfg Config, opts ...Option) *Cache {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	c := &Cache{
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  zap.NewNop(),
		now:     time.Now,
		entries: make(map[cacheKey]model.QuoteEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// Entry returns the cached entry for symbol, fresh or not.
func (c *Cache) Entry(symbol, quote string) (model.QuoteEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{normalizeSymbol(symbol), c.quoteOr(quote)}]
	return e, ok
}

// GetPrice returns the price of one symbol. On fetch failure a stale cached
// value is returned without error; with nothing cached the error is a
// TransientFetchFailure.
func (c *Cache) GetPrice(ctx context.Context, symbol, quote string) (float64, error) {
	symbol = normalizeSymbol(symbol)
	quote = c.quoteOr(quote)
	if symbol == "" {
		return 0, swaperr.Errorf(swaperr.InvalidTokenSelection, "pricing.GetPrice", "empty symbol")
	}

	key := cacheKey{symbol, quote}
	now := c.now()
	entry, cached := c.lookup(key)
	if cached && entry.Fresh(now, c.cfg.TTL) {
		c.metrics.RecordCacheLookup("fresh", 1)
		return entry.Price, nil
	}
	c.metrics.RecordCacheLookup("miss", 1)

	var price float64
	err := c.fetch(ctx, "price", func(ctx context.Context) error {
		p, err := c.source.Price(ctx, symbol, quote)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err == nil {
		c.store(map[string]float64{symbol: price}, quote, c.now())
		return price, nil
	}

	if cached {
		c.logger.Warn("price fetch failed, serving stale value",
			zap.String("symbol", symbol),
			zap.Time("fetched_at", entry.FetchedAt),
			zap.Error(err),
		)
		c.metrics.RecordPriceFallback("stale")
		return entry.Price, nil
	}
	c.metrics.RecordPriceFallback("none")
	return 0, swaperr.New(swaperr.TransientFetchFailure, "pricing.GetPrice", err)
}

// GetPrices returns a price for every requested symbol, keyed as the caller
// spelled it. Fresh entries are served from the cache; the rest are fetched
// in batches. A symbol whose batch fails falls back to its stale value, or 0
// when none exists. Blank symbols are never fetched and map to 0.
func (c *Cache) GetPrices(ctx context.Context, symbols []string, quote string) map[string]float64 {
	prices := c.prices(ctx, normalizeSymbols(symbols), c.quoteOr(quote))
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		out[s] = prices[normalizeSymbol(s)]
	}
	return out
}

// prices resolves normalized symbols and keys the result the same way.
func (c *Cache) prices(ctx context.Context, wanted []string, quote string) map[string]float64 {
	out := make(map[string]float64, len(wanted))
	if len(wanted) == 0 {
		return out
	}

	now := c.now()
	var missing []string
	c.mu.RLock()
	for _, s := range wanted {
		entry, ok := c.entries[cacheKey{s, quote}]
		if ok && entry.Fresh(now, c.cfg.TTL) {
			out[s] = entry.Price
			continue
		}
		missing = append(missing, s)
	}
	c.mu.RUnlock()

	c.metrics.RecordCacheLookup("fresh", len(wanted)-len(missing))
	c.metrics.RecordCacheLookup("miss", len(missing))
	if len(missing) == 0 {
		return out
	}

	batches, _ := splitBatches(missing, c.cfg.BatchSize)
	results := make([]map[string]float64, len(batches))

	var g errgroup.Group
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if err := sleepCtx(ctx, time.Duration(i)*c.cfg.MinInterval); err != nil {
				return nil
			}
			var prices map[string]float64
			err := c.fetch(ctx, "pricemulti", func(ctx context.Context) error {
				p, err := c.source.Prices(ctx, batch, quote)
				if err != nil {
					return err
				}
				prices = p
				return nil
			})
			if err != nil {
				c.logger.Warn("price batch failed",
					zap.Int("batch", i),
					zap.Strings("symbols", batch),
					zap.Error(err),
				)
				return nil
			}
			results[i] = prices
			return nil
		})
	}
	_ = g.Wait()

	fetchedAt := c.now()
	for _, prices := range results {
		if prices != nil {
			c.store(prices, quote, fetchedAt)
		}
	}

	for _, s := range missing {
		if p, ok := fetchedPrice(results, s); ok {
			out[s] = p
			continue
		}
		if entry, ok := c.lookup(cacheKey{s, quote}); ok {
			c.metrics.RecordPriceFallback("stale")
			out[s] = entry.Price
			continue
		}
		c.metrics.RecordPriceFallback("zero")
		out[s] = 0
	}
	return out
}

// History returns candles for base/quote over a chart interval.
func (c *Cache) History(ctx context.Context, base, quote, interval string) ([]model.Candle, error) {
	spec, err := ParseInterval(interval)
	if err != nil {
		return nil, swaperr.New(swaperr.InvalidAmount, "pricing.History", err)
	}
	base = normalizeSymbol(base)
	quote = c.quoteOr(quote)

	var candles []model.Candle
	err = c.fetch(ctx, spec.Endpoint, func(ctx context.Context) error {
		out, err := c.source.History(ctx, base, quote, spec)
		if err != nil {
			return err
		}
		candles = out
		return nil
	})
	if err != nil {
		return nil, swaperr.New(swaperr.TransientFetchFailure, "pricing.History", err)
	}
	return candles, nil
}

// fetch runs one logical request with rate limiting and retries.
func (c *Cache) fetch(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	onRetry := func(attempt int, err error) {
		c.metrics.RecordPriceRetry(endpoint)
		c.logger.Debug("retrying market data request",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryDelay, IsRetriable, onRetry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		err := fn(ctx)
		c.metrics.RecordPriceFetch(endpoint, err, time.Since(start).Seconds())
		return err
	})
}

func (c *Cache) lookup(key cacheKey) (model.QuoteEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) store(prices map[string]float64, quote string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, price := range prices {
		symbol = normalizeSymbol(symbol)
		c.entries[cacheKey{symbol, quote}] = model.QuoteEntry{
			Symbol:        symbol,
			QuoteCurrency: quote,
			Price:         price,
			FetchedAt:     at,
		}
	}
}

func (c *Cache) quoteOr(quote string) string {
	if q := normalizeSymbol(quote); q != "" {
		return q
	}
	return c.cfg.DefaultQuote
}

func fetchedPrice(results []map[string]float64, symbol string) (float64, bool) {
	for _, prices := range results {
		if p, ok := prices[symbol]; ok {
			return p, true
		}
	}
	return 0, false
}
