package pricing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often the ticker refreshes.
const DefaultPollInterval = 15 * time.Second

// Tick is the displayed price of one symbol.
type Tick struct {
	Symbol string
	Price  float64
	// Change is the percent move against the previous non-zero price.
	Change float64
	// Stale is set when the latest fetch returned 0 and Price is the last
	// known value.
	Stale bool
}

// Snapshot is one refresh of the ticker.
type Snapshot struct {
	At    time.Time
	Ticks []Tick
}

// Poller refreshes a fixed symbol set on an interval.
type Poller struct {
	cache    *Cache
	symbols  []string
	quote    string
	interval time.Duration
	logger   *zap.Logger

	last map[string]float64
}

// NewPoller creates a poller over cache.
func NewPoller(cache *Cache, symbols []string, quote string, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cache:    cache,
		symbols:  normalizeSymbols(symbols),
		quote:    quote,
		interval: interval,
		logger:   logger,
		last:     make(map[string]float64),
	}
}

// Poll refreshes once and returns the snapshot.
func (p *Poller) Poll(ctx context.Context) Snapshot {
	prices := p.cache.GetPrices(ctx, p.symbols, p.quote)
	snap := Snapshot{At: p.cache.now(), Ticks: make([]Tick, 0, len(p.symbols))}

	for _, s := range p.symbols {
		price := prices[s]
		prev, hadPrev := p.last[s]
		tick := Tick{Symbol: s, Price: price}

		switch {
		case price == 0 && hadPrev:
			tick.Price = prev
			tick.Stale = true
		case price != 0:
			if hadPrev && prev != 0 {
				tick.Change = (price - prev) / prev * 100
			}
			p.last[s] = price
		}

		if tick.Change != 0 {
			p.logger.Info("price moved",
				zap.String("symbol", s),
				zap.Float64("price", tick.Price),
				zap.Float64("change_pct", tick.Change),
			)
		}
		snap.Ticks = append(snap.Ticks, tick)
	}
	return snap
}

// Run polls immediately and then every interval until ctx ends, passing each
// snapshot to onUpdate.
func (p *Poller) Run(ctx context.Context, onUpdate func(Snapshot)) error {
	p.logger.Info("starting price poller",
		zap.Strings("symbols", p.symbols),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap := p.Poll(ctx)
		if onUpdate != nil {
			onUpdate(snap)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
