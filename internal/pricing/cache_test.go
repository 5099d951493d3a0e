package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/model"
	"monoswap/internal/swaperr"
)

type fakeSource struct {
	mu       sync.Mutex
	prices   map[string]float64
	errs     []error
	calls    int
	batches  [][]string
	history  []model.Candle
	lastSpec HistorySpec
}

func (f *fakeSource) nextErr() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSource) Price(ctx context.Context, symbol, quote string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return 0, err
	}
	return f.prices[symbol], nil
}

func (f *fakeSource) Prices(ctx context.Context, symbols []string, quote string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), symbols...))
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakeSource) History(ctx context.Context, base, quote string, spec HistorySpec) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSpec = spec
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.history, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinInterval = 0
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func newTestCache(src Source) (*Cache, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	return NewCache(src, testConfig(), WithClock(clk.Now)), clk
}

func TestGetPricesServesFreshEntriesFromCache(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ETH": 3000, "BTC": 60000}}
	cache, clk := newTestCache(src)
	ctx := context.Background()

	first := cache.GetPrices(ctx, []string{"eth", "btc"}, "")
	assert.Equal(t, map[string]float64{"eth": 3000, "btc": 60000}, first)
	require.Equal(t, 1, src.callCount())

	clk.Advance(10 * time.Second)
	second := cache.GetPrices(ctx, []string{"ETH", "BTC"}, "USD")
	assert.Equal(t, map[string]float64{"ETH": 3000, "BTC": 60000}, second)
	assert.Equal(t, 1, src.callCount(), "fresh entries must not be refetched")

	clk.Advance(25 * time.Second)
	cache.GetPrices(ctx, []string{"ETH"}, "USD")
	assert.Equal(t, 2, src.callCount(), "expired entries are refetched")
}

func TestGetPricesFallsBackToStaleThenZero(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ETH": 3000}}
	cache, clk := newTestCache(src)
	ctx := context.Background()

	cache.GetPrices(ctx, []string{"ETH"}, "USD")
	clk.Advance(time.Minute)

	src.mu.Lock()
	src.errs = []error{errors.New("boom")}
	src.mu.Unlock()

	got := cache.GetPrices(ctx, []string{"ETH", "BTC"}, "USD")
	assert.Equal(t, 3000.0, got["ETH"])
	assert.Equal(t, 0.0, got["BTC"])
}

func TestGetPricesSplitsIntoBatches(t *testing.T) {
	prices := make(map[string]float64)
	symbols := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		s := string([]byte{'T', byte('A' + i)})
		symbols = append(symbols, s)
		prices[s] = float64(i + 1)
	}
	src := &fakeSource{prices: prices}
	cache, _ := newTestCache(src)

	got := cache.GetPrices(context.Background(), symbols, "USD")
	assert.Len(t, got, 25)

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.batches, 3)
	sizes := map[int]int{}
	for _, b := range src.batches {
		sizes[len(b)]++
	}
	assert.Equal(t, map[int]int{10: 2, 5: 1}, sizes)
}

func TestGetPriceRetriesServerErrors(t *testing.T) {
	src := &fakeSource{
		prices: map[string]float64{"ETH": 3000},
		errs:   []error{&StatusError{Code: 503}, &StatusError{Code: 500}},
	}
	cache, _ := newTestCache(src)

	price, err := cache.GetPrice(context.Background(), "ETH", "USD")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, price)
	assert.Equal(t, 3, src.callCount())
}

func TestGetPriceDoesNotRetryClientErrors(t *testing.T) {
	src := &fakeSource{errs: []error{&StatusError{Code: 400}}}
	cache, _ := newTestCache(src)

	_, err := cache.GetPrice(context.Background(), "ETH", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, &swaperr.Error{Kind: swaperr.TransientFetchFailure})
	assert.Equal(t, 1, src.callCount())
}

func TestGetPriceGivesUpAfterMaxAttempts(t *testing.T) {
	src := &fakeSource{errs: []error{
		&StatusError{Code: 500}, &StatusError{Code: 500}, &StatusError{Code: 500}, &StatusError{Code: 500},
	}}
	cache, _ := newTestCache(src)

	_, err := cache.GetPrice(context.Background(), "ETH", "USD")
	require.Error(t, err)
	assert.Equal(t, swaperr.TransientFetchFailure, swaperr.KindOf(err))
	assert.Equal(t, 3, src.callCount())
}

func TestGetPriceServesStaleOnFailure(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ETH": 3000}}
	cache, clk := newTestCache(src)
	ctx := context.Background()

	_, err := cache.GetPrice(ctx, "ETH", "USD")
	require.NoError(t, err)

	clk.Advance(time.Hour)
	src.mu.Lock()
	src.errs = []error{&StatusError{Code: 404}}
	src.mu.Unlock()

	price, err := cache.GetPrice(ctx, "ETH", "USD")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, price)

	entry, ok := cache.Entry("eth", "usd")
	require.True(t, ok)
	assert.False(t, entry.Fresh(clk.Now(), cache.Config().TTL))
}

func TestHistory(t *testing.T) {
	src := &fakeSource{history: []model.Candle{{Time: 1, Close: 2}}}
	cache, _ := newTestCache(src)

	candles, err := cache.History(context.Background(), "eth", "", "1d")
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, HistorySpec{Endpoint: "histohour", Aggregate: 1, Limit: HistoryLimit}, src.lastSpec)

	_, err = cache.History(context.Background(), "eth", "", "5m")
	require.Error(t, err)
}

func TestPollerTracksTrendAndKeepsLastPrice(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ETH": 2000}}
	cache, clk := newTestCache(src)
	poller := NewPoller(cache, []string{"ETH"}, "USD", time.Second, nil)
	ctx := context.Background()

	snap := poller.Poll(ctx)
	require.Len(t, snap.Ticks, 1)
	assert.Equal(t, 2000.0, snap.Ticks[0].Price)
	assert.Zero(t, snap.Ticks[0].Change)

	clk.Advance(time.Minute)
	src.mu.Lock()
	src.prices["ETH"] = 2200
	src.mu.Unlock()
	snap = poller.Poll(ctx)
	assert.InDelta(t, 10.0, snap.Ticks[0].Change, 1e-9)

	clk.Advance(time.Minute)
	src.mu.Lock()
	src.prices["ETH"] = 0
	src.mu.Unlock()
	snap = poller.Poll(ctx)
	assert.Equal(t, 2200.0, snap.Ticks[0].Price)
	assert.True(t, snap.Ticks[0].Stale)
}

func TestGetPricesKeysResultByRequestedSpelling(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"ETH": 3000, "DAI": 1}}
	cache, _ := newTestCache(src)

	got := cache.GetPrices(context.Background(), []string{"eth", "ETH", " Eth ", "", "  ", "dai"}, "usd")
	assert.Equal(t, map[string]float64{
		"eth":   3000,
		"ETH":   3000,
		" Eth ": 3000,
		"":      0,
		"  ":    0,
		"dai":   1,
	}, got)

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.batches, 1)
	assert.Equal(t, []string{"ETH", "DAI"}, src.batches[0])
}

func TestGetPricesOnlyBlankSymbolsSkipsFetch(t *testing.T) {
	src := &fakeSource{}
	cache, _ := newTestCache(src)

	got := cache.GetPrices(context.Background(), []string{""}, "USD")
	assert.Equal(t, map[string]float64{"": 0}, got)
	assert.Zero(t, src.callCount())
}

// timedSource records when each batch reaches the upstream.
type timedSource struct {
	*fakeSource

	mu      sync.Mutex
	at      []time.Time
	batches [][]string
}

func (s *timedSource) Prices(ctx context.Context, symbols []string, quote string) (map[string]float64, error) {
	s.mu.Lock()
	s.at = append(s.at, time.Now())
	s.batches = append(s.batches, append([]string(nil), symbols...))
	s.mu.Unlock()
	return s.fakeSource.Prices(ctx, symbols, quote)
}

func symbolRange(prefix byte, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string([]byte{prefix, byte('A' + i)})
	}
	return out
}

func TestGetPricesSpacesBatchesAcrossCallers(t *testing.T) {
	const (
		interval = 60 * time.Millisecond
		jitter   = 10 * time.Millisecond
	)
	first, second := symbolRange('A', 25), symbolRange('B', 12)
	prices := make(map[string]float64)
	for i, s := range append(append([]string(nil), first...), second...) {
		prices[s] = float64(i + 1)
	}
	src := &timedSource{fakeSource: &fakeSource{prices: prices}}
	cfg := testConfig()
	cfg.MinInterval = interval
	cache := NewCache(src, cfg)

	var wg sync.WaitGroup
	results := make([]map[string]float64, 2)
	for i, symbols := range [][]string{first, second} {
		wg.Add(1)
		go func(i int, symbols []string) {
			defer wg.Done()
			results[i] = cache.GetPrices(context.Background(), symbols, "USD")
		}(i, symbols)
	}
	wg.Wait()

	for i, symbols := range [][]string{first, second} {
		require.Len(t, results[i], len(symbols))
		for _, s := range symbols {
			assert.Equal(t, prices[s], results[i][s], s)
		}
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.at, 5)
	for i := 1; i < len(src.at); i++ {
		gap := src.at[i].Sub(src.at[i-1])
		assert.GreaterOrEqual(t, gap, interval-jitter, "requests %d and %d are %s apart", i-1, i, gap)
	}

	released := make(map[string]int)
	for i, b := range src.batches {
		released[b[0]] = i
	}
	for _, leads := range [][]string{{"AA", "AK", "AU"}, {"BA", "BK"}} {
		for j := 1; j < len(leads); j++ {
			require.Contains(t, released, leads[j-1])
			require.Contains(t, released, leads[j])
			assert.Less(t, released[leads[j-1]], released[leads[j]], "%s must be released before %s", leads[j-1], leads[j])
		}
	}
}
