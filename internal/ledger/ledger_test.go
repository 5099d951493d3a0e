package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/model"
	"monoswap/internal/storage"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.LedgerEvent
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, event model.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

type failingStore struct {
	*storage.MemoryStore
}

func (s *failingStore) Save(ctx context.Context, key string, data []byte) error {
	return errors.New("disk full")
}

func fixedClock() func() time.Time {
	t := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return t }
}

func openLedger(t *testing.T, store storage.KeyedStore, opts ...Option) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), store, append([]Option{WithClock(fixedClock())}, opts...)...)
	require.NoError(t, err)
	return l
}

func swapRecord(hash string) model.Transaction {
	return model.Transaction{
		Hash:   hash,
		Type:   model.TxSwap,
		Status: model.StatusPending,
		From:   model.Leg{Symbol: "ETH", Amount: "1.0"},
		To:     model.Leg{Symbol: "USDC", Amount: "1800"},
	}
}

func TestAppendCapsAndEvictsOldest(t *testing.T) {
	l := openLedger(t, storage.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, l.Append(ctx, swapRecord(fmt.Sprintf("0x%02d", i))))
		assert.LessOrEqual(t, len(l.List()), Capacity)
	}

	records := l.List()
	require.Len(t, records, Capacity)
	assert.Equal(t, "0x24", records[0].Hash)
	assert.Equal(t, "0x15", records[Capacity-1].Hash)
}

func TestAppendFillsTimestamp(t *testing.T) {
	l := openLedger(t, storage.NewMemoryStore())
	require.NoError(t, l.Append(context.Background(), swapRecord(model.PendingHash)))
	assert.Equal(t, int64(1_700_000_000_000), l.List()[0].Timestamp)
}

func TestUpdatePendingThenRealHashMergesOneRecord(t *testing.T) {
	l := openLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, swapRecord("0xolder")))
	require.NoError(t, l.Append(ctx, swapRecord(model.PendingHash)))

	ok, err := l.Update(ctx, model.PendingHash, model.TransactionPatch{}.WithHash("0xreal"))
	require.NoError(t, err)
	require.True(t, ok)

	executed := model.Leg{Symbol: "USDC", Amount: "1795.5"}
	patch := model.TransactionPatch{Executed: &executed}.WithStatus(model.StatusCompleted)
	ok, err = l.Update(ctx, "0xreal", patch)
	require.NoError(t, err)
	require.True(t, ok)

	records := l.List()
	require.Len(t, records, 2)
	assert.Equal(t, "0xreal", records[0].Hash)
	assert.Equal(t, model.StatusCompleted, records[0].Status)
	assert.Equal(t, &executed, records[0].Executed)
	assert.Equal(t, "0xolder", records[1].Hash)
	_, found := l.Get(model.PendingHash)
	assert.False(t, found)
}

func TestUpdateNoMatchIsNoop(t *testing.T) {
	l := openLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, swapRecord("0xa")))

	ok, err := l.Update(ctx, "0xmissing", model.TransactionPatch{}.WithStatus(model.StatusFailed))
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, l.List(), 1)
	assert.Equal(t, model.StatusPending, l.List()[0].Status)
}

func TestUpdateMatchesFirstRecord(t *testing.T) {
	l := openLedger(t, storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, swapRecord("0xdup")))
	require.NoError(t, l.Append(ctx, swapRecord("0xdup")))

	_, err := l.Update(ctx, "0xdup", model.TransactionPatch{}.WithStatus(model.StatusFailed))
	require.NoError(t, err)
	records := l.List()
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.Equal(t, model.StatusPending, records[1].Status)
}

func TestRehydrateFromStore(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	l := openLedger(t, store)
	require.NoError(t, l.Append(ctx, swapRecord("0x1")))
	require.NoError(t, l.Append(ctx, swapRecord("0x2")))

	reopened := openLedger(t, store)
	assert.Equal(t, l.List(), reopened.List())

	require.NoError(t, reopened.Clear(ctx))
	assert.Empty(t, openLedger(t, store).List())
}

func TestOpenCorruptStore(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), StoreKey, []byte("{not json")))
	_, err := Open(context.Background(), store)
	require.Error(t, err)
}

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	l := openLedger(t, &failingStore{MemoryStore: storage.NewMemoryStore()})
	err := l.Append(context.Background(), swapRecord("0x1"))
	require.Error(t, err)
	assert.Empty(t, l.List())
}

func TestSinksReceiveEventsAndFailuresAreAbsorbed(t *testing.T) {
	sink := &recordingSink{err: errors.New("nats down")}
	l := openLedger(t, storage.NewMemoryStore(), WithSink(sink))
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, swapRecord(model.PendingHash)))
	_, err := l.Update(ctx, model.PendingHash, model.TransactionPatch{}.WithHash("0xabc"))
	require.NoError(t, err)
	require.NoError(t, l.Clear(ctx))

	require.Len(t, sink.events, 3)
	assert.Equal(t, model.LedgerAppend, sink.events[0].Op)
	assert.Equal(t, model.LedgerUpdate, sink.events[1].Op)
	assert.Equal(t, "0xabc", sink.events[1].Record.Hash)
	assert.Equal(t, model.LedgerClear, sink.events[2].Op)
	assert.NotEqual(t, sink.events[0].ID, sink.events[1].ID)
}

func TestConcurrentMutations(t *testing.T) {
	l := openLedger(t, storage.NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Append(ctx, swapRecord(fmt.Sprintf("0x%d", i)))
			_, _ = l.Update(ctx, fmt.Sprintf("0x%d", i), model.TransactionPatch{}.WithStatus(model.StatusCompleted))
		}(i)
	}
	wg.Wait()
	assert.Len(t, l.List(), Capacity)
}
