package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state"))

	_, ok, err := store.Load(ctx, "transaction-store")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "transaction-store", []byte(`[{"hash":"0x1"}]`)))
	require.NoError(t, store.Save(ctx, "transaction-store", []byte(`[{"hash":"0x2"}]`)))

	data, ok, err := store.Load(ctx, "transaction-store")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"hash":"0x2"}]`, string(data))

	_, err = os.Stat(store.path("transaction-store") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreSanitizesKey(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), "../escape/key", []byte(`{}`)))
	assert.Equal(t, dir, filepath.Dir(store.path("../escape/key")))
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	value := []byte(`{"a":1}`)
	require.NoError(t, store.Save(ctx, "k", value))
	value[0] = 'x'

	data, ok, err := store.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestJsonlJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "ledger.jsonl")
	journal := NewJsonlJournal(path)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	record := &model.Transaction{Hash: model.PendingHash, Type: model.TxSwap, Status: model.StatusPending}
	require.NoError(t, journal.Publish(context.Background(), model.LedgerEvent{ID: "1", Op: model.LedgerAppend, Record: record, At: at}))
	require.NoError(t, journal.Publish(context.Background(), model.LedgerEvent{ID: "2", Op: model.LedgerClear, At: at}))

	events, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.LedgerAppend, events[0].Op)
	assert.Equal(t, model.PendingHash, events[0].Record.Hash)
	assert.Equal(t, model.LedgerClear, events[1].Op)
	assert.Nil(t, events[1].Record)
	assert.True(t, at.Equal(events[1].At))
}

func TestReadJournalMissing(t *testing.T) {
	events, err := ReadJournal(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestJsonlJournalEventsByHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	journal := NewJsonlJournal(path)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hash := "0xAbC0000000000000000000000000000000000000000000000000000000000001"

	pending := &model.Transaction{Hash: model.PendingHash, Type: model.TxAddLiquidity, Status: model.StatusPending}
	sent := &model.Transaction{Hash: hash, Type: model.TxAddLiquidity, Status: model.StatusPending}
	failed := &model.Transaction{Hash: hash, Type: model.TxAddLiquidity, Status: model.StatusFailed}
	other := &model.Transaction{Hash: "0x02", Type: model.TxSwap, Status: model.StatusCompleted}
	for i, ev := range []model.LedgerEvent{
		{Op: model.LedgerAppend, Record: pending},
		{Op: model.LedgerUpdate, Key: model.PendingHash, Record: sent},
		{Op: model.LedgerAppend, Record: other},
		{Op: model.LedgerUpdate, Key: hash, Record: failed},
		{Op: model.LedgerClear},
	} {
		ev.ID = fmt.Sprint(i)
		ev.At = at.Add(time.Duration(i) * time.Second)
		require.NoError(t, journal.Publish(ctx, ev))
	}

	events, err := journal.EventsByHash(ctx, strings.ToLower(hash))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, model.StatusPending, events[0].Record.Status)
	assert.Equal(t, "3", events[1].ID)
	assert.Equal(t, model.StatusFailed, events[1].Record.Status)

	none, err := journal.EventsByHash(ctx, "0x03")
	require.NoError(t, err)
	assert.Empty(t, none)
}
