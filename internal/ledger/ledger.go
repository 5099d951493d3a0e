// Package ledger keeps the bounded, persisted list of submitted operations.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"monoswap/internal/metrics"
	"monoswap/internal/model"
	"monoswap/internal/storage"
)

const (
	// StoreKey is the key the ledger is persisted under.
	StoreKey = "transaction-store"
	// Capacity is the number of records retained, most recent first.
	Capacity = 10
)

// Sink receives every ledger mutation.
type Sink interface {
	Publish(ctx context.Context, event model.LedgerEvent) error
}

// Ledger owns the transaction records. All mutations are serialized and
// persisted before they return.
type Ledger struct {
	store   storage.KeyedStore
	sinks   []Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	records []model.Transaction
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithSink(sink Sink) Option {
	return func(l *Ledger) {
		if sink != nil {
			l.sinks = append(l.sinks, sink)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Open rehydrates the ledger from store. A missing record starts empty; a
// record that cannot be parsed is an error.
func Open(ctx context.Context, store storage.KeyedStore, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is nil")
	}
	l := &Ledger{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	data, ok, err := store.Load(ctx, StoreKey)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ok && len(data) > 0 {
		var records []model.Transaction
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse ledger: %w", err)
		}
		if len(records) > Capacity {
			records = records[:Capacity]
		}
		l.records = records
	}
	l.metrics.SetLedgerRecords(len(l.records))
	l.logger.Debug("ledger opened", zap.Int("records", len(l.records)))
	return l, nil
}

// Append prepends record, evicting the oldest beyond capacity.
func (l *Ledger) Append(ctx context.Context, record model.Transaction) error {
	if record.Timestamp == 0 {
		record.Timestamp = l.now().UnixMilli()
	}

	l.mu.Lock()
	next := make([]model.Transaction, 0, Capacity)
	next = append(next, record)
	next = append(next, l.records...)
	if len(next) > Capacity {
		next = next[:Capacity]
	}
	if err := l.persistLocked(ctx, next); err != nil {
		l.mu.Unlock()
		return err
	}
	l.records = next
	l.mu.Unlock()

	l.emit(ctx, model.LedgerAppend, record.Hash, &record)
	return nil
}

// Update merges patch into the first record whose hash equals hash, keeping
// its position. It reports whether a record matched.
func (l *Ledger) Update(ctx context.Context, hash string, patch model.TransactionPatch) (bool, error) {
	l.mu.Lock()
	idx := -1
	for i := range l.records {
		if l.records[i].Hash == hash {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return false, nil
	}

	next := make([]model.Transaction, len(l.records))
	copy(next, l.records)
	patch.Apply(&next[idx])
	if err := l.persistLocked(ctx, next); err != nil {
		l.mu.Unlock()
		return false, err
	}
	l.records = next
	updated := next[idx]
	l.mu.Unlock()

	l.emit(ctx, model.LedgerUpdate, hash, &updated)
	return true, nil
}

// List returns a copy of the records, most recent first.
func (l *Ledger) List() []model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Transaction, len(l.records))
	for i, r := range l.records {
		if r.Executed != nil {
			leg := *r.Executed
			r.Executed = &leg
		}
		out[i] = r
	}
	return out
}

// Get returns the first record with hash.
func (l *Ledger) Get(hash string) (model.Transaction, bool) {
	for _, r := range l.List() {
		if r.Hash == hash {
			return r, true
		}
	}
	return model.Transaction{}, false
}

// Clear removes every record.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	if err := l.persistLocked(ctx, nil); err != nil {
		l.mu.Unlock()
		return err
	}
	l.records = nil
	l.mu.Unlock()

	l.emit(ctx, model.LedgerClear, "", nil)
	return nil
}

func (l *Ledger) persistLocked(ctx context.Context, records []model.Transaction) error {
	if records == nil {
		records = []model.Transaction{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := l.store.Save(ctx, StoreKey, data); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	l.metrics.SetLedgerRecords(len(records))
	return nil
}

// emit fans the mutation out to sinks. Sink failures are logged only.
func (l *Ledger) emit(ctx context.Context, op model.LedgerOp, key string, record *model.Transaction) {
	l.metrics.RecordLedgerEvent(string(op))
	if len(l.sinks) == 0 {
		return
	}
	event := model.LedgerEvent{
		ID:     uuid.NewString(),
		Op:     op,
		Key:    key,
		Record: record,
		At:     l.now().UTC(),
	}
	for _, sink := range l.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			l.logger.Warn("ledger sink publish failed",
				zap.String("op", string(op)),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}
