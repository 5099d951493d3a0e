package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"monoswap/internal/model"
)

const (
	keyPrefix    = "monoswap:"
	eventsStream = keyPrefix + "ledger-events"
)

// Store keeps keyed records in Redis.
type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: client}
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Publish appends a ledger event to a capped Redis stream.
func (s *Store) Publish(ctx context.Context, event model.LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventsStream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"id": event.ID, "op": string(event.Op), "event": data},
	}).Err()
}
