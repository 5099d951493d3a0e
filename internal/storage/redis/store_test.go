package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monoswap/internal/model"
)

// Runs against a real server when SWAPPER_TEST_REDIS_ADDR is set.
func TestStoreAgainstServer(t *testing.T) {
	addr := os.Getenv("SWAPPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SWAPPER_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	store := NewStoreWithClient(client)
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	key := "test-" + uuid.NewString()
	defer client.Del(context.Background(), keyPrefix+key)

	_, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, key, []byte(`[]`)))
	data, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(data))

	ev := model.LedgerEvent{ID: uuid.NewString(), Op: model.LedgerClear, At: time.Now().UTC()}
	before, err := client.XLen(ctx, eventsStream).Result()
	require.NoError(t, err)
	require.NoError(t, store.Publish(ctx, ev))
	after, err := client.XLen(ctx, eventsStream).Result()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after, before)
}

func TestLoadUnreachableServer(t *testing.T) {
	store := NewStore("127.0.0.1:1", "", 0)
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := store.Load(ctx, "anything")
	assert.Error(t, err)
}
