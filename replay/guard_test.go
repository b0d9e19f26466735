package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGuardCheckRecordExpire(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := NewGuard(NewMemoryStore(WithClock(clock.Now)), nil)
	defer g.Destroy()

	key := SignatureKey("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb")
	assert.True(t, g.Check(ctx, key))

	require.NoError(t, g.Record(ctx, key, 30*time.Second))
	assert.False(t, g.Check(ctx, key))

	clock.Advance(29 * time.Second)
	assert.False(t, g.Check(ctx, key))

	clock.Advance(time.Second)
	assert.True(t, g.Check(ctx, key), "expired keys must not count as seen")
}

func TestGuardDestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryStore(WithSweepInterval(time.Millisecond)), nil)
	require.NoError(t, g.Record(ctx, "k", time.Minute))

	g.Destroy()
	g.Destroy()

	assert.False(t, g.Check(ctx, "other"))
	assert.Error(t, g.Record(ctx, "k", time.Minute))
}

type failingStore struct{}

func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("unavailable")
}
func (failingStore) Put(context.Context, string, time.Duration) error { return nil }
func (failingStore) Close() error                                     { return nil }

func TestGuardStoreFailureIsTreatedAsSeen(t *testing.T) {
	g := NewGuard(failingStore{}, nil)
	assert.False(t, g.Check(context.Background(), "k"))
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewMemoryStore(WithClock(clock.Now))

	require.NoError(t, s.Put(ctx, "a", time.Second))
	require.NoError(t, s.Put(ctx, "b", time.Minute))
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestPayloadKeyIsStable(t *testing.T) {
	a := PayloadKey([]byte("tx-bytes"))
	assert.Equal(t, a, PayloadKey([]byte("tx-bytes")))
	assert.NotEqual(t, a, PayloadKey([]byte("tx-bytes!")))
	assert.Contains(t, a, "payload:")
}

func TestTTL(t *testing.T) {
	assert.Equal(t, MinTTL, TTL(10*time.Second))
	assert.Equal(t, 301*time.Second, TTL(300*time.Second+time.Millisecond))
	assert.Equal(t, 300*time.Second, TTL(300*time.Second))
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	g := NewGuard(NewRedisStore(client, ""), nil)

	key := PayloadKey([]byte("blob"))
	assert.True(t, g.Check(ctx, key))
	require.NoError(t, g.Record(ctx, key, 5*time.Second))
	assert.False(t, g.Check(ctx, key))
	assert.True(t, mr.Exists("x402:replay:"+key))

	mr.FastForward(6 * time.Second)
	assert.True(t, g.Check(ctx, key))
}

func TestRedisStoreUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 5 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	g := NewGuard(NewRedisStore(client, "t:"), nil)
	assert.False(t, g.Check(context.Background(), "k"))
}
