// Package replay implements the idempotency guard that keeps a payment from
// being processed twice. Keys expire; expired keys no longer count as seen.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitwit/x402gov/logger"
)

// MinTTL is the shortest window a key is remembered for.
const MinTTL = 60 * time.Second

// Store persists consumed keys until their expiry.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

// Guard answers "has this key been consumed?".
type Guard struct {
	store  Store
	log    logger.Logger
	closed atomic.Bool
	once   sync.Once
}

// NewGuard wraps store. A nil logger is replaced by a no-op logger.
func NewGuard(store Store, log logger.Logger) *Guard {
	return &Guard{store: store, log: logger.OrNoop(log)}
}

// Check reports true when key has not been consumed and it is safe to proceed.
// Store failures and a destroyed guard answer false.
func (g *Guard) Check(ctx context.Context, key string) bool {
	if g.closed.Load() {
		g.log.Error("replay check on destroyed guard", map[string]any{"key": key})
		return false
	}
	seen, err := g.store.Exists(ctx, key)
	if err != nil {
		g.log.Error("replay store lookup failed", map[string]any{"key": key, "error": err})
		return false
	}
	return !seen
}

// Record marks key consumed for ttl.
func (g *Guard) Record(ctx context.Context, key string, ttl time.Duration) error {
	if g.closed.Load() {
		return errDestroyed
	}
	return g.store.Put(ctx, key, ttl)
}

// Destroy releases the underlying store. Safe to call more than once.
func (g *Guard) Destroy() {
	g.once.Do(func() {
		g.closed.Store(true)
		if err := g.store.Close(); err != nil {
			g.log.Warn("replay store close failed", map[string]any{"error": err})
		}
	})
}

// PayloadKey fingerprints a raw, not yet finalized payment blob.
func PayloadKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "payload:" + hex.EncodeToString(sum[:])
}

// SignatureKey keys a finalized transaction signature.
func SignatureKey(sig string) string {
	return "sig:" + sig
}

// TTL converts a requirement timeout into a replay window. Fractions round
// up to the next second and the result is never shorter than MinTTL.
func TTL(timeout time.Duration) time.Duration {
	ttl := timeout.Truncate(time.Second)
	if ttl < timeout {
		ttl += time.Second
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	return ttl
}
