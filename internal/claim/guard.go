package claim

import (
	"context"
	"fmt"
	"time"

	"leadmarket-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Guard rejects duplicate in-flight claim attempts for the same lead and
// provider before any row lock is taken. Strictly best-effort; the locked
// transaction remains the source of truth for exactly-once.
type Guard interface {
	Acquire(ctx context.Context, leadID, providerID string) (release func(), ok bool, err error)
}

const (
	guardTTL            = 30 * time.Second
	guardReleaseTimeout = 2 * time.Second
)

// RedisGuard caps in-flight attempts per (lead, provider) pair at one. The
// TTL reclaims slots leaked by a process crash.
type RedisGuard struct {
	rdb *redis.Client
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard { return &RedisGuard{rdb: rdb} }

func (g *RedisGuard) Acquire(ctx context.Context, leadID, providerID string) (func(), bool, error) {
	key := fmt.Sprintf("claim:%s:%s", leadID, providerID)
	ok, err := utils.AcquireConcurrencyCap(ctx, g.rdb, key, 1, guardTTL)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Detached context so release still runs when the request context is
		// already canceled.
		ctx, cancel := context.WithTimeout(context.Background(), guardReleaseTimeout)
		defer cancel()
		_ = utils.ReleaseConcurrencyCap(ctx, g.rdb, key)
	}
	return release, true, nil
}
