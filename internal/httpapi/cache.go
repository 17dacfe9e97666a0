package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"leadmarket-platform/internal/leads"
	"leadmarket-platform/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	openLeadsKey = "leads:open"
	openLeadsTTL = 15 * time.Second
)

// LeadCache is a short-TTL redis cache for the full open-leads list, the one
// query every nationwide provider polls. Failures fall through to the
// loader; the cache is never load-bearing.
type LeadCache struct {
	rdb *redis.Client
}

func NewLeadCache(rdb *redis.Client) *LeadCache { return &LeadCache{rdb: rdb} }

func (c *LeadCache) OpenLeads(ctx context.Context, load func(ctx context.Context) ([]leads.Lead, error)) ([]leads.Lead, error) {
	log := logger.From(ctx)

	if raw, err := c.rdb.Get(ctx, openLeadsKey).Bytes(); err == nil {
		var out []leads.Lead
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		// Corrupt entry; drop it and reload.
		_ = c.rdb.Del(ctx, openLeadsKey).Err()
	} else if err != redis.Nil {
		log.Warn("open leads cache read failed", "err", err)
	}

	out, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, openLeadsKey, raw, openLeadsTTL).Err(); err != nil {
			log.Warn("open leads cache write failed", "err", err)
		}
	}
	return out, nil
}

// Invalidate drops the cached list. Called after any write that changes
// which leads are open.
func (c *LeadCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, openLeadsKey).Err(); err != nil {
		logger.From(ctx).Warn("open leads cache invalidation failed", "err", err)
	}
}
