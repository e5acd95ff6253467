package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domorder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"
	"github.com/redis/go-redis/v9"
)

const peerRedis = "redis"

// StatusEntry is the cached view of an order's lifecycle position.
type StatusEntry struct {
	Status    domorder.Status `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StatusCache mirrors order.status_changed into Redis.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log observability.Logger

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewStatusCache(rdb redis.Cmdable, ttl time.Duration, tel observability.Observability) *StatusCache {
	tel = observability.Or(tel)
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusCache{
		rdb:          rdb,
		ttl:          ttl,
		log:          tel.Logger().With(observability.F("component", "status_cache")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (c *StatusCache) Start(sub domoutbox.Subscriber) {
	sub.Subscribe(domorder.StatusChangedEvent{}.EventName(), c.handleStatusChanged)
}

func (c *StatusCache) handleStatusChanged(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.StatusChangedEvent)
	if !ok {
		return nil
	}
	return c.Put(ctx, evt.OrderID, StatusEntry{Status: evt.To, UpdatedAt: evt.OccurredAt})
}

func (c *StatusCache) Put(ctx context.Context, orderID string, entry StatusEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redisx: encode status: %w", err)
	}
	start := time.Now()
	err = c.rdb.Set(ctx, statusKey(orderID), b, c.ttl).Err()
	c.observe("set", start, err)
	if err != nil {
		logctx.FromOr(ctx, c.log).Warn("status_cache_write_failed",
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("redisx: set status %q: %w", orderID, err)
	}
	return nil
}

// Lookup returns the cached status. A miss is reported with ok=false and a nil error.
func (c *StatusCache) Lookup(ctx context.Context, orderID string) (entry StatusEntry, ok bool, err error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe("get", start, nil)
		return StatusEntry{}, false, nil
	}
	c.observe("get", start, err)
	if err != nil {
		return StatusEntry{}, false, fmt.Errorf("redisx: get status %q: %w", orderID, err)
	}
	if err := json.Unmarshal(b, &entry); err != nil {
		return StatusEntry{}, false, fmt.Errorf("redisx: decode status %q: %w", orderID, err)
	}
	return entry, true, nil
}

func (c *StatusCache) observe(endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if c.extCounter != nil {
		c.extCounter.Add(1,
			observability.L("peer", peerRedis),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
	}
	if c.extHistogram != nil {
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerRedis),
			observability.L("endpoint", endpoint),
		)
	}
}
