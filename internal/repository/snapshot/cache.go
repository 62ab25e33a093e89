package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/db"
	"github.com/metergate/metergate/internal/metrics"
)

// Cache slot names. Each slot is one KV key holding one envelope.
const (
	SlotUsage      = "usage"
	SlotMode       = "mode"
	SlotExclusions = "exclusions"
)

// TTLs for the slow-moving slots. The usage slot TTL comes from config.
const (
	ModeTTL       = 24 * time.Hour
	ExclusionsTTL = 24 * time.Hour
)

// kvStore is the consumer interface for the cache backend (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// envelope wraps a cached payload with the freshness qualifiers checked on
// read.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	PeriodKey int64           `json:"periodKey,omitempty"`
	Complete  bool            `json:"complete"`
	StoredAt  int64           `json:"storedAt"` // unix millis
}

// Query qualifies a slot read. MaxAge is mandatory; PeriodKey and
// RequireComplete apply to period-scoped slots.
type Query struct {
	Slot            string
	MaxAge          time.Duration
	PeriodKey       int64
	RequireComplete bool
}

// Cache is the slot-keyed snapshot store.
type Cache struct {
	kv     kvStore
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New creates a snapshot cache. Keys are written under prefix.
func New(kv kvStore, prefix string, logger *zap.Logger) *Cache {
	return &Cache{kv: kv, prefix: prefix, logger: logger, now: time.Now}
}

func (c *Cache) key(slot string) string {
	return c.prefix + "snapshot:" + slot
}

// Get reads a slot into dst and reports whether a fresh entry was found.
// An entry is fresh when its age is strictly below MaxAge, its period key
// matches (when one is asked for) and it is complete (when required). Stale
// or mismatched entries count as misses.
func (c *Cache) Get(ctx context.Context, q Query, dst any) (bool, error) {
	raw, err := c.kv.Get(ctx, c.key(q.Slot))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			metrics.SnapshotCacheTotal.WithLabelValues(q.Slot, "miss").Inc()
			return false, nil
		}
		return false, fmt.Errorf("read slot %s: %w", q.Slot, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("dropping undecodable cache entry",
			zap.String("slot", q.Slot), zap.Error(err))
		metrics.SnapshotCacheTotal.WithLabelValues(q.Slot, "miss").Inc()
		return false, nil
	}

	age := c.now().Sub(time.UnixMilli(env.StoredAt))
	switch {
	case age >= q.MaxAge:
	case q.PeriodKey != 0 && env.PeriodKey != q.PeriodKey:
	case q.RequireComplete && !env.Complete:
	default:
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			return false, fmt.Errorf("decode slot %s payload: %w", q.Slot, err)
		}
		metrics.SnapshotCacheTotal.WithLabelValues(q.Slot, "hit").Inc()
		return true, nil
	}

	metrics.SnapshotCacheTotal.WithLabelValues(q.Slot, "miss").Inc()
	return false, nil
}

// Put stores a payload in a slot. periodKey may be zero for slots that are
// not period-scoped.
func (c *Cache) Put(ctx context.Context, slot string, payload any, periodKey int64, complete bool, ttl time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode slot %s payload: %w", slot, err)
	}
	env := envelope{
		Payload:   body,
		PeriodKey: periodKey,
		Complete:  complete,
		StoredAt:  c.now().UnixMilli(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", slot, err)
	}
	// Keep the backend entry around past its freshness horizon so stale
	// reads can still serve degraded responses.
	if err := c.kv.SetWithTTL(ctx, c.key(slot), raw, ttl*2); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

// GetStale reads a slot ignoring freshness, for degraded serving when the
// upstream is down. Period key and completeness are still ignored.
func (c *Cache) GetStale(ctx context.Context, slot string, dst any) (bool, error) {
	raw, err := c.kv.Get(ctx, c.key(slot))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read slot %s: %w", slot, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return false, fmt.Errorf("decode slot %s payload: %w", slot, err)
	}
	return true, nil
}

// Invalidate removes the given slots, or every slot when none are named.
func (c *Cache) Invalidate(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		slots = []string{SlotUsage, SlotMode, SlotExclusions}
	}
	keys := make([]string, len(slots))
	for i, s := range slots {
		keys[i] = c.key(s)
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate slots: %w", err)
	}
	return nil
}
