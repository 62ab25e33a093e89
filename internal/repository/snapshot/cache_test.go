package snapshot

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/db"
)

type fakeKV struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, &db.Error{Op: db.OpGet, Err: db.ErrKeyNotFound}
	}
	return v, nil
}

func (f *fakeKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type payload struct {
	Total float64 `json:"total"`
}

func TestCacheRoundTrip(t *testing.T) {
	kv := newFakeKV()
	c := New(kv, "metergate:", zap.NewNop())

	if err := c.Put(context.Background(), SlotUsage, payload{Total: 1250}, 42, true, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	ok, err := c.Get(context.Background(), Query{
		Slot: SlotUsage, MaxAge: time.Minute, PeriodKey: 42, RequireComplete: true,
	}, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got.Total != 1250 {
		t.Fatalf("ok=%v got=%+v", ok, got)
	}
	if _, stored := kv.data["metergate:snapshot:usage"]; !stored {
		t.Error("entry not written under prefixed key")
	}
}

func TestCacheMissOnEmpty(t *testing.T) {
	c := New(newFakeKV(), "", zap.NewNop())
	var got payload
	ok, err := c.Get(context.Background(), Query{Slot: SlotUsage, MaxAge: time.Minute}, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty store")
	}
}

func TestCacheFreshnessBoundary(t *testing.T) {
	kv := newFakeKV()
	c := New(kv, "", zap.NewNop())

	base := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	if err := c.Put(context.Background(), SlotUsage, payload{Total: 1}, 42, true, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	q := Query{Slot: SlotUsage, MaxAge: time.Minute, PeriodKey: 42, RequireComplete: true}

	c.now = func() time.Time { return base.Add(time.Minute - time.Millisecond) }
	if ok, _ := c.Get(context.Background(), q, &got); !ok {
		t.Error("entry one millisecond under the horizon must be fresh")
	}

	c.now = func() time.Time { return base.Add(time.Minute) }
	if ok, _ := c.Get(context.Background(), q, &got); ok {
		t.Error("entry exactly at the horizon must be stale")
	}
}

func TestCachePeriodKeyMismatch(t *testing.T) {
	c := New(newFakeKV(), "", zap.NewNop())
	if err := c.Put(context.Background(), SlotUsage, payload{Total: 1}, 42, true, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var got payload
	ok, _ := c.Get(context.Background(), Query{
		Slot: SlotUsage, MaxAge: time.Minute, PeriodKey: 43, RequireComplete: true,
	}, &got)
	if ok {
		t.Error("entry from another billing period must miss")
	}
}

func TestCacheIncompleteEntry(t *testing.T) {
	c := New(newFakeKV(), "", zap.NewNop())
	if err := c.Put(context.Background(), SlotUsage, payload{Total: 1}, 42, false, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var got payload
	ok, _ := c.Get(context.Background(), Query{
		Slot: SlotUsage, MaxAge: time.Minute, PeriodKey: 42, RequireComplete: true,
	}, &got)
	if ok {
		t.Error("incomplete entry must miss when completeness is required")
	}

	// Slots that do not require completeness still read it.
	ok, _ = c.Get(context.Background(), Query{Slot: SlotUsage, MaxAge: time.Minute, PeriodKey: 42}, &got)
	if !ok {
		t.Error("incomplete entry should serve when completeness is not required")
	}
}

func TestCacheGetStale(t *testing.T) {
	c := New(newFakeKV(), "", zap.NewNop())
	base := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	if err := c.Put(context.Background(), SlotUsage, payload{Total: 7}, 42, true, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c.now = func() time.Time { return base.Add(time.Hour) }
	var got payload
	ok, err := c.GetStale(context.Background(), SlotUsage, &got)
	if err != nil {
		t.Fatalf("GetStale: %v", err)
	}
	if !ok || got.Total != 7 {
		t.Fatalf("ok=%v got=%+v", ok, got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	kv := newFakeKV()
	c := New(kv, "", zap.NewNop())
	for _, slot := range []string{SlotUsage, SlotMode, SlotExclusions} {
		if err := c.Put(context.Background(), slot, payload{}, 0, true, time.Minute); err != nil {
			t.Fatalf("Put %s: %v", slot, err)
		}
	}

	if err := c.Invalidate(context.Background(), SlotUsage); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := kv.data["snapshot:usage"]; ok {
		t.Error("usage slot survived invalidation")
	}
	if _, ok := kv.data["snapshot:mode"]; !ok {
		t.Error("mode slot should be untouched")
	}

	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate all: %v", err)
	}
	if len(kv.data) != 0 {
		t.Errorf("slots remain after full invalidation: %v", kv.data)
	}
}
