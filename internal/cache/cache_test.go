package cache

import (
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	store := New(ttl)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestGetHonorsTTL(t *testing.T) {
	store, now := newTestStore(time.Minute)

	store.Set("BTC/USDT:1H:intraday", 42)

	if v, ok := store.Get("BTC/USDT:1H:intraday"); !ok || v != 42 {
		t.Fatalf("Get = (%v,%v), want (42,true)", v, ok)
	}

	*now = now.Add(59 * time.Second)
	if _, ok := store.Get("BTC/USDT:1H:intraday"); !ok {
		t.Fatal("TTL 内的条目应命中")
	}

	*now = now.Add(2 * time.Second)
	if _, ok := store.Get("BTC/USDT:1H:intraday"); ok {
		t.Fatal("过期条目不应命中")
	}
	// Get 不删除，条目仍在。
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestGetMissingKey(t *testing.T) {
	store, _ := newTestStore(time.Minute)

	if v, ok := store.Get("nope"); ok || v != nil {
		t.Errorf("Get 未写入的键 = (%v,%v), want (nil,false)", v, ok)
	}
}

func TestGetStaleIgnoresTTL(t *testing.T) {
	store, now := newTestStore(time.Minute)

	store.Set("k", "snapshot")
	*now = now.Add(10 * time.Minute)

	v, ok, expired := store.GetStale("k")
	if !ok || v != "snapshot" {
		t.Fatalf("GetStale = (%v,%v), want (snapshot,true)", v, ok)
	}
	if !expired {
		t.Error("过期条目的 expired 应为 true")
	}

	if _, ok, _ := store.GetStale("missing"); ok {
		t.Error("GetStale 未写入的键不应命中")
	}
}

func TestSetOverwritesAndRefreshes(t *testing.T) {
	store, now := newTestStore(time.Minute)

	store.Set("k", 1)
	*now = now.Add(50 * time.Second)
	store.Set("k", 2)

	*now = now.Add(30 * time.Second)
	// 距离第二次写入仅 30s，仍应命中且取到新值。
	if v, ok := store.Get("k"); !ok || v != 2 {
		t.Errorf("Get = (%v,%v), want (2,true)", v, ok)
	}
}

func TestSweep(t *testing.T) {
	store, now := newTestStore(time.Minute)

	store.Set("old", 1)
	*now = now.Add(3 * time.Minute)
	store.Set("fresh", 2)

	removed := store.Sweep(2 * time.Minute)
	if removed != 1 {
		t.Fatalf("Sweep 删除数 = %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
	if _, ok, _ := store.GetStale("old"); ok {
		t.Error("被回收的条目不应存在")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Error("新条目应保留")
	}
}
