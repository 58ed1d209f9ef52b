package cache

import (
	"sync"
	"time"
)

// entry 保存缓存值及其写入时间。
type entry struct {
	value    any
	storedAt time.Time
}

// Store 是按写入时间判定过期的 TTL 缓存。
// Get 只判过期不删除，过期条目留给 GetStale 兜底读取，由 Sweep 统一回收。
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New 创建缓存，ttl 必须为正，否则退回 5 分钟。
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get 返回未过期的缓存值；过期或不存在返回 false，但不删除条目。
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.storedAt) >= s.ttl {
		return nil, false
	}
	return e.value, true
}

// GetStale 无视 TTL 返回缓存值，用于限速降级时的陈旧快照。
// 第二个返回值表示该条目是否已过期。
func (s *Store) GetStale(key string) (any, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, false
	}
	expired := s.now().Sub(e.storedAt) >= s.ttl
	return e.value, true, expired
}

// Set 写入或覆盖缓存值并刷新写入时间。
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{value: value, storedAt: s.now()}
}

// Sweep 删除写入时间早于 maxAge 的条目，返回删除数量。
// maxAge 通常大于 TTL，让过期条目在被回收前仍可作陈旧快照使用。
func (s *Store) Sweep(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for key, e := range s.entries {
		if e.storedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len 返回当前条目数，含已过期未回收的条目。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
