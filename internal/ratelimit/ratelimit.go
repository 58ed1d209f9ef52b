package ratelimit

import (
	"sync"
	"time"
)

// Budget 是滑动窗口限速器：最近 window 内最多放行 maxCalls 次调用。
// 所有方法并发安全。
type Budget struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time
	now      func() time.Time
}

// New 创建限速器。maxCalls 与 window 必须为正，否则退回 1 次/分钟。
func New(maxCalls int, window time.Duration) *Budget {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Budget{
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
}

// Allow 在一次临界区内完成过期淘汰、额度判断与记账。
// 返回 true 表示本次调用已计入额度，false 表示额度耗尽且未记账。
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.evict(now)

	if len(b.calls) >= b.maxCalls {
		return false
	}

	b.calls = append(b.calls, now)
	return true
}

// Remaining 返回当前窗口内剩余额度，仅用于观测。
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evict(b.now())
	return b.maxCalls - len(b.calls)
}

// evict 淘汰窗口外的时间戳，调用方必须持有锁。
func (b *Budget) evict(now time.Time) {
	cutoff := now.Add(-b.window)

	idx := 0
	for idx < len(b.calls) && !b.calls[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		b.calls = append(b.calls[:0], b.calls[idx:]...)
	}
}
