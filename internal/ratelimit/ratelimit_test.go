package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock 手动推进时间，避免测试依赖真实时钟。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)}
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

func newTestBudget(maxCalls int, window time.Duration) (*Budget, *fakeClock) {
	clock := newFakeClock()
	budget := New(maxCalls, window)
	budget.now = clock.Now
	return budget, clock
}

func TestAllowWithinBudget(t *testing.T) {
	budget, clock := newTestBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !budget.Allow() {
			t.Fatalf("第 %d 次调用不应被拒绝", i+1)
		}
	}
	if budget.Allow() {
		t.Fatal("第 4 次调用应被拒绝")
	}

	clock.Advance(61 * time.Second)
	if !budget.Allow() {
		t.Fatal("窗口滑过后调用应被放行")
	}
}

func TestDeniedCallDoesNotConsume(t *testing.T) {
	budget, _ := newTestBudget(1, time.Minute)

	if !budget.Allow() {
		t.Fatal("首次调用应被放行")
	}
	// 被拒绝的调用不计入额度，剩余额度保持不变。
	for i := 0; i < 5; i++ {
		if budget.Allow() {
			t.Fatalf("第 %d 次超额调用不应被放行", i+2)
		}
	}
	if got := budget.Remaining(); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestSlidingWindowEviction(t *testing.T) {
	budget, clock := newTestBudget(2, time.Minute)

	if !budget.Allow() {
		t.Fatal("t=0 的调用应被放行")
	}
	clock.Advance(30 * time.Second)
	if !budget.Allow() {
		t.Fatal("t=30s 的调用应被放行")
	}
	if budget.Allow() {
		t.Fatal("额度耗尽时应拒绝")
	}

	// t=60s：首条记录恰好滑出窗口。
	clock.Advance(30 * time.Second)
	if !budget.Allow() {
		t.Fatal("首条记录滑出后应放行")
	}
	if budget.Allow() {
		t.Fatal("t=30s 的记录仍在窗口内，应拒绝")
	}
}

func TestRemaining(t *testing.T) {
	budget, clock := newTestBudget(3, time.Minute)

	if got := budget.Remaining(); got != 3 {
		t.Fatalf("初始 Remaining = %d, want 3", got)
	}
	budget.Allow()
	budget.Allow()
	if got := budget.Remaining(); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
	clock.Advance(2 * time.Minute)
	if got := budget.Remaining(); got != 3 {
		t.Errorf("窗口滑过后 Remaining = %d, want 3", got)
	}
}

func TestAllowConcurrent(t *testing.T) {
	budget, _ := newTestBudget(50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if budget.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("并发放行数 = %d, want 50", allowed)
	}
}
