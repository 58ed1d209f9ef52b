package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketlens/internal/cache"
	"marketlens/internal/exchange"
	"marketlens/internal/indicator"
	"marketlens/internal/ratelimit"
	"marketlens/internal/timeframe"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	candles []exchange.Candle
	err     error
	// hangOn 中的标的阻塞到 ctx 结束，模拟挂死的数据源。
	hangOn map[string]bool
}

func (f *fakeProvider) FetchCandles(ctx context.Context, symbol, period, interval string) ([]exchange.Candle, error) {
	f.mu.Lock()
	f.calls++
	hang := f.hangOn[symbol]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func hourlyCandles(n int) []exchange.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, 0, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		candles = append(candles, exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    100,
		})
	}
	return candles
}

func newTestOrchestrator(t *testing.T, provider exchange.DataProvider, maxCalls int, ttl time.Duration, params Params) *Orchestrator {
	t.Helper()

	classifier, err := timeframe.NewClassifier(nil)
	if err != nil {
		t.Fatalf("NewClassifier 失败: %v", err)
	}
	return NewOrchestrator(
		provider,
		classifier,
		indicator.NewEngine(classifier),
		cache.New(ttl),
		ratelimit.New(maxCalls, time.Minute),
		params,
		nil,
	)
}

func TestFetchAndComputeCachesResult(t *testing.T) {
	provider := &fakeProvider{candles: hourlyCandles(60)}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{})

	first, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1H")
	if err != nil {
		t.Fatalf("FetchAndCompute 失败: %v", err)
	}
	if first.Stale {
		t.Error("新计算的快照不应为 Stale")
	}
	if first.Plan.Category != timeframe.CategoryIntraday {
		t.Errorf("Category = %s, want intraday", first.Plan.Category)
	}

	second, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1H")
	if err != nil {
		t.Fatalf("二次调用失败: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("数据源调用次数 = %d, want 1（二次应走缓存）", provider.callCount())
	}
	if !second.ComputedAt.Equal(first.ComputedAt) {
		t.Error("缓存命中应返回同一快照")
	}
}

func TestFetchAndComputeRateLimit(t *testing.T) {
	provider := &fakeProvider{candles: hourlyCandles(60)}
	orch := newTestOrchestrator(t, provider, 1, time.Minute, Params{})

	if _, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1H"); err != nil {
		t.Fatalf("首次调用失败: %v", err)
	}

	// 额度耗尽且该标的无缓存可退。
	_, err := orch.FetchAndCompute(context.Background(), "ETH/USDT", "1H")
	if TypeOf(err) != ErrorRateLimit {
		t.Fatalf("err = %v, want RATE_LIMIT", err)
	}

	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Symbol != "ETH/USDT" {
		t.Errorf("错误应携带标的信息: %v", err)
	}
}

func TestFetchAndComputeStaleFallback(t *testing.T) {
	provider := &fakeProvider{candles: hourlyCandles(60)}
	orch := newTestOrchestrator(t, provider, 1, time.Nanosecond, Params{})

	if _, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1H"); err != nil {
		t.Fatalf("首次调用失败: %v", err)
	}

	// 等缓存过期，此时额度也已耗尽。
	time.Sleep(5 * time.Millisecond)

	snapshot, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1H")
	if err != nil {
		t.Fatalf("应退回陈旧缓存而非报错: %v", err)
	}
	if !snapshot.Stale {
		t.Error("降级快照应标记 Stale")
	}
	if provider.callCount() != 1 {
		t.Errorf("数据源调用次数 = %d, want 1", provider.callCount())
	}
}

func TestFetchAndComputeNoData(t *testing.T) {
	provider := &fakeProvider{candles: nil}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{})

	_, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1D")
	if TypeOf(err) != ErrorNoData {
		t.Fatalf("err = %v, want NO_DATA", err)
	}
}

func TestFetchAndComputeAPIError(t *testing.T) {
	apiErr := fmt.Errorf("接口炸了")
	provider := &fakeProvider{err: apiErr}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{})

	_, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1D")
	if TypeOf(err) != ErrorAPI {
		t.Fatalf("err = %v, want API_ERROR", err)
	}
	if !errors.Is(err, apiErr) {
		t.Errorf("应能解包出原始错误: %v", err)
	}
}

func TestFetchAndComputeInsufficientData(t *testing.T) {
	provider := &fakeProvider{candles: hourlyCandles(5)}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{})

	_, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "1D")
	if TypeOf(err) != ErrorInsufficientData {
		t.Fatalf("err = %v, want INSUFFICIENT_DATA", err)
	}
	if !errors.Is(err, indicator.ErrInsufficientData) {
		t.Errorf("应能解包出指标层错误: %v", err)
	}
}

func TestFetchAndComputeAggregates(t *testing.T) {
	provider := &fakeProvider{candles: hourlyCandles(24)}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{})

	snapshot, err := orch.FetchAndCompute(context.Background(), "BTC/USDT", "2H")
	if err != nil {
		t.Fatalf("FetchAndCompute 失败: %v", err)
	}
	if len(snapshot.Candles) != 12 {
		t.Errorf("聚合后K线数 = %d, want 12", len(snapshot.Candles))
	}
	if snapshot.Plan.AggregateFactor != 2 {
		t.Errorf("AggregateFactor = %d, want 2", snapshot.Plan.AggregateFactor)
	}
}

func TestBatchCompletesDespiteHungSymbol(t *testing.T) {
	provider := &fakeProvider{
		candles: hourlyCandles(60),
		hangOn:  map[string]bool{"DOGE/USDT": true},
	}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{
		WorkerCount:   5,
		BatchDeadline: 200 * time.Millisecond,
	})

	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT", "DOGE/USDT"}

	start := time.Now()
	outcomes := orch.FetchAndComputeBatch(context.Background(), symbols, "1H")
	elapsed := time.Since(start)

	if len(outcomes) != len(symbols) {
		t.Fatalf("结果数 = %d, want %d", len(outcomes), len(symbols))
	}
	for _, symbol := range symbols {
		if _, ok := outcomes[symbol]; !ok {
			t.Errorf("缺少 %s 的结果", symbol)
		}
	}

	hung := outcomes["DOGE/USDT"]
	if TypeOf(hung.Err) != ErrorAPI {
		t.Errorf("挂死标的的错误 = %v, want API_ERROR", hung.Err)
	}
	if !errors.Is(hung.Err, context.DeadlineExceeded) {
		t.Errorf("应能解包出超时错误: %v", hung.Err)
	}

	for _, symbol := range symbols[:4] {
		if outcomes[symbol].Err != nil {
			t.Errorf("%s 不应失败: %v", symbol, outcomes[symbol].Err)
		}
	}

	if elapsed > 2*time.Second {
		t.Errorf("批量耗时 %v，应在截止时间附近返回", elapsed)
	}
}

func TestBatchReturnsAtDeadlineWithStuckProvider(t *testing.T) {
	// 该数据源完全无视 ctx，模拟底层 HTTP 调用卡死。
	provider := &providerFunc{fn: func(ctx context.Context, symbol, period, interval string) ([]exchange.Candle, error) {
		if symbol == "DOGE/USDT" {
			time.Sleep(1500 * time.Millisecond)
			return nil, fmt.Errorf("迟到的响应")
		}
		return hourlyCandles(60), nil
	}}

	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{
		WorkerCount:   5,
		BatchDeadline: 200 * time.Millisecond,
	})

	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT", "DOGE/USDT"}

	start := time.Now()
	outcomes := orch.FetchAndComputeBatch(context.Background(), symbols, "1H")
	elapsed := time.Since(start)

	// 必须在截止时间附近返回，而不是等卡死的调用结束。
	if elapsed >= time.Second {
		t.Fatalf("批量耗时 %v, 未在截止时间返回", elapsed)
	}
	if len(outcomes) != len(symbols) {
		t.Fatalf("结果数 = %d, want %d", len(outcomes), len(symbols))
	}

	stuck := outcomes["DOGE/USDT"]
	if TypeOf(stuck.Err) != ErrorAPI {
		t.Errorf("卡死标的的错误 = %v, want API_ERROR", stuck.Err)
	}
	if !errors.Is(stuck.Err, context.DeadlineExceeded) {
		t.Errorf("应能解包出超时错误: %v", stuck.Err)
	}

	for _, symbol := range symbols[:4] {
		if outcomes[symbol].Err != nil {
			t.Errorf("%s 不应失败: %v", symbol, outcomes[symbol].Err)
		}
	}
}

func TestBatchEmptySymbols(t *testing.T) {
	provider := &fakeProvider{candles: hourlyCandles(60)}
	orch := newTestOrchestrator(t, provider, 10, time.Minute, Params{})

	outcomes := orch.FetchAndComputeBatch(context.Background(), nil, "1H")
	if len(outcomes) != 0 {
		t.Errorf("空输入应返回空结果: %d", len(outcomes))
	}
}

func TestBatchLimitsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	provider := &providerFunc{fn: func(ctx context.Context, symbol, period, interval string) ([]exchange.Candle, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return hourlyCandles(60), nil
	}}

	orch := newTestOrchestrator(t, provider, 100, time.Minute, Params{
		WorkerCount:   2,
		BatchDeadline: 5 * time.Second,
	})

	symbols := []string{"A/USDT", "B/USDT", "C/USDT", "D/USDT", "E/USDT", "F/USDT"}
	outcomes := orch.FetchAndComputeBatch(context.Background(), symbols, "1H")

	if len(outcomes) != len(symbols) {
		t.Fatalf("结果数 = %d, want %d", len(outcomes), len(symbols))
	}
	if maxSeen > 2 {
		t.Errorf("并发峰值 = %d, 超过 WorkerCount=2", maxSeen)
	}
}

type providerFunc struct {
	fn func(ctx context.Context, symbol, period, interval string) ([]exchange.Candle, error)
}

func (p *providerFunc) FetchCandles(ctx context.Context, symbol, period, interval string) ([]exchange.Candle, error) {
	return p.fn(ctx, symbol, period, interval)
}
