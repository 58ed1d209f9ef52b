package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketlens/internal/cache"
	"marketlens/internal/exchange"
	"marketlens/internal/indicator"
	"marketlens/internal/ratelimit"
	"marketlens/internal/timeframe"
)

// Snapshot 是一次分析的完整产出。
type Snapshot struct {
	Symbol     string
	PeriodKey  string
	Plan       timeframe.FetchPlan
	Candles    []exchange.Candle
	Indicators indicator.Result
	// Stale 表示本快照来自陈旧缓存（限速降级）。
	Stale      bool
	ComputedAt time.Time
}

// Outcome 是批量分析中单个标的的结果，Err 为 nil 时 Snapshot 有效。
type Outcome struct {
	Snapshot Snapshot
	Err      error
}

// Params 控制批量并发与超时。
type Params struct {
	WorkerCount   int
	BatchDeadline time.Duration
}

// Orchestrator 串联 缓存→限速→取数→聚合→指标 的完整管线。
type Orchestrator struct {
	provider   exchange.DataProvider
	classifier *timeframe.Classifier
	engine     *indicator.Engine
	store      *cache.Store
	budget     *ratelimit.Budget
	params     Params
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrchestrator 创建管线编排器。
func NewOrchestrator(
	provider exchange.DataProvider,
	classifier *timeframe.Classifier,
	engine *indicator.Engine,
	store *cache.Store,
	budget *ratelimit.Budget,
	params Params,
	logger *zap.Logger,
) *Orchestrator {
	if params.WorkerCount <= 0 {
		params.WorkerCount = 4
	}
	if params.BatchDeadline <= 0 {
		params.BatchDeadline = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		provider:   provider,
		classifier: classifier,
		engine:     engine,
		store:      store,
		budget:     budget,
		params:     params,
		logger:     logger,
		now:        time.Now,
	}
}

// FetchAndCompute 完成单个标的、单个周期键的取数与指标计算。
// 命中缓存直接返回；额度耗尽时退回陈旧缓存，无缓存可退则报 RATE_LIMIT。
func (o *Orchestrator) FetchAndCompute(ctx context.Context, symbol, periodKey string) (Snapshot, error) {
	plan := o.classifier.ResolvePlan(periodKey)
	key := cacheKey(symbol, plan)

	if v, ok := o.store.Get(key); ok {
		o.logger.Debug("缓存命中",
			zap.String("symbol", symbol),
			zap.String("period_key", plan.PeriodKey),
		)
		return v.(Snapshot), nil
	}

	if !o.budget.Allow() {
		if v, ok, _ := o.store.GetStale(key); ok {
			o.logger.Warn("额度耗尽，退回陈旧缓存",
				zap.String("symbol", symbol),
				zap.String("period_key", plan.PeriodKey),
			)
			snapshot := v.(Snapshot)
			snapshot.Stale = true
			return snapshot, nil
		}
		return Snapshot{}, &Error{
			Type:      ErrorRateLimit,
			Symbol:    symbol,
			PeriodKey: plan.PeriodKey,
			Err:       fmt.Errorf("限速额度耗尽且无可用缓存"),
		}
	}

	candles, err := o.provider.FetchCandles(ctx, symbol, plan.ProviderPeriod, plan.ProviderInterval)
	if err != nil {
		return Snapshot{}, &Error{
			Type:      ErrorAPI,
			Symbol:    symbol,
			PeriodKey: plan.PeriodKey,
			Err:       err,
		}
	}
	if len(candles) == 0 {
		return Snapshot{}, &Error{
			Type:      ErrorNoData,
			Symbol:    symbol,
			PeriodKey: plan.PeriodKey,
			Err:       fmt.Errorf("数据源返回空结果"),
		}
	}

	if plan.AggregateFactor >= 2 {
		candles = exchange.Aggregate(candles, plan.AggregateFactor)
	}

	result, err := o.engine.Compute(candles, plan.Category)
	if err != nil {
		errType := ErrorAPI
		if errors.Is(err, indicator.ErrInsufficientData) {
			errType = ErrorInsufficientData
		}
		return Snapshot{}, &Error{
			Type:      errType,
			Symbol:    symbol,
			PeriodKey: plan.PeriodKey,
			Err:       err,
		}
	}

	snapshot := Snapshot{
		Symbol:     symbol,
		PeriodKey:  plan.PeriodKey,
		Plan:       plan,
		Candles:    candles,
		Indicators: result,
		ComputedAt: o.now().UTC(),
	}
	o.store.Set(key, snapshot)

	o.logger.Info("分析完成",
		zap.String("symbol", symbol),
		zap.String("period_key", plan.PeriodKey),
		zap.String("category", string(plan.Category)),
		zap.Int("candles", len(candles)),
		zap.String("overall_signal", result.OverallSignal),
	)

	return snapshot, nil
}

// FetchAndComputeBatch 并发分析多个标的。
// 并发度受 WorkerCount 限制，整批共享一个截止时间；单个标的的失败
// 只记录在自己的 Outcome 里，不会中断其它标的。
// 截止时间一到立即返回：未完成的标的补超时占位结果，不等挂住的数据源。
func (o *Orchestrator) FetchAndComputeBatch(ctx context.Context, symbols []string, periodKey string) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(symbols))
	if len(symbols) == 0 {
		return outcomes
	}

	batchCtx, cancel := context.WithTimeout(ctx, o.params.BatchDeadline)
	defer cancel()

	type symbolOutcome struct {
		symbol   string
		snapshot Snapshot
		err      error
	}
	// 带满额缓冲：超时返回后滞留的 goroutine 仍可写入并结束。
	results := make(chan symbolOutcome, len(symbols))

	group := &errgroup.Group{}
	group.SetLimit(o.params.WorkerCount)

	for _, symbol := range symbols {
		group.Go(func() error {
			snapshot, err := o.FetchAndCompute(batchCtx, symbol, periodKey)
			results <- symbolOutcome{symbol: symbol, snapshot: snapshot, err: err}
			return nil
		})
	}

	for remaining := len(symbols); remaining > 0; remaining-- {
		select {
		case r := <-results:
			outcomes[r.symbol] = Outcome{Snapshot: r.snapshot, Err: r.err}
		case <-batchCtx.Done():
			o.fillTimeoutOutcomes(outcomes, symbols, periodKey)
			return outcomes
		}
	}

	return outcomes
}

// fillTimeoutOutcomes 为截止时仍未完成的标的补超时结果。
func (o *Orchestrator) fillTimeoutOutcomes(outcomes map[string]Outcome, symbols []string, periodKey string) {
	plan := o.classifier.ResolvePlan(periodKey)

	timedOut := 0
	for _, symbol := range symbols {
		if _, ok := outcomes[symbol]; ok {
			continue
		}
		timedOut++
		outcomes[symbol] = Outcome{Err: &Error{
			Type:      ErrorAPI,
			Symbol:    symbol,
			PeriodKey: plan.PeriodKey,
			Err:       context.DeadlineExceeded,
		}}
	}

	o.logger.Warn("批量分析到达截止时间",
		zap.String("period_key", plan.PeriodKey),
		zap.Int("timed_out", timedOut),
		zap.Int("total", len(symbols)),
	)
}

func cacheKey(symbol string, plan timeframe.FetchPlan) string {
	return fmt.Sprintf("%s:%s:%s", symbol, plan.PeriodKey, plan.Category)
}
