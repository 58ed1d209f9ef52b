package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketlens/internal/advisor"
	"marketlens/internal/cache"
	"marketlens/internal/config"
	"marketlens/internal/exchange"
	"marketlens/internal/indicator"
	"marketlens/internal/monitor"
	"marketlens/internal/pipeline"
	"marketlens/internal/ratelimit"
	"marketlens/internal/store"
	"marketlens/internal/timeframe"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// components 聚合一次构建出的全部服务。
type components struct {
	orchestrator *pipeline.Orchestrator
	cache        *cache.Store
	monitor      *monitor.Service
	advisor      *advisor.Client
}

func (a *App) buildComponents() (*components, error) {
	classifier, err := timeframe.NewClassifier(categoryOverrides(a.cfg.Analysis))
	if err != nil {
		return nil, err
	}

	provider, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	analysisCache := cache.New(a.cfg.Cache.TTL)
	budget := ratelimit.New(a.cfg.RateLimit.MaxCalls, a.cfg.RateLimit.Window)
	engine := indicator.NewEngine(classifier)

	orchestrator := pipeline.NewOrchestrator(
		provider,
		classifier,
		engine,
		analysisCache,
		budget,
		pipeline.Params{
			WorkerCount:   a.cfg.Pipeline.WorkerCount,
			BatchDeadline: a.cfg.Pipeline.BatchDeadline,
		},
		a.logger,
	)

	monitorService, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return nil, err
	}

	c := &components{
		orchestrator: orchestrator,
		cache:        analysisCache,
		monitor:      monitorService,
	}

	if a.cfg.OpenAI.Enabled() {
		advisorClient, err := advisor.NewClient(a.cfg.OpenAI, a.logger)
		if err != nil {
			return nil, err
		}
		c.advisor = advisorClient
	}

	return c, nil
}

// Run 周期性分析关注列表，直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("分析系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Strings("watchlist", a.cfg.Watchlist.Symbols),
		zap.String("period_key", a.cfg.Watchlist.PeriodKey),
	)

	c, err := a.buildComponents()
	if err != nil {
		return err
	}

	refreshInterval := a.cfg.Watchlist.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}

	a.refresh(ctx, c)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			a.refresh(ctx, c)
		}
	}
}

// refresh 执行一轮关注列表分析并回收过期缓存。
func (a *App) refresh(ctx context.Context, c *components) {
	outcomes := c.orchestrator.FetchAndComputeBatch(ctx, a.cfg.Watchlist.Symbols, a.cfg.Watchlist.PeriodKey)

	succeeded := 0
	for symbol, outcome := range outcomes {
		if outcome.Err != nil {
			a.logger.Warn("标的分析失败",
				zap.String("symbol", symbol),
				zap.String("error_type", string(pipeline.TypeOf(outcome.Err))),
				zap.Error(outcome.Err),
			)
			c.monitor.RecordPipelineError(ctx, symbol, a.cfg.Watchlist.PeriodKey, outcome.Err)
			continue
		}

		succeeded++
		c.monitor.RecordAnalysis(ctx, outcome.Snapshot)

		if c.advisor != nil && !outcome.Snapshot.Stale {
			a.comment(ctx, c, outcome.Snapshot)
		}
	}

	removed := c.cache.Sweep(a.cfg.Cache.MaxAge)

	a.logger.Info("本轮分析完成",
		zap.Int("total", len(outcomes)),
		zap.Int("succeeded", succeeded),
		zap.Int("cache_swept", removed),
	)
}

func (a *App) comment(ctx context.Context, c *components, snapshot pipeline.Snapshot) {
	text, err := c.advisor.Comment(ctx, snapshot)
	if err != nil {
		a.logger.Warn("生成行情点评失败",
			zap.String("symbol", snapshot.Symbol),
			zap.Error(err),
		)
		return
	}
	c.monitor.RecordCommentary(ctx, snapshot.Symbol, snapshot.PeriodKey, text)
}

// categoryOverrides 将配置里的阈值覆盖转换成分类器参数。
func categoryOverrides(cfg config.AnalysisConfig) map[timeframe.Category]timeframe.Override {
	if len(cfg.Categories) == 0 {
		return nil
	}

	overrides := make(map[timeframe.Category]timeframe.Override, len(cfg.Categories))
	for name, o := range cfg.Categories {
		overrides[timeframe.Category(name)] = timeframe.Override{
			RSIOverbought: o.RSIOverbought,
			RSIOversold:   o.RSIOversold,
			BollingerStd:  o.BollingerStd,
		}
	}
	return overrides
}
