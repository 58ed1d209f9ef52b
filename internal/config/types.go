package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig 控制对数据源的调用额度。
type RateLimitConfig struct {
	MaxCalls int           `mapstructure:"max_calls"`
	Window   time.Duration `mapstructure:"window"`
}

// CacheConfig 控制分析结果缓存。
// MaxAge 决定 Sweep 的回收线，应大于 TTL 以保留陈旧快照作降级用。
type CacheConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

// PipelineConfig 控制批量分析的并发与超时。
type PipelineConfig struct {
	WorkerCount   int           `mapstructure:"worker_count"`
	BatchDeadline time.Duration `mapstructure:"batch_deadline"`
}

// CategoryOverride 覆盖单个分类的阈值，零值字段保持默认。
type CategoryOverride struct {
	RSIOverbought float64 `mapstructure:"rsi_overbought"`
	RSIOversold   float64 `mapstructure:"rsi_oversold"`
	BollingerStd  float64 `mapstructure:"bollinger_std"`
}

// AnalysisConfig 管理指标阈值覆盖，键为分类名。
type AnalysisConfig struct {
	Categories map[string]CategoryOverride `mapstructure:"categories"`
}

// WatchlistConfig 控制周期性分析的标的列表。
type WatchlistConfig struct {
	Symbols         []string      `mapstructure:"symbols"`
	PeriodKey       string        `mapstructure:"period_key"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// OpenAIConfig 描述行情点评所用的大模型参数，api_key 为空时功能关闭。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled 判断行情点评功能是否开启。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.RateLimit.MaxCalls <= 0 {
		err = multierr.Append(err, errors.New("ratelimit.max_calls 必须大于0"))
	}
	if c.RateLimit.Window <= 0 {
		err = multierr.Append(err, errors.New("ratelimit.window 必须大于0"))
	}
	if c.Cache.TTL <= 0 {
		err = multierr.Append(err, errors.New("cache.ttl 必须大于0"))
	}
	if c.Cache.MaxAge < c.Cache.TTL {
		err = multierr.Append(err, errors.New("cache.max_age 不能小于 ttl"))
	}
	if c.Pipeline.WorkerCount <= 0 {
		err = multierr.Append(err, errors.New("pipeline.worker_count 必须大于0"))
	}
	if c.Pipeline.BatchDeadline <= 0 {
		err = multierr.Append(err, errors.New("pipeline.batch_deadline 必须大于0"))
	}
	if len(c.Watchlist.Symbols) == 0 {
		err = multierr.Append(err, errors.New("watchlist.symbols 至少包含一个标的"))
	}
	if c.Watchlist.PeriodKey == "" {
		err = multierr.Append(err, errors.New("watchlist.period_key 不能为空"))
	}
	if c.Watchlist.RefreshInterval <= 0 {
		err = multierr.Append(err, errors.New("watchlist.refresh_interval 必须大于0"))
	}
	if c.OpenAI.Enabled() {
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
