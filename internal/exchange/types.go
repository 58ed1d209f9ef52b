package exchange

import (
	"context"
	"time"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// DataProvider 抽象行情数据源。
// period 为数据窗口（如 "10d"、"2mo"），interval 为K线间隔（如 "1h"）。
// 返回空切片与返回错误都表示本次取不到数据，由上层决定降级策略。
type DataProvider interface {
	FetchCandles(ctx context.Context, symbol, period, interval string) ([]Candle, error)
}
