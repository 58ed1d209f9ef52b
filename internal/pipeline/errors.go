package pipeline

import (
	"errors"
	"fmt"
)

// ErrorType 是管线错误的封闭分类。
type ErrorType string

const (
	// ErrorNoData 表示数据源返回空结果。
	ErrorNoData ErrorType = "NO_DATA"
	// ErrorAPI 表示数据源调用失败（含超时与取消）。
	ErrorAPI ErrorType = "API_ERROR"
	// ErrorRateLimit 表示额度耗尽且无陈旧缓存可用。
	ErrorRateLimit ErrorType = "RATE_LIMIT"
	// ErrorInsufficientData 表示K线数量不足以计算指标。
	ErrorInsufficientData ErrorType = "INSUFFICIENT_DATA"
)

// Error 携带错误分类与定位信息的管线错误。
type Error struct {
	Type      ErrorType
	Symbol    string
	PeriodKey string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %s", e.Type, e.Symbol, e.PeriodKey)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Type, e.Symbol, e.PeriodKey, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TypeOf 提取管线错误的分类，非管线错误归为 API_ERROR。
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	return ErrorAPI
}
