package monitor

import (
	"time"

	"marketlens/internal/pipeline"
	"marketlens/internal/timeframe"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventAnalysisSnapshot EventType = "analysis_snapshot"
	EventPipelineError    EventType = "pipeline_error"
	EventCommentary       EventType = "commentary"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AnalysisSnapshotPayload 记录一次分析的关键结论。
type AnalysisSnapshotPayload struct {
	Symbol         string             `json:"symbol"`
	PeriodKey      string             `json:"period_key"`
	Category       timeframe.Category `json:"category"`
	Close          float64            `json:"close"`
	OverallSignal  string             `json:"overall_signal"`
	SignalStrength float64            `json:"signal_strength"`
	Signals        map[string]string  `json:"signals"`
	CandleCount    int                `json:"candle_count"`
	Stale          bool               `json:"stale"`
	ComputedAt     time.Time          `json:"computed_at"`
}

// PipelineErrorPayload 记录管线失败。
type PipelineErrorPayload struct {
	Symbol    string             `json:"symbol"`
	PeriodKey string             `json:"period_key"`
	ErrorType pipeline.ErrorType `json:"error_type"`
	Error     string             `json:"error"`
}

// CommentaryPayload 记录大模型生成的行情点评。
type CommentaryPayload struct {
	Symbol    string `json:"symbol"`
	PeriodKey string `json:"period_key"`
	Text      string `json:"text"`
}
