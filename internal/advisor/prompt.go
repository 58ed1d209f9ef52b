package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"marketlens/internal/pipeline"
)

const commentaryTemplate = `
你是一个专业的市场技术分析师。请根据以下技术指标分析结果，用中文写一段简短的行情点评。

标的: {{ .Symbol }}
周期: {{ .PeriodKey }}（{{ .Category }}）
最新收盘价: {{ printf "%.4f" .Close }}
总体信号: {{ .OverallSignal }}（强度 {{ printf "%.2f" .SignalStrength }}）

指标明细：
{{ .IndicatorsJSON }}

要求：
1. 先用一句话概括当前趋势与多空倾向；
2. 指出最值得关注的 1-2 个指标信号及其含义；
3. 提示当前分析的主要不确定性；
4. 不要给出买卖建议，控制在 150 字以内，直接输出正文。
`

var tmpl = template.Must(template.New("commentary").Parse(commentaryTemplate))

type promptContext struct {
	Symbol         string
	PeriodKey      string
	Category       string
	Close          float64
	OverallSignal  string
	SignalStrength float64
	IndicatorsJSON string
}

// indicatorDigest 是喂给模型的指标摘要，避免整条序列入提示词。
type indicatorDigest struct {
	Latest  map[string]float64 `json:"latest"`
	Signals map[string]string  `json:"signals"`
}

// BuildPrompt 将分析快照渲染成点评提示词。
func BuildPrompt(snapshot pipeline.Snapshot) (string, error) {
	digest := indicatorDigest{
		Latest:  snapshot.Indicators.Latest,
		Signals: snapshot.Indicators.Signals,
	}

	digestJSON, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化指标摘要失败: %w", err)
	}

	ctx := promptContext{
		Symbol:         snapshot.Symbol,
		PeriodKey:      snapshot.PeriodKey,
		Category:       string(snapshot.Plan.Category),
		Close:          snapshot.Indicators.Close,
		OverallSignal:  snapshot.Indicators.OverallSignal,
		SignalStrength: snapshot.Indicators.SignalStrength,
		IndicatorsJSON: string(digestJSON),
	}

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
