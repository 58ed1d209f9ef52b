package advisor

import (
	"strings"
	"testing"

	"marketlens/internal/indicator"
	"marketlens/internal/pipeline"
	"marketlens/internal/timeframe"
)

func TestBuildPrompt(t *testing.T) {
	snapshot := pipeline.Snapshot{
		Symbol:    "BTC/USDT",
		PeriodKey: "4H",
		Plan:      timeframe.FetchPlan{Category: timeframe.CategoryIntraday},
		Indicators: indicator.Result{
			Close:          65234.5,
			OverallSignal:  indicator.SignalBullish,
			SignalStrength: 2.0 / 3.0,
			Latest: map[string]float64{
				"rsi":      62.3,
				"sma_fast": 64800,
				"sma_slow": 63100,
			},
			Signals: map[string]string{
				"rsi":  indicator.SignalNeutral,
				"sma":  indicator.SignalBullish,
				"macd": indicator.SignalBullish,
			},
		},
	}

	prompt, err := BuildPrompt(snapshot)
	if err != nil {
		t.Fatalf("BuildPrompt 失败: %v", err)
	}

	for _, fragment := range []string{
		"BTC/USDT",
		"4H",
		"intraday",
		"bullish",
		"\"rsi\": 62.3",
		"\"sma\": \"bullish\"",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("提示词缺少 %q\n%s", fragment, prompt)
		}
	}

	// 序列数据不应进入提示词。
	if strings.Contains(prompt, "series") {
		t.Error("提示词不应包含序列数据")
	}
}
