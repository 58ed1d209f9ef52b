package timeframe

import (
	"fmt"

	"go.uber.org/multierr"
)

// Category 表示交易风格分类，决定指标参数与数据窗口。
type Category string

const (
	CategoryScalping   Category = "scalping"
	CategoryIntraday   Category = "intraday"
	CategorySwing      Category = "swing"
	CategoryPosition   Category = "position"
	CategoryInvestment Category = "investment"
)

// Categories 返回全部分类，顺序从短线到长线固定。
func Categories() []Category {
	return []Category{
		CategoryScalping,
		CategoryIntraday,
		CategorySwing,
		CategoryPosition,
		CategoryInvestment,
	}
}

// Valid 判断分类是否在枚举范围内。
func (c Category) Valid() bool {
	switch c {
	case CategoryScalping, CategoryIntraday, CategorySwing, CategoryPosition, CategoryInvestment:
		return true
	default:
		return false
	}
}

// ParameterBundle 为单个分类的完整指标参数。
// StochK/StochD 仅 scalping 使用，ADXPeriod/ADXThreshold 仅 intraday 使用，
// 其余分类对应字段为 0 表示不启用。
type ParameterBundle struct {
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64

	SMAFast int
	SMASlow int
	EMAFast int
	EMASlow int

	BollingerPeriod int
	BollingerStd    float64

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	VolumePeriod int

	StochK int
	StochD int

	ADXPeriod    int
	ADXThreshold float64
}

// Override 允许通过配置覆盖分类阈值，零值字段保持默认。
type Override struct {
	RSIOverbought float64
	RSIOversold   float64
	BollingerStd  float64
}

func defaultBundles() map[Category]ParameterBundle {
	return map[Category]ParameterBundle{
		CategoryScalping: {
			RSIPeriod: 7, RSIOverbought: 80, RSIOversold: 20,
			SMAFast: 3, SMASlow: 8,
			EMAFast: 2, EMASlow: 5,
			BollingerPeriod: 8, BollingerStd: 1.8,
			MACDFast: 5, MACDSlow: 13, MACDSignal: 3,
			VolumePeriod: 5,
			StochK:       3,
			StochD:       2,
		},
		CategoryIntraday: {
			RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30,
			SMAFast: 9, SMASlow: 21,
			EMAFast: 8, EMASlow: 21,
			BollingerPeriod: 20, BollingerStd: 2.0,
			MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
			VolumePeriod: 20,
			ADXPeriod:    14,
			ADXThreshold: 25,
		},
		CategorySwing: {
			RSIPeriod: 21, RSIOverbought: 65, RSIOversold: 35,
			SMAFast: 20, SMASlow: 50,
			EMAFast: 12, EMASlow: 26,
			BollingerPeriod: 20, BollingerStd: 2.2,
			MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
			VolumePeriod: 30,
		},
		CategoryPosition: {
			RSIPeriod: 28, RSIOverbought: 60, RSIOversold: 40,
			SMAFast: 50, SMASlow: 200,
			EMAFast: 50, EMASlow: 200,
			BollingerPeriod: 50, BollingerStd: 2.5,
			MACDFast: 19, MACDSlow: 39, MACDSignal: 9,
			VolumePeriod: 50,
		},
		CategoryInvestment: {
			RSIPeriod: 50, RSIOverbought: 55, RSIOversold: 45,
			SMAFast: 100, SMASlow: 300,
			EMAFast: 100, EMASlow: 300,
			BollingerPeriod: 100, BollingerStd: 3.0,
			MACDFast: 26, MACDSlow: 52, MACDSignal: 18,
			VolumePeriod: 100,
		},
	}
}

func (p ParameterBundle) validate(category Category) error {
	var err error

	if p.RSIPeriod <= 1 {
		err = multierr.Append(err, fmt.Errorf("%s: rsi_period 必须大于1", category))
	}
	if p.RSIOversold >= p.RSIOverbought {
		err = multierr.Append(err, fmt.Errorf("%s: rsi_oversold 必须小于 rsi_overbought", category))
	}
	if p.RSIOversold < 0 || p.RSIOverbought > 100 {
		err = multierr.Append(err, fmt.Errorf("%s: rsi 阈值必须位于[0,100]", category))
	}
	if p.SMAFast <= 0 || p.SMASlow <= 0 || p.SMAFast >= p.SMASlow {
		err = multierr.Append(err, fmt.Errorf("%s: sma_fast 必须小于 sma_slow 且为正", category))
	}
	if p.EMAFast <= 0 || p.EMASlow <= 0 || p.EMAFast >= p.EMASlow {
		err = multierr.Append(err, fmt.Errorf("%s: ema_fast 必须小于 ema_slow 且为正", category))
	}
	if p.BollingerPeriod <= 1 || p.BollingerStd <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s: bollinger 参数必须为正", category))
	}
	if p.MACDFast <= 0 || p.MACDSlow <= 0 || p.MACDSignal <= 0 || p.MACDFast >= p.MACDSlow {
		err = multierr.Append(err, fmt.Errorf("%s: macd 参数非法", category))
	}
	if p.VolumePeriod <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s: volume_period 必须为正", category))
	}
	if category == CategoryScalping && (p.StochK <= 0 || p.StochD <= 0) {
		err = multierr.Append(err, fmt.Errorf("%s: stoch 参数必须为正", category))
	}
	if category == CategoryIntraday && (p.ADXPeriod <= 0 || p.ADXThreshold <= 0) {
		err = multierr.Append(err, fmt.Errorf("%s: adx 参数必须为正", category))
	}

	return err
}

func applyOverride(bundle ParameterBundle, o Override) ParameterBundle {
	if o.RSIOverbought > 0 {
		bundle.RSIOverbought = o.RSIOverbought
	}
	if o.RSIOversold > 0 {
		bundle.RSIOversold = o.RSIOversold
	}
	if o.BollingerStd > 0 {
		bundle.BollingerStd = o.BollingerStd
	}
	return bundle
}

func buildBundles(overrides map[Category]Override) (map[Category]ParameterBundle, error) {
	bundles := defaultBundles()

	var err error
	for category, override := range overrides {
		if !category.Valid() {
			err = multierr.Append(err, fmt.Errorf("未知的分类覆盖项: %q", category))
			continue
		}
		bundles[category] = applyOverride(bundles[category], override)
	}
	if err != nil {
		return nil, err
	}

	for _, category := range Categories() {
		if vErr := bundles[category].validate(category); vErr != nil {
			err = multierr.Append(err, vErr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("指标参数校验失败: %w", err)
	}

	return bundles, nil
}
