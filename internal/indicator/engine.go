package indicator

import (
	"errors"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"marketlens/internal/exchange"
	"marketlens/internal/timeframe"
)

// 最少需要的K线根数，低于该值所有指标都不可信。
const minCandles = 10

// 震荡类指标在数据不足时的中性哨兵值。
const neutralOscillator = 50.0

// ErrInsufficientData 表示K线数量不足以计算指标。
var ErrInsufficientData = errors.New("K线数量不足，无法计算指标")

// 信号取值。
const (
	SignalBullish    = "bullish"
	SignalBearish    = "bearish"
	SignalNeutral    = "neutral"
	SignalOverbought = "overbought"
	SignalOversold   = "oversold"
	SignalHigh       = "high"
	SignalLow        = "low"
	SignalNormal     = "normal"
	SignalStrong     = "strong_trend"
	SignalWeak       = "weak_trend"
	SignalAboveUpper = "above_upper"
	SignalBelowLower = "below_lower"
	SignalWithin     = "within_bands"
)

// Result 为一次指标计算的汇总。
// Latest 按指标键保存最新值，Series 保存与输入K线等长的对齐序列，
// Signals 保存逐指标的分类信号。
type Result struct {
	Category timeframe.Category

	Close     float64
	PrevClose float64

	Latest  map[string]float64
	Series  map[string][]float64
	Signals map[string]string

	// OverallSignal 由 rsi/sma/macd 三票按多空对比合成，
	// SignalStrength 为占优方向的票数占总票数的比例。
	OverallSignal  string
	SignalStrength float64
}

// Engine 按分类参数计算技术指标。无内部状态，可并发使用。
type Engine struct {
	classifier *timeframe.Classifier
}

// NewEngine 创建指标引擎。
func NewEngine(classifier *timeframe.Classifier) *Engine {
	return &Engine{classifier: classifier}
}

// Compute 计算 category 对应参数下的全套指标。
// 输入K线必须按时间升序；不足 10 根返回 ErrInsufficientData。
func (e *Engine) Compute(candles []exchange.Candle, category timeframe.Category) (Result, error) {
	if len(candles) < minCandles {
		return Result{}, fmt.Errorf("%w: 仅有 %d 根", ErrInsufficientData, len(candles))
	}
	if !category.Valid() {
		return Result{}, fmt.Errorf("未知的分类: %q", category)
	}

	params := e.classifier.Bundle(category)
	series := NewSeries(candles)

	result := Result{
		Category:  category,
		Close:     Last(series.Close),
		PrevClose: Prev(series.Close),
		Latest:    make(map[string]float64),
		Series:    make(map[string][]float64),
		Signals:   make(map[string]string),
	}

	e.computeRSI(&result, series, params)
	e.computeMovingAverages(&result, series, params)
	e.computeBollinger(&result, series, params)
	e.computeMACD(&result, series, params)
	e.computeVolume(&result, series, params)

	if category == timeframe.CategoryScalping {
		e.computeStochastic(&result, series, params)
	}
	if category == timeframe.CategoryIntraday {
		e.computeADX(&result, series, params)
	}

	synthesize(&result)

	return result, nil
}

func (e *Engine) computeRSI(result *Result, series Series, params timeframe.ParameterBundle) {
	n := series.Len()

	if n <= params.RSIPeriod {
		result.Latest["rsi"] = neutralOscillator
		result.Series["rsi"] = flatSeries(n, neutralOscillator)
		result.Signals["rsi"] = SignalNeutral
		return
	}

	rsi := talib.Rsi(series.Close, params.RSIPeriod)
	// 热身区无定义，用中性值填充。
	for i := 0; i < params.RSIPeriod && i < len(rsi); i++ {
		rsi[i] = neutralOscillator
	}

	latest := Last(rsi)
	result.Latest["rsi"] = latest
	result.Series["rsi"] = rsi

	switch {
	case latest > params.RSIOverbought:
		result.Signals["rsi"] = SignalOverbought
	case latest < params.RSIOversold:
		result.Signals["rsi"] = SignalOversold
	default:
		result.Signals["rsi"] = SignalNeutral
	}
}

func (e *Engine) computeMovingAverages(result *Result, series Series, params timeframe.ParameterBundle) {
	smaFast := priceSeries(series.Close, params.SMAFast, talib.Sma)
	smaSlow := priceSeries(series.Close, params.SMASlow, talib.Sma)
	emaFast := priceSeries(series.Close, params.EMAFast, talib.Ema)
	emaSlow := priceSeries(series.Close, params.EMASlow, talib.Ema)

	result.Latest["sma_fast"] = Last(smaFast)
	result.Latest["sma_slow"] = Last(smaSlow)
	result.Latest["ema_fast"] = Last(emaFast)
	result.Latest["ema_slow"] = Last(emaSlow)
	result.Series["sma_fast"] = smaFast
	result.Series["sma_slow"] = smaSlow
	result.Series["ema_fast"] = emaFast
	result.Series["ema_slow"] = emaSlow

	result.Signals["sma"] = trendSignal(Last(smaFast), Last(smaSlow))
	result.Signals["ema"] = trendSignal(Last(emaFast), Last(emaSlow))
}

func (e *Engine) computeBollinger(result *Result, series Series, params timeframe.ParameterBundle) {
	n := series.Len()

	var upper, middle, lower []float64
	if n < params.BollingerPeriod {
		// 数据不足时带宽收敛为0，三条带贴着收盘价。
		upper = copySeries(series.Close)
		middle = copySeries(series.Close)
		lower = copySeries(series.Close)
	} else {
		upper, middle, lower = talib.BBands(series.Close, params.BollingerPeriod, params.BollingerStd, params.BollingerStd, talib.SMA)
		backfill(upper, params.BollingerPeriod-1)
		backfill(middle, params.BollingerPeriod-1)
		backfill(lower, params.BollingerPeriod-1)
	}

	result.Latest["bollinger_upper"] = Last(upper)
	result.Latest["bollinger_middle"] = Last(middle)
	result.Latest["bollinger_lower"] = Last(lower)
	result.Series["bollinger_upper"] = upper
	result.Series["bollinger_middle"] = middle
	result.Series["bollinger_lower"] = lower

	lastClose := result.Close
	switch {
	case lastClose > Last(upper):
		result.Signals["bollinger_position"] = SignalAboveUpper
	case lastClose < Last(lower):
		result.Signals["bollinger_position"] = SignalBelowLower
	default:
		result.Signals["bollinger_position"] = SignalWithin
	}
}

func (e *Engine) computeMACD(result *Result, series Series, params timeframe.ParameterBundle) {
	n := series.Len()

	var line, signal, hist []float64
	if n < params.MACDSlow+params.MACDSignal {
		line = flatSeries(n, 0)
		signal = flatSeries(n, 0)
		hist = flatSeries(n, 0)
	} else {
		line, signal, hist = talib.Macd(series.Close, params.MACDFast, params.MACDSlow, params.MACDSignal)
	}

	result.Latest["macd_line"] = Last(line)
	result.Latest["macd_signal"] = Last(signal)
	result.Latest["macd_histogram"] = Last(hist)
	result.Series["macd_line"] = line
	result.Series["macd_signal"] = signal
	result.Series["macd_histogram"] = hist

	result.Signals["macd"] = trendSignal(Last(line), Last(signal))
}

func (e *Engine) computeVolume(result *Result, series Series, params timeframe.ParameterBundle) {
	ratios := volumeRatios(series.Volume, params.VolumePeriod)

	latest := Last(ratios)
	result.Latest["volume_ratio"] = latest
	result.Series["volume_ratio"] = ratios

	switch {
	case latest >= 1.5:
		result.Signals["volume"] = SignalHigh
	case latest <= 0.5:
		result.Signals["volume"] = SignalLow
	default:
		result.Signals["volume"] = SignalNormal
	}
}

func (e *Engine) computeStochastic(result *Result, series Series, params timeframe.ParameterBundle) {
	n := series.Len()

	var k, d []float64
	if n < params.StochK+params.StochD {
		k = flatSeries(n, neutralOscillator)
		d = flatSeries(n, neutralOscillator)
	} else {
		k, d = talib.StochF(series.High, series.Low, series.Close, params.StochK, params.StochD, talib.SMA)
		warmup := params.StochK + params.StochD - 2
		for i := 0; i < warmup && i < len(k); i++ {
			k[i] = neutralOscillator
			d[i] = neutralOscillator
		}
	}

	latestK := Last(k)
	result.Latest["stoch_k"] = latestK
	result.Latest["stoch_d"] = Last(d)
	result.Series["stoch_k"] = k
	result.Series["stoch_d"] = d

	switch {
	case latestK > 80:
		result.Signals["stoch"] = SignalOverbought
	case latestK < 20:
		result.Signals["stoch"] = SignalOversold
	default:
		result.Signals["stoch"] = SignalNeutral
	}
}

func (e *Engine) computeADX(result *Result, series Series, params timeframe.ParameterBundle) {
	n := series.Len()

	if n <= 2*params.ADXPeriod {
		result.Latest["adx"] = 0
		result.Latest["plus_di"] = 0
		result.Latest["minus_di"] = 0
		result.Series["adx"] = flatSeries(n, 0)
		result.Series["plus_di"] = flatSeries(n, 0)
		result.Series["minus_di"] = flatSeries(n, 0)
		result.Signals["adx"] = SignalWeak
		return
	}

	adx := talib.Adx(series.High, series.Low, series.Close, params.ADXPeriod)
	plusDI := talib.PlusDI(series.High, series.Low, series.Close, params.ADXPeriod)
	minusDI := talib.MinusDI(series.High, series.Low, series.Close, params.ADXPeriod)

	latest := Last(adx)
	result.Latest["adx"] = latest
	result.Latest["plus_di"] = Last(plusDI)
	result.Latest["minus_di"] = Last(minusDI)
	result.Series["adx"] = adx
	result.Series["plus_di"] = plusDI
	result.Series["minus_di"] = minusDI

	if latest > params.ADXThreshold {
		result.Signals["adx"] = SignalStrong
	} else {
		result.Signals["adx"] = SignalWeak
	}
}

// synthesize 从 rsi/sma/macd 三个信号投票得出总体倾向。
// rsi 按反转逻辑计票：超卖视为看多，超买视为看空。
// 只比较多空两个方向的票数，中性票不参与胜负；
// 强度为方向票数中的较大者占总票数的比例，双方都无票时为 0。
func synthesize(result *Result) {
	bullish, bearish := 0, 0
	total := 0

	for _, key := range []string{"rsi", "sma", "macd"} {
		total++
		switch result.Signals[key] {
		case SignalBullish, SignalOversold:
			bullish++
		case SignalBearish, SignalOverbought:
			bearish++
		}
	}

	overall := SignalNeutral
	switch {
	case bullish > bearish:
		overall = SignalBullish
	case bearish > bullish:
		overall = SignalBearish
	}

	directional := bullish
	if bearish > directional {
		directional = bearish
	}

	result.OverallSignal = overall
	result.SignalStrength = SafeDivide(float64(directional), float64(total))
}

func trendSignal(fast, slow float64) string {
	switch {
	case fast > slow:
		return SignalBullish
	case fast < slow:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// priceSeries 计算均线类序列，热身区回填首个有效值；
// 数据不足整个周期时退化为收盘价本身。
func priceSeries(close []float64, period int, fn func([]float64, int) []float64) []float64 {
	if period <= 1 {
		return copySeries(close)
	}
	if len(close) < period {
		return copySeries(close)
	}

	out := fn(close, period)
	backfill(out, period-1)
	return out
}

// backfill 用 values[first] 覆盖之前的热身区。
func backfill(values []float64, first int) {
	if first <= 0 || first >= len(values) {
		return
	}
	v := values[first]
	for i := 0; i < first; i++ {
		values[i] = v
	}
}

func flatSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func copySeries(values []float64) []float64 {
	dst := make([]float64, len(values))
	copy(dst, values)
	return dst
}

// volumeRatios 计算每根K线相对其前 period 根均量的比值。
// 均量为0或窗口未满时比值记 1.0。
func volumeRatios(volumes []float64, period int) []float64 {
	n := len(volumes)
	out := make([]float64, n)

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += volumes[i]
		if i >= period {
			sum -= volumes[i-period]
		}

		if i+1 < period {
			out[i] = 1.0
			continue
		}

		mean := sum / float64(period)
		if mean == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = volumes[i] / mean
	}
	return out
}
